package storage

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/puente-salud/puente/internal/interp"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "puente.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestFindOrCreateSessionIdempotent(t *testing.T) {
	store := newTestStore(t)

	first, err := store.FindOrCreateSession("visit-1", interp.RoleDoctor)
	if err != nil {
		t.Fatalf("first find-or-create: %v", err)
	}
	if first.Status != interp.StatusActive {
		t.Fatalf("status = %s, want active", first.Status)
	}
	if first.SourceLang != interp.LanguageEnglish || first.TargetLang != interp.LanguageSpanish {
		t.Fatalf("language pair = (%s, %s), want (en, es)", first.SourceLang, first.TargetLang)
	}

	second, err := store.FindOrCreateSession("visit-1", interp.RolePatient)
	if err != nil {
		t.Fatalf("second find-or-create: %v", err)
	}
	if second.CurrentRole != interp.RoleDoctor {
		t.Fatalf("existing session role = %s, want unchanged Doctor", second.CurrentRole)
	}
	if !second.StartTime.Equal(first.StartTime) {
		t.Fatal("second join must not create a new record")
	}
}

func TestFindOrCreateSessionRequiresID(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.FindOrCreateSession("  ", interp.RoleDoctor); err == nil {
		t.Fatal("expected error for blank id")
	}
}

func TestUpdateRoleSwapsLanguages(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.FindOrCreateSession("visit-1", interp.RoleDoctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.UpdateRole("visit-1", interp.RolePatient, interp.LanguageSpanish, interp.LanguageEnglish); err != nil {
		t.Fatalf("update role: %v", err)
	}

	sess, err := store.GetSession("visit-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.CurrentRole != interp.RolePatient {
		t.Fatalf("role = %s, want Patient", sess.CurrentRole)
	}
	if sess.SourceLang != interp.LanguageSpanish || sess.TargetLang != interp.LanguageEnglish {
		t.Fatalf("language pair = (%s, %s), want (es, en)", sess.SourceLang, sess.TargetLang)
	}
}

func TestCompleteSession(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.FindOrCreateSession("visit-1", interp.RoleDoctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	endedAt := time.Now().UTC()
	if err := store.CompleteSession("visit-1", endedAt); err != nil {
		t.Fatalf("complete: %v", err)
	}

	sess, _ := store.GetSession("visit-1")
	if !sess.Completed() {
		t.Fatalf("status = %s, want completed", sess.Status)
	}
	if sess.EndTime == nil {
		t.Fatal("expected end time to be set")
	}
}

func TestAppendTranscriptCurrentSpeakerInvariant(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.FindOrCreateSession("visit-1", interp.RoleDoctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i, text := range []string{"How are you?", "Me duele la cabeza.", "Since when?"} {
		_, err := store.AppendTranscript("visit-1", interp.Transcript{
			Speaker:   interp.RoleDoctor,
			Text:      text,
			Language:  interp.LanguageEnglish,
			Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("append transcript %d: %v", i, err)
		}
	}

	transcripts, err := store.ListTranscripts("visit-1")
	if err != nil {
		t.Fatalf("list transcripts: %v", err)
	}
	if len(transcripts) != 3 {
		t.Fatalf("got %d transcripts, want 3", len(transcripts))
	}

	for i, tr := range transcripts {
		wantCurrent := i == len(transcripts)-1
		if tr.IsCurrentSpeaker != wantCurrent {
			t.Fatalf("transcript %d is_current_speaker = %v, want %v", i, tr.IsCurrentSpeaker, wantCurrent)
		}
	}
}

func TestListTranscriptsOrderedUnderConcurrentInserts(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.FindOrCreateSession("visit-1", interp.RoleDoctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.AppendTranscript("visit-1", interp.Transcript{
				Speaker:   interp.RoleDoctor,
				Text:      "utterance",
				Language:  interp.LanguageEnglish,
				Timestamp: time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	transcripts, err := store.ListTranscripts("visit-1")
	if err != nil {
		t.Fatalf("list transcripts: %v", err)
	}
	if len(transcripts) != 20 {
		t.Fatalf("got %d transcripts, want 20", len(transcripts))
	}

	for i := 1; i < len(transcripts); i++ {
		if transcripts[i].Timestamp.Before(transcripts[i-1].Timestamp) {
			t.Fatalf("transcripts out of order at index %d", i)
		}
	}
}

func TestUpdateTranslation(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.FindOrCreateSession("visit-1", interp.RoleDoctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	saved, err := store.AppendTranscript("visit-1", interp.Transcript{
		Speaker:  interp.RoleDoctor,
		Text:     "How are you?",
		Language: interp.LanguageEnglish,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := store.UpdateTranslation(saved.ID, "¿Cómo está?"); err != nil {
		t.Fatalf("update translation: %v", err)
	}

	transcripts, _ := store.ListTranscripts("visit-1")
	if transcripts[0].Translation != "¿Cómo está?" {
		t.Fatalf("translation = %q", transcripts[0].Translation)
	}
}

func TestDeleteTranscripts(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.FindOrCreateSession("visit-1", interp.RoleDoctor); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.AppendTranscript("visit-1", interp.Transcript{
		Speaker:  interp.RoleDoctor,
		Text:     "How are you?",
		Language: interp.LanguageEnglish,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := store.DeleteTranscripts("visit-1"); err != nil {
		t.Fatalf("delete transcripts: %v", err)
	}

	transcripts, _ := store.ListTranscripts("visit-1")
	if len(transcripts) != 0 {
		t.Fatalf("got %d transcripts after delete, want 0", len(transcripts))
	}
}

func TestIntentsAppendOnly(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.FindOrCreateSession("visit-1", interp.RoleDoctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.AppendIntent("visit-1", interp.Intent{Type: interp.IntentFollowUp, Value: "2 weeks"}); err != nil {
		t.Fatalf("append follow_up: %v", err)
	}
	if err := store.AppendIntent("visit-1", interp.Intent{Type: interp.IntentLabOrder, Value: true}); err != nil {
		t.Fatalf("append lab_order: %v", err)
	}

	intents, err := store.ListIntents("visit-1")
	if err != nil {
		t.Fatalf("list intents: %v", err)
	}
	if len(intents) != 2 {
		t.Fatalf("got %d intents, want 2", len(intents))
	}
	if intents[0].Type != interp.IntentFollowUp || intents[0].Value != "2 weeks" {
		t.Fatalf("first intent = %+v", intents[0])
	}
	if intents[1].Type != interp.IntentLabOrder || intents[1].Value != true {
		t.Fatalf("second intent = %+v", intents[1])
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.FindOrCreateSession("visit-1", interp.RoleDoctor); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetSummary("visit-1")
	if err != nil {
		t.Fatalf("get missing summary: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil summary before generation")
	}

	summary := interp.Summary{
		Text:        "Patient reported headaches.",
		Actions:     []string{"Schedule follow-up appointment"},
		GeneratedAt: time.Now().UTC(),
	}
	if err := store.SetSummary("visit-1", summary); err != nil {
		t.Fatalf("set summary: %v", err)
	}

	got, err = store.GetSummary("visit-1")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if got == nil || got.Text != summary.Text {
		t.Fatalf("summary = %+v", got)
	}
	if len(got.Actions) != 1 || got.Actions[0] != summary.Actions[0] {
		t.Fatalf("actions = %v", got.Actions)
	}
}
