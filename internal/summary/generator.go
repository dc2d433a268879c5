package summary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/puente-salud/puente/internal/interp"
	"github.com/puente-salud/puente/internal/provider"
)

// ErrNoTranscripts is returned when a summary is requested for a session
// with no recorded conversation.
var ErrNoTranscripts = errors.New("no transcripts to summarize")

// ErrSessionNotFound is returned when the session id has no persisted record.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionClosed is returned when generation is requested for a completed
// session. The cached summary stays readable.
var ErrSessionClosed = errors.New("session is closed")

// Store is the persistence collaborator for summaries.
type Store interface {
	GetSession(id string) (interp.Session, error)
	ListTranscripts(sessionID string) ([]interp.Transcript, error)
	GetSummary(sessionID string) (*interp.Summary, error)
	SetSummary(sessionID string, s interp.Summary) error
}

// Summarizer produces a structured summary from a formatted conversation.
type Summarizer interface {
	Summarize(ctx context.Context, conversation string) (provider.SummaryResult, error)
}

// Generator produces and caches one clinical summary per session.
// Generation happens while the session is active; after end the cached
// summary remains readable but is never rebuilt.
type Generator struct {
	store    Store
	provider Summarizer
}

func NewGenerator(store Store, prov Summarizer) *Generator {
	return &Generator{store: store, provider: prov}
}

// Generate returns the session's summary, producing one on first call. With
// regenerate set, any cached summary is discarded and rebuilt from the full
// transcript history.
func (g *Generator) Generate(ctx context.Context, sessionID string, regenerate bool) (interp.Summary, error) {
	sess, err := g.store.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return interp.Summary{}, ErrSessionNotFound
		}
		return interp.Summary{}, fmt.Errorf("get session: %w", err)
	}
	if sess.Completed() {
		return interp.Summary{}, ErrSessionClosed
	}

	if !regenerate {
		cached, err := g.store.GetSummary(sessionID)
		if err != nil {
			return interp.Summary{}, fmt.Errorf("load cached summary: %w", err)
		}
		if cached != nil {
			return *cached, nil
		}
	}

	transcripts, err := g.store.ListTranscripts(sessionID)
	if err != nil {
		return interp.Summary{}, fmt.Errorf("list transcripts: %w", err)
	}
	if len(transcripts) == 0 {
		return interp.Summary{}, ErrNoTranscripts
	}

	result, err := g.provider.Summarize(ctx, interp.FormatConversation(transcripts))
	if err != nil {
		return interp.Summary{}, fmt.Errorf("summarize session %s: %w", sessionID, err)
	}

	s := interp.Summary{
		Text:        result.Text,
		Actions:     result.Actions,
		GeneratedAt: time.Now().UTC(),
	}
	if err := g.store.SetSummary(sessionID, s); err != nil {
		return interp.Summary{}, fmt.Errorf("persist summary: %w", err)
	}

	return s, nil
}

// Cached returns the stored summary without generating, or nil when none
// exists yet.
func (g *Generator) Cached(sessionID string) (*interp.Summary, error) {
	if _, err := g.store.GetSession(sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return g.store.GetSummary(sessionID)
}
