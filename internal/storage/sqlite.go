package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/puente-salud/puente/internal/interp"
)

// SQLiteStore persists sessions, transcripts, intents and summaries.
// modernc.org/sqlite is a single-writer engine, so the pool is pinned to one
// connection and WAL mode keeps readers unblocked.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "puente.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			current_role TEXT NOT NULL,
			source_lang TEXT NOT NULL,
			target_lang TEXT NOT NULL,
			audio_path TEXT NOT NULL DEFAULT '',
			summary_text TEXT NOT NULL DEFAULT '',
			summary_actions TEXT NOT NULL DEFAULT '[]',
			summary_generated_at TEXT
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			speaker TEXT NOT NULL,
			text TEXT NOT NULL,
			translation TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			is_current_speaker INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create transcripts table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS intents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			type TEXT NOT NULL,
			value TEXT NOT NULL,
			detected_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create intents table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_transcripts_session_ts ON transcripts(session_id, timestamp)"); err != nil {
		return fmt.Errorf("create transcripts index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_intents_session ON intents(session_id)"); err != nil {
		return fmt.Errorf("create intents index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FindOrCreateSession returns the persisted session, creating an active one
// with the role-derived language pair when none exists. Idempotent.
func (s *SQLiteStore) FindOrCreateSession(id string, role interp.Role) (interp.Session, error) {
	if strings.TrimSpace(id) == "" {
		return interp.Session{}, errors.New("session id is required")
	}

	source, target := interp.LanguagesFor(role)
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions(id, status, started_at, current_role, source_lang, target_lang)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		id,
		interp.StatusActive,
		time.Now().UTC().Format(time.RFC3339Nano),
		string(role),
		string(source),
		string(target),
	)
	if err != nil {
		return interp.Session{}, fmt.Errorf("create session %s: %w", id, err)
	}

	return s.GetSession(id)
}

func (s *SQLiteStore) GetSession(id string) (interp.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, status, started_at, ended_at, current_role, source_lang, target_lang,
		        audio_path, summary_text, summary_actions, summary_generated_at
		 FROM sessions WHERE id = ?`,
		id,
	)
	return scanSession(row)
}

// UpdateRole persists the role switch together with the swapped language
// pair in one statement so the pair can never drift from the role.
func (s *SQLiteStore) UpdateRole(id string, role interp.Role, source, target interp.Language) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET current_role = ?, source_lang = ?, target_lang = ? WHERE id = ?`,
		string(role), string(source), string(target), id,
	)
	if err != nil {
		return fmt.Errorf("update role for session %s: %w", id, err)
	}
	return requireRows(res, id)
}

func (s *SQLiteStore) CompleteSession(id string, endedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?`,
		interp.StatusCompleted,
		endedAt.UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("complete session %s: %w", id, err)
	}
	return requireRows(res, id)
}

func (s *SQLiteStore) SetAudioPath(id, audioPath string) error {
	res, err := s.db.Exec(`UPDATE sessions SET audio_path = ? WHERE id = ?`, audioPath, id)
	if err != nil {
		return fmt.Errorf("set audio path for session %s: %w", id, err)
	}
	return requireRows(res, id)
}

// AppendTranscript inserts a transcript and transactionally re-asserts the
// invariant that only the newest row carries is_current_speaker.
func (s *SQLiteStore) AppendTranscript(sessionID string, t interp.Transcript) (interp.Transcript, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	t.SessionID = sessionID
	t.IsCurrentSpeaker = true

	tx, err := s.db.Begin()
	if err != nil {
		return interp.Transcript{}, fmt.Errorf("begin transcript insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`UPDATE transcripts SET is_current_speaker = 0 WHERE session_id = ? AND is_current_speaker = 1`,
		sessionID,
	); err != nil {
		return interp.Transcript{}, fmt.Errorf("clear current speaker for session %s: %w", sessionID, err)
	}

	if _, err := tx.Exec(
		`INSERT INTO transcripts(id, session_id, speaker, text, translation, language, timestamp, is_current_speaker)
		 VALUES(?, ?, ?, ?, ?, ?, ?, 1)`,
		t.ID,
		sessionID,
		string(t.Speaker),
		strings.TrimSpace(t.Text),
		t.Translation,
		string(t.Language),
		t.Timestamp.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return interp.Transcript{}, fmt.Errorf("append transcript for session %s: %w", sessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return interp.Transcript{}, fmt.Errorf("commit transcript insert: %w", err)
	}

	return t, nil
}

// UpdateTranslation attaches a translation to an existing transcript. This is
// the only mutation allowed after insert.
func (s *SQLiteStore) UpdateTranslation(transcriptID, translation string) error {
	res, err := s.db.Exec(
		`UPDATE transcripts SET translation = ? WHERE id = ?`,
		translation, transcriptID,
	)
	if err != nil {
		return fmt.Errorf("update translation for transcript %s: %w", transcriptID, err)
	}
	return requireRows(res, transcriptID)
}

// ListTranscripts returns a session's transcripts in non-decreasing
// timestamp order, with insertion order as the tiebreaker.
func (s *SQLiteStore) ListTranscripts(sessionID string) ([]interp.Transcript, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, speaker, text, translation, language, timestamp, is_current_speaker
		 FROM transcripts
		 WHERE session_id = ?
		 ORDER BY timestamp ASC, rowid ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query transcripts for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	transcripts := make([]interp.Transcript, 0, 32)
	for rows.Next() {
		var t interp.Transcript
		var speaker, language, ts string
		var current int
		if err := rows.Scan(&t.ID, &t.SessionID, &speaker, &t.Text, &t.Translation, &language, &ts, &current); err != nil {
			return nil, fmt.Errorf("scan transcript for session %s: %w", sessionID, err)
		}

		parsedTS, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse transcript timestamp for session %s: %w", sessionID, err)
		}
		t.Speaker = interp.Role(speaker)
		t.Language = interp.Language(language)
		t.Timestamp = parsedTS
		t.IsCurrentSpeaker = current == 1

		transcripts = append(transcripts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows for session %s: %w", sessionID, err)
	}

	return transcripts, nil
}

func (s *SQLiteStore) DeleteTranscripts(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM transcripts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete transcripts for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) AppendIntent(sessionID string, intent interp.Intent) error {
	value, err := json.Marshal(intent.Value)
	if err != nil {
		return fmt.Errorf("encode intent value: %w", err)
	}

	detectedAt := intent.DetectedAt
	if detectedAt.IsZero() {
		detectedAt = time.Now().UTC()
	}

	if _, err := s.db.Exec(
		`INSERT INTO intents(session_id, type, value, detected_at) VALUES(?, ?, ?, ?)`,
		sessionID,
		string(intent.Type),
		string(value),
		detectedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("append intent for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) ListIntents(sessionID string) ([]interp.Intent, error) {
	rows, err := s.db.Query(
		`SELECT type, value, detected_at FROM intents WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query intents for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var intents []interp.Intent
	for rows.Next() {
		var intent interp.Intent
		var typ, value, detectedAt string
		if err := rows.Scan(&typ, &value, &detectedAt); err != nil {
			return nil, fmt.Errorf("scan intent for session %s: %w", sessionID, err)
		}

		if err := json.Unmarshal([]byte(value), &intent.Value); err != nil {
			return nil, fmt.Errorf("decode intent value for session %s: %w", sessionID, err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, detectedAt)
		if err != nil {
			return nil, fmt.Errorf("parse intent timestamp for session %s: %w", sessionID, err)
		}
		intent.Type = interp.IntentType(typ)
		intent.DetectedAt = parsed

		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intent rows for session %s: %w", sessionID, err)
	}

	return intents, nil
}

func (s *SQLiteStore) GetSummary(sessionID string) (*interp.Summary, error) {
	row := s.db.QueryRow(
		`SELECT summary_text, summary_actions, summary_generated_at FROM sessions WHERE id = ?`,
		sessionID,
	)

	var text, actionsJSON string
	var generatedAt sql.NullString
	if err := row.Scan(&text, &actionsJSON, &generatedAt); err != nil {
		return nil, fmt.Errorf("query summary for session %s: %w", sessionID, err)
	}

	if !generatedAt.Valid {
		return nil, nil
	}

	var actions []string
	if err := json.Unmarshal([]byte(actionsJSON), &actions); err != nil {
		return nil, fmt.Errorf("decode summary actions for session %s: %w", sessionID, err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, generatedAt.String)
	if err != nil {
		return nil, fmt.Errorf("parse summary timestamp for session %s: %w", sessionID, err)
	}

	return &interp.Summary{Text: text, Actions: actions, GeneratedAt: parsed}, nil
}

func (s *SQLiteStore) SetSummary(sessionID string, summary interp.Summary) error {
	actions, err := json.Marshal(summary.Actions)
	if err != nil {
		return fmt.Errorf("encode summary actions: %w", err)
	}

	res, err := s.db.Exec(
		`UPDATE sessions SET summary_text = ?, summary_actions = ?, summary_generated_at = ? WHERE id = ?`,
		summary.Text,
		string(actions),
		summary.GeneratedAt.UTC().Format(time.RFC3339Nano),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("set summary for session %s: %w", sessionID, err)
	}
	return requireRows(res, sessionID)
}

func scanSession(row *sql.Row) (interp.Session, error) {
	var sess interp.Session
	var status, startedAt, role, source, target, summaryText, summaryActions string
	var endedAt, summaryGeneratedAt sql.NullString

	if err := row.Scan(
		&sess.ID, &status, &startedAt, &endedAt, &role, &source, &target,
		&sess.AudioPath, &summaryText, &summaryActions, &summaryGeneratedAt,
	); err != nil {
		return interp.Session{}, fmt.Errorf("query session: %w", err)
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return interp.Session{}, fmt.Errorf("parse session started_at: %w", err)
	}

	sess.Status = status
	sess.StartTime = parsedStart
	sess.CurrentRole = interp.Role(role)
	sess.SourceLang = interp.Language(source)
	sess.TargetLang = interp.Language(target)

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return interp.Session{}, fmt.Errorf("parse session ended_at: %w", err)
		}
		sess.EndTime = &parsedEnd
	}

	if summaryGeneratedAt.Valid {
		var actions []string
		if err := json.Unmarshal([]byte(summaryActions), &actions); err != nil {
			return interp.Session{}, fmt.Errorf("decode summary actions: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, summaryGeneratedAt.String)
		if err != nil {
			return interp.Session{}, fmt.Errorf("parse summary generated_at: %w", err)
		}
		sess.Summary = &interp.Summary{Text: summaryText, Actions: actions, GeneratedAt: parsed}
	}

	return sess, nil
}

func requireRows(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", id, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
