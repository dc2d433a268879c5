package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/puente-salud/puente/internal/interp"
	"github.com/puente-salud/puente/internal/summary"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type SessionStore interface {
	GetSession(id string) (interp.Session, error)
	ListTranscripts(sessionID string) ([]interp.Transcript, error)
	DeleteTranscripts(sessionID string) error
	ListIntents(sessionID string) ([]interp.Intent, error)
}

// SummaryGenerator produces and caches clinical summaries.
type SummaryGenerator interface {
	Generate(ctx context.Context, sessionID string, regenerate bool) (interp.Summary, error)
	Cached(sessionID string) (*interp.Summary, error)
}

// StatusHooks expose runtime diagnostics on the status endpoint.
type StatusHooks struct {
	Warnings      func() []string
	Provider      func() string
	DroppedChunks func() uint64
}

func registerAPIRoutes(mux *http.ServeMux, store SessionStore, summaries SummaryGenerator, status StatusHooks) {
	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		sess, err := store.GetSession(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		transcripts, err := store.ListTranscripts(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session transcripts: %v", err))
			return
		}

		intents, err := store.ListIntents(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session intents: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session":     sess,
			"transcripts": transcripts,
			"intents":     intents,
		})
	})

	mux.HandleFunc("GET /api/sessions/{id}/transcripts", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		if _, err := store.GetSession(sessionID); err != nil {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}

		transcripts, err := store.ListTranscripts(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list transcripts: %v", err))
			return
		}
		if transcripts == nil {
			transcripts = []interp.Transcript{}
		}
		writeJSON(w, http.StatusOK, transcripts)
	})

	mux.HandleFunc("DELETE /api/sessions/{id}/transcripts", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		if _, err := store.GetSession(sessionID); err != nil {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}

		if err := store.DeleteTranscripts(sessionID); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("delete transcripts: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/sessions/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		regenerate := r.URL.Query().Get("regenerate") == "true"

		result, err := summaries.Generate(r.Context(), sessionID, regenerate)
		if err != nil {
			switch {
			case errors.Is(err, summary.ErrSessionNotFound):
				writeJSONError(w, http.StatusNotFound, "session not found")
			case errors.Is(err, summary.ErrNoTranscripts):
				writeJSONError(w, http.StatusConflict, "no transcripts to summarize")
			case errors.Is(err, summary.ErrSessionClosed):
				writeJSONError(w, http.StatusConflict, "session has ended")
			default:
				writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("generate summary: %v", err))
			}
			return
		}

		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /api/sessions/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		cached, err := summaries.Cached(sessionID)
		if err != nil {
			if errors.Is(err, summary.ErrSessionNotFound) {
				writeJSONError(w, http.StatusNotFound, "session not found")
				return
			}
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get summary: %v", err))
			return
		}
		if cached == nil {
			writeJSONError(w, http.StatusNotFound, "summary not generated yet")
			return
		}
		writeJSON(w, http.StatusOK, cached)
	})

	mux.HandleFunc("GET /api/sessions/{id}/audio", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		sess, err := store.GetSession(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "session not found")
			return
		}

		if sess.AudioPath == "" {
			writeJSONError(w, http.StatusNotFound, "audio not available")
			return
		}

		cleanPath := filepath.Clean(sess.AudioPath)
		if cleanPath == "" || cleanPath == "." || strings.Contains(cleanPath, "..") {
			writeJSONError(w, http.StatusForbidden, "invalid audio path")
			return
		}

		f, err := os.Open(cleanPath)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "audio file not found")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stat audio: %v", err))
			return
		}

		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Type", "audio/wav")
		http.ServeContent(w, r, filepath.Base(cleanPath), info.ModTime(), f)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if status.Warnings != nil {
			warnings = status.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		providerMode := ""
		if status.Provider != nil {
			providerMode = status.Provider()
		}
		var dropped uint64
		if status.DroppedChunks != nil {
			dropped = status.DroppedChunks()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"provider":       providerMode,
			"dropped_chunks": dropped,
			"warnings":       warnings,
		})
	})
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
