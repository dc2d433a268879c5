package server

import (
	"time"

	"github.com/puente-salud/puente/internal/interp"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type SessionJoinedEvent struct {
	Event
	SessionID      string          `json:"session_id"`
	Role           interp.Role     `json:"role"`
	SourceLanguage interp.Language `json:"source_language"`
	TargetLanguage interp.Language `json:"target_language"`
}

type SessionReadyEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type RoleUpdatedEvent struct {
	Event
	SessionID string      `json:"session_id"`
	Role      interp.Role `json:"role"`
}

type SessionEndedEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type TranscriptUpdateEvent struct {
	Event
	SessionID   string          `json:"session_id"`
	Speaker     interp.Role     `json:"speaker"`
	Text        string          `json:"text"`
	Translation string          `json:"translation"`
	Language    interp.Language `json:"language"`
	IsFinal     bool            `json:"is_final"`
}

type AudioResponseEvent struct {
	Event
	SessionID string `json:"session_id"`
	Audio     []byte `json:"audio"`
	Text      string `json:"text"`
}

type IntentDetectedEvent struct {
	Event
	SessionID string          `json:"session_id"`
	Intents   []interp.Intent `json:"intents"`
}

type ErrorEvent struct {
	Event
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
