package session

import (
	"time"

	"github.com/puente-salud/puente/internal/interp"
)

// Store is the persistence collaborator. Failures on the realtime path are
// logged, never propagated.
type Store interface {
	FindOrCreateSession(id string, role interp.Role) (interp.Session, error)
	GetSession(id string) (interp.Session, error)
	UpdateRole(id string, role interp.Role, source, target interp.Language) error
	CompleteSession(id string, endedAt time.Time) error
	SetAudioPath(id, audioPath string) error
	AppendTranscript(sessionID string, t interp.Transcript) (interp.Transcript, error)
	AppendIntent(sessionID string, intent interp.Intent) error
}

// Broadcaster fans events out to a session's subscribers. Delivery is
// fire-and-forget; a slow subscriber must not block the engine.
type Broadcaster interface {
	SessionReady(sessionID string)
	RoleUpdated(sessionID string, role interp.Role)
	SessionEnded(sessionID string)
	TranscriptUpdate(sessionID string, t interp.Transcript, isFinal bool)
	AudioResponse(sessionID string, audio []byte, text string)
	IntentDetected(sessionID string, intents []interp.Intent)
	Error(sessionID, message string)
}

// Recorder captures forwarded audio per session.
type Recorder interface {
	StartSession(sessionID string) error
	Append(sessionID string, chunk []byte) error
	EndSession(sessionID string) (string, error)
}

// IntentDetector classifies utterance text into intents.
type IntentDetector interface {
	Detect(text string) []interp.Intent
}

// RoleSwitchResult reports the state after a role switch.
type RoleSwitchResult struct {
	Role       interp.Role     `json:"role"`
	SourceLang interp.Language `json:"source_language"`
	TargetLang interp.Language `json:"target_language"`
}
