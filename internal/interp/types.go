package interp

import (
	"fmt"
	"strings"
	"time"
)

// Language is a supported conversation language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSpanish Language = "es"
)

// Role is the currently speaking party. Each role is bound to a language:
// the Doctor speaks English, the Patient speaks Spanish.
type Role string

const (
	RoleDoctor  Role = "Doctor"
	RolePatient Role = "Patient"
)

// Session status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.TrimSpace(s)) {
	case RoleDoctor:
		return RoleDoctor, nil
	case RolePatient:
		return RolePatient, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

func ParseLanguage(s string) (Language, error) {
	switch Language(strings.TrimSpace(s)) {
	case LanguageEnglish:
		return LanguageEnglish, nil
	case LanguageSpanish:
		return LanguageSpanish, nil
	}
	return "", fmt.Errorf("invalid language %q", s)
}

// LanguagesFor returns the (source, target) pair for a speaking role.
func LanguagesFor(role Role) (Language, Language) {
	if role == RolePatient {
		return LanguageSpanish, LanguageEnglish
	}
	return LanguageEnglish, LanguageSpanish
}

// Name returns the human-readable language name used in prompts and
// conversation formatting.
func (l Language) Name() string {
	if l == LanguageSpanish {
		return "Spanish"
	}
	return "English"
}

// Session is one interpreted conversation between two roles.
type Session struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	CurrentRole Role       `json:"current_role"`
	SourceLang  Language   `json:"source_language"`
	TargetLang  Language   `json:"target_language"`
	AudioPath   string     `json:"audio_path,omitempty"`
	Summary     *Summary   `json:"summary,omitempty"`
	Intents     []Intent   `json:"detected_intents,omitempty"`
}

// Completed reports whether the session has ended.
func (s Session) Completed() bool {
	return s.Status == StatusCompleted
}

// Transcript is one utterance within a session.
type Transcript struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Speaker          Role      `json:"speaker"`
	Text             string    `json:"text"`
	Translation      string    `json:"translation,omitempty"`
	Language         Language  `json:"language"`
	Timestamp        time.Time `json:"timestamp"`
	IsCurrentSpeaker bool      `json:"is_current_speaker"`
}

// IntentType classifies a detected intent.
type IntentType string

const (
	IntentRepeat   IntentType = "repeat"
	IntentFollowUp IntentType = "follow_up"
	IntentLabOrder IntentType = "lab_order"
	IntentOther    IntentType = "other"
)

// Intent is a structured signal extracted from utterance text. Value is
// either boolean true or an extracted string such as "2 weeks".
type Intent struct {
	Type       IntentType `json:"type"`
	Value      any        `json:"value"`
	DetectedAt time.Time  `json:"detected_at"`
}

// Summary is the abstractive summary of a completed conversation.
type Summary struct {
	Text        string    `json:"text"`
	Actions     []string  `json:"actions"`
	GeneratedAt time.Time `json:"generated_at"`
}

// FormatConversation renders transcripts as speaker-labeled lines for the
// summarization prompt.
func FormatConversation(transcripts []Transcript) string {
	var b strings.Builder
	for _, t := range transcripts {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s (%s): %s\n", t.Speaker, t.Language.Name(), text)
	}
	return b.String()
}
