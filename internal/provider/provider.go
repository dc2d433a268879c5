package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/puente-salud/puente/internal/interp"
)

// RepeatMarker is the literal phrase the realtime provider is instructed to
// echo back verbatim when it hears a "repeat that" utterance. The event
// router treats any transcript containing it as a command, not content.
const RepeatMarker = "COMMAND_REPEAT_PREVIOUS"

// ErrConnectTimeout is returned when the realtime channel does not open
// within the configured deadline.
var ErrConnectTimeout = errors.New("realtime connect timed out")

// RealtimeConfig configures one realtime interpretation channel.
type RealtimeConfig struct {
	SourceLang interp.Language
	TargetLang interp.Language
}

// RealtimeEvent is a provider event delivered over a channel's event stream.
// It is a closed union: TranscriptItemEvent, AudioChunkEvent or ErrorEvent.
type RealtimeEvent interface {
	realtimeEventType() string
}

// TranscriptItemEvent carries a transcribed utterance from the provider.
type TranscriptItemEvent struct {
	Text    string
	IsFinal bool
}

func (TranscriptItemEvent) realtimeEventType() string { return "transcript_item" }

// AudioChunkEvent carries synthesized audio from the provider.
type AudioChunkEvent struct {
	Data []byte
}

func (AudioChunkEvent) realtimeEventType() string { return "audio" }

// ErrorEvent carries a mid-session provider fault.
type ErrorEvent struct {
	Code    string
	Message string
}

func (ErrorEvent) realtimeEventType() string { return "error" }

func (e ErrorEvent) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// RealtimeChannel is one live bidirectional channel to the provider.
// Events() is closed when the channel shuts down, from either side.
type RealtimeChannel interface {
	Events() <-chan RealtimeEvent
	Send(chunk []byte) error
	SignalEndOfInput() error
	Close() error
}

// SummaryResult is the provider's abstractive summary of a conversation.
type SummaryResult struct {
	Text    string   `json:"text"`
	Actions []string `json:"actions"`
}

// Provider is the external translation/speech capability. Two
// implementations exist: OpenAI (live) and Sim (simulated), selected by
// configuration at construction time.
type Provider interface {
	Realtime(ctx context.Context, cfg RealtimeConfig) (RealtimeChannel, error)
	Translate(ctx context.Context, text string, from, to interp.Language) (string, error)
	Synthesize(ctx context.Context, text string, lang interp.Language) ([]byte, error)
	Summarize(ctx context.Context, conversation string) (SummaryResult, error)
}

// VoiceFor returns the synthesis voice for a target language.
func VoiceFor(lang interp.Language) string {
	if lang == interp.LanguageSpanish {
		return "coral"
	}
	return "alloy"
}

// Instructions builds the interpreter system instructions sent with the
// realtime session configuration.
func Instructions(source, target interp.Language) string {
	return fmt.Sprintf(
		"You are a professional medical interpreter. "+
			"Translate the following from %s to %s. "+
			"Maintain medical terminology accurately. "+
			"If you detect the phrase \"repeat that\" or similar, respond with %q.",
		source.Name(), target.Name(), RepeatMarker,
	)
}
