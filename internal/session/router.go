package session

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/puente-salud/puente/internal/interp"
	"github.com/puente-salud/puente/internal/provider"
)

const capabilityTimeout = 30 * time.Second

// route is the single consumer of one connection's event stream. It exits
// when the channel closes. Every event is checked against the entry's
// current epoch so a superseded connection cannot leak events into the
// session after a role switch or reconnect.
func (r *Registry) route(e *entry, lc *liveConn) {
	for event := range lc.channel.Events() {
		if e.epoch.Load() != lc.epoch {
			continue
		}

		switch ev := event.(type) {
		case provider.TranscriptItemEvent:
			r.onTranscriptItem(e, lc, ev)
		case provider.AudioChunkEvent:
			r.hub.AudioResponse(lc.sessionID, ev.Data, "")
		case provider.ErrorEvent:
			// Surfaced to subscribers only; closing the connection is the
			// caller's decision.
			log.Printf("provider error for session %s: %v", lc.sessionID, ev)
			r.hub.Error(lc.sessionID, ev.Message)
		}
	}
}

// onTranscriptItem classifies the utterance before anything else. A repeat
// command — recognized either by the provider's marker echo or by the
// detector — is not conversational content: it raises an intent event and
// suppresses transcript handling entirely.
func (r *Registry) onTranscriptItem(e *entry, lc *liveConn, item provider.TranscriptItemEvent) {
	intents := r.detector.Detect(item.Text)

	if strings.Contains(item.Text, provider.RepeatMarker) {
		intents = []interp.Intent{{
			Type:       interp.IntentRepeat,
			Value:      true,
			DetectedAt: time.Now().UTC(),
		}}
	}

	for _, intent := range intents {
		if intent.Type == interp.IntentRepeat {
			r.emitIntents(lc.sessionID, intents)
			return
		}
	}

	if len(intents) > 0 {
		r.emitIntents(lc.sessionID, intents)
	}

	go r.processTranscript(e, lc, item)
}

// processTranscript runs translation and synthesis off the router goroutine
// so a slow provider call never delays subsequent events.
func (r *Registry) processTranscript(e *entry, lc *liveConn, item provider.TranscriptItemEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), capabilityTimeout)
	defer cancel()

	translation, err := r.provider.Translate(ctx, item.Text, lc.source, lc.target)

	if e.epoch.Load() != lc.epoch {
		return
	}

	if err != nil {
		log.Printf("translate for session %s: %v", lc.sessionID, err)
		r.hub.Error(lc.sessionID, "Failed to translate")
		translation = ""
	}

	transcript := interp.Transcript{
		SessionID:   lc.sessionID,
		Speaker:     lc.role,
		Text:        item.Text,
		Translation: translation,
		Language:    lc.source,
		Timestamp:   time.Now().UTC(),
	}

	r.hub.TranscriptUpdate(lc.sessionID, transcript, item.IsFinal)

	if item.IsFinal {
		// Best-effort, at-most-once; a storage fault must not disturb the
		// realtime flow.
		go func() {
			if _, err := r.store.AppendTranscript(lc.sessionID, transcript); err != nil {
				log.Printf("persist transcript for session %s: %v", lc.sessionID, err)
			}
		}()
	}

	if translation != "" {
		r.onTranslationReady(e, lc, translation)
	}
}

// onTranslationReady synthesizes speech for the translated text and emits it
// with the text so clients can play and display together.
func (r *Registry) onTranslationReady(e *entry, lc *liveConn, translation string) {
	ctx, cancel := context.WithTimeout(context.Background(), capabilityTimeout)
	defer cancel()

	speech, err := r.provider.Synthesize(ctx, translation, lc.target)

	if e.epoch.Load() != lc.epoch {
		return
	}

	if err != nil {
		log.Printf("synthesize for session %s: %v", lc.sessionID, err)
		r.hub.Error(lc.sessionID, "Failed to generate speech")
		return
	}

	r.hub.AudioResponse(lc.sessionID, speech, translation)
}

// emitIntents fans intents out to subscribers and appends each to the
// persisted session independently, so one bad row cannot block the rest.
func (r *Registry) emitIntents(sessionID string, intents []interp.Intent) {
	if len(intents) == 0 {
		return
	}

	r.hub.IntentDetected(sessionID, intents)

	for _, intent := range intents {
		go func(intent interp.Intent) {
			if err := r.store.AppendIntent(sessionID, intent); err != nil {
				log.Printf("persist intent %s for session %s: %v", intent.Type, sessionID, err)
			}
		}(intent)
	}
}
