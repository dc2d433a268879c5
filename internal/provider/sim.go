package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/puente-salud/puente/internal/interp"
)

// Sim is the simulated Provider implementation. It drives the full pipeline
// without credentials or network access: every Nth forwarded audio chunk
// surfaces a canned utterance in the configured source language, translation
// is a deterministic table lookup, and synthesis returns a placeholder buffer.
type Sim struct{}

func NewSim() *Sim {
	return &Sim{}
}

// utterancePairs maps each canned English utterance to its Spanish rendering.
var utterancePairs = [][2]string{
	{"Hello, how are you feeling today?", "Hola, ¿cómo se siente hoy?"},
	{"Can you describe your symptoms?", "¿Puede describir sus síntomas?"},
	{"How long have you had this pain?", "¿Cuánto tiempo ha tenido este dolor?"},
	{"I'm going to prescribe some medication for you.", "Voy a recetarle algunos medicamentos."},
	{"Have you had any allergies to medication?", "¿Ha tenido alguna alergia a medicamentos?"},
	{"Let's schedule a follow-up appointment next week.", "Programemos una cita de seguimiento la próxima semana."},
}

// chunksPerUtterance is how many audio chunks the sim consumes before it
// surfaces the next canned transcript.
const chunksPerUtterance = 20

type simChannel struct {
	source interp.Language

	mu        sync.Mutex
	chunks    int
	utterance int
	closed    bool

	events    chan RealtimeEvent
	closeOnce sync.Once
}

func (s *Sim) Realtime(_ context.Context, cfg RealtimeConfig) (RealtimeChannel, error) {
	return &simChannel{
		source: cfg.SourceLang,
		events: make(chan RealtimeEvent, 64),
	}, nil
}

func (c *simChannel) Events() <-chan RealtimeEvent {
	return c.events
}

func (c *simChannel) Send(_ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("simulated channel is closed")
	}

	c.chunks++
	if c.chunks%chunksPerUtterance != 1 {
		return nil
	}

	pair := utterancePairs[c.utterance%len(utterancePairs)]
	c.utterance++

	text := pair[0]
	if c.source == interp.LanguageSpanish {
		text = pair[1]
	}

	select {
	case c.events <- TranscriptItemEvent{Text: text, IsFinal: true}:
	default:
	}
	return nil
}

func (c *simChannel) SignalEndOfInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("simulated channel is closed")
	}
	return nil
}

func (c *simChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.events)
	})
	return nil
}

func (s *Sim) Translate(_ context.Context, text string, _, to interp.Language) (string, error) {
	for _, pair := range utterancePairs {
		if text == pair[0] && to == interp.LanguageSpanish {
			return pair[1], nil
		}
		if text == pair[1] && to == interp.LanguageEnglish {
			return pair[0], nil
		}
	}
	return fmt.Sprintf("[%s translation: %s]", to.Name(), text), nil
}

func (s *Sim) Synthesize(_ context.Context, _ string, _ interp.Language) ([]byte, error) {
	return []byte{0, 0, 0, 0}, nil
}

func (s *Sim) Summarize(_ context.Context, _ string) (SummaryResult, error) {
	return SummaryResult{
		Text:    "Simulated summary of the conversation.",
		Actions: []string{"Schedule follow-up appointment", "Send lab order"},
	}, nil
}
