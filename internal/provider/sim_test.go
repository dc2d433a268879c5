package provider

import (
	"context"
	"testing"

	"github.com/puente-salud/puente/internal/interp"
)

func TestSimChannelSurfacesUtterances(t *testing.T) {
	sim := NewSim()
	ch, err := sim.Realtime(context.Background(), RealtimeConfig{
		SourceLang: interp.LanguageEnglish,
		TargetLang: interp.LanguageSpanish,
	})
	if err != nil {
		t.Fatalf("realtime: %v", err)
	}
	defer func() { _ = ch.Close() }()

	chunk := make([]byte, 320)
	for i := 0; i < chunksPerUtterance; i++ {
		if err := ch.Send(chunk); err != nil {
			t.Fatalf("send chunk %d: %v", i, err)
		}
	}

	select {
	case event := <-ch.Events():
		item, ok := event.(TranscriptItemEvent)
		if !ok {
			t.Fatalf("event = %T, want TranscriptItemEvent", event)
		}
		if item.Text != utterancePairs[0][0] {
			t.Fatalf("text = %q, want first canned utterance", item.Text)
		}
		if !item.IsFinal {
			t.Fatal("expected final transcript")
		}
	default:
		t.Fatal("expected a transcript event after a full utterance of chunks")
	}
}

func TestSimChannelSpanishSource(t *testing.T) {
	sim := NewSim()
	ch, _ := sim.Realtime(context.Background(), RealtimeConfig{
		SourceLang: interp.LanguageSpanish,
		TargetLang: interp.LanguageEnglish,
	})
	defer func() { _ = ch.Close() }()

	_ = ch.Send([]byte{0})

	event := <-ch.Events()
	if item := event.(TranscriptItemEvent); item.Text != utterancePairs[0][1] {
		t.Fatalf("text = %q, want Spanish utterance", item.Text)
	}
}

func TestSimChannelClosed(t *testing.T) {
	sim := NewSim()
	ch, _ := sim.Realtime(context.Background(), RealtimeConfig{
		SourceLang: interp.LanguageEnglish,
		TargetLang: interp.LanguageSpanish,
	})

	if err := ch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := ch.Send([]byte{0}); err == nil {
		t.Fatal("expected send on closed channel to fail")
	}

	if _, open := <-ch.Events(); open {
		t.Fatal("expected events channel to be closed")
	}
}

func TestSimTranslateKnownPair(t *testing.T) {
	sim := NewSim()

	got, err := sim.Translate(context.Background(), utterancePairs[2][0], interp.LanguageEnglish, interp.LanguageSpanish)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got != utterancePairs[2][1] {
		t.Fatalf("translation = %q, want %q", got, utterancePairs[2][1])
	}

	back, err := sim.Translate(context.Background(), utterancePairs[2][1], interp.LanguageSpanish, interp.LanguageEnglish)
	if err != nil {
		t.Fatalf("translate back: %v", err)
	}
	if back != utterancePairs[2][0] {
		t.Fatalf("round trip = %q", back)
	}
}

func TestSimTranslateFallback(t *testing.T) {
	sim := NewSim()

	got, _ := sim.Translate(context.Background(), "My knee hurts", interp.LanguageEnglish, interp.LanguageSpanish)
	if got != "[Spanish translation: My knee hurts]" {
		t.Fatalf("fallback translation = %q", got)
	}
}

func TestSimSummarize(t *testing.T) {
	sim := NewSim()

	result, err := sim.Summarize(context.Background(), "Doctor (English): Hello\n")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if result.Text == "" || len(result.Actions) == 0 {
		t.Fatalf("summary = %+v, want text and actions", result)
	}
}
