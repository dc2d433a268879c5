package intent

import (
	"testing"

	"github.com/puente-salud/puente/internal/interp"
)

func TestDetectRepeat(t *testing.T) {
	detector := NewDetector()

	for _, text := range []string{
		"Can you repeat that?",
		"Could you repeat what you said?",
		"repita eso",
		"Dilo otra vez, por favor",
	} {
		intents := detector.Detect(text)
		if len(intents) != 1 {
			t.Fatalf("Detect(%q) = %d intents, want 1", text, len(intents))
		}
		if intents[0].Type != interp.IntentRepeat {
			t.Fatalf("Detect(%q) type = %s, want repeat", text, intents[0].Type)
		}
		if intents[0].Value != true {
			t.Fatalf("Detect(%q) value = %v, want true", text, intents[0].Value)
		}
	}
}

func TestDetectFollowUpWithTimePeriod(t *testing.T) {
	detector := NewDetector()

	tests := []struct {
		text string
		want any
	}{
		{"Let's see you again in 2 weeks", "2 weeks"},
		{"Come back in 1 month for a checkup", "1 month"},
		{"Please schedule another visit in 10 days", "10 days"},
		{"Programemos la próxima cita en 3 semanas", "3 semanas"},
		{"Cita de seguimiento en 1 mes", "1 mes"},
		{"Volver a ver en 2 meses", "2 meses"},
		{"We should schedule a follow up soon", true},
	}

	for _, tt := range tests {
		intents := detector.Detect(tt.text)
		if len(intents) != 1 {
			t.Fatalf("Detect(%q) = %d intents, want 1", tt.text, len(intents))
		}
		if intents[0].Type != interp.IntentFollowUp {
			t.Fatalf("Detect(%q) type = %s, want follow_up", tt.text, intents[0].Type)
		}
		if intents[0].Value != tt.want {
			t.Fatalf("Detect(%q) value = %v, want %v", tt.text, intents[0].Value, tt.want)
		}
	}
}

func TestDetectLabOrder(t *testing.T) {
	detector := NewDetector()

	for _, text := range []string{
		"please order a blood work",
		"I'll send you to the lab",
		"Necesitamos un análisis de sangre",
	} {
		intents := detector.Detect(text)
		if len(intents) != 1 {
			t.Fatalf("Detect(%q) = %d intents, want 1", text, len(intents))
		}
		if intents[0].Type != interp.IntentLabOrder {
			t.Fatalf("Detect(%q) type = %s, want lab_order", text, intents[0].Type)
		}
	}
}

func TestDetectMultipleIntents(t *testing.T) {
	detector := NewDetector()

	intents := detector.Detect("Order a blood test and come back in 2 weeks")
	if len(intents) != 2 {
		t.Fatalf("got %d intents, want 2", len(intents))
	}
	if intents[0].Type != interp.IntentFollowUp || intents[0].Value != "2 weeks" {
		t.Fatalf("first intent = %+v, want follow_up with 2 weeks", intents[0])
	}
	if intents[1].Type != interp.IntentLabOrder {
		t.Fatalf("second intent = %+v, want lab_order", intents[1])
	}
}

func TestDetectNothing(t *testing.T) {
	detector := NewDetector()

	if intents := detector.Detect("The weather is nice today"); len(intents) != 0 {
		t.Fatalf("got %d intents, want 0", len(intents))
	}
	if intents := detector.Detect(""); len(intents) != 0 {
		t.Fatalf("got %d intents for empty text, want 0", len(intents))
	}
}
