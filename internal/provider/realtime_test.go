package provider

import (
	"encoding/base64"
	"testing"
)

func TestDecodeTranscriptFrame(t *testing.T) {
	event, err := decodeRealtimeFrame([]byte(`{"type":"conversation.item.created","content":{"text":"Hello there"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	item, ok := event.(TranscriptItemEvent)
	if !ok {
		t.Fatalf("event = %T, want TranscriptItemEvent", event)
	}
	if item.Text != "Hello there" {
		t.Fatalf("text = %q", item.Text)
	}
	if !item.IsFinal {
		t.Fatal("expected item to default to final")
	}
}

func TestDecodeTranscriptFrameInterim(t *testing.T) {
	event, err := decodeRealtimeFrame([]byte(`{"type":"transcript_item","content":{"text":"Hel"},"is_final":false}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	item := event.(TranscriptItemEvent)
	if item.IsFinal {
		t.Fatal("expected interim item")
	}
}

func TestDecodeAudioFrame(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	event, err := decodeRealtimeFrame([]byte(`{"type":"audio","content":"` + payload + `"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	audio, ok := event.(AudioChunkEvent)
	if !ok {
		t.Fatalf("event = %T, want AudioChunkEvent", event)
	}
	if len(audio.Data) != 3 || audio.Data[0] != 1 {
		t.Fatalf("audio data = %v", audio.Data)
	}
}

func TestDecodeErrorFrame(t *testing.T) {
	event, err := decodeRealtimeFrame([]byte(`{"type":"error","code":"rate_limited","message":"slow down"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	errEvent, ok := event.(ErrorEvent)
	if !ok {
		t.Fatalf("event = %T, want ErrorEvent", event)
	}
	if errEvent.Code != "rate_limited" || errEvent.Message != "slow down" {
		t.Fatalf("error event = %+v", errEvent)
	}
}

func TestDecodeUnknownFrameIgnored(t *testing.T) {
	event, err := decodeRealtimeFrame([]byte(`{"type":"session.created"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event != nil {
		t.Fatalf("expected unknown frame to be ignored, got %T", event)
	}
}

func TestDecodeEmptyTranscriptIgnored(t *testing.T) {
	event, err := decodeRealtimeFrame([]byte(`{"type":"conversation.item.created","content":{}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event != nil {
		t.Fatalf("expected empty transcript to be ignored, got %T", event)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	if _, err := decodeRealtimeFrame([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}
