package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const transcriptionModel = "whisper-1"

// realtimeChannel is a live websocket channel speaking the provider's
// realtime protocol: JSON text frames out (session config, audio, end-of-input)
// and JSON text frames in, demuxed into the event stream by readLoop.
type realtimeChannel struct {
	conn   *websocket.Conn
	events chan RealtimeEvent
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// dialRealtime opens the websocket, bounded by timeout, and immediately
// issues the session configuration message.
func dialRealtime(ctx context.Context, url, apiKey string, cfg RealtimeConfig, timeout time.Duration) (*realtimeChannel, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(dialCtx, url, header)
	if err != nil {
		if dialCtx.Err() != nil {
			return nil, ErrConnectTimeout
		}
		return nil, fmt.Errorf("dial realtime provider: %w", err)
	}

	ch := &realtimeChannel{
		conn:   conn,
		events: make(chan RealtimeEvent, 64),
		done:   make(chan struct{}),
	}

	update := sessionUpdate{
		Type: "session.update",
		Session: sessionConfig{
			Instructions: Instructions(cfg.SourceLang, cfg.TargetLang),
			Modalities:   []string{"audio", "text"},
			Voice:        VoiceFor(cfg.TargetLang),
			InputAudioTranscription: transcriptionConfig{
				Model: transcriptionModel,
			},
		},
	}
	if err := ch.writeJSON(update); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send session config: %w", err)
	}

	go ch.readLoop()
	return ch, nil
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Instructions            string              `json:"instructions"`
	Modalities              []string            `json:"modalities"`
	Voice                   string              `json:"voice"`
	InputAudioTranscription transcriptionConfig `json:"input_audio_transcription"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

func (c *realtimeChannel) Events() <-chan RealtimeEvent {
	return c.events
}

func (c *realtimeChannel) Send(chunk []byte) error {
	return c.writeJSON(map[string]string{
		"type":    "audio",
		"content": base64.StdEncoding.EncodeToString(chunk),
	})
}

func (c *realtimeChannel) SignalEndOfInput() error {
	return c.writeJSON(map[string]string{"type": "end_audio"})
}

func (c *realtimeChannel) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second),
		)
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

func (c *realtimeChannel) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *realtimeChannel) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.emit(ErrorEvent{Code: "transport", Message: err.Error()})
			return
		}

		switch messageType {
		case websocket.TextMessage:
			event, decodeErr := decodeRealtimeFrame(data)
			if decodeErr != nil {
				c.emit(ErrorEvent{Code: "decode", Message: decodeErr.Error()})
				continue
			}
			if event != nil {
				c.emit(event)
			}
		case websocket.BinaryMessage:
			c.emit(AudioChunkEvent{Data: append([]byte(nil), data...)})
		}
	}
}

// emit is non-blocking so a stalled consumer cannot wedge the read loop.
func (c *realtimeChannel) emit(event RealtimeEvent) {
	select {
	case c.events <- event:
	default:
	}
}

// decodeRealtimeFrame maps a provider text frame to an event. Unrecognized
// frame types are ignored, not fatal.
func decodeRealtimeFrame(data []byte) (RealtimeEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame envelope: %w", err)
	}

	switch strings.TrimSpace(envelope.Type) {
	case "conversation.item.created", "transcript_item":
		var frame struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
			IsFinal *bool `json:"is_final"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode transcript frame: %w", err)
		}
		if frame.Content.Text == "" {
			return nil, nil
		}
		final := true
		if frame.IsFinal != nil {
			final = *frame.IsFinal
		}
		return TranscriptItemEvent{Text: frame.Content.Text, IsFinal: final}, nil

	case "audio":
		var frame struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode audio frame: %w", err)
		}
		audio, err := base64.StdEncoding.DecodeString(frame.Content)
		if err != nil {
			return nil, fmt.Errorf("decode audio payload: %w", err)
		}
		return AudioChunkEvent{Data: audio}, nil

	case "error":
		var frame struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode error frame: %w", err)
		}
		return ErrorEvent{Code: frame.Code, Message: frame.Message}, nil
	}

	return nil, nil
}
