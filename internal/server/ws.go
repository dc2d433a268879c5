package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/puente-salud/puente/internal/interp"
	"github.com/puente-salud/puente/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Engine is the session lifecycle surface the gateway drives.
type Engine interface {
	Join(ctx context.Context, sessionID string, role interp.Role) (interp.Session, error)
	ChangeRole(ctx context.Context, sessionID string, newRole interp.Role) (session.RoleSwitchResult, error)
	End(ctx context.Context, sessionID string) error
}

// AudioSink receives the caller's audio stream.
type AudioSink interface {
	Forward(sessionID string, chunk []byte)
	EndOfSpeech(sessionID string)
}

type inboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	NewRole   string `json:"new_role"`
}

// wsClient is one gateway connection. Text frames carry JSON control
// messages, binary frames carry raw PCM16 audio for the joined session.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	engine Engine
	sink   AudioSink
	hub    *Hub

	sessionID string
	events    chan []byte
	pumpDone  chan struct{}
}

func registerWSRoute(mux *http.ServeMux, hub *Hub, engine Engine, sink AudioSink) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return
		}

		c := &wsClient{conn: conn, engine: engine, sink: sink, hub: hub}
		defer c.teardown()

		c.readLoop(r.Context())
	})
}

func (c *wsClient) readLoop(ctx context.Context) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			if c.sessionID != "" {
				c.sink.Forward(c.sessionID, data)
			}
		case websocket.TextMessage:
			var msg inboundMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.sendError("", "malformed message")
				continue
			}
			c.handleMessage(ctx, msg)
		}
	}
}

func (c *wsClient) handleMessage(ctx context.Context, msg inboundMessage) {
	switch msg.Type {
	case "join_session":
		c.handleJoin(ctx, msg)
	case "change_role":
		c.handleChangeRole(ctx, msg)
	case "end_speech":
		if c.sessionID != "" {
			c.sink.EndOfSpeech(c.sessionID)
		}
	case "end_session":
		if c.sessionID == "" {
			c.sendError("", "not joined to a session")
			return
		}
		if err := c.engine.End(ctx, c.sessionID); err != nil {
			c.sendError(c.sessionID, err.Error())
		}
	default:
		c.sendError(c.sessionID, "unknown message type: "+msg.Type)
	}
}

func (c *wsClient) handleJoin(ctx context.Context, msg inboundMessage) {
	if msg.SessionID == "" {
		c.sendError("", "session_id is required")
		return
	}
	if c.sessionID != "" && c.sessionID != msg.SessionID {
		c.sendError(c.sessionID, "already joined to another session")
		return
	}

	role, err := interp.ParseRole(msg.Role)
	if err != nil {
		c.sendError(msg.SessionID, err.Error())
		return
	}

	// Subscribe before joining: the engine emits session_ready to the room
	// during connect, and the joining client is its primary consumer. The
	// pump starts only after the ack so queued events follow session_joined.
	var events chan []byte
	if c.sessionID == "" {
		events = c.hub.Subscribe(msg.SessionID)
	}

	sess, err := c.engine.Join(ctx, msg.SessionID, role)
	if err != nil {
		if events != nil {
			c.hub.Unsubscribe(msg.SessionID, events)
		}
		switch {
		case errors.Is(err, session.ErrSessionClosed):
			c.sendError(msg.SessionID, "session has ended")
		case errors.Is(err, session.ErrProviderUnavailable):
			c.sendError(msg.SessionID, "translation service unavailable, please retry")
		default:
			c.sendError(msg.SessionID, "failed to join session")
			log.Printf("join session %s: %v", msg.SessionID, err)
		}
		return
	}

	if events != nil {
		c.sessionID = sess.ID
		c.events = events
		c.pumpDone = make(chan struct{})
	}

	c.send(SessionJoinedEvent{
		Event:          newEvent("session_joined", time.Now().UTC()),
		SessionID:      sess.ID,
		Role:           sess.CurrentRole,
		SourceLanguage: sess.SourceLang,
		TargetLanguage: sess.TargetLang,
	})

	if events != nil {
		go c.pump()
	}
}

func (c *wsClient) handleChangeRole(ctx context.Context, msg inboundMessage) {
	if c.sessionID == "" {
		c.sendError("", "not joined to a session")
		return
	}

	role, err := interp.ParseRole(msg.NewRole)
	if err != nil {
		c.sendError(c.sessionID, err.Error())
		return
	}

	if _, err := c.engine.ChangeRole(ctx, c.sessionID, role); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			c.sendError(c.sessionID, "session not found")
		case errors.Is(err, session.ErrSessionClosed):
			c.sendError(c.sessionID, "session has ended")
		case errors.Is(err, session.ErrProviderUnavailable):
			c.sendError(c.sessionID, "translation service unavailable, please retry")
		default:
			c.sendError(c.sessionID, "failed to switch role")
			log.Printf("change role for session %s: %v", c.sessionID, err)
		}
	}
}

// pump copies room events to the connection until the subscription closes.
func (c *wsClient) pump() {
	defer close(c.pumpDone)
	for msg := range c.events {
		if err := c.write(msg); err != nil {
			return
		}
	}
}

func (c *wsClient) send(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	_ = c.write(payload)
}

func (c *wsClient) sendError(sessionID, message string) {
	c.send(ErrorEvent{
		Event:     newEvent("error", time.Now().UTC()),
		SessionID: sessionID,
		Message:   message,
	})
}

func (c *wsClient) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsClient) teardown() {
	if c.events != nil {
		c.hub.Unsubscribe(c.sessionID, c.events)
		<-c.pumpDone
	}
	_ = c.conn.Close()
}
