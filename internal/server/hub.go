package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/puente-salud/puente/internal/interp"
)

// Hub fans engine events out to the subscribers of each session. Rooms are
// independent: an event for one session is never seen by another's
// subscribers. Delivery is non-blocking; a subscriber that cannot keep up
// loses events rather than stalling the engine.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[chan []byte]struct{})}
}

func (h *Hub) Subscribe(sessionID string) chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[chan []byte]struct{})
		h.rooms[sessionID] = room
	}
	room[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(sessionID string, ch chan []byte) {
	h.mu.Lock()
	if room, ok := h.rooms[sessionID]; ok {
		delete(room, ch)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(sessionID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.rooms[sessionID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) SessionReady(sessionID string) {
	h.broadcastEvent(sessionID, SessionReadyEvent{
		Event:     newEvent("session_ready", time.Now().UTC()),
		SessionID: sessionID,
	})
}

func (h *Hub) RoleUpdated(sessionID string, role interp.Role) {
	h.broadcastEvent(sessionID, RoleUpdatedEvent{
		Event:     newEvent("role_updated", time.Now().UTC()),
		SessionID: sessionID,
		Role:      role,
	})
}

func (h *Hub) SessionEnded(sessionID string) {
	h.broadcastEvent(sessionID, SessionEndedEvent{
		Event:     newEvent("session_ended", time.Now().UTC()),
		SessionID: sessionID,
	})
}

func (h *Hub) TranscriptUpdate(sessionID string, t interp.Transcript, isFinal bool) {
	h.broadcastEvent(sessionID, TranscriptUpdateEvent{
		Event:       newEvent("transcript_update", t.Timestamp),
		SessionID:   sessionID,
		Speaker:     t.Speaker,
		Text:        t.Text,
		Translation: t.Translation,
		Language:    t.Language,
		IsFinal:     isFinal,
	})
}

func (h *Hub) AudioResponse(sessionID string, audio []byte, text string) {
	h.broadcastEvent(sessionID, AudioResponseEvent{
		Event:     newEvent("audio_response", time.Now().UTC()),
		SessionID: sessionID,
		Audio:     audio,
		Text:      text,
	})
}

func (h *Hub) IntentDetected(sessionID string, intents []interp.Intent) {
	h.broadcastEvent(sessionID, IntentDetectedEvent{
		Event:     newEvent("intent_detected", time.Now().UTC()),
		SessionID: sessionID,
		Intents:   intents,
	})
}

func (h *Hub) Error(sessionID, message string) {
	h.broadcastEvent(sessionID, ErrorEvent{
		Event:     newEvent("error", time.Now().UTC()),
		SessionID: sessionID,
		Message:   message,
	})
}

func (h *Hub) broadcastEvent(sessionID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(sessionID, payload)
}
