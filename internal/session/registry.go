package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puente-salud/puente/internal/interp"
	"github.com/puente-salud/puente/internal/provider"
)

// Registry owns all live session state. It is the single entry point for
// join, role switch and end, and guarantees at most one non-stale live
// connection per session id. Sessions are independent: operations on
// different ids never contend.
type Registry struct {
	store    Store
	provider provider.Provider
	hub      Broadcaster
	detector IntentDetector
	recorder Recorder

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry is the per-session slot. opMu serializes join/switch/end for one id;
// the audio path reads conn atomically and never takes opMu.
type entry struct {
	opMu  sync.Mutex
	epoch atomic.Uint64
	conn  atomic.Pointer[liveConn]
}

// liveConn is one ephemeral provider channel. The epoch tags every
// asynchronous callback spawned under this connection; once a reconnect
// bumps the entry's epoch, events carrying the old one are discarded.
type liveConn struct {
	epoch     uint64
	sessionID string
	role      interp.Role
	source    interp.Language
	target    interp.Language
	channel   provider.RealtimeChannel
}

func NewRegistry(store Store, prov provider.Provider, hub Broadcaster, detector IntentDetector, recorder Recorder) *Registry {
	return &Registry{
		store:    store,
		provider: prov,
		hub:      hub,
		detector: detector,
		recorder: recorder,
		entries:  make(map[string]*entry),
	}
}

func (r *Registry) entryFor(sessionID string) *entry {
	r.mu.RLock()
	e, ok := r.entries[sessionID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[sessionID]; ok {
		return e
	}
	e = &entry{}
	r.entries[sessionID] = e
	return e
}

func (r *Registry) live(sessionID string) *liveConn {
	r.mu.RLock()
	e, ok := r.entries[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return e.conn.Load()
}

// Join ensures a persisted session and a live provider connection for the
// id. Idempotent: joining an already-live session reuses both. A connect
// failure leaves the persisted record in place for retry.
func (r *Registry) Join(ctx context.Context, sessionID string, role interp.Role) (interp.Session, error) {
	e := r.entryFor(sessionID)
	e.opMu.Lock()
	defer e.opMu.Unlock()

	sess, err := r.store.FindOrCreateSession(sessionID, role)
	if err != nil {
		return interp.Session{}, fmt.Errorf("find or create session: %w", err)
	}
	if sess.Completed() {
		return interp.Session{}, ErrSessionClosed
	}

	if e.conn.Load() != nil {
		return sess, nil
	}

	if err := r.connect(ctx, e, sess.ID, sess.CurrentRole, sess.SourceLang, sess.TargetLang); err != nil {
		return interp.Session{}, err
	}

	return sess, nil
}

// ChangeRole flips the active speaker: the language pair is reversed, the
// existing connection torn down and a new one opened under a fresh epoch.
// Serialized per session by the entry mutex.
func (r *Registry) ChangeRole(ctx context.Context, sessionID string, newRole interp.Role) (RoleSwitchResult, error) {
	e := r.entryFor(sessionID)
	e.opMu.Lock()
	defer e.opMu.Unlock()

	sess, err := r.store.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RoleSwitchResult{}, ErrSessionNotFound
		}
		return RoleSwitchResult{}, fmt.Errorf("get session: %w", err)
	}
	if sess.Completed() {
		return RoleSwitchResult{}, ErrSessionClosed
	}

	source, target := sess.TargetLang, sess.SourceLang

	r.closeLive(e)

	if err := r.store.UpdateRole(sessionID, newRole, source, target); err != nil {
		return RoleSwitchResult{}, fmt.Errorf("persist role switch: %w", err)
	}

	if err := r.connect(ctx, e, sessionID, newRole, source, target); err != nil {
		return RoleSwitchResult{}, err
	}

	r.hub.RoleUpdated(sessionID, newRole)
	return RoleSwitchResult{Role: newRole, SourceLang: source, TargetLang: target}, nil
}

// End closes the live connection if present, marks the persisted session
// completed and drops the registry entry. Idempotent: a second call finds no
// connection and still succeeds.
func (r *Registry) End(ctx context.Context, sessionID string) error {
	e := r.entryFor(sessionID)
	e.opMu.Lock()
	defer e.opMu.Unlock()

	r.closeLive(e)

	if r.recorder != nil {
		path, err := r.recorder.EndSession(sessionID)
		if err != nil {
			log.Printf("end audio capture for session %s: %v", sessionID, err)
		} else if path != "" {
			if err := r.store.SetAudioPath(sessionID, path); err != nil {
				log.Printf("persist audio path for session %s: %v", sessionID, err)
			}
		}
	}

	if err := r.store.CompleteSession(sessionID, time.Now().UTC()); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("complete session: %w", err)
		}
		log.Printf("end for unknown session %s: nothing to complete", sessionID)
	}

	r.mu.Lock()
	delete(r.entries, sessionID)
	r.mu.Unlock()

	r.hub.SessionEnded(sessionID)
	return nil
}

// Shutdown tears down every live connection. Persisted sessions are left
// untouched.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		r.closeLive(e)
	}
}

// connect opens a provider channel under a new epoch and starts its router.
// Caller must hold the entry's opMu.
func (r *Registry) connect(ctx context.Context, e *entry, sessionID string, role interp.Role, source, target interp.Language) error {
	channel, err := r.provider.Realtime(ctx, provider.RealtimeConfig{
		SourceLang: source,
		TargetLang: target,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	epoch := e.epoch.Add(1)
	lc := &liveConn{
		epoch:     epoch,
		sessionID: sessionID,
		role:      role,
		source:    source,
		target:    target,
		channel:   channel,
	}
	e.conn.Store(lc)

	if r.recorder != nil {
		if err := r.recorder.StartSession(sessionID); err != nil {
			log.Printf("start audio capture for session %s: %v", sessionID, err)
		}
	}

	go r.route(e, lc)

	r.hub.SessionReady(sessionID)
	return nil
}

// closeLive detaches and closes the current connection, if any. The epoch is
// bumped so callbacks still in flight from the old connection are discarded.
// Caller must hold the entry's opMu.
func (r *Registry) closeLive(e *entry) {
	lc := e.conn.Swap(nil)
	if lc == nil {
		return
	}
	e.epoch.Add(1)
	if err := lc.channel.Close(); err != nil {
		log.Printf("close provider channel for session %s: %v", lc.sessionID, err)
	}
}
