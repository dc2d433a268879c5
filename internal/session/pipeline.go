package session

import (
	"log"
	"sync/atomic"
)

// Pipeline is the audio-intake path. Forward runs in effectively constant
// time: it reads the live connection pointer, writes the chunk and returns.
// It never waits on the per-session operation mutex or on any pending
// translation call. An unready connection costs the chunk, not a stall —
// live audio cannot be queued without breaking the realtime contract.
type Pipeline struct {
	registry *Registry
	dropped  atomic.Uint64
}

func NewPipeline(registry *Registry) *Pipeline {
	return &Pipeline{registry: registry}
}

// Forward sends one audio chunk to the session's provider channel. Malformed
// or unroutable chunks are dropped with a diagnostic; nothing is raised to
// the caller.
func (p *Pipeline) Forward(sessionID string, chunk []byte) {
	if !validChunk(chunk) {
		p.dropped.Add(1)
		log.Printf("drop malformed audio chunk for session %s (%d bytes)", sessionID, len(chunk))
		return
	}

	lc := p.registry.live(sessionID)
	if lc == nil {
		p.dropped.Add(1)
		return
	}

	if p.registry.recorder != nil {
		if err := p.registry.recorder.Append(sessionID, chunk); err != nil {
			log.Printf("record audio for session %s: %v", sessionID, err)
		}
	}

	if err := lc.channel.Send(chunk); err != nil {
		p.dropped.Add(1)
		log.Printf("forward audio for session %s: %v", sessionID, err)
	}
}

// EndOfSpeech signals that no more audio follows for the current utterance.
// No-op when the session has no live connection.
func (p *Pipeline) EndOfSpeech(sessionID string) {
	lc := p.registry.live(sessionID)
	if lc == nil {
		return
	}

	if err := lc.channel.SignalEndOfInput(); err != nil {
		log.Printf("signal end of speech for session %s: %v", sessionID, err)
	}
}

// Dropped reports how many chunks have been discarded since startup.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

// validChunk accepts only contiguous 16-bit PCM sample buffers.
func validChunk(chunk []byte) bool {
	return len(chunk) > 0 && len(chunk)%2 == 0
}
