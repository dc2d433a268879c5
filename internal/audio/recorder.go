package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	sampleRate  = 16000
	numChannels = 1
	bitDepth    = 16

	wavHeaderSize = 44
)

// Recorder captures the raw PCM audio forwarded through a session's pipeline
// into one WAV file per session. Sessions record independently and
// concurrently.
type Recorder struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

func NewRecorder(dir string) *Recorder {
	if dir == "" {
		dir = filepath.Join("data", "audio")
	}
	return &Recorder{dir: dir, files: make(map[string]*os.File)}
}

// StartSession opens the session's WAV file and writes a placeholder header.
// Starting an already-recording session is a no-op.
func (r *Recorder) StartSession(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[sessionID]; ok {
		return nil
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	path := filepath.Join(r.dir, sessionID+".wav")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open wav file: %w", err)
	}

	if err := writeWAVHeader(f, 0); err != nil {
		_ = f.Close()
		return fmt.Errorf("write wav header: %w", err)
	}

	r.files[sessionID] = f
	return nil
}

// Append writes one PCM chunk to the session's file. Chunks for sessions
// that are not recording are ignored.
func (r *Recorder) Append(sessionID string, chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[sessionID]
	if !ok {
		return nil
	}

	if _, err := f.Write(chunk); err != nil {
		return fmt.Errorf("write pcm chunk: %w", err)
	}
	return nil
}

// EndSession patches the WAV header with the final sizes, closes the file and
// returns its path. Ending a session that never recorded returns "".
func (r *Recorder) EndSession(sessionID string) (string, error) {
	r.mu.Lock()
	f, ok := r.files[sessionID]
	delete(r.files, sessionID)
	r.mu.Unlock()

	if !ok {
		return "", nil
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return "", fmt.Errorf("stat wav file: %w", err)
	}

	dataSize := info.Size() - wavHeaderSize
	if dataSize < 0 {
		dataSize = 0
	}

	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("seek wav header: %w", err)
	}
	if err := writeWAVHeader(f, uint32(dataSize)); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("finalize wav header: %w", err)
	}

	path := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close wav file: %w", err)
	}
	return path, nil
}

func writeWAVHeader(f *os.File, dataSize uint32) error {
	var header [wavHeaderSize]byte

	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], numChannels)
	binary.LittleEndian.PutUint32(header[24:28], sampleRate)
	binary.LittleEndian.PutUint32(header[28:32], sampleRate*numChannels*bitDepth/8)
	binary.LittleEndian.PutUint16(header[32:34], numChannels*bitDepth/8)
	binary.LittleEndian.PutUint16(header[34:36], bitDepth)

	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	_, err := f.Write(header[:])
	return err
}
