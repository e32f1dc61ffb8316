// Package capture owns the two raw audio capture sources: the investigator's
// microphone and the shared-screen (display) audio feed.
package capture

import (
	"sync"
	"sync/atomic"
)

// Track is a single audio track carrying normalized float32 samples.
//
// A disabled track keeps flowing but carries silence, so downstream encoders
// and network connections stay warm. Stop is terminal and closes Samples.
type Track struct {
	id      string
	mu      sync.Mutex
	enabled bool
	stopped bool
	samples chan []float32
	dropped atomic.Uint64
}

// NewTrack creates an enabled track with the given chunk buffer.
func NewTrack(id string, buffer int) *Track {
	if buffer <= 0 {
		buffer = 1
	}
	return &Track{
		id:      id,
		enabled: true,
		samples: make(chan []float32, buffer),
	}
}

// ID returns the track identifier.
func (t *Track) ID() string {
	return t.id
}

// Samples returns the chunk channel. It is closed when the track stops.
func (t *Track) Samples() <-chan []float32 {
	return t.samples
}

// Push queues one chunk of samples. It never blocks: when the buffer is full
// the chunk is dropped. Returns false if the chunk was not queued.
func (t *Track) Push(chunk []float32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}
	if !t.enabled {
		chunk = make([]float32, len(chunk))
	}
	select {
	case t.samples <- chunk:
		return true
	default:
		t.dropped.Add(1)
		return false
	}
}

// SetEnabled toggles the track between live audio and silence.
func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Enabled reports whether the track carries live audio.
func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Stop ends the track. Idempotent.
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.samples)
}

// Stopped reports whether Stop was called.
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Dropped returns the number of chunks dropped on a full buffer.
func (t *Track) Dropped() uint64 {
	return t.dropped.Load()
}
