package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/observability/logging"
)

// Manager acquires, caches and releases the microphone and display handles.
// One instance is shared by the process and mutated only by the session
// orchestrator.
type Manager struct {
	acquirer Acquirer
	logger   zerolog.Logger

	mu      sync.Mutex
	handles map[models.Source]Handle
}

// NewManager creates a manager over the given acquirer.
func NewManager(acquirer Acquirer) *Manager {
	return &Manager{
		acquirer: acquirer,
		logger:   logging.WithComponent("capture"),
		handles:  make(map[models.Source]Handle),
	}
}

// Acquire returns the live handle for source, acquiring it if none is cached.
// A cached handle is returned as-is without re-prompting. Failures are
// returned as *models.SessionError; device kind when the user denied access
// or no source exists.
func (m *Manager) Acquire(ctx context.Context, source models.Source) (Handle, error) {
	m.mu.Lock()
	if h, ok := m.handles[source]; ok && h.Active() {
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	h, err := m.acquirer.Acquire(ctx, source)
	if err != nil {
		kind := models.KindService
		if errors.Is(err, ErrNoDevice) || errors.Is(err, ErrPermissionDenied) {
			kind = models.KindDevice
		}
		m.logger.Warn().Err(err).Str("source", string(source)).Str("kind", string(kind)).Msg("Capture acquisition failed")
		return nil, models.NewError(kind, source, models.StageCapture, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.handles[source]; ok && existing.Active() {
		h.Stop()
		return existing, nil
	}
	m.handles[source] = h

	m.logger.Info().
		Str("source", string(source)).
		Int("audioTracks", len(h.AudioTracks())).
		Msg("Capture source acquired")
	return h, nil
}

// Handle returns the cached handle for source, or nil.
func (m *Manager) Handle(source models.Source) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[source]
}

// IsActive reports whether a live handle is held for source.
func (m *Manager) IsActive(source models.Source) bool {
	h := m.Handle(source)
	return h != nil && h.Active()
}

// HasAudio reports whether the handle for source has an audio track.
func (m *Manager) HasAudio(source models.Source) bool {
	h := m.Handle(source)
	return h != nil && len(h.AudioTracks()) > 0
}

// Mute toggles every audio track of both sources without releasing them.
func (m *Manager) Mute(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.handles {
		for _, t := range h.AudioTracks() {
			t.SetEnabled(!paused)
		}
	}
	m.logger.Debug().Bool("paused", paused).Msg("Capture tracks muted")
}

// Release stops every live track and drops both handles. Safe to call when
// nothing is held.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.handles) == 0 {
		return
	}
	for source, h := range m.handles {
		h.Stop()
		delete(m.handles, source)
	}
	m.logger.Info().Msg("Capture sources released")
}
