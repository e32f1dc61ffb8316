// Package session starts, pauses and stops the two streaming sessions of a
// recording as one unit.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"interview-transcription-service/internal/capture"
	"interview-transcription-service/internal/credentials"
	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/observability/logging"
	"interview-transcription-service/internal/observability/metrics"
	"interview-transcription-service/internal/service/stream"
	"interview-transcription-service/internal/service/stt"
)

// Status is the externally visible recording state.
type Status string

const (
	StatusOff        Status = "off"
	StatusConnecting Status = "connecting"
	StatusOn         Status = "on"
	StatusPaused     Status = "paused"
)

var (
	// ErrInvalidTransition is returned for commands not legal in the
	// current state.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrStopped is returned by Start when Stop interrupted it.
	ErrStopped = errors.New("session stopped during start")
	// ErrNoDisplayAudio means the shared screen carries no audio track.
	ErrNoDisplayAudio = errors.New("shared screen has no audio track")
)

// Config holds the streaming settings applied to both sources.
type Config struct {
	SampleRateHz       int
	AudioEncoding      string
	CandidateLanguages []string
	MaxSpeakers        int
	Labels             stream.Labels
	Retry              stream.RetryPolicy
	// EventBuffer is the capacity of the fan-in channel.
	EventBuffer int
}

// SourceClosedFunc is called when a connected source's stream ends on its
// own. err is nil for a normal end of stream.
type SourceClosedFunc func(source models.Source, err error)

type delivery struct {
	event  models.TranscriptionEvent
	paused bool
}

// Orchestrator owns the recording state machine:
//
//	off → connecting → on ⇄ paused → off
//
// Stop is legal from any state. Only the orchestrator mutates the capture
// manager and the paused flag.
type Orchestrator struct {
	capture     *capture.Manager
	creds       credentials.Provider
	transcriber stt.Transcriber
	cfg         Config
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	paused atomic.Bool

	mu             sync.Mutex
	status         Status
	gen            uint64
	sessionID      string
	startedAt      time.Time
	cancel         context.CancelFunc
	sessions       []*stream.Session
	done           chan struct{}
	attempts       []models.ConnectionAttempt
	onSourceClosed SourceClosedFunc
}

// New creates an orchestrator in the off state.
func New(captureMgr *capture.Manager, creds credentials.Provider, transcriber stt.Transcriber, cfg Config) *Orchestrator {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	return &Orchestrator{
		capture:     captureMgr,
		creds:       creds,
		transcriber: transcriber,
		cfg:         cfg,
		metrics:     metrics.DefaultMetrics,
		logger:      logging.WithComponent("orchestrator"),
		status:      StatusOff,
	}
}

// OnSourceClosed registers a callback for streams that end while recording.
func (o *Orchestrator) OnSourceClosed(fn SourceClosedFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onSourceClosed = fn
}

// Status returns the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// SessionID returns the ID of the current or last recording.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// StartedAt returns when the current recording reached on.
func (o *Orchestrator) StartedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startedAt
}

// Attempts returns the connect attempts of the last Start, microphone first.
func (o *Orchestrator) Attempts() []models.ConnectionAttempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.ConnectionAttempt(nil), o.attempts...)
}

// Start acquires both capture sources, validates the display audio, fetches
// credentials and connects the microphone then the display. Any failure
// releases both capture sources and returns a *models.SessionError naming
// the failed source. onEvent is called sequentially from one goroutine.
func (o *Orchestrator) Start(ctx context.Context, sessionID string, pref models.LanguagePreference, sessionType models.SessionType, onEvent func(models.TranscriptionEvent)) error {
	if err := pref.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	if o.status != StatusOff {
		o.mu.Unlock()
		return ErrInvalidTransition
	}
	o.gen++
	gen := o.gen
	runCtx, cancel := context.WithCancel(context.Background())
	o.status = StatusConnecting
	o.sessionID = sessionID
	o.cancel = cancel
	o.attempts = nil
	o.paused.Store(false)
	o.mu.Unlock()

	// the caller's context bounds only the start sequence
	stopWatch := context.AfterFunc(ctx, cancel)
	defer stopWatch()

	logger := logging.WithSession(sessionID, "")
	logger.Info().
		Str("languageMode", string(pref.Mode)).
		Str("sessionType", string(sessionType)).
		Msg("Starting recording session")

	var sessions []*stream.Session
	fail := func(err error) error {
		cancel()
		for _, s := range sessions {
			s.Close()
		}
		o.recordAttempts(gen, sessions)

		o.mu.Lock()
		current := o.gen == gen
		if current {
			o.status = StatusOff
			o.cancel = nil
		}
		// after a concurrent Stop, release again unless a new start began
		release := current || o.status == StatusOff
		o.mu.Unlock()
		if release {
			o.capture.Release()
		}

		var serr *models.SessionError
		if errors.As(err, &serr) {
			o.metrics.RecordSessionFailed(string(serr.Source), string(serr.Kind))
			logger.Error().Err(err).Str("kind", string(serr.Kind)).Str("stage", string(serr.Stage)).Msg("Recording session failed to start")
		}
		return err
	}

	// 1. capture
	for _, src := range models.Sources {
		if _, err := o.capture.Acquire(runCtx, src); err != nil {
			return fail(err)
		}
	}

	// 2. display audio
	if !o.capture.HasAudio(models.SourceDisplay) {
		return fail(models.NewError(models.KindDevice, models.SourceDisplay, models.StageValidate, ErrNoDisplayAudio))
	}

	// 3. credentials
	creds, err := o.creds.GetCredentials(runCtx)
	if err == nil && creds.Expired(time.Now()) {
		err = errors.New("credentials expired")
	}
	if err != nil {
		return fail(models.NewError(models.KindAuth, "", models.StageCredentials, err))
	}

	// 4, 5. microphone then display, each with its own attempt budget
	for _, src := range models.Sources {
		s := stream.NewSession(o.sessionConfig(sessionID, src, pref, sessionType), o.transcriber, o.capture.Handle(src))
		sessions = append(sessions, s)
		if err := s.Connect(runCtx, creds); err != nil {
			return fail(err)
		}
	}

	// 6. on
	o.mu.Lock()
	if o.gen != gen || o.status != StatusConnecting {
		o.mu.Unlock()
		return fail(ErrStopped)
	}
	o.status = StatusOn
	o.startedAt = time.Now()
	o.sessions = sessions
	o.done = o.run(runCtx, sessions, onEvent)
	o.mu.Unlock()

	o.recordAttempts(gen, sessions)
	o.metrics.RecordSessionStart()
	logger.Info().Msg("Recording session on")
	return nil
}

func (o *Orchestrator) sessionConfig(sessionID string, src models.Source, pref models.LanguagePreference, sessionType models.SessionType) stream.Config {
	return stream.Config{
		SessionID:          sessionID,
		Source:             src,
		SessionType:        sessionType,
		Language:           pref,
		CandidateLanguages: o.cfg.CandidateLanguages,
		SampleRateHz:       o.cfg.SampleRateHz,
		AudioEncoding:      o.cfg.AudioEncoding,
		MaxSpeakers:        o.cfg.MaxSpeakers,
		Labels:             o.cfg.Labels,
		Retry:              o.cfg.Retry,
	}
}

func (o *Orchestrator) recordAttempts(gen uint64, sessions []*stream.Session) {
	var all []models.ConnectionAttempt
	for _, s := range sessions {
		all = append(all, s.Attempts()...)
	}
	o.mu.Lock()
	if o.gen == gen {
		o.attempts = all
	}
	o.mu.Unlock()
}

// run starts one worker per session and the single delivery loop. The
// returned channel is closed once the delivery loop has exited.
func (o *Orchestrator) run(ctx context.Context, sessions []*stream.Session, onEvent func(models.TranscriptionEvent)) chan struct{} {
	events := make(chan delivery, o.cfg.EventBuffer)
	done := make(chan struct{})

	var workers sync.WaitGroup
	for _, s := range sessions {
		workers.Add(1)
		go func(s *stream.Session) {
			defer workers.Done()
			err := s.Run(ctx, func(ev models.TranscriptionEvent) {
				select {
				case events <- delivery{event: ev, paused: o.paused.Load()}:
				case <-ctx.Done():
				}
			})
			if ctx.Err() != nil {
				return
			}
			o.sourceClosed(s.Source(), err)
		}(s)
	}

	go func() {
		workers.Wait()
		close(events)
	}()

	go func() {
		defer close(done)
		for d := range events {
			if d.paused || o.paused.Load() {
				o.metrics.RecordEventDiscarded()
				continue
			}
			if onEvent != nil {
				onEvent(d.event)
			}
		}
	}()

	return done
}

func (o *Orchestrator) sourceClosed(source models.Source, err error) {
	o.mu.Lock()
	fn := o.onSourceClosed
	o.mu.Unlock()

	if err != nil {
		o.logger.Error().Err(err).Str("source", string(source)).Msg("Source stream dropped, not reconnecting")
	} else {
		o.logger.Warn().Str("source", string(source)).Msg("Source stream ended")
	}
	if fn != nil {
		fn(source, err)
	}
}

// Pause mutes or unmutes both capture sources. Results that arrive while
// paused are discarded before delivery; nothing is buffered for replay.
func (o *Orchestrator) Pause(paused bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case paused && o.status == StatusOn:
		o.paused.Store(true)
		o.capture.Mute(true)
		o.status = StatusPaused
	case !paused && o.status == StatusPaused:
		o.capture.Mute(false)
		o.paused.Store(false)
		o.status = StatusOn
	case paused && o.status == StatusPaused, !paused && o.status == StatusOn:
		return nil
	default:
		return ErrInvalidTransition
	}

	o.logger.Info().Str("sessionId", o.sessionID).Bool("paused", paused).Msg("Recording pause toggled")
	return nil
}

// Stop cancels both streaming sessions, waits for event delivery to end and
// releases both capture sources. Legal from any state and idempotent. It
// must not be called from inside onEvent.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	prev := o.status
	o.gen++
	o.status = StatusOff
	cancel := o.cancel
	o.cancel = nil
	sessions := o.sessions
	o.sessions = nil
	done := o.done
	o.done = nil
	startedAt := o.startedAt
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, s := range sessions {
		s.Close()
	}
	if done != nil {
		<-done
	}
	o.capture.Release()
	o.paused.Store(false)

	if prev == StatusOn || prev == StatusPaused {
		o.metrics.RecordSessionEnd(time.Since(startedAt).Seconds())
		o.logger.Info().Str("sessionId", o.SessionID()).Str("from", string(prev)).Msg("Recording session stopped")
	}
	return nil
}
