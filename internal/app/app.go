package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"interview-transcription-service/internal/capture"
	"interview-transcription-service/internal/config"
	"interview-transcription-service/internal/credentials"
	"interview-transcription-service/internal/events"
	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/service/session"
	"interview-transcription-service/internal/service/stream"
	"interview-transcription-service/internal/service/stt"
	"interview-transcription-service/internal/service/stt/google"
	"interview-transcription-service/internal/service/stt/mock"
	"interview-transcription-service/internal/service/transcript"
	"interview-transcription-service/internal/service/translation"
	"interview-transcription-service/internal/service/translation/gemini"
	"interview-transcription-service/internal/storage/sqlite"
	"interview-transcription-service/internal/websocket"
)

var (
	// ErrRecordingActive is returned by StartRecording while a recording
	// is starting or running.
	ErrRecordingActive = errors.New("a recording is already active")
	// ErrNoRecording is returned when there is no recording to act on.
	ErrNoRecording = errors.New("no active recording")
	// ErrInvalidRequest wraps StartRequest validation failures.
	ErrInvalidRequest = errors.New("invalid recording request")
	// ErrNoStore is returned by history queries when persistence is off.
	ErrNoStore = errors.New("transcript store not configured")
)

// StartRequest describes a new recording.
type StartRequest struct {
	CaseID      string                    `json:"caseId"`
	Language    models.LanguagePreference `json:"language"`
	SessionType models.SessionType        `json:"sessionType"`
}

// Status is the recording state reported to the host.
type Status struct {
	Status     session.Status             `json:"status"`
	SessionID  string                     `json:"sessionId,omitempty"`
	CaseID     string                     `json:"caseId,omitempty"`
	StartedAt  *time.Time                 `json:"startedAt,omitempty"`
	Utterances int                        `json:"utterances"`
	Attempts   []models.ConnectionAttempt `json:"attempts,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// Deps are the swappable collaborators of an Application.
type Deps struct {
	Transcriber stt.Transcriber
	Credentials credentials.Provider
	// Translator may be nil, in which case utterances mirror the original.
	Translator translation.Translator
	// Store may be nil.
	Store     *sqlite.Store
	Publisher *events.Publisher
}

// recording is the per-session glue between the orchestrator, the
// translation router and the transcript log.
type recording struct {
	caseID    string
	sessionID string
	log       *transcript.Log

	events    chan models.TranscriptionEvent
	closeOnce sync.Once
	drained   chan struct{}
	cancel    context.CancelFunc
	started   bool
}

func (r *recording) closeEvents() {
	r.closeOnce.Do(func() { close(r.events) })
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Registry     *capture.Registry
	Capture      *capture.Manager
	Hub          *websocket.Hub
	Ingest       *websocket.Ingest
	Orchestrator *session.Orchestrator

	deps         Deps
	savers       transcript.Savers
	hubCancel    context.CancelFunc
	shutdownOnce sync.Once

	mu  sync.Mutex
	rec *recording
	// last is the log of the previous recording, kept for status queries
	// and for retrying a failed save.
	last *transcript.Log
	// lastErr is the user-facing message of the last failure.
	lastErr string
}

// New constructs an Application and its providers from the configuration.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithDeps(cfg, deps), nil
}

func buildDeps(ctx context.Context, cfg *config.Config) (Deps, error) {
	var deps Deps

	switch cfg.STT.Provider {
	case "google":
		deps.Transcriber = google.New(google.DefaultConfig())
	case "mock", "":
		deps.Transcriber = mock.New()
	default:
		return deps, fmt.Errorf("unknown STT provider %q", cfg.STT.Provider)
	}

	switch cfg.Credentials.Provider {
	case "google":
		g, err := credentials.NewGoogle(ctx, credentials.CloudPlatformScope)
		if err != nil {
			return deps, err
		}
		deps.Credentials = g
	case "static", "":
		deps.Credentials = credentials.Static{Creds: credentials.Credentials{
			AccessKey:    cfg.Credentials.AccessKey,
			SecretKey:    cfg.Credentials.SecretKey,
			SessionToken: cfg.Credentials.SessionToken,
		}}
	default:
		return deps, fmt.Errorf("unknown credentials provider %q", cfg.Credentials.Provider)
	}

	switch cfg.Translation.Provider {
	case "gemini":
		t, err := gemini.New(ctx, cfg.Translation.APIKey, cfg.Translation.Model)
		if err != nil {
			return deps, err
		}
		deps.Translator = t
	case "none", "":
	default:
		return deps, fmt.Errorf("unknown translation provider %q", cfg.Translation.Provider)
	}

	if cfg.Storage.SQLitePath != "" {
		store, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return deps, err
		}
		deps.Store = store
	}

	deps.Publisher = events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicUtterance:  cfg.Kafka.TopicUtterance,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		Principal:       cfg.Kafka.Principal,
	})
	return deps, nil
}

// NewWithDeps constructs an Application over the given collaborators.
func NewWithDeps(cfg *config.Config, deps Deps) *Application {
	if deps.Publisher == nil {
		deps.Publisher = events.New(nil)
	}

	a := &Application{
		Cfg:  cfg,
		deps: deps,
	}
	a.setupLogger()

	a.Registry = capture.NewRegistry(cfg.Capture.AcquireTimeout)
	a.Capture = capture.NewManager(a.Registry)
	a.Hub = websocket.NewHub()
	a.Ingest = websocket.NewIngest(a.Registry, cfg.Capture.TrackBuffer)
	a.Orchestrator = session.New(a.Capture, deps.Credentials, deps.Transcriber, session.Config{
		SampleRateHz:       cfg.STT.SampleRateHz,
		AudioEncoding:      cfg.STT.AudioEncoding,
		CandidateLanguages: cfg.STT.CandidateLanguages,
		MaxSpeakers:        cfg.STT.MaxSpeakers,
		Labels: stream.Labels{
			Investigator: cfg.Labels.Investigator,
			Participant:  cfg.Labels.Participant,
			SpeakerRole:  cfg.Labels.SpeakerRole,
		},
		Retry: stream.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay,
		},
	})
	a.Orchestrator.OnSourceClosed(a.sourceClosed)

	if deps.Store != nil {
		a.savers = append(a.savers, deps.Store)
	}
	a.savers = append(a.savers, deps.Publisher)

	appLogger := a.Logger.With().
		Str("component", "application").
		Str("method", "New").
		Logger()

	appLogger.Info().
		Str("sttProvider", deps.Transcriber.Name()).
		Bool("translation", deps.Translator != nil).
		Bool("sqlite", deps.Store != nil).
		Bool("kafka", deps.Publisher.Enabled()).
		Msg("Interview transcription application created")
	return a
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logLevel := zerolog.InfoLevel // Default
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		if parsedLevel, err := zerolog.ParseLevel(strings.ToLower(envLevel)); err == nil {
			logLevel = parsedLevel
		}
	}

	if os.Getenv("ENV") == "dev" {
		a.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Str("service", "interview-transcription-service").
			Str("component", "application").
			Logger()
	} else {
		a.Logger = zerolog.New(os.Stdout).With().
			Timestamp().
			Str("service", "interview-transcription-service").
			Str("component", "application").
			Logger()
	}
	a.Logger = a.Logger.Level(logLevel)

	a.Logger.Debug().
		Str("logLevel", logLevel.String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	a.hubCancel = cancel
	go a.Hub.Run(ctx)

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Interview transcription service starting")

	return nil
}

// Shutdown stops an active recording, persisting what it captured, and
// closes the collaborators.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.shutdownOnce.Do(func() {
		shutdownLogger.Info().Msg("Interview transcription service shutting down")

		if _, err := a.StopRecording(ctx); err != nil && !errors.Is(err, ErrNoRecording) {
			shutdownLogger.Error().Err(err).Msg("Failed to stop recording during shutdown")
		}
		if a.hubCancel != nil {
			a.hubCancel()
		}
		if err := a.deps.Publisher.Close(); err != nil {
			shutdownLogger.Error().Err(err).Msg("Failed to close publisher")
		}
		if a.deps.Store != nil {
			if err := a.deps.Store.Close(); err != nil {
				shutdownLogger.Error().Err(err).Msg("Failed to close transcript store")
			}
		}
	})
}

// Ready reports whether the application can accept recordings.
func (a *Application) Ready() bool {
	return !a.StartupTime.IsZero()
}

// StartRecording starts a new recording session and returns its ID. It
// blocks until both sources are connected or the start fails.
func (a *Application) StartRecording(ctx context.Context, req StartRequest) (string, error) {
	if req.CaseID == "" {
		return "", fmt.Errorf("%w: caseId is required", ErrInvalidRequest)
	}
	sessionType, err := models.ParseSessionType(string(req.SessionType))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	req.SessionType = sessionType
	if err := req.Language.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	sessionID := uuid.NewString()
	logger := a.Logger.With().
		Str("method", "StartRecording").
		Str("sessionId", sessionID).
		Str("caseId", req.CaseID).
		Logger()

	router := translation.NewRouter(a.deps.Translator, req.Language, translation.Config{
		Timeout:     a.Cfg.Translation.Timeout,
		MaxInFlight: a.Cfg.Translation.MaxInFlight,
	})
	routerCtx, cancel := context.WithCancel(context.Background())

	rec := &recording{
		caseID:    req.CaseID,
		sessionID: sessionID,
		log: transcript.NewLog(transcript.Info{
			CaseID:      req.CaseID,
			SessionID:   sessionID,
			Language:    req.Language,
			SessionType: req.SessionType,
		}, a.savers),
		events:  make(chan models.TranscriptionEvent, 64),
		drained: make(chan struct{}),
		cancel:  cancel,
	}

	a.mu.Lock()
	if a.rec != nil {
		a.mu.Unlock()
		cancel()
		return "", ErrRecordingActive
	}
	a.rec = rec
	a.lastErr = ""
	a.mu.Unlock()

	go a.consume(rec, router.Run(routerCtx, rec.events))
	a.broadcastStatus()

	onEvent := func(ev models.TranscriptionEvent) {
		a.broadcast(websocket.MessageTypeTranscription, ev)
		rec.events <- ev
	}

	if err := a.Orchestrator.Start(ctx, sessionID, req.Language, req.SessionType, onEvent); err != nil {
		a.mu.Lock()
		owned := a.rec == rec
		if owned {
			a.rec = nil
			a.lastErr = userMessage(err)
		}
		a.mu.Unlock()
		if owned {
			rec.closeEvents()
			rec.cancel()
		}
		logger.Warn().Err(err).Msg("Recording failed to start")
		a.broadcastStatus()
		return "", err
	}

	a.mu.Lock()
	rec.started = true
	a.mu.Unlock()

	logger.Info().Msg("Recording started")
	a.broadcastStatus()
	return sessionID, nil
}

// consume appends routed utterances to the log in order, then fans them out
// to live clients and Kafka.
func (a *Application) consume(rec *recording, utterances <-chan models.RenderedUtterance) {
	defer close(rec.drained)
	ctx := context.Background()

	for u := range utterances {
		u, err := rec.log.Append(u)
		if err != nil {
			a.Logger.Warn().Err(err).Str("sessionId", rec.sessionID).Msg("Utterance arrived after finalize")
			continue
		}
		a.broadcast(websocket.MessageTypeUtterance, u)
		if err := a.deps.Publisher.PublishUtterance(ctx, u); err != nil {
			a.Logger.Warn().Err(err).Str("sessionId", rec.sessionID).Int("sequence", u.Sequence).Msg("Failed to publish utterance")
		}
	}
}

// PauseRecording pauses or resumes the active recording.
func (a *Application) PauseRecording(paused bool) error {
	a.mu.Lock()
	rec := a.rec
	a.mu.Unlock()
	if rec == nil {
		return ErrNoRecording
	}

	if err := a.Orchestrator.Pause(paused); err != nil {
		return err
	}
	a.broadcastStatus()
	return nil
}

// StopRecording stops the active recording, waits for pending translations
// and finalizes the transcript. A recording that never reached on is torn
// down without a transcript. When the previous save failed and no recording
// is active, StopRecording retries the save.
func (a *Application) StopRecording(ctx context.Context) (models.Transcript, error) {
	a.mu.Lock()
	rec := a.rec
	a.rec = nil
	last := a.last
	a.mu.Unlock()

	if rec == nil {
		if last != nil && !last.Finalized() {
			return a.finalize(ctx, last)
		}
		return models.Transcript{}, ErrNoRecording
	}

	logger := a.Logger.With().
		Str("method", "StopRecording").
		Str("sessionId", rec.sessionID).
		Logger()

	// Start may have succeeded without marking rec yet
	status := a.Orchestrator.Status()
	reachedOn := status == session.StatusOn || status == session.StatusPaused

	if err := a.Orchestrator.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Orchestrator stop reported an error")
	}
	rec.closeEvents()

	select {
	case <-rec.drained:
	case <-ctx.Done():
		logger.Warn().Msg("Stopped before pending translations drained")
	}
	rec.cancel()
	<-rec.drained

	a.mu.Lock()
	started := rec.started || reachedOn
	if started {
		a.last = rec.log
	}
	a.mu.Unlock()
	a.broadcastStatus()

	if !started {
		logger.Info().Msg("Recording stopped before it started")
		return models.Transcript{}, ErrNoRecording
	}
	return a.finalize(ctx, rec.log)
}

func (a *Application) finalize(ctx context.Context, l *transcript.Log) (models.Transcript, error) {
	if err := l.Finalize(ctx); err != nil {
		a.mu.Lock()
		a.lastErr = "the transcript could not be saved"
		a.mu.Unlock()
		return l.Snapshot(), err
	}
	return l.Snapshot(), nil
}

// RecordingStatus returns the current recording state.
func (a *Application) RecordingStatus() Status {
	a.mu.Lock()
	rec := a.rec
	last := a.last
	st := Status{
		Status: a.Orchestrator.Status(),
		Error:  a.lastErr,
	}
	a.mu.Unlock()

	switch {
	case rec != nil:
		st.SessionID = rec.sessionID
		st.CaseID = rec.caseID
		st.Utterances = rec.log.Len()
	case last != nil:
		snap := last.Snapshot()
		st.SessionID = snap.SessionID
		st.CaseID = snap.CaseID
		st.Utterances = len(snap.Utterances)
	}
	if st.Status == session.StatusOn || st.Status == session.StatusPaused {
		started := a.Orchestrator.StartedAt()
		st.StartedAt = &started
	}
	st.Attempts = a.Orchestrator.Attempts()
	return st
}

// Utterances returns the utterances of the active or last recording.
func (a *Application) Utterances() []models.RenderedUtterance {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.rec != nil:
		return a.rec.log.Utterances()
	case a.last != nil:
		return a.last.Utterances()
	}
	return nil
}

// SavedTranscript loads a persisted transcript.
func (a *Application) SavedTranscript(ctx context.Context, sessionID string) (models.Transcript, error) {
	if a.deps.Store == nil {
		return models.Transcript{}, ErrNoStore
	}
	return a.deps.Store.Get(ctx, sessionID)
}

// CaseSessions lists the persisted sessions of a case.
func (a *Application) CaseSessions(ctx context.Context, caseID string) ([]string, error) {
	if a.deps.Store == nil {
		return nil, ErrNoStore
	}
	return a.deps.Store.SessionsForCase(ctx, caseID)
}

func (a *Application) sourceClosed(source models.Source, err error) {
	msg := map[string]string{"source": string(source)}
	if err != nil {
		msg["error"] = err.Error()
		msg["message"] = userMessage(err)
	}
	a.broadcast(websocket.MessageTypeSourceClosed, msg)
}

func (a *Application) broadcastStatus() {
	a.broadcast(websocket.MessageTypeStatus, a.RecordingStatus())
}

func (a *Application) broadcast(msgType string, data any) {
	if err := a.Hub.Broadcast(msgType, data); err != nil {
		a.Logger.Warn().Err(err).Str("type", msgType).Msg("Failed to broadcast")
	}
}

// userMessage returns the host-facing message for err.
func userMessage(err error) string {
	var serr *models.SessionError
	if errors.As(err, &serr) {
		return serr.UserMessage()
	}
	return err.Error()
}
