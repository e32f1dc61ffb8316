package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"interview-transcription-service/internal/capture"
	"interview-transcription-service/internal/credentials"
	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/observability/logging"
	"interview-transcription-service/internal/observability/metrics"
	"interview-transcription-service/internal/service/audio"
	"interview-transcription-service/internal/service/stt"
)

// Config holds the per-source settings of a streaming session.
type Config struct {
	SessionID   string
	Source      models.Source
	SessionType models.SessionType
	Language    models.LanguagePreference

	// CandidateLanguages is used in auto mode when the preference has none.
	CandidateLanguages []string

	SampleRateHz  int
	AudioEncoding string
	MaxSpeakers   int

	Labels Labels
	Retry  RetryPolicy
}

// Session maintains exactly one connection to the speech service for one
// capture source.
type Session struct {
	cfg         Config
	transcriber stt.Transcriber
	handle      capture.Handle
	encoder     *audio.Encoder
	lifecycle   *Lifecycle
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu       sync.Mutex
	conn     stt.Conn
	attempts []models.ConnectionAttempt
}

// NewSession creates an idle session over handle. Each session owns its own
// encoder.
func NewSession(cfg Config, transcriber stt.Transcriber, handle capture.Handle) *Session {
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = 16000
	}
	if cfg.AudioEncoding == "" {
		cfg.AudioEncoding = "LINEAR16"
	}
	if cfg.Labels == (Labels{}) {
		cfg.Labels = DefaultLabels()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Session{
		cfg:         cfg,
		transcriber: transcriber,
		handle:      handle,
		encoder:     audio.NewEncoder(string(cfg.Source), cfg.SampleRateHz),
		lifecycle:   NewLifecycle(),
		metrics:     metrics.DefaultMetrics,
		logger:      logging.WithSource(cfg.SessionID, string(cfg.Source), transcriber.Name()),
		sleep:       sleepContext,
		now:         time.Now,
	}
}

// Source returns the capture source of the session.
func (s *Session) Source() models.Source {
	return s.cfg.Source
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.lifecycle.State()
}

// Attempts returns a copy of the recorded connect attempts.
func (s *Session) Attempts() []models.ConnectionAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ConnectionAttempt(nil), s.attempts...)
}

// StreamConfig returns the configuration sent on connect.
func (s *Session) StreamConfig() stt.StreamConfig {
	pref := s.cfg.Language
	cfg := stt.StreamConfig{
		Source:            s.cfg.Source,
		LanguageCode:      pref.LanguageFor(s.cfg.Source),
		SampleRateHz:      s.cfg.SampleRateHz,
		AudioEncoding:     s.cfg.AudioEncoding,
		EnableDiarization: s.cfg.Source == models.SourceDisplay && s.cfg.SessionType == models.SessionMulti,
		MaxSpeakers:       s.cfg.MaxSpeakers,
		InterimResults:    true,
	}
	if pref.Mode == models.LanguageAuto {
		cfg.LanguageCode = ""
		cfg.IdentifyLanguage = true
		cfg.CandidateLanguages = pref.Candidates
		if len(cfg.CandidateLanguages) == 0 {
			cfg.CandidateLanguages = s.cfg.CandidateLanguages
		}
		if len(cfg.CandidateLanguages) == 0 {
			cfg.CandidateLanguages = models.DefaultCandidateLanguages
		}
	}
	return cfg
}

// Connect runs the bounded retry loop until the service accepts the stream.
// Every failure is returned as a *models.SessionError.
func (s *Session) Connect(ctx context.Context, creds credentials.Credentials) error {
	if err := s.lifecycle.BeginConnect(); err != nil {
		return models.NewError(models.KindService, s.cfg.Source, models.StageConnect, err)
	}

	streamCfg := s.StreamConfig()
	for attempt := 1; ; attempt++ {
		start := time.Now()
		conn, err := s.transcriber.Connect(ctx, streamCfg, creds)
		elapsed := time.Since(start)

		var serr *models.SessionError
		if err != nil {
			serr = Classify(err, s.cfg.Source, models.StageConnect)
		}
		s.recordAttempt(attempt, serr, elapsed)

		switch s.cfg.Retry.Decide(attempt, errOrNil(serr)) {
		case Connected:
			s.mu.Lock()
			if err := s.lifecycle.MarkConnected(); err != nil {
				s.mu.Unlock()
				// closed by Close while connecting
				conn.Close()
				return models.NewError(models.KindService, s.cfg.Source, models.StageConnect, err)
			}
			s.conn = conn
			s.mu.Unlock()
			s.logger.Info().Int("attempt", attempt).Msg("Connected to speech service")
			return nil

		case Retry:
			s.logger.Warn().Err(err).Int("attempt", attempt).Str("kind", string(serr.Kind)).Msg("Connect failed, retrying")
			if werr := s.sleep(ctx, s.cfg.Retry.Delay); werr != nil {
				s.lifecycle.Close()
				return Classify(werr, s.cfg.Source, models.StageConnect)
			}

		case Fail:
			s.lifecycle.Close()
			s.logger.Error().Err(err).Int("attempts", attempt).Str("kind", string(serr.Kind)).Msg("Connect failed")
			return serr
		}
	}
}

func (s *Session) recordAttempt(attempt int, serr *models.SessionError, elapsed time.Duration) {
	a := models.ConnectionAttempt{
		Source:  s.cfg.Source,
		Attempt: attempt,
		Success: serr == nil,
		Elapsed: elapsed,
	}
	if serr != nil {
		a.Kind = serr.Kind
		a.Message = serr.Message
	}

	s.mu.Lock()
	s.attempts = append(s.attempts, a)
	s.mu.Unlock()

	s.metrics.RecordConnectAttempt(string(s.cfg.Source), a.Success, string(a.Kind), elapsed.Seconds())
}

// errOrNil keeps a nil *SessionError from becoming a non-nil error.
func errOrNil(serr *models.SessionError) error {
	if serr == nil {
		return nil
	}
	return serr
}

// Run pumps encoded audio to the connection and emits one event per final
// result until ctx is cancelled or the stream ends. A normal end returns nil;
// a drop or the end of the capture feed returns a stream-stage SessionError.
// The session is closed on return.
func (s *Session) Run(ctx context.Context, emit func(models.TranscriptionEvent)) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || s.lifecycle.State() != StateConnected {
		return models.NewError(models.KindService, s.cfg.Source, models.StageStream, ErrNotConnected)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.Close()

	// Recv has no context; closing the connection unblocks it.
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	var samples <-chan []float32
	if tracks := s.handle.AudioTracks(); len(tracks) > 0 {
		samples = tracks[0].Samples()
	}
	frames := s.encoder.Stream(ctx, samples)

	var sendErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for frame := range frames {
			if err := conn.Send(frame); err != nil {
				if ctx.Err() == nil {
					sendErr = err
					cancel()
				}
				return
			}
			s.metrics.RecordAudioSent(string(s.cfg.Source), len(frame))
		}
		// frames closes on its own only when the host released the capture
		if ctx.Err() == nil {
			sendErr = models.NewError(models.KindDevice, s.cfg.Source, models.StageStream, ErrCaptureEnded)
			cancel()
		}
	}()

	recvErr := s.receive(ctx, conn, emit)
	cancel()
	wg.Wait()

	err := recvErr
	if err == nil && sendErr != nil {
		err = Classify(sendErr, s.cfg.Source, models.StageStream)
	}
	s.metrics.RecordSourceCompleted(string(s.cfg.Source), err)
	if err != nil {
		s.logger.Error().Err(err).Msg("Stream dropped")
		return err
	}
	s.logger.Info().Msg("Stream closed")
	return nil
}

func (s *Session) receive(ctx context.Context, conn stt.Conn, emit func(models.TranscriptionEvent)) error {
	for {
		res, err := conn.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return Classify(err, s.cfg.Source, models.StageStream)
		}

		if res.IsPartial {
			s.metrics.RecordPartialTranscript(string(s.cfg.Source))
			continue
		}
		ev, ok := s.toEvent(res)
		if !ok {
			continue
		}
		s.metrics.RecordFinalTranscript(string(s.cfg.Source))
		emit(ev)
	}
}

// toEvent converts a final result. Results without recognized words yield
// no event.
func (s *Session) toEvent(res *stt.Result) (models.TranscriptionEvent, bool) {
	words := make([]models.TranscribedWord, 0, len(res.Words))
	for _, w := range res.Words {
		words = append(words, models.TranscribedWord{
			Content:    w.Content,
			Confidence: w.Confidence,
			SpeakerTag: w.SpeakerTag,
		})
	}
	sentence := models.JoinWords(words)
	if sentence == "" {
		return models.TranscriptionEvent{}, false
	}

	speaker := s.cfg.Labels.Label(s.cfg.Source, s.cfg.SessionType, words[0].SpeakerTag)
	ts := s.now()

	lang := res.LanguageCode
	if lang == "" {
		lang = s.cfg.Language.LanguageFor(s.cfg.Source)
	}

	return models.TranscriptionEvent{
		EventType:    models.EventTypeTranscription,
		SessionID:    s.cfg.SessionID,
		Source:       s.cfg.Source,
		Speaker:      speaker,
		Words:        words,
		Sentence:     sentence,
		Transcript:   models.FormatLine(ts, speaker, sentence),
		LanguageCode: lang,
		Timestamp:    ts,
	}, true
}

// Close ends the connection. Safe from any state and idempotent.
func (s *Session) Close() error {
	s.lifecycle.Close()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close %s stream: %w", s.cfg.Source, err)
	}
	return nil
}
