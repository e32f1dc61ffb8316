// Package transcript accumulates rendered utterances for one recording and
// hands them to persistence exactly once.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/observability/logging"
	"interview-transcription-service/internal/observability/metrics"
	"interview-transcription-service/internal/schema"
)

// ErrFinalized is returned by Append after a successful Finalize.
var ErrFinalized = errors.New("transcript already finalized")

// Saver is the persistence collaborator.
type Saver interface {
	Save(ctx context.Context, t models.Transcript) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, t models.Transcript) error

func (f SaverFunc) Save(ctx context.Context, t models.Transcript) error {
	return f(ctx, t)
}

// Savers fans a transcript out to several savers. Every saver is called;
// the joined error is returned.
type Savers []Saver

func (s Savers) Save(ctx context.Context, t models.Transcript) error {
	var errs []error
	for _, saver := range s {
		if err := saver.Save(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Info identifies the session a log belongs to.
type Info struct {
	CaseID      string
	SessionID   string
	Language    models.LanguagePreference
	SessionType models.SessionType
	StartedAt   time.Time
}

// Log is an append-only list of utterances in arrival order.
type Log struct {
	info      Info
	saver     Saver
	validator *schema.Validator
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	mu         sync.Mutex
	utterances []models.RenderedUtterance
	finalized  bool
	// sealed rejects appends while a save is in flight
	sealed bool

	// serializes Finalize so the saver runs at most once concurrently
	finalizeMu sync.Mutex
	// pending is the transcript handed to a multi-saver that accepted it
	// only in part; saved marks the savers that already accepted it.
	pending *models.Transcript
	saved   map[int]bool
}

// NewLog creates an empty log. A nil saver makes Finalize only validate.
func NewLog(info Info, saver Saver) *Log {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	return &Log{
		info:      info,
		saver:     saver,
		validator: schema.New(),
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithSession(info.SessionID, info.CaseID),
		now:       time.Now,
	}
}

// Append stores u at the end of the log and returns it with its sequence
// number (1-based arrival order).
func (l *Log) Append(u models.RenderedUtterance) (models.RenderedUtterance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.finalized || l.sealed {
		return u, ErrFinalized
	}
	u.Sequence = len(l.utterances) + 1
	if u.SessionID == "" {
		u.SessionID = l.info.SessionID
	}
	l.utterances = append(l.utterances, u)
	return u, nil
}

// Utterances returns a copy of the log.
func (l *Log) Utterances() []models.RenderedUtterance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.RenderedUtterance(nil), l.utterances...)
}

// Len returns the number of utterances.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.utterances)
}

// Finalized reports whether Finalize succeeded.
func (l *Log) Finalized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finalized
}

// Snapshot builds the transcript as it would be saved now.
func (l *Log) Snapshot() models.Transcript {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked(l.now())
}

func (l *Log) snapshotLocked(end time.Time) models.Transcript {
	utterances := append([]models.RenderedUtterance(nil), l.utterances...)
	return models.Transcript{
		EventType:  models.EventTypeTranscript,
		CaseID:     l.info.CaseID,
		SessionID:  l.info.SessionID,
		Utterances: utterances,
		Metadata: models.TranscriptMetadata{
			InvestigatorLanguage: l.info.Language.InvestigatorLanguage(),
			ParticipantLanguage:  l.info.Language.ParticipantLanguage(),
			LanguageMode:         l.info.Language.Mode,
			SessionType:          l.info.SessionType,
			StartedAt:            l.info.StartedAt,
			EndedAt:              end,
			DurationMs:           end.Sub(l.info.StartedAt).Milliseconds(),
			MessageCount:         len(utterances),
		},
	}
}

// Finalize validates the transcript and hands it to the saver. After a
// successful call the log is closed and further calls are no-ops. A failed
// save leaves Finalize retryable; the log accepts appends again only when
// no saver accepted the transcript.
func (l *Log) Finalize(ctx context.Context) error {
	l.finalizeMu.Lock()
	defer l.finalizeMu.Unlock()

	l.mu.Lock()
	if l.finalized {
		l.mu.Unlock()
		return nil
	}
	var t models.Transcript
	if l.pending != nil {
		t = *l.pending
	} else {
		t = l.snapshotLocked(l.now())
	}
	l.sealed = true
	l.mu.Unlock()

	if err := l.validator.Validate(t); err != nil {
		l.unseal()
		l.metrics.RecordTranscriptSaved(err)
		return fmt.Errorf("finalize transcript: %w", err)
	}

	if l.saver != nil {
		if err := l.save(ctx, t); err != nil {
			if l.pending == nil {
				l.unseal()
			}
			l.metrics.RecordTranscriptSaved(err)
			l.logger.Error().Err(err).Int("messageCount", t.Metadata.MessageCount).Msg("Failed to save transcript")
			return fmt.Errorf("save transcript: %w", err)
		}
	}

	l.mu.Lock()
	l.finalized = true
	l.mu.Unlock()

	l.metrics.RecordTranscriptSaved(nil)
	l.logger.Info().
		Int("messageCount", t.Metadata.MessageCount).
		Int64("durationMs", t.Metadata.DurationMs).
		Msg("Transcript finalized")
	return nil
}

// save hands t to the saver. A Savers value is retried per saver: savers
// that accepted t on an earlier call are skipped, and once any saver has
// accepted it the log stays sealed and later retries resend the same t.
func (l *Log) save(ctx context.Context, t models.Transcript) error {
	savers, ok := l.saver.(Savers)
	if !ok {
		return l.saver.Save(ctx, t)
	}
	if l.saved == nil {
		l.saved = make(map[int]bool, len(savers))
	}

	var errs []error
	for i, saver := range savers {
		if l.saved[i] {
			continue
		}
		if err := saver.Save(ctx, t); err != nil {
			errs = append(errs, err)
			continue
		}
		l.saved[i] = true
	}
	if len(errs) > 0 && len(l.saved) > 0 && l.pending == nil {
		l.pending = &t
	}
	return errors.Join(errs...)
}

func (l *Log) unseal() {
	l.mu.Lock()
	l.sealed = false
	l.mu.Unlock()
}
