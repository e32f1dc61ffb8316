// Package translation routes finalized transcription events to the
// counterpart party's language.
package translation

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/observability/logging"
	"interview-transcription-service/internal/observability/metrics"
)

// Translator is the external machine translation capability.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// TranslatorFunc adapts a function to Translator.
type TranslatorFunc func(ctx context.Context, text, sourceLang, targetLang string) (string, error)

func (f TranslatorFunc) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	return f(ctx, text, sourceLang, targetLang)
}

// Config holds router settings.
type Config struct {
	// Timeout bounds a single translation call. Zero means no timeout.
	Timeout time.Duration
	// MaxInFlight bounds concurrent translations in Run.
	MaxInFlight int
}

// Router renders events for both parties. A nil translator disables
// translation; both display fields then mirror the original text.
type Router struct {
	translator Translator
	pref       models.LanguagePreference
	cfg        Config
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewRouter creates a router for one recording session.
func NewRouter(translator Translator, pref models.LanguagePreference, cfg Config) *Router {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	return &Router{
		translator: translator,
		pref:       pref,
		cfg:        cfg,
		metrics:    metrics.DefaultMetrics,
		logger:     logging.WithComponent("translation"),
	}
}

// Languages returns the speaker's language and the counterpart's language
// for an event. In auto mode a detected language overrides the configured
// one on the speaker side.
func (r *Router) Languages(ev models.TranscriptionEvent) (source, target string) {
	if ev.Source == models.SourceMicrophone {
		source, target = r.pref.InvestigatorLanguage(), r.pref.ParticipantLanguage()
	} else {
		source, target = r.pref.ParticipantLanguage(), r.pref.InvestigatorLanguage()
	}
	if r.pref.Mode == models.LanguageAuto && ev.LanguageCode != "" {
		source = ev.LanguageCode
	}
	return source, target
}

// Route translates one event. Translation failures never propagate: they
// are reported on the utterance and both display fields carry the original.
func (r *Router) Route(ctx context.Context, ev models.TranscriptionEvent) models.RenderedUtterance {
	source, target := r.Languages(ev)
	original := ev.Sentence

	u := models.RenderedUtterance{
		EventType:           models.EventTypeUtterance,
		SessionID:           ev.SessionID,
		Source:              ev.Source,
		Speaker:             ev.Speaker,
		OriginalText:        original,
		OriginalLanguage:    source,
		InvestigatorDisplay: original,
		ParticipantDisplay:  original,
		Confidence:          ev.AverageConfidence(),
		Timestamp:           ev.Timestamp,
	}

	switch {
	case strings.TrimSpace(original) == "":
		r.metrics.RecordTranslationSkipped("empty")
		return u
	case r.translator == nil:
		r.metrics.RecordTranslationSkipped("disabled")
		return u
	case target == "":
		r.metrics.RecordTranslationSkipped("no_target")
		return u
	case SameLanguage(source, target):
		r.metrics.RecordTranslationSkipped("same_language")
		return u
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	translated, err := r.translator.Translate(ctx, original, source, target)
	r.metrics.RecordTranslation(err, time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(translated) == "" {
		err = ErrEmptyTranslation
	}
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("sessionId", ev.SessionID).
			Str("source", string(ev.Source)).
			Str("from", source).
			Str("to", target).
			Msg("Translation failed, showing original text")
		u.Error = err.Error()
		return u
	}

	if ev.Source == models.SourceMicrophone {
		u.ParticipantDisplay = translated
	} else {
		u.InvestigatorDisplay = translated
	}
	return u
}

// Run translates events concurrently and emits utterances in arrival order.
// The output is closed after the input is closed and every pending
// translation is emitted, or when ctx is done.
func (r *Router) Run(ctx context.Context, in <-chan models.TranscriptionEvent) <-chan models.RenderedUtterance {
	out := make(chan models.RenderedUtterance)
	pending := make(chan chan models.RenderedUtterance, r.cfg.MaxInFlight)
	slots := make(chan struct{}, r.cfg.MaxInFlight)

	go func() {
		defer close(pending)
		for ev := range in {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				return
			}
			result := make(chan models.RenderedUtterance, 1)
			select {
			case pending <- result:
			case <-ctx.Done():
				<-slots
				return
			}
			go func(ev models.TranscriptionEvent) {
				defer func() { <-slots }()
				result <- r.Route(ctx, ev)
			}(ev)
		}
	}()

	go func() {
		defer close(out)
		for result := range pending {
			u := <-result
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// SameLanguage compares two codes on their primary subtag, so en-US and
// en-GB are the same language.
func SameLanguage(a, b string) bool {
	return baseLanguage(a) == baseLanguage(b)
}

func baseLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	return code
}
