// Package schema checks required fields of payloads before they are
// persisted or published.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"interview-transcription-service/internal/models"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("schema validation failed")

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks a TranscriptionEvent, RenderedUtterance or Transcript,
// by value or pointer.
func (v *Validator) Validate(event any) error {
	var missing []string

	switch e := event.(type) {
	case models.TranscriptionEvent:
		missing = validateEvent(e)
	case *models.TranscriptionEvent:
		if e == nil {
			return fmt.Errorf("%w: nil event", ErrInvalid)
		}
		missing = validateEvent(*e)
	case models.RenderedUtterance:
		missing = validateUtterance(e, "")
	case *models.RenderedUtterance:
		if e == nil {
			return fmt.Errorf("%w: nil utterance", ErrInvalid)
		}
		missing = validateUtterance(*e, "")
	case models.Transcript:
		missing = validateTranscript(e)
	case *models.Transcript:
		if e == nil {
			return fmt.Errorf("%w: nil transcript", ErrInvalid)
		}
		missing = validateTranscript(*e)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalid, event)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %T missing %s", ErrInvalid, event, strings.Join(missing, ", "))
	}
	log.Debug().Str("type", fmt.Sprintf("%T", event)).Msg("Schema validated")
	return nil
}

func validateEvent(e models.TranscriptionEvent) []string {
	var missing []string
	if e.SessionID == "" {
		missing = append(missing, "sessionId")
	}
	if !e.Source.Valid() {
		missing = append(missing, "source")
	}
	if e.Speaker == "" {
		missing = append(missing, "speaker")
	}
	if len(e.Words) == 0 {
		missing = append(missing, "words")
	}
	if e.Timestamp.IsZero() {
		missing = append(missing, "timestamp")
	}
	return missing
}

func validateUtterance(u models.RenderedUtterance, prefix string) []string {
	var missing []string
	add := func(field string) { missing = append(missing, prefix+field) }

	if u.SessionID == "" {
		add("sessionId")
	}
	if !u.Source.Valid() {
		add("source")
	}
	if u.Speaker == "" {
		add("speaker")
	}
	if u.Sequence < 1 {
		add("sequence")
	}
	if u.Timestamp.IsZero() {
		add("timestamp")
	}
	return missing
}

func validateTranscript(t models.Transcript) []string {
	var missing []string
	if t.CaseID == "" {
		missing = append(missing, "caseId")
	}
	if t.SessionID == "" {
		missing = append(missing, "sessionId")
	}
	if t.Metadata.StartedAt.IsZero() {
		missing = append(missing, "metadata.startedAt")
	}
	if t.Metadata.MessageCount != len(t.Utterances) {
		missing = append(missing, "metadata.messageCount")
	}
	for i, u := range t.Utterances {
		missing = append(missing, validateUtterance(u, fmt.Sprintf("utterances[%d].", i))...)
	}
	return missing
}
