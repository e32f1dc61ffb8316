package models

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies one of the two capture sources.
type Source string

const (
	SourceMicrophone Source = "microphone"
	SourceDisplay    Source = "display"
)

// Sources lists both capture sources in start order.
var Sources = []Source{SourceMicrophone, SourceDisplay}

// Valid reports whether s names a known capture source.
func (s Source) Valid() bool {
	return s == SourceMicrophone || s == SourceDisplay
}

// ParseSource parses a source name.
func ParseSource(v string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown capture source %q", v)
	}
	return s, nil
}

// SessionType says whether the non-investigator side is a single
// participant or several diarized speakers.
type SessionType string

const (
	SessionStandard SessionType = "standard"
	SessionMulti    SessionType = "multi"
)

// ParseSessionType parses a session type, defaulting to standard when empty.
func ParseSessionType(v string) (SessionType, error) {
	switch SessionType(strings.ToLower(strings.TrimSpace(v))) {
	case "", SessionStandard:
		return SessionStandard, nil
	case SessionMulti:
		return SessionMulti, nil
	default:
		return "", fmt.Errorf("unknown session type %q", v)
	}
}

// LanguageMode selects how language codes are assigned to the two sources.
type LanguageMode string

const (
	LanguageUnified LanguageMode = "unified"
	LanguageSplit   LanguageMode = "split"
	LanguageAuto    LanguageMode = "auto"
)

// DefaultCandidateLanguages is the identification fallback used when neither
// the caller nor the configuration supplies candidates.
var DefaultCandidateLanguages = []string{"en-US", "ar-SA", "es-US", "fr-FR"}

// LanguagePreference is the per-source language policy of a session.
//
// In unified mode Unified applies to both sources. In split mode Investigator
// and Participant apply to the microphone and display sources. In auto mode
// the speech service identifies the language among Candidates; Investigator
// and Participant, when set, are still used as translation targets.
type LanguagePreference struct {
	Mode         LanguageMode `json:"mode"`
	Unified      string       `json:"unified,omitempty"`
	Investigator string       `json:"investigator,omitempty"`
	Participant  string       `json:"participant,omitempty"`
	Candidates   []string     `json:"candidates,omitempty"`
}

// Validate checks that the preference carries the codes its mode needs.
func (p LanguagePreference) Validate() error {
	switch p.Mode {
	case LanguageUnified:
		if p.Unified == "" {
			return fmt.Errorf("unified language mode requires a language code")
		}
	case LanguageSplit:
		if p.Investigator == "" || p.Participant == "" {
			return fmt.Errorf("split language mode requires investigator and participant codes")
		}
	case LanguageAuto:
	default:
		return fmt.Errorf("unknown language mode %q", p.Mode)
	}
	return nil
}

// InvestigatorLanguage returns the investigator's configured language.
func (p LanguagePreference) InvestigatorLanguage() string {
	if p.Mode == LanguageUnified {
		return p.Unified
	}
	return p.Investigator
}

// ParticipantLanguage returns the participant's configured language.
func (p LanguagePreference) ParticipantLanguage() string {
	if p.Mode == LanguageUnified {
		return p.Unified
	}
	return p.Participant
}

// LanguageFor returns the fixed recognition language for a source, or ""
// when the language is identified automatically.
func (p LanguagePreference) LanguageFor(src Source) string {
	switch p.Mode {
	case LanguageAuto:
		return ""
	case LanguageUnified:
		return p.Unified
	}
	if src == SourceMicrophone {
		return p.Investigator
	}
	return p.Participant
}

// ConnectionAttempt records a single connect try of a streaming session.
type ConnectionAttempt struct {
	Source  Source        `json:"source"`
	Attempt int           `json:"attempt"`
	Success bool          `json:"success"`
	Kind    ErrorKind     `json:"kind,omitempty"`
	Message string        `json:"message,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}
