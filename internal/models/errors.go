package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session failures.
type ErrorKind string

const (
	KindDevice  ErrorKind = "device"
	KindNetwork ErrorKind = "network"
	KindAuth    ErrorKind = "auth"
	KindService ErrorKind = "service"
)

// Stage names the start step a failure happened in.
type Stage string

const (
	StageCapture     Stage = "capture"
	StageValidate    Stage = "validate"
	StageCredentials Stage = "credentials"
	StageConnect     Stage = "connect"
	StageStream      Stage = "stream"
)

// SessionError is the typed failure returned across the orchestrator boundary.
type SessionError struct {
	Kind    ErrorKind
	Source  Source
	Stage   Stage
	Message string
	Err     error
}

func (e *SessionError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Source != "" {
		return fmt.Sprintf("%s error on %s (%s): %s", e.Kind, e.Source, e.Stage, msg)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Kind, e.Stage, msg)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// UserMessage returns the actionable message shown to the investigator.
func (e *SessionError) UserMessage() string {
	switch e.Kind {
	case KindDevice:
		if e.Source == SourceDisplay {
			if e.Stage == StageValidate {
				return "The shared screen has no audio. Share again and enable system audio sharing."
			}
			return "Screen sharing failed. Choose a screen or tab to share."
		}
		return "Microphone unavailable. Check microphone permissions."
	case KindAuth:
		return "Your session has expired. Sign in again."
	case KindNetwork:
		return "Could not reach the transcription service. Check your network connection."
	default:
		return "The transcription service is unavailable. Try again shortly."
	}
}

// NewError builds a SessionError.
func NewError(kind ErrorKind, src Source, stage Stage, err error) *SessionError {
	se := &SessionError{Kind: kind, Source: src, Stage: stage, Err: err}
	if err != nil {
		se.Message = err.Error()
	}
	return se
}

// KindOf returns the kind of a SessionError anywhere in err's chain, or "".
func KindOf(err error) ErrorKind {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
