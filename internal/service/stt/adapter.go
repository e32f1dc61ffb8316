// Package stt defines the interface for streaming Speech-to-Text adapters.
package stt

import (
	"context"

	"interview-transcription-service/internal/credentials"
	"interview-transcription-service/internal/models"
)

// StreamConfig is the per-source recognition configuration sent when a
// connection opens.
type StreamConfig struct {
	Source models.Source

	// LanguageCode is empty when IdentifyLanguage is set.
	LanguageCode       string
	IdentifyLanguage   bool
	CandidateLanguages []string

	SampleRateHz  int
	AudioEncoding string

	// EnableDiarization is only set for the display source of multi sessions.
	EnableDiarization bool
	MaxSpeakers       int

	InterimResults bool
}

// Word is one recognized item of a result.
type Word struct {
	Content    string
	Confidence float64
	SpeakerTag string
}

// Result is one item of the service's result stream.
type Result struct {
	IsPartial    bool
	Words        []Word
	Transcript   string
	LanguageCode string
}

// Conn is one live bidirectional connection to the speech service.
type Conn interface {
	// Send pushes one encoded audio frame.
	Send(frame []byte) error

	// Recv blocks until the next result. It returns io.EOF when the service
	// closes the stream normally.
	Recv() (*Result, error)

	// Close ends the session and releases resources.
	Close() error
}

// Transcriber opens streaming connections (Google, mock, ...).
type Transcriber interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Connect opens a connection and sends the configuration. Errors are
	// returned unclassified; the streaming session classifies them.
	Connect(ctx context.Context, cfg StreamConfig, creds credentials.Credentials) (Conn, error)
}
