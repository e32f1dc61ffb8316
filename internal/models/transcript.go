// Package models defines the data structures shared by the capture,
// transcription and translation pipeline.
package models

import (
	"fmt"
	"strings"
	"time"
)

// TranscribedWord is one recognized item of a finalized result.
type TranscribedWord struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
	SpeakerTag string  `json:"speakerTag,omitempty"`
}

// TranscriptionEvent is produced by a streaming session for every finalized
// result that carries at least one word.
type TranscriptionEvent struct {
	EventType    string            `json:"eventType"`
	SessionID    string            `json:"sessionId"`
	Source       Source            `json:"source"`
	Speaker      string            `json:"speaker"`
	Words        []TranscribedWord `json:"words"`
	Sentence     string            `json:"sentence"`
	Transcript   string            `json:"transcript"`
	LanguageCode string            `json:"languageCode,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// AverageConfidence returns the mean word confidence, or 0 for an empty event.
func (e TranscriptionEvent) AverageConfidence() float64 {
	if len(e.Words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range e.Words {
		sum += w.Confidence
	}
	return sum / float64(len(e.Words))
}

// SpeakerWordCounts counts words per raw speaker tag. Untagged words are
// counted under the resolved speaker label.
func (e TranscriptionEvent) SpeakerWordCounts() map[string]int {
	counts := make(map[string]int)
	for _, w := range e.Words {
		tag := w.SpeakerTag
		if tag == "" {
			tag = e.Speaker
		}
		counts[tag]++
	}
	return counts
}

// RenderedUtterance is a TranscriptionEvent after translation routing.
type RenderedUtterance struct {
	EventType           string    `json:"eventType"`
	SessionID           string    `json:"sessionId"`
	Sequence            int       `json:"sequence"`
	Source              Source    `json:"source"`
	Speaker             string    `json:"speaker"`
	OriginalText        string    `json:"originalText"`
	OriginalLanguage    string    `json:"originalLanguage"`
	InvestigatorDisplay string    `json:"investigatorDisplay"`
	ParticipantDisplay  string    `json:"participantDisplay"`
	Error               string    `json:"error,omitempty"`
	Confidence          float64   `json:"confidence"`
	Timestamp           time.Time `json:"timestamp"`
}

// Event type names carried on the wire.
const (
	EventTypeTranscription = "interview.transcript.final"
	EventTypeUtterance     = "interview.utterance.rendered"
	EventTypeTranscript    = "interview.transcript.finalized"
)

// JoinWords concatenates word contents into a sentence. Punctuation-only
// items attach to the preceding word.
func JoinWords(words []TranscribedWord) string {
	var b strings.Builder
	for _, w := range words {
		content := strings.TrimSpace(w.Content)
		if content == "" {
			continue
		}
		if b.Len() > 0 && !isPunctuation(content) {
			b.WriteByte(' ')
		}
		b.WriteString(content)
	}
	return b.String()
}

// FormatLine renders the single-line transcript form of an event.
func FormatLine(ts time.Time, speaker, sentence string) string {
	return fmt.Sprintf("[%s] %s: %s", ts.Format("15:04:05"), speaker, sentence)
}

func isPunctuation(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(".,!?;:…،؟", r) {
			return false
		}
	}
	return true
}

// TranscriptMetadata summarizes a finalized recording session.
type TranscriptMetadata struct {
	InvestigatorLanguage string       `json:"investigatorLanguage"`
	ParticipantLanguage  string       `json:"participantLanguage"`
	LanguageMode         LanguageMode `json:"languageMode"`
	SessionType          SessionType  `json:"sessionType"`
	StartedAt            time.Time    `json:"startedAt"`
	EndedAt              time.Time    `json:"endedAt"`
	DurationMs           int64        `json:"durationMs"`
	MessageCount         int          `json:"messageCount"`
}

// Transcript is the payload handed to persistence once per session.
type Transcript struct {
	EventType  string              `json:"eventType"`
	CaseID     string              `json:"caseId"`
	SessionID  string              `json:"sessionId"`
	Utterances []RenderedUtterance `json:"utterances"`
	Metadata   TranscriptMetadata  `json:"metadata"`
}
