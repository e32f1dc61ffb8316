package stream

import (
	"strings"

	"interview-transcription-service/internal/models"
)

// Labels are the speaker names attached to events.
type Labels struct {
	Investigator string
	Participant  string
	// SpeakerRole prefixes diarization tags in multi sessions.
	SpeakerRole string
}

// DefaultLabels returns Investigator / Witness / Speaker.
func DefaultLabels() Labels {
	return Labels{Investigator: "Investigator", Participant: "Witness", SpeakerRole: "Speaker"}
}

// Label resolves the speaker of a final result.
//
//   - microphone: always the investigator label.
//   - display, standard: the participant label, diarization tags ignored.
//   - display, multi: "<role> <tag>" using the first word's tag, or the bare
//     role when the service attached none.
func (l Labels) Label(source models.Source, sessionType models.SessionType, firstTag string) string {
	if source == models.SourceMicrophone {
		return l.Investigator
	}
	if sessionType != models.SessionMulti {
		return l.Participant
	}
	tag := strings.TrimSpace(firstTag)
	if tag == "" {
		return l.SpeakerRole
	}
	return l.SpeakerRole + " " + tag
}
