package capture

import (
	"fmt"
	"sync"

	"interview-transcription-service/internal/models"
)

// Handle is a live media handle for one capture source.
type Handle interface {
	Source() models.Source
	AudioTracks() []*Track
	Active() bool
	Stop()
}

// Feed is a Handle whose samples are pushed by the host, for example over
// the capture websocket.
type Feed struct {
	source models.Source
	tracks []*Track
	once   sync.Once
	done   chan struct{}
}

// NewFeed creates a feed with the given number of audio tracks. A display
// feed shared without system audio has zero audio tracks.
func NewFeed(source models.Source, audioTracks, buffer int) *Feed {
	f := &Feed{
		source: source,
		done:   make(chan struct{}),
	}
	for i := 0; i < audioTracks; i++ {
		f.tracks = append(f.tracks, NewTrack(fmt.Sprintf("%s-audio-%d", source, i), buffer))
	}
	return f
}

func (f *Feed) Source() models.Source {
	return f.source
}

func (f *Feed) AudioTracks() []*Track {
	return f.tracks
}

// HasAudio reports whether the feed carries at least one audio track.
func (f *Feed) HasAudio() bool {
	return len(f.tracks) > 0
}

// Push writes a chunk to the first audio track.
func (f *Feed) Push(chunk []float32) bool {
	if len(f.tracks) == 0 {
		return false
	}
	return f.tracks[0].Push(chunk)
}

// Active reports whether the feed has not been stopped.
func (f *Feed) Active() bool {
	select {
	case <-f.done:
		return false
	default:
		return true
	}
}

// Stop stops every track. Idempotent.
func (f *Feed) Stop() {
	f.once.Do(func() {
		for _, t := range f.tracks {
			t.Stop()
		}
		close(f.done)
	})
}

// Done is closed once the feed is stopped.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}
