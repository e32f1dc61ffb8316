package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"interview-transcription-service/internal/capture"
	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/observability/logging"
	"interview-transcription-service/internal/observability/metrics"
	"interview-transcription-service/internal/service/audio"
)

// maxChunkSize bounds one binary frame of float32 samples.
const maxChunkSize = 512 * 1024

// controlMessage is a text frame sent by a capture client.
type controlMessage struct {
	Type string `json:"type"`
}

// Ingest turns capture websocket connections into capture feeds.
//
// Each connection attaches one feed for its source. Binary frames carry
// little-endian float32 samples in [-1, 1]. The connection is closed when the
// feed is released, and the feed is stopped when the client disconnects or
// sends {"type":"end"}.
type Ingest struct {
	registry *capture.Registry
	buffer   int
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewIngest creates an ingest over registry. buffer is the per-track chunk
// buffer.
func NewIngest(registry *capture.Registry, buffer int) *Ingest {
	return &Ingest{
		registry: registry,
		buffer:   buffer,
		metrics:  metrics.DefaultMetrics,
		logger:   logging.WithComponent("capture-ingest"),
	}
}

// Handle serves one capture connection for source. The audio query parameter
// sets the number of audio tracks; audio=0 models a display shared without
// system audio.
func (in *Ingest) Handle(w http.ResponseWriter, r *http.Request, source models.Source) {
	tracks := 1
	if v := r.URL.Query().Get("audio"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid audio track count", http.StatusBadRequest)
			return
		}
		tracks = n
	}

	feed := capture.NewFeed(source, tracks, in.buffer)
	if err := in.registry.Attach(feed); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, capture.ErrAlreadyAttached) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		in.registry.Detach(feed)
		feed.Stop()
		in.logger.Error().Err(err).Str("source", string(source)).Msg("Capture upgrade failed")
		return
	}

	logger := in.logger.With().Str("source", string(source)).Int("audioTracks", tracks).Logger()
	logger.Info().Msg("Capture feed attached")

	defer func() {
		in.registry.Detach(feed)
		feed.Stop()
		conn.Close()
		logger.Info().Msg("Capture feed detached")
	}()

	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-feed.Done():
			deadline := time.Now().Add(writeWait)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "capture released"), deadline)
			conn.Close()
		case <-readDone:
		}
	}()

	conn.SetReadLimit(maxChunkSize)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if feed.Active() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("Capture read error")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if !feed.HasAudio() {
				continue
			}
			if !feed.Push(audio.DecodeFloat32LE(data)) && feed.Active() {
				in.metrics.RecordChunkDropped(string(source), "buffer_full")
			}
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Warn().Err(err).Msg("Invalid capture control message")
				continue
			}
			if msg.Type == "end" {
				return
			}
		}
	}
}

// Deny reports that the user refused to share source.
func (in *Ingest) Deny(source models.Source) {
	in.registry.Deny(source)
	in.logger.Info().Str("source", string(source)).Msg("Capture permission denied by host")
}
