// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interview_transcription"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Recording session metrics
	SessionsStarted  prometheus.Counter
	SessionsActive   prometheus.Gauge
	SessionsFailed   *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	EventsDiscarded  prometheus.Counter
	SourcesCompleted *prometheus.CounterVec

	// Connection metrics
	ConnectAttempts *prometheus.CounterVec
	ConnectLatency  *prometheus.HistogramVec

	// Transcript metrics
	TranscriptsPartial *prometheus.CounterVec
	TranscriptsFinal   *prometheus.CounterVec

	// Audio metrics
	AudioBytesSent     *prometheus.CounterVec
	AudioFramesSent    *prometheus.CounterVec
	AudioChunksDropped *prometheus.CounterVec

	// Translation metrics
	TranslationLatency prometheus.Histogram
	TranslationErrors  prometheus.Counter
	TranslationSkipped *prometheus.CounterVec

	// Persistence metrics
	TranscriptsSaved *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	GRPCCalls *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of recording sessions that reached the on state",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of recording sessions currently on or paused",
		}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of failed session starts",
		}, []string{"source", "kind"}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of recording sessions in seconds",
			Buckets:   []float64{30, 60, 300, 600, 1200, 1800, 3600, 7200},
		}),
		EventsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_discarded_paused_total",
			Help:      "Transcription events discarded because the session was paused",
		}),
		SourcesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_streams_completed_total",
			Help:      "Streaming sessions that ended, by outcome",
		}, []string{"source", "outcome"}),

		ConnectAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect attempts to the speech service",
		}, []string{"source", "outcome", "kind"}),
		ConnectLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connect_latency_seconds",
			Help:      "Time spent on a single connect attempt",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"source"}),

		TranscriptsPartial: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Partial results received and discarded",
		}, []string{"source"}),
		TranscriptsFinal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Final results converted into transcription events",
		}, []string{"source"}),

		AudioBytesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Encoded audio bytes sent to the speech service",
		}, []string{"source"}),
		AudioFramesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_sent_total",
			Help:      "Encoded audio frames sent to the speech service",
		}, []string{"source"}),
		AudioChunksDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Audio chunks dropped before encoding",
		}, []string{"source", "reason"}),

		TranslationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_latency_seconds",
			Help:      "Machine translation latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		TranslationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_errors_total",
			Help:      "Translation failures absorbed into utterances",
		}),
		TranslationSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_skipped_total",
			Help:      "Utterances mirrored without translation",
		}, []string{"reason"}),

		TranscriptsSaved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_saved_total",
			Help:      "Finalized transcripts handed to persistence, by outcome",
		}, []string{"outcome"}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		GRPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "gRPC calls served, by method and code",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a session reaching the on state.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a running session being stopped.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionFailed records a failed start.
func (m *Metrics) RecordSessionFailed(source, kind string) {
	m.SessionsFailed.WithLabelValues(source, kind).Inc()
}

// RecordEventDiscarded records an event dropped while paused.
func (m *Metrics) RecordEventDiscarded() {
	m.EventsDiscarded.Inc()
}

// RecordSourceCompleted records the end of one streaming session.
func (m *Metrics) RecordSourceCompleted(source string, err error) {
	outcome := "closed"
	if err != nil {
		outcome = "failed"
	}
	m.SourcesCompleted.WithLabelValues(source, outcome).Inc()
}

// RecordConnectAttempt records one connect attempt.
func (m *Metrics) RecordConnectAttempt(source string, success bool, kind string, latencySeconds float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.ConnectAttempts.WithLabelValues(source, outcome, kind).Inc()
	m.ConnectLatency.WithLabelValues(source).Observe(latencySeconds)
}

// RecordPartialTranscript records a discarded partial result.
func (m *Metrics) RecordPartialTranscript(source string) {
	m.TranscriptsPartial.WithLabelValues(source).Inc()
}

// RecordFinalTranscript records a final result turned into an event.
func (m *Metrics) RecordFinalTranscript(source string) {
	m.TranscriptsFinal.WithLabelValues(source).Inc()
}

// RecordAudioSent records an encoded frame sent upstream.
func (m *Metrics) RecordAudioSent(source string, bytes int) {
	m.AudioBytesSent.WithLabelValues(source).Add(float64(bytes))
	m.AudioFramesSent.WithLabelValues(source).Inc()
}

// RecordChunkDropped records an audio chunk dropped before encoding.
func (m *Metrics) RecordChunkDropped(source, reason string) {
	m.AudioChunksDropped.WithLabelValues(source, reason).Inc()
}

// RecordTranslation records a translation call.
func (m *Metrics) RecordTranslation(err error, latencySeconds float64) {
	m.TranslationLatency.Observe(latencySeconds)
	if err != nil {
		m.TranslationErrors.Inc()
	}
}

// RecordTranslationSkipped records an utterance mirrored without translation.
func (m *Metrics) RecordTranslationSkipped(reason string) {
	m.TranslationSkipped.WithLabelValues(reason).Inc()
}

// RecordTranscriptSaved records a persistence attempt.
func (m *Metrics) RecordTranscriptSaved(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.TranscriptsSaved.WithLabelValues(outcome).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCCall records a served gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}
