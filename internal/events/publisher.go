// Package events publishes rendered utterances and finalized transcripts to
// Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/observability/metrics"
	"interview-transcription-service/internal/schema"
)

// messageWriter is the subset of *kafka.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes live utterances and finalized transcripts to separate
// Kafka topics. It also serves as a transcript.Saver.
type Publisher struct {
	writerUtterance  messageWriter
	writerTranscript messageWriter
	principal        string
	topicUtterance   string
	topicTranscript  string
	enabled          bool
	validator        *schema.Validator
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicUtterance  string
	TopicTranscript string
	Principal       string
	Enabled         bool
}

// New creates a Kafka publisher. When Kafka is disabled or has no brokers
// the publisher only logs.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			validator: schema.New(),
			metrics:   m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicUtterance:  cfg.TopicUtterance,
			topicTranscript: cfg.TopicTranscript,
			enabled:         false,
			validator:       schema.New(),
			metrics:         m,
		}
	}

	// Custom dialer with longer timeouts for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicUtterance", cfg.TopicUtterance).
		Str("topicTranscript", cfg.TopicTranscript).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerUtterance:  newWriter(cfg.TopicUtterance),
		writerTranscript: newWriter(cfg.TopicTranscript),
		principal:        cfg.Principal,
		topicUtterance:   cfg.TopicUtterance,
		topicTranscript:  cfg.TopicTranscript,
		enabled:          true,
		validator:        schema.New(),
		metrics:          m,
	}
}

// Enabled reports whether messages reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishUtterance publishes one rendered utterance keyed by session ID, so
// a session's utterances stay ordered within a partition.
func (p *Publisher) PublishUtterance(ctx context.Context, u models.RenderedUtterance) error {
	if err := p.validator.Validate(u); err != nil {
		return err
	}
	return p.publish(ctx, p.writerUtterance, p.topicUtterance, models.EventTypeUtterance, u.SessionID, u)
}

// Save publishes a finalized transcript. It implements transcript.Saver.
func (p *Publisher) Save(ctx context.Context, t models.Transcript) error {
	if err := p.validator.Validate(t); err != nil {
		return err
	}
	return p.publish(ctx, p.writerTranscript, p.topicTranscript, models.EventTypeTranscript, t.SessionID, t)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerUtterance != nil {
		if e := p.writerUtterance.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing utterance writer")
			err = e
		}
	}
	if p.writerTranscript != nil {
		if e := p.writerTranscript.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcript writer")
			err = e
		}
	}
	return err
}
