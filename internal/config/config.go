// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"interview-transcription-service/internal/models"
)

// Config is the full service configuration.
type Config struct {
	Service       ServiceConfig
	STT           STTConfig
	Retry         RetryConfig
	Capture       CaptureConfig
	Labels        LabelConfig
	Translation   TranslationConfig
	Credentials   CredentialsConfig
	Kafka         KafkaConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	GRPCPort    string
	MetricsAddr string
	Env         string
}

type STTConfig struct {
	Provider           string // mock, google
	SampleRateHz       int
	AudioEncoding      string
	CandidateLanguages []string
	MaxSpeakers        int
}

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

type CaptureConfig struct {
	AcquireTimeout time.Duration
	TrackBuffer    int
}

// LabelConfig holds the speaker labels attached to events.
type LabelConfig struct {
	Investigator string
	Participant  string
	SpeakerRole  string
}

type TranslationConfig struct {
	Provider    string // gemini, none
	Model       string
	APIKey      string
	Timeout     time.Duration
	MaxInFlight int
}

type CredentialsConfig struct {
	Provider     string // static, google
	AccessKey    string
	SecretKey    string
	SessionToken string
}

type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicUtterance  string
	TopicTranscript string
	Principal       string
}

type StorageConfig struct {
	SQLitePath string
}

type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// DefaultCandidateLanguages is used for language identification when the
// caller supplies no candidates.
var DefaultCandidateLanguages = models.DefaultCandidateLanguages

// Load reads the configuration from the environment. Unparseable values fall
// back to their defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-interview-transcription")

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
			Env:         envOrDefault("ENV", "prod"),
		},
		STT: STTConfig{
			Provider:           envOrDefault("STT_PROVIDER", "mock"),
			SampleRateHz:       envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			AudioEncoding:      envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			CandidateLanguages: envOrDefaultList("STT_CANDIDATE_LANGUAGES", DefaultCandidateLanguages),
			MaxSpeakers:        envOrDefaultInt("STT_MAX_SPEAKERS", 6),
		},
		Retry: RetryConfig{
			MaxAttempts: envOrDefaultInt("CONNECT_MAX_ATTEMPTS", 10),
			Delay:       envOrDefaultDuration("CONNECT_RETRY_DELAY", time.Second),
		},
		Capture: CaptureConfig{
			AcquireTimeout: envOrDefaultDuration("CAPTURE_ACQUIRE_TIMEOUT", 30*time.Second),
			TrackBuffer:    envOrDefaultInt("CAPTURE_TRACK_BUFFER", 64),
		},
		Labels: LabelConfig{
			Investigator: envOrDefault("LABEL_INVESTIGATOR", "Investigator"),
			Participant:  envOrDefault("LABEL_PARTICIPANT", "Witness"),
			SpeakerRole:  envOrDefault("LABEL_SPEAKER_ROLE", "Speaker"),
		},
		Translation: TranslationConfig{
			Provider:    envOrDefault("TRANSLATION_PROVIDER", "none"),
			Model:       envOrDefault("TRANSLATION_MODEL", "gemini-2.0-flash"),
			APIKey:      os.Getenv("GEMINI_API_KEY"),
			Timeout:     envOrDefaultDuration("TRANSLATION_TIMEOUT", 5*time.Second),
			MaxInFlight: envOrDefaultInt("TRANSLATION_MAX_IN_FLIGHT", 4),
		},
		Credentials: CredentialsConfig{
			Provider:     envOrDefault("CREDENTIALS_PROVIDER", "static"),
			AccessKey:    os.Getenv("STT_ACCESS_KEY"),
			SecretKey:    os.Getenv("STT_SECRET_KEY"),
			SessionToken: os.Getenv("STT_SESSION_TOKEN"),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			TopicUtterance:  envOrDefault("KAFKA_TOPIC_UTTERANCE", "interview.utterance.rendered"),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "interview.transcript.finalized"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Storage: StorageConfig{
			SQLitePath: envOrDefault("SQLITE_PATH", "transcripts.db"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
