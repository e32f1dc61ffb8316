// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"interview-transcription-service/internal/credentials"
	"interview-transcription-service/internal/service/stt"
)

// Config holds Google STT settings that apply to every connection.
type Config struct {
	Model                      string
	EnableAutomaticPunctuation bool
	// ClientOptions are appended to the credential options, mainly for tests
	// and regional endpoints.
	ClientOptions []option.ClientOption
}

// DefaultConfig returns default Google STT settings.
func DefaultConfig() Config {
	return Config{
		Model:                      "latest_long",
		EnableAutomaticPunctuation: true,
	}
}

// Transcriber implements stt.Transcriber using Google Cloud Speech-to-Text.
// A client is created per connection so each recording uses its own
// credentials.
type Transcriber struct {
	cfg Config
}

// New creates a new Google STT transcriber.
func New(cfg Config) *Transcriber {
	return &Transcriber{cfg: cfg}
}

func (t *Transcriber) Name() string {
	return "google"
}

// Connect opens a StreamingRecognize stream and sends the config as the first
// message. A non-empty session token is used as the OAuth bearer token;
// otherwise Application Default Credentials apply.
func (t *Transcriber) Connect(ctx context.Context, cfg stt.StreamConfig, creds credentials.Credentials) (stt.Conn, error) {
	client, err := speech.NewClient(ctx, clientOptions(creds, t.cfg.ClientOptions)...)
	if err != nil {
		return nil, err
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: buildStreamingConfig(cfg, t.cfg),
		},
	})
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, err
	}

	return &conn{client: client, stream: stream, diarized: cfg.EnableDiarization}, nil
}

type conn struct {
	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient

	// one response may carry several results
	pending []*stt.Result

	// diarized finals repeat every word since the stream began; wordsEnd is
	// the end offset of the last word already delivered
	diarized bool
	wordsEnd time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (c *conn) Send(frame []byte) error {
	return c.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: frame,
		},
	})
}

func (c *conn) Recv() (*stt.Result, error) {
	for len(c.pending) == 0 {
		resp, err := c.stream.Recv()
		if err != nil {
			return nil, err
		}
		if resp.Error != nil && resp.Error.Code != 0 {
			return nil, fmt.Errorf("speech: %s", resp.Error.Message)
		}
		for _, r := range resp.Results {
			if c.diarized && r.IsFinal && len(r.Alternatives) > 0 {
				r = c.trimDelivered(r)
			}
			if res := convertResult(r); res != nil {
				c.pending = append(c.pending, res)
			}
		}
	}
	r := c.pending[0]
	c.pending = c.pending[1:]
	return r, nil
}

// trimDelivered returns r with the words of earlier finals removed.
func (c *conn) trimDelivered(r *speechpb.StreamingRecognitionResult) *speechpb.StreamingRecognitionResult {
	alt := r.Alternatives[0]
	words, end := newWords(alt.Words, c.wordsEnd)
	c.wordsEnd = end
	return &speechpb.StreamingRecognitionResult{
		IsFinal:      r.IsFinal,
		LanguageCode: r.LanguageCode,
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{
			Transcript: alt.Transcript,
			Confidence: alt.Confidence,
			Words:      words,
		}},
	}
}

// newWords keeps the words ending after the given offset, plus words without
// time offsets, and returns the latest end offset seen.
func newWords(words []*speechpb.WordInfo, after time.Duration) ([]*speechpb.WordInfo, time.Duration) {
	end := after
	var out []*speechpb.WordInfo
	for _, w := range words {
		if w.EndTime == nil {
			out = append(out, w)
			continue
		}
		we := w.EndTime.AsDuration()
		if we <= after {
			continue
		}
		out = append(out, w)
		if we > end {
			end = we
		}
	}
	return out, end
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		if err := c.stream.CloseSend(); err != nil && err != io.EOF {
			c.closeErr = err
		}
		if err := c.client.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}

func clientOptions(creds credentials.Credentials, extra []option.ClientOption) []option.ClientOption {
	var opts []option.ClientOption
	if creds.SessionToken != "" {
		tok := &oauth2.Token{AccessToken: creds.SessionToken, TokenType: "Bearer"}
		if !creds.Expires.IsZero() {
			tok.Expiry = creds.Expires
		}
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	}
	if creds.AccessKey != "" {
		opts = append(opts, option.WithQuotaProject(creds.AccessKey))
	}
	return append(opts, extra...)
}

func buildStreamingConfig(cfg stt.StreamConfig, g Config) *speechpb.StreamingRecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(cfg.AudioEncoding),
		SampleRateHertz:            int32(cfg.SampleRateHz),
		LanguageCode:               cfg.LanguageCode,
		EnableWordConfidence:       true,
		EnableAutomaticPunctuation: g.EnableAutomaticPunctuation,
		Model:                      g.Model,
	}

	if cfg.IdentifyLanguage && len(cfg.CandidateLanguages) > 0 {
		rc.LanguageCode = cfg.CandidateLanguages[0]
		rc.AlternativeLanguageCodes = append([]string(nil), cfg.CandidateLanguages[1:]...)
	}

	if cfg.EnableDiarization {
		maxSpeakers := cfg.MaxSpeakers
		if maxSpeakers < 2 {
			maxSpeakers = 2
		}
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          2,
			MaxSpeakerCount:          int32(maxSpeakers),
		}
	}

	return &speechpb.StreamingRecognitionConfig{
		Config:         rc,
		InterimResults: cfg.InterimResults,
	}
}

func convertResult(r *speechpb.StreamingRecognitionResult) *stt.Result {
	if len(r.Alternatives) == 0 {
		return nil
	}
	alt := r.Alternatives[0]

	res := &stt.Result{
		IsPartial:    !r.IsFinal,
		Transcript:   alt.Transcript,
		LanguageCode: r.LanguageCode,
	}
	for _, w := range alt.Words {
		word := stt.Word{Content: w.Word, Confidence: float64(w.Confidence)}
		if w.SpeakerTag > 0 {
			word.SpeakerTag = strconv.Itoa(int(w.SpeakerTag))
		}
		res.Words = append(res.Words, word)
	}

	// without word info, fall back to the transcript split on whitespace
	if len(res.Words) == 0 {
		for _, f := range strings.Fields(alt.Transcript) {
			res.Words = append(res.Words, stt.Word{Content: f, Confidence: float64(alt.Confidence)})
		}
	}
	return res
}

// parseAudioEncoding converts a string encoding name to the Google Speech enum.
func parseAudioEncoding(encoding string) speechpb.RecognitionConfig_AudioEncoding {
	switch encoding {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
