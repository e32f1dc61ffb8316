// Package mock provides a scripted STT transcriber for testing without cloud
// credentials. Each source replays its own list of results, one result per
// received audio frame.
package mock

import (
	"context"
	"io"
	"sync"

	"interview-transcription-service/internal/credentials"
	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/service/stt"
)

// DefaultScripts provides sample results for local runs.
var DefaultScripts = map[models.Source][]stt.Result{
	models.SourceMicrophone: {
		{IsPartial: true, Words: []stt.Word{{Content: "Please", Confidence: 0.6}}},
		{Words: []stt.Word{
			{Content: "Please", Confidence: 0.95},
			{Content: "state", Confidence: 0.93},
			{Content: "your", Confidence: 0.97},
			{Content: "name", Confidence: 0.96},
		}},
		{IsPartial: true, Words: []stt.Word{{Content: "Where", Confidence: 0.5}}},
		{Words: []stt.Word{
			{Content: "Where", Confidence: 0.94},
			{Content: "were", Confidence: 0.9},
			{Content: "you", Confidence: 0.97},
			{Content: "yesterday", Confidence: 0.92},
		}},
	},
	models.SourceDisplay: {
		{IsPartial: true, Words: []stt.Word{{Content: "My", Confidence: 0.5, SpeakerTag: "1"}}},
		{Words: []stt.Word{
			{Content: "My", Confidence: 0.91, SpeakerTag: "1"},
			{Content: "name", Confidence: 0.94, SpeakerTag: "1"},
			{Content: "is", Confidence: 0.97, SpeakerTag: "1"},
			{Content: "Sam", Confidence: 0.89, SpeakerTag: "1"},
		}},
		{Words: []stt.Word{
			{Content: "I", Confidence: 0.96, SpeakerTag: "2"},
			{Content: "was", Confidence: 0.93, SpeakerTag: "2"},
			{Content: "at", Confidence: 0.95, SpeakerTag: "2"},
			{Content: "home", Confidence: 0.92, SpeakerTag: "2"},
		}},
	},
}

// Transcriber implements stt.Transcriber with scripted results.
type Transcriber struct {
	mu       sync.Mutex
	scripts  map[models.Source][]stt.Result
	failures map[models.Source][]error
	attempts map[models.Source]int
	configs  map[models.Source]stt.StreamConfig
	conns    map[models.Source]*Conn
	// FramesPerResult is how many frames must arrive before the next
	// scripted result is released. Zero releases results without audio.
	FramesPerResult int
}

// New creates a transcriber replaying DefaultScripts.
func New() *Transcriber {
	return NewWithScripts(DefaultScripts)
}

// NewWithScripts creates a transcriber replaying the given scripts.
func NewWithScripts(scripts map[models.Source][]stt.Result) *Transcriber {
	return &Transcriber{
		scripts:         scripts,
		failures:        make(map[models.Source][]error),
		attempts:        make(map[models.Source]int),
		configs:         make(map[models.Source]stt.StreamConfig),
		conns:           make(map[models.Source]*Conn),
		FramesPerResult: 1,
	}
}

func (t *Transcriber) Name() string {
	return "mock"
}

// FailConnect queues errors returned by the next connect attempts for source.
func (t *Transcriber) FailConnect(source models.Source, errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[source] = append(t.failures[source], errs...)
}

// Attempts returns how many connects were attempted for source.
func (t *Transcriber) Attempts(source models.Source) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[source]
}

// LastConfig returns the configuration of the latest connect for source.
func (t *Transcriber) LastConfig(source models.Source) (stt.StreamConfig, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cfg, ok := t.configs[source]
	return cfg, ok
}

// Conn returns the latest connection for source.
func (t *Transcriber) Conn(source models.Source) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[source]
}

// Connect opens a scripted connection.
func (t *Transcriber) Connect(ctx context.Context, cfg stt.StreamConfig, creds credentials.Credentials) (stt.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.attempts[cfg.Source]++
	if queue := t.failures[cfg.Source]; len(queue) > 0 {
		err := queue[0]
		t.failures[cfg.Source] = queue[1:]
		return nil, err
	}

	t.configs[cfg.Source] = cfg
	c := newConn(t.scripts[cfg.Source], t.FramesPerResult)
	t.conns[cfg.Source] = c
	return c, nil
}

// Conn is a scripted stt.Conn. Results can also be injected with Emit.
type Conn struct {
	mu              sync.Mutex
	cond            *sync.Cond
	script          []stt.Result
	queue           []stt.Result
	framesPerResult int
	frames          int
	bytes           int
	err             error
	closed          bool
}

func newConn(script []stt.Result, framesPerResult int) *Conn {
	c := &Conn{
		script:          append([]stt.Result(nil), script...),
		framesPerResult: framesPerResult,
	}
	c.cond = sync.NewCond(&c.mu)
	if framesPerResult <= 0 {
		c.queue, c.script = c.script, nil
	}
	return c
}

// Send counts the frame and releases the next scripted result when due.
func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return io.ErrClosedPipe
	}
	c.frames++
	c.bytes += len(frame)
	if c.framesPerResult > 0 && c.frames%c.framesPerResult == 0 && len(c.script) > 0 {
		c.queue = append(c.queue, c.script[0])
		c.script = c.script[1:]
		c.cond.Broadcast()
	}
	return nil
}

// Emit injects a result as if the service had produced it.
func (c *Conn) Emit(r stt.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, r)
	c.cond.Broadcast()
}

// Drop makes Recv fail with err, simulating a mid-session disconnect.
func (c *Conn) Drop(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	c.cond.Broadcast()
}

// Recv returns the next queued result.
func (c *Conn) Recv() (*stt.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.queue) == 0 && c.err == nil && !c.closed {
		c.cond.Wait()
	}
	if len(c.queue) > 0 {
		r := c.queue[0]
		c.queue = c.queue[1:]
		return &r, nil
	}
	if c.err != nil {
		return nil, c.err
	}
	return nil, io.EOF
}

// Close ends the connection. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
	return nil
}

// Frames returns the number of frames received.
func (c *Conn) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
