package mock

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"interview-transcription-service/internal/credentials"
	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/service/stt"
)

func TestTranscriber_Connect(t *testing.T) {
	tr := New()
	if tr.Name() != "mock" {
		t.Errorf("expected name 'mock', got %s", tr.Name())
	}

	cfg := stt.StreamConfig{Source: models.SourceMicrophone, LanguageCode: "en-US"}
	conn, err := tr.Connect(context.Background(), cfg, credentials.Credentials{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()

	if tr.Attempts(models.SourceMicrophone) != 1 {
		t.Errorf("expected 1 attempt, got %d", tr.Attempts(models.SourceMicrophone))
	}
	got, ok := tr.LastConfig(models.SourceMicrophone)
	if !ok || got.LanguageCode != "en-US" {
		t.Errorf("expected recorded config, got %+v", got)
	}
}

func TestTranscriber_ConnectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Connect(ctx, stt.StreamConfig{Source: models.SourceDisplay}, credentials.Credentials{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestTranscriber_FailConnect(t *testing.T) {
	tr := New()
	boom := errors.New("unavailable")
	tr.FailConnect(models.SourceDisplay, boom, boom)

	cfg := stt.StreamConfig{Source: models.SourceDisplay}
	for i := 0; i < 2; i++ {
		if _, err := tr.Connect(context.Background(), cfg, credentials.Credentials{}); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected queued failure, got %v", i+1, err)
		}
	}
	if _, err := tr.Connect(context.Background(), cfg, credentials.Credentials{}); err != nil {
		t.Fatalf("expected third attempt to succeed, got %v", err)
	}
	if tr.Attempts(models.SourceDisplay) != 3 {
		t.Errorf("expected 3 attempts, got %d", tr.Attempts(models.SourceDisplay))
	}
	if tr.Attempts(models.SourceMicrophone) != 0 {
		t.Error("failures must not leak to the other source")
	}
}

func TestConn_ReleasesOneResultPerFrame(t *testing.T) {
	script := []stt.Result{
		{IsPartial: true, Transcript: "hel"},
		{Transcript: "hello", Words: []stt.Word{{Content: "hello", Confidence: 0.9}}},
	}
	c := newConn(script, 1)

	if err := c.Send([]byte{0, 0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r, err := c.Recv()
	if err != nil || !r.IsPartial {
		t.Fatalf("expected partial first, got %+v %v", r, err)
	}

	c.Send([]byte{0, 0})
	r, err = c.Recv()
	if err != nil || r.IsPartial || r.Transcript != "hello" {
		t.Fatalf("expected final second, got %+v %v", r, err)
	}
	if c.Frames() != 2 {
		t.Errorf("expected 2 frames, got %d", c.Frames())
	}
}

func TestConn_ZeroFramesPerResult(t *testing.T) {
	c := newConn([]stt.Result{{Transcript: "a"}, {Transcript: "b"}}, 0)

	for _, want := range []string{"a", "b"} {
		r, err := c.Recv()
		if err != nil || r.Transcript != want {
			t.Fatalf("expected %q, got %+v %v", want, r, err)
		}
	}
}

func TestConn_CloseUnblocksRecv(t *testing.T) {
	c := newConn(nil, 1)

	done := make(chan error, 1)
	go func() {
		_, err := c.Recv()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("expected io.EOF after close, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Recv did not return after Close")
	}

	if err := c.Send([]byte{1}); err == nil {
		t.Error("expected Send after Close to fail")
	}
	if !c.Closed() {
		t.Error("expected Closed to report true")
	}
}

func TestConn_DropAndEmit(t *testing.T) {
	c := newConn(nil, 1)
	c.Emit(stt.Result{Transcript: "injected"})

	r, err := c.Recv()
	if err != nil || r.Transcript != "injected" {
		t.Fatalf("expected injected result, got %+v %v", r, err)
	}

	boom := errors.New("connection reset")
	c.Drop(boom)
	if _, err := c.Recv(); !errors.Is(err, boom) {
		t.Errorf("expected dropped error, got %v", err)
	}
}
