package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"interview-transcription-service/internal/capture"
	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/service/audio"
)

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastReachesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	u := models.RenderedUtterance{SessionID: "sess-1", Sequence: 1, Speaker: "Investigator", OriginalText: "Hello"}
	if err := hub.Broadcast(MessageTypeUtterance, u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var msg struct {
		Type string                   `json:"type"`
		Data models.RenderedUtterance `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid message: %v", err)
	}
	if msg.Type != MessageTypeUtterance || msg.Data.OriginalText != "Hello" || msg.Data.Sequence != 1 {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	if err := hub.Broadcast(MessageTypeStatus, map[string]string{"status": "on"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	cancel()
	<-hub.done
	if err := hub.Broadcast(MessageTypeStatus, map[string]string{"status": "off"}); err != nil {
		t.Errorf("broadcast after stop should be a no-op, got %v", err)
	}
}

func TestHub_BroadcastRejectsUnmarshalable(t *testing.T) {
	hub := NewHub()
	if err := hub.Broadcast(MessageTypeStatus, make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func newIngestServer(registry *capture.Registry) *httptest.Server {
	ingest := NewIngest(registry, 16)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source, err := models.ParseSource(strings.TrimPrefix(r.URL.Path, "/"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ingest.Handle(w, r, source)
	}))
}

func TestIngest_PushesSamplesIntoFeed(t *testing.T) {
	registry := capture.NewRegistry(2 * time.Second)
	server := newIngestServer(registry)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/microphone"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	handle, err := registry.Acquire(context.Background(), models.SourceMicrophone)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if len(handle.AudioTracks()) != 1 {
		t.Fatalf("expected 1 audio track, got %d", len(handle.AudioTracks()))
	}

	samples := []float32{0.25, -0.5, 1}
	if err := conn.WriteMessage(websocket.BinaryMessage, audio.EncodeFloat32LE(samples)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case got := <-handle.AudioTracks()[0].Samples():
		if len(got) != 3 || got[0] != 0.25 || got[1] != -0.5 || got[2] != 1 {
			t.Errorf("unexpected samples %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("samples never arrived")
	}

	// releasing the handle closes the client connection
	handle.Stop()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestIngest_DisplayWithoutAudio(t *testing.T) {
	registry := capture.NewRegistry(2 * time.Second)
	server := newIngestServer(registry)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/display?audio=0"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	handle, err := registry.Acquire(context.Background(), models.SourceDisplay)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if len(handle.AudioTracks()) != 0 {
		t.Errorf("expected no audio tracks, got %d", len(handle.AudioTracks()))
	}
	handle.Stop()
}

func TestIngest_ClientDisconnectStopsFeed(t *testing.T) {
	registry := capture.NewRegistry(2 * time.Second)
	server := newIngestServer(registry)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/microphone"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	handle, err := registry.Acquire(context.Background(), models.SourceMicrophone)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"end"}`))
	conn.Close()

	waitFor(t, func() bool { return !handle.Active() })
}

func TestIngest_RejectsSecondFeed(t *testing.T) {
	registry := capture.NewRegistry(time.Second)
	if err := registry.Attach(capture.NewFeed(models.SourceMicrophone, 1, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	server := newIngestServer(registry)
	defer server.Close()

	resp, err := http.Get(server.URL + "/microphone")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestIngest_InvalidTrackCount(t *testing.T) {
	registry := capture.NewRegistry(time.Second)
	server := newIngestServer(registry)
	defer server.Close()

	resp, err := http.Get(server.URL + "/display?audio=-1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestIngest_DenyFailsAcquire(t *testing.T) {
	registry := capture.NewRegistry(time.Second)
	ingest := NewIngest(registry, 1)

	go func() {
		for !registry.Waiting(models.SourceDisplay) {
			time.Sleep(5 * time.Millisecond)
		}
		ingest.Deny(models.SourceDisplay)
	}()
	if _, err := registry.Acquire(context.Background(), models.SourceDisplay); !errors.Is(err, capture.ErrPermissionDenied) {
		t.Errorf("expected permission error, got %v", err)
	}
}
