package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"interview-transcription-service/internal/app"
	"interview-transcription-service/internal/capture"
	"interview-transcription-service/internal/config"
	"interview-transcription-service/internal/credentials"
	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/service/session"
	"interview-transcription-service/internal/service/stt/mock"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.Application) {
	t.Helper()
	cfg := &config.Config{
		STT:     config.STTConfig{SampleRateHz: 16000, AudioEncoding: "LINEAR16"},
		Retry:   config.RetryConfig{MaxAttempts: 1},
		Capture: config.CaptureConfig{AcquireTimeout: time.Second, TrackBuffer: 16},
	}
	tr := mock.New()
	tr.FramesPerResult = 0

	a := app.NewWithDeps(cfg, app.Deps{Transcriber: tr, Credentials: credentials.Static{}})
	if err := a.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	server := httptest.NewServer(NewRouter(a))
	t.Cleanup(func() {
		server.Close()
		a.Shutdown(context.Background())
	})
	return server, a
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	for _, path := range []string{"/v1/liveness", "/v1/readiness"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestRecordingLifecycle(t *testing.T) {
	server, a := newTestServer(t)
	a.Registry.Attach(capture.NewFeed(models.SourceMicrophone, 1, 16))
	a.Registry.Attach(capture.NewFeed(models.SourceDisplay, 1, 16))

	resp := post(t, server.URL+"/v1/recordings",
		`{"caseId":"case-7","language":{"mode":"unified","unified":"en-US"}}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var started map[string]string
	json.NewDecoder(resp.Body).Decode(&started)
	if started["sessionId"] == "" {
		t.Fatal("expected a session ID")
	}

	resp = post(t, server.URL+"/v1/recordings/current/pause", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("pause: expected 200, got %d", resp.StatusCode)
	}
	if a.RecordingStatus().Status != session.StatusPaused {
		t.Errorf("expected paused, got %s", a.RecordingStatus().Status)
	}

	resp = post(t, server.URL+"/v1/recordings/current/resume", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("resume: expected 200, got %d", resp.StatusCode)
	}

	statusResp, err := http.Get(server.URL + "/v1/recordings/current")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var st app.Status
	json.NewDecoder(statusResp.Body).Decode(&st)
	statusResp.Body.Close()
	if st.Status != session.StatusOn || st.SessionID != started["sessionId"] || st.CaseID != "case-7" {
		t.Errorf("unexpected status %+v", st)
	}

	resp = post(t, server.URL+"/v1/recordings/current/stop", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", resp.StatusCode)
	}
	var tr models.Transcript
	json.NewDecoder(resp.Body).Decode(&tr)
	if tr.SessionID != started["sessionId"] || tr.Metadata.MessageCount != len(tr.Utterances) {
		t.Errorf("unexpected transcript %+v", tr)
	}

	resp = post(t, server.URL+"/v1/recordings/current/stop", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second stop: expected 404, got %d", resp.StatusCode)
	}
}

func TestStartRecording_Errors(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed body", `{`, http.StatusBadRequest},
		{"missing case", `{"language":{"mode":"auto"}}`, http.StatusBadRequest},
		{"invalid preference", `{"caseId":"c","language":{"mode":"split"}}`, http.StatusBadRequest},
		{"no capture source", `{"caseId":"c","language":{"mode":"auto"}}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, server.URL+"/v1/recordings", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestStartRecording_DeviceErrorBody(t *testing.T) {
	server, a := newTestServer(t)
	a.Registry.Attach(capture.NewFeed(models.SourceMicrophone, 1, 16))

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for !a.Registry.Waiting(models.SourceDisplay) && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		deny, err := http.Post(server.URL+"/v1/capture/display/deny", "application/json", nil)
		if err == nil {
			deny.Body.Close()
		}
	}()

	resp := post(t, server.URL+"/v1/recordings", `{"caseId":"c","language":{"mode":"unified","unified":"en-US"}}`)
	defer resp.Body.Close()

	var body errorResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Kind != models.KindDevice || body.Source != models.SourceDisplay || body.Message == "" {
		t.Errorf("unexpected error body %+v", body)
	}
}

func TestDenyCapture_NoContent(t *testing.T) {
	server, _ := newTestServer(t)

	resp := post(t, server.URL+"/v1/capture/display/deny", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
}

func TestPause_WithoutRecording(t *testing.T) {
	server, _ := newTestServer(t)

	resp := post(t, server.URL+"/v1/recordings/current/pause", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSavedTranscript_NoStore(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/v1/recordings/abc")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", resp.StatusCode)
	}
}

func TestCapture_UnknownSource(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/v1/capture/camera")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"active", app.ErrRecordingActive, http.StatusConflict},
		{"transition", session.ErrInvalidTransition, http.StatusConflict},
		{"none", app.ErrNoRecording, http.StatusNotFound},
		{"auth", models.NewError(models.KindAuth, "", models.StageCredentials, errors.New("expired")), http.StatusUnauthorized},
		{"network", models.NewError(models.KindNetwork, models.SourceMicrophone, models.StageConnect, errors.New("refused")), http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}
