package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"interview-transcription-service/internal/capture"
	"interview-transcription-service/internal/config"
	"interview-transcription-service/internal/credentials"
	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/service/session"
	"interview-transcription-service/internal/service/stt/mock"
	"interview-transcription-service/internal/service/translation"
	"interview-transcription-service/internal/storage/sqlite"
)

var splitRequest = StartRequest{
	CaseID:      "case-42",
	Language:    models.LanguagePreference{Mode: models.LanguageSplit, Investigator: "en-US", Participant: "ar-SA"},
	SessionType: models.SessionStandard,
}

func testConfig() *config.Config {
	return &config.Config{
		STT: config.STTConfig{
			SampleRateHz:  16000,
			AudioEncoding: "LINEAR16",
		},
		Retry:   config.RetryConfig{MaxAttempts: 1},
		Capture: config.CaptureConfig{AcquireTimeout: 2 * time.Second, TrackBuffer: 16},
		Labels: config.LabelConfig{
			Investigator: "Investigator",
			Participant:  "Witness",
			SpeakerRole:  "Speaker",
		},
		Translation: config.TranslationConfig{Timeout: time.Second, MaxInFlight: 2},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*Application, *mock.Transcriber, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	tr := mock.New()
	tr.FramesPerResult = 0

	a := NewWithDeps(cfg, Deps{
		Transcriber: tr,
		Credentials: credentials.Static{},
		Translator: translation.TranslatorFunc(func(ctx context.Context, text, src, tgt string) (string, error) {
			return "[" + tgt + "] " + text, nil
		}),
		Store: store,
	})
	if err := a.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a, tr, store
}

func attachFeeds(t *testing.T, a *Application, displayTracks int) (*capture.Feed, *capture.Feed) {
	t.Helper()
	mic := capture.NewFeed(models.SourceMicrophone, 1, 16)
	display := capture.NewFeed(models.SourceDisplay, displayTracks, 16)
	if err := a.Registry.Attach(mic); err != nil {
		t.Fatalf("attach microphone: %v", err)
	}
	if err := a.Registry.Attach(display); err != nil {
		t.Fatalf("attach display: %v", err)
	}
	return mic, display
}

func waitForUtterances(t *testing.T, a *Application, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for len(a.Utterances()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d utterances, got %d", n, len(a.Utterances()))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRecording_EndToEnd(t *testing.T) {
	a, _, store := newTestApp(t, testConfig())
	mic, display := attachFeeds(t, a, 1)

	sessionID, err := a.StartRecording(context.Background(), splitRequest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected a session ID")
	}
	if got := a.RecordingStatus(); got.Status != session.StatusOn || got.SessionID != sessionID || got.StartedAt == nil {
		t.Errorf("unexpected status %+v", got)
	}

	waitForUtterances(t, a, 4)

	tr, err := a.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if tr.SessionID != sessionID || tr.CaseID != "case-42" {
		t.Errorf("unexpected transcript identity %+v", tr)
	}
	if tr.Metadata.MessageCount != 4 || len(tr.Utterances) != 4 {
		t.Fatalf("expected 4 utterances, got %d", len(tr.Utterances))
	}

	for i, u := range tr.Utterances {
		if u.Sequence != i+1 {
			t.Errorf("utterance %d has sequence %d", i, u.Sequence)
		}
		switch u.Source {
		case models.SourceMicrophone:
			if u.Speaker != "Investigator" || !strings.HasPrefix(u.ParticipantDisplay, "[ar-SA] ") || u.InvestigatorDisplay != u.OriginalText {
				t.Errorf("unexpected microphone utterance %+v", u)
			}
		case models.SourceDisplay:
			if u.Speaker != "Witness" || !strings.HasPrefix(u.InvestigatorDisplay, "[en-US] ") || u.ParticipantDisplay != u.OriginalText {
				t.Errorf("unexpected display utterance %+v", u)
			}
		}
	}

	saved, err := store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("transcript not persisted: %v", err)
	}
	if len(saved.Utterances) != 4 {
		t.Errorf("expected 4 persisted utterances, got %d", len(saved.Utterances))
	}

	if mic.Active() || display.Active() {
		t.Error("expected capture feeds to be released")
	}
	if got := a.RecordingStatus(); got.Status != session.StatusOff || got.SessionID != sessionID || got.Utterances != 4 {
		t.Errorf("unexpected status after stop %+v", got)
	}
}

func TestRecording_StopTwice(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig())
	attachFeeds(t, a, 1)

	if _, err := a.StartRecording(context.Background(), splitRequest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := a.StopRecording(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := a.StopRecording(context.Background()); !errors.Is(err, ErrNoRecording) {
		t.Errorf("expected ErrNoRecording, got %v", err)
	}
}

func TestRecording_StartWhileActive(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig())
	attachFeeds(t, a, 1)

	if _, err := a.StartRecording(context.Background(), splitRequest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := a.StartRecording(context.Background(), splitRequest); !errors.Is(err, ErrRecordingActive) {
		t.Errorf("expected ErrRecordingActive, got %v", err)
	}
}

func TestRecording_DisplayWithoutAudio(t *testing.T) {
	a, tr, _ := newTestApp(t, testConfig())
	mic, _ := attachFeeds(t, a, 0)

	_, err := a.StartRecording(context.Background(), splitRequest)
	var serr *models.SessionError
	if !errors.As(err, &serr) || serr.Kind != models.KindDevice || serr.Source != models.SourceDisplay {
		t.Fatalf("expected display device error, got %v", err)
	}
	if tr.Attempts(models.SourceMicrophone) != 0 {
		t.Error("expected no connect before display audio validation")
	}
	if mic.Active() {
		t.Error("expected microphone to be released")
	}

	st := a.RecordingStatus()
	if st.Status != session.StatusOff || st.Error == "" {
		t.Errorf("expected off with a user message, got %+v", st)
	}
}

func TestRecording_NoCaptureSource(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.AcquireTimeout = 20 * time.Millisecond
	a, _, _ := newTestApp(t, cfg)

	_, err := a.StartRecording(context.Background(), splitRequest)
	if !models.IsKind(err, models.KindDevice) {
		t.Fatalf("expected device error, got %v", err)
	}
	if _, err := a.StopRecording(context.Background()); !errors.Is(err, ErrNoRecording) {
		t.Errorf("expected ErrNoRecording after failed start, got %v", err)
	}
}

func TestRecording_InvalidRequest(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig())

	tests := []struct {
		name string
		req  StartRequest
	}{
		{"missing case", StartRequest{Language: splitRequest.Language}},
		{"missing languages", StartRequest{CaseID: "c", Language: models.LanguagePreference{Mode: models.LanguageSplit}}},
		{"unknown mode", StartRequest{CaseID: "c", Language: models.LanguagePreference{Mode: "both"}}},
		{"unknown session type", StartRequest{CaseID: "c", Language: splitRequest.Language, SessionType: "panel"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.StartRecording(context.Background(), tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestRecording_PauseResume(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig())

	if err := a.PauseRecording(true); !errors.Is(err, ErrNoRecording) {
		t.Errorf("expected ErrNoRecording, got %v", err)
	}

	attachFeeds(t, a, 1)
	if _, err := a.StartRecording(context.Background(), splitRequest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := a.PauseRecording(true); err != nil {
		t.Fatalf("unexpected pause error: %v", err)
	}
	if got := a.RecordingStatus().Status; got != session.StatusPaused {
		t.Errorf("expected paused, got %s", got)
	}
	if err := a.PauseRecording(false); err != nil {
		t.Fatalf("unexpected resume error: %v", err)
	}
	if got := a.RecordingStatus().Status; got != session.StatusOn {
		t.Errorf("expected on, got %s", got)
	}
}

func TestUserMessage(t *testing.T) {
	serr := models.NewError(models.KindAuth, "", models.StageCredentials, errors.New("expired"))
	if got := userMessage(serr); got != serr.UserMessage() {
		t.Errorf("expected session error message, got %q", got)
	}
	if got := userMessage(errors.New("boom")); got != "boom" {
		t.Errorf("expected plain error text, got %q", got)
	}
}
