package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"interview-transcription-service/internal/capture"
	"interview-transcription-service/internal/credentials"
	"interview-transcription-service/internal/models"
)

func TestLifecycle_Transitions(t *testing.T) {
	lc := NewLifecycle()
	if lc.State() != StateIdle {
		t.Fatalf("expected IDLE, got %v", lc.State())
	}
	if err := lc.MarkConnected(); err != ErrNotConnecting {
		t.Errorf("expected ErrNotConnecting from IDLE, got %v", err)
	}
	if err := lc.BeginConnect(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := lc.BeginConnect(); err != ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	if err := lc.MarkConnected(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.State() != StateConnected {
		t.Errorf("expected CONNECTED, got %v", lc.State())
	}
	if !lc.Close() {
		t.Error("expected first Close to transition")
	}
	if lc.Close() {
		t.Error("expected second Close to be a no-op")
	}
	if err := lc.BeginConnect(); err != ErrSessionClosed {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestLifecycle_CloseWhileConnecting(t *testing.T) {
	lc := NewLifecycle()
	lc.BeginConnect()
	lc.Close()

	if err := lc.MarkConnected(); err != ErrSessionClosed {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if !lc.IsClosed() {
		t.Error("expected closed")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateClosed, "CLOSED"},
		{State(42), "UNKNOWN(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestRetryPolicy_Decide(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Delay: time.Second}
	network := models.NewError(models.KindNetwork, models.SourceMicrophone, models.StageConnect, errors.New("refused"))
	service := models.NewError(models.KindService, models.SourceMicrophone, models.StageConnect, errors.New("bad"))
	auth := models.NewError(models.KindAuth, models.SourceMicrophone, models.StageConnect, errors.New("expired"))
	device := models.NewError(models.KindDevice, models.SourceMicrophone, models.StageConnect, errors.New("gone"))

	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		err     error
		want    Decision
	}{
		{"success", p, 1, nil, Connected},
		{"success on last attempt", p, 3, nil, Connected},
		{"network retried", p, 1, network, Retry},
		{"service retried", p, 2, service, Retry},
		{"budget exhausted", p, 3, network, Fail},
		{"auth never retried", p, 1, auth, Fail},
		{"device never retried", p, 1, device, Fail},
		{"cancelled", p, 1, fmt.Errorf("connect: %w", context.Canceled), Fail},
		{"zero budget means one attempt", RetryPolicy{}, 1, network, Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Decide(tt.attempt, tt.err); got != tt.want {
				t.Errorf("Decide(%d, %v) = %v, want %v", tt.attempt, tt.err, got, tt.want)
			}
		})
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClassify(t *testing.T) {
	existing := models.NewError(models.KindDevice, models.SourceDisplay, models.StageValidate, nil)

	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"unauthenticated", status.Error(codes.Unauthenticated, "token expired"), models.KindAuth},
		{"permission denied", status.Error(codes.PermissionDenied, "no access"), models.KindAuth},
		{"unavailable", status.Error(codes.Unavailable, "connection refused"), models.KindNetwork},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), models.KindNetwork},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad config"), models.KindService},
		{"context deadline", context.DeadlineExceeded, models.KindNetwork},
		{"net error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route")}, models.KindNetwork},
		{"econnrefused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), models.KindNetwork},
		{"no credentials", credentials.ErrNoCredentials, models.KindAuth},
		{"no device", capture.ErrNoDevice, models.KindDevice},
		{"plain", errors.New("something odd"), models.KindService},
		{"existing kept", fmt.Errorf("wrapped: %w", existing), models.KindDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, models.SourceMicrophone, models.StageConnect)
			if got.Kind != tt.want {
				t.Errorf("Classify(%v).Kind = %s, want %s", tt.err, got.Kind, tt.want)
			}
		})
	}

	if Classify(nil, models.SourceMicrophone, models.StageConnect) != nil {
		t.Error("expected nil for nil error")
	}
	if got := Classify(existing, models.SourceMicrophone, models.StageConnect); got != existing {
		t.Error("expected existing SessionError to pass through unchanged")
	}
}

func TestLabels_Label(t *testing.T) {
	l := DefaultLabels()

	tests := []struct {
		name        string
		source      models.Source
		sessionType models.SessionType
		tag         string
		want        string
	}{
		{"mic standard", models.SourceMicrophone, models.SessionStandard, "", "Investigator"},
		{"mic multi ignores tag", models.SourceMicrophone, models.SessionMulti, "3", "Investigator"},
		{"display standard", models.SourceDisplay, models.SessionStandard, "", "Witness"},
		{"display standard ignores tag", models.SourceDisplay, models.SessionStandard, "2", "Witness"},
		{"display multi", models.SourceDisplay, models.SessionMulti, "2", "Speaker 2"},
		{"display multi untagged", models.SourceDisplay, models.SessionMulti, "", "Speaker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Label(tt.source, tt.sessionType, tt.tag); got != tt.want {
				t.Errorf("Label = %q, want %q", got, tt.want)
			}
		})
	}
}
