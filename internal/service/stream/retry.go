package stream

import (
	"context"
	"errors"
	"time"

	"interview-transcription-service/internal/models"
)

// Decision is the outcome of evaluating one connect attempt.
type Decision int

const (
	Connected Decision = iota
	Retry
	Fail
)

func (d Decision) String() string {
	switch d {
	case Connected:
		return "connected"
	case Retry:
		return "retry"
	default:
		return "fail"
	}
}

// RetryPolicy bounds the connect loop: a fixed number of attempts separated
// by a fixed delay.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy returns 10 attempts, one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, Delay: time.Second}
}

// Decide evaluates the result of attempt (1-based). It performs no I/O.
// Auth and device failures are never retried; a cancelled context ends the
// loop immediately.
func (p RetryPolicy) Decide(attempt int, err error) Decision {
	if err == nil {
		return Connected
	}
	if errors.Is(err, context.Canceled) {
		return Fail
	}
	switch models.KindOf(err) {
	case models.KindAuth, models.KindDevice:
		return Fail
	}
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	if attempt >= max {
		return Fail
	}
	return Retry
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
