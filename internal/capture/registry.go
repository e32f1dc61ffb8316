package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"interview-transcription-service/internal/models"
)

var (
	// ErrNoDevice means no capture source became available.
	ErrNoDevice = errors.New("no capture device")
	// ErrPermissionDenied means the user refused to share the source.
	ErrPermissionDenied = errors.New("capture permission denied")
	// ErrAlreadyAttached means a feed is already waiting for this source.
	ErrAlreadyAttached = errors.New("capture feed already attached")
)

// Acquirer obtains a live handle for a capture source. Implementations
// block until the source is available or the context ends.
type Acquirer interface {
	Acquire(ctx context.Context, source models.Source) (Handle, error)
}

// Registry is an Acquirer backed by feeds the host attaches. Each attached
// feed is handed out exactly once.
type Registry struct {
	mu      sync.Mutex
	timeout time.Duration
	pending map[models.Source]*Feed
	denied  map[models.Source]time.Time
	signals map[models.Source]chan struct{}
	// waiting counts the Acquire calls in progress per source
	waiting map[models.Source]int
}

// NewRegistry creates a registry whose Acquire waits at most timeout.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		timeout: timeout,
		pending: make(map[models.Source]*Feed),
		denied:  make(map[models.Source]time.Time),
		signals: make(map[models.Source]chan struct{}),
		waiting: make(map[models.Source]int),
	}
}

// Attach makes a feed available to the next Acquire for its source.
func (r *Registry) Attach(f *Feed) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[f.Source()]; ok {
		return ErrAlreadyAttached
	}
	r.pending[f.Source()] = f
	delete(r.denied, f.Source())
	r.notify(f.Source())
	return nil
}

// Deny records that the user refused the source; the Acquire for it fails
// with ErrPermissionDenied. A denial is dropped when no Acquire is in
// progress and expires after the acquire timeout.
func (r *Registry) Deny(source models.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.acquiringLocked() {
		return
	}
	r.denied[source] = time.Now()
	r.notify(source)
}

// Waiting reports whether an Acquire for source is in progress.
func (r *Registry) Waiting(source models.Source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting[source] > 0
}

func (r *Registry) acquiringLocked() bool {
	for _, n := range r.waiting {
		if n > 0 {
			return true
		}
	}
	return false
}

// Detach removes a pending feed that was never acquired.
func (r *Registry) Detach(f *Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[f.Source()] == f {
		delete(r.pending, f.Source())
	}
}

// Acquire waits for a feed for source.
func (r *Registry) Acquire(ctx context.Context, source models.Source) (Handle, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.mu.Lock()
	r.waiting[source]++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.waiting[source]--
		r.mu.Unlock()
	}()

	for {
		r.mu.Lock()
		if f, ok := r.pending[source]; ok {
			delete(r.pending, source)
			r.mu.Unlock()
			return f, nil
		}
		if at, ok := r.denied[source]; ok {
			delete(r.denied, source)
			// a denial older than one acquire window belongs to an earlier start
			if r.timeout <= 0 || time.Since(at) <= r.timeout {
				r.mu.Unlock()
				return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, source)
			}
		}
		sig := r.signal(source)
		r.mu.Unlock()

		select {
		case <-sig:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: no %s feed attached: %v", ErrNoDevice, source, ctx.Err())
		}
	}
}

// signal returns the wait channel for source. Callers hold r.mu.
func (r *Registry) signal(source models.Source) chan struct{} {
	ch, ok := r.signals[source]
	if !ok {
		ch = make(chan struct{})
		r.signals[source] = ch
	}
	return ch
}

// notify wakes waiters for source. Callers hold r.mu.
func (r *Registry) notify(source models.Source) {
	if ch, ok := r.signals[source]; ok {
		close(ch)
		delete(r.signals, source)
	}
}
