package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
)

// inFlightFetch tracks a single upstream fetch that multiple callers may wait for.
type inFlightFetch struct {
	mu      sync.Mutex
	result  models.Snapshot
	err     error
	done    bool
	waiters []chan struct{}
}

// fetchCoalescer collapses concurrent upstream fetches for the same region
// into one call: a manual refresh racing the scheduler performs a single
// Open-Meteo request.
type fetchCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

func newFetchCoalescer(timeout time.Duration) *fetchCoalescer {
	return &fetchCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo checks whether a fetch for key is already in flight. If so, waits
// for its result; otherwise executes fn and registers the fetch. Respects
// context cancellation and the coalescer timeout.
func (fc *fetchCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.Snapshot, error)) (models.Snapshot, error) {
	fc.mu.Lock()
	req, exists := fc.inFlight[key]
	if exists {
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			result := req.result
			err := req.err
			req.mu.Unlock()
			fc.mu.Unlock()
			if err != nil {
				return models.Snapshot{}, err
			}
			return result, nil
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		fc.mu.Unlock()

		return fc.wait(ctx, req, notify)
	}

	req = &inFlightFetch{
		waiters: make([]chan struct{}, 0),
	}
	fc.inFlight[key] = req
	fc.mu.Unlock()

	// Execute in a goroutine so waiters are released even if this caller's
	// context expires first.
	go func() {
		result, err := fn()

		req.mu.Lock()
		req.result = result
		req.err = err
		req.done = true
		waiters := req.waiters
		req.waiters = nil
		req.mu.Unlock()

		for _, notify := range waiters {
			close(notify)
		}

		fc.cleanup(key)
	}()

	notify := make(chan struct{})
	req.mu.Lock()
	if req.done {
		result := req.result
		err := req.err
		req.mu.Unlock()
		if err != nil {
			return models.Snapshot{}, err
		}
		return result, nil
	}
	req.waiters = append(req.waiters, notify)
	req.mu.Unlock()

	return fc.wait(ctx, req, notify)
}

func (fc *fetchCoalescer) wait(ctx context.Context, req *inFlightFetch, notify chan struct{}) (models.Snapshot, error) {
	waitCtx, cancel := context.WithTimeout(ctx, fc.timeout)
	defer cancel()
	select {
	case <-notify:
		req.mu.Lock()
		result := req.result
		err := req.err
		req.mu.Unlock()
		if err != nil {
			return models.Snapshot{}, err
		}
		return result, nil
	case <-waitCtx.Done():
		return models.Snapshot{}, waitCtx.Err()
	}
}

func (fc *fetchCoalescer) cleanup(key string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	delete(fc.inFlight, key)
}
