// Package origin models the shared, concurrency-limited origin server
// every peer falls back to on a cache miss (spec §4.5): a bounded FIFO
// wait queue, load-dependent processing latency, and a hard request
// timeout.
package origin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Defaults from spec §4.5.
const (
	DefaultBaseLatencyMs       = 20.0
	MaxConcurrentFlashCrowd    = 20
	MaxConcurrentSteady        = 40
	DefaultMaxQueueSize        = 100
	DefaultRequestTimeout      = 30 * time.Second
	immediateRejectionLatencyMs = 10.0
)

// Result is the per-request outcome the pipeline's metrics record is
// built from (spec §4.5 "each request reports {arrivalToCompletionMs,
// success}").
type Result struct {
	LatencyMs float64
	Success   bool
}

// Model is the origin server: one shared instance per simulation, used
// by every peer's request pipeline on a miss.
type Model struct {
	baseLatencyMs  float64
	maxConcurrent  int64
	maxQueueSize   int
	requestTimeout time.Duration
	sem            *semaphore.Weighted

	content  []byte
	mimeType string

	mu     sync.Mutex
	active int64
	queued int
}

// New constructs an origin model serving a single target resource.
// maxConcurrent is typically MaxConcurrentFlashCrowd or
// MaxConcurrentSteady depending on the simulation's flashCrowd flag.
func New(maxConcurrent int64, content []byte, mimeType string) *Model {
	return &Model{
		baseLatencyMs:  DefaultBaseLatencyMs,
		maxConcurrent:  maxConcurrent,
		maxQueueSize:   DefaultMaxQueueSize,
		requestTimeout: DefaultRequestTimeout,
		sem:            semaphore.NewWeighted(maxConcurrent),
		content:        content,
		mimeType:       mimeType,
	}
}

// WithRequestTimeout overrides the default 30s request timeout, for
// tests that need a tighter bound.
func (m *Model) WithRequestTimeout(d time.Duration) *Model {
	m.requestTimeout = d
	return m
}

// WithMaxQueueSize overrides the default queue bound.
func (m *Model) WithMaxQueueSize(n int) *Model {
	m.maxQueueSize = n
	return m
}

// Request runs one pass of the arrive/queue/serve/complete state machine
// (spec §4.5 steps 1-5) and returns a Result alongside a nil error on
// success, or ErrOriginRejected/ErrOriginTimeout on the two recoverable
// failure paths.
func (m *Model) Request(ctx context.Context) (Result, error) {
	m.mu.Lock()
	atCapacity := m.active >= m.maxConcurrent
	if atCapacity {
		if m.queued >= m.maxQueueSize {
			active, queued := m.active, m.queued
			m.mu.Unlock()
			slog.Debug("origin: rejected, queue full", "active", active, "queued", queued, "maxQueueSize", m.maxQueueSize)
			return Result{LatencyMs: immediateRejectionLatencyMs, Success: false}, ErrOriginRejected
		}
		m.queued++
	}
	m.mu.Unlock()

	if atCapacity {
		waitCtx, cancel := context.WithTimeout(ctx, m.requestTimeout)
		defer cancel()
		err := m.sem.Acquire(waitCtx, 1)

		m.mu.Lock()
		m.queued--
		m.mu.Unlock()

		if err != nil {
			slog.Debug("origin: request timed out waiting in queue", "timeout", m.requestTimeout)
			return Result{LatencyMs: float64(m.requestTimeout.Milliseconds()), Success: false}, ErrOriginTimeout
		}
	} else if err := m.sem.Acquire(ctx, 1); err != nil {
		return Result{Success: false}, ErrOriginTimeout
	}
	defer m.sem.Release(1)

	m.mu.Lock()
	m.active++
	load := float64(m.active) / float64(m.maxConcurrent)
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	p := m.baseLatencyMs
	if load > 0.8 {
		p = m.baseLatencyMs * (1 + (load-0.8)*5)
	}
	select {
	case <-time.After(time.Duration(p * float64(time.Millisecond))):
	case <-ctx.Done():
	}

	return Result{LatencyMs: p, Success: true}, nil
}

// Fetch implements swarm.OriginFetcher: it runs the state machine and,
// on success, returns the origin's configured content.
func (m *Model) Fetch(ctx context.Context, hash, originPath string) ([]byte, string, error) {
	_, err := m.Request(ctx)
	if err != nil {
		return nil, "", err
	}
	return m.content, m.mimeType, nil
}

// ActiveCount reports the number of requests currently being served, for
// tests and live metrics (spec §8 "origin queue invariant: active <=
// maxConcurrent").
func (m *Model) ActiveCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// QueueLength reports the number of requests currently waiting.
func (m *Model) QueueLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queued
}
