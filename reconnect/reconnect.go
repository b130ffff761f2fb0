// Package reconnect implements the reconnect manager (C7, §4.7):
// exponential backoff with jitter, a bounded request queue drained on
// reconnect success, and singleflight-deduped disconnect handling so two
// racing disconnect signals collapse into one reconnect loop (§5).
package reconnect

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sebastianwebdev/procwire/internal/nlog"
	"github.com/sebastianwebdev/procwire/internal/xerr"
)

// Reconnectable is the target the manager drives connect() calls against.
type Reconnectable interface {
	Connect() error
}

// Option configures a Manager.
type Option func(*Manager)

func WithEnabled(b bool) Option              { return func(m *Manager) { m.enabled = b } }
func WithInitialDelay(d time.Duration) Option { return func(m *Manager) { m.initialDelay = d } }
func WithMultiplier(f float64) Option         { return func(m *Manager) { m.multiplier = f } }
func WithMaxDelay(d time.Duration) Option     { return func(m *Manager) { m.maxDelay = d } }
func WithMaxAttempts(n int) Option            { return func(m *Manager) { m.maxAttempts = n } }
func WithJitter(f float64) Option             { return func(m *Manager) { m.jitter = f } }
func WithQueueRequests(b bool) Option         { return func(m *Manager) { m.queueRequests = b } }
func WithMaxQueueSize(n int) Option           { return func(m *Manager) { m.maxQueueSize = n } }
func WithQueueTimeout(d time.Duration) Option { return func(m *Manager) { m.queueTimeout = d } }

// Events (§4.7).
type (
	AttemptingEvent struct{ Attempt int }
	SuccessEvent    struct {
		Attempt     int
		TotalTimeMS int64
	}
	FailedEvent struct {
		Attempts  int
		LastError error
	}
	RequestTimeoutEvent struct{ QueuedAt time.Time }
)

// Executor is a queued unit of work replayed in insertion order once
// reconnection succeeds.
type Executor func() (any, error)

type queuedRequest struct {
	method   string
	executor Executor
	resultCh chan Result
	timer    *time.Timer
	queuedAt time.Time
}

// Result is delivered on the channel returned by QueueRequest once the
// queued executor has run (on reconnect success) or the entry expired.
type Result struct {
	Value any
	Err   error
}

// Manager drives the reconnect loop for one Reconnectable target (§4.7).
type Manager struct {
	target Reconnectable

	enabled       bool
	initialDelay  time.Duration
	multiplier    float64
	maxDelay      time.Duration
	maxAttempts   int
	jitter        float64
	queueRequests bool
	maxQueueSize  int
	queueTimeout  time.Duration

	onAttempting []func(AttemptingEvent)
	onSuccess    []func(SuccessEvent)
	onFailed     []func(FailedEvent)
	onReqTimeout []func(RequestTimeoutEvent)

	g singleflight.Group

	mu          sync.Mutex
	reconnect   bool
	cancelled   bool
	queue       []*queuedRequest
}

const (
	defaultInitialDelay = 500 * time.Millisecond
	defaultMultiplier   = 2.0
	defaultMaxDelay     = 30 * time.Second
	defaultMaxAttempts  = 10
	defaultQueueTimeout = 10 * time.Second
	defaultMaxQueueSize = 100
)

func NewManager(target Reconnectable, opts ...Option) *Manager {
	m := &Manager{
		target:       target,
		enabled:      true,
		initialDelay: defaultInitialDelay,
		multiplier:   defaultMultiplier,
		maxDelay:     defaultMaxDelay,
		maxAttempts:  defaultMaxAttempts,
		queueTimeout: defaultQueueTimeout,
		maxQueueSize: defaultMaxQueueSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) OnAttempting(fn func(AttemptingEvent))         { m.onAttempting = append(m.onAttempting, fn) }
func (m *Manager) OnSuccess(fn func(SuccessEvent))               { m.onSuccess = append(m.onSuccess, fn) }
func (m *Manager) OnFailed(fn func(FailedEvent))                 { m.onFailed = append(m.onFailed, fn) }
func (m *Manager) OnRequestTimeout(fn func(RequestTimeoutEvent))  { m.onReqTimeout = append(m.onReqTimeout, fn) }

// HandleDisconnect starts the reconnect loop for cause, unless the
// manager is already reconnecting or disabled. Concurrent callers are
// deduped via singleflight so only one loop ever runs (§5).
func (m *Manager) HandleDisconnect(cause error) bool {
	if !m.enabled {
		return false
	}
	m.mu.Lock()
	if m.reconnect {
		m.mu.Unlock()
		return false
	}
	m.reconnect = true
	m.cancelled = false
	m.mu.Unlock()

	go func() {
		_, _, _ = m.g.Do("reconnect", func() (any, error) {
			m.runLoop(cause)
			return nil, nil
		})
	}()
	return true
}

func (m *Manager) runLoop(cause error) {
	defer func() {
		m.mu.Lock()
		m.reconnect = false
		m.mu.Unlock()
	}()

	start := time.Now()
	var lastErr error = cause

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		m.mu.Lock()
		cancelled := m.cancelled
		m.mu.Unlock()
		if cancelled {
			m.failAll(xerr.ErrReconnectFailed)
			return
		}

		delay := m.computeDelay(attempt)
		if !m.sleepCancellable(delay) {
			m.failAll(xerr.ErrReconnectFailed)
			return
		}

		for _, fn := range m.onAttempting {
			fn(AttemptingEvent{Attempt: attempt})
		}

		if err := m.target.Connect(); err != nil {
			lastErr = err
			nlog.Warningf("reconnect: attempt %d failed: %v", attempt, err)
			continue
		}

		totalMS := time.Since(start).Milliseconds()
		for _, fn := range m.onSuccess {
			fn(SuccessEvent{Attempt: attempt, TotalTimeMS: totalMS})
		}
		m.drainQueue()
		return
	}

	for _, fn := range m.onFailed {
		fn(FailedEvent{Attempts: m.maxAttempts, LastError: lastErr})
	}
	m.failAll(xerr.ErrReconnectFailed)
}

func (m *Manager) computeDelay(attempt int) time.Duration {
	raw := float64(m.initialDelay) * math.Pow(m.multiplier, float64(attempt-1))
	if m.maxDelay > 0 && raw > float64(m.maxDelay) {
		raw = float64(m.maxDelay)
	}
	if raw < 0 {
		raw = 0
	}
	if m.jitter > 0 {
		lo := raw * (1 - m.jitter)
		hi := raw * (1 + m.jitter)
		raw = lo + rand.Float64()*(hi-lo)
	}
	return time.Duration(raw)
}

func (m *Manager) sleepCancellable(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-timer.C:
			return true
		case <-tick.C:
			m.mu.Lock()
			cancelled := m.cancelled
			m.mu.Unlock()
			if cancelled {
				return false
			}
		}
	}
}

// Cancel sets an interrupt flag checked at the start of every loop
// iteration and pre-empts the currently-awaiting delay (§4.7).
func (m *Manager) Cancel() {
	m.mu.Lock()
	m.cancelled = true
	m.mu.Unlock()
}

// QueueRequest is only meaningful while reconnecting; otherwise returns
// nil immediately (§4.7). It enforces maxQueueSize and arms the entry's
// own queueTimeout timer.
func (m *Manager) QueueRequest(method string, executor Executor) chan Result {
	m.mu.Lock()
	if !m.reconnect || !m.queueRequests {
		m.mu.Unlock()
		return nil
	}
	if len(m.queue) >= m.maxQueueSize {
		m.mu.Unlock()
		return nil
	}
	q := &queuedRequest{
		method:   method,
		executor: executor,
		resultCh: make(chan Result, 1),
		queuedAt: time.Now(),
	}
	m.queue = append(m.queue, q)
	m.mu.Unlock()

	q.timer = time.AfterFunc(m.queueTimeout, func() { m.expireQueued(q) })
	return q.resultCh
}

func (m *Manager) expireQueued(q *queuedRequest) {
	m.mu.Lock()
	idx := indexOf(m.queue, q)
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue[:idx], m.queue[idx+1:]...)
	m.mu.Unlock()

	for _, fn := range m.onReqTimeout {
		fn(RequestTimeoutEvent{QueuedAt: q.queuedAt})
	}
	q.resultCh <- Result{Err: xerr.ErrQueueTimeout}
}

func indexOf(queue []*queuedRequest, target *queuedRequest) int {
	for i, q := range queue {
		if q == target {
			return i
		}
	}
	return -1
}

func (m *Manager) drainQueue() {
	m.mu.Lock()
	queue := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, q := range queue {
		q.timer.Stop()
		value, err := q.executor()
		q.resultCh <- Result{Value: value, Err: err}
	}
}

func (m *Manager) failAll(cause error) {
	m.mu.Lock()
	queue := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, q := range queue {
		q.timer.Stop()
		q.resultCh <- Result{Err: cause}
	}
}
