// Package shutdown implements the two-phase graceful shutdown protocol
// (C8, §4.8) against a target process: ask nicely via the reserved
// `__shutdown__` request, wait for `__shutdown_complete__`, and fall back
// to SIGTERM/SIGKILL if the target does not cooperate in time.
package shutdown

import (
	"time"

	"github.com/sebastianwebdev/procwire/internal/nlog"
	"github.com/sebastianwebdev/procwire/tagged"
)

// Reserved wire-contract method/notification names (§6).
const (
	MethodShutdown             = "__shutdown__"
	NotificationShutdownComplete = "__shutdown_complete__"
)

// Target is the minimal surface the shutdown manager drives (§4.8).
type Target interface {
	ID() string
	Pid() int
	Request(method string, params tagged.Value, timeout time.Duration) (tagged.Value, error)
	Kill(signal string) error
	OnNotification(method string, handler func(params tagged.Value)) (unsubscribe func())
}

// Option configures a Manager.
type Option func(*Manager)

func WithGracefulTimeout(d time.Duration) Option { return func(m *Manager) { m.gracefulTimeout = d } }
func WithExitWait(d time.Duration) Option        { return func(m *Manager) { m.exitWait = d } }
func WithRequestTimeout(d time.Duration) Option  { return func(m *Manager) { m.requestTimeout = d } }

// Events (§4.8).
type (
	StartEvent    struct{ Reason string }
	AckEvent      struct{ PendingRequests int }
	CompleteEvent struct{ ExitCode int }
	DoneEvent     struct{ Graceful bool }
)

const (
	defaultGracefulTimeout = 5 * time.Second
	defaultExitWait        = 2 * time.Second
	defaultRequestTimeout  = 5 * time.Second
)

// Manager drives one graceful shutdown sequence for one Target (§4.8).
// A Manager is used once; the process manager constructs a fresh one per
// terminate() call.
type Manager struct {
	target Target

	gracefulTimeout time.Duration
	exitWait        time.Duration
	requestTimeout  time.Duration

	onStart    []func(StartEvent)
	onAck      []func(AckEvent)
	onComplete []func(CompleteEvent)
	onDone     []func(DoneEvent)
}

func NewManager(target Target, opts ...Option) *Manager {
	m := &Manager{
		target:          target,
		gracefulTimeout: defaultGracefulTimeout,
		exitWait:        defaultExitWait,
		requestTimeout:  defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) OnStart(fn func(StartEvent))       { m.onStart = append(m.onStart, fn) }
func (m *Manager) OnAck(fn func(AckEvent))           { m.onAck = append(m.onAck, fn) }
func (m *Manager) OnComplete(fn func(CompleteEvent)) { m.onComplete = append(m.onComplete, fn) }
func (m *Manager) OnDone(fn func(DoneEvent))         { m.onDone = append(m.onDone, fn) }

// Run executes the full two-phase sequence and blocks until the target
// is confirmed down (§4.8).
func (m *Manager) Run(reason string) {
	for _, fn := range m.onStart {
		fn(StartEvent{Reason: reason})
	}

	params := tagged.OfMap(map[string]tagged.Value{
		"reason":     tagged.OfString(reason),
		"timeout_ms": tagged.OfNumber(float64(m.gracefulTimeout.Milliseconds())),
	})
	result, err := m.target.Request(MethodShutdown, params, m.requestTimeout)
	if err != nil {
		nlog.Warningf("shutdown(%s): __shutdown__ request failed, forcing kill: %v", m.target.ID(), err)
		m.forceKill()
		return
	}

	pending := 0
	if v, ok := result.Map["pending_requests"]; ok {
		pending = int(v.Number)
	}
	for _, fn := range m.onAck {
		fn(AckEvent{PendingRequests: pending})
	}

	m.awaitCompletion()
}

func (m *Manager) awaitCompletion() {
	completeCh := make(chan int, 1)
	unsubscribe := m.target.OnNotification(NotificationShutdownComplete, func(params tagged.Value) {
		exitCode := 0
		if params.Kind == tagged.KindMap {
			if v, ok := params.Map["exit_code"]; ok {
				exitCode = int(v.Number)
			}
		}
		select {
		case completeCh <- exitCode:
		default:
		}
	})
	defer unsubscribe()

	timer := time.NewTimer(m.gracefulTimeout)
	defer timer.Stop()

	select {
	case exitCode := <-completeCh:
		for _, fn := range m.onComplete {
			fn(CompleteEvent{ExitCode: exitCode})
		}
		time.Sleep(m.exitWait)
		for _, fn := range m.onDone {
			fn(DoneEvent{Graceful: true})
		}
	case <-timer.C:
		m.forceKill()
	}
}

func (m *Manager) forceKill() {
	if err := m.target.Kill("SIGTERM"); err != nil {
		nlog.Warningf("shutdown(%s): SIGTERM failed: %v", m.target.ID(), err)
	}
	time.Sleep(m.exitWait)
	if processStillAlive(m.target) {
		if err := m.target.Kill("SIGKILL"); err != nil {
			nlog.Errorf("shutdown(%s): SIGKILL failed: %v", m.target.ID(), err)
		}
	}
	for _, fn := range m.onDone {
		fn(DoneEvent{Graceful: false})
	}
}

// processStillAlive is overridable in tests; production targets report
// liveness via Pid()==0 once reaped by the process manager.
var processStillAlive = func(t Target) bool { return t.Pid() != 0 }
