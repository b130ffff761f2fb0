// Package heartbeat implements the liveness-probing manager (C6, §4.6):
// a ping/pong state machine with at-most-one-outstanding-ping-at-a-time
// semantics, implicit-activity resets, and missed/dead detection.
package heartbeat

import (
	"sync"
	"time"

	"github.com/sebastianwebdev/procwire/internal/nlog"
	"github.com/sebastianwebdev/procwire/tagged"
)

// Reserved wire-contract notification names carrying ping/pong traffic
// over a control channel (§6).
const (
	MethodPing = "__heartbeat_ping__"
	MethodPong = "__heartbeat_pong__"
)

// LoadSampler reports optional load metrics attached to outgoing pongs
// (§4.6A). Sampling failure is logged and simply omitted — never fatal.
type LoadSampler func() (tagged.Value, error)

// Sender transmits a ping/pong over whatever channel the host wires in;
// kept abstract so the heartbeat manager does not import channel
// directly (it is typically backed by channel.Channel.Notify).
type Sender interface {
	SendPing(seq int64, sentAt time.Time) error
	SendPong(seq int64, load tagged.Value) error
}

// Option configures a Manager.
type Option func(*Manager)

func WithInterval(d time.Duration) Option   { return func(m *Manager) { m.interval = d } }
func WithTimeout(d time.Duration) Option    { return func(m *Manager) { m.timeout = d } }
func WithMaxMissed(n int) Option            { return func(m *Manager) { m.maxMissed = n } }
func WithImplicitHeartbeat(b bool) Option   { return func(m *Manager) { m.implicitHeartbeat = b } }
func WithLoadSampler(s LoadSampler) Option  { return func(m *Manager) { m.loadSampler = s } }

// Events delivered by the manager (§4.6).
type (
	PongEvent struct {
		Seq       int64
		LatencyMS float64
		Load      tagged.Value
	}
	MissedEvent struct {
		Seq         int64
		MissedCount int
	}
	DeadEvent struct {
		MissedCount int
		LastPongAt  time.Time
	}
)

type pendingPing struct {
	seq    int64
	sentAt time.Time
	timer  *time.Timer
}

// State is a read-only snapshot returned by GetState.
type State struct {
	Seq               int64
	ConsecutiveMissed int
	LastPongAt        time.Time
	Running           bool
}

// Manager drives one ping cycle per interval over a Sender (§4.6).
type Manager struct {
	sender Sender

	interval          time.Duration
	timeout           time.Duration
	maxMissed         int
	implicitHeartbeat bool
	loadSampler       LoadSampler

	onPong    []func(PongEvent)
	onMissed  []func(MissedEvent)
	onDead    []func(DeadEvent)

	mu                sync.Mutex
	running           bool
	seq               int64
	consecutiveMissed int
	lastPongAt        time.Time
	pending           *pendingPing
	ticker            *time.Ticker
	stopCh            chan struct{}
}

const (
	defaultInterval  = 15 * time.Second
	defaultTimeout   = 5 * time.Second
	defaultMaxMissed = 3
)

func NewManager(sender Sender, opts ...Option) *Manager {
	m := &Manager{
		sender:    sender,
		interval:  defaultInterval,
		timeout:   defaultTimeout,
		maxMissed: defaultMaxMissed,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) OnPong(fn func(PongEvent))     { m.onPong = append(m.onPong, fn) }
func (m *Manager) OnMissed(fn func(MissedEvent)) { m.onMissed = append(m.onMissed, fn) }
func (m *Manager) OnDead(fn func(DeadEvent))     { m.onDead = append(m.onDead, fn) }

// Start resets state, sends ping #1 immediately, and begins the interval
// ticker. A repeated Start while running is a no-op (§4.6 idempotence).
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.seq = 0
	m.consecutiveMissed = 0
	m.pending = nil
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.sendPing()

	m.ticker = time.NewTicker(m.interval)
	go m.loop(m.stopCh)
}

func (m *Manager) loop(stopCh chan struct{}) {
	for {
		select {
		case <-stopCh:
			return
		case <-m.ticker.C:
			m.mu.Lock()
			hasPending := m.pending != nil
			m.mu.Unlock()
			if !hasPending {
				m.sendPing()
			}
		}
	}
}

func (m *Manager) sendPing() {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	now := time.Now()
	p := &pendingPing{seq: seq, sentAt: now}
	p.timer = time.AfterFunc(m.timeout, func() { m.handleTimeout(seq) })
	m.pending = p
	m.mu.Unlock()

	if err := m.sender.SendPing(seq, now); err != nil {
		nlog.Warningf("heartbeat: ping seq=%d send failed: %v", seq, err)
		m.handleTimeout(seq)
	}
}

func (m *Manager) handleTimeout(seq int64) {
	m.mu.Lock()
	if m.pending == nil || m.pending.seq != seq {
		m.mu.Unlock()
		return
	}
	m.pending = nil
	m.consecutiveMissed++
	missed := m.consecutiveMissed
	dead := missed >= m.maxMissed
	lastPong := m.lastPongAt
	m.mu.Unlock()

	for _, fn := range m.onMissed {
		fn(MissedEvent{Seq: seq, MissedCount: missed})
	}
	if dead {
		for _, fn := range m.onDead {
			fn(DeadEvent{MissedCount: missed, LastPongAt: lastPong})
		}
	}
}

// OnPongReceived feeds an inbound pong with the given seq into the state
// machine. A mismatched seq or no pending ping is silently ignored (§4.6).
func (m *Manager) OnPongReceived(seq int64, load tagged.Value) {
	m.mu.Lock()
	if m.pending == nil || m.pending.seq != seq {
		m.mu.Unlock()
		return
	}
	sentAt := m.pending.sentAt
	m.pending.timer.Stop()
	m.pending = nil
	m.consecutiveMissed = 0
	m.lastPongAt = time.Now()
	m.mu.Unlock()

	latency := float64(time.Since(sentAt).Microseconds()) / 1000.0
	for _, fn := range m.onPong {
		fn(PongEvent{Seq: seq, LatencyMS: latency, Load: load})
	}
}

// OnActivity records observed inbound application traffic. When implicit
// heartbeat is enabled this also clears consecutiveMissed (§4.6).
func (m *Manager) OnActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.implicitHeartbeat {
		m.consecutiveMissed = 0
	}
}

// BuildPong samples load (if a sampler is configured) and hands the
// caller a ready-to-send pong payload for seq (the worker side of a
// channel uses this to answer an inbound ping).
func (m *Manager) BuildPong(seq int64) (load tagged.Value) {
	if m.loadSampler == nil {
		return tagged.Null()
	}
	v, err := m.loadSampler()
	if err != nil {
		nlog.Warningf("heartbeat: load sampler failed, omitting from pong: %v", err)
		return tagged.Null()
	}
	return v
}

// Stop cancels all timers; state is preserved for GetState (§4.6).
// A repeated Stop while stopped is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	pending := m.pending
	m.pending = nil
	stopCh := m.stopCh
	m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
	}
	if stopCh != nil {
		close(stopCh)
	}
	if pending != nil {
		pending.timer.Stop()
	}
}

func (m *Manager) GetState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Seq:               m.seq,
		ConsecutiveMissed: m.consecutiveMissed,
		LastPongAt:        m.lastPongAt,
		Running:           m.running,
	}
}
