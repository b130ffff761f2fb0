// Package process implements the process manager (C9, §4.9): it spawns
// child workers, wires a control channel (and optionally a data channel)
// to each, drives heartbeat/reconnect/shutdown for the lifetime of the
// worker, and restarts it on an unclean exit per its restart policy.
package process

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/teris-io/shortid"

	"github.com/sebastianwebdev/procwire/channel"
	"github.com/sebastianwebdev/procwire/codec"
	"github.com/sebastianwebdev/procwire/framer"
	"github.com/sebastianwebdev/procwire/heartbeat"
	"github.com/sebastianwebdev/procwire/internal/nlog"
	"github.com/sebastianwebdev/procwire/internal/rtmetrics"
	"github.com/sebastianwebdev/procwire/internal/xerr"
	"github.com/sebastianwebdev/procwire/pipepath"
	"github.com/sebastianwebdev/procwire/proto"
	"github.com/sebastianwebdev/procwire/reconnect"
	"github.com/sebastianwebdev/procwire/shutdown"
	"github.com/sebastianwebdev/procwire/tagged"
	"github.com/sebastianwebdev/procwire/transport"

	"github.com/prometheus/client_golang/prometheus"
)

// State mirrors a managed entry's lifecycle (§4.9).
type State int

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateStopped
	StateCrashed
	StateError
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// RestartPolicy controls automatic respawn on unclean exit (§4.9).
type RestartPolicy struct {
	Enabled      bool
	MaxRestarts  int
	BackoffMS    int64
	MaxBackoffMS int64 // 0 means unbounded
}

// DefaultRestartPolicy disables restart, matching a conservative default
// for callers who opt in explicitly.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{Enabled: false, MaxRestarts: 5, BackoffMS: 500}
}

// SpawnOptions configures one managed process (§4.9).
type SpawnOptions struct {
	Executable string
	Args       []string
	Dir        string
	Env        []string

	StartupTimeout time.Duration

	UsePTY bool

	DataChannelEnabled bool
	DataChannelPath    string // overrides the computed pipe path when non-empty

	RestartPolicy RestartPolicy

	RequestTimeout time.Duration

	HeartbeatEnabled  bool
	HeartbeatOptions  []heartbeat.Option
	ReconnectOptions  []reconnect.Option

	// MaxControlBufferSize and MaxDataMessageSize accept human-readable
	// sizes ("8MiB", "512KB") and override the control channel's newline
	// framer buffer ceiling and the data channel's length-prefixed
	// message ceiling, respectively (§4.1).
	MaxControlBufferSize string
	MaxDataMessageSize   string

	// ShutdownGracefulTimeout and ShutdownRequestTimeout override the
	// two-phase shutdown manager's own timers for this process (§4.8).
	// Zero uses the shutdown package's defaults.
	ShutdownGracefulTimeout time.Duration
	ShutdownRequestTimeout  time.Duration
}

func defaultSpawnOptions() SpawnOptions {
	return SpawnOptions{
		StartupTimeout: 10 * time.Second,
		RestartPolicy:  DefaultRestartPolicy(),
		RequestTimeout: defaultRequestTimeout,
	}
}

// Handle is the externally visible state of one managed process (§3, §4.9).
// ControlChannel is always present once the process has been spawned;
// DataChannel is nil unless SpawnOptions.DataChannelEnabled was set.
// Application code drives the worker through these channels' own
// Request/Notify/OnRequest/OnNotification API.
type Handle struct {
	ID             string
	InstanceToken  string
	Pid            int
	State          State
	RestartAttempt int
	ControlChannel *channel.Channel
	DataChannel    *channel.Channel
}

// Events emitted by the Manager (§4.9).
type (
	SpawnEvent   struct{ ID string; Pid int }
	ReadyEvent   struct{ ID string }
	ExitEvent    struct{ ID string; Code int; Signal string }
	RestartEvent struct {
		ID      string
		Attempt int
		Delay   time.Duration
	}
	CrashEvent struct{ ID string }
	ErrorEvent struct {
		ID  string
		Err error
	}
)

const (
	defaultRequestTimeout    = 30 * time.Second
	defaultGracefulShutdown  = 5 * time.Second
	defaultNamespace         = "procwire"
)

// entry is the manager's internal bookkeeping for one logical process id.
type entry struct {
	mu sync.Mutex

	id            string
	instanceToken string
	options       SpawnOptions

	transport *transport.StdioTransport
	control   *channel.Channel
	data      *channel.Channel
	dataPath  string

	hbManager   *heartbeat.Manager
	reconnector *reconnect.Manager
	router      *notificationRouter

	state          State
	restartAttempt int
	manualStop     bool
}

// Option configures a Manager.
type Option func(*Manager)

func WithNamespace(ns string) Option { return func(m *Manager) { m.namespace = ns } }

func WithMetrics(reg *prometheus.Registry) Option {
	return func(m *Manager) { m.metrics = rtmetrics.New(reg, "procwire") }
}

func WithSignalHandling(enabled bool) Option {
	return func(m *Manager) { m.signalHandling = enabled }
}

// Manager owns every spawned process keyed by logical id (§4.9).
type Manager struct {
	namespace      string
	signalHandling bool
	metrics        *rtmetrics.Collector

	mu      sync.Mutex
	entries map[string]*entry

	onSpawn   []func(SpawnEvent)
	onReady   []func(ReadyEvent)
	onExit    []func(ExitEvent)
	onRestart []func(RestartEvent)
	onCrash   []func(CrashEvent)
	onError   []func(ErrorEvent)

	unregisterSignals func()
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: defaultNamespace,
		entries:   make(map[string]*entry),
		metrics:   rtmetrics.NewNoop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.signalHandling {
		m.unregisterSignals = installSignalHandlers(m.terminateAllAndExit)
	}
	return m
}

func (m *Manager) OnSpawn(fn func(SpawnEvent))     { m.onSpawn = append(m.onSpawn, fn) }
func (m *Manager) OnReady(fn func(ReadyEvent))     { m.onReady = append(m.onReady, fn) }
func (m *Manager) OnExit(fn func(ExitEvent))       { m.onExit = append(m.onExit, fn) }
func (m *Manager) OnRestart(fn func(RestartEvent)) { m.onRestart = append(m.onRestart, fn) }
func (m *Manager) OnCrash(fn func(CrashEvent))     { m.onCrash = append(m.onCrash, fn) }
func (m *Manager) OnError(fn func(ErrorEvent))     { m.onError = append(m.onError, fn) }

// RemoveSignalHandlers detaches the process-level termination handlers
// installed by WithSignalHandling(true) (§4.9).
func (m *Manager) RemoveSignalHandlers() {
	if m.unregisterSignals != nil {
		m.unregisterSignals()
		m.unregisterSignals = nil
	}
}

// instanceTokenABC mirrors the teacher's own departure from shortid's
// built-in alphabet (cmn/cos/uuid.go): a custom, URL-safe 64-symbol set.
const instanceTokenABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var sidGen = shortid.MustNew(1, instanceTokenABC, 0)

func newInstanceToken() string {
	tok, err := sidGen.Generate()
	if err != nil {
		return fmt.Sprintf("tok-%d", time.Now().UnixNano())
	}
	return tok
}

// Spawn starts a new managed process under id, implementing the seven-step
// algorithm of §4.9.
func (m *Manager) Spawn(id string, options SpawnOptions) (*Handle, error) {
	m.mu.Lock()
	if _, exists := m.entries[id]; exists {
		m.mu.Unlock()
		return nil, xerr.NewLifecycleError(id, "already spawned", nil)
	}
	m.mu.Unlock()

	opts := mergeDefaults(options)
	e := &entry{id: id, instanceToken: newInstanceToken(), options: opts, state: StateStarting}

	if err := m.bringUp(e); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.entries[id] = e
	m.mu.Unlock()

	e.mu.Lock()
	pid := e.transport.Pid()
	e.state = StateRunning
	e.mu.Unlock()

	for _, fn := range m.onSpawn {
		fn(SpawnEvent{ID: id, Pid: pid})
	}
	for _, fn := range m.onReady {
		fn(ReadyEvent{ID: id})
	}

	h := e.snapshot()
	return &h, nil
}

func mergeDefaults(o SpawnOptions) SpawnOptions {
	d := defaultSpawnOptions()
	if o.StartupTimeout > 0 {
		d.StartupTimeout = o.StartupTimeout
	}
	if o.RequestTimeout > 0 {
		d.RequestTimeout = o.RequestTimeout
	}
	if o.RestartPolicy != (RestartPolicy{}) {
		d.RestartPolicy = o.RestartPolicy
	}
	d.Executable = o.Executable
	d.Args = o.Args
	d.Dir = o.Dir
	d.Env = o.Env
	d.UsePTY = o.UsePTY
	d.DataChannelEnabled = o.DataChannelEnabled
	d.DataChannelPath = o.DataChannelPath
	d.HeartbeatEnabled = o.HeartbeatEnabled
	d.HeartbeatOptions = o.HeartbeatOptions
	d.ReconnectOptions = o.ReconnectOptions
	return d
}

// bringUp builds the transport and channel(s) for e and connects them,
// rolling everything back on the first failure (§4.9 step 2-6).
func (m *Manager) bringUp(e *entry) (err error) {
	opts := e.options

	stdioOpts := []transport.StdioOption{transport.WithStartupTimeout(opts.StartupTimeout)}
	if len(opts.Args) > 0 {
		stdioOpts = append(stdioOpts, transport.WithArgs(opts.Args...))
	}
	if opts.Dir != "" {
		stdioOpts = append(stdioOpts, transport.WithDir(opts.Dir))
	}
	if len(opts.Env) > 0 {
		stdioOpts = append(stdioOpts, transport.WithEnv(opts.Env))
	}
	if opts.UsePTY {
		stdioOpts = append(stdioOpts, transport.WithPTY())
	}

	tr := transport.NewStdioTransport(opts.Executable, stdioOpts...)

	defer func() {
		if err != nil {
			m.rollback(e)
		}
	}()

	var newlineOpts []framer.NewlineOption
	if opts.MaxControlBufferSize != "" {
		if n, perr := units.RAMInBytes(opts.MaxControlBufferSize); perr == nil {
			newlineOpts = append(newlineOpts, framer.WithMaxBufferSize(int(n)))
		} else {
			nlog.Warningf("process(%s): invalid MaxControlBufferSize %q: %v", e.id, opts.MaxControlBufferSize, perr)
		}
	}

	control := channel.New(
		tr,
		framer.NewNewlineFramer(newlineOpts...),
		codec.NewJSON(),
		proto.NewJSONRPC(),
		channel.WithRequestTimeout(opts.RequestTimeout),
	)

	router := newNotificationRouter()
	control.OnNotification(router.dispatch)

	e.mu.Lock()
	e.transport = tr
	e.control = control
	e.router = router
	e.mu.Unlock()

	e.transport.OnExit(func(info transport.ExitInfo) {
		m.handleProcessExit(e.id, info.Code, info.Signal)
	})
	e.transport.OnError(func(err error) {
		for _, fn := range m.onError {
			fn(ErrorEvent{ID: e.id, Err: err})
		}
	})

	if opts.DataChannelEnabled {
		path := opts.DataChannelPath
		if path == "" {
			p, perr := pipepath.ForModule(m.namespace, e.id, "")
			if perr != nil {
				return errors.Wrap(perr, "process: compute data channel path")
			}
			path = p
		}
		var lpOpts []framer.LengthPrefixedOption
		if opts.MaxDataMessageSize != "" {
			if n, perr := units.RAMInBytes(opts.MaxDataMessageSize); perr == nil {
				lpOpts = append(lpOpts, framer.WithMaxMessageSize(int(n)))
			} else {
				nlog.Warningf("process(%s): invalid MaxDataMessageSize %q: %v", e.id, opts.MaxDataMessageSize, perr)
			}
		}

		dataTr := transport.NewLocalEndpointTransport(path)
		reconnector := reconnect.NewManager(dataTr, opts.ReconnectOptions...)
		dataCh := channel.New(
			dataTr,
			framer.NewLengthPrefixedFramer(lpOpts...),
			codec.NewJSON(),
			proto.NewJSONRPC(),
			channel.WithRequestTimeout(opts.RequestTimeout),
			channel.WithReconnect(reconnector),
		)

		dataTr.OnClose(func() {
			e.mu.Lock()
			manualStop := e.manualStop
			e.mu.Unlock()
			if !manualStop {
				reconnector.HandleDisconnect(xerr.NewTransportError("data-channel", xerr.ErrNotConnected))
			}
		})

		e.mu.Lock()
		e.data = dataCh
		e.dataPath = path
		e.reconnector = reconnector
		e.mu.Unlock()
	}

	if err = tr.Connect(); err != nil {
		return errors.Wrap(err, "process: connect transport")
	}
	if err = control.Start(); err != nil {
		return errors.Wrap(err, "process: start control channel")
	}

	if e.data != nil {
		if err = e.data.Start(); err != nil {
			return errors.Wrap(err, "process: start data channel")
		}
	}

	if opts.HeartbeatEnabled {
		sender := &channelSender{ch: control}
		hb := heartbeat.NewManager(sender, opts.HeartbeatOptions...)
		hb.OnMissed(func(ev heartbeat.MissedEvent) { m.metrics.HeartbeatsMissed.Inc() })
		hb.OnDead(func(ev heartbeat.DeadEvent) {
			m.metrics.HeartbeatsDead.Inc()
			nlog.Warningf("process(%s): heartbeat dead after %d missed beats", e.id, ev.MissedCount)
		})
		router.Subscribe(heartbeat.MethodPong, func(params tagged.Value) {
			seq, load := parsePongParams(params)
			hb.OnPongReceived(seq, load)
		})
		e.mu.Lock()
		e.hbManager = hb
		e.mu.Unlock()
		hb.Start()
	}

	return nil
}

func parsePongParams(v tagged.Value) (seq int64, load tagged.Value) {
	if v.Kind != tagged.KindMap {
		return 0, tagged.Null()
	}
	if s, ok := v.Map["seq"]; ok {
		seq = int64(s.Number)
	}
	if l, ok := v.Map["load"]; ok {
		load = l
	} else {
		load = tagged.Null()
	}
	return seq, load
}

func (m *Manager) rollback(e *entry) {
	e.mu.Lock()
	control, data, tr, hb, rc := e.control, e.data, e.transport, e.hbManager, e.reconnector
	e.mu.Unlock()

	if rc != nil {
		rc.Cancel()
	}
	if hb != nil {
		hb.Stop()
	}
	if data != nil {
		_ = data.Close()
	}
	if control != nil {
		_ = control.Close()
	}
	if tr != nil {
		_ = tr.Disconnect()
	}
}

// Terminate stops the process identified by id gracefully, falling back
// to a forced kill if it does not cooperate (§4.9).
func (m *Manager) Terminate(id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return xerr.NewLifecycleError(id, "unknown process", nil)
	}
	return m.terminateEntry(e, "manual terminate")
}

func (m *Manager) terminateEntry(e *entry, reason string) error {
	e.mu.Lock()
	e.manualStop = true
	e.state = StateStopping
	hb := e.hbManager
	rc := e.reconnector
	e.mu.Unlock()

	if rc != nil {
		rc.Cancel()
	}
	if hb != nil {
		hb.Stop()
	}

	gracefulTimeout := defaultGracefulShutdown
	if e.options.ShutdownGracefulTimeout > 0 {
		gracefulTimeout = e.options.ShutdownGracefulTimeout
	}
	shutdownOpts := []shutdown.Option{shutdown.WithGracefulTimeout(gracefulTimeout)}
	if e.options.ShutdownRequestTimeout > 0 {
		shutdownOpts = append(shutdownOpts, shutdown.WithRequestTimeout(e.options.ShutdownRequestTimeout))
	}
	sm := shutdown.NewManager(&shutdownTarget{e: e}, shutdownOpts...)
	sm.Run(reason)

	e.mu.Lock()
	e.state = StateStopped
	control, data, tr := e.control, e.data, e.transport
	e.mu.Unlock()

	if data != nil {
		_ = data.Close()
	}
	if control != nil {
		_ = control.Close()
	}
	if tr != nil {
		_ = tr.Disconnect()
	}

	m.mu.Lock()
	delete(m.entries, e.id)
	m.mu.Unlock()
	return nil
}

// List returns a point-in-time snapshot of every managed process (§4.9
// supplemented introspection).
func (m *Manager) List() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handle, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.snapshot())
	}
	return out
}

// Get returns the current handle for id, if managed.
func (m *Manager) Get(id string) (Handle, bool) {
	m.mu.Lock()
	e, ok := m.entries[id]
	m.mu.Unlock()
	if !ok {
		return Handle{}, false
	}
	return e.snapshot(), true
}

// Control returns the control channel of the managed process id, for
// issuing requests/notifications to the worker. ok is false if id is not
// currently managed.
func (m *Manager) Control(id string) (ch *channel.Channel, ok bool) {
	m.mu.Lock()
	e, exists := m.entries[id]
	m.mu.Unlock()
	if !exists {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.control, e.control != nil
}

// Data returns the data channel of the managed process id, if one was
// enabled via SpawnOptions.DataChannelEnabled. ok is false if id is not
// currently managed or no data channel was configured.
func (m *Manager) Data(id string) (ch *channel.Channel, ok bool) {
	m.mu.Lock()
	e, exists := m.entries[id]
	m.mu.Unlock()
	if !exists {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data, e.data != nil
}

func (e *entry) snapshot() Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	pid := 0
	if e.transport != nil {
		pid = e.transport.Pid()
	}
	return Handle{
		ID:             e.id,
		InstanceToken:  e.instanceToken,
		Pid:            pid,
		State:          e.state,
		RestartAttempt: e.restartAttempt,
		ControlChannel: e.control,
		DataChannel:    e.data,
	}
}

func backoffDelay(policy RestartPolicy, attempt int) time.Duration {
	raw := float64(policy.BackoffMS) * math.Pow(2, float64(attempt))
	if policy.MaxBackoffMS > 0 && raw > float64(policy.MaxBackoffMS) {
		raw = float64(policy.MaxBackoffMS)
	}
	return time.Duration(raw) * time.Millisecond
}
