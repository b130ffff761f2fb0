package transport

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/sebastianwebdev/procwire/internal/nlog"
	"github.com/sebastianwebdev/procwire/internal/xerr"
)

const (
	defaultStartupTimeout = 10 * time.Second
	readBufferSize        = 64 * 1024
)

// StdioOption configures a StdioTransport.
type StdioOption func(*StdioTransport)

func WithArgs(args ...string) StdioOption {
	return func(t *StdioTransport) { t.args = args }
}

func WithDir(dir string) StdioOption {
	return func(t *StdioTransport) { t.dir = dir }
}

func WithEnv(env []string) StdioOption {
	return func(t *StdioTransport) { t.env = env }
}

func WithStartupTimeout(d time.Duration) StdioOption {
	return func(t *StdioTransport) { t.startupTimeout = d }
}

// WithPTY allocates a pseudo-terminal (§4.3A) instead of three plain
// pipes, for workers that behave differently when attached to a tty.
func WithPTY() StdioOption {
	return func(t *StdioTransport) { t.usePTY = true }
}

// StdioTransport spawns a child process and speaks to it over its
// standard input/output; standard error is forwarded to the logger
// (§4.3). One instance is created per spawned process and is never
// reused across respawns.
type StdioTransport struct {
	subscribers
	state stateBox

	name string
	args []string
	dir  string
	env  []string

	startupTimeout time.Duration
	usePTY         bool

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	ptyConn *os.File
}

func NewStdioTransport(name string, opts ...StdioOption) *StdioTransport {
	t := &StdioTransport{name: name, startupTimeout: defaultStartupTimeout}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *StdioTransport) State() State { return t.state.get() }

// Pid returns the spawned process id, or 0 before Connect succeeds.
func (t *StdioTransport) Pid() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

func (t *StdioTransport) Connect() error {
	if !t.state.transition(StateDisconnected, StateConnecting) {
		return xerr.NewTransportError("connect", xerr.ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.startupTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.name, t.args...)
	cmd.Dir = t.dir
	if len(t.env) > 0 {
		cmd.Env = t.env
	}

	t.mu.Lock()
	t.cmd = cmd
	t.mu.Unlock()

	if t.usePTY {
		f, err := pty.Start(cmd)
		if err != nil {
			t.state.set(StateError)
			return xerr.NewTransportError("spawn", err)
		}
		t.mu.Lock()
		t.ptyConn = f
		t.stdin = f
		t.mu.Unlock()
		t.state.set(StateConnected)
		go t.readLoop(f)
		go t.waitLoop()
		return nil
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.state.set(StateError)
		return xerr.NewTransportError("spawn", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.state.set(StateError)
		return xerr.NewTransportError("spawn", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.state.set(StateError)
		return xerr.NewTransportError("spawn", err)
	}

	if err := cmd.Start(); err != nil {
		t.state.set(StateError)
		return xerr.NewTransportError("spawn", err)
	}

	t.mu.Lock()
	t.stdin = stdin
	t.mu.Unlock()

	t.state.set(StateConnected)
	go t.readLoop(stdout)
	go t.forwardStderr(stderr)
	go t.waitLoop()
	return nil
}

func (t *StdioTransport) readLoop(r io.Reader) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.emitData(chunk)
		}
		if err != nil {
			if err != io.EOF && t.state.get() == StateConnected {
				t.emitError(xerr.NewTransportError("read", err))
			}
			return
		}
	}
}

func (t *StdioTransport) forwardStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, readBufferSize), readBufferSize)
	for scanner.Scan() {
		nlog.Warningf("transport(%s): stderr: %s", t.name, scanner.Text())
	}
}

func (t *StdioTransport) waitLoop() {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()

	err := cmd.Wait()
	code, signal := exitDetails(cmd, err)
	t.state.set(StateClosed)
	t.emitExit(ExitInfo{Code: code, Signal: signal})
	t.emitClose()
}

func (t *StdioTransport) Write(b []byte) error {
	if t.state.get() != StateConnected {
		return errNotConnected("write")
	}
	t.mu.Lock()
	w := t.stdin
	t.mu.Unlock()
	if w == nil {
		return errNotConnected("write")
	}
	if _, err := w.Write(b); err != nil {
		t.emitError(xerr.NewTransportError("write", err))
		return xerr.NewTransportError("write", err)
	}
	return nil
}

func (t *StdioTransport) Disconnect() error {
	prev := t.state.get()
	if prev == StateClosed || prev == StateClosing {
		return nil
	}
	t.state.set(StateClosing)

	t.mu.Lock()
	cmd := t.cmd
	stdin := t.stdin
	t.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	t.state.set(StateClosed)
	t.emitClose()
	return nil
}

// OnExit subscribes to the child's exit event (§4.3).
func (t *StdioTransport) OnExit(fn func(ExitInfo)) func() { return t.subscribers.OnExit(fn) }

// Kill sends signal ("SIGTERM"/"SIGKILL") to the child process, used by
// the shutdown manager's forced-kill fallback (§4.8).
func (t *StdioTransport) Kill(signal string) error {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	return sendSignal(cmd, signal)
}

var _ Transport = (*StdioTransport)(nil)
