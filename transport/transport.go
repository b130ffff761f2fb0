// Package transport implements the raw byte-conduit layer (§4.3): a
// small state machine plus three concrete adapters (standard-stream,
// local endpoint client, local endpoint server) sharing one Transport
// contract so the layers above (framer, codec, protocol, channel) never
// know which conduit they are speaking over.
//
// Grounded on the teacher's now-removed transport package: the same
// disconnected/connecting/connected/closing/closed/error state machine,
// the same callback-subscription style for observable streams (rather
// than unbounded Go channels that could be forgotten and leak), and the
// same guard-var idiom (var _ Transport = (*T)(nil)) at the bottom of
// every adapter file.
package transport

import (
	"sync"
	"sync/atomic"

	"github.com/sebastianwebdev/procwire/internal/nlog"
	"github.com/sebastianwebdev/procwire/internal/xerr"
)

// State is a Transport's position in the connection lifecycle (§3, §4.3).
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// ExitInfo is delivered to an OnExit subscriber when the underlying
// process behind a Transport terminates (standard-stream transports only).
type ExitInfo struct {
	Code   int
	Signal string
}

// Transport is the shared contract for every raw byte conduit (§3).
// Implementations must be safe for one writer and one reader goroutine
// to use concurrently; a Transport is never shared across channels.
type Transport interface {
	Connect() error
	Disconnect() error
	Write(b []byte) error
	State() State

	OnData(func(chunk []byte)) (unsubscribe func())
	OnError(func(err error)) (unsubscribe func())
	OnClose(func()) (unsubscribe func())
}

// subscribers is the shared, mutex-protected callback-list plumbing used
// by every concrete adapter to implement the Transport observable streams.
type subscribers struct {
	mu       sync.Mutex
	onData   []func([]byte)
	onError  []func(error)
	onClose  []func()
	onExit   []func(ExitInfo)
	closedFn bool
}

func (s *subscribers) OnData(fn func([]byte)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = append(s.onData, fn)
	idx := len(s.onData) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.onData) {
			s.onData[idx] = nil
		}
	}
}

func (s *subscribers) OnError(fn func(error)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = append(s.onError, fn)
	idx := len(s.onError) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.onError) {
			s.onError[idx] = nil
		}
	}
}

func (s *subscribers) OnClose(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
	idx := len(s.onClose) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.onClose) {
			s.onClose[idx] = nil
		}
	}
}

func (s *subscribers) OnExit(fn func(ExitInfo)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = append(s.onExit, fn)
	idx := len(s.onExit) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.onExit) {
			s.onExit[idx] = nil
		}
	}
}

func (s *subscribers) emitData(chunk []byte) {
	s.mu.Lock()
	fns := append([]func([]byte){}, s.onData...)
	s.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(chunk)
		}
	}
}

func (s *subscribers) emitError(err error) {
	s.mu.Lock()
	fns := append([]func(error){}, s.onError...)
	s.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(err)
		}
	}
}

func (s *subscribers) emitClose() {
	s.mu.Lock()
	if s.closedFn {
		s.mu.Unlock()
		return
	}
	s.closedFn = true
	fns := append([]func(){}, s.onClose...)
	s.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

func (s *subscribers) emitExit(info ExitInfo) {
	s.mu.Lock()
	fns := append([]func(ExitInfo){}, s.onExit...)
	s.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn(info)
		}
	}
}

// stateBox is an atomically-read/written State, shared by every adapter
// so State() never takes a lock on the hot path.
type stateBox struct{ v atomic.Int32 }

func (b *stateBox) get() State       { return State(b.v.Load()) }
func (b *stateBox) set(s State)      { b.v.Store(int32(s)) }
func (b *stateBox) transition(from, to State) bool {
	return b.v.CompareAndSwap(int32(from), int32(to))
}

func errNotConnected(op string) error {
	return xerr.NewTransportError(op, xerr.ErrNotConnected)
}

func logExit(name string, info ExitInfo) {
	nlog.Infof("transport(%s): child exited code=%d signal=%q", name, info.Code, info.Signal)
}
