package channel_test

import (
	"sync"

	"github.com/sebastianwebdev/procwire/transport"
)

// fakeTransport is an in-memory Transport used to exercise the channel
// engine without spawning a real process or socket.
type fakeTransport struct {
	mu      sync.Mutex
	state   transport.State
	peer    *fakeTransport
	onData  []func([]byte)
	onError []func(error)
	onClose []func()
}

func linkedPair() (a, b *fakeTransport) {
	a = &fakeTransport{state: transport.StateDisconnected}
	b = &fakeTransport{state: transport.StateDisconnected}
	a.peer = b
	b.peer = a
	return a, b
}

func (t *fakeTransport) Connect() error {
	t.mu.Lock()
	t.state = transport.StateConnected
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Disconnect() error {
	t.mu.Lock()
	t.state = transport.StateClosed
	fns := append([]func(){}, t.onClose...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return nil
}

func (t *fakeTransport) Write(b []byte) error {
	cp := append([]byte(nil), b...)
	go t.peer.deliver(cp)
	return nil
}

func (t *fakeTransport) deliver(chunk []byte) {
	t.mu.Lock()
	fns := append([]func([]byte){}, t.onData...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn(chunk)
	}
}

func (t *fakeTransport) State() transport.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *fakeTransport) OnData(fn func([]byte)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onData = append(t.onData, fn)
	idx := len(t.onData) - 1
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.onData[idx] = nil
	}
}

func (t *fakeTransport) OnError(fn func(error)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = append(t.onError, fn)
	return func() {}
}

func (t *fakeTransport) OnClose(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = append(t.onClose, fn)
	return func() {}
}

var _ transport.Transport = (*fakeTransport)(nil)
