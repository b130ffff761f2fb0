package transport

import (
	"net"

	"github.com/google/uuid"

	"github.com/sebastianwebdev/procwire/internal/xerr"
)

const localReadBufferSize = 64 * 1024

// LocalEndpointTransport is a client-side conduit over a named pipe
// (Windows) or a local domain socket (elsewhere) (§4.3). One instance
// wraps exactly one connection.
type LocalEndpointTransport struct {
	subscribers
	state stateBox

	path string
	conn net.Conn
}

func NewLocalEndpointTransport(path string) *LocalEndpointTransport {
	return &LocalEndpointTransport{path: path}
}

func (t *LocalEndpointTransport) State() State { return t.state.get() }

func (t *LocalEndpointTransport) Connect() error {
	if !t.state.transition(StateDisconnected, StateConnecting) {
		return xerr.NewTransportError("connect", xerr.ErrNotConnected)
	}
	conn, err := dialLocal(t.path)
	if err != nil {
		t.state.set(StateError)
		return xerr.NewTransportError("dial", err)
	}
	t.conn = conn
	t.state.set(StateConnected)
	go t.readLoop()
	return nil
}

// wrapConn adapts an already-accepted server-side connection to the
// Transport contract (used by LocalEndpointServer).
func wrapConn(conn net.Conn) *LocalEndpointTransport {
	t := &LocalEndpointTransport{conn: conn}
	t.state.set(StateConnected)
	go t.readLoop()
	return t
}

func (t *LocalEndpointTransport) readLoop() {
	buf := make([]byte, localReadBufferSize)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.emitData(chunk)
		}
		if err != nil {
			if t.state.get() == StateConnected {
				t.emitError(xerr.NewTransportError("read", err))
			}
			t.state.set(StateClosed)
			t.emitClose()
			return
		}
	}
}

func (t *LocalEndpointTransport) Write(b []byte) error {
	if t.state.get() != StateConnected {
		return errNotConnected("write")
	}
	if _, err := t.conn.Write(b); err != nil {
		t.emitError(xerr.NewTransportError("write", err))
		return xerr.NewTransportError("write", err)
	}
	return nil
}

func (t *LocalEndpointTransport) Disconnect() error {
	prev := t.state.get()
	if prev == StateClosed || prev == StateClosing {
		return nil
	}
	t.state.set(StateClosing)
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.state.set(StateClosed)
	t.emitClose()
	return nil
}

var _ Transport = (*LocalEndpointTransport)(nil)

// LocalEndpointServer accepts connections on a named pipe or local domain
// socket and yields a LocalEndpointTransport per connection (§4.3).
type LocalEndpointServer struct {
	path     string
	listener net.Listener

	onConn []func(connID string, t *LocalEndpointTransport)
}

func NewLocalEndpointServer(path string) *LocalEndpointServer {
	return &LocalEndpointServer{path: path}
}

// OnConnection registers a callback invoked once per accepted connection,
// with a fresh UUID identifying it for logging/metrics.
func (s *LocalEndpointServer) OnConnection(fn func(connID string, t *LocalEndpointTransport)) {
	s.onConn = append(s.onConn, fn)
}

// Listen starts the accept loop in a background goroutine.
func (s *LocalEndpointServer) Listen() error {
	l, err := listenLocal(s.path)
	if err != nil {
		return xerr.NewTransportError("listen", err)
	}
	s.listener = l
	go s.acceptLoop()
	return nil
}

func (s *LocalEndpointServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		t := wrapConn(conn)
		connID := uuid.NewString()
		for _, fn := range s.onConn {
			fn(connID, t)
		}
	}
}

func (s *LocalEndpointServer) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
