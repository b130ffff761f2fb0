// Package channel implements the channel engine (C5, §4.5): it composes
// a Transport, a Framer, a serialization Codec, and a Protocol into a
// single bidirectional request/response + notification API, matching the
// teacher's pattern of building one cohesive engine type out of smaller,
// independently testable layers (as transport/bundle composed stream
// writers out of a pool in the removed teacher package).
package channel

import (
	"sync"
	"time"

	"github.com/sebastianwebdev/procwire/codec"
	"github.com/sebastianwebdev/procwire/framer"
	"github.com/sebastianwebdev/procwire/internal/dbg"
	"github.com/sebastianwebdev/procwire/internal/nlog"
	"github.com/sebastianwebdev/procwire/internal/xerr"
	"github.com/sebastianwebdev/procwire/proto"
	"github.com/sebastianwebdev/procwire/reconnect"
	"github.com/sebastianwebdev/procwire/tagged"
	"github.com/sebastianwebdev/procwire/transport"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultCloseGrace     = 200 * time.Millisecond
)

// RequestHandler answers an inbound request; a returned error becomes an
// error response with code CodeInternalError (§4.5).
type RequestHandler func(method string, params tagged.Value) (tagged.Value, error)

// NotificationHandler handles an inbound fire-and-forget notification.
type NotificationHandler func(method string, params tagged.Value)

// Option configures a Channel.
type Option func(*Channel)

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Channel) { c.defaultTimeout = d }
}

func WithResponseAccessor(a proto.ResponseAccessor) Option {
	return func(c *Channel) { c.accessor = a }
}

func WithCodec(cd codec.Codec) Option {
	return func(c *Channel) { c.codec = cd }
}

// WithCloseGrace overrides the grace window Close gives in-flight writes
// to finish flushing before the pending table is rejected (§ supplemented
// feature: graceful drain on Close).
func WithCloseGrace(d time.Duration) Option {
	return func(c *Channel) { c.closeGrace = d }
}

// WithReconnect attaches a reconnect.Manager so a Request issued while the
// transport is mid-reconnect is queued (via rm.QueueRequest) instead of
// failing immediately, and replayed once the transport comes back up
// (§4.7 reconnect state's "bounded queue of pending requests captured
// during the outage").
func WithReconnect(rm *reconnect.Manager) Option {
	return func(c *Channel) { c.reconnect = rm }
}

type pendingEntry struct {
	resultCh chan outcome
	timer    *time.Timer
}

type outcome struct {
	value tagged.Value
	err   error
}

// Channel composes one Transport over one Framer/Codec/Protocol stack
// into the public request/notify/onRequest/onNotification API (§4.5).
type Channel struct {
	tr    transport.Transport
	frm   framer.Framer
	codec codec.Codec
	proto proto.Protocol

	accessor       proto.ResponseAccessor
	defaultTimeout time.Duration
	closeGrace     time.Duration
	reconnect      *reconnect.Manager

	mu          sync.Mutex
	started     bool
	closed      bool
	pending     map[any]*pendingEntry
	onRequest   RequestHandler
	onNotify    NotificationHandler
	unsubData   func()
	unsubErr    func()
	unsubClose  func()
	writeMu     sync.Mutex
}

func New(tr transport.Transport, frm framer.Framer, cd codec.Codec, p proto.Protocol, opts ...Option) *Channel {
	c := &Channel{
		tr:             tr,
		frm:            frm,
		codec:          cd,
		proto:          p,
		accessor:       proto.DefaultAccessor(p),
		defaultTimeout: defaultRequestTimeout,
		closeGrace:     defaultCloseGrace,
		pending:        make(map[any]*pendingEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnRequest registers the single dispatcher for inbound requests.
func (c *Channel) OnRequest(h RequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRequest = h
}

// OnNotification registers the single dispatcher for inbound notifications.
func (c *Channel) OnNotification(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNotify = h
}

// Start connects the transport, subscribes to its streams, and resets
// the framer. Idempotent (§4.5).
func (c *Channel) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	c.frm.Reset()
	c.unsubData = c.tr.OnData(c.handleChunk)
	c.unsubErr = c.tr.OnError(c.handleTransportError)
	c.unsubClose = c.tr.OnClose(c.handleTransportClose)

	if c.tr.State() != transport.StateConnected {
		if err := c.tr.Connect(); err != nil {
			return err
		}
	}
	return nil
}

// Close disconnects the transport and rejects all pending requests with
// a channel-closed error. Idempotent (§4.5).
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.closeGrace > 0 {
		time.Sleep(c.closeGrace)
	}

	if c.unsubData != nil {
		c.unsubData()
	}
	if c.unsubErr != nil {
		c.unsubErr()
	}
	if c.unsubClose != nil {
		c.unsubClose()
	}

	err := c.tr.Disconnect()
	c.rejectAllPending(xerr.ErrChannelClosed)
	return err
}

func (c *Channel) rejectAllPending(cause error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[any]*pendingEntry)
	c.mu.Unlock()

	for _, e := range pending {
		e.timer.Stop()
		select {
		case e.resultCh <- outcome{err: xerr.NewTransportError("channel-closed", cause)}:
		default:
		}
	}
}

// Request sends method/params, waits for the matching response, and
// returns its result or a {timeout, channel-closed, remote-error,
// serialization-error} failure (§4.5). If a reconnect.Manager was
// attached via WithReconnect and the transport is currently mid-outage,
// the request is queued and replayed once reconnection succeeds rather
// than failing immediately.
func (c *Channel) Request(method string, params tagged.Value, timeoutOverride ...time.Duration) (tagged.Value, error) {
	c.mu.Lock()
	closed := c.closed
	rm := c.reconnect
	reconnecting := rm != nil && c.tr.State() != transport.StateConnected
	c.mu.Unlock()

	if closed {
		return tagged.Null(), xerr.NewTransportError("request", xerr.ErrChannelClosed)
	}
	if reconnecting {
		if res, queued := c.queueRequest(rm, method, params, timeoutOverride...); queued {
			return res.value, res.err
		}
	}
	return c.doRequest(method, params, timeoutOverride...)
}

// queueRequest hands the request to rm as an Executor replayed on
// reconnect success; queued reports whether rm actually accepted it
// (false when the manager isn't mid-reconnect or its queue is full, in
// which case the caller falls through to the direct send/fail path).
func (c *Channel) queueRequest(rm *reconnect.Manager, method string, params tagged.Value, timeoutOverride ...time.Duration) (outcome, bool) {
	resultCh := rm.QueueRequest(method, func() (any, error) {
		v, err := c.doRequest(method, params, timeoutOverride...)
		return v, err
	})
	if resultCh == nil {
		return outcome{}, false
	}
	r := <-resultCh
	if r.Err != nil {
		return outcome{err: r.Err}, true
	}
	v, _ := r.Value.(tagged.Value)
	return outcome{value: v}, true
}

func (c *Channel) doRequest(method string, params tagged.Value, timeoutOverride ...time.Duration) (tagged.Value, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return tagged.Null(), xerr.NewTransportError("request", xerr.ErrChannelClosed)
	}
	id := c.proto.NextID()
	timeout := c.defaultTimeout
	if len(timeoutOverride) > 0 {
		timeout = timeoutOverride[0]
	}
	entry := &pendingEntry{resultCh: make(chan outcome, 1)}
	key := id.Key()
	_, collision := c.pending[key]
	dbg.Assertf(!collision, "channel: request id %v collides with a still-pending entry", id)
	c.pending[key] = entry
	c.mu.Unlock()

	entry.timer = time.AfterFunc(timeout, func() {
		c.mu.Lock()
		if _, ok := c.pending[key]; ok {
			delete(c.pending, key)
		} else {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		nlog.Warningf("channel: request %v (%s) timed out after %s", id, method, timeout)
		select {
		case entry.resultCh <- outcome{err: xerr.NewTimeoutError("request:" + method)}:
		default:
		}
	})

	req := c.proto.CreateRequest(method, params, id)
	if err := c.writeEnvelope(req); err != nil {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		entry.timer.Stop()
		return tagged.Null(), err
	}

	res := <-entry.resultCh
	if res.err != nil {
		return tagged.Null(), res.err
	}
	return res.value, nil
}

// Notify sends a fire-and-forget notification; it resolves once the
// write completes (§4.5).
func (c *Channel) Notify(method string, params tagged.Value) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return xerr.NewTransportError("notify", xerr.ErrChannelClosed)
	}
	notif := c.proto.CreateNotification(method, params)
	return c.writeEnvelope(notif)
}

func (c *Channel) writeEnvelope(msg any) error {
	obj, err := c.proto.Encode(msg)
	if err != nil {
		return err
	}
	raw, err := c.codec.Serialize(tagged.OfMap(obj).Native())
	if err != nil {
		return xerr.NewSerializationError(c.codec.Name(), err)
	}
	framed, err := c.frm.Encode(raw)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.tr.Write(framed)
}

func (c *Channel) handleTransportError(err error) {
	nlog.Errorf("channel: transport error: %v", err)
}

func (c *Channel) handleTransportClose() {
	c.rejectAllPending(xerr.ErrChannelClosed)
}

// handleChunk implements the inbound dispatch algorithm (§4.5).
func (c *Channel) handleChunk(chunk []byte) {
	payloads, err := c.frm.Decode(chunk)
	if err != nil {
		nlog.Errorf("channel: framing error: %v", err)
		return
	}
	for _, payload := range payloads {
		c.dispatchPayload(payload)
	}
}

func (c *Channel) dispatchPayload(payload []byte) {
	native, err := c.codec.Deserialize(payload)
	if err != nil {
		nlog.Warningf("channel: deserialize error, dropping payload: %v", err)
		c.writeParseErrorIfRecoverable(nil, err)
		return
	}
	val := tagged.FromNative(native)
	if val.Kind != tagged.KindMap {
		nlog.Warningf("channel: payload is not an object envelope, dropping")
		return
	}

	kind, msg := c.proto.Parse(val.Map)
	switch kind {
	case proto.KindRequest:
		c.handleInboundRequest(msg.(proto.Request))
	case proto.KindResponse:
		c.handleInboundResponse(msg.(proto.Response))
	case proto.KindNotification:
		c.handleInboundNotification(msg.(proto.Notification))
	default:
		nlog.Warningf("channel: invalid inbound envelope, dropping")
		c.writeParseErrorIfRecoverable(val.Map, nil)
	}
}

// writeParseErrorIfRecoverable implements the malformed-but-recoverable
// request path (§4.4): if the rejected envelope still carries a usable
// request id, a parse-error response is sent back instead of silently
// dropping it. obj is nil when the payload didn't even deserialize to a
// map (nothing to recover an id from).
func (c *Channel) writeParseErrorIfRecoverable(obj map[string]tagged.Value, cause error) {
	if obj == nil {
		return
	}
	id, ok := c.proto.RecoverRequestID(obj)
	if !ok {
		return
	}
	msg := "parse error"
	if cause != nil {
		msg = cause.Error()
	}
	resp := c.proto.CreateErrorResponse(id, proto.CodeParseError, msg, tagged.Null())
	if werr := c.writeEnvelope(resp); werr != nil {
		nlog.Errorf("channel: failed writing parse-error response: %v", werr)
	}
}

func (c *Channel) handleInboundRequest(req proto.Request) {
	c.mu.Lock()
	h := c.onRequest
	c.mu.Unlock()
	if h == nil {
		nlog.Warningf("channel: no request handler registered, method %q", req.Method)
		return
	}

	result, err := safeInvokeRequest(h, req)
	var resp proto.Response
	if err != nil {
		resp = c.proto.CreateErrorResponse(req.ID, proto.CodeInternalError, err.Error(), tagged.Null())
	} else {
		resp = c.proto.CreateResponse(req.ID, result)
	}
	if werr := c.writeEnvelope(resp); werr != nil {
		nlog.Errorf("channel: failed writing response to %q: %v", req.Method, werr)
	}
}

func safeInvokeRequest(h RequestHandler, req proto.Request) (result tagged.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerr.NewProtocolError("handler for %q panicked: %v", req.Method, r)
		}
	}()
	return h(req.Method, req.Params)
}

func (c *Channel) handleInboundResponse(resp proto.Response) {
	key := resp.ID.Key()
	c.mu.Lock()
	entry, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		// I3: a late or unknown-id response is dropped by the channel.
		nlog.Warningf("channel: response for unknown/expired id %v dropped", resp.ID)
		return
	}
	entry.timer.Stop()

	result, rpcErr := c.accessor(resp)
	if rpcErr != nil {
		entry.resultCh <- outcome{err: xerr.NewRemoteError(rpcErr.Code, rpcErr.Message, rpcErr.Data.Native())}
		return
	}
	entry.resultCh <- outcome{value: result}
}

func (c *Channel) handleInboundNotification(n proto.Notification) {
	c.mu.Lock()
	h := c.onNotify
	c.mu.Unlock()
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			nlog.Errorf("channel: notification handler for %q panicked: %v", n.Method, r)
		}
	}()
	h(n.Method, n.Params)
}
