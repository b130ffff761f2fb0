// Package proto implements the protocol layer (§4.4): classification and
// construction of request/response/notification envelopes, in two
// interchangeable flavors (JSON-RPC 2.0 and Simple).
package proto

import (
	"strconv"
	"sync/atomic"

	"github.com/sebastianwebdev/procwire/internal/xerr"
	"github.com/sebastianwebdev/procwire/tagged"
)

// IDKind discriminates the three legal shapes of a JSON-RPC/Simple id.
type IDKind int

const (
	IDNull IDKind = iota
	IDString
	IDNumber
)

// ID is the correlation id carried by requests and responses. The zero
// value is IDNull.
type ID struct {
	Kind IDKind
	Str  string
	Num  float64
}

func StringID(s string) ID { return ID{Kind: IDString, Str: s} }
func NumberID(n float64) ID { return ID{Kind: IDNumber, Num: n} }
func NullID() ID            { return ID{Kind: IDNull} }

// Key returns a value suitable for use as a map key correlating pending
// requests (invariant I1: at most one outstanding request per id).
func (id ID) Key() any {
	switch id.Kind {
	case IDString:
		return "s:" + id.Str
	case IDNumber:
		return id.Num
	default:
		return nil
	}
}

func (id ID) String() string {
	switch id.Kind {
	case IDString:
		return id.Str
	case IDNumber:
		return formatNumberID(id.Num)
	default:
		return "<null>"
	}
}

// Kind of envelope produced by parsing inbound bytes.
type Kind int

const (
	Invalid Kind = iota
	KindRequest
	KindResponse
	KindNotification
)

type (
	// Request carries a correlation id, method name, and optional params.
	Request struct {
		ID     ID
		Method string
		Params tagged.Value
	}

	// Response carries exactly one of Result or IsError (JSON-RPC); the
	// Simple protocol may carry both, and the channel's response
	// accessor decides which wins (§9 Open Question — Result wins).
	Response struct {
		ID      ID
		Result  tagged.Value
		IsError bool
		Error   *RPCError
	}

	// Notification has a method and optional params, and no id.
	Notification struct {
		Method string
		Params tagged.Value
	}

	// RPCError is the structured error payload of an error Response.
	RPCError struct {
		Code    int
		Message string
		Data    tagged.Value
	}
)

// Standard JSON-RPC error codes (§3 Protocol).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Protocol is the shared contract implemented by JSONRPC and Simple.
type Protocol interface {
	Name() string

	CreateRequest(method string, params tagged.Value, id ID) Request
	CreateResponse(id ID, result tagged.Value) Response
	CreateErrorResponse(id ID, code int, message string, data tagged.Value) Response
	CreateNotification(method string, params tagged.Value) Notification

	// Encode/Decode marshal a typed envelope to/from bytes for the
	// given serialization codec's native representation. Implementations
	// delegate the actual byte encoding to the codec and only shape the
	// wire envelope (jsonrpc/type tag, field names).
	Encode(msg any) (map[string]tagged.Value, error)
	Parse(obj map[string]tagged.Value) (Kind, any)

	// NextID returns the protocol's own monotonically increasing id;
	// callers (the channel) may instead supply an application id.
	NextID() ID

	// RecoverRequestID makes a best-effort attempt to pull a correlation
	// id out of an envelope that Parse rejected as Invalid, so the
	// channel can still send a parse-error response back to the caller
	// instead of dropping it silently (§4.4 malformed-but-recoverable
	// request). ok is false when obj doesn't look request-shaped enough
	// to carry a usable id (no method field, or the id field itself is
	// malformed).
	RecoverRequestID(obj map[string]tagged.Value) (id ID, ok bool)
}

// idCounter is embedded by both protocol implementations to satisfy the
// "protocol owns a monotonically increasing counter per instance" rule.
type idCounter struct {
	n atomic.Int64
}

func (c *idCounter) next() ID {
	return NumberID(float64(c.n.Add(1)))
}

// NewProtocolError builds a *xerr.ProtocolError for an envelope that does
// not conform to a protocol's wire contract.
func NewProtocolError(format string, a ...any) error {
	return xerr.NewProtocolError(format, a...)
}

func formatNumberID(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
