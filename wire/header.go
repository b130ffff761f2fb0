// Package wire implements the binary data-plane wire format (§3, §4.2,
// §6): an 11-byte fixed header plus variable payload, parsed in either
// batch or streaming mode. Grounded on the teacher's transport/pdu.go
// proto-header state machine (header-then-payload, never buffering more
// than one in-flight frame's worth of bookkeeping) generalized from a
// single "object" shape to the spec's {methodId, flags, requestId}
// header.
package wire

import (
	"encoding/binary"

	"github.com/sebastianwebdev/procwire/internal/dbg"
	"github.com/sebastianwebdev/procwire/internal/xerr"
)

// HeaderSize is the fixed size of a binary data-plane frame header.
const HeaderSize = 11

// Flag bits (§3).
const (
	FlagToParent    uint8 = 1 << 0
	FlagIsResponse  uint8 = 1 << 1
	FlagIsError     uint8 = 1 << 2
	FlagIsStream    uint8 = 1 << 3
	FlagStreamEnd   uint8 = 1 << 4
	FlagIsAck       uint8 = 1 << 5
	flagReservedMask uint8 = 1<<6 | 1<<7
)

// Reserved method ids.
const (
	MethodIDInvalid uint16 = 0
	MethodIDAbort   uint16 = 0xFFFF
)

// RequestIDFireAndForget is the sentinel requestId meaning "no reply
// expected".
const RequestIDFireAndForget uint32 = 0

const (
	// DefaultMaxPayload is the configured default payload ceiling.
	DefaultMaxPayload = 1 << 30 // 1 GiB
	// AbsoluteMaxPayload is the hard ceiling no configuration may exceed.
	AbsoluteMaxPayload = 2 << 30 // ~2 GiB
)

// Header is the fixed 11-byte prefix of a binary data-plane frame.
type Header struct {
	MethodID      uint16
	Flags         uint8
	RequestID     uint32
	PayloadLength uint32
}

// EncodeHeader writes h into an 11-byte buffer.
func EncodeHeader(h Header) [HeaderSize]byte {
	var b [HeaderSize]byte
	binary.BigEndian.PutUint16(b[0:2], h.MethodID)
	b[2] = h.Flags
	binary.BigEndian.PutUint32(b[3:7], h.RequestID)
	binary.BigEndian.PutUint32(b[7:11], h.PayloadLength)
	return b
}

// DecodeHeader parses an 11-byte buffer into a Header. It performs no
// validation (§8 P7/seed-scenario-4: decode always succeeds; Validate is
// the separate rejection step).
func DecodeHeader(b []byte) Header {
	dbg.Assertf(len(b) >= HeaderSize, "DecodeHeader: buffer too short (%d < %d)", len(b), HeaderSize)
	return Header{
		MethodID:      binary.BigEndian.Uint16(b[0:2]),
		Flags:         b[2],
		RequestID:     binary.BigEndian.Uint32(b[3:7]),
		PayloadLength: binary.BigEndian.Uint32(b[7:11]),
	}
}

// Validate applies the header validation rules of §4.2: reject
// methodId==0, reject reserved flag bits, reject payloadLength over max.
func Validate(h Header, maxPayload uint32) error {
	if h.MethodID == MethodIDInvalid {
		return xerr.NewFramingError("binary header: methodId 0 is reserved/invalid")
	}
	if h.Flags&flagReservedMask != 0 {
		return xerr.NewFramingError("binary header: reserved flag bits set (flags=0x%02x)", h.Flags)
	}
	if h.PayloadLength > maxPayload {
		return xerr.NewFramingError("binary header: payloadLength %d exceeds max %d", h.PayloadLength, maxPayload)
	}
	return nil
}

// Frame is a fully decoded binary data-plane frame.
type Frame struct {
	Header Header
	// chunks holds the zero-copy payload slices in arrival order.
	chunks [][]byte
}

// Chunks exposes the payload as zero-copy slices (no concatenation).
func (f Frame) Chunks() [][]byte { return f.chunks }

// Payload concatenates the payload chunks on demand.
func (f Frame) Payload() []byte {
	if len(f.chunks) == 1 {
		return f.chunks[0]
	}
	out := make([]byte, 0, f.Header.PayloadLength)
	for _, c := range f.chunks {
		out = append(out, c...)
	}
	return out
}

// BuildFrame produces a single contiguous header+payload byte sequence.
func BuildFrame(h Header, payload []byte) []byte {
	h.PayloadLength = uint32(len(payload))
	hdr := EncodeHeader(h)
	out := make([]byte, HeaderSize+len(payload))
	copy(out, hdr[:])
	copy(out[HeaderSize:], payload)
	return out
}

// ScatterFrame is a {header, payload} pair for writev-style scatter
// writes, so large payloads are never copied just to prepend a header.
type ScatterFrame struct {
	Header  [HeaderSize]byte
	Payload []byte
}

// BuildScatterFrame produces a ScatterFrame for h/payload.
func BuildScatterFrame(h Header, payload []byte) ScatterFrame {
	h.PayloadLength = uint32(len(payload))
	return ScatterFrame{Header: EncodeHeader(h), Payload: payload}
}
