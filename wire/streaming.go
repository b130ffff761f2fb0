package wire

import "github.com/sebastianwebdev/procwire/internal/chunkbuf"

// StreamHandler receives payload bytes as they arrive, without the parser
// ever buffering an entire payload (§4.2 Streaming mode).
type StreamHandler interface {
	OnFrameStart(h Header)
	OnPayloadChunk(slice []byte, offset int, isLast bool)
	OnFrameEnd(h Header)
	OnError(err error, partial *Header)
}

// StreamingParser drives a StreamHandler instead of producing Frame
// records. Mode switching between BatchParser and StreamingParser is
// only safe when no bytes are buffered (enforced by Parser, below).
type StreamingParser struct {
	maxPayload uint32
	handler    StreamHandler

	buf     chunkbuf.Buf
	state   batchState
	hdr     Header
	sent    int // payload bytes already delivered to the handler for hdr
	broken  bool
}

func NewStreamingParser(handler StreamHandler, opts ...BatchOption) *StreamingParser {
	p := &StreamingParser{maxPayload: DefaultMaxPayload, handler: handler}
	shim := &BatchParser{}
	for _, opt := range opts {
		opt(shim)
	}
	p.maxPayload = shim.maxPayload
	return p
}

// Push feeds chunk through the streaming state machine, invoking handler
// callbacks as soon as bytes are available — never buffering a whole
// payload.
func (p *StreamingParser) Push(chunk []byte) {
	if p.broken {
		return
	}
	p.buf.Push(chunk)

	for {
		switch p.state {
		case batchWantHeader:
			if p.buf.Len() < HeaderSize {
				return
			}
			hdrBytes := p.buf.Slice(0, HeaderSize)
			h := DecodeHeader(hdrBytes)
			if err := Validate(h, p.maxPayload); err != nil {
				p.broken = true
				p.handler.OnError(err, &h)
				return
			}
			p.buf.DropFront(HeaderSize)
			p.hdr = h
			p.sent = 0
			p.state = batchWantPayload
			p.handler.OnFrameStart(h)
			if h.PayloadLength == 0 {
				p.handler.OnFrameEnd(h)
				p.state = batchWantHeader
			}

		case batchWantPayload:
			avail := p.buf.Len()
			if avail == 0 {
				return
			}
			remaining := int(p.hdr.PayloadLength) - p.sent
			take := avail
			if take > remaining {
				take = remaining
			}
			if take == 0 {
				return
			}
			slice := p.buf.Slice(0, take)
			p.buf.DropFront(take)
			p.sent += take
			isLast := p.sent == int(p.hdr.PayloadLength)
			p.handler.OnPayloadChunk(slice, p.sent-take, isLast)
			if isLast {
				p.handler.OnFrameEnd(p.hdr)
				p.state = batchWantHeader
			}
		}
	}
}

func (p *StreamingParser) HasBufferedData() bool { return p.buf.Len() > 0 }

// Reset discards buffered state, only valid when not mid-frame in a way
// that would lose data silently; callers should only Reset between
// frames (HasBufferedData()==false) or after OnError.
func (p *StreamingParser) Reset() {
	p.buf.Reset()
	p.state = batchWantHeader
	p.hdr = Header{}
	p.sent = 0
	p.broken = false
}
