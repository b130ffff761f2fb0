package wire

import "github.com/sebastianwebdev/procwire/internal/chunkbuf"

// BatchOption configures a BatchParser.
type BatchOption func(*BatchParser)

// WithMaxPayload overrides DefaultMaxPayload; never above AbsoluteMaxPayload.
func WithMaxPayload(n uint32) BatchOption {
	return func(p *BatchParser) {
		if n > AbsoluteMaxPayload {
			n = AbsoluteMaxPayload
		}
		p.maxPayload = n
	}
}

type batchState int

const (
	batchWantHeader batchState = iota
	batchWantPayload
	batchBroken
)

// BatchParser is the default mode of the binary frame buffer (§4.2):
// push(chunk) appends without copying, and a loop inside Push assembles
// as many complete Frames as the buffered bytes allow.
type BatchParser struct {
	maxPayload uint32

	buf     chunkbuf.Buf
	state   batchState
	hdr     Header
	brokeOn error
}

func NewBatchParser(opts ...BatchOption) *BatchParser {
	p := &BatchParser{maxPayload: DefaultMaxPayload}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push appends chunk (zero copy) and returns every Frame completed by
// this call, in order. Once a malformed header is observed the parser
// enters an unrecoverable state (§4.2) and every subsequent Push returns
// the same error — the consumer is expected to destroy the transport.
func (p *BatchParser) Push(chunk []byte) ([]Frame, error) {
	if p.state == batchBroken {
		return nil, p.brokeOn
	}
	p.buf.Push(chunk)

	var frames []Frame
	for {
		switch p.state {
		case batchWantHeader:
			if p.buf.Len() < HeaderSize {
				return frames, nil
			}
			hdrBytes := p.buf.Slice(0, HeaderSize)
			h := DecodeHeader(hdrBytes)
			if err := Validate(h, p.maxPayload); err != nil {
				p.state = batchBroken
				p.brokeOn = err
				return frames, err
			}
			p.buf.DropFront(HeaderSize)
			p.hdr = h
			p.state = batchWantPayload

		case batchWantPayload:
			need := int(p.hdr.PayloadLength)
			if p.buf.Len() < need {
				return frames, nil
			}
			chunks := p.buf.SliceChunks(0, need)
			frames = append(frames, Frame{Header: p.hdr, chunks: chunks})
			p.buf.DropFront(need)
			p.state = batchWantHeader
		}
	}
}

func (p *BatchParser) Reset() {
	if p.state == batchBroken {
		// an unrecoverable parser must not be silently revived; callers
		// should discard it along with the transport per §4.2.
		return
	}
	p.buf.Reset()
	p.state = batchWantHeader
	p.hdr = Header{}
}

func (p *BatchParser) HasBufferedData() bool { return p.buf.Len() > 0 }
func (p *BatchParser) BufferSize() int       { return p.buf.Len() }
