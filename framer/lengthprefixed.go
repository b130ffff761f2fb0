package framer

import (
	"encoding/binary"

	"github.com/sebastianwebdev/procwire/internal/chunkbuf"
)

const (
	headerSize            = 4
	defaultMaxMessageSize = 32 * 1024 * 1024 // 32 MiB, data channel default (§4.1)
)

type lpState int

const (
	waitingForHeader lpState = iota
	waitingForPayload
)

// LengthPrefixedOption configures a LengthPrefixedFramer.
type LengthPrefixedOption func(*LengthPrefixedFramer)

// WithMaxMessageSize overrides the default 32 MiB payload-length ceiling.
func WithMaxMessageSize(n int) LengthPrefixedOption {
	return func(f *LengthPrefixedFramer) { f.maxMessageSize = n }
}

// LengthPrefixedFramer frames with a 4-byte big-endian unsigned payload
// length header, as used by the data channel's default wire format (§6).
type LengthPrefixedFramer struct {
	maxMessageSize int

	buf        chunkbuf.Buf
	state      lpState
	wantLength int // valid once state == waitingForPayload
}

func NewLengthPrefixedFramer(opts ...LengthPrefixedOption) *LengthPrefixedFramer {
	f := &LengthPrefixedFramer{maxMessageSize: defaultMaxMessageSize}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *LengthPrefixedFramer) Encode(payload []byte) ([]byte, error) {
	out := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out, nil
}

func (f *LengthPrefixedFramer) Decode(chunk []byte) ([][]byte, error) {
	f.buf.Push(chunk)

	var frames [][]byte
	for {
		switch f.state {
		case waitingForHeader:
			if f.buf.Len() < headerSize {
				return frames, nil
			}
			hdr := f.buf.Slice(0, headerSize)
			length := int(binary.BigEndian.Uint32(hdr))
			if length > f.maxMessageSize {
				f.Reset()
				return frames, tooLarge("declared message length", length, f.maxMessageSize)
			}
			f.buf.DropFront(headerSize)
			f.wantLength = length
			f.state = waitingForPayload

		case waitingForPayload:
			if f.buf.Len() < f.wantLength {
				if f.buf.Len() > headerSize+f.maxMessageSize {
					f.Reset()
					return frames, tooLarge("buffered bytes", f.buf.Len(), headerSize+f.maxMessageSize)
				}
				return frames, nil
			}
			payload := f.buf.Slice(0, f.wantLength)
			frames = append(frames, payload)
			f.buf.DropFront(f.wantLength)
			f.state = waitingForHeader
		}
	}
}

func (f *LengthPrefixedFramer) Reset() {
	f.buf.Reset()
	f.state = waitingForHeader
	f.wantLength = 0
}

func (f *LengthPrefixedFramer) HasBufferedData() bool { return f.buf.Len() > 0 }
func (f *LengthPrefixedFramer) BufferSize() int       { return f.buf.Len() }

var _ Framer = (*LengthPrefixedFramer)(nil)
