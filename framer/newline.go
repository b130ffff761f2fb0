package framer

import "github.com/sebastianwebdev/procwire/internal/chunkbuf"

const defaultMaxBufferSize = 8 * 1024 * 1024 // 8 MiB

// NewlineOption configures a NewlineFramer.
type NewlineOption func(*NewlineFramer)

// WithDelimiter overrides the default 0x0A delimiter byte.
func WithDelimiter(b byte) NewlineOption {
	return func(f *NewlineFramer) { f.delimiter = b }
}

// WithMaxBufferSize overrides the default 8 MiB buffered-bytes ceiling.
func WithMaxBufferSize(n int) NewlineOption {
	return func(f *NewlineFramer) { f.maxBufferSize = n }
}

// WithStripDelimiter controls whether decoded frames include the
// delimiter byte (default: stripped).
func WithStripDelimiter(strip bool) NewlineOption {
	return func(f *NewlineFramer) { f.stripDelimiter = strip }
}

// NewlineFramer frames on a single configured delimiter byte (default
// 0x0A), as used by the control channel's JSON-RPC wire format (§6).
type NewlineFramer struct {
	delimiter      byte
	maxBufferSize  int
	stripDelimiter bool

	buf    chunkbuf.Buf
	scanAt int // logical offset already scanned for a delimiter, never rescanned
}

func NewNewlineFramer(opts ...NewlineOption) *NewlineFramer {
	f := &NewlineFramer{
		delimiter:      '\n',
		maxBufferSize:  defaultMaxBufferSize,
		stripDelimiter: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *NewlineFramer) Encode(payload []byte) ([]byte, error) {
	if len(payload) > 0 && payload[len(payload)-1] == f.delimiter {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}
	out := make([]byte, len(payload)+1)
	copy(out, payload)
	out[len(payload)] = f.delimiter
	return out, nil
}

func (f *NewlineFramer) Decode(chunk []byte) ([][]byte, error) {
	f.buf.Push(chunk)

	var frames [][]byte
	for {
		idx := -1
		total := f.buf.Len()
		for i := f.scanAt; i < total; i++ {
			if f.buf.ByteAt(i) == f.delimiter {
				idx = i
				break
			}
		}
		if idx == -1 {
			f.scanAt = total
			break
		}

		end := idx
		if !f.stripDelimiter {
			end = idx + 1
		}
		frame := f.buf.Slice(0, end)
		frames = append(frames, frame)

		f.buf.DropFront(idx + 1)
		f.scanAt = 0
	}

	if size := f.buf.Len(); size > f.maxBufferSize {
		f.Reset()
		return frames, tooLarge("newline frame", size, f.maxBufferSize)
	}
	return frames, nil
}

func (f *NewlineFramer) Reset() {
	f.buf.Reset()
	f.scanAt = 0
}

func (f *NewlineFramer) HasBufferedData() bool { return f.buf.Len() > 0 }
func (f *NewlineFramer) BufferSize() int       { return f.buf.Len() }

var _ Framer = (*NewlineFramer)(nil)
