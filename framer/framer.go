// Package framer implements the byte-stream framing codecs of §4.1:
// stateful, chunk-boundary-agnostic framers that satisfy the invariant
// "decode(partition(S)) == decode(S)" for any partition of the stream
// (P1).
package framer

import "github.com/sebastianwebdev/procwire/internal/xerr"

// Framer is the shared contract for both framing implementations.
type Framer interface {
	// Encode wraps one payload into its framed byte sequence.
	Encode(payload []byte) ([]byte, error)

	// Decode feeds one more chunk of the byte stream and returns every
	// complete frame the accumulated buffer now yields, in order. The
	// returned slices are only valid until the next call to Decode or
	// Reset — callers that need to retain them must copy.
	Decode(chunk []byte) ([][]byte, error)

	// Reset discards any buffered partial frame. Called when a channel
	// reconnects (§3 Frame codec lifecycle).
	Reset()

	HasBufferedData() bool
	BufferSize() int
}

func tooLarge(kind string, size, max int) error {
	return xerr.NewFramingError("%s exceeds max buffer size (%d > %d)", kind, size, max)
}
