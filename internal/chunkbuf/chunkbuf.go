// Package chunkbuf is the shared zero-copy chunk accumulator behind both
// the framing codecs (framer) and the binary frame buffer (wire): push is
// O(1) (append a slice reference, never copy), and bytes are only
// concatenated into a contiguous buffer when a completed frame spans more
// than one pushed chunk.
package chunkbuf

// Buf accumulates byte slices without copying on push.
type Buf struct {
	chunks [][]byte
	total  int
}

func (b *Buf) Push(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.chunks = append(b.chunks, chunk)
	b.total += len(chunk)
}

func (b *Buf) Len() int { return b.total }

func (b *Buf) Reset() {
	b.chunks = b.chunks[:0]
	b.total = 0
}

// ByteAt returns the byte at logical offset i.
func (b *Buf) ByteAt(i int) byte {
	for _, c := range b.chunks {
		if i < len(c) {
			return c[i]
		}
		i -= len(c)
	}
	panic("chunkbuf: ByteAt out of range")
}

// Slice materializes logical range [from,to), copying only if the range
// spans more than one underlying chunk.
func (b *Buf) Slice(from, to int) []byte {
	if from == to {
		return []byte{}
	}
	off := 0
	for _, c := range b.chunks {
		if from >= off && to <= off+len(c) {
			return c[from-off : to-off]
		}
		off += len(c)
	}
	out := make([]byte, 0, to-from)
	off = 0
	for _, c := range b.chunks {
		chFrom, chTo := off, off+len(c)
		off = chTo
		lo, hi := maxInt(from, chFrom), minInt(to, chTo)
		if lo < hi {
			out = append(out, c[lo-chFrom:hi-chFrom]...)
		}
		if chTo >= to {
			break
		}
	}
	return out
}

// SliceChunks returns the zero-copy chunk slices covering logical range
// [from,to), without concatenating them — used by the binary frame
// buffer to expose a payload as a list of zero-copy slices (§4.2).
func (b *Buf) SliceChunks(from, to int) [][]byte {
	if from == to {
		return nil
	}
	var out [][]byte
	off := 0
	for _, c := range b.chunks {
		chFrom, chTo := off, off+len(c)
		off = chTo
		lo, hi := maxInt(from, chFrom), minInt(to, chTo)
		if lo < hi {
			out = append(out, c[lo-chFrom:hi-chFrom])
		}
		if chTo >= to {
			break
		}
	}
	return out
}

// DropFront discards the first n logical bytes.
func (b *Buf) DropFront(n int) {
	if n <= 0 {
		return
	}
	remaining := b.total - n
	if remaining <= 0 {
		b.Reset()
		return
	}
	skip := n
	idx := 0
	for idx < len(b.chunks) && skip >= len(b.chunks[idx]) {
		skip -= len(b.chunks[idx])
		idx++
	}
	newChunks := make([][]byte, 0, len(b.chunks)-idx)
	if skip > 0 {
		newChunks = append(newChunks, b.chunks[idx][skip:])
		idx++
	}
	newChunks = append(newChunks, b.chunks[idx:]...)
	b.chunks = newChunks
	b.total = remaining
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
