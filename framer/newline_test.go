package framer_test

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/sebastianwebdev/procwire/framer"
)

var _ = Describe("NewlineFramer", func() {
	var f *framer.NewlineFramer

	BeforeEach(func() {
		f = framer.NewNewlineFramer()
	})

	It("encodes a payload without a trailing delimiter by appending one", func() {
		out, err := f.Encode([]byte("hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]byte("hello\n")))
	})

	It("leaves an already-delimited payload unchanged", func() {
		out, err := f.Encode([]byte("hello\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal([]byte("hello\n")))
	})

	It("decodes a single chunk containing one complete frame", func() {
		frames, err := f.Decode([]byte("hello\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(HaveLen(1))
		Expect(frames[0]).To(Equal([]byte("hello")))
		Expect(f.HasBufferedData()).To(BeFalse())
	})

	// P1: chunk-invariance — splitting the same stream at every possible
	// boundary must still decode to the same frame sequence.
	It("is chunk-boundary invariant (P1)", func() {
		whole := []byte("one\ntwo\nthree\n")
		for split := 0; split <= len(whole); split++ {
			f := framer.NewNewlineFramer()
			var got [][]byte
			frames1, err := f.Decode(whole[:split])
			Expect(err).NotTo(HaveOccurred())
			got = append(got, frames1...)
			frames2, err := f.Decode(whole[split:])
			Expect(err).NotTo(HaveOccurred())
			got = append(got, frames2...)

			Expect(got).To(HaveLen(3), "split at %d", split)
			Expect(got[0]).To(Equal([]byte("one")))
			Expect(got[1]).To(Equal([]byte("two")))
			Expect(got[2]).To(Equal([]byte("three")))
		}
	})

	It("treats two consecutive delimiters as a valid empty frame", func() {
		frames, err := f.Decode([]byte("a\n\nb\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(HaveLen(3))
		Expect(frames[1]).To(Equal([]byte{}))
	})

	It("buffers a partial frame across calls", func() {
		frames, err := f.Decode([]byte("abc"))
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(BeEmpty())
		Expect(f.HasBufferedData()).To(BeTrue())

		frames, err = f.Decode([]byte("def\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(HaveLen(1))
		Expect(frames[0]).To(Equal([]byte("abcdef")))
	})

	It("raises a framing error and resets once maxBufferSize is exceeded", func() {
		f := framer.NewNewlineFramer(framer.WithMaxBufferSize(4))
		_, err := f.Decode([]byte("toolong"))
		Expect(err).To(HaveOccurred())
		Expect(f.HasBufferedData()).To(BeFalse())
	})

	It("retains the delimiter when stripDelimiter is false", func() {
		f := framer.NewNewlineFramer(framer.WithStripDelimiter(false))
		frames, err := f.Decode([]byte("hi\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(frames[0]).To(Equal([]byte("hi\n")))
	})

	It("supports a custom delimiter byte", func() {
		f := framer.NewNewlineFramer(framer.WithDelimiter(0))
		frames, err := f.Decode(append([]byte("a"), 0))
		Expect(err).NotTo(HaveOccurred())
		Expect(frames[0]).To(Equal([]byte("a")))
	})

	It("does not retain references to input chunks beyond the partial frame", func() {
		chunk := []byte("partial")
		_, _ = f.Decode(chunk)
		// Mutating the caller's buffer after Decode must not corrupt a
		// later-completed frame that only needed the unconsumed suffix.
		copy(chunk, bytes.Repeat([]byte{'X'}, len(chunk)))
		frames, err := f.Decode([]byte("\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(HaveLen(1))
	})
})
