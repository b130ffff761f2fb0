package wire_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/sebastianwebdev/procwire/wire"
)

type recordingHandler struct {
	starts  []wire.Header
	ends    []wire.Header
	chunks  [][]byte
	offsets []int
	lasts   []bool
	errs    []error
}

func (h *recordingHandler) OnFrameStart(hdr wire.Header) { h.starts = append(h.starts, hdr) }
func (h *recordingHandler) OnFrameEnd(hdr wire.Header)   { h.ends = append(h.ends, hdr) }
func (h *recordingHandler) OnPayloadChunk(slice []byte, offset int, isLast bool) {
	cp := append([]byte(nil), slice...)
	h.chunks = append(h.chunks, cp)
	h.offsets = append(h.offsets, offset)
	h.lasts = append(h.lasts, isLast)
}
func (h *recordingHandler) OnError(err error, partial *wire.Header) { h.errs = append(h.errs, err) }

func (h *recordingHandler) payload() []byte {
	var out []byte
	for _, c := range h.chunks {
		out = append(out, c...)
	}
	return out
}

var _ = Describe("StreamingParser", func() {
	var h *recordingHandler
	var p *wire.StreamingParser

	BeforeEach(func() {
		h = &recordingHandler{}
		p = wire.NewStreamingParser(h)
	})

	It("delivers a whole frame pushed in one call without buffering the payload", func() {
		frame := wire.BuildFrame(wire.Header{MethodID: 1, RequestID: 3}, []byte("streamed"))
		p.Push(frame)

		Expect(h.starts).To(HaveLen(1))
		Expect(h.ends).To(HaveLen(1))
		Expect(h.payload()).To(Equal([]byte("streamed")))
		Expect(h.lasts).To(Equal([]bool{true}))
		Expect(p.HasBufferedData()).To(BeFalse())
	})

	It("delivers payload bytes incrementally across multiple pushes", func() {
		frame := wire.BuildFrame(wire.Header{MethodID: 1}, []byte("incremental"))
		p.Push(frame[:wire.HeaderSize+4])
		Expect(h.starts).To(HaveLen(1))
		Expect(h.ends).To(BeEmpty())
		Expect(h.chunks).To(HaveLen(1))
		Expect(h.lasts).To(Equal([]bool{false}))

		p.Push(frame[wire.HeaderSize+4:])
		Expect(h.ends).To(HaveLen(1))
		Expect(h.payload()).To(Equal([]byte("incremental")))
		Expect(h.lasts[len(h.lasts)-1]).To(BeTrue())
	})

	It("handles a zero-length payload frame without a stray payload callback", func() {
		frame := wire.BuildFrame(wire.Header{MethodID: 1}, nil)
		p.Push(frame)
		Expect(h.starts).To(HaveLen(1))
		Expect(h.ends).To(HaveLen(1))
		Expect(h.chunks).To(BeEmpty())
	})

	It("handles back-to-back frames in a single push", func() {
		whole := append(
			wire.BuildFrame(wire.Header{MethodID: 1}, []byte("a")),
			wire.BuildFrame(wire.Header{MethodID: 2}, []byte("b"))...,
		)
		p.Push(whole)
		Expect(h.starts).To(HaveLen(2))
		Expect(h.ends).To(HaveLen(2))
	})

	It("reports a malformed header via OnError and stops consuming", func() {
		frame := wire.BuildFrame(wire.Header{MethodID: wire.MethodIDInvalid}, nil)
		p.Push(frame)
		Expect(h.errs).To(HaveLen(1))

		p.Push([]byte("more data"))
		Expect(h.errs).To(HaveLen(1), "a broken streaming parser must not keep invoking the handler")
	})
})

var _ = Describe("Parser (dual-mode)", func() {
	It("starts in batch mode by default", func() {
		p := wire.NewParser()
		Expect(p.Mode()).To(Equal(wire.ModeBatch))

		frame := wire.BuildFrame(wire.Header{MethodID: 1}, []byte("x"))
		frames, err := p.Push(frame)
		Expect(err).NotTo(HaveOccurred())
		Expect(frames).To(HaveLen(1))
	})

	It("switches to streaming mode when no data is buffered", func() {
		p := wire.NewParser()
		h := &recordingHandler{}
		Expect(p.SwitchToStreaming(h)).To(Succeed())
		Expect(p.Mode()).To(Equal(wire.ModeStreaming))

		frame := wire.BuildFrame(wire.Header{MethodID: 1}, []byte("y"))
		_, err := p.Push(frame)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.payload()).To(Equal([]byte("y")))
	})

	It("refuses to switch modes while bytes are buffered", func() {
		p := wire.NewParser()
		frame := wire.BuildFrame(wire.Header{MethodID: 1}, []byte("z"))
		_, err := p.Push(frame[:wire.HeaderSize+1])
		Expect(err).NotTo(HaveOccurred())
		Expect(p.HasBufferedData()).To(BeTrue())

		h := &recordingHandler{}
		err = p.SwitchToStreaming(h)
		Expect(err).To(HaveOccurred())
		Expect(p.Mode()).To(Equal(wire.ModeBatch))
	})

	It("switches back to batch mode once drained", func() {
		p := wire.NewParser()
		h := &recordingHandler{}
		Expect(p.SwitchToStreaming(h)).To(Succeed())

		frame := wire.BuildFrame(wire.Header{MethodID: 1}, []byte("done"))
		_, _ = p.Push(frame)
		Expect(p.HasBufferedData()).To(BeFalse())

		Expect(p.SwitchToBatch()).To(Succeed())
		Expect(p.Mode()).To(Equal(wire.ModeBatch))
	})
})
