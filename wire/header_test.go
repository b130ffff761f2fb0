package wire_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/sebastianwebdev/procwire/wire"
)

var _ = Describe("Header", func() {
	// P7: for all headers H with methodId != 0, no reserved flag bits,
	// and payloadLength <= max, decode(encode(H)) == H.
	It("round-trips through encode/decode (P7)", func() {
		cases := []wire.Header{
			{MethodID: 1, Flags: 0, RequestID: 0, PayloadLength: 0},
			{MethodID: 0xFFFF, Flags: wire.FlagIsResponse | wire.FlagIsAck, RequestID: 42, PayloadLength: 1024},
			{MethodID: 7, Flags: wire.FlagToParent | wire.FlagIsStream | wire.FlagStreamEnd, RequestID: 0xDEADBEEF, PayloadLength: wire.DefaultMaxPayload},
		}
		for _, h := range cases {
			enc := wire.EncodeHeader(h)
			got := wire.DecodeHeader(enc[:])
			Expect(got).To(Equal(h))
			Expect(wire.Validate(got, wire.AbsoluteMaxPayload)).NotTo(HaveOccurred())
		}
	})

	// Seed scenario 4: a header with methodId=0 decodes but Validate
	// rejects it.
	It("decodes a methodId=0 header but Validate rejects it", func() {
		h := wire.Header{MethodID: wire.MethodIDInvalid, Flags: 0, RequestID: 1, PayloadLength: 0}
		enc := wire.EncodeHeader(h)

		got := wire.DecodeHeader(enc[:])
		Expect(got).To(Equal(h))

		err := wire.Validate(got, wire.DefaultMaxPayload)
		Expect(err).To(HaveOccurred())
	})

	It("rejects reserved flag bits", func() {
		h := wire.Header{MethodID: 1, Flags: 1 << 7, RequestID: 0, PayloadLength: 0}
		err := wire.Validate(h, wire.DefaultMaxPayload)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a payloadLength over the configured max", func() {
		h := wire.Header{MethodID: 1, Flags: 0, RequestID: 0, PayloadLength: 100}
		err := wire.Validate(h, 99)
		Expect(err).To(HaveOccurred())
	})

	It("accepts MethodIDAbort as a valid (non-reserved-invalid) method id", func() {
		h := wire.Header{MethodID: wire.MethodIDAbort, Flags: 0, RequestID: 0, PayloadLength: 0}
		Expect(wire.Validate(h, wire.DefaultMaxPayload)).NotTo(HaveOccurred())
	})

	It("builds a single contiguous frame with BuildFrame", func() {
		payload := []byte("hello")
		out := wire.BuildFrame(wire.Header{MethodID: 3, RequestID: 9}, payload)
		Expect(out).To(HaveLen(wire.HeaderSize + len(payload)))

		h := wire.DecodeHeader(out[:wire.HeaderSize])
		Expect(h.MethodID).To(Equal(uint16(3)))
		Expect(h.RequestID).To(Equal(uint32(9)))
		Expect(h.PayloadLength).To(Equal(uint32(len(payload))))
		Expect(out[wire.HeaderSize:]).To(Equal(payload))
	})

	It("builds a scatter frame referencing the payload directly (no copy)", func() {
		payload := []byte("world")
		sf := wire.BuildScatterFrame(wire.Header{MethodID: 5}, payload)
		payload[0] = 'W' // mutating the original must be visible in sf.Payload
		Expect(sf.Payload[0]).To(Equal(byte('W')))
		h := wire.DecodeHeader(sf.Header[:])
		Expect(h.PayloadLength).To(Equal(uint32(len(payload))))
	})
})
