package proto_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/sebastianwebdev/procwire/proto"
	"github.com/sebastianwebdev/procwire/tagged"
)

var _ = Describe("JSONRPC", func() {
	var p *proto.JSONRPC

	BeforeEach(func() { p = proto.NewJSONRPC() })

	It("round-trips a request through Encode/Parse", func() {
		req := p.CreateRequest("ping", tagged.OfString("hi"), p.NextID())
		obj, err := p.Encode(req)
		Expect(err).NotTo(HaveOccurred())

		kind, msg := p.Parse(obj)
		Expect(kind).To(Equal(proto.KindRequest))
		got := msg.(proto.Request)
		Expect(got.Method).To(Equal("ping"))
		Expect(got.Params).To(Equal(tagged.OfString("hi")))
	})

	It("round-trips a notification (no id)", func() {
		notif := p.CreateNotification("tick", tagged.Null())
		obj, err := p.Encode(notif)
		Expect(err).NotTo(HaveOccurred())
		_, hasID := obj["id"]
		Expect(hasID).To(BeFalse())

		kind, _ := p.Parse(obj)
		Expect(kind).To(Equal(proto.KindNotification))
	})

	It("rejects a message lacking the version tag", func() {
		kind, _ := p.Parse(map[string]tagged.Value{"method": tagged.OfString("x")})
		Expect(kind).To(Equal(proto.Invalid))
	})

	It("rejects a message with the wrong version tag", func() {
		kind, _ := p.Parse(map[string]tagged.Value{"jsonrpc": tagged.OfString("1.0"), "method": tagged.OfString("x")})
		Expect(kind).To(Equal(proto.Invalid))
	})

	It("rejects a request with an empty method name", func() {
		obj := map[string]tagged.Value{
			"jsonrpc": tagged.OfString("2.0"),
			"id":      tagged.OfNumber(1),
			"method":  tagged.OfString(""),
		}
		kind, _ := p.Parse(obj)
		Expect(kind).To(Equal(proto.Invalid))
	})

	It("rejects a response carrying both result and error", func() {
		obj := map[string]tagged.Value{
			"jsonrpc": tagged.OfString("2.0"),
			"id":      tagged.OfNumber(1),
			"result":  tagged.OfString("ok"),
			"error":   tagged.OfMap(map[string]tagged.Value{"code": tagged.OfNumber(-1), "message": tagged.OfString("x")}),
		}
		kind, _ := p.Parse(obj)
		Expect(kind).To(Equal(proto.Invalid))
	})

	It("rejects a response carrying neither result nor error", func() {
		obj := map[string]tagged.Value{"jsonrpc": tagged.OfString("2.0"), "id": tagged.OfNumber(1)}
		kind, _ := p.Parse(obj)
		Expect(kind).To(Equal(proto.Invalid))
	})

	It("classifies a well-formed error response", func() {
		resp := p.CreateErrorResponse(proto.NumberID(1), proto.CodeMethodNotFound, "nope", tagged.Null())
		obj, err := p.Encode(resp)
		Expect(err).NotTo(HaveOccurred())

		kind, msg := p.Parse(obj)
		Expect(kind).To(Equal(proto.KindResponse))
		got := msg.(proto.Response)
		Expect(got.IsError).To(BeTrue())
		Expect(got.Error.Code).To(Equal(proto.CodeMethodNotFound))
	})

	It("generates strictly increasing ids from NextID", func() {
		a, b := p.NextID(), p.NextID()
		Expect(a.Num).To(BeNumerically("<", b.Num))
	})

	It("recovers a request id from an otherwise-invalid envelope missing the version tag", func() {
		obj := map[string]tagged.Value{
			"id":     tagged.OfNumber(7),
			"method": tagged.OfString("ping"),
		}
		kind, _ := p.Parse(obj)
		Expect(kind).To(Equal(proto.Invalid))

		id, ok := p.RecoverRequestID(obj)
		Expect(ok).To(BeTrue())
		Expect(id.Num).To(Equal(float64(7)))
	})

	It("fails to recover an id when there is no method field", func() {
		obj := map[string]tagged.Value{"id": tagged.OfNumber(7)}
		_, ok := p.RecoverRequestID(obj)
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Simple", func() {
	var p *proto.Simple

	BeforeEach(func() { p = proto.NewSimple() })

	It("round-trips a request via the type field", func() {
		req := p.CreateRequest("echo", tagged.OfNumber(3), p.NextID())
		obj, err := p.Encode(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(obj["type"]).To(Equal(tagged.OfString("request")))

		kind, _ := p.Parse(obj)
		Expect(kind).To(Equal(proto.KindRequest))
	})

	It("resolves a response with both result and error to result (Open Question decision)", func() {
		resp := proto.Response{
			ID:      proto.NumberID(1),
			Result:  tagged.OfString("ok"),
			IsError: true,
			Error:   &proto.RPCError{Code: -1, Message: "ignored"},
		}
		obj, err := p.Encode(resp)
		Expect(err).NotTo(HaveOccurred())

		result, rpcErr := proto.SimpleAccessor(resp)
		Expect(rpcErr).To(BeNil())
		Expect(result).To(Equal(tagged.OfString("ok")))

		_, parsed := p.Parse(obj)
		reparsed := parsed.(proto.Response)
		Expect(reparsed.Result).To(Equal(tagged.OfString("ok")))
	})

	It("recovers a request id from a malformed envelope (unknown type tag)", func() {
		obj := map[string]tagged.Value{
			"type":   tagged.OfString("bogus"),
			"id":     tagged.OfString("abc"),
			"method": tagged.OfString("echo"),
		}
		kind, _ := p.Parse(obj)
		Expect(kind).To(Equal(proto.Invalid))

		id, ok := p.RecoverRequestID(obj)
		Expect(ok).To(BeTrue())
		Expect(id.Str).To(Equal("abc"))
	})
})
