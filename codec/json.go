package codec

import jsoniter "github.com/json-iterator/go"

// jsonAPI matches encoding/json's behavior closely enough to be a drop-in,
// while giving the hot serialize/deserialize path on the control and data
// channels a faster reflection-free fast path — the same tradeoff the
// teacher makes in cmn/cos/fs.go and api/apc.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON is the default serialization codec (§6): UTF-8 JSON text.
type JSON struct{}

func NewJSON() *JSON { return &JSON{} }

func (*JSON) Name() string        { return "json" }
func (*JSON) ContentType() string { return "application/json" }

func (j *JSON) Serialize(v any) ([]byte, error) {
	b, err := jsonAPI.Marshal(v)
	return b, wrapSerErr(j.Name(), err)
}

func (j *JSON) Deserialize(b []byte) (any, error) {
	var v any
	err := jsonAPI.Unmarshal(b, &v)
	return v, wrapSerErr(j.Name(), err)
}
