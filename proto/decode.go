package proto

import (
	"github.com/mitchellh/mapstructure"

	"github.com/sebastianwebdev/procwire/tagged"
)

// DecodeParams turns a tagged.Value (typically a request's Params or a
// response's Result) into dst, an application-supplied pointer. This is
// the sanctioned escape hatch from the channel's schema-less boundary
// (§9 design note) into a caller's static type — the channel package
// itself never imports application types.
func DecodeParams(v tagged.Value, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: false,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return dec.Decode(v.Native())
}
