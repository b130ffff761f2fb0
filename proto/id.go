package proto

import "github.com/sebastianwebdev/procwire/tagged"

func idToValue(id ID) tagged.Value {
	switch id.Kind {
	case IDString:
		return tagged.OfString(id.Str)
	case IDNumber:
		return tagged.OfNumber(id.Num)
	default:
		return tagged.Null()
	}
}

// valueToID converts a decoded id field to an ID, reporting false if the
// value is neither string, number, nor null (an invalid envelope per §4.4).
func valueToID(v tagged.Value) (ID, bool) {
	switch v.Kind {
	case tagged.KindString:
		return StringID(v.Str), true
	case tagged.KindNumber:
		return NumberID(v.Number), true
	case tagged.KindNull:
		return NullID(), true
	default:
		return ID{}, false
	}
}
