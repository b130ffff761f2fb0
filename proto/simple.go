package proto

import "github.com/sebastianwebdev/procwire/tagged"

// Simple implements the Protocol contract with an explicit "type" field
// instead of a version tag, and permits a response to carry both result
// and error (§4.4, §9). The channel's response accessor decides which
// wins; this package's own Parse returns both so the accessor can choose
// — per the Open Question, Result wins when non-null.
type Simple struct {
	idCounter
}

func NewSimple() *Simple { return &Simple{} }

func (*Simple) Name() string { return "simple" }

func (p *Simple) NextID() ID { return p.next() }

func (*Simple) CreateRequest(method string, params tagged.Value, id ID) Request {
	return Request{ID: id, Method: method, Params: params}
}

func (*Simple) CreateResponse(id ID, result tagged.Value) Response {
	return Response{ID: id, Result: result}
}

func (*Simple) CreateErrorResponse(id ID, code int, message string, data tagged.Value) Response {
	return Response{ID: id, IsError: true, Error: &RPCError{Code: code, Message: message, Data: data}}
}

func (*Simple) CreateNotification(method string, params tagged.Value) Notification {
	return Notification{Method: method, Params: params}
}

func (*Simple) Encode(msg any) (map[string]tagged.Value, error) {
	switch m := msg.(type) {
	case Request:
		out := map[string]tagged.Value{
			"type":   tagged.OfString("request"),
			"id":     idToValue(m.ID),
			"method": tagged.OfString(m.Method),
		}
		if !m.Params.IsNull() {
			out["params"] = m.Params
		}
		return out, nil
	case Response:
		out := map[string]tagged.Value{
			"type": tagged.OfString("response"),
			"id":   idToValue(m.ID),
		}
		if !m.Result.IsNull() {
			out["result"] = m.Result
		}
		if m.IsError {
			out["error"] = tagged.OfMap(map[string]tagged.Value{
				"code":    tagged.OfNumber(float64(m.Error.Code)),
				"message": tagged.OfString(m.Error.Message),
				"data":    m.Error.Data,
			})
		}
		return out, nil
	case Notification:
		out := map[string]tagged.Value{
			"type":   tagged.OfString("notification"),
			"method": tagged.OfString(m.Method),
		}
		if !m.Params.IsNull() {
			out["params"] = m.Params
		}
		return out, nil
	default:
		return nil, NewProtocolError("simple: unsupported message type %T", msg)
	}
}

func (*Simple) Parse(obj map[string]tagged.Value) (Kind, any) {
	typeField, ok := obj["type"]
	if !ok || typeField.Kind != tagged.KindString {
		return Invalid, nil
	}

	switch typeField.Str {
	case "request":
		idField, hasID := obj["id"]
		methodField, hasMethod := obj["method"]
		if !hasID || !hasMethod || methodField.Kind != tagged.KindString || methodField.Str == "" {
			return Invalid, nil
		}
		id, okID := valueToID(idField)
		if !okID {
			return Invalid, nil
		}
		return KindRequest, Request{ID: id, Method: methodField.Str, Params: obj["params"]}

	case "response":
		idField, hasID := obj["id"]
		if !hasID {
			return Invalid, nil
		}
		id, okID := valueToID(idField)
		if !okID {
			return Invalid, nil
		}
		resp := Response{ID: id, Result: obj["result"]}
		if errField, hasError := obj["error"]; hasError && !errField.IsNull() {
			rerr, okErr := parseRPCError(errField)
			if !okErr {
				return Invalid, nil
			}
			resp.IsError = true
			resp.Error = rerr
		}
		return KindResponse, resp

	case "notification":
		methodField, hasMethod := obj["method"]
		if !hasMethod || methodField.Kind != tagged.KindString || methodField.Str == "" {
			return Invalid, nil
		}
		return KindNotification, Notification{Method: methodField.Str, Params: obj["params"]}

	default:
		return Invalid, nil
	}
}

func (*Simple) RecoverRequestID(obj map[string]tagged.Value) (ID, bool) {
	methodField, hasMethod := obj["method"]
	if !hasMethod || methodField.Kind != tagged.KindString || methodField.Str == "" {
		return ID{}, false
	}
	idField, hasID := obj["id"]
	if !hasID {
		return ID{}, false
	}
	return valueToID(idField)
}

var _ Protocol = (*Simple)(nil)
