package proto

import "github.com/sebastianwebdev/procwire/tagged"

const jsonrpcVersion = "2.0"

// JSONRPC implements the Protocol contract per JSON-RPC 2.0 (§4.4).
type JSONRPC struct {
	idCounter
}

func NewJSONRPC() *JSONRPC { return &JSONRPC{} }

func (*JSONRPC) Name() string { return "jsonrpc2" }

func (p *JSONRPC) NextID() ID { return p.next() }

func (*JSONRPC) CreateRequest(method string, params tagged.Value, id ID) Request {
	return Request{ID: id, Method: method, Params: params}
}

func (*JSONRPC) CreateResponse(id ID, result tagged.Value) Response {
	return Response{ID: id, Result: result}
}

func (*JSONRPC) CreateErrorResponse(id ID, code int, message string, data tagged.Value) Response {
	return Response{ID: id, IsError: true, Error: &RPCError{Code: code, Message: message, Data: data}}
}

func (*JSONRPC) CreateNotification(method string, params tagged.Value) Notification {
	return Notification{Method: method, Params: params}
}

func (*JSONRPC) Encode(msg any) (map[string]tagged.Value, error) {
	out := map[string]tagged.Value{"jsonrpc": tagged.OfString(jsonrpcVersion)}
	switch m := msg.(type) {
	case Request:
		out["id"] = idToValue(m.ID)
		out["method"] = tagged.OfString(m.Method)
		if !m.Params.IsNull() {
			out["params"] = m.Params
		}
	case Response:
		out["id"] = idToValue(m.ID)
		if m.IsError {
			errFields := map[string]tagged.Value{
				"code":    tagged.OfNumber(float64(m.Error.Code)),
				"message": tagged.OfString(m.Error.Message),
			}
			if !m.Error.Data.IsNull() {
				errFields["data"] = m.Error.Data
			}
			out["error"] = tagged.OfMap(errFields)
		} else {
			out["result"] = m.Result
		}
	case Notification:
		out["method"] = tagged.OfString(m.Method)
		if !m.Params.IsNull() {
			out["params"] = m.Params
		}
	default:
		return nil, NewProtocolError("jsonrpc2: unsupported message type %T", msg)
	}
	return out, nil
}

func (*JSONRPC) Parse(obj map[string]tagged.Value) (Kind, any) {
	version, ok := obj["jsonrpc"]
	if !ok || version.Kind != tagged.KindString || version.Str != jsonrpcVersion {
		return Invalid, nil
	}

	idField, hasID := obj["id"]
	methodField, hasMethod := obj["method"]
	_, hasResult := obj["result"]
	errField, hasError := obj["error"]

	switch {
	case hasID && hasMethod:
		id, okID := valueToID(idField)
		if !okID {
			return Invalid, nil
		}
		if methodField.Kind != tagged.KindString || methodField.Str == "" {
			return Invalid, nil
		}
		return KindRequest, Request{ID: id, Method: methodField.Str, Params: obj["params"]}

	case hasID && (hasResult || hasError):
		if hasResult && hasError {
			return Invalid, nil
		}
		id, okID := valueToID(idField)
		if !okID {
			return Invalid, nil
		}
		if hasError {
			rerr, okErr := parseRPCError(errField)
			if !okErr {
				return Invalid, nil
			}
			return KindResponse, Response{ID: id, IsError: true, Error: rerr}
		}
		return KindResponse, Response{ID: id, Result: obj["result"]}

	case !hasID && hasMethod:
		if methodField.Kind != tagged.KindString || methodField.Str == "" {
			return Invalid, nil
		}
		return KindNotification, Notification{Method: methodField.Str, Params: obj["params"]}

	default:
		return Invalid, nil
	}
}

func (*JSONRPC) RecoverRequestID(obj map[string]tagged.Value) (ID, bool) {
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

func parseRPCError(v tagged.Value) (*RPCError, bool) {
	if v.Kind != tagged.KindMap {
		return nil, false
	}
	codeV, ok := v.Map["code"]
	if !ok || codeV.Kind != tagged.KindNumber {
		return nil, false
	}
	msgV, ok := v.Map["message"]
	if !ok || msgV.Kind != tagged.KindString {
		return nil, false
	}
	return &RPCError{Code: int(codeV.Number), Message: msgV.Str, Data: v.Map["data"]}, true
}

var _ Protocol = (*JSONRPC)(nil)
