package proto

import "github.com/sebastianwebdev/procwire/tagged"

// ResponseAccessor extracts a result-or-error outcome from a parsed
// Response. JSON-RPC and Simple differ only in how a response that could
// be read either way resolves (§4.5, §9): this is how the channel stays
// protocol-agnostic while letting each protocol pick its own tie-break.
type ResponseAccessor func(r Response) (result tagged.Value, rpcErr *RPCError)

// JSONRPCAccessor implements the textbook rule: a response has exactly
// one of result or error (the parser already rejected both-or-neither).
func JSONRPCAccessor(r Response) (tagged.Value, *RPCError) {
	if r.IsError {
		return tagged.Null(), r.Error
	}
	return r.Result, nil
}

// SimpleAccessor implements the Simple protocol's documented tie-break:
// when both result and error are present, result wins if it is non-null
// (§9 Open Question decision).
func SimpleAccessor(r Response) (tagged.Value, *RPCError) {
	if !r.Result.IsNull() {
		return r.Result, nil
	}
	if r.IsError {
		return tagged.Null(), r.Error
	}
	return r.Result, nil
}

// DefaultAccessor picks the accessor matching a protocol's Name().
func DefaultAccessor(p Protocol) ResponseAccessor {
	switch p.Name() {
	case "simple":
		return SimpleAccessor
	default:
		return JSONRPCAccessor
	}
}
