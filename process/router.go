package process

import (
	"sync"

	"github.com/sebastianwebdev/procwire/internal/nlog"
	"github.com/sebastianwebdev/procwire/tagged"
)

// notificationRouter is the single channel.Channel notification handler
// installed per control channel; it fans inbound notifications out by
// method name so the heartbeat manager, the shutdown manager, and
// application code can each subscribe independently without the channel
// package knowing any of their reserved method names (§6).
type notificationRouter struct {
	mu       sync.Mutex
	handlers map[string][]func(tagged.Value)
}

func newNotificationRouter() *notificationRouter {
	return &notificationRouter{handlers: make(map[string][]func(tagged.Value))}
}

// Subscribe registers fn for method and returns an unsubscribe func.
func (r *notificationRouter) Subscribe(method string, fn func(tagged.Value)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = append(r.handlers[method], fn)
	idx := len(r.handlers[method]) - 1
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if idx < len(r.handlers[method]) {
			r.handlers[method][idx] = nil
		}
	}
}

// dispatch is installed as the channel's single OnNotification handler.
func (r *notificationRouter) dispatch(method string, params tagged.Value) {
	r.mu.Lock()
	fns := append([]func(tagged.Value){}, r.handlers[method]...)
	r.mu.Unlock()

	if len(fns) == 0 {
		nlog.Infof("process: unhandled notification %q", method)
		return
	}
	for _, fn := range fns {
		if fn != nil {
			fn(params)
		}
	}
}
