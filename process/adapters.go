package process

import (
	"time"

	"github.com/sebastianwebdev/procwire/channel"
	"github.com/sebastianwebdev/procwire/heartbeat"
	"github.com/sebastianwebdev/procwire/tagged"
)

// shutdownTarget adapts one managed entry to shutdown.Target.
type shutdownTarget struct {
	e *entry
}

func (t *shutdownTarget) ID() string {
	return t.e.id
}

func (t *shutdownTarget) Pid() int {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	if t.e.transport == nil {
		return 0
	}
	return t.e.transport.Pid()
}

func (t *shutdownTarget) Request(method string, params tagged.Value, timeout time.Duration) (tagged.Value, error) {
	t.e.mu.Lock()
	control := t.e.control
	t.e.mu.Unlock()
	return control.Request(method, params, timeout)
}

func (t *shutdownTarget) Kill(signal string) error {
	t.e.mu.Lock()
	tr := t.e.transport
	t.e.mu.Unlock()
	return tr.Kill(signal)
}

func (t *shutdownTarget) OnNotification(method string, handler func(params tagged.Value)) func() {
	t.e.mu.Lock()
	router := t.e.router
	t.e.mu.Unlock()
	return router.Subscribe(method, handler)
}

// channelSender adapts a control channel.Channel to heartbeat.Sender by
// transmitting ping/pong traffic as ordinary notifications over it (§4.6).
type channelSender struct {
	ch *channel.Channel
}

func (s *channelSender) SendPing(seq int64, sentAt time.Time) error {
	params := tagged.OfMap(map[string]tagged.Value{
		"seq":       tagged.OfNumber(float64(seq)),
		"timestamp": tagged.OfNumber(float64(sentAt.UnixMilli())),
	})
	return s.ch.Notify(heartbeat.MethodPing, params)
}

func (s *channelSender) SendPong(seq int64, load tagged.Value) error {
	fields := map[string]tagged.Value{
		"seq":       tagged.OfNumber(float64(seq)),
		"timestamp": tagged.OfNumber(float64(time.Now().UnixMilli())),
	}
	if !load.IsNull() {
		fields["load"] = load
	}
	return s.ch.Notify(heartbeat.MethodPong, tagged.OfMap(fields))
}
