// Package rtmetrics implements the process manager's optional runtime
// metrics (§4.9A): a small prometheus.Collector registered once per
// process.Manager, in the teacher's opt-in observability style (see the
// teacher's own `stats` package, now out of scope but the idiom of "nil
// registry disables everything, never panics" carries over).
package rtmetrics

import "github.com/prometheus/client_golang/prometheus"

// Collector tracks process-manager lifecycle counters and the pending
// request gauge. Every increment happens only at lifecycle-transition
// points already visited by the control flow — never on a single
// request's hot path.
type Collector struct {
	Restarts        prometheus.Counter
	Crashes         prometheus.Counter
	HeartbeatsMissed prometheus.Counter
	HeartbeatsDead  prometheus.Counter
	PendingRequests prometheus.Gauge
}

// New builds a Collector and registers it with reg. A nil reg disables
// metrics entirely: every method on a nil-backed Collector becomes a
// no-op via NewNoop.
func New(reg *prometheus.Registry, namespace string) *Collector {
	if reg == nil {
		return NewNoop()
	}
	c := &Collector{
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "process_restarts_total", Help: "Total process restarts.",
		}),
		Crashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "process_crashes_total", Help: "Total unclean process exits.",
		}),
		HeartbeatsMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "heartbeats_missed_total", Help: "Total missed heartbeat pongs.",
		}),
		HeartbeatsDead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "heartbeats_dead_total", Help: "Total heartbeat-dead events.",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_requests", Help: "Current outstanding request count.",
		}),
	}
	reg.MustRegister(c.Restarts, c.Crashes, c.HeartbeatsMissed, c.HeartbeatsDead, c.PendingRequests)
	return c
}

// NewNoop returns a Collector backed by unregistered metric instances, so
// every increment call stays a valid, cheap no-op without a nil check at
// every call site.
func NewNoop() *Collector {
	return &Collector{
		Restarts:         prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_restarts"}),
		Crashes:          prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_crashes"}),
		HeartbeatsMissed: prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_heartbeats_missed"}),
		HeartbeatsDead:   prometheus.NewCounter(prometheus.CounterOpts{Name: "noop_heartbeats_dead"}),
		PendingRequests:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "noop_pending_requests"}),
	}
}
