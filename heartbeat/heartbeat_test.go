package heartbeat_test

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/sebastianwebdev/procwire/heartbeat"
	"github.com/sebastianwebdev/procwire/tagged"
)

type recordingSender struct {
	mu    sync.Mutex
	pings []int64
	fail  atomic.Bool
}

func (s *recordingSender) SendPing(seq int64, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail.Load() {
		return sendErr{}
	}
	s.pings = append(s.pings, seq)
	return nil
}

func (s *recordingSender) SendPong(seq int64, load tagged.Value) error { return nil }

func (s *recordingSender) pingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pings)
}

type sendErr struct{}

func (sendErr) Error() string { return "send failed" }

var _ = Describe("Manager", func() {
	It("sends ping #1 immediately on Start", func() {
		sender := &recordingSender{}
		m := heartbeat.NewManager(sender, heartbeat.WithInterval(time.Hour), heartbeat.WithTimeout(time.Hour))
		m.Start()
		defer m.Stop()
		Expect(sender.pingCount()).To(Equal(1))
	})

	It("clears consecutiveMissed and emits pong on a matching seq", func() {
		sender := &recordingSender{}
		m := heartbeat.NewManager(sender, heartbeat.WithInterval(time.Hour), heartbeat.WithTimeout(time.Hour))
		pongs := make(chan heartbeat.PongEvent, 1)
		m.OnPong(func(e heartbeat.PongEvent) { pongs <- e })
		m.Start()
		defer m.Stop()

		m.OnPongReceived(1, tagged.Null())
		var e heartbeat.PongEvent
		Eventually(pongs, time.Second).Should(Receive(&e))
		Expect(e.Seq).To(Equal(int64(1)))
		Expect(m.GetState().ConsecutiveMissed).To(Equal(0))
	})

	It("ignores a pong with a mismatched seq", func() {
		sender := &recordingSender{}
		m := heartbeat.NewManager(sender, heartbeat.WithInterval(time.Hour), heartbeat.WithTimeout(time.Hour))
		pongs := make(chan heartbeat.PongEvent, 1)
		m.OnPong(func(e heartbeat.PongEvent) { pongs <- e })
		m.Start()
		defer m.Stop()

		m.OnPongReceived(99, tagged.Null())
		Consistently(pongs, 100*time.Millisecond).ShouldNot(Receive())
	})

	It("emits missed then dead once consecutiveMissed reaches maxMissed", func() {
		sender := &recordingSender{}
		m := heartbeat.NewManager(sender,
			heartbeat.WithInterval(15*time.Millisecond),
			heartbeat.WithTimeout(20*time.Millisecond),
			heartbeat.WithMaxMissed(2),
		)
		missed := make(chan heartbeat.MissedEvent, 4)
		dead := make(chan heartbeat.DeadEvent, 1)
		m.OnMissed(func(e heartbeat.MissedEvent) { missed <- e })
		m.OnDead(func(e heartbeat.DeadEvent) { dead <- e })
		m.Start()
		defer m.Stop()

		Eventually(missed, time.Second).Should(Receive())
		Eventually(dead, time.Second).Should(Receive())
	})

	It("treats a ping send failure as a missed beat", func() {
		sender := &recordingSender{}
		sender.fail.Store(true)
		m := heartbeat.NewManager(sender, heartbeat.WithInterval(time.Hour), heartbeat.WithTimeout(time.Hour))
		missed := make(chan heartbeat.MissedEvent, 1)
		m.OnMissed(func(e heartbeat.MissedEvent) { missed <- e })
		m.Start()
		defer m.Stop()

		Eventually(missed, time.Second).Should(Receive())
	})

	It("resets consecutiveMissed via OnActivity when implicit heartbeat is enabled", func() {
		sender := &recordingSender{}
		m := heartbeat.NewManager(sender,
			heartbeat.WithInterval(time.Hour),
			heartbeat.WithTimeout(20*time.Millisecond),
			heartbeat.WithMaxMissed(100),
			heartbeat.WithImplicitHeartbeat(true),
		)
		m.Start()
		defer m.Stop()

		Eventually(func() int { return m.GetState().ConsecutiveMissed }, time.Second).Should(BeNumerically(">", 0))
		m.OnActivity()
		Expect(m.GetState().ConsecutiveMissed).To(Equal(0))
	})

	It("Start and Stop are idempotent", func() {
		sender := &recordingSender{}
		m := heartbeat.NewManager(sender, heartbeat.WithInterval(time.Hour))
		m.Start()
		m.Start()
		Expect(sender.pingCount()).To(Equal(1))
		m.Stop()
		m.Stop()
	})
})
