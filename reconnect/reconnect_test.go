package reconnect_test

import (
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/sebastianwebdev/procwire/reconnect"
)

type flakyTarget struct {
	failTimes int32
	attempts  atomic.Int32
}

func (t *flakyTarget) Connect() error {
	n := t.attempts.Add(1)
	if n <= t.failTimes {
		return errors.New("still down")
	}
	return nil
}

var _ = Describe("Manager", func() {
	It("succeeds after a few failed attempts and drains the queue", func() {
		target := &flakyTarget{failTimes: 2}
		m := reconnect.NewManager(target,
			reconnect.WithInitialDelay(5*time.Millisecond),
			reconnect.WithMaxDelay(10*time.Millisecond),
			reconnect.WithMaxAttempts(5),
			reconnect.WithQueueRequests(true),
		)
		success := make(chan reconnect.SuccessEvent, 1)
		m.OnSuccess(func(e reconnect.SuccessEvent) { success <- e })

		ok := m.HandleDisconnect(errors.New("disconnected"))
		Expect(ok).To(BeTrue())

		resultCh := m.QueueRequest("do-thing", func() (any, error) { return "done", nil })
		Expect(resultCh).NotTo(BeNil())

		var e reconnect.SuccessEvent
		Eventually(success, time.Second).Should(Receive(&e))
		Expect(e.Attempt).To(Equal(3))

		Eventually(resultCh, time.Second).Should(Receive())
	})

	It("returns false when already reconnecting", func() {
		target := &flakyTarget{failTimes: 100}
		m := reconnect.NewManager(target,
			reconnect.WithInitialDelay(5*time.Millisecond),
			reconnect.WithMaxAttempts(100),
		)
		first := m.HandleDisconnect(errors.New("x"))
		second := m.HandleDisconnect(errors.New("y"))
		Expect(first).To(BeTrue())
		Expect(second).To(BeFalse())
		m.Cancel()
	})

	It("returns false immediately when disabled", func() {
		target := &flakyTarget{}
		m := reconnect.NewManager(target, reconnect.WithEnabled(false))
		Expect(m.HandleDisconnect(errors.New("x"))).To(BeFalse())
	})

	It("emits failed and rejects the queue after exhausting maxAttempts", func() {
		target := &flakyTarget{failTimes: 100}
		m := reconnect.NewManager(target,
			reconnect.WithInitialDelay(time.Millisecond),
			reconnect.WithMaxDelay(2*time.Millisecond),
			reconnect.WithMaxAttempts(3),
			reconnect.WithQueueRequests(true),
		)
		failed := make(chan reconnect.FailedEvent, 1)
		m.OnFailed(func(e reconnect.FailedEvent) { failed <- e })

		m.HandleDisconnect(errors.New("down"))
		resultCh := m.QueueRequest("x", func() (any, error) { return nil, nil })

		var e reconnect.FailedEvent
		Eventually(failed, time.Second).Should(Receive(&e))
		Expect(e.Attempts).To(Equal(3))
		Eventually(resultCh, time.Second).Should(Receive())
	})

	It("rejects QueueRequest when not currently reconnecting", func() {
		target := &flakyTarget{}
		m := reconnect.NewManager(target, reconnect.WithQueueRequests(true))
		Expect(m.QueueRequest("x", func() (any, error) { return nil, nil })).To(BeNil())
	})
})
