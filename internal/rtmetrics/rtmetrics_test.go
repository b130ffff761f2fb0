package rtmetrics_test

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/sebastianwebdev/procwire/internal/rtmetrics"
)

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	return m.GetCounter().GetValue()
}

var _ = Describe("Collector", func() {
	It("registers its metrics with a non-nil registry and counts increments", func() {
		reg := prometheus.NewRegistry()
		c := rtmetrics.New(reg, "procwire_test")
		c.Restarts.Inc()
		c.Restarts.Inc()
		Expect(counterValue(c.Restarts)).To(Equal(2.0))

		families, err := reg.Gather()
		Expect(err).NotTo(HaveOccurred())
		Expect(len(families)).To(BeNumerically(">", 0))
	})

	It("never panics with a nil registry", func() {
		c := rtmetrics.New(nil, "procwire_test")
		Expect(func() { c.Crashes.Inc() }).NotTo(Panic())
	})
})
