package metrics_test

import (
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
	"github.com/angeloszaimis/mcp-gateway/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("RecordCall", func() {
		It("should count calls per backend", func() {
			m.RecordCall("journey", "tools/call", 10*time.Millisecond, metrics.OutcomeSuccess)
			m.RecordCall("journey", "tools/call", 20*time.Millisecond, metrics.OutcomeSuccess)
			m.RecordCall("weather", "prompts/get", 30*time.Millisecond, metrics.OutcomeSuccess)

			snap := m.Snapshot()
			Expect(snap.TotalCalls).To(Equal(int64(3)))
			Expect(snap.Backends["journey"].Calls).To(Equal(int64(2)))
			Expect(snap.Backends["weather"].Operations).To(Equal(map[string]int64{"prompts/get": 1}))
		})

		It("should separate failures from circuit rejections", func() {
			m.RecordCall("journey", "tools/call", 10*time.Millisecond, metrics.OutcomeTransportError)
			m.RecordCall("journey", "tools/call", 10*time.Millisecond, metrics.OutcomeRPCError)
			m.RecordCall("journey", "tools/call", 0, metrics.OutcomeRejected)

			backend := m.Snapshot().Backends["journey"]
			Expect(backend.Calls).To(Equal(int64(3)))
			Expect(backend.Failures).To(Equal(int64(2)))
			Expect(backend.Rejections).To(Equal(int64(1)))
			Expect(backend.Outcomes).To(HaveKeyWithValue(metrics.OutcomeRejected, int64(1)))
		})

		It("should not sample latency for rejected calls", func() {
			m.RecordCall("journey", "tools/call", 100*time.Millisecond, metrics.OutcomeSuccess)
			m.RecordCall("journey", "tools/call", 0, metrics.OutcomeRejected)

			Expect(m.Snapshot().Backends["journey"].AvgResponse).To(Equal(100 * time.Millisecond))
		})

		It("should compute percentiles", func() {
			for i := 1; i <= 100; i++ {
				m.RecordCall("journey", "tools/call", time.Duration(i)*time.Millisecond, metrics.OutcomeSuccess)
			}

			backend := m.Snapshot().Backends["journey"]
			Expect(backend.P50Response).To(Equal(51 * time.Millisecond))
			Expect(backend.P95Response).To(Equal(96 * time.Millisecond))
			Expect(backend.P99Response).To(Equal(100 * time.Millisecond))
		})

		It("should keep a bounded window of samples", func() {
			for i := 0; i < 1500; i++ {
				m.RecordCall("journey", "", time.Second, metrics.OutcomeSuccess)
			}
			m.RecordCall("journey", "", 0, metrics.OutcomeSuccess)

			Expect(m.Snapshot().Backends["journey"].Calls).To(Equal(int64(1501)))
			Expect(m.Snapshot().Backends["journey"].AvgResponse).To(BeNumerically("<", time.Second))
		})
	})

	Describe("Snapshot", func() {
		It("should include backends known only by health", func() {
			m.UpdateHealthStatus("weather", "HEALTHY")
			Expect(m.Snapshot().Backends).To(HaveKeyWithValue("weather", HaveField("Health", "HEALTHY")))
		})

		It("should not share maps with the store", func() {
			m.RecordCall("journey", "tools/call", 0, metrics.OutcomeSuccess)
			snap := m.Snapshot()
			snap.Backends["journey"].Outcomes[metrics.OutcomeSuccess] = 99

			Expect(m.Snapshot().Backends["journey"].Outcomes[metrics.OutcomeSuccess]).To(Equal(int64(1)))
		})

		It("should be safe under concurrent writers", func() {
			done := make(chan struct{})
			for w := 0; w < 8; w++ {
				go func(w int) {
					defer GinkgoRecover()
					for i := 0; i < 100; i++ {
						m.RecordCall(fmt.Sprintf("svc-%d", w%2), "tools/call", time.Millisecond, metrics.OutcomeSuccess)
						_ = m.Snapshot()
					}
					done <- struct{}{}
				}(w)
			}
			for w := 0; w < 8; w++ {
				Eventually(done).Should(Receive())
			}

			Expect(m.Snapshot().TotalCalls).To(Equal(int64(800)))
		})
	})
})

var _ = DescribeTable("OutcomeOf",
	func(err error, expected metrics.Outcome) {
		Expect(metrics.OutcomeOf(err)).To(Equal(expected))
	},
	Entry("success", nil, metrics.OutcomeSuccess),
	Entry("open breaker", &apperr.CircuitOpenError{Name: "journey"}, metrics.OutcomeRejected),
	Entry("rpc error", &apperr.RPCError{Code: -32601}, metrics.OutcomeRPCError),
	Entry("wrapped transport error", fmt.Errorf("call: %w", &apperr.TransportError{StatusCode: 502}), metrics.OutcomeTransportError),
	Entry("anything else", errors.New("boom"), metrics.OutcomeError),
)
