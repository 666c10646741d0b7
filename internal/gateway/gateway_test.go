package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/mcp-gateway/config"
	"github.com/angeloszaimis/mcp-gateway/internal/apperr"
	"github.com/angeloszaimis/mcp-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/mcp-gateway/internal/gateway"
	"github.com/angeloszaimis/mcp-gateway/internal/mcptest"
	"github.com/angeloszaimis/mcp-gateway/internal/registry"
	"github.com/angeloszaimis/mcp-gateway/pkg/logger"
)

func testConfig(backends ...config.BackendConfig) *config.Config {
	return &config.Config{
		Server:      config.ServerConfig{Address: ":0", Environment: config.EnvDev},
		Logging:     config.LoggingConfig{Level: config.LogLevelError},
		HealthCheck: config.HealthCheckConfig{Interval: 50 * time.Millisecond, Timeout: time.Second},
		Client: config.ClientConfig{
			ConnectTimeout: time.Second,
			ReadTimeout:    2 * time.Second,
			ListTimeout:    time.Second,
		},
		Retry: config.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond},
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			Timeout:          time.Minute,
			MonitorWindow:    time.Minute,
		},
		Namespace: config.NamespaceConfig{StripSuffix: "-mcp"},
		Session:   config.SessionConfig{TTL: time.Minute},
		Backends:  backends,
	}
}

var _ = Describe("Gateway", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		journey *mcptest.Server
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		journey = mcptest.NewServer().
			AddTool("findTrips", "Find trips").
			AddResource("journey://stations", "stations").
			AddPrompt("plan")
	})

	AfterEach(func() {
		cancel()
		journey.Close()
	})

	Describe("New", func() {
		It("should register static backends", func() {
			gw, err := gateway.New(testConfig(config.BackendConfig{
				ID:       "journey-service-mcp",
				Name:     "Journey Service",
				Endpoint: journey.Endpoint(),
				Tools:    []string{"findTrips"},
			}), "test", logger.Discard())
			Expect(err).NotTo(HaveOccurred())

			Expect(gw.Registry.Len()).To(Equal(1))
			Expect(gw.Registry.IndexKeys(registry.KindTool)).To(ConsistOf("journey-service-mcp.findTrips"))
		})

		It("should report invalid static backends", func() {
			_, err := gateway.New(testConfig(config.BackendConfig{ID: "bad id", Endpoint: journey.Endpoint()}), "test", logger.Discard())

			var vErr *apperr.ValidationError
			Expect(errors.As(err, &vErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(`"bad id"`))
		})

		It("should keep separate state per instance", func() {
			a, err := gateway.New(testConfig(), "test", logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			b, err := gateway.New(testConfig(), "test", logger.Discard())
			Expect(err).NotTo(HaveOccurred())

			_, err = a.RegisterBackend(ctx, registry.Registration{ID: "journey", Endpoint: journey.Endpoint()})
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Registry.Len()).To(BeZero())
		})
	})

	Describe("Start", func() {
		It("should discover static backends and probe their health", func() {
			gw, err := gateway.New(testConfig(config.BackendConfig{
				ID:       "journey-service-mcp",
				Endpoint: journey.Endpoint(),
			}), "test", logger.Discard())
			Expect(err).NotTo(HaveOccurred())

			gw.Start(ctx)

			Eventually(func() []string {
				return gw.Registry.IndexKeys(registry.KindResource)
			}).Should(ConsistOf("journey://stations"))

			Eventually(func() registry.HealthStatus {
				srv, err := gw.Registry.GetServer("journey-service-mcp")
				Expect(err).NotTo(HaveOccurred())
				return srv.Health.Status
			}).Should(Equal(registry.StatusHealthy))
		})
	})

	Describe("RegisterBackend", func() {
		var gw *gateway.Gateway

		BeforeEach(func() {
			var err error
			gw, err = gateway.New(testConfig(), "test", logger.Discard())
			Expect(err).NotTo(HaveOccurred())
		})

		It("should discover the capabilities of a new backend", func() {
			stored, err := gw.RegisterBackend(ctx, registry.Registration{ID: "journey-service-mcp", Endpoint: journey.Endpoint()})
			Expect(err).NotTo(HaveOccurred())

			Expect(stored.Capabilities.Tools).To(Equal([]string{"findTrips"}))
			Expect(stored.Capabilities.Resources).To(Equal([]string{"journey://stations"}))

			raw, err := gw.Aggregator.CallTool(ctx, "journey-service.findTrips", map[string]any{"from": "A"})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring("findTrips"))
			Expect(journey.LastArguments()).To(Equal(map[string]any{"from": "A"}))
		})

		It("should keep the registration when discovery fails", func() {
			journey.Close()

			stored, err := gw.RegisterBackend(ctx, registry.Registration{ID: "journey", Endpoint: journey.Endpoint()})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ID).To(Equal("journey"))
			Expect(gw.Registry.Len()).To(Equal(1))
		})

		It("should reject invalid registrations", func() {
			_, err := gw.RegisterBackend(ctx, registry.Registration{ID: "journey"})
			var vErr *apperr.ValidationError
			Expect(errors.As(err, &vErr)).To(BeTrue())
			Expect(gw.Registry.Len()).To(BeZero())
		})

		It("should work with backends that require sessions", func() {
			journey.RequireSessions(true)

			_, err := gw.RegisterBackend(ctx, registry.Registration{ID: "journey", Endpoint: journey.Endpoint(), RequiresSession: true})
			Expect(err).NotTo(HaveOccurred())

			_, err = gw.Aggregator.CallTool(ctx, "journey.findTrips", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(journey.Calls("initialize")).To(Equal(1))
		})

		It("should give a re-registered backend a fresh breaker", func() {
			_, err := gw.RegisterBackend(ctx, registry.Registration{ID: "journey", Endpoint: journey.Endpoint()})
			Expect(err).NotTo(HaveOccurred())

			journey.FailCalls(true)
			for i := 0; i < 2; i++ {
				_, _ = gw.Aggregator.CallTool(ctx, "journey.findTrips", nil)
			}
			cb, _ := gw.Breakers.Get("journey")
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			Expect(gw.Health().Status).To(Equal("degraded"))

			journey.FailCalls(false)
			_, err = gw.RegisterBackend(ctx, registry.Registration{ID: "journey", Endpoint: journey.Endpoint()})
			Expect(err).NotTo(HaveOccurred())

			_, err = gw.Aggregator.CallTool(ctx, "journey.findTrips", nil)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("UnregisterBackend", func() {
		It("should remove the backend and its breaker", func() {
			gw, err := gateway.New(testConfig(), "test", logger.Discard())
			Expect(err).NotTo(HaveOccurred())

			_, err = gw.RegisterBackend(ctx, registry.Registration{ID: "journey", Endpoint: journey.Endpoint()})
			Expect(err).NotTo(HaveOccurred())
			_, err = gw.Aggregator.CallTool(ctx, "journey.findTrips", nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(gw.UnregisterBackend("journey")).To(Succeed())

			_, exists := gw.Breakers.Get("journey")
			Expect(exists).To(BeFalse())
			Expect(gw.Registry.IndexKeys(registry.KindTool)).To(BeEmpty())

			var nf *apperr.NotFoundError
			Expect(errors.As(gw.UnregisterBackend("journey"), &nf)).To(BeTrue())
		})
	})

	Describe("Health", func() {
		It("should be ok with healthy backends and closed breakers", func() {
			gw, err := gateway.New(testConfig(config.BackendConfig{ID: "journey", Endpoint: journey.Endpoint()}), "1.2.3", logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			Expect(gw.Prober.CheckAll(ctx)).To(Succeed())

			report := gw.Health()
			Expect(report.Status).To(Equal("ok"))
			Expect(report.Version).To(Equal("1.2.3"))
			Expect(report.Backends).To(HaveLen(1))
		})

		It("should be degraded when a backend is down", func() {
			gw, err := gateway.New(testConfig(config.BackendConfig{ID: "journey", Endpoint: journey.Endpoint()}), "test", logger.Discard())
			Expect(err).NotTo(HaveOccurred())

			journey.SetHealthStatus(http.StatusServiceUnavailable)
			Expect(gw.Prober.CheckAll(ctx)).NotTo(Succeed())
			Expect(gw.Health().Status).To(Equal("ok"))

			journey.Close()
			Expect(gw.Prober.CheckAll(ctx)).NotTo(Succeed())
			Expect(gw.Health().Status).To(Equal("degraded"))
		})
	})
})
