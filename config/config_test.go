package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/mcp-gateway/config"
)

func writeConfig(dir, content string) string {
	path := filepath.Join(dir, "config.yaml")
	Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
	return path
}

var _ = Describe("Config", func() {
	var (
		tempDir string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tempDir)
		os.Unsetenv("MCP_GATEWAY_RETRY_MAX_ATTEMPTS")
	})

	Describe("Load", func() {
		Context("with a valid config file", func() {
			var path string

			BeforeEach(func() {
				path = writeConfig(tempDir, `
server:
  address: ":9090"
  environment: "prod"

logging:
  level: "debug"

retry:
  max_attempts: 4
  base_delay: "50ms"
  multiplier: 3
  max_delay: "1s"

circuit_breaker:
  failure_threshold: 2

namespace:
  aliases:
    journey-service-mcp: journey

backends:
  - id: "journey-service-mcp"
    name: "Journey Service"
    endpoint: "http://localhost:8081/mcp"
    requires_session: true
    tools: ["findTrips"]
  - id: "local-files"
    endpoint: "files-server --stdio"
    transport: "stdio"
`)
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":9090"))
				Expect(cfg.Logging.Level).To(Equal("debug"))
			})

			It("should parse retry and breaker policy", func() {
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Retry.MaxAttempts).To(Equal(4))
				Expect(cfg.Retry.BaseDelay).To(Equal(50 * time.Millisecond))
				Expect(cfg.Retry.Multiplier).To(Equal(3.0))
				Expect(cfg.CircuitBreaker.FailureThreshold).To(Equal(2))
				Expect(cfg.CircuitBreaker.SuccessThreshold).To(Equal(2))
			})

			It("should parse static backends and aliases", func() {
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Backends).To(HaveLen(2))
				Expect(cfg.Backends[0].RequiresSession).To(BeTrue())
				Expect(cfg.Backends[0].Tools).To(Equal([]string{"findTrips"}))
				Expect(cfg.Backends[1].Transport).To(Equal("stdio"))
				Expect(cfg.Namespace.Aliases).To(HaveKeyWithValue("journey-service-mcp", "journey"))
			})

			It("should let environment variables override the file", func() {
				os.Setenv("MCP_GATEWAY_RETRY_MAX_ATTEMPTS", "7")
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Retry.MaxAttempts).To(Equal(7))
			})
		})

		Context("without a config file", func() {
			BeforeEach(func() {
				Expect(os.Chdir(tempDir)).To(Succeed())
			})

			It("should use defaults", func() {
				cfg, err := config.Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Address).To(Equal(":8080"))
				Expect(cfg.Client.ListTimeout).To(Equal(5 * time.Second))
				Expect(cfg.Retry.MaxAttempts).To(Equal(3))
				Expect(cfg.Namespace.StripSuffix).To(Equal("-mcp"))
				Expect(cfg.Backends).To(BeEmpty())
			})
		})

		Context("with an explicit path that does not exist", func() {
			It("should fail", func() {
				_, err := config.Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with an explicit write timeout", func() {
			It("should accept one covering every retry attempt", func() {
				path := writeConfig(tempDir, "server:\n  write_timeout: \"2m\"\n")
				cfg, err := config.Load(path)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.HTTPWriteTimeout()).To(Equal(2 * time.Minute))
			})

			It("should reject one shorter than a retried call", func() {
				path := writeConfig(tempDir, "server:\n  write_timeout: \"60s\"\n")
				_, err := config.Load(path)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("WriteTimeout"))
				Expect(err.Error()).To(ContainSubstring("1m30.6s"))
			})
		})

		DescribeTable("rejects invalid configurations",
			func(content string) {
				path := writeConfig(tempDir, content)
				_, err := config.Load(path)
				Expect(err).To(HaveOccurred())
			},
			Entry("bad environment", "server:\n  environment: \"qa\"\n"),
			Entry("bad address", "server:\n  address: \"nope\"\n"),
			Entry("bad log level", "logging:\n  level: \"loud\"\n"),
			Entry("zero attempts", "retry:\n  max_attempts: -1\n"),
			Entry("backend without id", "backends:\n  - endpoint: \"http://localhost:8081/mcp\"\n"),
			Entry("backend with ftp endpoint", "backends:\n  - id: \"x\"\n    endpoint: \"ftp://localhost/mcp\"\n"),
		)
	})

	Describe("CallBudget", func() {
		DescribeTable("covers every attempt and the backoff between them",
			func(retry config.RetryConfig, readTimeout, expected time.Duration) {
				cfg := &config.Config{Retry: retry, Client: config.ClientConfig{ReadTimeout: readTimeout}}
				Expect(cfg.CallBudget()).To(Equal(expected))
			},
			Entry("defaults", config.RetryConfig{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Second},
				30*time.Second, 90*time.Second+600*time.Millisecond),
			Entry("single attempt", config.RetryConfig{MaxAttempts: 1, BaseDelay: time.Second, Multiplier: 2},
				10*time.Second, 10*time.Second),
			Entry("delay capped", config.RetryConfig{MaxAttempts: 4, BaseDelay: time.Second, Multiplier: 10, MaxDelay: 2 * time.Second},
				time.Second, 4*time.Second+time.Second+2*time.Second+2*time.Second),
		)

		It("should derive the write timeout when none is set", func() {
			Expect(os.Chdir(tempDir)).To(Succeed())
			cfg, err := config.Load("")
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.HTTPWriteTimeout()).To(Equal(95*time.Second + 600*time.Millisecond))
		})
	})
})
