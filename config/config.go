package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const envPrefix = "MCP_GATEWAY"

type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	Environment string   `mapstructure:"environment"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	// WriteTimeout bounds writing a response. Zero derives it from CallBudget.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// writeTimeoutSlack is added to the call budget for routing and encoding.
const writeTimeoutSlack = 5 * time.Second

type HealthCheckConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ClientConfig struct {
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ListTimeout     time.Duration `mapstructure:"list_timeout"`
	ProtocolVersion string        `mapstructure:"protocol_version"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type CircuitBreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MonitorWindow    time.Duration `mapstructure:"monitor_window"`
}

type NamespaceConfig struct {
	Aliases     map[string]string `mapstructure:"aliases"`
	StripSuffix string            `mapstructure:"strip_suffix"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// BackendConfig is a backend registered at startup.
type BackendConfig struct {
	ID              string   `mapstructure:"id"`
	Name            string   `mapstructure:"name"`
	Endpoint        string   `mapstructure:"endpoint"`
	Transport       string   `mapstructure:"transport"`
	Priority        *int     `mapstructure:"priority"`
	RequiresSession bool     `mapstructure:"requires_session"`
	Tools           []string `mapstructure:"tools"`
	Resources       []string `mapstructure:"resources"`
	Prompts         []string `mapstructure:"prompts"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	HealthCheck    HealthCheckConfig    `mapstructure:"health_check"`
	Client         ClientConfig         `mapstructure:"client"`
	Retry          RetryConfig          `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Namespace      NamespaceConfig      `mapstructure:"namespace"`
	Session        SessionConfig        `mapstructure:"session"`
	Backends       []BackendConfig      `mapstructure:"backends"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("health_check.interval", "30s")
	v.SetDefault("health_check.timeout", "5s")
	v.SetDefault("client.connect_timeout", "5s")
	v.SetDefault("client.read_timeout", "30s")
	v.SetDefault("client.list_timeout", "5s")
	v.SetDefault("client.protocol_version", "2025-03-26")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "200ms")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", "5s")
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.success_threshold", 2)
	v.SetDefault("circuit_breaker.timeout", "30s")
	v.SetDefault("circuit_breaker.monitor_window", "60s")
	v.SetDefault("namespace.strip_suffix", "-mcp")
	v.SetDefault("session.ttl", "30m")
}

// Load reads configuration from path, or from config.yaml in ./config or the
// working directory when path is empty. Environment variables prefixed with
// MCP_GATEWAY_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// CallBudget is the longest one routed call can take: every attempt at the
// full read timeout plus the backoff between attempts.
func (c *Config) CallBudget() time.Duration {
	attempts := c.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	budget := time.Duration(attempts) * c.Client.ReadTimeout
	delay := float64(c.Retry.BaseDelay)
	for i := 1; i < attempts; i++ {
		d := time.Duration(delay)
		if c.Retry.MaxDelay > 0 && d > c.Retry.MaxDelay {
			d = c.Retry.MaxDelay
		}
		budget += d
		delay *= c.Retry.Multiplier
	}
	return budget
}

// HTTPWriteTimeout returns server.write_timeout, or the call budget plus a
// small slack when it is unset.
func (c *Config) HTTPWriteTimeout() time.Duration {
	if c.Server.WriteTimeout > 0 {
		return c.Server.WriteTimeout
	}
	return c.CallBudget() + writeTimeoutSlack
}

func (c *Config) Validate() error {
	budget := c.CallBudget()

	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
					validation.Field(&sc.WriteTimeout,
						validation.Min(budget).Error("must cover every retry attempt ("+budget.String()+")"),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval, validation.Required, validation.Min(time.Second)),
					validation.Field(&hc.Timeout, validation.Required, validation.Min(time.Millisecond)),
				)
			}),
		),
		validation.Field(&c.Client,
			validation.By(func(value interface{}) error {
				cc, ok := value.(ClientConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ClientConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.ConnectTimeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&cc.ReadTimeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&cc.ListTimeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&cc.ProtocolVersion, validation.Required),
				)
			}),
		),
		validation.Field(&c.Retry,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RetryConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RetryConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.MaxAttempts, validation.Required, validation.Min(1)),
					validation.Field(&rc.BaseDelay, validation.Min(time.Duration(0))),
					validation.Field(&rc.Multiplier, validation.Required, validation.Min(1.0)),
					validation.Field(&rc.MaxDelay, validation.Min(rc.BaseDelay)),
				)
			}),
		),
		validation.Field(&c.CircuitBreaker,
			validation.By(func(value interface{}) error {
				bc, ok := value.(CircuitBreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.FailureThreshold, validation.Required, validation.Min(1)),
					validation.Field(&bc.SuccessThreshold, validation.Required, validation.Min(1)),
					validation.Field(&bc.Timeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&bc.MonitorWindow, validation.Required, validation.Min(time.Millisecond)),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.Each(validation.By(validateBackendConfig)),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateBackendConfig(value interface{}) error {
	backend, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	if backend.ID == "" {
		return validation.NewError("validation_empty_id", "backend id cannot be empty")
	}

	if backend.Endpoint == "" {
		return validation.NewError("validation_empty_endpoint", "backend endpoint cannot be empty")
	}

	if backend.Transport != "" && backend.Transport != "http" && backend.Transport != "stdio" {
		return validation.NewError("validation_invalid_transport", "transport must be http or stdio")
	}

	if backend.Transport == "stdio" {
		return nil
	}

	parsedURL, err := url.Parse(backend.Endpoint)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
