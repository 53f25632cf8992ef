// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MAXIMIZA_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	Backend       BackendConfig       `yaml:"backend"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Capability    CapabilityConfig    `yaml:"capability"`
	Collections   CollectionsConfig   `yaml:"collections"`
	Views         ViewsConfig         `yaml:"views"`
	Search        SearchConfig        `yaml:"search"`
	Lookup        LookupCacheConfig   `yaml:"lookup"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// SessionConfig describes console sessions and the tokens that carry them.
type SessionConfig struct {
	SigningKey   string             `yaml:"signing_key"`
	Issuer       string             `yaml:"issuer"`
	TTL          time.Duration      `yaml:"ttl"`
	CookieName   string             `yaml:"cookie_name"`
	CookieSecure bool               `yaml:"cookie_secure"`
	Store        SessionStoreConfig `yaml:"store"`
}

// SessionStoreConfig describes where session records live.
type SessionStoreConfig struct {
	Driver    string `yaml:"driver"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// BackendConfig describes the REST API the console fronts.
type BackendConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	SpecFile       string               `yaml:"spec_file"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig describes circuit breaker settings for the backend.
// FailureThreshold is the number of calls the error-rate window must hold
// before the breaker may open; ErrorRateThreshold is the failing share of
// those calls that opens it (zero means all of them).
type CircuitBreakerConfig struct {
	FailureThreshold   int           `yaml:"failure_threshold"`
	SuccessThreshold   int           `yaml:"success_threshold"`
	Timeout            time.Duration `yaml:"timeout"`
	ErrorRateThreshold float64       `yaml:"error_rate_threshold"`
	ErrorRateWindow    time.Duration `yaml:"error_rate_window"`
}

// DefinitionsConfig describes where to find definition YAML files.
type DefinitionsConfig struct {
	Directories     []string `yaml:"directories"`
	StrictChecksums bool     `yaml:"strict_checksums"`
}

// CapabilityConfig describes authorization settings.
type CapabilityConfig struct {
	StaticPolicyFile string      `yaml:"static_policy_file"`
	Cache            CacheConfig `yaml:"cache"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// CollectionsConfig describes the per-session collection cache.
type CollectionsConfig struct {
	Cache CacheConfig `yaml:"cache"`
}

// ViewsConfig bounds the number and idle lifetime of mounted list views.
type ViewsConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// SearchConfig describes search settings.
type SearchConfig struct {
	TimeoutPerProvider    time.Duration `yaml:"timeout_per_provider"`
	MaxResultsPerProvider int           `yaml:"max_results_per_provider"`
	MinQueryLength        int           `yaml:"min_query_length"`
}

// LookupCacheConfig describes lookup cache settings.
type LookupCacheConfig struct {
	Cache CacheConfig `yaml:"cache"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Session: SessionConfig{
			Issuer:     "maximiza",
			TTL:        8 * time.Hour,
			CookieName: "maximiza_session",
			Store: SessionStoreConfig{
				Driver:    "memory",
				Addr:      "localhost:6379",
				KeyPrefix: "maximiza:session:",
			},
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:3001/api",
			Timeout: 10 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
		},
		Definitions: DefinitionsConfig{
			Directories:     []string{"definitions"},
			StrictChecksums: false,
		},
		Capability: CapabilityConfig{
			StaticPolicyFile: "policy.yaml",
			Cache: CacheConfig{
				TTL:        5 * time.Minute,
				MaxEntries: 10000,
			},
		},
		Collections: CollectionsConfig{
			Cache: CacheConfig{
				TTL:        10 * time.Minute,
				MaxEntries: 5000,
			},
		},
		Views: ViewsConfig{
			MaxEntries: 10000,
			TTL:        30 * time.Minute,
		},
		Search: SearchConfig{
			TimeoutPerProvider:    3 * time.Second,
			MaxResultsPerProvider: 20,
			MinQueryLength:        2,
		},
		Lookup: LookupCacheConfig{
			Cache: CacheConfig{
				TTL:        5 * time.Minute,
				MaxEntries: 1000,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads an optional .env file, then the YAML config at path (if path
// is non-empty), applies environment variable overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if len(c.Session.SigningKey) < 32 {
		errs = append(errs, "session.signing_key must be at least 32 bytes")
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, "session.ttl must be positive")
	}
	switch c.Session.Store.Driver {
	case "memory":
	case "redis":
		if c.Session.Store.Addr == "" {
			errs = append(errs, "session.store.addr is required for the redis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("session.store.driver %q is not supported", c.Session.Store.Driver))
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		errs = append(errs, "backend.base_url must be an http(s) URL")
	}
	if len(c.Definitions.Directories) == 0 {
		errs = append(errs, "definitions.directories must not be empty")
	}
	if c.Views.MaxEntries < 1 {
		errs = append(errs, "views.max_entries must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads MAXIMIZA_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv(EnvPrefix + "BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(EnvPrefix + "SESSION_SIGNING_KEY"); v != "" {
		cfg.Session.SigningKey = v
	}
	if v := os.Getenv(EnvPrefix + "SESSION_STORE"); v != "" {
		cfg.Session.Store.Driver = v
	}
	if v := os.Getenv(EnvPrefix + "REDIS_ADDR"); v != "" {
		cfg.Session.Store.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
