package config

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Credential wait policies: what the gateway does when no credential arrives
// before the wait timeout elapses.
const (
	CredentialWaitProceed = "proceed"
	CredentialWaitFail    = "fail"
)

type Config struct {
	API     APIConfig
	Cache   CacheConfig
	Session SessionConfig
	Observe ObserveConfig
}

// APIConfig describes the upstream storefront REST API.
type APIConfig struct {
	// BaseURL is the scheme and host of the API, e.g. https://api.example.com
	BaseURL string `env:"STOREFRONT_API_BASE_URL, required"`

	// PathPrefix is the versioned path all endpoints are relative to.
	PathPrefix string `env:"STOREFRONT_API_PATH_PREFIX, default=/api/v1/"`

	RefreshPath string `env:"STOREFRONT_API_REFRESH_PATH, default=auth/refresh-token"`
	LogoutPath  string `env:"STOREFRONT_API_LOGOUT_PATH, default=auth/logout"`

	// CredentialWait bounds how long a request waits for the session to be
	// bootstrapped before it is sent.
	CredentialWait time.Duration `env:"STOREFRONT_CREDENTIAL_WAIT, default=5s"`

	// CredentialWaitPolicy is either "proceed" (send unauthenticated once the
	// wait elapses) or "fail".
	CredentialWaitPolicy string `env:"STOREFRONT_CREDENTIAL_WAIT_POLICY, default=proceed"`

	RequestTimeout time.Duration `env:"STOREFRONT_REQUEST_TIMEOUT, default=30s"`

	OutgoingHTTPMaxIdleConns    int `env:"STOREFRONT_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"STOREFRONT_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// Endpoint returns the absolute URL of the API root, including the path
// prefix.
func (c APIConfig) Endpoint() (*url.URL, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse API base URL: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("API base URL must be absolute: %s", c.BaseURL)
	}

	prefix := c.PathPrefix
	if prefix == "" {
		prefix = "/"
	}
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}

	return base.JoinPath(prefix), nil
}

// Validate checks that the API configuration is usable.
func (c *APIConfig) Validate() error {
	if _, err := c.Endpoint(); err != nil {
		return err
	}

	switch c.CredentialWaitPolicy {
	case CredentialWaitProceed, CredentialWaitFail:
	default:
		return fmt.Errorf("STOREFRONT_CREDENTIAL_WAIT_POLICY must be %q or %q, got %q",
			CredentialWaitProceed, CredentialWaitFail, c.CredentialWaitPolicy)
	}

	if c.CredentialWait < 0 {
		return fmt.Errorf("STOREFRONT_CREDENTIAL_WAIT must not be negative")
	}

	if c.RefreshPath == "" || c.LogoutPath == "" {
		return fmt.Errorf("refresh and logout paths must be configured")
	}

	return nil
}

// CacheConfig specifies entity cache configuration.
type CacheConfig struct {
	// MaxEntries bounds the number of cached query results. Least valuable
	// entries are evicted beyond this size.
	MaxEntries int `env:"STOREFRONT_CACHE_MAX_ENTRIES, default=1000"`
}

// Validate checks that the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if c.MaxEntries <= 0 {
		return fmt.Errorf("STOREFRONT_CACHE_MAX_ENTRIES must be positive, got %d", c.MaxEntries)
	}
	return nil
}

// SessionConfig configures the session persistence collaborator.
type SessionConfig struct {
	// File is where the session is persisted between runs. Empty disables
	// persistence.
	File string `env:"STOREFRONT_SESSION_FILE"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=storefront-sync"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.API.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid API configuration: %w", err)
	}

	err = cfg.Cache.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	return cfg, nil
}
