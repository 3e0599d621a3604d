package iam

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Defaults for the Session Engine timers. They are tunables, not correctness guarantees.
const (
	DefaultHTTPTimeout             = 10 * time.Second
	DefaultLoadingTimeout          = 10 * time.Second
	DefaultInactivityLimit         = 70 * time.Minute
	DefaultInactivityCheckInterval = 5 * time.Minute
	DefaultFetchDebounce           = 1 * time.Second
)

// Config holds connection and behavior configuration.
type Config struct {
	// APIBaseURL is the backend REST base, e.g. "https://api.example.com" or "/api".
	APIBaseURL string `envconfig:"API_BASE_URL"`

	// FirebaseAPIKey is the web API key used by the firebase identity provider.
	FirebaseAPIKey string `envconfig:"FIREBASE_API_KEY"`

	// HTTPTimeout bounds every backend round trip.
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`

	// LoadingTimeout ends the loading state if the identity provider never calls back.
	LoadingTimeout time.Duration `envconfig:"LOADING_TIMEOUT" default:"10s"`

	// InactivityLimit forces a logout after this much idle time.
	InactivityLimit time.Duration `envconfig:"INACTIVITY_LIMIT" default:"70m"`

	// InactivityCheckInterval is the cadence of the idle check.
	InactivityCheckInterval time.Duration `envconfig:"INACTIVITY_CHECK_INTERVAL" default:"5m"`

	// FetchDebounce is the minimum spacing between admin-user fetches.
	FetchDebounce time.Duration `envconfig:"FETCH_DEBOUNCE" default:"1s"`

	// SnapshotPath selects the JSON file snapshot store when set.
	SnapshotPath string `envconfig:"SNAPSHOT_PATH"`

	// RedisAddr selects the Redis snapshot store when set.
	RedisAddr string `envconfig:"REDIS_ADDR"`

	// MetricsEnabled turns on Prometheus metrics.
	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"false"`
}

// LoadConfig reads configuration from PORTFOLIO_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("portfolio", &cfg); err != nil {
		return Config{}, fmt.Errorf("iam: load config: %w", err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.LoadingTimeout <= 0 {
		c.LoadingTimeout = DefaultLoadingTimeout
	}
	if c.InactivityLimit <= 0 {
		c.InactivityLimit = DefaultInactivityLimit
	}
	if c.InactivityCheckInterval <= 0 {
		c.InactivityCheckInterval = DefaultInactivityCheckInterval
	}
	if c.FetchDebounce <= 0 {
		c.FetchDebounce = DefaultFetchDebounce
	}
	return c
}

// BuildURL resolves a backend endpoint against APIBaseURL.
//
//	""                          -> /api/<endpoint>
//	"/prefix"                   -> /prefix/<endpoint>
//	"https://host" or ".../api" -> https://host/api/<endpoint>
func (c Config) BuildURL(endpoint string) string {
	clean := strings.TrimPrefix(endpoint, "/")
	base := c.APIBaseURL
	if base == "" {
		return "/api/" + clean
	}
	if strings.HasPrefix(base, "/") {
		return strings.TrimSuffix(base, "/") + "/" + clean
	}
	base = strings.TrimSuffix(base, "/")
	base = strings.TrimSuffix(base, "/api")
	return base + "/api/" + clean
}
