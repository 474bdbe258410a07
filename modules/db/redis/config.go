package redis

import "time"

// Config contains configuration for constructing a rueidis.Client.
//
// URL is a standard Redis URI, for example:
//
//   - Single:  redis://:password@localhost:6379/0
//   - TLS:     rediss://:password@my-redis.example.com:6379/0
//   - Cluster: redis://:password@host1:6379/0?addr=host2:6379&addr=host3:6379
//
// An empty URL is not an error: it puts the quota service into the
// deliberate "rate limiting absent" mode where every request is allowed.
type Config struct {
	URL string `env:"URL"`

	// Optional: client name visible in CLIENT LIST, etc.
	ClientName string `env:"CLIENT_NAME"`

	// SkipTLSVerify disables TLS certificate verification. Only use this
	// in trusted environments with non-standard certificates.
	SkipTLSVerify bool `env:"SKIP_TLS_VERIFY"`

	// RequireTLS enforces rediss://. If true and the URL is redis://,
	// NewClient returns an error.
	RequireTLS bool `env:"REQUIRE_TLS"`

	// Tuning flags. Leave zero-valued to keep rueidis defaults.
	DisableRetry     bool          `env:"DISABLE_RETRY"`
	AlwaysPipelining bool          `env:"ALWAYS_PIPELINING"`
	ConnWriteTimeout time.Duration `env:"CONN_WRITE_TIMEOUT"`

	// Enable OpenTelemetry integration via rueidisotel.
	EnableOtel bool `env:"ENABLE_OTEL"`
}

// Configured reports whether a counter store was provided at all.
func (c Config) Configured() bool {
	return c.URL != ""
}
