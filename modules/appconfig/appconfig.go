package appconfig

import (
	"fmt"
	"time"

	"quotaguard/modules/db/postgres"
	"quotaguard/modules/db/redis"
	"quotaguard/modules/hmac"
	quotamw "quotaguard/modules/middleware/quota"
	"quotaguard/modules/quota"
	"quotaguard/modules/telemetry"
	"quotaguard/modules/usage"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"dev"`
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"8080"`

	// FailMode overrides the ENV-derived degradation mode when set.
	// Accepts "open" or "closed".
	FailMode string `env:"QUOTA_FAIL_MODE"`

	// Defaults for explicit check/status calls that do not pin a policy.
	DefaultLimit  int64         `env:"QUOTA_DEFAULT_LIMIT" envDefault:"100"`
	DefaultWindow time.Duration `env:"QUOTA_DEFAULT_WINDOW" envDefault:"1m"`

	// --- core infra ----
	HMAC     hmac.HMACConfig     `envPrefix:"HMAC_"`
	Redis    redis.Config        `envPrefix:"REDIS_"`
	Postgres postgres.PoolConfig `envPrefix:"POSTGRES_"`

	// --- middlewares ----
	Quota quotamw.Config `envPrefix:"QUOTA_"`

	// --- background jobs ----
	Sweep usage.SweeperConfig `envPrefix:"SWEEP_"`

	// --- otel ----
	// since it has special naming conventions, we do not use prefix here
	Otel telemetry.Config
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Mode resolves the degradation mode once at startup: explicit override
// first, otherwise derived from ENV.
func (c *Config) Mode() (quota.Mode, error) {
	switch c.FailMode {
	case "":
		return quota.ModeForEnv(c.Env), nil
	case "open":
		return quota.ModeFailOpen, nil
	case "closed":
		return quota.ModeFailClosed, nil
	default:
		return 0, fmt.Errorf("appconfig: bad QUOTA_FAIL_MODE %q", c.FailMode)
	}
}

func validate(c *Config) error {
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("appconfig: QUOTA_DEFAULT_LIMIT must be positive")
	}
	if c.DefaultWindow <= 0 {
		return fmt.Errorf("appconfig: QUOTA_DEFAULT_WINDOW must be positive")
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	return nil
}
