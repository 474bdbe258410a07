package quota

import (
	"time"
)

type KeyStrategyId string

const (
	// ClientIPKeyStrategy tracks quota per forwarded client IP.
	ClientIPKeyStrategy KeyStrategyId = "client_ip"

	// UserKeyStrategy tracks quota per authenticated user id.
	UserKeyStrategy KeyStrategyId = "user"
)

type (
	Config struct {
		Routes              []Route      `envPrefix:"ROUTE_"`
		DefaultPolicy       EndpointRule `envPrefix:"DEFAULT_"`
		AllowIfNoMatch      bool         `env:"ALLOW_IF_NO_MATCH" envDefault:"true"`
		AllowIfNoIdentifier bool         `env:"ALLOW_IF_NO_ID"`
	}

	Route struct {
		Pattern       string         `env:"PATTERN"`
		EndpointRules []EndpointRule `envPrefix:"POLICY_"`
	}

	EndpointRule struct {
		Method      string        `env:"METHOD"`
		Limit       int64         `env:"LIMIT" envDefault:"100"`
		Window      time.Duration `env:"WINDOW" envDefault:"1m"`
		KeyStrategy KeyStrategyId `env:"KEY_STRATEGY" envDefault:"client_ip"`
	}
)
