package postgres

import "fmt"

// Note: For env parsing to work, we must export all struct fields
type PoolConfig struct {
	Host         string `env:"HOST"     envDefault:"localhost"`
	Port         uint16 `env:"PORT"     envDefault:"5432"`
	User         string `env:"USER"     envDefault:"postgres"`
	Password     string `env:"PASSWORD" envDefault:"postgres"`
	Database     string `env:"DATABASE" envDefault:"postgres"`
	PoolMaxConns int    `env:"POOL_MAX_CONNS" envDefault:"5"`
}

// DSN renders the pgx connection string for this pool.
func (c PoolConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Database, c.PoolMaxConns,
	)
}
