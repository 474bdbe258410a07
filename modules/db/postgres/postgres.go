// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the usage-record database connection pool.
type Pool struct {
	*pgxpool.Pool
}

// New builds a pgx pool from cfg and verifies connectivity.
func New(ctx context.Context, cfg PoolConfig, opts ...PgxConfigOption) (*Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	for _, opt := range opts {
		opt(pcfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// HealthCheck pings the primary.
func (p *Pool) HealthCheck(ctx context.Context) error {
	return p.Ping(ctx)
}

// Shutdown gracefully closes all underlying connections.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	return nil
}
