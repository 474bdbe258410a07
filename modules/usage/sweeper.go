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

package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quotaguard/modules/clock"
	"quotaguard/modules/db/redis/locking"
	"quotaguard/modules/tier"
	"quotaguard/modules/worker"

	"golang.org/x/time/rate"
)

// SweeperConfig tunes the background usage-reset job.
type SweeperConfig struct {
	Interval         time.Duration `env:"INTERVAL" envDefault:"1h"`
	BatchSize        int           `env:"BATCH_SIZE" envDefault:"500"`
	BatchesPerSecond float64       `env:"BATCHES_PER_SECOND" envDefault:"4"`
	Workers          int           `env:"WORKERS" envDefault:"2"`
}

// Sweeper periodically zeroes counters of dormant users whose period has
// rolled over. Consume applies the same resets lazily and remains the
// source of truth; the sweeper only keeps rows fresh for reporting and
// keeps RemainingUnits honest for users who stopped sending traffic.
//
// The sweep is serialized cluster-wide through a distributed lock, so at
// most one node runs it per interval.
type Sweeper struct {
	store Store
	exec  *locking.Executor
	clock clock.Clock
	cfg   SweeperConfig
}

func NewSweeper(store Store, exec *locking.Executor, c clock.Clock, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.BatchesPerSecond <= 0 {
		cfg.BatchesPerSecond = 4
	}
	return &Sweeper{store: store, exec: exec, clock: c, cfg: cfg}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

type sweepKind int

const (
	sweepDaily sweepKind = iota
	sweepMonthly
)

func (s *Sweeper) sweep(ctx context.Context) {
	err := s.exec.Execute(ctx, locking.TaskLock{
		Name:      "usage.sweep",
		AtMostFor: s.cfg.Interval,
	}, s.runBatches)

	switch {
	case err == nil:
	case errors.Is(err, locking.ErrLockNotAcquired):
		// another node took this interval's sweep
	default:
		slog.Error("usage: sweep failed", slog.Any("error", err))
	}
}

func (s *Sweeper) runBatches(ctx context.Context) error {
	// one pacer across all workers so Postgres sees a bounded rate
	pacer := rate.NewLimiter(rate.Limit(s.cfg.BatchesPerSecond), 1)

	jobs := make(chan sweepKind, 2)
	jobs <- sweepDaily
	jobs <- sweepMonthly
	close(jobs)

	worker.BlockingPool(ctx, s.cfg.Workers, jobs, func(ctx context.Context, kind sweepKind) {
		if err := s.drain(ctx, kind, pacer); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("usage: sweep batch failed",
				slog.Int("kind", int(kind)),
				slog.Any("error", err),
			)
		}
	})
	return nil
}

func (s *Sweeper) drain(ctx context.Context, kind sweepKind, pacer *rate.Limiter) error {
	now := s.clock.Now()
	cutoff := now.Add(-tier.DailyPeriod)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var total int64
	for {
		if err := pacer.Wait(ctx); err != nil {
			return err
		}

		var (
			n   int64
			err error
		)
		switch kind {
		case sweepDaily:
			n, err = s.store.ResetStaleDaily(ctx, cutoff, now, s.cfg.BatchSize)
		case sweepMonthly:
			n, err = s.store.ResetStaleMonthly(ctx, monthStart, now, s.cfg.BatchSize)
		}
		if err != nil {
			return err
		}
		total += n
		if n == 0 {
			break
		}
	}

	if total > 0 {
		slog.Info("usage: sweep reset counters",
			slog.Int("kind", int(kind)),
			slog.Int64("rows", total),
		)
	}
	return nil
}
