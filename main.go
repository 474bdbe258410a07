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

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quotaguard/core/quotaapi/rest"
	"quotaguard/modules/appconfig"
	"quotaguard/modules/clock"
	"quotaguard/modules/db/postgres"
	"quotaguard/modules/db/redis"
	"quotaguard/modules/db/redis/counter"
	"quotaguard/modules/db/redis/locking"
	hmac_sign "quotaguard/modules/hmac"
	"quotaguard/modules/middleware"
	quotamw "quotaguard/modules/middleware/quota"
	"quotaguard/modules/quota"
	"quotaguard/modules/server"
	"quotaguard/modules/telemetry"
	"quotaguard/modules/usage"
)

func main() {
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	// cancel the context when these signals occur
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer cancel()

	// manual dependency injections, imo there's no need to over-engineer with DI frameworks like Fx or Wire
	slog.SetLogLoggerLevel(slog.LevelDebug)

	clk := clock.RealClock{}

	// --- application config ----
	appConfig, err := appconfig.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	mode, err := appConfig.Mode()
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve degradation mode", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("degradation mode resolved",
		slog.String("env", appConfig.Env),
		slog.String("mode", mode.String()),
	)

	// --- telemetry ---

	otelShutdown, err := telemetry.Init(ctx, appConfig.Otel)
	if err != nil {
		slog.ErrorContext(ctx, "telemetry not properly configured", slog.Any("error", err))
		exitCode = 1
		return
	}
	defer func() {
		if err := otelShutdown(context.WithoutCancel(ctx)); err != nil {
			slog.ErrorContext(ctx, "telemetry shutdown error", slog.Any("error", err))
		}
	}()

	quotaMetrics, err := telemetry.NewQuotaMetrics(appConfig.Otel.ServiceName)
	if err != nil {
		slog.WarnContext(ctx, "failed to initialize quota metrics, continuing without", slog.Any("error", err))
		quotaMetrics = nil
	}

	// --- infrastructure ---

	connectionPool, err := postgres.New(
		ctx,
		appConfig.Postgres,
		// assuming connections pass through pgBouncer in transaction mode
		postgres.WithPgBouncerSimpleProtocol(),
	)
	if err != nil {
		slog.ErrorContext(ctx, "database error", slog.Any("error", err))
		exitCode = 1
		return
	}
	defer func() {
		if err := connectionPool.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.ErrorContext(ctx, "database shutdown error", slog.Any("error", err))
		}
	}()

	if err = connectionPool.HealthCheck(ctx); err != nil {
		slog.ErrorContext(ctx, "database health check failed", slog.Any("error", err))
		exitCode = 1
		return
	}

	usageStore := usage.NewPostgresStore(connectionPool)
	if err := usageStore.EnsureSchema(ctx); err != nil {
		slog.ErrorContext(ctx, "usage schema setup failed", slog.Any("error", err))
		exitCode = 1
		return
	}
	usageSvc := usage.NewService(usageStore, clk)

	signer, err := hmac_sign.NewHMACSigner([]byte(appConfig.HMAC.Secret))
	if err != nil {
		slog.ErrorContext(ctx, "hmac signer setup error", slog.Any("error", err))
		exitCode = 1
		return
	}

	onStoreError := func(op string, err error) {
		if quotaMetrics != nil {
			quotaMetrics.RecordStoreFailure(context.WithoutCancel(ctx), op)
		}
	}

	// With no Redis configured the limiter degrades to always-allow and
	// the cluster-wide sweep is skipped; lazy resets in the usage service
	// still keep records correct.
	var factory quota.LimiterFactory
	if appConfig.Redis.Configured() {
		redisClient, err := redis.NewClient(ctx, appConfig.Redis)
		if err != nil {
			slog.ErrorContext(ctx, "redis not properly setup", slog.Any("error", err))
			exitCode = 1
			return
		}
		defer redisClient.Close()

		redisCounter := counter.NewRedisCounterStore(redisClient, "rate-limit")
		factory = quota.DegradingFactory(mode, clk, redisCounter, appConfig.Env, onStoreError)

		locker, err := redis.NewLocker(appConfig.Redis)
		if err != nil {
			slog.ErrorContext(ctx, "redis locker setup error", slog.Any("error", err))
			exitCode = 1
			return
		}
		defer locker.Close()

		exec := locking.NewExecutor(locker, appConfig.Env+":jobs:")
		sweeper := usage.NewSweeper(usageStore, exec, clk, appConfig.Sweep)
		go func() {
			if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "usage sweeper stopped", slog.Any("error", err))
			}
		}()
	} else {
		slog.Warn("no redis configured, rate limiting disabled (always-allow)")
		factory = quota.UnlimitedFactory(clk)
	}

	// --- middleware ---

	keyStrategies := map[quotamw.KeyStrategyId]quotamw.KeyFunc{
		quotamw.ClientIPKeyStrategy: quotamw.ClientIPKeyFunc,
		quotamw.UserKeyStrategy:     quotamw.UserKeyFunc,
	}

	rtp, err := quotamw.ParsePolicy(
		factory,
		&appConfig.Quota,
		func(r *http.Request) quotamw.RouteInfo {
			id := quotamw.Pattern(r.Pattern)
			// pattern is empty if request did not match a registered pattern
			if r.Pattern == "" {
				id = quotamw.Pattern(r.URL.Path)
			}
			return quotamw.RouteInfo{
				ID:     id,
				Method: r.Method,
				Path:   r.URL.Path,
			}
		},
		keyStrategies,
	)
	if err != nil {
		slog.ErrorContext(ctx, "quota config not properly parsed", slog.Any("error", err))
		exitCode = 1
		return
	}
	if quotaMetrics != nil {
		rtp.OnDecision = func(ctx context.Context, allowed bool) {
			quotaMetrics.RecordDecision(ctx, allowed, "middleware")
		}
	}

	httpMetrics, err := telemetry.NewHTTPMetrics(appConfig.Otel.ServiceName)
	if err != nil {
		slog.WarnContext(ctx, "failed to initialize HTTP metrics, continuing without metrics", slog.Any("error", err))
		httpMetrics = nil
	}

	// --- application layer ---

	quotaAPI := rest.NewQuotaAPI(
		factory,
		usageSvc,
		signer,
		appConfig.DefaultLimit,
		appConfig.DefaultWindow,
	)

	srv, err := server.New(
		appConfig.Host, appConfig.Port,
		server.WithWriteTimeout(10*time.Second),
		server.WithReadTimeout(10*time.Second),
		server.WithServices(quotaAPI),
		server.WithGlobalMiddlewares(
			middleware.Telemetry(httpMetrics),
			middleware.RequestID(),
			quotamw.NewMiddleware(rtp),
			middleware.Recovery(middleware.ProblemPanicHandler),
		),
	)
	if err != nil {
		slog.ErrorContext(ctx, "init server error", slog.Any("error", err))
		exitCode = 1
		return
	}

	if err := srv.Run(ctx); err != nil {
		slog.ErrorContext(ctx, "running server error", slog.Any("error", err))
		exitCode = 1
		return
	}
}
