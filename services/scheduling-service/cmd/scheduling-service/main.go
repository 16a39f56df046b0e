package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/cronos/libs/db"
	"github.com/md-rashed-zaman/cronos/libs/httpx"
	"github.com/md-rashed-zaman/cronos/libs/kafkax"
	otelx "github.com/md-rashed-zaman/cronos/libs/otel"
	"github.com/md-rashed-zaman/cronos/libs/runtime"
	"github.com/md-rashed-zaman/cronos/libs/tenancy"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/grpcserver"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/slotcache"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := loadSettings()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		n, err := migrations.Apply(ctx, pool)
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "count", n)
	}

	engine, err := availability.NewEngine(cfg.Engine)
	if err != nil {
		panic(err)
	}

	// The slot cache and the shared rate limiter need Redis; without it both fall back to local behavior.
	var (
		rdbCmd  redis.Cmdable
		limiter httpx.Limiter = httpx.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
		checks                = []runtime.ReadyCheck{
			{Name: "db", Check: db.ReadyCheck(pool)},
		}
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		rdbCmd = rdb
		limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "rl:scheduling")
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: slotcache.ReadyCheck(rdb)})
	} else {
		logger.Warn("REDIS_ADDR not set; slot cache disabled and rate limiting is per replica")
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	cache := slotcache.New(rdbCmd, cfg.SlotCacheTTL, logger)

	outboxRepo := outbox.NewRepository()
	repo := storage.NewRepository(pool, outboxRepo)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPollInterval,
		BatchSize: cfg.OutboxBatchSize,
	})
	go publisher.Run(ctx)

	grpcSrv := grpcserver.New(logger, 10*time.Second, checks...)
	go func() {
		if err := grpcSrv.Run(ctx, ":"+cfg.GRPCPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	schedulingHandler := handlers.NewSchedulingHandler(repo, engine, cache, logger, handlers.Config{
		DefaultSlotInterval: cfg.DefaultSlotInterval,
	})
	api := http.NewServeMux()
	schedulingHandler.Register(api)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/", httpx.Chain(api,
		rateLimit(limiter, cfg.RateLimitPerMinute, logger),
		httpx.WithBodyLimit(1<<20),
		tenancy.Middleware(cfg.JWTSecret),
	))

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(cfg.CORSOrigins)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.ServeHTTP(ctx, srv, logger, 10*time.Second); err != nil {
		logger.Error("http server error", "err", err)
	}
	logger.Info("http server stopped")
}

// rateLimit is a pass-through when the limit is zero or negative.
func rateLimit(l httpx.Limiter, perMinute int, logger *slog.Logger) httpx.Middleware {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httpx.RateLimit(l, logger, true)
}
