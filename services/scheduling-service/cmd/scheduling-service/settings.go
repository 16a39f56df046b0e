package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/cronos/libs/config"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
)

type settings struct {
	Service  string
	Port     string
	GRPCPort string

	DatabaseURL    string
	DBMaxConns     int
	MigrateOnStart bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SlotCacheTTL  time.Duration

	KafkaBrokers       string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	Engine              availability.Config
	DefaultSlotInterval int

	CORSOrigins        []string
	RateLimitPerMinute int
	JWTSecret          string
}

func loadSettings() (settings, error) {
	var (
		s   settings
		err error
	)
	s.Service = config.String("SERVICE_NAME", "scheduling-service")
	if s.Port, err = config.Port("PORT", "8084"); err != nil {
		return s, err
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9094"); err != nil {
		return s, err
	}
	if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return s, err
	}
	if s.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10); err != nil {
		return s, err
	}
	s.MigrateOnStart = config.Bool("MIGRATE_ON_START", false)

	s.RedisAddr = config.String("REDIS_ADDR", "")
	s.RedisPassword = config.String("REDIS_PASSWORD", "")
	if s.RedisDB, err = config.Int("REDIS_DB", 0); err != nil {
		return s, err
	}
	if s.SlotCacheTTL, err = config.Duration("SLOT_CACHE_TTL", time.Minute); err != nil {
		return s, err
	}

	s.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	if s.OutboxPollInterval, err = config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second); err != nil {
		return s, err
	}
	if s.OutboxBatchSize, err = config.Int("OUTBOX_BATCH_SIZE", 50); err != nil {
		return s, err
	}

	window, err := availability.ParseInterval(
		config.String("EXCEPTION_DEFAULT_START", "09:00"),
		config.String("EXCEPTION_DEFAULT_END", "18:00"),
	)
	if err != nil {
		return s, fmt.Errorf("EXCEPTION_DEFAULT_START/END: %w", err)
	}
	if !window.Valid() {
		return s, fmt.Errorf("EXCEPTION_DEFAULT_START/END: %s is not a valid interval", window)
	}
	s.Engine = availability.Config{ExceptionDefault: window}
	if s.DefaultSlotInterval, err = config.Int("DEFAULT_SLOT_INTERVAL_MINUTES", 60); err != nil {
		return s, err
	}
	if s.DefaultSlotInterval <= 0 || s.DefaultSlotInterval > availability.MinutesPerDay {
		return s, fmt.Errorf("DEFAULT_SLOT_INTERVAL_MINUTES must be between 1 and %d", availability.MinutesPerDay)
	}

	s.CORSOrigins = config.List("CORS_ALLOWED_ORIGINS")
	if s.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 600); err != nil {
		return s, err
	}
	s.JWTSecret = config.String("JWT_SECRET", "")
	return s, nil
}
