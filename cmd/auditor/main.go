package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-pos-checkout/internal/audit"
	"github.com/ariefcatur/go-pos-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-pos-checkout/internal/kafka"
	"github.com/ariefcatur/go-pos-checkout/internal/postgres"
	"github.com/ariefcatur/go-pos-checkout/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// auditor drains the audit topic into the audit_log table.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log, err := cfg.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required for the auditor")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Redis (optional dedup)
	var rdb redis.Cmdable
	if cfg.RedisAddr != "" {
		c := redisx.New(cfg.RedisAddr)
		defer c.Close()
		rdb = c
	}

	rec := &audit.Recorder{
		Store:       &audit.Repo{DB: db},
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-auditor",
		Log:         log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.AuditGroup, cfg.AuditTopic, cfg.AuditWorkers, log)

	log.Info("audit consumer started",
		zap.String("group", cfg.AuditGroup), zap.String("topic", cfg.AuditTopic), zap.Int("workers", cfg.AuditWorkers))
	if err := cons.Start(ctx, rec.HandleMessage); err != nil && ctx.Err() == nil {
		log.Error("consumer exit", zap.Error(err))
	}
	log.Info("audit consumer stopped")
}
