package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/fastplat/auth/internal/notification"
	"github.com/fastplat/auth/internal/notification/email"
	"github.com/fastplat/auth/pkg/config"
	"github.com/fastplat/auth/pkg/db"
	"github.com/fastplat/auth/pkg/kafka"
	outboxUtils "github.com/fastplat/auth/pkg/outbox/utils"
	"github.com/fastplat/auth/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, using system envs")
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(config.LoggerConfig{
		Level:   cfg.Logger.Level,
		Env:     cfg.Env,
		Service: "notification-service",
	})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, utils.TracerConfig{
		ServiceName: "notification-service",
		Endpoint:    cfg.Tracing.Endpoint,
		Env:         cfg.Env,
		Disabled:    !cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("Error starting telemetry", zap.Error(err))
	}

	pool, err := db.NewPostgresDB(ctx, db.PoolConfig{
		URL:      cfg.Postgres.URL,
		MaxConns: cfg.Postgres.MaxConns,
	})
	if err != nil {
		logger.Fatal("Error creating postgres pool", zap.Error(err))
	}

	gateway := email.WithBreaker(email.NewSMTPGateway(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Timeout:  cfg.SMTP.Timeout,
	}, logger), logger)

	notifier := notification.NewNotifier(
		email.NewSender(gateway, cfg.App.ActivationBaseURL, nil),
		outboxUtils.NewDeduplicator(pool, logger),
		logger,
	)

	consumer := kafka.NewConsumerGroup(
		cfg.Kafka.Brokers,
		cfg.Kafka.GroupID,
		[]string{cfg.Kafka.Topic},
		notifier.HandleMessage,
		logger,
	)

	logger.Info("Notification service started", zap.Strings("brokers", cfg.Kafka.Brokers))

	if err := consumer.Run(ctx); err != nil {
		logger.Error("Consumer stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error closing telemetry", zap.Error(err))
	}

	pool.Close()
	logger.Info("Notification service stopped")
}
