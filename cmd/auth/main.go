package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fastplat/auth/internal/cache"
	"github.com/fastplat/auth/internal/metrics"
	"github.com/fastplat/auth/internal/notification/email"
	"github.com/fastplat/auth/internal/repository"
	"github.com/fastplat/auth/internal/security"
	"github.com/fastplat/auth/internal/service"
	"github.com/fastplat/auth/internal/transport/grpc"
	httpTransport "github.com/fastplat/auth/internal/transport/http"
	"github.com/fastplat/auth/pkg/config"
	"github.com/fastplat/auth/pkg/db"
	"github.com/fastplat/auth/pkg/kafka"
	outbox "github.com/fastplat/auth/pkg/outbox/repository"
	"github.com/fastplat/auth/pkg/outbox/worker"
	"github.com/fastplat/auth/pkg/utils"
	myValidator "github.com/fastplat/auth/pkg/validator"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
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
		Service: cfg.App.Name,
	})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, utils.TracerConfig{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Tracing.Endpoint,
		Env:         cfg.Env,
		Disabled:    !cfg.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal("Error init tracer", zap.Error(err))
	}

	if cfg.Postgres.AutoMigrate {
		if err := db.MigrateUp(cfg.Postgres.MigrationsPath, cfg.Postgres.URL); err != nil {
			logger.Fatal("Error applying migrations", zap.Error(err))
		}
		logger.Info("Migrations applied")
	}

	pool, err := db.NewPostgresDB(ctx, db.PoolConfig{
		URL:             cfg.Postgres.URL,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
	})
	if err != nil {
		logger.Fatal("Error creating postgres pool", zap.Error(err))
	}

	sessionCache := cache.NewNoopSessionCache()
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unavailable, session cache disabled", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		} else {
			sessionCache = cache.NewRedisSessionCache(redisClient, cfg.Redis.SessionTTL)
		}
	}

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("Error creating kafka producer", zap.Error(err))
	}

	outboxRepo := outbox.NewOutboxRepository(logger)
	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger)
	go outboxProcessor.Start(ctx)

	hasher, err := security.NewHasher(cfg.Security.BcryptCost)
	if err != nil {
		logger.Fatal("Error creating hasher", zap.Error(err))
	}

	tokens, err := security.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.SessionTTL)
	if err != nil {
		logger.Fatal("Error creating token manager", zap.Error(err))
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	grpc_prometheus.EnableHandlingTimeHistogram()
	reg.MustRegister(grpc_prometheus.DefaultServerMetrics)

	gateway := email.WithBreaker(email.NewSMTPGateway(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		Timeout:  cfg.SMTP.Timeout,
	}, logger), logger)

	authService := service.NewAuthService(service.Dependencies{
		DB:       pool,
		Users:    repository.NewUserRepository(pool, logger),
		Sessions: repository.NewSessionRepository(pool, logger),
		Events:   outboxRepo,
		Cache:    sessionCache,
		Hasher:   hasher,
		Tokens:   tokens,
		Mailer:   email.NewSender(gateway, cfg.App.ActivationBaseURL, m),
		Passwords: myValidator.NewValidator(myValidator.Policy{
			MinLength:          cfg.Password.MinLength,
			RequireLetterDigit: cfg.Password.RequireLetterDigit,
		}),
		Metrics: m,
		Logger:  logger,
	}, service.Options{
		RequireVerifiedRecovery: cfg.Recovery.RequireVerified,
		RecoveryCodeLength:      cfg.Recovery.CodeLength,
		EventsTopic:             cfg.Kafka.Topic,
	})

	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Port,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", cfg.Metrics.Port))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics serving failed", zap.Error(err))
		}
	}()

	healthServer := grpc.NewHealthServer(pool, cfg.GRPC.CheckInterval, logger)
	go healthServer.Watch(ctx)

	lis, err := net.Listen("tcp", cfg.GRPC.Port)
	if err != nil {
		logger.Fatal("Error listening on tcp", zap.Error(err))
	}
	go func() {
		logger.Info("gRPC health server listening", zap.String("addr", cfg.GRPC.Port))
		if err := healthServer.Serve(lis); err != nil {
			logger.Error("Error serving gRPC", zap.Error(err))
		}
	}()

	app := httpTransport.NewApp(httpTransport.AppConfig{
		ReadTimeout: cfg.HTTP.Timeout,
		LimitMax:    cfg.Limiter.Max,
		LimitWindow: cfg.Limiter.Expiration,
	}, m)
	httpTransport.RegisterRoutes(app, httpTransport.NewHandlers(authService, logger), authService, logger)

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			logger.Error("Error listening on HTTP", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP", zap.Error(err))
	}

	healthServer.GracefulStop()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down metrics server", zap.Error(err))
	}

	if err := kafkaProducer.Close(); err != nil {
		logger.Error("Kafka close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	pool.Close()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error closing telemetry", zap.Error(err))
	}

	logger.Info("Auth service stopped")
}
