package grpc

import (
	"context"
	"net"
	"time"

	"github.com/fastplat/auth/pkg/mylogger"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	googleGrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall ("") status.
const ServiceName = "fastplat.auth"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer exposes grpc.health.v1 and reports NOT_SERVING while postgres
// does not answer a ping.
type HealthServer struct {
	server   *googleGrpc.Server
	health   *health.Server
	db       Pinger
	interval time.Duration
	logger   *zap.Logger
}

func NewHealthServer(db Pinger, interval time.Duration, logger *zap.Logger) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	s := googleGrpc.NewServer(
		googleGrpc.StatsHandler(otelgrpc.NewServerHandler()),
		googleGrpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
		googleGrpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	grpc_prometheus.Register(s)

	return &HealthServer{
		server:   s,
		health:   hs,
		db:       db,
		interval: interval,
		logger:   logger,
	}
}

// Check pings the database once and publishes the result.
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.db.Ping(ctx); err != nil {
		mylogger.Warn(ctx, h.logger, "Postgres ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)

	return status
}

// Watch re-checks every interval until ctx is cancelled.
func (h *HealthServer) Watch(ctx context.Context) {
	h.Check(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

func (h *HealthServer) Serve(lis net.Listener) error {
	return h.server.Serve(lis)
}

// GracefulStop marks every service NOT_SERVING before draining connections.
func (h *HealthServer) GracefulStop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
