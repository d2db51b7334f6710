package grpc

import (
	"context"
	"net"
	"time"

	"github.com/NineNineAFK/verto/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

const checkTimeout = 2 * time.Second

// healthService answers the standard health protocol. Every Check probes the dependencies
// first, so the reported status is never older than the request.
type healthService struct {
	*health.Server
	service string
	check   CheckFunc
}

func (h *healthService) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	h.refresh(ctx)
	return h.Server.Check(ctx, req)
}

func (h *healthService) refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if h.check != nil {
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if err := h.check(ctx); err != nil {
			logging.FromContext(ctx).Warn("health check failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.SetServingStatus("", status)
	h.SetServingStatus(h.service, status)
}

type Server struct {
	grpc   *grpc.Server
	health *healthService
}

// NewServer builds the probe server for service. check runs on every health request.
func NewServer(service string, check CheckFunc) *Server {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := &healthService{
		Server:  health.NewServer(),
		service: service,
		check:   check,
	}
	hs.refresh(context.Background())

	healthpb.RegisterHealthServer(srv, hs)
	// Enable reflection for grpcurl/grpcui
	reflection.Register(srv)

	return &Server{grpc: srv, health: hs}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop reports NOT_SERVING to watchers and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
