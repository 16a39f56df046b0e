// Package grpcserver exposes the scheduling service's gRPC endpoint. It serves the standard health protocol,
// driven by the same dependency checks as /readyz.
package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/md-rashed-zaman/cronos/libs/grpcx"
	"github.com/md-rashed-zaman/cronos/libs/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name clients probe.
const ServiceName = "cronos.scheduling.v1.SchedulingService"

type Server struct {
	grpc        *grpc.Server
	health      *health.Server
	logger      *slog.Logger
	checks      []runtime.ReadyCheck
	checkPeriod time.Duration
}

func New(logger *slog.Logger, checkPeriod time.Duration, checks ...runtime.ReadyCheck) *Server {
	if checkPeriod <= 0 {
		checkPeriod = 10 * time.Second
	}
	srv, hs := grpcx.NewServer(logger)
	return &Server{grpc: srv, health: hs, logger: logger, checks: checks, checkPeriod: checkPeriod}
}

// Run serves on addr until ctx is done, then stops gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.refresh(ctx)
	go s.watch(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("grpc listening", "addr", addr)
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.health.Shutdown()
	s.grpc.GracefulStop()
	return nil
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.checkPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh sets both the overall and the named service status from the dependency checks.
func (s *Server) refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	for _, c := range s.checks {
		if c.Check == nil {
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Check(checkCtx)
		cancel()
		if err != nil {
			s.logger.Warn("grpc health check failed", "dependency", c.Name, "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
