package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mezonai/circlepay/exception"
	"github.com/mezonai/circlepay/logx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// LedgerProbe is the part of the ledger the health loop needs
type LedgerProbe interface {
	Height() (uint64, error)
}

// HealthServer serves the standard gRPC health protocol and keeps the
// ledger service status in line with whether the ledger store answers.
type HealthServer struct {
	addr     string
	probe    LedgerProbe
	grpcSrv  *grpc.Server
	health   *health.Server
	interval time.Duration
}

func NewHealthServer(addr string, probe LedgerProbe) *HealthServer {
	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(defaultDeadlineUnaryInterceptor(GRPCDefaultDeadline)),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	return &HealthServer{
		addr:     addr,
		probe:    probe,
		grpcSrv:  grpcSrv,
		health:   healthSrv,
		interval: HealthCheckInterval,
	}
}

// GRPCServer exposes the underlying server so tests can serve it on an in-memory listener
func (s *HealthServer) GRPCServer() *grpc.Server {
	return s.grpcSrv
}

// Start listens on addr and serves until ctx is cancelled
func (s *HealthServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve runs the health loop and the gRPC server on lis until ctx is cancelled
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	s.performHealthCheck()
	exception.SafeGo("HealthCheckLoop", func() {
		s.healthLoop(ctx)
	})

	errCh := make(chan error, 1)
	go func() {
		logx.Info("GRPC SERVER", fmt.Sprintf("gRPC health server listening on %s", lis.Addr()))
		errCh <- s.grpcSrv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcSrv.GracefulStop()
		logx.Info("GRPC SERVER", "gRPC health server stopped")
		return nil
	}
}

func (s *HealthServer) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.performHealthCheck()
		}
	}
}

// performHealthCheck marks the ledger service SERVING when its store can be read
func (s *HealthServer) performHealthCheck() {
	status := healthpb.HealthCheckResponse_SERVING
	if _, err := s.probe.Height(); err != nil {
		logx.Warn("GRPC SERVER", fmt.Sprintf("Ledger health check failed: %v", err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(LedgerServiceName, status)
	s.health.SetServingStatus("", status)
}

func defaultDeadlineUnaryInterceptor(defaultTimeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) <= 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
			defer cancel()
		}
		return handler(ctx, req)
	}
}
