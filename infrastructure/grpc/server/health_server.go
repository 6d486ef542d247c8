package server

import (
	"context"
	"log/slog"
	"net"

	sdkgrpc "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HubService is the service name probes can check besides the overall "".
const HubService = "chathub.Hub"

// HealthServer exposes the standard gRPC health protocol. The hub reports
// NOT_SERVING until it is started and again once shutdown begins.
type HealthServer struct {
	log    *slog.Logger
	server *grpc.Server
	health *health.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(sdkgrpc.UnaryLoggingInterceptor(log)))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	hs := &HealthServer{log: log, server: s, health: h}
	hs.SetServing(false)
	return hs
}

func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(HubService, status)
	s.log.Debug("Health status changed", "status", status.String())
}

// Serve blocks until Stop is called.
func (s *HealthServer) Serve(listener net.Listener) error {
	s.log.Info("Starting gRPC health server", "address", listener.Addr().String())
	return s.server.Serve(listener)
}

// Stop reports NOT_SERVING to every watcher, then lets running calls end.
func (s *HealthServer) Stop(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}
}
