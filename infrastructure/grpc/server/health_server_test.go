package server

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServer_Status(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	server := NewHealthServer(logs.GetLoggerFromLevel(slog.LevelDebug))
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(func() { server.Stop(context.Background()) })

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		req.NoError(err)
		return resp.GetStatus()
	}

	// Given the hub is not started yet
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, check(HubService))

	// When it starts
	server.SetServing(true)

	// Then probes see it serving
	req.Equal(healthpb.HealthCheckResponse_SERVING, check(""))
	req.Equal(healthpb.HealthCheckResponse_SERVING, check(HubService))

	// And it goes back to not serving when draining
	server.SetServing(false)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, check(HubService))
}
