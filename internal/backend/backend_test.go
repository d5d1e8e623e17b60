package backend

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(t *testing.T) (string, *health.Server) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)
	return ln.Addr().String(), hs
}

func TestProbeServing(t *testing.T) {
	addr, _ := startHealthServer(t)

	status, err := Probe(context.Background(), addr, "", time.Second)
	require.NoError(t, err)
	require.True(t, status.Ready)
	require.Equal(t, "SERVING", status.Serving)
	require.Equal(t, addr, status.Endpoint)
}

func TestProbeNotServing(t *testing.T) {
	addr, hs := startHealthServer(t)
	hs.SetServingStatus("speech", healthpb.HealthCheckResponse_NOT_SERVING)

	status, err := Probe(context.Background(), addr, "speech", time.Second)
	require.Error(t, err)
	require.True(t, status.Ready)
	require.Equal(t, "NOT_SERVING", status.Serving)
}

func TestProbeUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	status, err := Probe(context.Background(), addr, "", 200*time.Millisecond)
	require.Error(t, err)
	require.False(t, status.Ready)
}

func TestProbeRejectsEmptyEndpoint(t *testing.T) {
	_, err := Probe(context.Background(), " ", "", time.Second)
	require.Error(t, err)
}
