// Package backend probes an optional remote speech backend over gRPC.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Status is the outcome of one readiness probe.
type Status struct {
	Endpoint string
	Ready    bool
	Serving  string
	Latency  time.Duration
}

// Probe dials endpoint, waits for the connection to become ready and asks the
// standard health service about service ("" means the whole server).
func Probe(ctx context.Context, endpoint string, service string, timeout time.Duration) (Status, error) {
	endpoint = strings.TrimSpace(endpoint)
	status := Status{Endpoint: endpoint}
	if endpoint == "" {
		return status, errors.New("backend endpoint is empty")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return status, fmt.Errorf("dial backend %q: %w", endpoint, err)
	}
	defer conn.Close()

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	conn.Connect()
	if err := waitForReady(probeCtx, conn); err != nil {
		return status, fmt.Errorf("wait for backend readiness: %w", err)
	}
	status.Ready = true

	resp, err := healthpb.NewHealthClient(conn).Check(probeCtx, &healthpb.HealthCheckRequest{Service: service})
	status.Latency = time.Since(started)
	if err != nil {
		return status, fmt.Errorf("backend health check: %w", err)
	}
	status.Serving = resp.GetStatus().String()
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return status, fmt.Errorf("backend not serving: %s", status.Serving)
	}
	return status, nil
}

// waitForReady blocks until the connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}
