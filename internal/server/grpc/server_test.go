package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	cfgpkg "github.com/rzbill/strata/internal/config"
	"github.com/rzbill/strata/internal/runtime"
)

const bufSize = 1 << 20

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
}

func newHealthClient(t *testing.T, clk clock.Clock) (*Server, *runtime.Runtime, healthpb.HealthClient) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Fsync = "always"
	rt, err := runtime.Open(runtime.Options{Config: cfg, Clock: clk})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	srv := New(rt, nil)
	d := dialer(srv.grpc)
	conn, err := grpc.NewClient("passthrough:///bufnet", grpc.WithContextDialer(d), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Close()
		_ = rt.Close()
	})
	return srv, rt, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return res.GetStatus()
}

func TestHealthOverGRPC(t *testing.T) {
	_, _, c := newHealthClient(t, nil)
	if got := check(t, c, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall: %v", got)
	}
	if got := check(t, c, ControllerService); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("controller: %v", got)
	}
}

func TestControllerHealthTracksBreaker(t *testing.T) {
	mock := clock.NewMock()
	srv, rt, c := newHealthClient(t, mock)

	rt.Breaker().Overload()
	srv.refreshHealth(context.Background())
	if got := check(t, c, ControllerService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("want NOT_SERVING while overloaded, got %v", got)
	}
	if got := check(t, c, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("overall should stay serving: %v", got)
	}

	mock.Add(rt.Breaker().Window())
	rt.Breaker().Success()
	srv.refreshHealth(context.Background())
	if got := check(t, c, ControllerService); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("want SERVING after recovery, got %v", got)
	}
}
