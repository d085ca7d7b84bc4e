package client

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cfgpkg "github.com/rzbill/strata/internal/config"
	"github.com/rzbill/strata/internal/runtime"
	httpserver "github.com/rzbill/strata/internal/server/http"
)

func startServer(t *testing.T) (BaseURLFunc, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Fsync = "always"
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	ts := httptest.NewServer(httpserver.New(rt, nil).Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = rt.Close()
	})
	return func() string { return ts.URL }, rt
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestAppendAndFetch_PrintsRecords(t *testing.T) {
	base, _ := startServer(t)

	out, err := run(t, NewStreamCommand(base), "append", "--name", "orders", "--data", `{"kind":"a"}`, "--data", "plain", "--header", "src=cli")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !strings.Contains(out, "status: OK") || !strings.Contains(out, "next_offset=2") {
		t.Fatalf("unexpected output: %s", out)
	}

	out, err = run(t, NewStreamCommand(base), "fetch", "--name", "orders")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), out)
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := first["payload_json"]; !ok {
		t.Fatalf("json payload not decoded: %v", first)
	}
	if !strings.Contains(lines[1], `"payload_text":"plain"`) || !strings.Contains(lines[1], `"src":"cli"`) {
		t.Fatalf("unexpected second line: %s", lines[1])
	}

	out, err = run(t, NewStreamCommand(base), "fetch", "--name", "orders", "--filter", `json.kind == "a"`)
	if err != nil {
		t.Fatalf("filtered fetch: %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(out), "\n")); n != 1 {
		t.Fatalf("filter returned %d lines", n)
	}
}

func TestDescribeTrimDestroy(t *testing.T) {
	base, _ := startServer(t)
	if _, err := run(t, NewStreamCommand(base), "append", "--name", "s", "--data", "a", "--data", "b", "--data", "c"); err != nil {
		t.Fatalf("append: %v", err)
	}
	out, err := run(t, NewStreamCommand(base), "trim", "--name", "s", "--start-offset", "2")
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if !strings.Contains(out, `"start_offset": 2`) {
		t.Fatalf("unexpected trim output: %s", out)
	}
	if _, err := run(t, NewStreamCommand(base), "destroy", "--name", "s"); err == nil {
		t.Fatalf("destroy without --confirm should fail")
	}
	if _, err := run(t, NewStreamCommand(base), "destroy", "--name", "s", "--confirm"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	_, err = run(t, NewStreamCommand(base), "describe", "--name", "s")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("want 404 after destroy, got %v", err)
	}
}

func TestAppendFlagValidation(t *testing.T) {
	base, _ := startServer(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no name", []string{"append", "--data", "x"}},
		{"no data", []string{"append", "--name", "s"}},
		{"bad header", []string{"append", "--name", "s", "--data", "x", "--header", "novalue"}},
		{"bad header json", []string{"append", "--name", "s", "--data", "x", "--header-json", "{"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, NewStreamCommand(base), tt.args...); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBreakerAndUpdateGroup(t *testing.T) {
	base, rt := startServer(t)
	out, err := run(t, NewControllerCommand(base), "breaker")
	if err != nil {
		t.Fatalf("breaker: %v", err)
	}
	if !strings.Contains(out, `"state": "closed"`) {
		t.Fatalf("unexpected breaker output: %s", out)
	}

	out, err = run(t, NewControllerCommand(base), "update-group", "--group", "g1", "--link", "l1", "--promoted")
	if err != nil {
		t.Fatalf("update-group: %v", err)
	}
	if !strings.Contains(out, "error_code=NONE") {
		t.Fatalf("unexpected output: %s", out)
	}
	if g, err := rt.Catalog().Group("g1"); err != nil || !g.Promoted {
		t.Fatalf("group not stored: %+v %v", g, err)
	}

	if _, err := run(t, NewControllerCommand(base), "update-group", "--group", "g1", "--api-version", "7"); err == nil {
		t.Fatalf("expected version error")
	}
}

func startHealthStub(t *testing.T, status healthpb.HealthCheckResponse_ServingStatus) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("strata.controller", status)
	healthpb.RegisterHealthServer(gs, hs)
	done := make(chan struct{})
	go func() {
		_ = gs.Serve(l)
		close(done)
	}()
	t.Cleanup(func() {
		gs.GracefulStop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			gs.Stop()
		}
	})
	return l.Addr().String()
}

func TestHealthGRPC_PrintsStatus(t *testing.T) {
	addr := startHealthStub(t, healthpb.HealthCheckResponse_NOT_SERVING)
	t.Setenv("STRATA_GRPC", addr)

	out, err := run(t, NewControllerCommand(func() string { return "" }), "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.Contains(out, "status: NOT_SERVING") {
		t.Fatalf("unexpected output: %s", out)
	}
}
