package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benbjohnson/clock"

	cfgpkg "github.com/rzbill/strata/internal/config"
	"github.com/rzbill/strata/internal/controller"
	"github.com/rzbill/strata/internal/protocol"
	"github.com/rzbill/strata/internal/runtime"
	streamsvc "github.com/rzbill/strata/internal/services/streams"
	logpkg "github.com/rzbill/strata/pkg/log"
)

func newTestServer(t *testing.T, clk clock.Clock) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Fsync = "always"
	rt, err := runtime.Open(runtime.Options{Config: cfg, Clock: clk})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	return New(rt, logger), rt
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := do(s, http.MethodGet, "/v1/healthz", "")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("body: %s", w.Body.String())
	}
	if len(w.Header().Get(RequestIDHeader)) != 32 {
		t.Fatalf("missing request id: %q", w.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Header().Get(RequestIDHeader) != "abc" {
		t.Fatalf("incoming request id not kept")
	}
}

func TestAppendFetchDescribe(t *testing.T) {
	s, _ := newTestServer(t, nil)
	body := `{"name":"orders","records":[{"payload":"aGVsbG8="},{"payload":"d29ybGQ=","headers":{"k":"v"}}]}`
	w := do(s, http.MethodPost, "/v1/streams/append", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("append status: %d %s", w.Code, w.Body.String())
	}
	var ar streamsvc.AppendResult
	if err := json.Unmarshal(w.Body.Bytes(), &ar); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ar.BaseOffset != 0 || ar.NextOffset != 2 {
		t.Fatalf("unexpected append result %+v", ar)
	}

	w = do(s, http.MethodGet, `/v1/streams/fetch?name=orders&filter=headers%5B%22k%22%5D+%3D%3D+%22v%22`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("fetch status: %d %s", w.Code, w.Body.String())
	}
	var fr streamsvc.FetchResult
	if err := json.Unmarshal(w.Body.Bytes(), &fr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(fr.Records) != 1 || string(fr.Records[0].Payload) != "world" || fr.NextOffset != 2 {
		t.Fatalf("unexpected fetch %+v", fr)
	}

	w = do(s, http.MethodGet, "/v1/streams/describe?name=orders", "")
	var info streamsvc.StreamInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !info.Materialized || info.NextOffset != 2 || info.Tags["name"] != "orders" {
		t.Fatalf("unexpected describe %+v", info)
	}
}

func TestErrorStatuses(t *testing.T) {
	s, _ := newTestServer(t, nil)
	_ = do(s, http.MethodPost, "/v1/streams/append", `{"name":"a","records":[{"payload":"eA=="}]}`)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "/v1/streams/append", "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "/v1/streams/append", "{", http.StatusBadRequest},
		{"no records", http.MethodPost, "/v1/streams/append", `{"name":"a"}`, http.StatusBadRequest},
		{"bad name", http.MethodPost, "/v1/streams/append", `{"name":"A B","records":[{}]}`, http.StatusBadRequest},
		{"unknown stream", http.MethodGet, "/v1/streams/describe?name=nope", "", http.StatusNotFound},
		{"out of range", http.MethodGet, "/v1/streams/fetch?name=a&start=7", "", http.StatusRequestedRangeNotSatisfiable},
		{"bad filter", http.MethodGet, "/v1/streams/fetch?name=a&filter=offset", "", http.StatusBadRequest},
		{"bad start", http.MethodGet, "/v1/streams/fetch?name=a&start=x", "", http.StatusBadRequest},
		{"trim", http.MethodPost, "/v1/streams/trim", `{"name":"a","start_offset":1}`, http.StatusOK},
		{"destroy", http.MethodPost, "/v1/streams/destroy", `{"name":"a"}`, http.StatusNoContent},
		{"destroy again", http.MethodPost, "/v1/streams/destroy", `{"name":"a"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, tt.method, tt.target, tt.body)
			if w.Code != tt.want {
				t.Fatalf("status %d want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestListAndWarmUp(t *testing.T) {
	s, _ := newTestServer(t, nil)
	for _, n := range []string{"logs.a", "logs.b", "other"} {
		if w := do(s, http.MethodPost, "/v1/streams/warmup", `{"name":"`+n+`"}`); w.Code != http.StatusOK {
			t.Fatalf("warmup %s: %d", n, w.Code)
		}
	}
	w := do(s, http.MethodGet, "/v1/streams?prefix=logs.", "")
	var resp listStreams
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Streams) != 2 {
		t.Fatalf("want 2 streams, got %+v", resp)
	}
}

type listStreams struct {
	Streams []streamsvc.StreamInfo `json:"streams"`
}

func TestThrottledAppendAndBreakerStatus(t *testing.T) {
	mock := clock.NewMock()
	s, rt := newTestServer(t, mock)
	rt.Breaker().Overload()

	w := do(s, http.MethodPost, "/v1/streams/append", `{"name":"hot","records":[{"payload":"eA=="}]}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Fatalf("retry-after %q", w.Header().Get("Retry-After"))
	}

	w = do(s, http.MethodGet, "/v1/controller/breaker", "")
	var st controller.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Overloaded || st.Throttled != 1 {
		t.Fatalf("unexpected status %+v", st)
	}

	mock.Add(rt.Breaker().Window())
	if w := do(s, http.MethodPost, "/v1/streams/append", `{"name":"hot","records":[{"payload":"eA=="}]}`); w.Code != http.StatusAccepted {
		t.Fatalf("after window: %d", w.Code)
	}
}

func TestUpdateGroupEndpoint(t *testing.T) {
	s, rt := newTestServer(t, nil)
	req, err := protocol.NewUpdateGroupRequestBuilder(protocol.UpdateGroupRequestData{GroupID: "g", LinkID: "l"}).Build(0)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	raw, err := req.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	post := func(version string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/v1/groups/update", bytes.NewReader(raw))
		r.Header.Set("X-Api-Version", version)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, r)
		return w
	}

	w := post("0")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	resp, err := protocol.ParseUpdateGroupResponse(w.Body.Bytes())
	if err != nil || resp.ErrorCode != protocol.CodeNone {
		t.Fatalf("resp %+v, %v", resp, err)
	}
	if g, err := rt.Catalog().Group("g"); err != nil || g.LinkID != "l" {
		t.Fatalf("group %+v, %v", g, err)
	}

	w = post("5")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	resp, _ = protocol.ParseUpdateGroupResponse(w.Body.Bytes())
	if resp.ErrorCode != protocol.CodeUnsupportedVersion {
		t.Fatalf("code %v", resp.ErrorCode)
	}
	if w := post("abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}
