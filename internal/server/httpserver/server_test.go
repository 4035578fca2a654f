package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/rafter-go/internal/core/domain"
	"github.com/yndnr/rafter-go/internal/server/httpserver/handler"
	"github.com/yndnr/rafter-go/internal/server/meshserver"
	"github.com/yndnr/rafter-go/internal/telemetry/metric"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleStatus() handler.NodeStatus {
	return handler.NodeStatus{
		Node:       "beta",
		PeerID:     2,
		Leadership: domain.StatusLeader.String(),
		RaftState:  "Leader",
		RaftLeader: 2,
		Peers: []handler.PeerStatus{
			{PeerID: 1, Addr: "127.0.0.1:7001", Connected: true, Initiate: true},
			{PeerID: 3, Addr: "127.0.0.1:7003", Initiate: true},
		},
		Links: []meshserver.LinkInfo{
			{ID: "01J0000000000000000000000A", Peer: 1, Initiator: 2, Direction: "outbound", RemoteAddr: "127.0.0.1:7001"},
		},
	}
}

func newTestRouter(allow []string) (http.Handler, *metric.Registry) {
	reg := metric.NewRegistry()
	return NewRouter(&RouterConfig{
		Status:    handler.StatusFunc(sampleStatus),
		Metrics:   reg,
		Version:   "v0.0.0-test",
		AllowList: allow,
		Logger:    quietLogger(),
	}), reg
}

func decodeEnvelope(t *testing.T, body io.Reader, data any) handler.Response {
	t.Helper()
	var raw struct {
		handler.Response
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if data != nil {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return raw.Response
}

func TestRouter_Status(t *testing.T) {
	router, _ := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	var st handler.NodeStatus
	resp := decodeEnvelope(t, rec.Body, &st)
	if resp.Code != "OK" || resp.RequestID != rec.Header().Get("X-Request-ID") {
		t.Errorf("envelope = %+v", resp)
	}
	if st.PeerID != 2 || st.Leadership != "leader" || len(st.Peers) != 2 || len(st.Links) != 1 {
		t.Errorf("status = %+v", st)
	}
	if st.Links[0].Direction != "outbound" {
		t.Errorf("link direction = %q", st.Links[0].Direction)
	}
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter([]string{"10.9.9.9"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-fixed")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (healthz ignores the allowlist)", rec.Code)
	}
	var h handler.HealthStatus
	resp := decodeEnvelope(t, rec.Body, &h)
	if resp.RequestID != "req-fixed" {
		t.Errorf("request id = %q, want the caller's", resp.RequestID)
	}
	if h.Status != "healthy" || h.Version != "v0.0.0-test" || h.Connected != 1 || h.Peers != 2 {
		t.Errorf("health = %+v", h)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router, reg := newTestRouter(nil)
	reg.SetLeadershipStatus(1, "leader")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rafter_") {
		t.Errorf("metrics output has no rafter_ series:\n%s", rec.Body.String())
	}
}

func TestRouter_NoMetricsRegistry(t *testing.T) {
	router := NewRouter(&RouterConfig{Status: handler.StatusFunc(sampleStatus), Logger: quietLogger()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestNetworkACL(t *testing.T) {
	tests := []struct {
		name       string
		allow      []string
		remoteAddr string
		wantStatus int
	}{
		{name: "empty list allows all", remoteAddr: "192.0.2.1:5000", wantStatus: http.StatusOK},
		{name: "single ip match", allow: []string{"192.0.2.1"}, remoteAddr: "192.0.2.1:5000", wantStatus: http.StatusOK},
		{name: "cidr match", allow: []string{"10.0.0.0/8"}, remoteAddr: "10.1.2.3:5000", wantStatus: http.StatusOK},
		{name: "ipv6 match", allow: []string{"::1"}, remoteAddr: "[::1]:5000", wantStatus: http.StatusOK},
		{name: "no match", allow: []string{"10.0.0.0/8"}, remoteAddr: "192.0.2.1:5000", wantStatus: http.StatusForbidden},
		{name: "invalid entries skipped", allow: []string{"not-an-ip", "10.0.0.0/33"}, remoteAddr: "10.0.0.1:5000", wantStatus: http.StatusForbidden},
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()
			NetworkACL(tt.allow, quietLogger())(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusForbidden && rec.Header().Get("X-Error-Code") != "RF-ADMIN-4031" {
				t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
			}
		})
	}
}

func TestRecover(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	rec := httptest.NewRecorder()
	Chain(panicky, RequestID(), Recover(quietLogger())).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if rec.Header().Get("X-Error-Code") != "RF-SYS-5000" {
		t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") })

	Chain(h, mw("a"), mw("b")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := strings.Join(order, ","); got != "a,b,handler" {
		t.Errorf("order = %s, want a,b,handler", got)
	}
}

func TestServer_StartShutdown(t *testing.T) {
	router, _ := newTestRouter(nil)
	srv := New("127.0.0.1:0", router, quietLogger())
	if srv.Addr() != nil {
		t.Error("Addr() before Start should be nil")
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestServer_StartBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	srv := New(ln.Addr().String(), http.NotFoundHandler(), quietLogger())
	if err := srv.Start(); !errors.Is(err, domain.ErrIO) {
		t.Errorf("Start() error = %v, want ErrIO", err)
	}
}
