package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewAdminClient_BaseURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:5090", "http://127.0.0.1:5090"},
		{"http://node1:5090/", "http://node1:5090"},
		{"https://node1:5090", "https://node1:5090"},
	}
	for _, tt := range tests {
		if got := NewAdminClient(tt.addr, 0, "").BaseURL(); got != tt.want {
			t.Errorf("BaseURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestAdminClient_GetData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "rafterctl/test" {
			t.Errorf("User-Agent = %q", ua)
		}
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte(`{"code":"OK","message":"Success","data":{"peer_id":7}}`))
		case "/denied":
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"code":"RF-ADMIN-4031","message":"address not in allowlist"}`))
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		case "/garbage":
			w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	c := NewAdminClient(srv.URL, time.Second, "rafterctl/test")
	ctx := context.Background()

	var got struct {
		PeerID uint64 `json:"peer_id"`
	}
	if err := c.GetData(ctx, "/ok", &got); err != nil {
		t.Fatalf("GetData(/ok) error = %v", err)
	}
	if got.PeerID != 7 {
		t.Errorf("peer_id = %d, want 7", got.PeerID)
	}

	tests := []struct {
		path    string
		wantErr string
	}{
		{"/denied", "RF-ADMIN-4031"},
		{"/broken", "status 502"},
		{"/garbage", "parse response"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := c.GetData(ctx, tt.path, &got)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("GetData(%s) error = %v, want containing %q", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestAdminClient_GetText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("rafter_links_active 2\n"))
	}))
	defer srv.Close()

	text, err := NewAdminClient(srv.URL, time.Second, "").GetText(context.Background(), "/metrics")
	if err != nil {
		t.Fatalf("GetText() error = %v", err)
	}
	if !strings.Contains(text, "rafter_links_active 2") {
		t.Errorf("GetText() = %q", text)
	}
}

func TestAdminClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	if err := NewAdminClient(addr, time.Second, "").GetData(context.Background(), "/status", nil); err == nil {
		t.Error("GetData() against a closed server should fail")
	}
}
