package logger

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestRedactSensitive_SecretKey(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Info("mesh configured", "cluster_secret", "hunter2", "peer", "3")

	entry := decodeLine(t, &buf)
	if entry["cluster_secret"] != redactedValue {
		t.Errorf("cluster_secret = %v, want redacted", entry["cluster_secret"])
	}
	if entry["peer"] != "3" {
		t.Errorf("peer = %v, should not be redacted", entry["peer"])
	}
}

func TestRedactSensitive_Group(t *testing.T) {
	a := slog.Group("mesh", slog.String("auth_mac", "abcd"), slog.String("listen", "127.0.0.1:1"))
	got := redactSensitive(a)

	attrs := got.Value.Group()
	if attrs[0].Value.String() != redactedValue {
		t.Errorf("nested auth_mac = %q, want redacted", attrs[0].Value.String())
	}
	if attrs[1].Value.String() != "127.0.0.1:1" {
		t.Errorf("nested listen = %q, should be kept", attrs[1].Value.String())
	}
}

func TestRedactSensitive_EmptyValueKept(t *testing.T) {
	got := redactSensitive(slog.String("secret", ""))
	if got.Value.String() != "" {
		t.Errorf("empty secret should stay empty, got %q", got.Value.String())
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"secret", true},
		{"Cluster_Secret", true},
		{"password", true},
		{"auth", true},
		{"peer", false},
		{"link_id", false},
		{"listen", false},
	}
	for _, tt := range tests {
		if got := IsSensitiveKey(tt.key); got != tt.want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
