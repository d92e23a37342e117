package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/Strob0t/TaskDealer/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true}
	l, closer := newWithWriter(cfg, &buf)
	l.Info("queued")
	closer.Close()

	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"queued"`)) {
		t.Fatalf("expected flushed record after Close, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, closer := newWithWriter(config.Logging{Level: "warn", Service: "svc"}, &buf)
	defer closer.Close()

	l.Info("hidden")
	l.Warn("shown")

	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Error("info record should be filtered at warn level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Error("warn record should be written")
	}
}

func TestContextIDsAttached(t *testing.T) {
	var buf bytes.Buffer
	l, closer := newWithWriter(config.Logging{Level: "info", Service: "svc"}, &buf)
	defer closer.Close()

	ctx := WithBatchID(WithRequestID(context.Background(), "req-1"), "batch-9")
	l.With("component", "test").InfoContext(ctx, "distributed")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v (%q)", err, buf.String())
	}
	if rec["service"] != "svc" {
		t.Errorf("service = %v, want svc", rec["service"])
	}
	if rec["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want req-1", rec["request_id"])
	}
	if rec["batch_id"] != "batch-9" {
		t.Errorf("batch_id = %v, want batch-9", rec["batch_id"])
	}
	if rec["component"] != "test" {
		t.Errorf("component = %v, want test", rec["component"])
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()

	// Empty context returns empty string
	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}
	if got := BatchID(ctx); got != "" {
		t.Errorf("expected empty batch ID, got %q", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	ctx = WithBatchID(ctx, "batch-1")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
	if got := BatchID(ctx); got != "batch-1" {
		t.Errorf("expected batch-1, got %q", got)
	}
}
