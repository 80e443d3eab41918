package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	zapobserver "go.uber.org/zap/zaptest/observer"
)

func TestLogger_WithAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).With(F("breaker.resource", "fetch"))

	logger.Info(context.Background(), "test message", F("cache.key", "fetch:v1:abc"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output as JSON: %v\nOutput: %s", err, buf.String())
	}
	if entry["breaker.resource"] != "fetch" {
		t.Errorf("breaker.resource = %v, want fetch", entry["breaker.resource"])
	}
	if entry["cache.key"] != "fetch:v1:abc" {
		t.Errorf("cache.key = %v, want fetch:v1:abc", entry["cache.key"])
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %s", buf.String())
	}

	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Errorf("expected 2 lines, got %d", got)
	}
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "stored",
		F("password", "hunter2"),
		F("cache.value", []byte("page body")),
	)

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("password leaked: %s", out)
	}
	if strings.Count(out, "[REDACTED]") != 2 {
		t.Errorf("expected 2 redactions, got %s", out)
	}
}

func TestLogger_ErrorValuesAreStrings(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Error(context.Background(), "failed", F("error", errors.New("connection timeout")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["error"] != "connection timeout" {
		t.Errorf("error = %v, want connection timeout", entry["error"])
	}
}

func TestLogger_ConcurrentWritesStayLineDelimited(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerWithWriter("info", &buf)
	child := base.With(F("child", true))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); base.Info(context.Background(), "base") }()
		go func() { defer wg.Done(); child.Info(context.Background(), "child") }()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("interleaved output: %q", line)
		}
	}
}

func TestLogger_AttachesTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid,
		SpanID:  sid,
	}))
	logger.Info(ctx, "compute started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry["trace_id"] != tid.String() || entry["span_id"] != sid.String() {
		t.Errorf("trace ids = %v/%v", entry["trace_id"], entry["span_id"])
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"WARN":  LevelWarn,
		"":      LevelInfo,
		"bogus": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestZapLogger_ForwardsFields(t *testing.T) {
	core, logs := zapobserver.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(core)).With(F("breaker.resource", "render"))

	logger.Warn(context.Background(), "circuit breaker opened",
		F("breaker.to", "open"),
		F("token", "secret-value"),
		F("error", errors.New("boom")),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["breaker.resource"] != "render" {
		t.Errorf("breaker.resource = %v", fields["breaker.resource"])
	}
	if fields["breaker.to"] != "open" {
		t.Errorf("breaker.to = %v", fields["breaker.to"])
	}
	if fields["token"] != "[REDACTED]" {
		t.Errorf("token = %v, want [REDACTED]", fields["token"])
	}
	if fields["error"] != "boom" {
		t.Errorf("error = %v, want boom", fields["error"])
	}
}

func TestNewZapLogger_NilUsesNop(t *testing.T) {
	l := NewZapLogger(nil)
	l.Info(context.Background(), "dropped")
	if l.Unwrap() == nil {
		t.Fatal("expected non-nil zap logger")
	}
}
