package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"fleetwatch/statusclient/internal/config"
)

func TestWithSessionDerivesLoggerAndContext(t *testing.T) {
	base := NewTestLogger()
	ctx, derived, sid := WithSession(context.Background(), base, "")
	if sid == "" {
		t.Fatalf("expected a generated session id")
	}
	if derived == nil || derived == base {
		t.Fatalf("expected a derived logger distinct from the base")
	}
	if got := SessionIDFromContext(ctx); got != sid {
		t.Fatalf("session id round trip mismatch: %q != %q", got, sid)
	}
	if got := LoggerFromContext(ctx); got != derived {
		t.Fatalf("expected derived logger from context")
	}
	if got, ok := derived.fields[SessionIDField]; !ok || got != sid {
		t.Fatalf("derived logger missing %s field, fields=%v", SessionIDField, derived.fields)
	}
}

func TestWithSessionKeepsExplicitID(t *testing.T) {
	_, _, sid := WithSession(context.Background(), NewTestLogger(), " abc123 ")
	if sid != "abc123" {
		t.Fatalf("expected trimmed explicit id, got %q", sid)
	}
}

func TestSessionContextFallbacks(t *testing.T) {
	if got := SessionIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty session id, got %q", got)
	}
	if got := LoggerFromContext(context.Background()); got != L() {
		t.Fatalf("expected global fallback logger")
	}
}

func TestLoggerWritesStructuredLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	logger, err := New(config.LoggingConfig{
		Level:      "debug",
		Path:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	if err != nil {
		t.Fatalf("new logger failed: %v", err)
	}

	_, derived, sid := WithSession(context.Background(), logger, "")
	derived.Info("session opened", Int64("uptime", 42))
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log failed: %v", err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		t.Fatalf("expected at least one log line")
	}
	var line map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["message"] != "session opened" || line["level"] != "info" {
		t.Fatalf("unexpected line %v", line)
	}
	if line[SessionIDField] != sid {
		t.Fatalf("expected %s %q, got %v", SessionIDField, sid, line[SessionIDField])
	}
	if got, ok := line["uptime"].(float64); !ok || int64(got) != 42 {
		t.Fatalf("expected uptime 42, got %v", line["uptime"])
	}
}
