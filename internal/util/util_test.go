package util

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept", "ticker", "AAPL")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["msg"] != "kept" || rec["ticker"] != "AAPL" {
		t.Errorf("record = %v, want msg=kept ticker=AAPL", rec)
	}
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, "info", "text").Info("hello", "n", 3)
	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "n=3") {
		t.Errorf("text output = %q, want msg=hello n=3", buf.String())
	}
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, nil, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Retry = %v after %d calls, want nil after 3", err, calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, IsRateLimited, func() error {
		calls++
		return errors.New("bad request")
	})
	if err == nil || calls != 1 {
		t.Errorf("Retry = %v after %d calls, want error after 1", err, calls)
	}
	if !IsRateLimited(errors.New("status 429: Too Many Requests")) {
		t.Error("IsRateLimited(429) = false")
	}
}
