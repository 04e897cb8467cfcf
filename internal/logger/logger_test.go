package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/fd1az/quote-engine/internal/logger"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, logger.LevelWarn, "quote-engine", nil)

	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept", "venue", "uniswap_v2")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["msg"] != "kept" {
		t.Errorf("expected msg 'kept', got %v", entry["msg"])
	}
	if entry["venue"] != "uniswap_v2" {
		t.Errorf("expected venue field, got %v", entry["venue"])
	}
	if entry["service"] != "quote-engine" {
		t.Errorf("expected service field, got %v", entry["service"])
	}
}

func TestLogger_TraceIDAndErrors(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, logger.LevelDebug, "svc", func(ctx context.Context) string {
		return "abc123"
	})

	log.Error(context.Background(), "failed", "error", errors.New("boom"), "dangling")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["trace_id"] != "abc123" {
		t.Errorf("expected trace_id, got %v", entry["trace_id"])
	}
	if entry["error"] != "boom" {
		t.Errorf("expected error boom, got %v", entry["error"])
	}
	if entry["dangling"] != "!MISSING" {
		t.Errorf("expected dangling key marked missing, got %v", entry["dangling"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.Level
	}{
		{"debug", logger.LevelDebug},
		{"info", logger.LevelInfo},
		{"warn", logger.LevelWarn},
		{"error", logger.LevelError},
		{"", logger.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := logger.ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
