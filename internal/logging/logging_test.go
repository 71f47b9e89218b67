package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/bryan-buckman/feedkeeper/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAutoFormatUsesJSONForBuffers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.Logging{Level: "info", Format: "auto"}, &buf)
	logger.Info("fetched", "feed_id", 7)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record["msg"] != "fetched" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestTextFormatRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.Logging{Level: "warn", Format: "text"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "feed_id", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "feed_id=3") {
		t.Fatalf("unexpected text output %q", out)
	}
}
