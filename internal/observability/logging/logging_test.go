package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}

func TestJSONHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	handler, err := newHandler(&buf, "json", slog.LevelWarn)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	logger := slog.New(handler)
	logger.Info("hidden")
	logger.Warn("shown", "user_id", 42)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "shown" || record["user_id"] != float64(42) {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestSetupWritesToRotatedFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "bot.log")
	logger, closer, err := Setup(Options{Service: "giftcard-bot", Level: "info", Format: "json", File: path})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	logger.Info("ledger opened", "count", 3)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"service":"giftcard-bot"`) || !strings.Contains(string(data), "ledger opened") {
		t.Fatalf("unexpected log contents %q", data)
	}
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	if _, _, err := Setup(Options{Format: "xml"}); err == nil {
		t.Fatalf("expected unknown format to fail")
	}
}
