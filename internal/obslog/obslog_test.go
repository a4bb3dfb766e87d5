package obslog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	restore := Set(nil)
	defer restore()

	if err := Init(Options{Level: "debug", Format: "json", Console: true, Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Named("relay").Info("match_joined", zap.String("code", "abc"))
	Sync()

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "match_joined" || entry["logger"] != "relay" || entry["code"] != "abc" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestInitFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	restore := Set(nil)
	defer restore()

	if err := Init(Options{Level: "warn", Format: "console", Console: true, Output: &buf}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	L().Info("hidden")
	L().Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filter not applied: %q", out)
	}
}

func TestInitWritesFile(t *testing.T) {
	restore := Set(nil)
	defer restore()

	path := filepath.Join(t.TempDir(), "nested", "duel.log")
	if err := Init(Options{Format: "legacy", File: path}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	L().Info("to_file")
	Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "to_file") || !strings.Contains(string(data), " | ") {
		t.Fatalf("unexpected file contents %q", data)
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_FILE", "")
	t.Setenv("LOG_TO_CONSOLE", "false")

	opts := OptionsFromEnv("logs/x.log")
	if opts.Level != "debug" || opts.Console || opts.File != "logs/x.log" {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING") != zapcore.WarnLevel || parseLevel("nonsense") != zapcore.InfoLevel {
		t.Fatalf("parseLevel mapping wrong")
	}
}
