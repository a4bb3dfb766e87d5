package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHESS_CONFIG_FILE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WhiteSeat != SeatHuman || cfg.BlackSeat != SeatEngine {
		t.Fatalf("unexpected default seats %s/%s", cfg.WhiteSeat, cfg.BlackSeat)
	}
	if cfg.BaseTime() != 10*time.Minute || cfg.Increment() != 0 {
		t.Fatalf("unexpected default time control %v+%v", cfg.BaseTime(), cfg.Increment())
	}
	if cfg.Networked() {
		t.Fatalf("default config should be local")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WHITE_SEAT", "Remote")
	t.Setenv("BLACK_SEAT", "human")
	t.Setenv("TIME_MINUTES", "0")
	t.Setenv("INCREMENT_SECONDS", "3")
	t.Setenv("ENGINE_THINK_MS", "250")
	t.Setenv("VARIANT", "fischer")
	t.Setenv("SEED", "42")
	t.Setenv("MATCH_CODE", "club")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Networked() || cfg.WhiteSeat != SeatRemote {
		t.Fatalf("expected remote white seat, got %s", cfg.WhiteSeat)
	}
	if cfg.TimeMinutes != 0 || cfg.Increment() != 3*time.Second || cfg.EngineThink() != 250*time.Millisecond {
		t.Fatalf("unexpected timing %+v", cfg)
	}
	if cfg.Variant != "fischer" || cfg.Seed != 42 || cfg.MatchCode != "club" {
		t.Fatalf("unexpected overrides %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chess.yaml")
	body := "relay_url: ws://relay.example/ws\nengine_preset: level6\ntime_minutes: 5\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CHESS_CONFIG_FILE", path)
	t.Setenv("ENGINE_PRESET", "level2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RelayURL != "ws://relay.example/ws" || cfg.TimeMinutes != 5 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.EnginePreset != "level2" {
		t.Fatalf("env should win over file, got %s", cfg.EnginePreset)
	}
}

func TestLoadRejectsBadSeats(t *testing.T) {
	t.Setenv("WHITE_SEAT", "robot")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown seat")
	}
	t.Setenv("WHITE_SEAT", "remote")
	t.Setenv("BLACK_SEAT", "remote")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for two remote seats")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CHESS_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
