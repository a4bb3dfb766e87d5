package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Seat kinds accepted by WHITE_SEAT / BLACK_SEAT.
const (
	SeatHuman  = "human"
	SeatEngine = "engine"
	SeatRemote = "remote"
)

type AppConfig struct {
	RelayAddr       string `yaml:"relay_addr"`
	RelayStatusAddr string `yaml:"relay_status_addr"`
	RelayURL        string `yaml:"relay_url"`
	MatchCode       string `yaml:"match_code"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	StockfishPath string `yaml:"stockfish_path"`
	EnginePreset  string `yaml:"engine_preset"`
	EngineThinkMS int    `yaml:"engine_think_ms"`
	OpeningBook   string `yaml:"opening_book"`

	TimeMinutes      int    `yaml:"time_minutes"`
	IncrementSeconds int    `yaml:"increment_seconds"`
	Variant          string `yaml:"variant"`
	Seed             int64  `yaml:"seed"`
	WhiteSeat        string `yaml:"white_seat"`
	BlackSeat        string `yaml:"black_seat"`

	MessagesDir string `yaml:"messages_dir"`
}

func defaults() *AppConfig {
	return &AppConfig{
		RelayAddr:       ":8765",
		RelayStatusAddr: ":8766",
		RelayURL:        "ws://127.0.0.1:8765/ws",
		EnginePreset:    "level3",
		EngineThinkMS:   1000,
		TimeMinutes:     10,
		Variant:         "standard",
		WhiteSeat:       SeatHuman,
		BlackSeat:       SeatEngine,
	}
}

// Load builds the config from defaults, then the CHESS_CONFIG_FILE yaml file
// when set, then environment variables.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CHESS_CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	setString(&cfg.RelayAddr, "RELAY_ADDR")
	setString(&cfg.RelayStatusAddr, "RELAY_STATUS_ADDR")
	setString(&cfg.RelayURL, "RELAY_URL")
	setString(&cfg.MatchCode, "MATCH_CODE")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.StockfishPath, "STOCKFISH_PATH")
	setString(&cfg.EnginePreset, "ENGINE_PRESET")
	setString(&cfg.OpeningBook, "OPENING_BOOK")
	setString(&cfg.Variant, "VARIANT")
	setString(&cfg.WhiteSeat, "WHITE_SEAT")
	setString(&cfg.BlackSeat, "BLACK_SEAT")
	setString(&cfg.MessagesDir, "MESSAGES_DIR")

	if v := strings.TrimSpace(os.Getenv("ENGINE_THINK_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineThinkMS = n
		}
	}
	// zero is meaningful for both: untimed games, no increment
	if v := strings.TrimSpace(os.Getenv("TIME_MINUTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.TimeMinutes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("INCREMENT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.IncrementSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SEED")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}

	cfg.WhiteSeat = strings.ToLower(strings.TrimSpace(cfg.WhiteSeat))
	cfg.BlackSeat = strings.ToLower(strings.TrimSpace(cfg.BlackSeat))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) validate() error {
	for _, seat := range []string{c.WhiteSeat, c.BlackSeat} {
		switch seat {
		case SeatHuman, SeatEngine, SeatRemote:
		default:
			return fmt.Errorf("unknown seat kind %q", seat)
		}
	}
	if c.WhiteSeat == SeatRemote && c.BlackSeat == SeatRemote {
		return errors.New("at least one seat must be local")
	}
	if c.TimeMinutes < 0 || c.IncrementSeconds < 0 {
		return errors.New("time control must not be negative")
	}
	return nil
}

// Networked reports whether either seat is played over the relay.
func (c *AppConfig) Networked() bool {
	return c.WhiteSeat == SeatRemote || c.BlackSeat == SeatRemote
}

func (c *AppConfig) EngineThink() time.Duration {
	return time.Duration(c.EngineThinkMS) * time.Millisecond
}

func (c *AppConfig) BaseTime() time.Duration {
	return time.Duration(c.TimeMinutes) * time.Minute
}

func (c *AppConfig) Increment() time.Duration {
	return time.Duration(c.IncrementSeconds) * time.Second
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}
