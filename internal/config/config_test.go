package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// clearEnv blanks every key FromEnv reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "TICK_INTERVAL", "HISTORY_LEN", "SEED_POINTS", "PRICE_FLOOR",
		"DRIFT_PCT", "JUMP_PROBABILITY", "JUMP_AMPLITUDE", "SIM_SEED", "STARTING_CASH",
		"XP_BUY", "XP_SELL", "STORE_BACKEND", "STORE_PATH", "STORAGE_KEY", "DATABASE_URL",
		"REDIS_URL", "REDIS_TTL", "MONGO_URI", "MONGO_DATABASE",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.TickInterval != 5*time.Second || cfg.HistoryLen != 100 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !cfg.StartingCash.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("expected starting cash 10000, got %s", cfg.StartingCash)
	}
	if r := cfg.Rewards(); r.Buy != 5 || r.Sell != 2 {
		t.Errorf("expected rewards 5/2, got %+v", r)
	}
	if cfg.StoreBackend != BackendFile {
		t.Errorf("expected file backend, got %s", cfg.StoreBackend)
	}
	if err := cfg.Simulator().Validate(); err != nil {
		t.Errorf("default simulator config invalid: %v", err)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("XP_BUY", "2")
	t.Setenv("XP_SELL", "5")
	t.Setenv("PRICE_FLOOR", "0.5")
	t.Setenv("STARTING_CASH", "2500.75")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SIM_SEED", "42")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TickInterval != 250*time.Millisecond {
		t.Errorf("tick interval = %v", cfg.TickInterval)
	}
	if r := cfg.Rewards(); r.Buy != 2 || r.Sell != 5 {
		t.Errorf("rewards = %+v", r)
	}
	sc := cfg.Simulator()
	if !sc.Floor.Equal(decimal.RequireFromString("0.5")) || sc.Interval != 250*time.Millisecond {
		t.Errorf("simulator config = %+v", sc)
	}
	if !cfg.StartingCash.Equal(decimal.RequireFromString("2500.75")) {
		t.Errorf("starting cash = %s", cfg.StartingCash)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.SlogLevel())
	}
	if cfg.Seed() != 42 {
		t.Errorf("seed = %d", cfg.Seed())
	}
}

func TestFromEnv_DatabaseURLSelectsPostgres(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/papertrader")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreBackend != BackendPostgres {
		t.Errorf("expected postgres backend, got %s", cfg.StoreBackend)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad int":           {"HISTORY_LEN": "lots"},
		"zero history":      {"HISTORY_LEN": "0"},
		"bad duration":      {"TICK_INTERVAL": "soon"},
		"bad decimal":       {"STARTING_CASH": "ten"},
		"negative cash":     {"STARTING_CASH": "-1"},
		"zero floor":        {"PRICE_FLOOR": "0"},
		"jump prob > 1":     {"JUMP_PROBABILITY": "1.5"},
		"negative xp":       {"XP_SELL": "-2"},
		"unknown backend":   {"STORE_BACKEND": "s3"},
		"mongo without uri": {"STORE_BACKEND": "mongo"},
		"postgres no url":   {"STORE_BACKEND": "postgres"},
		"bad log level":     {"LOG_LEVEL": "loud"},
		"port not numeric":  {"PORT": "http"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
