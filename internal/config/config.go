// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/atmx/paper-trader/internal/ledger"
	"github.com/atmx/paper-trader/internal/progression"
	"github.com/atmx/paper-trader/internal/simulator"
)

// ErrInvalid wraps every configuration error.
var ErrInvalid = errors.New("config: invalid configuration")

// Store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config is the full service configuration.
type Config struct {
	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=debug info warn error"`

	TickInterval    time.Duration `validate:"min=1ms"`
	HistoryLen      int           `validate:"min=1"`
	SeedPoints      int           `validate:"min=1"`
	PriceFloor      decimal.Decimal
	DriftPct        float64 `validate:"min=0,lt=1"`
	JumpProbability float64 `validate:"min=0,max=1"`
	JumpAmplitude   float64 `validate:"min=0"`
	SimSeed         int64   // 0 seeds from the wall clock

	StartingCash decimal.Decimal
	XPBuy        int64 `validate:"min=0"`
	XPSell       int64 `validate:"min=0"`

	StoreBackend  string `validate:"oneof=memory file postgres mongo"`
	StorePath     string `validate:"required_if=StoreBackend file"`
	StorageKey    string `validate:"required"`
	DatabaseURL   string `validate:"required_if=StoreBackend postgres"`
	RedisURL      string
	RedisTTL      time.Duration `validate:"min=0"`
	MongoURI      string        `validate:"required_if=StoreBackend mongo"`
	MongoDatabase string        `validate:"required_if=StoreBackend mongo"`
}

var validate = validator.New()

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %v", ErrInvalid, err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Port:     p.str("PORT", "8080"),
		LogLevel: p.str("LOG_LEVEL", "info"),

		TickInterval:    p.duration("TICK_INTERVAL", 5*time.Second),
		HistoryLen:      p.int("HISTORY_LEN", 100),
		SeedPoints:      p.int("SEED_POINTS", 30),
		PriceFloor:      p.decimal("PRICE_FLOOR", "0.10"),
		DriftPct:        p.float("DRIFT_PCT", 0.01),
		JumpProbability: p.float("JUMP_PROBABILITY", 0.02),
		JumpAmplitude:   p.float("JUMP_AMPLITUDE", 5),
		SimSeed:         int64(p.int("SIM_SEED", 0)),

		StartingCash: p.decimal("STARTING_CASH", "10000"),
		XPBuy:        int64(p.int("XP_BUY", 5)),
		XPSell:       int64(p.int("XP_SELL", 2)),

		StorePath:     p.str("STORE_PATH", "./data"),
		StorageKey:    p.str("STORAGE_KEY", progression.DefaultKey),
		DatabaseURL:   p.str("DATABASE_URL", ""),
		RedisURL:      p.str("REDIS_URL", ""),
		RedisTTL:      p.duration("REDIS_TTL", 30*time.Second),
		MongoURI:      p.str("MONGO_URI", ""),
		MongoDatabase: p.str("MONGO_DATABASE", "papertrader"),
	}
	// A DATABASE_URL alone selects Postgres.
	defaultBackend := BackendFile
	if cfg.DatabaseURL != "" {
		defaultBackend = BackendPostgres
	}
	cfg.StoreBackend = p.str("STORE_BACKEND", defaultBackend)

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags plus the decimal fields the validator cannot
// see into.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !c.PriceFloor.IsPositive() {
		return fmt.Errorf("%w: PRICE_FLOOR must be positive, got %s", ErrInvalid, c.PriceFloor)
	}
	if c.StartingCash.IsNegative() {
		return fmt.Errorf("%w: STARTING_CASH must not be negative, got %s", ErrInvalid, c.StartingCash)
	}
	return nil
}

// Simulator returns the market simulation parameters.
func (c *Config) Simulator() simulator.Config {
	sc := simulator.DefaultConfig()
	sc.HistoryLen = c.HistoryLen
	sc.SeedPoints = c.SeedPoints
	sc.Floor = c.PriceFloor
	sc.DriftPct = c.DriftPct
	sc.JumpProbability = c.JumpProbability
	sc.JumpAmplitude = c.JumpAmplitude
	sc.Interval = c.TickInterval
	return sc
}

// Rewards returns the XP granted per trade side.
func (c *Config) Rewards() ledger.Rewards {
	return ledger.Rewards{Buy: c.XPBuy, Sell: c.XPSell}
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Seed returns the simulation seed, drawing one from the clock when unset.
func (c *Config) Seed() int64 {
	if c.SimSeed != 0 {
		return c.SimSeed
	}
	return time.Now().UnixNano()
}

// parser reads typed env vars, keeping the first error.
type parser struct {
	err error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, raw, err)
	}
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) decimal(key, def string) decimal.Decimal {
	raw := p.str(key, def)
	v, err := decimal.NewFromString(raw)
	if err != nil {
		p.fail(key, raw, err)
		return decimal.RequireFromString(def)
	}
	return v
}
