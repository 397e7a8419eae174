package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Store backends for the durable snapshot slot.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config captures process level configuration.
type Config struct {
	Addr        string
	Store       string
	DataDir     string
	RedisURL    string
	SnapshotKey string
	SeedSample  bool
	RateLimit   int
	RateWindow  time.Duration
	LogLevel    string
	// TimeZone is an IANA zone name used for event times given without an offset.
	TimeZone string
}

// Load reads an optional .env file, then the environment, then command-line
// flags; later sources win.
func Load(args []string) (Config, error) {
	// A missing .env file is the normal case outside development.
	_ = godotenv.Load()

	cfg := FromEnv()

	fs := flag.NewFlagSet("eventreg", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "snapshot store: file or redis")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for the file snapshot store")
	fs.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "redis:// URL for the redis snapshot store")
	fs.StringVar(&cfg.SnapshotKey, "snapshot-key", cfg.SnapshotKey, "key the database snapshot is stored under")
	fs.BoolVar(&cfg.SeedSample, "seed-sample", cfg.SeedSample, "add sample events when starting with an empty store")
	fs.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "requests per client per window, 0 disables")
	fs.DurationVar(&cfg.RateWindow, "rate-window", cfg.RateWindow, "rate limit window")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.TimeZone, "time-zone", cfg.TimeZone, "zone for event times given without an offset")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// FromEnv builds a Config from environment variables with development defaults.
func FromEnv() Config {
	return Config{
		Addr:        envString("EVENTREG_ADDR", ":8080"),
		Store:       envString("EVENTREG_STORE", StoreFile),
		DataDir:     envString("EVENTREG_DATA_DIR", "data"),
		RedisURL:    os.Getenv("EVENTREG_REDIS_URL"),
		SnapshotKey: envString("EVENTREG_SNAPSHOT_KEY", "event_management_db"),
		SeedSample:  envBool("EVENTREG_SEED_SAMPLE", false),
		RateLimit:   envInt("EVENTREG_RATE_LIMIT", 60),
		RateWindow:  envDuration("EVENTREG_RATE_WINDOW", 10*time.Second),
		LogLevel:    envString("EVENTREG_LOG_LEVEL", "info"),
		TimeZone:    envString("EVENTREG_TIME_ZONE", "UTC"),
	}
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreFile:
		if c.DataDir == "" {
			return errors.New("data dir is required for the file store")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return errors.New("redis URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.SnapshotKey == "" {
		return errors.New("snapshot key must not be empty")
	}
	if c.RateLimit > 0 && c.RateWindow <= 0 {
		return errors.New("rate window must be positive")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone: %w", err)
	}
	return nil
}

// Location returns the configured zone, or UTC if it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
