package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/alexjbarnes/playlist-sync/internal/logging"
	"github.com/alexjbarnes/playlist-sync/internal/repository"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Mode selects which settings must be present.
type Mode int

const (
	// ModeServe runs the remote playlist API.
	ModeServe Mode = iota
	// ModeSync runs the client sync daemon.
	ModeSync
	// ModeDiff runs a one-shot local vs remote comparison.
	ModeDiff
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// jwtSecretMinLen is the shortest accepted HS256 signing secret.
const jwtSecretMinLen = 32

// Config holds all environment-based configuration for playlist-sync.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	// Server settings
	ListenAddr     string `env:"LISTEN_ADDR" envDefault:":8080"`
	StoreDriver    string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"playlist-sync.db"`
	MaxBoundParams int    `env:"MAX_BOUND_PARAMS" envDefault:"100"`
	RedisURL       string `env:"REDIS_URL"`
	JWTSecret      string `env:"JWT_SECRET"`

	// Client settings
	RemoteURL    string        `env:"REMOTE_URL"`
	AuthToken    string        `env:"AUTH_TOKEN"`
	StatePath    string        `env:"STATE_PATH"`
	SyncDebounce time.Duration `env:"SYNC_DEBOUNCE" envDefault:"1s"`
	WatchFile    string        `env:"WATCH_FILE"`

	// MCP endpoint, served alongside the sync daemon.
	EnableMCP     bool   `env:"ENABLE_MCP" envDefault:"false"`
	MCPListenAddr string `env:"MCP_LISTEN_ADDR" envDefault:":8090"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing secrets to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars
// and validates the settings the given mode needs.
func Load(mode Mode) (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(mode); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.WatchFile != "" {
		abs, err := filepath.Abs(cfg.WatchFile)
		if err != nil {
			return nil, fmt.Errorf("resolving watch file to absolute path: %w", err)
		}

		cfg.WatchFile = abs
	}

	return cfg, nil
}

func (c *Config) validate(mode Mode) error {
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
		}
	}

	switch mode {
	case ModeServe:
		return c.validateServe()
	case ModeSync:
		return c.validateSync()
	case ModeDiff:
		return c.validateClient()
	}

	return fmt.Errorf("unknown mode %d", mode)
}

func (c *Config) validateServe() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is sqlite")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}

	if c.MaxBoundParams < repository.MinBoundParams {
		return fmt.Errorf("MAX_BOUND_PARAMS must be at least %d", repository.MinBoundParams)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < jwtSecretMinLen {
		return fmt.Errorf("JWT_SECRET too short (minimum %d characters)", jwtSecretMinLen)
	}

	return nil
}

func (c *Config) validateClient() error {
	if c.RemoteURL == "" {
		return fmt.Errorf("REMOTE_URL is required")
	}

	if c.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN is required")
	}

	return nil
}

func (c *Config) validateSync() error {
	if err := c.validateClient(); err != nil {
		return err
	}

	if c.SyncDebounce <= 0 {
		return fmt.Errorf("SYNC_DEBOUNCE must be positive")
	}

	if c.EnableMCP && c.MCPListenAddr == "" {
		return fmt.Errorf("MCP_LISTEN_ADDR is required when MCP is enabled")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
