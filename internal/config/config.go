// Package config handles loading and parsing application configuration.
// It supports two sources (in priority order):
//  1. An environment variable:  CONFIG_PATH=/path/to/config.yaml
//  2. A command-line flag:      --config=/path/to/config.yaml
//
// A .env file in the working directory is loaded first (if present), so
// both CONFIG_PATH and the per-field env overrides can live there.
//
// The parsed values are returned as a *Config pointer so the struct is
// shared by reference rather than copied everywhere.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the root configuration structure.
// Every field maps to a key in the YAML file AND can be overridden
// by the corresponding environment variable (env:"...").
type Config struct {
	// Env controls log format and verbosity.
	// Valid values: "dev", "staging", "prod"
	Env string `yaml:"env" env:"ENV" env-required:"true"`

	// StoragePath is the filesystem path to the SQLite .db file.
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-required:"true"`

	// CatalogPath points at the school catalog (.yaml, .toml or .json).
	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH" env-required:"true"`

	HTTPServer   `yaml:"http_server"`
	Session      `yaml:"session"`
	Registration `yaml:"registration"`
	Chat         `yaml:"chat"`
}

// HTTPServer holds settings specific to the HTTP server.
type HTTPServer struct {
	Addr            string        `yaml:"address"          env:"HTTP_SERVER_ADDR" env-required:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"HTTP_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"HTTP_WRITE_TIMEOUT"    env-default:"10s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"HTTP_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

// Session configures verification of the bearer tokens issued by the
// portal's auth service.
type Session struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
}

// Registration tunes what the client is told after a successful sign-up.
type Registration struct {
	RedirectTo    string        `yaml:"redirect_to"    env:"REGISTRATION_REDIRECT_TO"    env-default:"/auth/login"`
	RedirectAfter time.Duration `yaml:"redirect_after" env:"REGISTRATION_REDIRECT_AFTER" env-default:"3s"`
}

// Chat configures support chat sessions.
type Chat struct {
	// Muted starts new sessions with notification sound off.
	Muted            bool `yaml:"muted"             env:"CHAT_MUTED"`
	SubscriberBuffer int  `yaml:"subscriber_buffer" env:"CHAT_SUBSCRIBER_BUFFER" env-default:"64"`

	// OriginPatterns are the extra hosts allowed to open the chat
	// WebSocket, e.g. "localhost:5173" for a dev frontend. Same-origin
	// requests are always allowed.
	OriginPatterns []string `yaml:"origin_patterns" env:"CHAT_ORIGIN_PATTERNS" env-separator:","`
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	// cleanenv.ReadConfig reads the YAML file, applies env:"..." overrides
	// and env-default values, and enforces env-required:"true".
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	// an empty HMAC key would let anyone sign a valid session token
	if strings.TrimSpace(cfg.Session.JWTSecret) == "" {
		return nil, errors.New("session.jwt_secret must not be empty")
	}

	if cfg.Chat.SubscriberBuffer <= 0 {
		return nil, fmt.Errorf("chat.subscriber_buffer must be positive, got %d", cfg.Chat.SubscriberBuffer)
	}

	return &cfg, nil
}

// MustLoad reads, validates, and returns the application config.
//
// The name "MustLoad" follows a Go convention: functions prefixed with
// "Must" are allowed to panic/fatal on failure. Callers do not need to
// check a returned error: if this function returns, the config is valid.
func MustLoad() *Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")

	if configPath == "" {
		flags := flag.String("config", "", "Path to the configuration YAML file")
		flag.Parse()
		configPath = *flags
	}

	if configPath == "" {
		log.Fatal("config path is not set: use --config flag or CONFIG_PATH env var")
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err.Error())
	}

	return cfg
}
