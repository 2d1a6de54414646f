// Package config loads the platform configuration from the environment
// (optionally a .env file) and exposes it as a typed AppConfig.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultLinkHost      = "t.me"
	DefaultDialogTimeout = 60 * time.Second
	defaultDBFile        = "filefleet.db"
)

// AppConfig is the resolved platform configuration.
type AppConfig struct {
	// ConfigDir holds the database and any future state files.
	ConfigDir string

	// BotToken is the primary bot's credential.
	BotToken string

	// OwnerIDs are the platform administrators: they may broadcast and
	// delete any clone.
	OwnerIDs []int64

	// StorageChatID is the chat all stored content lives in.
	StorageChatID int64

	// LinkHost is the deep-link host.
	LinkHost string

	// DialogTimeout bounds every configuration prompt.
	DialogTimeout time.Duration

	Verbose bool
}

// Option configures AppConfig construction.
type Option func(*AppConfig)

// WithConfigDir overrides the state directory.
func WithConfigDir(dir string) Option {
	return func(c *AppConfig) {
		c.ConfigDir = dir
	}
}

// New builds the configuration from the environment. A .env file in the
// working directory is honored when present.
func New(opts ...Option) (*AppConfig, error) {
	_ = godotenv.Load() // missing .env is fine

	cfg := &AppConfig{
		BotToken:      os.Getenv("FILEFLEET_BOT_TOKEN"),
		LinkHost:      DefaultLinkHost,
		DialogTimeout: DefaultDialogTimeout,
	}

	if host := os.Getenv("FILEFLEET_LINK_HOST"); host != "" {
		cfg.LinkHost = host
	}

	if raw := os.Getenv("FILEFLEET_OWNER_IDS"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid owner id %q in FILEFLEET_OWNER_IDS", part)
			}
			cfg.OwnerIDs = append(cfg.OwnerIDs, id)
		}
	}

	if raw := os.Getenv("FILEFLEET_STORAGE_CHAT"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid FILEFLEET_STORAGE_CHAT %q", raw)
		}
		cfg.StorageChatID = id
	}

	if raw := os.Getenv("FILEFLEET_DIALOG_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid FILEFLEET_DIALOG_TIMEOUT %q", raw)
		}
		cfg.DialogTimeout = d
	}

	home, err := os.UserHomeDir()
	if err == nil {
		cfg.ConfigDir = filepath.Join(home, ".filefleet")
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.ConfigDir == "" {
		return nil, fmt.Errorf("no config directory available: %w", err)
	}
	if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	return cfg, nil
}

// DBPath returns the SQLite database location.
func (c *AppConfig) DBPath() string {
	return filepath.Join(c.ConfigDir, defaultDBFile)
}

// Validate checks that everything serving needs is present.
func (c *AppConfig) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("FILEFLEET_BOT_TOKEN is required")
	}
	if c.StorageChatID == 0 {
		return fmt.Errorf("FILEFLEET_STORAGE_CHAT is required")
	}
	return nil
}
