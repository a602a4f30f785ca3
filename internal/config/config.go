// Manages server configuration stored in config.yaml.

package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Filename is the configuration file name within the data directory.
const Filename = "config.yaml"

// Channel types.
const (
	TypeDir     = "dir"
	TypeGit     = "git"
	TypeWebhook = "webhook"
	TypeStdout  = "stdout"
)

// Config stores all server-wide configuration.
// Loaded from config.yaml, created with defaults if missing.
type Config struct {
	// BackupInterval is the period between automatic backups.
	BackupInterval time.Duration `yaml:"backup_interval"`

	// ManualBackupPerHour limits manual backup triggers. 0 disables them.
	ManualBackupPerHour int `yaml:"manual_backup_per_hour"`

	// TokenSecret signs API and webhook tokens, hex encoded.
	// Auto-generated if empty on first load.
	TokenSecret string `yaml:"token_secret"`

	// Channels lists the destinations addressable by ID from the document.
	Channels []Channel `yaml:"channels"`
}

// Channel declares one destination.
type Channel struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
	// Path is the directory for dir and git channels. Relative paths are
	// resolved against the data directory.
	Path string `yaml:"path,omitempty"`
	// URL is the endpoint of webhook channels.
	URL string `yaml:"url,omitempty"`
	// Branch is the branch git channels commit to.
	Branch string `yaml:"branch,omitempty"`
}

// Validate checks a single channel declaration.
func (c *Channel) Validate() error {
	if c.ID == "" || c.ID == "0" {
		return errors.New("id is required")
	}
	switch c.Type {
	case TypeDir, TypeGit:
		if c.Path == "" {
			return fmt.Errorf("channel %s: path is required for type %s", c.ID, c.Type)
		}
	case TypeWebhook:
		if c.URL == "" {
			return fmt.Errorf("channel %s: url is required for type %s", c.ID, c.Type)
		}
	case TypeStdout:
	default:
		return fmt.Errorf("channel %s: unknown type %q", c.ID, c.Type)
	}
	return nil
}

// Default returns the configuration written on first start.
func Default() Config {
	return Config{
		BackupInterval:      24 * time.Hour,
		ManualBackupPerHour: 6,
		Channels: []Channel{
			{ID: "1", Type: TypeDir, Path: "backups"},
			{ID: "2", Type: TypeStdout},
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.BackupInterval < time.Minute {
		return errors.New("backup_interval must be at least 1m")
	}
	if c.ManualBackupPerHour < 0 {
		return errors.New("manual_backup_per_hour must be non-negative")
	}
	secret, err := hex.DecodeString(c.TokenSecret)
	if err != nil {
		return fmt.Errorf("token_secret: %w", err)
	}
	if len(secret) < 32 {
		return errors.New("token_secret must be at least 32 bytes")
	}
	seen := make(map[string]bool, len(c.Channels))
	for i := range c.Channels {
		ch := &c.Channels[i]
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("channels[%d]: %w", i, err)
		}
		if seen[ch.ID] {
			return fmt.Errorf("channels[%d]: duplicate id %s", i, ch.ID)
		}
		seen[ch.ID] = true
	}
	return nil
}

// Secret returns the decoded token secret.
func (c *Config) Secret() []byte {
	b, _ := hex.DecodeString(c.TokenSecret)
	return b
}

// Load loads configuration from dataDir/config.yaml.
// Creates the file with defaults if it doesn't exist.
// Auto-generates TokenSecret if empty.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, Filename)

	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", Filename, err)
		}
		// File doesn't exist, will create with defaults
	} else {
		// An explicit channel list replaces the defaults.
		cfg.Channels = nil
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", Filename, err)
		}
	}

	modified := false
	if cfg.TokenSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
		cfg.TokenSecret = hex.EncodeToString(b)
		modified = true
	}

	if modified || errors.Is(err, os.ErrNotExist) {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", Filename, err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/config.yaml.
func (c *Config) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, Filename), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", Filename, err)
	}
	return nil
}

// ResolvePath returns p relative to dataDir unless it is absolute.
func ResolvePath(dataDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}
