// Manages server configuration stored in config.json.

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config stores the organizer's settings.
// Loaded from config.json in the data directory, created with defaults if missing.
type Config struct {
	// HTTPAddr is the address the API server listens on.
	HTTPAddr string `json:"http_addr"`

	// MaxBlobBytes limits the size of any single uploaded payload.
	MaxBlobBytes int64 `json:"max_blob_bytes"`

	// StorageTier optionally forces a storage tier ("sqlite", "file",
	// "memory"). Empty means probe in preference order. Intended for
	// diagnostics and tests, not something callers should branch on.
	StorageTier string `json:"storage_tier,omitempty"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:     "localhost:8080",
		MaxBlobBytes: 50 * 1024 * 1024, // 50 MiB
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http_addr is required")
	}
	if c.MaxBlobBytes <= 0 {
		return errors.New("max_blob_bytes must be positive")
	}
	switch c.StorageTier {
	case "", "sqlite", "file", "memory":
	default:
		return fmt.Errorf("unknown storage_tier: %q", c.StorageTier)
	}
	return nil
}

// LoadConfig loads configuration from dataDir/config.json.
// Creates the file with defaults if it doesn't exist.
func LoadConfig(dataDir string) (*Config, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dataDir, "config.json")
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config.json: %w", err)
		}
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config.json: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config.json: %w", err)
	}
	return &cfg, nil
}

// Save writes configuration to dataDir/config.json.
func (c *Config) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dataDir, "config.json"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config.json: %w", err)
	}
	return nil
}
