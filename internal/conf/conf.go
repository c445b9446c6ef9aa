package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents application configuration
type Config struct {
	// Gateway configuration
	Gateway GatewayConfig

	// Storage configuration
	Storage StorageConfig

	// Stream polling configuration
	Poll PollConfig

	// Path to the avatar image applied to bridge conversations (optional)
	AvatarPath string

	// Debug mode
	Debug bool
}

// GatewayConfig contains the chat gateway connection settings
type GatewayConfig struct {
	URL   string
	Token string
}

// StorageConfig contains persistence settings
type StorageConfig struct {
	DBPath string
}

// PollConfig contains stream polling settings
type PollConfig struct {
	Interval time.Duration
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	dbPath := os.Getenv("BRIDGE_DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".mastobridge", "bridge.db")
	}

	pollSeconds := 15
	if val := os.Getenv("POLL_INTERVAL_SECONDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			pollSeconds = parsed
		}
	}

	return &Config{
		Gateway: GatewayConfig{
			URL:   os.Getenv("GATEWAY_URL"),
			Token: os.Getenv("GATEWAY_TOKEN"),
		},
		Storage: StorageConfig{
			DBPath: dbPath,
		},
		Poll: PollConfig{
			Interval: time.Duration(pollSeconds) * time.Second,
		},
		AvatarPath: os.Getenv("AVATAR_PATH"),
		Debug:      os.Getenv("DEBUG") == "true",
	}
}

// Validate checks required configuration
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("GATEWAY_URL is required")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("BRIDGE_DB_PATH is required")
	}
	return nil
}
