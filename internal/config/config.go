package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds all engine configuration
type Config struct {
	ServerAddress string   `json:"serverAddress"`
	DatabasePath  string   `json:"databasePath"`
	DatabaseURL   string   `json:"databaseUrl"`
	Remote        Remote   `json:"remote"`
	Sync          Sync     `json:"sync"`
	Security      Security `json:"security"`
	LogFile       string   `json:"logFile"`
	DeviceIDFile  string   `json:"deviceIdFile"`
}

// Remote is the upstream API the engine syncs against.
type Remote struct {
	BaseURL       string `json:"baseUrl"`
	RetryAttempts int    `json:"retryAttempts"`
	RetryDelaySec int    `json:"retryDelaySec"`
}

// Sync configuration for the periodic background pass
type Sync struct {
	IntervalSec int  `json:"intervalSec"`
	Enabled     bool `json:"enabled"`
}

// Security configuration for the local control API
type Security struct {
	APIKey       string `json:"apiKey"`
	APIKeyHeader string `json:"apiKeyHeader"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// SyncInterval returns the periodic pass interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSec) * time.Second
}

// RetryDelay returns the gateway's fixed inter-attempt delay.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Remote.RetryDelaySec) * time.Second
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: "127.0.0.1:7410",
		DatabasePath:  "herdsync.db",
		Remote: Remote{
			BaseURL:       "https://api.herdsync.example.com",
			RetryAttempts: 3,
			RetryDelaySec: 2,
		},
		Sync: Sync{
			IntervalSec: 60,
			Enabled:     true,
		},
		Security: Security{
			APIKey:       "CHANGE_THIS_TO_A_SECURE_API_KEY_AT_LEAST_32_CHARS",
			APIKeyHeader: "X-API-Key",
		},
		LogFile:      "",
		DeviceIDFile: "device_id",
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	// A .env next to the binary is the common dev setup; absence is fine.
	_ = godotenv.Load()

	cfg := defaultConfig()

	// Try to load from config file
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override from environment variables
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if baseURL := os.Getenv("REMOTE_BASE_URL"); baseURL != "" {
		cfg.Remote.BaseURL = baseURL
	}
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		cfg.Security.APIKey = apiKey
	}
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}

	// Sync configuration
	if enabled := os.Getenv("SYNC_ENABLED"); enabled != "" {
		cfg.Sync.Enabled = enabled == "true" || enabled == "1"
	}
	if interval := os.Getenv("SYNC_INTERVAL_SEC"); interval != "" {
		if sec, err := strconv.Atoi(interval); err == nil && sec > 0 {
			cfg.Sync.IntervalSec = sec
		}
	}
	if attempts := os.Getenv("REMOTE_RETRY_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil && n >= 0 {
			cfg.Remote.RetryAttempts = n
		}
	}

	// Make the database path absolute so a working-directory change cannot
	// silently split the store in two.
	if cfg.DatabasePath != "" {
		absPath, err := filepath.Abs(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		cfg.DatabasePath = absPath
	}

	return cfg, nil
}

// DeviceID loads the per-install identifier, creating it on first run. It
// lives next to the database and survives sign-out; the server uses it to
// tell installs apart, not users.
func (c *Config) DeviceID() (string, error) {
	path := c.DeviceIDFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(c.DatabasePath), path)
	}

	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		return string(data), nil
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id), 0600); err != nil {
		return "", err
	}
	return id, nil
}
