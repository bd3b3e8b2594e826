package common

import (
	"fmt"
	"os"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for RiskWatch
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Auth        AuthConfig      `toml:"auth"`
	Feed        FeedConfig      `toml:"feed"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the embedded store location.
type StorageConfig struct {
	Path string `toml:"path"`
}

// AuthConfig configures validation of the bearer tokens issued by the
// external auth collaborator. The token carries userID and plan tier.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// FeedConfig configures the periodic price/fraud refresh.
type FeedConfig struct {
	// QuotesFile is a JSON quote fixture read by the file feed client.
	// Empty disables the refresh scheduler.
	QuotesFile string `toml:"quotes_file"`
	// Schedule is a cron expression; defaults to every 15 minutes.
	Schedule string `toml:"schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `toml:"level"`
	FilePath string `toml:"file_path"`
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// defaults returns the baseline configuration before file and env overrides.
func defaults() *Config {
	return &Config{
		Environment: "development",
		Server:      ServerConfig{Host: "0.0.0.0", Port: 8080},
		Storage:     StorageConfig{Path: "data/riskwatch"},
		Feed:        FeedConfig{Schedule: "*/15 * * * *"},
		Logging:     LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads TOML configuration from path, falling back to defaults
// when the file is absent, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	config := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if config.Auth.JWTSecret == "" && config.IsProduction() {
		return nil, fmt.Errorf("auth.jwt_secret is required in production")
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("RISKWATCH_ENV"); v != "" {
		config.Environment = v
	}
	if v := os.Getenv("RISKWATCH_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("RISKWATCH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("RISKWATCH_STORAGE_PATH"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("RISKWATCH_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}
	if v := os.Getenv("RISKWATCH_QUOTES_FILE"); v != "" {
		config.Feed.QuotesFile = v
	}
	if v := os.Getenv("RISKWATCH_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
