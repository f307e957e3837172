package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Retention   RetentionConfig `toml:"retention"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// CrawlerConfig contains service-level crawl defaults. Per-job overrides come
// in through models.CrawlOptions on job creation.
type CrawlerConfig struct {
	UserAgent       string        `toml:"user_agent"`       // User agent sent on every fetch
	MaxConcurrency  int           `toml:"max_concurrency"`  // Default worker pool size per job
	RateLimit       time.Duration `toml:"rate_limit"`       // Minimum gap between fetches per host
	PageTimeout     time.Duration `toml:"page_timeout"`     // Per-fetch timeout
	JobTimeout      time.Duration `toml:"job_timeout"`      // Wall-clock deadline per job
	MaxRetries      int           `toml:"max_retries"`      // Retries on transient fetch errors
	MaxDepth        int           `toml:"max_depth"`        // Default BFS depth cap
	MaxPages        int           `toml:"max_pages"`        // Default discovered-pages cap
	QualityThreshold int          `toml:"quality_threshold"` // Minimum score for final corpus inclusion
	CacheTTL        time.Duration `toml:"cache_ttl"`        // Not read: URL cache entries are stored with a fixed 24h lifetime
	RespectRobots   bool          `toml:"respect_robots"`   // Honour robots.txt
	UseSitemap      bool          `toml:"use_sitemap"`      // Seed from sitemap when present
	SitemapTimeout  time.Duration `toml:"sitemap_timeout"`  // Budget for sitemap discovery
	MaxBodySize     int           `toml:"max_body_size"`    // Maximum response body size in bytes
}

// RetentionConfig controls the cron sweeper that purges expired state
type RetentionConfig struct {
	Schedule string        `toml:"schedule"` // Cron schedule for the sweeper
	JobTTL   time.Duration `toml:"job_ttl"`  // How long terminal jobs (and their events) are kept
}

// WebSocketConfig contains configuration for WebSocket event mirroring
type WebSocketConfig struct {
	MinLevel      string   `toml:"min_level"`      // Minimum log level to broadcast
	AllowedEvents []string `toml:"allowed_events"` // Whitelist of event types; empty allows all
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in colligo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Crawler: CrawlerConfig{
			UserAgent:        "Documentation Crawler — Friendly Bot",
			MaxConcurrency:   3,
			RateLimit:        1 * time.Second,
			PageTimeout:      8 * time.Second,
			JobTimeout:       5 * time.Minute,
			MaxRetries:       3,
			MaxDepth:         3,
			MaxPages:         50,
			QualityThreshold: 20,
			CacheTTL:         24 * time.Hour,
			RespectRobots:    true,
			UseSitemap:       true,
			SitemapTimeout:   15 * time.Second,
			MaxBodySize:      10 * 1024 * 1024, // 10MB
		},
		Retention: RetentionConfig{
			Schedule: "@every 10m",
			JobTTL:   1 * time.Hour,
		},
		WebSocket: WebSocketConfig{
			MinLevel:      "info",
			AllowedEvents: []string{},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COLLIGO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("COLLIGO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COLLIGO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if level := os.Getenv("COLLIGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("COLLIGO_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
