package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
	Download  DownloadConfig  `yaml:"download"`
	Convert   ConvertConfig   `yaml:"convert"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Retention RetentionConfig `yaml:"retention"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"5000"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"0s"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" envconfig:"MAX_CONTENT_LENGTH" default:"16777216"` // 16MB
}

// StorageConfig holds the managed directory configuration.
type StorageConfig struct {
	DownloadPath string `yaml:"download_path" envconfig:"DOWNLOAD_FOLDER" default:"downloads"`
	MaxFileSize  int64  `yaml:"max_file_size" envconfig:"MAX_FILE_SIZE" default:"5368709120"`  // 5GB
	MinFreeBytes int64  `yaml:"min_free_bytes" envconfig:"MIN_FREE_BYTES" default:"104857600"` // 100MB
}

// YouTubeConfig holds Data API configuration for the metadata fetcher.
type YouTubeConfig struct {
	APIKey  string        `yaml:"api_key" envconfig:"YOUTUBE_API_KEY"`
	BaseURL string        `yaml:"base_url" envconfig:"YOUTUBE_API_BASE_URL" default:"https://www.googleapis.com/youtube/v3"`
	Timeout time.Duration `yaml:"timeout" envconfig:"YOUTUBE_API_TIMEOUT" default:"15s"`
}

// DownloadConfig holds stream download configuration.
type DownloadConfig struct {
	Timeout        time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"30m"`
	StallTimeout   time.Duration `yaml:"stall_timeout" envconfig:"DOWNLOAD_STALL_TIMEOUT" default:"60s"`
	ChunkSize      int           `yaml:"chunk_size" envconfig:"DOWNLOAD_CHUNK_SIZE" default:"8192"`
	DefaultQuality string        `yaml:"default_quality" envconfig:"DOWNLOAD_DEFAULT_QUALITY" default:"720p"`
	KeepStreamed   bool          `yaml:"keep_streamed" envconfig:"DOWNLOAD_KEEP_STREAMED" default:"false"`
	UserAgent      string        `yaml:"user_agent" envconfig:"DOWNLOAD_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
}

// ConvertConfig holds MP3 conversion configuration.
type ConvertConfig struct {
	BitrateKbps  int           `yaml:"bitrate_kbps" envconfig:"CONVERT_BITRATE_KBPS" default:"192"`
	FFmpegPath   string        `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" envconfig:"FFPROBE_TIMEOUT" default:"30s"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"CONVERT_TIMEOUT" default:"30m"`
	WriteTags    bool          `yaml:"write_tags" envconfig:"CONVERT_WRITE_TAGS" default:"true"`
}

// RateLimitConfig holds per-client request quotas.
type RateLimitConfig struct {
	Enabled       bool   `yaml:"enabled" envconfig:"RATELIMIT_ENABLED" default:"true"`
	PerMinute     int    `yaml:"per_minute" envconfig:"RATELIMIT_PER_MINUTE" default:"10"`
	PerDay        int    `yaml:"per_day" envconfig:"RATELIMIT_PER_DAY" default:"200"`
	RedisAddr     string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" envconfig:"REDIS_DB" default:"0"`
}

// RetentionConfig controls automatic removal of old artifacts.
// A zero MaxAge disables the janitor.
type RetentionConfig struct {
	MaxAge        time.Duration `yaml:"max_age" envconfig:"RETENTION_MAX_AGE" default:"24h"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"RETENTION_SWEEP_INTERVAL" default:"10m"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Storage.DownloadPath == "" {
		return fmt.Errorf("DOWNLOAD_FOLDER is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive")
	}
	if c.Download.ChunkSize <= 0 {
		return fmt.Errorf("DOWNLOAD_CHUNK_SIZE must be positive")
	}
	if c.Convert.BitrateKbps < 32 || c.Convert.BitrateKbps > 320 {
		return fmt.Errorf("CONVERT_BITRATE_KBPS must be between 32 and 320")
	}
	if c.RateLimit.Enabled && (c.RateLimit.PerMinute <= 0 || c.RateLimit.PerDay < 0) {
		return fmt.Errorf("RATELIMIT_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Retention.MaxAge > 0 && c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("RETENTION_SWEEP_INTERVAL must be positive when retention is enabled")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel parses the configured log level, defaulting to info.
func (c *LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
