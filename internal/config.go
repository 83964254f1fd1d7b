package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Token        string `yaml:"token"`
	APIURL       string `yaml:"api_url"`
	EditInterval int    `yaml:"edit_interval"` // seconds between status edits
	Timeout      int    `yaml:"timeout"`       // seconds
	MaxRetries   int    `yaml:"max_retries"`
	UserAgent    string `yaml:"user_agent"`
	ProxyURL     string `yaml:"proxy"`
	RateLimit    string `yaml:"limit_rate"`
	DownloadDir  string `yaml:"download_dir"`
	Workers      int    `yaml:"workers"`
	AssumeYes    bool   `yaml:"assume_yes"`

	S3 S3Config `yaml:"s3"`

	// Logging configuration
	LogLevel    string `yaml:"log_level"`
	EnableDebug bool   `yaml:"debug"`
	QuietMode   bool   `yaml:"quiet"`
	LogFile     string `yaml:"log_file"`
}

// S3Config configures the s3:// source fetcher
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIURL:       "https://uptobox.com/api",
		EditInterval: 3,
		Timeout:      30,
		MaxRetries:   0,
		UserAgent:    "Mozilla/5.0 (Windows NT 6.2; WOW64; rv:34.0) Gecko/20100101 Firefox/34.0",
		DownloadDir:  "downloads",
		Workers:      2,
		S3: S3Config{
			Region: "us-east-1",
		},

		LogLevel:    "info",
		EnableDebug: false,
		QuietMode:   false,
		LogFile:     "", // Empty means stderr
	}
}

// LoadFile merges a YAML config file into c. A missing file is not an error.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if token := os.Getenv("UPTOFETCH_TOKEN"); token != "" {
		c.Token = token
	}

	if apiURL := os.Getenv("UPTOFETCH_API_URL"); apiURL != "" {
		c.APIURL = apiURL
	}

	if interval := os.Getenv("UPTOFETCH_EDIT_INTERVAL"); interval != "" {
		if i, err := strconv.Atoi(interval); err == nil && i > 0 {
			c.EditInterval = i
		}
	}

	if timeout := os.Getenv("UPTOFETCH_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil && t > 0 {
			c.Timeout = t
		}
	}

	if retries := os.Getenv("UPTOFETCH_MAX_RETRIES"); retries != "" {
		if r, err := strconv.Atoi(retries); err == nil && r >= 0 {
			c.MaxRetries = r
		}
	}

	if workers := os.Getenv("UPTOFETCH_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			c.Workers = w
		}
	}

	c.ProxyURL = GetEnvWithDefault("UPTOFETCH_PROXY", c.ProxyURL)
	c.RateLimit = GetEnvWithDefault("UPTOFETCH_RATE_LIMIT", c.RateLimit)
	c.DownloadDir = GetEnvWithDefault("UPTOFETCH_DOWNLOAD_DIR", c.DownloadDir)

	if yes := os.Getenv("UPTOFETCH_ASSUME_YES"); yes != "" {
		c.AssumeYes = parseBool(yes)
	}

	c.S3.Region = GetEnvWithDefault("UPTOFETCH_S3_REGION", c.S3.Region)
	c.S3.Endpoint = GetEnvWithDefault("UPTOFETCH_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKey = GetEnvWithDefault("UPTOFETCH_S3_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = GetEnvWithDefault("UPTOFETCH_S3_SECRET_KEY", c.S3.SecretKey)
	if pathStyle := os.Getenv("UPTOFETCH_S3_PATH_STYLE"); pathStyle != "" {
		c.S3.UsePathStyle = parseBool(pathStyle)
	}

	// Load logging configuration from environment
	if logLevel := os.Getenv("UPTOFETCH_LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}

	if debug := os.Getenv("UPTOFETCH_DEBUG"); debug != "" {
		c.EnableDebug = parseBool(debug)
	}

	if quiet := os.Getenv("UPTOFETCH_QUIET"); quiet != "" {
		c.QuietMode = parseBool(quiet)
	}

	if logFile := os.Getenv("UPTOFETCH_LOG_FILE"); logFile != "" {
		c.LogFile = logFile
	}
}

// GetEnvWithDefault returns environment variable value or default
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes"
}

// EditThrottle returns the status edit interval as a duration
func (c *Config) EditThrottle() time.Duration {
	return time.Duration(c.EditInterval) * time.Second
}

// HTTPTimeout returns the HTTP timeout as a duration
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// ValidateConfig validates the configuration values
func (c *Config) ValidateConfig() error {
	if c.APIURL == "" {
		return NewValidationError("api_url", "API URL cannot be empty")
	}

	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return NewValidationErrorWithValue("api_url", "API URL must start with http:// or https://", c.APIURL)
	}

	if c.EditInterval < 1 {
		return NewValidationErrorWithValue("edit_interval", "must be at least 1 second", c.EditInterval)
	}

	if c.Timeout < 1 {
		return fmt.Errorf("invalid timeout: %d (must be > 0)", c.Timeout)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d (must be >= 0)", c.MaxRetries)
	}

	if c.Workers < 1 || c.Workers > 16 {
		return fmt.Errorf("invalid workers: %d (must be 1-16)", c.Workers)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
