package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"uptofetch/internal"
	"uptofetch/uptobox"
	"uptofetch/utils"
)

var (
	configPath   string
	token        string
	apiURL       string
	proxyURL     string
	rateLimit    string
	workers      int
	editInterval int
	maxRetries   int
	assumeYes    bool
	quiet        bool
	debug        bool
	logLevel     string
	logFile      string
	config       *internal.Config
)

var rootCmd = &cobra.Command{
	Use:     "uptofetch",
	Short:   "Resolve, download and upload files on Uptobox",
	Version: "v1.0.0",
	Long: `uptofetch is a command-line client for the Uptobox file-hosting API.

It resolves share codes into direct download links (waiting out the free-tier
delay when needed), searches your files, and uploads local files or remote
URLs to your account.

Examples:
  uptofetch info https://uptobox.com/abc123xyz
  uptofetch link abc123xyz
  uptofetch get --yes -o ~/Downloads abc123xyz
  uptofetch upload ./video.mkv
  uptofetch upload "https://example.com/archive.zip | backup.zip"
  uptofetch search -l 20 holiday

Environment Variables:
  UPTOFETCH_TOKEN       Uptobox API token
  UPTOFETCH_API_URL     API root (default https://uptobox.com/api)
  UPTOFETCH_PROXY       Proxy URL
  UPTOFETCH_RATE_LIMIT  Bandwidth limit (e.g., 5M)
  UPTOFETCH_WORKERS     Transfer worker count (1-16)

DISCLAIMER: Respect Uptobox's Terms of Service and copyright laws.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfiguration(cmd); err != nil {
			return fmt.Errorf("configuration error: %v", err)
		}

		if err := internal.InitLogger(config); err != nil {
			return fmt.Errorf("failed to initialize logger: %v", err)
		}

		internal.LogDebug("Configuration loaded: api=%s, workers=%d, timeout=%d, retries=%d, debug=%v, quiet=%v",
			config.APIURL, config.Workers, config.Timeout, config.MaxRetries, config.EnableDebug, config.QuietMode)
		return nil
	},
}

// loadConfiguration merges defaults, the config file, the environment and
// explicitly set flags, in that order of precedence.
func loadConfiguration(cmd *cobra.Command) error {
	config = internal.DefaultConfig()

	if err := config.LoadFile(configPath); err != nil {
		return err
	}
	config.LoadFromEnv()

	flags := cmd.Flags()
	if flags.Changed("token") {
		config.Token = token
	}
	if flags.Changed("api-url") {
		config.APIURL = apiURL
	}
	if flags.Changed("proxy") {
		config.ProxyURL = proxyURL
	}
	if flags.Changed("limit-rate") {
		config.RateLimit = rateLimit
	}
	if flags.Changed("workers") {
		config.Workers = workers
	}
	if flags.Changed("edit-interval") {
		config.EditInterval = editInterval
	}
	if flags.Changed("max-retries") {
		config.MaxRetries = maxRetries
	}
	if assumeYes {
		config.AssumeYes = true
	}

	if debug {
		config.EnableDebug = true
		config.LogLevel = "debug"
	}
	if quiet {
		config.QuietMode = true
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if logFile != "" {
		config.LogFile = logFile
	}

	if config.RateLimit != "" {
		if _, err := utils.ParseRateLimit(config.RateLimit); err != nil {
			return internal.NewValidationErrorWithValue("limit_rate", "invalid format", config.RateLimit).
				WithSuggestion("Use formats like 1M (1 MB/s), 500K (500 KB/s), 2G (2 GB/s), or 1024 (1024 bytes/s)")
		}
	}

	return config.ValidateConfig()
}

// newHTTPClient builds the shared HTTP client from the loaded configuration
func newHTTPClient() *utils.HTTPClient {
	return utils.NewHTTPClientWithConfig(&utils.HTTPClientConfig{
		Timeout:     config.HTTPTimeout(),
		ProxyURL:    config.ProxyURL,
		UserAgent:   config.UserAgent,
		RetryConfig: utils.RetryConfigFor(config.MaxRetries),
	})
}

// newLimiter returns the configured bandwidth limiter, or nil when unlimited
func newLimiter() internal.RateLimiter {
	if config.RateLimit == "" {
		return nil
	}
	rate, err := utils.ParseRateLimit(config.RateLimit)
	if err != nil || rate <= 0 {
		return nil
	}
	return utils.NewTokenBucketLimiter(rate)
}

func newUptoboxClient(httpClient *utils.HTTPClient, limiter internal.RateLimiter) (*uptobox.Client, error) {
	return uptobox.NewClient(uptobox.Config{
		Token:      config.Token,
		APIURL:     config.APIURL,
		HTTPClient: httpClient,
		Limiter:    limiter,
		Logger:     internal.GetLogger(),
	})
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "uptofetch", "config.yaml")
}

func init() {
	config = internal.DefaultConfig()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", defaultConfigPath(), "Path to a YAML config file")
	flags.StringVar(&token, "token", "", "Uptobox API token (env: UPTOFETCH_TOKEN)")
	flags.StringVar(&apiURL, "api-url", config.APIURL, "Uptobox API root (env: UPTOFETCH_API_URL)")
	flags.StringVar(&proxyURL, "proxy", "", "HTTP/SOCKS proxy URL (env: UPTOFETCH_PROXY)")
	flags.StringVarP(&rateLimit, "limit-rate", "r", "", "Bandwidth limit (e.g., 5M for 5MB/s) (env: UPTOFETCH_RATE_LIMIT)")
	flags.IntVarP(&workers, "workers", "w", config.Workers, "Number of transfer workers (1-16) (env: UPTOFETCH_WORKERS)")
	flags.IntVar(&editInterval, "edit-interval", config.EditInterval, "Seconds between progress updates (env: UPTOFETCH_EDIT_INTERVAL)")
	flags.IntVar(&maxRetries, "max-retries", config.MaxRetries, "Retries for idempotent API calls (env: UPTOFETCH_MAX_RETRIES)")
	flags.BoolVarP(&assumeYes, "yes", "y", false, "Accept the free-tier wait without asking (env: UPTOFETCH_ASSUME_YES)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	// Logging flags
	flags.BoolVarP(&debug, "debug", "d", false, "Enable debug logging with file and line information (env: UPTOFETCH_DEBUG)")
	flags.StringVar(&logLevel, "log-level", "", "Set log level (debug, info, warn, error) (env: UPTOFETCH_LOG_LEVEL)")
	flags.StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr (env: UPTOFETCH_LOG_FILE)")

	rootCmd.AddCommand(infoCmd, searchCmd, linkCmd, getCmd, uploadCmd)
}

// Execute runs the root command. Errors already shown through a status
// message are not printed again.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}
