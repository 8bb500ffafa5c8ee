// Package config provides configuration management for voxsub using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 10
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultMaxFileSizeBytes  = 2 * 1024 * 1024 * 1024 // 2GB
	defaultMaxLogoSizeBytes  = 5 * 1024 * 1024        // 5MB
	defaultRateLimit         = 30                     // requests/min, default category
	defaultSubmitRateLimit   = 6                      // requests/min, long-running submits
	defaultDownloadRateLimit = 12                     // requests/min, download-only submits
	defaultSoftTimeLimit     = 30 * time.Minute
	defaultHardTimeLimit     = 35 * time.Minute
	defaultWorkerCount       = 2
	defaultPollInterval      = 2 * time.Second
	defaultQueueDepthLimit   = 100
	defaultTokenTTL          = 10 * time.Minute
	defaultArtifactRetention = 24 * time.Hour
	defaultRecordRetention   = 24 * time.Hour
	defaultAssetRetention    = 30 * 24 * time.Hour
	defaultSweepInterval     = 6 * time.Hour
	defaultDownloadRetries   = 3
	defaultTranslateRetries  = 2
	defaultTranslateBackoff  = time.Second
	defaultTranslateCap      = 10 * time.Second
	defaultBatchSize         = 20
	defaultParallelism       = 2
	defaultScratchMinFree    = 2 * 1024 * 1024 * 1024 // 2GB
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Download   DownloadConfig   `mapstructure:"download"`
	Transcribe TranscribeConfig `mapstructure:"transcribe"`
	Translate  TranslateConfig  `mapstructure:"translate"`
	Tokens     TokenConfig      `mapstructure:"tokens"`
	Media      MediaConfig      `mapstructure:"media"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins is the closed CORS allow-list. A wildcard entry cannot
	// be combined with credentials; Validate enforces this.
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	// RateLimitPerMin is the default per-IP request budget.
	RateLimitPerMin int `mapstructure:"rate_limit_per_min"`
	// SubmitRateLimitPerMin applies to full-pipeline submissions.
	SubmitRateLimitPerMin int `mapstructure:"submit_rate_limit_per_min"`
	// DownloadRateLimitPerMin applies to download-only submissions.
	DownloadRateLimitPerMin int `mapstructure:"download_rate_limit_per_min"`
	// QueueDepthLimit is the backpressure ceiling; submissions beyond it
	// receive 503 with Retry-After.
	QueueDepthLimit int `mapstructure:"queue_depth_limit"`
	// AccelRedirectPrefix is the internal location the front proxy serves
	// published artifacts from via X-Accel-Redirect. Empty disables
	// delegation and the handler streams the file itself.
	AccelRedirectPrefix string `mapstructure:"accel_redirect_prefix"`
	// EnableRemoteDownload gates URL-based submissions.
	EnableRemoteDownload bool `mapstructure:"enable_remote_download"`
	// AllowedHosts restricts remote URL submissions to these host suffixes.
	// Empty means any host.
	AllowedHosts []string `mapstructure:"allowed_hosts"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir      string `mapstructure:"base_dir"`
	IntakeDir    string `mapstructure:"intake_dir"`
	WorkspaceDir string `mapstructure:"workspace_dir"`
	ArtifactDir  string `mapstructure:"artifact_dir"`
	AssetDir     string `mapstructure:"asset_dir"`
	StatsDir     string `mapstructure:"stats_dir"`
	// ScratchDir is the fast-I/O scratch area (tmpfs when available);
	// workers fall back to WorkspaceDir when it is missing or too small.
	ScratchDir     string   `mapstructure:"scratch_dir"`
	ScratchMinFree ByteSize `mapstructure:"scratch_min_free"`
	MaxFileSize    ByteSize `mapstructure:"max_file_size"`
	MaxLogoSize    ByteSize `mapstructure:"max_logo_size"`
	// ArtifactRetention is the single source of truth for how long
	// published files live before the sweep removes them.
	ArtifactRetention time.Duration `mapstructure:"artifact_retention"`
	// RecordRetention is how long terminal task records live.
	RecordRetention time.Duration `mapstructure:"record_retention"`
	// AssetRetention is how long unreferenced logo assets live.
	AssetRetention time.Duration `mapstructure:"asset_retention"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// WorkerConfig holds pipeline worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker slots per host. Transcription and
	// render are memory-intensive, so this stays small.
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// SoftTimeLimit marks the task failed with a timeout and asks the
	// pipeline to stop; HardTimeLimit cancels the worker context outright.
	SoftTimeLimit time.Duration `mapstructure:"soft_time_limit"`
	HardTimeLimit time.Duration `mapstructure:"hard_time_limit"`
	// LockTimeout is when a claimed job counts as abandoned and is
	// reclaimed for redelivery.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// DownloadConfig holds remote media acquisition configuration.
type DownloadConfig struct {
	BinaryPath    string        `mapstructure:"binary_path"` // yt-dlp, empty = auto-detect
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// TranscribeConfig holds transcription back-end configuration.
type TranscribeConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // whisper-cli, empty = auto-detect
	ModelDir   string `mapstructure:"model_dir"`
	// DefaultModel is used when the client does not choose one.
	DefaultModel string `mapstructure:"default_model"`
	// AllowDowngrade permits loading a smaller model when the chosen one
	// fails to load. The chosen size is always a ceiling.
	AllowDowngrade bool   `mapstructure:"allow_downgrade"`
	RemoteAPIURL   string `mapstructure:"remote_api_url"`
	RemoteAPIKey   string `mapstructure:"remote_api_key"`
	Threads        int    `mapstructure:"threads"`
}

// TranslateConfig holds translation back-end configuration.
type TranslateConfig struct {
	FreeEndpoint  string        `mapstructure:"free_endpoint"`
	PaidEndpoint  string        `mapstructure:"paid_endpoint"`
	PaidAPIKey    string        `mapstructure:"paid_api_key"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBase     time.Duration `mapstructure:"retry_base"`
	RetryCap      time.Duration `mapstructure:"retry_cap"`
	BatchSize     int           `mapstructure:"batch_size"`
	Parallelism   int           `mapstructure:"parallelism"`
	// FallbackService is tried after the chosen service exhausts retries.
	FallbackService string `mapstructure:"fallback_service"`
}

// TokenConfig holds download-token configuration.
type TokenConfig struct {
	// SigningKey is a base64 fernet key. Generated at startup when empty,
	// which invalidates outstanding tokens across restarts.
	SigningKey string        `mapstructure:"signing_key"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// MediaConfig holds media tool configuration.
type MediaConfig struct {
	FFmpegPath  string `mapstructure:"ffmpeg_path"`  // empty = auto-detect
	FFprobePath string `mapstructure:"ffprobe_path"` // empty = auto-detect
	FontDir     string `mapstructure:"font_dir"`
	// SubtitleFont is the default burn-in font; RTL scripts switch to
	// RTLFont for glyph coverage.
	SubtitleFont string `mapstructure:"subtitle_font"`
	RTLFont      string `mapstructure:"rtl_font"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with VOXSUB_ and use underscores for
// nesting. Example: VOXSUB_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/voxsub")
		v.AddConfigPath("$HOME/.voxsub")
	}

	v.SetEnvPrefix("VOXSUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.allow_credentials", false)
	v.SetDefault("server.rate_limit_per_min", defaultRateLimit)
	v.SetDefault("server.submit_rate_limit_per_min", defaultSubmitRateLimit)
	v.SetDefault("server.download_rate_limit_per_min", defaultDownloadRateLimit)
	v.SetDefault("server.queue_depth_limit", defaultQueueDepthLimit)
	v.SetDefault("server.accel_redirect_prefix", "/protected/artifacts")
	v.SetDefault("server.enable_remote_download", true)
	v.SetDefault("server.allowed_hosts", []string{})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "voxsub.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.intake_dir", "intake")
	v.SetDefault("storage.workspace_dir", "workspace")
	v.SetDefault("storage.artifact_dir", "artifacts")
	v.SetDefault("storage.asset_dir", "assets")
	v.SetDefault("storage.stats_dir", "stats")
	v.SetDefault("storage.scratch_dir", "/dev/shm")
	v.SetDefault("storage.scratch_min_free", defaultScratchMinFree)
	v.SetDefault("storage.max_file_size", defaultMaxFileSizeBytes)
	v.SetDefault("storage.max_logo_size", defaultMaxLogoSizeBytes)
	v.SetDefault("storage.artifact_retention", defaultArtifactRetention)
	v.SetDefault("storage.record_retention", defaultRecordRetention)
	v.SetDefault("storage.asset_retention", defaultAssetRetention)
	v.SetDefault("storage.sweep_interval", defaultSweepInterval)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Worker defaults
	v.SetDefault("worker.concurrency", defaultWorkerCount)
	v.SetDefault("worker.poll_interval", defaultPollInterval)
	v.SetDefault("worker.soft_time_limit", defaultSoftTimeLimit)
	v.SetDefault("worker.hard_time_limit", defaultHardTimeLimit)
	v.SetDefault("worker.lock_timeout", defaultHardTimeLimit+5*time.Minute)

	// Download defaults
	v.SetDefault("download.binary_path", "")
	v.SetDefault("download.retry_attempts", defaultDownloadRetries)
	v.SetDefault("download.retry_delay", 5*time.Second)
	v.SetDefault("download.timeout", 20*time.Minute)

	// Transcribe defaults
	v.SetDefault("transcribe.binary_path", "")
	v.SetDefault("transcribe.model_dir", "models")
	v.SetDefault("transcribe.default_model", "base")
	v.SetDefault("transcribe.allow_downgrade", false)
	v.SetDefault("transcribe.remote_api_url", "")
	v.SetDefault("transcribe.remote_api_key", "")
	v.SetDefault("transcribe.threads", 4)

	// Translate defaults
	v.SetDefault("translate.free_endpoint", "https://translate.googleapis.com/translate_a/single")
	v.SetDefault("translate.paid_endpoint", "https://api-free.deepl.com/v2/translate")
	v.SetDefault("translate.paid_api_key", "")
	v.SetDefault("translate.retry_attempts", defaultTranslateRetries)
	v.SetDefault("translate.retry_base", defaultTranslateBackoff)
	v.SetDefault("translate.retry_cap", defaultTranslateCap)
	v.SetDefault("translate.batch_size", defaultBatchSize)
	v.SetDefault("translate.parallelism", defaultParallelism)
	v.SetDefault("translate.fallback_service", "")

	// Token defaults
	v.SetDefault("tokens.signing_key", "")
	v.SetDefault("tokens.ttl", defaultTokenTTL)

	// Media defaults
	v.SetDefault("media.ffmpeg_path", "")
	v.SetDefault("media.ffprobe_path", "")
	v.SetDefault("media.font_dir", "/usr/share/fonts")
	v.SetDefault("media.subtitle_font", "DejaVu Sans")
	v.SetDefault("media.rtl_font", "Noto Sans Hebrew")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// A wildcard origin with credentials would let any site ride the
	// client's cookies.
	if c.Server.AllowCredentials {
		for _, o := range c.Server.AllowedOrigins {
			if o == "*" {
				return fmt.Errorf("server.allowed_origins must not contain %q when allow_credentials is true", "*")
			}
		}
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.ArtifactRetention <= 0 {
		return fmt.Errorf("storage.artifact_retention must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1")
	}
	if c.Worker.HardTimeLimit <= c.Worker.SoftTimeLimit {
		return fmt.Errorf("worker.hard_time_limit must exceed worker.soft_time_limit")
	}

	if c.Translate.BatchSize < 1 {
		return fmt.Errorf("translate.batch_size must be at least 1")
	}
	if c.Translate.Parallelism < 1 {
		return fmt.Errorf("translate.parallelism must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IntakePath returns the full path to the intake directory.
func (c *StorageConfig) IntakePath() string {
	return filepath.Join(c.BaseDir, c.IntakeDir)
}

// WorkspacePath returns the full path to the workspace directory.
func (c *StorageConfig) WorkspacePath() string {
	return filepath.Join(c.BaseDir, c.WorkspaceDir)
}

// ArtifactPath returns the full path to the published-artifact directory.
func (c *StorageConfig) ArtifactPath() string {
	return filepath.Join(c.BaseDir, c.ArtifactDir)
}

// AssetPath returns the full path to the asset directory.
func (c *StorageConfig) AssetPath() string {
	return filepath.Join(c.BaseDir, c.AssetDir)
}

// StatsPath returns the full path to the stats directory.
func (c *StorageConfig) StatsPath() string {
	return filepath.Join(c.BaseDir, c.StatsDir)
}
