// Package config handles application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"bulkdl/internal/errs"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	Telegram   Telegram
	HTTP       HTTP
	App        App
	Job        Job
	Dir        Dir
	Storage    Storage
	DepManager DepManager
	Proxy      Proxy
}

// Telegram holds bot credentials and operator settings.
// Names match the deployment contract of the bot, so they carry no prefix.
type Telegram struct {
	APIHash  string `env:"API_HASH,required,notEmpty"`
	AppID    int    `env:"APP_ID,required"`
	BotToken string `env:"BOT_TOKEN,required,notEmpty"`
	// OwnerID restricts every command to a single identity when non-zero.
	OwnerID int64 `env:"OWNER_ID" envDefault:"0"`
	// Buttons enables the delivery-mode confirmation step.
	Buttons bool `env:"BUTTONS" envDefault:"false"`
	// APIEndpoint points at a self-hosted Bot API server when uploads exceed the public limits.
	APIEndpoint string `env:"BULKDL_TELEGRAM_API_ENDPOINT" envDefault:"https://api.telegram.org/bot%s/%s"`
}

// App holds application-wide configuration.
type App struct {
	LogLevel  string `env:"BULKDL_APP_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"BULKDL_APP_LOG_FORMAT" envDefault:"json"`
}

// HTTP holds configuration of the health and metrics server.
type HTTP struct {
	Port            string        `env:"BULKDL_HTTP_PORT"             envDefault:":9090"`
	ShutdownTimeout time.Duration `env:"BULKDL_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Job holds batch processing configuration.
type Job struct {
	// Workers is the number of concurrent fetches per batch. 1 keeps items sequential.
	Workers int `env:"BULKDL_JOB_WORKERS" envDefault:"1"`
	// ItemTimeout bounds every subprocess invocation.
	ItemTimeout time.Duration `env:"BULKDL_JOB_ITEM_TIMEOUT" envDefault:"30m"`
	// UploadDelay is the pause between two uploaded files.
	UploadDelay time.Duration `env:"BULKDL_JOB_UPLOAD_DELAY" envDefault:"0s"`

	SiteTypePrompt      bool   `env:"BULKDL_JOB_SITE_TYPE_PROMPT"      envDefault:"true"`
	FormatPrompt        bool   `env:"BULKDL_JOB_FORMAT_PROMPT"         envDefault:"true"`
	DefaultFormat       string `env:"BULKDL_JOB_DEFAULT_FORMAT"        envDefault:"raw"`
	DefaultDeliveryMode string `env:"BULKDL_JOB_DEFAULT_DELIVERY_MODE" envDefault:"individual"`
	// AudioMode is "builtin" (yt-dlp extracts mp3 itself) or "ffmpeg" (separate transcode step).
	AudioMode string `env:"BULKDL_JOB_AUDIO_MODE" envDefault:"builtin"`
}

// Storage holds working-storage housekeeping configuration.
type Storage struct {
	// OrphanTTL is how old an unowned requester directory must be before the sweeper removes it.
	OrphanTTL       time.Duration `env:"BULKDL_STORAGE_ORPHAN_TTL"        envDefault:"24h"`
	CleanupInterval time.Duration `env:"BULKDL_STORAGE_CLEANUP_INTERVAL" envDefault:"1h"`
}

// Dir holds directory paths for downloads, temporary files and the yt-dlp cache.
type Dir struct {
	Downloads string `env:"BULKDL_DIR_DOWNLOADS" envDefault:"./downloads"` // downloads/<requesterId>/
	Temp      string `env:"BULKDL_DIR_TEMP"      envDefault:"./temp"`      // temp/<requesterId>/, archives and uploads
	Cache     string `env:"BULKDL_DIR_CACHE"     envDefault:"./data/cache"`

	// see: https://github.com/yt-dlp/yt-dlp/blob/2025.09.05/README.md#output-template
	FilenameTemplate string `env:"BULKDL_DIR_FILENAME_TEMPLATE" envDefault:"%(title)s.%(ext)s"`
}

// SetAbsPaths converts all directory paths to absolute paths.
func (c *Dir) SetAbsPaths() error {
	var err error
	if c.Downloads, err = filepath.Abs(c.Downloads); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}

	if c.Temp, err = filepath.Abs(c.Temp); err != nil {
		return fmt.Errorf("temp: %w", err)
	}

	if c.Cache, err = filepath.Abs(c.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	return nil
}

// DepManager holds binary dependency management configuration.
type DepManager struct {
	// BinsDir is the directory where downloaded binaries are stored.
	BinsDir string `env:"BULKDL_DEPMANAGER_BINS_DIR" envDefault:"./bins"`
	// UseSystemBinaries looks binaries up in PATH instead of downloading them.
	UseSystemBinaries bool `env:"BULKDL_DEPMANAGER_USE_SYSTEM_BINARIES" envDefault:"true"`

	FFmpegLinuxARM64 string `env:"BULKDL_DEPMANAGER_FFMPEG_LINUX_ARM64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linuxarm64-gpl.tar.xz"` //nolint:lll
	FFmpegLinuxAMD64 string `env:"BULKDL_DEPMANAGER_FFMPEG_LINUX_AMD64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linux64-gpl.tar.xz"`    //nolint:lll
	YTdlpLinuxARM64  string `env:"BULKDL_DEPMANAGER_YTDLP_LINUX_ARM64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux_aarch64"`                           //nolint:lll
	YTdlpLinuxAMD64  string `env:"BULKDL_DEPMANAGER_YTDLP_LINUX_AMD64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux"`                                   //nolint:lll
}

// SetAbsPaths converts the BinsDir path to an absolute path.
func (d *DepManager) SetAbsPaths() error {
	var err error
	if d.BinsDir, err = filepath.Abs(d.BinsDir); err != nil {
		return fmt.Errorf("bins dir: %w", err)
	}

	return nil
}

// Proxy holds proxy configuration for yt-dlp invocations.
type Proxy struct {
	// List is a comma-separated list of proxy URLs.
	List string `env:"BULKDL_PROXY_LIST" envDefault:""`
	// FailureBackoff is the initial backoff duration for failed proxies.
	FailureBackoff time.Duration `env:"BULKDL_PROXY_FAILURE_BACKOFF" envDefault:"1m"`
	// MaxFailures is the number of failures before a proxy is benched.
	MaxFailures int `env:"BULKDL_PROXY_MAX_FAILURES" envDefault:"3"`
	// HealthCheckInterval is how often proxies are dialed; 0 disables the checker.
	HealthCheckInterval time.Duration `env:"BULKDL_PROXY_HEALTH_CHECK_INTERVAL" envDefault:"0"`

	Proxies []string `env:"-"`
}

func (p *Proxy) parseList() {
	if p.List == "" {
		return
	}

	for proxy := range strings.SplitSeq(p.List, ",") {
		proxy = strings.TrimSpace(proxy)
		if proxy != "" {
			p.Proxies = append(p.Proxies, proxy)
		}
	}
}

// New loads configuration from environment variables.
// Missing bot credentials are reported as errs.ErrConfig.
func New() (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg)
	if err != nil {
		return nil, errors.Join(errs.ErrConfig, fmt.Errorf("parse env: %w", err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	err = cfg.Dir.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	err = cfg.DepManager.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set dep manager absolute paths: %w", err)
	}

	cfg.Proxy.parseList()

	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	if c.Job.Workers < 1 {
		c.Job.Workers = 1
	}

	if c.Job.ItemTimeout <= 0 {
		return fmt.Errorf("%w: BULKDL_JOB_ITEM_TIMEOUT must be positive, got %s", errs.ErrConfig, c.Job.ItemTimeout)
	}

	if c.Job.UploadDelay < 0 {
		return fmt.Errorf("%w: BULKDL_JOB_UPLOAD_DELAY must not be negative, got %s", errs.ErrConfig, c.Job.UploadDelay)
	}

	switch c.Job.DefaultFormat {
	case "raw", "mp3":
	default:
		return fmt.Errorf("%w: BULKDL_JOB_DEFAULT_FORMAT %q", errs.ErrConfig, c.Job.DefaultFormat)
	}

	switch c.Job.DefaultDeliveryMode {
	case "archive", "individual":
	default:
		return fmt.Errorf("%w: BULKDL_JOB_DEFAULT_DELIVERY_MODE %q", errs.ErrConfig, c.Job.DefaultDeliveryMode)
	}

	switch c.Job.AudioMode {
	case "builtin", "ffmpeg":
	default:
		return fmt.Errorf("%w: BULKDL_JOB_AUDIO_MODE %q", errs.ErrConfig, c.Job.AudioMode)
	}

	return nil
}
