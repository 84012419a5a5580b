// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Portal     PortalConfig     `mapstructure:"portal"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Captcha    CaptchaConfig    `mapstructure:"captcha"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Acquire    AcquireConfig    `mapstructure:"acquire"`
	Documents  DocumentsConfig  `mapstructure:"documents"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PortalConfig describes the eCourts portal and how hard we may hit it.
type PortalConfig struct {
	URL               string  `mapstructure:"url"`
	DocumentBaseURL   string  `mapstructure:"document_base_url"`
	UserAgent         string  `mapstructure:"user_agent"`
	Proxy             string  `mapstructure:"proxy"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// BrowserConfig configures the Chrome sessions.
type BrowserConfig struct {
	Headless          bool   `mapstructure:"headless"`
	Xvfb              bool   `mapstructure:"xvfb"`
	Display           string `mapstructure:"display"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	ProfileRoot       string `mapstructure:"profile_root"`
	ExecPath          string `mapstructure:"exec_path"`
}

// CaptchaConfig configures the tesseract CLI.
type CaptchaConfig struct {
	TesseractPath string `mapstructure:"tesseract_path"`
	Lang          string `mapstructure:"lang"`
	PSM           int    `mapstructure:"psm"`
	Scale         int    `mapstructure:"scale"`
}

// ClassifierConfig bounds page-state classification.
type ClassifierConfig struct {
	SuccessProbeSeconds int `mapstructure:"success_probe_seconds"`
	OverallSeconds      int `mapstructure:"overall_seconds"`
	PollMs              int `mapstructure:"poll_ms"`
}

// AcquireConfig holds the per-kind retry budgets. Attempts here count the
// retries allowed after the first session.
type AcquireConfig struct {
	CaptchaAttempts    int `mapstructure:"captcha_attempts"`
	TransientAttempts  int `mapstructure:"transient_attempts"`
	RetryDelayMs       int `mapstructure:"retry_delay_ms"`
	ItemTimeoutSeconds int `mapstructure:"item_timeout_seconds"`
}

// DocumentsConfig tunes order document retrieval.
type DocumentsConfig struct {
	MaxAttempts            int    `mapstructure:"max_attempts"`
	DelaySeconds           int    `mapstructure:"delay_seconds"`
	ModalTimeoutSeconds    int    `mapstructure:"modal_timeout_seconds"`
	DownloadTimeoutSeconds int    `mapstructure:"download_timeout_seconds"`
	MaxBytes               int    `mapstructure:"max_bytes"`
	WorkDir                string `mapstructure:"work_dir"`
	ValidatePDF            bool   `mapstructure:"validate_pdf"`
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// StorageConfig selects the document blob store.
type StorageConfig struct {
	Backend       string             `mapstructure:"backend"`
	Bucket        string             `mapstructure:"bucket"`
	PublicBaseURL string             `mapstructure:"public_base_url"`
	Endpoint      string             `mapstructure:"endpoint"`
	Local         LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig configures the filesystem backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls access to the relational database.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// RedisConfig configures the record cache.
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Storage backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CNR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if proxy := os.Getenv("PROXY"); proxy != "" {
		cfg.Portal.Proxy = proxy
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 900)
	v.SetDefault("portal.url", "https://services.ecourts.gov.in/ecourtindia_v6/")
	v.SetDefault("portal.document_base_url", "https://services.ecourts.gov.in/ecourtindia_v6/")
	v.SetDefault("portal.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("portal.requests_per_second", 0.5)
	v.SetDefault("portal.burst", 2)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.xvfb", false)
	v.SetDefault("browser.display", ":99")
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("captcha.tesseract_path", "tesseract")
	v.SetDefault("captcha.lang", "eng")
	v.SetDefault("captcha.psm", 7)
	v.SetDefault("captcha.scale", 3)
	v.SetDefault("classifier.success_probe_seconds", 5)
	v.SetDefault("classifier.overall_seconds", 20)
	v.SetDefault("classifier.poll_ms", 250)
	v.SetDefault("acquire.captcha_attempts", 9999)
	v.SetDefault("acquire.transient_attempts", 3)
	v.SetDefault("acquire.retry_delay_ms", 1000)
	v.SetDefault("acquire.item_timeout_seconds", 0)
	v.SetDefault("documents.max_attempts", 5)
	v.SetDefault("documents.delay_seconds", 2)
	v.SetDefault("documents.modal_timeout_seconds", 10)
	v.SetDefault("documents.download_timeout_seconds", 60)
	v.SetDefault("documents.max_bytes", 50<<20)
	v.SetDefault("documents.validate_pdf", true)
	v.SetDefault("pool.workers", 5)
	v.SetDefault("pool.queue_depth", 100)
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.local.base_dir", "./data/documents")
	v.SetDefault("database.table", "cnr_acquisitions")
	v.SetDefault("redis.ttl_seconds", 6*60*60)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("pubsub.topic_name", "cnr-acquisitions")
	v.SetDefault("logging.development", true)

	// AutomaticEnv only reaches keys viper already knows about.
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("portal.proxy", "")
	v.SetDefault("browser.profile_root", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("documents.work_dir", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 0)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "0s")
	v.SetDefault("redis.url", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Portal.URL == "" {
		return fmt.Errorf("portal.url is required")
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool.workers must be > 0")
	}
	if c.Pool.QueueDepth < 0 {
		return fmt.Errorf("pool.queue_depth must be >= 0")
	}
	if c.Acquire.CaptchaAttempts < 0 || c.Acquire.TransientAttempts < 0 {
		return fmt.Errorf("acquire attempts must be >= 0")
	}
	if c.Documents.MaxAttempts <= 0 {
		return fmt.Errorf("documents.max_attempts must be > 0")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

// RequestTimeout bounds one synchronous API call.
func (c Config) RequestTimeout() time.Duration {
	return seconds(c.Server.RequestTimeoutSeconds)
}

// NavigationTimeout bounds a single browser navigation.
func (c Config) NavigationTimeout() time.Duration {
	return seconds(c.Browser.NavTimeoutSeconds)
}

// ItemTimeout bounds one acquisition inside a worker; zero means unbounded.
func (c Config) ItemTimeout() time.Duration {
	return seconds(c.Acquire.ItemTimeoutSeconds)
}

// RetryDelay is the pause between sessions.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Acquire.RetryDelayMs) * time.Millisecond
}

// CacheTTL is how long a complete record stays cached.
func (c Config) CacheTTL() time.Duration {
	return seconds(c.Redis.TTLSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
