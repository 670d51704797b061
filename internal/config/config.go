// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Scrape  ScrapeConfig  `mapstructure:"scrape" yaml:"scrape"`
	Captcha CaptchaConfig `mapstructure:"captcha" yaml:"captcha"`
}

// LoggerConfig controls the zap logger and optional file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File rotation (lumberjack). Empty LogFile disables the file core.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the Chrome process and session behavior.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`

	// Interceptor buffer bounds. Events unclaimed past EventTTL are evicted.
	EventBufferSize int           `mapstructure:"event_buffer_size" yaml:"event_buffer_size"`
	EventTTL        time.Duration `mapstructure:"event_ttl" yaml:"event_ttl"`
}

// ScrapeConfig controls the pagination engine.
type ScrapeConfig struct {
	// RequestDelay throttles direct-replay requests and scroll cycles.
	RequestDelay time.Duration `mapstructure:"request_delay" yaml:"request_delay"`
	// ContentWaitTries bounds the classify poll loop (at ~500ms per try).
	ContentWaitTries int `mapstructure:"content_wait_tries" yaml:"content_wait_tries"`
	// MaxScrollTries bounds unproductive scroll attempts in the fallback tier.
	MaxScrollTries int `mapstructure:"max_scroll_tries" yaml:"max_scroll_tries"`
	// ReplyBatchSize is the page size used when fetching comment replies.
	ReplyBatchSize int `mapstructure:"reply_batch_size" yaml:"reply_batch_size"`
}

// CaptchaConfig controls challenge resolution.
type CaptchaConfig struct {
	// Manual pauses for a human operator instead of invoking the solver.
	Manual bool `mapstructure:"manual" yaml:"manual"`
	// LogDir, when set, records each solve's verify payload as a JSON file.
	LogDir string `mapstructure:"log_dir" yaml:"log_dir"`
	// SolverURL points at the external vision service, if one is configured.
	SolverURL string `mapstructure:"solver_url" yaml:"solver_url"`
	SolverKey string `mapstructure:"solver_key" yaml:"solver_key"`
}

// NewDefault returns a Config populated with production defaults.
func NewDefault() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "console",
			ServiceName: "gotok",
			MaxSize:     50,
			MaxBackups:  3,
			MaxAge:      14,
		},
		Browser: BrowserConfig{
			Headless:          false,
			NavigationTimeout: 60 * time.Second,
			EventBufferSize:   512,
			EventTTL:          5 * time.Minute,
		},
		Scrape: ScrapeConfig{
			RequestDelay:     time.Second,
			ContentWaitTries: 15,
			MaxScrollTries:   10,
			ReplyBatchSize:   100,
		},
		Captcha: CaptchaConfig{},
	}
}

// Load reads configuration from the given file (or ./config.yaml), the
// GOTOK_* environment, and defaults, in that priority order.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GOTOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}

	cfg := NewDefault()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := NewDefault()
	v.SetDefault("logger.level", d.Logger.Level)
	v.SetDefault("logger.format", d.Logger.Format)
	v.SetDefault("logger.service_name", d.Logger.ServiceName)
	v.SetDefault("logger.max_size", d.Logger.MaxSize)
	v.SetDefault("logger.max_backups", d.Logger.MaxBackups)
	v.SetDefault("logger.max_age", d.Logger.MaxAge)
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.navigation_timeout", d.Browser.NavigationTimeout)
	v.SetDefault("browser.event_buffer_size", d.Browser.EventBufferSize)
	v.SetDefault("browser.event_ttl", d.Browser.EventTTL)
	v.SetDefault("scrape.request_delay", d.Scrape.RequestDelay)
	v.SetDefault("scrape.content_wait_tries", d.Scrape.ContentWaitTries)
	v.SetDefault("scrape.max_scroll_tries", d.Scrape.MaxScrollTries)
	v.SetDefault("scrape.reply_batch_size", d.Scrape.ReplyBatchSize)
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures deep in the pagination loop.
func (c *Config) Validate() error {
	if c.Browser.EventBufferSize <= 0 {
		return fmt.Errorf("browser.event_buffer_size must be a positive integer")
	}
	if c.Browser.EventTTL <= 0 {
		return fmt.Errorf("browser.event_ttl must be positive")
	}
	if c.Scrape.ContentWaitTries <= 0 {
		return fmt.Errorf("scrape.content_wait_tries must be a positive integer")
	}
	if c.Scrape.MaxScrollTries <= 0 {
		return fmt.Errorf("scrape.max_scroll_tries must be a positive integer")
	}
	if c.Scrape.ReplyBatchSize <= 0 {
		return fmt.Errorf("scrape.reply_batch_size must be a positive integer")
	}
	if c.Captcha.Manual && c.Browser.Headless {
		return fmt.Errorf("captcha.manual requires a visible browser window; disable browser.headless")
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be %q or %q, got %q", "console", "json", c.Logger.Format)
	}
	return nil
}
