package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "config.yaml"

// PaperSize holds page dimensions in inches.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// PostgresConfig describes the token database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config is the full service configuration.
type Config struct {
	Server struct {
		Host      string `yaml:"host"`
		Port      string `yaml:"port"`
		PublicDir string `yaml:"public_dir"`
	} `yaml:"server"`

	Limits struct {
		MaxBodyBytes int   `yaml:"max_body_bytes"`
		MaxFileBytes int64 `yaml:"max_file_bytes"`
	} `yaml:"limits"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
		RedisHost       string        `yaml:"redis_host"`
		RateLimitDB     int           `yaml:"redis_rate_db"`
		PDFCacheDB      int           `yaml:"redis_pdf_db"`
	} `yaml:"cache"`

	RateLimiter struct {
		Interval  time.Duration `yaml:"interval"`
		UserLimit int           `yaml:"user_limit"`
		UseRedis  bool          `yaml:"use_redis"`
	} `yaml:"rate_limiter"`

	Auth struct {
		Enabled        bool           `yaml:"enabled"`
		ReloadInterval time.Duration  `yaml:"reload_interval"`
		Postgres       PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	PDF PDFConfig `yaml:"pdf"`

	Markdown MarkdownConfig `yaml:"markdown"`
}

// PDFConfig controls the browser engine and print settings.
type PDFConfig struct {
	DefaultPaper      string               `yaml:"default_paper"`
	PaperSizes        map[string]PaperSize `yaml:"paper_sizes"`
	MarginMM          float64              `yaml:"margin_mm"`
	TimeoutSecs       int                  `yaml:"timeout_secs"`
	LaunchTimeoutSecs int                  `yaml:"launch_timeout_secs"`
	NetworkIdleMS     int                  `yaml:"network_idle_ms"`
	ChromePath        string               `yaml:"chrome_path"`
	ChromeNoSandbox   bool                 `yaml:"chrome_no_sandbox"`
	UserDataDir       string               `yaml:"user_data_dir"`
	EagerStart        bool                 `yaml:"eager_start"`
}

// MarkdownConfig toggles renderer features.
type MarkdownConfig struct {
	AllowHTML      bool   `yaml:"allow_html"`
	Linkify        bool   `yaml:"linkify"`
	Typographer    bool   `yaml:"typographer"`
	HardWraps      bool   `yaml:"hard_wraps"`
	HighlightStyle string `yaml:"highlight_style"`
	FrontMatter    bool   `yaml:"front_matter"`
}

// DefaultPaperSizes mirrors the formats Chromium-based printers accept by name.
func DefaultPaperSizes() map[string]PaperSize {
	return map[string]PaperSize{
		"LETTER":  {Width: 8.5, Height: 11},
		"LEGAL":   {Width: 8.5, Height: 14},
		"TABLOID": {Width: 11, Height: 17},
		"LEDGER":  {Width: 17, Height: 11},
		"A0":      {Width: 33.1, Height: 46.8},
		"A1":      {Width: 23.4, Height: 33.1},
		"A2":      {Width: 16.54, Height: 23.4},
		"A3":      {Width: 11.7, Height: 16.54},
		"A4":      {Width: 8.27, Height: 11.7},
		"A5":      {Width: 5.83, Height: 8.27},
		"A6":      {Width: 4.13, Height: 5.83},
	}
}

// Defaults returns a configuration usable without a config file.
func Defaults() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = ":3000"

	cfg.Limits.MaxBodyBytes = 100 * 1024 * 1024
	cfg.Limits.MaxFileBytes = 100 * 1024 * 1024

	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 50
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 14

	cfg.Cache.PDFCacheTTL = 10 * time.Minute
	cfg.Cache.RedisHost = "127.0.0.1:6379"
	cfg.Cache.RateLimitDB = 0
	cfg.Cache.PDFCacheDB = 1

	cfg.RateLimiter.Interval = time.Minute

	cfg.Auth.ReloadInterval = time.Minute

	cfg.PDF = PDFConfig{
		DefaultPaper:      "A4",
		PaperSizes:        DefaultPaperSizes(),
		MarginMM:          10,
		TimeoutSecs:       30,
		LaunchTimeoutSecs: 20,
		NetworkIdleMS:     500,
		ChromeNoSandbox:   true,
		EagerStart:        true,
	}

	cfg.Markdown = MarkdownConfig{
		AllowHTML:      true,
		Linkify:        true,
		Typographer:    true,
		HighlightStyle: "github",
	}
	return cfg
}

// Load reads the configuration from CONFIG_PATH, falling back to DefaultPath.
// A missing file at the default location yields Defaults().
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if _, err := os.Stat(DefaultPath); errors.Is(err, os.ErrNotExist) {
			cfg := Defaults()
			applyEnv(&cfg)
			return cfg
		}
		path = DefaultPath
	}
	return LoadFrom(path)
}

// LoadFrom reads and validates the YAML file at path on top of Defaults().
// It panics when the file cannot be read or holds invalid values.
func LoadFrom(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}
	applyEnv(&cfg)
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: %s: %v", path, err))
	}
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = ":" + strings.TrimPrefix(v, ":")
	}
	if cfg.PDF.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.PDF.ChromePath = v
		}
	}
}

// normalize upper-cases paper size keys so lookups are case-insensitive.
func normalize(cfg *Config) {
	if len(cfg.PDF.PaperSizes) == 0 {
		cfg.PDF.PaperSizes = DefaultPaperSizes()
	}
	sizes := make(map[string]PaperSize, len(cfg.PDF.PaperSizes))
	for name, size := range cfg.PDF.PaperSizes {
		sizes[strings.ToUpper(strings.TrimSpace(name))] = size
	}
	cfg.PDF.PaperSizes = sizes
	cfg.PDF.DefaultPaper = strings.ToUpper(strings.TrimSpace(cfg.PDF.DefaultPaper))
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Limits.MaxBodyBytes <= 0 {
		return errors.New("limits.max_body_bytes must be positive")
	}
	if c.Limits.MaxFileBytes <= 0 {
		return errors.New("limits.max_file_bytes must be positive")
	}
	if _, ok := c.PDF.PaperSizes[strings.ToUpper(c.PDF.DefaultPaper)]; !ok {
		return fmt.Errorf("pdf.default_paper %q not in pdf.paper_sizes", c.PDF.DefaultPaper)
	}
	for name, size := range c.PDF.PaperSizes {
		if size.Width <= 0 || size.Height <= 0 {
			return fmt.Errorf("pdf.paper_sizes.%s must have positive dimensions", name)
		}
	}
	if c.PDF.MarginMM < 0 {
		return errors.New("pdf.margin_mm must not be negative")
	}
	if c.PDF.TimeoutSecs <= 0 {
		return errors.New("pdf.timeout_secs must be positive")
	}
	if c.PDF.NetworkIdleMS < 0 {
		return errors.New("pdf.network_idle_ms must not be negative")
	}
	if c.RateLimiter.UserLimit < 0 {
		return errors.New("rate_limiter.user_limit must not be negative")
	}
	if c.RateLimiter.UserLimit > 0 && c.RateLimiter.Interval <= 0 {
		return errors.New("rate_limiter.interval must be positive")
	}
	if c.Auth.Enabled && c.Auth.ReloadInterval <= 0 {
		return errors.New("auth.reload_interval must be positive")
	}
	if c.Cache.PDFCacheEnabled && c.Cache.RedisHost == "" {
		return errors.New("cache.redis_host is required when the pdf cache is enabled")
	}
	return nil
}

// LaunchTimeout is the time allowed for the browser to come up.
func (p PDFConfig) LaunchTimeout() time.Duration {
	if p.LaunchTimeoutSecs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(p.LaunchTimeoutSecs) * time.Second
}

// Timeout bounds a single render.
func (p PDFConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// NetworkIdle is the quiet window that counts as network quiescence.
func (p PDFConfig) NetworkIdle() time.Duration {
	return time.Duration(p.NetworkIdleMS) * time.Millisecond
}
