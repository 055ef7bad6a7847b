package config

import (
	"errors"
	"fmt"
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration. It is loaded once at startup and
// treated as immutable afterwards; every component receives it (or a
// sub-struct) at construction.
type Config struct {
	Policy   PolicyConfig   `mapstructure:"policy"   yaml:"policy"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"  yaml:"fetcher"`
	Browser  BrowserConfig  `mapstructure:"browser"  yaml:"browser"`
	Budget   BudgetConfig   `mapstructure:"budget"   yaml:"budget"`
	Currency CurrencyConfig `mapstructure:"currency" yaml:"currency"`
	Archive  ArchiveConfig  `mapstructure:"archive"  yaml:"archive"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// PolicyConfig controls URL validation and the SSRF guard.
type PolicyConfig struct {
	// TrustedDomains bypass the resolved-address checks. Suffix match:
	// "amazon.com" also trusts "www.amazon.com".
	TrustedDomains []string `mapstructure:"trusted_domains" yaml:"trusted_domains"`

	// DeniedDomains are rejected outright, suffix match.
	DeniedDomains []string `mapstructure:"denied_domains" yaml:"denied_domains"`

	// AllowedIPs are literal IP targets permitted despite the general
	// literal-IP rejection. Used for tests against local fixtures.
	AllowedIPs []string `mapstructure:"allowed_ips" yaml:"allowed_ips"`

	// MaxURLLength rejects absurdly long URLs before any parsing work.
	MaxURLLength int `mapstructure:"max_url_length" yaml:"max_url_length"`
}

// FetcherConfig controls the lightweight HTTP transport.
type FetcherConfig struct {
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	RetryAttempts   int           `mapstructure:"retry_attempts"    yaml:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"       yaml:"retry_delay"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
}

// BrowserConfig controls the rendered transport and its page pool.
type BrowserConfig struct {
	PoolSize    int           `mapstructure:"pool_size"    yaml:"pool_size"`
	AcquireWait time.Duration `mapstructure:"acquire_wait" yaml:"acquire_wait"`
	Settle      time.Duration `mapstructure:"settle"       yaml:"settle"`
}

// BudgetConfig is the per-request time budget. Overall is the hard
// deadline; the phase values bound each fetch attempt; RenderedMin is
// the smallest remaining budget for which a rendered attempt is still
// worth starting.
type BudgetConfig struct {
	Overall     time.Duration `mapstructure:"overall"      yaml:"overall"`
	Lightweight time.Duration `mapstructure:"lightweight"  yaml:"lightweight"`
	Rendered    time.Duration `mapstructure:"rendered"     yaml:"rendered"`
	RenderedMin time.Duration `mapstructure:"rendered_min" yaml:"rendered_min"`
}

// CurrencyConfig holds the conversion table. Rates are units of the
// reporting currency per one unit of the keyed currency.
type CurrencyConfig struct {
	Reporting string             `mapstructure:"reporting" yaml:"reporting"`
	Rates     map[string]float64 `mapstructure:"rates"     yaml:"rates"`
}

// ArchiveConfig controls the optional MongoDB record sink.
type ArchiveConfig struct {
	Enabled    bool   `mapstructure:"enabled"    yaml:"enabled"`
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Policy: PolicyConfig{
			TrustedDomains: []string{
				"aliexpress.com", "aliexpress.us", "alicdn.com",
				"amazon.com", "amazon.ae", "amazon.sa", "amazon.co.uk",
				"amazon.de", "amazon.fr",
				"noon.com", "jumia.com", "daraz.com",
				"ebay.com", "etsy.com", "shopify.com", "myshopify.com",
			},
			MaxURLLength: 2048,
		},
		Fetcher: FetcherConfig{
			MaxBodySize:     2 * 1024 * 1024, // 2MB
			MaxRedirects:    5,
			RetryAttempts:   1,
			RetryDelay:      150 * time.Millisecond,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			},
		},
		Browser: BrowserConfig{
			PoolSize:    3,
			AcquireWait: 2 * time.Second,
			Settle:      300 * time.Millisecond,
		},
		Budget: BudgetConfig{
			Overall:     12 * time.Second,
			Lightweight: 3 * time.Second,
			Rendered:    8 * time.Second,
			RenderedMin: 2 * time.Second,
		},
		Currency: CurrencyConfig{
			Reporting: "YER",
			Rates: map[string]float64{
				"USD": 250.0,
				"EUR": 270.0,
				"SAR": 66.7,
				"AED": 68.0,
				"KWD": 820.0,
				"QAR": 68.7,
				"OMR": 650.0,
				"BHD": 663.0,
			},
		},
		Archive: ArchiveConfig{
			Enabled:    false,
			URI:        "mongodb://localhost:27017",
			Database:   "prodlens",
			Collection: "records",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for inconsistencies.
func Validate(cfg *Config) error {
	if cfg.Fetcher.MaxBodySize <= 0 {
		return errors.New("fetcher.max_body_size must be positive")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return errors.New("fetcher.max_redirects must not be negative")
	}
	if cfg.Browser.PoolSize < 1 {
		return errors.New("browser.pool_size must be at least 1")
	}
	if cfg.Budget.Overall <= 0 {
		return errors.New("budget.overall must be positive")
	}
	if cfg.Budget.Lightweight > cfg.Budget.Overall {
		return fmt.Errorf("budget.lightweight (%s) exceeds budget.overall (%s)",
			cfg.Budget.Lightweight, cfg.Budget.Overall)
	}
	if cfg.Currency.Reporting == "" {
		return errors.New("currency.reporting must be set")
	}
	for code, rate := range cfg.Currency.Rates {
		if rate <= 0 {
			return fmt.Errorf("currency.rates[%s] must be positive, got %v", code, rate)
		}
	}
	if cfg.Archive.Enabled && cfg.Archive.URI == "" {
		return errors.New("archive.uri required when archive is enabled")
	}
	return nil
}
