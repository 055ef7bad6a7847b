package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("PRODLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("prodlens")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".prodlens"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine when none was requested explicitly.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// defaultYAML is the commented starter config written by "config init".
const defaultYAML = `# prodlens configuration

policy:
  # Domains that skip DNS-based SSRF checks. Suffix match.
  trusted_domains:
    - aliexpress.com
    - amazon.com
    - myshopify.com
  denied_domains: []
  # Literal IPs allowed as URL hosts (normally none).
  allowed_ips: []
  max_url_length: 2048

fetcher:
  max_body_size: 2097152
  max_redirects: 5
  retry_attempts: 1
  retry_delay: 150ms

browser:
  pool_size: 3
  acquire_wait: 2s
  settle: 300ms

budget:
  overall: 12s
  lightweight: 3s
  rendered: 8s
  rendered_min: 2s

currency:
  reporting: YER
  # Units of the reporting currency per one unit of the keyed currency.
  rates:
    USD: 250
    EUR: 270
    SAR: 66.7
    AED: 68
    KWD: 820
    QAR: 68.7
    OMR: 650
    BHD: 663

archive:
  enabled: false
  uri: mongodb://localhost:27017
  database: prodlens
  collection: records

logging:
  level: info
  format: text
`

// WriteDefault writes the starter config file. Refuses to overwrite.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	return os.WriteFile(path, []byte(defaultYAML), 0o644)
}

// setDefaults registers default values in viper so env overrides of
// unset keys still resolve.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("policy.trusted_domains", cfg.Policy.TrustedDomains)
	v.SetDefault("policy.denied_domains", cfg.Policy.DeniedDomains)
	v.SetDefault("policy.allowed_ips", cfg.Policy.AllowedIPs)
	v.SetDefault("policy.max_url_length", cfg.Policy.MaxURLLength)

	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.retry_attempts", cfg.Fetcher.RetryAttempts)
	v.SetDefault("fetcher.retry_delay", cfg.Fetcher.RetryDelay)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)

	v.SetDefault("browser.pool_size", cfg.Browser.PoolSize)
	v.SetDefault("browser.acquire_wait", cfg.Browser.AcquireWait)
	v.SetDefault("browser.settle", cfg.Browser.Settle)

	v.SetDefault("budget.overall", cfg.Budget.Overall)
	v.SetDefault("budget.lightweight", cfg.Budget.Lightweight)
	v.SetDefault("budget.rendered", cfg.Budget.Rendered)
	v.SetDefault("budget.rendered_min", cfg.Budget.RenderedMin)

	v.SetDefault("currency.reporting", cfg.Currency.Reporting)
	v.SetDefault("currency.rates", cfg.Currency.Rates)

	v.SetDefault("archive.enabled", cfg.Archive.Enabled)
	v.SetDefault("archive.uri", cfg.Archive.URI)
	v.SetDefault("archive.database", cfg.Archive.Database)
	v.SetDefault("archive.collection", cfg.Archive.Collection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
