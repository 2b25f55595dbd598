package domain

import "time"

// Environment selects build-like behavior at runtime
type Environment string

const (
	// EnvironmentProduction - worker registration and cache warming are enabled
	EnvironmentProduction Environment = "production"
	// EnvironmentDevelopment - worker registration is a no-op, requests go straight upstream
	EnvironmentDevelopment Environment = "development"
)

const (
	// DefaultProductionAPIBaseURL is used in production when nothing overrides it
	DefaultProductionAPIBaseURL = "https://api.clubsite.org"
	// DefaultDevelopmentAPIBaseURL is the local backend used during development
	DefaultDevelopmentAPIBaseURL = "http://localhost:5000"
)

type Config struct {
	Environment Environment `mapstructure:"environment"`
	LogLevel    string      `mapstructure:"log_level"`
	ListenAddr  string      `mapstructure:"listen_addr"`
	DBPath      string      `mapstructure:"db_path"`
	Storage     string      `mapstructure:"storage"`

	// SiteOrigin is the public origin pages are served from (the "page origin")
	SiteOrigin string `mapstructure:"site_origin"`
	// UpstreamOrigin is where the static site is actually fetched from
	UpstreamOrigin string `mapstructure:"upstream_origin"`
	// APIBaseURL is the resolved REST API origin; may be path-only behind a reverse proxy
	APIBaseURL string `mapstructure:"api_base_url"`

	Cache   CacheConfig   `mapstructure:"cache"`
	Warm    WarmConfig    `mapstructure:"warm"`
	Consent ConsentConfig `mapstructure:"consent"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Notify  NotifyConfig  `mapstructure:"notify"`

	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// CacheConfig controls naming of the worker's cache partitions
type CacheConfig struct {
	Prefix  string `mapstructure:"prefix"`
	Version string `mapstructure:"version"`
}

type WarmConfig struct {
	Endpoints    []string `mapstructure:"endpoints"`
	CoreAssets   []string `mapstructure:"core_assets"`
	Concurrency  int      `mapstructure:"concurrency"`
	ScanDocument bool     `mapstructure:"scan_document"`
	// MinInterval is how long a finished warm satisfies later consents
	MinInterval time.Duration `mapstructure:"min_interval"`
}

type ConsentConfig struct {
	CookieName  string `mapstructure:"cookie_name"`
	AdminPrefix string `mapstructure:"admin_prefix"`
}

type ProxyConfig struct {
	BackendURL   string `mapstructure:"backend_url"`
	BypassHeader string `mapstructure:"bypass_header"`
	BypassSecret string `mapstructure:"bypass_secret"`
}

// MaintenanceConfig guards the /_sw routes. An empty token disables them.
type MaintenanceConfig struct {
	Token string `mapstructure:"token"`
}

type NotifyConfig struct {
	DiscordWebhookURL string `mapstructure:"discord_webhook_url"`
}

// IsProduction reports whether the gateway runs with production behavior
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}
