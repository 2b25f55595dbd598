package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/varoOP/clubgate/internal/consent"
	"github.com/varoOP/clubgate/internal/database"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/proxy"
	"github.com/varoOP/clubgate/internal/warmer"
)

// BuildAPIBaseURL is set at build time with
// -ldflags "-X github.com/varoOP/clubgate/internal/config.BuildAPIBaseURL=https://..."
var BuildAPIBaseURL = ""

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", string(domain.EnvironmentProduction))
	v.SetDefault("log_level", "info")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db_path", database.DefaultPath())
	v.SetDefault("storage", "sqlite")
	v.SetDefault("site_origin", "http://localhost:8080")
	v.SetDefault("upstream_origin", "")
	v.SetDefault("cache.prefix", "clubsite")
	v.SetDefault("cache.version", "v1")
	v.SetDefault("warm.endpoints", warmer.DefaultEndpoints)
	v.SetDefault("warm.core_assets", warmer.DefaultCoreAssets)
	v.SetDefault("warm.concurrency", 0)
	v.SetDefault("warm.scan_document", false)
	v.SetDefault("warm.min_interval", "15m")
	v.SetDefault("consent.cookie_name", consent.DefaultCookieName)
	v.SetDefault("consent.admin_prefix", consent.DefaultAdminPrefix)
	v.SetDefault("proxy.backend_url", "")
	v.SetDefault("proxy.bypass_header", proxy.DefaultBypassHeader)
	v.SetDefault("proxy.bypass_secret", "")
	v.SetDefault("notify.discord_webhook_url", "")
	v.SetDefault("maintenance.token", "")
}

// FileNames are the config file names searched for, in order, when no file is given
var FileNames = []string{".clubgate", "config"}

// ReadFile reads file, or the first of FileNames found in dirs. It returns the
// file used, or "" when there is none.
func ReadFile(v *viper.Viper, file string, dirs ...string) (string, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("could not read config %s: %w", file, err)
		}
		return v.ConfigFileUsed(), nil
	}

	v.SetConfigType("yaml")
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}

	for _, name := range FileNames {
		v.SetConfigName(name)

		err := v.ReadInConfig()
		if err == nil {
			return v.ConfigFileUsed(), nil
		}

		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return "", fmt.Errorf("could not read config: %w", err)
		}
	}

	return "", nil
}

// Load loads configuration from multiple sources:
// 1. Config file (config.yaml or .clubgate.yaml, optional)
// 2. Environment variables (CLUBGATE_*)
// 3. Flags bound by the command line
func Load() (*domain.Config, error) {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) (*domain.Config, error) {
	SetDefaults(v)

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}

	cfg.Environment = domain.Environment(strings.ToLower(string(cfg.Environment)))
	if cfg.Environment != domain.EnvironmentProduction && cfg.Environment != domain.EnvironmentDevelopment {
		return nil, fmt.Errorf("invalid environment: %s (must be 'production' or 'development')", cfg.Environment)
	}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log_level: %s", cfg.LogLevel)
	}

	if cfg.Storage != "sqlite" && cfg.Storage != "memory" {
		return nil, fmt.Errorf("invalid storage: %s (must be 'sqlite' or 'memory')", cfg.Storage)
	}

	cfg.SiteOrigin = strings.TrimRight(cfg.SiteOrigin, "/")
	if err := requireOrigin("site_origin", cfg.SiteOrigin); err != nil {
		return nil, err
	}
	if cfg.UpstreamOrigin != "" {
		cfg.UpstreamOrigin = strings.TrimRight(cfg.UpstreamOrigin, "/")
		if err := requireOrigin("upstream_origin", cfg.UpstreamOrigin); err != nil {
			return nil, err
		}
	}

	cfg.APIBaseURL = ResolveAPIBaseURL(v, cfg.Environment)

	if cfg.Cache.Prefix == "" || cfg.Cache.Version == "" {
		return nil, fmt.Errorf("cache.prefix and cache.version are required")
	}
	if strings.Contains(cfg.Cache.Version, "-") {
		return nil, fmt.Errorf("cache.version must not contain '-': %s", cfg.Cache.Version)
	}

	if cfg.Warm.Concurrency < 0 {
		return nil, fmt.Errorf("warm.concurrency must be >= 0")
	}
	if cfg.Warm.MinInterval < 0 {
		return nil, fmt.Errorf("warm.min_interval must be >= 0")
	}

	return cfg, nil
}

// ResolveAPIBaseURL picks the API origin: build-time override, then the
// CLUBGATE_API_BASE_URL environment variable, then runtime.api_base_url from the
// config file, then the production default, then the local development backend.
func ResolveAPIBaseURL(v *viper.Viper, env domain.Environment) string {
	candidates := []string{
		BuildAPIBaseURL,
		v.GetString("api_base_url"),
		v.GetString("runtime.api_base_url"),
	}
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return strings.TrimRight(c, "/")
		}
	}

	if env == domain.EnvironmentProduction {
		return domain.DefaultProductionAPIBaseURL
	}
	return domain.DefaultDevelopmentAPIBaseURL
}

func requireOrigin(key, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, value)
	}
	return nil
}
