package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/apiclient"
	"github.com/varoOP/clubgate/internal/config"
	"github.com/varoOP/clubgate/internal/consent"
	"github.com/varoOP/clubgate/internal/database"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/fetch"
	"github.com/varoOP/clubgate/internal/logger"
	"github.com/varoOP/clubgate/internal/media"
	"github.com/varoOP/clubgate/internal/memstore"
	"github.com/varoOP/clubgate/internal/metrics"
	"github.com/varoOP/clubgate/internal/notification"
	"github.com/varoOP/clubgate/internal/proxy"
	"github.com/varoOP/clubgate/internal/seo"
	"github.com/varoOP/clubgate/internal/server"
	"github.com/varoOP/clubgate/internal/warmer"
	"github.com/varoOP/clubgate/internal/worker"
)

const upstreamTimeout = 30 * time.Second

// App represents the main application with all dependencies initialized
type App struct {
	log    zerolog.Logger
	config *domain.Config

	db      *database.DB
	storage domain.CacheStorage
	prefs   domain.PrefsRepo

	metrics             *metrics.Metrics
	fetcher             domain.Fetcher
	resolver            *media.Resolver
	api                 *apiclient.Client
	registry            *worker.Registry
	warmer              *warmer.Engine
	gate                *consent.Gate
	consentStore        consent.Store
	seoService          seo.Service
	notificationService domain.NotificationService
}

// NewApp loads the configuration and initializes every dependency
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return New(cfg, logger.ForLevel(cfg.LogLevel))
}

// New wires an application around an already validated config
func New(cfg *domain.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		log:     log,
		config:  cfg,
		metrics: metrics.New(),
	}

	switch cfg.Storage {
	case "memory":
		a.storage = memstore.NewStorage(log)
		a.prefs = memstore.NewPrefs()
	default:
		db, err := database.NewDB(cfg.DBPath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.db = db
		a.storage = database.NewCacheRepo(log, db)
		a.prefs = database.NewPrefsRepo(log, db)
	}

	httpClient := &http.Client{Timeout: upstreamTimeout}

	fetcher, err := fetch.NewClient(log, cfg.SiteOrigin, cfg.UpstreamOrigin, httpClient, a.metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize fetcher: %w", err)
	}
	a.fetcher = server.NewAssetFetcher(cfg, fetcher)

	a.resolver = media.NewResolver(cfg.APIBaseURL, cfg.SiteOrigin)

	a.api = apiclient.New(log, cfg.APIBaseURL, a.prefs, httpClient)
	a.api.OnUnauthorized(func(loginRoute string) {
		a.log.Warn().Str("login", loginRoute).Msg("session expired, log in again")
	})

	a.registry = worker.NewRegistry(log, a.storage, a.fetcher, a.metrics, a.workerOptions(), cfg.IsProduction())

	a.warmer = warmer.NewEngine(log, a.storage, a.fetcher, a.resolver, a.prefs, a.metrics, warmer.Options{
		Prefix:      cfg.Cache.Prefix,
		SiteOrigin:  cfg.SiteOrigin,
		CoreAssets:  cfg.Warm.CoreAssets,
		Endpoints:   cfg.Warm.Endpoints,
		Concurrency: cfg.Warm.Concurrency,
	})
	if cfg.Warm.ScanDocument {
		a.warmer.SetScanner(warmer.NewCollyScanner(log))
	}

	a.consentStore = consent.NewCookieStore(cfg.Consent.CookieName, strings.HasPrefix(cfg.SiteOrigin, "https://"))
	a.gate = consent.NewGate(log, a.consentStore, a.registry, a.warmer, a.metrics, consent.Options{
		AdminPrefix:  cfg.Consent.AdminPrefix,
		WarmInterval: cfg.Warm.MinInterval,
	})

	a.seoService = seo.NewService(log, seo.NewAPISource(a.api))
	a.notificationService = notification.NewService(log, cfg.Notify.DiscordWebhookURL)

	return a, nil
}

func (a *App) workerOptions() worker.Options {
	return worker.Options{
		Prefix:     a.config.Cache.Prefix,
		Version:    a.config.Cache.Version,
		SiteOrigin: a.config.SiteOrigin,
	}
}

func (a *App) Config() *domain.Config {
	return a.config
}

func (a *App) Logger() zerolog.Logger {
	return a.log
}

func (a *App) API() *apiclient.Client {
	return a.api
}

func (a *App) Prefs() domain.PrefsRepo {
	return a.prefs
}

// Close releases the database handle when one is open
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Serve runs the gateway until ctx is cancelled
func (a *App) Serve(ctx context.Context) error {
	srv := server.New(a.log, a.config, server.Deps{
		Fetcher:  a.fetcher,
		Registry: a.registry,
		Gate:     a.gate,
		Consent:  a.consentStore,
		SEO:      a.seoService,
		Metrics:  a.metrics,
		Proxy:    proxy.NewHandler(a.log, a.config.Proxy, server.ProxyPrefix, nil),
	})

	a.log.Info().
		Str("environment", string(a.config.Environment)).
		Str("site", a.config.SiteOrigin).
		Str("api", a.config.APIBaseURL).
		Str("cache_version", a.config.Cache.Version).
		Msg("starting gateway")

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway failed: %w", err)
	}
	return nil
}

// Warm runs one prefetch pass and reports it through the notification channels
func (a *App) Warm(ctx context.Context) (summary warmer.Summary, err error) {
	defer func() {
		if err != nil {
			if notifyErr := a.notificationService.SendError(ctx, err); notifyErr != nil {
				a.log.Warn().Err(notifyErr).Msg("Failed to send error notification")
			}
		}
	}()

	summary = a.warmer.Warm(ctx)
	if summary.Skipped {
		return summary, fmt.Errorf("cache warm skipped: storage or network unavailable")
	}

	stats := summary.Stats()
	a.log.Info().
		Str("run_id", stats.RunID).
		Int("endpoints_ok", stats.EndpointsOK).
		Int("endpoints_failed", stats.EndpointsFailed).
		Int("assets_ok", stats.AssetsOK).
		Int("assets_failed", stats.AssetsFailed).
		Int("warnings", stats.Warnings).
		Dur("duration", stats.Duration).
		Msg("=== WARM SUMMARY ===")

	if notifyErr := a.notificationService.SendSuccess(ctx, stats); notifyErr != nil {
		a.log.Warn().Err(notifyErr).Msg("Failed to send success notification")
	}

	return summary, nil
}

// CacheInfo describes one stored cache partition
type CacheInfo struct {
	Name    string `yaml:"name"`
	Entries int    `yaml:"entries"`
	Current bool   `yaml:"current"`
}

// Caches lists every stored partition with its entry count
func (a *App) Caches(ctx context.Context) ([]CacheInfo, error) {
	names, err := a.storage.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list caches: %w", err)
	}

	current := map[string]bool{domain.PrefetchCacheName(a.config.Cache.Prefix): true}
	for _, role := range worker.Roles {
		current[domain.CacheName(a.config.Cache.Prefix, string(role), a.config.Cache.Version)] = true
	}

	infos := make([]CacheInfo, 0, len(names))
	for _, name := range names {
		c, err := a.storage.Open(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache %s: %w", name, err)
		}
		keys, err := c.Keys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list entries of %s: %w", name, err)
		}
		infos = append(infos, CacheInfo{Name: name, Entries: len(keys), Current: current[name]})
	}

	return infos, nil
}

// ClearCaches deletes every cache partition
func (a *App) ClearCaches(ctx context.Context) ([]string, error) {
	deleted, err := a.registry.ClearAll(ctx)
	if err != nil {
		return deleted, fmt.Errorf("failed to clear caches: %w", err)
	}
	return deleted, nil
}

// Activate installs the configured version and evicts caches of older versions
func (a *App) Activate(ctx context.Context) ([]string, error) {
	w, err := worker.New(a.log, a.storage, a.fetcher, a.metrics, a.workerOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	if err := w.Install(ctx); err != nil {
		return nil, fmt.Errorf("failed to install worker: %w", err)
	}

	deleted, err := w.Activate(ctx)
	if err != nil {
		return deleted, fmt.Errorf("failed to activate worker: %w", err)
	}
	return deleted, nil
}

// Resolve maps a media reference to the URL a page would load
func (a *App) Resolve(raw string) string {
	return a.resolver.Resolve(raw)
}

// Login authenticates against the API and stores the session token
func (a *App) Login(ctx context.Context, creds apiclient.Credentials) error {
	if _, err := a.api.Auth.Login(ctx, creds); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return nil
}

// Logout forgets the stored session token
func (a *App) Logout(ctx context.Context) error {
	if err := a.api.Auth.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// SetLanguage stores the preferred content language sent with API calls
func (a *App) SetLanguage(ctx context.Context, tag string) (string, error) {
	canonical, err := apiclient.SetLanguage(ctx, a.prefs, tag)
	if err != nil {
		return "", fmt.Errorf("invalid language: %w", err)
	}
	return canonical, nil
}
