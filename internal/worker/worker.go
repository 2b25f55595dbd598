// Package worker is the offline layer of the gateway. A Worker owns one cache
// generation and serves GET requests through one of three caching strategies.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/metrics"
	"golang.org/x/sync/errgroup"
)

type State int

const (
	StateUninstalled State = iota
	StateInstalling
	StateWaiting
	StateActive
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateUninstalled:
		return "uninstalled"
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ShellAssets is the app shell stored in the core partition on install
var ShellAssets = []string{
	"/",
	"/index.html",
	"/manifest.json",
	"/favicon.ico",
	"/runtime-config.js",
}

var ErrNotActive = errors.New("worker is not active")

type Options struct {
	Prefix     string
	Version    string
	SiteOrigin string
	// ShellAssets overrides the default shell manifest
	ShellAssets []string
}

type Worker struct {
	log     zerolog.Logger
	storage domain.CacheStorage
	fetcher domain.Fetcher
	metrics *metrics.Metrics

	prefix  string
	version string
	site    *url.URL
	shell   []string

	mu    sync.RWMutex
	state State

	background sync.WaitGroup
}

func New(log zerolog.Logger, storage domain.CacheStorage, fetcher domain.Fetcher, m *metrics.Metrics, opts Options) (*Worker, error) {
	if opts.Prefix == "" || opts.Version == "" {
		return nil, errors.New("cache prefix and version are required")
	}

	site, err := url.Parse(strings.TrimRight(opts.SiteOrigin, "/"))
	if err != nil || site.Host == "" {
		return nil, errors.Errorf("invalid site origin %q", opts.SiteOrigin)
	}

	shell := opts.ShellAssets
	if len(shell) == 0 {
		shell = ShellAssets
	}

	return &Worker{
		log:     log.With().Str("module", "worker").Str("version", opts.Version).Logger(),
		storage: storage,
		fetcher: fetcher,
		metrics: m,
		prefix:  opts.Prefix,
		version: opts.Version,
		site:    site,
		shell:   shell,
	}, nil
}

func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()

	w.log.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("state change")
}

func (w *Worker) Version() string {
	return w.version
}

// CacheName returns the versioned partition name for a role
func (w *Worker) CacheName(role Role) string {
	return domain.CacheName(w.prefix, string(role), w.version)
}

// SiteURL resolves a site path against the site origin
func (w *Worker) SiteURL(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return w.site.String() + path
	}
	return w.site.ResolveReference(ref).String()
}

// Install fills the core partition with the shell assets. Any failure leaves the
// worker redundant. On success the worker skips waiting and may activate at once.
func (w *Worker) Install(ctx context.Context) error {
	if s := w.State(); s != StateUninstalled {
		return errors.Errorf("cannot install worker in state %s", s)
	}
	w.setState(StateInstalling)

	core, err := w.storage.Open(ctx, w.CacheName(RoleCore))
	if err != nil {
		w.setState(StateRedundant)
		return errors.Wrap(err, "could not open core cache")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, asset := range w.shell {
		g.Go(func() error {
			req, err := domain.NewRequest(w.SiteURL(asset))
			if err != nil {
				return errors.Wrapf(err, "invalid shell asset %s", asset)
			}
			req.Mode = domain.ModeSameOrigin

			resp, err := w.fetcher.Fetch(gctx, req)
			if err != nil {
				return err
			}
			if !resp.OK() {
				return errors.Errorf("shell asset %s returned %d", asset, resp.StatusCode)
			}

			return core.Put(gctx, req.Key(), resp)
		})
	}

	if err := g.Wait(); err != nil {
		w.setState(StateRedundant)
		w.log.Error().Err(err).Msg("install failed")
		return errors.Wrap(err, "install failed")
	}

	w.log.Info().Int("assets", len(w.shell)).Msg("installed shell assets")
	w.setState(StateWaiting)
	return nil
}

// Activate deletes every partition owned by this worker prefix that belongs to another
// version, then takes control. The prefetch store is single-generation and is kept.
func (w *Worker) Activate(ctx context.Context) ([]string, error) {
	if s := w.State(); s != StateWaiting {
		return nil, errors.Errorf("cannot activate worker in state %s", s)
	}

	names, err := w.storage.Keys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not list caches")
	}

	var deleted []string
	for _, name := range names {
		if !w.isStale(name) {
			continue
		}
		ok, err := w.storage.Delete(ctx, name)
		if err != nil {
			return deleted, errors.Wrapf(err, "could not delete cache %s", name)
		}
		if ok {
			deleted = append(deleted, name)
		}
	}

	w.setState(StateActive)
	w.log.Info().Strs("deleted", deleted).Msg("activated")

	return deleted, nil
}

func (w *Worker) isStale(name string) bool {
	if !strings.HasPrefix(name, w.prefix+"-") || name == domain.PrefetchCacheName(w.prefix) {
		return false
	}
	return !strings.HasSuffix(name, "-"+w.version)
}

// Retire marks the worker as replaced
func (w *Worker) Retire() {
	w.setState(StateRedundant)
}

// Wait blocks until background revalidations finish
func (w *Worker) Wait() {
	w.background.Wait()
}

// Handle serves one intercepted request
func (w *Worker) Handle(ctx context.Context, req *domain.Request) (*domain.Response, Route, error) {
	if w.State() != StateActive {
		return nil, Route{}, ErrNotActive
	}

	route := Classify(req)

	var (
		resp *domain.Response
		err  error
	)

	switch route.Strategy {
	case StrategyNetworkFirst:
		resp, err = w.networkFirst(ctx, req, route)
	case StrategyCacheFirst:
		resp, err = w.cacheFirst(ctx, req, route)
	case StrategyStaleWhileRevalidate:
		resp, err = w.staleWhileRevalidate(ctx, req, route)
	default:
		resp, err = w.fetcher.Fetch(ctx, req)
		w.served(route, "network")
	}

	return resp, route, err
}

func (w *Worker) networkFirst(ctx context.Context, req *domain.Request, route Route) (*domain.Response, error) {
	resp, err := w.fetcher.Fetch(ctx, req)
	if err == nil {
		w.store(ctx, route.Role, req, resp)
		w.served(route, "network")
		return resp, nil
	}

	w.log.Debug().Err(err).Str("url", req.Key()).Msg("network failed, trying cache")

	if cached, ok := w.match(ctx, route.Role, req.Key()); ok {
		w.served(route, "cache")
		return cached, nil
	}

	if route.Fallback != "" {
		if cached, ok := w.match(ctx, route.Role, w.SiteURL(route.Fallback)); ok {
			w.served(route, "fallback")
			return cached, nil
		}
	}

	w.served(route, "offline")
	return OfflineResponse(req.Key()), nil
}

func (w *Worker) cacheFirst(ctx context.Context, req *domain.Request, route Route) (*domain.Response, error) {
	if cached, ok := w.match(ctx, route.Role, req.Key()); ok {
		w.served(route, "cache")
		return cached, nil
	}

	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	w.store(ctx, route.Role, req, resp)
	w.served(route, "network")
	return resp, nil
}

func (w *Worker) staleWhileRevalidate(ctx context.Context, req *domain.Request, route Route) (*domain.Response, error) {
	// per-user responses are never read from or written to the shared runtime cache
	if carriesCredentials(req) {
		resp, err := w.fetcher.Fetch(ctx, req)
		if err != nil {
			w.served(route, "offline")
			return OfflineResponse(req.Key()), nil
		}
		w.served(route, "network")
		return resp, nil
	}

	if cached, ok := w.match(ctx, route.Role, req.Key()); ok {
		w.revalidate(ctx, req, route)
		w.served(route, "cache")
		return cached, nil
	}

	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		w.served(route, "offline")
		return OfflineResponse(req.Key()), nil
	}

	w.store(ctx, route.Role, req, resp)
	w.served(route, "network")
	return resp, nil
}

// carriesCredentials reports a request whose response may be tailored to one
// visitor. The gateway strips its consent cookie before requests get here.
func carriesCredentials(req *domain.Request) bool {
	if req.Header == nil || req.OmitCredentials {
		return false
	}
	return req.Header.Get("Authorization") != "" || req.Header.Get("Cookie") != ""
}

// revalidate refreshes the entry after the cached copy has been returned
func (w *Worker) revalidate(ctx context.Context, req *domain.Request, route Route) {
	bg := context.WithoutCancel(ctx)

	w.background.Add(1)
	go func() {
		defer w.background.Done()

		ctx, cancel := context.WithTimeout(bg, time.Minute)
		defer cancel()

		resp, err := w.fetcher.Fetch(ctx, req)
		if err != nil {
			w.log.Debug().Err(err).Str("url", req.Key()).Msg("revalidation failed")
			return
		}
		w.store(ctx, route.Role, req, resp)
	}()
}

// match looks in the role's own partition first. Other partitions, such as the
// core shell, only answer when the role has no copy of its own.
func (w *Worker) match(ctx context.Context, role Role, key string) (*domain.Response, bool) {
	resp, ok := w.matchPartition(ctx, w.CacheName(role), key)
	if !ok {
		var err error
		resp, ok, err = w.storage.Match(ctx, key)
		if err != nil {
			w.log.Warn().Err(err).Str("url", key).Msg("cache lookup failed")
			ok = false
		}
	}

	if w.metrics != nil {
		result := "miss"
		if ok {
			result = "hit"
		}
		w.metrics.CacheLookups.WithLabelValues(string(role), result).Inc()
	}

	return resp, ok
}

func (w *Worker) matchPartition(ctx context.Context, name, key string) (*domain.Response, bool) {
	exists, err := w.storage.Has(ctx, name)
	if err != nil || !exists {
		return nil, false
	}

	c, err := w.storage.Open(ctx, name)
	if err != nil {
		w.log.Warn().Err(err).Str("cache", name).Msg("could not open cache")
		return nil, false
	}

	resp, ok, err := c.Match(ctx, key)
	if err != nil {
		w.log.Warn().Err(err).Str("url", key).Msg("cache lookup failed")
		return nil, false
	}
	return resp, ok
}

// store mirrors cacheable responses; failures never reach the caller.
// Responses to credentialed requests are never shared.
func (w *Worker) store(ctx context.Context, role Role, req *domain.Request, resp *domain.Response) {
	if !resp.Cacheable() || carriesCredentials(req) {
		return
	}

	c, err := w.storage.Open(ctx, w.CacheName(role))
	if err != nil {
		w.log.Warn().Err(err).Str("role", string(role)).Msg("could not open cache")
		return
	}

	if err := c.Put(ctx, req.Key(), resp); err != nil {
		w.log.Warn().Err(err).Str("url", req.Key()).Msg("could not store response")
	}
}

func (w *Worker) served(route Route, source string) {
	if w.metrics != nil {
		w.metrics.StrategyServed.WithLabelValues(string(route.Strategy), source).Inc()
	}
}

// OfflineResponse is the synthetic reply used when nothing else is available
func OfflineResponse(url string) *domain.Response {
	return &domain.Response{
		URL:        url,
		StatusCode: http.StatusServiceUnavailable,
		Status:     "503 Offline",
		Header:     http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:       []byte("Offline"),
		Type:       domain.ResponseBasic,
		StoredAt:   time.Now(),
	}
}
