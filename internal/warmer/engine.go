// Package warmer fills the prefetch cache after a visitor accepts caching.
// A run never fails as a whole; every endpoint and asset gets its own result.
package warmer

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/media"
	"github.com/varoOP/clubgate/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// DefaultCoreAssets seed every run
var DefaultCoreAssets = []string{
	"/",
	"/manifest.json",
	"/favicon.ico",
	"/runtime-config.js",
}

// DefaultEndpoints are the public API reads whose responses are prefetched
var DefaultEndpoints = []string{
	"/api/settings",
	"/api/slider-images?isActive=true",
	"/api/events?status=upcoming&limit=6",
	"/api/gallery?page=1&limit=12",
	"/api/news?limit=6",
	"/api/pages/home",
	"/api/public/stats",
}

type ItemKind string

const (
	KindEndpoint ItemKind = "endpoint"
	KindAsset    ItemKind = "asset"
)

type ItemResult struct {
	Kind   ItemKind `json:"kind" yaml:"kind"`
	URL    string   `json:"url" yaml:"url"`
	Status int      `json:"status,omitempty" yaml:"status,omitempty"`
	// Images is the number of image candidates kept from an endpoint body
	Images  int    `json:"images,omitempty" yaml:"images,omitempty"`
	Warning string `json:"warning,omitempty" yaml:"warning,omitempty"`
	Err     error  `json:"-" yaml:"-"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r ItemResult) OK() bool {
	return r.Err == nil
}

type Summary struct {
	RunID   string `json:"runId" yaml:"run_id"`
	Cache   string `json:"cache" yaml:"cache"`
	Skipped bool   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	// Fresh marks a run answered by a recent warm instead of fetching again
	Fresh      bool         `json:"fresh,omitempty" yaml:"fresh,omitempty"`
	StartedAt  time.Time    `json:"startedAt" yaml:"started_at"`
	FinishedAt time.Time    `json:"finishedAt" yaml:"finished_at"`
	Succeeded  int          `json:"succeeded" yaml:"succeeded"`
	Failed     int          `json:"failed" yaml:"failed"`
	Items      []ItemResult `json:"items" yaml:"items"`
}

// Count returns succeeded and failed items of one kind
func (s Summary) Count(kind ItemKind) (ok, failed int) {
	for _, it := range s.Items {
		if it.Kind != kind {
			continue
		}
		if it.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

// Stats condenses the summary for notifications
func (s Summary) Stats() domain.WarmStats {
	stats := domain.WarmStats{
		RunID:    s.RunID,
		Cache:    s.Cache,
		Duration: s.FinishedAt.Sub(s.StartedAt),
	}
	stats.EndpointsOK, stats.EndpointsFailed = s.Count(KindEndpoint)
	stats.AssetsOK, stats.AssetsFailed = s.Count(KindAsset)
	for _, it := range s.Items {
		if it.Warning != "" {
			stats.Warnings++
		}
	}
	return stats
}

type Options struct {
	Prefix     string
	SiteOrigin string
	CoreAssets []string
	Endpoints  []string
	// Concurrency caps simultaneous fetches; 0 means unbounded
	Concurrency int
}

type Engine struct {
	log       zerolog.Logger
	storage   domain.CacheStorage
	fetcher   domain.Fetcher
	resolver  *media.Resolver
	prefs     domain.PrefsRepo
	metrics   *metrics.Metrics
	extractor ImageExtractor
	scanner   DocumentScanner
	opts      Options
	site      *url.URL
	now       func() time.Time
}

func NewEngine(log zerolog.Logger, storage domain.CacheStorage, fetcher domain.Fetcher, resolver *media.Resolver, prefs domain.PrefsRepo, m *metrics.Metrics, opts Options) *Engine {
	if len(opts.CoreAssets) == 0 {
		opts.CoreAssets = DefaultCoreAssets
	}
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = DefaultEndpoints
	}

	site, _ := url.Parse(strings.TrimRight(opts.SiteOrigin, "/"))

	return &Engine{
		log:       log.With().Str("module", "warmer").Logger(),
		storage:   storage,
		fetcher:   fetcher,
		resolver:  resolver,
		prefs:     prefs,
		metrics:   m,
		extractor: JSONWalker{},
		opts:      opts,
		site:      site,
		now:       time.Now,
	}
}

// SetExtractor swaps the image extractor used for endpoint bodies
func (e *Engine) SetExtractor(x ImageExtractor) {
	if x != nil {
		e.extractor = x
	}
}

// SetScanner enables scanning the root document for images and icons
func (e *Engine) SetScanner(s DocumentScanner) {
	e.scanner = s
}

// urlSet keeps insertion order and drops duplicates
type urlSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

func newURLSet(seed []string) *urlSet {
	s := &urlSet{seen: map[string]struct{}{}}
	for _, u := range seed {
		s.add(u)
	}
	return s
}

func (s *urlSet) add(u string) {
	if u == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[u]; ok {
		return
	}
	s.seen[u] = struct{}{}
	s.order = append(s.order, u)
}

func (s *urlSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Warm runs one cache warm. It does not return an error: failures are part of the summary.
func (e *Engine) Warm(ctx context.Context) Summary {
	summary := Summary{
		RunID:     uuid.NewString(),
		Cache:     domain.PrefetchCacheName(e.opts.Prefix),
		StartedAt: e.now(),
	}
	log := e.log.With().Str("run", summary.RunID).Logger()

	if e.storage == nil || e.fetcher == nil || e.site == nil || e.site.Host == "" {
		log.Debug().Msg("cache storage or network unavailable, skipping warm")
		summary.Skipped = true
		summary.FinishedAt = e.now()
		return summary
	}

	cache, err := e.storage.Open(ctx, summary.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("could not open prefetch cache, skipping warm")
		summary.Skipped = true
		summary.FinishedAt = e.now()
		return summary
	}

	set := newURLSet(e.opts.CoreAssets)

	if e.scanner != nil {
		found, err := e.scanner.Scan(ctx, e.pageURL("/"))
		if err != nil {
			log.Debug().Err(err).Msg("document scan failed")
		}
		// scanned values are relative to the page, not the API
		for _, raw := range found {
			set.add(e.resolver.Resolve(e.pageURL(raw)))
		}
	}

	endpoints := e.warmEndpoints(ctx, cache, set)
	assets := e.warmAssets(ctx, cache, set.list())

	summary.Items = append(endpoints, assets...)
	for _, it := range summary.Items {
		if it.OK() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	summary.FinishedAt = e.now()

	if e.prefs != nil {
		if err := e.prefs.Set(ctx, domain.PrefLastCacheWarm, summary.FinishedAt.UTC().Format(time.RFC3339)); err != nil {
			log.Debug().Err(err).Msg("could not record warm timestamp")
		}
	}

	e.record(summary)

	log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("cache warm finished")

	return summary
}

func (e *Engine) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	if e.opts.Concurrency > 0 {
		g.SetLimit(e.opts.Concurrency)
	}
	return g, gctx
}

func (e *Engine) warmEndpoints(ctx context.Context, cache domain.Cache, set *urlSet) []ItemResult {
	results := make([]ItemResult, len(e.opts.Endpoints))

	g, gctx := e.group(ctx)
	for i, endpoint := range e.opts.Endpoints {
		g.Go(func() error {
			results[i] = e.warmEndpoint(gctx, cache, set, endpoint)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) warmEndpoint(ctx context.Context, cache domain.Cache, set *urlSet, endpoint string) ItemResult {
	target := e.pageURL(e.resolver.Resolve(endpoint))
	res := ItemResult{Kind: KindEndpoint, URL: target}

	req, err := domain.NewRequest(target)
	if err != nil {
		return res.fail(errors.Wrap(err, "invalid endpoint URL"))
	}
	req.OmitCredentials = true
	req.Header.Set("Accept", "application/json")

	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		return res.fail(err)
	}
	res.Status = resp.StatusCode

	if !resp.OK() {
		return res.fail(errors.Errorf("endpoint returned %d", resp.StatusCode))
	}

	if err := cache.Put(ctx, req.Key(), resp); err != nil {
		return res.fail(errors.Wrap(err, "could not store endpoint response"))
	}

	candidates, err := e.extractor.Extract(resp.Body)
	if err != nil {
		res.Warning = err.Error()
		return res
	}

	for _, c := range candidates {
		resolved := e.resolver.Resolve(c)
		if media.LooksLikeImage(resolved) {
			set.add(resolved)
			res.Images++
		}
	}

	return res
}

func (e *Engine) warmAssets(ctx context.Context, cache domain.Cache, urls []string) []ItemResult {
	results := make([]ItemResult, len(urls))

	g, gctx := e.group(ctx)
	for i, raw := range urls {
		g.Go(func() error {
			results[i] = e.warmAsset(gctx, cache, raw)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) warmAsset(ctx context.Context, cache domain.Cache, raw string) ItemResult {
	target := e.pageURL(raw)
	res := ItemResult{Kind: KindAsset, URL: target}

	req, err := domain.NewRequest(target)
	if err != nil {
		return res.fail(errors.Wrap(err, "invalid asset URL"))
	}

	sameOrigin := strings.EqualFold(req.URL.Scheme, e.site.Scheme) && strings.EqualFold(req.URL.Host, e.site.Host)
	if !sameOrigin {
		req.Mode = domain.ModeNoCORS
		req.OmitCredentials = true
	}
	if media.LooksLikeImage(target) {
		req.Destination = domain.DestinationImage
	}

	resp, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		return res.fail(err)
	}
	res.Status = resp.StatusCode

	storable := (sameOrigin && resp.OK()) || (!sameOrigin && resp.Type == domain.ResponseOpaque)
	if !storable {
		return res.fail(errors.Errorf("asset returned %d (%s)", resp.StatusCode, resp.Type))
	}

	if err := cache.Put(ctx, req.Key(), resp); err != nil {
		return res.fail(errors.Wrap(err, "could not store asset"))
	}

	return res
}

// WarmedWithin reports a finished warm younger than d whose cache still exists
func (e *Engine) WarmedWithin(ctx context.Context, d time.Duration) bool {
	if d <= 0 || e.prefs == nil || e.storage == nil {
		return false
	}

	raw, err := e.prefs.Get(ctx, domain.PrefLastCacheWarm)
	if err != nil || raw == "" {
		return false
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil || e.now().Sub(at) >= d {
		return false
	}

	exists, err := e.storage.Has(ctx, domain.PrefetchCacheName(e.opts.Prefix))
	return err == nil && exists
}

// pageURL resolves raw against the site origin
func (e *Engine) pageURL(raw string) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return e.site.ResolveReference(ref).String()
}

func (r ItemResult) fail(err error) ItemResult {
	r.Err = err
	r.Error = err.Error()
	return r
}

func (e *Engine) record(s Summary) {
	if e.metrics == nil {
		return
	}
	e.metrics.WarmRuns.Inc()
	for _, it := range s.Items {
		outcome := "ok"
		if !it.OK() {
			outcome = "failed"
		}
		e.metrics.WarmItems.WithLabelValues(string(it.Kind), outcome).Inc()
	}
}
