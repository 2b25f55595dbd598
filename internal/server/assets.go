package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/varoOP/clubgate/internal/domain"
)

// RuntimeConfigPath is generated by the gateway and never fetched upstream
const RuntimeConfigPath = "/runtime-config.js"

type runtimeConfig struct {
	APIBaseURL   string `json:"apiBaseUrl"`
	Environment  string `json:"environment"`
	CachePrefix  string `json:"cachePrefix"`
	CacheVersion string `json:"cacheVersion"`
}

// RuntimeConfigScript renders the script that hands the API origin to the page
func RuntimeConfigScript(cfg *domain.Config) ([]byte, error) {
	payload, err := json.Marshal(runtimeConfig{
		APIBaseURL:   cfg.APIBaseURL,
		Environment:  string(cfg.Environment),
		CachePrefix:  cfg.Cache.Prefix,
		CacheVersion: cfg.Cache.Version,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not encode runtime config")
	}
	return []byte("window.__RUNTIME_CONFIG__ = " + string(payload) + ";\n"), nil
}

// AssetFetcher answers for the assets the gateway generates itself and sends
// everything else to the wrapped fetcher. The worker install and the warmer go
// through it, so the shell never depends on upstream serving those files.
type AssetFetcher struct {
	cfg  *domain.Config
	site *url.URL
	next domain.Fetcher
}

func NewAssetFetcher(cfg *domain.Config, next domain.Fetcher) *AssetFetcher {
	site, _ := url.Parse(strings.TrimRight(cfg.SiteOrigin, "/"))
	return &AssetFetcher{cfg: cfg, site: site, next: next}
}

func (f *AssetFetcher) Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if !f.local(req) {
		return f.next.Fetch(ctx, req)
	}

	body, err := RuntimeConfigScript(f.cfg)
	if err != nil {
		return nil, err
	}

	return &domain.Response{
		URL:        req.Key(),
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header: http.Header{
			"Content-Type":  []string{"application/javascript; charset=utf-8"},
			"Cache-Control": []string{"no-cache"},
		},
		Body:     body,
		Type:     domain.ResponseBasic,
		StoredAt: time.Now(),
	}, nil
}

func (f *AssetFetcher) local(req *domain.Request) bool {
	if f.site == nil || req == nil || req.URL == nil || !req.IsGet() {
		return false
	}
	return strings.EqualFold(req.URL.Host, f.site.Host) && req.URL.Path == RuntimeConfigPath
}
