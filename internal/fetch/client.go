// Package fetch is the network primitive used by the worker and the warmer.
// Responses are buffered and tagged basic, cors or opaque like a browser fetch.
package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/metrics"
)

// maxBodySize caps buffered bodies; larger responses fail the fetch
const maxBodySize = 32 << 20

// hopHeaders are connection-scoped and never forwarded
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// StripHopHeaders removes hop-by-hop headers, including any listed in Connection
func StripHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				h.Del(f)
			}
		}
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

type Client struct {
	log      zerolog.Logger
	http     *http.Client
	site     *url.URL
	upstream *url.URL
	metrics  *metrics.Metrics
}

// NewClient builds a fetcher for the given site. Requests for siteOrigin are sent to
// upstreamOrigin when it is set; responses still carry the public URL.
func NewClient(log zerolog.Logger, siteOrigin, upstreamOrigin string, httpClient *http.Client, m *metrics.Metrics) (*Client, error) {
	c := &Client{
		log:     log.With().Str("module", "fetch").Logger(),
		http:    httpClient,
		metrics: m,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}

	var err error
	if c.site, err = url.Parse(strings.TrimRight(siteOrigin, "/")); err != nil {
		return nil, errors.Wrapf(err, "invalid site origin %q", siteOrigin)
	}
	if upstreamOrigin != "" {
		if c.upstream, err = url.Parse(strings.TrimRight(upstreamOrigin, "/")); err != nil {
			return nil, errors.Wrapf(err, "invalid upstream origin %q", upstreamOrigin)
		}
	}

	return c, nil
}

var _ domain.Fetcher = (*Client)(nil)

// SameOrigin reports whether u shares scheme and host with the site
func (c *Client) SameOrigin(u *url.URL) bool {
	return sameOrigin(c.site, u)
}

func sameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// Fetch performs the request and buffers the whole response
func (c *Client) Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("fetch: nil request")
	}

	target := *req.URL
	if c.upstream != nil && c.SameOrigin(req.URL) {
		target.Scheme = c.upstream.Scheme
		target.Host = c.upstream.Host
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "could not build request")
	}

	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}
	StripHopHeaders(httpReq.Header)
	httpReq.Header.Del("Host")
	httpReq.Header.Del("Accept-Encoding")
	if req.OmitCredentials {
		httpReq.Header.Del("Authorization")
		httpReq.Header.Del("Cookie")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if c.metrics != nil {
			c.metrics.FetchErrors.WithLabelValues(string(req.Mode)).Inc()
		}
		c.log.Debug().Err(err).Str("url", req.Key()).Msg("fetch failed")
		return nil, errors.Wrapf(err, "fetch %s", req.Key())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "reading body of %s", req.Key())
	}
	if len(data) > maxBodySize {
		return nil, errors.Errorf("response body of %s exceeds %d bytes", req.Key(), maxBodySize)
	}

	header := resp.Header.Clone()
	StripHopHeaders(header)

	out := &domain.Response{
		URL:        req.Key(),
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     header,
		Body:       data,
		Type:       c.responseType(req),
		StoredAt:   time.Now(),
	}

	if c.metrics != nil {
		c.metrics.FetchDuration.WithLabelValues(string(out.Type)).Observe(time.Since(start).Seconds())
	}

	c.log.Trace().Str("url", out.URL).Int("status", out.StatusCode).Str("type", string(out.Type)).Msg("fetched")

	return out, nil
}

func (c *Client) responseType(req *domain.Request) domain.ResponseType {
	switch {
	case c.SameOrigin(req.URL):
		return domain.ResponseBasic
	case req.Mode == domain.ModeNoCORS:
		return domain.ResponseOpaque
	default:
		return domain.ResponseCORS
	}
}
