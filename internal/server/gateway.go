package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/fetch"
	"github.com/varoOP/clubgate/internal/seo"
	"github.com/varoOP/clubgate/internal/worker"
)

const maxRequestBody = 8 << 20

// gateway serves every page request, through the worker when the visitor consented
func (s *Server) gateway(c echo.Context) error {
	r := c.Request()
	ctx := r.Context()

	req, err := s.toRequest(r)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var (
		resp  *domain.Response
		route = worker.Route{Strategy: worker.StrategyPassthrough}
	)

	if s.useWorker(r, req) {
		if isNavigation(req) {
			if _, err := s.deps.Registry.Register(ctx); err != nil {
				s.log.Warn().Err(err).Msg("worker registration failed")
			}
		}
		resp, route, err = s.deps.Registry.Handle(ctx, req)
	} else {
		resp, err = s.deps.Fetcher.Fetch(ctx, req)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("url", req.Key()).Msg("upstream unavailable")
		return echo.NewHTTPError(http.StatusBadGateway, "upstream unavailable")
	}

	if isNavigation(req) {
		resp = s.applySEO(c, req, resp)
	}

	return writeResponse(c, resp, route)
}

func (s *Server) useWorker(r *http.Request, req *domain.Request) bool {
	return s.cfg.IsProduction() &&
		s.deps.Registry != nil &&
		req.IsGet() &&
		s.consentAccepted(r)
}

func (s *Server) toRequest(r *http.Request) (*domain.Request, error) {
	req, err := domain.NewRequest(strings.TrimRight(s.cfg.SiteOrigin, "/") + r.URL.RequestURI())
	if err != nil {
		return nil, errors.Wrap(err, "invalid request url")
	}

	req.Method = r.Method
	req.Header = r.Header.Clone()
	s.dropConsentCookie(req.Header)
	req.Destination = domain.Destination(r.Header.Get("Sec-Fetch-Dest"))
	req.Mode = requestMode(r)

	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			return nil, errors.Wrap(err, "could not read request body")
		}
		req.Body = body
	}

	return req, nil
}

// dropConsentCookie keeps the gateway's own cookie away from upstream, so any
// Cookie header left on the request belongs to the site itself
func (s *Server) dropConsentCookie(h http.Header) {
	if s.deps.Consent == nil || h.Get("Cookie") == "" {
		return
	}

	name := s.deps.Consent.Name()
	var kept []string
	for _, c := range (&http.Request{Header: h}).Cookies() {
		if c.Name != name {
			kept = append(kept, c.String())
		}
	}

	if len(kept) == 0 {
		h.Del("Cookie")
		return
	}
	h.Set("Cookie", strings.Join(kept, "; "))
}

func requestMode(r *http.Request) domain.RequestMode {
	switch mode := domain.RequestMode(r.Header.Get("Sec-Fetch-Mode")); mode {
	case domain.ModeNavigate, domain.ModeSameOrigin, domain.ModeCORS, domain.ModeNoCORS:
		return mode
	}

	if r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html") {
		return domain.ModeNavigate
	}
	return domain.ModeSameOrigin
}

func isNavigation(req *domain.Request) bool {
	return req.IsGet() && (req.Mode == domain.ModeNavigate || req.Destination == domain.DestinationDocument)
}

// applySEO rewrites the head of an HTML page; any failure leaves the page untouched
func (s *Server) applySEO(c echo.Context, req *domain.Request, resp *domain.Response) *domain.Response {
	if s.deps.SEO == nil || !resp.OK() || !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return resp
	}

	meta := s.deps.SEO.Resolve(c.Request().Context(), PageSlug(req.URL.Path), domain.SEOMeta{})
	if meta.IsZero() {
		return resp
	}

	body, err := seo.ApplyHTML(resp.Body, meta)
	if err != nil {
		s.log.Debug().Err(err).Str("url", req.Key()).Msg("could not apply seo")
		return resp
	}

	out := resp.Clone()
	out.Body = body
	return out
}

// PageSlug maps a site path to the page whose SEO settings apply to it
func PageSlug(path string) string {
	path = strings.Trim(path, "/")
	if path == "" || path == "index.html" {
		return "home"
	}
	if i := strings.Index(path, "/"); i >= 0 {
		path = path[:i]
	}
	return path
}

func writeResponse(c echo.Context, resp *domain.Response, route worker.Route) error {
	h := c.Response().Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			h.Add(k, v)
		}
	}
	fetch.StripHopHeaders(h)
	h.Del("Content-Encoding")
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	h.Set("X-Clubgate-Strategy", string(route.Strategy))

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	c.Response().WriteHeader(status)

	if c.Request().Method == http.MethodHead {
		return nil
	}
	_, err := c.Response().Write(resp.Body)
	return err
}
