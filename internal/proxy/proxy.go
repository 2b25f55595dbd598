// Package proxy forwards API calls to the protected backend deployment.
package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/fetch"
)

const DefaultBypassHeader = "x-vercel-protection-bypass"

type Handler struct {
	log    zerolog.Logger
	cfg    domain.ProxyConfig
	prefix string
	client *http.Client
}

// NewHandler forwards requests under prefix (e.g. "/proxy") to cfg.BackendURL
func NewHandler(log zerolog.Logger, cfg domain.ProxyConfig, prefix string, client *http.Client) *Handler {
	if cfg.BypassHeader == "" {
		cfg.BypassHeader = DefaultBypassHeader
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Handler{
		log:    log.With().Str("module", "proxy").Logger(),
		cfg:    cfg,
		prefix: strings.TrimRight(prefix, "/"),
		client: client,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.BackendURL == "" {
		writeError(w, http.StatusInternalServerError, "proxy backend is not configured")
		return
	}

	target, err := h.target(r.URL)
	if err != nil {
		h.log.Error().Err(err).Msg("invalid backend URL")
		writeError(w, http.StatusInternalServerError, "proxy backend is not configured")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadGateway, "could not read request body")
		return
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusBadGateway, "could not build upstream request")
		return
	}

	out.Header = r.Header.Clone()
	fetch.StripHopHeaders(out.Header)
	out.Header.Del("Host")
	if h.cfg.BypassSecret != "" {
		out.Header.Set(h.cfg.BypassHeader, h.cfg.BypassSecret)
	}
	if len(body) > 0 && out.Header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(out)
	if err != nil {
		h.log.Warn().Err(err).Str("method", r.Method).Str("target", target).Msg("proxy forward failed")
		writeError(w, http.StatusBadGateway, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	header := resp.Header.Clone()
	fetch.StripHopHeaders(header)
	for k, v := range header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.log.Debug().Err(err).Msg("proxy response copy interrupted")
	}
}

func (h *Handler) target(in *url.URL) (string, error) {
	backend, err := url.Parse(strings.TrimRight(h.cfg.BackendURL, "/"))
	if err != nil {
		return "", err
	}

	path := strings.TrimPrefix(in.Path, h.prefix)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u := *backend
	u.Path = backend.Path + path
	u.RawPath = ""
	u.RawQuery = in.RawQuery
	return u.String(), nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
