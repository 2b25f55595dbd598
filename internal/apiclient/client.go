// Package apiclient is the REST client for the club API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/varoOP/clubgate/internal/domain"
)

// ErrUnauthorized is returned after a 401 cleared the stored session
var ErrUnauthorized = errors.New("unauthorized")

const (
	LoginRoute  = "/login"
	authTimeout = 8 * time.Second
)

// Envelope is a raw API response
type Envelope struct {
	StatusCode int
	Body       json.RawMessage
}

// Get reads a value from the body with a gjson path, e.g. "data.items.0.title"
func (e *Envelope) Get(path string) gjson.Result {
	return gjson.GetBytes(e.Body, path)
}

// Data returns the conventional "data" member
func (e *Envelope) Data() gjson.Result {
	return e.Get("data")
}

// StatusError is returned for non-2xx responses other than 401
type StatusError struct {
	StatusCode int
	Message    string
	Envelope   *Envelope
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api returned %d", e.StatusCode)
}

// bearerTransport attaches the stored token and language to every request
type bearerTransport struct {
	Transport http.RoundTripper
	prefs     domain.PrefsRepo
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Transport == nil {
		t.Transport = http.DefaultTransport
	}
	if t.prefs == nil {
		return t.Transport.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	if token, err := t.prefs.Get(req.Context(), domain.PrefToken); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if lang, err := t.prefs.Get(req.Context(), domain.PrefLanguage); err == nil && lang != "" && req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", lang)
	}

	return t.Transport.RoundTrip(req)
}

type Client struct {
	log   zerolog.Logger
	http  *http.Client
	base  string
	prefs domain.PrefsRepo

	onUnauthorized func(loginRoute string)

	Events       *Resource
	Sports       *Resource
	SocialWork   *Resource
	Gallery      *Resource
	Members      *Resource
	News         *Resource
	SliderImages *Resource
	Pages        *Pages
	Settings     *Settings
	Public       *Public
	Uploads      *Uploads
	Auth         *Auth
}

// New creates a client for baseURL. baseURL may be path-only when the API is
// served from the same origin.
func New(log zerolog.Logger, baseURL string, prefs domain.PrefsRepo, httpClient *http.Client) *Client {
	var inner http.RoundTripper
	timeout := time.Duration(0)
	if httpClient != nil {
		inner = httpClient.Transport
		timeout = httpClient.Timeout
	}
	if inner == nil {
		inner = http.DefaultTransport
	}

	c := &Client{
		log:   log.With().Str("module", "apiclient").Logger(),
		base:  strings.TrimRight(baseURL, "/"),
		prefs: prefs,
		http: &http.Client{
			Transport: &bearerTransport{Transport: inner, prefs: prefs},
			Timeout:   timeout,
		},
	}

	c.Events = &Resource{c: c, path: "/api/events"}
	c.Sports = &Resource{c: c, path: "/api/sports"}
	c.SocialWork = &Resource{c: c, path: "/api/social-work"}
	c.Gallery = &Resource{c: c, path: "/api/gallery"}
	c.Members = &Resource{c: c, path: "/api/members"}
	c.News = &Resource{c: c, path: "/api/news"}
	c.SliderImages = &Resource{c: c, path: "/api/slider-images"}
	c.Pages = &Pages{c: c}
	c.Settings = &Settings{c: c}
	c.Public = &Public{c: c}
	c.Uploads = &Uploads{c: c}
	c.Auth = &Auth{c: c}

	return c
}

// OnUnauthorized sets the hook run after a 401 cleared the token
func (c *Client) OnUnauthorized(fn func(loginRoute string)) {
	c.onUnauthorized = fn
}

func (c *Client) BaseURL() string {
	return c.base
}

// Do sends one request. body is JSON-encoded unless it is nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*Envelope, error) {
	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "could not encode request body")
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	return c.send(ctx, method, path, query, reader, contentType)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*Envelope, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "could not read response body")
	}

	env := &Envelope{StatusCode: resp.StatusCode, Body: data}

	c.log.Trace().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api call")

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.unauthorized(ctx)
		return env, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return env, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    gjson.GetBytes(data, "message").String(),
			Envelope:   env,
		}
	}

	return env, nil
}

func (c *Client) unauthorized(ctx context.Context) {
	if c.prefs != nil {
		if err := c.prefs.Delete(ctx, domain.PrefToken); err != nil {
			c.log.Warn().Err(err).Msg("could not clear token")
		}
	}

	c.log.Info().Msg("session expired, token cleared")

	if c.onUnauthorized != nil {
		c.onUnauthorized(LoginRoute)
	}
}
