package media

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	imageExtRe = regexp.MustCompile(`(?i)\.(png|jpe?g|gif|webp|svg|avif|ico|bmp)(\?.*)?$`)
	absoluteRe = regexp.MustCompile(`(?i)^https?://`)
)

// Resolver normalizes media paths against the configured API origin
type Resolver struct {
	apiOrigin  string
	pageOrigin string
}

// NewResolver creates a resolver. apiOrigin may be empty, absolute, or path-only
// ("/backend") when the API sits behind a reverse proxy on the page origin.
func NewResolver(apiOrigin, pageOrigin string) *Resolver {
	return &Resolver{
		apiOrigin:  strings.TrimRight(strings.TrimSpace(apiOrigin), "/"),
		pageOrigin: strings.TrimRight(strings.TrimSpace(pageOrigin), "/"),
	}
}

func (r *Resolver) APIOrigin() string {
	return r.apiOrigin
}

// Resolve returns the canonical URL for a media path. It never panics and
// falls back to the input when a URL cannot be parsed.
func (r *Resolver) Resolve(input string) (out string) {
	defer func() {
		if recover() != nil {
			out = input
		}
	}()

	if input == "" {
		return ""
	}

	lower := strings.ToLower(input)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "blob:") {
		return input
	}

	if !absoluteRe.MatchString(input) {
		return r.resolveRelative(input)
	}

	return r.resolveAbsolute(input)
}

func (r *Resolver) resolveRelative(input string) string {
	if r.apiOrigin == "" {
		return input
	}

	if strings.HasPrefix(input, "/") {
		if strings.HasPrefix(input, "/api/") || strings.HasPrefix(input, "/uploads/") {
			return r.apiOrigin + input
		}
		return input
	}

	return r.apiOrigin + "/" + input
}

func (r *Resolver) resolveAbsolute(input string) string {
	if !IsUploadPath(input) || r.apiOrigin == "" {
		return input
	}

	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return input
	}

	origin := u.Scheme + "://" + u.Host
	host := u.Hostname()

	rewrite := host == "localhost" || host == "127.0.0.1" ||
		(r.pageOrigin != "" && origin == r.pageOrigin && r.apiOrigin != r.pageOrigin)
	if !rewrite {
		return input
	}

	rest := u.EscapedPath()
	if u.RawQuery != "" {
		rest += "?" + u.RawQuery
	}

	// path-only origins are spliced in front of the original path
	if strings.HasPrefix(r.apiOrigin, "/") {
		return r.apiOrigin + rest
	}

	api, err := url.Parse(r.apiOrigin)
	if err != nil || api.Host == "" {
		return input
	}
	return api.Scheme + "://" + api.Host + strings.TrimRight(api.EscapedPath(), "/") + rest
}

// IsUploadPath reports whether a path or URL points at an uploaded file
func IsUploadPath(s string) bool {
	return strings.Contains(s, "/api/upload/file") || strings.Contains(s, "/uploads/")
}

// LooksLikeImage reports whether a resolved URL is worth prefetching as an image
func LooksLikeImage(s string) bool {
	if s == "" {
		return false
	}
	if IsUploadPath(s) {
		return true
	}
	return imageExtRe.MatchString(s)
}
