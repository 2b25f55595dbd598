package domain

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by repositories when a key has no value
var ErrNotFound = errors.New("not found")

// ResponseType mirrors the fetch response types the caching layer cares about
type ResponseType string

const (
	// ResponseBasic is a same-origin response
	ResponseBasic ResponseType = "basic"
	// ResponseCORS is a cross-origin response whose status is readable
	ResponseCORS ResponseType = "cors"
	// ResponseOpaque is a cross-origin no-cors response; its status cannot be trusted
	ResponseOpaque ResponseType = "opaque"
)

// Response is a fully buffered HTTP response as stored in a cache partition
type Response struct {
	URL        string
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	Type       ResponseType
	StoredAt   time.Time
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Cacheable reports whether the response may be written to a cache partition.
// Error bodies are never stored; opaque responses are stored as-is. Responses
// marked private or no-store stay out of the shared partitions.
func (r *Response) Cacheable() bool {
	if r == nil {
		return false
	}
	if r.Private() {
		return false
	}
	return r.OK() || r.Type == ResponseOpaque
}

// Private reports a Cache-Control of private or no-store
func (r *Response) Private() bool {
	if r == nil || r.Header == nil {
		return false
	}
	for _, value := range r.Header.Values("Cache-Control") {
		for _, directive := range strings.Split(value, ",") {
			name, _, _ := strings.Cut(strings.TrimSpace(directive), "=")
			switch strings.ToLower(name) {
			case "private", "no-store":
				return true
			}
		}
	}
	return false
}

// Shareable returns a copy safe to replay to any visitor: Set-Cookie never
// leaves the response that issued it.
func (r *Response) Shareable() *Response {
	c := r.Clone()
	if c != nil && c.Header != nil {
		c.Header.Del("Set-Cookie")
	}
	return c
}

// Clone returns a deep copy so cached bytes are never shared with callers
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	c.Body = append([]byte(nil), r.Body...)
	return &c
}

// CacheStorage is the set of named caches (the browser's `caches` object)
type CacheStorage interface {
	// Open returns the named cache, creating it when missing
	Open(ctx context.Context, name string) (Cache, error)
	Has(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) (bool, error)
	// Keys lists cache names in creation order
	Keys(ctx context.Context) ([]string, error)
	// Match looks the request URL up across every cache
	Match(ctx context.Context, url string) (*Response, bool, error)
}

// Cache is a single named partition keyed by request URL
type Cache interface {
	Name() string
	Match(ctx context.Context, url string) (*Response, bool, error)
	Put(ctx context.Context, url string, resp *Response) error
	Delete(ctx context.Context, url string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// PrefsRepo is the small persistent key-value store shared by the CLI and gateway
type PrefsRepo interface {
	Get(ctx context.Context, key PrefKey) (string, error)
	Set(ctx context.Context, key PrefKey, value string) error
	Delete(ctx context.Context, key PrefKey) error
}

type PrefKey string

const (
	PrefToken         PrefKey = "token"
	PrefLastCacheWarm PrefKey = "lastCacheWarm"
	PrefLanguage      PrefKey = "language"
)

// CacheName builds a versioned partition name, e.g. clubsite-core-v3
func CacheName(prefix, role, version string) string {
	return prefix + "-" + role + "-" + version
}

// PrefetchCacheName is the single-generation store filled by cache warming
func PrefetchCacheName(prefix string) string {
	return prefix + "-prefetch"
}
