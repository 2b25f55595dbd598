package consent

import (
	"net/http"
	"net/url"
	"time"

	"github.com/varoOP/clubgate/internal/domain"
)

const DefaultCookieName = "cache_consent"

// Store reads and writes the visitor's consent decision
type Store interface {
	// Name is the cookie carrying the decision
	Name() string
	Get(r *http.Request) domain.ConsentState
	Set(w http.ResponseWriter, state domain.ConsentState, ttl time.Duration)
}

// CookieStore keeps the decision in a single site-wide cookie
type CookieStore struct {
	name   string
	secure bool
	now    func() time.Time
}

func NewCookieStore(name string, secure bool) *CookieStore {
	if name == "" {
		name = DefaultCookieName
	}
	return &CookieStore{name: name, secure: secure, now: time.Now}
}

func (s *CookieStore) Name() string {
	return s.name
}

func (s *CookieStore) Get(r *http.Request) domain.ConsentState {
	c, err := r.Cookie(s.name)
	if err != nil {
		return domain.ConsentAbsent
	}

	v, err := url.QueryUnescape(c.Value)
	if err != nil {
		return domain.ConsentAbsent
	}

	return domain.ParseConsentState(v)
}

func (s *CookieStore) Set(w http.ResponseWriter, state domain.ConsentState, ttl time.Duration) {
	http.SetCookie(w, s.cookie(state, ttl))
}

func (s *CookieStore) cookie(state domain.ConsentState, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     s.name,
		Value:    url.QueryEscape(string(state)),
		Path:     "/",
		Expires:  s.now().Add(ttl).UTC(),
		MaxAge:   int(ttl / time.Second),
		SameSite: http.SameSiteLaxMode,
		Secure:   s.secure,
	}
}
