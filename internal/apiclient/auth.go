package apiclient

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/varoOP/clubgate/internal/domain"
	"golang.org/x/text/language"
)

type Auth struct {
	c *Client
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token and stores it
func (a *Auth) Login(ctx context.Context, creds Credentials) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	env, err := a.c.Do(ctx, http.MethodPost, "/api/auth/login", nil, creds)
	if err != nil {
		return "", err
	}

	token := env.Get("data.token").String()
	if token == "" {
		token = env.Get("token").String()
	}
	if token == "" {
		return "", errors.New("login response did not contain a token")
	}

	if a.c.prefs != nil {
		if err := a.c.prefs.Set(ctx, domain.PrefToken, token); err != nil {
			return "", errors.Wrap(err, "could not store token")
		}
	}

	return token, nil
}

// Me returns the current session's profile
func (a *Auth) Me(ctx context.Context) (*Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	return a.c.Do(ctx, http.MethodGet, "/api/auth/me", nil, nil)
}

// Logout forgets the stored token
func (a *Auth) Logout(ctx context.Context) error {
	if a.c.prefs == nil {
		return nil
	}
	return a.c.prefs.Delete(ctx, domain.PrefToken)
}

// SetLanguage validates a BCP 47 tag and stores it as the UI language
func SetLanguage(ctx context.Context, prefs domain.PrefsRepo, tag string) (string, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return "", errors.Wrapf(err, "invalid language %q", tag)
	}

	canonical := t.String()
	if err := prefs.Set(ctx, domain.PrefLanguage, canonical); err != nil {
		return "", errors.Wrap(err, "could not store language")
	}

	return canonical, nil
}
