package memstore

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/varoOP/clubgate/internal/domain"
)

var timeNow = time.Now

// Prefs implements domain.PrefsRepo in memory
type Prefs struct {
	values *cache.Cache
}

func NewPrefs() *Prefs {
	return &Prefs{values: cache.New(cache.NoExpiration, 0)}
}

var _ domain.PrefsRepo = (*Prefs)(nil)

func (p *Prefs) Get(_ context.Context, key domain.PrefKey) (string, error) {
	v, ok := p.values.Get(string(key))
	if !ok {
		return "", domain.ErrNotFound
	}
	return v.(string), nil
}

func (p *Prefs) Set(_ context.Context, key domain.PrefKey, value string) error {
	p.values.Set(string(key), value, cache.NoExpiration)
	return nil
}

func (p *Prefs) Delete(_ context.Context, key domain.PrefKey) error {
	p.values.Delete(string(key))
	return nil
}
