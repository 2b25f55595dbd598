// Package memstore keeps cache partitions and preferences in process memory.
// It backs ephemeral gateways (storage = "memory") and tests.
package memstore

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/clubgate/internal/domain"
)

// Storage implements domain.CacheStorage in memory
type Storage struct {
	log    zerolog.Logger
	caches *cache.Cache
	seq    atomic.Uint64
}

func NewStorage(log zerolog.Logger) *Storage {
	return &Storage{
		log:    log.With().Str("repo", "memstore").Logger(),
		caches: cache.New(cache.NoExpiration, 0),
	}
}

var _ domain.CacheStorage = (*Storage)(nil)

type partition struct {
	name    string
	seq     uint64
	storage *Storage
	entries *cache.Cache
}

type entry struct {
	resp *domain.Response
	seq  uint64
}

func (s *Storage) Open(_ context.Context, name string) (domain.Cache, error) {
	p := &partition{
		name:    name,
		seq:     s.seq.Add(1),
		storage: s,
		entries: cache.New(cache.NoExpiration, 0),
	}

	// Add fails when the name is taken, in which case the existing partition wins
	if err := s.caches.Add(name, p, cache.NoExpiration); err != nil {
		if existing, ok := s.caches.Get(name); ok {
			return existing.(*partition), nil
		}
		s.caches.Set(name, p, cache.NoExpiration)
	}

	s.log.Trace().Str("cache", name).Msg("Open")
	return p, nil
}

func (s *Storage) Has(_ context.Context, name string) (bool, error) {
	_, ok := s.caches.Get(name)
	return ok, nil
}

func (s *Storage) Delete(_ context.Context, name string) (bool, error) {
	if _, ok := s.caches.Get(name); !ok {
		return false, nil
	}
	s.caches.Delete(name)
	return true, nil
}

func (s *Storage) Keys(_ context.Context) ([]string, error) {
	parts := s.partitions()
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		names = append(names, p.name)
	}
	return names, nil
}

// Match searches partitions in creation order
func (s *Storage) Match(ctx context.Context, url string) (*domain.Response, bool, error) {
	for _, p := range s.partitions() {
		if resp, ok, _ := p.Match(ctx, url); ok {
			return resp, true, nil
		}
	}
	return nil, false, nil
}

func (s *Storage) partitions() []*partition {
	items := s.caches.Items()
	parts := make([]*partition, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.Object.(*partition))
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].seq < parts[j].seq })
	return parts
}

func (p *partition) Name() string {
	return p.name
}

func (p *partition) Match(_ context.Context, url string) (*domain.Response, bool, error) {
	v, ok := p.entries.Get(url)
	if !ok {
		return nil, false, nil
	}
	return v.(entry).resp.Clone(), true, nil
}

func (p *partition) Put(_ context.Context, url string, resp *domain.Response) error {
	if resp == nil {
		return errors.New("nil response")
	}

	stored := resp.Shareable()
	if stored.StoredAt.IsZero() {
		stored.StoredAt = timeNow()
	}
	p.entries.Set(url, entry{resp: stored, seq: p.storage.seq.Add(1)}, cache.NoExpiration)
	return nil
}

func (p *partition) Delete(_ context.Context, url string) (bool, error) {
	if _, ok := p.entries.Get(url); !ok {
		return false, nil
	}
	p.entries.Delete(url)
	return true, nil
}

func (p *partition) Keys(_ context.Context) ([]string, error) {
	type keyed struct {
		url string
		seq uint64
	}

	items := p.entries.Items()
	list := make([]keyed, 0, len(items))
	for url, item := range items {
		list = append(list, keyed{url: url, seq: item.Object.(entry).seq})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	keys := make([]string, 0, len(list))
	for _, k := range list {
		keys = append(keys, k.url)
	}
	return keys, nil
}
