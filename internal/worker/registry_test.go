package worker

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/memstore"
)

func newRegistry(storage domain.CacheStorage, net *fakeNetwork, version string, enabled bool) *Registry {
	return NewRegistry(zerolog.Nop(), storage, net, nil, Options{Prefix: "clubsite", Version: version, SiteOrigin: site}, enabled)
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	net := newFakeNetwork()
	r := newRegistry(memstore.NewStorage(zerolog.Nop()), net, "v1", true)

	first, err := r.Register(ctx)
	require.NoError(t, err)
	second, err := r.Register(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, net.callCount(site+"/index.html"))
}

func TestRegistry_NewVersionRetiresPrevious(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()

	old, err := newRegistry(storage, net, "v1", true).Register(ctx)
	require.NoError(t, err)

	r := newRegistry(storage, net, "v2", true)
	r.active = old

	current, err := r.Register(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateRedundant, old.State())
	assert.Equal(t, "v2", current.Version())

	names, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"clubsite-core-v2"}, names)
}

func TestRegistry_DisabledIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()
	r := newRegistry(storage, net, "v1", false)

	w, err := r.Register(ctx)
	require.NoError(t, err)
	assert.Nil(t, w)

	names, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	resp, route, err := r.Handle(ctx, navigation(t, "/"))
	require.NoError(t, err)
	assert.Equal(t, StrategyPassthrough, route.Strategy)
	assert.Equal(t, "body:"+site+"/", string(resp.Body))
}

func TestRegistry_UnregisterAndClearAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	r := newRegistry(storage, newFakeNetwork(), "v1", true)

	w, err := r.Register(ctx)
	require.NoError(t, err)
	_, err = storage.Open(ctx, "clubsite-prefetch")
	require.NoError(t, err)

	assert.True(t, r.Unregister())
	assert.False(t, r.Unregister())
	assert.Equal(t, StateRedundant, w.State())
	assert.Nil(t, r.Active())

	deleted, err := r.ClearAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"clubsite-core-v1", "clubsite-prefetch"}, deleted)

	names, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

// gatedNetwork holds every fetch until release is closed
type gatedNetwork struct {
	*fakeNetwork
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedNetwork) Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.fakeNetwork.Fetch(ctx, req)
}

func TestRegistry_ActiveIsReadableDuringInstall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	net := &gatedNetwork{fakeNetwork: newFakeNetwork(), entered: make(chan struct{}), release: make(chan struct{})}
	r := NewRegistry(zerolog.Nop(), memstore.NewStorage(zerolog.Nop()), net, nil, Options{Prefix: "clubsite", Version: "v1", SiteOrigin: site}, true)

	done := make(chan error, 1)
	go func() {
		_, err := r.Register(ctx)
		done <- err
	}()
	<-net.entered

	read := make(chan *Worker, 1)
	go func() { read <- r.Active() }()

	select {
	case w := <-read:
		assert.Nil(t, w)
	case <-time.After(2 * time.Second):
		t.Fatal("Active blocked behind a running install")
	}

	close(net.release)
	require.NoError(t, <-done)
	assert.NotNil(t, r.Active())
}

func TestRegistry_ConcurrentRegisterInstallsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	net := newFakeNetwork()
	r := newRegistry(memstore.NewStorage(zerolog.Nop()), net, "v1", true)

	var wg sync.WaitGroup
	workers := make([]*Worker, 8)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := r.Register(ctx)
			assert.NoError(t, err)
			workers[i] = w
		}()
	}
	wg.Wait()

	for _, w := range workers {
		assert.Same(t, workers[0], w)
	}
	assert.Equal(t, 1, net.callCount(site+"/index.html"))
}

func TestRegistry_FailedInstallBacksOff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	net := newFakeNetwork()
	net.status[site+"/favicon.ico"] = http.StatusInternalServerError
	r := newRegistry(memstore.NewStorage(zerolog.Nop()), net, "v1", true)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	_, err := r.Register(ctx)
	require.Error(t, err)
	_, err = r.Register(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, net.callCount(site+"/favicon.ico"))

	net.mu.Lock()
	delete(net.status, site+"/favicon.ico")
	net.mu.Unlock()
	now = now.Add(installBackoff)

	w, err := r.Register(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateActive, w.State())
	assert.Equal(t, 2, net.callCount(site+"/favicon.ico"))
}
