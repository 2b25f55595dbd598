package worker

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/memstore"
)

const site = "https://club.example.com"

// fakeNetwork answers every URL with 200 and "body:<url>" unless told otherwise
type fakeNetwork struct {
	mu      sync.Mutex
	offline bool
	status  map[string]int
	body    map[string]string
	header  map[string]http.Header
	calls   []string
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{status: map[string]int{}, body: map[string]string{}, header: map[string]http.Header{}}
}

func (f *fakeNetwork) Fetch(_ context.Context, req *domain.Request) (*domain.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := req.Key()
	f.calls = append(f.calls, key)
	if f.offline {
		return nil, errors.New("network unreachable")
	}

	status := http.StatusOK
	if s, ok := f.status[key]; ok {
		status = s
	}
	body := "body:" + key
	if b, ok := f.body[key]; ok {
		body = b
	}

	header := http.Header{}
	if h, ok := f.header[key]; ok {
		header = h.Clone()
	}

	typ := domain.ResponseBasic
	if u, _ := url.Parse(site); req.URL.Host != u.Host {
		typ = domain.ResponseCORS
		if req.Mode == domain.ModeNoCORS {
			typ = domain.ResponseOpaque
		}
	}

	return &domain.Response{
		URL:        key,
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       []byte(body),
		Type:       typ,
	}, nil
}

func (f *fakeNetwork) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeNetwork) setBody(key, body string) {
	f.mu.Lock()
	f.body[key] = body
	f.mu.Unlock()
}

func (f *fakeNetwork) setHeader(key, name, value string) {
	f.mu.Lock()
	if f.header[key] == nil {
		f.header[key] = http.Header{}
	}
	f.header[key].Set(name, value)
	f.mu.Unlock()
}

func (f *fakeNetwork) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == key {
			n++
		}
	}
	return n
}

func newActiveWorker(t *testing.T, storage domain.CacheStorage, net *fakeNetwork, version string) *Worker {
	t.Helper()

	w, err := New(zerolog.Nop(), storage, net, nil, Options{Prefix: "clubsite", Version: version, SiteOrigin: site})
	require.NoError(t, err)
	require.NoError(t, w.Install(context.Background()))
	_, err = w.Activate(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateActive, w.State())
	return w
}

func navigation(t *testing.T, path string) *domain.Request {
	t.Helper()
	req, err := domain.NewRequest(site + path)
	require.NoError(t, err)
	req.Mode = domain.ModeNavigate
	req.Destination = domain.DestinationDocument
	return req
}

func cacheKeys(t *testing.T, storage domain.CacheStorage, name string) []string {
	t.Helper()
	c, err := storage.Open(context.Background(), name)
	require.NoError(t, err)
	keys, err := c.Keys(context.Background())
	require.NoError(t, err)
	sort.Strings(keys)
	return keys
}

func TestWorker_InstallPopulatesCoreOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	w := newActiveWorker(t, storage, newFakeNetwork(), "v1")

	want := []string{
		site + "/",
		site + "/favicon.ico",
		site + "/index.html",
		site + "/manifest.json",
		site + "/runtime-config.js",
	}
	assert.Equal(t, want, cacheKeys(t, storage, "clubsite-core-v1"))

	names, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"clubsite-core-v1"}, names)

	_, _, err = w.Handle(ctx, navigation(t, "/events"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		site + "/",
		site + "/events",
		site + "/favicon.ico",
		site + "/index.html",
		site + "/manifest.json",
		site + "/runtime-config.js",
	}, cacheKeys(t, storage, "clubsite-core-v1"))
}

func TestWorker_InstallFailureIsRedundant(t *testing.T) {
	t.Parallel()

	net := newFakeNetwork()
	net.status[site+"/manifest.json"] = http.StatusNotFound

	w, err := New(zerolog.Nop(), memstore.NewStorage(zerolog.Nop()), net, nil, Options{Prefix: "clubsite", Version: "v1", SiteOrigin: site})
	require.NoError(t, err)

	assert.Error(t, w.Install(context.Background()))
	assert.Equal(t, StateRedundant, w.State())

	_, err = w.Activate(context.Background())
	assert.Error(t, err)
}

func TestWorker_ActivateEvictsOldVersions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())

	for _, name := range []string{"clubsite-core-v1", "clubsite-images-v1", "clubsite-prefetch", "other-app-cache"} {
		_, err := storage.Open(ctx, name)
		require.NoError(t, err)
	}

	w, err := New(zerolog.Nop(), storage, newFakeNetwork(), nil, Options{Prefix: "clubsite", Version: "v2", SiteOrigin: site})
	require.NoError(t, err)
	require.NoError(t, w.Install(ctx))

	_, err = storage.Open(ctx, "clubsite-images-v2")
	require.NoError(t, err)

	deleted, err := w.Activate(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"clubsite-core-v1", "clubsite-images-v1"}, deleted)

	names, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"clubsite-prefetch", "other-app-cache", "clubsite-core-v2", "clubsite-images-v2"}, names)
}

func TestWorker_VersionSuffixIsExact(t *testing.T) {
	t.Parallel()

	w, err := New(zerolog.Nop(), memstore.NewStorage(zerolog.Nop()), newFakeNetwork(), nil, Options{Prefix: "clubsite", Version: "v1", SiteOrigin: site})
	require.NoError(t, err)

	assert.True(t, w.isStale("clubsite-core-v10"))
	assert.False(t, w.isStale("clubsite-core-v1"))
	assert.False(t, w.isStale("clubsite-prefetch"))
}

func TestWorker_NavigationOfflineFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()
	net.setBody(site+"/index.html", "<html>shell</html>")

	w := newActiveWorker(t, storage, net, "v1")
	net.setOffline(true)

	resp, route, err := w.Handle(ctx, navigation(t, "/gallery/42"))
	require.NoError(t, err)
	assert.Equal(t, StrategyNetworkFirst, route.Strategy)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html>shell</html>", string(resp.Body))
}

func TestWorker_NavigationPrefersExactMatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	net := newFakeNetwork()
	w := newActiveWorker(t, memstore.NewStorage(zerolog.Nop()), net, "v1")

	_, _, err := w.Handle(ctx, navigation(t, "/news"))
	require.NoError(t, err)

	net.setOffline(true)
	resp, _, err := w.Handle(ctx, navigation(t, "/news"))
	require.NoError(t, err)
	assert.Equal(t, "body:"+site+"/news", string(resp.Body))
}

func TestWorker_NetworkFirstOfflineWithoutCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	net := newFakeNetwork()
	w := newActiveWorker(t, memstore.NewStorage(zerolog.Nop()), net, "v1")
	net.setOffline(true)

	req, err := domain.NewRequest("https://api.example.com/api/events?status=upcoming")
	require.NoError(t, err)

	resp, route, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, RoleAPI, route.Role)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "Offline", string(resp.Body))
}

func TestWorker_NetworkFirstDoesNotCacheErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()
	w := newActiveWorker(t, storage, net, "v1")

	key := "https://api.example.com/api/news"
	net.status[key] = http.StatusInternalServerError

	req, err := domain.NewRequest(key)
	require.NoError(t, err)

	resp, _, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	_, ok, err := storage.Match(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorker_CacheFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()
	w := newActiveWorker(t, storage, net, "v1")

	key := "https://cdn.example.com/logo.png"
	req, err := domain.NewRequest(key)
	require.NoError(t, err)
	req.Mode = domain.ModeNoCORS

	first, _, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseOpaque, first.Type)

	net.setOffline(true)
	second, route, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StrategyCacheFirst, route.Strategy)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 1, net.callCount(key))
	assert.Equal(t, []string{key}, cacheKeys(t, storage, "clubsite-images-v1"))
}

func TestWorker_CacheFirstMissSurfacesNetworkError(t *testing.T) {
	t.Parallel()
	net := newFakeNetwork()
	w := newActiveWorker(t, memstore.NewStorage(zerolog.Nop()), net, "v1")
	net.setOffline(true)

	req, err := domain.NewRequest(site + "/missing.webp")
	require.NoError(t, err)

	_, _, err = w.Handle(context.Background(), req)
	assert.Error(t, err)
}

func TestWorker_StaleWhileRevalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()
	w := newActiveWorker(t, storage, net, "v1")

	key := site + "/assets/app.js"
	req, err := domain.NewRequest(key)
	require.NoError(t, err)

	net.setBody(key, "one")
	first, route, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StrategyStaleWhileRevalidate, route.Strategy)
	assert.Equal(t, "one", string(first.Body))

	net.setBody(key, "two")
	stale, _, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "one", string(stale.Body))

	w.Wait()

	fresh, _, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "two", string(fresh.Body))
	w.Wait()
}

func TestWorker_StaleWhileRevalidateOffline(t *testing.T) {
	t.Parallel()
	net := newFakeNetwork()
	w := newActiveWorker(t, memstore.NewStorage(zerolog.Nop()), net, "v1")
	net.setOffline(true)

	req, err := domain.NewRequest(site + "/assets/never-seen.css")
	require.NoError(t, err)

	resp, _, err := w.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWorker_AuthenticatedRequestsBypassRuntimeCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()
	w := newActiveWorker(t, storage, net, "v1")

	key := site + "/api/events?status=upcoming"
	req, err := domain.NewRequest(key)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer member-token")

	net.setBody(key, "mine")
	resp, route, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StrategyStaleWhileRevalidate, route.Strategy)
	assert.Equal(t, "mine", string(resp.Body))

	assert.Empty(t, cacheKeys(t, storage, w.CacheName(RoleRuntime)))

	net.setBody(key, "updated")
	resp, _, err = w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "updated", string(resp.Body))
	assert.Equal(t, 2, net.callCount(key))
}

func TestWorker_RuntimeCopyReplacesShellCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()

	key := site + "/manifest.json"
	net.setBody(key, "install")
	w := newActiveWorker(t, storage, net, "v1")

	req, err := domain.NewRequest(key)
	require.NoError(t, err)
	require.Equal(t, StrategyStaleWhileRevalidate, Classify(req).Strategy)

	net.setBody(key, "deploy2")

	first, _, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "install", string(first.Body))
	w.Wait()

	for range 3 {
		resp, _, err := w.Handle(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "deploy2", string(resp.Body))
		w.Wait()
	}

	core, err := storage.Open(ctx, w.CacheName(RoleCore))
	require.NoError(t, err)
	shell, ok, err := core.Match(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "install", string(shell.Body))
}

func TestWorker_SharedCachesNeverReplaySetCookie(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()
	w := newActiveWorker(t, storage, net, "v1")

	key := site + "/assets/app.js"
	net.setHeader(key, "Set-Cookie", "session=alice; Path=/")
	req, err := domain.NewRequest(key)
	require.NoError(t, err)

	first, _, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "session=alice; Path=/", first.Header.Get("Set-Cookie"))

	second, _, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, second.Header.Values("Set-Cookie"))
	w.Wait()

	stored, ok, err := storage.Match(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, stored.Header.Values("Set-Cookie"))
}

func TestWorker_PrivateResponsesAreNotStored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()
	w := newActiveWorker(t, storage, net, "v1")

	tests := []struct {
		name string
		key  string
		cc   string
	}{
		{name: "private", key: site + "/assets/profile.js", cc: "private, max-age=60"},
		{name: "no-store", key: site + "/assets/session.js", cc: "no-store"},
	}

	for _, tt := range tests {
		net.setHeader(tt.key, "Cache-Control", tt.cc)
		req, err := domain.NewRequest(tt.key)
		require.NoError(t, err)

		resp, _, err := w.Handle(ctx, req)
		require.NoError(t, err, tt.name)
		assert.Equal(t, http.StatusOK, resp.StatusCode, tt.name)

		_, ok, err := storage.Match(ctx, tt.key)
		require.NoError(t, err, tt.name)
		assert.False(t, ok, tt.name)
	}
}

func TestWorker_CookieRequestsAreNotShared(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()
	w := newActiveWorker(t, storage, net, "v1")

	key := site + "/assets/dashboard.js"
	alice, err := domain.NewRequest(key)
	require.NoError(t, err)
	alice.Header.Set("Cookie", "session=alice")

	net.setBody(key, "alice")
	resp, _, err := w.Handle(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(resp.Body))

	bob, err := domain.NewRequest(key)
	require.NoError(t, err)
	bob.Header.Set("Cookie", "session=bob")

	net.setBody(key, "bob")
	resp, _, err = w.Handle(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, "bob", string(resp.Body))

	w.Wait()
	_, ok, err := storage.Match(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorker_NonGetPassesThrough(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := memstore.NewStorage(zerolog.Nop())
	net := newFakeNetwork()
	w := newActiveWorker(t, storage, net, "v1")

	req, err := domain.NewRequest("https://api.example.com/api/events")
	require.NoError(t, err)
	req.Method = http.MethodPost

	_, route, err := w.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StrategyPassthrough, route.Strategy)

	_, ok, err := storage.Match(ctx, req.Key())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorker_HandleRequiresActive(t *testing.T) {
	t.Parallel()

	w, err := New(zerolog.Nop(), memstore.NewStorage(zerolog.Nop()), newFakeNetwork(), nil, Options{Prefix: "clubsite", Version: "v1", SiteOrigin: site})
	require.NoError(t, err)

	_, _, err = w.Handle(context.Background(), navigation(t, "/"))
	assert.ErrorIs(t, err, ErrNotActive)
}
