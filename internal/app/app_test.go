package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/clubgate/internal/domain"
)

const site = "https://club.example.com"

func newTestApp(t *testing.T, storage string) (*App, *httptest.Server) {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/index.html", "/manifest.json", "/favicon.ico":
			_, _ = w.Write([]byte("static:" + r.URL.Path))
		case "/api/settings":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"logo":"/uploads/logo.png"}}`))
		case "/uploads/logo.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	cfg := &domain.Config{
		Environment:    domain.EnvironmentProduction,
		Storage:        storage,
		DBPath:         filepath.Join(t.TempDir(), "clubgate.db"),
		SiteOrigin:     site,
		UpstreamOrigin: upstream.URL,
		APIBaseURL:     upstream.URL,
		Cache:          domain.CacheConfig{Prefix: "clubsite", Version: "v2"},
		Warm: domain.WarmConfig{
			Endpoints:  []string{"/api/settings"},
			CoreAssets: []string{"/", "/manifest.json"},
		},
	}

	a, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	return a, upstream
}

func TestApp_WarmAndList(t *testing.T) {
	for _, storage := range []string{"memory", "sqlite"} {
		t.Run(storage, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			a, upstream := newTestApp(t, storage)

			summary, err := a.Warm(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, summary.Failed)
			assert.Equal(t, 4, summary.Succeeded, "endpoint, two core assets and the logo")

			_, err = a.Prefs().Get(ctx, domain.PrefLastCacheWarm)
			require.NoError(t, err)

			infos, err := a.Caches(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 1)
			assert.Equal(t, CacheInfo{Name: "clubsite-prefetch", Entries: 4, Current: true}, infos[0])

			assert.Equal(t, upstream.URL+"/uploads/logo.png", a.Resolve("/uploads/logo.png"))
		})
	}
}

func TestApp_ActivateEvictsOldVersions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, _ := newTestApp(t, "memory")

	for _, name := range []string{"clubsite-core-v1", "clubsite-images-v1", "otherapp-core-v1"} {
		_, err := a.storage.Open(ctx, name)
		require.NoError(t, err)
	}

	deleted, err := a.Activate(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"clubsite-core-v1", "clubsite-images-v1"}, deleted)

	infos, err := a.Caches(ctx)
	require.NoError(t, err)

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.ElementsMatch(t, []string{"otherapp-core-v1", "clubsite-core-v2"}, names)

	cleared, err := a.ClearCaches(ctx)
	require.NoError(t, err)
	assert.Len(t, cleared, 2)
}

func TestApp_SetLanguage(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, "memory")

	tag, err := a.SetLanguage(context.Background(), "en-gb")
	require.NoError(t, err)
	assert.Equal(t, "en-GB", tag)

	_, err = a.SetLanguage(context.Background(), "not a tag!")
	assert.Error(t, err)
}
