package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.WarmRuns.Inc()
	m.WarmItems.WithLabelValues("endpoint", "ok").Add(5)
	m.StrategyServed.WithLabelValues("cache-first", "cache").Inc()

	assert.InDelta(t, 5, testutil.ToFloat64(m.WarmItems.WithLabelValues("endpoint", "ok")), 0.001)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "clubgate_warm_runs_total 1")
	assert.Contains(t, string(body), `clubgate_worker_served_total{source="cache",strategy="cache-first"} 1`)
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	a.WarmRuns.Inc()

	assert.InDelta(t, 1, testutil.ToFloat64(a.WarmRuns), 0.001)
	assert.InDelta(t, 0, testutil.ToFloat64(b.WarmRuns), 0.001)
}
