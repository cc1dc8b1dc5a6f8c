package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataresource/internal/metrics"
	"dataresource/internal/resource"
)

func setup(t *testing.T) (*metrics.Metrics, *prometheus.Registry, string) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	resource.SetObserver(m)
	t.Cleanup(func() { resource.SetObserver(nil) })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "table.csv"), []byte("id,name\n1,a\n2,b\n3,c\n"), 0644))
	return m, reg, dir
}

func TestObserverCountsSessions(t *testing.T) {
	m, _, dir := setup(t)

	r, err := resource.New("table.csv", resource.WithBasepath(dir))
	require.NoError(t, err)
	rows, err := r.ReadRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Opens.WithLabelValues("csv", "file")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReadRows.WithLabelValues("csv")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Open))

	require.NoError(t, r.Open(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Open))
	require.NoError(t, r.Close())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Open))
}

func TestObserverCountsFailures(t *testing.T) {
	m, _, dir := setup(t)

	r, err := resource.New("missing.csv", resource.WithBasepath(dir))
	require.NoError(t, err)
	_, err = r.ReadRows(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(m.Errors))
	assert.Equal(t, 0, testutil.CollectAndCount(m.Opens))
}

func TestHandlerExposesMetrics(t *testing.T) {
	_, reg, dir := setup(t)

	r, err := resource.New("table.csv", resource.WithBasepath(dir))
	require.NoError(t, err)
	_, err = r.ReadBytes(context.Background())
	require.NoError(t, err)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `dataresource_resource_opens_total{format="csv",scheme="file"} 1`)
	assert.Contains(t, string(body), "dataresource_resource_read_bytes_total")
}
