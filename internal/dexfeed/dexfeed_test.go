package dexfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gecko-networks.json")
	raw := `[{"id":"eth","attributes":{"name":"Ethereum","coingecko_asset_platform_id":"ethereum"}}]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	return path
}

func TestLoadCatalogValidatesNetwork(t *testing.T) {
	catalog, err := LoadCatalog(writeCatalog(t))
	require.NoError(t, err)
	assert.True(t, catalog.Valid("eth"))
	assert.False(t, catalog.Valid("nonexistent"))
}

func TestNewViewerRejectsUnknownNetwork(t *testing.T) {
	catalog, err := LoadCatalog(writeCatalog(t))
	require.NoError(t, err)
	_, err = NewViewer(catalog, "nonexistent", "pool", "1m")
	assert.Error(t, err)
}

func TestNewViewerRejectsUnknownInterval(t *testing.T) {
	catalog, err := LoadCatalog(writeCatalog(t))
	require.NoError(t, err)
	_, err = NewViewer(catalog, "eth", "pool", "9m")
	assert.Error(t, err)
}

func TestFetchEmptyResultIsLookupError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"attributes": map[string]any{"ohlcv_list": []any{}}},
		})
	}))
	defer srv.Close()

	catalog, err := LoadCatalog(writeCatalog(t))
	require.NoError(t, err)
	viewer, err := NewViewer(catalog, "eth", "pool", "1m")
	require.NoError(t, err)
	viewer.url = srv.URL

	_, err = viewer.Fetch(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestFetchCachesBaseAndQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"meta": map[string]any{"base": "WETH", "quote": "USDC"},
			"data": map[string]any{"attributes": map[string]any{
				"ohlcv_list": [][]any{{1700000000, 1800.0, 1810.0, 1790.0, 1805.0, 50.0}},
			}},
		})
	}))
	defer srv.Close()

	catalog, err := LoadCatalog(writeCatalog(t))
	require.NoError(t, err)
	viewer, err := NewViewer(catalog, "eth", "pool", "1m")
	require.NoError(t, err)
	viewer.url = srv.URL

	candles, err := viewer.Fetch(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, "WETH", viewer.Base())
	assert.Equal(t, "USDC", viewer.Quote())
	assert.Equal(t, int64(1700000000000), candles[0].Timestamp)
}
