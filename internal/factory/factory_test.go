package factory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlestream/internal/exchange"
)

type redirectTransport struct{ target *url.URL }

func (rt *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func testDescriptor(tsUnit exchange.TimestampUnit) exchange.Descriptor {
	return exchange.Descriptor{
		ID: "test", Name: "test", KlineURI: "/kline",
		FormatSymbol: func(base, quote string) string { return base + quote },
		SymbolParam:  "symbol",
		StartParam:   "start",
		LimitParam:   "limit",
		TSUnit:       tsUnit,
		Mapper: exchange.KlineMapper{
			Timestamp: exchange.Idx(0), Open: exchange.Idx(1), High: exchange.Idx(2),
			Low: exchange.Idx(3), Close: exchange.Idx(4),
		},
	}
}

// newTestCEXFactory bypasses NewCEXFactory's registry lookup (the registry
// only carries real exchanges) so FetchHistory's rescaling can be exercised
// against a synthetic descriptor instead.
func newTestCEXFactory(t *testing.T, tsUnit exchange.TimestampUnit, handler http.HandlerFunc) *CEXFactory {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	adapter := exchange.NewAdapter(testDescriptor(tsUnit))
	adapter.Client = &http.Client{Transport: &redirectTransport{target: target}}
	return &CEXFactory{adapter: adapter, base: "BTC", quote: "USDT", interval: "1m"}
}

func TestFetchHistoryRescalesStartForMillisecondExchanges(t *testing.T) {
	var gotStart string
	f := newTestCEXFactory(t, exchange.UnitMilliseconds, func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start")
		_ = json.NewEncoder(w).Encode([][]any{})
	})

	start := 1700000000
	_, err := f.FetchHistory(context.Background(), &start, nil)
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", gotStart)
}

func TestFetchHistoryLeavesStartUntouchedForSecondExchanges(t *testing.T) {
	var gotStart string
	f := newTestCEXFactory(t, exchange.UnitSeconds, func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start")
		_ = json.NewEncoder(w).Encode([][]any{})
	})

	start := 1700000000
	_, err := f.FetchHistory(context.Background(), &start, nil)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", gotStart)
}

func TestFetchHistoryNilStartOmitsParam(t *testing.T) {
	var sawStart bool
	f := newTestCEXFactory(t, exchange.UnitMilliseconds, func(w http.ResponseWriter, r *http.Request) {
		_, sawStart = r.URL.Query()["start"]
		_ = json.NewEncoder(w).Encode([][]any{})
	})

	_, err := f.FetchHistory(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.False(t, sawStart)
}

func TestCEXFactoryCheckIsAlwaysTrue(t *testing.T) {
	f := newTestCEXFactory(t, exchange.UnitSeconds, func(w http.ResponseWriter, r *http.Request) {})
	assert.True(t, f.Check(context.Background()))
}

func TestCheckFirstCEXReturnsValidationErrorWhenNoExchangeSupportsInterval(t *testing.T) {
	_, err := CheckFirstCEX(context.Background(), "BTC", "USDT", "not-a-real-interval", nil, nil)
	require.Error(t, err)
}
