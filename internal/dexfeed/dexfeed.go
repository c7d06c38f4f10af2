// Package dexfeed implements the single DEX adapter: a GeckoTerminal-style
// pool-OHLCV HTTP viewer plus its network catalog, fetch-retry semantics,
// and interval table. Unlike the CEX family there is exactly one concrete
// viewer — the catalog and interval table are the only per-network
// variation points.
package dexfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"candlestream/internal/candle"
	"candlestream/internal/metrics"
	"candlestream/internal/streamerr"
)

// ID identifies this adapter family to callers and in LookupError messages.
const ID = "geckoterminal"

const baseURLTemplate = "https://api.geckoterminal.com/api/v2/networks/%s/pools/%s/ohlcv/%s"

const startParam = "before_timestamp"
const limitParam = "limit"

// connectRetries bounds the retry-on-connect-error-only loop: a transport
// dial/connect failure is retried up to this many attempts total, but a
// successful round trip that errors at the HTTP or JSON layer is not.
const connectRetries = 3

// timeframeSpec is the (aggregate, timeframe) pair GeckoTerminal expects for
// one canonical interval.
type timeframeSpec struct {
	aggregate int
	timeframe string
}

// Intervals is the canonical→native interval table. A canonical interval
// absent from this map is not supported by the DEX adapter.
var Intervals = map[string]timeframeSpec{
	"1m":       {1, "minute"},
	"5m":       {5, "minute"},
	"15m":      {15, "minute"},
	"1h":       {1, "hour"},
	"4h":       {4, "hour"},
	"1d":       {1, "day"},
	"smallest": {1, "minute"},
	"":         {1, "minute"},
}

// Network is one entry of the validated network catalog.
type Network struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// rawCatalogEntry mirrors the on-disk gecko-networks.json shape: a flat list
// of GeckoTerminal network objects, each carrying its display attributes.
type rawCatalogEntry struct {
	ID         string `json:"id"`
	Attributes struct {
		Name               string `json:"name"`
		CoingeckoAssetPlat string `json:"coingecko_asset_platform_id"`
	} `json:"attributes"`
}

// Catalog is the validated, in-memory network lookup table built once at
// startup from the configured gecko-networks.json path.
type Catalog struct {
	networks map[string]Network
}

// LoadCatalog reads and validates the network catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read network catalog: %w", err)
	}
	var entries []rawCatalogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse network catalog: %w", err)
	}
	networks := make(map[string]Network, len(entries))
	for _, e := range entries {
		networks[e.ID] = Network{ID: e.ID, Name: e.Attributes.Name, Slug: e.Attributes.CoingeckoAssetPlat}
	}
	return &Catalog{networks: networks}, nil
}

// Valid reports whether network is present in the catalog.
func (c *Catalog) Valid(network string) bool {
	_, ok := c.networks[network]
	return ok
}

// Viewer fetches OHLCV candles for one (network, pool, interval) triple
// against the GeckoTerminal pool-OHLCV endpoint.
type Viewer struct {
	Network  string
	Pool     string
	Interval string

	url       string
	aggregate int
	client    *http.Client

	base, quote string

	// Metrics, if set, records each Fetch call's latency and outcome under
	// the geckoterminal adapter id. Left nil, Fetch records nothing.
	Metrics *metrics.PrometheusMetrics
}

// NewViewer validates network against catalog and interval against the
// Intervals table, then builds a Viewer. Mirrors the constructor-time
// validation the spec requires before any fetch is attempted.
func NewViewer(catalog *Catalog, network, pool, interval string) (*Viewer, error) {
	if !catalog.Valid(network) {
		return nil, streamerr.Validationf("unknown DEX network %q", network)
	}
	spec, ok := Intervals[interval]
	if !ok {
		return nil, streamerr.Validationf("unknown DEX interval %q", interval)
	}
	return &Viewer{
		Network:   network,
		Pool:      pool,
		Interval:  interval,
		url:       fmt.Sprintf(baseURLTemplate, network, pool, spec.timeframe),
		aggregate: spec.aggregate,
		client:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Base returns the pool's base asset symbol, cached from the most recent
// successful fetch. Empty until the first fetch completes.
func (v *Viewer) Base() string { return v.base }

// Quote returns the pool's quote asset symbol, cached the same way.
func (v *Viewer) Quote() string { return v.quote }

type ohlcvResponse struct {
	Error string `json:"error"`
	Meta  struct {
		Base  string `json:"base"`
		Quote string `json:"quote"`
	} `json:"meta"`
	Data struct {
		Attributes struct {
			OHLCVList [][]json.Number `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

// Fetch retrieves candles, retrying only on a transport connect failure, up
// to connectRetries attempts. An HTTP or decode failure, an explicit error
// field in the body, or an empty result set all fail immediately as a
// LookupError without retry. Wraps doFetch to record latency and failure
// regardless of which exit point was taken.
func (v *Viewer) Fetch(ctx context.Context, start, limit *int) ([]candle.Candle, error) {
	started := time.Now()
	candles, err := v.doFetch(ctx, start, limit)
	if v.Metrics != nil {
		v.Metrics.RecordFetch(ID, time.Since(started), err)
	}
	return candles, err
}

func (v *Viewer) doFetch(ctx context.Context, start, limit *int) ([]candle.Candle, error) {
	query := url.Values{}
	query.Set("aggregate", strconv.Itoa(v.aggregate))
	if start != nil {
		query.Set(startParam, strconv.Itoa(*start))
	}
	if limit != nil {
		query.Set(limitParam, strconv.Itoa(*limit))
	}
	target := v.url + "?" + query.Encode()

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < connectRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, streamerr.Lookupf(ID, "build request: %v", err)
		}
		r, err := v.client.Do(req)
		if err == nil {
			resp = r
			lastErr = nil
			break
		}
		lastErr = err
	}
	if resp == nil {
		return nil, streamerr.Lookupf(ID, "failed to fetch data: %v", lastErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, streamerr.Lookupf(ID, "unexpected status %s", resp.Status)
	}

	var body ohlcvResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, streamerr.Lookupf(ID, "decode response: %v", err)
	}
	if body.Error != "" {
		return nil, streamerr.Lookupf(ID, "upstream error: %s", body.Error)
	}

	v.base = body.Meta.Base
	v.quote = body.Meta.Quote

	rows := body.Data.Attributes.OHLCVList
	if len(rows) == 0 {
		return nil, streamerr.Lookupf(ID, "no data available")
	}

	out := make([]candle.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, streamerr.Lookupf(ID, "malformed ohlcv row")
		}
		ts, err := row[0].Int64()
		if err != nil {
			return nil, streamerr.Lookupf(ID, "malformed timestamp: %v", err)
		}
		out = append(out, candle.Candle{
			Timestamp: candle.TimeFix(ts),
			Open:      mustFloat(row[1]),
			High:      mustFloat(row[2]),
			Low:       mustFloat(row[3]),
			Close:     mustFloat(row[4]),
			Volume:    mustFloat(row[5]),
		})
	}
	return out, nil
}

func mustFloat(n json.Number) float64 {
	f, _ := n.Float64()
	return f
}
