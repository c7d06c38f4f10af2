// Package factory provides the uniform Check/FetchLatest/FetchNewest/
// FetchHistory capability set over the two concrete adapter families (CEX,
// DEX), plus the CEX wildcard exchange selector.
package factory

import (
	"context"

	"candlestream/internal/candle"
	"candlestream/internal/dexfeed"
	"candlestream/internal/exchange"
	"candlestream/internal/interval"
	"candlestream/internal/metrics"
	"candlestream/internal/streamerr"
)

// CandleFactory is the capability set every concrete factory exposes. A
// factory instance is bound to one data source (one CEX exchange/symbol or
// one DEX network/pool) for its lifetime.
type CandleFactory interface {
	// Check is the liveness probe run before a new stream is registered.
	// CEXFactory always reports true (construction already validated it);
	// DEXFactory probes a one-candle fetch.
	Check(ctx context.Context) bool
	// FetchLatest returns the source's unbounded latest-candle response.
	FetchLatest(ctx context.Context) ([]candle.Candle, error)
	// FetchNewest returns a short, fixed-size tail used for broadcast ticks.
	FetchNewest(ctx context.Context) ([]candle.Candle, error)
	// FetchHistory returns candles bounded by an optional start and limit.
	FetchHistory(ctx context.Context, start, limit *int) ([]candle.Candle, error)
	// Interval reports the canonical interval this factory was bound to.
	Interval() string
}

// newestLimit bounds FetchNewest's short tail, matching the three-candle
// broadcast-tick window every concrete factory uses.
const newestLimit = 3

// CEXFactory binds one exchange Adapter to a base/quote symbol and interval.
type CEXFactory struct {
	adapter       *exchange.Adapter
	base, quote   string
	interval      string
}

// NewCEXFactory builds a CEXFactory against a concrete exchange id. Pass
// exchange "*" to callers wanting wildcard resolution via CheckFirstCEX
// instead — NewCEXFactory itself always binds to a named exchange. m may be
// nil, in which case the bound adapter records no fetch metrics.
func NewCEXFactory(exchangeID, base, quote, ivl string, m *metrics.PrometheusMetrics) (*CEXFactory, error) {
	d, ok := exchange.ByID(exchangeID)
	if !ok {
		return nil, streamerr.Validationf("unknown CEX exchange %q", exchangeID)
	}
	if !interval.Valid(ivl) {
		return nil, streamerr.Validationf("unknown interval %q", ivl)
	}
	if _, ok := d.IntervalVocab[ivl]; !ok {
		return nil, streamerr.Validationf("exchange %q does not support interval %q", exchangeID, ivl)
	}
	adapter := exchange.NewAdapter(d)
	adapter.Metrics = m
	return &CEXFactory{adapter: adapter, base: base, quote: quote, interval: ivl}, nil
}

func (f *CEXFactory) Interval() string { return f.interval }

// ExchangeID reports the concrete exchange id this factory is bound to,
// needed by callers that resolved a wildcard "*" exchange and must build
// the concrete tag string to register the stream under.
func (f *CEXFactory) ExchangeID() string { return f.adapter.Descriptor.ID }

func (f *CEXFactory) Check(ctx context.Context) bool {
	return true
}

func (f *CEXFactory) FetchLatest(ctx context.Context) ([]candle.Candle, error) {
	return f.adapter.Fetch(ctx, f.base, f.quote, nil, nil, f.interval)
}

func (f *CEXFactory) FetchNewest(ctx context.Context) ([]candle.Candle, error) {
	limit := newestLimit
	return f.adapter.Fetch(ctx, f.base, f.quote, nil, &limit, f.interval)
}

// FetchHistory rescales a caller-supplied start into the descriptor's native
// timestamp unit: callers always pass start in seconds, and a millisecond-
// native exchange's start param is pre-multiplied here, while the adapter's
// HTTP boundary itself always stays exchange-native.
func (f *CEXFactory) FetchHistory(ctx context.Context, start, limit *int) ([]candle.Candle, error) {
	adjusted := start
	if start != nil && f.adapter.Descriptor.TSUnit == exchange.UnitMilliseconds {
		v := *start * 1000
		adjusted = &v
	}
	return f.adapter.Fetch(ctx, f.base, f.quote, adjusted, limit, f.interval)
}

// CheckFirstCEX resolves exchange "*" by probing the registry in ascending
// Order, returning the first exchange that both supports ivl and succeeds a
// one-candle probe fetch. Mirrors check_first_cex's iteration and error
// handling: a probe LookupError is swallowed and the next candidate tried;
// exhausting the registry is a ValidationError, not silent failure. enabled
// reports whether a given exchange id may be considered at all; pass nil to
// consider every registered exchange. m may be nil to disable fetch metrics.
func CheckFirstCEX(ctx context.Context, base, quote, ivl string, enabled func(id string) bool, m *metrics.PrometheusMetrics) (*CEXFactory, error) {
	for _, d := range exchange.Registry() {
		if enabled != nil && !enabled(d.ID) {
			continue
		}
		if _, ok := d.IntervalVocab[ivl]; !ok {
			continue
		}
		adapter := exchange.NewAdapter(d)
		adapter.Metrics = m
		probeLimit := 1
		if _, err := adapter.Fetch(ctx, base, quote, nil, &probeLimit, ivl); err != nil {
			continue
		}
		return &CEXFactory{adapter: adapter, base: base, quote: quote, interval: ivl}, nil
	}
	return nil, streamerr.Validationf("no CEX can fetch %s-%s at interval %q", base, quote, ivl)
}

// DEXFactory binds one dexfeed.Viewer for the lifetime of a tag subscription.
type DEXFactory struct {
	viewer *dexfeed.Viewer
	ivl    string
}

// NewDEXFactory validates network/pool/interval and constructs the bound
// Viewer. m may be nil to disable fetch metrics.
func NewDEXFactory(catalog *dexfeed.Catalog, network, pool, ivl string, m *metrics.PrometheusMetrics) (*DEXFactory, error) {
	v, err := dexfeed.NewViewer(catalog, network, pool, ivl)
	if err != nil {
		return nil, err
	}
	v.Metrics = m
	return &DEXFactory{viewer: v, ivl: ivl}, nil
}

func (f *DEXFactory) Interval() string { return f.ivl }

func (f *DEXFactory) Check(ctx context.Context) bool {
	limit := 1
	_, err := f.viewer.Fetch(ctx, nil, &limit)
	return err == nil
}

func (f *DEXFactory) FetchLatest(ctx context.Context) ([]candle.Candle, error) {
	return f.viewer.Fetch(ctx, nil, nil)
}

func (f *DEXFactory) FetchNewest(ctx context.Context) ([]candle.Candle, error) {
	limit := newestLimit
	return f.viewer.Fetch(ctx, nil, &limit)
}

func (f *DEXFactory) FetchHistory(ctx context.Context, start, limit *int) ([]candle.Candle, error) {
	return f.viewer.Fetch(ctx, start, limit)
}

// Base returns the pool's cached base asset symbol (populated after the
// first successful fetch).
func (f *DEXFactory) Base() string { return f.viewer.Base() }

// Quote returns the pool's cached quote asset symbol.
func (f *DEXFactory) Quote() string { return f.viewer.Quote() }
