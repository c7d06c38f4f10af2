package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"candlestream/internal/candle"
	"candlestream/internal/metrics"
	"candlestream/internal/streamerr"
)

// defaultTimeout is applied to every adapter HTTP call. The spec notes the
// source has no explicit per-request timeout; we apply a sane default
// rather than block a broadcast tick indefinitely.
const defaultTimeout = 15 * time.Second

// Adapter binds one Descriptor to an HTTP client and exposes the generic
// fetch contract. The variant set is closed (Registry); this is the single
// engine every descriptor runs through.
type Adapter struct {
	Descriptor Descriptor
	Client     *http.Client

	// Metrics, if set, records each Fetch call's latency and outcome under
	// the descriptor's name. Left nil, Fetch records nothing.
	Metrics *metrics.PrometheusMetrics
}

// NewAdapter builds an Adapter for d using a client with the default timeout.
func NewAdapter(d Descriptor) *Adapter {
	return &Adapter{Descriptor: d, Client: &http.Client{Timeout: defaultTimeout}}
}

// Fetch implements §4.1: build query params, GET the kline endpoint, walk
// KlinePath into the JSON body, map each record into a candle.Candle. Wraps
// doFetch to record latency and failure under the descriptor's name,
// regardless of which of doFetch's several exit points was taken.
func (a *Adapter) Fetch(ctx context.Context, base, quote string, start, limit *int, interval string) ([]candle.Candle, error) {
	started := time.Now()
	candles, err := a.doFetch(ctx, base, quote, start, limit, interval)
	if a.Metrics != nil {
		a.Metrics.RecordFetch(a.Descriptor.Name, time.Since(started), err)
	}
	return candles, err
}

func (a *Adapter) doFetch(ctx context.Context, base, quote string, start, limit *int, interval string) ([]candle.Candle, error) {
	d := a.Descriptor

	query := make(url.Values)
	for k, v := range d.KlineQuery {
		query.Set(k, v)
	}
	query.Set(d.SymbolParam, d.FormatSymbol(base, quote))
	if limit != nil && d.LimitParam != "" {
		query.Set(d.LimitParam, strconv.Itoa(*limit))
	}
	if start != nil && d.StartParam != "" {
		query.Set(d.StartParam, strconv.Itoa(*start))
	}
	if d.IntervalParam != "" {
		if native, ok := d.IntervalVocab[interval]; ok {
			query.Set(d.IntervalParam, native)
		}
	}

	u := url.URL{Scheme: "https", Host: d.Host, Path: d.Prefix + d.KlineURI, RawQuery: query.Encode()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, streamerr.Lookupf(d.Name, "build request: %v", err)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, streamerr.Lookupf(d.Name, "http get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, streamerr.Lookupf(d.Name, "unexpected status %s", resp.Status)
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, streamerr.Lookupf(d.Name, "decode response: %v", err)
	}

	records, err := walkPath(body, d.KlinePath)
	if err != nil {
		return nil, streamerr.Lookupf(d.Name, "%v", err)
	}

	list, ok := records.([]any)
	if !ok {
		return nil, streamerr.Lookupf(d.Name, "kline path did not resolve to a list")
	}

	out := make([]candle.Candle, 0, len(list))
	for _, rec := range list {
		c, err := mapRecord(d.Mapper, rec)
		if err != nil {
			return nil, streamerr.Lookupf(d.Name, "map record: %v", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// walkPath walks a "->"-separated path into a decoded JSON document. Empty
// segments are ignored, so "data->ohlcv_list" and "" both work.
func walkPath(body any, path string) (any, error) {
	cur := body
	for _, seg := range strings.Split(path, "->") {
		if seg == "" {
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path segment %q: not an object", seg)
		}
		next, ok := m[seg]
		if !ok {
			return nil, fmt.Errorf("path segment %q: not found", seg)
		}
		cur = next
	}
	return cur, nil
}

// mapRecord maps one raw kline record (positional array or keyed object)
// into a canonical candle.Candle via mapper. Turnover is read (some
// descriptors collect it) and then discarded — it has no field on Candle.
func mapRecord(mapper KlineMapper, rec any) (candle.Candle, error) {
	ts, err := readInt(rec, mapper.Timestamp)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	open := readFloat(rec, mapper.Open)
	high := readFloat(rec, mapper.High)
	low := readFloat(rec, mapper.Low)
	closeP := readFloat(rec, mapper.Close)
	volume := readFloat(rec, mapper.Volume)
	return candle.Candle{
		Timestamp: candle.TimeFix(ts),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
	}, nil
}

func fieldValue(rec any, path *FieldPath) (any, bool) {
	if path == nil {
		return nil, false
	}
	if path.IsIndex {
		list, ok := rec.([]any)
		if !ok || path.Index >= len(list) {
			return nil, false
		}
		return list[path.Index], true
	}
	m, ok := rec.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[path.Key]
	return v, ok
}

// readFloat coerces a field to float64; a missing path yields 0.0.
func readFloat(rec any, path *FieldPath) float64 {
	v, ok := fieldValue(rec, path)
	if !ok {
		return 0.0
	}
	return toFloat(v)
}

// readInt coerces the timestamp field to int64. Every descriptor must name a
// timestamp path.
func readInt(rec any, path *FieldPath) (int64, error) {
	v, ok := fieldValue(rec, path)
	if !ok {
		return 0, fmt.Errorf("missing timestamp field")
	}
	switch t := v.(type) {
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse timestamp %q: %w", t, err)
		}
		return n, nil
	case float64:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case float64:
		return t
	default:
		return 0.0
	}
}
