// Package manager implements the tag→Stream subscription registry: the
// single process-wide table resolving tags to bound streams, with
// create-or-get race handling for concurrent first subscribers.
package manager

import (
	"context"
	"fmt"
	"sync"

	"candlestream/internal/candle"
	"candlestream/internal/dexfeed"
	"candlestream/internal/factory"
	"candlestream/internal/metrics"
	"candlestream/internal/stream"
	"candlestream/internal/streamerr"
	"candlestream/internal/tagparse"
)

// Manager is the tag→Stream registry. One instance exists per process.
type Manager struct {
	catalog    *dexfeed.Catalog
	cexEnabled func(id string) bool
	metrics    *metrics.PrometheusMetrics

	mu      sync.Mutex
	streams map[string]*stream.Stream
}

// New builds an empty Manager. catalog may be nil if DEX support is
// disabled — DEX tags then always fail validation. cexEnabled reports
// whether a given CEX exchange id may be subscribed to at all; pass nil to
// allow every registered exchange.
func New(catalog *dexfeed.Catalog, cexEnabled func(id string) bool) *Manager {
	return &Manager{catalog: catalog, cexEnabled: cexEnabled, streams: make(map[string]*stream.Stream)}
}

// SetMetrics attaches the process-wide Prometheus recorder, threaded down
// into every factory constructed from this point on. Passing nil (the
// zero value) disables metrics entirely; every recorder call site is
// nil-safe.
func (m *Manager) SetMetrics(pm *metrics.PrometheusMetrics) {
	m.metrics = pm
}

// get returns the stream registered under tag, if any.
func (m *Manager) get(tag string) (*stream.Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[tag]
	return s, ok
}

// putIfAbsent inserts s under tag unless another goroutine already won the
// race, in which case the existing stream is returned instead and s is
// discarded. This is the create-or-get race guard: the expensive factory
// construction and probe fetch that produced s happen outside any lock, so
// two concurrent first-subscribers can both build a candidate — only one
// gets installed.
func (m *Manager) putIfAbsent(tag string, s *stream.Stream) *stream.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.streams[tag]; ok {
		return existing
	}
	m.streams[tag] = s
	return s
}

func (m *Manager) delete(tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, tag)
	if m.metrics != nil {
		m.metrics.DeleteStreamListeners(tag)
	}
}

// Listen resolves tag (parsing, wildcard CEX resolution, and factory
// construction as needed) and adds l as a listener, matching _listen's
// per-mode control flow. A fetch failure during the initial add blocks the
// subscription entirely and is returned to the caller.
func (m *Manager) Listen(ctx context.Context, l stream.Listener, tag string) error {
	mode, rest, err := tagparse.Parse(tag)
	if err != nil {
		return err
	}
	switch mode {
	case tagparse.CEX:
		return m.listenCEX(ctx, l, rest)
	case tagparse.DEX:
		return m.listenDEX(ctx, l, rest)
	default:
		return streamerr.Validationf("invalid tag %q", tag)
	}
}

func (m *Manager) listenCEX(ctx context.Context, l stream.Listener, rest string) error {
	args, err := tagparse.ParseCEX(rest)
	if err != nil {
		return err
	}
	tag := "cex:" + rest
	if s, ok := m.get(tag); ok {
		return s.AddListener(ctx, l)
	}

	base, quote, err := tagparse.SplitSymbol(args.Symbol)
	if err != nil {
		return err
	}

	var f *factory.CEXFactory
	if args.Exchange == "*" {
		resolved, err := factory.CheckFirstCEX(ctx, base, quote, args.Interval, m.cexEnabled, m.metrics)
		if err != nil {
			return err
		}
		f = resolved
		tag = fmt.Sprintf("cex:%s:%s:%s", f.ExchangeID(), args.Symbol, args.Interval)
		if s, ok := m.get(tag); ok {
			return s.AddListener(ctx, l)
		}
	} else {
		if m.cexEnabled != nil && !m.cexEnabled(args.Exchange) {
			return streamerr.Validationf("exchange %q is disabled", args.Exchange)
		}
		built, err := factory.NewCEXFactory(args.Exchange, base, quote, args.Interval, m.metrics)
		if err != nil {
			return err
		}
		f = built
	}

	if !f.Check(ctx) {
		return streamerr.Validationf("invalid CEX candle factory for %s", tag)
	}
	return m.installOrJoin(ctx, tag, f, l)
}

// installOrJoin adds l to a freshly-built candidate stream and only then
// inserts that stream into the registry — never the reverse. A fetch
// failure during the add therefore never leaves an empty, unreachable
// stream behind for BroadcastTick to poll forever; nothing is registered
// until a listener has actually joined. If a concurrent first-subscriber
// won the create-or-get race in the meantime, l joins the winning stream
// instead (a second fetch, in that rare case, not the discarded candidate).
func (m *Manager) installOrJoin(ctx context.Context, tag string, f factory.CandleFactory, l stream.Listener) error {
	candidate := stream.New(tag, f)
	if err := candidate.AddListener(ctx, l); err != nil {
		return err
	}
	if s := m.putIfAbsent(tag, candidate); s != candidate {
		return s.AddListener(ctx, l)
	}
	return nil
}

func (m *Manager) listenDEX(ctx context.Context, l stream.Listener, rest string) error {
	args, err := tagparse.ParseDEX(rest)
	if err != nil {
		return err
	}
	tag := "dex:" + rest
	if s, ok := m.get(tag); ok {
		return s.AddListener(ctx, l)
	}
	if m.catalog == nil {
		return streamerr.Validationf("DEX candle factory not set")
	}
	f, err := factory.NewDEXFactory(m.catalog, args.Chain, args.Address, args.Interval, m.metrics)
	if err != nil {
		return err
	}
	if !f.Check(ctx) {
		return streamerr.Validationf("invalid DEX candle factory for %s", tag)
	}
	return m.installOrJoin(ctx, tag, f, l)
}

// Unlisten removes l from tag's stream, deleting the stream entirely once
// its last listener leaves.
func (m *Manager) Unlisten(l stream.Listener, tag string) error {
	s, ok := m.get(tag)
	if !ok {
		return streamerr.Validationf("no listener for %s", tag)
	}
	remaining, err := s.RemoveListener(l)
	if err != nil {
		return err
	}
	if !remaining {
		m.delete(tag)
	}
	return nil
}

// History serves a history request for an already-subscribed tag, sending
// the result (or an error notice) directly to l.
func (m *Manager) History(ctx context.Context, l stream.Listener, tag string, start, limit *int) error {
	s, ok := m.get(tag)
	if !ok {
		return streamerr.Validationf("no listener for %s", tag)
	}
	s.PullHistory(ctx, l, start, limit)
	return nil
}

// Disconnect removes l from every tag it was listening to, deleting any
// stream left with no listeners. Mirrors disconnect's full-table sweep.
func (m *Manager) Disconnect(l stream.Listener) {
	m.mu.Lock()
	tags := make([]string, 0, len(m.streams))
	for tag := range m.streams {
		tags = append(tags, tag)
	}
	m.mu.Unlock()

	for _, tag := range tags {
		s, ok := m.get(tag)
		if !ok {
			continue
		}
		remaining, err := s.RemoveListener(l)
		if err != nil {
			continue
		}
		if !remaining {
			m.delete(tag)
		}
	}
}

// BroadcastTick polls every registered stream's newest candles and fans
// them out. A per-tag fetch failure is reported via onFetchError and that
// tag is skipped for this tick; it is never fatal to the others. onTick, if
// non-nil, is called once per successfully-fetched tag with the data just
// fanned out — callers use this to mirror the tick elsewhere (e.g. an
// auxiliary cache) without internal/manager knowing anything about that
// destination.
func (m *Manager) BroadcastTick(ctx context.Context, onFetchError func(tag string, err error), onSendError func(tag string, l stream.Listener, err error), onTick func(tag string, data []candle.Candle)) {
	m.mu.Lock()
	snapshot := make([]*stream.Stream, 0, len(m.streams))
	for _, s := range m.streams {
		snapshot = append(snapshot, s)
	}
	m.mu.Unlock()

	for _, s := range snapshot {
		if m.metrics != nil {
			m.metrics.SetStreamListeners(s.Tag(), s.ListenerCount())
		}
		data, err := s.PullNewest(ctx)
		if err != nil {
			if onFetchError != nil {
				onFetchError(s.Tag(), err)
			}
			continue
		}
		s.Broadcast(data, func(l stream.Listener, err error) {
			if onSendError != nil {
				onSendError(s.Tag(), l, err)
			}
		})
		if onTick != nil {
			onTick(s.Tag(), data)
		}
	}
}

// StreamCount reports the number of active tag subscriptions, for metrics.
func (m *Manager) StreamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}
