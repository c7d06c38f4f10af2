package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"candlestream/internal/auxcache"
	"candlestream/internal/candle"
	"candlestream/internal/manager"
	"candlestream/internal/metrics"
	"candlestream/internal/stream"
	"candlestream/internal/streamerr"
	"candlestream/internal/tagparse"
)

// heartbeatCloseCode/heartbeatCloseReason mirror the source's eviction close
// frame exactly, since some clients key reconnect behavior off them.
const heartbeatCloseCode = 1006
const heartbeatCloseReason = "Heartbeat Timeout"

// Hub tracks every connected session, for heartbeat eviction and
// disconnect cleanup. It does not itself fan out candle data — that is
// internal/stream's job, reached through the bound Manager.
type Hub struct {
	logger    *zap.Logger
	manager   *manager.Manager
	auxMirror *auxcache.Mirror
	metrics   *metrics.PrometheusMetrics

	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewHub builds a Hub bound to m, sweeping for idle sessions every
// heartbeatInterval and evicting any idle past heartbeatTimeout.
func NewHub(m *manager.Manager, logger *zap.Logger, heartbeatInterval, heartbeatTimeout time.Duration) *Hub {
	return &Hub{
		manager:           m,
		logger:            logger.Named("hub"),
		heartbeatInterval: heartbeatInterval,
		heartbeatTimeout:  heartbeatTimeout,
		sessions:          make(map[*Session]struct{}),
	}
}

// SetAuxMirror attaches an optional Redis mirror that every successful
// broadcast tick is also published to, strictly best-effort and outside the
// fan-out path itself. Passing nil disables mirroring.
func (h *Hub) SetAuxMirror(m *auxcache.Mirror) {
	h.auxMirror = m
}

// SetMetrics attaches the process-wide Prometheus recorder. Passing nil
// (the zero value) disables metrics entirely; every recorder call site is
// nil-safe.
func (h *Hub) SetMetrics(m *metrics.PrometheusMetrics) {
	h.metrics = m
}

// Register adds s to the tracked set.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	count := len(h.sessions)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.SessionsOpened.Inc()
		h.metrics.SetActiveSessions(count)
	}
}

// Unregister removes s from the tracked set and clears its subscriptions.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	count := len(h.sessions)
	h.mu.Unlock()
	h.manager.Disconnect(s)
	if h.metrics != nil {
		h.metrics.SetActiveSessions(count)
	}
}

// CloseAll closes every tracked session, for graceful shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close(1001, "Server Shutting Down")
		h.Unregister(s)
	}
}

// HandleMessage demultiplexes one inbound frame, matching message_handle.
// Ping is answered here with a pong; the idle clock is refreshed by the
// caller's read loop (Session.Touch) for every received frame, ping or not.
// listen/unlisten/history are delegated to the bound Manager.
func (h *Hub) HandleMessage(ctx context.Context, s *Session, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		s.SendError("No message type")
		return
	}

	switch msg.Type {
	case "ping":
		_ = s.SendPong()
	case "listen":
		h.handleListen(ctx, s, msg.Data)
	case "unlisten":
		h.handleUnlisten(ctx, s, msg.Data)
	case "history":
		h.handleHistory(ctx, s, msg.Data)
	default:
		s.SendError("No message type")
	}
}

func decodeTag(data json.RawMessage) (string, error) {
	var p listenPayload
	_ = json.Unmarshal(data, &p)
	return tagparse.FromPayload(tagparse.Payload{
		Tag: p.Tag, Exchange: p.Exchange, Symbol: p.Symbol,
		Chain: p.Chain, Address: p.Address, Pool: p.Pool, Interval: p.Interval,
	})
}

func (h *Hub) handleListen(ctx context.Context, s *Session, data json.RawMessage) {
	tag, err := decodeTag(data)
	if err != nil {
		h.recordListenError("unknown", "validation")
		s.SendInitError(err.Error())
		return
	}
	mode := tagMode(tag)
	if h.metrics != nil {
		h.metrics.RecordListenRequest(mode)
	}
	if err := h.manager.Listen(ctx, s, tag); err != nil {
		h.recordListenError(mode, errorKind(err))
		s.SendInitError(err.Error())
	}
}

// tagMode extracts a tag's leading "cex"/"dex" family selector for metrics
// labeling, falling back to "unknown" for a malformed tag.
func tagMode(tag string) string {
	if i := strings.Index(tag, ":"); i >= 0 {
		return tag[:i]
	}
	return "unknown"
}

// errorKind classifies err as "validation", "lookup", or "unknown" for the
// listen-error metric's kind label.
func errorKind(err error) string {
	switch {
	case streamerr.IsValidation(err):
		return "validation"
	case streamerr.IsLookup(err):
		return "lookup"
	default:
		return "unknown"
	}
}

func (h *Hub) recordListenError(mode, kind string) {
	if h.metrics != nil {
		h.metrics.RecordListenError(mode, kind)
	}
}

func (h *Hub) handleUnlisten(ctx context.Context, s *Session, data json.RawMessage) {
	tag, err := decodeTag(data)
	if err != nil {
		s.SendError(err.Error())
		return
	}
	if err := h.manager.Unlisten(s, tag); err != nil {
		if streamerr.IsValidation(err) {
			// No stream for this tag: answered with a notice, not an error.
			s.SendNotice("failed", "no listener", tag)
			return
		}
		s.SendError(err.Error())
		return
	}
	s.SendNotice("success", "unlisten success", tag)
}

func (h *Hub) handleHistory(ctx context.Context, s *Session, data json.RawMessage) {
	var p historyPayload
	_ = json.Unmarshal(data, &p)
	tag, err := tagparse.FromPayload(tagparse.Payload{
		Tag: p.Tag, Exchange: p.Exchange, Symbol: p.Symbol,
		Chain: p.Chain, Address: p.Address, Pool: p.Pool, Interval: p.Interval,
	})
	if err != nil {
		s.SendError(err.Error())
		return
	}
	if err := h.manager.History(ctx, s, tag, p.Start.Ptr(), p.Limit.Ptr()); err != nil {
		s.SendError(err.Error())
	}
}

// RunHeartbeat sweeps every tracked session every heartbeatInterval,
// evicting any idle past heartbeatTimeout. Runs until ctx is cancelled.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweepIdle()
		}
	}
}

func (h *Hub) sweepIdle() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		if s.IdleSince() > h.heartbeatTimeout {
			if err := s.Close(heartbeatCloseCode, heartbeatCloseReason); err != nil {
				h.logger.Error("error while closing idle session", zap.Error(err))
			}
			h.Unregister(s)
			if h.metrics != nil {
				h.metrics.HeartbeatEvictions.Inc()
			}
		}
	}
}

// RunBroadcast ticks the Manager's broadcast once per wall-clock minute
// boundary: after each tick it sleeps 60 - now%60 seconds, i.e. until the
// top of the next minute, unless the tick itself took 60s or longer, in
// which case the next tick starts immediately.
func (h *Hub) RunBroadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		h.manager.BroadcastTick(ctx,
			func(tag string, err error) {
				h.logger.Warn("broadcast fetch failed", zap.String("tag", tag), zap.Error(err))
			},
			func(tag string, l stream.Listener, err error) {
				h.logger.Error("error while sending update", zap.String("tag", tag), zap.Error(err))
				if h.metrics != nil {
					h.metrics.BroadcastSendErrors.Inc()
				}
			},
			func(tag string, data []candle.Candle) {
				if h.auxMirror != nil {
					h.auxMirror.Publish(ctx, tag, data)
				}
			},
		)
		elapsed := time.Since(start)
		if h.metrics != nil {
			h.metrics.RecordBroadcastTick(elapsed)
			h.metrics.SetActiveStreams(h.manager.StreamCount())
		}
		if elapsed >= time.Minute {
			continue
		}
		now := time.Now()
		sleep := time.Minute - time.Duration(now.Second())*time.Second - time.Duration(now.Nanosecond())
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}
