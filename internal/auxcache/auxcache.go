// Package auxcache mirrors each broadcast tick to Redis pub/sub, strictly
// outside the core fan-out path: a disabled, unreachable, or slow Redis
// never blocks a subscribe or a broadcast tick, and every error here is
// swallowed (logged, not returned) by design.
package auxcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"candlestream/internal/candle"
	"candlestream/internal/metrics"
)

// ClientConfig holds the Redis connection parameters.
type ClientConfig struct {
	Addr     string
	DB       int
	Password string
	PoolSize int
}

// Mirror publishes a best-effort copy of every broadcast tick to Redis,
// throttled to avoid saturating the connection under a very large tag set.
type Mirror struct {
	rdb     *redis.Client
	logger  *zap.Logger
	Metrics *metrics.PrometheusMetrics

	throttleMu          sync.Mutex
	windowStart         time.Time
	publishedThisWindow int
}

// maxPublishesPerSecond bounds the mirror's own throughput independent of
// how many tags are subscribed; excess publishes in a window are dropped,
// not queued, since this is a mirror, not a delivery guarantee.
const maxPublishesPerSecond = 500

// NewMirror connects to Redis and returns a Mirror, or an error if the
// initial ping fails. Callers should treat a construction failure as
// "aux cache disabled for this run", not as fatal to the server.
func NewMirror(cfg ClientConfig, logger *zap.Logger) (*Mirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Mirror{rdb: rdb, logger: logger.Named("auxcache"), windowStart: time.Now()}, nil
}

// Publish mirrors one tag's broadcast tick. Errors are logged at debug and
// otherwise swallowed — the caller never sees them, since this must never
// affect broadcast correctness or latency.
func (m *Mirror) Publish(ctx context.Context, tag string, data []candle.Candle) {
	if !m.allow() {
		m.record("throttled")
		return
	}
	payload, err := json.Marshal(map[string]any{"tag": tag, "data": data})
	if err != nil {
		m.logger.Debug("failed to marshal mirror payload", zap.String("tag", tag), zap.Error(err))
		m.record("marshal_error")
		return
	}
	if err := m.rdb.Publish(ctx, "candlestream:"+tag, payload).Err(); err != nil {
		m.logger.Debug("failed to publish mirror payload", zap.String("tag", tag), zap.Error(err))
		m.record("publish_error")
		return
	}
	m.record("success")
}

func (m *Mirror) record(status string) {
	if m.Metrics != nil {
		m.Metrics.RecordAuxCachePublish(status)
	}
}

func (m *Mirror) allow() bool {
	m.throttleMu.Lock()
	defer m.throttleMu.Unlock()
	now := time.Now()
	if now.Sub(m.windowStart) >= time.Second {
		m.windowStart = now
		m.publishedThisWindow = 0
	}
	if m.publishedThisWindow >= maxPublishesPerSecond {
		return false
	}
	m.publishedThisWindow++
	return true
}

// Close releases the underlying Redis connection.
func (m *Mirror) Close() error {
	return m.rdb.Close()
}
