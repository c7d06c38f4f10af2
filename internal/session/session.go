// Package session implements one WebSocket connection's lifecycle: message
// demultiplexing, idle heartbeat tracking, and the outbound JSON message
// shapes the manager/stream layers send through the Listener interface.
package session

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"candlestream/internal/candle"
)

// inboundMessage is the demultiplexed shape of every client→server frame.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// listenPayload covers both explicit-tag and synthesized-tag listen/
// unlisten requests.
type listenPayload struct {
	Tag      string `json:"tag"`
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Chain    string `json:"chain"`
	Address  string `json:"address"`
	Pool     string `json:"pool"`
	Interval string `json:"interval"`
}

// historyPayload additionally carries the bounds for a history request.
// Start/Limit accept either a JSON number or string, matching the source's
// permissive int(start) coercion.
type historyPayload struct {
	listenPayload
	Start flexInt `json:"start"`
	Limit flexInt `json:"limit"`
}

// flexInt unmarshals from either a JSON number or a numeric string, and
// tracks whether a value was present at all.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var asInt int
	if err := json.Unmarshal(b, &asInt); err == nil {
		f.Value, f.Set = asInt, true
		return nil
	}
	var asStr string
	if err := json.Unmarshal(b, &asStr); err == nil && asStr != "" {
		if v, err := strconv.Atoi(asStr); err == nil {
			f.Value, f.Set = v, true
		}
	}
	return nil
}

func (f flexInt) Ptr() *int {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

// Session wraps one accepted WebSocket connection: its write serialization,
// idle tracking for the heartbeat sweep, and resolved client address.
type Session struct {
	conn   *websocket.Conn
	logger *zap.Logger

	host string
	port string

	writeMu sync.Mutex

	mu           sync.Mutex
	lastActivity time.Time
}

// New wraps conn into a Session, recording the resolved client address.
func New(conn *websocket.Conn, host, port string, logger *zap.Logger) *Session {
	return &Session{
		conn:         conn,
		logger:       logger,
		host:         host,
		port:         port,
		lastActivity: time.Now(),
	}
}

// Touch refreshes the idle clock — called on every received message, not
// only pings, so any activity postpones heartbeat eviction.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IdleSince reports how long it has been since the last received message.
func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

func (s *Session) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// SendConnected sends the initial connect notice with the resolved address.
func (s *Session) SendConnected() error {
	return s.writeJSON(map[string]any{
		"type":    "notice",
		"message": "Connected",
		"ip":      s.host,
		"port":    parsePort(s.port),
	})
}

// SendPong answers a ping.
func (s *Session) SendPong() error {
	return s.writeJSON(map[string]any{"type": "pong"})
}

// SendError reports a malformed or unsupported inbound message.
func (s *Session) SendError(message string) {
	_ = s.writeJSON(map[string]any{"type": "error", "message": message})
}

// SendNotice sends a status notice (used by unlisten success/failure).
func (s *Session) SendNotice(status, message, tag string) {
	_ = s.writeJSON(map[string]any{
		"type": "notice", "status": status, "message": message, "tag": tag,
	})
}

// SendInit implements stream.Listener: the first payload a new listener
// receives, carrying the latest candles fetched at subscribe time.
func (s *Session) SendInit(tag string, data []candle.Candle) {
	_ = s.writeJSON(map[string]any{
		"type": "init", "status": "success", "message": "listening to new data",
		"tag": tag, "data": data,
	})
}

// SendInitError mirrors a failed listen attempt back with the init envelope
// the source uses for subscribe-time errors specifically (as opposed to the
// generic error envelope other failures use).
func (s *Session) SendInitError(message string) {
	_ = s.writeJSON(map[string]any{
		"type": "init", "status": "error", "message": message, "data": []candle.Candle{},
	})
}

// SendUpdate implements stream.Listener: a broadcast-tick fan-out payload.
// A write failure is logged and otherwise dropped; the listener stays
// subscribed.
func (s *Session) SendUpdate(tag string, data []candle.Candle) {
	if err := s.writeJSON(map[string]any{"type": "update", "data": data}); err != nil {
		s.logger.Warn("error while sending update", zap.String("tag", tag), zap.Error(err))
	}
}

// SendHistory implements stream.Listener: the response to a history request.
func (s *Session) SendHistory(data []candle.Candle) {
	_ = s.writeJSON(map[string]any{"type": "history", "data": data})
}

// Close closes the underlying connection with the given close code/reason.
func (s *Session) Close(code int, reason string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	return s.conn.Close()
}
