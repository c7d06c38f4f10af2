package session

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"candlestream/internal/manager"
)

func newHubTestSession(t *testing.T) (*Hub, *Session, *websocket.Conn) {
	t.Helper()
	s, client := newSessionPair(t)
	h := NewHub(manager.New(nil, nil), zap.NewNop(), 30*time.Second, 60*time.Second)
	return h, s, client
}

func TestHandleMessageMissingTypeSendsError(t *testing.T) {
	h, s, client := newHubTestSession(t)
	h.HandleMessage(context.Background(), s, []byte(`{"data":{}}`))

	got := readJSON(t, client)
	assert.Equal(t, "error", got["type"])
	assert.Equal(t, "No message type", got["message"])
}

func TestHandleMessageUnknownTypeSendsError(t *testing.T) {
	h, s, client := newHubTestSession(t)
	h.HandleMessage(context.Background(), s, []byte(`{"type":"bogus"}`))

	got := readJSON(t, client)
	assert.Equal(t, "error", got["type"])
}

func TestHandleMessagePingSendsPong(t *testing.T) {
	h, s, client := newHubTestSession(t)
	h.HandleMessage(context.Background(), s, []byte(`{"type":"ping"}`))
	assert.Equal(t, "pong", readJSON(t, client)["type"])
}

func TestHandleMessageUnlistenUnknownTagSendsNotice(t *testing.T) {
	h, s, client := newHubTestSession(t)
	h.HandleMessage(context.Background(), s, []byte(`{"type":"unlisten","data":{"tag":"cex:binance:BTC-USDT:1m"}}`))

	got := readJSON(t, client)
	assert.Equal(t, "notice", got["type"])
}

func TestHandleMessageHistoryUnknownTagIsError(t *testing.T) {
	h, s, client := newHubTestSession(t)
	h.HandleMessage(context.Background(), s, []byte(`{"type":"history","data":{"tag":"cex:binance:BTC-USDT:1m"}}`))

	got := readJSON(t, client)
	assert.Equal(t, "error", got["type"])
}

func TestHandleMessageListenBadTagSendsInitError(t *testing.T) {
	h, s, client := newHubTestSession(t)
	h.HandleMessage(context.Background(), s, []byte(`{"type":"listen","data":{}}`))

	got := readJSON(t, client)
	assert.Equal(t, "init", got["type"])
	assert.Equal(t, "error", got["status"])
}

func TestSweepIdleEvictsPastTimeoutNotBeforeIt(t *testing.T) {
	h, s, _ := newHubTestSession(t)
	h.heartbeatTimeout = 50 * time.Millisecond
	h.Register(s)

	h.sweepIdle()
	assert.Contains(t, h.sessions, s, "a fresh session must not be evicted")

	time.Sleep(60 * time.Millisecond)
	h.sweepIdle()
	assert.NotContains(t, h.sessions, s, "a session idle past the timeout must be evicted")
}

func TestRegisterUnregisterTracksSessions(t *testing.T) {
	h, s, _ := newHubTestSession(t)
	h.Register(s)
	h.Unregister(s)
	// Unregister clears the session from the tracked set; a second call is
	// a harmless no-op since delete on an absent key does nothing.
	h.Unregister(s)
}
