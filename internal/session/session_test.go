package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"candlestream/internal/candle"
)

// newSessionPair spins up a real websocket connection (server Session, raw
// client conn) so writeJSON's framing can be exercised without a toolchain
// build of the whole server binary.
func newSessionPair(t *testing.T) (*Session, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var serverConn *websocket.Conn
	ready := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConn = c
		close(ready)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	<-ready
	return New(serverConn, "203.0.113.1", "5000", zap.NewNop()), clientConn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var v map[string]any
	require.NoError(t, conn.ReadJSON(&v))
	return v
}

func TestSendConnectedCarriesResolvedAddress(t *testing.T) {
	s, client := newSessionPair(t)
	require.NoError(t, s.SendConnected())

	got := readJSON(t, client)
	assert.Equal(t, "notice", got["type"])
	assert.Equal(t, "Connected", got["message"])
	assert.Equal(t, "203.0.113.1", got["ip"])
	assert.Equal(t, float64(5000), got["port"])
}

func TestSendPong(t *testing.T) {
	s, client := newSessionPair(t)
	require.NoError(t, s.SendPong())
	assert.Equal(t, "pong", readJSON(t, client)["type"])
}

func TestSendUpdateCarriesData(t *testing.T) {
	s, client := newSessionPair(t)
	s.SendUpdate("cex:binance:BTC-USDT:1m", []candle.Candle{{Timestamp: 1, Close: 2}})

	got := readJSON(t, client)
	assert.Equal(t, "update", got["type"])
	data := got["data"].([]any)
	require.Len(t, data, 1)
}

func TestTouchAndIdleSince(t *testing.T) {
	s := New(nil, "h", "1", zap.NewNop())
	time.Sleep(5 * time.Millisecond)
	before := s.IdleSince()
	s.Touch()
	after := s.IdleSince()
	assert.Less(t, after, before)
}

func TestFlexIntUnmarshalsNumberAndString(t *testing.T) {
	var fromNumber flexInt
	require.NoError(t, json.Unmarshal([]byte(`42`), &fromNumber))
	assert.Equal(t, 42, *fromNumber.Ptr())

	var fromString flexInt
	require.NoError(t, json.Unmarshal([]byte(`"17"`), &fromString))
	assert.Equal(t, 17, *fromString.Ptr())
}

func TestFlexIntAbsentIsNilPointer(t *testing.T) {
	var f flexInt
	assert.Nil(t, f.Ptr())
}
