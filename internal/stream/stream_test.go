package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candlestream/internal/candle"
)

type fakeFactory struct {
	latest    []candle.Candle
	newest    []candle.Candle
	history   []candle.Candle
	fetchErr  error
	checkOK   bool
}

func (f *fakeFactory) Check(ctx context.Context) bool { return f.checkOK }
func (f *fakeFactory) FetchLatest(ctx context.Context) ([]candle.Candle, error) {
	return f.latest, f.fetchErr
}
func (f *fakeFactory) FetchNewest(ctx context.Context) ([]candle.Candle, error) {
	return f.newest, f.fetchErr
}
func (f *fakeFactory) FetchHistory(ctx context.Context, start, limit *int) ([]candle.Candle, error) {
	return f.history, f.fetchErr
}
func (f *fakeFactory) Interval() string { return "1m" }

type fakeListener struct {
	inits    []candle.Candle
	updates  []candle.Candle
	history  []candle.Candle
	errors   []string
}

func (l *fakeListener) SendInit(tag string, data []candle.Candle)    { l.inits = data }
func (l *fakeListener) SendUpdate(tag string, data []candle.Candle)  { l.updates = data }
func (l *fakeListener) SendHistory(data []candle.Candle)             { l.history = data }
func (l *fakeListener) SendError(message string)                     { l.errors = append(l.errors, message) }

func TestAddListenerBlocksOnFetchFailure(t *testing.T) {
	f := &fakeFactory{fetchErr: errors.New("boom")}
	s := New("cex:binance:BTC-USDT:1m", f)
	l := &fakeListener{}

	err := s.AddListener(context.Background(), l)
	assert.Error(t, err)
	assert.Equal(t, 0, s.ListenerCount())
}

func TestAddListenerSucceedsAndSendsInit(t *testing.T) {
	want := []candle.Candle{{Timestamp: 1, Close: 2}}
	f := &fakeFactory{latest: want}
	s := New("cex:binance:BTC-USDT:1m", f)
	l := &fakeListener{}

	require.NoError(t, s.AddListener(context.Background(), l))
	assert.Equal(t, 1, s.ListenerCount())
	assert.Equal(t, want, l.inits)
}

func TestRemoveListenerNotFoundIsError(t *testing.T) {
	s := New("cex:binance:BTC-USDT:1m", &fakeFactory{})
	_, err := s.RemoveListener(&fakeListener{})
	assert.Error(t, err)
}

func TestRemoveListenerReportsRemaining(t *testing.T) {
	s := New("cex:binance:BTC-USDT:1m", &fakeFactory{})
	l1, l2 := &fakeListener{}, &fakeListener{}
	require.NoError(t, s.AddListener(context.Background(), l1))
	require.NoError(t, s.AddListener(context.Background(), l2))

	remaining, err := s.RemoveListener(l1)
	require.NoError(t, err)
	assert.True(t, remaining)

	remaining, err = s.RemoveListener(l2)
	require.NoError(t, err)
	assert.False(t, remaining)
}

func TestBroadcastFansOutToAllListeners(t *testing.T) {
	s := New("cex:binance:BTC-USDT:1m", &fakeFactory{})
	l1, l2 := &fakeListener{}, &fakeListener{}
	require.NoError(t, s.AddListener(context.Background(), l1))
	require.NoError(t, s.AddListener(context.Background(), l2))

	data := []candle.Candle{{Timestamp: 5}}
	s.Broadcast(data, nil)

	assert.Equal(t, data, l1.updates)
	assert.Equal(t, data, l2.updates)
}

func TestPullHistorySendsErrorOnFailure(t *testing.T) {
	s := New("cex:binance:BTC-USDT:1m", &fakeFactory{fetchErr: errors.New("boom")})
	l := &fakeListener{}
	s.PullHistory(context.Background(), l, nil, nil)
	require.Len(t, l.errors, 1)
	assert.Nil(t, l.history)
}

func TestPullHistorySendsDataOnSuccess(t *testing.T) {
	want := []candle.Candle{{Timestamp: 9}}
	s := New("cex:binance:BTC-USDT:1m", &fakeFactory{history: want})
	l := &fakeListener{}
	s.PullHistory(context.Background(), l, nil, nil)
	assert.Equal(t, want, l.history)
}
