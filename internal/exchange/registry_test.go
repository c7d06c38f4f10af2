package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOrderedByOrder(t *testing.T) {
	reg := Registry()
	require.Len(t, reg, 6)
	for i := 1; i < len(reg); i++ {
		assert.Less(t, reg[i-1].Order, reg[i].Order)
	}
}

func TestRegistryIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, d := range Registry() {
		assert.False(t, seen[d.ID], "duplicate descriptor id %q", d.ID)
		seen[d.ID] = true
	}
}

func TestByID(t *testing.T) {
	d, ok := ByID("binance")
	require.True(t, ok)
	assert.Equal(t, "Binance", d.Name)

	_, ok = ByID("nonexistent")
	assert.False(t, ok)
}

func TestFormatSymbolPerExchange(t *testing.T) {
	cases := map[string]string{
		"binance": "BTCUSDT",
		"okx":     "BTC-USDT",
		"kucoin":  "BTC-USDT",
		"bitget":  "BTCUSDT",
		"mexc":    "BTCUSDT",
		"gate.io": "BTC_USDT",
	}
	for id, want := range cases {
		d, ok := ByID(id)
		require.True(t, ok, id)
		assert.Equal(t, want, d.FormatSymbol("BTC", "USDT"), id)
	}
}

func TestEveryDescriptorHasATimestampMapping(t *testing.T) {
	for _, d := range Registry() {
		assert.NotNil(t, d.Mapper.Timestamp, d.ID)
	}
}
