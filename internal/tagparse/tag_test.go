package tagparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSplitsModeAndRest(t *testing.T) {
	mode, rest, err := Parse("cex:binance:BTC-USDT:1m")
	require.NoError(t, err)
	assert.Equal(t, CEX, mode)
	assert.Equal(t, "binance:BTC-USDT:1m", rest)
}

func TestParseRejectsNoColon(t *testing.T) {
	_, _, err := Parse("invalidtag")
	assert.Error(t, err)
}

func TestParseCEX(t *testing.T) {
	args, err := ParseCEX("binance:BTC-USDT:1m")
	require.NoError(t, err)
	assert.Equal(t, "binance", args.Exchange)
	assert.Equal(t, "BTC-USDT", args.Symbol)
	assert.Equal(t, "1m", args.Interval)
}

func TestParseDEX(t *testing.T) {
	args, err := ParseDEX("eth:0xabc:pool1:smallest")
	require.NoError(t, err)
	assert.Equal(t, "eth", args.Chain)
	assert.Equal(t, "0xabc", args.Address)
	assert.Equal(t, "pool1", args.Pool)
	assert.Equal(t, "smallest", args.Interval)
}

func TestSplitSymbol(t *testing.T) {
	base, quote, err := SplitSymbol("BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, "BTC", base)
	assert.Equal(t, "USDT", quote)

	_, _, err = SplitSymbol("BTCUSDT")
	assert.Error(t, err)
}

func TestFromPayloadExplicitTagWins(t *testing.T) {
	tag, err := FromPayload(Payload{Tag: "cex:binance:BTC-USDT:1m", Symbol: "ETH-USDT"})
	require.NoError(t, err)
	assert.Equal(t, "cex:binance:BTC-USDT:1m", tag)
}

func TestFromPayloadSynthesizesCEXTag(t *testing.T) {
	tag, err := FromPayload(Payload{Exchange: "binance", Symbol: "BTC-USDT"})
	require.NoError(t, err)
	assert.Equal(t, "cex:binance:BTC-USDT:smallest", tag)
}

func TestFromPayloadSynthesizesDEXTagWithDefaults(t *testing.T) {
	tag, err := FromPayload(Payload{Chain: "eth", Address: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, "dex:eth:0xabc:all:smallest", tag)
}

func TestFromPayloadRejectsEmpty(t *testing.T) {
	_, err := FromPayload(Payload{})
	assert.Error(t, err)
}
