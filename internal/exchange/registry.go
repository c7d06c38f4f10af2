package exchange

import "strings"

// defaultIntervalVocab is the canonical→native mapping shared by every
// descriptor that doesn't need its own spelling.
func defaultIntervalVocab() map[string]string {
	return map[string]string{
		"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
		"1h": "1h", "4h": "4h", "1d": "1d", "smallest": "1m",
	}
}

func hyphenSymbol(base, quote string) string { return base + "-" + quote }
func plainSymbol(base, quote string) string  { return base + quote }
func underscoreSymbol(base, quote string) string { return base + "_" + quote }

func stringField(record map[string]any, key string) string {
	s, _ := record[key].(string)
	return s
}

func boolField(record map[string]any, key string) bool {
	b, _ := record[key].(bool)
	return b
}

// binance is the Binance spot kline descriptor.
func binance() Descriptor {
	return Descriptor{
		ID: "binance", Name: "Binance", Order: 0,
		Host: "api.binance.com", Prefix: "/api/v3",
		InfoURI: "/exchangeInfo", InfoPath: "symbols",
		KlineURI: "/klines", KlinePath: "",
		FormatSymbol: plainSymbol,
		SymbolEligible: func(r map[string]any) bool {
			base := stringField(r, "baseAsset")
			if strings.HasSuffix(base, "UP") || strings.HasSuffix(base, "DOWN") {
				return false
			}
			return stringField(r, "status") == "TRADING" && boolField(r, "isSpotTradingAllowed")
		},
		IntervalVocab: defaultIntervalVocab(),
		TSUnit:        UnitMilliseconds,
		Mapper: KlineMapper{
			Timestamp: Idx(0), Open: Idx(1), High: Idx(2), Low: Idx(3),
			Close: Idx(4), Volume: Idx(5), Turnover: Idx(7),
		},
		KlineQuery:    map[string]string{"interval": "1m"},
		SymbolParam:   "symbol",
		LimitParam:    "limit",
		IntervalParam: "interval",
	}
}

// okx is the OKX index-candles kline descriptor.
func okx() Descriptor {
	return Descriptor{
		ID: "okx", Name: "Okx", Order: 1,
		Host: "www.okx.com", Prefix: "/api/v5",
		InfoURI: "/public/instruments", InfoPath: "data",
		KlineURI: "/market/index-candles", KlinePath: "data",
		FormatSymbol: hyphenSymbol,
		SymbolEligible: func(r map[string]any) bool {
			return stringField(r, "state") == "live"
		},
		IntervalVocab: map[string]string{
			"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
			"1h": "1H", "4h": "4H", "1d": "1D", "smallest": "1m",
		},
		TSUnit: UnitMilliseconds,
		Mapper: KlineMapper{
			Timestamp: Idx(0), Open: Idx(1), High: Idx(2), Low: Idx(3),
			Close: Idx(4), Volume: nil, Turnover: nil,
		},
		SymbolParam:   "instId",
		LimitParam:    "limit",
		IntervalParam: "bar",
	}
}

// kucoin is the KuCoin spot kline descriptor.
func kucoin() Descriptor {
	return Descriptor{
		ID: "kucoin", Name: "KuCoin", Order: 2,
		Host: "api.kucoin.com", Prefix: "",
		InfoURI: "/api/v2/symbols", InfoPath: "data",
		KlineURI: "/api/v1/market/candles", KlinePath: "data",
		FormatSymbol: hyphenSymbol,
		SymbolEligible: func(r map[string]any) bool {
			base := stringField(r, "baseCurrency")
			if strings.HasSuffix(base, "UP") || strings.HasSuffix(base, "DOWN") {
				return false
			}
			return boolField(r, "enableTrading")
		},
		IntervalVocab: map[string]string{
			"1m": "1min", "5m": "5min", "15m": "15min", "30m": "30min",
			"1h": "1hour", "4h": "4hour", "1d": "1day", "smallest": "1min",
		},
		TSUnit: UnitSeconds,
		Mapper: KlineMapper{
			Timestamp: Idx(0), Open: Idx(1), High: Idx(2), Low: Idx(3),
			Close: Idx(4), Volume: Idx(5), Turnover: Idx(6),
		},
		KlineQuery:    map[string]string{"type": "1min"},
		SymbolParam:   "symbol",
		StartParam:    "startAt",
		IntervalParam: "type",
	}
}

// bitget is the Bitget spot kline descriptor.
func bitget() Descriptor {
	return Descriptor{
		ID: "bitget", Name: "Bitget", Order: 3,
		Host: "api.bitget.com", Prefix: "/api/v2",
		InfoURI: "/spot/public/symbols", InfoPath: "data",
		KlineURI: "/spot/market/candles", KlinePath: "data",
		FormatSymbol: plainSymbol,
		SymbolEligible: func(r map[string]any) bool {
			return stringField(r, "status") == "online"
		},
		IntervalVocab: map[string]string{
			"1m": "1min", "5m": "5min", "15m": "15min", "30m": "30min",
			"1h": "1h", "4h": "4h", "1d": "1day", "smallest": "1min",
		},
		TSUnit: UnitSeconds,
		Mapper: KlineMapper{
			Timestamp: Idx(0), Open: Idx(1), High: Idx(2), Low: Idx(3),
			Close: Idx(4), Volume: Idx(5), Turnover: Idx(6),
		},
		KlineQuery:    map[string]string{"granularity": "1min"},
		SymbolParam:   "symbol",
		LimitParam:    "limit",
		IntervalParam: "granularity",
	}
}

// mexc is the MEXC spot kline descriptor.
func mexc() Descriptor {
	return Descriptor{
		ID: "mexc", Name: "MEXC", Order: 4,
		Host: "api.mexc.com", Prefix: "/api/v3",
		InfoURI: "/exchangeInfo", InfoPath: "symbols",
		KlineURI: "/klines", KlinePath: "",
		FormatSymbol: plainSymbol,
		SymbolEligible: func(r map[string]any) bool {
			return boolField(r, "isSpotTradingAllowed")
		},
		IntervalVocab: defaultIntervalVocab(),
		TSUnit:        UnitMilliseconds,
		Mapper: KlineMapper{
			Timestamp: Idx(0), Open: Idx(1), High: Idx(2), Low: Idx(3),
			Close: Idx(4), Volume: Idx(5), Turnover: Idx(7),
		},
		KlineQuery:    map[string]string{"interval": "1m"},
		SymbolParam:   "symbol",
		LimitParam:    "limit",
		IntervalParam: "interval",
	}
}

// gateio is the Gate.io spot kline descriptor.
func gateio() Descriptor {
	return Descriptor{
		ID: "gate.io", Name: "Gate.io", Order: 5,
		Host: "api.gateio.ws", Prefix: "/api/v4",
		InfoURI: "/spot/currency_pairs", InfoPath: "",
		KlineURI: "/spot/candlesticks", KlinePath: "",
		FormatSymbol: underscoreSymbol,
		SymbolEligible: func(r map[string]any) bool {
			status := stringField(r, "trade_status")
			return strings.HasPrefix(status, "tra")
		},
		IntervalVocab: defaultIntervalVocab(),
		TSUnit:        UnitSeconds,
		Mapper: KlineMapper{
			Timestamp: Idx(0), Volume: Idx(1), Close: Idx(2), High: Idx(3),
			Low: Idx(4), Open: Idx(5), Turnover: Idx(6),
		},
		KlineQuery:    map[string]string{"interval": "1m"},
		SymbolParam:   "currency_pair",
		LimitParam:    "limit",
		IntervalParam: "interval",
	}
}

// Registry returns the closed set of descriptors, ordered ascending by
// Order, matching the wildcard-resolution preference order.
func Registry() []Descriptor {
	return []Descriptor{binance(), okx(), kucoin(), bitget(), mexc(), gateio()}
}

// ByID looks up a descriptor by its registered id.
func ByID(id string) (Descriptor, bool) {
	for _, d := range Registry() {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}
