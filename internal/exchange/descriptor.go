// Package exchange implements the declarative CEX adapter: a single generic
// fetch engine parameterized by a per-exchange Descriptor, plus the closed,
// enumerable set of descriptors themselves.
package exchange

// TimestampUnit is the unit the exchange reports raw kline timestamps in.
// Kline mapping ignores it — it always applies the 32-bit
// seconds-vs-milliseconds heuristic in candle.TimeFix, per the adapter
// contract. Its one use is in factory.CEXFactory.FetchHistory, which scales
// a seconds start by 1000 for millisecond exchanges.
type TimestampUnit int

const (
	UnitSeconds TimestampUnit = iota
	UnitMilliseconds
)

// FieldPath addresses one field of a raw kline record: either a positional
// index (array record) or a key (object record). A nil path means "not
// present on this exchange", mapped to 0.0 (or, for the timestamp field,
// never valid — every descriptor must supply a timestamp path).
type FieldPath struct {
	Index    int
	Key      string
	IsIndex  bool
	IsKey    bool
}

// Idx builds a positional field path.
func Idx(i int) *FieldPath { return &FieldPath{Index: i, IsIndex: true} }

// Key builds a keyed field path.
func Key(k string) *FieldPath { return &FieldPath{Key: k, IsKey: true} }

// KlineMapper maps canonical candle fields to raw-record paths. Volume may
// be nil for exchanges that don't expose it on this endpoint; Open/High/Low/
// Close must not be (they read as 0.0 if omitted, per the adapter contract,
// but no shipped descriptor omits them). Turnover is collected by some
// descriptors but is intentionally dropped post-mapping — it has no place
// in the canonical six-field Candle.
type KlineMapper struct {
	Timestamp *FieldPath
	Open      *FieldPath
	High      *FieldPath
	Low       *FieldPath
	Close     *FieldPath
	Volume    *FieldPath
	Turnover  *FieldPath
}

// SymbolFormatter renders base/quote into the exchange's native symbol
// string, e.g. Binance wants "BTCUSDT", Gate.io wants "BTC_USDT".
type SymbolFormatter func(base, quote string) string

// SymbolEligible reports whether a raw symbol-catalog record is tradeable
// and should be considered for wildcard resolution / validation. Descriptors
// that never consult the info endpoint at runtime (every shipped one; the
// catalog is descriptive, not enforced per-request) may leave this nil.
type SymbolEligible func(record map[string]any) bool

// Descriptor is the declarative, value-typed description of one centralized
// exchange's kline HTTP endpoint. The variant set is closed and enumerable
// at startup (see Registry()); there is no subclassing, only more literals.
type Descriptor struct {
	ID    string
	Name  string
	Order int

	Host   string
	Prefix string

	InfoURI  string
	InfoPath string

	KlineURI  string
	KlinePath string

	FormatSymbol SymbolFormatter
	SymbolEligible SymbolEligible

	// IntervalVocab maps the canonical interval set to the exchange-native
	// string. An interval absent from this map is not supported by this
	// exchange.
	IntervalVocab map[string]string

	TSUnit TimestampUnit

	Mapper KlineMapper

	// KlineQuery are static query parameters always present (e.g. a fixed
	// granularity default), overlaid before the dynamic params below.
	KlineQuery map[string]string

	SymbolParam   string
	StartParam    string // empty means "this exchange has no start param"
	LimitParam    string // empty means "this exchange has no limit param"
	IntervalParam string // empty means "this exchange has no interval param"
}
