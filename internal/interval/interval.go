// Package interval defines the canonical candle-interval vocabulary shared
// by every adapter family.
package interval

// Canonical intervals, per the tag grammar.
const (
	OneMinute      = "1m"
	FiveMinutes    = "5m"
	FifteenMinutes = "15m"
	ThirtyMinutes  = "30m"
	OneHour        = "1h"
	FourHours      = "4h"
	OneDay         = "1d"
	Smallest       = "smallest"
)

// All is the closed set of canonical intervals accepted anywhere in the
// system (tag grammar, descriptor vocabularies, DEX interval table).
var All = map[string]bool{
	OneMinute:      true,
	FiveMinutes:    true,
	FifteenMinutes: true,
	ThirtyMinutes:  true,
	OneHour:        true,
	FourHours:      true,
	OneDay:         true,
	Smallest:       true,
}

// Valid reports whether s is one of the canonical intervals.
func Valid(s string) bool {
	return All[s]
}
