// Package tagparse implements the subscription tag grammar: parsing an
// explicit tag string, and synthesizing one from a partial listen/history
// payload.
package tagparse

import (
	"strings"

	"candlestream/internal/interval"
	"candlestream/internal/streamerr"
)

// Mode is the tag family selector, the first colon-delimited segment.
type Mode string

const (
	CEX Mode = "cex"
	DEX Mode = "dex"
)

// CEXArgs is a parsed "cex:exchange:symbol:interval" tag. Exchange may be
// "*" for wildcard resolution.
type CEXArgs struct {
	Exchange string
	Symbol   string // "BASE-QUOTE"
	Interval string
}

// DEXArgs is a parsed "dex:chain:address:pool:interval" tag.
type DEXArgs struct {
	Chain    string
	Address  string
	Pool     string
	Interval string
}

// Parse splits a full tag string into its mode and remaining colon-joined
// argument string, matching the "mode:rest".split(':', 1) grammar.
func Parse(tag string) (Mode, string, error) {
	i := strings.Index(tag, ":")
	if i < 0 {
		return "", "", streamerr.Validationf("invalid tag %q", tag)
	}
	return Mode(tag[:i]), tag[i+1:], nil
}

// ParseCEX parses the remainder of a "cex:" tag into its fields.
func ParseCEX(rest string) (CEXArgs, error) {
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return CEXArgs{}, streamerr.Validationf("invalid cex tag %q", rest)
	}
	return CEXArgs{Exchange: parts[0], Symbol: parts[1], Interval: parts[2]}, nil
}

// ParseDEX parses the remainder of a "dex:" tag into its fields.
func ParseDEX(rest string) (DEXArgs, error) {
	parts := strings.Split(rest, ":")
	if len(parts) != 4 {
		return DEXArgs{}, streamerr.Validationf("invalid dex tag %q", rest)
	}
	return DEXArgs{Chain: parts[0], Address: parts[1], Pool: parts[2], Interval: parts[3]}, nil
}

// SplitSymbol splits a "BASE-QUOTE" CEX symbol into its two legs.
func SplitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.SplitN(symbol, "-", 2)
	if len(parts) != 2 {
		return "", "", streamerr.Validationf("invalid symbol %q", symbol)
	}
	return parts[0], parts[1], nil
}

// Payload is the partial listen/unlisten/history request body: either an
// explicit tag, or enough fields to synthesize one.
type Payload struct {
	Tag      string
	Exchange string
	Symbol   string
	Chain    string
	Address  string
	Pool     string
	Interval string
}

// FromPayload synthesizes a tag from a partial payload, matching
// get_tag: an explicit Tag wins outright; otherwise a Symbol implies a CEX
// tag and a Chain implies a DEX tag; Interval defaults to "smallest" and
// Pool defaults to "all" when omitted.
func FromPayload(p Payload) (string, error) {
	if p.Tag != "" {
		if !strings.Contains(p.Tag, ":") {
			return "", streamerr.Validationf("invalid tag %q", p.Tag)
		}
		return p.Tag, nil
	}
	ivl := p.Interval
	if ivl == "" {
		ivl = interval.Smallest
	}
	switch {
	case p.Symbol != "":
		return "cex:" + p.Exchange + ":" + p.Symbol + ":" + ivl, nil
	case p.Chain != "":
		pool := p.Pool
		if pool == "" {
			pool = "all"
		}
		return "dex:" + p.Chain + ":" + p.Address + ":" + pool + ":" + ivl, nil
	default:
		return "", streamerr.Validationf("invalid tag")
	}
}
