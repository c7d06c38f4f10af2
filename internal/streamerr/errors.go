// Package streamerr defines the domain error kinds shared across the
// candle pipeline, per the propagation policy: ValidationError never
// fatal and always actionable by the originating session, LookupError
// distinguishes an upstream fetch failure from a programming error so
// callers can decide whether to retry, surface, or drop.
package streamerr

import "fmt"

// ValidationError marks a bad tag, unknown exchange/interval/network, or a
// malformed symbol. Always surfaced to the originating session, never fatal.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// LookupError marks an upstream HTTP/JSON failure or an empty result where
// one was required. It carries the name of the upstream source (exchange id
// or DEX viewer id) for logging.
type LookupError struct {
	Source string
	Msg    string
}

func (e *LookupError) Error() string {
	if e.Source == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Msg)
}

// Lookupf builds a LookupError with a formatted message, attributed to source.
func Lookupf(source, format string, args ...any) error {
	return &LookupError{Source: source, Msg: fmt.Sprintf(format, args...)}
}

// IsLookup reports whether err is a *LookupError.
func IsLookup(err error) bool {
	_, ok := err.(*LookupError)
	return ok
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	_, ok := err.(*ValidationError)
	return ok
}
