package guest

import "github.com/pkg/errors"

// LoadError is returned when a guest module fails to load or instantiate.
// It is fatal to engine construction — an engine is never produced if any
// module in the load list returns one.
type LoadError struct {
	ModulePath string
	Cause      error
}

func (e *LoadError) Error() string {
	return "guest: failed to load " + e.ModulePath + ": " + e.Cause.Error()
}

func (e *LoadError) Unwrap() error { return e.Cause }

// DecodeError is a structural failure decoding a SendBuf (or, in the
// serialization layer, any other wire value). It is always surfaced
// wrapped in a GuestFault per the error propagation policy.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return "guest: decode error: " + e.Cause.Error()
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// GuestFault reports that a guest's dispatch trapped, exceeded its
// resource budget, or returned bytes that failed to decode. The engine
// marks the offending guest poisoned and skips it on every later
// dispatch; it is never unloaded and never removed from the subscription
// index (an intentional, preserved open question — see DESIGN.md).
type GuestFault struct {
	GuestIndex int
	ModuleName string
	Reason     string
	Cause      error
}

func (e *GuestFault) Error() string {
	msg := "guest: fault in " + e.ModuleName + ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *GuestFault) Unwrap() error { return e.Cause }

// NewGuestFault wraps cause as a GuestFault for the given guest. If cause
// is (or wraps) a DecodeError, the fault's Reason reflects that, matching
// "DecodeError is treated as GuestFault".
func NewGuestFault(guestIndex int, moduleName string, cause error) *GuestFault {
	reason := "dispatch failed"
	var decodeErr *DecodeError
	if errors.As(cause, &decodeErr) {
		reason = "decode error"
	}
	return &GuestFault{
		GuestIndex: guestIndex,
		ModuleName: moduleName,
		Reason:     reason,
		Cause:      cause,
	}
}
