package guest

// Adapter wraps a single loaded guest module. It owns the sandboxed
// execution instance and is the only thing the engine talks to — the
// engine never reaches into sandbox internals (see SPEC_FULL.md §9,
// "guest polymorphism").
//
// Dispatch must be re-entrant: the adapter preserves the guest's
// internal state between calls, and the engine may call it many times
// over the instance's lifetime. A non-nil error means the guest is
// poisoned; the caller is expected to stop dispatching to it.
type Adapter interface {
	// Name identifies the guest for diagnostics (manifest name, or the
	// module path if no manifest was found).
	Name() string

	// Dispatch runs one turn: encode, invoke, decode. Sandbox-level
	// failures (trap, resource-limit violation, decode failure) are
	// returned as a non-nil error; the engine wraps it in a *GuestFault.
	Dispatch(buf ReceiveBuf) (SendBuf, error)
}
