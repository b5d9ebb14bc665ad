// Package lua is the sandbox engine behind the Guest Runtime Adapter
// contract (internal/core/guest): a gopher-lua VM per loaded guest, with
// ambient host access stripped out (see sandbox.go) and every value that
// crosses the boundary going through internal/core/serialize's
// encode/decode round trip before conversion to/from Lua tables
// (convert.go) — the concrete mechanism behind "no aliasing of payloads
// across the sandbox boundary".
package lua

import (
	"context"
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/pkg/errors"

	"hostengine/internal/core/ecs"
	"hostengine/internal/core/guest"
	"hostengine/internal/core/serialize"
)

// defaultTimeout bounds a single guest dispatch call. Grounded on the
// teacher's LuaVMConfig.ResourceLimits.MaxExecutionTime; this repository
// applies it uniformly rather than per-guest-configurable, since nothing
// in the spec calls for per-guest budgets.
const defaultTimeout = 250 * time.Millisecond

// Adapter wraps one guest's Lua VM. It implements guest.Adapter.
type Adapter struct {
	name     string
	manifest *Manifest
	state    *lua.LState
	dispatch *lua.LFunction
	timeout  time.Duration

	// guestIndex and idCounter back the "ecs" global's create_entity()
	// allocator (SPEC_FULL §3's resolution of the guest-minted-id open
	// question): ids are carved out of a namespace reserved for this
	// guest so two guests never mint the same id, without the allocator
	// itself touching the store — the guest must still emit a Create
	// command for the id to be registered.
	guestIndex int
	idCounter  uint64
}

// BindGuestIndex tells the adapter which slot it occupies in the
// engine's guest list, before any dispatch call. Guests loaded directly
// via NewFromSource without a call to this default to index 0.
func (a *Adapter) BindGuestIndex(i int) {
	a.guestIndex = i
}

// Load reads a guest module's Lua source (and its optional sidecar
// manifest) from modulePath and instantiates a sandboxed VM for it. The
// returned error, if any, is a *guest.LoadError.
func Load(modulePath string) (*Adapter, error) {
	source, err := os.ReadFile(modulePath)
	if err != nil {
		return nil, &guest.LoadError{ModulePath: modulePath, Cause: err}
	}
	manifest, err := loadManifest(modulePath)
	if err != nil {
		return nil, &guest.LoadError{ModulePath: modulePath, Cause: err}
	}
	return newAdapter(modulePath, string(source), manifest)
}

// NewFromSource instantiates a guest directly from Lua source, bypassing
// the filesystem. Used by tests and by any embedder that ships guest
// scripts as compiled-in string fixtures rather than loose files.
func NewFromSource(name, source string, manifest *Manifest) (*Adapter, error) {
	return newAdapter(name, source, manifest)
}

func newAdapter(name, source string, manifest *Manifest) (*Adapter, error) {
	displayName := name
	if manifest != nil && manifest.Name != "" {
		displayName = manifest.Name
	}

	a := &Adapter{
		name:     displayName,
		manifest: manifest,
		timeout:  defaultTimeout,
	}

	L := newSandboxedState()
	registerEntityIDAllocator(L, a)
	registerBinLibrary(L)

	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, &guest.LoadError{ModulePath: name, Cause: errors.Wrap(err, "loading guest script")}
	}

	fn, ok := L.GetGlobal("dispatch").(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, &guest.LoadError{ModulePath: name, Cause: errors.New("guest does not define a global dispatch function")}
	}

	a.state = L
	a.dispatch = fn
	return a, nil
}

// registerEntityIDAllocator installs the "ecs" global table with a single
// function, create_entity(), that mints ids in a namespace reserved for
// this guest: high 16 bits are the guest index plus one (so even guest 0's
// ids have a non-zero high part and stay clear of the ids the Store mints
// itself, which count up from 1), low 48 bits a per-guest monotonic
// counter. It never touches the engine's ECS Store —
// the guest still has to emit a Create command for the id to exist.
func registerEntityIDAllocator(L *lua.LState, a *Adapter) {
	ecsTbl := L.NewTable()
	ecsTbl.RawSetString("create_entity", L.NewFunction(func(L *lua.LState) int {
		a.idCounter++
		id := (uint64(a.guestIndex+1) << 48) | (a.idCounter & 0xFFFFFFFFFFFF)
		L.Push(lua.LNumber(float64(id)))
		return 1
	}))
	L.SetGlobal("ecs", ecsTbl)
}

// Name identifies the guest for diagnostics.
func (a *Adapter) Name() string { return a.name }

// Close releases the guest's Lua VM. Not part of the guest.Adapter
// contract (unloading a guest is out of scope per §7's "skip, not
// unload" policy) but good hygiene for an embedder that does shut down.
func (a *Adapter) Close() {
	a.state.Close()
}

// Dispatch runs one turn: round-trips rb through the serialization layer
// to produce an aliasing-free copy, converts it to a Lua table, invokes
// the guest's dispatch function under a time budget and panic guard, and
// decodes the returned table into a SendBuf. Any failure — a Lua runtime
// error, a timeout, a panic, or a malformed return value — comes back as
// a non-nil error; the caller (internal/core/engine) is responsible for
// wrapping it into a *guest.GuestFault tagged with this guest's index.
//
// rb.Ecs, if non-nil, is mutated in place: the guest only ever sees a
// serialized-then-reconverted copy of it (never the pointer itself), but
// once the guest returns, this method copies whatever it wrote into that
// copy's "ecs.columns" table back into rb.Ecs.Columns, so the caller can
// run rb.Ecs.WriteBack() exactly as query.EcsData documents — host-side
// aliasing of the engine's own EcsData across a dispatch call is not the
// "no aliasing" invariant §3 guards against; that invariant is about the
// guest, and the guest never held a reference to rb.Ecs.
func (a *Adapter) Dispatch(rb guest.ReceiveBuf) (guest.SendBuf, error) {
	encoded, err := serialize.EncodeReceiveBuf(rb)
	if err != nil {
		return guest.SendBuf{}, errors.Wrap(err, "encoding receive buffer")
	}
	fresh, err := serialize.DecodeReceiveBuf(encoded)
	if err != nil {
		return guest.SendBuf{}, errors.Wrap(err, "decoding receive buffer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	a.state.SetContext(ctx)
	defer a.state.RemoveContext()

	sb, writeBack, err := a.callGuarded(fresh)
	if err != nil {
		return guest.SendBuf{}, err
	}

	if rb.Ecs != nil && writeBack != nil {
		for cid, rows := range writeBack {
			rb.Ecs.Columns[cid] = rows
		}
	}

	return sb, nil
}

// callGuarded isolates the recover() so a guest panic (e.g. a reflection
// failure deep in a conversion helper, or a gopher-lua internal panic on
// stack overflow) can never unwind into the engine's dispatch loop.
func (a *Adapter) callGuarded(rb guest.ReceiveBuf) (sb guest.SendBuf, writeBack map[ecs.ComponentID][][]byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("guest panicked: %v", r)
		}
	}()

	arg := receiveBufToLua(a.state, rb)

	if callErr := a.state.CallByParam(lua.P{
		Fn:      a.dispatch,
		NRet:    1,
		Protect: true,
	}, arg); callErr != nil {
		return guest.SendBuf{}, nil, errors.Wrap(callErr, "guest dispatch call failed")
	}

	ret := a.state.Get(-1)
	a.state.Pop(1)

	sb, err = sendBufFromLua(ret)
	if err != nil {
		return guest.SendBuf{}, nil, &guest.DecodeError{Cause: err}
	}

	writeBack, err = ecsWriteBackFromLua(arg.RawGetString("ecs"))
	if err != nil {
		return guest.SendBuf{}, nil, &guest.DecodeError{Cause: err}
	}

	return sb, writeBack, nil
}
