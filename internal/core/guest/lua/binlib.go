package lua

import (
	"encoding/binary"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// registerBinLibrary installs the "bin" global table: little-endian
// pack/unpack helpers for the fixed-width numeric types component data is
// conventionally encoded as (§4.7's "component values are raw byte blobs;
// interpretation is by convention between guests that share a schema").
// gopher-lua implements Lua 5.1, which has no string.pack/unpack (those
// arrived in 5.3), so without this a guest has no way to produce or
// consume a binary component at all. Grounded on the same
// encoding/binary.LittleEndian convention internal/core/serialize already
// uses for the wire format, so guest-authored binary layouts agree with
// the host's.
func registerBinLibrary(L *lua.LState) {
	bin := L.NewTable()

	bin.RawSetString("pack_u32", L.NewFunction(func(L *lua.LState) int {
		v := uint32(L.CheckNumber(1))
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, v)
		L.Push(lua.LString(buf))
		return 1
	}))
	bin.RawSetString("unpack_u32", L.NewFunction(func(L *lua.LState) int {
		s := L.CheckString(1)
		if len(s) != 4 {
			L.RaiseError("unpack_u32: expected 4 bytes, got %d", len(s))
		}
		v := binary.LittleEndian.Uint32([]byte(s))
		L.Push(lua.LNumber(float64(v)))
		return 1
	}))

	bin.RawSetString("pack_f32", L.NewFunction(func(L *lua.LState) int {
		v := float32(L.CheckNumber(1))
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		L.Push(lua.LString(buf))
		return 1
	}))
	bin.RawSetString("unpack_f32", L.NewFunction(func(L *lua.LState) int {
		s := L.CheckString(1)
		if len(s) != 4 {
			L.RaiseError("unpack_f32: expected 4 bytes, got %d", len(s))
		}
		bits := binary.LittleEndian.Uint32([]byte(s))
		L.Push(lua.LNumber(float64(math.Float32frombits(bits))))
		return 1
	}))

	L.SetGlobal("bin", bin)
}
