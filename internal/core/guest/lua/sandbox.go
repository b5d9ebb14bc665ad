package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// sandboxedGlobals are the stdlib tables/functions a guest must never
// reach, because they are ambient host access: the filesystem (io,
// dofile, loadfile), OS facilities (os), the module loader (package,
// require — guests are single self-contained files), and the debug
// library (arbitrary stack/upvalue introspection). Grounded directly on
// the teacher's applySandbox in internal/core/ecs/lua/lua_bridge.go.
var sandboxedGlobals = []string{
	"io",
	"os",
	"debug",
	"package",
	"require",
	"dofile",
	"loadfile",
	"loadstring",
	"load",
}

// newSandboxedState builds a Lua VM with the standard libraries loaded
// and then immediately strips everything that would give a guest ambient
// access to the host: no filesystem, no OS, no dynamic module loading, no
// debug introspection. Matches the teacher's sandbox strategy (open
// everything, then nil the dangerous globals) rather than a selective
// lib allowlist, since gopher-lua's per-library Open functions are not
// guaranteed stable across versions the way SetGlobal is.
func newSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{CallStackSize: 256})

	for _, name := range sandboxedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	return L
}
