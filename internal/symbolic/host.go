package symbolic

import (
	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/link"
	"github.com/wasmkit/owi/internal/wasm"
)

// ModuleName is the import module name the symbolic.i32/assume/assert
// primitives are registered under.
const ModuleName = "symbolic"

var (
	i32Sig    = &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}
	assumeSig = &wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}}
	assertSig = &wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
)

// RegisterHostModule registers the symbolic.i32/assume/assert imports
// into reg as HostSymbol-tagged externs: internal/interpret routes a call
// to one of these through the running Algebra's HostSymbolic
// implementation instead of the []uint64 HostFunction boundary, so a
// module importing "symbolic.i32" gets a genuinely fresh variable rather
// than a collapsed concrete constant.
//
// Linking still succeeds when reg lacks this registration only if the
// importing module doesn't reference these names; calling into one
// resolved this way under a non-symbolic algebra (e.g. internal/values,
// which doesn't implement HostSymbolic) traps rather than panicking at
// link time, mirroring the link-time/run-time error split the rest of
// this repo draws between wasm.StaticError and wasm.TrapError.
func RegisterHostModule(reg link.Registry) {
	reg.Register(ModuleName, "i32", link.SymbolicHostExtern(i32Sig, "i32"))
	reg.Register(ModuleName, "assume", link.SymbolicHostExtern(assumeSig, "assume"))
	reg.Register(ModuleName, "assert", link.SymbolicHostExtern(assertSig, "assert"))
}
