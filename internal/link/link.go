// Package link implements the linker stage: given an already validated
// module and a registry of host- or module-provided externs, it resolves
// imports, allocates memories/tables/globals, runs data/elem segment
// initialisation, and invokes the start function. Corresponds to
// spec.md §4.5.
package link

import (
	"go.uber.org/zap"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/logging"
	"github.com/wasmkit/owi/internal/wasm"
)

// HostFunction is a host-implemented import: it receives arguments and
// returns results, both encoded as operand-stack lanes (api.EncodeI32 and
// friends), or a trap.
type HostFunction func(args []uint64) ([]uint64, error)

// FunctionInstance is one callable function of an instance: either a
// local function backed by a Code body, or a host import backed by Host
// (or, for the symbolic primitives, tagged with HostSymbol instead).
type FunctionInstance struct {
	Type *wasm.FunctionType

	// Instance is nil for host functions.
	Instance *Instance
	Code     *wasm.Code

	Host HostFunction

	// HostSymbol tags one of the symbolic.i32/assume/assert host
	// primitives ("i32", "assume", "assert"); this package never
	// interprets the tag itself, it only routes import resolution to a
	// FunctionInstance carrying one instead of a Host closure, leaving
	// the algebra-aware dispatch to internal/interpret.
	HostSymbol string
}

// IsHost reports whether this is a host-provided function, as opposed to
// one defined by Wasm code.
func (f *FunctionInstance) IsHost() bool { return f.Host != nil || f.HostSymbol != "" }

// MemoryInstance is one instantiated linear memory.
type MemoryInstance struct {
	Data []byte
	Max  *uint32 // in pages; nil means MemoryMaxPages.
}

// PageCount returns the current size in 64KiB pages.
func (m *MemoryInstance) PageCount() uint32 { return uint32(len(m.Data)) / wasm.MemoryPageSize }

// Grow grows the memory by delta pages, returning the previous page count,
// or false if the growth would exceed its max (or the hard ceiling).
func (m *MemoryInstance) Grow(delta uint32) (previous uint32, ok bool) {
	cur := m.PageCount()
	max := wasm.MemoryMaxPages
	if m.Max != nil && *m.Max < uint32(max) {
		max = int(*m.Max)
	}
	if uint64(cur)+uint64(delta) > uint64(max) {
		return cur, false
	}
	m.Data = append(m.Data, make([]byte, uint64(delta)*wasm.MemoryPageSize)...)
	return cur, true
}

// TableElem is one table slot: nil is the null reference; for a funcref
// table it otherwise holds a *FunctionInstance, for an externref table an
// opaque host value.
type TableElem = any

// TableInstance is one instantiated table.
type TableInstance struct {
	RefType api.ValueType
	Elems   []TableElem
	Max     *uint32
}

// GlobalInstance is one instantiated global. Num holds the operand-stack
// lane encoding for numeric types; Ref holds the reference value for
// funcref/externref types, selected by Type.ValType.
type GlobalInstance struct {
	Type wasm.GlobalType
	Num  uint64
	Ref  TableElem
}

// ExportInstance is one resolved export of an instance, tagged by kind.
type ExportInstance struct {
	Kind api.ExternType

	Func   *FunctionInstance
	Table  *TableInstance
	Memory *MemoryInstance
	Global *GlobalInstance
}

// Instance is a linked, ready-to-run module: the unified index spaces of
// spec.md §3, populated with both imported and local entries.
type Instance struct {
	Module *wasm.Module

	Funcs    []*FunctionInstance
	Tables   []*TableInstance
	Memories []*MemoryInstance
	Globals  []*GlobalInstance

	Exports map[string]ExportInstance

	// DroppedData and DroppedElem track which passive segments data.drop
	// and elem.drop have removed (indexed as m.Datas/m.Elems), since
	// memory.init/table.init treat a dropped source as zero-length (any
	// non-zero length then traps).
	DroppedData []bool
	DroppedElem []bool
}

// Extern is one entry of a Registry: a host- or instance-provided import
// target. Func, when present, carries the callee's own FunctionInstance
// directly — whether that instance wraps a host closure or a Wasm Code
// body — so that an import resolved from a previously registered module
// (spec.md §6 "register") keeps its original call target instead of being
// flattened into an opaque host call.
type Extern struct {
	Kind api.ExternType

	Func *FunctionInstance

	Table  *TableInstance
	Memory *MemoryInstance
	Global *GlobalInstance
}

// HostExtern builds an Extern wrapping a host-implemented function of the
// given signature.
func HostExtern(sig *wasm.FunctionType, fn HostFunction) Extern {
	return Extern{Kind: api.ExternTypeFunc, Func: &FunctionInstance{Type: sig, Host: fn}}
}

// SymbolicHostExtern builds an Extern for one of the symbolic.i32/assume/
// assert primitives, tagged with symbol so internal/interpret can route
// the call to the running algebra instead of a []uint64 HostFunction.
func SymbolicHostExtern(sig *wasm.FunctionType, symbol string) Extern {
	return Extern{Kind: api.ExternTypeFunc, Func: &FunctionInstance{Type: sig, HostSymbol: symbol}}
}

// Registry maps a two-level import name to its extern, per spec.md §4.5
// "host-provided extern modules".
type Registry map[string]map[string]Extern

// Register adds or replaces a single extern under moduleName/name.
func (r Registry) Register(moduleName, name string, e Extern) {
	m, ok := r[moduleName]
	if !ok {
		m = map[string]Extern{}
		r[moduleName] = m
	}
	m[name] = e
}

// RegisterInstance exposes every export of inst as an extern module named
// moduleName, per spec.md §6 "register name $id" script directive: a
// previously instantiated module becomes an import source for later ones.
func RegisterInstance(r Registry, moduleName string, inst *Instance) {
	for name, exp := range inst.Exports {
		r.Register(moduleName, name, Extern{
			Kind: exp.Kind, Func: exp.Func, Table: exp.Table, Memory: exp.Memory, Global: exp.Global,
		})
	}
}

// Engine executes a linked function body. The linker calls it exactly
// once, to invoke a declared start function; the interpreter (or a
// symbolic engine) is the production implementation, injected here so
// that this package has no dependency on any particular execution
// strategy — the same separation wazero draws between instantiation
// (internal/wasm) and its pluggable internal/engine backends.
type Engine interface {
	Call(fn *FunctionInstance, args []uint64) ([]uint64, error)
}

// Link resolves m's imports against reg, allocates its local memories,
// tables and globals, runs segment initialisation, and — if eng is
// non-nil and m declares a start function — invokes it. eng may be nil
// when linking is used standalone (e.g. by tests, or by tooling that only
// needs the instantiated shape of a module without executing it).
func Link(m *wasm.Module, reg Registry, eng Engine) (*Instance, error) {
	inst := &Instance{
		Module:      m,
		DroppedData: make([]bool, len(m.Datas)),
		DroppedElem: make([]bool, len(m.Elems)),
	}

	if err := resolveImports(m, reg, inst); err != nil {
		return nil, err
	}
	allocateLocalMemoriesAndTables(m, inst)
	instantiateLocalFuncs(m, inst)
	if err := instantiateGlobals(m, inst); err != nil {
		return nil, err
	}
	if err := buildExports(m, inst); err != nil {
		return nil, err
	}

	if err := initActiveDataSegments(m, inst); err != nil {
		return nil, err
	}
	if err := initActiveElemSegments(m, inst); err != nil {
		return nil, err
	}

	if m.StartFunc != nil && eng != nil {
		start := inst.Funcs[m.StartFunc.Num]
		logging.L().Debug("invoking start function", zap.Uint32("func_index", m.StartFunc.Num))
		if _, err := eng.Call(start, nil); err != nil {
			logging.L().Warn("start function trapped", zap.Uint32("func_index", m.StartFunc.Num), zap.Error(err))
			return nil, err
		}
	}

	return inst, nil
}

func resolveImports(m *wasm.Module, reg Registry, inst *Instance) error {
	for _, imp := range m.Imports {
		mod, ok := reg[imp.Module]
		var e Extern
		if ok {
			e, ok = mod[imp.Name]
		}
		if !ok {
			return wasm.NewStaticError("unknown import %q.%q", imp.Module, imp.Name)
		}
		if e.Kind != imp.Kind {
			return wasm.NewStaticError("incompatible import type: %q.%q is a %s, not a %s",
				imp.Module, imp.Name, api.ExternTypeName(e.Kind), api.ExternTypeName(imp.Kind))
		}
		switch imp.Kind {
		case api.ExternTypeFunc:
			want := &m.Types[imp.FuncTypeIndex.Num]
			if e.Func == nil || !want.Equal(e.Func.Type) {
				return wasm.NewStaticError("incompatible import type: %q.%q function signature mismatch", imp.Module, imp.Name)
			}
			inst.Funcs = append(inst.Funcs, e.Func)
		case api.ExternTypeTable:
			if e.Table == nil || e.Table.RefType != imp.Table.RefType || !limitsCompatible(imp.Table.Limits, tableLimits(e.Table)) {
				return wasm.NewStaticError("incompatible import type: %q.%q table mismatch", imp.Module, imp.Name)
			}
			inst.Tables = append(inst.Tables, e.Table)
		case api.ExternTypeMemory:
			if e.Memory == nil || !limitsCompatible(imp.Memory.Limits, memoryLimits(e.Memory)) {
				return wasm.NewStaticError("incompatible import type: %q.%q memory mismatch", imp.Module, imp.Name)
			}
			inst.Memories = append(inst.Memories, e.Memory)
		case api.ExternTypeGlobal:
			if e.Global == nil || e.Global.Type != imp.Global {
				return wasm.NewStaticError("incompatible import type: %q.%q global mismatch", imp.Module, imp.Name)
			}
			inst.Globals = append(inst.Globals, e.Global)
		}
	}
	return nil
}

// limitsCompatible is the Wasm import-subtyping rule: the actual minimum
// must be at least the declared minimum, and if the declared type bounds
// the maximum, the actual must too, at no more than that bound.
func limitsCompatible(declared, actual wasm.Limits) bool {
	if actual.Min < declared.Min {
		return false
	}
	if declared.Max == nil {
		return true
	}
	return actual.Max != nil && *actual.Max <= *declared.Max
}

func tableLimits(t *TableInstance) wasm.Limits {
	return wasm.Limits{Min: uint32(len(t.Elems)), Max: t.Max}
}

func memoryLimits(m *MemoryInstance) wasm.Limits {
	return wasm.Limits{Min: m.PageCount(), Max: m.Max}
}

func allocateLocalMemoriesAndTables(m *wasm.Module, inst *Instance) {
	for _, mt := range m.Memories {
		inst.Memories = append(inst.Memories, &MemoryInstance{
			Data: make([]byte, uint64(mt.Limits.Min)*wasm.MemoryPageSize),
			Max:  mt.Limits.Max,
		})
	}
	for _, tt := range m.Tables {
		inst.Tables = append(inst.Tables, &TableInstance{
			RefType: tt.RefType,
			Elems:   make([]TableElem, tt.Limits.Min),
			Max:     tt.Limits.Max,
		})
	}
}

func instantiateLocalFuncs(m *wasm.Module, inst *Instance) {
	for i := range m.Code {
		funcIdx := m.ImportedFuncCount + uint32(i)
		inst.Funcs = append(inst.Funcs, &FunctionInstance{
			Type:     m.FuncTypeAt(funcIdx),
			Instance: inst,
			Code:     &m.Code[i],
		})
	}
}

func instantiateGlobals(m *wasm.Module, inst *Instance) error {
	for _, g := range m.Globals {
		num, ref, err := EvalConstExpr(inst, g.Type.ValType, g.Init)
		if err != nil {
			return err
		}
		inst.Globals = append(inst.Globals, &GlobalInstance{Type: g.Type, Num: num, Ref: ref})
	}
	return nil
}

// EvalConstExpr evaluates a constant-expression (spec.md §4.3 "constant
// expression"), which internal/rewrite has already restricted to exactly
// one instruction: a *.const, ref.null, ref.func, or global.get of an
// earlier-indexed immutable global. Exported so internal/interpret can
// evaluate a passive element segment's items lazily, at table.init time,
// the same way this package evaluates active segments eagerly at link
// time.
func EvalConstExpr(inst *Instance, want api.ValueType, expr wasm.ConstExpr) (num uint64, ref TableElem, err error) {
	instr := expr.Instrs[0]
	switch instr.Op {
	case wasm.OpI32Const:
		return api.EncodeI32(instr.I32), nil, nil
	case wasm.OpI64Const:
		return api.EncodeI64(instr.I64), nil, nil
	case wasm.OpF32Const:
		return api.EncodeF32(instr.F32), nil, nil
	case wasm.OpF64Const:
		return api.EncodeF64(instr.F64), nil, nil
	case wasm.OpRefNull:
		return 0, nil, nil
	case wasm.OpRefFunc:
		return 0, inst.Funcs[instr.Idx.Num], nil
	case wasm.OpGlobalGet:
		src := inst.Globals[instr.Idx.Num]
		return src.Num, src.Ref, nil
	}
	return 0, nil, wasm.NewStaticError("unsupported constant expression opcode %s", instr.Op.Name())
}

func buildExports(m *wasm.Module, inst *Instance) error {
	inst.Exports = make(map[string]ExportInstance, len(m.Exports))
	for _, e := range m.Exports {
		var exp ExportInstance
		exp.Kind = e.Desc.Kind
		switch e.Desc.Kind {
		case api.ExternTypeFunc:
			exp.Func = inst.Funcs[e.Desc.Index.Num]
		case api.ExternTypeTable:
			exp.Table = inst.Tables[e.Desc.Index.Num]
		case api.ExternTypeMemory:
			exp.Memory = inst.Memories[e.Desc.Index.Num]
		case api.ExternTypeGlobal:
			exp.Global = inst.Globals[e.Desc.Index.Num]
		}
		inst.Exports[e.Name] = exp
	}
	return nil
}

func initActiveDataSegments(m *wasm.Module, inst *Instance) error {
	for _, seg := range m.Datas {
		if seg.Mode != wasm.DataModeActive {
			continue
		}
		mem := inst.Memories[seg.Memory.Num]
		off, _, err := EvalConstExpr(inst, api.ValueTypeI32, seg.Offset)
		if err != nil {
			return err
		}
		offset := api.DecodeI32(off)
		if offset < 0 || uint64(offset)+uint64(len(seg.Init)) > uint64(len(mem.Data)) {
			return wasm.NewTrap(wasm.TrapOutOfBoundsMemoryAccess)
		}
		copy(mem.Data[uint32(offset):], seg.Init)
	}
	return nil
}

func initActiveElemSegments(m *wasm.Module, inst *Instance) error {
	for _, seg := range m.Elems {
		if seg.Mode != wasm.ElemModeActive {
			continue
		}
		tbl := inst.Tables[seg.Table.Num]
		off, _, err := EvalConstExpr(inst, api.ValueTypeI32, seg.Offset)
		if err != nil {
			return err
		}
		offset := api.DecodeI32(off)
		if offset < 0 || uint64(offset)+uint64(len(seg.Init)) > uint64(len(tbl.Elems)) {
			return wasm.NewTrap(wasm.TrapOutOfBoundsTableAccess)
		}
		for i, init := range seg.Init {
			_, ref, err := EvalConstExpr(inst, seg.RefType, init)
			if err != nil {
				return err
			}
			tbl.Elems[uint32(offset)+uint32(i)] = ref
		}
	}
	return nil
}
