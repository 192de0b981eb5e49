// Package wasm holds the post-decode, pre-rewrite and post-rewrite data
// model shared by every later pipeline stage (assign, rewrite, validate,
// link, interpret). It corresponds to spec.md §3 "Data model".
package wasm

import "github.com/wasmkit/owi/api"

// MemoryPageSize is the size in bytes of one unit of linear memory growth.
const MemoryPageSize = 65536

// MemoryMaxPages is the hard ceiling on memory size from the Wasm 1.0 spec:
// 2^16 pages of 64KiB, i.e. 4 GiB.
const MemoryMaxPages = 65536

// Index is a reference to an entry of a named collection. Before rewrite it
// may carry a textual Name (as delivered by the external text-format
// front-end); after rewrite, Name is always empty and Num is the resolved,
// dense collection index.
type Index struct {
	Name string
	Num  uint32
}

// IsSymbolic reports whether this index is still a textual reference
// awaiting resolution by the rewriter.
func (i Index) IsSymbolic() bool { return i.Name != "" }

// FuncIndex builds a resolved function/local/global/etc. index.
func FuncIndex(n uint32) Index { return Index{Num: n} }

// NamedIndex builds an unresolved, name-bearing index.
func NamedIndex(name string) Index { return Index{Name: name} }

// FunctionType is a function signature: parameter and result value types.
type FunctionType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// Equal reports structural equality, used by inline-signature validation
// (spec.md §4.3 "Block-type normalisation") and by call_indirect's runtime
// type check (spec.md §4.6).
func (f *FunctionType) Equal(o *FunctionType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i, p := range f.Params {
		if p != o.Params[i] {
			return false
		}
	}
	for i, r := range f.Results {
		if r != o.Results[i] {
			return false
		}
	}
	return true
}

// Limits bounds a table's or memory's size, min inclusive, max optional.
type Limits struct {
	Min uint32
	Max *uint32 // nil means unbounded (up to the kind's hard ceiling).
}

// Local is one locally declared variable, grouped by a run of entries that
// share a type in the binary encoding.
type Local struct {
	Count uint32
	Type  api.ValueType
}

// ConstExpr is an initialiser expression: a restricted instruction
// sequence evaluable without a runtime frame (spec.md §4.3
// "Global-expression constraint"). It is exactly the Body of a miniature,
// frame-less function.
type ConstExpr struct {
	Instrs []Instr
}

// BlockKind is Empty, a single inline result type, or a reference to a
// declared function type — spec.md §3 "Block type".
type BlockKind byte

const (
	BlockKindEmpty BlockKind = iota
	BlockKindValueType
	BlockKindFuncType
)

// BlockType is the signature of a structured-control block. Before
// rewrite, TypeIndex may be the raw encoded value (kind + immediate); after
// rewrite, Params/Results are always populated explicitly per spec.md
// §4.3 "Block-type normalisation".
type BlockType struct {
	Kind      BlockKind
	ValueType api.ValueType // valid iff Kind == BlockKindValueType
	TypeIndex Index         // valid iff Kind == BlockKindFuncType

	// Resolved is filled in by the rewriter: the explicit (params, results)
	// signature, regardless of which Kind produced it.
	Resolved *FunctionType
}

// Memarg is the (align, offset) immediate pair of a memory instruction.
type Memarg struct {
	Align  uint32 // log2 of the claimed alignment, in bytes.
	Offset uint32
}

// Instr is one instruction. Rather than one struct type per opcode (~200
// variants), immediate operands are carried as a small set of typed,
// opcode-dependent fields — the same flattened shape used by compact Go
// Wasm interpreters in the wild (see DESIGN.md).
type Instr struct {
	Op Opcode

	I32 int32
	I64 int64
	F32 float32
	F64 float64

	// Idx is the primary index operand: local/global/func/table/mem/type/
	// label/data/elem depending on Op.
	Idx Index
	// Idx2 is a secondary index operand, e.g. the table index of
	// call_indirect (Idx is the type index), or the source table of
	// table.copy (Idx is the destination table).
	Idx2 Index

	Memarg Memarg

	// RefType is the heap type immediate of ref.null.
	RefType api.ValueType

	BlockType BlockType
	Then      []Instr // block/loop body, or if's "then" arm.
	Else      []Instr // if's "else" arm, empty if absent.

	// Targets is br_table's label list; Idx carries its default label.
	Targets []Index
}

// DataMode classifies a data segment: passive, or active at a memory
// offset.
type DataMode byte

const (
	DataModePassive DataMode = iota
	DataModeActive
)

// DataSegment is one `data` section entry.
type DataSegment struct {
	Mode   DataMode
	Memory Index     // valid iff Mode == DataModeActive
	Offset ConstExpr // valid iff Mode == DataModeActive
	Init   []byte
}

// ElemMode classifies an element segment: passive, declarative, or active
// at a table offset.
type ElemMode byte

const (
	ElemModePassive ElemMode = iota
	ElemModeDeclarative
	ElemModeActive
)

// ElementSegment is one `elem` section entry.
type ElementSegment struct {
	Mode    ElemMode
	Table   Index       // valid iff Mode == ElemModeActive
	Offset  ConstExpr   // valid iff Mode == ElemModeActive
	RefType api.ValueType
	Init    []ConstExpr // each a ref.func/ref.null/global.get const-expr.
}

// MemoryType is a local or imported memory's declared limits.
type MemoryType struct {
	Limits Limits
}

// TableType is a local or imported table's declared element type and size
// limits.
type TableType struct {
	RefType api.ValueType
	Limits  Limits
}

// GlobalType is a global's declared numeric type and mutability.
type GlobalType struct {
	ValType api.ValueType
	Mutable bool
}

// Global is one `global` section entry: its type and initialiser.
type Global struct {
	Type GlobalType
	Init ConstExpr
}

// Import describes one imported item: the two-level name plus its
// declared type, tagged by kind.
type Import struct {
	Module string
	Name   string
	Kind   api.ExternType

	// Exactly one of the following is meaningful, selected by Kind.
	FuncTypeIndex Index
	Table         TableType
	Memory        MemoryType
	Global        GlobalType
}

// ExportDesc is an unresolved export target: either a raw index (binary
// format) or a textual name (text format), resolved by the rewriter per
// spec.md §4.2 "Exports are collected unresolved".
type ExportDesc struct {
	Kind  api.ExternType
	Index Index
}

// Export is one `export` section entry.
type Export struct {
	Name string
	Desc ExportDesc
}

// Code is a local function's locals and body, keyed to the Function at the
// same position in the non-imported function slice.
type Code struct {
	Locals []Local
	Body   []Instr
}

// NamedCollection is an ordered sequence of a single kind's entries (local
// or imported, imports first) plus a name→index side map, per spec.md §3
// "named collection".
type NamedCollection struct {
	// Names maps a textual identifier to its dense index, when one was
	// declared.
	Names map[string]uint32
	// Len is the number of entries; entries themselves live on the typed
	// slices of Module (Types, Funcs, Tables, ...), Len just records the
	// count this collection was assigned.
	Len uint32
}

// LookupName resolves a textual identifier, returning false if undeclared.
func (c *NamedCollection) LookupName(name string) (uint32, bool) {
	if c == nil || c.Names == nil {
		return 0, false
	}
	idx, ok := c.Names[name]
	return idx, ok
}

// Module is the immutable, fully assigned and rewritten record described
// in spec.md §3 "Module (post-rewrite)". Raw, pre-rewrite modules (as
// produced directly by the decoder) use the same struct with Name fields
// left populated on Index values and named collections left partially
// built; see internal/assign and internal/rewrite.
type Module struct {
	Types []FunctionType

	// FuncTypeIndices[i] is the declared type of the *local* function i;
	// Code[i] is its body. Local function i occupies unified function
	// index ImportedFuncCount+i. Use FuncTypeAt for the unified view.
	FuncTypeIndices []Index
	// Code holds bodies for the local functions only, i.e.
	// Code[i] corresponds to function ImportedFuncCount+i.
	Code []Code

	// Tables, Memories, and Globals hold only the *locally defined*
	// entries of each kind; imported entries live on Imports and are
	// folded in by internal/assign into ImportedTables / ImportedMemories
	// / ImportedGlobals, so that index 0..ImportedXCount-1 of the unified
	// space is the import and the rest are these slices. This mirrors how
	// the binary format itself separates the import section from the
	// table/memory/global sections, per spec.md §4.2 "imports first
	// within their kind... then locals".
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global

	// ImportedFuncTypes, ImportedTables, ImportedMemories, and
	// ImportedGlobals are internal/assign's per-kind projection of
	// Imports, in source (= unified index) order. Populated by
	// internal/assign.Run.
	ImportedFuncTypes []Index
	ImportedTables    []TableType
	ImportedMemories  []MemoryType
	ImportedGlobals   []GlobalType

	Elems []ElementSegment
	Datas []DataSegment

	Imports []Import
	Exports []Export

	StartFunc *Index

	// DataCount is the optional data-count section value; when non-nil it
	// pins the number of Datas ahead of the code section so that
	// data.drop/memory.init validation does not require a second pass.
	DataCount *uint32

	// Funcs/TablesNames/... hold the name maps and per-kind counts built by
	// the grouper/assigner (spec.md §4.2); Len mirrors the corresponding
	// typed slice length except for functions/tables/memories/globals,
	// which include the imported prefix.
	FuncNames    NamedCollection
	TableNames   NamedCollection
	MemoryNames  NamedCollection
	GlobalNames  NamedCollection
	TypeNames    NamedCollection
	ElemNames    NamedCollection
	DataNames    NamedCollection

	// ImportedFuncCount etc. record how many entries of each kind's index
	// space are imports, i.e. the index of the first local entry.
	ImportedFuncCount   uint32
	ImportedTableCount  uint32
	ImportedMemoryCount uint32
	ImportedGlobalCount uint32

	// DeclaredRefs is the set of function indices that may legally be the
	// operand of `ref.func` inside a function body: those reachable via
	// ref.func in const-exprs or via export, per spec.md §4.4 "Pre-pass
	// for references".
	DeclaredRefs map[uint32]bool

	// Custom retains the name and raw bytes of every custom section, in
	// encounter order, per spec.md §4.1 ("Custom sections... contents are
	// retained by name but otherwise ignored").
	Custom []CustomSection
}

// CustomSection is one retained, opaque custom section.
type CustomSection struct {
	Name string
	Data []byte
}

// NumFuncs is the length of the unified function index space.
func (m *Module) NumFuncs() uint32 { return m.ImportedFuncCount + uint32(len(m.Code)) }

// NumTables is the length of the unified table index space.
func (m *Module) NumTables() uint32 { return m.ImportedTableCount + uint32(len(m.Tables)) }

// NumMemories is the length of the unified memory index space.
func (m *Module) NumMemories() uint32 { return m.ImportedMemoryCount + uint32(len(m.Memories)) }

// NumGlobals is the length of the unified global index space.
func (m *Module) NumGlobals() uint32 { return m.ImportedGlobalCount + uint32(len(m.Globals)) }

// FuncTypeAt returns the declared signature of unified function index idx.
func (m *Module) FuncTypeAt(idx uint32) *FunctionType {
	var ti Index
	if idx < m.ImportedFuncCount {
		ti = m.ImportedFuncTypes[idx]
	} else {
		ti = m.FuncTypeIndices[idx-m.ImportedFuncCount]
	}
	return &m.Types[ti.Num]
}

// FuncType is an alias of FuncTypeAt kept for call sites that already
// think in unified indices.
func (m *Module) FuncType(idx uint32) *FunctionType { return m.FuncTypeAt(idx) }

// TableTypeAt returns the declared type of unified table index idx.
func (m *Module) TableTypeAt(idx uint32) *TableType {
	if idx < m.ImportedTableCount {
		return &m.ImportedTables[idx]
	}
	return &m.Tables[idx-m.ImportedTableCount]
}

// MemoryTypeAt returns the declared type of unified memory index idx.
func (m *Module) MemoryTypeAt(idx uint32) *MemoryType {
	if idx < m.ImportedMemoryCount {
		return &m.ImportedMemories[idx]
	}
	return &m.Memories[idx-m.ImportedMemoryCount]
}

// GlobalTypeAt returns the declared type of unified global index idx.
func (m *Module) GlobalTypeAt(idx uint32) *GlobalType {
	if idx < m.ImportedGlobalCount {
		return &m.ImportedGlobals[idx]
	}
	return &m.Globals[idx-m.ImportedGlobalCount].Type
}

// IsImportedFunc reports whether function idx is satisfied by an import.
func (m *Module) IsImportedFunc(idx uint32) bool { return idx < m.ImportedFuncCount }

// LocalTypes returns the full 0-based local-index space of a function
// body: its declared parameters followed by its declared locals,
// expanded from the run-length Local groups of the binary format.
func LocalTypes(sig *FunctionType, locals []Local) []api.ValueType {
	types := append([]api.ValueType(nil), sig.Params...)
	for _, l := range locals {
		for i := uint32(0); i < l.Count; i++ {
			types = append(types, l.Type)
		}
	}
	return types
}
