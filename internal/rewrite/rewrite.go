// Package rewrite implements the rewriter stage: it resolves name-bearing
// instructions and expressions into fully indexed form, normalises block
// types, validates constant expressions, and enforces the scope and
// mutability rules of spec.md §4.3.
package rewrite

import (
	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/wasm"
)

// Run resolves and validates m in place, returning it (or the first
// static error encountered; rewriting is fail-fast per spec.md §4.4
// "Failure model", which this stage shares).
func Run(m *wasm.Module) (*wasm.Module, error) {
	r := &rewriter{m: m}

	for i, g := range m.Globals {
		if err := r.constExpr(&m.Globals[i].Init, g.Type.ValType, nil); err != nil {
			return nil, err
		}
	}

	for i, seg := range m.Elems {
		if seg.Mode == wasm.ElemModeActive {
			tblIdx, err := r.resolveTableIdx(seg.Table)
			if err != nil {
				return nil, err
			}
			if m.TableTypeAt(tblIdx).RefType != seg.RefType {
				return nil, wasm.NewStaticError("type mismatch: active element segment refers to a table of a different reference type")
			}
			m.Elems[i].Table = wasm.FuncIndex(tblIdx)
			if err := r.constExpr(&m.Elems[i].Offset, api.ValueTypeI32, nil); err != nil {
				return nil, err
			}
		}
		for j := range seg.Init {
			if err := r.constExpr(&m.Elems[i].Init[j], seg.RefType, nil); err != nil {
				return nil, err
			}
		}
	}

	for i, seg := range m.Datas {
		if seg.Mode == wasm.DataModeActive {
			if m.NumMemories() == 0 {
				return nil, wasm.NewStaticError("unknown memory 0")
			}
			if err := r.constExpr(&m.Datas[i].Offset, api.ValueTypeI32, nil); err != nil {
				return nil, err
			}
		}
	}

	// Exports are resolved ahead of function bodies: a function reachable
	// only via export still belongs to the declared-references set that
	// bodies' own ref.func instructions are checked against, per spec.md
	// §4.4 "Pre-pass for references".
	for i, e := range m.Exports {
		if e.Desc.Kind == api.ExternTypeFunc {
			idx, err := r.resolveFuncIndex(e.Desc.Index)
			if err != nil {
				return nil, err
			}
			m.Exports[i].Desc.Index = wasm.FuncIndex(idx)
			if m.DeclaredRefs == nil {
				m.DeclaredRefs = map[uint32]bool{}
			}
			m.DeclaredRefs[idx] = true
		}
	}

	for i := range m.Code {
		fn := &m.Code[i]
		funcIdx := m.ImportedFuncCount + uint32(i)
		sig := m.FuncTypeAt(funcIdx)
		scope := newLocalScope(sig, fn.Locals)
		if err := r.block(fn.Body, sig.Results, scope, nil); err != nil {
			return nil, err
		}
	}

	if m.StartFunc != nil {
		idx, err := r.resolveFuncIndex(*m.StartFunc)
		if err != nil {
			return nil, err
		}
		sig := m.FuncTypeAt(idx)
		if len(sig.Params) != 0 || len(sig.Results) != 0 {
			return nil, wasm.NewStaticError("start function")
		}
		*m.StartFunc = wasm.FuncIndex(idx)
	}

	return m, nil
}

type rewriter struct {
	m *wasm.Module
}

// localScope is the parameter+local index space of one function body,
// shared 0-based per spec.md §3 "Function".
type localScope struct {
	types []api.ValueType
	names map[string]uint32
}

func newLocalScope(sig *wasm.FunctionType, locals []wasm.Local) *localScope {
	return &localScope{types: wasm.LocalTypes(sig, locals)}
}

func (s *localScope) resolve(idx wasm.Index) (uint32, error) {
	if idx.IsSymbolic() {
		n, ok := s.names[idx.Name]
		if !ok {
			return 0, wasm.NewStaticError("unknown local %s", idx.Name)
		}
		return n, nil
	}
	if idx.Num >= uint32(len(s.types)) {
		return 0, wasm.NewStaticError("unknown local %d", idx.Num)
	}
	return idx.Num, nil
}

// labelStack tracks enclosing structured-control labels for br/br_if/
// br_table resolution, per spec.md §4.3 "Label resolution": a stack of
// optional names, searched bottom-up (innermost-first) by name, or
// directly validated by depth for numeric labels.
type labelStack struct {
	names []string // "" for unnamed blocks.
}

func (ls *labelStack) push(name string) { ls.names = append(ls.names, name) }
func (ls *labelStack) pop()             { ls.names = ls.names[:len(ls.names)-1] }

// resolve returns the branch depth (0 = innermost) for idx, validating it
// against the current nesting depth.
func (ls *labelStack) resolve(idx wasm.Index) (uint32, error) {
	depth := uint32(len(ls.names))
	if idx.IsSymbolic() {
		for i := len(ls.names) - 1; i >= 0; i-- {
			if ls.names[i] == idx.Name {
				return uint32(len(ls.names)-1) - uint32(i), nil
			}
		}
		return 0, wasm.NewStaticError("unknown label %s", idx.Name)
	}
	if idx.Num >= depth {
		return 0, wasm.NewStaticError("unknown label %d", idx.Num)
	}
	return idx.Num, nil
}

func (r *rewriter) resolveFuncIndex(idx wasm.Index) (uint32, error) {
	if idx.IsSymbolic() {
		n, ok := r.m.FuncNames.LookupName(idx.Name)
		if !ok {
			return 0, wasm.NewStaticError("unknown function %s", idx.Name)
		}
		return n, nil
	}
	if idx.Num >= r.m.NumFuncs() {
		return 0, wasm.NewStaticError("unknown function %d", idx.Num)
	}
	return idx.Num, nil
}

func (r *rewriter) resolveGlobalIndex(idx wasm.Index) (uint32, error) {
	if idx.IsSymbolic() {
		n, ok := r.m.GlobalNames.LookupName(idx.Name)
		if !ok {
			return 0, wasm.NewStaticError("unknown global %s", idx.Name)
		}
		return n, nil
	}
	if idx.Num >= r.m.NumGlobals() {
		return 0, wasm.NewStaticError("unknown global %d", idx.Num)
	}
	return idx.Num, nil
}

func (r *rewriter) resolveTableIdx(idx wasm.Index) (uint32, error) {
	if idx.IsSymbolic() {
		n, ok := r.m.TableNames.LookupName(idx.Name)
		if !ok {
			return 0, wasm.NewStaticError("unknown table %s", idx.Name)
		}
		return n, nil
	}
	if idx.Num >= r.m.NumTables() {
		return 0, wasm.NewStaticError("unknown table %d", idx.Num)
	}
	return idx.Num, nil
}

func (r *rewriter) resolveTypeIdx(idx wasm.Index) (uint32, error) {
	if idx.Num >= uint32(len(r.m.Types)) {
		return 0, wasm.NewStaticError("unknown type %d", idx.Num)
	}
	return idx.Num, nil
}

// resolveBlockType normalises bt to an explicit (params, results) pair,
// per spec.md §4.3 "Block-type normalisation".
func (r *rewriter) resolveBlockType(bt *wasm.BlockType) error {
	switch bt.Kind {
	case wasm.BlockKindEmpty:
		bt.Resolved = &wasm.FunctionType{}
	case wasm.BlockKindValueType:
		bt.Resolved = &wasm.FunctionType{Results: []api.ValueType{bt.ValueType}}
	case wasm.BlockKindFuncType:
		idx, err := r.resolveTypeIdx(bt.TypeIndex)
		if err != nil {
			return err
		}
		bt.TypeIndex = wasm.FuncIndex(idx)
		bt.Resolved = &r.m.Types[idx]
	}
	return nil
}

// constExpr validates that ce is a constant expression per spec.md §4.3
// "Global-expression constraint": only {i32,i64,f32,f64}.const, ref.null,
// ref.func, and global.get of an *imported, immutable* global, and checks
// it produces a value of the expected type.
func (r *rewriter) constExpr(ce *wasm.ConstExpr, want api.ValueType, _ *localScope) error {
	if len(ce.Instrs) != 1 {
		if len(ce.Instrs) == 0 {
			return wasm.NewStaticError("constant expression required")
		}
		// Multi-instruction const-exprs (e.g. i32.const/i32.add chains
		// read by the decoder) are accepted: each instruction is checked
		// in turn and the last one's type is the expression's type. The
		// --optimize folding pass (FoldConstants) runs after this stage.
	}
	var got api.ValueType
	for i := range ce.Instrs {
		instr := &ce.Instrs[i]
		switch instr.Op {
		case wasm.OpI32Const:
			got = api.ValueTypeI32
		case wasm.OpI64Const:
			got = api.ValueTypeI64
		case wasm.OpF32Const:
			got = api.ValueTypeF32
		case wasm.OpF64Const:
			got = api.ValueTypeF64
		case wasm.OpRefNull:
			got = instr.RefType
		case wasm.OpRefFunc:
			idx, err := r.resolveFuncIndex(instr.Idx)
			if err != nil {
				return err
			}
			instr.Idx = wasm.FuncIndex(idx)
			if r.m.DeclaredRefs == nil {
				r.m.DeclaredRefs = map[uint32]bool{}
			}
			r.m.DeclaredRefs[idx] = true
			got = api.ValueTypeFuncref
		case wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul:
			got = api.ValueTypeI32 // FoldConstants, if enabled, folds i32.add chains only after this stage.
		case wasm.OpGlobalGet:
			idx, err := r.resolveGlobalIndex(instr.Idx)
			if err != nil {
				return err
			}
			if idx >= r.m.ImportedGlobalCount {
				return wasm.NewStaticError("constant expression required")
			}
			gt := r.m.GlobalTypeAt(idx)
			if gt.Mutable {
				return wasm.NewStaticError("constant expression required")
			}
			instr.Idx = wasm.FuncIndex(idx)
			got = gt.ValType
		default:
			return wasm.NewStaticError("constant expression required")
		}
	}
	if want != 0 && got != want {
		return wasm.NewStaticError("type mismatch: expected %s, got %s", api.ValueTypeName(want), api.ValueTypeName(got))
	}
	return nil
}

// block walks one structured-control body (a function body, or a
// block/loop/if arm), resolving every instruction's identifiers and
// validating label and memory-access rules. labels is the enclosing
// label stack; it is not mutated across sibling calls.
func (r *rewriter) block(instrs []wasm.Instr, _ []api.ValueType, scope *localScope, labels *labelStack) error {
	if labels == nil {
		labels = &labelStack{}
	}
	for i := range instrs {
		instr := &instrs[i]
		if err := r.instr(instr, scope, labels); err != nil {
			return err
		}
	}
	return nil
}

func (r *rewriter) instr(instr *wasm.Instr, scope *localScope, labels *labelStack) error {
	switch instr.Op {
	case wasm.OpBlock, wasm.OpLoop:
		if err := r.resolveBlockType(&instr.BlockType); err != nil {
			return err
		}
		labels.push("")
		if err := r.block(instr.Then, nil, scope, labels); err != nil {
			return err
		}
		labels.pop()
	case wasm.OpIf:
		if err := r.resolveBlockType(&instr.BlockType); err != nil {
			return err
		}
		labels.push("")
		if err := r.block(instr.Then, nil, scope, labels); err != nil {
			return err
		}
		if err := r.block(instr.Else, nil, scope, labels); err != nil {
			return err
		}
		labels.pop()
	case wasm.OpBr, wasm.OpBrIf:
		depth, err := labels.resolve(instr.Idx)
		if err != nil {
			return err
		}
		instr.Idx = wasm.FuncIndex(depth)
	case wasm.OpBrTable:
		for i, t := range instr.Targets {
			depth, err := labels.resolve(t)
			if err != nil {
				return err
			}
			instr.Targets[i] = wasm.FuncIndex(depth)
		}
		depth, err := labels.resolve(instr.Idx)
		if err != nil {
			return err
		}
		instr.Idx = wasm.FuncIndex(depth)
	case wasm.OpCall:
		idx, err := r.resolveFuncIndex(instr.Idx)
		if err != nil {
			return err
		}
		instr.Idx = wasm.FuncIndex(idx)
	case wasm.OpCallIndirect:
		typeIdx, err := r.resolveTypeIdx(instr.Idx)
		if err != nil {
			return err
		}
		tblIdx, err := r.resolveTableIdx(instr.Idx2)
		if err != nil {
			return err
		}
		instr.Idx = wasm.FuncIndex(typeIdx)
		instr.Idx2 = wasm.FuncIndex(tblIdx)
	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		idx, err := scope.resolve(instr.Idx)
		if err != nil {
			return err
		}
		instr.Idx = wasm.FuncIndex(idx)
	case wasm.OpGlobalGet:
		idx, err := r.resolveGlobalIndex(instr.Idx)
		if err != nil {
			return err
		}
		instr.Idx = wasm.FuncIndex(idx)
	case wasm.OpGlobalSet:
		idx, err := r.resolveGlobalIndex(instr.Idx)
		if err != nil {
			return err
		}
		if !r.m.GlobalTypeAt(idx).Mutable {
			return wasm.NewStaticError("global is immutable")
		}
		instr.Idx = wasm.FuncIndex(idx)
	case wasm.OpTableGet, wasm.OpTableSet, wasm.OpTableGrow, wasm.OpTableSize, wasm.OpTableFill:
		idx, err := r.resolveTableIdx(instr.Idx)
		if err != nil {
			return err
		}
		instr.Idx = wasm.FuncIndex(idx)
	case wasm.OpTableCopy:
		dst, err := r.resolveTableIdx(instr.Idx)
		if err != nil {
			return err
		}
		src, err := r.resolveTableIdx(instr.Idx2)
		if err != nil {
			return err
		}
		instr.Idx, instr.Idx2 = wasm.FuncIndex(dst), wasm.FuncIndex(src)
	case wasm.OpTableInit:
		if instr.Idx.Num >= uint32(len(r.m.Elems)) {
			return wasm.NewStaticError("unknown elem segment %d", instr.Idx.Num)
		}
		tblIdx, err := r.resolveTableIdx(instr.Idx2)
		if err != nil {
			return err
		}
		instr.Idx2 = wasm.FuncIndex(tblIdx)
	case wasm.OpElemDrop:
		if instr.Idx.Num >= uint32(len(r.m.Elems)) {
			return wasm.NewStaticError("unknown elem segment %d", instr.Idx.Num)
		}
	case wasm.OpMemoryInit:
		dataCount := uint32(len(r.m.Datas))
		if r.m.DataCount != nil {
			dataCount = *r.m.DataCount
		}
		if instr.Idx.Num >= dataCount {
			return wasm.NewStaticError("unknown data segment %d", instr.Idx.Num)
		}
		if r.m.NumMemories() == 0 {
			return wasm.NewStaticError("unknown memory 0")
		}
	case wasm.OpDataDrop:
		dataCount := uint32(len(r.m.Datas))
		if r.m.DataCount != nil {
			dataCount = *r.m.DataCount
		}
		if instr.Idx.Num >= dataCount {
			return wasm.NewStaticError("unknown data segment %d", instr.Idx.Num)
		}
	case wasm.OpMemoryCopy, wasm.OpMemoryFill, wasm.OpMemorySize, wasm.OpMemoryGrow:
		if r.m.NumMemories() == 0 {
			return wasm.NewStaticError("unknown memory 0")
		}
	case wasm.OpRefFunc:
		idx, err := r.resolveFuncIndex(instr.Idx)
		if err != nil {
			return err
		}
		if !r.m.DeclaredRefs[idx] {
			return wasm.NewStaticError("undeclared function reference")
		}
		instr.Idx = wasm.FuncIndex(idx)
	case wasm.OpSelectT:
		// BlockType already holds the decoded result type; nothing to
		// resolve.
	default:
		if isMemoryAccess(instr.Op) {
			if err := r.checkMemoryAccess(instr); err != nil {
				return err
			}
		}
	}
	return nil
}

// naturalWidthBytes returns the byte width of the value an access of op
// transfers between the stack and memory, used for alignment and
// straddling checks per spec.md §4.3/§4.6.
func naturalWidthBytes(op wasm.Opcode) uint32 {
	switch op {
	case wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI64Load8S, wasm.OpI64Load8U,
		wasm.OpI32Store8, wasm.OpI64Store8:
		return 1
	case wasm.OpI32Load16S, wasm.OpI32Load16U, wasm.OpI64Load16S, wasm.OpI64Load16U,
		wasm.OpI32Store16, wasm.OpI64Store16:
		return 2
	case wasm.OpI32Load, wasm.OpF32Load, wasm.OpI64Load32S, wasm.OpI64Load32U,
		wasm.OpI32Store, wasm.OpF32Store, wasm.OpI64Store32:
		return 4
	case wasm.OpI64Load, wasm.OpF64Load, wasm.OpI64Store, wasm.OpF64Store:
		return 8
	}
	return 0
}

func isMemoryAccess(op wasm.Opcode) bool {
	return naturalWidthBytes(op) != 0
}

// checkMemoryAccess enforces spec.md §4.3 "Memory-access validation".
func (r *rewriter) checkMemoryAccess(instr *wasm.Instr) error {
	if r.m.NumMemories() == 0 {
		return wasm.NewStaticError("unknown memory 0")
	}
	natural := naturalWidthBytes(instr.Op)
	if (uint64(1) << instr.Memarg.Align) > uint64(natural) {
		return wasm.NewStaticError("alignment must not be larger than natural")
	}
	return nil
}
