package interpret

import (
	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/link"
	"github.com/wasmkit/owi/internal/wasm"
)

// execInstr runs one instruction and reports, per live continuation, its
// abrupt completion if any. Every opcode except the control-flow and
// call family produces exactly one outcome sharing ce; those that
// consult Algebra.Branch may fork and so can produce more than one.
func (ce *callEngine[V]) execInstr(in *wasm.Instr) []outcome[V] {
	switch in.Op {
	case wasm.OpUnreachable:
		ce.trap(wasm.TrapUnreachable)
	case wasm.OpNop:
		// no-op

	case wasm.OpBlock:
		return ce.execBlock(in)
	case wasm.OpLoop:
		return ce.execLoop(in)
	case wasm.OpIf:
		return ce.execIf(in)
	case wasm.OpBr:
		return single(ce, signal{kind: sigBranch, depth: in.Idx.Num})
	case wasm.OpBrIf:
		cond := ce.pop()
		return ce.forkBranch(ce.alg.Branch(cond), in.Idx.Num)
	case wasm.OpBrTable:
		idx := ce.alg.Bits(ce.pop())
		depth := in.Idx.Num
		if int(idx) < len(in.Targets) {
			depth = in.Targets[idx].Num
		}
		return single(ce, signal{kind: sigBranch, depth: depth})
	case wasm.OpReturn:
		return single(ce, signal{kind: sigReturn})

	case wasm.OpCall:
		return ce.execCall(in.Idx.Num)
	case wasm.OpCallIndirect:
		return ce.execCallIndirect(in)

	case wasm.OpDrop:
		ce.pop()
	case wasm.OpSelect, wasm.OpSelectT:
		c := ce.pop()
		b := ce.pop()
		a := ce.pop()
		ce.push(ce.alg.Select(c, a, b))

	case wasm.OpLocalGet:
		ce.push(ce.locals[in.Idx.Num])
	case wasm.OpLocalSet:
		ce.locals[in.Idx.Num] = ce.pop()
	case wasm.OpLocalTee:
		v := ce.pop()
		ce.locals[in.Idx.Num] = v
		ce.push(v)
	case wasm.OpGlobalGet:
		ce.push(ce.globalToV(ce.inst.Globals[in.Idx.Num]))
	case wasm.OpGlobalSet:
		ce.setGlobal(in.Idx.Num, ce.pop())

	case wasm.OpTableGet:
		ce.execTableGet(in)
	case wasm.OpTableSet:
		ce.execTableSet(in)

	case wasm.OpI32Const:
		ce.push(ce.alg.ConstNum(api.ValueTypeI32, api.EncodeI32(in.I32)))
	case wasm.OpI64Const:
		ce.push(ce.alg.ConstNum(api.ValueTypeI64, api.EncodeI64(in.I64)))
	case wasm.OpF32Const:
		ce.push(ce.alg.ConstNum(api.ValueTypeF32, api.EncodeF32(in.F32)))
	case wasm.OpF64Const:
		ce.push(ce.alg.ConstNum(api.ValueTypeF64, api.EncodeF64(in.F64)))

	case wasm.OpRefNull:
		ce.push(ce.alg.RefNull())
	case wasm.OpRefIsNull:
		v := ce.pop()
		b := int32(0)
		if ce.alg.IsNullRef(v) {
			b = 1
		}
		ce.push(ce.alg.ConstNum(api.ValueTypeI32, api.EncodeI32(b)))
	case wasm.OpRefFunc:
		ce.push(ce.alg.RefFunc(ce.inst.Funcs[in.Idx.Num]))

	case wasm.OpMemorySize:
		mem := ce.inst.Memories[in.Idx.Num]
		ce.push(ce.alg.ConstNum(api.ValueTypeI32, api.EncodeI32(int32(mem.PageCount()))))
	case wasm.OpMemoryGrow:
		mem := ce.inst.Memories[in.Idx.Num]
		delta := uint32(ce.alg.Bits(ce.pop()))
		prev, ok := mem.Grow(delta)
		if !ok {
			ce.push(ce.alg.ConstNum(api.ValueTypeI32, api.EncodeI32(-1)))
		} else {
			ce.push(ce.alg.ConstNum(api.ValueTypeI32, api.EncodeI32(int32(prev))))
		}

	case wasm.OpI32Load:
		ce.execLoad(in, 4, false, api.ValueTypeI32)
	case wasm.OpI64Load:
		ce.execLoad(in, 8, false, api.ValueTypeI64)
	case wasm.OpF32Load:
		ce.execLoad(in, 4, false, api.ValueTypeF32)
	case wasm.OpF64Load:
		ce.execLoad(in, 8, false, api.ValueTypeF64)
	case wasm.OpI32Load8S:
		ce.execLoad(in, 1, true, api.ValueTypeI32)
	case wasm.OpI32Load8U:
		ce.execLoad(in, 1, false, api.ValueTypeI32)
	case wasm.OpI32Load16S:
		ce.execLoad(in, 2, true, api.ValueTypeI32)
	case wasm.OpI32Load16U:
		ce.execLoad(in, 2, false, api.ValueTypeI32)
	case wasm.OpI64Load8S:
		ce.execLoad(in, 1, true, api.ValueTypeI64)
	case wasm.OpI64Load8U:
		ce.execLoad(in, 1, false, api.ValueTypeI64)
	case wasm.OpI64Load16S:
		ce.execLoad(in, 2, true, api.ValueTypeI64)
	case wasm.OpI64Load16U:
		ce.execLoad(in, 2, false, api.ValueTypeI64)
	case wasm.OpI64Load32S:
		ce.execLoad(in, 4, true, api.ValueTypeI64)
	case wasm.OpI64Load32U:
		ce.execLoad(in, 4, false, api.ValueTypeI64)

	case wasm.OpI32Store, wasm.OpF32Store:
		ce.execStore(in, 4)
	case wasm.OpI64Store, wasm.OpF64Store:
		ce.execStore(in, 8)
	case wasm.OpI32Store8, wasm.OpI64Store8:
		ce.execStore(in, 1)
	case wasm.OpI32Store16, wasm.OpI64Store16:
		ce.execStore(in, 2)
	case wasm.OpI64Store32:
		ce.execStore(in, 4)

	case wasm.OpMemoryInit:
		ce.execMemoryInit(in)
	case wasm.OpDataDrop:
		ce.inst.DroppedData[in.Idx.Num] = true
	case wasm.OpMemoryCopy:
		ce.execMemoryCopy(in)
	case wasm.OpMemoryFill:
		ce.execMemoryFill(in)
	case wasm.OpTableInit:
		ce.execTableInit(in)
	case wasm.OpElemDrop:
		ce.inst.DroppedElem[in.Idx.Num] = true
	case wasm.OpTableCopy:
		ce.execTableCopy(in)
	case wasm.OpTableGrow:
		ce.execTableGrow(in)
	case wasm.OpTableSize:
		tbl := ce.inst.Tables[in.Idx.Num]
		ce.push(ce.alg.ConstNum(api.ValueTypeI32, api.EncodeI32(int32(len(tbl.Elems)))))
	case wasm.OpTableFill:
		ce.execTableFill(in)

	default:
		ce.push(ce.alg.Eval(in.Op, ce.popN(evalArity(in.Op))))
	}
	return single(ce, noSignal)
}

// forkBranch turns Algebra.Branch's returned arms into outcomes: the
// first arm reuses ce in place (no clone needed, since it's the only
// continuation so far), every further arm gets its own forked
// callEngine. A taken arm's outcome carries the branch signal; a
// not-taken arm falls through with no signal.
func (ce *callEngine[V]) forkBranch(arms []BranchArm[V], depth uint32) []outcome[V] {
	outs := make([]outcome[V], 0, len(arms))
	for i, arm := range arms {
		fce := ce
		if i > 0 {
			fce = ce.fork(arm.Alg)
		} else {
			fce.alg = arm.Alg
		}
		sig := noSignal
		if arm.Taken {
			sig = signal{kind: sigBranch, depth: depth}
		}
		outs = append(outs, outcome[V]{ce: fce, sig: sig})
	}
	return outs
}

// forkCond is forkBranch without a depth, used by execIf: it forks one
// callEngine per arm and reports only whether that fork took the "then"
// side, leaving the caller to pick which body to run.
type condFork[V any] struct {
	ce    *callEngine[V]
	taken bool
}

func (ce *callEngine[V]) forkCond(arms []BranchArm[V]) []condFork[V] {
	out := make([]condFork[V], 0, len(arms))
	for i, arm := range arms {
		fce := ce
		if i > 0 {
			fce = ce.fork(arm.Alg)
		} else {
			fce.alg = arm.Alg
		}
		out = append(out, condFork[V]{ce: fce, taken: arm.Taken})
	}
	return out
}

// resetTo discards everything above pre except the top n values, which are
// kept in place — the "forget what a block pushed above its entry height,
// keep only the label's arity" rule shared by a block/if/loop falling off
// its end and by a branch caught at that same level.
func (ce *callEngine[V]) resetTo(pre, n int) {
	vals := ce.popN(n)
	ce.truncTo(pre)
	ce.pushN(vals)
}

func (ce *callEngine[V]) execBlock(in *wasm.Instr) []outcome[V] {
	bt := in.BlockType.Resolved
	pre := ce.height() - len(bt.Params)
	outs := ce.execBody(in.Then)
	for i := range outs {
		outs[i].sig = outs[i].ce.exitStructured(outs[i].sig, pre, len(bt.Results))
	}
	return outs
}

func (ce *callEngine[V]) execIf(in *wasm.Instr) []outcome[V] {
	bt := in.BlockType.Resolved
	cond := ce.pop()
	pre := ce.height() - len(bt.Params)

	var outs []outcome[V]
	for _, arm := range ce.forkCond(ce.alg.Branch(cond)) {
		body := in.Else
		if arm.taken {
			body = in.Then
		}
		for _, o := range arm.ce.execBody(body) {
			o.sig = o.ce.exitStructured(o.sig, pre, len(bt.Results))
			outs = append(outs, o)
		}
	}
	return outs
}

func (ce *callEngine[V]) execLoop(in *wasm.Instr) []outcome[V] {
	bt := in.BlockType.Resolved
	pre := ce.height() - len(bt.Params)

	queue := []*callEngine[V]{ce}
	var final []outcome[V]
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, o := range cur.execBody(in.Then) {
			switch o.sig.kind {
			case sigBranch:
				if o.sig.depth == 0 {
					o.ce.resetTo(pre, len(bt.Params))
					queue = append(queue, o.ce)
				} else {
					final = append(final, outcome[V]{ce: o.ce, sig: signal{kind: sigBranch, depth: o.sig.depth - 1}})
				}
			case sigReturn, sigTrap:
				final = append(final, o)
			default:
				o.ce.resetTo(pre, len(bt.Results))
				final = append(final, outcome[V]{ce: o.ce, sig: noSignal})
			}
		}
	}
	return final
}

// exitStructured finishes a block or if once its body has run, catching a
// branch targeting this level (depth 0) as normal completion and
// decrementing a branch still headed further out. A trap or return passes
// through untouched.
func (ce *callEngine[V]) exitStructured(sig signal, pre, arity int) signal {
	switch sig.kind {
	case sigBranch:
		if sig.depth == 0 {
			ce.resetTo(pre, arity)
			return noSignal
		}
		return signal{kind: sigBranch, depth: sig.depth - 1}
	case sigReturn, sigTrap:
		return sig
	default:
		ce.resetTo(pre, arity)
		return noSignal
	}
}

// execCall and execCallIndirect dispatch through Interpreter.callMulti,
// which can itself return more than one terminal path when the callee's
// own body forks; this continuation forks once per such path, pushing
// that path's results onto its own clone before continuing.
func (ce *callEngine[V]) execCall(idx uint32) []outcome[V] {
	fn := ce.inst.Funcs[idx]
	args := ce.popN(len(fn.Type.Params))
	return ce.forkCall(ce.it.callMulti(fn, args, ce.alg))
}

func (ce *callEngine[V]) execCallIndirect(in *wasm.Instr) []outcome[V] {
	tbl := ce.inst.Tables[in.Idx2.Num]
	want := &ce.inst.Module.Types[in.Idx.Num]
	idx := ce.alg.Bits(ce.pop())
	if idx >= uint64(len(tbl.Elems)) {
		ce.trap(wasm.TrapUndefinedElement)
	}
	elem := tbl.Elems[idx]
	if elem == nil {
		ce.trap(wasm.TrapUninitializedElement)
	}
	fn, ok := elem.(*link.FunctionInstance)
	if !ok || !want.Equal(fn.Type) {
		ce.trap(wasm.TrapIndirectCallTypeMismatch)
	}
	args := ce.popN(len(fn.Type.Params))
	return ce.forkCall(ce.it.callMulti(fn, args, ce.alg))
}

func (ce *callEngine[V]) forkCall(results []callResult[V]) []outcome[V] {
	outs := make([]outcome[V], 0, len(results))
	for i, r := range results {
		fce := ce
		if i > 0 {
			fce = ce.fork(r.alg)
		} else {
			fce.alg = r.alg
		}
		if r.err != nil {
			outs = append(outs, outcome[V]{ce: fce, sig: signal{kind: sigTrap, err: r.err}})
			continue
		}
		fce.pushN(r.results)
		outs = append(outs, outcome[V]{ce: fce, sig: noSignal})
	}
	return outs
}

func (ce *callEngine[V]) execTableGet(in *wasm.Instr) {
	tbl := ce.inst.Tables[in.Idx.Num]
	idx := ce.alg.Bits(ce.pop())
	if idx >= uint64(len(tbl.Elems)) {
		ce.trap(wasm.TrapOutOfBoundsTableAccess)
	}
	ce.push(ce.elemToV(tbl.Elems[idx]))
}

func (ce *callEngine[V]) execTableSet(in *wasm.Instr) {
	tbl := ce.inst.Tables[in.Idx.Num]
	v := ce.pop()
	idx := ce.alg.Bits(ce.pop())
	if idx >= uint64(len(tbl.Elems)) {
		ce.trap(wasm.TrapOutOfBoundsTableAccess)
	}
	tbl.Elems[idx] = ce.vToElem(v)
}

func (ce *callEngine[V]) elemToV(e link.TableElem) V {
	if e == nil {
		return ce.alg.RefNull()
	}
	if fn, ok := e.(*link.FunctionInstance); ok {
		return ce.alg.RefFunc(fn)
	}
	return ce.alg.RefExtern(e)
}

func (ce *callEngine[V]) vToElem(v V) link.TableElem {
	if ce.alg.IsNullRef(v) {
		return nil
	}
	fn, ext := ce.alg.RefTarget(v)
	if fn != nil {
		return fn
	}
	return ext
}

func (ce *callEngine[V]) globalToV(g *link.GlobalInstance) V {
	switch g.Type.ValType {
	case api.ValueTypeFuncref, api.ValueTypeExternref:
		return ce.elemToV(g.Ref)
	default:
		return ce.alg.ConstNum(g.Type.ValType, g.Num)
	}
}

func (ce *callEngine[V]) setGlobal(idx uint32, v V) {
	g := ce.inst.Globals[idx]
	switch g.Type.ValType {
	case api.ValueTypeFuncref, api.ValueTypeExternref:
		g.Ref = ce.vToElem(v)
	default:
		g.Num = ce.alg.Bits(v)
	}
}

// effectiveAddr computes a memory instruction's base+offset address; the
// addition happens in 64 bits so it can never wrap before the bounds check
// in execLoad/execStore catches it.
func (ce *callEngine[V]) effectiveAddr(memarg wasm.Memarg) uint64 {
	base := uint32(ce.alg.Bits(ce.pop()))
	return uint64(base) + uint64(memarg.Offset)
}

func (ce *callEngine[V]) execLoad(in *wasm.Instr, width int, signed bool, vt api.ValueType) {
	mem := ce.inst.Memories[0]
	ea := ce.effectiveAddr(in.Memarg)
	if ea+uint64(width) > uint64(len(mem.Data)) {
		ce.trap(wasm.TrapOutOfBoundsMemoryAccess)
	}
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(mem.Data[ea+uint64(i)]) << (8 * i)
	}
	if signed && width < 8 {
		shift := uint(64 - 8*width)
		v = uint64(int64(v<<shift) >> shift)
	}
	ce.push(ce.alg.ConstNum(vt, v))
}

func (ce *callEngine[V]) execStore(in *wasm.Instr, width int) {
	mem := ce.inst.Memories[0]
	v := ce.alg.Bits(ce.pop())
	ea := ce.effectiveAddr(in.Memarg)
	if ea+uint64(width) > uint64(len(mem.Data)) {
		ce.trap(wasm.TrapOutOfBoundsMemoryAccess)
	}
	for i := 0; i < width; i++ {
		mem.Data[ea+uint64(i)] = byte(v >> (8 * i))
	}
}

func (ce *callEngine[V]) execMemoryInit(in *wasm.Instr) {
	mem := ce.inst.Memories[in.Idx2.Num]
	seg := &ce.inst.Module.Datas[in.Idx.Num]
	n := uint32(ce.alg.Bits(ce.pop()))
	src := uint32(ce.alg.Bits(ce.pop()))
	dst := uint32(ce.alg.Bits(ce.pop()))
	if ce.inst.DroppedData[in.Idx.Num] {
		if n != 0 {
			ce.trap(wasm.TrapOutOfBoundsMemoryAccess)
		}
		return
	}
	if uint64(src)+uint64(n) > uint64(len(seg.Init)) || uint64(dst)+uint64(n) > uint64(len(mem.Data)) {
		ce.trap(wasm.TrapOutOfBoundsMemoryAccess)
	}
	copy(mem.Data[dst:dst+n], seg.Init[src:src+n])
}

func (ce *callEngine[V]) execMemoryCopy(in *wasm.Instr) {
	dstMem := ce.inst.Memories[in.Idx2.Num]
	srcMem := ce.inst.Memories[in.Idx.Num]
	n := uint32(ce.alg.Bits(ce.pop()))
	src := uint32(ce.alg.Bits(ce.pop()))
	dst := uint32(ce.alg.Bits(ce.pop()))
	if uint64(src)+uint64(n) > uint64(len(srcMem.Data)) || uint64(dst)+uint64(n) > uint64(len(dstMem.Data)) {
		ce.trap(wasm.TrapOutOfBoundsMemoryAccess)
	}
	copy(dstMem.Data[dst:dst+n], srcMem.Data[src:src+n])
}

func (ce *callEngine[V]) execMemoryFill(in *wasm.Instr) {
	mem := ce.inst.Memories[in.Idx.Num]
	n := uint32(ce.alg.Bits(ce.pop()))
	val := byte(ce.alg.Bits(ce.pop()))
	dst := uint32(ce.alg.Bits(ce.pop()))
	if uint64(dst)+uint64(n) > uint64(len(mem.Data)) {
		ce.trap(wasm.TrapOutOfBoundsMemoryAccess)
	}
	for i := uint32(0); i < n; i++ {
		mem.Data[dst+i] = val
	}
}

func (ce *callEngine[V]) execTableInit(in *wasm.Instr) {
	tbl := ce.inst.Tables[in.Idx2.Num]
	seg := &ce.inst.Module.Elems[in.Idx.Num]
	n := uint32(ce.alg.Bits(ce.pop()))
	src := uint32(ce.alg.Bits(ce.pop()))
	dst := uint32(ce.alg.Bits(ce.pop()))
	if ce.inst.DroppedElem[in.Idx.Num] {
		if n != 0 {
			ce.trap(wasm.TrapOutOfBoundsTableAccess)
		}
		return
	}
	if uint64(src)+uint64(n) > uint64(len(seg.Init)) || uint64(dst)+uint64(n) > uint64(len(tbl.Elems)) {
		ce.trap(wasm.TrapOutOfBoundsTableAccess)
	}
	for i := uint32(0); i < n; i++ {
		_, ref, err := link.EvalConstExpr(ce.inst, seg.RefType, seg.Init[src+i])
		if err != nil {
			panic(err)
		}
		tbl.Elems[dst+i] = ref
	}
}

func (ce *callEngine[V]) execTableCopy(in *wasm.Instr) {
	dstTbl := ce.inst.Tables[in.Idx.Num]
	srcTbl := ce.inst.Tables[in.Idx2.Num]
	n := uint32(ce.alg.Bits(ce.pop()))
	src := uint32(ce.alg.Bits(ce.pop()))
	dst := uint32(ce.alg.Bits(ce.pop()))
	if uint64(src)+uint64(n) > uint64(len(srcTbl.Elems)) || uint64(dst)+uint64(n) > uint64(len(dstTbl.Elems)) {
		ce.trap(wasm.TrapOutOfBoundsTableAccess)
	}
	copy(dstTbl.Elems[dst:dst+n], srcTbl.Elems[src:src+n])
}

func (ce *callEngine[V]) execTableGrow(in *wasm.Instr) {
	tbl := ce.inst.Tables[in.Idx.Num]
	n := uint32(ce.alg.Bits(ce.pop()))
	v := ce.pop()
	elem := ce.vToElem(v)
	prev := uint32(len(tbl.Elems))
	max := uint64(1<<32 - 1) // tables have no hard ceiling below 2^32 elements; Max narrows it per-table.
	if tbl.Max != nil {
		max = uint64(*tbl.Max)
	}
	if uint64(prev)+uint64(n) > max {
		ce.push(ce.alg.ConstNum(api.ValueTypeI32, api.EncodeI32(-1)))
		return
	}
	for i := uint32(0); i < n; i++ {
		tbl.Elems = append(tbl.Elems, elem)
	}
	ce.push(ce.alg.ConstNum(api.ValueTypeI32, api.EncodeI32(int32(prev))))
}

func (ce *callEngine[V]) execTableFill(in *wasm.Instr) {
	tbl := ce.inst.Tables[in.Idx.Num]
	n := uint32(ce.alg.Bits(ce.pop()))
	v := ce.pop()
	dst := uint32(ce.alg.Bits(ce.pop()))
	if uint64(dst)+uint64(n) > uint64(len(tbl.Elems)) {
		ce.trap(wasm.TrapOutOfBoundsTableAccess)
	}
	elem := ce.vToElem(v)
	for i := uint32(0); i < n; i++ {
		tbl.Elems[dst+i] = elem
	}
}

// evalArity reports the Algebra.Eval operand count of op: 1 for every
// unary arithmetic/comparison/conversion opcode, 2 otherwise. Every
// opcode reaching this table has already been classified in
// internal/validate's opSignatures; this is the interpreter's own
// parallel accounting of the same fixed arities, since pulling arity out
// of the stack-typing table would reach across a layer this package
// doesn't otherwise depend on.
var unaryEvalOps = map[wasm.Opcode]bool{
	wasm.OpI32Eqz: true, wasm.OpI64Eqz: true,
	wasm.OpI32Clz: true, wasm.OpI32Ctz: true, wasm.OpI32Popcnt: true,
	wasm.OpI64Clz: true, wasm.OpI64Ctz: true, wasm.OpI64Popcnt: true,

	wasm.OpF32Abs: true, wasm.OpF32Neg: true, wasm.OpF32Ceil: true, wasm.OpF32Floor: true,
	wasm.OpF32Trunc: true, wasm.OpF32Nearest: true, wasm.OpF32Sqrt: true,
	wasm.OpF64Abs: true, wasm.OpF64Neg: true, wasm.OpF64Ceil: true, wasm.OpF64Floor: true,
	wasm.OpF64Trunc: true, wasm.OpF64Nearest: true, wasm.OpF64Sqrt: true,

	wasm.OpI32WrapI64: true,
	wasm.OpI32TruncF32S: true, wasm.OpI32TruncF32U: true, wasm.OpI32TruncF64S: true, wasm.OpI32TruncF64U: true,
	wasm.OpI64ExtendI32S: true, wasm.OpI64ExtendI32U: true,
	wasm.OpI64TruncF32S: true, wasm.OpI64TruncF32U: true, wasm.OpI64TruncF64S: true, wasm.OpI64TruncF64U: true,
	wasm.OpF32ConvertI32S: true, wasm.OpF32ConvertI32U: true, wasm.OpF32ConvertI64S: true, wasm.OpF32ConvertI64U: true,
	wasm.OpF32DemoteF64: true,
	wasm.OpF64ConvertI32S: true, wasm.OpF64ConvertI32U: true, wasm.OpF64ConvertI64S: true, wasm.OpF64ConvertI64U: true,
	wasm.OpF64PromoteF32: true,
	wasm.OpI32ReinterpretF32: true, wasm.OpI64ReinterpretF64: true,
	wasm.OpF32ReinterpretI32: true, wasm.OpF64ReinterpretI64: true,
	wasm.OpI32Extend8S: true, wasm.OpI32Extend16S: true,
	wasm.OpI64Extend8S: true, wasm.OpI64Extend16S: true, wasm.OpI64Extend32S: true,

	wasm.OpI32TruncSatF32S: true, wasm.OpI32TruncSatF32U: true, wasm.OpI32TruncSatF64S: true, wasm.OpI32TruncSatF64U: true,
	wasm.OpI64TruncSatF32S: true, wasm.OpI64TruncSatF32U: true, wasm.OpI64TruncSatF64S: true, wasm.OpI64TruncSatF64U: true,
}

func evalArity(op wasm.Opcode) int {
	if unaryEvalOps[op] {
		return 1
	}
	return 2
}
