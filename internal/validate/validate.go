// Package validate implements the type checker: stack-polymorphic
// validation of each function body against a three-valued type lattice
// and control-frame discipline, per spec.md §4.4. It assumes its input
// has already passed internal/rewrite (indices resolved, block types
// normalised).
package validate

import (
	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/wasm"
)

// sval is a stack slot's type: a concrete api.ValueType, or one of the
// two stack-polymorphism meta-types below. Both sentinels are outside
// api.ValueType's byte range (0x6f-0x7f) so they never collide with a
// real value type.
type sval byte

const (
	// tAny represents the unreachable stack: produced after
	// `unreachable` or a taken `br`, it matches any required type and
	// absorbs any number of required stack slots.
	tAny sval = 0xFF
	// tSomething is a placeholder pushed in place of a concrete type
	// that stack polymorphism has left unconstrained, e.g. the result
	// of an untyped `select` when both operands are tAny.
	tSomething sval = 0xFE
)

func concrete(t api.ValueType) sval { return sval(t) }

func (t sval) isWildcard() bool { return t == tAny || t == tSomething }

// matchTypes is spec.md §4.4 "Matching": true if either side is a
// wildcard, or both are the same concrete type.
func matchTypes(req, got sval) bool {
	if req.isWildcard() || got.isWildcard() {
		return true
	}
	return req == got
}

func (t sval) String() string {
	switch t {
	case tAny:
		return "any"
	case tSomething:
		return "something"
	}
	return api.ValueTypeName(api.ValueType(t))
}

// ctrlFrame is one entry of the control-frame stack, per spec.md §4.4
// "Control frames".
type ctrlFrame struct {
	op         wasm.Opcode
	startTypes []sval // the block's parameters.
	endTypes   []sval // the block's results.
	height     int    // len(opds) at frame entry, i.e. below this frame's own operands.
	unreachable bool
}

// labelTypes is the branch target of the frame: a loop's target is its
// parameters (branching re-enters at the top); every other frame's
// target is its results.
func (f *ctrlFrame) labelTypes() []sval {
	if f.op == wasm.OpLoop {
		return f.startTypes
	}
	return f.endTypes
}

type validator struct {
	m          *wasm.Module
	localTypes []api.ValueType
	opds       []sval
	ctrls      []ctrlFrame
}

// Run type-checks every function body of m, returning the first
// violation as a *wasm.StaticError. m must already have been processed
// by internal/assign and internal/rewrite.
func Run(m *wasm.Module) error {
	for i := range m.Code {
		funcIdx := m.ImportedFuncCount + uint32(i)
		sig := m.FuncTypeAt(funcIdx)
		if err := checkFunction(m, sig, &m.Code[i]); err != nil {
			return err
		}
	}
	return nil
}

func checkFunction(m *wasm.Module, sig *wasm.FunctionType, code *wasm.Code) error {
	v := &validator{m: m}
	locals := wasm.LocalTypes(sig, code.Locals)
	v.localTypes = locals

	results := toSvals(sig.Results)
	v.pushCtrl(wasm.OpBlock, nil, results)
	if err := v.checkBody(code.Body); err != nil {
		return err
	}
	if _, err := v.popCtrl(); err != nil {
		return err
	}
	return nil
}

func toSvals(ts []api.ValueType) []sval {
	out := make([]sval, len(ts))
	for i, t := range ts {
		out[i] = concrete(t)
	}
	return out
}

const (
	i32 = sval(api.ValueTypeI32)
	i64 = sval(api.ValueTypeI64)
	f32 = sval(api.ValueTypeF32)
	f64 = sval(api.ValueTypeF64)
)

// opSig is an instruction's stack effect. pop lists required operand
// types from the current top of stack downward (i.e. pop[0] is checked
// against whatever is currently on top); push lists result types in the
// order they are pushed (push[len-1] ends on top).
type opSig struct{ pop, push []sval }

// opSignatures covers every instruction whose stack effect is a fixed,
// context-independent (pop, push) pair — the bulk of the arithmetic,
// comparison, conversion, and memory-access opcodes. Instructions whose
// effect depends on an operand (local/global/table/call/select) or on
// control structure are handled directly in checkInstr.
var opSignatures = map[wasm.Opcode]opSig{
	wasm.OpI32Eqz: {[]sval{i32}, []sval{i32}},
	wasm.OpI64Eqz: {[]sval{i64}, []sval{i32}},

	wasm.OpI32Clz: {[]sval{i32}, []sval{i32}}, wasm.OpI32Ctz: {[]sval{i32}, []sval{i32}}, wasm.OpI32Popcnt: {[]sval{i32}, []sval{i32}},
	wasm.OpI64Clz: {[]sval{i64}, []sval{i64}}, wasm.OpI64Ctz: {[]sval{i64}, []sval{i64}}, wasm.OpI64Popcnt: {[]sval{i64}, []sval{i64}},

	wasm.OpF32Abs: {[]sval{f32}, []sval{f32}}, wasm.OpF32Neg: {[]sval{f32}, []sval{f32}},
	wasm.OpF32Ceil: {[]sval{f32}, []sval{f32}}, wasm.OpF32Floor: {[]sval{f32}, []sval{f32}},
	wasm.OpF32Trunc: {[]sval{f32}, []sval{f32}}, wasm.OpF32Nearest: {[]sval{f32}, []sval{f32}}, wasm.OpF32Sqrt: {[]sval{f32}, []sval{f32}},
	wasm.OpF64Abs: {[]sval{f64}, []sval{f64}}, wasm.OpF64Neg: {[]sval{f64}, []sval{f64}},
	wasm.OpF64Ceil: {[]sval{f64}, []sval{f64}}, wasm.OpF64Floor: {[]sval{f64}, []sval{f64}},
	wasm.OpF64Trunc: {[]sval{f64}, []sval{f64}}, wasm.OpF64Nearest: {[]sval{f64}, []sval{f64}}, wasm.OpF64Sqrt: {[]sval{f64}, []sval{f64}},

	wasm.OpI32Add: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32Sub: {[]sval{i32, i32}, []sval{i32}},
	wasm.OpI32Mul: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32DivS: {[]sval{i32, i32}, []sval{i32}},
	wasm.OpI32DivU: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32RemS: {[]sval{i32, i32}, []sval{i32}},
	wasm.OpI32RemU: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32And: {[]sval{i32, i32}, []sval{i32}},
	wasm.OpI32Or: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32Xor: {[]sval{i32, i32}, []sval{i32}},
	wasm.OpI32Shl: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32ShrS: {[]sval{i32, i32}, []sval{i32}},
	wasm.OpI32ShrU: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32Rotl: {[]sval{i32, i32}, []sval{i32}},
	wasm.OpI32Rotr: {[]sval{i32, i32}, []sval{i32}},

	wasm.OpI64Add: {[]sval{i64, i64}, []sval{i64}}, wasm.OpI64Sub: {[]sval{i64, i64}, []sval{i64}},
	wasm.OpI64Mul: {[]sval{i64, i64}, []sval{i64}}, wasm.OpI64DivS: {[]sval{i64, i64}, []sval{i64}},
	wasm.OpI64DivU: {[]sval{i64, i64}, []sval{i64}}, wasm.OpI64RemS: {[]sval{i64, i64}, []sval{i64}},
	wasm.OpI64RemU: {[]sval{i64, i64}, []sval{i64}}, wasm.OpI64And: {[]sval{i64, i64}, []sval{i64}},
	wasm.OpI64Or: {[]sval{i64, i64}, []sval{i64}}, wasm.OpI64Xor: {[]sval{i64, i64}, []sval{i64}},
	wasm.OpI64Shl: {[]sval{i64, i64}, []sval{i64}}, wasm.OpI64ShrS: {[]sval{i64, i64}, []sval{i64}},
	wasm.OpI64ShrU: {[]sval{i64, i64}, []sval{i64}}, wasm.OpI64Rotl: {[]sval{i64, i64}, []sval{i64}},
	wasm.OpI64Rotr: {[]sval{i64, i64}, []sval{i64}},

	wasm.OpF32Add: {[]sval{f32, f32}, []sval{f32}}, wasm.OpF32Sub: {[]sval{f32, f32}, []sval{f32}},
	wasm.OpF32Mul: {[]sval{f32, f32}, []sval{f32}}, wasm.OpF32Div: {[]sval{f32, f32}, []sval{f32}},
	wasm.OpF32Min: {[]sval{f32, f32}, []sval{f32}}, wasm.OpF32Max: {[]sval{f32, f32}, []sval{f32}},
	wasm.OpF32Copysign: {[]sval{f32, f32}, []sval{f32}},

	wasm.OpF64Add: {[]sval{f64, f64}, []sval{f64}}, wasm.OpF64Sub: {[]sval{f64, f64}, []sval{f64}},
	wasm.OpF64Mul: {[]sval{f64, f64}, []sval{f64}}, wasm.OpF64Div: {[]sval{f64, f64}, []sval{f64}},
	wasm.OpF64Min: {[]sval{f64, f64}, []sval{f64}}, wasm.OpF64Max: {[]sval{f64, f64}, []sval{f64}},
	wasm.OpF64Copysign: {[]sval{f64, f64}, []sval{f64}},

	wasm.OpI32Eq: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32Ne: {[]sval{i32, i32}, []sval{i32}},
	wasm.OpI32LtS: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32LtU: {[]sval{i32, i32}, []sval{i32}},
	wasm.OpI32GtS: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32GtU: {[]sval{i32, i32}, []sval{i32}},
	wasm.OpI32LeS: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32LeU: {[]sval{i32, i32}, []sval{i32}},
	wasm.OpI32GeS: {[]sval{i32, i32}, []sval{i32}}, wasm.OpI32GeU: {[]sval{i32, i32}, []sval{i32}},

	wasm.OpI64Eq: {[]sval{i64, i64}, []sval{i32}}, wasm.OpI64Ne: {[]sval{i64, i64}, []sval{i32}},
	wasm.OpI64LtS: {[]sval{i64, i64}, []sval{i32}}, wasm.OpI64LtU: {[]sval{i64, i64}, []sval{i32}},
	wasm.OpI64GtS: {[]sval{i64, i64}, []sval{i32}}, wasm.OpI64GtU: {[]sval{i64, i64}, []sval{i32}},
	wasm.OpI64LeS: {[]sval{i64, i64}, []sval{i32}}, wasm.OpI64LeU: {[]sval{i64, i64}, []sval{i32}},
	wasm.OpI64GeS: {[]sval{i64, i64}, []sval{i32}}, wasm.OpI64GeU: {[]sval{i64, i64}, []sval{i32}},

	wasm.OpF32Eq: {[]sval{f32, f32}, []sval{i32}}, wasm.OpF32Ne: {[]sval{f32, f32}, []sval{i32}},
	wasm.OpF32Lt: {[]sval{f32, f32}, []sval{i32}}, wasm.OpF32Gt: {[]sval{f32, f32}, []sval{i32}},
	wasm.OpF32Le: {[]sval{f32, f32}, []sval{i32}}, wasm.OpF32Ge: {[]sval{f32, f32}, []sval{i32}},

	wasm.OpF64Eq: {[]sval{f64, f64}, []sval{i32}}, wasm.OpF64Ne: {[]sval{f64, f64}, []sval{i32}},
	wasm.OpF64Lt: {[]sval{f64, f64}, []sval{i32}}, wasm.OpF64Gt: {[]sval{f64, f64}, []sval{i32}},
	wasm.OpF64Le: {[]sval{f64, f64}, []sval{i32}}, wasm.OpF64Ge: {[]sval{f64, f64}, []sval{i32}},

	wasm.OpI32WrapI64: {[]sval{i64}, []sval{i32}},
	wasm.OpI32TruncF32S: {[]sval{f32}, []sval{i32}}, wasm.OpI32TruncF32U: {[]sval{f32}, []sval{i32}},
	wasm.OpI32TruncF64S: {[]sval{f64}, []sval{i32}}, wasm.OpI32TruncF64U: {[]sval{f64}, []sval{i32}},
	wasm.OpI64ExtendI32S: {[]sval{i32}, []sval{i64}}, wasm.OpI64ExtendI32U: {[]sval{i32}, []sval{i64}},
	wasm.OpI64TruncF32S: {[]sval{f32}, []sval{i64}}, wasm.OpI64TruncF32U: {[]sval{f32}, []sval{i64}},
	wasm.OpI64TruncF64S: {[]sval{f64}, []sval{i64}}, wasm.OpI64TruncF64U: {[]sval{f64}, []sval{i64}},
	wasm.OpF32ConvertI32S: {[]sval{i32}, []sval{f32}}, wasm.OpF32ConvertI32U: {[]sval{i32}, []sval{f32}},
	wasm.OpF32ConvertI64S: {[]sval{i64}, []sval{f32}}, wasm.OpF32ConvertI64U: {[]sval{i64}, []sval{f32}},
	wasm.OpF32DemoteF64: {[]sval{f64}, []sval{f32}},
	wasm.OpF64ConvertI32S: {[]sval{i32}, []sval{f64}}, wasm.OpF64ConvertI32U: {[]sval{i32}, []sval{f64}},
	wasm.OpF64ConvertI64S: {[]sval{i64}, []sval{f64}}, wasm.OpF64ConvertI64U: {[]sval{i64}, []sval{f64}},
	wasm.OpF64PromoteF32: {[]sval{f32}, []sval{f64}},
	wasm.OpI32ReinterpretF32: {[]sval{f32}, []sval{i32}}, wasm.OpI64ReinterpretF64: {[]sval{f64}, []sval{i64}},
	wasm.OpF32ReinterpretI32: {[]sval{i32}, []sval{f32}}, wasm.OpF64ReinterpretI64: {[]sval{i64}, []sval{f64}},

	wasm.OpI32Extend8S: {[]sval{i32}, []sval{i32}}, wasm.OpI32Extend16S: {[]sval{i32}, []sval{i32}},
	wasm.OpI64Extend8S: {[]sval{i64}, []sval{i64}}, wasm.OpI64Extend16S: {[]sval{i64}, []sval{i64}},
	wasm.OpI64Extend32S: {[]sval{i64}, []sval{i64}},

	wasm.OpI32TruncSatF32S: {[]sval{f32}, []sval{i32}}, wasm.OpI32TruncSatF32U: {[]sval{f32}, []sval{i32}},
	wasm.OpI32TruncSatF64S: {[]sval{f64}, []sval{i32}}, wasm.OpI32TruncSatF64U: {[]sval{f64}, []sval{i32}},
	wasm.OpI64TruncSatF32S: {[]sval{f32}, []sval{i64}}, wasm.OpI64TruncSatF32U: {[]sval{f32}, []sval{i64}},
	wasm.OpI64TruncSatF64S: {[]sval{f64}, []sval{i64}}, wasm.OpI64TruncSatF64U: {[]sval{f64}, []sval{i64}},

	wasm.OpI32Load: {[]sval{i32}, []sval{i32}}, wasm.OpI32Load8S: {[]sval{i32}, []sval{i32}},
	wasm.OpI32Load8U: {[]sval{i32}, []sval{i32}}, wasm.OpI32Load16S: {[]sval{i32}, []sval{i32}}, wasm.OpI32Load16U: {[]sval{i32}, []sval{i32}},
	wasm.OpI64Load: {[]sval{i32}, []sval{i64}}, wasm.OpI64Load8S: {[]sval{i32}, []sval{i64}}, wasm.OpI64Load8U: {[]sval{i32}, []sval{i64}},
	wasm.OpI64Load16S: {[]sval{i32}, []sval{i64}}, wasm.OpI64Load16U: {[]sval{i32}, []sval{i64}},
	wasm.OpI64Load32S: {[]sval{i32}, []sval{i64}}, wasm.OpI64Load32U: {[]sval{i32}, []sval{i64}},
	wasm.OpF32Load: {[]sval{i32}, []sval{f32}}, wasm.OpF64Load: {[]sval{i32}, []sval{f64}},

	wasm.OpI32Store: {[]sval{i32, i32}, nil}, wasm.OpI32Store8: {[]sval{i32, i32}, nil}, wasm.OpI32Store16: {[]sval{i32, i32}, nil},
	wasm.OpI64Store: {[]sval{i64, i32}, nil}, wasm.OpI64Store8: {[]sval{i64, i32}, nil},
	wasm.OpI64Store16: {[]sval{i64, i32}, nil}, wasm.OpI64Store32: {[]sval{i64, i32}, nil},
	wasm.OpF32Store: {[]sval{f32, i32}, nil}, wasm.OpF64Store: {[]sval{f64, i32}, nil},
}

func (v *validator) pushOpd(t sval) { v.opds = append(v.opds, t) }

func (v *validator) curFrame() *ctrlFrame { return &v.ctrls[len(v.ctrls)-1] }

// popOpd is spec.md §4.4's "Stack prefix match" applied one slot at a
// time: at a polymorphic (unreachable) frame's height, popping past the
// frame's real operands yields tAny rather than failing.
func (v *validator) popOpd() (sval, error) {
	f := v.curFrame()
	if len(v.opds) == f.height {
		if f.unreachable {
			return tAny, nil
		}
		return 0, wasm.NewStaticError("type mismatch: stack underflow")
	}
	t := v.opds[len(v.opds)-1]
	v.opds = v.opds[:len(v.opds)-1]
	return t, nil
}

func (v *validator) popOpdExpect(expect sval) (sval, error) {
	actual, err := v.popOpd()
	if err != nil {
		return 0, err
	}
	if !matchTypes(expect, actual) {
		return 0, wasm.NewStaticError("type mismatch: expected %s, got %s", expect, actual)
	}
	if actual == tAny {
		return expect, nil
	}
	return actual, nil
}

// popRef pops a reference-typed value (funcref or externref, or a
// wildcard), used by ref.is_null and table operations whose element
// type is not statically a single concrete type at this call site.
func (v *validator) popRef() (sval, error) {
	actual, err := v.popOpd()
	if err != nil {
		return 0, err
	}
	if actual.isWildcard() {
		return actual, nil
	}
	if actual != concrete(api.ValueTypeFuncref) && actual != concrete(api.ValueTypeExternref) {
		return 0, wasm.NewStaticError("type mismatch: expected a reference type, got %s", actual)
	}
	return actual, nil
}

// popSeq pops ts in order, each checked against the current stack top —
// i.e. ts[0] is matched against whatever is currently on top.
func (v *validator) popSeq(ts ...sval) error {
	for _, t := range ts {
		if _, err := v.popOpdExpect(t); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) pushSeq(ts ...sval) {
	for _, t := range ts {
		v.pushOpd(t)
	}
}

func (v *validator) pushCtrl(op wasm.Opcode, in, out []sval) {
	v.ctrls = append(v.ctrls, ctrlFrame{op: op, startTypes: in, endTypes: out, height: len(v.opds)})
	v.pushSeq(in...)
}

// popCtrl closes the innermost frame: its end types must match exactly
// what remains above its entry height.
func (v *validator) popCtrl() (*ctrlFrame, error) {
	f := v.curFrame()
	for i := len(f.endTypes) - 1; i >= 0; i-- {
		if _, err := v.popOpdExpect(f.endTypes[i]); err != nil {
			return nil, err
		}
	}
	if len(v.opds) != f.height {
		return nil, wasm.NewStaticError("type mismatch: values remaining on stack at end of block")
	}
	popped := *f
	v.ctrls = v.ctrls[:len(v.ctrls)-1]
	return &popped, nil
}

func (v *validator) setUnreachable() {
	f := v.curFrame()
	v.opds = v.opds[:f.height]
	f.unreachable = true
}

// branchFrame returns the control frame N levels up from the innermost
// (N=0 is innermost), per spec.md §4.3's depth convention already
// validated and resolved into instr.Idx.Num by internal/rewrite.
func (v *validator) branchFrame(depth uint32) (*ctrlFrame, error) {
	if int(depth) >= len(v.ctrls) {
		return nil, wasm.NewStaticError("unknown label %d", depth)
	}
	return &v.ctrls[len(v.ctrls)-1-int(depth)], nil
}

func (v *validator) checkBody(instrs []wasm.Instr) error {
	for i := range instrs {
		if err := v.checkInstr(&instrs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) checkInstr(instr *wasm.Instr) error {
	if s, ok := opSignatures[instr.Op]; ok {
		if err := v.popSeq(s.pop...); err != nil {
			return err
		}
		v.pushSeq(s.push...)
		return nil
	}

	switch instr.Op {
	case wasm.OpUnreachable:
		v.setUnreachable()
	case wasm.OpNop:
	case wasm.OpDrop:
		if _, err := v.popOpd(); err != nil {
			return err
		}
	case wasm.OpBlock, wasm.OpLoop:
		bt := instr.BlockType.Resolved
		in, out := toSvals(bt.Params), toSvals(bt.Results)
		if err := v.popSeq(reverse(in)...); err != nil {
			return err
		}
		v.pushCtrl(instr.Op, in, out)
		if err := v.checkBody(instr.Then); err != nil {
			return err
		}
		if _, err := v.popCtrl(); err != nil {
			return err
		}
		v.pushSeq(out...)
	case wasm.OpIf:
		if err := v.popSeq(i32); err != nil {
			return err
		}
		bt := instr.BlockType.Resolved
		in, out := toSvals(bt.Params), toSvals(bt.Results)
		if err := v.popSeq(reverse(in)...); err != nil {
			return err
		}
		if len(instr.Else) == 0 && !svalsEqual(in, out) {
			// An absent else is an empty body of type in->out; with zero
			// instructions that only validates when in and out coincide.
			return wasm.NewStaticError("type mismatch: if without else must have matching param and result types")
		}
		v.pushCtrl(wasm.OpIf, in, out)
		if err := v.checkBody(instr.Then); err != nil {
			return err
		}
		if _, err := v.popCtrl(); err != nil {
			return err
		}
		if len(instr.Else) > 0 {
			v.pushCtrl(wasm.OpIf, in, out)
			if err := v.checkBody(instr.Else); err != nil {
				return err
			}
			if _, err := v.popCtrl(); err != nil {
				return err
			}
		}
		v.pushSeq(out...)
	case wasm.OpBr:
		f, err := v.branchFrame(instr.Idx.Num)
		if err != nil {
			return err
		}
		if err := v.popSeq(reverse(f.labelTypes())...); err != nil {
			return err
		}
		v.setUnreachable()
	case wasm.OpBrIf:
		if err := v.popSeq(i32); err != nil {
			return err
		}
		f, err := v.branchFrame(instr.Idx.Num)
		if err != nil {
			return err
		}
		lt := f.labelTypes()
		if err := v.popSeq(reverse(lt)...); err != nil {
			return err
		}
		v.pushSeq(lt...)
	case wasm.OpBrTable:
		if err := v.popSeq(i32); err != nil {
			return err
		}
		def, err := v.branchFrame(instr.Idx.Num)
		if err != nil {
			return err
		}
		arity := len(def.labelTypes())
		for _, t := range instr.Targets {
			f, err := v.branchFrame(t.Num)
			if err != nil {
				return err
			}
			lt := f.labelTypes()
			if len(lt) != arity {
				return wasm.NewStaticError("type mismatch: br_table targets of differing arity")
			}
			if err := v.popSeq(reverse(lt)...); err != nil {
				return err
			}
			v.pushSeq(lt...)
		}
		if err := v.popSeq(reverse(def.labelTypes())...); err != nil {
			return err
		}
		v.setUnreachable()
	case wasm.OpReturn:
		f := &v.ctrls[0]
		if err := v.popSeq(reverse(f.endTypes)...); err != nil {
			return err
		}
		v.setUnreachable()
	case wasm.OpCall:
		sig := v.m.FuncTypeAt(instr.Idx.Num)
		if err := v.popSeq(reverse(toSvals(sig.Params))...); err != nil {
			return err
		}
		v.pushSeq(toSvals(sig.Results)...)
	case wasm.OpCallIndirect:
		if err := v.popSeq(i32); err != nil { // table element index
			return err
		}
		sig := &v.m.Types[instr.Idx.Num]
		if err := v.popSeq(reverse(toSvals(sig.Params))...); err != nil {
			return err
		}
		v.pushSeq(toSvals(sig.Results)...)
	case wasm.OpSelect:
		if err := v.popSeq(i32); err != nil {
			return err
		}
		t2, err := v.popOpd()
		if err != nil {
			return err
		}
		t1, err := v.popOpdExpect(t2)
		if err != nil {
			return err
		}
		switch {
		case t1 != tAny:
			v.pushOpd(t1)
		case t2 != tAny:
			v.pushOpd(t2)
		default:
			v.pushOpd(tSomething)
		}
	case wasm.OpSelectT:
		want := concrete(instr.BlockType.ValueType)
		if err := v.popSeq(i32, want, want); err != nil {
			return err
		}
		v.pushOpd(want)
	case wasm.OpLocalGet:
		t := concrete(v.localTypes[instr.Idx.Num])
		v.pushOpd(t)
	case wasm.OpLocalSet:
		t := concrete(v.localTypes[instr.Idx.Num])
		if err := v.popSeq(t); err != nil {
			return err
		}
	case wasm.OpLocalTee:
		t := concrete(v.localTypes[instr.Idx.Num])
		if err := v.popSeq(t); err != nil {
			return err
		}
		v.pushOpd(t)
	case wasm.OpGlobalGet:
		v.pushOpd(concrete(v.m.GlobalTypeAt(instr.Idx.Num).ValType))
	case wasm.OpGlobalSet:
		if err := v.popSeq(concrete(v.m.GlobalTypeAt(instr.Idx.Num).ValType)); err != nil {
			return err
		}
	case wasm.OpTableGet:
		if err := v.popSeq(i32); err != nil {
			return err
		}
		v.pushOpd(concrete(v.m.TableTypeAt(instr.Idx.Num).RefType))
	case wasm.OpTableSet:
		rt := concrete(v.m.TableTypeAt(instr.Idx.Num).RefType)
		if err := v.popSeq(rt, i32); err != nil {
			return err
		}
	case wasm.OpTableGrow:
		rt := concrete(v.m.TableTypeAt(instr.Idx.Num).RefType)
		if err := v.popSeq(i32, rt); err != nil {
			return err
		}
		v.pushOpd(i32)
	case wasm.OpTableSize:
		v.pushOpd(i32)
	case wasm.OpTableFill:
		rt := concrete(v.m.TableTypeAt(instr.Idx.Num).RefType)
		if err := v.popSeq(i32, rt, i32); err != nil {
			return err
		}
	case wasm.OpTableCopy, wasm.OpTableInit:
		if err := v.popSeq(i32, i32, i32); err != nil {
			return err
		}
	case wasm.OpElemDrop, wasm.OpDataDrop:
		// No stack effect; bounds already validated by internal/rewrite.
	case wasm.OpMemorySize:
		v.pushOpd(i32)
	case wasm.OpMemoryGrow:
		if err := v.popSeq(i32); err != nil {
			return err
		}
		v.pushOpd(i32)
	case wasm.OpMemoryCopy, wasm.OpMemoryFill, wasm.OpMemoryInit:
		if err := v.popSeq(i32, i32, i32); err != nil {
			return err
		}
	case wasm.OpRefNull:
		v.pushOpd(concrete(instr.RefType))
	case wasm.OpRefIsNull:
		if _, err := v.popRef(); err != nil {
			return err
		}
		v.pushOpd(i32)
	case wasm.OpRefFunc:
		v.pushOpd(concrete(api.ValueTypeFuncref))
	case wasm.OpI32Const:
		v.pushOpd(i32)
	case wasm.OpI64Const:
		v.pushOpd(i64)
	case wasm.OpF32Const:
		v.pushOpd(f32)
	case wasm.OpF64Const:
		v.pushOpd(f64)
	default:
		return wasm.NewStaticError("unsupported opcode %s in type checker", instr.Op.Name())
	}
	return nil
}

// reverse returns ts in reverse order, used to turn a "params in
// declaration order" slice into the "pop from current top first" order
// popSeq expects.
func reverse(ts []sval) []sval {
	out := make([]sval, len(ts))
	for i, t := range ts {
		out[len(ts)-1-i] = t
	}
	return out
}

func svalsEqual(a, b []sval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
