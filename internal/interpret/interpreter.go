package interpret

import (
	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/link"
	"github.com/wasmkit/owi/internal/wasm"
)

// Interpreter runs Wasm code through an Algebra[V]; it holds no
// per-call state of its own so one Interpreter is safe to reuse
// concurrently across calls that don't share a call stack.
type Interpreter[V any] struct {
	alg Algebra[V]
}

// New builds an Interpreter driven by alg.
func New[V any](alg Algebra[V]) *Interpreter[V] { return &Interpreter[V]{alg: alg} }

// Outcome is one terminal path of a CallAllV invocation: a normal
// completion carries Results, a trap carries Err, and either way Alg is
// that path's own algebra fork (its path condition, for symbolic runs).
type Outcome[V any] struct {
	Results []V
	Alg     Algebra[V]
	Err     error
}

// Call satisfies link.Engine, and is also the embedder-facing entry
// point for concrete execution: it invokes fn with args and returns its
// results. Concrete algebras never fork (Branch always returns exactly
// one arm), so CallAllV always yields exactly one Outcome here.
func (it *Interpreter[V]) Call(fn *link.FunctionInstance, args []uint64) (results []uint64, err error) {
	vargs := make([]V, len(args))
	for i, a := range args {
		var t api.ValueType
		if i < len(fn.Type.Params) {
			t = fn.Type.Params[i]
		}
		vargs[i] = it.alg.ConstNum(t, a)
	}

	o := it.CallAllV(fn, vargs)[0]
	if o.Err != nil {
		return nil, o.Err
	}
	results = make([]uint64, len(o.Results))
	for i, v := range o.Results {
		results[i] = it.alg.Bits(v)
	}
	return results, nil
}

// CallV is Call's typed counterpart for embedders working directly in V
// (e.g. the symbolic CLI driver, which needs the result expressions, not
// just their concrete bits). Like Call, it reports only the first
// terminal path; callers that need every forked path call CallAllV
// directly.
func (it *Interpreter[V]) CallV(fn *link.FunctionInstance, args []V) (results []V, err error) {
	o := it.CallAllV(fn, args)[0]
	return o.Results, o.Err
}

// CallAllV runs fn to every terminal path a symbolic algebra's branch
// forking can produce, returning one Outcome per path. A concrete
// algebra always yields a single-element slice.
func (it *Interpreter[V]) CallAllV(fn *link.FunctionInstance, args []V) []Outcome[V] {
	crs := it.callMulti(fn, args, it.alg)
	outs := make([]Outcome[V], len(crs))
	for i, cr := range crs {
		outs[i] = Outcome[V]{Results: cr.results, Alg: cr.alg, Err: cr.err}
	}
	return outs
}

// callResult is callMulti's internal counterpart to Outcome, keyed to
// whichever algebra fork produced it.
type callResult[V any] struct {
	results []V
	alg     Algebra[V]
	err     error
}

// callMulti dispatches a single call (host or Wasm body) under alg,
// returning one callResult per terminal path the callee's own branching
// produced. A trap anywhere on a path is folded into that path's err
// rather than panicking past this call, so sibling paths are unaffected.
func (it *Interpreter[V]) callMulti(fn *link.FunctionInstance, args []V, alg Algebra[V]) []callResult[V] {
	if fn.HostSymbol != "" {
		hs, ok := alg.(HostSymbolic[V])
		if !ok {
			return []callResult[V]{{alg: alg, err: wasm.NewTrap(wasm.TrapUnreachable)}}
		}
		switch fn.HostSymbol {
		case "i32":
			return []callResult[V]{{results: []V{hs.NewSymbol()}, alg: alg}}
		case "assume":
			hs.Assume(args[0])
			return []callResult[V]{{alg: alg}}
		case "assert":
			b := int32(0)
			if hs.AssertHolds(args[0]) {
				b = 1
			}
			return []callResult[V]{{results: []V{alg.ConstNum(api.ValueTypeI32, api.EncodeI32(b))}, alg: alg}}
		default:
			return []callResult[V]{{alg: alg, err: wasm.NewTrap(wasm.TrapUnreachable)}}
		}
	}

	if fn.IsHost() {
		bits := make([]uint64, len(args))
		for i, a := range args {
			bits[i] = alg.Bits(a)
		}
		out, err := fn.Host(bits)
		if err != nil {
			if te, ok := err.(*wasm.TrapError); ok {
				return []callResult[V]{{alg: alg, err: te}}
			}
			panic(err)
		}
		results := make([]V, len(out))
		for i, b := range out {
			var t api.ValueType
			if i < len(fn.Type.Results) {
				t = fn.Type.Results[i]
			}
			results[i] = alg.ConstNum(t, b)
		}
		return []callResult[V]{{results: results, alg: alg}}
	}

	locals := wasm.LocalTypes(fn.Type, fn.Code.Locals)
	frame := make([]V, len(locals))
	copy(frame, args)
	for i := len(args); i < len(locals); i++ {
		frame[i] = zero(alg, locals[i])
	}

	ce := &callEngine[V]{it: it, inst: fn.Instance, locals: frame, alg: alg}
	outs := ce.execBody(fn.Code.Body)

	n := len(fn.Type.Results)
	results := make([]callResult[V], 0, len(outs))
	for _, o := range outs {
		switch o.sig.kind {
		case sigTrap:
			results = append(results, callResult[V]{alg: o.ce.alg, err: o.sig.err})
		case sigReturn, sigNone:
			results = append(results, callResult[V]{results: o.ce.popN(n), alg: o.ce.alg})
		default:
			// A bare br out of the function body cannot happen:
			// internal/rewrite only accepts branch depths within the
			// function's own block nesting.
			panic(wasm.NewStaticError("internal/interpret: branch escaped function body"))
		}
	}
	return results
}

func zero[V any](alg Algebra[V], t api.ValueType) V {
	switch t {
	case api.ValueTypeFuncref, api.ValueTypeExternref:
		return alg.RefNull()
	default:
		return alg.ConstNum(t, 0)
	}
}

// sigKind classifies abrupt completion of an instruction sequence.
type sigKind int

const (
	sigNone sigKind = iota
	sigBranch
	sigReturn
	sigTrap
)

type signal struct {
	kind  sigKind
	depth uint32 // valid iff kind == sigBranch
	err   error  // valid iff kind == sigTrap
}

var noSignal = signal{kind: sigNone}

// outcome pairs a signal with the (possibly forked) callEngine it
// belongs to — execBody and its callees return a slice of these per
// instruction sequence, one per live branch-forked continuation.
type outcome[V any] struct {
	ce  *callEngine[V]
	sig signal
}

func single[V any](ce *callEngine[V], sig signal) []outcome[V] {
	return []outcome[V]{{ce: ce, sig: sig}}
}

// callEngine holds the per-call value stack, frame locals, and the
// algebra this particular fork is running under. A branch that forks
// clones a callEngine (stack, locals) and swaps in the forked algebra;
// every other fork shares the interpreter and instance.
type callEngine[V any] struct {
	it     *Interpreter[V]
	inst   *link.Instance
	locals []V
	stack  []V
	alg    Algebra[V]
}

func (ce *callEngine[V]) push(v V)      { ce.stack = append(ce.stack, v) }
func (ce *callEngine[V]) pop() V        { v := ce.stack[len(ce.stack)-1]; ce.stack = ce.stack[:len(ce.stack)-1]; return v }
func (ce *callEngine[V]) height() int   { return len(ce.stack) }
func (ce *callEngine[V]) truncTo(h int) { ce.stack = ce.stack[:h] }

func (ce *callEngine[V]) popN(n int) []V {
	out := append([]V(nil), ce.stack[len(ce.stack)-n:]...)
	ce.stack = ce.stack[:len(ce.stack)-n]
	return out
}

func (ce *callEngine[V]) pushN(vs []V) { ce.stack = append(ce.stack, vs...) }

func (ce *callEngine[V]) trap(kind wasm.TrapKind) { panic(wasm.NewTrap(kind)) }

// fork clones ce's stack and locals under a different algebra — the
// callEngine half of forking a branch arm. The clone shares the
// interpreter and instance (neither mutates per-path) but owns an
// independent stack/locals so the two continuations never alias.
func (ce *callEngine[V]) fork(alg Algebra[V]) *callEngine[V] {
	return &callEngine[V]{
		it:     ce.it,
		inst:   ce.inst,
		locals: append([]V(nil), ce.locals...),
		stack:  append([]V(nil), ce.stack...),
		alg:    alg,
	}
}

// execBody runs instrs to completion (or to the first abrupt signal) for
// every live continuation descending from ce, recursing one instruction
// at a time so a fork partway through instrs naturally continues as two
// independent recursive calls. The deferred recover here is scoped to
// this one call frame: a trap raised while running instrs[0] is caught
// right here and folded into a sigTrap outcome for this continuation
// only, leaving sibling continuations (forked earlier, in an enclosing
// frame's loop over outcomes) untouched.
func (ce *callEngine[V]) execBody(instrs []wasm.Instr) (outs []outcome[V]) {
	if len(instrs) == 0 {
		return single(ce, noSignal)
	}
	defer func() {
		if r := recover(); r != nil {
			if te, ok := r.(*wasm.TrapError); ok {
				outs = single(ce, signal{kind: sigTrap, err: te})
				return
			}
			panic(r)
		}
	}()

	heads := ce.execInstr(&instrs[0])
	for _, h := range heads {
		if h.sig.kind != sigNone {
			outs = append(outs, h)
			continue
		}
		outs = append(outs, h.ce.execBody(instrs[1:])...)
	}
	return outs
}
