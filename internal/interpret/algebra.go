// Package interpret implements the stack-and-frame interpreter core of
// spec.md §4.6: a tree-walking machine over the post-rewrite, post-
// validate instruction shape, written once against a pluggable Algebra so
// the same dispatch logic drives both concrete execution
// (internal/values) and symbolic execution (internal/symbolic).
package interpret

import (
	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/link"
	"github.com/wasmkit/owi/internal/wasm"
)

// BranchArm is one successor Algebra.Branch hands back to the
// interpreter: Taken reports which side of the conditional this arm
// continues on, Alg is the (possibly forked) algebra the rest of that
// arm's execution runs under. A concrete algebra always returns exactly
// one arm. A symbolic algebra returns one arm per side it cannot prove
// unreachable, each carrying its own fork of the path condition —
// spec.md §4.6's eval_choice, up to two (bool, continuation) pairs.
type BranchArm[V any] struct {
	Taken bool
	Alg   Algebra[V]
}

// Algebra is the value/effect interface of spec.md §4.6 "value-algebra
// parametrisation". V is the runtime representation of one stack slot:
// internal/values.Value (a concrete lane plus an optional reference) for
// concrete execution, internal/symbolic.Value (an expression node) for
// symbolic execution.
//
// Branch is the interpreter's sole scheduling point (if, br_if) and is
// this package's rendering of eval_choice: it hands back every arm worth
// continuing on, each with its own algebra fork so sibling arms accrue
// independent path conditions. The interpreter forks its own call state
// (stack, locals) once per returned arm and keeps exploring each
// independently; a trap on one arm never aborts the others.
type Algebra[V any] interface {
	// ConstNum builds a numeric value from its operand-stack lane
	// encoding (api.EncodeI32 and friends) and declared type.
	ConstNum(t api.ValueType, lane uint64) V
	RefNull() V
	RefFunc(fn *link.FunctionInstance) V
	RefExtern(v any) V
	IsNullRef(v V) bool
	// RefTarget decodes a non-null reference: exactly one of the two
	// results is non-nil, selected by whether it is a funcref or
	// externref.
	RefTarget(v V) (fn *link.FunctionInstance, ext any)

	// Eval computes a fixed-effect numeric instruction (the same opcode
	// set as internal/validate's opSignatures table): arithmetic,
	// comparison, conversion, sign-extension, and trunc/trunc_sat/
	// reinterpret ops. It may trap (panic with a *wasm.TrapError) for
	// div-by-zero, overflow, or out-of-range truncation.
	Eval(op wasm.Opcode, args []V) V

	Select(cond, a, b V) V
	// Branch reports the arm(s) cond's two sides are worth continuing
	// on, per the Branch doc above.
	Branch(cond V) []BranchArm[V]

	// Bits decodes v to its operand-stack lane, used for memory/table
	// addressing, branch-table selectors, and call_indirect's element
	// index.
	Bits(v V) uint64
}

// HostSymbolic is an optional extension an Algebra[V] implements to serve
// the symbolic.i32/assume/assert host imports directly in terms of V,
// bypassing the []uint64 boundary link.HostFunction normally enforces so
// a fresh variable or a path-condition update doesn't collapse into a
// concrete constant. internal/link tags the imports that need this with
// FunctionInstance.HostSymbol; the interpreter type-asserts the running
// algebra against this interface when it sees that tag, and traps if the
// algebra doesn't implement it (e.g. concrete execution calling a module
// that imports symbolic.i32 — it links fine, only the call traps).
type HostSymbolic[V any] interface {
	// NewSymbol returns a fresh, unconstrained value — symbolic.i32.
	NewSymbol() V
	// Assume folds cond into the path condition as an assumption —
	// symbolic.assume.
	Assume(cond V)
	// AssertHolds reports whether cond is provable given the current
	// path condition — symbolic.assert.
	AssertHolds(cond V) bool
}
