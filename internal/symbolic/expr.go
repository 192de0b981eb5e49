// Package symbolic implements the symbolic value algebra of spec.md §4.6
// ("pluggable value algebra") and §9: an interpret.Algebra[Value] that
// drives the same interpreter core as internal/values, but additionally
// builds an expression tree for every computed value and accumulates a
// path condition of the predicates branched on along the way.
//
// Algebra.Branch is this package's eval_choice: a condition tracing back
// to a symbolic input forks into one continuation per side the Solver
// doesn't report definitely unsat, each carrying its own forked Algebra
// (its own Path) — see DESIGN.md "Open Question decisions".
package symbolic

import (
	"fmt"

	"github.com/wasmkit/owi/internal/wasm"
)

// Kind discriminates the shape of an Expr node.
type Kind int

const (
	KindConst Kind = iota
	KindVar
	KindUnary
	KindBinary
	KindSelect
)

// Expr is one node of a symbolic expression tree. A leaf is either a
// constant lane (KindConst) or a named symbolic input (KindVar); an
// interior node records the Wasm opcode that combined its operands so a
// Solver (or a human reading PathCondition.String) can reconstruct exactly
// which instruction produced it.
type Expr struct {
	Kind  Kind
	Op    wasm.Opcode // valid iff Kind is KindUnary or KindBinary
	Const uint64      // valid iff Kind == KindConst
	Name  string       // valid iff Kind == KindVar

	X, Y, Z *Expr // operands: X for unary, X/Y for binary, X/Y/Z for select (cond/then/else)
}

// ConstExpr builds a constant leaf from an operand-stack lane.
func ConstExpr(lane uint64) *Expr { return &Expr{Kind: KindConst, Const: lane} }

// VarExpr builds a named symbolic input leaf.
func VarExpr(name string) *Expr { return &Expr{Kind: KindVar, Name: name} }

// Not negates a Wasm i32 boolean condition. i32.eqz is exactly logical not
// over the {0, nonzero} boolean domain every br_if/if/select condition
// lives in, so there is no need for a separate boolean-negation node kind.
func Not(e *Expr) *Expr { return &Expr{Kind: KindUnary, Op: wasm.OpI32Eqz, X: e} }

// HasVar reports whether e (or any subexpression) references a symbolic
// input. A path-condition entry with no Var in it carries no information
// worth asserting to a solver.
func (e *Expr) HasVar() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindVar:
		return true
	case KindUnary:
		return e.X.HasVar()
	case KindBinary:
		return e.X.HasVar() || e.Y.HasVar()
	case KindSelect:
		return e.X.HasVar() || e.Y.HasVar() || e.Z.HasVar()
	default:
		return false
	}
}

// String renders e as a prefix s-expression, e.g. "(i32.add x0 3)" — the
// shape internal/symtui prints in its path-condition tree and the shape a
// Solver implementation would parse or re-encode into its own term syntax.
func (e *Expr) String() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case KindConst:
		return fmt.Sprintf("%d", e.Const)
	case KindVar:
		return e.Name
	case KindUnary:
		return fmt.Sprintf("(%s %s)", e.Op.Name(), e.X)
	case KindBinary:
		return fmt.Sprintf("(%s %s %s)", e.Op.Name(), e.X, e.Y)
	case KindSelect:
		return fmt.Sprintf("(select %s %s %s)", e.X, e.Y, e.Z)
	default:
		return "?"
	}
}
