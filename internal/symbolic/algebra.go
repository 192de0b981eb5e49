package symbolic

import (
	"fmt"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/interpret"
	"github.com/wasmkit/owi/internal/link"
	"github.com/wasmkit/owi/internal/values"
	"github.com/wasmkit/owi/internal/wasm"
)

// Value is one symbolic stack slot: a concrete witness lane (Num, the
// value this particular concolic run actually carries) paired with the
// Expr that produced it. Expr is nil only for references, which this
// algebra tracks concretely the same way internal/values does — funcref
// and externref identity isn't meaningfully "symbolic".
type Value struct {
	Num   uint64
	Expr  *Expr
	Fn    *link.FunctionInstance
	Ext   any
	IsRef bool
}

func (v Value) expr() *Expr {
	if v.Expr != nil {
		return v.Expr
	}
	return ConstExpr(v.Num)
}

// Algebra is the symbolic interpret.Algebra[Value]: it computes every
// result concretely via an embedded values.Algebra (so traps, shifts, and
// float edge cases stay bit-for-bit identical to concrete execution) while
// building the Expr tree that explains how the witness was derived, and
// accumulating Path as branches are taken. Every fork (see Branch) gets
// its own *Algebra with its own Path, so sibling continuations never
// share mutable state.
type Algebra struct {
	concrete values.Algebra
	Solver   Solver
	Path     *PathCondition
	symCount int
}

// New builds a fresh symbolic Algebra. A nil solver defaults to NopSolver.
func New(solver Solver) *Algebra {
	if solver == nil {
		solver = NopSolver{}
	}
	return &Algebra{Solver: solver, Path: &PathCondition{}}
}

// fork clones a onto an independent Path (and symbol counter) sharing the
// same Solver and concrete helper — the state split Branch needs once it
// decides to continue on more than one arm.
func (a *Algebra) fork() *Algebra {
	return &Algebra{
		concrete: a.concrete,
		Solver:   a.Solver,
		Path:     &PathCondition{Constraints: append([]*Expr(nil), a.Path.Constraints...)},
		symCount: a.symCount,
	}
}

// NewVar builds a symbolic input: witness seeds the concrete run (e.g. 0
// on the first exploration of a function, or a solver-supplied model value
// on a re-run), name identifies it in printed path conditions and Model
// lookups.
func NewVar(name string, witness uint64) Value {
	return Value{Num: witness, Expr: VarExpr(name)}
}

// NewSymbol is the host-callable counterpart of NewVar, used to serve the
// symbolic.i32 import: it auto-names the variable and seeds it with a
// zero witness, since a host-introduced symbol has no CLI-supplied
// concrete value to carry.
func (a *Algebra) NewSymbol() Value {
	a.symCount++
	return NewVar(fmt.Sprintf("sym%d", a.symCount), 0)
}

func (a *Algebra) ConstNum(_ api.ValueType, lane uint64) Value {
	return Value{Num: lane, Expr: ConstExpr(lane)}
}
func (a *Algebra) RefNull() Value                                  { return Value{IsRef: true} }
func (a *Algebra) RefFunc(fn *link.FunctionInstance) Value         { return Value{IsRef: true, Fn: fn} }
func (a *Algebra) RefExtern(v any) Value                           { return Value{IsRef: true, Ext: v} }
func (a *Algebra) IsNullRef(v Value) bool                          { return v.IsRef && v.Fn == nil && v.Ext == nil }
func (a *Algebra) RefTarget(v Value) (*link.FunctionInstance, any) { return v.Fn, v.Ext }
func (a *Algebra) Bits(v Value) uint64                             { return v.Num }

func (a *Algebra) Eval(op wasm.Opcode, args []Value) Value {
	cargs := make([]values.Value, len(args))
	for i, v := range args {
		cargs[i] = values.Value{Num: v.Num}
	}
	out := a.concrete.Eval(op, cargs) // panics (trap) propagate unchanged: witness-driven traps match concrete execution exactly

	var e *Expr
	switch len(args) {
	case 1:
		e = &Expr{Kind: KindUnary, Op: op, X: args[0].expr()}
	case 2:
		e = &Expr{Kind: KindBinary, Op: op, X: args[0].expr(), Y: args[1].expr()}
	}
	return Value{Num: out.Num, Expr: e}
}

func (a *Algebra) Select(cond, x, y Value) Value {
	out := a.concrete.Select(values.Value{Num: cond.Num}, values.Value{Num: x.Num}, values.Value{Num: y.Num})
	return Value{
		Num:  out.Num,
		Expr: &Expr{Kind: KindSelect, X: cond.expr(), Y: x.expr(), Z: y.expr()},
	}
}

// Assume folds cond into Path as an unconditional assumption, independent
// of any Branch call — the effect of the symbolic.assume host primitive.
func (a *Algebra) Assume(cond Value) {
	if cond.Expr != nil && cond.Expr.HasVar() {
		a.Path.Assert(cond.expr())
	}
}

// Check queries Solver against Path plus any extra constraints.
func (a *Algebra) Check(extra ...*Expr) (Satisfiability, Model, error) {
	cs := make([]*Expr, 0, len(a.Path.Constraints)+len(extra))
	cs = append(cs, a.Path.Constraints...)
	cs = append(cs, extra...)
	return a.Solver.CheckSat(cs)
}

// AssertHolds reports whether cond is provable along the current path —
// the effect of the symbolic.assert host primitive: it holds iff Not(cond)
// is unsat against Path. A purely concrete cond is decided directly.
func (a *Algebra) AssertHolds(cond Value) bool {
	if cond.Expr == nil || !cond.Expr.HasVar() {
		return cond.Num != 0
	}
	sat, _, err := a.Check(Not(cond.expr()))
	if err != nil {
		return false
	}
	return sat == Unsat
}

// Branch is this algebra's eval_choice: a purely concrete condition is
// decided outright, same as values.Algebra. A condition tracing back to a
// symbolic input is checked on both sides — taken and not-taken — against
// Path via the Solver; every side the Solver doesn't report definitely
// Unsat gets its own forked Algebra with that side's oriented predicate
// recorded on its own Path, so up to two independent continuations result.
// With NopSolver (Unknown, never Unsat) both sides always pass, which is
// exactly "explore it" rather than "can't decide, don't fork": forking
// needs no real solver, only the refusal to treat Unknown as a reason to
// stop.
func (a *Algebra) Branch(cond Value) []interpret.BranchArm[Value] {
	if cond.Expr == nil || !cond.Expr.HasVar() {
		return []interpret.BranchArm[Value]{{Taken: cond.Num != 0, Alg: a}}
	}

	c := cond.Expr
	notC := Not(c)
	exploreTrue := a.maybeSat(c)
	exploreFalse := a.maybeSat(notC)

	var arms []interpret.BranchArm[Value]
	if exploreTrue {
		t := a.fork()
		t.Path.Assert(c)
		arms = append(arms, interpret.BranchArm[Value]{Taken: true, Alg: t})
	}
	if exploreFalse {
		f := a.fork()
		f.Path.Assert(notC)
		arms = append(arms, interpret.BranchArm[Value]{Taken: false, Alg: f})
	}
	if len(arms) == 0 {
		// Both sides reported definitely Unsat — can't happen with a
		// sound solver given cond's own witness satisfies one side, but
		// fall back to that witness rather than dead-ending the run.
		return []interpret.BranchArm[Value]{{Taken: cond.Num != 0, Alg: a}}
	}
	return arms
}

// maybeSat reports whether e is worth forking a continuation for: true
// unless the Solver comes back with a definite Unsat.
func (a *Algebra) maybeSat(e *Expr) bool {
	sat, _, err := a.Check(e)
	if err != nil {
		return true
	}
	return sat != Unsat
}
