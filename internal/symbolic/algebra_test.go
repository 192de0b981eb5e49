package symbolic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/wasm"
)

func TestEvalBuildsExprTreeAndMatchesConcreteWitness(t *testing.T) {
	alg := New(nil)
	x := alg.ConstNum(api.ValueTypeI32, api.EncodeI32(2))
	y := NewVar("y", api.EncodeI32(3))

	got := alg.Eval(wasm.OpI32Add, []Value{x, y})

	require.Equal(t, int32(5), api.DecodeI32(got.Num))
	require.Equal(t, "(i32.add 2 y)", got.Expr.String())
}

func TestEvalPropagatesTrapsFromConcreteWitness(t *testing.T) {
	alg := New(nil)
	zero := alg.ConstNum(api.ValueTypeI32, api.EncodeI32(0))
	one := alg.ConstNum(api.ValueTypeI32, api.EncodeI32(1))
	require.PanicsWithValue(t, wasm.NewTrap(wasm.TrapIntegerDivideByZero), func() {
		alg.Eval(wasm.OpI32DivS, []Value{one, zero})
	})
}

func TestBranchForksBothArmsForSymbolicCond(t *testing.T) {
	alg := New(nil)
	x := NewVar("x", api.EncodeI32(0)) // witness: x == 0, so the eqz check's true arm is the one taken
	cond := alg.Eval(wasm.OpI32Eqz, []Value{x})

	arms := alg.Branch(cond)
	require.Len(t, arms, 2)

	var sawTrue, sawFalse bool
	for _, arm := range arms {
		a, ok := arm.Alg.(*Algebra)
		require.True(t, ok)
		require.Equal(t, 1, a.Path.Len())
		if arm.Taken {
			sawTrue = true
			require.Equal(t, "(i32.eqz x)", a.Path.Constraints[0].String())
		} else {
			sawFalse = true
			require.Equal(t, "(i32.eqz (i32.eqz x))", a.Path.Constraints[0].String())
		}
	}
	require.True(t, sawTrue)
	require.True(t, sawFalse)

	// Each arm forked its own Path; the original algebra is untouched.
	require.Equal(t, 0, alg.Path.Len())
}

func TestBranchSkipsPurelyConcreteCond(t *testing.T) {
	alg := New(nil)
	cond := alg.ConstNum(api.ValueTypeI32, api.EncodeI32(1))

	arms := alg.Branch(cond)

	require.Len(t, arms, 1)
	require.True(t, arms[0].Taken)
	aa, ok := arms[0].Alg.(*Algebra)
	require.True(t, ok)
	require.Same(t, alg, aa) // no fork needed for a single arm
	require.Equal(t, 0, alg.Path.Len())
}

func TestAssumeFoldsSymbolicCondIntoPath(t *testing.T) {
	alg := New(nil)
	x := NewVar("x", api.EncodeI32(0))
	cond := alg.Eval(wasm.OpI32Eqz, []Value{x})

	alg.Assume(cond)

	require.Equal(t, 1, alg.Path.Len())
	require.Equal(t, "(i32.eqz x)", alg.Path.Constraints[0].String())
}

func TestAssertHoldsDecidesConcreteCondDirectly(t *testing.T) {
	alg := New(nil)
	require.True(t, alg.AssertHolds(alg.ConstNum(api.ValueTypeI32, api.EncodeI32(1))))
	require.False(t, alg.AssertHolds(alg.ConstNum(api.ValueTypeI32, api.EncodeI32(0))))
}

func TestAssertHoldsIsConservativeUnderNopSolver(t *testing.T) {
	alg := New(nil) // defaults to NopSolver, which never reports Unsat
	x := NewVar("x", api.EncodeI32(1))
	cond := alg.Eval(wasm.OpI32Eqz, []Value{x})

	require.False(t, alg.AssertHolds(cond))
}

func TestNewSymbolReturnsFreshUnconstrainedVars(t *testing.T) {
	alg := New(nil)
	v1 := alg.NewSymbol()
	v2 := alg.NewSymbol()

	require.NotEqual(t, v1.Expr.String(), v2.Expr.String())
	require.Equal(t, uint64(0), v1.Num)
}

func TestSelectTracksBothArmsInExpr(t *testing.T) {
	alg := New(nil)
	cond := alg.ConstNum(api.ValueTypeI32, api.EncodeI32(0))
	a := alg.ConstNum(api.ValueTypeI32, api.EncodeI32(10))
	b := NewVar("b", api.EncodeI32(20))

	got := alg.Select(cond, a, b)

	require.Equal(t, int32(20), api.DecodeI32(got.Num))
	require.Equal(t, "(select 0 10 b)", got.Expr.String())
}

func TestNopSolverReportsUnknown(t *testing.T) {
	sat, model, err := (NopSolver{}).CheckSat(nil)
	require.NoError(t, err)
	require.Nil(t, model)
	require.Equal(t, Unknown, sat)
}

func TestIsNullRefAndRefTarget(t *testing.T) {
	alg := New(nil)
	require.True(t, alg.IsNullRef(alg.RefNull()))

	ext := alg.RefExtern("host-obj")
	require.False(t, alg.IsNullRef(ext))
	fn, ev := alg.RefTarget(ext)
	require.Nil(t, fn)
	require.Equal(t, "host-obj", ev)
}
