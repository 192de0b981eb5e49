package interpret_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/interpret"
	"github.com/wasmkit/owi/internal/link"
	"github.com/wasmkit/owi/internal/values"
	"github.com/wasmkit/owi/internal/wasm"
)

func linkModule(t *testing.T, m *wasm.Module, reg link.Registry) *link.Instance {
	t.Helper()
	if reg == nil {
		reg = link.Registry{}
	}
	inst, err := link.Link(m, reg, nil)
	require.NoError(t, err)
	return inst
}

func newInterp() *interpret.Interpreter[values.Value] {
	return interpret.New[values.Value](values.Algebra{})
}

func TestCallAddsTwoLocals(t *testing.T) {
	m := &wasm.Module{
		Types:           []wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(1)},
			{Op: wasm.OpI32Add},
		}}},
	}
	inst := linkModule(t, m, nil)

	results, err := newInterp().Call(inst.Funcs[0], []uint64{api.EncodeI32(2), api.EncodeI32(3)})
	require.NoError(t, err)
	require.Equal(t, int32(5), api.DecodeI32(results[0]))
}

func TestCallBranchOutOfBlockYieldsBlockResult(t *testing.T) {
	blockResult := &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}
	m := &wasm.Module{
		Types:           []wasm.FunctionType{{Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpBlock, BlockType: wasm.BlockType{Resolved: blockResult}, Then: []wasm.Instr{
				{Op: wasm.OpI32Const, I32: 1},
				{Op: wasm.OpBr, Idx: wasm.FuncIndex(0)},
				{Op: wasm.OpI32Const, I32: 99}, // unreachable after the branch
			}},
		}}},
	}
	inst := linkModule(t, m, nil)

	results, err := newInterp().Call(inst.Funcs[0], nil)
	require.NoError(t, err)
	require.Equal(t, int32(1), api.DecodeI32(results[0]))
}

func TestCallLoopAccumulatesViaLocals(t *testing.T) {
	voidType := &wasm.FunctionType{}
	m := &wasm.Module{
		Types:           []wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{
			Locals: []wasm.Local{{Count: 1, Type: api.ValueTypeI32}}, // local 1: running sum
			Body: []wasm.Instr{
				{Op: wasm.OpBlock, BlockType: wasm.BlockType{Resolved: voidType}, Then: []wasm.Instr{
					{Op: wasm.OpLoop, BlockType: wasm.BlockType{Resolved: voidType}, Then: []wasm.Instr{
						{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
						{Op: wasm.OpI32Eqz},
						{Op: wasm.OpBrIf, Idx: wasm.FuncIndex(1)}, // exit the block once n hits 0
						{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(1)},
						{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
						{Op: wasm.OpI32Add},
						{Op: wasm.OpLocalSet, Idx: wasm.FuncIndex(1)},
						{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
						{Op: wasm.OpI32Const, I32: 1},
						{Op: wasm.OpI32Sub},
						{Op: wasm.OpLocalSet, Idx: wasm.FuncIndex(0)},
						{Op: wasm.OpBr, Idx: wasm.FuncIndex(0)},
					}},
				}},
				{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(1)},
			},
		}},
	}
	inst := linkModule(t, m, nil)

	results, err := newInterp().Call(inst.Funcs[0], []uint64{api.EncodeI32(3)})
	require.NoError(t, err)
	require.Equal(t, int32(6), api.DecodeI32(results[0])) // 3+2+1
}

func TestCallTrapsOnIntegerDivideByZero(t *testing.T) {
	m := &wasm.Module{
		Types:           []wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(1)},
			{Op: wasm.OpI32DivS},
		}}},
	}
	inst := linkModule(t, m, nil)

	_, err := newInterp().Call(inst.Funcs[0], []uint64{api.EncodeI32(1), api.EncodeI32(0)})
	var trapErr *wasm.TrapError
	require.ErrorAs(t, err, &trapErr)
	require.Equal(t, wasm.TrapIntegerDivideByZero, trapErr.Kind)
}

func TestCallMemoryStoreThenLoadRoundTrips(t *testing.T) {
	m := &wasm.Module{
		Memories:        []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Types:           []wasm.FunctionType{{Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpI32Const, I32: 8},
			{Op: wasm.OpI32Const, I32: 123},
			{Op: wasm.OpI32Store},
			{Op: wasm.OpI32Const, I32: 8},
			{Op: wasm.OpI32Load},
		}}},
	}
	inst := linkModule(t, m, nil)

	results, err := newInterp().Call(inst.Funcs[0], nil)
	require.NoError(t, err)
	require.Equal(t, int32(123), api.DecodeI32(results[0]))
}

func TestCallMemoryLoadTrapsOutOfBounds(t *testing.T) {
	m := &wasm.Module{
		Memories:        []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Types:           []wasm.FunctionType{{Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpI32Const, I32: 70000},
			{Op: wasm.OpI32Load},
		}}},
	}
	inst := linkModule(t, m, nil)

	_, err := newInterp().Call(inst.Funcs[0], nil)
	var trapErr *wasm.TrapError
	require.ErrorAs(t, err, &trapErr)
	require.Equal(t, wasm.TrapOutOfBoundsMemoryAccess, trapErr.Kind)
}

func TestCallIndirectDispatchesThroughTable(t *testing.T) {
	sig := wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}
	m := &wasm.Module{
		Types:           []wasm.FunctionType{sig},
		Tables:          []wasm.TableType{{RefType: api.ValueTypeFuncref, Limits: wasm.Limits{Min: 1}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0), wasm.FuncIndex(0)},
		Code: []wasm.Code{
			{Body: []wasm.Instr{{Op: wasm.OpI32Const, I32: 42}}}, // target, unified index 0
			{Body: []wasm.Instr{ // caller, unified index 1
				{Op: wasm.OpI32Const, I32: 0},
				{Op: wasm.OpCallIndirect, Idx: wasm.FuncIndex(0), Idx2: wasm.FuncIndex(0)},
			}},
		},
	}
	inst := linkModule(t, m, nil)
	inst.Tables[0].Elems[0] = inst.Funcs[0]

	results, err := newInterp().Call(inst.Funcs[1], nil)
	require.NoError(t, err)
	require.Equal(t, int32(42), api.DecodeI32(results[0]))
}

func TestCallIndirectTrapsOnSignatureMismatch(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FunctionType{
			{Results: []api.ValueType{api.ValueTypeI32}},                                                  // type 0: target's actual signature
			{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}, // type 1: what the caller expects
		},
		Tables:          []wasm.TableType{{RefType: api.ValueTypeFuncref, Limits: wasm.Limits{Min: 1}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0), wasm.FuncIndex(0)},
		Code: []wasm.Code{
			{Body: []wasm.Instr{{Op: wasm.OpI32Const, I32: 42}}},
			{Body: []wasm.Instr{
				{Op: wasm.OpI32Const, I32: 0},
				{Op: wasm.OpCallIndirect, Idx: wasm.FuncIndex(1), Idx2: wasm.FuncIndex(0)},
			}},
		},
	}
	inst := linkModule(t, m, nil)
	inst.Tables[0].Elems[0] = inst.Funcs[0]

	_, err := newInterp().Call(inst.Funcs[1], nil)
	var trapErr *wasm.TrapError
	require.ErrorAs(t, err, &trapErr)
	require.Equal(t, wasm.TrapIndirectCallTypeMismatch, trapErr.Kind)
}

func TestCallIndirectTrapsOnUninitializedElement(t *testing.T) {
	m := &wasm.Module{
		Types:           []wasm.FunctionType{{Results: []api.ValueType{api.ValueTypeI32}}},
		Tables:          []wasm.TableType{{RefType: api.ValueTypeFuncref, Limits: wasm.Limits{Min: 1}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpI32Const, I32: 0},
			{Op: wasm.OpCallIndirect, Idx: wasm.FuncIndex(0), Idx2: wasm.FuncIndex(0)},
		}}},
	}
	inst := linkModule(t, m, nil)

	_, err := newInterp().Call(inst.Funcs[0], nil)
	var trapErr *wasm.TrapError
	require.ErrorAs(t, err, &trapErr)
	require.Equal(t, wasm.TrapUninitializedElement, trapErr.Kind)
}

func TestCallDispatchesToHostImport(t *testing.T) {
	sig := wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}
	m := &wasm.Module{
		Types:             []wasm.FunctionType{sig},
		Imports:           []wasm.Import{{Module: "env", Name: "double", Kind: api.ExternTypeFunc, FuncTypeIndex: wasm.FuncIndex(0)}},
		ImportedFuncTypes: []wasm.Index{wasm.FuncIndex(0)},
		ImportedFuncCount: 1,
		FuncTypeIndices:   []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpI32Const, I32: 21},
			{Op: wasm.OpCall, Idx: wasm.FuncIndex(0)},
		}}},
	}
	reg := link.Registry{}
	reg.Register("env", "double", link.HostExtern(&sig, func(args []uint64) ([]uint64, error) {
		return []uint64{api.EncodeI32(api.DecodeI32(args[0]) * 2)}, nil
	}))
	inst := linkModule(t, m, reg)

	results, err := newInterp().Call(inst.Funcs[1], nil)
	require.NoError(t, err)
	require.Equal(t, int32(42), api.DecodeI32(results[0]))
}

func TestCallReturnExitsEarlyFromIf(t *testing.T) {
	ifType := &wasm.FunctionType{}
	m := &wasm.Module{
		Types:           []wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
			{Op: wasm.OpIf, BlockType: wasm.BlockType{Resolved: ifType}, Then: []wasm.Instr{
				{Op: wasm.OpI32Const, I32: 7},
				{Op: wasm.OpReturn},
			}},
			{Op: wasm.OpI32Const, I32: 9},
		}}},
	}
	inst := linkModule(t, m, nil)

	results, err := newInterp().Call(inst.Funcs[0], []uint64{api.EncodeI32(1)})
	require.NoError(t, err)
	require.Equal(t, int32(7), api.DecodeI32(results[0]))

	results, err = newInterp().Call(inst.Funcs[0], []uint64{api.EncodeI32(0)})
	require.NoError(t, err)
	require.Equal(t, int32(9), api.DecodeI32(results[0]))
}
