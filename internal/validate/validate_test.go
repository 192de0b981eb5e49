package validate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/wasm"
)

func emptyModule() *wasm.Module {
	return &wasm.Module{}
}

func addFunc(m *wasm.Module, sig wasm.FunctionType, body []wasm.Instr, locals ...wasm.Local) uint32 {
	m.Types = append(m.Types, sig)
	idx := wasm.FuncIndex(uint32(len(m.Types) - 1))
	m.FuncTypeIndices = append(m.FuncTypeIndices, idx)
	m.Code = append(m.Code, wasm.Code{Locals: locals, Body: body})
	return m.ImportedFuncCount + uint32(len(m.Code)-1)
}

func TestRunAcceptsSimpleArithmetic(t *testing.T) {
	m := emptyModule()
	addFunc(m, wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(1)},
			{Op: wasm.OpI32Add},
		})

	require.NoError(t, Run(m))
}

func TestRunRejectsStackUnderflow(t *testing.T) {
	m := emptyModule()
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{Op: wasm.OpI32Const, I32: 1},
			{Op: wasm.OpI32Add},
		})

	err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "stack underflow")
}

func TestRunRejectsResultTypeMismatch(t *testing.T) {
	m := emptyModule()
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{Op: wasm.OpF32Const, F32: 1},
		})

	err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "type mismatch")
}

func TestRunAllowsUnreachableToAbsorbAnyStackShape(t *testing.T) {
	m := emptyModule()
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF64}},
		[]wasm.Instr{
			{Op: wasm.OpUnreachable},
		})

	require.NoError(t, Run(m))
}

func TestRunValidatesBlockArity(t *testing.T) {
	m := emptyModule()
	bt := wasm.BlockType{Resolved: &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}}
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{
				Op:        wasm.OpBlock,
				BlockType: bt,
				Then: []wasm.Instr{
					{Op: wasm.OpI32Const, I32: 42},
				},
			},
		})

	require.NoError(t, Run(m))
}

func TestRunRejectsBlockThatLeavesWrongResult(t *testing.T) {
	m := emptyModule()
	bt := wasm.BlockType{Resolved: &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}}
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{
				Op:        wasm.OpBlock,
				BlockType: bt,
				Then:      []wasm.Instr{},
			},
		})

	err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "stack underflow")
}

func TestRunRejectsIfWithoutElseChangingType(t *testing.T) {
	m := emptyModule()
	bt := wasm.BlockType{Resolved: &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}}
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{Op: wasm.OpI32Const, I32: 1},
			{
				Op:        wasm.OpIf,
				BlockType: bt,
				Then: []wasm.Instr{
					{Op: wasm.OpI32Const, I32: 7},
				},
			},
		})

	err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "if without else")
}

func TestRunAcceptsIfWithMatchingElse(t *testing.T) {
	m := emptyModule()
	bt := wasm.BlockType{Resolved: &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}}
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{Op: wasm.OpI32Const, I32: 1},
			{
				Op:        wasm.OpIf,
				BlockType: bt,
				Then:      []wasm.Instr{{Op: wasm.OpI32Const, I32: 1}},
				Else:      []wasm.Instr{{Op: wasm.OpI32Const, I32: 0}},
			},
		})

	require.NoError(t, Run(m))
}

func TestRunValidatesBrTargetTypes(t *testing.T) {
	m := emptyModule()
	bt := wasm.BlockType{Resolved: &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}}
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{
				Op:        wasm.OpBlock,
				BlockType: bt,
				Then: []wasm.Instr{
					{Op: wasm.OpI32Const, I32: 1},
					{Op: wasm.OpBr, Idx: wasm.FuncIndex(0)},
				},
			},
		})

	require.NoError(t, Run(m))
}

func TestRunRejectsBrTargetTypeMismatch(t *testing.T) {
	m := emptyModule()
	bt := wasm.BlockType{Resolved: &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}}
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{
				Op:        wasm.OpBlock,
				BlockType: bt,
				Then: []wasm.Instr{
					{Op: wasm.OpF32Const, F32: 1},
					{Op: wasm.OpBr, Idx: wasm.FuncIndex(0)},
				},
			},
		})

	err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "type mismatch")
}

func TestRunValidatesBrTableArity(t *testing.T) {
	m := emptyModule()
	outer := wasm.BlockType{Resolved: &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}}
	inner := wasm.BlockType{Resolved: &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}}
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{
				Op:        wasm.OpBlock,
				BlockType: outer,
				Then: []wasm.Instr{
					{
						Op:        wasm.OpBlock,
						BlockType: inner,
						Then: []wasm.Instr{
							{Op: wasm.OpI32Const, I32: 1},
							{Op: wasm.OpI32Const, I32: 0},
							{
								Op:      wasm.OpBrTable,
								Idx:     wasm.FuncIndex(0),
								Targets: []wasm.Index{wasm.FuncIndex(1)},
							},
						},
					},
					{Op: wasm.OpUnreachable},
				},
			},
		})

	require.NoError(t, Run(m))
}

func TestRunValidatesReturnAgainstOutermostFrame(t *testing.T) {
	m := emptyModule()
	bt := wasm.BlockType{Resolved: &wasm.FunctionType{}}
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{
				Op:        wasm.OpBlock,
				BlockType: bt,
				Then: []wasm.Instr{
					{Op: wasm.OpI32Const, I32: 5},
					{Op: wasm.OpReturn},
				},
			},
			{Op: wasm.OpUnreachable},
		})

	require.NoError(t, Run(m))
}

func TestRunValidatesCallSignature(t *testing.T) {
	m := emptyModule()
	addFunc(m, wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}, []wasm.Instr{{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)}})
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{Op: wasm.OpI32Const, I32: 1},
			{Op: wasm.OpCall, Idx: wasm.FuncIndex(0)},
		})

	require.NoError(t, Run(m))
}

func TestRunRejectsCallArgumentMismatch(t *testing.T) {
	m := emptyModule()
	addFunc(m, wasm.FunctionType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}, []wasm.Instr{{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)}})
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{Op: wasm.OpF32Const, F32: 1},
			{Op: wasm.OpCall, Idx: wasm.FuncIndex(0)},
		})

	err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "type mismatch")
}

func TestRunValidatesCallIndirectSignature(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}}
	m.Tables = []wasm.TableType{{RefType: api.ValueTypeFuncref, Limits: wasm.Limits{Min: 1}}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{Op: wasm.OpI32Const, I32: 9},
			{Op: wasm.OpI32Const, I32: 0},
			{Op: wasm.OpCallIndirect, Idx: wasm.FuncIndex(0), Idx2: wasm.FuncIndex(0)},
		},
	}}

	require.NoError(t, Run(m))
}

func TestRunSelectOnConcreteTypesRequiresMatch(t *testing.T) {
	m := emptyModule()
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{Op: wasm.OpI32Const, I32: 1},
			{Op: wasm.OpI32Const, I32: 2},
			{Op: wasm.OpI32Const, I32: 1},
			{Op: wasm.OpSelect},
		})

	require.NoError(t, Run(m))
}

func TestRunSelectRejectsOperandTypeMismatch(t *testing.T) {
	m := emptyModule()
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{Op: wasm.OpI32Const, I32: 1},
			{Op: wasm.OpF32Const, F32: 2},
			{Op: wasm.OpI32Const, I32: 1},
			{Op: wasm.OpSelect},
		})

	err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "type mismatch")
}

func TestRunSelectTUsesExplicitType(t *testing.T) {
	m := emptyModule()
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeF64}},
		[]wasm.Instr{
			{Op: wasm.OpF64Const, F64: 1},
			{Op: wasm.OpF64Const, F64: 2},
			{Op: wasm.OpI32Const, I32: 1},
			{Op: wasm.OpSelectT, BlockType: wasm.BlockType{ValueType: api.ValueTypeF64}},
		})

	require.NoError(t, Run(m))
}

func TestRunValidatesLocalTypes(t *testing.T) {
	m := emptyModule()
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeF32}},
		[]wasm.Instr{
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
		},
		wasm.Local{Count: 1, Type: api.ValueTypeF32},
	)

	require.NoError(t, Run(m))
}

func TestRunValidatesGlobalTypes(t *testing.T) {
	m := emptyModule()
	m.Globals = []wasm.Global{{
		Type: wasm.GlobalType{ValType: api.ValueTypeI64, Mutable: true},
		Init: wasm.ConstExpr{Instrs: []wasm.Instr{{Op: wasm.OpI64Const, I64: 3}}},
	}}
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI64}},
		[]wasm.Instr{
			{Op: wasm.OpGlobalGet, Idx: wasm.FuncIndex(0)},
		})

	require.NoError(t, Run(m))
}

func TestRunValidatesTableGetType(t *testing.T) {
	m := emptyModule()
	m.Tables = []wasm.TableType{{RefType: api.ValueTypeExternref, Limits: wasm.Limits{Min: 1}}}
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeExternref}},
		[]wasm.Instr{
			{Op: wasm.OpI32Const, I32: 0},
			{Op: wasm.OpTableGet, Idx: wasm.FuncIndex(0)},
		})

	require.NoError(t, Run(m))
}

func TestRunValidatesMemoryLoadType(t *testing.T) {
	m := emptyModule()
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	addFunc(m, wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}},
		[]wasm.Instr{
			{Op: wasm.OpI32Const, I32: 0},
			{Op: wasm.OpI32Load, Memarg: wasm.Memarg{Align: 2}},
		})

	require.NoError(t, Run(m))
}
