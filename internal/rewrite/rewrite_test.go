package rewrite

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/wasm"
)

func emptyModule() *wasm.Module {
	return &wasm.Module{}
}

func TestRunResolvesLocalGetAndValidatesBounds(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
		},
	}}

	out, err := Run(m)
	require.NoError(t, err)
	require.Equal(t, uint32(0), out.Code[0].Body[0].Idx.Num)
}

func TestRunRejectsOutOfRangeLocal(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(5)},
		},
	}}

	_, err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown local")
}

func TestRunRejectsSetOnImmutableGlobal(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Globals = []wasm.Global{{
		Type: wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false},
		Init: wasm.ConstExpr{Instrs: []wasm.Instr{{Op: wasm.OpI32Const, I32: 1}}},
	}}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{Op: wasm.OpI32Const, I32: 2},
			{Op: wasm.OpGlobalSet, Idx: wasm.FuncIndex(0)},
		},
	}}

	_, err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "global is immutable")
}

func TestRunValidatesBranchDepth(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{
				Op: wasm.OpBlock,
				Then: []wasm.Instr{
					{Op: wasm.OpBr, Idx: wasm.FuncIndex(0)},
				},
			},
		},
	}}

	_, err := Run(m)
	require.NoError(t, err)
}

func TestRunRejectsUnknownLabel(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{
				Op: wasm.OpBlock,
				Then: []wasm.Instr{
					{Op: wasm.OpBr, Idx: wasm.FuncIndex(1)},
				},
			},
		},
	}}

	_, err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown label")
}

func TestRunNormalisesBlockType(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{
		{},
		{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
	}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{
				Op:        wasm.OpBlock,
				BlockType: wasm.BlockType{Kind: wasm.BlockKindFuncType, TypeIndex: wasm.FuncIndex(1)},
				Then:      []wasm.Instr{{Op: wasm.OpEnd}},
			},
		},
	}}

	out, err := Run(m)
	require.NoError(t, err)
	bt := out.Code[0].Body[0].BlockType
	require.NotNil(t, bt.Resolved)
	require.Equal(t, []api.ValueType{api.ValueTypeI32}, bt.Resolved.Params)
	require.Equal(t, []api.ValueType{api.ValueTypeI32}, bt.Resolved.Results)
}

func TestRunRejectsNonConstGlobalInit(t *testing.T) {
	m := emptyModule()
	m.Globals = []wasm.Global{{
		Type: wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false},
		Init: wasm.ConstExpr{Instrs: []wasm.Instr{{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)}}},
	}}

	_, err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "constant expression required")
}

func TestRunAllowsGlobalGetOfImportedImmutableGlobalInConstExpr(t *testing.T) {
	m := emptyModule()
	m.Imports = []wasm.Import{{
		Module: "env", Name: "base", Kind: api.ExternTypeGlobal,
		Global: wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false},
	}}
	m.ImportedGlobals = []wasm.GlobalType{{ValType: api.ValueTypeI32, Mutable: false}}
	m.ImportedGlobalCount = 1
	m.Globals = []wasm.Global{{
		Type: wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false},
		Init: wasm.ConstExpr{Instrs: []wasm.Instr{{Op: wasm.OpGlobalGet, Idx: wasm.FuncIndex(0)}}},
	}}

	_, err := Run(m)
	require.NoError(t, err)
}

func TestRunRejectsMutableGlobalGetInConstExpr(t *testing.T) {
	m := emptyModule()
	m.Imports = []wasm.Import{{
		Module: "env", Name: "counter", Kind: api.ExternTypeGlobal,
		Global: wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: true},
	}}
	m.ImportedGlobals = []wasm.GlobalType{{ValType: api.ValueTypeI32, Mutable: true}}
	m.ImportedGlobalCount = 1
	m.Globals = []wasm.Global{{
		Type: wasm.GlobalType{ValType: api.ValueTypeI32, Mutable: false},
		Init: wasm.ConstExpr{Instrs: []wasm.Instr{{Op: wasm.OpGlobalGet, Idx: wasm.FuncIndex(0)}}},
	}}

	_, err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "constant expression required")
}

func TestRunRejectsUndeclaredFunctionReference(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{Op: wasm.OpRefFunc, Idx: wasm.FuncIndex(0)},
		},
	}}

	_, err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "undeclared function reference")
}

func TestRunAllowsRefFuncDeclaredViaExport(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{Op: wasm.OpRefFunc, Idx: wasm.FuncIndex(0)},
		},
	}}
	m.Exports = []wasm.Export{{
		Name: "f",
		Desc: wasm.ExportDesc{Kind: api.ExternTypeFunc, Index: wasm.FuncIndex(0)},
	}}

	_, err := Run(m)
	require.NoError(t, err)
}

func TestRunRejectsMisalignedMemoryAccess(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{Op: wasm.OpI32Const, I32: 0},
			{Op: wasm.OpI32Load, Memarg: wasm.Memarg{Align: 4}},
		},
	}}

	_, err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "alignment must not be larger than natural")
}

func TestRunRejectsMemoryAccessWithoutMemory(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{Op: wasm.OpI32Const, I32: 0},
			{Op: wasm.OpI32Load, Memarg: wasm.Memarg{Align: 2}},
		},
	}}

	_, err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown memory 0")
}

func TestRunRejectsNonEmptyStartSignature(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{Results: []api.ValueType{api.ValueTypeI32}}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Code = []wasm.Code{{Body: []wasm.Instr{{Op: wasm.OpI32Const, I32: 0}}}}
	start := wasm.FuncIndex(0)
	m.StartFunc = &start

	_, err := Run(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "start function")
}

func TestRunResolvesCallIndirect(t *testing.T) {
	m := emptyModule()
	m.Types = []wasm.FunctionType{{}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Tables = []wasm.TableType{{RefType: api.ValueTypeFuncref, Limits: wasm.Limits{Min: 1}}}
	m.Code = []wasm.Code{{
		Body: []wasm.Instr{
			{Op: wasm.OpI32Const, I32: 0},
			{Op: wasm.OpCallIndirect, Idx: wasm.FuncIndex(0), Idx2: wasm.FuncIndex(0)},
		},
	}}

	out, err := Run(m)
	require.NoError(t, err)
	ci := out.Code[0].Body[1]
	require.Equal(t, uint32(0), ci.Idx.Num)
	require.Equal(t, uint32(0), ci.Idx2.Num)
}

func TestRunToleratesExportsCheckedUpstream(t *testing.T) {
	// Duplicate-export rejection belongs to internal/assign; rewrite only
	// needs to tolerate exports that already passed that stage.
	m := emptyModule()
	m.Types = []wasm.FunctionType{{}}
	m.FuncTypeIndices = []wasm.Index{wasm.FuncIndex(0)}
	m.Code = []wasm.Code{{Body: []wasm.Instr{{Op: wasm.OpEnd}}}}
	m.Exports = []wasm.Export{
		{Name: "f", Desc: wasm.ExportDesc{Kind: api.ExternTypeFunc, Index: wasm.FuncIndex(0)}},
	}

	_, err := Run(m)
	require.NoError(t, err)
}
