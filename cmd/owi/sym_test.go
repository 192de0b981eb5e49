package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/wasm"
	"github.com/wasmkit/owi/internal/wasm/binary"
)

func writeBranchingModule(t *testing.T) string {
	t.Helper()
	// fn(x) = x != 0 ? 1 : 0, via if/else, to produce a branch in the path
	// condition when called symbolically.
	ifType := &wasm.FunctionType{Results: []api.ValueType{api.ValueTypeI32}}
	m := &wasm.Module{
		Types:           []wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
			{Op: wasm.OpIf, BlockType: wasm.BlockType{Resolved: ifType},
				Then: []wasm.Instr{{Op: wasm.OpI32Const, I32: 1}},
				Else: []wasm.Instr{{Op: wasm.OpI32Const, I32: 0}},
			},
		}}},
		Exports: []wasm.Export{{Name: "classify", Desc: wasm.ExportDesc{Kind: api.ExternTypeFunc, Index: wasm.FuncIndex(0)}}},
	}
	path := filepath.Join(t.TempDir(), "classify.wasm")
	require.NoError(t, os.WriteFile(path, binary.EncodeModule(m), 0o644))
	return path
}

func TestDoSymRequiresInvokeFlag(t *testing.T) {
	path := writeAddModule(t)
	var out bytes.Buffer
	err := doSym(path, "", []string{"1", "2"}, false, &out)
	require.Error(t, err)
}

func TestDoSymReportsResultForSimpleAdd(t *testing.T) {
	path := writeAddModule(t)
	var out bytes.Buffer
	err := doSym(path, "add", []string{"2", "3"}, false, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "result 0")
}

func TestDoSymReportsTrapForDivByZero(t *testing.T) {
	path := writeDivModule(t)
	var out bytes.Buffer
	err := doSym(path, "div", []string{"1", "0"}, false, &out)
	require.Error(t, err)
	require.Contains(t, out.String(), "trapped")
}

func TestDoSymRecordsPathConditionAcrossBranch(t *testing.T) {
	path := writeBranchingModule(t)
	var out bytes.Buffer
	err := doSym(path, "classify", []string{"1"}, false, &out)
	require.NoError(t, err)
	// The branch condition traces back to a symbolic parameter, so both
	// arms get explored: one path asserting arg0 != 0, the other its
	// negation, each with exactly one constraint.
	require.Contains(t, out.String(), "path 0 condition (1 constraints)")
	require.Contains(t, out.String(), "path 1 condition (1 constraints)")
}
