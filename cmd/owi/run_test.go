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

func writeAddModule(t *testing.T) string {
	t.Helper()
	m := &wasm.Module{
		Types:           []wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(1)},
			{Op: wasm.OpI32Add},
		}}},
		Exports: []wasm.Export{{Name: "add", Desc: wasm.ExportDesc{Kind: api.ExternTypeFunc, Index: wasm.FuncIndex(0)}}},
	}
	path := filepath.Join(t.TempDir(), "add.wasm")
	require.NoError(t, os.WriteFile(path, binary.EncodeModule(m), 0o644))
	return path
}

func writeDivModule(t *testing.T) string {
	t.Helper()
	m := &wasm.Module{
		Types:           []wasm.FunctionType{{Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(0)},
			{Op: wasm.OpLocalGet, Idx: wasm.FuncIndex(1)},
			{Op: wasm.OpI32DivS},
		}}},
		Exports: []wasm.Export{{Name: "div", Desc: wasm.ExportDesc{Kind: api.ExternTypeFunc, Index: wasm.FuncIndex(0)}}},
	}
	path := filepath.Join(t.TempDir(), "div.wasm")
	require.NoError(t, os.WriteFile(path, binary.EncodeModule(m), 0o644))
	return path
}

func TestDoRunInvokesExportAndPrintsResult(t *testing.T) {
	path := writeAddModule(t)
	var out bytes.Buffer
	err := doRun(path, "add", []string{"2", "3"}, &out)
	require.NoError(t, err)
	require.Equal(t, "5\n", out.String())
}

func TestDoRunWithoutInvokeJustLinks(t *testing.T) {
	path := writeAddModule(t)
	var out bytes.Buffer
	err := doRun(path, "", nil, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "linked ok")
}

func TestDoRunReportsTrap(t *testing.T) {
	path := writeDivModule(t)
	var out bytes.Buffer
	err := doRun(path, "div", []string{"1", "0"}, &out)
	require.Error(t, err)
}

func TestDoRunRejectsUnknownExport(t *testing.T) {
	path := writeAddModule(t)
	var out bytes.Buffer
	err := doRun(path, "nope", nil, &out)
	require.Error(t, err)
}

func TestDoRunWithCacheStoresAndServesHit(t *testing.T) {
	path := writeAddModule(t)
	runCacheDir = t.TempDir()
	defer func() { runCacheDir = "" }()

	var out1 bytes.Buffer
	require.NoError(t, doRun(path, "add", []string{"4", "5"}, &out1))
	require.Equal(t, "9\n", out1.String())

	var out2 bytes.Buffer
	require.NoError(t, doRun(path, "add", []string{"4", "5"}, &out2))
	require.Equal(t, "9\n", out2.String())
}
