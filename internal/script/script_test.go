package script_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/interpret"
	"github.com/wasmkit/owi/internal/script"
	"github.com/wasmkit/owi/internal/values"
	"github.com/wasmkit/owi/internal/wasm"
	"github.com/wasmkit/owi/internal/wasm/binary"
)

func newRunner() *script.Runner {
	return script.NewRunner(interpret.New[values.Value](values.Algebra{}))
}

func requireAllPassed(t *testing.T, out []script.Outcome) {
	t.Helper()
	for _, o := range out {
		require.NoError(t, o.Err, "%T", o.Directive)
	}
}

func addModuleBinary() []byte {
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
	return binary.EncodeModule(m)
}

func divModuleBinary() []byte {
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
	return binary.EncodeModule(m)
}

func TestRunnerAssertReturnPasses(t *testing.T) {
	r := newRunner()
	out := r.Run([]script.Directive{
		script.ModuleDirective{Binary: addModuleBinary()},
		script.AssertReturnDirective{
			Invoke:  script.InvokeDirective{Name: "add", Args: []uint64{api.EncodeI32(2), api.EncodeI32(3)}},
			Results: []uint64{api.EncodeI32(5)},
		},
	})
	requireAllPassed(t, out)
}

func TestRunnerAssertReturnReportsMismatch(t *testing.T) {
	r := newRunner()
	out := r.Run([]script.Directive{
		script.ModuleDirective{Binary: addModuleBinary()},
		script.AssertReturnDirective{
			Invoke:  script.InvokeDirective{Name: "add", Args: []uint64{api.EncodeI32(2), api.EncodeI32(3)}},
			Results: []uint64{api.EncodeI32(6)},
		},
	})
	require.NoError(t, out[0].Err)
	require.Error(t, out[1].Err)
}

func TestRunnerAssertTrapPasses(t *testing.T) {
	r := newRunner()
	out := r.Run([]script.Directive{
		script.ModuleDirective{Binary: divModuleBinary()},
		script.AssertTrapDirective{
			Invoke:  script.InvokeDirective{Name: "div", Args: []uint64{api.EncodeI32(1), api.EncodeI32(0)}},
			Message: "integer divide by zero",
		},
	})
	requireAllPassed(t, out)
}

func TestRunnerAssertTrapFailsWhenCallSucceeds(t *testing.T) {
	r := newRunner()
	out := r.Run([]script.Directive{
		script.ModuleDirective{Binary: divModuleBinary()},
		script.AssertTrapDirective{
			Invoke: script.InvokeDirective{Name: "div", Args: []uint64{api.EncodeI32(10), api.EncodeI32(2)}},
		},
	})
	require.NoError(t, out[0].Err)
	require.Error(t, out[1].Err)
}

func TestRunnerAssertMalformedDetectsBadMagic(t *testing.T) {
	r := newRunner()
	out := r.Run([]script.Directive{
		script.AssertMalformedDirective{Binary: []byte{0, 0, 0, 0, 1, 0, 0, 0}, Message: "magic header not detected"},
	})
	requireAllPassed(t, out)
}

func TestRunnerAssertInvalidDetectsMissingResult(t *testing.T) {
	m := &wasm.Module{
		Types:           []wasm.FunctionType{{Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code:            []wasm.Code{{Body: []wasm.Instr{}}}, // declares an i32 result, produces none
	}
	r := newRunner()
	out := r.Run([]script.Directive{
		script.AssertInvalidDirective{Binary: binary.EncodeModule(m), Message: "type mismatch"},
	})
	requireAllPassed(t, out)
}

func TestRunnerRegisterAndInvokeAcrossModules(t *testing.T) {
	producer := &wasm.Module{
		Types:           []wasm.FunctionType{{Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code:            []wasm.Code{{Body: []wasm.Instr{{Op: wasm.OpI32Const, I32: 41}}}},
		Exports:         []wasm.Export{{Name: "val", Desc: wasm.ExportDesc{Kind: api.ExternTypeFunc, Index: wasm.FuncIndex(0)}}},
	}
	consumer := &wasm.Module{
		Types: []wasm.FunctionType{{Results: []api.ValueType{api.ValueTypeI32}}},
		Imports: []wasm.Import{
			{Module: "producerMod", Name: "val", Kind: api.ExternTypeFunc, FuncTypeIndex: wasm.FuncIndex(0)},
		},
		ImportedFuncTypes: []wasm.Index{wasm.FuncIndex(0)},
		ImportedFuncCount: 1,
		FuncTypeIndices:   []wasm.Index{wasm.FuncIndex(0)},
		Code: []wasm.Code{{Body: []wasm.Instr{
			{Op: wasm.OpCall, Idx: wasm.FuncIndex(0)},
			{Op: wasm.OpI32Const, I32: 1},
			{Op: wasm.OpI32Add},
		}}},
		Exports: []wasm.Export{{Name: "useit", Desc: wasm.ExportDesc{Kind: api.ExternTypeFunc, Index: wasm.FuncIndex(1)}}},
	}

	r := newRunner()
	out := r.Run([]script.Directive{
		script.ModuleDirective{ID: "producer", Binary: binary.EncodeModule(producer)},
		script.RegisterDirective{ModuleName: "producerMod", ID: "producer"},
		script.ModuleDirective{ID: "consumer", Binary: binary.EncodeModule(consumer)},
		script.AssertReturnDirective{
			Invoke:  script.InvokeDirective{ID: "consumer", Name: "useit"},
			Results: []uint64{api.EncodeI32(42)},
		},
	})
	requireAllPassed(t, out)
}
