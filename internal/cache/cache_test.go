package cache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/cache"
	"github.com/wasmkit/owi/internal/wasm"
	"github.com/wasmkit/owi/internal/wasm/binary"
)

func sampleModule() *wasm.Module {
	return &wasm.Module{
		Types:           []wasm.FunctionType{{Results: []api.ValueType{api.ValueTypeI32}}},
		FuncTypeIndices: []wasm.Index{wasm.FuncIndex(0)},
		Code:            []wasm.Code{{Body: []wasm.Instr{{Op: wasm.OpI32Const, I32: 7}}}},
	}
}

func TestStoreLookupMissThenHit(t *testing.T) {
	s, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	raw := binary.EncodeModule(sampleModule())

	_, ok, err := s.Lookup(raw)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Store(raw, sampleModule()))

	got, ok, err := s.Lookup(raw)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Code, 1)
	require.Equal(t, int32(7), got.Code[0].Body[0].I32)
}

func TestStoreOverwritesOnReStore(t *testing.T) {
	s, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	raw := binary.EncodeModule(sampleModule())
	require.NoError(t, s.Store(raw, sampleModule()))
	require.NoError(t, s.Store(raw, sampleModule())) // same key, must not conflict

	_, ok, err := s.Lookup(raw)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestKeyIsStableAndContentAddressed(t *testing.T) {
	a := binary.EncodeModule(sampleModule())
	b := binary.EncodeModule(sampleModule())
	require.Equal(t, cache.Key(a), cache.Key(b))
	require.NotEqual(t, cache.Key(a), cache.Key([]byte("different")))
}
