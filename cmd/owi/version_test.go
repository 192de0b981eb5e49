package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmkit/owi/internal/wasm"
)

// encodeProducersSection builds the raw bytes of a minimal "producers"
// custom section with a single field/value/version triple, matching the
// shape parseProducersVersion reads.
func encodeProducersSection(field, value, version string) []byte {
	var buf bytes.Buffer
	writeName := func(s string) {
		buf.Write(encodeUvarint(uint32(len(s))))
		buf.WriteString(s)
	}
	buf.Write(encodeUvarint(1)) // field count
	writeName(field)
	buf.Write(encodeUvarint(1)) // value count
	writeName(value)
	writeName(version)
	return buf.Bytes()
}

func encodeUvarint(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func TestParseProducersVersionReadsFirstVersionString(t *testing.T) {
	data := encodeProducersSection("processed-by", "owi", "1.2.3")
	v, ok := parseProducersVersion(data)
	require.True(t, ok)
	require.Equal(t, "1.2.3", v)
}

func TestParseProducersVersionFailsOnGarbage(t *testing.T) {
	_, ok := parseProducersVersion([]byte{0xff, 0xff, 0xff})
	require.False(t, ok)
}

func TestProducerToolVersionSkipsOtherCustomSections(t *testing.T) {
	m := &wasm.Module{
		Custom: []wasm.CustomSection{
			{Name: "name", Data: []byte{0}},
			{Name: "producers", Data: encodeProducersSection("language", "rust", "2.0.0")},
		},
	}
	require.Equal(t, "2.0.0", producerToolVersion(m))
}

func TestProducerToolVersionEmptyWhenNoProducersSection(t *testing.T) {
	m := &wasm.Module{Custom: []wasm.CustomSection{{Name: "name", Data: []byte{0}}}}
	require.Equal(t, "", producerToolVersion(m))
}

func TestWarnIfIncompatiblePrintsWarningForNewerProducer(t *testing.T) {
	oldVersion := Version
	Version = "1.0.0"
	defer func() { Version = oldVersion }()

	m := &wasm.Module{Custom: []wasm.CustomSection{
		{Name: "producers", Data: encodeProducersSection("processed-by", "owi", "2.0.0")},
	}}
	var out bytes.Buffer
	warnIfIncompatible(&out, m)
	require.Contains(t, out.String(), "2.0.0")
}

func TestWarnIfIncompatibleSilentWhenUpToDate(t *testing.T) {
	oldVersion := Version
	Version = "3.0.0"
	defer func() { Version = oldVersion }()

	m := &wasm.Module{Custom: []wasm.CustomSection{
		{Name: "producers", Data: encodeProducersSection("processed-by", "owi", "1.0.0")},
	}}
	var out bytes.Buffer
	warnIfIncompatible(&out, m)
	require.Empty(t, out.String())
}
