package main

import (
	"bytes"
	"fmt"
	"io"

	hversion "github.com/hashicorp/go-version"
	"github.com/spf13/cobra"

	"github.com/wasmkit/owi/internal/leb128"
	"github.com/wasmkit/owi/internal/wasm"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print owi's own version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("owi version", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// producerToolVersion reads the standard "producers" custom section (a
// name, field-count, then per field a name and a list of (value,
// version) string pairs — see the tool-conventions "producers" section
// proposal) and returns the first non-empty version string recorded in
// any of its fields, or "" if the module carries no producers section,
// it doesn't parse, or no entry has a version.
func producerToolVersion(m *wasm.Module) string {
	for _, cs := range m.Custom {
		if cs.Name != "producers" {
			continue
		}
		v, ok := parseProducersVersion(cs.Data)
		if ok {
			return v
		}
	}
	return ""
}

func parseProducersVersion(data []byte) (string, bool) {
	r := bytes.NewReader(data)
	fieldCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", false
	}
	for i := uint32(0); i < fieldCount; i++ {
		if _, err := readName(r); err != nil {
			return "", false
		}
		valueCount, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return "", false
		}
		for j := uint32(0); j < valueCount; j++ {
			if _, err := readName(r); err != nil {
				return "", false
			}
			version, err := readName(r)
			if err != nil {
				return "", false
			}
			if version != "" {
				return version, true
			}
		}
	}
	return "", false
}

func readName(r io.ByteReader) (string, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	br, ok := r.(io.Reader)
	if !ok {
		return "", fmt.Errorf("internal/owi: reader does not support bulk reads")
	}
	if _, err := io.ReadFull(br, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// warnIfIncompatible compares a module's producers version (if present
// and semver-parseable) against this build's own Version, printing a
// compatibility warning to stderr when the module was produced by a
// strictly newer toolchain. It never blocks execution — spec.md's
// binary-version check (the literal `\x01\x00\x00\x00` header comparison
// in the decoder) is the only gate that can reject a module outright.
func warnIfIncompatible(stderr io.Writer, m *wasm.Module) {
	producer := producerToolVersion(m)
	if producer == "" {
		return
	}
	ownVer, err := hversion.NewVersion(Version)
	if err != nil {
		return
	}
	producerVer, err := hversion.NewVersion(producer)
	if err != nil {
		return
	}
	if producerVer.GreaterThan(ownVer) {
		fmt.Fprintf(stderr, "warning: module was produced by toolchain version %s, newer than owi %s\n", producerVer, ownVer)
	}
}
