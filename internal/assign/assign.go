// Package assign implements the grouper/assigner stage: it partitions a
// raw, decoded module's fields by kind, assigns each kind a dense 0-based
// index (imports first, then locals), and builds the name→index maps
// used by the rewriter. Corresponds to spec.md §4.2.
package assign

import (
	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/wasm"
)

// Run partitions m.Imports by kind, fills in the Imported* projections and
// counts, and builds name maps from the module's "name" custom section (if
// present). It mutates and returns m.
//
// The name section is an optional custom section whose absence is normal,
// so Run treats a missing "name" section as "no textual identifiers" and
// simply establishes the dense-index bookkeeping every later stage relies
// on.
func Run(m *wasm.Module) (*wasm.Module, error) {
	for _, imp := range m.Imports {
		switch imp.Kind {
		case api.ExternTypeFunc:
			m.ImportedFuncTypes = append(m.ImportedFuncTypes, imp.FuncTypeIndex)
			m.ImportedFuncCount++
		case api.ExternTypeTable:
			m.ImportedTables = append(m.ImportedTables, imp.Table)
			m.ImportedTableCount++
		case api.ExternTypeMemory:
			m.ImportedMemories = append(m.ImportedMemories, imp.Memory)
			m.ImportedMemoryCount++
		case api.ExternTypeGlobal:
			m.ImportedGlobals = append(m.ImportedGlobals, imp.Global)
			m.ImportedGlobalCount++
		default:
			return nil, wasm.NewStaticError("malformed import kind %#x", imp.Kind)
		}
	}

	if err := checkMemoryLimits(m); err != nil {
		return nil, err
	}
	if err := checkTableLimits(m); err != nil {
		return nil, err
	}

	applyNameSection(m)

	if err := resolveExports(m); err != nil {
		return nil, err
	}

	return m, nil
}

// checkMemoryLimits enforces spec.md §3 "A memory has a min ≤ max ≤ 2^16
// pages".
func checkMemoryLimits(m *wasm.Module) error {
	check := func(l wasm.Limits) error {
		if l.Min > wasm.MemoryMaxPages {
			return wasm.NewStaticError("memory size must be at most 65536 pages (4GiB)")
		}
		if l.Max != nil {
			if *l.Max > wasm.MemoryMaxPages {
				return wasm.NewStaticError("memory size must be at most 65536 pages (4GiB)")
			}
			if l.Min > *l.Max {
				return wasm.NewStaticError("size minimum must not be greater than maximum")
			}
		}
		return nil
	}
	for _, mem := range m.ImportedMemories {
		if err := check(mem.Limits); err != nil {
			return err
		}
	}
	for _, mem := range m.Memories {
		if err := check(mem.Limits); err != nil {
			return err
		}
	}
	if n := m.NumMemories(); n > 1 {
		return wasm.NewStaticError("multiple memories")
	}
	return nil
}

func checkTableLimits(m *wasm.Module) error {
	check := func(l wasm.Limits) error {
		if l.Max != nil && l.Min > *l.Max {
			return wasm.NewStaticError("size minimum must not be greater than maximum")
		}
		return nil
	}
	for _, t := range m.ImportedTables {
		if err := check(t.Limits); err != nil {
			return err
		}
	}
	for _, t := range m.Tables {
		if err := check(t.Limits); err != nil {
			return err
		}
	}
	return nil
}

// nameSubsectionFunction is the "name" custom section's function-names
// subsection id, per the Wasm binary "names" appendix.
const nameSubsectionFunction = 1

// applyNameSection looks for a custom section literally named "name" and,
// if present, populates Module.FuncNames from its function-name
// subsection. Other subsections (module name, local names) are accepted
// as present but not required for this pipeline's later stages, so they
// are left unparsed.
func applyNameSection(m *wasm.Module) {
	for _, c := range m.Custom {
		if c.Name != "name" {
			continue
		}
		names, ok := parseFunctionNameSubsection(c.Data)
		if !ok {
			return
		}
		if m.FuncNames.Names == nil {
			m.FuncNames.Names = map[string]uint32{}
		}
		for idx, name := range names {
			m.FuncNames.Names[name] = idx
		}
		return
	}
}

// parseFunctionNameSubsection is a best-effort reader: malformed "name"
// data is non-fatal (the section is diagnostic-only), so any error simply
// yields ok=false.
func parseFunctionNameSubsection(data []byte) (map[uint32]string, bool) {
	i := 0
	readVarU32 := func() (uint32, bool) {
		var result uint32
		var shift uint
		for {
			if i >= len(data) {
				return 0, false
			}
			b := data[i]
			i++
			result |= uint32(b&0x7f) << shift
			if b&0x80 == 0 {
				return result, true
			}
			shift += 7
			if shift >= 35 {
				return 0, false
			}
		}
	}
	for i < len(data) {
		id := data[i]
		i++
		size, ok := readVarU32()
		if !ok || i+int(size) > len(data) {
			return nil, false
		}
		body := data[i : i+int(size)]
		i += int(size)
		if id != nameSubsectionFunction {
			continue
		}
		bi := 0
		readBodyU32 := func() (uint32, bool) {
			var result uint32
			var shift uint
			for {
				if bi >= len(body) {
					return 0, false
				}
				b := body[bi]
				bi++
				result |= uint32(b&0x7f) << shift
				if b&0x80 == 0 {
					return result, true
				}
				shift += 7
			}
		}
		count, ok := readBodyU32()
		if !ok {
			return nil, false
		}
		names := make(map[uint32]string, count)
		for n := uint32(0); n < count; n++ {
			idx, ok := readBodyU32()
			if !ok {
				return nil, false
			}
			ln, ok := readBodyU32()
			if !ok || bi+int(ln) > len(body) {
				return nil, false
			}
			names[idx] = string(body[bi : bi+int(ln)])
			bi += int(ln)
		}
		return names, true
	}
	return nil, false
}

// resolveExports validates each export's index is in range for its kind
// and rejects duplicate export names, per spec.md §4.2.
func resolveExports(m *wasm.Module) error {
	seen := map[string]bool{}
	for _, e := range m.Exports {
		if seen[e.Name] {
			return wasm.NewStaticError("duplicate export name %q", e.Name)
		}
		seen[e.Name] = true
		var n uint32
		switch e.Desc.Kind {
		case api.ExternTypeFunc:
			n = m.NumFuncs()
		case api.ExternTypeTable:
			n = m.NumTables()
		case api.ExternTypeMemory:
			n = m.NumMemories()
		case api.ExternTypeGlobal:
			n = m.NumGlobals()
		default:
			return wasm.NewStaticError("malformed export kind %#x", e.Desc.Kind)
		}
		if e.Desc.Index.Num >= n {
			return wasm.NewStaticError("unknown %s %d", api.ExternTypeName(e.Desc.Kind), e.Desc.Index.Num)
		}
	}
	return nil
}
