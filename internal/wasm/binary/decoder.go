// Package binary decodes the canonical Wasm binary format into a raw,
// pre-assign wasm.Module, per spec.md §4.1.
package binary

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/leb128"
	"github.com/wasmkit/owi/internal/wasm"
)

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d} // "\x00asm"
var version = [4]byte{0x01, 0x00, 0x00, 0x00}

type sectionID byte

const (
	sectionCustom sectionID = iota
	sectionType
	sectionImport
	sectionFunction
	sectionTable
	sectionMemory
	sectionGlobal
	sectionExport
	sectionStart
	sectionElement
	sectionCode
	sectionData
	sectionDataCount
)

// DecodeModule parses the canonical binary encoding of a Wasm module. The
// returned Module is raw: names, where present in custom "name" sections,
// are not yet attached, and indices are exactly as encoded (binary modules
// never carry textual identifiers, so every Index here already has
// Name == "").
func DecodeModule(b []byte) (*wasm.Module, error) {
	r := bytes.NewReader(b)

	var gotMagic [4]byte
	if n, _ := io.ReadFull(r, gotMagic[:]); n < 4 || gotMagic != magic {
		return nil, wasm.NewStaticError("magic header not detected")
	}
	var gotVersion [4]byte
	if n, _ := io.ReadFull(r, gotVersion[:]); n < 4 || gotVersion != version {
		return nil, wasm.NewStaticError("unknown binary version")
	}

	m := &wasm.Module{}

	var lastNonCustom sectionID = sectionID(255)
	var sawCode, sawFunc bool
	var funcTypeIdx []wasm.Index

	for {
		idByte, err := r.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		id := sectionID(idByte)

		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, wasm.NewStaticError("malformed section size: %v", err)
		}
		sectionBytes := make([]byte, size)
		if _, err := io.ReadFull(r, sectionBytes); err != nil {
			return nil, wasm.NewStaticError("section size mismatch: unexpected EOF")
		}
		sr := bytes.NewReader(sectionBytes)
		sd := &decoder{r: sr}

		if id != sectionCustom {
			if id <= lastNonCustom && lastNonCustom != sectionID(255) {
				return nil, wasm.NewStaticError("section out of order")
			}
			lastNonCustom = id
		}

		switch id {
		case sectionCustom:
			name, err := sd.readName()
			if err != nil {
				return nil, err
			}
			m.Custom = append(m.Custom, wasm.CustomSection{Name: name, Data: append([]byte(nil), sectionBytes[len(sectionBytes)-sr.Len():]...)})
		case sectionType:
			if m.Types, err = sd.decodeTypeSection(); err != nil {
				return nil, err
			}
		case sectionImport:
			if m.Imports, err = sd.decodeImportSection(); err != nil {
				return nil, err
			}
		case sectionFunction:
			if funcTypeIdx, err = sd.decodeFunctionSection(); err != nil {
				return nil, err
			}
			sawFunc = true
		case sectionTable:
			if m.Tables, err = sd.decodeTableSection(); err != nil {
				return nil, err
			}
		case sectionMemory:
			if m.Memories, err = sd.decodeMemorySection(); err != nil {
				return nil, err
			}
		case sectionGlobal:
			if m.Globals, err = sd.decodeGlobalSection(); err != nil {
				return nil, err
			}
		case sectionExport:
			if m.Exports, err = sd.decodeExportSection(); err != nil {
				return nil, err
			}
		case sectionStart:
			idx, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, err
			}
			start := wasm.FuncIndex(idx)
			m.StartFunc = &start
		case sectionElement:
			if m.Elems, err = sd.decodeElementSection(); err != nil {
				return nil, err
			}
		case sectionDataCount:
			n, _, err := leb128.DecodeUint32(sr)
			if err != nil {
				return nil, err
			}
			m.DataCount = &n
		case sectionCode:
			if m.Code, err = sd.decodeCodeSection(); err != nil {
				return nil, err
			}
			sawCode = true
		case sectionData:
			if m.Datas, err = sd.decodeDataSection(); err != nil {
				return nil, err
			}
		default:
			return nil, wasm.NewStaticError("malformed section id %d", id)
		}

		if sr.Len() != 0 {
			return nil, wasm.NewStaticError("section size mismatch")
		}
	}

	if sawFunc != sawCode {
		return nil, wasm.NewStaticError("function and code section count mismatch")
	}
	if len(funcTypeIdx) != len(m.Code) {
		return nil, wasm.NewStaticError("function and code section count mismatch")
	}
	m.FuncTypeIndices = funcTypeIdx
	return m, nil
}

// decoder is a byte-exact cursor over one section's payload (or the
// module-level stream, used only for the header).
type decoder struct {
	r *bytes.Reader
}

func (d *decoder) readByte() (byte, error) { return d.r.ReadByte() }

func (d *decoder) readName() (string, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", wasm.NewStaticError("malformed UTF-8 encoding")
	}
	return string(buf), nil
}

func (d *decoder) readValueType() (api.ValueType, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64,
		api.ValueTypeFuncref, api.ValueTypeExternref:
		return b, nil
	}
	return 0, wasm.NewStaticError("malformed value type %#x", b)
}

func (d *decoder) readLimits() (wasm.Limits, error) {
	flag, err := d.r.ReadByte()
	if err != nil {
		return wasm.Limits{}, err
	}
	min, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return wasm.Limits{}, err
	}
	lim := wasm.Limits{Min: min}
	if flag == 1 {
		max, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return wasm.Limits{}, err
		}
		lim.Max = &max
	} else if flag != 0 {
		return wasm.Limits{}, wasm.NewStaticError("malformed limits flag %#x", flag)
	}
	return lim, nil
}

func (d *decoder) decodeTypeSection() ([]wasm.FunctionType, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return nil, err
	}
	types := make([]wasm.FunctionType, n)
	for i := range types {
		form, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if form != 0x60 {
			return nil, wasm.NewStaticError("integer representation too long: malformed type form %#x", form)
		}
		np, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return nil, err
		}
		params := make([]api.ValueType, np)
		for j := range params {
			if params[j], err = d.readValueType(); err != nil {
				return nil, err
			}
		}
		nr, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return nil, err
		}
		results := make([]api.ValueType, nr)
		for j := range results {
			if results[j], err = d.readValueType(); err != nil {
				return nil, err
			}
		}
		types[i] = wasm.FunctionType{Params: params, Results: results}
	}
	return types, nil
}

func (d *decoder) decodeImportSection() ([]wasm.Import, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return nil, err
	}
	imports := make([]wasm.Import, n)
	for i := range imports {
		mod, err := d.readName()
		if err != nil {
			return nil, err
		}
		name, err := d.readName()
		if err != nil {
			return nil, err
		}
		kind, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		imp := wasm.Import{Module: mod, Name: name, Kind: kind}
		switch kind {
		case api.ExternTypeFunc:
			idx, _, err := leb128.DecodeUint32(d.r)
			if err != nil {
				return nil, err
			}
			imp.FuncTypeIndex = wasm.FuncIndex(idx)
		case api.ExternTypeTable:
			rt, err := d.readValueType()
			if err != nil {
				return nil, err
			}
			lim, err := d.readLimits()
			if err != nil {
				return nil, err
			}
			imp.Table = wasm.TableType{RefType: rt, Limits: lim}
		case api.ExternTypeMemory:
			lim, err := d.readLimits()
			if err != nil {
				return nil, err
			}
			imp.Memory = wasm.MemoryType{Limits: lim}
		case api.ExternTypeGlobal:
			vt, err := d.readValueType()
			if err != nil {
				return nil, err
			}
			mut, err := d.r.ReadByte()
			if err != nil {
				return nil, err
			}
			imp.Global = wasm.GlobalType{ValType: vt, Mutable: mut == 1}
		default:
			return nil, wasm.NewStaticError("malformed import kind %#x", kind)
		}
		imports[i] = imp
	}
	return imports, nil
}

func (d *decoder) decodeFunctionSection() ([]wasm.Index, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.Index, n)
	for i := range out {
		idx, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return nil, err
		}
		out[i] = wasm.FuncIndex(idx)
	}
	return out, nil
}

func (d *decoder) decodeTableSection() ([]wasm.TableType, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.TableType, n)
	for i := range out {
		rt, err := d.readValueType()
		if err != nil {
			return nil, err
		}
		lim, err := d.readLimits()
		if err != nil {
			return nil, err
		}
		out[i] = wasm.TableType{RefType: rt, Limits: lim}
	}
	return out, nil
}

func (d *decoder) decodeMemorySection() ([]wasm.MemoryType, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.MemoryType, n)
	for i := range out {
		lim, err := d.readLimits()
		if err != nil {
			return nil, err
		}
		out[i] = wasm.MemoryType{Limits: lim}
	}
	return out, nil
}

func (d *decoder) decodeGlobalSection() ([]wasm.Global, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.Global, n)
	for i := range out {
		vt, err := d.readValueType()
		if err != nil {
			return nil, err
		}
		mut, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		ce, err := d.decodeConstExpr()
		if err != nil {
			return nil, err
		}
		out[i] = wasm.Global{Type: wasm.GlobalType{ValType: vt, Mutable: mut == 1}, Init: ce}
	}
	return out, nil
}

func (d *decoder) decodeExportSection() ([]wasm.Export, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.Export, n)
	seen := map[string]bool{}
	for i := range out {
		name, err := d.readName()
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, wasm.NewStaticError("duplicate export name %q", name)
		}
		seen[name] = true
		kind, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		idx, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return nil, err
		}
		out[i] = wasm.Export{Name: name, Desc: wasm.ExportDesc{Kind: kind, Index: wasm.FuncIndex(idx)}}
	}
	return out, nil
}

func (d *decoder) decodeElementSection() ([]wasm.ElementSegment, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.ElementSegment, n)
	for i := range out {
		flag, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return nil, err
		}
		seg := wasm.ElementSegment{RefType: api.ValueTypeFuncref}
		switch flag {
		case 0:
			seg.Mode = wasm.ElemModeActive
			seg.Table = wasm.FuncIndex(0)
			if seg.Offset, err = d.decodeConstExpr(); err != nil {
				return nil, err
			}
			if seg.Init, err = d.decodeFuncIndexInits(); err != nil {
				return nil, err
			}
		case 1:
			seg.Mode = wasm.ElemModePassive
			if _, err := d.r.ReadByte(); err != nil { // elemkind
				return nil, err
			}
			if seg.Init, err = d.decodeFuncIndexInits(); err != nil {
				return nil, err
			}
		case 2:
			seg.Mode = wasm.ElemModeActive
			ti, _, err := leb128.DecodeUint32(d.r)
			if err != nil {
				return nil, err
			}
			seg.Table = wasm.FuncIndex(ti)
			if seg.Offset, err = d.decodeConstExpr(); err != nil {
				return nil, err
			}
			if _, err := d.r.ReadByte(); err != nil {
				return nil, err
			}
			if seg.Init, err = d.decodeFuncIndexInits(); err != nil {
				return nil, err
			}
		case 3:
			seg.Mode = wasm.ElemModeDeclarative
			if _, err := d.r.ReadByte(); err != nil {
				return nil, err
			}
			if seg.Init, err = d.decodeFuncIndexInits(); err != nil {
				return nil, err
			}
		case 4, 5, 6, 7:
			// Expression-initialised variants (ref.null / ref.func exprs
			// rather than bare func indices). Shapes 4-7 mirror 0-3 but
			// read full const-exprs per element and, for 5-7, an explicit
			// reftype byte instead of elemkind.
			if flag == 4 {
				seg.Mode = wasm.ElemModeActive
				seg.Table = wasm.FuncIndex(0)
				if seg.Offset, err = d.decodeConstExpr(); err != nil {
					return nil, err
				}
			} else if flag == 6 {
				ti, _, err := leb128.DecodeUint32(d.r)
				if err != nil {
					return nil, err
				}
				seg.Mode = wasm.ElemModeActive
				seg.Table = wasm.FuncIndex(ti)
				if seg.Offset, err = d.decodeConstExpr(); err != nil {
					return nil, err
				}
			} else if flag == 5 {
				seg.Mode = wasm.ElemModePassive
			} else {
				seg.Mode = wasm.ElemModeDeclarative
			}
			if flag != 4 {
				if rt, err := d.readValueType(); err != nil {
					return nil, err
				} else {
					seg.RefType = rt
				}
			}
			n2, _, err := leb128.DecodeUint32(d.r)
			if err != nil {
				return nil, err
			}
			inits := make([]wasm.ConstExpr, n2)
			for j := range inits {
				if inits[j], err = d.decodeConstExpr(); err != nil {
					return nil, err
				}
			}
			seg.Init = inits
		default:
			return nil, wasm.NewStaticError("malformed element segment flag %d", flag)
		}
		out[i] = seg
	}
	return out, nil
}

func (d *decoder) decodeFuncIndexInits() ([]wasm.ConstExpr, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.ConstExpr, n)
	for i := range out {
		idx, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return nil, err
		}
		out[i] = wasm.ConstExpr{Instrs: []wasm.Instr{{Op: wasm.OpRefFunc, Idx: wasm.FuncIndex(idx)}}}
	}
	return out, nil
}

func (d *decoder) decodeDataSection() ([]wasm.DataSegment, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.DataSegment, n)
	for i := range out {
		flag, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return nil, err
		}
		seg := wasm.DataSegment{}
		switch flag {
		case 0:
			seg.Mode = wasm.DataModeActive
			seg.Memory = wasm.FuncIndex(0)
			if seg.Offset, err = d.decodeConstExpr(); err != nil {
				return nil, err
			}
		case 1:
			seg.Mode = wasm.DataModePassive
		case 2:
			seg.Mode = wasm.DataModeActive
			mi, _, err := leb128.DecodeUint32(d.r)
			if err != nil {
				return nil, err
			}
			seg.Memory = wasm.FuncIndex(mi)
			if seg.Offset, err = d.decodeConstExpr(); err != nil {
				return nil, err
			}
		default:
			return nil, wasm.NewStaticError("malformed data segment flag %d", flag)
		}
		ln, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, ln)
		if _, err := io.ReadFull(d.r, buf); err != nil {
			return nil, wasm.NewStaticError("section size mismatch")
		}
		seg.Init = buf
		out[i] = seg
	}
	return out, nil
}

func (d *decoder) decodeCodeSection() ([]wasm.Code, error) {
	n, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return nil, err
	}
	out := make([]wasm.Code, n)
	for i := range out {
		size, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return nil, err
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(d.r, body); err != nil {
			return nil, wasm.NewStaticError("section size mismatch")
		}
		cd := &decoder{r: bytes.NewReader(body)}
		localCount, _, err := leb128.DecodeUint32(cd.r)
		if err != nil {
			return nil, err
		}
		locals := make([]wasm.Local, localCount)
		for j := range locals {
			cnt, _, err := leb128.DecodeUint32(cd.r)
			if err != nil {
				return nil, err
			}
			vt, err := cd.readValueType()
			if err != nil {
				return nil, err
			}
			locals[j] = wasm.Local{Count: cnt, Type: vt}
		}
		instrs, err := cd.decodeInstrsUntil(wasm.OpEnd)
		if err != nil {
			return nil, err
		}
		if cd.r.Len() != 0 {
			return nil, wasm.NewStaticError("section size mismatch")
		}
		out[i] = wasm.Code{Locals: locals, Body: instrs}
	}
	return out, nil
}

func (d *decoder) decodeConstExpr() (wasm.ConstExpr, error) {
	instrs, err := d.decodeInstrsUntil(wasm.OpEnd)
	if err != nil {
		return wasm.ConstExpr{}, err
	}
	return wasm.ConstExpr{Instrs: instrs}, nil
}

// decodeInstrsUntil decodes a straight-line instruction sequence up to and
// consuming the terminating `end` (0x0B) opcode.
func (d *decoder) decodeInstrsUntil(_ wasm.Opcode) ([]wasm.Instr, error) {
	var out []wasm.Instr
	for {
		op, err := d.r.ReadByte()
		if err != nil {
			return nil, wasm.NewStaticError("unexpected end of section or function")
		}
		if op == byte(wasm.OpEnd) {
			return out, nil
		}
		instr, err := d.decodeOneInstr(wasm.Opcode(op))
		if err != nil {
			return nil, err
		}
		out = append(out, instr)
	}
}

func (d *decoder) decodeOneInstr(op wasm.Opcode) (wasm.Instr, error) {
	if op == 0xFD {
		return wasm.Instr{}, wasm.NewStaticError("feature not supported: vector instructions")
	}
	if op != 0xFC && !isKnownOpcode(byte(op)) {
		return wasm.Instr{}, wasm.NewStaticError("illegal opcode %#x", byte(op))
	}
	instr := wasm.Instr{Op: op}
	switch op {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
		bt, err := d.decodeBlockType()
		if err != nil {
			return instr, err
		}
		instr.BlockType = bt
		if op == wasm.OpIf {
			then, elseArm, err := d.decodeIfArms()
			if err != nil {
				return instr, err
			}
			instr.Then, instr.Else = then, elseArm
		} else {
			body, err := d.decodeInstrsUntil(wasm.OpEnd)
			if err != nil {
				return instr, err
			}
			instr.Then = body
		}
	case wasm.OpElse, wasm.OpEnd:
		return instr, wasm.NewStaticError("unexpected %s", op.Name())
	case wasm.OpBr, wasm.OpBrIf:
		idx, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		instr.Idx = wasm.FuncIndex(idx)
	case wasm.OpBrTable:
		n, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		targets := make([]wasm.Index, n)
		for i := range targets {
			idx, _, err := leb128.DecodeUint32(d.r)
			if err != nil {
				return instr, err
			}
			targets[i] = wasm.FuncIndex(idx)
		}
		def, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		instr.Targets = targets
		instr.Idx = wasm.FuncIndex(def)
	case wasm.OpCall:
		idx, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		instr.Idx = wasm.FuncIndex(idx)
	case wasm.OpCallIndirect:
		ti, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		tbl, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		instr.Idx = wasm.FuncIndex(ti)
		instr.Idx2 = wasm.FuncIndex(tbl)
	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee,
		wasm.OpGlobalGet, wasm.OpGlobalSet, wasm.OpTableGet, wasm.OpTableSet:
		idx, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		instr.Idx = wasm.FuncIndex(idx)
	case wasm.OpSelectT:
		n, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		// Stored as a synthetic single-type block-type vector of n entries;
		// only n==1 is valid Wasm 1.0 but we keep all for diagnostics.
		types := make([]byte, n)
		for i := range types {
			if types[i], err = d.readValueType(); err != nil {
				return instr, err
			}
		}
		if n > 0 {
			instr.BlockType = wasm.BlockType{Kind: wasm.BlockKindValueType, ValueType: types[0]}
		}
	case wasm.OpI32Load, wasm.OpI64Load, wasm.OpF32Load, wasm.OpF64Load,
		wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U,
		wasm.OpI64Load8S, wasm.OpI64Load8U, wasm.OpI64Load16S, wasm.OpI64Load16U,
		wasm.OpI64Load32S, wasm.OpI64Load32U,
		wasm.OpI32Store, wasm.OpI64Store, wasm.OpF32Store, wasm.OpF64Store,
		wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32:
		ma, err := d.decodeMemarg()
		if err != nil {
			return instr, err
		}
		instr.Memarg = ma
	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		b, err := d.r.ReadByte()
		if err != nil {
			return instr, err
		}
		if b != 0 {
			return instr, wasm.NewStaticError("zero flag expected")
		}
	case wasm.OpI32Const:
		v, _, err := leb128.DecodeInt32(d.r)
		if err != nil {
			return instr, err
		}
		instr.I32 = v
	case wasm.OpI64Const:
		v, _, err := leb128.DecodeInt64(d.r)
		if err != nil {
			return instr, err
		}
		instr.I64 = v
	case wasm.OpF32Const:
		var raw [4]byte
		if _, err := io.ReadFull(d.r, raw[:]); err != nil {
			return instr, err
		}
		instr.F32 = math.Float32frombits(binary.LittleEndian.Uint32(raw[:]))
	case wasm.OpF64Const:
		var raw [8]byte
		if _, err := io.ReadFull(d.r, raw[:]); err != nil {
			return instr, err
		}
		instr.F64 = math.Float64frombits(binary.LittleEndian.Uint64(raw[:]))
	case wasm.OpRefNull:
		rt, err := d.readValueType()
		if err != nil {
			return instr, err
		}
		instr.RefType = rt
	case wasm.OpRefFunc:
		idx, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		instr.Idx = wasm.FuncIndex(idx)
	case 0xFC:
		return d.decodeMiscInstr()
	}
	return instr, nil
}

// isKnownOpcode reports whether b is assigned a meaning in the Wasm 1.0 +
// bulk-memory/reference-types/sign-extension single-byte opcode space. The
// 0xFC prefix and 0xFD (vector, unsupported) bytes are handled by their
// callers before reaching here.
func isKnownOpcode(b byte) bool {
	switch {
	case b <= 0x11: // control: unreachable..call_indirect
		return true
	case b >= 0x1A && b <= 0x1C: // drop, select, select t*
		return true
	case b >= 0x20 && b <= 0x26: // local/global/table get-set-tee
		return true
	case b >= 0x28 && b <= 0x40: // memory loads/stores, memory.size/grow
		return true
	case b >= 0x41 && b <= 0xBF: // numeric consts, compare, arithmetic, conversions
		return true
	case b >= 0xC0 && b <= 0xC4: // sign-extension ops
		return true
	case b >= 0xD0 && b <= 0xD2: // ref.null, ref.is_null, ref.func
		return true
	}
	return false
}

func (d *decoder) decodeMemarg() (wasm.Memarg, error) {
	align, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return wasm.Memarg{}, err
	}
	offset, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return wasm.Memarg{}, err
	}
	return wasm.Memarg{Align: align, Offset: offset}, nil
}

// decodeBlockType decodes the \x40 (void) / value-type / signed-LEB33
// type-index immediate shared by block, loop and if, per spec.md §4.1.
func (d *decoder) decodeBlockType() (wasm.BlockType, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return wasm.BlockType{}, err
	}
	if b == 0x40 {
		return wasm.BlockType{Kind: wasm.BlockKindEmpty}, nil
	}
	switch b {
	case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64,
		api.ValueTypeFuncref, api.ValueTypeExternref:
		return wasm.BlockType{Kind: wasm.BlockKindValueType, ValueType: b}, nil
	}
	if err := d.r.UnreadByte(); err != nil {
		return wasm.BlockType{}, err
	}
	idx, _, err := leb128.DecodeInt33AsInt64(d.r)
	if err != nil {
		return wasm.BlockType{}, err
	}
	if idx < 0 {
		return wasm.BlockType{}, wasm.NewStaticError("malformed block type")
	}
	return wasm.BlockType{Kind: wasm.BlockKindFuncType, TypeIndex: wasm.FuncIndex(uint32(idx))}, nil
}

// decodeIfArms scans for `else` (0x05) or `end` (0x0B) to delimit if's two
// arms, per spec.md §4.1 "if scans for 0x05...".
func (d *decoder) decodeIfArms() ([]wasm.Instr, []wasm.Instr, error) {
	var then []wasm.Instr
	for {
		op, err := d.r.ReadByte()
		if err != nil {
			return nil, nil, wasm.NewStaticError("unexpected end of section or function")
		}
		if op == byte(wasm.OpEnd) {
			return then, nil, nil
		}
		if op == byte(wasm.OpElse) {
			elseArm, err := d.decodeInstrsUntil(wasm.OpEnd)
			if err != nil {
				return nil, nil, err
			}
			return then, elseArm, nil
		}
		instr, err := d.decodeOneInstr(wasm.Opcode(op))
		if err != nil {
			return nil, nil, err
		}
		then = append(then, instr)
	}
}

// decodeMiscInstr decodes a two-byte 0xFC instruction, folding the LEB128
// sub-opcode into the synthetic Opcode range.
func (d *decoder) decodeMiscInstr() (wasm.Instr, error) {
	sub, _, err := leb128.DecodeUint32(d.r)
	if err != nil {
		return wasm.Instr{}, err
	}
	op := wasm.Opcode(0xFC00 + sub)
	instr := wasm.Instr{Op: op}
	switch op {
	case wasm.OpMemoryInit:
		di, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		if _, err := d.r.ReadByte(); err != nil { // memidx, always 0 in Wasm 1.0 + bulk-memory
			return instr, err
		}
		instr.Idx = wasm.FuncIndex(di)
	case wasm.OpDataDrop:
		di, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		instr.Idx = wasm.FuncIndex(di)
	case wasm.OpMemoryCopy:
		if _, err := d.r.ReadByte(); err != nil {
			return instr, err
		}
		if _, err := d.r.ReadByte(); err != nil {
			return instr, err
		}
	case wasm.OpMemoryFill:
		if _, err := d.r.ReadByte(); err != nil {
			return instr, err
		}
	case wasm.OpTableInit:
		ei, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		ti, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		instr.Idx = wasm.FuncIndex(ei)
		instr.Idx2 = wasm.FuncIndex(ti)
	case wasm.OpElemDrop:
		ei, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		instr.Idx = wasm.FuncIndex(ei)
	case wasm.OpTableCopy:
		dst, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		src, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		instr.Idx = wasm.FuncIndex(dst)
		instr.Idx2 = wasm.FuncIndex(src)
	case wasm.OpTableGrow, wasm.OpTableSize, wasm.OpTableFill:
		ti, _, err := leb128.DecodeUint32(d.r)
		if err != nil {
			return instr, err
		}
		instr.Idx = wasm.FuncIndex(ti)
	case wasm.OpI32TruncSatF32S, wasm.OpI32TruncSatF32U, wasm.OpI32TruncSatF64S, wasm.OpI32TruncSatF64U,
		wasm.OpI64TruncSatF32S, wasm.OpI64TruncSatF32U, wasm.OpI64TruncSatF64S, wasm.OpI64TruncSatF64U:
		// No immediates.
	default:
		return instr, wasm.NewStaticError("illegal opcode 0xfc %d", sub)
	}
	return instr, nil
}
