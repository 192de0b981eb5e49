package binary

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/wasmkit/owi/api"
	"github.com/wasmkit/owi/internal/leb128"
	"github.com/wasmkit/owi/internal/wasm"
)

// EncodeModule serialises m back to the canonical binary format. It is the
// left inverse of DecodeModule used by the round-trip property in
// spec.md §8: encode(decode(m)) == m, up to custom-section interleaving
// (custom sections are emitted after the other sections of each kind
// rather than at their original positions, since Module does not retain
// interleaving order) and up to element-segment encoding (see
// encodeElementSection).
func EncodeModule(m *wasm.Module) []byte {
	var out bytes.Buffer
	out.Write(magic[:])
	out.Write(version[:])

	writeSection(&out, sectionType, func(b *bytes.Buffer) { encodeTypeSection(b, m.Types) })
	writeSection(&out, sectionImport, func(b *bytes.Buffer) { encodeImportSection(b, m.Imports) })
	writeSection(&out, sectionFunction, func(b *bytes.Buffer) { encodeFunctionSection(b, m.FuncTypeIndices[len(m.FuncTypeIndices)-len(m.Code):]) })
	writeSection(&out, sectionTable, func(b *bytes.Buffer) { encodeTableSection(b, m.Tables) })
	writeSection(&out, sectionMemory, func(b *bytes.Buffer) { encodeMemorySection(b, m.Memories) })
	writeSection(&out, sectionGlobal, func(b *bytes.Buffer) { encodeGlobalSection(b, m.Globals) })
	writeSection(&out, sectionExport, func(b *bytes.Buffer) { encodeExportSection(b, m.Exports) })
	if m.StartFunc != nil {
		writeSection(&out, sectionStart, func(b *bytes.Buffer) { b.Write(leb128.EncodeUint32(m.StartFunc.Num)) })
	}
	writeSection(&out, sectionElement, func(b *bytes.Buffer) { encodeElementSection(b, m.Elems) })
	if m.DataCount != nil {
		writeSection(&out, sectionDataCount, func(b *bytes.Buffer) { b.Write(leb128.EncodeUint32(*m.DataCount)) })
	}
	writeSection(&out, sectionCode, func(b *bytes.Buffer) { encodeCodeSection(b, m.Code) })
	writeSection(&out, sectionData, func(b *bytes.Buffer) { encodeDataSection(b, m.Datas) })

	for _, c := range m.Custom {
		writeSection(&out, sectionCustom, func(b *bytes.Buffer) {
			writeName(b, c.Name)
			b.Write(c.Data)
		})
	}

	return out.Bytes()
}

func writeSection(out *bytes.Buffer, id sectionID, body func(*bytes.Buffer)) {
	var b bytes.Buffer
	body(&b)
	if b.Len() == 0 && id != sectionCustom {
		return
	}
	out.WriteByte(byte(id))
	out.Write(leb128.EncodeUint32(uint32(b.Len())))
	out.Write(b.Bytes())
}

func writeName(b *bytes.Buffer, s string) {
	b.Write(leb128.EncodeUint32(uint32(len(s))))
	b.WriteString(s)
}

func writeLimits(b *bytes.Buffer, l wasm.Limits) {
	if l.Max != nil {
		b.WriteByte(1)
		b.Write(leb128.EncodeUint32(l.Min))
		b.Write(leb128.EncodeUint32(*l.Max))
	} else {
		b.WriteByte(0)
		b.Write(leb128.EncodeUint32(l.Min))
	}
}

func encodeTypeSection(b *bytes.Buffer, types []wasm.FunctionType) {
	if len(types) == 0 {
		return
	}
	b.Write(leb128.EncodeUint32(uint32(len(types))))
	for _, t := range types {
		b.WriteByte(0x60)
		b.Write(leb128.EncodeUint32(uint32(len(t.Params))))
		b.Write(t.Params)
		b.Write(leb128.EncodeUint32(uint32(len(t.Results))))
		b.Write(t.Results)
	}
}

func encodeImportSection(b *bytes.Buffer, imports []wasm.Import) {
	if len(imports) == 0 {
		return
	}
	b.Write(leb128.EncodeUint32(uint32(len(imports))))
	for _, imp := range imports {
		writeName(b, imp.Module)
		writeName(b, imp.Name)
		b.WriteByte(imp.Kind)
		switch imp.Kind {
		case api.ExternTypeFunc:
			b.Write(leb128.EncodeUint32(imp.FuncTypeIndex.Num))
		case api.ExternTypeTable:
			b.WriteByte(imp.Table.RefType)
			writeLimits(b, imp.Table.Limits)
		case api.ExternTypeMemory:
			writeLimits(b, imp.Memory.Limits)
		case api.ExternTypeGlobal:
			b.WriteByte(imp.Global.ValType)
			if imp.Global.Mutable {
				b.WriteByte(1)
			} else {
				b.WriteByte(0)
			}
		}
	}
}

func encodeFunctionSection(b *bytes.Buffer, typeIdx []wasm.Index) {
	if len(typeIdx) == 0 {
		return
	}
	b.Write(leb128.EncodeUint32(uint32(len(typeIdx))))
	for _, idx := range typeIdx {
		b.Write(leb128.EncodeUint32(idx.Num))
	}
}

func encodeTableSection(b *bytes.Buffer, tables []wasm.TableType) {
	if len(tables) == 0 {
		return
	}
	b.Write(leb128.EncodeUint32(uint32(len(tables))))
	for _, t := range tables {
		b.WriteByte(t.RefType)
		writeLimits(b, t.Limits)
	}
}

func encodeMemorySection(b *bytes.Buffer, mems []wasm.MemoryType) {
	if len(mems) == 0 {
		return
	}
	b.Write(leb128.EncodeUint32(uint32(len(mems))))
	for _, mem := range mems {
		writeLimits(b, mem.Limits)
	}
}

func encodeGlobalSection(b *bytes.Buffer, globals []wasm.Global) {
	if len(globals) == 0 {
		return
	}
	b.Write(leb128.EncodeUint32(uint32(len(globals))))
	for _, g := range globals {
		b.WriteByte(g.Type.ValType)
		if g.Type.Mutable {
			b.WriteByte(1)
		} else {
			b.WriteByte(0)
		}
		encodeConstExpr(b, g.Init)
	}
}

func encodeExportSection(b *bytes.Buffer, exports []wasm.Export) {
	if len(exports) == 0 {
		return
	}
	b.Write(leb128.EncodeUint32(uint32(len(exports))))
	for _, e := range exports {
		writeName(b, e.Name)
		b.WriteByte(e.Desc.Kind)
		b.Write(leb128.EncodeUint32(e.Desc.Index.Num))
	}
}

// encodeElementSection emits every segment in the expression-initialised
// form (flags 4-7: 4 for an active segment on table 0, 6 for another
// table, 5 for passive, 7 for declarative), whichever flag it was decoded
// from; segments decoded from flags 0-3 are re-emitted that way too.
func encodeElementSection(b *bytes.Buffer, elems []wasm.ElementSegment) {
	if len(elems) == 0 {
		return
	}
	b.Write(leb128.EncodeUint32(uint32(len(elems))))
	for _, seg := range elems {
		switch seg.Mode {
		case wasm.ElemModeActive:
			if seg.Table.Num == 0 {
				b.Write(leb128.EncodeUint32(4))
				encodeConstExpr(b, seg.Offset)
			} else {
				b.Write(leb128.EncodeUint32(6))
				b.Write(leb128.EncodeUint32(seg.Table.Num))
				encodeConstExpr(b, seg.Offset)
				b.WriteByte(seg.RefType)
			}
		case wasm.ElemModePassive:
			b.Write(leb128.EncodeUint32(5))
			b.WriteByte(seg.RefType)
		case wasm.ElemModeDeclarative:
			b.Write(leb128.EncodeUint32(7))
			b.WriteByte(seg.RefType)
		}
		b.Write(leb128.EncodeUint32(uint32(len(seg.Init))))
		for _, ce := range seg.Init {
			encodeConstExpr(b, ce)
		}
	}
}

func encodeDataSection(b *bytes.Buffer, datas []wasm.DataSegment) {
	if len(datas) == 0 {
		return
	}
	b.Write(leb128.EncodeUint32(uint32(len(datas))))
	for _, seg := range datas {
		switch seg.Mode {
		case wasm.DataModeActive:
			if seg.Memory.Num == 0 {
				b.Write(leb128.EncodeUint32(0))
				encodeConstExpr(b, seg.Offset)
			} else {
				b.Write(leb128.EncodeUint32(2))
				b.Write(leb128.EncodeUint32(seg.Memory.Num))
				encodeConstExpr(b, seg.Offset)
			}
		case wasm.DataModePassive:
			b.Write(leb128.EncodeUint32(1))
		}
		b.Write(leb128.EncodeUint32(uint32(len(seg.Init))))
		b.Write(seg.Init)
	}
}

func encodeCodeSection(b *bytes.Buffer, code []wasm.Code) {
	if len(code) == 0 {
		return
	}
	b.Write(leb128.EncodeUint32(uint32(len(code))))
	for _, c := range code {
		var body bytes.Buffer
		body.Write(leb128.EncodeUint32(uint32(len(c.Locals))))
		for _, l := range c.Locals {
			body.Write(leb128.EncodeUint32(l.Count))
			body.WriteByte(l.Type)
		}
		encodeInstrs(&body, c.Body)
		body.WriteByte(byte(wasm.OpEnd))
		b.Write(leb128.EncodeUint32(uint32(body.Len())))
		b.Write(body.Bytes())
	}
}

func encodeConstExpr(b *bytes.Buffer, ce wasm.ConstExpr) {
	encodeInstrs(b, ce.Instrs)
	b.WriteByte(byte(wasm.OpEnd))
}

func encodeInstrs(b *bytes.Buffer, instrs []wasm.Instr) {
	for _, instr := range instrs {
		encodeInstr(b, instr)
	}
}

func encodeInstr(b *bytes.Buffer, instr wasm.Instr) {
	if instr.Op >= 0xFC00 {
		b.WriteByte(0xFC)
		b.Write(leb128.EncodeUint32(uint32(instr.Op - 0xFC00)))
		encodeMiscImm(b, instr)
		return
	}
	b.WriteByte(byte(instr.Op))
	switch instr.Op {
	case wasm.OpBlock, wasm.OpLoop:
		encodeBlockType(b, instr.BlockType)
		encodeInstrs(b, instr.Then)
		b.WriteByte(byte(wasm.OpEnd))
	case wasm.OpIf:
		encodeBlockType(b, instr.BlockType)
		encodeInstrs(b, instr.Then)
		if len(instr.Else) > 0 {
			b.WriteByte(byte(wasm.OpElse))
			encodeInstrs(b, instr.Else)
		}
		b.WriteByte(byte(wasm.OpEnd))
	case wasm.OpBr, wasm.OpBrIf:
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
	case wasm.OpBrTable:
		b.Write(leb128.EncodeUint32(uint32(len(instr.Targets))))
		for _, t := range instr.Targets {
			b.Write(leb128.EncodeUint32(t.Num))
		}
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
	case wasm.OpCall:
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
	case wasm.OpCallIndirect:
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
		b.Write(leb128.EncodeUint32(instr.Idx2.Num))
	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee,
		wasm.OpGlobalGet, wasm.OpGlobalSet, wasm.OpTableGet, wasm.OpTableSet:
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
	case wasm.OpSelectT:
		if instr.BlockType.Kind == wasm.BlockKindValueType {
			b.Write(leb128.EncodeUint32(1))
			b.WriteByte(instr.BlockType.ValueType)
		} else {
			b.Write(leb128.EncodeUint32(0))
		}
	case wasm.OpI32Load, wasm.OpI64Load, wasm.OpF32Load, wasm.OpF64Load,
		wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U,
		wasm.OpI64Load8S, wasm.OpI64Load8U, wasm.OpI64Load16S, wasm.OpI64Load16U,
		wasm.OpI64Load32S, wasm.OpI64Load32U,
		wasm.OpI32Store, wasm.OpI64Store, wasm.OpF32Store, wasm.OpF64Store,
		wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32:
		b.Write(leb128.EncodeUint32(instr.Memarg.Align))
		b.Write(leb128.EncodeUint32(instr.Memarg.Offset))
	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		b.WriteByte(0)
	case wasm.OpI32Const:
		b.Write(leb128.EncodeInt32(instr.I32))
	case wasm.OpI64Const:
		b.Write(leb128.EncodeInt64(instr.I64))
	case wasm.OpF32Const:
		var raw [4]byte
		binary.LittleEndian.PutUint32(raw[:], math.Float32bits(instr.F32))
		b.Write(raw[:])
	case wasm.OpF64Const:
		var raw [8]byte
		binary.LittleEndian.PutUint64(raw[:], math.Float64bits(instr.F64))
		b.Write(raw[:])
	case wasm.OpRefNull:
		b.WriteByte(instr.RefType)
	case wasm.OpRefFunc:
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
	}
}

func encodeMiscImm(b *bytes.Buffer, instr wasm.Instr) {
	switch instr.Op {
	case wasm.OpMemoryInit:
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
		b.WriteByte(0)
	case wasm.OpDataDrop:
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
	case wasm.OpMemoryCopy:
		b.WriteByte(0)
		b.WriteByte(0)
	case wasm.OpMemoryFill:
		b.WriteByte(0)
	case wasm.OpTableInit:
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
		b.Write(leb128.EncodeUint32(instr.Idx2.Num))
	case wasm.OpElemDrop:
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
	case wasm.OpTableCopy:
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
		b.Write(leb128.EncodeUint32(instr.Idx2.Num))
	case wasm.OpTableGrow, wasm.OpTableSize, wasm.OpTableFill:
		b.Write(leb128.EncodeUint32(instr.Idx.Num))
	}
}

func encodeBlockType(b *bytes.Buffer, bt wasm.BlockType) {
	switch bt.Kind {
	case wasm.BlockKindEmpty:
		b.WriteByte(0x40)
	case wasm.BlockKindValueType:
		b.WriteByte(bt.ValueType)
	case wasm.BlockKindFuncType:
		b.Write(leb128.EncodeInt64(int64(bt.TypeIndex.Num)))
	}
}
