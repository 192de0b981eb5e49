package rewrite

import "github.com/wasmkit/owi/internal/wasm"

// FoldConstants runs a small constant-folding pass over every active
// data/element segment's offset expression (SPEC_FULL.md §5's
// `--optimize` flag; spec.md §6 reserves the flag without defining its
// effect). It is deliberately narrow: `i32.const a; i32.const b; i32.add`
// folds to the single instruction `i32.const (a+b)`, mirroring the
// overflow-wrapping `i32.add` semantics of spec.md §4.6 so folding never
// changes a module's observable behaviour. Run after Run so it only ever
// sees already-resolved const-expressions.
func FoldConstants(m *wasm.Module) *wasm.Module {
	for i := range m.Datas {
		if m.Datas[i].Mode == wasm.DataModeActive {
			m.Datas[i].Offset.Instrs = foldConstExpr(m.Datas[i].Offset.Instrs)
		}
	}
	for i := range m.Elems {
		if m.Elems[i].Mode == wasm.ElemModeActive {
			m.Elems[i].Offset.Instrs = foldConstExpr(m.Elems[i].Offset.Instrs)
		}
	}
	return m
}

// foldConstExpr repeatedly folds adjacent `i32.const, i32.const, i32.add`
// triples until no more apply. A const-expr body is tiny (almost always
// length 1 or 2 before the trailing implicit `end`), so a straightforward
// fixed-point scan over a slice is clearer than a single-pass rewrite.
func foldConstExpr(instrs []wasm.Instr) []wasm.Instr {
	for {
		folded, changed := foldOnce(instrs)
		if !changed {
			return folded
		}
		instrs = folded
	}
}

func foldOnce(instrs []wasm.Instr) ([]wasm.Instr, bool) {
	for i := 0; i+2 < len(instrs); i++ {
		a, b, op := instrs[i], instrs[i+1], instrs[i+2]
		if a.Op == wasm.OpI32Const && b.Op == wasm.OpI32Const && op.Op == wasm.OpI32Add {
			sum := wasm.Instr{Op: wasm.OpI32Const, I32: a.I32 + b.I32}
			out := make([]wasm.Instr, 0, len(instrs)-2)
			out = append(out, instrs[:i]...)
			out = append(out, sum)
			out = append(out, instrs[i+3:]...)
			return out, true
		}
	}
	return instrs, false
}
