// Package api includes constants and interfaces shared between the owi
// core and its embedders.
package api

import (
	"fmt"
	"math"
)

// ValueType is a Wasm 1.0 numeric or reference type, encoded as its
// binary-format byte.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-valtype
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c

	// ValueTypeFuncref is a nullable reference to a function.
	ValueTypeFuncref ValueType = 0x70
	// ValueTypeExternref is a nullable, opaque host reference.
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the text-format name of t, or "unknown".
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// ExternType classifies an import or export.
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the text-format field name of et.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return fmt.Sprintf("%#x", et)
}

// EncodeI32 encodes v as the uint64 lane used on the operand stack.
func EncodeI32(v int32) uint64 { return uint64(uint32(v)) }

// EncodeI64 encodes v as the uint64 lane used on the operand stack.
func EncodeI64(v int64) uint64 { return uint64(v) }

// EncodeF32 encodes v as the uint64 lane used on the operand stack.
func EncodeF32(v float32) uint64 { return uint64(math.Float32bits(v)) }

// EncodeF64 encodes v as the uint64 lane used on the operand stack.
func EncodeF64(v float64) uint64 { return math.Float64bits(v) }

// DecodeI32 decodes the low 32 bits of an operand-stack lane.
func DecodeI32(v uint64) int32 { return int32(uint32(v)) }

// DecodeI64 decodes an operand-stack lane as an i64.
func DecodeI64(v uint64) int64 { return int64(v) }

// DecodeF32 decodes an operand-stack lane as an f32.
func DecodeF32(v uint64) float32 { return math.Float32frombits(uint32(v)) }

// DecodeF64 decodes an operand-stack lane as an f64.
func DecodeF64(v uint64) float64 { return math.Float64frombits(v) }

// Function is a single exported, callable function of an instantiated
// module.
type Function interface {
	// Name is the export name this function was looked up by.
	Name() string
	// ParamTypes are the accepted argument lanes, in order.
	ParamTypes() []ValueType
	// ResultTypes are the produced result lanes, in order.
	ResultTypes() []ValueType
}

// Memory is restricted, bounds-checked access to one linear memory.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#storage%E2%91%A0
type Memory interface {
	// Size returns the current size in bytes.
	Size() uint32
	// Grow increases memory by deltaPages (64KiB each). Returns the previous
	// size in pages, or false if the delta was refused.
	Grow(deltaPages uint32) (previousPages uint32, ok bool)
	// Read returns a write-through view of byteCount bytes at offset, or
	// false if the range is out of bounds.
	Read(offset, byteCount uint32) ([]byte, bool)
	// Write copies v into the buffer at offset, or returns false if out of
	// bounds.
	Write(offset uint32, v []byte) bool
}

// Global is one mutable or immutable global, exported from an instantiated
// module.
type Global interface {
	// Type is the numeric type of the global's value.
	Type() ValueType
	// Get returns the last-known value, encoded per Type.
	Get() uint64
}

// MutableGlobal is a Global whose value may be updated at runtime.
type MutableGlobal interface {
	Global
	// Set updates the value, encoded per Type.
	Set(v uint64)
}
