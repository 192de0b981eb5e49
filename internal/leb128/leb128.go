// Package leb128 implements the variable-length integer encoding used
// throughout the Wasm binary format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#integers%E2%91%A4
package leb128

import (
	"fmt"
	"io"
)

// maxVarintLen bounds decoded group counts for a given bit width n:
// ceil(n/7) groups of 7 bits each.
func maxVarintLen(n int) int {
	return (n + 6) / 7
}

// DecodeUint32 reads an unsigned LEB128 of up to 32 bits from r.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	v, n, err := decodeUnsigned(r, 32)
	return uint32(v), n, err
}

// DecodeUint64 reads an unsigned LEB128 of up to 64 bits from r.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	return decodeUnsigned(r, 64)
}

// DecodeInt32 reads a signed LEB128 of up to 32 bits from r.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeSigned(r, 32)
	return int32(v), n, err
}

// DecodeInt64 reads a signed LEB128 of up to 64 bits from r.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 64)
}

// DecodeInt33AsInt64 decodes the 33-bit signed integer used for block-type
// type-index immediates, returned widened to int64.
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSigned(r, 33)
}

func decodeUnsigned(r io.ByteReader, n int) (uint64, uint64, error) {
	maxGroups := maxVarintLen(n)
	var result uint64
	var shift uint
	var read uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, read, fmt.Errorf("unexpected EOF decoding uint%d: %w", n, io.ErrUnexpectedEOF)
			}
			return 0, read, err
		}
		read++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if read > uint64(maxGroups) {
				return 0, read, fmt.Errorf("integer representation too long")
			}
			if n < 64 && result>>uint(n) != 0 {
				return 0, read, fmt.Errorf("integer too large")
			}
			return result, read, nil
		}
		shift += 7
		if read >= uint64(maxGroups) {
			return 0, read, fmt.Errorf("integer representation too long")
		}
	}
}

func decodeSigned(r io.ByteReader, n int) (int64, uint64, error) {
	maxGroups := maxVarintLen(n)
	var result int64
	var shift uint
	var read uint64
	var b byte
	for {
		var err error
		b, err = r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, read, fmt.Errorf("unexpected EOF decoding int%d: %w", n, io.ErrUnexpectedEOF)
			}
			return 0, read, err
		}
		read++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if read >= uint64(maxGroups) {
			return 0, read, fmt.Errorf("integer representation too long")
		}
	}
	if read > uint64(maxGroups) {
		return 0, read, fmt.Errorf("integer representation too long")
	}
	// Sign-extend from the final group's 0x40 bit.
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if n < 64 {
		min, max := int64(-1)<<(n-1), int64(1)<<(n-1)-1
		if result < min || result > max {
			return 0, read, fmt.Errorf("integer too large")
		}
	}
	return result, read, nil
}

// EncodeUint32 encodes v as unsigned LEB128.
func EncodeUint32(v uint32) []byte { return encodeUnsigned(uint64(v)) }

// EncodeUint64 encodes v as unsigned LEB128.
func EncodeUint64(v uint64) []byte { return encodeUnsigned(v) }

// EncodeInt32 encodes v as signed LEB128.
func EncodeInt32(v int32) []byte { return encodeSigned(int64(v)) }

// EncodeInt64 encodes v as signed LEB128.
func EncodeInt64(v int64) []byte { return encodeSigned(v) }

func encodeUnsigned(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			return out
		}
	}
}

func encodeSigned(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}
