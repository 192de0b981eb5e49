package script

// NaN shape checks for assert_return_canonical_nan / assert_return_arithmetic_nan
// (SPEC_FULL.md §5), operating on the IEEE-754 bit patterns exactly as the
// reference test suite defines them: an arithmetic NaN is any NaN with its
// top mantissa bit (the quiet bit) set, payload otherwise unconstrained; a
// canonical NaN is an arithmetic NaN with every other payload bit zero.

const (
	f32ExpMask  = 0x7f800000
	f32QuietBit = 0x00400000
	f32MantMask = 0x007fffff

	f64ExpMask  = 0x7ff0000000000000
	f64QuietBit = 0x0008000000000000
	f64MantMask = 0x000fffffffffffff
)

func isNan32(bits uint32) bool {
	return bits&f32ExpMask == f32ExpMask && bits&f32MantMask != 0
}

func isArithmeticNan32(bits uint32) bool {
	return isNan32(bits) && bits&f32QuietBit != 0
}

func isCanonicalNan32(bits uint32) bool {
	return bits&0x7fffffff == f32ExpMask|f32QuietBit
}

func isNan64(bits uint64) bool {
	return bits&f64ExpMask == f64ExpMask && bits&f64MantMask != 0
}

func isArithmeticNan64(bits uint64) bool {
	return isNan64(bits) && bits&f64QuietBit != 0
}

func isCanonicalNan64(bits uint64) bool {
	return bits&0x7fffffffffffffff == f64ExpMask|f64QuietBit
}
