package math

import stdmath "math"

// Float32ToHalf converts to IEEE 754 binary16, rounding to nearest even. Values out of range become infinity.
func Float32ToHalf(f float32) uint16 {
	bits := stdmath.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23) & 0xff
	mant := bits & 0x7fffff

	switch {
	case exp == 0xff:
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp-127 > 15:
		return sign | 0x7c00
	case exp-127 < -24:
		return sign
	case exp-127 < -14:
		// subnormal
		mant |= 0x800000
		shift := uint32(-(exp - 127) - 14 + 13)
		half := mant >> shift
		rem := mant & ((1 << shift) - 1)
		mid := uint32(1) << (shift - 1)
		if rem > mid || (rem == mid && half&1 == 1) {
			half++
		}
		return sign | uint16(half)
	}

	half := uint32(exp-127+15)<<10 | mant>>13
	rem := mant & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && half&1 == 1) {
		half++
	}
	return sign | uint16(half)
}

func HalfToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)

	switch exp {
	case 0:
		if mant == 0 {
			return stdmath.Float32frombits(sign)
		}
		f := float32(mant) / 1024 / 16384
		if sign != 0 {
			return -f
		}
		return f
	case 0x1f:
		return stdmath.Float32frombits(sign | 0x7f800000 | mant<<13)
	}
	return stdmath.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
}
