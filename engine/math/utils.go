package math

import (
	stdmath "math"

	"golang.org/x/exp/constraints"
)

const (
	PI                 float32 = 3.14159265358979323846
	DEG2RAD_MULTIPLIER float32 = PI / 180.0
	RAD2DEG_MULTIPLIER float32 = 180.0 / PI
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

func DegToRad(degrees float32) float32 {
	return degrees * DEG2RAD_MULTIPLIER
}

func RadToDeg(radians float32) float32 {
	return radians * RAD2DEG_MULTIPLIER
}

// CeilDiv returns ceil(a/b) for positive integers.
func CeilDiv[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}

// SRGBToLinear converts a single sRGB encoded channel to linear space.
func SRGBToLinear(c float32) float32 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return float32(stdmath.Pow(float64((c+0.055)/1.055), 2.4))
}
