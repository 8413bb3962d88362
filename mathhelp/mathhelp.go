package mathhelp

import (
	"math"

	"golang.org/x/exp/constraints"
)

// CeilDiv divides n by d rounding up. d must be positive.
func CeilDiv[T constraints.Integer](n, d T) T {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

// CeilDivFloat is CeilDiv for extents expressed in float units. It returns 0 when d is not positive.
func CeilDivFloat(n, d float64) uint {
	if n <= 0 || d <= 0 {
		return 0
	}
	return uint(math.Ceil(n / d))
}

func Pow2(n uint) uint {
	return 1 << n
}
