package domain

import (
	"fmt"
	"math"
)

// CosineDistance returns 1 - cos(a, b).
// A zero vector is treated as orthogonal to everything.
// The vectors must have equal length.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// CheckDimension returns ErrDimensionMismatch if vec does not have want entries.
func CheckDimension(vec []float32, want int) error {
	if len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
