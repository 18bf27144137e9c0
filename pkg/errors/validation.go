package errors

import "math"

// directionTolerance bounds how far a direction may drift from unit length.
const directionTolerance = 1e-8

// ValidateCellIndex checks that a local cell index lies in [0, n).
func ValidateCellIndex(index, n int) error {
	if index < 0 || index >= n {
		return New(ErrCodeCellOutOfRange, "cell index %d out of range [0,%d)", index, n)
	}
	return nil
}

// ValidateDirection checks that (x, y, z) is a finite unit vector.
//
// Sweep ordering classifies faces by the sign of omega·n, so a direction
// that is not normalized still orders correctly, but the edge weights used
// by cycle removal would be scaled. Rejecting it keeps weights comparable
// across directions.
func ValidateDirection(x, y, z float64) error {
	for _, v := range []float64{x, y, z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return New(ErrCodeInvalidConfig, "direction (%g,%g,%g) is not finite", x, y, z)
		}
	}
	norm := math.Sqrt(x*x + y*y + z*z)
	if math.Abs(norm-1) > directionTolerance {
		return New(ErrCodeInvalidConfig, "direction (%g,%g,%g) is not a unit vector (|omega|=%g)", x, y, z, norm)
	}
	return nil
}

// ValidateAngleIndices checks that an angle set names at least one angle
// and that no angle appears twice.
func ValidateAngleIndices(angles []int) error {
	if len(angles) == 0 {
		return New(ErrCodeEmptyAngleSet, "angle set has no angles")
	}
	seen := make(map[int]bool, len(angles))
	for _, a := range angles {
		if a < 0 {
			return New(ErrCodeInvalidConfig, "negative angle index %d", a)
		}
		if seen[a] {
			return New(ErrCodeInvalidConfig, "duplicate angle index %d", a)
		}
		seen[a] = true
	}
	return nil
}

// ValidatePositive checks that a named integer setting is strictly positive.
func ValidatePositive(name string, v int) error {
	if v <= 0 {
		return New(ErrCodeInvalidConfig, "%s must be positive, got %d", name, v)
	}
	return nil
}
