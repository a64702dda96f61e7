package cost

import (
	"errors"
	"math"
)

var errSingular = errors.New("singular system")

// solveLinear solves A·x = b by Gaussian elimination with partial pivoting.
// A is modified in place; callers pass a scratch copy. Sized for the small
// normal-equation systems the ridge predictor builds (d ≤ ~20).
func solveLinear(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	if n == 0 || len(b) != n {
		return nil, errors.New("dimension mismatch")
	}

	for col := 0; col < n; col++ {
		// Partial pivot: largest magnitude in this column at or below the
		// diagonal.
		pivot := col
		maxVal := math.Abs(a[col][col])
		for row := col + 1; row < n; row++ {
			if v := math.Abs(a[row][col]); v > maxVal {
				maxVal = v
				pivot = row
			}
		}
		if maxVal < 1e-12 {
			return nil, errSingular
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			b[col], b[pivot] = b[pivot], b[col]
		}

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			if factor == 0 {
				continue
			}
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	// Back substitution.
	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}
