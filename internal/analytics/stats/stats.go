// Package stats provides the small set of numeric routines shared by the
// detectors and predictors: summary statistics, IQR fencing, percentile
// interpolation, and closed-form least squares.
package stats

import (
	"math"
	"sort"
)

// Summary holds the statistics computed over a sample.
type Summary struct {
	Mean   float64
	StdDev float64
	Median float64
	Q1     float64
	Q3     float64
	IQR    float64
	Min    float64
	Max    float64
	Count  int
}

// Mean returns the arithmetic mean, or 0 for an empty sample.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(n))
}

// Percentile returns the p-th percentile (0-100) of sorted data using linear
// interpolation between closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100.0 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi || hi >= len(sorted) {
		return sorted[lo]
	}
	w := rank - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// Summarize computes full summary statistics over a sample.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := Percentile(sorted, 25)
	q3 := Percentile(sorted, 75)

	return Summary{
		Mean:   Mean(values),
		StdDev: StdDev(values),
		Median: Percentile(sorted, 50),
		Q1:     q1,
		Q3:     q3,
		IQR:    q3 - q1,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Count:  len(values),
	}
}

// FenceIQR drops values outside [Q1 - k*IQR, Q3 + k*IQR] and returns the
// surviving values. The conventional fence multiplier is 1.5. If fencing
// would drop everything, the original sample is returned unchanged.
func FenceIQR(values []float64, k float64) []float64 {
	if len(values) < 4 {
		return values
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q1 := Percentile(sorted, 25)
	q3 := Percentile(sorted, 75)
	iqr := q3 - q1
	lower := q1 - k*iqr
	upper := q3 + k*iqr

	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= lower && v <= upper {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return values
	}
	return kept
}

// LinearRegression returns (slope, intercept) for y over x = 0..n-1 via
// closed-form least squares.
func LinearRegression(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	if n < 2 {
		if n == 1 {
			return 0, values[0]
		}
		return 0, 0
	}
	sumX, sumY, sumXY, sumX2 := 0.0, 0.0, 0.0, 0.0
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if math.Abs(denom) < 1e-12 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SafeFloat returns 0 if v is NaN or Inf, otherwise v. Keeps every derived
// value JSON-serializable.
func SafeFloat(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
