package stats

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMeanAndStdDev(t *testing.T) {
	if got := Mean(nil); got != 0 {
		t.Errorf("mean of empty = %v, want 0", got)
	}
	if got := Mean([]float64{2, 4, 6}); !almostEqual(got, 4) {
		t.Errorf("mean = %v, want 4", got)
	}
	if got := StdDev([]float64{5, 5, 5}); got != 0 {
		t.Errorf("stddev of constant = %v, want 0", got)
	}
	// Population stddev of {2, 4, 4, 4, 5, 5, 7, 9} is exactly 2.
	if got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}); !almostEqual(got, 2) {
		t.Errorf("stddev = %v, want 2", got)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}

	if got := Percentile(nil, 50); got != 0 {
		t.Errorf("percentile of empty = %v, want 0", got)
	}
	if got := Percentile([]float64{42}, 90); got != 42 {
		t.Errorf("percentile of singleton = %v, want 42", got)
	}
	if got := Percentile(sorted, 0); got != 10 {
		t.Errorf("p0 = %v, want 10", got)
	}
	if got := Percentile(sorted, 100); got != 40 {
		t.Errorf("p100 = %v, want 40", got)
	}
	// rank = 0.5 * 3 = 1.5, halfway between 20 and 30.
	if got := Percentile(sorted, 50); !almostEqual(got, 25) {
		t.Errorf("p50 = %v, want 25", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4, 5})
	if s.Count != 5 {
		t.Errorf("count = %d, want 5", s.Count)
	}
	if !almostEqual(s.Mean, 3) || !almostEqual(s.Median, 3) {
		t.Errorf("mean/median = %v/%v, want 3/3", s.Mean, s.Median)
	}
	if s.Min != 1 || s.Max != 5 {
		t.Errorf("min/max = %v/%v, want 1/5", s.Min, s.Max)
	}
	if !almostEqual(s.IQR, s.Q3-s.Q1) {
		t.Errorf("iqr = %v, want q3-q1 = %v", s.IQR, s.Q3-s.Q1)
	}

	if empty := Summarize(nil); empty.Count != 0 {
		t.Errorf("empty summary count = %d, want 0", empty.Count)
	}
}

func TestFenceIQRDropsOutliers(t *testing.T) {
	values := []float64{50, 51, 49, 50, 51, 49, 50, 51, 49, 50, 500}
	kept := FenceIQR(values, 1.5)
	for _, v := range kept {
		if v == 500 {
			t.Fatal("outlier survived the fence")
		}
	}
	if len(kept) != len(values)-1 {
		t.Errorf("kept = %d, want %d", len(kept), len(values)-1)
	}
}

func TestFenceIQRSmallAndDegenerateSamples(t *testing.T) {
	small := []float64{1, 100, 10000}
	if got := FenceIQR(small, 1.5); len(got) != 3 {
		t.Errorf("samples under 4 must pass through, got %v", got)
	}
}

func TestLinearRegression(t *testing.T) {
	// y = 2x + 1 over x = 0..4.
	slope, intercept := LinearRegression([]float64{1, 3, 5, 7, 9})
	if !almostEqual(slope, 2) || !almostEqual(intercept, 1) {
		t.Errorf("fit = (%v, %v), want (2, 1)", slope, intercept)
	}

	slope, intercept = LinearRegression([]float64{7})
	if slope != 0 || intercept != 7 {
		t.Errorf("singleton fit = (%v, %v), want (0, 7)", slope, intercept)
	}

	slope, intercept = LinearRegression(nil)
	if slope != 0 || intercept != 0 {
		t.Errorf("empty fit = (%v, %v), want (0, 0)", slope, intercept)
	}

	slope, _ = LinearRegression([]float64{5, 5, 5, 5})
	if !almostEqual(slope, 0) {
		t.Errorf("flat slope = %v, want 0", slope)
	}
}

func TestClampAndSafeFloat(t *testing.T) {
	if got := Clamp(5, 0, 10); got != 5 {
		t.Errorf("clamp in range = %v", got)
	}
	if got := Clamp(-5, 0, 10); got != 0 {
		t.Errorf("clamp below = %v", got)
	}
	if got := Clamp(15, 0, 10); got != 10 {
		t.Errorf("clamp above = %v", got)
	}

	if got := SafeFloat(math.NaN()); got != 0 {
		t.Errorf("safe NaN = %v, want 0", got)
	}
	if got := SafeFloat(math.Inf(1)); got != 0 {
		t.Errorf("safe +Inf = %v, want 0", got)
	}
	if got := SafeFloat(3.14); got != 3.14 {
		t.Errorf("safe finite = %v, want 3.14", got)
	}
}
