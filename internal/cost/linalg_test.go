package cost

import (
	"errors"
	"math"
	"testing"
)

func TestSolveLinearKnownSystem(t *testing.T) {
	// 2x + y = 5, x + 3y = 10 → x = 1, y = 3.
	a := [][]float64{{2, 1}, {1, 3}}
	b := []float64{5, 10}

	x, err := solveLinear(a, b)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if math.Abs(x[0]-1) > 1e-9 || math.Abs(x[1]-3) > 1e-9 {
		t.Errorf("solution = %v, want [1 3]", x)
	}
}

func TestSolveLinearRequiresPivoting(t *testing.T) {
	// Zero on the leading diagonal forces a row swap.
	a := [][]float64{
		{0, 2, 1},
		{1, 1, 1},
		{2, 0, 3},
	}
	// Solution x = [1, 2, 3]: b = [7, 6, 11].
	b := []float64{7, 6, 11}

	x, err := solveLinear(a, b)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	want := []float64{1, 2, 3}
	for i := range want {
		if math.Abs(x[i]-want[i]) > 1e-9 {
			t.Errorf("x[%d] = %v, want %v", i, x[i], want[i])
		}
	}
}

func TestSolveLinearSingular(t *testing.T) {
	a := [][]float64{{1, 2}, {2, 4}}
	b := []float64{3, 6}

	_, err := solveLinear(a, b)
	if !errors.Is(err, errSingular) {
		t.Fatalf("expected singular error, got %v", err)
	}
}

func TestSolveLinearDimensionMismatch(t *testing.T) {
	if _, err := solveLinear([][]float64{{1}}, []float64{1, 2}); err == nil {
		t.Error("expected error for mismatched dimensions")
	}
	if _, err := solveLinear(nil, nil); err == nil {
		t.Error("expected error for empty system")
	}
}
