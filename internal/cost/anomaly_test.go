package cost

import (
	"testing"
	"time"

	"github.com/opspulse/opspulse/pkg/types"
)

func costPoint(service string, category types.CostCategory, amount float64, ts time.Time) types.CostDataPoint {
	return types.CostDataPoint{Timestamp: ts, Service: service, Category: category, Amount: amount}
}

// seedBaseline feeds a tight alternating series: mean 10, population std 0.1.
func seedBaseline(t *testing.T, d *Detector, service string, category types.CostCategory, n int) time.Time {
	t.Helper()
	ts := time.Now().Add(-time.Duration(n) * time.Hour)
	for i := 0; i < n; i++ {
		amount := 9.9
		if i%2 == 1 {
			amount = 10.1
		}
		if a := d.Observe(costPoint(service, category, amount, ts)); a != nil {
			t.Fatalf("baseline point %d flagged: %+v", i, a)
		}
		ts = ts.Add(time.Hour)
	}
	return ts
}

func TestCostDetectorColdStart(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil)
	ts := time.Now()

	for i := 0; i < 29; i++ {
		if a := d.Observe(costPoint("checkout", types.CostCategoryCompute, 10, ts)); a != nil {
			t.Fatalf("point %d flagged before min points: %+v", i, a)
		}
		ts = ts.Add(time.Hour)
	}
	if a := d.Observe(costPoint("checkout", types.CostCategoryCompute, 1000, ts)); a != nil {
		t.Errorf("spike flagged with only 29 prior points: %+v", a)
	}
}

func TestCostSpikeDetected(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil)
	ts := seedBaseline(t, d, "checkout", types.CostCategoryCompute, 40)

	a := d.Observe(costPoint("checkout", types.CostCategoryCompute, 20, ts))
	if a == nil {
		t.Fatal("cost spike not flagged")
	}
	if a.Direction != "spike" {
		t.Errorf("direction = %s, want spike", a.Direction)
	}
	if a.ExpectedCost < 9.9 || a.ExpectedCost > 10.1 {
		t.Errorf("expected cost = %.2f, want ~10", a.ExpectedCost)
	}
	if a.ActualCost != 20 {
		t.Errorf("actual cost = %.2f, want 20", a.ActualCost)
	}
	// z-score of 100 sits far past every severity multiple.
	if a.Severity != types.CostSeveritySevere {
		t.Errorf("severity = %s, want severe", a.Severity)
	}
}

func TestCostDropDetected(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil)
	ts := seedBaseline(t, d, "checkout", types.CostCategoryCompute, 40)

	a := d.Observe(costPoint("checkout", types.CostCategoryCompute, 1, ts))
	if a == nil {
		t.Fatal("cost drop not flagged")
	}
	if a.Direction != "drop" {
		t.Errorf("direction = %s, want drop", a.Direction)
	}
	if len(a.SuggestedActions) == 0 {
		t.Error("drop anomaly has no suggested actions")
	}
}

func TestCostBaselineResistsOutlier(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil)
	ts := seedBaseline(t, d, "checkout", types.CostCategoryCompute, 40)

	if a := d.Observe(costPoint("checkout", types.CostCategoryCompute, 100, ts)); a == nil {
		t.Fatal("first spike not flagged")
	}
	ts = ts.Add(time.Hour)

	// The fence drops the first spike before the baseline is recomputed.
	a := d.Observe(costPoint("checkout", types.CostCategoryCompute, 100, ts))
	if a == nil {
		t.Fatal("second spike not flagged; baseline was contaminated")
	}
	if a.ExpectedCost < 9.5 || a.ExpectedCost > 10.5 {
		t.Errorf("baseline mean = %.2f, want ~10", a.ExpectedCost)
	}
}

func TestCostPairsAreIndependent(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil)
	ts := seedBaseline(t, d, "checkout", types.CostCategoryCompute, 40)

	// Same service, different category: no baseline yet, so no anomaly.
	if a := d.Observe(costPoint("checkout", types.CostCategoryStorage, 500, ts)); a != nil {
		t.Errorf("cold category flagged: %+v", a)
	}
}

func TestCostRecentWindow(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil)
	seedBaseline(t, d, "checkout", types.CostCategoryCompute, 40)

	// A spike stamped two hours ago.
	old := time.Now().Add(-2 * time.Hour)
	if a := d.Observe(costPoint("checkout", types.CostCategoryCompute, 50, old)); a == nil {
		t.Fatal("spike not flagged")
	}

	if got := d.Recent(1); len(got) != 0 {
		t.Errorf("1h window returned %d anomalies, want 0", len(got))
	}
	if got := d.Recent(3); len(got) != 1 {
		t.Errorf("3h window returned %d anomalies, want 1", len(got))
	}
}

func TestCostSeverityGrades(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil) // sensitivity 2.0

	tests := []struct {
		score float64
		want  types.CostSeverity
	}{
		{2.5, types.CostSeverityLow},
		{3.5, types.CostSeverityMedium},
		{4.5, types.CostSeverityHigh},
		{5.5, types.CostSeveritySevere},
	}
	for _, tc := range tests {
		if got := d.severityFor(tc.score); got != tc.want {
			t.Errorf("severityFor(%.1f) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestCostBaselineAccessor(t *testing.T) {
	d := NewDetector(DefaultDetectorConfig(), nil)

	if _, ok := d.Baseline("checkout", types.CostCategoryCompute); ok {
		t.Error("baseline reported before any data")
	}

	ts := seedBaseline(t, d, "checkout", types.CostCategoryCompute, 40)
	d.Observe(costPoint("checkout", types.CostCategoryCompute, 10, ts))

	bl, ok := d.Baseline("checkout", types.CostCategoryCompute)
	if !ok {
		t.Fatal("baseline missing after min points")
	}
	if bl.Mean < 9.9 || bl.Mean > 10.1 {
		t.Errorf("baseline mean = %.2f, want ~10", bl.Mean)
	}
	if bl.SampleCount == 0 {
		t.Error("baseline sample count is zero")
	}
}
