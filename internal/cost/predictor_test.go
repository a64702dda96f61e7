package cost

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/opspulse/opspulse/pkg/types"
)

// seedHourly adds n hourly points for a pair, amounts produced by gen(i).
func seedHourly(p *Predictor, service string, category types.CostCategory, n int, gen func(i int) float64) {
	start := time.Now().Add(-time.Duration(n) * time.Hour).Truncate(time.Hour)
	for i := 0; i < n; i++ {
		p.AddPoint(types.CostDataPoint{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Service:   service,
			Category:  category,
			Amount:    gen(i),
		})
	}
}

func TestForecastInsufficientPairData(t *testing.T) {
	p := NewPredictor(DefaultPredictorConfig(), nil)
	seedHourly(p, "checkout", types.CostCategoryCompute, 5, func(i int) float64 { return 10 })

	_, err := p.Forecast("checkout", types.CostCategoryCompute, 24)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insufficient.Have != 5 || insufficient.Required != 10 {
		t.Errorf("error = %+v, want have=5 required=10", insufficient)
	}
}

func TestForecastInsufficientTotalData(t *testing.T) {
	p := NewPredictor(DefaultPredictorConfig(), nil)
	// Pair gate passes (12 >= 10) but the global gate (30) does not.
	seedHourly(p, "checkout", types.CostCategoryCompute, 12, func(i int) float64 { return 10 })

	_, err := p.Forecast("checkout", types.CostCategoryCompute, 24)
	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insufficient.Required != 30 {
		t.Errorf("required = %d, want global minimum 30", insufficient.Required)
	}
}

func TestForecastConstantSeries(t *testing.T) {
	p := NewPredictor(DefaultPredictorConfig(), nil)
	seedHourly(p, "checkout", types.CostCategoryCompute, 48, func(i int) float64 { return 10 })

	pred, err := p.Forecast("checkout", types.CostCategoryCompute, 24)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	// A flat series trains zero weights; every future hour predicts the mean.
	if math.Abs(pred.PredictedCost-240) > 1e-6 {
		t.Errorf("predicted = %.4f, want 240", pred.PredictedCost)
	}
	if pred.Trend != types.CostTrendStable {
		t.Errorf("trend = %s, want stable", pred.Trend)
	}
	if len(pred.HourlyForecast) != 24 {
		t.Errorf("hourly points = %d, want 24", len(pred.HourlyForecast))
	}
	// Zero dispersion collapses the confidence band onto the point forecast.
	if math.Abs(pred.ConfidenceLow-pred.PredictedCost) > 1e-6 ||
		math.Abs(pred.ConfidenceHigh-pred.PredictedCost) > 1e-6 {
		t.Errorf("band = [%.4f, %.4f], want degenerate at %.4f",
			pred.ConfidenceLow, pred.ConfidenceHigh, pred.PredictedCost)
	}
	if len(pred.ContributingFactors) == 0 {
		t.Error("expected contributing factors")
	}
}

func TestForecastNonNegative(t *testing.T) {
	p := NewPredictor(DefaultPredictorConfig(), nil)
	// Noisy but tiny amounts; predictions must clamp at zero, not go negative.
	seedHourly(p, "checkout", types.CostCategoryNetwork, 48, func(i int) float64 {
		return 0.01 * float64(i%3)
	})

	pred, err := p.Forecast("checkout", types.CostCategoryNetwork, 24)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	for h, v := range pred.HourlyForecast {
		if v < 0 {
			t.Fatalf("hour %d forecast is negative: %v", h, v)
		}
	}
	if pred.ConfidenceLow < 0 {
		t.Errorf("confidence low = %v, want >= 0", pred.ConfidenceLow)
	}
}

func TestForecastAllSkipsThinPairs(t *testing.T) {
	p := NewPredictor(DefaultPredictorConfig(), nil)
	seedHourly(p, "checkout", types.CostCategoryCompute, 40, func(i int) float64 { return 10 })
	seedHourly(p, "worker", types.CostCategoryStorage, 5, func(i int) float64 { return 2 })

	report := p.ForecastAll("", 24)
	if len(report.Predictions) != 1 {
		t.Fatalf("predictions = %d, want 1", len(report.Predictions))
	}
	if report.Predictions[0].Service != "checkout" {
		t.Errorf("predicted service = %s, want checkout", report.Predictions[0].Service)
	}
	if len(report.Skipped) != 1 || !strings.Contains(report.Skipped[0], "worker/storage") {
		t.Errorf("skipped = %v, want worker/storage entry", report.Skipped)
	}
	if math.Abs(report.TotalForecast-report.Predictions[0].PredictedCost) > 1e-9 {
		t.Errorf("total = %v, want sum of predictions", report.TotalForecast)
	}
}

func TestForecastAllServiceFilter(t *testing.T) {
	p := NewPredictor(DefaultPredictorConfig(), nil)
	seedHourly(p, "checkout", types.CostCategoryCompute, 40, func(i int) float64 { return 10 })
	seedHourly(p, "worker", types.CostCategoryCompute, 40, func(i int) float64 { return 5 })

	if got := p.ForecastAll("checkout", 24); len(got.Predictions) != 1 {
		t.Errorf("filtered predictions = %d, want 1", len(got.Predictions))
	}
	if got := p.ForecastAll("", 24); len(got.Predictions) != 2 {
		t.Errorf("unfiltered predictions = %d, want 2", len(got.Predictions))
	}
	if got := p.ForecastAll("all", 24); len(got.Predictions) != 2 {
		t.Errorf("'all' predictions = %d, want 2", len(got.Predictions))
	}
}

func TestTrendLabel(t *testing.T) {
	flat := []float64{10, 10, 10, 10, 10, 10, 10, 10}
	if got := trendLabel(flat); got != types.CostTrendStable {
		t.Errorf("flat trend = %s, want stable", got)
	}

	rising := []float64{10, 10, 12, 14, 16, 18, 20, 20}
	if got := trendLabel(rising); got != types.CostTrendIncreasing {
		t.Errorf("rising trend = %s, want increasing", got)
	}

	falling := []float64{20, 20, 16, 14, 12, 10, 8, 8}
	if got := trendLabel(falling); got != types.CostTrendDecreasing {
		t.Errorf("falling trend = %s, want decreasing", got)
	}

	if got := trendLabel([]float64{5}); got != types.CostTrendStable {
		t.Errorf("short trend = %s, want stable", got)
	}
}

func TestInsufficientDataErrorMessage(t *testing.T) {
	err := &InsufficientDataError{Scope: "checkout/compute", Required: 10, Have: 3}
	msg := err.Error()
	if !strings.Contains(msg, "checkout/compute") || !strings.Contains(msg, "10") || !strings.Contains(msg, "3") {
		t.Errorf("unhelpful error message: %s", msg)
	}
}
