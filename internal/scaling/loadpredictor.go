// Package scaling implements the predictive autoscaling half of the
// pipeline: a per-service load predictor, a profile-based resource
// optimizer, and the safety-clamped scaling orchestrator.
package scaling

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opspulse/opspulse/internal/analytics/stats"
	"github.com/opspulse/opspulse/pkg/types"
)

// InsufficientDataError reports that a forecast had too few samples. A
// normal degraded-mode result: the orchestrator holds steady this cycle.
type InsufficientDataError struct {
	Service  string
	Required int
	Have     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient load history for %s: need %d points, have %d", e.Service, e.Required, e.Have)
}

// LoadPredictorConfig tunes the load predictor.
type LoadPredictorConfig struct {
	HistorySize   int     // samples per service, default 144 (~24h at 10m)
	MinPoints     int     // samples before forecasting activates, default 10
	TrendPoints   int     // samples used for the short-term slope, default 10
	SeasonalAlpha float64 // EMA smoothing for the seasonal table, default 0.3
	HighLoadRPS   float64 // load above which error-rate forecasts scale up, default 100
}

// DefaultLoadPredictorConfig returns the stock tuning.
func DefaultLoadPredictorConfig() LoadPredictorConfig {
	return LoadPredictorConfig{
		HistorySize:   144,
		MinPoints:     10,
		TrendPoints:   10,
		SeasonalAlpha: 0.3,
		HighLoadRPS:   100,
	}
}

// seasonalTable is an exponential-moving-average of observed load keyed by
// hour-of-day and day-of-week.
type seasonalTable struct {
	cells [24][7]float64
	seen  [24][7]bool
	mean  float64
	n     int
}

func (t *seasonalTable) update(ts time.Time, load float64, alpha float64) {
	h, d := ts.Hour(), int(ts.Weekday())
	if !t.seen[h][d] {
		t.cells[h][d] = load
		t.seen[h][d] = true
	} else {
		t.cells[h][d] = alpha*load + (1-alpha)*t.cells[h][d]
	}
	t.n++
	t.mean += (load - t.mean) / float64(t.n)
}

// factor returns the normalized seasonal adjustment for a future time,
// clamped so a sparse table cannot swing a forecast more than 2x either way.
func (t *seasonalTable) factor(ts time.Time) float64 {
	h, d := ts.Hour(), int(ts.Weekday())
	if !t.seen[h][d] || t.mean <= 0 {
		return 1.0
	}
	return stats.Clamp(t.cells[h][d]/t.mean, 0.5, 2.0)
}

// serviceHistory is the per-service rolling utilization history.
type serviceHistory struct {
	samples  []types.ResourceMetrics
	seasonal seasonalTable
}

// LoadPredictor forecasts near-future request load per service from a
// rolling utilization history plus an hour/day-of-week seasonal table.
type LoadPredictor struct {
	mu       sync.Mutex
	cfg      LoadPredictorConfig
	log      *zap.Logger
	services map[string]*serviceHistory
}

// NewLoadPredictor creates a load predictor.
func NewLoadPredictor(cfg LoadPredictorConfig, log *zap.Logger) *LoadPredictor {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 144
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = 10
	}
	if cfg.TrendPoints <= 0 {
		cfg.TrendPoints = 10
	}
	if cfg.SeasonalAlpha <= 0 || cfg.SeasonalAlpha > 1 {
		cfg.SeasonalAlpha = 0.3
	}
	if cfg.HighLoadRPS <= 0 {
		cfg.HighLoadRPS = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LoadPredictor{
		cfg:      cfg,
		log:      log,
		services: make(map[string]*serviceHistory),
	}
}

// Record appends a utilization snapshot to the service's history and
// updates the seasonal table.
func (lp *LoadPredictor) Record(m types.ResourceMetrics) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	h, ok := lp.services[m.Service]
	if !ok {
		h = &serviceHistory{}
		lp.services[m.Service] = h
	}
	if len(h.samples) >= lp.cfg.HistorySize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, m)
	h.seasonal.update(m.Timestamp, m.RequestRate, lp.cfg.SeasonalAlpha)
}

// Forecast predicts load, response time, and error rate for horizonMinutes
// ahead. The trend component extrapolates the short-term slope; the
// seasonal component adjusts for hour-of-day/day-of-week; predicted load is
// never negative.
func (lp *LoadPredictor) Forecast(service string, horizonMinutes int) (types.PredictiveMetrics, error) {
	if horizonMinutes <= 0 {
		horizonMinutes = 10
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	h, ok := lp.services[service]
	if !ok || len(h.samples) < lp.cfg.MinPoints {
		have := 0
		if ok {
			have = len(h.samples)
		}
		return types.PredictiveMetrics{}, &InsufficientDataError{Service: service, Required: lp.cfg.MinPoints, Have: have}
	}

	loads := make([]float64, len(h.samples))
	for i, s := range h.samples {
		loads[i] = s.RequestRate
	}

	// Trend: last value plus the slope over the last TrendPoints samples,
	// projected in 10-minute steps.
	trendWindow := loads
	if len(trendWindow) > lp.cfg.TrendPoints {
		trendWindow = trendWindow[len(trendWindow)-lp.cfg.TrendPoints:]
	}
	slope, _ := stats.LinearRegression(trendWindow)
	last := loads[len(loads)-1]
	trend := last + slope*(float64(horizonMinutes)/10.0)

	target := h.samples[len(h.samples)-1].Timestamp.Add(time.Duration(horizonMinutes) * time.Minute)
	seasonal := h.seasonal.factor(target)

	predicted := math.Max(0, trend*seasonal)

	// Response-time forecast from a simple load→latency coefficient fit on
	// recent history.
	coeff := latencyCoefficient(h.samples)
	predictedRT := coeff * predicted

	// Error-rate forecast: recent baseline, scaled up once predicted load
	// crosses the high-load threshold.
	recentErr := recentErrorRate(h.samples)
	predictedErr := recentErr
	if predicted > lp.cfg.HighLoadRPS {
		predictedErr = math.Min(100, recentErr*(predicted/lp.cfg.HighLoadRPS))
	}

	margin := 1.96 * stats.StdDev(trendWindow)

	return types.PredictiveMetrics{
		Service:               service,
		PredictedLoad:         stats.SafeFloat(predicted),
		PredictedResponseTime: stats.SafeFloat(predictedRT),
		PredictedErrorRate:    stats.SafeFloat(predictedErr),
		ConfidenceLow:         math.Max(0, stats.SafeFloat(predicted-margin)),
		ConfidenceHigh:        stats.SafeFloat(predicted + margin),
		TimeHorizonMinutes:    horizonMinutes,
		DataPoints:            len(h.samples),
	}, nil
}

// HistoryLen reports how many samples a service has accumulated.
func (lp *LoadPredictor) HistoryLen(service string) int {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if h, ok := lp.services[service]; ok {
		return len(h.samples)
	}
	return 0
}

// latencyCoefficient fits response_time ≈ c·load through the origin over
// recent samples. Falls back to the mean observed latency per unit load.
func latencyCoefficient(samples []types.ResourceMetrics) float64 {
	recent := samples
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}
	num, den := 0.0, 0.0
	for _, s := range recent {
		num += s.RequestRate * s.ResponseTime
		den += s.RequestRate * s.RequestRate
	}
	if den < 1e-9 {
		return 0
	}
	return num / den
}

func recentErrorRate(samples []types.ResourceMetrics) float64 {
	recent := samples
	if len(recent) > 20 {
		recent = recent[len(recent)-20:]
	}
	vals := make([]float64, len(recent))
	for i, s := range recent {
		vals[i] = s.ErrorRate
	}
	return stats.Mean(vals)
}
