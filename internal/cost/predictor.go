// Package cost implements the cost intelligence half of the pipeline: a
// ridge-regularized hourly cost predictor and an IQR-baseline cost anomaly
// detector, both keyed by (service, category).
package cost

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opspulse/opspulse/internal/analytics/stats"
	"github.com/opspulse/opspulse/pkg/types"
)

// InsufficientDataError reports that a training or prediction call did not
// have enough samples. It is a normal degraded-mode result, not a failure:
// callers skip the forecast for this cycle.
type InsufficientDataError struct {
	Scope    string
	Required int
	Have     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need %d points, have %d", e.Scope, e.Required, e.Have)
}

type pairKey struct {
	service  string
	category types.CostCategory
}

func (k pairKey) String() string { return k.service + "/" + string(k.category) }

// baseFeatures are the engineered features shared by every pair model, in
// column order. Usage-metric columns are appended after these.
var baseFeatures = []string{
	"hour_of_day",
	"day_of_week",
	"day_of_month",
	"cost_lag_1",
	"cost_lag_7",
	"cost_ma_7",
}

// ridgeModel is one trained regression per (service, category) pair.
// Features are standardized; the solution is w = (XᵗX + αI)⁻¹ Xᵗy on the
// centered target.
type ridgeModel struct {
	featureNames []string
	weights      []float64
	featMeans    []float64
	featStds     []float64
	targetMean   float64
	targetStd    float64
	trainedOn    int
}

// PredictorConfig tunes the cost predictor.
type PredictorConfig struct {
	Alpha      float64 // ridge regularization, default 0.1
	MinPerPair int     // points required per pair, default 10
	MinTotal   int     // points required across all pairs, default 30
	MaxPerPair int     // retained history per pair, default 2000
}

// DefaultPredictorConfig returns the stock tuning.
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{Alpha: 0.1, MinPerPair: 10, MinTotal: 30, MaxPerPair: 2000}
}

// Predictor trains one ridge model per (service, category) pair and produces
// hourly horizon forecasts. Training is deferred off the ingestion path:
// models are (re)built lazily at forecast time and cached until new points
// arrive for the pair.
type Predictor struct {
	mu     sync.Mutex
	cfg    PredictorConfig
	log    *zap.Logger
	series map[pairKey][]types.CostDataPoint
	models map[pairKey]*ridgeModel
	dirty  map[pairKey]bool
	total  int
}

// NewPredictor creates a predictor.
func NewPredictor(cfg PredictorConfig, log *zap.Logger) *Predictor {
	if cfg.Alpha <= 0 {
		cfg.Alpha = 0.1
	}
	if cfg.MinPerPair <= 0 {
		cfg.MinPerPair = 10
	}
	if cfg.MinTotal <= 0 {
		cfg.MinTotal = 30
	}
	if cfg.MaxPerPair <= 0 {
		cfg.MaxPerPair = 2000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Predictor{
		cfg:    cfg,
		log:    log,
		series: make(map[pairKey][]types.CostDataPoint),
		models: make(map[pairKey]*ridgeModel),
		dirty:  make(map[pairKey]bool),
	}
}

// AddPoint appends a cost observation to its pair series and marks the
// pair's model stale.
func (p *Predictor) AddPoint(point types.CostDataPoint) {
	key := pairKey{point.Service, point.Category}

	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.series[key]
	if len(s) >= p.cfg.MaxPerPair {
		s = s[1:]
	} else {
		p.total++
	}
	p.series[key] = append(s, point)
	p.dirty[key] = true
}

// Forecast predicts total cost for one pair over the next hoursAhead hours.
func (p *Predictor) Forecast(service string, category types.CostCategory, hoursAhead int) (types.CostPrediction, error) {
	if hoursAhead <= 0 {
		hoursAhead = 24
	}
	key := pairKey{service, category}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.forecastLocked(key, hoursAhead)
}

// ForecastAll predicts every known pair, optionally restricted to one
// service ("" or "all" means everything). Pairs without enough data are
// listed in Skipped rather than failing the report.
func (p *Predictor) ForecastAll(service string, hoursAhead int) types.ForecastReport {
	if hoursAhead <= 0 {
		hoursAhead = 24
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make([]pairKey, 0, len(p.series))
	for k := range p.series {
		if service != "" && service != "all" && k.service != service {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	report := types.ForecastReport{
		GeneratedAt: time.Now(),
		HoursAhead:  hoursAhead,
	}
	for _, k := range keys {
		pred, err := p.forecastLocked(k, hoursAhead)
		if err != nil {
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: %v", k, err))
			continue
		}
		report.Predictions = append(report.Predictions, pred)
		report.TotalForecast += pred.PredictedCost
	}
	return report
}

func (p *Predictor) forecastLocked(key pairKey, hoursAhead int) (types.CostPrediction, error) {
	points := p.series[key]
	if len(points) < p.cfg.MinPerPair {
		return types.CostPrediction{}, &InsufficientDataError{Scope: key.String(), Required: p.cfg.MinPerPair, Have: len(points)}
	}
	if p.total < p.cfg.MinTotal {
		return types.CostPrediction{}, &InsufficientDataError{Scope: "all cost series", Required: p.cfg.MinTotal, Have: p.total}
	}

	model := p.models[key]
	if model == nil || p.dirty[key] {
		m, err := trainRidge(points, p.cfg.Alpha)
		if err != nil {
			return types.CostPrediction{}, fmt.Errorf("train %s: %w", key, err)
		}
		p.models[key] = m
		p.dirty[key] = false
		model = m
		p.log.Debug("cost model trained",
			zap.String("pair", key.String()),
			zap.Int("samples", m.trainedOn),
			zap.Int("features", len(m.featureNames)))
	}

	start := points[len(points)-1].Timestamp
	hourly := make([]float64, hoursAhead)
	total := 0.0
	for h := 0; h < hoursAhead; h++ {
		t := start.Add(time.Duration(h+1) * time.Hour)
		v := math.Max(0, model.predictFuture(t))
		hourly[h] = v
		total += v
	}

	trend := trendLabel(hourly)
	// 95%-style band from the training target's dispersion, widened with the
	// horizon; floored at zero because cost cannot be negative.
	margin := 1.96 * model.targetStd * math.Sqrt(float64(hoursAhead))

	return types.CostPrediction{
		Service:             key.service,
		Category:            key.category,
		HoursAhead:          hoursAhead,
		PredictedCost:       stats.SafeFloat(total),
		ConfidenceLow:       math.Max(0, stats.SafeFloat(total-margin)),
		ConfidenceHigh:      stats.SafeFloat(total + margin),
		Trend:               trend,
		HourlyForecast:      hourly,
		ContributingFactors: model.topFactors(3),
		Recommendation:      recommendFor(key.category, trend),
	}, nil
}

// trainRidge builds the standardized design matrix from engineered features
// and solves the regularized normal equations.
//
// Rows start at index 7 so the 7-lag and 7-point moving average are always
// available. Future-hour predictions only carry the calendar features; lag
// and usage columns sit at their training means, which contributes zero
// after standardization. That keeps multi-hour horizons honest about lag
// features being unavailable for pure future points.
func trainRidge(points []types.CostDataPoint, alpha float64) (*ridgeModel, error) {
	usageKeys := collectUsageKeys(points)
	featureNames := append(append([]string{}, baseFeatures...), usageKeys...)
	dims := len(featureNames)

	rows := len(points) - 7
	if rows < 3 {
		return nil, &InsufficientDataError{Scope: "ridge training rows", Required: 10, Have: len(points)}
	}

	x := make([][]float64, rows)
	y := make([]float64, rows)
	for i := 0; i < rows; i++ {
		idx := i + 7
		pt := points[idx]

		ma := 0.0
		for j := idx - 7; j < idx; j++ {
			ma += points[j].Amount
		}
		ma /= 7

		row := make([]float64, dims)
		row[0] = float64(pt.Timestamp.Hour())
		row[1] = float64(pt.Timestamp.Weekday())
		row[2] = float64(pt.Timestamp.Day())
		row[3] = points[idx-1].Amount
		row[4] = points[idx-7].Amount
		row[5] = ma
		for u, k := range usageKeys {
			row[len(baseFeatures)+u] = pt.UsageMetrics[k]
		}
		x[i] = row
		y[i] = pt.Amount
	}

	// Standardize columns and center the target.
	featMeans := make([]float64, dims)
	featStds := make([]float64, dims)
	col := make([]float64, rows)
	for j := 0; j < dims; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		featMeans[j] = stats.Mean(col)
		featStds[j] = stats.StdDev(col)
		if featStds[j] < 1e-12 {
			featStds[j] = 1 // constant column contributes nothing
		}
		for i := range x {
			x[i][j] = (x[i][j] - featMeans[j]) / featStds[j]
		}
	}
	targetMean := stats.Mean(y)
	targetStd := stats.StdDev(y)
	centered := make([]float64, rows)
	for i, v := range y {
		centered[i] = v - targetMean
	}

	// Normal equations: (XᵗX + αI) w = Xᵗy.
	a := make([][]float64, dims)
	for j := 0; j < dims; j++ {
		a[j] = make([]float64, dims)
		for k := 0; k < dims; k++ {
			sum := 0.0
			for i := 0; i < rows; i++ {
				sum += x[i][j] * x[i][k]
			}
			a[j][k] = sum
		}
		a[j][j] += alpha
	}
	b := make([]float64, dims)
	for j := 0; j < dims; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += x[i][j] * centered[i]
		}
		b[j] = sum
	}

	weights, err := solveLinear(a, b)
	if err != nil {
		return nil, fmt.Errorf("solve normal equations: %w", err)
	}

	return &ridgeModel{
		featureNames: featureNames,
		weights:      weights,
		featMeans:    featMeans,
		featStds:     featStds,
		targetMean:   targetMean,
		targetStd:    targetStd,
		trainedOn:    rows,
	}, nil
}

// predictFuture evaluates the model for a future hour using calendar
// features only; all other columns stay at their training means.
func (m *ridgeModel) predictFuture(t time.Time) float64 {
	pred := m.targetMean
	calendar := []float64{float64(t.Hour()), float64(t.Weekday()), float64(t.Day())}
	for j := 0; j < len(calendar) && j < len(m.weights); j++ {
		pred += m.weights[j] * (calendar[j] - m.featMeans[j]) / m.featStds[j]
	}
	return pred
}

// topFactors names the n features with the largest absolute weights.
func (m *ridgeModel) topFactors(n int) []string {
	type wf struct {
		name   string
		weight float64
	}
	ranked := make([]wf, len(m.featureNames))
	for i, name := range m.featureNames {
		ranked[i] = wf{name, math.Abs(m.weights[i])}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].weight > ranked[j].weight })
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].name
	}
	return out
}

func collectUsageKeys(points []types.CostDataPoint) []string {
	seen := make(map[string]struct{})
	for _, pt := range points {
		for k := range pt.UsageMetrics {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// trendLabel compares the first-quarter average of the horizon against the
// last-quarter average: >+10% increasing, <-10% decreasing, else stable.
func trendLabel(hourly []float64) types.CostTrend {
	if len(hourly) < 2 {
		return types.CostTrendStable
	}
	q := len(hourly) / 4
	if q < 1 {
		q = 1
	}
	first := stats.Mean(hourly[:q])
	last := stats.Mean(hourly[len(hourly)-q:])
	if first <= 0 {
		return types.CostTrendStable
	}
	change := (last - first) / first
	switch {
	case change > 0.10:
		return types.CostTrendIncreasing
	case change < -0.10:
		return types.CostTrendDecreasing
	}
	return types.CostTrendStable
}

// recommendFor returns a human-readable optimization hint keyed off the
// category and forecast trend.
func recommendFor(category types.CostCategory, trend types.CostTrend) string {
	if trend != types.CostTrendIncreasing {
		return "spend is stable; no action required"
	}
	switch category {
	case types.CostCategoryAIProcessing:
		return "AI processing spend trending up: review provider usage, batch requests, and cache completions"
	case types.CostCategoryCompute:
		return "compute spend trending up: review autoscaling policy and instance right-sizing"
	case types.CostCategoryStorage:
		return "storage spend trending up: review retention and lifecycle policies"
	case types.CostCategoryNetwork:
		return "network spend trending up: review egress paths and CDN coverage"
	case types.CostCategoryExternalAPIs:
		return "external API spend trending up: review quotas and response caching"
	}
	return "spend trending up: review the category's largest contributors"
}
