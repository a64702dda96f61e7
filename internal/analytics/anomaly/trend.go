package anomaly

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/opspulse/opspulse/internal/analytics/stats"
	"github.com/opspulse/opspulse/pkg/types"
)

// TrendConfig tunes the trend/volatility detector.
type TrendConfig struct {
	WindowSize      int     // rolling window per (service, metric), default 50
	RecentPoints    int     // size of the "recent" split, default 10
	VolatilityRatio float64 // recent/historical std ratio that flags a spike, default 3.0
}

// DefaultTrendConfig returns the stock tuning.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		WindowSize:      50,
		RecentPoints:    10,
		VolatilityRatio: 3.0,
	}
}

// TrendDetector flags trend breaks and volatility spikes by comparing the
// regression slope and dispersion of the most recent points against the
// rest of the window.
type TrendDetector struct {
	mu      sync.Mutex
	cfg     TrendConfig
	windows map[string]*window
}

// NewTrendDetector creates a detector with the given tuning.
func NewTrendDetector(cfg TrendConfig) *TrendDetector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 50
	}
	if cfg.RecentPoints <= 0 {
		cfg.RecentPoints = 10
	}
	if cfg.VolatilityRatio <= 0 {
		cfg.VolatilityRatio = 3.0
	}
	return &TrendDetector{
		cfg:     cfg,
		windows: make(map[string]*window),
	}
}

// Observe ingests a point and checks the window for a significant trend
// break or a volatility spike. Needs at least 2x the recent split to have a
// meaningful historical segment.
func (d *TrendDetector) Observe(p types.MetricPoint) *types.Anomaly {
	key := p.Service + ":" + p.Metric

	d.mu.Lock()
	w, ok := d.windows[key]
	if !ok {
		w = newWindow(d.cfg.WindowSize)
		d.windows[key] = w
	}
	w.push(p.Timestamp, p.Value)
	values := w.snapshot()
	d.mu.Unlock()

	if len(values) < d.cfg.RecentPoints*2 {
		return nil
	}

	recent := values[len(values)-d.cfg.RecentPoints:]
	historical := values[:len(values)-d.cfg.RecentPoints]

	recentSlope, _ := stats.LinearRegression(recent)
	histSlope, _ := stats.LinearRegression(historical)
	allStd := stats.StdDev(values)
	recentStd := stats.StdDev(recent)
	histStd := stats.StdDev(historical)

	trendChange := math.Abs(recentSlope - histSlope)
	trendBreak := allStd > 0 && trendChange > 2*allStd

	volRatio := 0.0
	if histStd > 0 {
		volRatio = recentStd / histStd
	}
	volatilitySpike := volRatio > d.cfg.VolatilityRatio

	if !trendBreak && !volatilitySpike {
		return nil
	}

	score := 0.0
	if allStd > 0 {
		score = trendChange / allStd
	}
	score = math.Max(score, volRatio/3.0)

	severity := types.SeverityWarning
	if score > 2.0 {
		severity = types.SeverityCritical
	}

	kind := "trend break"
	if volatilitySpike && !trendBreak {
		kind = "volatility spike"
	}

	return &types.Anomaly{
		ID:            uuid.New(),
		Timestamp:     p.Timestamp,
		Service:       p.Service,
		Metric:        p.Metric,
		Type:          types.ClassifyMetric(p.Metric),
		Severity:      severity,
		Method:        types.MethodTrend,
		Score:         score,
		ExpectedValue: histSlope,
		ActualValue:   recentSlope,
		Context: map[string]float64{
			"recent_slope":     recentSlope,
			"historical_slope": histSlope,
			"trend_change":     trendChange,
			"volatility_ratio": volRatio,
			"window_std":       allStd,
		},
		Description: fmt.Sprintf("%s detected on %s/%s: recent slope %.3f vs historical %.3f, volatility ratio %.2f",
			kind, p.Service, p.Metric, recentSlope, histSlope, volRatio),
		SuggestedActions: []string{
			"check whether a deploy or traffic shift coincides with the inflection",
			"compare against the same window on adjacent services",
		},
	}
}
