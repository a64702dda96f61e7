package anomaly

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/opspulse/opspulse/pkg/types"
)

// StatisticalConfig tunes the univariate detector.
type StatisticalConfig struct {
	WindowSize   int     // rolling window per (service, metric), default 100
	MinPoints    int     // points required before the baseline activates, default 30
	ZThreshold   float64 // z-score normalizer, default 3.0
	IQRThreshold float64 // IQR-distance normalizer, default 2.0
	// CriticalMetrics escalates severity for operationally sensitive metric
	// names (substring match).
	CriticalMetrics []string
}

// DefaultStatisticalConfig returns the stock detector tuning.
func DefaultStatisticalConfig() StatisticalConfig {
	return StatisticalConfig{
		WindowSize:      100,
		MinPoints:       30,
		ZThreshold:      3.0,
		IQRThreshold:    2.0,
		CriticalMetrics: []string{"error_rate", "response_time", "latency", "cpu_usage", "memory_usage"},
	}
}

// StatisticalDetector maintains a bounded sliding window and an IQR-fenced
// baseline per (service, metric) key, and scores each new point against the
// baseline with a combined z-score / IQR-distance signal.
type StatisticalDetector struct {
	mu        sync.Mutex
	cfg       StatisticalConfig
	windows   map[string]*window
	baselines map[string]Baseline
}

// NewStatisticalDetector creates a detector with the given tuning.
func NewStatisticalDetector(cfg StatisticalConfig) *StatisticalDetector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = 30
	}
	if cfg.ZThreshold <= 0 {
		cfg.ZThreshold = 3.0
	}
	if cfg.IQRThreshold <= 0 {
		cfg.IQRThreshold = 2.0
	}
	return &StatisticalDetector{
		cfg:       cfg,
		windows:   make(map[string]*window),
		baselines: make(map[string]Baseline),
	}
}

// Baseline returns the current baseline for a key, if active.
func (d *StatisticalDetector) Baseline(service, metric string) (Baseline, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bl, ok := d.baselines[service+":"+metric]
	return bl, ok
}

// Observe ingests a point and returns an anomaly if the value deviates from
// the key's baseline. The baseline is recomputed against the window as it
// stood before this point, then the point is appended, so the detection of
// an extreme value is not diluted by the value itself.
func (d *StatisticalDetector) Observe(p types.MetricPoint) *types.Anomaly {
	key := p.Service + ":" + p.Metric

	d.mu.Lock()
	w, ok := d.windows[key]
	if !ok {
		w = newWindow(d.cfg.WindowSize)
		d.windows[key] = w
	}
	prior := w.snapshot()
	w.push(p.Timestamp, p.Value)

	var result *types.Anomaly
	if len(prior) >= d.cfg.MinPoints {
		bl := computeBaseline(prior, p.Timestamp)
		d.baselines[key] = bl
		result = d.score(p, bl)
	}
	d.mu.Unlock()

	return result
}

// score combines the z-score and IQR-distance signals. A point is anomalous
// iff max(z/zThreshold, iqrDist/iqrThreshold) exceeds 1.0.
func (d *StatisticalDetector) score(p types.MetricPoint, bl Baseline) *types.Anomaly {
	zScore := 0.0
	if bl.StdDev > 0 {
		zScore = math.Abs(p.Value-bl.Mean) / bl.StdDev
	}

	iqrDist := 0.0
	if bl.IQR > 0 {
		switch {
		case p.Value < bl.Q1:
			iqrDist = (bl.Q1 - p.Value) / bl.IQR
		case p.Value > bl.Q3:
			iqrDist = (p.Value - bl.Q3) / bl.IQR
		}
	}

	score := math.Max(zScore/d.cfg.ZThreshold, iqrDist/d.cfg.IQRThreshold)
	if score <= 1.0 {
		return nil
	}

	severity := d.severityFor(p.Metric, score)
	now := p.Timestamp

	return &types.Anomaly{
		ID:            uuid.New(),
		Timestamp:     now,
		Service:       p.Service,
		Metric:        p.Metric,
		Type:          types.ClassifyMetric(p.Metric),
		Severity:      severity,
		Method:        types.MethodStatistical,
		Score:         score,
		ExpectedValue: bl.Mean,
		ActualValue:   p.Value,
		Context: map[string]float64{
			"z_score":      zScore,
			"iqr_distance": iqrDist,
			"baseline_std": bl.StdDev,
			"baseline_q1":  bl.Q1,
			"baseline_q3":  bl.Q3,
			"sample_count": float64(bl.Count),
		},
		Description: fmt.Sprintf("%s on %s deviates from baseline: value %.2f vs mean %.2f (z=%.2f, iqr_dist=%.2f)",
			p.Metric, p.Service, p.Value, bl.Mean, zScore, iqrDist),
		SuggestedActions: suggestForMetric(p.Metric),
	}
}

// severityFor escalates by score magnitude and for critical metrics.
func (d *StatisticalDetector) severityFor(metric string, score float64) types.Severity {
	critical := d.isCriticalMetric(metric)
	switch {
	case score > 3.0:
		return types.SeverityEmergency
	case score > 2.0:
		if critical {
			return types.SeverityCritical
		}
		return types.SeverityWarning
	case score > 1.5:
		return types.SeverityWarning
	}
	return types.SeverityInfo
}

func (d *StatisticalDetector) isCriticalMetric(metric string) bool {
	m := strings.ToLower(metric)
	for _, c := range d.cfg.CriticalMetrics {
		if strings.Contains(m, c) {
			return true
		}
	}
	return false
}

func suggestForMetric(metric string) []string {
	switch types.ClassifyMetric(metric) {
	case types.AnomalyTypePerformance:
		return []string{"check recent deploys", "inspect downstream dependency latency"}
	case types.AnomalyTypeResource:
		return []string{"review resource limits", "check for runaway workloads"}
	case types.AnomalyTypeErrorRate:
		return []string{"inspect error logs", "verify upstream service health"}
	case types.AnomalyTypeCost:
		return []string{"review billing dashboard", "check for unexpected usage"}
	case types.AnomalyTypeSecurity:
		return []string{"review auth failures", "check access logs"}
	}
	return []string{"verify service health checks"}
}
