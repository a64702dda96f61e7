package cost

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opspulse/opspulse/internal/analytics/stats"
	"github.com/opspulse/opspulse/pkg/types"
)

// DetectorConfig tunes the cost anomaly detector.
type DetectorConfig struct {
	WindowSize  int     // rolling window per (service, category), default 100
	MinPoints   int     // points before the baseline activates, default 30
	Sensitivity float64 // base detection threshold on the combined score, default 2.0
	MaxStored   int     // retained anomaly records, default 500
}

// DefaultDetectorConfig returns the stock tuning.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{WindowSize: 100, MinPoints: 30, Sensitivity: 2.0, MaxStored: 500}
}

// Detector maintains an IQR-fenced baseline per (service, category) over
// cost amounts and flags spikes and drops against it. The scoring mirrors
// the statistical metric detector but is scoped to cost.
type Detector struct {
	mu        sync.Mutex
	cfg       DetectorConfig
	log       *zap.Logger
	windows   map[pairKey][]float64
	baselines map[pairKey]types.CostBaseline
	anomalies []types.CostAnomaly
}

// NewDetector creates a cost anomaly detector.
func NewDetector(cfg DetectorConfig, log *zap.Logger) *Detector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = 30
	}
	if cfg.Sensitivity <= 0 {
		cfg.Sensitivity = 2.0
	}
	if cfg.MaxStored <= 0 {
		cfg.MaxStored = 500
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{
		cfg:       cfg,
		log:       log,
		windows:   make(map[pairKey][]float64),
		baselines: make(map[pairKey]types.CostBaseline),
	}
}

// Observe ingests a cost point and returns a CostAnomaly when the amount
// deviates from the pair's baseline. As with the metric detector, the
// baseline is computed over the window before this point joins it.
func (d *Detector) Observe(p types.CostDataPoint) *types.CostAnomaly {
	key := pairKey{p.Service, p.Category}

	d.mu.Lock()
	defer d.mu.Unlock()

	prior := d.windows[key]

	var result *types.CostAnomaly
	if len(prior) >= d.cfg.MinPoints {
		bl := costBaseline(prior)
		d.baselines[key] = bl
		result = d.score(p, bl)
		if result != nil {
			d.anomalies = append(d.anomalies, *result)
			if len(d.anomalies) > d.cfg.MaxStored {
				d.anomalies = d.anomalies[len(d.anomalies)-d.cfg.MaxStored:]
			}
			d.log.Info("cost anomaly detected",
				zap.String("service", p.Service),
				zap.String("category", string(p.Category)),
				zap.String("severity", string(result.Severity)),
				zap.Float64("expected", result.ExpectedCost),
				zap.Float64("actual", result.ActualCost))
		}
	}

	w := append(prior, p.Amount)
	if len(w) > d.cfg.WindowSize {
		w = w[len(w)-d.cfg.WindowSize:]
	}
	d.windows[key] = w

	return result
}

// Baseline returns the active baseline for a pair, if any.
func (d *Detector) Baseline(service string, category types.CostCategory) (types.CostBaseline, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bl, ok := d.baselines[pairKey{service, category}]
	return bl, ok
}

// Recent lists stored anomalies from the last hoursBack hours, newest last.
func (d *Detector) Recent(hoursBack int) []types.CostAnomaly {
	if hoursBack <= 0 {
		hoursBack = 24
	}
	cutoff := time.Now().Add(-time.Duration(hoursBack) * time.Hour)

	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]types.CostAnomaly, 0)
	for _, a := range d.anomalies {
		if !a.Timestamp.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

func (d *Detector) score(p types.CostDataPoint, bl types.CostBaseline) *types.CostAnomaly {
	zScore := 0.0
	if bl.StdDev > 0 {
		zScore = math.Abs(p.Amount-bl.Mean) / bl.StdDev
	}
	iqrDist := 0.0
	if bl.IQR > 0 {
		switch {
		case p.Amount < bl.Q1:
			iqrDist = (bl.Q1 - p.Amount) / bl.IQR
		case p.Amount > bl.Q3:
			iqrDist = (p.Amount - bl.Q3) / bl.IQR
		}
	}
	score := math.Max(zScore, iqrDist)
	if score <= d.cfg.Sensitivity {
		return nil
	}

	direction := "spike"
	if p.Amount < bl.Mean {
		direction = "drop"
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &types.CostAnomaly{
		ID:           uuid.New(),
		Timestamp:    ts,
		Service:      p.Service,
		Category:     p.Category,
		Severity:     d.severityFor(score),
		Score:        score,
		ExpectedCost: bl.Mean,
		ActualCost:   p.Amount,
		Direction:    direction,
		Description: fmt.Sprintf("cost %s for %s/%s: $%.2f vs expected $%.2f (score %.1f)",
			direction, p.Service, p.Category, p.Amount, bl.Mean, score),
		SuggestedActions: suggestForCategory(p.Category, direction),
	}
}

// severityFor grades the combined score against multiples of the configured
// sensitivity.
func (d *Detector) severityFor(score float64) types.CostSeverity {
	s := d.cfg.Sensitivity
	switch {
	case score > s*2.5:
		return types.CostSeveritySevere
	case score > s*2.0:
		return types.CostSeverityHigh
	case score > s*1.5:
		return types.CostSeverityMedium
	}
	return types.CostSeverityLow
}

func costBaseline(values []float64) types.CostBaseline {
	fenced := stats.FenceIQR(values, 1.5)
	s := stats.Summarize(fenced)
	return types.CostBaseline{
		Mean:        s.Mean,
		StdDev:      s.StdDev,
		Median:      s.Median,
		Q1:          s.Q1,
		Q3:          s.Q3,
		IQR:         s.IQR,
		SampleCount: s.Count,
		UpdatedAt:   time.Now(),
	}
}

func suggestForCategory(category types.CostCategory, direction string) []string {
	if direction == "drop" {
		return []string{
			"verify the service is still reporting usage",
			"check whether a workload was disabled unintentionally",
		}
	}
	switch category {
	case types.CostCategoryAIProcessing:
		return []string{"check AI provider usage and batching", "review prompt/completion sizes"}
	case types.CostCategoryCompute:
		return []string{"check autoscaling policy for runaway scale-up", "review instance sizing"}
	case types.CostCategoryStorage:
		return []string{"check for unbounded data growth", "review retention policies"}
	case types.CostCategoryNetwork:
		return []string{"check for unexpected egress", "review CDN hit rates"}
	case types.CostCategoryExternalAPIs:
		return []string{"check third-party API call volume", "review rate limits and caching"}
	}
	return []string{"review recent usage for this category"}
}
