package anomaly

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opspulse/opspulse/internal/analytics/stats"
	"github.com/opspulse/opspulse/pkg/types"
)

// MultivariateConfig tunes the per-service pattern detector.
type MultivariateConfig struct {
	MaxSamples     int     // raw vectors retained per service, default 1000
	RetainSamples  int     // normalized reference vectors kept after retrain, default 500
	RetrainEvery   int     // retrain cadence in ingested vectors, default 100
	MinTrainPoints int     // vectors required before the model activates, default 50
	ScoreThreshold float64 // anomaly threshold on the distance ratio, default 2.0
}

// DefaultMultivariateConfig returns the stock tuning.
func DefaultMultivariateConfig() MultivariateConfig {
	return MultivariateConfig{
		MaxSamples:     1000,
		RetainSamples:  500,
		RetrainEvery:   100,
		MinTrainPoints: 50,
		ScoreThreshold: 2.0,
	}
}

// serviceModel is the per-service normalized feature space: mean/std vectors
// plus a retained sample of recent normalized vectors used as the reference
// set for distance scoring.
type serviceModel struct {
	featureNames []string    // stable, sorted; fixed at first observation
	raw          [][]float64 // aligned raw vectors, bounded by MaxSamples
	means        []float64
	stds         []float64
	reference    [][]float64 // normalized recent vectors
	ingested     int         // total vectors seen, drives retrain cadence
	trained      bool
}

// MultivariateDetector scores whole feature vectors per service against a
// reference set of recent normalized vectors.
//
// This is a distance-based approximation of isolation-style outlier scoring,
// not a trained forest: the score is P95(distances)/mean(distances) of the
// candidate's normalized distances to the reference set. The heuristic is the
// reference contract here; do not swap in a real isolation forest without
// revisiting the threshold semantics.
type MultivariateDetector struct {
	mu     sync.Mutex
	cfg    MultivariateConfig
	models map[string]*serviceModel
}

// NewMultivariateDetector creates a detector with the given tuning.
func NewMultivariateDetector(cfg MultivariateConfig) *MultivariateDetector {
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = 1000
	}
	if cfg.RetainSamples <= 0 {
		cfg.RetainSamples = 500
	}
	if cfg.RetrainEvery <= 0 {
		cfg.RetrainEvery = 100
	}
	if cfg.MinTrainPoints <= 0 {
		cfg.MinTrainPoints = 50
	}
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = 2.0
	}
	return &MultivariateDetector{
		cfg:    cfg,
		models: make(map[string]*serviceModel),
	}
}

// Observe ingests one feature vector for a service and returns an anomaly
// when the vector's distance profile against the reference set exceeds the
// threshold. Scoring happens before the vector joins the sample, so the
// candidate never scores against itself.
func (d *MultivariateDetector) Observe(service string, features map[string]float64, ts time.Time) *types.Anomaly {
	if len(features) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.models[service]
	if !ok {
		names := make([]string, 0, len(features))
		for name := range features {
			names = append(names, name)
		}
		sort.Strings(names)
		m = &serviceModel{featureNames: names}
		d.models[service] = m
	}

	vec := m.align(features)

	var result *types.Anomaly
	if m.trained {
		if score := m.score(vec); score > d.cfg.ScoreThreshold {
			result = d.buildAnomaly(service, features, score, ts)
		}
	}

	m.push(vec, d.cfg.MaxSamples)
	m.ingested++
	if m.ingested%d.cfg.RetrainEvery == 0 && len(m.raw) >= d.cfg.MinTrainPoints {
		m.retrain(d.cfg.RetainSamples)
	}

	return result
}

// align maps a named feature set onto the model's stable feature order.
// Unknown names are ignored; missing names read as zero.
func (m *serviceModel) align(features map[string]float64) []float64 {
	vec := make([]float64, len(m.featureNames))
	for i, name := range m.featureNames {
		vec[i] = features[name]
	}
	return vec
}

func (m *serviceModel) push(vec []float64, cap int) {
	if len(m.raw) >= cap {
		m.raw = m.raw[1:]
	}
	m.raw = append(m.raw, vec)
}

// retrain recomputes the per-feature mean/std over the raw sample and
// retains the most recent normalized vectors as the reference set.
func (m *serviceModel) retrain(retain int) {
	dims := len(m.featureNames)
	m.means = make([]float64, dims)
	m.stds = make([]float64, dims)

	col := make([]float64, len(m.raw))
	for j := 0; j < dims; j++ {
		for i, vec := range m.raw {
			col[i] = vec[j]
		}
		m.means[j] = stats.Mean(col)
		m.stds[j] = stats.StdDev(col)
	}

	start := 0
	if len(m.raw) > retain {
		start = len(m.raw) - retain
	}
	m.reference = make([][]float64, 0, len(m.raw)-start)
	for _, vec := range m.raw[start:] {
		m.reference = append(m.reference, m.normalize(vec))
	}
	m.trained = true
}

func (m *serviceModel) normalize(vec []float64) []float64 {
	out := make([]float64, len(vec))
	for j, v := range vec {
		if m.stds[j] > 0 {
			out[j] = (v - m.means[j]) / m.stds[j]
		} else {
			out[j] = v - m.means[j]
		}
	}
	return out
}

// score computes the candidate's normalized Euclidean distance to every
// reference vector and returns P95(distances)/mean(distances).
func (m *serviceModel) score(vec []float64) float64 {
	if len(m.reference) == 0 {
		return 0
	}
	norm := m.normalize(vec)

	distances := make([]float64, 0, len(m.reference))
	for _, ref := range m.reference {
		sum := 0.0
		for j := range norm {
			d := norm[j] - ref[j]
			sum += d * d
		}
		distances = append(distances, math.Sqrt(sum))
	}

	mean := stats.Mean(distances)
	if mean < 1e-12 {
		return 0
	}
	sort.Float64s(distances)
	p95 := stats.Percentile(distances, 95)
	return p95 / mean
}

func (d *MultivariateDetector) buildAnomaly(service string, features map[string]float64, score float64, ts time.Time) *types.Anomaly {
	severity := types.SeverityWarning
	if score > 3.0 {
		severity = types.SeverityCritical
	}

	ctx := make(map[string]float64, len(features)+1)
	for k, v := range features {
		ctx[k] = v
	}
	ctx["distance_ratio"] = score

	return &types.Anomaly{
		ID:          uuid.New(),
		Timestamp:   ts,
		Service:     service,
		Metric:      "feature_vector",
		Type:        types.AnomalyTypeAvailability,
		Severity:    severity,
		Method:      types.MethodMultivariate,
		Score:       score,
		ActualValue: score,
		Context:     ctx,
		Description: fmt.Sprintf("feature vector for %s deviates from recent pattern (distance ratio %.2f)", service, score),
		SuggestedActions: []string{
			"compare current feature values against the service's recent range",
			"check for correlated shifts across metrics (deploys, traffic changes)",
		},
	}
}
