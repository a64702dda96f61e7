// Package analytics wires the detectors into a single anomaly engine: the
// fan-in point that deduplicates, rate-limits, stores, and dispatches
// anomalies for every ingested metric batch.
package analytics

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opspulse/opspulse/internal/analytics/anomaly"
	"github.com/opspulse/opspulse/pkg/types"
)

// AlertCallback receives every newly admitted anomaly. Callbacks are invoked
// synchronously and best-effort: a panicking callback is isolated and logged,
// never propagated, and never prevents other callbacks from running.
type AlertCallback func(types.Anomaly)

// EngineConfig tunes the anomaly engine.
type EngineConfig struct {
	// DedupCooldown is the window within which a second unresolved anomaly
	// for the same (service, metric, type) is dropped. Default 15 minutes.
	DedupCooldown time.Duration
	// HistoryLimit bounds the in-memory anomaly history. Default 1000.
	HistoryLimit int
	// Detector toggles.
	EnableStatistical  bool
	EnableMultivariate bool
	EnableTrend        bool
	EnableThreshold    bool
}

// DefaultEngineConfig enables all detectors with stock tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DedupCooldown:      15 * time.Minute,
		HistoryLimit:       1000,
		EnableStatistical:  true,
		EnableMultivariate: true,
		EnableTrend:        true,
		EnableThreshold:    true,
	}
}

// Engine owns the detectors, the active anomaly set, and the alert fan-out.
// All per-key detector state lives inside the detectors; the engine itself
// guards only the active set, history, and callback list.
type Engine struct {
	mu  sync.RWMutex
	cfg EngineConfig
	log *zap.Logger

	statistical  *anomaly.StatisticalDetector
	multivariate *anomaly.MultivariateDetector
	trend        *anomaly.TrendDetector
	threshold    *anomaly.ThresholdDetector

	active    map[uuid.UUID]*types.Anomaly
	history   []types.Anomaly
	callbacks []AlertCallback
}

// NewEngine builds an engine with default detector tunings.
func NewEngine(cfg EngineConfig, log *zap.Logger) *Engine {
	if cfg.DedupCooldown <= 0 {
		cfg.DedupCooldown = 15 * time.Minute
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 1000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:          cfg,
		log:          log,
		statistical:  anomaly.NewStatisticalDetector(anomaly.DefaultStatisticalConfig()),
		multivariate: anomaly.NewMultivariateDetector(anomaly.DefaultMultivariateConfig()),
		trend:        anomaly.NewTrendDetector(anomaly.DefaultTrendConfig()),
		threshold:    anomaly.NewThresholdDetector(nil),
		active:       make(map[uuid.UUID]*types.Anomaly),
	}
}

// SetDetectors replaces the stock detectors; nil arguments keep the current
// ones. Intended for tests and for config-driven tuning at startup.
func (e *Engine) SetDetectors(s *anomaly.StatisticalDetector, m *anomaly.MultivariateDetector, t *anomaly.TrendDetector, th *anomaly.ThresholdDetector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s != nil {
		e.statistical = s
	}
	if m != nil {
		e.multivariate = m
	}
	if t != nil {
		e.trend = t
	}
	if th != nil {
		e.threshold = th
	}
}

// RegisterAlertCallback adds a subscriber for newly admitted anomalies.
func (e *Engine) RegisterAlertCallback(fn AlertCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks = append(e.callbacks, fn)
}

// AddMetrics ingests one batch of named metric values for a service and
// returns the number of anomalies admitted after deduplication. Each
// detector runs fail-open: an internal panic counts as "no anomaly from
// this detector this cycle".
func (e *Engine) AddMetrics(service string, metrics map[string]float64, ts time.Time) int {
	if ts.IsZero() {
		ts = time.Now()
	}

	var candidates []*types.Anomaly
	for name, value := range metrics {
		p := types.MetricPoint{Timestamp: ts, Service: service, Metric: name, Value: value}

		if e.cfg.EnableThreshold {
			if a := e.runDetector("threshold", func() *types.Anomaly { return e.threshold.Observe(p) }); a != nil {
				candidates = append(candidates, a)
			}
		}
		if e.cfg.EnableStatistical {
			if a := e.runDetector("statistical", func() *types.Anomaly { return e.statistical.Observe(p) }); a != nil {
				candidates = append(candidates, a)
			}
		}
		if e.cfg.EnableTrend {
			if a := e.runDetector("trend", func() *types.Anomaly { return e.trend.Observe(p) }); a != nil {
				candidates = append(candidates, a)
			}
		}
	}

	if e.cfg.EnableMultivariate && len(metrics) > 1 {
		if a := e.runDetector("multivariate", func() *types.Anomaly { return e.multivariate.Observe(service, metrics, ts) }); a != nil {
			candidates = append(candidates, a)
		}
	}

	admitted := 0
	for _, c := range candidates {
		if e.admit(c) {
			admitted++
		}
	}
	return admitted
}

// runDetector isolates a single detector invocation. Detection is
// fail-open, never fail-stop.
func (e *Engine) runDetector(name string, fn func() *types.Anomaly) (result *types.Anomaly) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("detector panicked", zap.String("detector", name), zap.Any("panic", r))
			result = nil
		}
	}()
	return fn()
}

// admit applies deduplication: if an unresolved anomaly with the same
// (service, metric, type) exists within the cooldown window the candidate
// is dropped. Otherwise it joins the active set and history and is
// dispatched to all subscribers.
func (e *Engine) admit(c *types.Anomaly) bool {
	e.mu.Lock()
	for _, existing := range e.active {
		if existing.Resolved {
			continue
		}
		if existing.Service == c.Service && existing.Metric == c.Metric && existing.Type == c.Type &&
			c.Timestamp.Sub(existing.Timestamp) < e.cfg.DedupCooldown {
			e.mu.Unlock()
			return false
		}
	}

	e.active[c.ID] = c
	e.history = append(e.history, *c)
	if len(e.history) > e.cfg.HistoryLimit {
		e.history = e.history[len(e.history)-e.cfg.HistoryLimit:]
	}
	callbacks := make([]AlertCallback, len(e.callbacks))
	copy(callbacks, e.callbacks)
	e.mu.Unlock()

	e.log.Info("anomaly detected",
		zap.String("service", c.Service),
		zap.String("metric", c.Metric),
		zap.String("type", string(c.Type)),
		zap.String("severity", string(c.Severity)),
		zap.String("method", string(c.Method)),
		zap.Float64("score", c.Score))

	for _, cb := range callbacks {
		e.dispatch(cb, *c)
	}
	return true
}

// dispatch runs one callback with panic isolation.
func (e *Engine) dispatch(cb AlertCallback, a types.Anomaly) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("alert callback panicked", zap.Any("panic", r), zap.String("anomaly_id", a.ID.String()))
		}
	}()
	cb(a)
}

// ActiveAnomalies lists unresolved anomalies, optionally filtered by service
// and/or severity. Empty filters match everything.
func (e *Engine) ActiveAnomalies(service string, severity types.Severity) []types.Anomaly {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]types.Anomaly, 0, len(e.active))
	for _, a := range e.active {
		if a.Resolved {
			continue
		}
		if service != "" && a.Service != service {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// Resolve marks an active anomaly resolved and removes it from the active
// set. Returns false for unknown or already-resolved IDs.
func (e *Engine) Resolve(id uuid.UUID, note string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.active[id]
	if !ok || a.Resolved {
		return false
	}
	now := time.Now()
	a.Resolved = true
	a.ResolvedAt = &now
	a.ResolutionNote = note
	delete(e.active, id)

	// Reflect resolution in history so summaries see it.
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].ID == id {
			e.history[i] = *a
			break
		}
	}

	e.log.Info("anomaly resolved", zap.String("anomaly_id", id.String()), zap.String("note", note))
	return true
}

// Summary computes the rolling breakdown over the last hoursBack hours,
// with a naive recommendation list derived from the counts.
func (e *Engine) Summary(hoursBack int) types.AnomalySummary {
	if hoursBack <= 0 {
		hoursBack = 24
	}
	cutoff := time.Now().Add(-time.Duration(hoursBack) * time.Hour)

	e.mu.RLock()
	defer e.mu.RUnlock()

	s := types.AnomalySummary{
		WindowHours: hoursBack,
		BySeverity:  make(map[types.Severity]int),
		ByService:   make(map[string]int),
		ByType:      make(map[types.AnomalyType]int),
		ByMethod:    make(map[types.DetectionMethod]int),
		GeneratedAt: time.Now(),
	}

	for i := range e.history {
		a := &e.history[i]
		if a.Timestamp.Before(cutoff) {
			continue
		}
		s.Total++
		if !a.Resolved {
			s.Active++
		}
		s.BySeverity[a.Severity]++
		s.ByService[a.Service]++
		s.ByType[a.Type]++
		s.ByMethod[a.Method]++
	}

	s.Recommendations = summarizeRecommendations(s)
	return s
}

func summarizeRecommendations(s types.AnomalySummary) []string {
	var recs []string
	if s.BySeverity[types.SeverityCritical]+s.BySeverity[types.SeverityEmergency] >= 5 {
		recs = append(recs, "multiple critical anomalies in window: investigate platform-wide instability")
	}
	if s.ByType[types.AnomalyTypeErrorRate] >= 3 {
		recs = append(recs, "recurring error-rate anomalies: review recent deploys and dependency health")
	}
	if s.ByType[types.AnomalyTypeResource] >= 3 {
		recs = append(recs, "recurring resource anomalies: review capacity and autoscaling settings")
	}
	if s.ByType[types.AnomalyTypeCost] >= 2 {
		recs = append(recs, "cost anomalies present: review the cost forecast report")
	}
	return recs
}
