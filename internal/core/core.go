// Package core wires the pipeline together: metric ingestion feeds the
// anomaly engine, cost ingestion feeds the forecaster and cost detector, and
// utilization snapshots drive the scaling orchestrator. Persistence and
// audit are best-effort side channels; a store failure never blocks the
// in-memory pipeline.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opspulse/opspulse/internal/analytics"
	"github.com/opspulse/opspulse/internal/audit"
	"github.com/opspulse/opspulse/internal/cache"
	"github.com/opspulse/opspulse/internal/cost"
	"github.com/opspulse/opspulse/internal/metrics"
	"github.com/opspulse/opspulse/internal/scaling"
	"github.com/opspulse/opspulse/internal/store"
	"github.com/opspulse/opspulse/pkg/types"
)

// Options configures the pipeline. Nil optional fields disable the
// corresponding side channel.
type Options struct {
	Engine       *analytics.Engine
	Predictor    *cost.Predictor
	CostDetector *cost.Detector
	Orchestrator *scaling.Orchestrator

	Store        store.Store      // optional
	Audit        audit.Logger     // optional
	Cache        cache.Cache      // optional
	EvalInterval time.Duration    // optional periodic re-evaluation
	Logger       *zap.Logger
}

// Pipeline is the single entry point operations go through.
type Pipeline struct {
	engine       *analytics.Engine
	predictor    *cost.Predictor
	costDetector *cost.Detector
	orchestrator *scaling.Orchestrator

	st           store.Store
	auditLog     audit.Logger
	forecastTTL  cache.Cache
	evalInterval time.Duration
	log          *zap.Logger

	mu       sync.Mutex
	latest   map[string]types.ResourceMetrics
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a pipeline. Missing components are created with defaults.
func New(opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Engine == nil {
		opts.Engine = analytics.NewEngine(analytics.DefaultEngineConfig(), log)
	}
	if opts.Predictor == nil {
		opts.Predictor = cost.NewPredictor(cost.DefaultPredictorConfig(), log)
	}
	if opts.CostDetector == nil {
		opts.CostDetector = cost.NewDetector(cost.DefaultDetectorConfig(), log)
	}
	if opts.Orchestrator == nil {
		opts.Orchestrator = scaling.NewOrchestrator(scaling.DefaultOrchestratorConfig(), nil, nil, nil, log)
	}

	p := &Pipeline{
		engine:       opts.Engine,
		predictor:    opts.Predictor,
		costDetector: opts.CostDetector,
		orchestrator: opts.Orchestrator,
		st:           opts.Store,
		auditLog:     opts.Audit,
		forecastTTL:  opts.Cache,
		evalInterval: opts.EvalInterval,
		log:          log,
		latest:       make(map[string]types.ResourceMetrics),
		stopCh:       make(chan struct{}),
	}

	// Persist and audit every admitted anomaly.
	p.engine.RegisterAlertCallback(p.onAnomaly)

	return p
}

// AddMetric ingests one batch of named metric values for a service and
// returns how many anomalies were admitted.
func (p *Pipeline) AddMetric(ctx context.Context, service string, values map[string]float64, ts time.Time) int {
	metrics.MetricPointsIngested.WithLabelValues(service).Add(float64(len(values)))
	return p.engine.AddMetrics(service, values, ts)
}

// AddCostPoint ingests a cost observation: it feeds the forecaster, runs the
// cost anomaly detector, and invalidates cached forecasts for the pair.
func (p *Pipeline) AddCostPoint(ctx context.Context, point types.CostDataPoint) *types.CostAnomaly {
	if point.Timestamp.IsZero() {
		point.Timestamp = time.Now()
	}
	metrics.CostPointsIngested.WithLabelValues(point.Service, string(point.Category)).Inc()

	p.predictor.AddPoint(point)
	anomaly := p.costDetector.Observe(point)

	if p.forecastTTL != nil {
		p.forecastTTL.Invalidate(ctx, forecastKeyPrefix(point.Service))
		p.forecastTTL.Invalidate(ctx, forecastKeyPrefix("all"))
	}

	if p.st != nil {
		rec := &store.CostPointRecord{
			Service:    point.Service,
			Category:   string(point.Category),
			Amount:     point.Amount,
			RecordedAt: point.Timestamp,
		}
		if err := p.st.AppendCostPoint(ctx, rec); err != nil {
			metrics.StoreWriteFailures.WithLabelValues("cost_point").Inc()
			p.log.Warn("cost point persist failed", zap.Error(err))
		}
	}

	if anomaly != nil {
		metrics.CostAnomaliesDetected.WithLabelValues(string(anomaly.Category), string(anomaly.Severity)).Inc()
		if p.st != nil {
			rec := &store.CostAnomalyRecord{
				ID:         anomaly.ID.String(),
				Service:    anomaly.Service,
				Category:   string(anomaly.Category),
				Severity:   string(anomaly.Severity),
				Direction:  anomaly.Direction,
				Score:      anomaly.Score,
				Expected:   anomaly.ExpectedCost,
				Actual:     anomaly.ActualCost,
				DetectedAt: anomaly.Timestamp,
			}
			if err := p.st.AppendCostAnomaly(ctx, rec); err != nil {
				metrics.StoreWriteFailures.WithLabelValues("cost_anomaly").Inc()
				p.log.Warn("cost anomaly persist failed", zap.Error(err))
			}
		}
		if p.auditLog != nil {
			_ = p.auditLog.LogCostAnomaly(ctx, anomaly.ID.String(), anomaly.Service,
				string(anomaly.Category), string(anomaly.Severity), anomaly.Direction)
		}
	}
	return anomaly
}

// GetActiveAnomalies lists unresolved anomalies, optionally filtered.
func (p *Pipeline) GetActiveAnomalies(service string, severity types.Severity) []types.Anomaly {
	return p.engine.ActiveAnomalies(service, severity)
}

// GetAnomalySummary computes the rolling summary over the window.
func (p *Pipeline) GetAnomalySummary(hoursBack int) types.AnomalySummary {
	return p.engine.Summary(hoursBack)
}

// GetCostForecast returns the forecast report for a service ("" or "all"
// covers every known pair), consulting the TTL cache first.
func (p *Pipeline) GetCostForecast(ctx context.Context, service string, hoursAhead int) types.ForecastReport {
	key := forecastKey(service, hoursAhead)
	if p.forecastTTL != nil {
		if v, ok := p.forecastTTL.Get(ctx, key); ok {
			metrics.ForecastCacheHits.WithLabelValues("hit").Inc()
			return v.(types.ForecastReport)
		}
		metrics.ForecastCacheHits.WithLabelValues("miss").Inc()
	}

	report := p.predictor.ForecastAll(service, hoursAhead)
	if len(report.Predictions) > 0 {
		metrics.ForecastsGenerated.WithLabelValues("ok").Inc()
	} else {
		metrics.ForecastsGenerated.WithLabelValues("insufficient_data").Inc()
	}

	if p.forecastTTL != nil {
		p.forecastTTL.Set(ctx, key, report, 0)
	}
	return report
}

// GetCostAnomalies lists cost anomalies from the last hoursBack hours.
func (p *Pipeline) GetCostAnomalies(hoursBack int) []types.CostAnomaly {
	return p.costDetector.Recent(hoursBack)
}

// ResolveAnomaly marks an anomaly resolved. Returns false for unknown IDs.
func (p *Pipeline) ResolveAnomaly(ctx context.Context, id uuid.UUID, note string) bool {
	ok := p.engine.Resolve(id, note)
	if !ok {
		return false
	}
	metrics.AnomaliesResolved.Inc()
	if p.st != nil {
		if err := p.st.MarkAnomalyResolved(ctx, id.String(), note); err != nil {
			metrics.StoreWriteFailures.WithLabelValues("anomaly_resolve").Inc()
			p.log.Warn("anomaly resolve persist failed", zap.Error(err))
		}
	}
	if p.auditLog != nil {
		_ = p.auditLog.LogAnomalyResolved(ctx, id.String(), note)
	}
	return true
}

// RegisterAlertCallback subscribes to newly admitted anomalies.
func (p *Pipeline) RegisterAlertCallback(fn analytics.AlertCallback) {
	p.engine.RegisterAlertCallback(fn)
}

// EvaluateAndScale runs one scaling evaluation for a utilization snapshot
// and returns the decision. The snapshot is retained for periodic
// re-evaluation when the background loop is enabled.
func (p *Pipeline) EvaluateAndScale(ctx context.Context, m types.ResourceMetrics) types.ScalingDecision {
	p.mu.Lock()
	p.latest[m.Service] = m
	p.mu.Unlock()

	d := p.orchestrator.EvaluateAndScale(ctx, m)

	metrics.ScalingDecisions.WithLabelValues(d.Service, string(d.Action)).Inc()
	metrics.ScalingConfidence.WithLabelValues(string(d.Action)).Observe(d.Confidence)

	if p.st != nil {
		rec := &store.DecisionRecord{
			ID:              d.ID.String(),
			Service:         d.Service,
			Action:          string(d.Action),
			TargetInstances: d.TargetInstances,
			Confidence:      d.Confidence,
			Reasoning:       d.Reasoning,
			CostImpact:      d.EstimatedCostImpact,
			DecidedAt:       d.Timestamp,
		}
		if err := p.st.AppendDecision(ctx, rec); err != nil {
			metrics.StoreWriteFailures.WithLabelValues("decision").Inc()
			p.log.Warn("decision persist failed", zap.Error(err))
		}
	}
	if p.auditLog != nil {
		_ = p.auditLog.LogScalingDecision(ctx, d.ID.String(), d.Service, string(d.Action), d.TargetInstances, d.Confidence)
	}
	return d
}

// ScalingHistory returns the recorded decisions for a service.
func (p *Pipeline) ScalingHistory(service string) []types.ScalingDecision {
	return p.orchestrator.History(service)
}

// Run starts the periodic re-evaluation loop and blocks until the context
// is cancelled or Close is called. A no-op when no interval is configured.
func (p *Pipeline) Run(ctx context.Context) {
	if p.evalInterval <= 0 {
		return
	}
	ticker := time.NewTicker(p.evalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			snapshots := make([]types.ResourceMetrics, 0, len(p.latest))
			for _, m := range p.latest {
				snapshots = append(snapshots, m)
			}
			p.mu.Unlock()

			for _, m := range snapshots {
				m.Timestamp = time.Now()
				p.EvaluateAndScale(ctx, m)
			}
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		}
	}
}

// Close stops the background loop.
func (p *Pipeline) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// onAnomaly is the engine callback that mirrors admitted anomalies into the
// store, the audit trail, and Prometheus.
func (p *Pipeline) onAnomaly(a types.Anomaly) {
	metrics.AnomaliesDetected.WithLabelValues(string(a.Method), string(a.Severity)).Inc()

	ctx := context.Background()
	if p.st != nil {
		rec := &store.AnomalyRecord{
			ID:          a.ID.String(),
			Service:     a.Service,
			Metric:      a.Metric,
			AnomalyType: string(a.Type),
			Severity:    string(a.Severity),
			Method:      string(a.Method),
			Score:       a.Score,
			Expected:    a.ExpectedValue,
			Actual:      a.ActualValue,
			Description: a.Description,
			Resolved:    a.Resolved,
			DetectedAt:  a.Timestamp,
		}
		if err := p.st.AppendAnomaly(ctx, rec); err != nil {
			metrics.StoreWriteFailures.WithLabelValues("anomaly").Inc()
			p.log.Warn("anomaly persist failed", zap.Error(err))
		}
	}
	if p.auditLog != nil {
		_ = p.auditLog.LogAnomalyDetected(ctx, a.ID.String(), a.Service, a.Metric, string(a.Severity))
	}
}

func forecastKey(service string, hoursAhead int) string {
	if service == "" {
		service = "all"
	}
	return fmt.Sprintf("forecast:%s:%d", service, hoursAhead)
}

func forecastKeyPrefix(service string) string {
	return fmt.Sprintf("forecast:%s:", service)
}
