package scaling

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opspulse/opspulse/internal/analytics/stats"
	"github.com/opspulse/opspulse/pkg/types"
)

// Controller applies a scaling decision to real infrastructure. The
// orchestrator only emits decisions; execution is delegated and best-effort.
type Controller interface {
	Apply(ctx context.Context, decision types.ScalingDecision) error
}

// OrchestratorConfig tunes the scaling orchestrator's safety limits.
type OrchestratorConfig struct {
	Cooldown         time.Duration // minimum gap between effective decisions, default 10m
	HorizonMinutes   int           // forecast horizon, default 10
	MaxScaleUpRate   float64       // target <= current * rate, default 2.0
	MaxScaleDownRate float64       // target >= current * rate (floor 1), default 0.5
	MaxCostPerHour   float64       // per-service hourly ceiling in USD, default 5.0
	ActionBand       float64       // relative dead band around current count, default 0.2
	HistoryLimit     int           // retained decisions per service, default 200
}

// DefaultOrchestratorConfig returns the stock limits.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Cooldown:         10 * time.Minute,
		HorizonMinutes:   10,
		MaxScaleUpRate:   2.0,
		MaxScaleDownRate: 0.5,
		MaxCostPerHour:   5.0,
		ActionBand:       0.2,
		HistoryLimit:     200,
	}
}

// serviceState is the per-service decision ledger. Decisions for one service
// are serialized by the orchestrator lock; the cooldown clock only advances
// on decisions that change the fleet.
type serviceState struct {
	history       []types.ScalingDecision
	lastEffective time.Time
}

// Orchestrator turns utilization snapshots into clamped scaling decisions.
type Orchestrator struct {
	mu        sync.Mutex
	cfg       OrchestratorConfig
	log       *zap.Logger
	predictor *LoadPredictor
	optimizer *ResourceOptimizer
	services  map[string]*serviceState

	controller Controller
}

// NewOrchestrator creates an orchestrator around a predictor and optimizer.
// controller may be nil, in which case decisions are recorded but not applied.
func NewOrchestrator(cfg OrchestratorConfig, predictor *LoadPredictor, optimizer *ResourceOptimizer, controller Controller, log *zap.Logger) *Orchestrator {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}
	if cfg.HorizonMinutes <= 0 {
		cfg.HorizonMinutes = 10
	}
	if cfg.MaxScaleUpRate <= 1 {
		cfg.MaxScaleUpRate = 2.0
	}
	if cfg.MaxScaleDownRate <= 0 || cfg.MaxScaleDownRate >= 1 {
		cfg.MaxScaleDownRate = 0.5
	}
	if cfg.MaxCostPerHour <= 0 {
		cfg.MaxCostPerHour = 5.0
	}
	if cfg.ActionBand <= 0 || cfg.ActionBand >= 1 {
		cfg.ActionBand = 0.2
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 200
	}
	if log == nil {
		log = zap.NewNop()
	}
	if predictor == nil {
		predictor = NewLoadPredictor(DefaultLoadPredictorConfig(), log)
	}
	if optimizer == nil {
		optimizer = NewResourceOptimizer()
	}
	return &Orchestrator{
		cfg:        cfg,
		log:        log,
		predictor:  predictor,
		optimizer:  optimizer,
		services:   make(map[string]*serviceState),
		controller: controller,
	}
}

// Predictor exposes the underlying load predictor for metric recording.
func (o *Orchestrator) Predictor() *LoadPredictor { return o.predictor }

// EvaluateAndScale records the snapshot, forecasts load, and emits exactly
// one decision for the service. Cooldown, rate clamps, and the cost ceiling
// are applied in that order; a decision is always returned, degrading to
// maintain when data or budget do not support a change.
func (o *Orchestrator) EvaluateAndScale(ctx context.Context, m types.ResourceMetrics) types.ScalingDecision {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	o.predictor.Record(m)

	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.services[m.Service]
	if !ok {
		st = &serviceState{}
		o.services[m.Service] = st
	}

	current := m.InstanceCount
	if current < 1 {
		current = 1
	}

	if !st.lastEffective.IsZero() && m.Timestamp.Sub(st.lastEffective) < o.cfg.Cooldown {
		remaining := o.cfg.Cooldown - m.Timestamp.Sub(st.lastEffective)
		d := o.maintainDecision(m, current, 0.0,
			fmt.Sprintf("cooldown active: %s remaining before the next scaling decision", remaining.Round(time.Second)))
		o.record(st, d)
		return d
	}

	forecast, err := o.predictor.Forecast(m.Service, o.cfg.HorizonMinutes)
	if err != nil {
		d := o.maintainDecision(m, current, 0.1, fmt.Sprintf("holding steady: %v", err))
		o.record(st, d)
		return d
	}

	proposal := o.optimizer.Optimize(m, forecast)
	action := o.classify(current, proposal.TargetInstances, m)
	target := proposal.TargetInstances

	reasoning := fmt.Sprintf("predicted load %.1f req/s over %dm (current %.1f), proposed %d instances (profile %s)",
		forecast.PredictedLoad, forecast.TimeHorizonMinutes, m.RequestRate, proposal.TargetInstances, proposal.Profile)

	// Rate clamps bound how far one decision can move the fleet.
	switch action {
	case types.ActionScaleUp:
		limit := int(math.Floor(float64(current) * o.cfg.MaxScaleUpRate))
		if limit < current+1 {
			limit = current + 1
		}
		if target > limit {
			reasoning += fmt.Sprintf("; clamped from %d to %d by max scale-up rate", target, limit)
			target = limit
		}
	case types.ActionScaleDown:
		limit := int(math.Floor(float64(current) * o.cfg.MaxScaleDownRate))
		if limit < 1 {
			limit = 1
		}
		if target < limit {
			reasoning += fmt.Sprintf("; clamped from %d to %d by max scale-down rate", target, limit)
			target = limit
		}
	case types.ActionMaintain:
		target = current
	}

	projectedCost := o.optimizer.CostFor(proposal, target)
	costImpact := projectedCost - m.CostPerHour

	// Cost ceiling: a decision that would push the service past the hourly
	// budget is replaced with maintain.
	if costImpact > 0 && projectedCost > o.cfg.MaxCostPerHour {
		d := o.maintainDecision(m, current, o.confidence(forecast, m),
			fmt.Sprintf("%s; projected cost $%.2f/h exceeds ceiling $%.2f/h, holding at %d instances",
				reasoning, projectedCost, o.cfg.MaxCostPerHour, current))
		o.record(st, d)
		return d
	}

	if target == current && action != types.ActionOptimize {
		action = types.ActionMaintain
		costImpact = 0
	}

	d := types.ScalingDecision{
		ID:                         uuid.New(),
		Timestamp:                  m.Timestamp,
		Service:                    m.Service,
		Action:                     action,
		TargetInstances:            target,
		TargetCPU:                  proposal.TargetCPU,
		TargetMemory:               proposal.TargetMemory,
		TargetConcurrency:          proposal.TargetConcurrency,
		Confidence:                 o.confidence(forecast, m),
		Reasoning:                  reasoning,
		EstimatedCostImpact:        costImpact,
		EstimatedPerformanceImpact: performanceImpact(action, current, target),
	}
	o.record(st, d)

	o.log.Info("scaling decision",
		zap.String("service", d.Service),
		zap.String("action", string(d.Action)),
		zap.Int("current_instances", current),
		zap.Int("target_instances", d.TargetInstances),
		zap.Float64("confidence", d.Confidence),
		zap.Float64("cost_impact", d.EstimatedCostImpact))

	if o.controller != nil && d.Action != types.ActionMaintain {
		if err := o.controller.Apply(ctx, d); err != nil {
			o.log.Error("controller apply failed", zap.String("service", d.Service), zap.Error(err))
		}
	}
	return d
}

// History returns the recorded decisions for a service, oldest first.
func (o *Orchestrator) History(service string) []types.ScalingDecision {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.services[service]
	if !ok {
		return nil
	}
	out := make([]types.ScalingDecision, len(st.history))
	copy(out, st.history)
	return out
}

// classify maps the proposed instance delta onto an action. Targets within
// the dead band around the current count fall through to optimize when
// utilization is hot, otherwise maintain.
func (o *Orchestrator) classify(current, target int, m types.ResourceMetrics) types.ScalingAction {
	upper := float64(current) * (1 + o.cfg.ActionBand)
	lower := float64(current) * (1 - o.cfg.ActionBand)
	switch {
	case float64(target) > upper:
		return types.ActionScaleUp
	case float64(target) < lower:
		return types.ActionScaleDown
	case m.CPUUsage > 85 || m.MemoryUsage > 85:
		return types.ActionOptimize
	}
	return types.ActionMaintain
}

// confidence is the geometric mean of three [0,1] factors: how full the
// history is, how tight the forecast interval is relative to the predicted
// load, and how healthy the service currently looks.
func (o *Orchestrator) confidence(f types.PredictiveMetrics, m types.ResourceMetrics) float64 {
	data := stats.Clamp(float64(f.DataPoints)/144.0, 0, 1)

	width := f.ConfidenceHigh - f.ConfidenceLow
	denom := math.Max(f.PredictedLoad, 1)
	interval := 1.0 / (1.0 + width/denom)

	health := stats.Clamp(1.0-(m.ErrorRate/20.0)-math.Max(0, m.ResponseTime-1000)/10000.0, 0.05, 1.0)

	return stats.SafeFloat(math.Cbrt(data * interval * health))
}

func (o *Orchestrator) maintainDecision(m types.ResourceMetrics, current int, confidence float64, reasoning string) types.ScalingDecision {
	return types.ScalingDecision{
		ID:                         uuid.New(),
		Timestamp:                  m.Timestamp,
		Service:                    m.Service,
		Action:                     types.ActionMaintain,
		TargetInstances:            current,
		Confidence:                 confidence,
		Reasoning:                  reasoning,
		EstimatedCostImpact:        0,
		EstimatedPerformanceImpact: "none",
	}
}

// record appends the decision and, when the fleet actually changes, restarts
// the cooldown clock. Maintain decisions never extend the cooldown, so a
// burst of evaluations cannot postpone scaling forever.
func (o *Orchestrator) record(st *serviceState, d types.ScalingDecision) {
	st.history = append(st.history, d)
	if len(st.history) > o.cfg.HistoryLimit {
		st.history = st.history[len(st.history)-o.cfg.HistoryLimit:]
	}
	if d.Action != types.ActionMaintain {
		st.lastEffective = d.Timestamp
	}
}

func performanceImpact(action types.ScalingAction, current, target int) string {
	switch action {
	case types.ActionScaleUp:
		return fmt.Sprintf("improved headroom: %d -> %d instances", current, target)
	case types.ActionScaleDown:
		return fmt.Sprintf("reduced capacity: %d -> %d instances, latency may rise under bursts", current, target)
	case types.ActionOptimize:
		return "resource shape adjusted without changing instance count"
	}
	return "none"
}
