package types

import (
	"time"

	"github.com/google/uuid"
)

// ScalingAction is the orchestrator's verdict for a service.
type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "scale_up"
	ActionScaleDown ScalingAction = "scale_down"
	ActionMaintain  ScalingAction = "maintain"
	ActionOptimize  ScalingAction = "optimize"
)

// ResourceMetrics is a point-in-time utilization snapshot for one service.
type ResourceMetrics struct {
	Timestamp     time.Time `json:"timestamp"`
	Service       string    `json:"service"`
	CPUUsage      float64   `json:"cpu_usage"`      // percent, 0-100
	MemoryUsage   float64   `json:"memory_usage"`   // percent, 0-100
	InstanceCount int       `json:"instance_count"`
	RequestRate   float64   `json:"request_rate"`  // requests per second
	ResponseTime  float64   `json:"response_time"` // milliseconds
	ErrorRate     float64   `json:"error_rate"`    // percent, 0-100
	CostPerHour   float64   `json:"cost_per_hour"` // USD
}

// PredictiveMetrics is a near-future load forecast for one service.
type PredictiveMetrics struct {
	Service               string  `json:"service"`
	PredictedLoad         float64 `json:"predicted_load"` // requests per second, >= 0
	PredictedResponseTime float64 `json:"predicted_response_time"`
	PredictedErrorRate    float64 `json:"predicted_error_rate"`
	ConfidenceLow         float64 `json:"confidence_low"`
	ConfidenceHigh        float64 `json:"confidence_high"`
	TimeHorizonMinutes    int     `json:"time_horizon_minutes"`
	DataPoints            int     `json:"data_points"`
}

// ScalingDecision is an immutable scaling proposal. Execution is delegated
// to an external infrastructure controller; this core only emits the
// decision and records it for cooldown enforcement.
type ScalingDecision struct {
	ID                         uuid.UUID     `json:"id"`
	Timestamp                  time.Time     `json:"timestamp"`
	Service                    string        `json:"service"`
	Action                     ScalingAction `json:"action"`
	TargetInstances            int           `json:"target_instances"`
	TargetCPU                  float64       `json:"target_cpu"`     // cores
	TargetMemory               float64       `json:"target_memory"`  // GB
	TargetConcurrency          int           `json:"target_concurrency"`
	Confidence                 float64       `json:"confidence"` // 0..1
	Reasoning                  string        `json:"reasoning"`
	EstimatedCostImpact        float64       `json:"estimated_cost_impact"`        // USD/hour delta
	EstimatedPerformanceImpact string        `json:"estimated_performance_impact"`
}

// ServiceProfile is a static resource-consumption template assigned to a
// service by classification.
type ServiceProfile struct {
	Name              string  `json:"name"`
	CPUPerRPS         float64 `json:"cpu_per_rps"`    // cores per req/s
	MemoryPerRPS      float64 `json:"memory_per_rps"` // GB per req/s
	MinCPU            float64 `json:"min_cpu"`
	MaxCPU            float64 `json:"max_cpu"`
	MinMemory         float64 `json:"min_memory"`
	MaxMemory         float64 `json:"max_memory"`
	TargetUtilization float64 `json:"target_utilization"` // 0..1
	BaseCostPerHour   float64 `json:"base_cost_per_hour"` // USD
}
