package scaling

import (
	"math"
	"strings"

	"github.com/opspulse/opspulse/internal/analytics/stats"
	"github.com/opspulse/opspulse/pkg/types"
)

// Per-instance sizing constants. Nominal capacity classifies whether the
// fleet is over or under provisioned; the scale-up and scale-down targets
// size the fleet with different headroom depending on direction.
const (
	nominalRPSPerInstance   = 100.0
	scaleUpRPSPerInstance   = 80.0
	scaleDownRPSPerInstance = 60.0

	scaleUpUtilization   = 0.80
	scaleDownUtilization = 0.30

	minConcurrency = 10
	maxConcurrency = 100
)

// Proposal is the optimizer's resource recommendation for one service,
// before the orchestrator applies safety clamps.
type Proposal struct {
	Service             string
	Profile             string
	TargetInstances     int
	TargetCPU           float64 // cores per instance
	TargetMemory        float64 // GB per instance
	TargetConcurrency   int
	EstimatedHourlyCost float64 // USD for the whole fleet
}

// ResourceOptimizer sizes instance fleets against predicted load using
// static per-class service profiles.
type ResourceOptimizer struct {
	profiles map[string]types.ServiceProfile
}

// NewResourceOptimizer creates an optimizer with the built-in profiles.
func NewResourceOptimizer() *ResourceOptimizer {
	return &ResourceOptimizer{profiles: builtinProfiles()}
}

// builtinProfiles covers the workload classes the platform runs.
func builtinProfiles() map[string]types.ServiceProfile {
	return map[string]types.ServiceProfile{
		"ai-intensive": {
			Name:              "ai-intensive",
			CPUPerRPS:         0.10,
			MemoryPerRPS:      0.20,
			MinCPU:            1.0,
			MaxCPU:            16.0,
			MinMemory:         2.0,
			MaxMemory:         32.0,
			TargetUtilization: 0.60,
			BaseCostPerHour:   0.40,
		},
		"data-processing": {
			Name:              "data-processing",
			CPUPerRPS:         0.05,
			MemoryPerRPS:      0.15,
			MinCPU:            0.5,
			MaxCPU:            8.0,
			MinMemory:         1.0,
			MaxMemory:         16.0,
			TargetUtilization: 0.70,
			BaseCostPerHour:   0.25,
		},
		"api-service": {
			Name:              "api-service",
			CPUPerRPS:         0.02,
			MemoryPerRPS:      0.04,
			MinCPU:            0.25,
			MaxCPU:            4.0,
			MinMemory:         0.5,
			MaxMemory:         8.0,
			TargetUtilization: 0.70,
			BaseCostPerHour:   0.12,
		},
		"background-worker": {
			Name:              "background-worker",
			CPUPerRPS:         0.03,
			MemoryPerRPS:      0.06,
			MinCPU:            0.25,
			MaxCPU:            4.0,
			MinMemory:         0.5,
			MaxMemory:         8.0,
			TargetUtilization: 0.80,
			BaseCostPerHour:   0.08,
		},
		"dashboard": {
			Name:              "dashboard",
			CPUPerRPS:         0.01,
			MemoryPerRPS:      0.03,
			MinCPU:            0.25,
			MaxCPU:            2.0,
			MinMemory:         0.5,
			MaxMemory:         4.0,
			TargetUtilization: 0.65,
			BaseCostPerHour:   0.06,
		},
	}
}

// ProfileFor classifies a service by name substrings. Unrecognized services
// get the api-service profile.
func (o *ResourceOptimizer) ProfileFor(service string) types.ServiceProfile {
	name := strings.ToLower(service)
	switch {
	case strings.Contains(name, "ai") || strings.Contains(name, "ml") || strings.Contains(name, "inference"):
		return o.profiles["ai-intensive"]
	case strings.Contains(name, "etl") || strings.Contains(name, "pipeline") || strings.Contains(name, "data"):
		return o.profiles["data-processing"]
	case strings.Contains(name, "worker") || strings.Contains(name, "job") || strings.Contains(name, "batch"):
		return o.profiles["background-worker"]
	case strings.Contains(name, "dashboard") || strings.Contains(name, "web") || strings.Contains(name, "ui"):
		return o.profiles["dashboard"]
	}
	return o.profiles["api-service"]
}

// Optimize sizes the fleet for the predicted load. The instance target moves
// only when load leaves the provisioning band: above 80% of nominal fleet
// capacity the fleet is resized for 80 RPS per instance; below 30% it is
// resized for 60 RPS per instance; otherwise the current count holds.
func (o *ResourceOptimizer) Optimize(current types.ResourceMetrics, predicted types.PredictiveMetrics) Proposal {
	profile := o.ProfileFor(current.Service)
	load := math.Max(0, predicted.PredictedLoad)

	instances := current.InstanceCount
	if instances < 1 {
		instances = 1
	}

	capacity := float64(instances) * nominalRPSPerInstance
	target := instances
	switch {
	case load > scaleUpUtilization*capacity:
		target = int(math.Ceil(load / scaleUpRPSPerInstance))
	case load < scaleDownUtilization*capacity:
		target = int(math.Ceil(load / scaleDownRPSPerInstance))
	}
	if target < 1 {
		target = 1
	}

	perInstanceLoad := load / float64(target)
	cpu := stats.Clamp(perInstanceLoad*profile.CPUPerRPS, profile.MinCPU, profile.MaxCPU)
	memory := stats.Clamp(perInstanceLoad*profile.MemoryPerRPS, profile.MinMemory, profile.MaxMemory)
	concurrency := int(stats.Clamp(perInstanceLoad, minConcurrency, maxConcurrency))

	return Proposal{
		Service:             current.Service,
		Profile:             profile.Name,
		TargetInstances:     target,
		TargetCPU:           cpu,
		TargetMemory:        memory,
		TargetConcurrency:   concurrency,
		EstimatedHourlyCost: o.fleetCost(profile, cpu, memory, target),
	}
}

// fleetCost estimates hourly spend: profile base cost scaled by how much of
// the profile's CPU and memory range each instance uses, times the count.
func (o *ResourceOptimizer) fleetCost(p types.ServiceProfile, cpu, memory float64, instances int) float64 {
	normCPU := 1.0
	if p.MaxCPU > 0 {
		normCPU = stats.Clamp(cpu/p.MaxCPU, 0.1, 1.0)
	}
	normMem := 1.0
	if p.MaxMemory > 0 {
		normMem = stats.Clamp(memory/p.MaxMemory, 0.1, 1.0)
	}
	return p.BaseCostPerHour * normCPU * normMem * float64(instances)
}

// CostFor re-prices a proposal at a different instance count, used by the
// orchestrator after rate clamps shift the target.
func (o *ResourceOptimizer) CostFor(p Proposal, instances int) float64 {
	profile, ok := o.profiles[p.Profile]
	if !ok {
		profile = o.profiles["api-service"]
	}
	return o.fleetCost(profile, p.TargetCPU, p.TargetMemory, instances)
}
