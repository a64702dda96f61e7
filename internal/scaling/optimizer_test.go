package scaling

import (
	"math"
	"testing"

	"github.com/opspulse/opspulse/pkg/types"
)

func TestProfileClassification(t *testing.T) {
	o := NewResourceOptimizer()

	tests := []struct {
		service string
		profile string
	}{
		{"ml-inference", "ai-intensive"},
		{"fraud-ai-scorer", "ai-intensive"},
		{"etl-runner", "data-processing"},
		{"ingest-pipeline", "data-processing"},
		{"payment-worker", "background-worker"},
		{"nightly-batch", "background-worker"},
		{"web-dashboard", "dashboard"},
		{"admin-ui", "dashboard"},
		{"checkout", "api-service"},
		{"", "api-service"},
	}
	for _, tc := range tests {
		if got := o.ProfileFor(tc.service); got.Name != tc.profile {
			t.Errorf("ProfileFor(%q) = %s, want %s", tc.service, got.Name, tc.profile)
		}
	}
}

func TestOptimizeScalesUpPastBand(t *testing.T) {
	o := NewResourceOptimizer()
	current := types.ResourceMetrics{Service: "checkout", InstanceCount: 2}
	predicted := types.PredictiveMetrics{PredictedLoad: 300}

	// 2 instances give 200 nominal capacity; 300 exceeds the 80% band, so the
	// fleet is resized for 80 req/s per instance: ceil(300/80) = 4.
	p := o.Optimize(current, predicted)
	if p.TargetInstances != 4 {
		t.Errorf("target instances = %d, want 4", p.TargetInstances)
	}
	if p.Profile != "api-service" {
		t.Errorf("profile = %s, want api-service", p.Profile)
	}
	// 75 req/s per instance under the api profile.
	if math.Abs(p.TargetCPU-1.5) > 1e-9 {
		t.Errorf("target cpu = %v, want 1.5", p.TargetCPU)
	}
	if math.Abs(p.TargetMemory-3.0) > 1e-9 {
		t.Errorf("target memory = %v, want 3.0", p.TargetMemory)
	}
	if p.TargetConcurrency != 75 {
		t.Errorf("target concurrency = %d, want 75", p.TargetConcurrency)
	}
	if p.EstimatedHourlyCost <= 0 {
		t.Errorf("estimated cost = %v, want > 0", p.EstimatedHourlyCost)
	}
}

func TestOptimizeScalesDownPastBand(t *testing.T) {
	o := NewResourceOptimizer()
	current := types.ResourceMetrics{Service: "checkout", InstanceCount: 10}
	predicted := types.PredictiveMetrics{PredictedLoad: 100}

	// 100 req/s against 1000 nominal capacity is under the 30% band; resize
	// for 60 req/s per instance: ceil(100/60) = 2.
	p := o.Optimize(current, predicted)
	if p.TargetInstances != 2 {
		t.Errorf("target instances = %d, want 2", p.TargetInstances)
	}
}

func TestOptimizeHoldsWithinBand(t *testing.T) {
	o := NewResourceOptimizer()
	current := types.ResourceMetrics{Service: "checkout", InstanceCount: 4}
	predicted := types.PredictiveMetrics{PredictedLoad: 300}

	// 300 req/s sits between 30% and 80% of the 400 nominal capacity.
	p := o.Optimize(current, predicted)
	if p.TargetInstances != 4 {
		t.Errorf("target instances = %d, want unchanged 4", p.TargetInstances)
	}
}

func TestOptimizeZeroLoadFloorsAtOne(t *testing.T) {
	o := NewResourceOptimizer()
	current := types.ResourceMetrics{Service: "checkout", InstanceCount: 3}
	predicted := types.PredictiveMetrics{PredictedLoad: 0}

	p := o.Optimize(current, predicted)
	if p.TargetInstances != 1 {
		t.Errorf("target instances = %d, want floor of 1", p.TargetInstances)
	}
	// Resource shape bottoms out at the profile minimums.
	if p.TargetCPU != 0.25 || p.TargetMemory != 0.5 {
		t.Errorf("shape = %v cpu / %v GB, want profile minimums 0.25/0.5", p.TargetCPU, p.TargetMemory)
	}
	if p.TargetConcurrency != minConcurrency {
		t.Errorf("concurrency = %d, want %d", p.TargetConcurrency, minConcurrency)
	}
}

func TestOptimizeMissingInstanceCount(t *testing.T) {
	o := NewResourceOptimizer()
	current := types.ResourceMetrics{Service: "checkout"}
	predicted := types.PredictiveMetrics{PredictedLoad: 50}

	// Zero instance count is treated as a fleet of one.
	p := o.Optimize(current, predicted)
	if p.TargetInstances < 1 {
		t.Errorf("target instances = %d, want >= 1", p.TargetInstances)
	}
}

func TestCostForScalesWithInstances(t *testing.T) {
	o := NewResourceOptimizer()
	current := types.ResourceMetrics{Service: "checkout", InstanceCount: 2}
	predicted := types.PredictiveMetrics{PredictedLoad: 300}

	p := o.Optimize(current, predicted)
	four := o.CostFor(p, 4)
	eight := o.CostFor(p, 8)
	if math.Abs(eight-2*four) > 1e-9 {
		t.Errorf("cost at 8 = %v, want double cost at 4 (%v)", eight, four)
	}
	if math.Abs(four-p.EstimatedHourlyCost) > 1e-9 {
		t.Errorf("repriced cost = %v, want original estimate %v", four, p.EstimatedHourlyCost)
	}

	// Unknown profile names fall back to the api-service pricing.
	p.Profile = "no-such-profile"
	if got := o.CostFor(p, 4); math.Abs(got-four) > 1e-9 {
		t.Errorf("fallback cost = %v, want %v", got, four)
	}
}
