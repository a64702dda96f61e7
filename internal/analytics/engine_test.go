package analytics

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/opspulse/opspulse/pkg/types"
)

func newTestEngine(cfg EngineConfig) *Engine {
	return NewEngine(cfg, nil)
}

func TestThresholdBreachAdmitted(t *testing.T) {
	e := newTestEngine(DefaultEngineConfig())

	// Statistical and trend detectors are cold; only the static threshold
	// can fire on a first batch.
	n := e.AddMetrics("api", map[string]float64{"cpu_usage": 97}, time.Now())
	if n != 1 {
		t.Fatalf("admitted = %d, want 1", n)
	}

	active := e.ActiveAnomalies("", "")
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
	if active[0].Method != types.MethodThreshold {
		t.Errorf("method = %s, want threshold", active[0].Method)
	}
	if active[0].Severity != types.SeverityCritical {
		t.Errorf("severity = %s, want critical", active[0].Severity)
	}
}

func TestDedupWithinCooldown(t *testing.T) {
	e := newTestEngine(DefaultEngineConfig())
	ts := time.Now()

	if n := e.AddMetrics("api", map[string]float64{"cpu_usage": 97}, ts); n != 1 {
		t.Fatalf("first breach: admitted = %d, want 1", n)
	}
	// Same (service, metric, type) within the cooldown window is dropped.
	if n := e.AddMetrics("api", map[string]float64{"cpu_usage": 98}, ts.Add(time.Minute)); n != 0 {
		t.Errorf("duplicate breach: admitted = %d, want 0", n)
	}
	// A different service is its own dedup key.
	if n := e.AddMetrics("worker", map[string]float64{"cpu_usage": 97}, ts.Add(time.Minute)); n != 1 {
		t.Errorf("other service: admitted = %d, want 1", n)
	}
}

func TestDedupExpiresAfterCooldown(t *testing.T) {
	e := newTestEngine(EngineConfig{DedupCooldown: time.Minute, HistoryLimit: 100, EnableThreshold: true})
	ts := time.Now()

	if n := e.AddMetrics("api", map[string]float64{"cpu_usage": 97}, ts); n != 1 {
		t.Fatalf("first breach: admitted = %d, want 1", n)
	}
	if n := e.AddMetrics("api", map[string]float64{"cpu_usage": 97}, ts.Add(2*time.Minute)); n != 1 {
		t.Errorf("post-cooldown breach: admitted = %d, want 1", n)
	}
}

func TestResolveReopensDedup(t *testing.T) {
	e := newTestEngine(DefaultEngineConfig())
	ts := time.Now()

	e.AddMetrics("api", map[string]float64{"cpu_usage": 97}, ts)
	active := e.ActiveAnomalies("api", "")
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}

	if !e.Resolve(active[0].ID, "restarted pod") {
		t.Fatal("resolve failed for known id")
	}
	if e.Resolve(active[0].ID, "again") {
		t.Error("second resolve should fail")
	}
	if e.Resolve(uuid.New(), "unknown") {
		t.Error("resolve of unknown id should fail")
	}
	if got := e.ActiveAnomalies("api", ""); len(got) != 0 {
		t.Errorf("active after resolve = %d, want 0", len(got))
	}

	// Resolution clears the dedup guard for the key.
	if n := e.AddMetrics("api", map[string]float64{"cpu_usage": 97}, ts.Add(time.Minute)); n != 1 {
		t.Errorf("breach after resolve: admitted = %d, want 1", n)
	}
}

func TestActiveAnomalyFilters(t *testing.T) {
	e := newTestEngine(DefaultEngineConfig())
	ts := time.Now()

	e.AddMetrics("api", map[string]float64{"cpu_usage": 97}, ts)       // critical
	e.AddMetrics("worker", map[string]float64{"error_rate": 6}, ts)    // warning
	e.AddMetrics("worker", map[string]float64{"memory_usage": 99}, ts) // critical

	if got := e.ActiveAnomalies("", ""); len(got) != 3 {
		t.Errorf("unfiltered = %d, want 3", len(got))
	}
	if got := e.ActiveAnomalies("worker", ""); len(got) != 2 {
		t.Errorf("service filter = %d, want 2", len(got))
	}
	if got := e.ActiveAnomalies("", types.SeverityCritical); len(got) != 2 {
		t.Errorf("severity filter = %d, want 2", len(got))
	}
	if got := e.ActiveAnomalies("worker", types.SeverityWarning); len(got) != 1 {
		t.Errorf("combined filter = %d, want 1", len(got))
	}
}

func TestCallbackDispatchAndPanicIsolation(t *testing.T) {
	e := newTestEngine(DefaultEngineConfig())

	var received []types.Anomaly
	e.RegisterAlertCallback(func(a types.Anomaly) {
		panic("subscriber bug")
	})
	e.RegisterAlertCallback(func(a types.Anomaly) {
		received = append(received, a)
	})

	n := e.AddMetrics("api", map[string]float64{"cpu_usage": 97}, time.Now())
	if n != 1 {
		t.Fatalf("admitted = %d, want 1", n)
	}
	if len(received) != 1 {
		t.Fatalf("second callback received %d anomalies, want 1", len(received))
	}
	if received[0].Service != "api" {
		t.Errorf("callback anomaly service = %s, want api", received[0].Service)
	}
}

func TestDetectorToggle(t *testing.T) {
	e := newTestEngine(EngineConfig{
		DedupCooldown: time.Minute,
		HistoryLimit:  100,
		// All detectors disabled.
	})
	if n := e.AddMetrics("api", map[string]float64{"cpu_usage": 99}, time.Now()); n != 0 {
		t.Errorf("admitted = %d with all detectors disabled, want 0", n)
	}
}

func TestSummaryCounts(t *testing.T) {
	e := newTestEngine(DefaultEngineConfig())
	ts := time.Now()

	e.AddMetrics("api", map[string]float64{"cpu_usage": 97}, ts)
	e.AddMetrics("worker", map[string]float64{"error_rate": 6}, ts)

	active := e.ActiveAnomalies("worker", "")
	if len(active) != 1 {
		t.Fatalf("active = %d, want 1", len(active))
	}
	e.Resolve(active[0].ID, "noise")

	s := e.Summary(24)
	if s.Total != 2 {
		t.Errorf("total = %d, want 2", s.Total)
	}
	if s.Active != 1 {
		t.Errorf("active = %d, want 1", s.Active)
	}
	if s.BySeverity[types.SeverityCritical] != 1 {
		t.Errorf("critical = %d, want 1", s.BySeverity[types.SeverityCritical])
	}
	if s.ByMethod[types.MethodThreshold] != 2 {
		t.Errorf("threshold count = %d, want 2", s.ByMethod[types.MethodThreshold])
	}
	if s.ByService["api"] != 1 || s.ByService["worker"] != 1 {
		t.Errorf("by service = %v", s.ByService)
	}
	if s.WindowHours != 24 {
		t.Errorf("window = %d, want 24", s.WindowHours)
	}
}
