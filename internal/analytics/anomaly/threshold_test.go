package anomaly

import (
	"testing"
	"time"

	"github.com/opspulse/opspulse/pkg/types"
)

func TestThresholdLevels(t *testing.T) {
	d := NewThresholdDetector(nil)
	ts := time.Now()

	tests := []struct {
		name   string
		metric string
		value  float64
		want   types.Severity // "" means no anomaly
	}{
		{"below warning", "cpu_usage", 79.9, ""},
		{"at warning", "cpu_usage", 80, types.SeverityWarning},
		{"between levels", "cpu_usage", 90, types.SeverityWarning},
		{"at critical", "cpu_usage", 95, types.SeverityCritical},
		{"above critical", "cpu_usage", 99, types.SeverityCritical},
		{"error rate warning", "error_rate", 6, types.SeverityWarning},
		{"error rate critical", "error_rate", 12, types.SeverityCritical},
		{"response time critical", "response_time", 6000, types.SeverityCritical},
		{"unknown metric ignored", "queue_depth", 1e9, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := d.Observe(point("api", tc.metric, tc.value, ts))
			if tc.want == "" {
				if a != nil {
					t.Fatalf("unexpected anomaly: %+v", a)
				}
				return
			}
			if a == nil {
				t.Fatal("expected anomaly, got nil")
			}
			if a.Severity != tc.want {
				t.Errorf("severity = %s, want %s", a.Severity, tc.want)
			}
			if a.Method != types.MethodThreshold {
				t.Errorf("method = %s, want threshold", a.Method)
			}
		})
	}
}

func TestThresholdScoreScalesWithValue(t *testing.T) {
	d := NewThresholdDetector(nil)
	ts := time.Now()

	a := d.Observe(point("api", "cpu_usage", 95, ts))
	if a == nil {
		t.Fatal("expected anomaly at critical level")
	}
	if a.Score != 1.0 {
		t.Errorf("score at critical = %.2f, want 1.0", a.Score)
	}

	b := d.Observe(point("api", "cpu_usage", 190, ts))
	if b == nil {
		t.Fatal("expected anomaly above critical level")
	}
	if b.Score != 2.0 {
		t.Errorf("score at 2x critical = %.2f, want 2.0", b.Score)
	}
}

func TestThresholdCustomLevels(t *testing.T) {
	d := NewThresholdDetector(map[string]ThresholdLevels{
		"queue_depth": {Warning: 100, Critical: 500},
	})
	ts := time.Now()

	if a := d.Observe(point("api", "cpu_usage", 99, ts)); a != nil {
		t.Error("default metric should not be covered by custom levels")
	}
	a := d.Observe(point("api", "queue_depth", 600, ts))
	if a == nil {
		t.Fatal("custom metric not flagged")
	}
	if a.Severity != types.SeverityCritical {
		t.Errorf("severity = %s, want critical", a.Severity)
	}
}
