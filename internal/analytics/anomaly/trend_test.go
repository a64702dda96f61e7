package anomaly

import (
	"testing"
	"time"

	"github.com/opspulse/opspulse/pkg/types"
)

func TestTrendNeedsHistory(t *testing.T) {
	d := NewTrendDetector(DefaultTrendConfig())
	ts := time.Now()

	// Fewer than 2x the recent split: never enough for a comparison.
	for i := 0; i < 19; i++ {
		v := float64(i * 100)
		if a := d.Observe(point("api", "request_rate", v, ts)); a != nil {
			t.Fatalf("point %d flagged without history: %+v", i, a)
		}
		ts = ts.Add(time.Minute)
	}
}

func TestTrendStableSeriesNotFlagged(t *testing.T) {
	d := NewTrendDetector(DefaultTrendConfig())
	ts := time.Now()

	for i := 0; i < 50; i++ {
		v := 100.0
		if i%2 == 1 {
			v = 102.0
		}
		if a := d.Observe(point("api", "request_rate", v, ts)); a != nil {
			t.Fatalf("stable point %d flagged: %+v", i, a)
		}
		ts = ts.Add(time.Minute)
	}
}

func TestTrendVolatilitySpike(t *testing.T) {
	d := NewTrendDetector(DefaultTrendConfig())
	ts := time.Now()

	// Quiet history: tiny alternation around 100.
	for i := 0; i < 40; i++ {
		v := 99.5
		if i%2 == 1 {
			v = 100.5
		}
		if a := d.Observe(point("api", "request_rate", v, ts)); a != nil {
			t.Fatalf("quiet point %d flagged: %+v", i, a)
		}
		ts = ts.Add(time.Minute)
	}

	// Recent split turns wild: same mean, 20x the dispersion.
	var last *types.Anomaly
	for i := 0; i < 10; i++ {
		v := 90.0
		if i%2 == 1 {
			v = 110.0
		}
		if a := d.Observe(point("api", "request_rate", v, ts)); a != nil {
			last = a
		}
		ts = ts.Add(time.Minute)
	}

	if last == nil {
		t.Fatal("volatility spike not flagged")
	}
	if last.Method != types.MethodTrend {
		t.Errorf("method = %s, want trend", last.Method)
	}
	if last.Context["volatility_ratio"] <= 3.0 {
		t.Errorf("volatility ratio = %.2f, want > 3", last.Context["volatility_ratio"])
	}
	if last.Severity != types.SeverityCritical {
		t.Errorf("severity = %s, want critical for a strong spike", last.Severity)
	}
}
