// Package anomaly implements the four detectors of the OpsPulse pipeline:
// statistical (univariate baseline), multivariate (distance heuristic),
// trend/volatility, and static threshold.
//
// Detection philosophy follows classical statistics rather than trained
// models: every score is deterministic and reproducible for an identical
// ordered input sequence, and every flagged point can be explained in terms
// of its baseline.
package anomaly

import (
	"time"

	"github.com/opspulse/opspulse/internal/analytics/stats"
)

// Baseline holds IQR-fenced rolling statistics for one (service, metric)
// key. Values outside [Q1-1.5*IQR, Q3+1.5*IQR] are excluded before the
// summary statistics are taken, so a single extreme point cannot drag the
// baseline toward itself.
type Baseline struct {
	Mean      float64
	StdDev    float64
	Median    float64
	Q1        float64
	Q3        float64
	IQR       float64
	Count     int
	UpdatedAt time.Time
}

// computeBaseline builds a baseline from raw window values.
func computeBaseline(values []float64, now time.Time) Baseline {
	fenced := stats.FenceIQR(values, 1.5)
	s := stats.Summarize(fenced)
	return Baseline{
		Mean:      s.Mean,
		StdDev:    s.StdDev,
		Median:    s.Median,
		Q1:        s.Q1,
		Q3:        s.Q3,
		IQR:       s.IQR,
		Count:     s.Count,
		UpdatedAt: now,
	}
}

// window is a bounded FIFO of observed values per key.
type window struct {
	values     []float64
	timestamps []time.Time
	capacity   int
}

func newWindow(capacity int) *window {
	return &window{capacity: capacity}
}

func (w *window) push(ts time.Time, v float64) {
	if len(w.values) >= w.capacity {
		w.values = w.values[1:]
		w.timestamps = w.timestamps[1:]
	}
	w.values = append(w.values, v)
	w.timestamps = append(w.timestamps, ts)
}

func (w *window) len() int { return len(w.values) }

// snapshot returns a copy of the current values so callers can compute
// without holding the detector lock.
func (w *window) snapshot() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}
