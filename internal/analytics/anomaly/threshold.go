package anomaly

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/opspulse/opspulse/pkg/types"
)

// ThresholdLevels holds a static warning/critical pair for one metric.
type ThresholdLevels struct {
	Warning  float64
	Critical float64
}

// DefaultThresholds covers the common operational ceilings. These catch
// anomalies with no history (cold start) regardless of statistical baseline.
func DefaultThresholds() map[string]ThresholdLevels {
	return map[string]ThresholdLevels{
		"cpu_usage":     {Warning: 80, Critical: 95},
		"memory_usage":  {Warning: 85, Critical: 95},
		"disk_usage":    {Warning: 80, Critical: 95},
		"error_rate":    {Warning: 5, Critical: 10},
		"response_time": {Warning: 1000, Critical: 5000},
	}
}

// ThresholdDetector is a stateless comparison against static per-metric
// ceilings.
type ThresholdDetector struct {
	thresholds map[string]ThresholdLevels
}

// NewThresholdDetector creates a detector; nil thresholds get the defaults.
func NewThresholdDetector(thresholds map[string]ThresholdLevels) *ThresholdDetector {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &ThresholdDetector{thresholds: thresholds}
}

// Observe compares the point against its metric's static levels.
func (d *ThresholdDetector) Observe(p types.MetricPoint) *types.Anomaly {
	levels, ok := d.thresholds[p.Metric]
	if !ok {
		return nil
	}
	if p.Value < levels.Warning {
		return nil
	}

	severity := types.SeverityWarning
	expected := levels.Warning
	if p.Value >= levels.Critical {
		severity = types.SeverityCritical
		expected = levels.Critical
	}

	score := 0.0
	if levels.Critical > 0 {
		score = p.Value / levels.Critical
	}

	return &types.Anomaly{
		ID:            uuid.New(),
		Timestamp:     p.Timestamp,
		Service:       p.Service,
		Metric:        p.Metric,
		Type:          types.ClassifyMetric(p.Metric),
		Severity:      severity,
		Method:        types.MethodThreshold,
		Score:         score,
		ExpectedValue: expected,
		ActualValue:   p.Value,
		Description: fmt.Sprintf("%s on %s at %.2f exceeds static %s threshold %.2f",
			p.Metric, p.Service, p.Value, severity, expected),
		SuggestedActions: suggestForMetric(p.Metric),
	}
}
