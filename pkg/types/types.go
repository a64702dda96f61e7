// Package types defines the core data types shared by the OpsPulse
// operational intelligence pipeline: metric points, anomalies, cost data,
// and scaling decisions.
package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AnomalyType classifies what kind of operational problem an anomaly
// represents.
type AnomalyType string

const (
	AnomalyTypePerformance  AnomalyType = "performance"
	AnomalyTypeResource     AnomalyType = "resource"
	AnomalyTypeCost         AnomalyType = "cost"
	AnomalyTypeErrorRate    AnomalyType = "error_rate"
	AnomalyTypeSecurity     AnomalyType = "security"
	AnomalyTypeAvailability AnomalyType = "availability"
)

// Severity represents anomaly severity levels, ordered from least to most
// severe.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// Rank returns the numeric order of a severity (info=0 .. emergency=3).
// Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	case SeverityEmergency:
		return 3
	}
	return -1
}

// DetectionMethod identifies which detector produced an anomaly.
type DetectionMethod string

const (
	MethodStatistical  DetectionMethod = "statistical"
	MethodMultivariate DetectionMethod = "multivariate"
	MethodThreshold    DetectionMethod = "threshold"
	MethodTrend        DetectionMethod = "trend"
)

// MetricPoint is a single ingested observation. Points are immutable and
// only live inside the detectors' rolling windows.
type MetricPoint struct {
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Metric    string            `json:"metric"`
	Value     float64           `json:"value"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Anomaly is a detected deviation of an observed value from its expected
// baseline. Created by a detector; only the engine mutates it, and only to
// mark resolution.
type Anomaly struct {
	ID               uuid.UUID          `json:"id"`
	Timestamp        time.Time          `json:"timestamp"`
	Service          string             `json:"service"`
	Metric           string             `json:"metric"`
	Type             AnomalyType        `json:"type"`
	Severity         Severity           `json:"severity"`
	Method           DetectionMethod    `json:"detection_method"`
	Score            float64            `json:"score"` // normalized, 0..1 range after capping
	ExpectedValue    float64            `json:"expected_value"`
	ActualValue      float64            `json:"actual_value"`
	Context          map[string]float64 `json:"context,omitempty"`
	Description      string             `json:"description"`
	SuggestedActions []string           `json:"suggested_actions,omitempty"`
	Resolved         bool               `json:"resolved"`
	ResolvedAt       *time.Time         `json:"resolved_at,omitempty"`
	ResolutionNote   string             `json:"resolution_note,omitempty"`
}

// AnomalySummary is a rolling breakdown of detected anomalies over a
// look-back window.
type AnomalySummary struct {
	WindowHours     int                     `json:"window_hours"`
	Total           int                     `json:"total"`
	Active          int                     `json:"active"`
	BySeverity      map[Severity]int        `json:"by_severity"`
	ByService       map[string]int          `json:"by_service"`
	ByType          map[AnomalyType]int     `json:"by_type"`
	ByMethod        map[DetectionMethod]int `json:"by_method"`
	Recommendations []string                `json:"recommendations,omitempty"`
	GeneratedAt     time.Time               `json:"generated_at"`
}

// ClassifyMetric infers the anomaly type from a metric name.
func ClassifyMetric(metric string) AnomalyType {
	m := strings.ToLower(metric)
	switch {
	case strings.Contains(m, "latency"), strings.Contains(m, "response"):
		return AnomalyTypePerformance
	case strings.Contains(m, "cpu"), strings.Contains(m, "memory"), strings.Contains(m, "disk"):
		return AnomalyTypeResource
	case strings.Contains(m, "cost"), strings.Contains(m, "billing"):
		return AnomalyTypeCost
	case strings.Contains(m, "error"), strings.Contains(m, "failure"):
		return AnomalyTypeErrorRate
	case strings.Contains(m, "security"), strings.Contains(m, "auth"):
		return AnomalyTypeSecurity
	}
	return AnomalyTypeAvailability
}
