// Package store persists the control loop's outputs: detected anomalies,
// ingested cost points, and scaling decisions. Persistence is best-effort;
// the in-memory pipeline is authoritative and a store failure never blocks
// detection or scaling.
package store

import (
	"context"
	"time"
)

// Store is the persistence interface for the pipeline history.
type Store interface {
	AnomalyStore
	CostStore
	DecisionStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// AnomalyRecord is the DB representation of a detected anomaly.
type AnomalyRecord struct {
	ID          string    `json:"id"`
	Service     string    `json:"service"`
	Metric      string    `json:"metric"`
	AnomalyType string    `json:"anomaly_type"`
	Severity    string    `json:"severity"`
	Method      string    `json:"method"`
	Score       float64   `json:"score"`
	Expected    float64   `json:"expected"`
	Actual      float64   `json:"actual"`
	Description string    `json:"description"`
	Resolved    bool      `json:"resolved"`
	DetectedAt  time.Time `json:"detected_at"`
}

// AnomalyQuery filters anomaly history queries.
type AnomalyQuery struct {
	Service  string
	Severity string
	From     time.Time
	To       time.Time
	Limit    int
}

// AnomalyStore persists anomaly history.
type AnomalyStore interface {
	// AppendAnomaly stores a detected anomaly event.
	AppendAnomaly(ctx context.Context, rec *AnomalyRecord) error

	// MarkAnomalyResolved flips the resolved flag for an anomaly.
	MarkAnomalyResolved(ctx context.Context, id string, note string) error

	// QueryAnomalies retrieves anomalies with optional filters, newest first.
	QueryAnomalies(ctx context.Context, q AnomalyQuery) ([]*AnomalyRecord, error)

	// AnomalyCounts returns counts grouped by severity for a time window.
	AnomalyCounts(ctx context.Context, from, to time.Time) (map[string]int, error)
}

// CostPointRecord is a persisted cost observation.
type CostPointRecord struct {
	ID         int64     `json:"id"`
	Service    string    `json:"service"`
	Category   string    `json:"category"`
	Amount     float64   `json:"amount"`
	RecordedAt time.Time `json:"recorded_at"`
}

// CostAnomalyRecord is a persisted cost anomaly.
type CostAnomalyRecord struct {
	ID         string    `json:"id"`
	Service    string    `json:"service"`
	Category   string    `json:"category"`
	Severity   string    `json:"severity"`
	Direction  string    `json:"direction"`
	Score      float64   `json:"score"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	DetectedAt time.Time `json:"detected_at"`
}

// CostStore persists cost observations and cost anomalies.
type CostStore interface {
	// AppendCostPoint stores a cost observation.
	AppendCostPoint(ctx context.Context, rec *CostPointRecord) error

	// QueryCostPoints retrieves points for a service/category window,
	// oldest first. Empty service or category match everything.
	QueryCostPoints(ctx context.Context, service, category string, from, to time.Time, limit int) ([]*CostPointRecord, error)

	// AppendCostAnomaly stores a cost anomaly.
	AppendCostAnomaly(ctx context.Context, rec *CostAnomalyRecord) error

	// QueryCostAnomalies retrieves cost anomalies in a window, newest first.
	QueryCostAnomalies(ctx context.Context, from, to time.Time, limit int) ([]*CostAnomalyRecord, error)
}

// DecisionRecord is a persisted scaling decision.
type DecisionRecord struct {
	ID              string    `json:"id"`
	Service         string    `json:"service"`
	Action          string    `json:"action"`
	TargetInstances int       `json:"target_instances"`
	Confidence      float64   `json:"confidence"`
	Reasoning       string    `json:"reasoning"`
	CostImpact      float64   `json:"cost_impact"`
	DecidedAt       time.Time `json:"decided_at"`
}

// DecisionStore persists the scaling decision ledger.
type DecisionStore interface {
	// AppendDecision stores a scaling decision.
	AppendDecision(ctx context.Context, rec *DecisionRecord) error

	// QueryDecisions retrieves decisions for a service, newest first.
	// Empty service matches everything.
	QueryDecisions(ctx context.Context, service string, limit int) ([]*DecisionRecord, error)
}
