package types

import (
	"time"

	"github.com/google/uuid"
)

// CostCategory categorizes where spend is accrued.
type CostCategory string

const (
	CostCategoryCompute      CostCategory = "compute"
	CostCategoryAIProcessing CostCategory = "ai_processing"
	CostCategoryStorage      CostCategory = "storage"
	CostCategoryNetwork      CostCategory = "network"
	CostCategoryExternalAPIs CostCategory = "external_apis"
)

// CostTrend labels the direction of a cost forecast.
type CostTrend string

const (
	CostTrendIncreasing CostTrend = "increasing"
	CostTrendDecreasing CostTrend = "decreasing"
	CostTrendStable     CostTrend = "stable"
)

// CostDataPoint is a single observed cost amount for a service and category.
type CostDataPoint struct {
	Timestamp    time.Time          `json:"timestamp"`
	Service      string             `json:"service"`
	Category     CostCategory       `json:"category"`
	Amount       float64            `json:"amount"`
	UsageMetrics map[string]float64 `json:"usage_metrics,omitempty"`
	Metadata     map[string]string  `json:"metadata,omitempty"`
}

// CostPrediction is a derived forecast for one (service, category) pair.
// It is never stored; callers recompute as needed.
type CostPrediction struct {
	Service             string       `json:"service"`
	Category            CostCategory `json:"category"`
	HoursAhead          int          `json:"hours_ahead"`
	PredictedCost       float64      `json:"predicted_cost"`
	ConfidenceLow       float64      `json:"confidence_low"`
	ConfidenceHigh      float64      `json:"confidence_high"`
	Trend               CostTrend    `json:"trend"`
	HourlyForecast      []float64    `json:"hourly_forecast,omitempty"`
	ContributingFactors []string     `json:"contributing_factors,omitempty"`
	Recommendation      string       `json:"recommendation,omitempty"`
}

// ForecastReport aggregates predictions across services.
type ForecastReport struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	HoursAhead    int              `json:"hours_ahead"`
	Predictions   []CostPrediction `json:"predictions"`
	TotalForecast float64          `json:"total_forecast"`
	Skipped       []string         `json:"skipped,omitempty"` // pairs with insufficient data
}

// CostSeverity grades cost anomalies.
type CostSeverity string

const (
	CostSeverityNone   CostSeverity = "none"
	CostSeverityLow    CostSeverity = "low"
	CostSeverityMedium CostSeverity = "medium"
	CostSeverityHigh   CostSeverity = "high"
	CostSeveritySevere CostSeverity = "severe"
)

// CostAnomaly is a detected deviation from the cost baseline of a
// (service, category) pair.
type CostAnomaly struct {
	ID               uuid.UUID    `json:"id"`
	Timestamp        time.Time    `json:"timestamp"`
	Service          string       `json:"service"`
	Category         CostCategory `json:"category"`
	Severity         CostSeverity `json:"severity"`
	Score            float64      `json:"score"`
	ExpectedCost     float64      `json:"expected_cost"`
	ActualCost       float64      `json:"actual_cost"`
	Direction        string       `json:"direction"` // "spike" or "drop"
	Description      string       `json:"description"`
	SuggestedActions []string     `json:"suggested_actions,omitempty"`
}

// CostBaseline holds IQR-cleaned summary statistics for one
// (service, category) pair.
type CostBaseline struct {
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"std_dev"`
	Median      float64   `json:"median"`
	Q1          float64   `json:"q1"`
	Q3          float64   `json:"q3"`
	IQR         float64   `json:"iqr"`
	SampleCount int       `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}
