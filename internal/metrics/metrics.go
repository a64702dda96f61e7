package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics for production monitoring
var (
	// Ingestion metrics
	MetricPointsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_metric_points_ingested_total",
			Help: "Total number of metric points ingested",
		},
		[]string{"service"},
	)

	CostPointsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_cost_points_ingested_total",
			Help: "Total number of cost data points ingested",
		},
		[]string{"service", "category"},
	)

	// Detection metrics
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_anomalies_detected_total",
			Help: "Total number of anomalies admitted after deduplication",
		},
		[]string{"method", "severity"},
	)

	AnomaliesResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opspulse_anomalies_resolved_total",
			Help: "Total number of anomalies marked resolved",
		},
	)

	CostAnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_cost_anomalies_detected_total",
			Help: "Total number of cost anomalies detected",
		},
		[]string{"category", "severity"},
	)

	// Forecasting metrics
	ForecastsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_forecasts_generated_total",
			Help: "Total number of cost forecasts generated",
		},
		[]string{"status"}, // status: ok/insufficient_data/error
	)

	ForecastCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_forecast_cache_requests_total",
			Help: "Forecast cache lookups by outcome",
		},
		[]string{"outcome"}, // outcome: hit/miss
	)

	// Scaling metrics
	ScalingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_scaling_decisions_total",
			Help: "Total number of scaling decisions emitted",
		},
		[]string{"service", "action"},
	)

	ScalingConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opspulse_scaling_decision_confidence",
			Help:    "Confidence distribution of scaling decisions",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"action"},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opspulse_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"path", "method"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opspulse_websocket_connections",
			Help: "Current number of active WebSocket alert subscribers",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)

	// Persistence metrics
	StoreWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_store_write_failures_total",
			Help: "Total number of best-effort store writes that failed",
		},
		[]string{"record"},
	)
)
