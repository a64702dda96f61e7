package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opspulse/opspulse/internal/metrics"
	"github.com/opspulse/opspulse/pkg/types"
)

// ─── Request payloads ────────────────────────────────────────────────────────

// ingestMetricsRequest carries one batch of named metric values for a service.
type ingestMetricsRequest struct {
	Service   string             `json:"service"`
	Metrics   map[string]float64 `json:"metrics"`
	Timestamp time.Time          `json:"timestamp,omitempty"`
}

// resolveAnomalyRequest marks an anomaly as handled.
type resolveAnomalyRequest struct {
	ID   string `json:"id"`
	Note string `json:"note,omitempty"`
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v interface{}) {
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// instrument records request duration for a route.
func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		metrics.HTTPRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	}
}

// queryInt parses an integer query param, falling back to def when absent
// or malformed.
func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// ─── Health ──────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonOK(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.IsRunning() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	jsonOK(w, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// ─── Metric ingestion ────────────────────────────────────────────────────────

// handleIngestMetrics — POST /api/v1/metrics
//
// Body: {"service": "checkout", "metrics": {"cpu_usage": 91.2}, "timestamp": ...}
// Returns the number of anomalies the batch triggered.
func (s *Server) handleIngestMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ingestMetricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Service == "" {
		http.Error(w, "service is required", http.StatusBadRequest)
		return
	}
	if len(req.Metrics) == 0 {
		http.Error(w, "metrics map cannot be empty", http.StatusBadRequest)
		return
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	detected := s.pipeline.AddMetric(r.Context(), req.Service, req.Metrics, ts)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"service":            req.Service,
		"ingested":           len(req.Metrics),
		"anomalies_detected": detected,
		"timestamp":          ts,
	})
}

// ─── Cost ingestion ──────────────────────────────────────────────────────────

// handleCosts — POST /api/v1/costs
//
// Body: a types.CostDataPoint. Returns the cost anomaly the point triggered,
// if any.
func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var point types.CostDataPoint
	if err := json.NewDecoder(r.Body).Decode(&point); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if point.Service == "" {
		http.Error(w, "service is required", http.StatusBadRequest)
		return
	}
	if point.Category == "" {
		http.Error(w, "category is required", http.StatusBadRequest)
		return
	}
	if point.Amount < 0 {
		http.Error(w, "amount cannot be negative", http.StatusBadRequest)
		return
	}

	anomaly := s.pipeline.AddCostPoint(r.Context(), point)

	resp := map[string]interface{}{
		"service":   point.Service,
		"category":  point.Category,
		"timestamp": time.Now(),
	}
	if anomaly != nil {
		resp["anomaly"] = anomaly
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// ─── Anomaly queries ─────────────────────────────────────────────────────────

// handleAnomalies — GET /api/v1/anomalies
//
//	Query params:
//	  service   — filter by service (optional)
//	  severity  — minimum severity: info, warning, critical, emergency (optional)
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	service := r.URL.Query().Get("service")
	severity := types.Severity(r.URL.Query().Get("severity"))
	if severity != "" && severity.Rank() < 0 {
		http.Error(w, "invalid severity: "+string(severity), http.StatusBadRequest)
		return
	}

	anomalies := s.pipeline.GetActiveAnomalies(service, severity)
	jsonOK(w, map[string]interface{}{
		"anomalies": anomalies,
		"total":     len(anomalies),
		"timestamp": time.Now(),
	})
}

// handleAnomalySummary — GET /api/v1/anomalies/summary?hours=24
func (s *Server) handleAnomalySummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hours := queryInt(r, "hours", 24)
	jsonOK(w, s.pipeline.GetAnomalySummary(hours))
}

// handleResolveAnomaly — POST /api/v1/anomalies/resolve
func (s *Server) handleResolveAnomaly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req resolveAnomalyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		http.Error(w, "invalid anomaly id: "+req.ID, http.StatusBadRequest)
		return
	}

	if !s.pipeline.ResolveAnomaly(r.Context(), id, req.Note) {
		http.Error(w, "anomaly not found: "+req.ID, http.StatusNotFound)
		return
	}
	s.log.Info("anomaly resolved via api", zap.String("id", req.ID))
	jsonOK(w, map[string]interface{}{
		"id":       req.ID,
		"resolved": true,
	})
}

// ─── Cost queries ────────────────────────────────────────────────────────────

// handleCostForecast — GET /api/v1/costs/forecast?service=checkout&hours=24
//
// Omitting service forecasts every known (service, category) pair.
func (s *Server) handleCostForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	service := r.URL.Query().Get("service")
	hours := queryInt(r, "hours", 24)
	if hours > 168 {
		http.Error(w, "hours cannot exceed 168", http.StatusBadRequest)
		return
	}
	jsonOK(w, s.pipeline.GetCostForecast(r.Context(), service, hours))
}

// handleCostAnomalies — GET /api/v1/costs/anomalies?hours=24
func (s *Server) handleCostAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hours := queryInt(r, "hours", 24)
	anomalies := s.pipeline.GetCostAnomalies(hours)
	jsonOK(w, map[string]interface{}{
		"anomalies": anomalies,
		"total":     len(anomalies),
		"hours":     hours,
		"timestamp": time.Now(),
	})
}

// ─── Scaling ─────────────────────────────────────────────────────────────────

// handleScalingEvaluate — POST /api/v1/scaling/evaluate
//
// Body: a types.ResourceMetrics utilization snapshot. Returns the scaling
// decision for the service.
func (s *Server) handleScalingEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var snapshot types.ResourceMetrics
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if snapshot.Service == "" {
		http.Error(w, "service is required", http.StatusBadRequest)
		return
	}
	if snapshot.InstanceCount < 1 {
		http.Error(w, "instance_count must be at least 1", http.StatusBadRequest)
		return
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now()
	}

	jsonOK(w, s.pipeline.EvaluateAndScale(r.Context(), snapshot))
}

// handleScalingHistory — GET /api/v1/scaling/history?service=checkout
func (s *Server) handleScalingHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	service := r.URL.Query().Get("service")
	if service == "" {
		http.Error(w, "service is required", http.StatusBadRequest)
		return
	}
	history := s.pipeline.ScalingHistory(service)
	jsonOK(w, map[string]interface{}{
		"service":   service,
		"decisions": history,
		"total":     len(history),
	})
}
