package audit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		MaxAge:       7,
		Compress:     false,
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	if logger == nil {
		t.Fatal("Expected logger to be non-nil")
	}
}

func TestNewLoggerWithInvalidLevel(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "invalid",
	}

	_, err := NewLogger(config)
	if err == nil {
		t.Fatal("Expected error for invalid log level")
	}

	if !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("Expected 'invalid log level' error, got: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.AuditLogPath != "logs/audit.log" {
		t.Errorf("Expected audit log path 'logs/audit.log', got %s", config.AuditLogPath)
	}

	if config.AppLogPath != "logs/app.log" {
		t.Errorf("Expected app log path 'logs/app.log', got %s", config.AppLogPath)
	}

	if config.MaxSize != 100 {
		t.Errorf("Expected max size 100, got %d", config.MaxSize)
	}

	if config.MaxBackups != 10 {
		t.Errorf("Expected max backups 10, got %d", config.MaxBackups)
	}

	if config.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got %s", config.LogLevel)
	}
}

func TestLogEvent(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		MaxSize:      10,
		MaxBackups:   3,
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()
	event := NewEvent(EventAnomalyDetected).
		WithCorrelationID("test-123").
		WithService("checkout").
		WithMetric("error_rate").
		WithResult(ResultSuccess)

	if err := logger.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	// Force flush
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	// Verify log file was created
	if _, err := os.Stat(config.AuditLogPath); os.IsNotExist(err) {
		t.Fatal("Audit log file was not created")
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, "test-123") {
		t.Error("Log does not contain correlation ID")
	}

	if !strings.Contains(logContent, "anomaly.detected") {
		t.Error("Log does not contain event type")
	}

	if !strings.Contains(logContent, "checkout") {
		t.Error("Log does not contain service")
	}
}

func TestLogAnomalyLifecycle(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()
	anomalyID := "anom-456"

	if err := logger.LogAnomalyDetected(ctx, anomalyID, "checkout", "latency_p99", "critical"); err != nil {
		t.Fatalf("LogAnomalyDetected failed: %v", err)
	}

	if err := logger.LogAnomalyResolved(ctx, anomalyID, "deploy rolled back"); err != nil {
		t.Fatalf("LogAnomalyResolved failed: %v", err)
	}

	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, anomalyID) {
		t.Error("Log does not contain anomaly ID")
	}

	if !strings.Contains(logContent, "anomaly.detected") {
		t.Error("Log does not contain detected event")
	}

	if !strings.Contains(logContent, "anomaly.resolved") {
		t.Error("Log does not contain resolved event")
	}
}

func TestLogScalingDecision(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()

	if err := logger.LogScalingDecision(ctx, "dec-1", "api", "scale_up", 4, 0.82); err != nil {
		t.Fatalf("LogScalingDecision failed: %v", err)
	}

	if err := logger.LogCostAnomaly(ctx, "ca-1", "billing", "ai_processing", "high", "spike"); err != nil {
		t.Fatalf("LogCostAnomaly failed: %v", err)
	}

	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	logContent := string(content)
	if !strings.Contains(logContent, "scaling.decision") {
		t.Error("Log does not contain scaling decision event")
	}

	if !strings.Contains(logContent, "scale_up") {
		t.Error("Log does not contain action")
	}

	if !strings.Contains(logContent, "cost.anomaly_detected") {
		t.Error("Log does not contain cost anomaly event")
	}
}

func TestBufferAutoFlush(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		event := NewEvent(EventHealthCheck).
			WithCorrelationID("test").
			WithResult(ResultSuccess)

		if err := logger.Log(ctx, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	// Wait for auto-flush (1 second ticker)
	time.Sleep(1500 * time.Millisecond)

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	if len(content) == 0 {
		t.Error("Audit log is empty after auto-flush")
	}
}

func TestBufferFullFlush(t *testing.T) {
	tmpDir := t.TempDir()

	config := &Config{
		AuditLogPath: filepath.Join(tmpDir, "audit.log"),
		AppLogPath:   filepath.Join(tmpDir, "app.log"),
		LogLevel:     "info",
	}

	logger, err := NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	ctx := context.Background()

	// Log 100+ events to trigger buffer flush
	for i := 0; i < 105; i++ {
		event := NewEvent(EventHealthCheck).
			WithCorrelationID("test").
			WithResult(ResultSuccess)

		if err := logger.Log(ctx, event); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	content, err := os.ReadFile(config.AuditLogPath)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}

	// Count number of events (each event is a JSON line)
	lines := strings.Split(string(content), "\n")
	eventCount := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			eventCount++
		}
	}

	if eventCount < 105 {
		t.Errorf("Expected at least 105 events, got %d", eventCount)
	}
}

func TestCorrelationID(t *testing.T) {
	id1 := GenerateCorrelationID()
	id2 := GenerateCorrelationID()

	if id1 == id2 {
		t.Error("Generated correlation IDs should be unique")
	}

	ctx := context.Background()

	// Without correlation ID
	if id := GetCorrelationID(ctx); id != "" {
		t.Errorf("Expected empty correlation ID, got %s", id)
	}

	// With correlation ID
	ctx = WithCorrelationID(ctx, "test-correlation-id")
	if id := GetCorrelationID(ctx); id != "test-correlation-id" {
		t.Errorf("Expected 'test-correlation-id', got %s", id)
	}
}

func TestEventBuilderChain(t *testing.T) {
	event := NewEvent(EventScalingDecision).
		WithCorrelationID("corr-123").
		WithService("api").
		WithMetric("request_rate").
		WithAction("scale_up").
		WithDescription("Scaling api to 4 instances").
		WithResult(ResultSuccess).
		WithDuration(3 * time.Second).
		WithMetadata("reason", "predicted load spike")

	if event.CorrelationID != "corr-123" {
		t.Errorf("Expected correlation ID 'corr-123', got %s", event.CorrelationID)
	}

	if event.Service != "api" {
		t.Errorf("Expected service 'api', got %s", event.Service)
	}

	if event.Metric != "request_rate" {
		t.Errorf("Expected metric 'request_rate', got %s", event.Metric)
	}

	if event.Action != "scale_up" {
		t.Errorf("Expected action 'scale_up', got %s", event.Action)
	}

	if event.Result != ResultSuccess {
		t.Errorf("Expected result 'success', got %s", event.Result)
	}

	if event.DurationMs != 3000 {
		t.Errorf("Expected duration 3000ms, got %d", event.DurationMs)
	}

	if reason, ok := event.Metadata["reason"].(string); !ok || reason != "predicted load spike" {
		t.Errorf("Expected metadata reason 'predicted load spike', got %v", event.Metadata["reason"])
	}
}

func TestEventJSONSerialization(t *testing.T) {
	event := NewEvent(EventAnomalyDetected).
		WithCorrelationID("anom-789").
		WithService("search").
		WithResult(ResultSuccess)

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal event: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}

	if decoded.CorrelationID != "anom-789" {
		t.Errorf("Expected correlation ID 'anom-789', got %s", decoded.CorrelationID)
	}

	if decoded.Service != "search" {
		t.Errorf("Expected service 'search', got %s", decoded.Service)
	}

	if decoded.EventType != EventAnomalyDetected {
		t.Errorf("Expected event type 'anomaly.detected', got %s", decoded.EventType)
	}

	if decoded.Result != ResultSuccess {
		t.Errorf("Expected result 'success', got %s", decoded.Result)
	}
}
