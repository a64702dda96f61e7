package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogAnomaly logs anomaly lifecycle events
	LogAnomalyDetected(ctx context.Context, id, service, metric, severity string) error
	LogAnomalyResolved(ctx context.Context, id, note string) error

	// LogCostAnomaly logs a detected cost anomaly
	LogCostAnomaly(ctx context.Context, id, service, category, severity, direction string) error

	// LogScalingDecision logs an emitted scaling decision
	LogScalingDecision(ctx context.Context, id, service, action string, targetInstances int, confidence float64) error

	// LogServerStarted and LogServerShutdown log lifecycle events
	LogServerStarted(ctx context.Context, addr string) error
	LogServerShutdown(ctx context.Context) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Audit logger with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel,
	)

	auditZapLogger := zap.New(auditCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogAnomalyDetected logs a newly admitted anomaly
func (l *auditLogger) LogAnomalyDetected(ctx context.Context, id, service, metric, severity string) error {
	event := NewEvent(EventAnomalyDetected).
		WithCorrelationID(id).
		WithService(service).
		WithMetric(metric).
		WithResult(ResultSuccess).
		WithMetadata("severity", severity).
		WithDescription(fmt.Sprintf("Anomaly detected on %s/%s (%s)", service, metric, severity))

	return l.Log(ctx, event)
}

// LogAnomalyResolved logs an anomaly resolution
func (l *auditLogger) LogAnomalyResolved(ctx context.Context, id, note string) error {
	event := NewEvent(EventAnomalyResolved).
		WithCorrelationID(id).
		WithResult(ResultSuccess).
		WithMetadata("note", note).
		WithDescription(fmt.Sprintf("Anomaly %s resolved", id))

	return l.Log(ctx, event)
}

// LogCostAnomaly logs a detected cost anomaly
func (l *auditLogger) LogCostAnomaly(ctx context.Context, id, service, category, severity, direction string) error {
	event := NewEvent(EventCostAnomalyDetected).
		WithCorrelationID(id).
		WithService(service).
		WithResult(ResultSuccess).
		WithMetadata("category", category).
		WithMetadata("severity", severity).
		WithMetadata("direction", direction).
		WithDescription(fmt.Sprintf("Cost %s on %s/%s (%s)", direction, service, category, severity))

	return l.Log(ctx, event)
}

// LogScalingDecision logs an emitted scaling decision
func (l *auditLogger) LogScalingDecision(ctx context.Context, id, service, action string, targetInstances int, confidence float64) error {
	event := NewEvent(EventScalingDecision).
		WithCorrelationID(id).
		WithService(service).
		WithAction(action).
		WithResult(ResultSuccess).
		WithMetadata("target_instances", targetInstances).
		WithMetadata("confidence", confidence).
		WithDescription(fmt.Sprintf("Scaling decision %s for %s: %d instances", action, service, targetInstances))

	return l.Log(ctx, event)
}

// LogServerStarted logs the server start event
func (l *auditLogger) LogServerStarted(ctx context.Context, addr string) error {
	event := NewEvent(EventServerStarted).
		WithResult(ResultSuccess).
		WithMetadata("addr", addr).
		WithDescription(fmt.Sprintf("Server started on %s", addr))

	return l.Log(ctx, event)
}

// LogServerShutdown logs the server shutdown event
func (l *auditLogger) LogServerShutdown(ctx context.Context) error {
	event := NewEvent(EventServerShutdown).
		WithResult(ResultSuccess).
		WithDescription("Server shut down")

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

type correlationKey struct{}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
