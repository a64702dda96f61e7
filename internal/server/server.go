// Package server exposes the operational intelligence pipeline over HTTP:
// metric and cost ingestion, anomaly queries, cost forecasts, scaling
// evaluation, and a WebSocket alert stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/opspulse/opspulse/internal/core"
	"github.com/opspulse/opspulse/internal/middleware"
)

// Server serves the OpsPulse HTTP API.
type Server struct {
	config   *Config
	pipeline *core.Pipeline
	hub      *AlertHub
	limiter  *middleware.RateLimiter
	log      *zap.Logger

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// NewServer creates a server around an existing pipeline.
func NewServer(cfg *Config, pipeline *core.Pipeline, log *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config:   cfg,
		pipeline: pipeline,
		hub:      NewAlertHub(log),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}

	if cfg.RateLimitPerMin > 0 {
		srv.limiter = middleware.NewRateLimiter(cfg.RateLimitPerMin)
	}

	// Every admitted anomaly fans out to connected WebSocket clients.
	pipeline.RegisterAlertCallback(srv.hub.BroadcastAnomaly)

	return srv, nil
}

// Start starts the HTTP listener.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("http server listening",
			zap.String("addr", s.httpServer.Addr),
			zap.Bool("tls", s.config.TLSEnabled))

		var err error
		if s.config.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.config.TLSCertPath, s.config.TLSKeyPath)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http shutdown error", zap.Error(err))
		}
	}

	s.hub.Close()
	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.cancel()
	s.wg.Wait()

	return nil
}

// Wait blocks until the server is stopped.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning reports whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// registerHandlers registers the HTTP routes.
func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	// Ingest routes sit behind the rate limiter; read routes do not.
	mux.HandleFunc("/api/v1/metrics", s.limited(s.instrument("/api/v1/metrics", s.handleIngestMetrics)))
	mux.HandleFunc("/api/v1/costs", s.limited(s.instrument("/api/v1/costs", s.handleCosts)))

	mux.HandleFunc("/api/v1/anomalies", s.instrument("/api/v1/anomalies", s.handleAnomalies))
	mux.HandleFunc("/api/v1/anomalies/summary", s.instrument("/api/v1/anomalies/summary", s.handleAnomalySummary))
	mux.HandleFunc("/api/v1/anomalies/resolve", s.instrument("/api/v1/anomalies/resolve", s.handleResolveAnomaly))

	mux.HandleFunc("/api/v1/costs/forecast", s.instrument("/api/v1/costs/forecast", s.handleCostForecast))
	mux.HandleFunc("/api/v1/costs/anomalies", s.instrument("/api/v1/costs/anomalies", s.handleCostAnomalies))

	mux.HandleFunc("/api/v1/scaling/evaluate", s.instrument("/api/v1/scaling/evaluate", s.handleScalingEvaluate))
	mux.HandleFunc("/api/v1/scaling/history", s.instrument("/api/v1/scaling/history", s.handleScalingHistory))

	mux.HandleFunc("/api/v1/alerts/stream", s.handleAlertStream)
}

// limited wraps a handler with the rate limiter when one is configured.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Middleware(next)
}
