// Command server runs the OpsPulse operational intelligence server.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Wire the pipeline: anomaly engine, cost forecaster, scaling orchestrator
//   - Open the SQLite history store (degraded in-memory mode if it fails)
//   - Serve the REST API, the WebSocket alert stream, and /metrics
//   - Shut down gracefully on SIGINT/SIGTERM
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opspulse/opspulse/internal/analytics"
	"github.com/opspulse/opspulse/internal/audit"
	"github.com/opspulse/opspulse/internal/cache"
	"github.com/opspulse/opspulse/internal/config"
	"github.com/opspulse/opspulse/internal/core"
	"github.com/opspulse/opspulse/internal/cost"
	"github.com/opspulse/opspulse/internal/scaling"
	"github.com/opspulse/opspulse/internal/server"
	"github.com/opspulse/opspulse/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default /etc/opspulse/config.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "opspulse: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	var mgr config.ConfigManager
	var err error
	if configPath == "" {
		mgr, err = config.NewConfigManagerWithDefaults()
	} else {
		mgr, err = config.NewConfigManager(configPath)
	}
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return err
	}
	cfg := mgr.Get(ctx)

	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	auditLog, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Logging.AuditLogPath,
		AppLogPath:   cfg.Logging.AppLogPath,
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("create audit logger: %w", err)
	}
	defer auditLog.Close()

	// Persistence is best-effort: a broken store degrades the server to
	// in-memory operation instead of refusing to start.
	var st store.Store
	if cfg.Database.Enabled {
		st, err = store.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			log.Warn("store unavailable, running without persistence",
				zap.String("path", cfg.Database.SQLitePath), zap.Error(err))
			st = nil
		} else {
			defer st.Close()
		}
	}

	var forecastCache cache.Cache
	if cfg.Cache.EnableCaching {
		forecastCache = cache.New(time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.MaxEntries)
		defer forecastCache.Close()
	}

	engine := analytics.NewEngine(analytics.EngineConfig{
		DedupCooldown:      time.Duration(cfg.Detection.DedupCooldownMin) * time.Minute,
		HistoryLimit:       cfg.Detection.HistoryLimit,
		EnableStatistical:  cfg.Detection.EnableStatistical,
		EnableMultivariate: cfg.Detection.EnableMultivariate,
		EnableTrend:        cfg.Detection.EnableTrend,
		EnableThreshold:    cfg.Detection.EnableThreshold,
	}, log)

	predictorCfg := cost.DefaultPredictorConfig()
	predictorCfg.Alpha = cfg.Cost.RidgeAlpha
	predictorCfg.MinPerPair = cfg.Cost.MinPointsPerPair
	costPredictor := cost.NewPredictor(predictorCfg, log)

	detectorCfg := cost.DefaultDetectorConfig()
	detectorCfg.Sensitivity = cfg.Cost.Sensitivity
	costDetector := cost.NewDetector(detectorCfg, log)

	loadPredictor := scaling.NewLoadPredictor(scaling.DefaultLoadPredictorConfig(), log)
	optimizer := scaling.NewResourceOptimizer()
	orchestrator := scaling.NewOrchestrator(scaling.OrchestratorConfig{
		Cooldown:         time.Duration(cfg.Scaling.CooldownMin) * time.Minute,
		HorizonMinutes:   cfg.Scaling.HorizonMin,
		MaxScaleUpRate:   cfg.Scaling.MaxScaleUpRate,
		MaxScaleDownRate: cfg.Scaling.MaxScaleDownRate,
		MaxCostPerHour:   cfg.Scaling.MaxCostPerHour,
	}, loadPredictor, optimizer, nil, log)

	pipeline := core.New(core.Options{
		Engine:       engine,
		Predictor:    costPredictor,
		CostDetector: costDetector,
		Orchestrator: orchestrator,
		Store:        st,
		Audit:        auditLog,
		Cache:        forecastCache,
		EvalInterval: time.Duration(cfg.Scaling.EvalIntervalSec) * time.Second,
		Logger:       log,
	})
	defer pipeline.Close()

	srv, err := server.NewServer(server.FromAppConfig(cfg), pipeline, log)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	_ = auditLog.LogServerStarted(ctx, addr)
	log.Info("opspulse started", zap.String("addr", addr))

	// Periodic re-evaluation runs until shutdown.
	runCtx, cancelRun := context.WithCancel(ctx)
	go pipeline.Run(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received")
	cancelRun()
	if err := srv.Stop(); err != nil {
		log.Warn("server stop", zap.Error(err))
	}
	_ = auditLog.LogServerShutdown(ctx)
	log.Info("shutdown complete")
	return nil
}

// buildLogger constructs the process logger from the logging section.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Logging.Format == "text" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	return zc.Build()
}
