package config

import "context"

// Package config provides configuration management for opspulse.
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (OPSPULSE_* prefix)
//   2. YAML config file (default: /etc/opspulse/config.yaml)
//   3. Built-in defaults
//
// Config struct contains all configuration fields
type Config struct {
	// Server configuration
	Server struct {
		Port        int
		TLSEnabled  bool
		TLSCertPath string
		TLSKeyPath  string
		// AllowedOrigins is a list of origins permitted to open WebSocket
		// connections. Use ["*"] to allow any origin (development only).
		AllowedOrigins []string
		// RateLimitPerMin caps ingest requests per client per minute.
		RateLimitPerMin int
	}

	// Detection configuration
	Detection struct {
		EnableStatistical   bool
		EnableMultivariate  bool
		EnableTrend         bool
		EnableThreshold     bool
		DedupCooldownMin    int // minutes
		HistoryLimit        int
	}

	// Cost configuration
	Cost struct {
		RidgeAlpha       float64
		MinPointsPerPair int
		Sensitivity      float64
		ForecastHours    int
	}

	// Scaling configuration
	Scaling struct {
		CooldownMin      int // minutes
		HorizonMin       int // minutes
		MaxScaleUpRate   float64
		MaxScaleDownRate float64
		MaxCostPerHour   float64
		EvalIntervalSec  int // periodic evaluation loop, 0 disables
	}

	// Database configuration
	Database struct {
		Enabled    bool
		SQLitePath string
	}

	// Cache configuration
	Cache struct {
		EnableCaching bool
		TTLSeconds    int
		MaxEntries    int
	}

	// Logging configuration
	Logging struct {
		Level        string
		Format       string
		AuditLogPath string
		AppLogPath   string
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources (selective settings).
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/opspulse/config.yaml")
}
