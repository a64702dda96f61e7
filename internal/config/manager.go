package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("OPSPULSE")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// Config file is optional; defaults plus env vars are a valid setup.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// use defaults
		} else if os.IsNotExist(err) {
			// use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.tls_enabled", defaults.Server.TLSEnabled)
	m.viper.SetDefault("server.tls_cert_path", defaults.Server.TLSCertPath)
	m.viper.SetDefault("server.tls_key_path", defaults.Server.TLSKeyPath)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.rate_limit_per_min", defaults.Server.RateLimitPerMin)

	// Detection defaults
	m.viper.SetDefault("detection.enable_statistical", defaults.Detection.EnableStatistical)
	m.viper.SetDefault("detection.enable_multivariate", defaults.Detection.EnableMultivariate)
	m.viper.SetDefault("detection.enable_trend", defaults.Detection.EnableTrend)
	m.viper.SetDefault("detection.enable_threshold", defaults.Detection.EnableThreshold)
	m.viper.SetDefault("detection.dedup_cooldown_min", defaults.Detection.DedupCooldownMin)
	m.viper.SetDefault("detection.history_limit", defaults.Detection.HistoryLimit)

	// Cost defaults
	m.viper.SetDefault("cost.ridge_alpha", defaults.Cost.RidgeAlpha)
	m.viper.SetDefault("cost.min_points_per_pair", defaults.Cost.MinPointsPerPair)
	m.viper.SetDefault("cost.sensitivity", defaults.Cost.Sensitivity)
	m.viper.SetDefault("cost.forecast_hours", defaults.Cost.ForecastHours)

	// Scaling defaults
	m.viper.SetDefault("scaling.cooldown_min", defaults.Scaling.CooldownMin)
	m.viper.SetDefault("scaling.horizon_min", defaults.Scaling.HorizonMin)
	m.viper.SetDefault("scaling.max_scale_up_rate", defaults.Scaling.MaxScaleUpRate)
	m.viper.SetDefault("scaling.max_scale_down_rate", defaults.Scaling.MaxScaleDownRate)
	m.viper.SetDefault("scaling.max_cost_per_hour", defaults.Scaling.MaxCostPerHour)
	m.viper.SetDefault("scaling.eval_interval_sec", defaults.Scaling.EvalIntervalSec)

	// Database defaults
	m.viper.SetDefault("database.enabled", defaults.Database.Enabled)
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	// Cache defaults
	m.viper.SetDefault("cache.enable_caching", defaults.Cache.EnableCaching)
	m.viper.SetDefault("cache.ttl_seconds", defaults.Cache.TTLSeconds)
	m.viper.SetDefault("cache.max_entries", defaults.Cache.MaxEntries)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.audit_log_path", defaults.Logging.AuditLogPath)
	m.viper.SetDefault("logging.app_log_path", defaults.Logging.AppLogPath)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.TLSEnabled = m.viper.GetBool("server.tls_enabled")
	cfg.Server.TLSCertPath = m.viper.GetString("server.tls_cert_path")
	cfg.Server.TLSKeyPath = m.viper.GetString("server.tls_key_path")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.RateLimitPerMin = m.viper.GetInt("server.rate_limit_per_min")

	// Detection
	cfg.Detection.EnableStatistical = m.viper.GetBool("detection.enable_statistical")
	cfg.Detection.EnableMultivariate = m.viper.GetBool("detection.enable_multivariate")
	cfg.Detection.EnableTrend = m.viper.GetBool("detection.enable_trend")
	cfg.Detection.EnableThreshold = m.viper.GetBool("detection.enable_threshold")
	cfg.Detection.DedupCooldownMin = m.viper.GetInt("detection.dedup_cooldown_min")
	cfg.Detection.HistoryLimit = m.viper.GetInt("detection.history_limit")

	// Cost
	cfg.Cost.RidgeAlpha = m.viper.GetFloat64("cost.ridge_alpha")
	cfg.Cost.MinPointsPerPair = m.viper.GetInt("cost.min_points_per_pair")
	cfg.Cost.Sensitivity = m.viper.GetFloat64("cost.sensitivity")
	cfg.Cost.ForecastHours = m.viper.GetInt("cost.forecast_hours")

	// Scaling
	cfg.Scaling.CooldownMin = m.viper.GetInt("scaling.cooldown_min")
	cfg.Scaling.HorizonMin = m.viper.GetInt("scaling.horizon_min")
	cfg.Scaling.MaxScaleUpRate = m.viper.GetFloat64("scaling.max_scale_up_rate")
	cfg.Scaling.MaxScaleDownRate = m.viper.GetFloat64("scaling.max_scale_down_rate")
	cfg.Scaling.MaxCostPerHour = m.viper.GetFloat64("scaling.max_cost_per_hour")
	cfg.Scaling.EvalIntervalSec = m.viper.GetInt("scaling.eval_interval_sec")

	// Database
	cfg.Database.Enabled = m.viper.GetBool("database.enabled")
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	// Cache
	cfg.Cache.EnableCaching = m.viper.GetBool("cache.enable_caching")
	cfg.Cache.TTLSeconds = m.viper.GetInt("cache.ttl_seconds")
	cfg.Cache.MaxEntries = m.viper.GetInt("cache.max_entries")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for settings that
// deployments commonly set outside the config file.
func (m *viperConfigManager) applyEnvOverrides() {
	if path := os.Getenv("OPSPULSE_DB_PATH"); path != "" {
		m.config.Database.SQLitePath = path
	}

	// Port from environment - only override if explicitly set
	if portEnv := os.Getenv("OPSPULSE_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("port")
	}
}
