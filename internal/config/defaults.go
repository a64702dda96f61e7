package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8080
	cfg.Server.TLSEnabled = false
	cfg.Server.TLSCertPath = ""
	cfg.Server.TLSKeyPath = ""
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.RateLimitPerMin = 120

	// Detection defaults
	cfg.Detection.EnableStatistical = true
	cfg.Detection.EnableMultivariate = true
	cfg.Detection.EnableTrend = true
	cfg.Detection.EnableThreshold = true
	cfg.Detection.DedupCooldownMin = 15
	cfg.Detection.HistoryLimit = 1000

	// Cost defaults
	cfg.Cost.RidgeAlpha = 0.1
	cfg.Cost.MinPointsPerPair = 10
	cfg.Cost.Sensitivity = 2.0
	cfg.Cost.ForecastHours = 24

	// Scaling defaults
	cfg.Scaling.CooldownMin = 10
	cfg.Scaling.HorizonMin = 10
	cfg.Scaling.MaxScaleUpRate = 2.0
	cfg.Scaling.MaxScaleDownRate = 0.5
	cfg.Scaling.MaxCostPerHour = 5.0
	cfg.Scaling.EvalIntervalSec = 0 // push-driven by default

	// Database defaults
	cfg.Database.Enabled = true
	cfg.Database.SQLitePath = "/var/lib/opspulse/opspulse.db"

	// Cache defaults
	cfg.Cache.EnableCaching = true
	cfg.Cache.TTLSeconds = 300
	cfg.Cache.MaxEntries = 1024

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AuditLogPath = "logs/audit.log"
	cfg.Logging.AppLogPath = "logs/app.log"

	return cfg
}
