package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Server.TLSEnabled {
		if c.Server.TLSCertPath == "" {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_cert_path",
				Message: "tls_cert_path is required when tls_enabled is true",
			})
		} else if _, err := os.Stat(c.Server.TLSCertPath); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_cert_path",
				Message: fmt.Sprintf("certificate file does not exist: %s", c.Server.TLSCertPath),
			})
		}

		if c.Server.TLSKeyPath == "" {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_key_path",
				Message: "tls_key_path is required when tls_enabled is true",
			})
		} else if _, err := os.Stat(c.Server.TLSKeyPath); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "server.tls_key_path",
				Message: fmt.Sprintf("key file does not exist: %s", c.Server.TLSKeyPath),
			})
		}
	}

	if c.Server.RateLimitPerMin < 0 {
		errs = append(errs, &ValidationError{
			Field:   "server.rate_limit_per_min",
			Message: fmt.Sprintf("rate_limit_per_min cannot be negative, got %d", c.Server.RateLimitPerMin),
		})
	}

	// Validate detection configuration
	if c.Detection.DedupCooldownMin < 1 {
		errs = append(errs, &ValidationError{
			Field:   "detection.dedup_cooldown_min",
			Message: fmt.Sprintf("dedup_cooldown_min must be at least 1 minute, got %d", c.Detection.DedupCooldownMin),
		})
	}

	if c.Detection.HistoryLimit < 1 {
		errs = append(errs, &ValidationError{
			Field:   "detection.history_limit",
			Message: fmt.Sprintf("history_limit must be at least 1, got %d", c.Detection.HistoryLimit),
		})
	}

	// Validate cost configuration
	if c.Cost.RidgeAlpha < 0 {
		errs = append(errs, &ValidationError{
			Field:   "cost.ridge_alpha",
			Message: fmt.Sprintf("ridge_alpha cannot be negative, got %.3f", c.Cost.RidgeAlpha),
		})
	}

	if c.Cost.MinPointsPerPair < 8 {
		errs = append(errs, &ValidationError{
			Field:   "cost.min_points_per_pair",
			Message: fmt.Sprintf("min_points_per_pair must be at least 8 for lag features, got %d", c.Cost.MinPointsPerPair),
		})
	}

	if c.Cost.Sensitivity <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "cost.sensitivity",
			Message: fmt.Sprintf("sensitivity must be positive, got %.2f", c.Cost.Sensitivity),
		})
	}

	if c.Cost.ForecastHours < 1 || c.Cost.ForecastHours > 168 {
		errs = append(errs, &ValidationError{
			Field:   "cost.forecast_hours",
			Message: fmt.Sprintf("forecast_hours must be between 1 and 168, got %d", c.Cost.ForecastHours),
		})
	}

	// Validate scaling configuration
	if c.Scaling.CooldownMin < 1 {
		errs = append(errs, &ValidationError{
			Field:   "scaling.cooldown_min",
			Message: fmt.Sprintf("cooldown_min must be at least 1 minute, got %d", c.Scaling.CooldownMin),
		})
	}

	if c.Scaling.MaxScaleUpRate <= 1.0 {
		errs = append(errs, &ValidationError{
			Field:   "scaling.max_scale_up_rate",
			Message: fmt.Sprintf("max_scale_up_rate must be greater than 1.0, got %.2f", c.Scaling.MaxScaleUpRate),
		})
	}

	if c.Scaling.MaxScaleDownRate <= 0 || c.Scaling.MaxScaleDownRate >= 1.0 {
		errs = append(errs, &ValidationError{
			Field:   "scaling.max_scale_down_rate",
			Message: fmt.Sprintf("max_scale_down_rate must be in (0, 1), got %.2f", c.Scaling.MaxScaleDownRate),
		})
	}

	if c.Scaling.MaxCostPerHour <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "scaling.max_cost_per_hour",
			Message: fmt.Sprintf("max_cost_per_hour must be positive, got %.2f", c.Scaling.MaxCostPerHour),
		})
	}

	// Validate database configuration
	if c.Database.Enabled && c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required when database is enabled",
		})
	}

	// Validate cache configuration
	if c.Cache.TTLSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "cache.ttl_seconds",
			Message: fmt.Sprintf("ttl_seconds cannot be negative, got %d", c.Cache.TTLSeconds),
		})
	}

	if c.Cache.MaxEntries < 0 {
		errs = append(errs, &ValidationError{
			Field:   "cache.max_entries",
			Message: fmt.Sprintf("max_entries cannot be negative, got %d", c.Cache.MaxEntries),
		})
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	return errs
}
