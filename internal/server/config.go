package server

import (
	"fmt"

	"github.com/opspulse/opspulse/internal/config"
)

// Config holds the settings the HTTP server needs. It is a narrow view of
// the application configuration so the server does not depend on sections
// it never reads.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	TLSEnabled  bool   `json:"tls_enabled"`
	TLSCertPath string `json:"tls_cert_path"`
	TLSKeyPath  string `json:"tls_key_path"`

	// AllowedOrigins lists permitted WebSocket origins. Use "*" to allow
	// all origins (development only). Defaults to localhost origins.
	AllowedOrigins []string `json:"allowed_origins"`

	// RateLimitPerMin caps ingest requests per client per minute.
	// Zero disables rate limiting.
	RateLimitPerMin int `json:"rate_limit_per_min"`
}

// FromAppConfig builds a server Config from the application configuration.
func FromAppConfig(cfg *config.Config) *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            cfg.Server.Port,
		TLSEnabled:      cfg.Server.TLSEnabled,
		TLSCertPath:     cfg.Server.TLSCertPath,
		TLSKeyPath:      cfg.Server.TLSKeyPath,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimitPerMin: cfg.Server.RateLimitPerMin,
	}
}

// Validate validates the server configuration.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.TLSEnabled && (c.TLSCertPath == "" || c.TLSKeyPath == "") {
		return fmt.Errorf("tls enabled but cert or key path missing")
	}
	if c.RateLimitPerMin < 0 {
		return fmt.Errorf("rate limit cannot be negative: %d", c.RateLimitPerMin)
	}
	return nil
}
