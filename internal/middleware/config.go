package middleware

import (
	"time"

	"github.com/tradecore-io/tradecore/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for two tiers:
//   - Global: Applied to all requests
//   - Per-client: Applied per client IP
//
// Burst capacity allows temporary bursts above sustained rate.
// If burst fields are 0, they are computed automatically as 2 × rate.
type Config struct {
	// Enabled controls whether the frontend applies rate limiting at all.
	Enabled bool

	// Rate limits (requests per second)
	GlobalRPS int // Default: 100
	ClientRPS int // Default: 20

	// Optional burst capacity overrides (0 = compute automatically as 2 × rate)
	GlobalBurst int
	ClientBurst int

	// Memory cleanup configuration
	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxClients      int           // Default: 10,000
}

// LoadConfig loads rate limiter config from environment variables with
// fallback to defaults. Rate limiting is off unless RATE_LIMIT_ENABLED is
// set, so load generators hit the services unthrottled by default.
func LoadConfig() *Config {
	return &Config{
		Enabled: config.GetEnvBool("RATE_LIMIT_ENABLED", false),

		// Rate limits
		GlobalRPS: config.GetEnvInt("RATE_LIMIT_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("RATE_LIMIT_CLIENT_RPS", defaultClientRPS),

		// Burst overrides (0 = auto-compute)
		GlobalBurst: config.GetEnvInt("RATE_LIMIT_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("RATE_LIMIT_CLIENT_BURST", 0),

		// Cleanup configuration
		CleanupInterval: config.GetEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval),
		IdleTimeout:     config.GetEnvDuration("RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:      config.GetEnvInt("RATE_LIMIT_MAX_CLIENTS", maxClients),
	}
}
