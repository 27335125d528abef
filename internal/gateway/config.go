package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradecore-io/tradecore/internal/cache"
	"github.com/tradecore-io/tradecore/internal/catalog"
	"github.com/tradecore-io/tradecore/internal/config"
	"github.com/tradecore-io/tradecore/internal/replication"
)

// Default configuration values for the frontend server.
const (
	// DefaultPort is the port clients connect to.
	DefaultPort = 8081

	// DefaultHost is the default host address (bind to all interfaces).
	DefaultHost = "0.0.0.0"

	// DefaultReadTimeout is the maximum duration for reading requests.
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the maximum duration for writing responses.
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the maximum time to wait for the next request.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the maximum duration for graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	minPort = 1
	maxPort = 65535
)

// Configuration validation errors.
var (
	// ErrInvalidPort indicates the port is outside the valid range.
	ErrInvalidPort = errors.New("port must be between 1 and 65535")

	// ErrEmptyHost indicates the host is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidCacheCapacity indicates the cache capacity is not positive.
	ErrInvalidCacheCapacity = errors.New("cache capacity must be positive")

	// ErrInvalidTimeout indicates a timeout value is not positive.
	ErrInvalidTimeout = errors.New("timeout must be greater than zero")
)

// ServerConfig holds the frontend server configuration.
type ServerConfig struct {
	Port            int
	Host            string
	CatalogAddr     string
	CacheEnabled    bool
	CacheCapacity   int
	CatalogTimeout  time.Duration
	OrderTimeout    time.Duration
	SweepInterval   time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	LogLevel        slog.Level
}

// LoadServerConfig loads frontend configuration from environment variables,
// using defaults for anything unset:
//   - FRONTEND_PORT: server port (default: 8081)
//   - FRONTEND_HOST: server host (default: "0.0.0.0")
//   - CATALOG_IP / CATALOG_PORT: catalog service address (default: localhost:50052)
//   - CACHE_ENABLED: serve stock lookups through the LRU cache (default: true)
//   - CACHE_CAPACITY: LRU cache capacity (default: 10)
//   - CATALOG_TIMEOUT: per-call deadline for catalog RPCs (default: 3s)
//   - ORDER_TIMEOUT: per-call deadline for order RPCs (default: 3s)
//   - SWEEP_INTERVAL: fault check loop interval (default: 3s)
//   - LOG_LEVEL: log level (default: "info")
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            config.GetEnvInt("FRONTEND_PORT", DefaultPort),
		Host:            config.GetEnvStr("FRONTEND_HOST", DefaultHost),
		CatalogAddr:     catalog.ServiceAddress(),
		CacheEnabled:    config.GetEnvBool("CACHE_ENABLED", true),
		CacheCapacity:   config.GetEnvInt("CACHE_CAPACITY", cache.DefaultCapacity),
		CatalogTimeout:  config.GetEnvDuration("CATALOG_TIMEOUT", catalog.DefaultClientTimeout),
		OrderTimeout:    config.GetEnvDuration("ORDER_TIMEOUT", replication.DefaultClientTimeout),
		SweepInterval:   config.GetEnvDuration("SWEEP_INTERVAL", replication.DefaultSweepInterval),
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if c.Port < minPort || c.Port > maxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Port)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.CacheEnabled && c.CacheCapacity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCacheCapacity, c.CacheCapacity)
	}

	if c.CatalogTimeout <= 0 || c.OrderTimeout <= 0 || c.SweepInterval <= 0 {
		return ErrInvalidTimeout
	}

	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// Address returns the full address string for the HTTP server.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
