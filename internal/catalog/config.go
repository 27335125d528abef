package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/tradecore-io/tradecore/internal/config"
)

// Default configuration values for the catalog server.
const (
	// DefaultPort is the port the catalog service listens on. Exported so the
	// order and frontend services can build their default catalog address.
	DefaultPort = 50052

	// DefaultHost is the default host address (bind to all interfaces).
	DefaultHost = "0.0.0.0"

	// DefaultDataDir is the directory holding the catalog CSV file.
	DefaultDataDir = "data"

	// DatabaseFileName is the name of the catalog CSV file inside the data dir.
	DatabaseFileName = "catalog_database.csv"

	// DefaultFlushInterval is how often the store is flushed to disk.
	DefaultFlushInterval = 5 * time.Second

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

	// ErrEmptyDataDir indicates the data directory is empty.
	ErrEmptyDataDir = errors.New("data directory cannot be empty")

	// ErrInvalidTimeout indicates a timeout value is not positive.
	ErrInvalidTimeout = errors.New("timeout must be greater than zero")
)

// ServerConfig holds the catalog server configuration.
type ServerConfig struct {
	Port            int
	Host            string
	DataDir         string
	FlushInterval   time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	LogLevel        slog.Level
}

// LoadServerConfig loads catalog server configuration from environment
// variables, using defaults for anything unset:
//   - CATALOG_PORT: server port (default: 50052)
//   - CATALOG_HOST: server host (default: "0.0.0.0")
//   - DATA_DIR: directory for the CSV file (default: "data")
//   - FLUSH_INTERVAL: periodic flush interval (default: 5s)
//   - LOG_LEVEL: log level (default: "info")
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            config.GetEnvInt("CATALOG_PORT", DefaultPort),
		Host:            config.GetEnvStr("CATALOG_HOST", DefaultHost),
		DataDir:         config.GetEnvStr("DATA_DIR", DefaultDataDir),
		FlushInterval:   config.GetEnvDuration("FLUSH_INTERVAL", DefaultFlushInterval),
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

	if c.DataDir == "" {
		return ErrEmptyDataDir
	}

	if c.FlushInterval <= 0 {
		return fmt.Errorf("%w: flush interval %v", ErrInvalidTimeout, c.FlushInterval)
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

// ServiceAddress returns the catalog base URL the other services should dial,
// derived from CATALOG_IP and CATALOG_PORT.
func ServiceAddress() string {
	host := config.GetEnvStr("CATALOG_IP", "localhost")
	port := config.GetEnvInt("CATALOG_PORT", DefaultPort)

	return fmt.Sprintf("http://%s:%d", host, port)
}

// DatabasePath returns the path of the catalog CSV file.
func (c *ServerConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, DatabaseFileName)
}
