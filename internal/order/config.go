package order

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/tradecore-io/tradecore/internal/catalog"
	"github.com/tradecore-io/tradecore/internal/config"
)

// Default configuration values for an order replica.
const (
	// BasePort is the port offset for order replicas: replica N listens on
	// BasePort+N, so replicas 1..3 occupy 50054..50056. Exported so the
	// frontend can derive default replica addresses.
	BasePort = 50053

	// DefaultHost is the default host address (bind to all interfaces).
	DefaultHost = "0.0.0.0"

	// DefaultDataDir is the directory holding the per-replica CSV file.
	DefaultDataDir = "data"

	// DatabaseFilePattern names the per-replica CSV file inside the data dir.
	DatabaseFilePattern = "order_database_%d.csv"

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
	// ErrInvalidReplicaID indicates the replica id is not positive.
	ErrInvalidReplicaID = errors.New("replica id must be greater than zero")

	// ErrInvalidPort indicates the port is outside the valid range.
	ErrInvalidPort = errors.New("port must be between 1 and 65535")

	// ErrEmptyHost indicates the host is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrEmptyDataDir indicates the data directory is empty.
	ErrEmptyDataDir = errors.New("data directory cannot be empty")

	// ErrEmptyCatalogAddr indicates the catalog address is empty.
	ErrEmptyCatalogAddr = errors.New("catalog address cannot be empty")

	// ErrInvalidTimeout indicates a timeout value is not positive.
	ErrInvalidTimeout = errors.New("timeout must be greater than zero")
)

// ServerConfig holds an order replica's configuration.
type ServerConfig struct {
	ReplicaID       int
	Port            int
	Host            string
	DataDir         string
	FlushInterval   time.Duration
	CatalogAddr     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	LogLevel        slog.Level
}

// LoadServerConfig loads an order replica's configuration from environment
// variables. The replica id comes from the command line, not the environment,
// because every replica on a host shares one environment:
//   - ORDER_PORT: server port (default: 50053+replicaID)
//   - ORDER_HOST: server host (default: "0.0.0.0")
//   - DATA_DIR: directory for the CSV file (default: "data")
//   - FLUSH_INTERVAL: periodic flush interval (default: 5s)
//   - CATALOG_IP / CATALOG_PORT: catalog service location
//   - LOG_LEVEL: log level (default: "info")
func LoadServerConfig(replicaID int) *ServerConfig {
	return &ServerConfig{
		ReplicaID:       replicaID,
		Port:            config.GetEnvInt("ORDER_PORT", BasePort+replicaID),
		Host:            config.GetEnvStr("ORDER_HOST", DefaultHost),
		DataDir:         config.GetEnvStr("DATA_DIR", DefaultDataDir),
		FlushInterval:   config.GetEnvDuration("FLUSH_INTERVAL", DefaultFlushInterval),
		CatalogAddr:     catalog.ServiceAddress(),
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if c.ReplicaID < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidReplicaID, c.ReplicaID)
	}

	if c.Port < minPort || c.Port > maxPort {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Port)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.DataDir == "" {
		return ErrEmptyDataDir
	}

	if c.CatalogAddr == "" {
		return ErrEmptyCatalogAddr
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

// DatabasePath returns the path of this replica's CSV file.
func (c *ServerConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, fmt.Sprintf(DatabaseFilePattern, c.ReplicaID))
}
