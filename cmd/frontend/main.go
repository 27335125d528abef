// Package main provides the TradeCore frontend gateway.
//
// The frontend terminates client HTTP traffic, caches stock lookups, and
// coordinates the order replica cluster: leader election, per-order fan-out
// to followers, and catch-up of recovered replicas.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/tradecore-io/tradecore/internal/gateway"
	"github.com/tradecore-io/tradecore/internal/replication"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "tradecore-frontend"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := gateway.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting frontend service",
		slog.String("service", name),
		slog.String("version", version),
	)

	if err := serverConfig.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("catalog_addr", serverConfig.CatalogAddr),
		slog.Bool("cache_enabled", serverConfig.CacheEnabled),
		slog.Int("cache_capacity", serverConfig.CacheCapacity),
		slog.Duration("sweep_interval", serverConfig.SweepInterval),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	topology, err := replication.LoadTopologyFromEnv()
	if err != nil {
		logger.Error("Failed to load replica topology", slog.String("error", err.Error()))
		os.Exit(1)
	}

	for _, spec := range topology.Replicas {
		logger.Info("Order replica configured",
			slog.Int("replica_id", spec.ID),
			slog.String("address", spec.Address),
		)
	}

	server, err := gateway.NewServer(serverConfig, topology, logger)
	if err != nil {
		logger.Error("Failed to create frontend server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Frontend service stopped")
}
