// Package main provides a TradeCore order replica.
//
// Each replica keeps an append-only transaction log in its own CSV file and
// answers placement, lookup, and replication calls. The replica id is fixed
// at startup and picks the bind port and database file; the frontend decides
// which replica currently leads.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/tradecore-io/tradecore/internal/catalog"
	"github.com/tradecore-io/tradecore/internal/order"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "tradecore-order"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	replicaID := flag.Int("replica_id", 0, "replica id, must be unique and positive")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := order.LoadServerConfig(*replicaID)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting order replica",
		slog.String("service", name),
		slog.String("version", version),
		slog.Int("replica_id", *replicaID),
	)

	if err := serverConfig.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("database_path", serverConfig.DatabasePath()),
		slog.String("catalog_addr", serverConfig.CatalogAddr),
		slog.Duration("flush_interval", serverConfig.FlushInterval),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	store, err := order.NewStore(serverConfig.DatabasePath(), serverConfig.ReplicaID, serverConfig.FlushInterval, logger)
	if err != nil {
		logger.Error("Failed to open order store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	catalogClient := catalog.NewClient(serverConfig.CatalogAddr, 0)

	server := order.NewServer(serverConfig, store, catalogClient, logger)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Order replica stopped")
}
