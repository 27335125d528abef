// Package main provides the TradeCore catalog service.
//
// The catalog owns the stock table: lookups, conditional quantity updates,
// and the trading volume counter, persisted to a CSV file.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/tradecore-io/tradecore/internal/catalog"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "tradecore-catalog"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := catalog.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting catalog service",
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
		slog.String("database_path", serverConfig.DatabasePath()),
		slog.Duration("flush_interval", serverConfig.FlushInterval),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	store, err := catalog.NewStore(serverConfig.DatabasePath(), serverConfig.FlushInterval, logger)
	if err != nil {
		logger.Error("Failed to open catalog store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := catalog.NewServer(serverConfig, store, logger)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Catalog service stopped")
}
