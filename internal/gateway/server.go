// Package gateway is the client-facing HTTP surface of the trading system.
// It terminates REST traffic, serves stock lookups through a bounded LRU
// cache backed by the catalog service, and routes order traffic through the
// replication coordinator.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradecore-io/tradecore/internal/cache"
	"github.com/tradecore-io/tradecore/internal/catalog"
	"github.com/tradecore-io/tradecore/internal/middleware"
	"github.com/tradecore-io/tradecore/internal/replication"
)

// Server is the frontend HTTP server. It owns the lookup cache, the catalog
// client, and the order cluster coordinator.
type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	config      *ServerConfig
	startTime   time.Time
	cache       *cache.StockCache
	catalog     *catalog.Client
	coordinator *replication.Coordinator
	limiter     *middleware.InMemoryRateLimiter
}

// healthStatus is the response body for the health endpoint.
type healthStatus struct {
	Status      string                `json:"status"`
	ServiceName string                `json:"serviceName"`
	Uptime      string                `json:"uptime"`
	CacheSize   int                   `json:"cacheSize"`
	Replicas    []replication.Replica `json:"replicas"`
}

// NewServer creates the frontend server over the given order topology. The
// coordinator's fault sweep starts immediately; the initial leader election
// runs from Start.
func NewServer(cfg *ServerConfig, topo *replication.Topology, logger *slog.Logger) (*Server, error) {
	s := &Server{
		logger:      logger,
		config:      cfg,
		startTime:   time.Now(),
		catalog:     catalog.NewClient(cfg.CatalogAddr, cfg.CatalogTimeout),
		coordinator: replication.NewCoordinator(topo, cfg.OrderTimeout, cfg.SweepInterval, logger),
	}

	if cfg.CacheEnabled {
		stockCache, err := cache.New(cfg.CacheCapacity, logger)
		if err != nil {
			s.coordinator.Close()

			return nil, fmt.Errorf("create stock cache: %w", err)
		}

		s.cache = stockCache
	}

	rlConfig := middleware.LoadConfig()
	if rlConfig.Enabled {
		s.limiter = middleware.NewInMemoryRateLimiter(rlConfig)
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	options := []middleware.Option{
		middleware.WithRequestID(),
		middleware.WithRecovery(logger),
	}
	if s.limiter != nil {
		options = append(options, middleware.WithRateLimit(s.limiter, logger))
	}

	options = append(options, middleware.WithRequestLogger(logger))

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      middleware.Apply(mux, options...),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

// setupRoutes registers all frontend endpoints.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /stocks/{name}", s.handleStockLookup)
	mux.HandleFunc("POST /orders", s.handleCreateOrder)
	mux.HandleFunc("GET /orders/{id}", s.handleOrderLookup)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleNotFound)
}

// Start elects the initial order leader, then runs the HTTP server until it
// fails or a shutdown signal arrives.
func (s *Server) Start() error {
	s.coordinator.Start(context.Background())

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Frontend server listening", slog.String("address", s.config.Address()))
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("frontend server error: %w", err)
	case sig := <-shutdown:
		s.logger.Info("Shutdown signal received", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown gracefully stops the HTTP server, then the coordinator's fault
// sweep and the rate limiter's cleanup loop.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Graceful shutdown failed, forcing close", slog.String("error", err.Error()))

		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("force close server: %w", closeErr)
		}
	}

	s.coordinator.Close()

	if s.limiter != nil {
		s.limiter.Close()
	}

	s.logger.Info("Frontend server stopped")

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	cacheSize := 0
	if s.cache != nil {
		cacheSize = s.cache.Len()
	}

	s.writeJSON(w, http.StatusOK, healthStatus{
		Status:      "healthy",
		ServiceName: "frontend",
		Uptime:      time.Since(s.startTime).String(),
		CacheSize:   cacheSize,
		Replicas:    s.coordinator.Replicas(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, http.StatusNotFound, "Endpoint not found")
}

// writeJSON marshals v and writes it with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to marshal response", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response", slog.String("error", err.Error()))
	}
}

// writeError writes an error reply in the shared envelope shape:
//
//	{"error": {"code": 404, "message": "..."}}
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	body := struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	body.Error.Code = status
	body.Error.Message = message

	s.writeJSON(w, status, body)
}
