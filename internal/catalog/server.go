package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradecore-io/tradecore/internal/middleware"
)

// Server is the catalog HTTP server. It owns the stock store and exposes
// lookup and update endpoints to the frontend and order services.
type Server struct {
	httpServer *http.Server
	store      *Store
	logger     *slog.Logger
	config     *ServerConfig
	startTime  time.Time
}

// healthStatus is the response body for the health endpoint.
type healthStatus struct {
	Status      string `json:"status"`
	ServiceName string `json:"serviceName"`
	Uptime      string `json:"uptime"`
}

// NewServer creates a catalog server around the given store.
func NewServer(cfg *ServerConfig, store *Store, logger *slog.Logger) *Server {
	s := &Server{
		store:     store,
		logger:    logger,
		config:    cfg,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	handler := middleware.Apply(mux,
		middleware.WithRequestID(),
		middleware.WithRecovery(logger),
		middleware.WithRequestLogger(logger),
	)

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// setupRoutes registers all catalog endpoints.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /catalog/lookup", s.handleLookup)
	mux.HandleFunc("POST /catalog/update", s.handleUpdate)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleNotFound)
}

// Start runs the HTTP server until it fails or a shutdown signal arrives.
func (s *Server) Start() error {
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Catalog server listening", slog.String("address", s.config.Address()))
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("catalog server error: %w", err)
	case sig := <-shutdown:
		s.logger.Info("Shutdown signal received", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown gracefully stops the HTTP server, then closes the store so the
// final state is flushed to disk.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Graceful shutdown failed, forcing close", slog.String("error", err.Error()))

		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("force close server: %w", closeErr)
		}
	}

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close catalog store: %w", err)
	}

	s.logger.Info("Catalog server stopped")

	return nil
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")

		return
	}

	stock, ok := s.store.Lookup(req.Name)
	if !ok {
		s.writeJSON(w, http.StatusOK, LookupResponse{Exists: false})

		return
	}

	s.writeJSON(w, http.StatusOK, LookupResponse{
		Exists:   true,
		Name:     stock.Name,
		Price:    stock.Price,
		Quantity: stock.Quantity,
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")

		return
	}

	stock, err := s.store.Update(req.Name, req.QuantityChange)

	switch {
	case errors.Is(err, ErrStockNotFound):
		s.writeJSON(w, http.StatusOK, UpdateResponse{Success: false, Message: "Stock not found"})
	case errors.Is(err, ErrInsufficientStock):
		s.writeJSON(w, http.StatusOK, UpdateResponse{
			Success:     false,
			Message:     "Insufficient stock",
			NewQuantity: stock.Quantity,
		})
	case err != nil:
		s.logger.Error("Catalog update failed",
			slog.String("stock", req.Name),
			slog.String("error", err.Error()),
		)
		s.writeError(w, http.StatusInternalServerError, "Catalog update failed")
	default:
		s.writeJSON(w, http.StatusOK, UpdateResponse{
			Success:     true,
			Message:     "Stock updated successfully",
			NewQuantity: stock.Quantity,
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthStatus{
		Status:      "healthy",
		ServiceName: "catalog",
		Uptime:      time.Since(s.startTime).String(),
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
