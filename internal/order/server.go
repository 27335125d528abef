package order

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

	"github.com/tradecore-io/tradecore/internal/catalog"
	"github.com/tradecore-io/tradecore/internal/middleware"
)

// Server is one order replica's HTTP server. It owns the replica's log and,
// when acting as leader, trades against the catalog service.
type Server struct {
	httpServer *http.Server
	store      *Store
	catalog    *catalog.Client
	logger     *slog.Logger
	config     *ServerConfig
	startTime  time.Time
}

// healthStatus is the response body for the health endpoint.
type healthStatus struct {
	Status      string `json:"status"`
	ServiceName string `json:"serviceName"`
	ReplicaID   int    `json:"replicaId"`
	Uptime      string `json:"uptime"`
}

// NewServer creates an order replica server around the given store and
// catalog client.
func NewServer(cfg *ServerConfig, store *Store, catalogClient *catalog.Client, logger *slog.Logger) *Server {
	s := &Server{
		store:     store,
		catalog:   catalogClient,
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

// setupRoutes registers all order replica endpoints.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /order/place", s.handlePlace)
	mux.HandleFunc("POST /order/lookup", s.handleLookup)
	mux.HandleFunc("POST /order/latest", s.handleLatestID)
	mux.HandleFunc("POST /order/lookup_after", s.handleAfter)
	mux.HandleFunc("POST /order/sync", s.handleSync)
	mux.HandleFunc("POST /order/bulk_upsert", s.handleBulkUpsert)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleNotFound)
}

// Start runs the HTTP server until it fails or a shutdown signal arrives.
func (s *Server) Start() error {
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Order replica listening",
			slog.Int("replica_id", s.config.ReplicaID),
			slog.String("address", s.config.Address()),
		)
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("order server error: %w", err)
	case sig := <-shutdown:
		s.logger.Info("Shutdown signal received", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown gracefully stops the HTTP server, then closes the store so the
// final log state is flushed to disk.
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
		return fmt.Errorf("close order store: %w", err)
	}

	s.logger.Info("Order replica stopped", slog.Int("replica_id", s.config.ReplicaID))

	return nil
}

// handlePlace processes a trade on this replica acting as leader: check the
// stock with the catalog, apply the quantity change there, then assign a
// transaction id and append to the log. The log lock is never held across
// the catalog calls.
func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	var req PlaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")

		return
	}

	stock, err := s.catalog.Lookup(r.Context(), req.StockName)
	if err != nil {
		s.logger.Error("Catalog lookup failed during placement",
			slog.String("stock", req.StockName),
			slog.String("error", err.Error()),
		)
		s.writeJSON(w, http.StatusOK, placeFailure(fmt.Sprintf("Catalog service error: %v", err)))

		return
	}

	if !stock.Exists {
		s.writeJSON(w, http.StatusOK, placeFailure("Stock not found"))

		return
	}

	if req.OrderType == TypeBuy && stock.Quantity < req.Quantity {
		s.writeJSON(w, http.StatusOK, placeFailure("Insufficient stock"))

		return
	}

	quantityChange := req.Quantity
	if req.OrderType == TypeBuy {
		quantityChange = -req.Quantity
	}

	update, err := s.catalog.Update(r.Context(), req.StockName, quantityChange)
	if err != nil {
		s.logger.Error("Catalog update failed during placement",
			slog.String("stock", req.StockName),
			slog.String("error", err.Error()),
		)
		s.writeJSON(w, http.StatusOK, placeFailure(fmt.Sprintf("Catalog service error: %v", err)))

		return
	}

	if !update.Success {
		s.writeJSON(w, http.StatusOK, placeFailure(update.Message))

		return
	}

	ord, err := s.store.Append(req.StockName, req.OrderType, req.Quantity)
	if err != nil {
		s.logger.Error("Order append failed after catalog update",
			slog.String("stock", req.StockName),
			slog.String("error", err.Error()),
		)
		s.writeError(w, http.StatusInternalServerError, "Order log write failed")

		return
	}

	s.writeJSON(w, http.StatusOK, PlaceResponse{
		Success:       true,
		Message:       "Order placed successfully",
		TransactionID: ord.TransactionID,
	})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")

		return
	}

	ord, ok := s.store.Get(req.TransactionID)
	if !ok {
		s.writeJSON(w, http.StatusOK, LookupResponse{Exists: false, Message: "Order not found"})

		return
	}

	s.writeJSON(w, http.StatusOK, LookupResponse{
		Exists:        true,
		TransactionID: ord.TransactionID,
		StockName:     ord.StockName,
		OrderType:     ord.OrderType,
		Quantity:      ord.Quantity,
	})
}

func (s *Server) handleLatestID(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, LatestIDResponse{
		Success:       true,
		TransactionID: s.store.NextID(),
	})
}

func (s *Server) handleAfter(w http.ResponseWriter, r *http.Request) {
	var req AfterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")

		return
	}

	orders := s.store.After(req.TransactionID)
	if len(orders) == 0 {
		s.writeJSON(w, http.StatusOK, AfterResponse{
			Exists:  false,
			Message: fmt.Sprintf("No new order present after %d", req.TransactionID),
		})

		return
	}

	s.writeJSON(w, http.StatusOK, AfterResponse{Exists: true, Data: orders})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var ord Order
	if err := json.NewDecoder(r.Body).Decode(&ord); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")

		return
	}

	existed, err := s.store.Sync(ord)
	if err != nil {
		s.logger.Error("Order sync failed",
			slog.Int64("transaction_id", ord.TransactionID),
			slog.String("error", err.Error()),
		)
		s.writeError(w, http.StatusInternalServerError, "Order log write failed")

		return
	}

	message := fmt.Sprintf("Order Replica %d synced successfully", s.config.ReplicaID)
	if existed {
		message = fmt.Sprintf("Order Replica %d was already in sync", s.config.ReplicaID)
	}

	s.writeJSON(w, http.StatusOK, SyncResponse{Success: true, Message: message})
}

func (s *Server) handleBulkUpsert(w http.ResponseWriter, r *http.Request) {
	var req BulkUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body")

		return
	}

	added, err := s.store.BulkUpsert(req.Data)
	if err != nil {
		s.logger.Error("Bulk upsert failed", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "Order log write failed")

		return
	}

	s.logger.Info("Bulk upsert applied",
		slog.Int("replica_id", s.config.ReplicaID),
		slog.Int("received", len(req.Data)),
		slog.Int("added", added),
	)

	s.writeJSON(w, http.StatusOK, BulkUpsertResponse{
		Success: true,
		Message: fmt.Sprintf("Replica %d updated successfully", s.config.ReplicaID),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthStatus{
		Status:      "healthy",
		ServiceName: "order",
		ReplicaID:   s.config.ReplicaID,
		Uptime:      time.Since(s.startTime).String(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, http.StatusNotFound, "Endpoint not found")
}

func placeFailure(message string) PlaceResponse {
	return PlaceResponse{Success: false, Message: message, TransactionID: -1}
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
