package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tradecore-io/tradecore/internal/cache"
	"github.com/tradecore-io/tradecore/internal/order"
	"github.com/tradecore-io/tradecore/internal/replication"
)

// dataEnvelope wraps every successful reply: {"data": ...}.
type dataEnvelope struct {
	Data any `json:"data"`
}

// stockPayload is the data object returned by GET /stocks/{name}.
type stockPayload struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// orderRequest is the body of POST /orders.
type orderRequest struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Type     string `json:"type"`
}

// orderCreatedPayload is the data object returned by a successful POST /orders.
type orderCreatedPayload struct {
	TransactionID int64 `json:"transaction_id"` //nolint:tagliatelle
}

// orderPayload is the data object returned by GET /orders/{id}.
type orderPayload struct {
	TransactionID int64  `json:"transaction_id"` //nolint:tagliatelle
	Name          string `json:"name"`
	Type          string `json:"type"`
	Quantity      int64  `json:"quantity"`
}

// handleStockLookup serves GET /stocks/{name}, consulting the cache before
// the catalog service. Only successful lookups are cached.
func (s *Server) handleStockLookup(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if s.cache != nil {
		if stock, ok := s.cache.Get(name); ok {
			s.writeJSON(w, http.StatusOK, dataEnvelope{Data: stockPayload{
				Name:     stock.Name,
				Price:    stock.Price,
				Quantity: stock.Quantity,
			}})

			return
		}
	}

	resp, err := s.catalog.Lookup(r.Context(), name)
	if err != nil {
		s.logger.Error("Catalog lookup failed",
			slog.String("stock", name),
			slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Catalog service error: %v", err))

		return
	}

	if !resp.Exists {
		s.writeError(w, http.StatusNotFound, "Stock not found")

		return
	}

	if s.cache != nil {
		s.cache.Put(cache.Stock{Name: resp.Name, Price: resp.Price, Quantity: resp.Quantity})
	}

	s.writeJSON(w, http.StatusOK, dataEnvelope{Data: stockPayload{
		Name:     resp.Name,
		Price:    resp.Price,
		Quantity: resp.Quantity,
	}})
}

// handleCreateOrder serves POST /orders: validate, place on the leader,
// invalidate the cached stock, then replicate to followers. Replication
// failures are logged only; the order already committed on the leader.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid order request")

		return
	}

	if req.Name == "" || req.Quantity <= 0 || (req.Type != order.TypeBuy && req.Type != order.TypeSell) {
		s.writeError(w, http.StatusBadRequest, "Invalid order request")

		return
	}

	resp, err := s.coordinator.PlaceOrder(r.Context(), req.Name, req.Type, req.Quantity)
	if err != nil {
		s.writeOrderServiceError(w, err)

		return
	}

	if !resp.Success {
		s.writeError(w, http.StatusBadRequest, resp.Message)

		return
	}

	if s.cache != nil {
		s.cache.Invalidate(req.Name)
	}

	if err := s.coordinator.ReplicateOrder(r.Context(), order.Order{
		TransactionID: resp.TransactionID,
		StockName:     req.Name,
		OrderType:     req.Type,
		Quantity:      req.Quantity,
	}); err != nil {
		// The fault sweep catches lagging followers up later.
		s.logger.Warn("Order replication incomplete",
			slog.Int64("transaction_id", resp.TransactionID),
			slog.String("error", err.Error()))
	}

	s.writeJSON(w, http.StatusOK, dataEnvelope{Data: orderCreatedPayload{TransactionID: resp.TransactionID}})
}

// handleOrderLookup serves GET /orders/{id}.
func (s *Server) handleOrderLookup(w http.ResponseWriter, r *http.Request) {
	transactionID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Order ID must be an integer")

		return
	}

	resp, err := s.coordinator.LookupOrder(r.Context(), transactionID)
	if err != nil {
		s.writeOrderServiceError(w, err)

		return
	}

	if !resp.Exists {
		s.writeError(w, http.StatusNotFound, "Order not found")

		return
	}

	s.writeJSON(w, http.StatusOK, dataEnvelope{Data: orderPayload{
		TransactionID: resp.TransactionID,
		Name:          resp.StockName,
		Type:          resp.OrderType,
		Quantity:      resp.Quantity,
	}})
}

// writeOrderServiceError maps coordinator failures onto HTTP. A failed
// election has its own message; everything else surfaces as an order
// service error.
func (s *Server) writeOrderServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, replication.ErrNoLeader) {
		s.writeError(w, http.StatusInternalServerError, "Leader election failed")

		return
	}

	s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Order service error: %v", err))
}
