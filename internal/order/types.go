package order

// Order types accepted by the trading system.
const (
	TypeBuy  = "buy"
	TypeSell = "sell"
)

// Order is a single transaction record. It is both the in-memory log entry
// and the wire shape used by the replication endpoints.
type Order struct {
	TransactionID int64  `json:"transaction_id"` //nolint:tagliatelle
	StockName     string `json:"stock_name"`     //nolint:tagliatelle
	OrderType     string `json:"order_type"`     //nolint:tagliatelle
	Quantity      int64  `json:"quantity"`
}

// PlaceRequest is the body of POST /order/place.
type PlaceRequest struct {
	StockName string `json:"stock_name"` //nolint:tagliatelle
	OrderType string `json:"order_type"` //nolint:tagliatelle
	Quantity  int64  `json:"quantity"`
}

// PlaceResponse is the reply to a placement. On failure TransactionID is -1
// and Message says why.
type PlaceResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	TransactionID int64  `json:"transaction_id"` //nolint:tagliatelle
}

// LookupRequest is the body of POST /order/lookup.
type LookupRequest struct {
	TransactionID int64 `json:"transaction_id"` //nolint:tagliatelle
}

// LookupResponse is the reply to an order lookup. When Exists is false only
// Message is set.
type LookupResponse struct {
	Exists        bool   `json:"exists"`
	Message       string `json:"message,omitempty"`
	TransactionID int64  `json:"transaction_id"` //nolint:tagliatelle
	StockName     string `json:"stock_name"`     //nolint:tagliatelle
	OrderType     string `json:"order_type"`     //nolint:tagliatelle
	Quantity      int64  `json:"quantity"`
}

// LatestIDResponse is the reply to POST /order/latest: the transaction id the
// replica would assign next.
type LatestIDResponse struct {
	Success       bool  `json:"success"`
	TransactionID int64 `json:"transaction_id"` //nolint:tagliatelle
}

// AfterRequest is the body of POST /order/lookup_after.
type AfterRequest struct {
	TransactionID int64 `json:"transaction_id"` //nolint:tagliatelle
}

// AfterResponse carries every order with an id greater than the requested
// one. Exists is false when there are none.
type AfterResponse struct {
	Exists  bool    `json:"exists"`
	Message string  `json:"message,omitempty"`
	Data    []Order `json:"data,omitempty"`
}

// SyncResponse is the reply to POST /order/sync.
type SyncResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// BulkUpsertRequest is the body of POST /order/bulk_upsert.
type BulkUpsertRequest struct {
	Data []Order `json:"data"`
}

// BulkUpsertResponse is the reply to POST /order/bulk_upsert.
type BulkUpsertResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
