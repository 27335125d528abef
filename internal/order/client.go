package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultClientTimeout bounds every order RPC made through Client. Timeouts
// are treated like an unreachable replica so the frontend can fail over.
const DefaultClientTimeout = 3 * time.Second

// Client errors.
var (
	// ErrUnavailable is returned when a replica cannot be reached at all:
	// connection refused, reset, or timed out. These are the transient
	// failures that should trigger leader election on the frontend.
	ErrUnavailable = errors.New("order replica unavailable")

	// ErrUpstream is returned when a replica answers with a non-200 status.
	// The replica is alive, so this is not grounds for failover.
	ErrUpstream = errors.New("unexpected order response status")
)

// Client is a typed HTTP client for one order replica.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an order client for the replica at baseURL, e.g.
// "http://localhost:50054". A non-positive timeout falls back to
// DefaultClientTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Place submits a trade to the replica, which must be the current leader.
func (c *Client) Place(ctx context.Context, stockName, orderType string, quantity int64) (PlaceResponse, error) {
	req := PlaceRequest{StockName: stockName, OrderType: orderType, Quantity: quantity}

	var resp PlaceResponse
	if err := c.postJSON(ctx, "/order/place", req, &resp); err != nil {
		return PlaceResponse{}, fmt.Errorf("place order: %w", err)
	}

	return resp, nil
}

// Lookup fetches the order with the given transaction id. A missing order is
// not an error: the response reports Exists=false.
func (c *Client) Lookup(ctx context.Context, transactionID int64) (LookupResponse, error) {
	var resp LookupResponse
	if err := c.postJSON(ctx, "/order/lookup", LookupRequest{TransactionID: transactionID}, &resp); err != nil {
		return LookupResponse{}, fmt.Errorf("lookup order %d: %w", transactionID, err)
	}

	return resp, nil
}

// LatestID returns the transaction id the replica would assign next.
func (c *Client) LatestID(ctx context.Context) (int64, error) {
	var resp LatestIDResponse
	if err := c.postJSON(ctx, "/order/latest", struct{}{}, &resp); err != nil {
		return 0, fmt.Errorf("latest id: %w", err)
	}

	if !resp.Success {
		return 0, fmt.Errorf("latest id: %w", ErrUpstream)
	}

	return resp.TransactionID, nil
}

// OrdersAfter returns every order on the replica with a transaction id
// greater than transactionID. A nil slice means the replica has nothing
// newer.
func (c *Client) OrdersAfter(ctx context.Context, transactionID int64) ([]Order, error) {
	var resp AfterResponse
	if err := c.postJSON(ctx, "/order/lookup_after", AfterRequest{TransactionID: transactionID}, &resp); err != nil {
		return nil, fmt.Errorf("orders after %d: %w", transactionID, err)
	}

	if !resp.Exists {
		return nil, nil
	}

	return resp.Data, nil
}

// Sync replicates one order to the replica. Already-present ids succeed as
// no-ops.
func (c *Client) Sync(ctx context.Context, ord Order) (SyncResponse, error) {
	var resp SyncResponse
	if err := c.postJSON(ctx, "/order/sync", ord, &resp); err != nil {
		return SyncResponse{}, fmt.Errorf("sync order %d: %w", ord.TransactionID, err)
	}

	return resp, nil
}

// BulkUpsert replicates a batch of orders to the replica, used for catch-up
// after recovery.
func (c *Client) BulkUpsert(ctx context.Context, data []Order) (BulkUpsertResponse, error) {
	var resp BulkUpsertResponse
	if err := c.postJSON(ctx, "/order/bulk_upsert", BulkUpsertRequest{Data: data}, &resp); err != nil {
		return BulkUpsertResponse{}, fmt.Errorf("bulk upsert: %w", err)
	}

	return resp, nil
}

// Health probes the replica's health endpoint. A nil error means the replica
// answered healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w: %w", ErrUnavailable, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: %w: %d", ErrUpstream, resp.StatusCode)
	}

	return nil
}

// BaseURL returns the address this client dials.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) postJSON(ctx context.Context, path string, reqBody, respBody any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Unreachable or timed out: the caller may fail over to another
		// replica.
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUpstream, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
