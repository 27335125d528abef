package catalog

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

// DefaultClientTimeout bounds every catalog RPC made through Client.
const DefaultClientTimeout = 3 * time.Second

// ErrUnexpectedStatus is returned when the catalog replies with a non-200
// status code.
var ErrUnexpectedStatus = errors.New("unexpected catalog response status")

// Client is a typed HTTP client for the catalog service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a catalog client for the service at baseURL, e.g.
// "http://localhost:50052". A non-positive timeout falls back to
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

// Lookup fetches the stock with the given name. A missing stock is not an
// error: the response reports Exists=false.
func (c *Client) Lookup(ctx context.Context, name string) (LookupResponse, error) {
	var resp LookupResponse
	if err := c.postJSON(ctx, "/catalog/lookup", LookupRequest{Name: name}, &resp); err != nil {
		return LookupResponse{}, fmt.Errorf("catalog lookup %q: %w", name, err)
	}

	return resp, nil
}

// Update applies quantityChange to the named stock. Domain rejections
// (unknown stock, insufficient quantity) come back as Success=false with a
// message, not as an error.
func (c *Client) Update(ctx context.Context, name string, quantityChange int64) (UpdateResponse, error) {
	req := UpdateRequest{Name: name, QuantityChange: quantityChange}

	var resp UpdateResponse
	if err := c.postJSON(ctx, "/catalog/update", req, &resp); err != nil {
		return UpdateResponse{}, fmt.Errorf("catalog update %q: %w", name, err)
	}

	return resp, nil
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
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
