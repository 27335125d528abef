package catalog

// LookupRequest is the body of POST /catalog/lookup.
type LookupRequest struct {
	Name string `json:"name"`
}

// LookupResponse is the reply to a lookup. When Exists is false the remaining
// fields are zero.
type LookupResponse struct {
	Exists   bool    `json:"exists"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// UpdateRequest is the body of POST /catalog/update. QuantityChange is
// negative for a buy and positive for a sell.
type UpdateRequest struct {
	Name           string `json:"name"`
	QuantityChange int64  `json:"quantity_change"` //nolint:tagliatelle
}

// UpdateResponse is the reply to an update. On a rejected update Success is
// false, Message says why, and NewQuantity carries the unchanged quantity.
type UpdateResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	NewQuantity int64  `json:"new_quantity"` //nolint:tagliatelle
}
