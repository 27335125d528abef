package middleware

import (
	"encoding/json"
	"net/http"
)

// writeErrorEnvelope writes an error response in the shared envelope shape
// without importing the gateway package:
//
//	{"error": {"code": 429, "message": "..."}}
func writeErrorEnvelope(w http.ResponseWriter, statusCode int, message string) error {
	body := map[string]any{
		"error": map[string]any{
			"code":    statusCode,
			"message": message,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(body)
}
