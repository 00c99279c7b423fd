// Package handlers implements the REST endpoint handlers.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	apitypes "github.com/openalpha/options-exchange/api/types"
)

const maxBodyBytes = 1 << 16

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apitypes.ErrorResponse{Error: code, Message: message})
}
