// Package shared centralizes JSON envelope helpers so every handler reports
// errors the same way.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "ems/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError translates a domain error into the HTTP envelope. Unknown errors
// collapse to 500 without leaking internals.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)
	message := ""
	if status < http.StatusInternalServerError {
		var de *dErrors.DomainError
		if errors.As(err, &de) {
			message = de.Message
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: string(code), Message: message})
}

// WriteJSON writes a payload with a status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
