// Package api provides HTTP response utilities for FlowState.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/flowstate-coach/flowstate/internal/models"
)

// fallbackErrorBody is served when a response fails to marshal. Marshaling the
// envelope type is validated once at startup so runtime failures can only come
// from handler payloads.
var fallbackErrorBody = func() []byte {
	body, err := json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic("api: fallback error response does not marshal: " + err.Error())
	}
	return body
}()

// writeJSONResponse marshals before touching the ResponseWriter, so an
// encoding failure can still downgrade the status to 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	body, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		body = fallbackErrorBody
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", err)
	}
}
