package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// apiResponse is the wrapper every JSON endpoint returns. A successful
// response carries the payload under data; a failed one carries only the
// error message. The two are never set together.
type apiResponse struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// writeJSON sends a success response with the payload wrapped in the
// standard envelope.
func writeJSON(w http.ResponseWriter, status int, data any) {
	respond(w, status, apiResponse{Data: data})
}

// writeError sends a failure response carrying only the error message.
// msg is user-facing; anything diagnostic belongs in the handler's log
// line, not here.
func writeError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, apiResponse{Error: msg})
}

func respond(w http.ResponseWriter, status int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// The status line is already gone, so the client sees a truncated
		// body; all that is left to do is record it.
		slog.Error("writing response body", "error", err, "status", status)
	}
}
