package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vibeforge/controlplane/internal/apperr"
)

// envelope is the JSON shape every API response uses.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// OK writes a successful response with the given status and payload.
func OK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// Fail writes a bare error response at the given status with no machine code.
func Fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

// FailWithCode writes an error response carrying a machine-readable code,
// e.g. "NO_INSTANCE" or "NO_AVAILABLE_PORT".
func FailWithCode(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, envelope{Success: false, Error: message, Code: code})
}

// RespondError maps an error to the envelope, using its apperr.Kind to pick
// the status code and surfacing its Code field when present. Unrecognized
// errors are reported as a generic 500 without leaking internal detail.
func RespondError(w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Error: "internal server error"})
		return
	}
	writeJSON(w, appErr.StatusCode(), envelope{Success: false, Error: appErr.Message, Code: appErr.Code})
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("encoding response", "error", err)
	}
}
