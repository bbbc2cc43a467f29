package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/proxyctl/internal/core"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Success: false, Error: message})
}

// WriteServiceError maps a core error onto an HTTP status. Anything that is
// not a known client error is logged and reported as 500.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	WriteError(w, status, err.Error())
}

func StatusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteResult writes an orchestration outcome. Expected failures such as a
// DNS mismatch are not transport errors: they are returned with status 200,
// success false and the full transcript.
func WriteResult(w http.ResponseWriter, res *core.OperationResult) {
	WriteJSON(w, http.StatusOK, res)
}

// Data wraps a payload as {success: true, data: ...}.
func Data(w http.ResponseWriter, v any) {
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": v})
}
