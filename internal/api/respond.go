package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps a scheduling error to its HTTP status. Business
// errors carry their code to the client; anything else is logged and hidden.
func handleServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, op string, err error) {
	var be *scheduling.Error
	if !errors.As(err, &be) {
		logger.Error().
			Err(err).
			Str("op", op).
			Str("request_id", GetRequestID(r.Context())).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	resp := ErrorResponse{Error: be.Code, Details: be.Message}
	status := http.StatusBadRequest
	switch {
	case errors.Is(be.Kind, scheduling.ErrValidation):
		resp.Fields = be.Fields
	case errors.Is(be.Kind, scheduling.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(be.Kind, scheduling.ErrConflict):
		status = http.StatusConflict
		resp.ConflictoHorario = true
	case errors.Is(be.Kind, scheduling.ErrState):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}
