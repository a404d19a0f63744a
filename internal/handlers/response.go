package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/markjakearzadon/schoolfee-gobackend/internal/ledger"
	"github.com/markjakearzadon/schoolfee-gobackend/internal/services"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Status: status, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string, detail interface{}, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Status: status, Message: message, Error: detail, Data: data})
}

// writeError maps a service error to its HTTP status and writes the envelope.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var (
		syncErr  *services.StatusSyncError
		valErr   *ledger.ValidationError
		valErrs  ValidationErrors
		overpaid *ledger.OverpaymentError
	)
	switch {
	case errors.As(err, &syncErr):
		log.Error().Err(err).Msg("Fee saved without status sync")
		writeFailure(w, http.StatusInternalServerError, "fee saved but student fee status sync failed", err.Error(), syncErr.Record)
	case errors.As(err, &valErrs):
		writeFailure(w, http.StatusBadRequest, "validation failed", valErrs, nil)
	case errors.As(err, &valErr):
		writeFailure(w, http.StatusBadRequest, "validation failed", map[string]string{valErr.Field: valErr.Message}, nil)
	case errors.As(err, &overpaid):
		writeFailure(w, http.StatusBadRequest, "payment exceeds the semester total", overpaid, nil)
	case errors.Is(err, ledger.ErrValidation):
		writeFailure(w, http.StatusBadRequest, "validation failed", err.Error(), nil)
	case errors.Is(err, ledger.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "not found", err.Error(), nil)
	case errors.Is(err, ledger.ErrConflict):
		writeFailure(w, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, services.ErrUnauthorized):
		writeFailure(w, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	case errors.Is(err, services.ErrForbidden):
		writeFailure(w, http.StatusForbidden, "forbidden", err.Error(), nil)
	default:
		log.Error().Err(err).Msg("Request failed")
		writeFailure(w, http.StatusInternalServerError, "internal server error", err.Error(), nil)
	}
}
