package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/agora/internal/models"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes body as JSON with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteErrorWithDetails(w, statusCode, errorCode, message, "")
}

func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, errorCode, message, details string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}

// WriteDomainError maps a service error onto the envelope using its kind.
// Internal errors are logged and replaced with a generic message.
func WriteDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := models.Kind(err)
	switch {
	case errors.Is(kind, models.ErrBadRequest):
		WriteBadRequest(w, err.Error())
	case errors.Is(kind, models.ErrNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(kind, models.ErrForbidden):
		WriteForbidden(w, err.Error())
	case errors.Is(kind, models.ErrConflict):
		WriteConflict(w, err.Error())
	case errors.Is(kind, models.ErrUnauthorized):
		WriteUnauthorized(w, err.Error())
	case errors.Is(kind, models.ErrAccountLocked):
		WriteError(w, http.StatusForbidden, "account_locked", err.Error())
	default:
		if logger != nil {
			logger.Error("unhandled service error", slog.Any("error", err))
		}
		WriteInternalError(w, "an internal error occurred")
	}
}
