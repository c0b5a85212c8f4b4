package common_http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dizimo/internal/domain"
)

// maxBodyBytes bounds request bodies. Images travel base64 encoded inside JSON.
const maxBodyBytes = 12 << 20

type ErrorResponse struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func WriteMessage(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	WriteJSON(w, logger, status, ErrorResponse{Error: msg})
}

// StatusOf maps a service error to its HTTP status.
func StatusOf(err error) int {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyPaid):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPaymentExpired):
		return http.StatusNotAcceptable
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err with the status StatusOf picks. Internal failures
// are logged and their details are not sent to the client.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusOf(err)
	msg := err.Error()

	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		msg = vErr.Error()
	case status == http.StatusInternalServerError:
		if errors.Is(err, domain.ErrGateway) {
			logger.Error("Charge gateway failure", zap.Error(err))
			msg = "charge gateway unavailable"
		} else {
			logger.Error("Request failed", zap.Error(err))
			msg = "internal server error"
		}
	case status == http.StatusUnauthorized:
		msg = "unauthorized"
	case status == http.StatusForbidden:
		msg = "forbidden"
	}
	WriteMessage(w, logger, status, msg)
}

// DecodeJSON reads the request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("body", "is empty")
		}
		return domain.NewValidationError("body", err.Error())
	}
	return nil
}

// IntParam parses a numeric chi URL parameter.
func IntParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, fmt.Sprintf("%q is not a number", raw))
	}
	return n, nil
}

// IntQuery parses an optional numeric query parameter.
func IntQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, fmt.Sprintf("%q is not a number", raw))
	}
	return n, nil
}
