package www

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"courierdesk/access"
	"courierdesk/bookings"
	"courierdesk/pricestate"
)

const maxBodyBytes = 1 << 20

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	h.jsonStatus(w, http.StatusOK, data)
}

func (h *Handlers) jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	h.jsonStatus(w, code, map[string]string{"error": msg})
}

// writeErr maps domain errors onto status codes. It never touches the session.
func (h *Handlers) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *bookings.ValidationError
	switch {
	case errors.As(err, &verr):
		h.jsonStatus(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, pricestate.ErrInvalidRates):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, bookings.ErrNotFound), errors.Is(err, access.ErrNotFound):
		h.jsonError(w, "not found", http.StatusNotFound)
	case errors.Is(err, access.ErrForbidden):
		h.jsonError(w, "forbidden", http.StatusForbidden)
	case bookings.IsTransition(err), errors.Is(err, bookings.ErrConflict):
		h.jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, bookings.ErrPersistence), errors.Is(err, pricestate.ErrStorage):
		h.log.Warn("www: storage unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		h.jsonStatus(w, http.StatusServiceUnavailable, map[string]any{
			"error":     "storage unavailable, try again",
			"retryable": true,
		})
	default:
		h.log.Error("www: request failed", zap.String("path", r.URL.Path), zap.Error(err))
		h.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// decodeJSON reads a bounded JSON body. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", bookings.ErrPersistence, err)
}

func badField(field, problem string) error {
	return &bookings.ValidationError{Fields: map[string]string{field: problem}}
}
