package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/idempotency"
)

type errorBody struct {
	Error     string   `json:"error"`
	Message   string   `json:"message,omitempty"`
	Fields    []string `json:"fields,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the two availability variants are checked before the
// generic conflict they both wrap.
var errorMappings = []errorMapping{
	{domain.ErrInvalidWindow, http.StatusUnprocessableEntity, "invalid_window"},
	{domain.ErrCapacityExceeded, http.StatusUnprocessableEntity, "capacity_exceeded"},
	{domain.ErrSlotTaken, http.StatusConflict, "slot_taken"},
	{domain.ErrUnavailable, http.StatusConflict, "unavailable"},
	{domain.ErrAvailabilityConflict, http.StatusConflict, "slot_taken"},
	{domain.ErrAuthenticationRequired, http.StatusUnauthorized, "authentication_required"},
	{domain.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "upstream_unavailable"},
	{domain.ErrSerializationFailure, http.StatusServiceUnavailable, "upstream_unavailable"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrIntentExpired, http.StatusGone, "intent_expired"},
	{domain.ErrIntentConsumed, http.StatusGone, "intent_consumed"},
	{domain.ErrIntentMismatch, http.StatusConflict, "intent_mismatch"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{idempotency.ErrInFlight, http.StatusConflict, "request_in_progress"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := errorBody{Error: code, Message: err.Error(), Retryable: domain.IsRetryable(err)}
	if status >= http.StatusInternalServerError {
		LoggerFrom(r.Context(), h.logger).WithError(err).Error("request failed")
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	if status == http.StatusInternalServerError {
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
