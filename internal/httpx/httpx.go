// Package httpx holds the shared response envelope and the mapping from
// domain errors to HTTP status codes.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinicore/clinic-platform/internal/appointments"
	"github.com/clinicore/clinic-platform/internal/directory"
	"github.com/clinicore/clinic-platform/internal/notify"
	"github.com/clinicore/clinic-platform/pkg/logging"
)

// Envelope is the body of every API response.
type Envelope struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func write(w http.ResponseWriter, code int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(env)
}

// Success writes a success envelope with the given payload.
func Success(w http.ResponseWriter, code int, data any) {
	write(w, code, Envelope{Status: "success", Code: code, Data: data})
}

// Error writes an error envelope with a caller-supplied message.
func Error(w http.ResponseWriter, code int, message string) {
	write(w, code, Envelope{Status: "error", Code: code, Message: message})
}

// badRequestErrs are domain validation failures the client can correct.
var badRequestErrs = []error{
	appointments.ErrInvalidDateTime,
	appointments.ErrTooSoon,
	appointments.ErrPastDate,
	appointments.ErrWeekendClosed,
	appointments.ErrOutsideWorkingHours,
	appointments.ErrSlotFull,
	appointments.ErrDuplicateForDay,
	appointments.ErrWorkingHoursNotConfigured,
	appointments.ErrPricingNotConfigured,
	appointments.ErrInvalidTransition,
	appointments.ErrRescheduleTooLate,
}

var notFoundErrs = []error{
	appointments.ErrNotFound,
	appointments.ErrInvalidPatient,
	appointments.ErrDoctorUnavailable,
	directory.ErrUserNotFound,
	directory.ErrDoctorNotFound,
	notify.ErrNotificationNotFound,
}

// StatusFor maps a service error to its HTTP status code.
func StatusFor(err error) int {
	for _, e := range badRequestErrs {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	for _, e := range notFoundErrs {
		if errors.Is(err, e) {
			return http.StatusNotFound
		}
	}
	switch {
	case errors.Is(err, appointments.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, appointments.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ServiceError translates a service-layer error into an envelope. Internal
// failures are logged with their cause and surfaced with a generic message.
func ServiceError(w http.ResponseWriter, logger *logging.Logger, err error) {
	code := StatusFor(err)
	if code == http.StatusInternalServerError && !errors.Is(err, appointments.ErrVideoProvisioningFailed) {
		if logger != nil {
			logger.Error("internal error", "error", err)
		}
		Error(w, code, "internal server error")
		return
	}
	Error(w, code, err.Error())
}

// DecodeJSON decodes a request body, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
