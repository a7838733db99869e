package appointments

import "errors"

// Domain error kinds. Each maps deterministically to an HTTP status at the
// boundary (internal/httpx) and is matched with errors.Is in tests.
var (
	// ErrInvalidDateTime is returned when no accepted date-time shape matches.
	ErrInvalidDateTime = errors.New("invalid date-time")

	// ErrTooSoon is returned when the requested instant is under one hour away.
	ErrTooSoon = errors.New("appointments must be booked at least one hour in advance")

	// ErrPastDate is returned for slot queries on days before today.
	ErrPastDate = errors.New("date is in the past")

	// ErrWeekendClosed is returned for doctor-bound bookings on Saturday or Sunday.
	ErrWeekendClosed = errors.New("doctor appointments are not available on weekends")

	// ErrOutsideWorkingHours is returned when the time misses the provider window.
	ErrOutsideWorkingHours = errors.New("requested time is outside working hours")

	// ErrSlotFull is returned when the canonical slot is at capacity.
	ErrSlotFull = errors.New("selected slot is fully booked")

	// ErrDuplicateForDay enforces one active appointment per patient, provider and day.
	ErrDuplicateForDay = errors.New("an appointment with this provider already exists for that day")

	// ErrInvalidPatient is returned when the booking user is not a patient account.
	ErrInvalidPatient = errors.New("patient account not found")

	// ErrDoctorUnavailable is returned when the doctor is missing, unapproved, or not a doctor.
	ErrDoctorUnavailable = errors.New("doctor not found or not accepting appointments")

	// ErrWorkingHoursNotConfigured is returned when the provider window is absent or inverted.
	ErrWorkingHoursNotConfigured = errors.New("working hours are not configured")

	// ErrPricingNotConfigured is returned when no virtual consultation price exists.
	ErrPricingNotConfigured = errors.New("virtual consultation pricing is not configured")

	// ErrVideoProvisioningFailed is returned when the video room or tokens could not be created.
	ErrVideoProvisioningFailed = errors.New("video call provisioning failed")

	// ErrInvalidTransition is returned for any edge missing from the lifecycle graph.
	ErrInvalidTransition = errors.New("transition not allowed from current status")

	// ErrNotAuthorized is returned when the actor is not the permitted party.
	ErrNotAuthorized = errors.New("not authorized for this appointment")

	// ErrNotFound is returned for unknown appointment ids.
	ErrNotFound = errors.New("appointment not found")

	// ErrRescheduleTooLate is returned inside the 24-hour reschedule horizon.
	ErrRescheduleTooLate = errors.New("reschedule requests must be made at least 24 hours before the appointment")

	// ErrConflict is returned when a concurrent writer holds the slot or appointment lock.
	ErrConflict = errors.New("appointment is being modified concurrently")
)
