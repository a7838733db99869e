package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/clinic-platform/internal/directory"
	"github.com/clinicore/clinic-platform/internal/timeutil"
)

// admit runs the booking admission checks in order, short-circuiting on the
// first failure. excludeID removes the appointment being rescheduled from the
// capacity and uniqueness counts. On success it returns the admitted instant.
func (s *Service) admit(ctx context.Context, patientID int64, p ProviderKey, rawWhen string, kind Kind, excludeID *int64) (time.Time, error) {
	at, err := s.zone.ParseDateTime(rawWhen)
	if err != nil {
		return time.Time{}, ErrInvalidDateTime
	}

	now := s.now()
	if at.Before(now.Add(bookingHorizon)) {
		return time.Time{}, ErrTooSoon
	}

	patient, err := s.directory.UserByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return time.Time{}, ErrInvalidPatient
		}
		return time.Time{}, err
	}
	if patient.Role != directory.RolePatient {
		return time.Time{}, ErrInvalidPatient
	}

	if !p.Pool() {
		doc, err := s.directory.DoctorByID(ctx, *p.DoctorID)
		if err != nil {
			if errors.Is(err, directory.ErrDoctorNotFound) {
				return time.Time{}, ErrDoctorUnavailable
			}
			return time.Time{}, err
		}
		if !doc.Approved {
			return time.Time{}, ErrDoctorUnavailable
		}
		account, err := s.directory.UserByID(ctx, doc.UserID)
		if err != nil || account.Role != directory.RoleDoctor {
			return time.Time{}, ErrDoctorUnavailable
		}
		if s.zone.IsWeekend(at) {
			return time.Time{}, ErrWeekendClosed
		}
	}

	startMin, endMin, err := resolveWindow(ctx, s.directory, p)
	if err != nil {
		return time.Time{}, err
	}
	slotStart := s.zone.SlotStart(at)
	slotStartMin := s.zone.MinutesOfDay(slotStart)
	atMin := s.zone.MinutesOfDay(at)
	slotLenMin := int(timeutil.SlotLength / time.Minute)
	if atMin < startMin || atMin >= endMin || slotStartMin < startMin || slotStartMin+slotLenMin > endMin {
		return time.Time{}, ErrOutsideWorkingHours
	}

	count, err := s.repo.CountActiveInSlot(ctx, p, slotStart, slotStart.Add(timeutil.SlotLength), excludeID)
	if err != nil {
		return time.Time{}, err
	}
	if count >= kind.Capacity() {
		return time.Time{}, ErrSlotFull
	}

	dayStart, dayEnd := s.zone.DayBounds(at)
	dup, err := s.repo.HasActiveOnDay(ctx, patientID, p, dayStart, dayEnd, excludeID)
	if err != nil {
		return time.Time{}, err
	}
	if dup {
		return time.Time{}, ErrDuplicateForDay
	}

	return at, nil
}
