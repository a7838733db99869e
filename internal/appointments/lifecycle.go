package appointments

import (
	"slices"

	"github.com/clinicore/clinic-platform/internal/directory"
)

// Event names a lifecycle command. The transition table below is the only
// place edges are encoded; handlers and services consult it, never re-derive it.
type Event string

const (
	EventBooked             Event = "booked"
	EventConfirm            Event = "confirm"
	EventReject             Event = "reject"
	EventRequestReschedule  Event = "request_reschedule"
	EventApproveReschedule  Event = "approve_reschedule"
	EventRejectReschedule   Event = "reject_reschedule"
	EventCancel             Event = "cancel"
	EventComplete           Event = "complete"
)

// Actor is the authenticated principal attempting a command.
type Actor struct {
	UserID int64
	Role   directory.Role
}

type party int

const (
	partyPatient party = iota
	partyDoctor
	partyEither
)

type transition struct {
	by   party
	from []Status
}

var transitions = map[Event]transition{
	EventConfirm:           {partyDoctor, []Status{StatusPending}},
	EventReject:            {partyDoctor, []Status{StatusPending}},
	EventRequestReschedule: {partyPatient, []Status{StatusPending, StatusConfirmed}},
	EventApproveReschedule: {partyDoctor, []Status{StatusRescheduleRequested}},
	EventRejectReschedule:  {partyDoctor, []Status{StatusRescheduleRequested}},
	EventCancel:            {partyEither, ActiveStatuses},
	EventComplete:          {partyDoctor, []Status{StatusConfirmed}},
}

// guardTransition validates the (from-state, event, actor-party) triple.
// Wrong party fails before wrong state: an outsider learns nothing about the
// appointment's current status.
func guardTransition(a *Appointment, e Event, isPatient, isDoctor bool) error {
	t, ok := transitions[e]
	if !ok {
		return ErrInvalidTransition
	}
	switch t.by {
	case partyPatient:
		if !isPatient {
			return ErrNotAuthorized
		}
	case partyDoctor:
		if !isDoctor {
			return ErrNotAuthorized
		}
	case partyEither:
		if !isPatient && !isDoctor {
			return ErrNotAuthorized
		}
	}
	if !slices.Contains(t.from, a.Status) {
		return ErrInvalidTransition
	}
	return nil
}

// patientOfRecord reports whether the actor is the appointment's patient.
func patientOfRecord(a *Appointment, actor Actor) bool {
	return actor.Role == directory.RolePatient && actor.UserID == a.PatientID
}
