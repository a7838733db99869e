package appointments

import (
	"fmt"
	"time"
)

// Kind distinguishes in-person and video appointments.
type Kind string

const (
	KindPhysical Kind = "physical"
	KindVirtual  Kind = "virtual"
)

// Capacity is the per-slot booking limit for the kind.
func (k Kind) Capacity() int {
	if k == KindVirtual {
		return virtualSlotCapacity
	}
	return physicalSlotCapacity
}

// ParseKind validates a client-supplied kind string.
func ParseKind(v string) (Kind, error) {
	switch Kind(v) {
	case KindPhysical, KindVirtual:
		return Kind(v), nil
	}
	return "", fmt.Errorf("unknown appointment type %q", v)
}

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending             Status = "pending"
	StatusConfirmed           Status = "confirmed"
	StatusRescheduleRequested Status = "reschedule_requested"
	StatusRejected            Status = "rejected"
	StatusCanceled            Status = "canceled"
	StatusCompleted           Status = "completed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCanceled, StatusCompleted:
		return true
	}
	return false
}

// ActiveStatuses are the states that occupy slot capacity and count toward
// per-day uniqueness.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusRescheduleRequested}

// CanceledBy records which party canceled.
type CanceledBy string

const (
	CanceledByPatient CanceledBy = "patient"
	CanceledByDoctor  CanceledBy = "doctor"
)

const (
	physicalSlotCapacity = 1
	virtualSlotCapacity  = 3

	// bookingHorizon is the minimum lead time for any new or rescheduled slot.
	bookingHorizon = time.Hour

	// rescheduleHorizon is the minimum remaining lead time for a patient to
	// still request a reschedule.
	rescheduleHorizon = 24 * time.Hour
)

// VideoCredential is one participant's identity on the video provider.
type VideoCredential struct {
	UserID    string     `json:"commUserId"`
	Token     string     `json:"-"`
	ExpiresAt *time.Time `json:"tokenExpiry,omitempty"`
}

// Set reports whether the credential was provisioned.
func (c VideoCredential) Set() bool {
	return c.UserID != ""
}

// Expired reports whether the token must be renewed before issuance.
func (c VideoCredential) Expired(now time.Time) bool {
	return c.ExpiresAt == nil || !now.Before(*c.ExpiresAt)
}

// Appointment is the central entity. Transition timestamps are nil until the
// corresponding transition happens.
type Appointment struct {
	ID              int64  `json:"id"`
	PatientID       int64  `json:"patientId"`
	DoctorID        *int64 `json:"doctorId,omitempty"`
	VirtualDoctorID *int64 `json:"virtualDoctorId,omitempty"`
	Kind            Kind   `json:"type"`
	Status          Status `json:"status"`

	ScheduledAt time.Time `json:"appointmentDateTime"`
	BookedAt    time.Time `json:"bookingDate"`
	Notes       string    `json:"notes,omitempty"`

	ConfirmedAt           *time.Time `json:"confirmedAt,omitempty"`
	RejectedAt            *time.Time `json:"rejectedAt,omitempty"`
	RescheduleRequestedAt *time.Time `json:"rescheduleRequestedAt,omitempty"`
	RescheduleApprovedAt  *time.Time `json:"rescheduleApprovedAt,omitempty"`
	RescheduleRejectedAt  *time.Time `json:"rescheduleRejectedAt,omitempty"`
	CanceledAt            *time.Time `json:"canceledAt,omitempty"`
	CompletedAt           *time.Time `json:"completedAt,omitempty"`

	OriginalTime              *time.Time `json:"originalDateTime,omitempty"`
	RequestedTime             *time.Time `json:"requestedDateTime,omitempty"`
	RescheduleReason          string     `json:"rescheduleReason,omitempty"`
	RescheduleRejectionReason string     `json:"rescheduleRejectionReason,omitempty"`

	RejectionReason string     `json:"rejectionReason,omitempty"`
	CancelReason    string     `json:"cancelReason,omitempty"`
	CanceledBy      CanceledBy `json:"canceledBy,omitempty"`

	ConsultationNotes string `json:"consultationNotes,omitempty"`
	Prescription      string `json:"prescription,omitempty"`

	RoomID        string          `json:"roomId,omitempty"`
	VideoCallLink string          `json:"videoCallLink,omitempty"`
	PatientCall   VideoCredential `json:"patientCall,omitzero"`
	DoctorCall    VideoCredential `json:"doctorCall,omitzero"`

	PaymentRequired    bool   `json:"paymentRequired,omitempty"`
	PaymentStatus      string `json:"paymentStatus,omitempty"`
	PaymentAmountCents int64  `json:"paymentAmountCents,omitempty"`
}

// PoolVirtual reports whether the appointment belongs to the virtual pool
// rather than a specific doctor.
func (a *Appointment) PoolVirtual() bool {
	return a.DoctorID == nil
}

// Provider returns the capacity-control key for the appointment.
func (a *Appointment) Provider() ProviderKey {
	return ProviderKey{DoctorID: a.DoctorID}
}

// ProviderKey identifies the slot-capacity owner: a doctor, or the virtual
// pool when DoctorID is nil.
type ProviderKey struct {
	DoctorID *int64
}

// DoctorProvider keys capacity to a specific doctor.
func DoctorProvider(doctorID int64) ProviderKey {
	return ProviderKey{DoctorID: &doctorID}
}

// PoolProvider keys capacity to the shared virtual pool.
func PoolProvider() ProviderKey {
	return ProviderKey{}
}

// Pool reports whether the key addresses the virtual pool.
func (p ProviderKey) Pool() bool {
	return p.DoctorID == nil
}

// String renders a stable lock-key component for the provider.
func (p ProviderKey) String() string {
	if p.DoctorID == nil {
		return "virtual-pool"
	}
	return fmt.Sprintf("doctor:%d", *p.DoctorID)
}
