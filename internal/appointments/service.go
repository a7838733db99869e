package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinicore/clinic-platform/internal/directory"
	"github.com/clinicore/clinic-platform/internal/observability/metrics"
	"github.com/clinicore/clinic-platform/internal/timeutil"
	"github.com/clinicore/clinic-platform/pkg/logging"
)

// Store is the persistence surface the service drives. *Repository
// implements it; tests inject stubs.
type Store interface {
	Insert(ctx context.Context, a *Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	CountActiveInSlot(ctx context.Context, p ProviderKey, slotStart, slotEnd time.Time, excludeID *int64) (int, error)
	ListActiveInWindow(ctx context.Context, p ProviderKey, from, to time.Time) ([]*Appointment, error)
	HasActiveOnDay(ctx context.Context, patientID int64, p ProviderKey, dayStart, dayEnd time.Time, excludeID *int64) (bool, error)
	MarkConfirmed(ctx context.Context, id int64, at time.Time) (*Appointment, error)
	MarkRejected(ctx context.Context, id int64, reason string, at time.Time) (*Appointment, error)
	MarkRescheduleRequested(ctx context.Context, id int64, requested time.Time, reason string, at time.Time) (*Appointment, error)
	MarkRescheduleApproved(ctx context.Context, id int64, at time.Time) (*Appointment, error)
	MarkRescheduleRejected(ctx context.Context, id int64, reason string, at time.Time) (*Appointment, error)
	MarkCanceled(ctx context.Context, id int64, reason string, by CanceledBy, at time.Time) (*Appointment, error)
	MarkCompleted(ctx context.Context, id int64, consultationNotes, prescription string, at time.Time) (*Appointment, error)
	UpdateCallCredential(ctx context.Context, id int64, role CallRole, cred VideoCredential) error
	ListForPatient(ctx context.Context, patientID int64, f ListFilter) ([]*Appointment, int, error)
	ListForDoctor(ctx context.Context, doctorID int64, f ListFilter) ([]*Appointment, int, error)
	GetStats(ctx context.Context, scope StatsScope, subjectID int64, w StatsWindows) (*Stats, error)
}

// LockManager serialises the slot-capacity check and the per-appointment
// transitions. Release is safe to call with a fresh context after the
// request context is done.
type LockManager interface {
	Acquire(ctx context.Context, key string) (release func(context.Context), err error)
}

// Notifier fans out the side effects of a committed transition. Failures are
// the notifier's to log; they never roll the transition back.
type Notifier interface {
	Dispatch(ctx context.Context, event Event, a *Appointment) error
}

// VideoRoom is a freshly provisioned video room with both participant
// credentials.
type VideoRoom struct {
	RoomID  string
	Link    string
	Patient VideoCredential
	Doctor  VideoCredential
}

// VideoProvisioner creates rooms and renews participant tokens.
type VideoProvisioner interface {
	CreateRoom(ctx context.Context) (*VideoRoom, error)
	RenewToken(ctx context.Context, commUserID string) (VideoCredential, error)
}

// Service is the authoritative entry point for every appointment command.
type Service struct {
	repo      Store
	directory Directory
	locks     LockManager
	notifier  Notifier
	video     VideoProvisioner
	zone      *timeutil.Zone
	logger    *logging.Logger
	metrics   *metrics.AppointmentMetrics
	now       func() time.Time
}

// ServiceConfig wires the service's collaborators.
type ServiceConfig struct {
	Store     Store
	Directory Directory
	Locks     LockManager
	Notifier  Notifier
	Video     VideoProvisioner
	Zone      *timeutil.Zone
	Logger    *logging.Logger
	Metrics   *metrics.AppointmentMetrics
}

// NewService builds the appointment service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:      cfg.Store,
		directory: cfg.Directory,
		locks:     cfg.Locks,
		notifier:  cfg.Notifier,
		video:     cfg.Video,
		zone:      cfg.Zone,
		logger:    logger,
		metrics:   cfg.Metrics,
		now:       time.Now,
	}
}

// BookingRequest carries a booking command. DoctorID nil targets the virtual pool.
type BookingRequest struct {
	PatientID int64
	DoctorID  *int64
	When      string
	Kind      Kind
	Notes     string
}

func slotLockKey(p ProviderKey, slotStart time.Time) string {
	return fmt.Sprintf("slot:%s:%d", p, slotStart.Unix())
}

func appointmentLockKey(id int64) string {
	return fmt.Sprintf("appointment:%d", id)
}

// Book admits and persists a new appointment, then fans out notifications.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	p := ProviderKey{DoctorID: req.DoctorID}

	// The slot key needs the parsed instant; full admission re-runs under the lock.
	at, err := s.zone.ParseDateTime(req.When)
	if err != nil {
		return nil, ErrInvalidDateTime
	}
	slotStart := s.zone.SlotStart(at)

	release, err := s.locks.Acquire(ctx, slotLockKey(p, slotStart))
	if err != nil {
		return nil, ErrConflict
	}
	defer release(context.WithoutCancel(ctx))

	admitted, err := s.admit(ctx, req.PatientID, p, req.When, req.Kind, nil)
	if err != nil {
		s.metrics.ObserveTransition(string(EventBooked), "rejected")
		return nil, err
	}

	appt := &Appointment{
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		Kind:        req.Kind,
		Status:      StatusPending,
		ScheduledAt: admitted,
		Notes:       req.Notes,
	}

	if req.Kind == KindVirtual {
		room, err := s.video.CreateRoom(ctx)
		if err != nil {
			s.logger.Error("video room provisioning failed", "error", err, "patient_id", req.PatientID)
			return nil, ErrVideoProvisioningFailed
		}
		appt.RoomID = room.RoomID
		appt.VideoCallLink = room.Link
		appt.PatientCall = room.Patient
		appt.DoctorCall = room.Doctor
	}

	if p.Pool() {
		price, err := s.directory.VirtualConsultationPriceCents(ctx)
		if err != nil {
			if errors.Is(err, directory.ErrPriceNotFound) {
				return nil, ErrPricingNotConfigured
			}
			return nil, err
		}
		appt.PaymentRequired = true
		appt.PaymentStatus = "pending"
		appt.PaymentAmountCents = price
	}

	stored, err := s.repo.Insert(ctx, appt)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(EventBooked), "committed")
	s.logger.Info("appointment booked",
		"appointment_id", stored.ID, "patient_id", stored.PatientID,
		"provider", p.String(), "scheduled_at", stored.ScheduledAt)
	s.dispatch(ctx, EventBooked, stored)
	return stored, nil
}

// transitionFn applies the persisted state change once the guards pass.
type transitionFn func(ctx context.Context, a *Appointment, now time.Time) (*Appointment, error)

// transition serialises on the appointment, re-reads it, runs the lifecycle
// guard, applies fn, and dispatches the event.
func (s *Service) transition(ctx context.Context, actor Actor, id int64, event Event, fn transitionFn) (*Appointment, error) {
	release, err := s.locks.Acquire(ctx, appointmentLockKey(id))
	if err != nil {
		return nil, ErrConflict
	}
	defer release(context.WithoutCancel(ctx))

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	isPatient := patientOfRecord(a, actor)
	isDoctor, err := s.doctorOfRecord(ctx, a, actor)
	if err != nil {
		return nil, err
	}
	if err := guardTransition(a, event, isPatient, isDoctor); err != nil {
		s.metrics.ObserveTransition(string(event), "denied")
		return nil, err
	}

	updated, err := fn(ctx, a, s.now())
	if err != nil {
		s.metrics.ObserveTransition(string(event), "failed")
		return nil, err
	}

	s.metrics.ObserveTransition(string(event), "committed")
	s.logger.Info("appointment transition",
		"event", string(event), "appointment_id", updated.ID,
		"actor_id", actor.UserID, "status", string(updated.Status))
	s.dispatch(ctx, event, updated)
	return updated, nil
}

// Confirm moves a pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, actor Actor, id int64) (*Appointment, error) {
	return s.transition(ctx, actor, id, EventConfirm, func(ctx context.Context, _ *Appointment, now time.Time) (*Appointment, error) {
		return s.repo.MarkConfirmed(ctx, id, now)
	})
}

// Reject terminates a pending appointment with a reason.
func (s *Service) Reject(ctx context.Context, actor Actor, id int64, reason string) (*Appointment, error) {
	return s.transition(ctx, actor, id, EventReject, func(ctx context.Context, _ *Appointment, now time.Time) (*Appointment, error) {
		return s.repo.MarkRejected(ctx, id, reason, now)
	})
}

// RequestReschedule snapshots the current time and proposes a new one. The
// proposed instant passes the full admission battery with this appointment
// excluded from the occupancy counts.
func (s *Service) RequestReschedule(ctx context.Context, actor Actor, id int64, newWhen, reason string) (*Appointment, error) {
	return s.transition(ctx, actor, id, EventRequestReschedule, func(ctx context.Context, a *Appointment, now time.Time) (*Appointment, error) {
		if a.ScheduledAt.Sub(now) < rescheduleHorizon {
			return nil, ErrRescheduleTooLate
		}
		requested, err := s.admit(ctx, a.PatientID, a.Provider(), newWhen, a.Kind, &a.ID)
		if err != nil {
			return nil, err
		}
		return s.repo.MarkRescheduleRequested(ctx, id, requested, reason, now)
	})
}

// ApproveReschedule adopts the requested time.
func (s *Service) ApproveReschedule(ctx context.Context, actor Actor, id int64) (*Appointment, error) {
	return s.transition(ctx, actor, id, EventApproveReschedule, func(ctx context.Context, _ *Appointment, now time.Time) (*Appointment, error) {
		return s.repo.MarkRescheduleApproved(ctx, id, now)
	})
}

// RejectReschedule restores the snapshotted time and reconfirms.
func (s *Service) RejectReschedule(ctx context.Context, actor Actor, id int64, reason string) (*Appointment, error) {
	return s.transition(ctx, actor, id, EventRejectReschedule, func(ctx context.Context, _ *Appointment, now time.Time) (*Appointment, error) {
		return s.repo.MarkRescheduleRejected(ctx, id, reason, now)
	})
}

// Cancel terminates an active appointment; either party may cancel.
func (s *Service) Cancel(ctx context.Context, actor Actor, id int64, reason string) (*Appointment, error) {
	return s.transition(ctx, actor, id, EventCancel, func(ctx context.Context, a *Appointment, now time.Time) (*Appointment, error) {
		by := CanceledByDoctor
		if patientOfRecord(a, actor) {
			by = CanceledByPatient
		}
		return s.repo.MarkCanceled(ctx, id, reason, by, now)
	})
}

// Complete closes out a confirmed appointment with the clinical outcome.
func (s *Service) Complete(ctx context.Context, actor Actor, id int64, consultationNotes, prescription string) (*Appointment, error) {
	return s.transition(ctx, actor, id, EventComplete, func(ctx context.Context, _ *Appointment, now time.Time) (*Appointment, error) {
		return s.repo.MarkCompleted(ctx, id, consultationNotes, prescription, now)
	})
}

// Get returns one appointment to its patient, its doctor, or an admin.
func (s *Service) Get(ctx context.Context, actor Actor, id int64) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, a, actor); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) authorizeRead(ctx context.Context, a *Appointment, actor Actor) error {
	if actor.Role == directory.RoleAdmin || patientOfRecord(a, actor) {
		return nil
	}
	isDoctor, err := s.doctorOfRecord(ctx, a, actor)
	if err != nil {
		return err
	}
	if !isDoctor {
		return ErrNotAuthorized
	}
	return nil
}

// doctorOfRecord reports whether the actor is this appointment's doctor. For
// pool appointments any virtual-doctor account qualifies until one is
// assigned, after which only the assignee does.
func (s *Service) doctorOfRecord(ctx context.Context, a *Appointment, actor Actor) (bool, error) {
	if a.PoolVirtual() {
		if actor.Role != directory.RoleVirtualDoctor {
			return false, nil
		}
		if a.VirtualDoctorID != nil {
			return *a.VirtualDoctorID == actor.UserID, nil
		}
		return true, nil
	}
	if actor.Role != directory.RoleDoctor {
		return false, nil
	}
	doc, err := s.directory.DoctorByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrDoctorNotFound) {
			return false, nil
		}
		return false, err
	}
	return a.DoctorID != nil && doc.ID == *a.DoctorID, nil
}

// ListForPatient pages a patient's appointments; self or admin only.
func (s *Service) ListForPatient(ctx context.Context, actor Actor, patientID int64, f ListFilter) ([]*Appointment, int, error) {
	if actor.Role != directory.RoleAdmin && actor.UserID != patientID {
		return nil, 0, ErrNotAuthorized
	}
	return s.repo.ListForPatient(ctx, patientID, f)
}

// ListForDoctor pages a doctor's appointments; the doctor themselves or admin.
func (s *Service) ListForDoctor(ctx context.Context, actor Actor, doctorID int64, f ListFilter) ([]*Appointment, int, error) {
	if actor.Role != directory.RoleAdmin {
		if actor.Role != directory.RoleDoctor {
			return nil, 0, ErrNotAuthorized
		}
		doc, err := s.directory.DoctorByUserID(ctx, actor.UserID)
		if err != nil {
			return nil, 0, ErrNotAuthorized
		}
		if doc.ID != doctorID {
			return nil, 0, ErrNotAuthorized
		}
	}
	return s.repo.ListForDoctor(ctx, doctorID, f)
}

// DashboardStats aggregates status and period counts for a patient or doctor.
func (s *Service) DashboardStats(ctx context.Context, actor Actor, scope StatsScope, subjectID int64) (*Stats, error) {
	switch scope {
	case ScopePatient:
		if actor.Role != directory.RoleAdmin && actor.UserID != subjectID {
			return nil, ErrNotAuthorized
		}
	case ScopeDoctor:
		if actor.Role != directory.RoleAdmin {
			if actor.Role != directory.RoleDoctor {
				return nil, ErrNotAuthorized
			}
			doc, err := s.directory.DoctorByUserID(ctx, actor.UserID)
			if err != nil || doc.ID != subjectID {
				return nil, ErrNotAuthorized
			}
		}
	default:
		return nil, fmt.Errorf("appointments: unknown stats scope %q", scope)
	}

	now := s.now()
	var w StatsWindows
	w.DayStart, w.DayEnd = s.zone.DayBounds(now)
	w.WeekStart, w.WeekEnd = s.zone.WeekBounds(now)
	w.MonthStart, w.MonthEnd = s.zone.MonthBounds(now)
	return s.repo.GetStats(ctx, scope, subjectID, w)
}

// JoinCredentials is what a participant needs to enter the video room. Only
// the caller's own token is ever returned.
type JoinCredentials struct {
	RoomID          string `json:"roomId"`
	CommUserID      string `json:"commUserId"`
	Token           string `json:"token"`
	Role            string `json:"role"`
	AppointmentID   int64  `json:"appointmentId"`
	ParticipantName string `json:"participantName"`
}

// JoinVideo issues (renewing if expired) the caller's participant credentials
// for a confirmed virtual appointment.
func (s *Service) JoinVideo(ctx context.Context, actor Actor, id int64) (*JoinCredentials, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	isPatient := patientOfRecord(a, actor)
	isDoctor, err := s.doctorOfRecord(ctx, a, actor)
	if err != nil {
		return nil, err
	}
	if !isPatient && !isDoctor {
		return nil, ErrNotAuthorized
	}
	if a.Kind != KindVirtual || a.Status != StatusConfirmed {
		return nil, ErrInvalidTransition
	}

	cred := a.PatientCall
	callRole := CallRolePatient
	if isDoctor {
		cred = a.DoctorCall
		callRole = CallRoleDoctor
	}
	if !cred.Set() {
		return nil, ErrVideoProvisioningFailed
	}

	if cred.Expired(s.now()) {
		renewed, err := s.video.RenewToken(ctx, cred.UserID)
		if err != nil {
			s.logger.Error("video token renewal failed", "error", err, "appointment_id", id, "actor_id", actor.UserID)
			return nil, ErrVideoProvisioningFailed
		}
		renewed.UserID = cred.UserID
		if err := s.repo.UpdateCallCredential(ctx, id, callRole, renewed); err != nil {
			return nil, err
		}
		cred = renewed
	}

	user, err := s.directory.UserByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	return &JoinCredentials{
		RoomID:          a.RoomID,
		CommUserID:      cred.UserID,
		Token:           cred.Token,
		Role:            string(callRole),
		AppointmentID:   a.ID,
		ParticipantName: user.Name,
	}, nil
}

// dispatch hands the committed transition to the notifier. Best effort only.
func (s *Service) dispatch(ctx context.Context, event Event, a *Appointment) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Dispatch(ctx, event, a); err != nil {
		s.metrics.ObserveNotification("dispatch", "error")
		s.logger.Error("notification dispatch failed",
			"error", err, "event", string(event), "appointment_id", a.ID)
	}
}
