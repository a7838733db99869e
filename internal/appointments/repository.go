package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx used by the repository; pgxmock satisfies it
// in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointments in Postgres.
type Repository struct {
	db Querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for testing.
func NewRepositoryWithDB(db Querier) *Repository {
	return &Repository{db: db}
}

const appointmentColumns = `
	id, patient_id, doctor_id, virtual_doctor_id, kind, status,
	scheduled_at, booked_at, notes,
	confirmed_at, rejected_at, reschedule_requested_at, reschedule_approved_at,
	reschedule_rejected_at, canceled_at, completed_at,
	original_time, requested_time, reschedule_reason, reschedule_rejection_reason,
	rejection_reason, cancel_reason, canceled_by,
	consultation_notes, prescription,
	COALESCE(room_id, ''), video_call_link,
	patient_comm_user_id, patient_call_token, patient_token_expires_at,
	doctor_comm_user_id, doctor_call_token, doctor_token_expires_at,
	payment_required, payment_status, payment_amount_cents`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var canceledBy string
	if err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.VirtualDoctorID, &a.Kind, &a.Status,
		&a.ScheduledAt, &a.BookedAt, &a.Notes,
		&a.ConfirmedAt, &a.RejectedAt, &a.RescheduleRequestedAt, &a.RescheduleApprovedAt,
		&a.RescheduleRejectedAt, &a.CanceledAt, &a.CompletedAt,
		&a.OriginalTime, &a.RequestedTime, &a.RescheduleReason, &a.RescheduleRejectionReason,
		&a.RejectionReason, &a.CancelReason, &canceledBy,
		&a.ConsultationNotes, &a.Prescription,
		&a.RoomID, &a.VideoCallLink,
		&a.PatientCall.UserID, &a.PatientCall.Token, &a.PatientCall.ExpiresAt,
		&a.DoctorCall.UserID, &a.DoctorCall.Token, &a.DoctorCall.ExpiresAt,
		&a.PaymentRequired, &a.PaymentStatus, &a.PaymentAmountCents,
	); err != nil {
		return nil, err
	}
	a.CanceledBy = CanceledBy(canceledBy)
	return &a, nil
}

// Insert persists a freshly admitted booking and returns the stored row.
func (r *Repository) Insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	query := `
		INSERT INTO appointments (
			patient_id, doctor_id, virtual_doctor_id, kind, status, scheduled_at, notes,
			room_id, video_call_link,
			patient_comm_user_id, patient_call_token, patient_token_expires_at,
			doctor_comm_user_id, doctor_call_token, doctor_token_expires_at,
			payment_required, payment_status, payment_amount_cents
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING ` + appointmentColumns
	row := r.db.QueryRow(ctx, query,
		a.PatientID, a.DoctorID, a.VirtualDoctorID, a.Kind, StatusPending, a.ScheduledAt, a.Notes,
		a.RoomID, a.VideoCallLink,
		a.PatientCall.UserID, a.PatientCall.Token, a.PatientCall.ExpiresAt,
		a.DoctorCall.UserID, a.DoctorCall.Token, a.DoctorCall.ExpiresAt,
		a.PaymentRequired, a.PaymentStatus, a.PaymentAmountCents,
	)
	stored, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("appointments: insert: %w", err)
	}
	return stored, nil
}

// GetByID loads one appointment.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	a, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select: %w", err)
	}
	return a, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// providerClause scopes a query to a doctor or to the virtual pool and
// returns the predicate plus its argument, starting at index argIdx.
func providerClause(p ProviderKey, argIdx int) (string, []any) {
	if p.Pool() {
		return "doctor_id IS NULL", nil
	}
	return fmt.Sprintf("doctor_id = $%d", argIdx), []any{*p.DoctorID}
}

// CountActiveInSlot counts slot-occupying appointments for the provider in
// [slotStart, slotEnd), optionally excluding one appointment (reschedule re-check).
func (r *Repository) CountActiveInSlot(ctx context.Context, p ProviderKey, slotStart, slotEnd time.Time, excludeID *int64) (int, error) {
	clause, args := providerClause(p, 4)
	query := `
		SELECT COUNT(*)
		FROM appointments
		WHERE scheduled_at >= $1 AND scheduled_at < $2
		  AND status = ANY($3)
		  AND ` + clause
	allArgs := append([]any{slotStart, slotEnd, statusStrings(ActiveStatuses)}, args...)
	if excludeID != nil {
		query += fmt.Sprintf(" AND id <> $%d", len(allArgs)+1)
		allArgs = append(allArgs, *excludeID)
	}
	var count int
	if err := r.db.QueryRow(ctx, query, allArgs...).Scan(&count); err != nil {
		return 0, fmt.Errorf("appointments: count slot occupancy: %w", err)
	}
	return count, nil
}

// ListActiveInWindow returns slot-occupying appointments for the provider
// with scheduled_at in [from, to), ordered by time. Used by the slot calculator.
func (r *Repository) ListActiveInWindow(ctx context.Context, p ProviderKey, from, to time.Time) ([]*Appointment, error) {
	clause, args := providerClause(p, 4)
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE scheduled_at >= $1 AND scheduled_at < $2
		  AND status = ANY($3)
		  AND ` + clause + `
		ORDER BY scheduled_at`
	allArgs := append([]any{from, to, statusStrings(ActiveStatuses)}, args...)
	rows, err := r.db.Query(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list window: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan window row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: window rows: %w", err)
	}
	return out, nil
}

// HasActiveOnDay reports whether the patient already holds a slot-occupying
// appointment with the provider on the local day [dayStart, dayEnd).
func (r *Repository) HasActiveOnDay(ctx context.Context, patientID int64, p ProviderKey, dayStart, dayEnd time.Time, excludeID *int64) (bool, error) {
	clause, args := providerClause(p, 5)
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1
			  AND scheduled_at >= $2 AND scheduled_at < $3
			  AND status = ANY($4)
			  AND ` + clause
	allArgs := append([]any{patientID, dayStart, dayEnd, statusStrings(ActiveStatuses)}, args...)
	if excludeID != nil {
		query += fmt.Sprintf(" AND id <> $%d", len(allArgs)+1)
		allArgs = append(allArgs, *excludeID)
	}
	query += ")"
	var exists bool
	if err := r.db.QueryRow(ctx, query, allArgs...).Scan(&exists); err != nil {
		return false, fmt.Errorf("appointments: day uniqueness check: %w", err)
	}
	return exists, nil
}

// transitionRow runs a conditional UPDATE guarded by the expected from-states
// and returns the updated row. A raced row (no match) surfaces as
// ErrInvalidTransition: the second observer sees the new state.
func (r *Repository) transitionRow(ctx context.Context, query string, args ...any) (*Appointment, error) {
	a, err := scanAppointment(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("appointments: transition update: %w", err)
	}
	return a, nil
}

// MarkConfirmed moves pending → confirmed.
func (r *Repository) MarkConfirmed(ctx context.Context, id int64, at time.Time) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = 'confirmed', confirmed_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + appointmentColumns
	return r.transitionRow(ctx, query, id, at)
}

// MarkRejected moves pending → rejected.
func (r *Repository) MarkRejected(ctx context.Context, id int64, reason string, at time.Time) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = 'rejected', rejected_at = $2, rejection_reason = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + appointmentColumns
	return r.transitionRow(ctx, query, id, at, reason)
}

// MarkRescheduleRequested snapshots the current time and records the proposal.
func (r *Repository) MarkRescheduleRequested(ctx context.Context, id int64, requested time.Time, reason string, at time.Time) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = 'reschedule_requested',
		    original_time = scheduled_at,
		    requested_time = $2,
		    reschedule_reason = $3,
		    reschedule_requested_at = $4,
		    updated_at = now()
		WHERE id = $1 AND status = ANY($5)
		RETURNING ` + appointmentColumns
	return r.transitionRow(ctx, query, id, requested, reason, at,
		[]string{string(StatusPending), string(StatusConfirmed)})
}

// MarkRescheduleApproved adopts the requested time.
func (r *Repository) MarkRescheduleApproved(ctx context.Context, id int64, at time.Time) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = 'confirmed',
		    scheduled_at = requested_time,
		    requested_time = NULL,
		    reschedule_approved_at = $2,
		    updated_at = now()
		WHERE id = $1 AND status = 'reschedule_requested' AND requested_time IS NOT NULL
		RETURNING ` + appointmentColumns
	return r.transitionRow(ctx, query, id, at)
}

// MarkRescheduleRejected restores the snapshotted time.
func (r *Repository) MarkRescheduleRejected(ctx context.Context, id int64, reason string, at time.Time) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = 'confirmed',
		    scheduled_at = original_time,
		    requested_time = NULL,
		    reschedule_rejection_reason = $2,
		    reschedule_rejected_at = $3,
		    updated_at = now()
		WHERE id = $1 AND status = 'reschedule_requested' AND original_time IS NOT NULL
		RETURNING ` + appointmentColumns
	return r.transitionRow(ctx, query, id, reason, at)
}

// MarkCanceled terminates the appointment from any active state.
func (r *Repository) MarkCanceled(ctx context.Context, id int64, reason string, by CanceledBy, at time.Time) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = 'canceled', canceled_at = $2, cancel_reason = $3, canceled_by = $4, updated_at = now()
		WHERE id = $1 AND status = ANY($5)
		RETURNING ` + appointmentColumns
	return r.transitionRow(ctx, query, id, at, reason, string(by), statusStrings(ActiveStatuses))
}

// MarkCompleted moves confirmed → completed with the clinical outcome.
func (r *Repository) MarkCompleted(ctx context.Context, id int64, consultationNotes, prescription string, at time.Time) (*Appointment, error) {
	query := `
		UPDATE appointments
		SET status = 'completed', completed_at = $2, consultation_notes = $3, prescription = $4, updated_at = now()
		WHERE id = $1 AND status = 'confirmed'
		RETURNING ` + appointmentColumns
	return r.transitionRow(ctx, query, id, at, consultationNotes, prescription)
}

// CallRole selects which participant credential an update targets.
type CallRole string

const (
	CallRolePatient CallRole = "patient"
	CallRoleDoctor  CallRole = "doctor"
)

// UpdateCallCredential persists a renewed participant token.
func (r *Repository) UpdateCallCredential(ctx context.Context, id int64, role CallRole, cred VideoCredential) error {
	var query string
	switch role {
	case CallRolePatient:
		query = `UPDATE appointments SET patient_call_token = $2, patient_token_expires_at = $3, updated_at = now() WHERE id = $1`
	case CallRoleDoctor:
		query = `UPDATE appointments SET doctor_call_token = $2, doctor_token_expires_at = $3, updated_at = now() WHERE id = $1`
	default:
		return fmt.Errorf("appointments: unknown call role %q", role)
	}
	tag, err := r.db.Exec(ctx, query, id, cred.Token, cred.ExpiresAt)
	if err != nil {
		return fmt.Errorf("appointments: update call credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFilter narrows and pages the listing surface.
type ListFilter struct {
	Status *Status
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

func (f ListFilter) normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	return f
}

// ListForPatient returns the patient's appointments, newest first, with the
// total matching count for pagination.
func (r *Repository) ListForPatient(ctx context.Context, patientID int64, f ListFilter) ([]*Appointment, int, error) {
	return r.list(ctx, "patient_id", patientID, f)
}

// ListForDoctor is the doctor-side listing.
func (r *Repository) ListForDoctor(ctx context.Context, doctorID int64, f ListFilter) ([]*Appointment, int, error) {
	return r.list(ctx, "doctor_id", doctorID, f)
}

func (r *Repository) list(ctx context.Context, column string, subjectID int64, f ListFilter) ([]*Appointment, int, error) {
	f = f.normalized()

	where := fmt.Sprintf("WHERE %s = $1", column)
	args := []any{subjectID}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where += fmt.Sprintf(" AND scheduled_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where += fmt.Sprintf(" AND scheduled_at < $%d", len(args))
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM appointments " + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("appointments: count listing: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`SELECT %s FROM appointments %s ORDER BY scheduled_at DESC LIMIT $%d OFFSET $%d`,
		appointmentColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("appointments: scan listing row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("appointments: listing rows: %w", err)
	}
	return out, total, nil
}

// Stats are dashboard counts for one patient or doctor.
type Stats struct {
	Total              int64 `json:"total"`
	Pending            int64 `json:"pending"`
	Confirmed          int64 `json:"confirmed"`
	Completed          int64 `json:"completed"`
	Canceled           int64 `json:"canceled"`
	Today              int64 `json:"today"`
	ThisWeek           int64 `json:"thisWeek"`
	ThisMonth          int64 `json:"thisMonth"`
	RescheduleRequests int64 `json:"rescheduleRequests"`
}

// StatsScope selects the dashboard subject column.
type StatsScope string

const (
	ScopePatient StatsScope = "patient"
	ScopeDoctor  StatsScope = "doctor"
)

// StatsWindows carries the local-zone period bounds for today/week/month counts.
type StatsWindows struct {
	DayStart, DayEnd     time.Time
	WeekStart, WeekEnd   time.Time
	MonthStart, MonthEnd time.Time
}

// GetStats aggregates dashboard counts for the subject.
func (r *Repository) GetStats(ctx context.Context, scope StatsScope, subjectID int64, w StatsWindows) (*Stats, error) {
	column := "patient_id"
	if scope == ScopeDoctor {
		column = "doctor_id"
	}

	stats := &Stats{}
	countInto := func(dst *int64, predicate string, args ...any) error {
		query := fmt.Sprintf("SELECT COUNT(*) FROM appointments WHERE %s = $1", column)
		if predicate != "" {
			query += " AND " + predicate
		}
		allArgs := append([]any{subjectID}, args...)
		if err := r.db.QueryRow(ctx, query, allArgs...).Scan(dst); err != nil {
			return fmt.Errorf("appointments: stats count: %w", err)
		}
		return nil
	}

	if err := countInto(&stats.Total, ""); err != nil {
		return nil, err
	}
	if err := countInto(&stats.Pending, "status = 'pending'"); err != nil {
		return nil, err
	}
	if err := countInto(&stats.Confirmed, "status = 'confirmed'"); err != nil {
		return nil, err
	}
	if err := countInto(&stats.Completed, "status = 'completed'"); err != nil {
		return nil, err
	}
	if err := countInto(&stats.Canceled, "status = 'canceled'"); err != nil {
		return nil, err
	}
	if err := countInto(&stats.RescheduleRequests, "status = 'reschedule_requested'"); err != nil {
		return nil, err
	}
	if err := countInto(&stats.Today, "scheduled_at >= $2 AND scheduled_at < $3", w.DayStart, w.DayEnd); err != nil {
		return nil, err
	}
	if err := countInto(&stats.ThisWeek, "scheduled_at >= $2 AND scheduled_at < $3", w.WeekStart, w.WeekEnd); err != nil {
		return nil, err
	}
	if err := countInto(&stats.ThisMonth, "scheduled_at >= $2 AND scheduled_at < $3", w.MonthStart, w.MonthEnd); err != nil {
		return nil, err
	}
	return stats, nil
}
