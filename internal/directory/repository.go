package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUserNotFound is returned when no user row matches.
	ErrUserNotFound = errors.New("user not found")

	// ErrDoctorNotFound is returned when no doctor profile matches.
	ErrDoctorNotFound = errors.New("doctor not found")

	// ErrVirtualSettingsNotFound is returned when no active virtual window exists.
	ErrVirtualSettingsNotFound = errors.New("virtual appointment settings not found")

	// ErrPriceNotFound is returned when the virtual consultation price is absent.
	ErrPriceNotFound = errors.New("virtual consultation price not found")
)

// Querier is the subset of pgx used by the repository; pgxmock satisfies it
// in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads identity and configuration rows owned by other services.
type Repository struct {
	db Querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("directory: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting a mock database for testing.
func NewRepositoryWithDB(db Querier) *Repository {
	return &Repository{db: db}
}

// UserByID loads a single user.
func (r *Repository) UserByID(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, name, email, phone, role, COALESCE(push_token, ''), notifications_enabled
		FROM users
		WHERE id = $1
	`
	var u User
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.PushToken, &u.NotificationsEnabled,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("directory: select user: %w", err)
	}
	return &u, nil
}

// DoctorByID loads a doctor profile by doctor id.
func (r *Repository) DoctorByID(ctx context.Context, id int64) (*Doctor, error) {
	query := `
		SELECT id, user_id, approved, COALESCE(start_time, ''), COALESCE(end_time, '')
		FROM doctors
		WHERE id = $1
	`
	return r.scanDoctor(r.db.QueryRow(ctx, query, id))
}

// DoctorByUserID loads a doctor profile by its backing user account.
func (r *Repository) DoctorByUserID(ctx context.Context, userID int64) (*Doctor, error) {
	query := `
		SELECT id, user_id, approved, COALESCE(start_time, ''), COALESCE(end_time, '')
		FROM doctors
		WHERE user_id = $1
	`
	return r.scanDoctor(r.db.QueryRow(ctx, query, userID))
}

func (r *Repository) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.UserID, &d.Approved, &d.StartTime, &d.EndTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("directory: select doctor: %w", err)
	}
	return &d, nil
}

// ListApprovedDoctors returns approved doctor profiles joined with their
// account names, for the booking directory surface.
type DoctorListing struct {
	Doctor
	Name  string
	Email string
}

func (r *Repository) ListApprovedDoctors(ctx context.Context) ([]DoctorListing, error) {
	query := `
		SELECT d.id, d.user_id, d.approved, COALESCE(d.start_time, ''), COALESCE(d.end_time, ''), u.name, u.email
		FROM doctors d
		JOIN users u ON u.id = d.user_id
		WHERE d.approved AND u.role = 'doctor'
		ORDER BY u.name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("directory: list doctors: %w", err)
	}
	defer rows.Close()

	var out []DoctorListing
	for rows.Next() {
		var dl DoctorListing
		if err := rows.Scan(&dl.ID, &dl.UserID, &dl.Approved, &dl.StartTime, &dl.EndTime, &dl.Name, &dl.Email); err != nil {
			return nil, fmt.Errorf("directory: scan doctor listing: %w", err)
		}
		out = append(out, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: list doctors rows: %w", err)
	}
	return out, nil
}

// ActiveVirtualSettings returns the most recent active virtual-pool window.
func (r *Repository) ActiveVirtualSettings(ctx context.Context) (*VirtualSettings, error) {
	query := `
		SELECT id, COALESCE(start_time, ''), COALESCE(end_time, ''), active
		FROM admin_virtual_settings
		WHERE active
		ORDER BY created_at DESC
		LIMIT 1
	`
	var vs VirtualSettings
	if err := r.db.QueryRow(ctx, query).Scan(&vs.ID, &vs.StartTime, &vs.EndTime, &vs.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVirtualSettingsNotFound
		}
		return nil, fmt.Errorf("directory: select virtual settings: %w", err)
	}
	return &vs, nil
}

// VirtualConsultationPriceCents returns the active price for a pool-virtual
// consultation.
func (r *Repository) VirtualConsultationPriceCents(ctx context.Context) (int64, error) {
	query := `
		SELECT price_cents
		FROM service_prices
		WHERE service_key = 'virtual_consultation' AND active
		ORDER BY created_at DESC
		LIMIT 1
	`
	var cents int64
	if err := r.db.QueryRow(ctx, query).Scan(&cents); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrPriceNotFound
		}
		return 0, fmt.Errorf("directory: select virtual price: %w", err)
	}
	return cents, nil
}

// ClearPushToken removes a device token the push gateway reported as invalid.
func (r *Repository) ClearPushToken(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET push_token = NULL WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("directory: clear push token: %w", err)
	}
	return nil
}
