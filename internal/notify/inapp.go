package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotificationNotFound = errors.New("notify: notification not found")

// Notification is one in-app feed entry.
type Notification struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	AppointmentID int64     `json:"appointmentId"`
	TemplateID    string    `json:"templateId"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists the in-app notification feed.
type Store struct {
	db Querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// NewStoreWithDB allows injecting a mock Querier in tests.
func NewStoreWithDB(db Querier) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, userID, appointmentID int64, msg Message) (*Notification, error) {
	n := &Notification{
		UserID:        userID,
		AppointmentID: appointmentID,
		TemplateID:    msg.TemplateID,
		Title:         msg.Title,
		Body:          msg.Body,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO notifications (user_id, appointment_id, template_id, title, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		userID, appointmentID, msg.TemplateID, msg.Title, msg.Body,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("notify: insert notification: %w", err)
	}
	return n, nil
}

// ListForUser returns the newest notifications for a user, capped at limit.
func (s *Store) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := `
		SELECT id, user_id, appointment_id, template_id, title, body, read, created_at
		FROM notifications
		WHERE user_id = $1`
	if unreadOnly {
		q += ` AND read = FALSE`
	}
	q += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.AppointmentID, &n.TemplateID, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: list notifications: %w", err)
	}
	return out, nil
}

// MarkRead flags one notification as read. The user id is part of the
// predicate so a user cannot touch another user's feed.
func (s *Store) MarkRead(ctx context.Context, id, userID int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("notify: mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
