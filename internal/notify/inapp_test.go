package notify

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertNotification(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(int64(10), int64(7), TemplateAppointmentConfirmed, "Appointment Confirmed", "Your appointment is confirmed.").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(3), created))

	store := NewStoreWithDB(mock)
	n, err := store.Insert(context.Background(), 10, 7, Message{
		TemplateID: TemplateAppointmentConfirmed,
		Title:      "Appointment Confirmed",
		Body:       "Your appointment is confirmed.",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.ID)
	assert.Equal(t, int64(10), n.UserID)
	assert.Equal(t, created, n.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForUserUnreadOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"id", "user_id", "appointment_id", "template_id", "title", "body", "read", "created_at"}).
		AddRow(int64(2), int64(10), int64(7), TemplateAppointmentConfirmed, "Appointment Confirmed", "body", false, time.Now())
	mock.ExpectQuery(`AND read = FALSE`).
		WithArgs(int64(10), 50).
		WillReturnRows(rows)

	store := NewStoreWithDB(mock)
	out, err := store.ListForUser(context.Background(), 10, true, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].Read)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadOwnerScoped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE notifications SET read = TRUE`).
		WithArgs(int64(3), int64(10)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewStoreWithDB(mock)
	require.NoError(t, store.MarkRead(context.Background(), 3, 10))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE notifications SET read = TRUE`).
		WithArgs(int64(9), int64(10)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewStoreWithDB(mock)
	err = store.MarkRead(context.Background(), 9, 10)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
