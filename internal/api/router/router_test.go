package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicore/clinic-platform/internal/http/handlers"
	"github.com/clinicore/clinic-platform/pkg/logging"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newTestRouter() http.Handler {
	return New(&Config{
		Logger:     logging.New("error"),
		Health:     handlers.NewHealthHandler(okPinger{}),
		AuthSecret: "secret",
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	})
}

func TestHealthIsPublic(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsIsPublic(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresAuth(t *testing.T) {
	r := New(&Config{
		Logger:        logging.New("error"),
		Appointments:  handlers.NewAppointmentsHandler(nil, nil, nil, nil),
		Notifications: handlers.NewNotificationsHandler(nil, nil),
		Directory:     handlers.NewDirectoryHandler(nil, nil),
		AuthSecret:    "secret",
	})

	for _, target := range []string{
		"/api/appointments/7",
		"/api/doctors",
		"/api/notifications",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}
