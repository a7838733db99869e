package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-platform/internal/appointments"
	"github.com/clinicore/clinic-platform/internal/http/middleware"
	"github.com/clinicore/clinic-platform/internal/timeutil"
	"github.com/clinicore/clinic-platform/pkg/logging"
)

const testSecret = "test-secret"

type stubService struct {
	appointment *appointments.Appointment
	creds       *appointments.JoinCredentials
	stats       *appointments.Stats
	err         error

	lastBooking appointments.BookingRequest
	lastActor   appointments.Actor
	lastID      int64
	lastWhen    string
	lastReason  string
	lastFilter  appointments.ListFilter
}

func (s *stubService) Book(_ context.Context, req appointments.BookingRequest) (*appointments.Appointment, error) {
	s.lastBooking = req
	return s.appointment, s.err
}

func (s *stubService) transition(actor appointments.Actor, id int64, reason string) (*appointments.Appointment, error) {
	s.lastActor, s.lastID, s.lastReason = actor, id, reason
	return s.appointment, s.err
}

func (s *stubService) Confirm(_ context.Context, actor appointments.Actor, id int64) (*appointments.Appointment, error) {
	return s.transition(actor, id, "")
}

func (s *stubService) Reject(_ context.Context, actor appointments.Actor, id int64, reason string) (*appointments.Appointment, error) {
	return s.transition(actor, id, reason)
}

func (s *stubService) RequestReschedule(_ context.Context, actor appointments.Actor, id int64, when, reason string) (*appointments.Appointment, error) {
	s.lastWhen = when
	return s.transition(actor, id, reason)
}

func (s *stubService) ApproveReschedule(_ context.Context, actor appointments.Actor, id int64) (*appointments.Appointment, error) {
	return s.transition(actor, id, "")
}

func (s *stubService) RejectReschedule(_ context.Context, actor appointments.Actor, id int64, reason string) (*appointments.Appointment, error) {
	return s.transition(actor, id, reason)
}

func (s *stubService) Cancel(_ context.Context, actor appointments.Actor, id int64, reason string) (*appointments.Appointment, error) {
	return s.transition(actor, id, reason)
}

func (s *stubService) Complete(_ context.Context, actor appointments.Actor, id int64, notes, prescription string) (*appointments.Appointment, error) {
	return s.transition(actor, id, notes)
}

func (s *stubService) Get(_ context.Context, actor appointments.Actor, id int64) (*appointments.Appointment, error) {
	return s.transition(actor, id, "")
}

func (s *stubService) ListForPatient(_ context.Context, actor appointments.Actor, id int64, f appointments.ListFilter) ([]*appointments.Appointment, int, error) {
	s.lastActor, s.lastID, s.lastFilter = actor, id, f
	if s.err != nil {
		return nil, 0, s.err
	}
	return []*appointments.Appointment{s.appointment}, 1, nil
}

func (s *stubService) ListForDoctor(_ context.Context, actor appointments.Actor, id int64, f appointments.ListFilter) ([]*appointments.Appointment, int, error) {
	return s.ListForPatient(nil, actor, id, f)
}

func (s *stubService) DashboardStats(_ context.Context, actor appointments.Actor, scope appointments.StatsScope, id int64) (*appointments.Stats, error) {
	s.lastActor, s.lastID = actor, id
	return s.stats, s.err
}

func (s *stubService) JoinVideo(_ context.Context, actor appointments.Actor, id int64) (*appointments.JoinCredentials, error) {
	s.lastActor, s.lastID = actor, id
	return s.creds, s.err
}

type stubSlots struct {
	day  *appointments.SlotDay
	err  error
	last appointments.ProviderKey
}

func (s *stubSlots) DaySlots(_ context.Context, p appointments.ProviderKey, _ string, _ appointments.Kind) (*appointments.SlotDay, error) {
	s.last = p
	return s.day, s.err
}

func testRouter(svc *stubService, slots *stubSlots) http.Handler {
	zone := timeutil.MustLoadZone("Asia/Kolkata")
	h := NewAppointmentsHandler(svc, slots, zone, logging.New("error"))

	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Auth(testSecret))
		api.Post("/appointments", h.Book)
		api.Get("/appointments/available-slots", h.AvailableSlots)
		api.Get("/appointments/doctors/{doctorId}/available-slots", h.AvailableSlots)
		api.Get("/appointments/stats/dashboard", h.DashboardStats)
		api.Get("/appointments/user/{userId}", h.ListForPatient)
		api.Get("/appointments/{id}", h.Get)
		api.Patch("/appointments/{id}/confirm", h.Confirm)
		api.Patch("/appointments/{id}/cancel", h.Cancel)
		api.Patch("/appointments/{id}/reschedule", h.RequestReschedule)
		api.Get("/appointments/{id}/video-credentials", h.VideoCredentials)
	})
	return r
}

func authedRequest(t *testing.T, method, target string, body any, userID int64, role string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	token, err := middleware.IssueToken(testSecret, userID, role, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestBookEndpoint(t *testing.T) {
	svc := &stubService{appointment: &appointments.Appointment{ID: 7, Status: appointments.StatusPending}}
	r := testRouter(svc, &stubSlots{})

	docID := int64(2)
	req := authedRequest(t, http.MethodPost, "/api/appointments", map[string]any{
		"doctorId":            docID,
		"appointmentDateTime": "2026-09-02T10:00:00",
		"type":                "physical",
		"notes":               "knee pain",
	}, 10, "patient")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "success", env["status"])

	assert.Equal(t, int64(10), svc.lastBooking.PatientID)
	require.NotNil(t, svc.lastBooking.DoctorID)
	assert.Equal(t, docID, *svc.lastBooking.DoctorID)
	assert.Equal(t, appointments.KindPhysical, svc.lastBooking.Kind)
	assert.Equal(t, "knee pain", svc.lastBooking.Notes)
}

func TestBookRequiresAuth(t *testing.T) {
	r := testRouter(&stubService{}, &stubSlots{})

	req := httptest.NewRequest(http.MethodPost, "/api/appointments", bytes.NewBufferString("{}"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookValidation(t *testing.T) {
	r := testRouter(&stubService{}, &stubSlots{})

	// Unknown type.
	req := authedRequest(t, http.MethodPost, "/api/appointments", map[string]any{
		"appointmentDateTime": "2026-09-02T10:00:00",
		"type":                "house-call",
	}, 10, "patient")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Physical without a doctor.
	req = authedRequest(t, http.MethodPost, "/api/appointments", map[string]any{
		"appointmentDateTime": "2026-09-02T10:00:00",
		"type":                "physical",
	}, 10, "patient")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookDomainErrorMapping(t *testing.T) {
	svc := &stubService{err: appointments.ErrSlotFull}
	r := testRouter(svc, &stubSlots{})

	docID := int64(2)
	req := authedRequest(t, http.MethodPost, "/api/appointments", map[string]any{
		"doctorId":            docID,
		"appointmentDateTime": "2026-09-02T10:00:00",
		"type":                "physical",
	}, 10, "patient")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "error", env["status"])
	assert.Contains(t, env["message"], "slot")
}

func TestConfirmEndpoint(t *testing.T) {
	svc := &stubService{appointment: &appointments.Appointment{ID: 7, Status: appointments.StatusConfirmed}}
	r := testRouter(svc, &stubSlots{})

	req := authedRequest(t, http.MethodPatch, "/api/appointments/7/confirm", nil, 20, "doctor")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), svc.lastID)
	assert.Equal(t, int64(20), svc.lastActor.UserID)
}

func TestCancelCarriesReason(t *testing.T) {
	svc := &stubService{appointment: &appointments.Appointment{ID: 7}}
	r := testRouter(svc, &stubSlots{})

	req := authedRequest(t, http.MethodPatch, "/api/appointments/7/cancel",
		map[string]string{"cancelReason": "feeling better"}, 10, "patient")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "feeling better", svc.lastReason)
}

func TestRescheduleRequiresDateTime(t *testing.T) {
	svc := &stubService{appointment: &appointments.Appointment{ID: 7}}
	r := testRouter(svc, &stubSlots{})

	req := authedRequest(t, http.MethodPatch, "/api/appointments/7/reschedule",
		map[string]string{"rescheduleReason": "conflict"}, 10, "patient")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = authedRequest(t, http.MethodPatch, "/api/appointments/7/reschedule",
		map[string]string{"newDateTime": "2026-09-03T14:00:00"}, 10, "patient")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-09-03T14:00:00", svc.lastWhen)
}

func TestListFilterParsing(t *testing.T) {
	svc := &stubService{appointment: &appointments.Appointment{ID: 7}}
	r := testRouter(svc, &stubSlots{})

	req := authedRequest(t, http.MethodGet,
		"/api/appointments/user/10?status=confirmed&fromDate=2026-09-01&toDate=2026-09-30&page=2&limit=5",
		nil, 10, "patient")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastFilter.Status)
	assert.Equal(t, appointments.StatusConfirmed, *svc.lastFilter.Status)
	require.NotNil(t, svc.lastFilter.From)
	require.NotNil(t, svc.lastFilter.To)
	// toDate is inclusive: the bound is the end of that local day.
	assert.Equal(t, 29*24*time.Hour+24*time.Hour, svc.lastFilter.To.Sub(*svc.lastFilter.From))
	assert.Equal(t, 2, svc.lastFilter.Page)
	assert.Equal(t, 5, svc.lastFilter.Limit)
}

func TestAvailableSlotsEndpoint(t *testing.T) {
	slots := &stubSlots{day: &appointments.SlotDay{Date: "2026-09-02", Slots: []appointments.Slot{}}}
	r := testRouter(&stubService{}, slots)

	req := authedRequest(t, http.MethodGet,
		"/api/appointments/doctors/2/available-slots?date=2026-09-02&type=physical", nil, 10, "patient")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, slots.last.DoctorID)
	assert.Equal(t, int64(2), *slots.last.DoctorID)

	// Virtual without doctorId targets the pool.
	req = authedRequest(t, http.MethodGet,
		"/api/appointments/available-slots?date=2026-09-02&type=virtual", nil, 10, "patient")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, slots.last.Pool())

	// Physical requires a doctor.
	req = authedRequest(t, http.MethodGet,
		"/api/appointments/available-slots?date=2026-09-02&type=physical", nil, 10, "patient")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardStatsEndpoint(t *testing.T) {
	svc := &stubService{stats: &appointments.Stats{Total: 12, Pending: 3}}
	r := testRouter(svc, &stubSlots{})

	req := authedRequest(t, http.MethodGet,
		"/api/appointments/stats/dashboard?userType=doctor&userId=2", nil, 20, "doctor")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), svc.lastID)

	req = authedRequest(t, http.MethodGet,
		"/api/appointments/stats/dashboard?userType=alien&userId=2", nil, 20, "doctor")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVideoCredentialsEndpoint(t *testing.T) {
	svc := &stubService{creds: &appointments.JoinCredentials{RoomID: "room-1", Token: "tok", Role: "patient"}}
	r := testRouter(svc, &stubSlots{})

	req := authedRequest(t, http.MethodGet, "/api/appointments/7/video-credentials", nil, 10, "patient")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env["data"].(map[string]any)
	assert.Equal(t, "room-1", data["roomId"])
	assert.Equal(t, "tok", data["token"])
}

func TestForbiddenMapping(t *testing.T) {
	svc := &stubService{err: appointments.ErrNotAuthorized}
	r := testRouter(svc, &stubSlots{})

	req := authedRequest(t, http.MethodGet, "/api/appointments/7", nil, 11, "patient")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
