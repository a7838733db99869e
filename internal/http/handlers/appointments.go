package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clinicore/clinic-platform/internal/appointments"
	"github.com/clinicore/clinic-platform/internal/directory"
	"github.com/clinicore/clinic-platform/internal/http/middleware"
	"github.com/clinicore/clinic-platform/internal/httpx"
	"github.com/clinicore/clinic-platform/internal/timeutil"
	"github.com/clinicore/clinic-platform/pkg/logging"
)

// AppointmentService is the command and query surface the handler exposes.
// *appointments.Service implements it; tests inject stubs.
type AppointmentService interface {
	Book(ctx context.Context, req appointments.BookingRequest) (*appointments.Appointment, error)
	Confirm(ctx context.Context, actor appointments.Actor, id int64) (*appointments.Appointment, error)
	Reject(ctx context.Context, actor appointments.Actor, id int64, reason string) (*appointments.Appointment, error)
	RequestReschedule(ctx context.Context, actor appointments.Actor, id int64, newWhen, reason string) (*appointments.Appointment, error)
	ApproveReschedule(ctx context.Context, actor appointments.Actor, id int64) (*appointments.Appointment, error)
	RejectReschedule(ctx context.Context, actor appointments.Actor, id int64, reason string) (*appointments.Appointment, error)
	Cancel(ctx context.Context, actor appointments.Actor, id int64, reason string) (*appointments.Appointment, error)
	Complete(ctx context.Context, actor appointments.Actor, id int64, consultationNotes, prescription string) (*appointments.Appointment, error)
	Get(ctx context.Context, actor appointments.Actor, id int64) (*appointments.Appointment, error)
	ListForPatient(ctx context.Context, actor appointments.Actor, patientID int64, f appointments.ListFilter) ([]*appointments.Appointment, int, error)
	ListForDoctor(ctx context.Context, actor appointments.Actor, doctorID int64, f appointments.ListFilter) ([]*appointments.Appointment, int, error)
	DashboardStats(ctx context.Context, actor appointments.Actor, scope appointments.StatsScope, subjectID int64) (*appointments.Stats, error)
	JoinVideo(ctx context.Context, actor appointments.Actor, id int64) (*appointments.JoinCredentials, error)
}

// SlotReader computes the bookable slot grid.
type SlotReader interface {
	DaySlots(ctx context.Context, p appointments.ProviderKey, date string, kind appointments.Kind) (*appointments.SlotDay, error)
}

// AppointmentsHandler exposes the appointment lifecycle over HTTP.
type AppointmentsHandler struct {
	svc    AppointmentService
	slots  SlotReader
	zone   *timeutil.Zone
	logger *logging.Logger
}

func NewAppointmentsHandler(svc AppointmentService, slots SlotReader, zone *timeutil.Zone, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{svc: svc, slots: slots, zone: zone, logger: logger}
}

// actor extracts the authenticated principal. The auth middleware guarantees
// claims are present on every route this handler serves.
func actor(r *http.Request) appointments.Actor {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	return appointments.Actor{UserID: claims.UserID, Role: directory.Role(claims.Role)}
}

func pathID(r *http.Request) (int64, bool) {
	return pathParam(r, "id")
}

func pathParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

type bookRequest struct {
	// PatientID is accepted for wire compatibility but the authenticated
	// principal is authoritative.
	PatientID int64  `json:"patientId"`
	DoctorID  *int64 `json:"doctorId"`
	DateTime  string `json:"appointmentDateTime"`
	Type      string `json:"type"`
	Notes     string `json:"notes"`
}

// Book handles POST /api/appointments.
func (h *AppointmentsHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, err := appointments.ParseKind(req.Type)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if kind == appointments.KindPhysical && req.DoctorID == nil {
		httpx.Error(w, http.StatusBadRequest, "doctorId is required for physical appointments")
		return
	}

	a, err := h.svc.Book(r.Context(), appointments.BookingRequest{
		PatientID: actor(r).UserID,
		DoctorID:  req.DoctorID,
		When:      req.DateTime,
		Kind:      kind,
		Notes:     req.Notes,
	})
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusCreated, a)
}

// Get handles GET /api/appointments/{id}.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	a, err := h.svc.Get(r.Context(), actor(r), id)
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, a)
}

// decodeOptional decodes a JSON body when one was sent. The reason-carrying
// transitions all treat the body as optional.
func decodeOptional(r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return httpx.DecodeJSON(r, dst)
}

// transitionNoBody factors the reason-less PATCH transitions.
func (h *AppointmentsHandler) transitionNoBody(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, actor appointments.Actor, id int64) (*appointments.Appointment, error)) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	a, err := fn(r.Context(), actor(r), id)
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, a)
}

// transitionWithReason factors the PATCH transitions that carry a reason.
func (h *AppointmentsHandler) transitionWithReason(w http.ResponseWriter, r *http.Request, reason string,
	fn func(ctx context.Context, actor appointments.Actor, id int64, reason string) (*appointments.Appointment, error)) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	a, err := fn(r.Context(), actor(r), id, reason)
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, a)
}

// Confirm handles PATCH /api/appointments/{id}/confirm.
func (h *AppointmentsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transitionNoBody(w, r, h.svc.Confirm)
}

type rejectRequest struct {
	RejectionReason string `json:"rejectionReason"`
}

// Reject handles PATCH /api/appointments/{id}/reject.
func (h *AppointmentsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.transitionWithReason(w, r, req.RejectionReason, h.svc.Reject)
}

type rescheduleRequest struct {
	DateTime string `json:"newDateTime"`
	Reason   string `json:"rescheduleReason"`
}

// RequestReschedule handles PATCH /api/appointments/{id}/reschedule.
func (h *AppointmentsHandler) RequestReschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DateTime == "" {
		httpx.Error(w, http.StatusBadRequest, "newDateTime is required")
		return
	}
	a, err := h.svc.RequestReschedule(r.Context(), actor(r), id, req.DateTime, req.Reason)
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, a)
}

// ApproveReschedule handles PATCH /api/appointments/{id}/approve-reschedule.
func (h *AppointmentsHandler) ApproveReschedule(w http.ResponseWriter, r *http.Request) {
	h.transitionNoBody(w, r, h.svc.ApproveReschedule)
}

// RejectReschedule handles PATCH /api/appointments/{id}/reject-reschedule.
func (h *AppointmentsHandler) RejectReschedule(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.transitionWithReason(w, r, req.RejectionReason, h.svc.RejectReschedule)
}

type cancelRequest struct {
	CancelReason string `json:"cancelReason"`
}

// Cancel handles PATCH /api/appointments/{id}/cancel.
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.transitionWithReason(w, r, req.CancelReason, h.svc.Cancel)
}

type completeRequest struct {
	ConsultationNotes string `json:"consultationNotes"`
	Prescription      string `json:"prescription"`
}

// Complete handles PATCH /api/appointments/{id}/complete.
func (h *AppointmentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	var req completeRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := h.svc.Complete(r.Context(), actor(r), id, req.ConsultationNotes, req.Prescription)
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, a)
}

// listFilter reads the shared listing query parameters. Date bounds are local
// calendar days: fromDate is inclusive, toDate exclusive of the following day.
func (h *AppointmentsHandler) listFilter(r *http.Request) (appointments.ListFilter, error) {
	var f appointments.ListFilter
	q := r.URL.Query()

	if v := q.Get("status"); v != "" {
		st := appointments.Status(v)
		f.Status = &st
	}
	if v := q.Get("fromDate"); v != "" {
		day, err := h.zone.ParseDate(v)
		if err != nil {
			return f, err
		}
		from, _ := h.zone.DayBounds(day)
		f.From = &from
	}
	if v := q.Get("toDate"); v != "" {
		day, err := h.zone.ParseDate(v)
		if err != nil {
			return f, err
		}
		_, to := h.zone.DayBounds(day)
		f.To = &to
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	return f, nil
}

type listResponse struct {
	Appointments []*appointments.Appointment `json:"appointments"`
	Total        int                         `json:"total"`
	Page         int                         `json:"page"`
	Limit        int                         `json:"limit"`
}

func (h *AppointmentsHandler) list(w http.ResponseWriter, r *http.Request, param string,
	fn func(ctx context.Context, actor appointments.Actor, subjectID int64, f appointments.ListFilter) ([]*appointments.Appointment, int, error)) {
	id, ok := pathParam(r, param)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "invalid "+param)
		return
	}
	f, err := h.listFilter(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid date filter, expected YYYY-MM-DD")
		return
	}
	items, total, err := fn(r.Context(), actor(r), id, f)
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []*appointments.Appointment{}
	}
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	httpx.Success(w, http.StatusOK, listResponse{Appointments: items, Total: total, Page: page, Limit: limit})
}

// ListForPatient handles GET /api/appointments/user/{userId}.
func (h *AppointmentsHandler) ListForPatient(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "userId", h.svc.ListForPatient)
}

// ListForDoctor handles GET /api/appointments/doctor/{doctorId}.
func (h *AppointmentsHandler) ListForDoctor(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "doctorId", h.svc.ListForDoctor)
}

// AvailableSlots handles GET /api/appointments/doctors/{doctorId}/available-slots
// and GET /api/appointments/available-slots. The pool is addressed by the
// latter with no doctorId.
func (h *AppointmentsHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")
	if date == "" {
		httpx.Error(w, http.StatusBadRequest, "date is required")
		return
	}
	kind, err := appointments.ParseKind(q.Get("type"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	doctorParam := chi.URLParam(r, "doctorId")
	if doctorParam == "" {
		doctorParam = q.Get("doctorId")
	}
	p := appointments.PoolProvider()
	if doctorParam != "" {
		doctorID, err := strconv.ParseInt(doctorParam, 10, 64)
		if err != nil || doctorID <= 0 {
			httpx.Error(w, http.StatusBadRequest, "invalid doctorId")
			return
		}
		p = appointments.DoctorProvider(doctorID)
	} else if kind == appointments.KindPhysical {
		httpx.Error(w, http.StatusBadRequest, "doctorId is required for physical appointments")
		return
	}

	day, err := h.slots.DaySlots(r.Context(), p, date, kind)
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, day)
}

// DashboardStats handles GET /api/appointments/stats/dashboard.
func (h *AppointmentsHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var scope appointments.StatsScope
	switch q.Get("userType") {
	case "patient":
		scope = appointments.ScopePatient
	case "doctor":
		scope = appointments.ScopeDoctor
	default:
		httpx.Error(w, http.StatusBadRequest, "userType must be patient or doctor")
		return
	}
	subjectID, err := strconv.ParseInt(q.Get("userId"), 10, 64)
	if err != nil || subjectID <= 0 {
		httpx.Error(w, http.StatusBadRequest, "invalid userId")
		return
	}
	stats, err := h.svc.DashboardStats(r.Context(), actor(r), scope, subjectID)
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, stats)
}

// VideoCredentials handles GET /api/appointments/{id}/video-credentials.
func (h *AppointmentsHandler) VideoCredentials(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	creds, err := h.svc.JoinVideo(r.Context(), actor(r), id)
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, creds)
}
