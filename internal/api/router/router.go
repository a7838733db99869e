// Package router assembles the HTTP surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicore/clinic-platform/internal/http/handlers"
	httpmiddleware "github.com/clinicore/clinic-platform/internal/http/middleware"
	"github.com/clinicore/clinic-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger        *logging.Logger
	Appointments  *handlers.AppointmentsHandler
	Notifications *handlers.NotificationsHandler
	Directory     *handlers.DirectoryHandler
	Health        *handlers.HealthHandler

	AuthSecret         string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Booking endpoints get a tighter per-IP budget than reads.
	BookingRateLimit float64
	BookingBurst     int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Health)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Authenticated API.
	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.Auth(cfg.AuthSecret))

		bookingLimit := cfg.BookingRateLimit
		bookingBurst := cfg.BookingBurst
		if bookingLimit <= 0 {
			bookingLimit = 5
		}
		if bookingBurst <= 0 {
			bookingBurst = 10
		}

		api.Route("/appointments", func(r chi.Router) {
			r.With(httpmiddleware.RateLimit(bookingLimit, bookingBurst)).Post("/", cfg.Appointments.Book)
			r.Get("/available-slots", cfg.Appointments.AvailableSlots)
			r.Get("/doctors/{doctorId}/available-slots", cfg.Appointments.AvailableSlots)
			r.Get("/stats/dashboard", cfg.Appointments.DashboardStats)
			r.Get("/user/{userId}", cfg.Appointments.ListForPatient)
			r.Get("/doctor/{doctorId}", cfg.Appointments.ListForDoctor)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cfg.Appointments.Get)
				r.Patch("/confirm", cfg.Appointments.Confirm)
				r.Patch("/reject", cfg.Appointments.Reject)
				r.Patch("/reschedule", cfg.Appointments.RequestReschedule)
				r.Patch("/approve-reschedule", cfg.Appointments.ApproveReschedule)
				r.Patch("/reject-reschedule", cfg.Appointments.RejectReschedule)
				r.Patch("/cancel", cfg.Appointments.Cancel)
				r.Patch("/complete", cfg.Appointments.Complete)
				r.Get("/video-credentials", cfg.Appointments.VideoCredentials)
			})
		})

		if cfg.Directory != nil {
			api.Get("/doctors", cfg.Directory.ListDoctors)
		}
		if cfg.Notifications != nil {
			api.Get("/notifications", cfg.Notifications.List)
			api.Patch("/notifications/{id}/read", cfg.Notifications.MarkRead)
		}
	})

	return r
}
