package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clinicore/clinic-platform/internal/http/middleware"
	"github.com/clinicore/clinic-platform/internal/httpx"
	"github.com/clinicore/clinic-platform/internal/notify"
	"github.com/clinicore/clinic-platform/pkg/logging"
)

// NotificationFeed is the in-app feed surface the handler reads.
type NotificationFeed interface {
	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]notify.Notification, error)
	MarkRead(ctx context.Context, id, userID int64) error
}

// NotificationsHandler serves the authenticated user's in-app feed.
type NotificationsHandler struct {
	feed   NotificationFeed
	logger *logging.Logger
}

func NewNotificationsHandler(feed NotificationFeed, logger *logging.Logger) *NotificationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &NotificationsHandler{feed: feed, logger: logger}
}

// List handles GET /api/notifications.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	q := r.URL.Query()
	unreadOnly := q.Get("unread") == "true"
	limit, _ := strconv.Atoi(q.Get("limit"))

	items, err := h.feed.ListForUser(r.Context(), claims.UserID, unreadOnly, limit)
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []notify.Notification{}
	}
	httpx.Success(w, http.StatusOK, map[string]any{"notifications": items})
}

// MarkRead handles PATCH /api/notifications/{id}/read.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := h.feed.MarkRead(r.Context(), id, claims.UserID); err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"id": id, "read": true})
}
