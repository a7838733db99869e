package handlers

import (
	"context"
	"net/http"

	"github.com/clinicore/clinic-platform/internal/directory"
	"github.com/clinicore/clinic-platform/internal/httpx"
	"github.com/clinicore/clinic-platform/pkg/logging"
)

// DoctorDirectory lists the bookable doctors.
type DoctorDirectory interface {
	ListApprovedDoctors(ctx context.Context) ([]directory.DoctorListing, error)
}

// DirectoryHandler serves the doctor directory used by booking clients.
type DirectoryHandler struct {
	dir    DoctorDirectory
	logger *logging.Logger
}

func NewDirectoryHandler(dir DoctorDirectory, logger *logging.Logger) *DirectoryHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DirectoryHandler{dir: dir, logger: logger}
}

// ListDoctors handles GET /api/doctors.
func (h *DirectoryHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.dir.ListApprovedDoctors(r.Context())
	if err != nil {
		httpx.ServiceError(w, h.logger, err)
		return
	}
	if doctors == nil {
		doctors = []directory.DoctorListing{}
	}
	httpx.Success(w, http.StatusOK, map[string]any{"doctors": doctors})
}
