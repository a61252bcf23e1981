package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/betlink/hub/internal/admission"
	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/report"
)

// ReportHandler exposes report scheduling and retrieval to partners.
type ReportHandler struct {
	scheduler *report.Scheduler
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(scheduler *report.Scheduler) *ReportHandler {
	return &ReportHandler{scheduler: scheduler}
}

// Create handles POST /v1/reports.
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope := admission.ScopeFrom(r.Context())
	if scope == nil {
		RespondError(w, domain.ErrUnauthorized("no partner scope"))
		return
	}

	var req report.Request
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}
	req.RequestedBy = "apikey:" + scope.APIKeyID.String()

	job, err := h.scheduler.Schedule(r.Context(), scope.PartnerID, req)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, job)
}

// Status handles GET /v1/reports/{id}.
func (h *ReportHandler) Status(w http.ResponseWriter, r *http.Request) {
	scope := admission.ScopeFrom(r.Context())
	if scope == nil {
		RespondError(w, domain.ErrUnauthorized("no partner scope"))
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	job, err := h.scheduler.Status(r.Context(), scope.PartnerID, id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, job)
}

// Download handles GET /v1/reports/{id}/download. The file streams directly;
// this is the one endpoint that does not answer JSON.
func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	scope := admission.ScopeFrom(r.Context())
	if scope == nil {
		RespondError(w, domain.ErrUnauthorized("no partner scope"))
		return
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	dl, err := h.scheduler.OpenDownload(r.Context(), scope.PartnerID, id)
	if err != nil {
		RespondError(w, err)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, dl.Body)
}
