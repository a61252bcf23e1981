package handler

import (
	"net/http"

	"github.com/betlink/hub/internal/aml"
	"github.com/betlink/hub/internal/domain"
)

// AMLHandler exposes the compliance review surface to back-office staff.
type AMLHandler struct {
	review *aml.ReviewService
}

// NewAMLHandler creates a new AMLHandler.
func NewAMLHandler(review *aml.ReviewService) *AMLHandler {
	return &AMLHandler{review: review}
}

// ListAlerts handles GET /admin/v1/aml/alerts.
func (h *AMLHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	f := queryFilter(r, "partner_id", "player_id", "alert_type", "severity", "status", "created_at")
	alerts, err := h.review.ListAlerts(r.Context(), f, queryPage(r), querySort(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// GetAlert handles GET /admin/v1/aml/alerts/{id}.
func (h *AMLHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	alert, err := h.review.GetAlert(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, alert)
}

// TransitionAlert handles POST /admin/v1/aml/alerts/{id}/status.
func (h *AMLHandler) TransitionAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	var body struct {
		Status domain.AlertStatus `json:"status"`
		Notes  string             `json:"notes"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		RespondError(w, err)
		return
	}

	alert, err := h.review.Transition(r.Context(), id, body.Status, body.Notes)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, alert)
}

// ListReports handles GET /admin/v1/aml/reports.
func (h *AMLHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	f := queryFilter(r, "partner_id", "player_id", "report_type", "status", "created_at")
	reports, err := h.review.ListReports(r.Context(), f, queryPage(r), querySort(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}
