package handler

import (
	"net/http"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
)

// AuditHandler exposes audit log queries to back-office staff.
type AuditHandler struct {
	audits repository.AuditRepository
	db     repository.DBTX
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(audits repository.AuditRepository, db repository.DBTX) *AuditHandler {
	return &AuditHandler{audits: audits, db: db}
}

// List handles GET /admin/v1/audit-logs.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	f := queryFilter(r, "partner_id", "request_id", "method", "path", "response_status", "ip_address", "created_at")
	sort := querySort(r)
	if sort.Field == "" {
		sort = repository.Sort{Field: "created_at", Desc: true}
	}

	logs, err := h.audits.List(r.Context(), h.db, f, queryPage(r), sort)
	if err != nil {
		RespondError(w, domain.ErrValidation(err.Error()))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"audit_logs": logs})
}
