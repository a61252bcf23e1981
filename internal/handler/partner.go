package handler

import (
	"net/http"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/partner"
)

// PartnerHandler exposes tenant administration to back-office staff.
type PartnerHandler struct {
	service *partner.Service
}

// NewPartnerHandler creates a new PartnerHandler.
func NewPartnerHandler(service *partner.Service) *PartnerHandler {
	return &PartnerHandler{service: service}
}

// Create handles POST /admin/v1/partners.
func (h *PartnerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input partner.CreateInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, created)
}

// List handles GET /admin/v1/partners.
func (h *PartnerHandler) List(w http.ResponseWriter, r *http.Request) {
	f := queryFilter(r, "code", "name", "type", "status")
	partners, err := h.service.List(r.Context(), f, queryPage(r), querySort(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"partners": partners})
}

// Get handles GET /admin/v1/partners/{id}.
func (h *PartnerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// SetStatus handles POST /admin/v1/partners/{id}/status.
func (h *PartnerHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	var body struct {
		Status domain.PartnerStatus `json:"status"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		RespondError(w, err)
		return
	}

	p, err := h.service.SetStatus(r.Context(), id, body.Status)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// CreateKey handles POST /admin/v1/partners/{id}/keys. The response is the
// only place the key plaintext ever appears.
func (h *PartnerHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	var input partner.CreateKeyInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, err)
		return
	}

	created, err := h.service.CreateKey(r.Context(), id, input)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, created)
}

// ListKeys handles GET /admin/v1/partners/{id}/keys.
func (h *PartnerHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	keys, err := h.service.ListKeys(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"keys": keys})
}

// RevokeKey handles DELETE /admin/v1/partners/{id}/keys/{key_id}.
func (h *PartnerHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	keyID, err := pathUUID(r, "key_id")
	if err != nil {
		RespondError(w, err)
		return
	}

	if err := h.service.RevokeKey(r.Context(), id, keyID); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// AddIP handles POST /admin/v1/partners/{id}/ips.
func (h *PartnerHandler) AddIP(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}

	var body struct {
		CIDR  string `json:"cidr"`
		Label string `json:"label"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		RespondError(w, err)
		return
	}

	entry, err := h.service.AddIP(r.Context(), id, body.CIDR, body.Label)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, entry)
}

// ListIPs handles GET /admin/v1/partners/{id}/ips.
func (h *PartnerHandler) ListIPs(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	entries, err := h.service.ListIPs(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// RemoveIP handles DELETE /admin/v1/partners/{id}/ips/{entry_id}.
func (h *PartnerHandler) RemoveIP(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		RespondError(w, err)
		return
	}
	entryID, err := pathUUID(r, "entry_id")
	if err != nil {
		RespondError(w, err)
		return
	}

	if err := h.service.RemoveIP(r.Context(), id, entryID); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
