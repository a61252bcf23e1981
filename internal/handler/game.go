package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/betlink/hub/internal/admission"
	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/game"
)

// callbackBodyLimit bounds provider callback payloads.
const callbackBodyLimit = 64 << 10

// GameHandler exposes the game catalog, session launch, and the provider
// callback endpoint.
type GameHandler struct {
	service *game.Service
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(service *game.Service) *GameHandler {
	return &GameHandler{service: service}
}

// gameListResponse wraps the catalog listing.
type gameListResponse struct {
	Games []domain.Game `json:"games"`
}

// ListGames handles GET /v1/games.
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	f := queryFilter(r, "category", "provider_id", "is_active", "name", "code")
	games, err := h.service.ListGames(r.Context(), f, queryPage(r), querySort(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, gameListResponse{Games: games})
}

// GetGame handles GET /v1/games/{game_id}.
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "game_id")
	if err != nil {
		RespondError(w, err)
		return
	}
	g, err := h.service.GetGame(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, g)
}

// Launch handles POST /v1/games/launch.
func (h *GameHandler) Launch(w http.ResponseWriter, r *http.Request) {
	scope := admission.ScopeFrom(r.Context())
	if scope == nil {
		RespondError(w, domain.ErrUnauthorized("no partner scope"))
		return
	}

	var req domain.LaunchRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.service.Launch(r.Context(), scope.PartnerID, req)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, result)
}

// EndSession handles DELETE /v1/games/sessions/{token}.
func (h *GameHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	scope := admission.ScopeFrom(r.Context())
	if scope == nil {
		RespondError(w, domain.ErrUnauthorized("no partner scope"))
		return
	}
	token := chi.URLParam(r, "token")
	if token == "" {
		RespondError(w, domain.ErrValidation("missing session token"))
		return
	}

	if err := h.service.EndSession(r.Context(), scope.PartnerID, token); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// Callback handles POST /v1/games/callback. The signature covers the raw
// body bytes, so the body must reach the engine unparsed.
func (h *GameHandler) Callback(w http.ResponseWriter, r *http.Request) {
	scope := admission.ScopeFrom(r.Context())
	if scope == nil {
		RespondError(w, domain.ErrUnauthorized("no partner scope"))
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, callbackBodyLimit))
	if err != nil {
		RespondError(w, domain.ErrValidation("unreadable body"))
		return
	}

	resp, err := h.service.ProcessCallback(r.Context(), scope.PartnerID, raw, r.Header.Get("X-Signature"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, resp)
}
