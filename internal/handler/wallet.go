package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/betlink/hub/internal/admission"
	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/wallet"
)

// Analyzer receives completed transactions for risk scoring after the ledger
// write commits.
type Analyzer interface {
	AnalyzeLogged(ctx context.Context, t *domain.Transaction)
}

// Tasks runs deferred work off the request path.
type Tasks interface {
	Submit(name string, fn func(context.Context) error) bool
}

// WalletHandler exposes the ledger engine to partners.
type WalletHandler struct {
	engine   *wallet.Engine
	analyzer Analyzer
	tasks    Tasks
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(engine *wallet.Engine, analyzer Analyzer, tasks Tasks) *WalletHandler {
	return &WalletHandler{engine: engine, analyzer: analyzer, tasks: tasks}
}

// walletOpBody is the shared shape of credit and debit requests.
type walletOpBody struct {
	PlayerID      uuid.UUID       `json:"player_id"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	ReferenceID   string          `json:"reference_id"`
	Type          string          `json:"type"`
	GameID        *uuid.UUID      `json:"game_id,omitempty"`
	GameSessionID *uuid.UUID      `json:"game_session_id,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

func (b walletOpBody) toRequest(partnerID uuid.UUID) domain.WalletOpRequest {
	return domain.WalletOpRequest{
		PlayerID:      b.PlayerID,
		PartnerID:     partnerID,
		Currency:      b.Currency,
		Amount:        b.Amount,
		ReferenceID:   b.ReferenceID,
		Type:          domain.TransactionType(b.Type),
		GameID:        b.GameID,
		GameSessionID: b.GameSessionID,
		Metadata:      b.Metadata,
	}
}

// Credit handles POST /v1/wallet/credit.
func (h *WalletHandler) Credit(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, h.engine.Credit)
}

// Debit handles POST /v1/wallet/debit.
func (h *WalletHandler) Debit(w http.ResponseWriter, r *http.Request) {
	h.operate(w, r, h.engine.Debit)
}

// requireWalletPermission gates an operation on the per-type grant, so a key
// scoped to wallet:deposit cannot post wins or bonuses.
func requireWalletPermission(scope *admission.Scope, opType domain.TransactionType) error {
	perm := "wallet:" + string(opType)
	if !scope.Permissions.Allows(perm) {
		return domain.ErrForbidden("permission " + perm + " required")
	}
	return nil
}

func (h *WalletHandler) operate(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.WalletOpRequest) (*domain.WalletOpResult, error)) {
	scope := admission.ScopeFrom(r.Context())
	if scope == nil {
		RespondError(w, domain.ErrUnauthorized("no partner scope"))
		return
	}

	var body walletOpBody
	if err := DecodeJSON(r, &body); err != nil {
		RespondError(w, err)
		return
	}
	req := body.toRequest(scope.PartnerID)
	if err := requireWalletPermission(scope, req.Type); err != nil {
		RespondError(w, err)
		return
	}

	result, err := op(r.Context(), req)
	if err != nil {
		RespondError(w, err)
		return
	}

	if !result.Idempotent {
		h.scoreAsync(scope.PartnerID, result.TransactionID)
	}
	RespondJSON(w, statusForResult(result), result)
}

// Rollback handles POST /v1/wallet/rollback.
func (h *WalletHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	scope := admission.ScopeFrom(r.Context())
	if scope == nil {
		RespondError(w, domain.ErrUnauthorized("no partner scope"))
		return
	}

	var body struct {
		PlayerID            uuid.UUID       `json:"player_id"`
		ReferenceID         string          `json:"reference_id"`
		OriginalReferenceID string          `json:"original_reference_id"`
		Metadata            json.RawMessage `json:"metadata,omitempty"`
	}
	if err := DecodeJSON(r, &body); err != nil {
		RespondError(w, err)
		return
	}

	result, err := h.engine.Rollback(r.Context(), domain.RollbackRequest{
		PlayerID:            body.PlayerID,
		PartnerID:           scope.PartnerID,
		ReferenceID:         body.ReferenceID,
		OriginalReferenceID: body.OriginalReferenceID,
		Metadata:            body.Metadata,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, statusForResult(result), result)
}

// GetBalance handles GET /v1/wallet/players/{player_id}/balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	scope := admission.ScopeFrom(r.Context())
	if scope == nil {
		RespondError(w, domain.ErrUnauthorized("no partner scope"))
		return
	}
	playerID, err := pathUUID(r, "player_id")
	if err != nil {
		RespondError(w, err)
		return
	}

	view, err := h.engine.GetBalances(r.Context(), playerID, scope.PartnerID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// GetTransaction handles GET /v1/wallet/transactions/{id}.
func (h *WalletHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
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

	tx, err := h.engine.GetTransaction(r.Context(), scope.PartnerID, id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, tx)
}

// txListResponse wraps a list of transactions.
type txListResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// ListTransactions handles GET /v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	scope := admission.ScopeFrom(r.Context())
	if scope == nil {
		RespondError(w, domain.ErrUnauthorized("no partner scope"))
		return
	}

	f := queryFilter(r, "player_id", "type", "status", "currency", "reference_id", "created_at")
	txs, err := h.engine.ListTransactions(r.Context(), scope.PartnerID, f, queryPage(r), querySort(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, txListResponse{Transactions: txs})
}

// scoreAsync hands a freshly committed transaction to the AML pipeline. The
// request is already answered by the time this runs; losing it is repaired
// later by the repair scan.
func (h *WalletHandler) scoreAsync(partnerID, transactionID uuid.UUID) {
	h.tasks.Submit("aml-analyze", func(ctx context.Context) error {
		tx, err := h.engine.GetTransaction(ctx, partnerID, transactionID)
		if err != nil {
			return err
		}
		h.analyzer.AnalyzeLogged(ctx, tx)
		return nil
	})
}

// statusForResult maps a wallet result to 200 for replays and 201 for new
// ledger entries.
func statusForResult(result *domain.WalletOpResult) int {
	if result.Idempotent {
		return http.StatusOK
	}
	return http.StatusCreated
}
