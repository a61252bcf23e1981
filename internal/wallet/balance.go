package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
)

// balanceTTL bounds how stale a cached balance view may get if an
// invalidation is lost.
const balanceTTL = 30 * time.Second

// BalanceView is the cached read model for a player's wallets.
type BalanceView struct {
	PlayerID uuid.UUID       `json:"player_id"`
	Wallets  []domain.Wallet `json:"wallets"`
	Degraded bool            `json:"-"`
}

// GetBalances returns all wallets for a player, served from the two-tier
// cache and invalidated by every write through the engine.
func (e *Engine) GetBalances(ctx context.Context, playerID, partnerID uuid.UUID) (*BalanceView, error) {
	key := fmt.Sprintf("balance:%s:%s", partnerID, playerID)
	tags := []string{"player:" + playerID.String() + ":balance"}

	raw, degraded, err := e.cache.GetOrCompute(ctx, key, tags, balanceTTL, func(ctx context.Context) ([]byte, error) {
		wallets, err := e.wallets.ListByPlayer(ctx, e.pool, playerID, partnerID)
		if err != nil {
			return nil, fmt.Errorf("list wallets: %w", err)
		}
		return json.Marshal(BalanceView{PlayerID: playerID, Wallets: wallets})
	})
	if err != nil {
		return nil, err
	}

	var view BalanceView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("decode balance view: %w", err)
	}
	view.Degraded = degraded
	return &view, nil
}

// EnsureWallet returns the wallet for (player, currency), creating a
// zero-balance one when the player has never held that currency.
func (e *Engine) EnsureWallet(ctx context.Context, playerID, partnerID uuid.UUID, currency string) (*domain.Wallet, error) {
	if err := domain.ValidateCurrency(currency); err != nil {
		return nil, err
	}
	if w, err := e.wallets.Find(ctx, e.pool, playerID, partnerID, currency); err != nil || w != nil {
		return w, err
	}

	var created *domain.Wallet
	err := e.inTx(ctx, func(tx pgx.Tx) error {
		w, err := e.lockWallet(ctx, tx, playerID, partnerID, currency, true)
		if err != nil {
			return err
		}
		created = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetWallet returns one wallet by (player, currency), uncached.
func (e *Engine) GetWallet(ctx context.Context, playerID, partnerID uuid.UUID, currency string) (*domain.Wallet, error) {
	if err := domain.ValidateCurrency(currency); err != nil {
		return nil, err
	}
	w, err := e.wallets.Find(ctx, e.pool, playerID, partnerID, currency)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, domain.ErrNotFound("wallet", playerID.String()+"/"+currency)
	}
	return w, nil
}

// GetTransaction returns one ledger entry scoped to a partner.
func (e *Engine) GetTransaction(ctx context.Context, partnerID uuid.UUID, id uuid.UUID) (*domain.Transaction, error) {
	t, err := e.transactions.FindByID(ctx, e.pool, id)
	if err != nil {
		return nil, err
	}
	if t == nil || t.PartnerID != partnerID {
		return nil, domain.ErrNotFound("transaction", id.String())
	}
	return t, nil
}

// ListTransactions returns ledger entries for a partner matching the filter.
// The partner scope is forced on top of whatever the caller supplies.
func (e *Engine) ListTransactions(ctx context.Context, partnerID uuid.UUID, f repository.Filter, page repository.Page, sort repository.Sort) ([]domain.Transaction, error) {
	scoped := repository.Filter{"partner_id": partnerID}
	for k, v := range f {
		scoped[k] = v
	}
	txs, err := e.transactions.List(ctx, e.pool, scoped, page, sort)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	return txs, nil
}
