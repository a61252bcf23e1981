package wallet

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
)

// Debit removes funds from the wallet. Fails with INSUFFICIENT_FUNDS when
// the balance does not cover the amount; the wallet is never created here.
// Pattern: lock → idempotency → post.
func (e *Engine) Debit(ctx context.Context, req domain.WalletOpRequest) (*domain.WalletOpResult, error) {
	if !req.Type.IsDebit() {
		return nil, domain.ErrValidation(fmt.Sprintf("type %s is not a debit", req.Type))
	}
	if err := validateOp(req); err != nil {
		return nil, err
	}

	var (
		result *domain.WalletOpResult
		locked *domain.Wallet
	)
	err := e.inTx(ctx, func(tx pgx.Tx) error {
		w, err := e.lockWallet(ctx, tx, req.PlayerID, req.PartnerID, req.Currency, false)
		if err != nil {
			return err
		}
		locked = w

		// Replays must return the stored result even when the wallet has
		// been locked since the original posting.
		existing, err := e.findExisting(ctx, tx, req.PartnerID, req.ReferenceID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = resultOf(existing, true)
			return nil
		}

		if !w.Usable() {
			return domain.ErrWalletDisabled("wallet is locked or inactive")
		}
		if w.Balance.LessThan(req.Amount) {
			return domain.ErrInsufficientFunds()
		}

		entry, err := e.postEntry(ctx, tx, w, &domain.Transaction{
			ReferenceID:   req.ReferenceID,
			Type:          req.Type,
			Amount:        req.Amount.Neg(),
			GameID:        req.GameID,
			GameSessionID: req.GameSessionID,
			Metadata:      req.Metadata,
		})
		if err != nil {
			return err
		}
		result = resultOf(entry, false)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Idempotent {
		e.invalidate(ctx, locked)
	}
	return result, nil
}
