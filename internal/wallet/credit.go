package wallet

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
)

// Credit adds funds to the wallet. The wallet is created on first credit for
// a (player, currency) the platform has not seen before.
// Pattern: lock → idempotency → post.
func (e *Engine) Credit(ctx context.Context, req domain.WalletOpRequest) (*domain.WalletOpResult, error) {
	if !req.Type.IsCredit() {
		return nil, domain.ErrValidation(fmt.Sprintf("type %s is not a credit", req.Type))
	}
	if err := validateOp(req); err != nil {
		return nil, err
	}

	var (
		result *domain.WalletOpResult
		locked *domain.Wallet
	)
	err := e.inTx(ctx, func(tx pgx.Tx) error {
		w, err := e.lockWallet(ctx, tx, req.PlayerID, req.PartnerID, req.Currency, true)
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
		entry, err := e.postEntry(ctx, tx, w, &domain.Transaction{
			ReferenceID:   req.ReferenceID,
			Type:          req.Type,
			Amount:        req.Amount,
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

func validateOp(req domain.WalletOpRequest) error {
	if err := domain.ValidateCurrency(req.Currency); err != nil {
		return err
	}
	if err := domain.ValidatePositiveAmount(req.Amount); err != nil {
		return err
	}
	return domain.ValidateReferenceID(req.ReferenceID)
}
