package wallet

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
)

// Rollback reverses a previously completed transaction by posting an entry
// with the opposite sign and flagging the original. A transaction can be
// rolled back at most once; the rollback itself is idempotent on its own
// reference ID.
func (e *Engine) Rollback(ctx context.Context, req domain.RollbackRequest) (*domain.WalletOpResult, error) {
	if err := domain.ValidateReferenceID(req.ReferenceID); err != nil {
		return nil, err
	}
	if err := domain.ValidateReferenceID(req.OriginalReferenceID); err != nil {
		return nil, err
	}

	var (
		result *domain.WalletOpResult
		locked *domain.Wallet
	)
	err := e.inTx(ctx, func(tx pgx.Tx) error {
		original, err := e.transactions.FindByPartnerReference(ctx, tx, req.PartnerID, req.OriginalReferenceID)
		if err != nil {
			return fmt.Errorf("find original transaction: %w", err)
		}
		if original == nil {
			return domain.ErrNotFound("transaction", req.OriginalReferenceID)
		}
		if original.PlayerID != req.PlayerID {
			return domain.ErrNotFound("transaction", req.OriginalReferenceID)
		}

		w, err := e.lockWallet(ctx, tx, original.PlayerID, original.PartnerID, original.Currency, false)
		if err != nil {
			return err
		}
		locked = w

		existing, err := e.findExisting(ctx, tx, req.PartnerID, req.ReferenceID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = resultOf(existing, true)
			return nil
		}

		// Re-read under the wallet lock; a concurrent rollback may have won.
		original, err = e.transactions.FindByID(ctx, tx, original.ID)
		if err != nil {
			return fmt.Errorf("reload original transaction: %w", err)
		}
		if original.RolledBack {
			return domain.ErrConflict(fmt.Sprintf("transaction %s already rolled back", req.OriginalReferenceID))
		}
		if original.Status != domain.TxCompleted {
			return domain.ErrConflict(fmt.Sprintf("transaction %s is %s, not completed", req.OriginalReferenceID, original.Status))
		}
		if original.Type == domain.TxRollback {
			return domain.ErrValidation("cannot roll back a rollback")
		}

		if err := e.transactions.MarkRolledBack(ctx, tx, original.ID); err != nil {
			return err
		}

		entry, err := e.postEntry(ctx, tx, w, &domain.Transaction{
			ReferenceID:           req.ReferenceID,
			Type:                  domain.TxRollback,
			Amount:                original.Amount.Neg(),
			GameID:                original.GameID,
			GameSessionID:         original.GameSessionID,
			OriginalTransactionID: &original.ID,
			Metadata:              req.Metadata,
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
