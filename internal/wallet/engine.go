// Package wallet implements the idempotent ledger engine. Every operation
// follows the same shape: lock the wallet row, replay on a known reference,
// post the entry with a balance snapshot and an outbox event, all in one
// serializable transaction.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/betlink/hub/internal/cache"
	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
)

// DB is the slice of pgxpool.Pool the engine needs: plain queries for reads
// and transaction begin for writes.
type DB interface {
	repository.DBTX
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Cache is the slice of the two-tier cache the engine needs.
type Cache interface {
	InvalidateByTag(ctx context.Context, tags ...string)
	GetOrCompute(ctx context.Context, key string, tags []string, ttl time.Duration, fn func(context.Context) ([]byte, error)) ([]byte, bool, error)
}

var _ Cache = (*cache.Cache)(nil)

// Engine provides the 3 foundational ledger operations:
//  1. lockWallet: row-level pessimistic lock, creating the wallet when the
//     operation credits a first-time (player, currency)
//  2. findExisting: idempotency check on (partner_id, reference_id)
//  3. postEntry: balance update + append-only insert + outbox event
type Engine struct {
	pool         DB
	players      repository.PlayerRepository
	wallets      repository.WalletRepository
	transactions repository.TransactionRepository
	outbox       repository.OutboxRepository
	cache        Cache
	logger       *slog.Logger
}

// NewEngine creates a wallet engine with the given dependencies.
func NewEngine(
	pool DB,
	players repository.PlayerRepository,
	wallets repository.WalletRepository,
	transactions repository.TransactionRepository,
	outbox repository.OutboxRepository,
	c Cache,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		pool:         pool,
		players:      players,
		wallets:      wallets,
		transactions: transactions,
		outbox:       outbox,
		cache:        c,
		logger:       logger,
	}
}

// inTx runs fn in a serializable transaction, retrying exactly once when the
// database reports a serialization failure or deadlock.
func (e *Engine) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err := pgx.BeginTxFunc(ctx, e.pool, opts, fn)
	if err != nil && repository.IsSerializationFailure(err) {
		e.logger.Warn("serialization failure, retrying", "error", err)
		err = pgx.BeginTxFunc(ctx, e.pool, opts, fn)
	}
	return err
}

// lockWallet locks the wallet row for the (player, partner, currency) triple.
// When the wallet does not exist and create is set, the player row is ensured
// and a zero-balance wallet is inserted under the same lock scope.
func (e *Engine) lockWallet(ctx context.Context, tx pgx.Tx, playerID, partnerID uuid.UUID, currency string, create bool) (*domain.Wallet, error) {
	w, err := e.wallets.FindForUpdate(ctx, tx, playerID, partnerID, currency)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if w != nil {
		return w, nil
	}
	if !create {
		return nil, domain.ErrNotFound("wallet", playerID.String()+"/"+currency)
	}

	if err := e.players.Ensure(ctx, tx, playerID, partnerID); err != nil {
		return nil, err
	}
	w, err = e.wallets.Create(ctx, tx, &domain.Wallet{
		PlayerID:  playerID,
		PartnerID: partnerID,
		Currency:  currency,
		Balance:   decimal.Zero,
		IsActive:  true,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			// Lost the insert race; the winner's row is now lockable.
			return e.wallets.FindForUpdate(ctx, tx, playerID, partnerID, currency)
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return w, nil
}

// findExisting resolves the idempotency key. A completed duplicate replays;
// a pending or failed duplicate is a conflict the caller must not retry
// against.
func (e *Engine) findExisting(ctx context.Context, tx pgx.Tx, partnerID uuid.UUID, referenceID string) (*domain.Transaction, error) {
	existing, err := e.transactions.FindByPartnerReference(ctx, tx, partnerID, referenceID)
	if err != nil {
		return nil, fmt.Errorf("find existing transaction: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	if existing.Status != domain.TxCompleted {
		return nil, domain.ErrConflict(fmt.Sprintf("reference %s exists with status %s", referenceID, existing.Status))
	}
	return existing, nil
}

// postEntry atomically applies the balance delta and appends the ledger
// entry with its post-update snapshot, plus the outbox event. The delta is
// signed; callers have already verified the result is non-negative.
func (e *Engine) postEntry(ctx context.Context, tx pgx.Tx, w *domain.Wallet, entry *domain.Transaction) (*domain.Transaction, error) {
	newBalance := w.Balance.Add(entry.Amount)
	if newBalance.IsNegative() {
		return nil, domain.ErrInsufficientFunds()
	}

	entry.WalletID = w.ID
	entry.PlayerID = w.PlayerID
	entry.PartnerID = w.PartnerID
	entry.Currency = w.Currency
	entry.Status = domain.TxCompleted
	entry.OriginalBalance = w.Balance
	entry.UpdatedBalance = newBalance

	if err := e.wallets.UpdateBalance(ctx, tx, w.ID, newBalance); err != nil {
		return nil, err
	}
	inserted, err := e.transactions.Insert(ctx, tx, entry)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	if err := e.outbox.Insert(ctx, tx, domain.NewTransactionPostedEvent(inserted)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	w.Balance = newBalance
	return inserted, nil
}

// invalidate drops the cached balance views for a wallet after commit.
func (e *Engine) invalidate(ctx context.Context, w *domain.Wallet) {
	e.cache.InvalidateByTag(ctx,
		"wallet:"+w.ID.String(),
		"player:"+w.PlayerID.String()+":balance",
	)
}

func resultOf(t *domain.Transaction, idempotent bool) *domain.WalletOpResult {
	return &domain.WalletOpResult{
		TransactionID: t.ID,
		ReferenceID:   t.ReferenceID,
		Type:          t.Type,
		Amount:        t.Amount.Abs(),
		Balance:       t.UpdatedBalance,
		Currency:      t.Currency,
		Idempotent:    idempotent,
	}
}
