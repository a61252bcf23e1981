// Package repository provides typed CRUD over the relational store. All
// writes participate in the caller's transaction; the layer never commits.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/betlink/hub/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !asPgError(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}

// IsSerializationFailure reports whether err is a serialization failure or
// deadlock that warrants one retry with a fresh transaction (SQLSTATE 40001
// or 40P01).
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !asPgError(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func asPgError(err error, target **pgconn.PgError) bool {
	return errors.As(err, target)
}

// PlayerRepository provides access to players.
type PlayerRepository interface {
	// FindByID returns a player by ID, nil if absent.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Player, error)

	// Lock acquires a FOR NO KEY UPDATE lock on the player row. Used to
	// serialize concurrent session launches for the same player.
	Lock(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Player, error)

	// Ensure inserts the player if it does not exist yet.
	Ensure(ctx context.Context, db DBTX, id, partnerID uuid.UUID) error
}

// WalletRepository provides access to wallets.
type WalletRepository interface {
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Wallet, error)

	// Find returns the wallet for the (player, partner, currency) triple.
	Find(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, currency string) (*domain.Wallet, error)

	// FindForUpdate acquires a SELECT FOR UPDATE lock on the wallet row.
	FindForUpdate(ctx context.Context, tx pgx.Tx, playerID, partnerID uuid.UUID, currency string) (*domain.Wallet, error)

	// Create inserts a new wallet. Returns the inserted row.
	Create(ctx context.Context, db DBTX, w *domain.Wallet) (*domain.Wallet, error)

	// UpdateBalance sets the wallet balance. Must run under FindForUpdate.
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error

	// ListByPlayer returns all wallets for a player within a partner.
	ListByPlayer(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID) ([]domain.Wallet, error)
}

// TransactionRepository provides access to the transaction ledger and the
// historical aggregates consumed by AML analysis.
type TransactionRepository interface {
	Insert(ctx context.Context, db DBTX, t *domain.Transaction) (*domain.Transaction, error)

	// FindByPartnerReference performs the idempotency lookup.
	FindByPartnerReference(ctx context.Context, db DBTX, partnerID uuid.UUID, referenceID string) (*domain.Transaction, error)

	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Transaction, error)

	// MarkRolledBack flags the original transaction of a rollback.
	MarkRolledBack(ctx context.Context, tx pgx.Tx, id uuid.UUID) error

	// List returns ledger entries matching the filter.
	List(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.Transaction, error)

	// ListUnanalyzed returns completed transactions lacking an AML record.
	ListUnanalyzed(ctx context.Context, db DBTX, limit int) ([]domain.Transaction, error)

	// CountAmountRange counts transactions of the given types since a cutoff
	// whose absolute amount lies in [min, max].
	CountAmountRange(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, types []domain.TransactionType, min, max decimal.Decimal, since time.Time) (int, error)

	// SumByTypes sums absolute amounts of the given types since a cutoff.
	SumByTypes(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, types []domain.TransactionType, since time.Time) (decimal.Decimal, error)

	// AmountStats returns count, mean and population stddev of absolute
	// amounts for the given types since a cutoff.
	AmountStats(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, types []domain.TransactionType, since time.Time) (int, decimal.Decimal, decimal.Decimal, error)

	// HourHistogram returns per-hour-of-day counts since a cutoff.
	HourHistogram(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, since time.Time) ([24]int, error)

	// ActiveDayCount returns the number of distinct calendar days with
	// activity since a cutoff.
	ActiveDayCount(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, since time.Time) (int, error)

	// GameBetShare returns the player's bet count on one game and overall
	// since a cutoff.
	GameBetShare(ctx context.Context, db DBTX, playerID, partnerID, gameID uuid.UUID, since time.Time) (gameCount, totalCount int, err error)
}

// PartnerRepository provides access to partners.
type PartnerRepository interface {
	Create(ctx context.Context, db DBTX, p *domain.Partner) (*domain.Partner, error)
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Partner, error)
	FindByCode(ctx context.Context, db DBTX, code string) (*domain.Partner, error)
	List(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.Partner, error)
	UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.PartnerStatus) error
}

// APIKeyRepository provides access to API keys.
type APIKeyRepository interface {
	Insert(ctx context.Context, db DBTX, k *domain.APIKey) (*domain.APIKey, error)

	// FindByHash performs the authentication lookup on the hashed secret.
	FindByHash(ctx context.Context, db DBTX, hash string) (*domain.APIKey, error)

	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.APIKey, error)
	ListByPartner(ctx context.Context, db DBTX, partnerID uuid.UUID) ([]domain.APIKey, error)
	Deactivate(ctx context.Context, db DBTX, id, partnerID uuid.UUID) (bool, error)

	// TouchLastUsed stamps last_used_at / last_used_ip. Fire-and-forget.
	TouchLastUsed(ctx context.Context, db DBTX, id uuid.UUID, ip string) error
}

// PartnerIPRepository provides access to IP whitelist entries.
type PartnerIPRepository interface {
	Insert(ctx context.Context, db DBTX, e *domain.PartnerIP) (*domain.PartnerIP, error)
	ListByPartner(ctx context.Context, db DBTX, partnerID uuid.UUID) ([]domain.PartnerIP, error)
	Delete(ctx context.Context, db DBTX, id, partnerID uuid.UUID) (bool, error)
}

// GameRepository provides access to the game catalog and providers.
type GameRepository interface {
	FindGame(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Game, error)
	ListGames(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.Game, error)
	FindProvider(ctx context.Context, db DBTX, id uuid.UUID) (*domain.GameProvider, error)
}

// SessionRepository provides access to game sessions.
type SessionRepository interface {
	// ActiveForPlayerGame returns the active session for (player, game),
	// nil if none. The caller must hold the player row lock when racing.
	ActiveForPlayerGame(ctx context.Context, db DBTX, playerID, gameID uuid.UUID) (*domain.GameSession, error)

	Insert(ctx context.Context, db DBTX, s *domain.GameSession) (*domain.GameSession, error)
	FindByToken(ctx context.Context, db DBTX, token string) (*domain.GameSession, error)
	End(ctx context.Context, db DBTX, id uuid.UUID, status domain.SessionStatus) error

	// ExpireStale marks active sessions started before the cutoff as expired.
	ExpireStale(ctx context.Context, db DBTX, cutoff time.Time) (int64, error)
}

// GameTxRepository provides access to per-round game transactions.
type GameTxRepository interface {
	Insert(ctx context.Context, db DBTX, gt *domain.GameTransaction) (*domain.GameTransaction, error)
	FindByReference(ctx context.Context, db DBTX, referenceID string) (*domain.GameTransaction, error)
}

// AMLRepository provides access to risk profiles, analysis records, alerts
// and regulatory reports.
type AMLRepository interface {
	GetProfile(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID) (*domain.AMLRiskProfile, error)
	CreateProfile(ctx context.Context, db DBTX, p *domain.AMLRiskProfile) (*domain.AMLRiskProfile, error)
	UpdateProfile(ctx context.Context, db DBTX, p *domain.AMLRiskProfile) error

	FindAnalysisByTransaction(ctx context.Context, db DBTX, transactionID uuid.UUID) (*domain.AMLTransaction, error)
	InsertAnalysis(ctx context.Context, db DBTX, a *domain.AMLTransaction) (*domain.AMLTransaction, error)

	InsertAlert(ctx context.Context, db DBTX, a *domain.AMLAlert) (*domain.AMLAlert, error)
	FindAlert(ctx context.Context, db DBTX, id uuid.UUID) (*domain.AMLAlert, error)
	ListAlerts(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.AMLAlert, error)
	UpdateAlert(ctx context.Context, db DBTX, a *domain.AMLAlert) error

	InsertReport(ctx context.Context, db DBTX, r *domain.AMLReport) (*domain.AMLReport, error)
	FindReport(ctx context.Context, db DBTX, id uuid.UUID) (*domain.AMLReport, error)
	ListReports(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.AMLReport, error)
}

// AuditRepository provides access to audit logs.
type AuditRepository interface {
	Insert(ctx context.Context, db DBTX, a *domain.AuditLog) error
	List(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.AuditLog, error)
}

// ReportJobRepository provides access to report jobs.
type ReportJobRepository interface {
	Insert(ctx context.Context, db DBTX, j *domain.ReportJob) (*domain.ReportJob, error)
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.ReportJob, error)

	// ClaimPending transitions pending → processing; returns false when the
	// job was already claimed.
	ClaimPending(ctx context.Context, db DBTX, id uuid.UUID) (bool, error)

	Complete(ctx context.Context, db DBTX, id uuid.UUID, filePath string, fileSize int64) error
	Fail(ctx context.Context, db DBTX, id uuid.UUID, errMsg string) error
	ListPending(ctx context.Context, db DBTX, limit int) ([]domain.ReportJob, error)
}

// OutboxRepository provides access to the event outbox.
type OutboxRepository interface {
	// Insert writes an outbox event within the caller's transaction.
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error
}
