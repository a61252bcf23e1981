package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/infra"
)

type walletRepo struct{}

// NewWalletRepository returns a pgx-backed WalletRepository.
func NewWalletRepository() WalletRepository {
	return &walletRepo{}
}

const walletColumns = `id, player_id, partner_id, currency, balance, is_active, is_locked, created_at, updated_at`

func (r *walletRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Wallet, error) {
	row := db.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM wallets WHERE id = $1`, id)
	return scanWallet(row)
}

func (r *walletRepo) Find(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, currency string) (*domain.Wallet, error) {
	row := db.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE player_id = $1 AND partner_id = $2 AND currency = $3`,
		playerID, partnerID, currency)
	return scanWallet(row)
}

func (r *walletRepo) FindForUpdate(ctx context.Context, tx pgx.Tx, playerID, partnerID uuid.UUID, currency string) (*domain.Wallet, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE player_id = $1 AND partner_id = $2 AND currency = $3
		FOR UPDATE`,
		playerID, partnerID, currency)
	return scanWallet(row)
}

func (r *walletRepo) Create(ctx context.Context, db DBTX, w *domain.Wallet) (*domain.Wallet, error) {
	balance, err := infra.DecimalToNumeric(w.Balance)
	if err != nil {
		return nil, fmt.Errorf("convert balance: %w", err)
	}
	row := db.QueryRow(ctx, `
		INSERT INTO wallets (player_id, partner_id, currency, balance, is_active, is_locked)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+walletColumns,
		w.PlayerID, w.PartnerID, w.Currency, balance, w.IsActive, w.IsLocked)
	return scanWallet(row)
}

func (r *walletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	num, err := infra.DecimalToNumeric(balance)
	if err != nil {
		return fmt.Errorf("convert balance: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE wallets SET balance = $2, updated_at = now()
		WHERE id = $1`, walletID, num)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet %s not found", walletID)
	}
	return nil
}

func (r *walletRepo) ListByPlayer(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID) ([]domain.Wallet, error) {
	rows, err := db.Query(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE player_id = $1 AND partner_id = $2
		ORDER BY currency ASC`, playerID, partnerID)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	var balanceNum pgtype.Numeric
	err := row.Scan(
		&w.ID, &w.PlayerID, &w.PartnerID, &w.Currency,
		&balanceNum, &w.IsActive, &w.IsLocked, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet: %w", err)
	}

	w.Balance, err = infra.NumericToDecimal(balanceNum)
	if err != nil {
		return nil, fmt.Errorf("convert balance: %w", err)
	}
	return &w, nil
}
