package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/infra"
)

type transactionRepo struct{}

// NewTransactionRepository returns a pgx-backed TransactionRepository.
func NewTransactionRepository() TransactionRepository {
	return &transactionRepo{}
}

const transactionColumns = `id, reference_id, wallet_id, player_id, partner_id, type, amount, currency,
	status, original_balance, updated_balance, game_id, game_session_id,
	original_transaction_id, rolled_back, metadata, created_at`

// transactionFields whitelists the filter and sort surface of List.
var transactionFields = map[string]string{
	"reference_id": "reference_id",
	"wallet_id":    "wallet_id",
	"player_id":    "player_id",
	"partner_id":   "partner_id",
	"type":         "type",
	"status":       "status",
	"currency":     "currency",
	"amount":       "amount",
	"game_id":      "game_id",
	"rolled_back":  "rolled_back",
	"created_at":   "created_at",
}

func (r *transactionRepo) Insert(ctx context.Context, db DBTX, t *domain.Transaction) (*domain.Transaction, error) {
	amount, err := infra.DecimalToNumeric(t.Amount)
	if err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	origBal, err := infra.DecimalToNumeric(t.OriginalBalance)
	if err != nil {
		return nil, fmt.Errorf("convert original_balance: %w", err)
	}
	updBal, err := infra.DecimalToNumeric(t.UpdatedBalance)
	if err != nil {
		return nil, fmt.Errorf("convert updated_balance: %w", err)
	}
	meta := t.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}

	row := db.QueryRow(ctx, `
		INSERT INTO transactions
		  (reference_id, wallet_id, player_id, partner_id, type, amount, currency,
		   status, original_balance, updated_balance, game_id, game_session_id,
		   original_transaction_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING `+transactionColumns,
		t.ReferenceID, t.WalletID, t.PlayerID, t.PartnerID, string(t.Type), amount, t.Currency,
		string(t.Status), origBal, updBal, t.GameID, t.GameSessionID,
		t.OriginalTransactionID, meta,
	)
	return scanTransaction(row)
}

func (r *transactionRepo) FindByPartnerReference(ctx context.Context, db DBTX, partnerID uuid.UUID, referenceID string) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE partner_id = $1 AND reference_id = $2`, partnerID, referenceID)
	return scanTransaction(row)
}

func (r *transactionRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *transactionRepo) MarkRolledBack(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE transactions SET rolled_back = TRUE, status = $2
		WHERE id = $1`, id, string(domain.TxCanceled))
	if err != nil {
		return fmt.Errorf("mark rolled back: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}
	return nil
}

func (r *transactionRepo) List(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.Transaction, error) {
	b := psql.Select(transactionColumns).From("transactions")
	b, err := f.Apply(b, transactionFields)
	if err != nil {
		return nil, err
	}
	if sort.Field == "" {
		sort = Sort{Field: "created_at", Desc: true}
	}
	b, err = sort.ApplySort(b, transactionFields)
	if err != nil {
		return nil, err
	}
	b = page.ApplyPage(b)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build transaction query: %w", err)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *transactionRepo) ListUnanalyzed(ctx context.Context, db DBTX, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions t
		WHERE t.status = 'completed'
		  AND t.type IN ('deposit', 'withdrawal', 'bet', 'win')
		  AND NOT EXISTS (
			SELECT 1 FROM aml_transactions a WHERE a.transaction_id = t.id
		  )
		ORDER BY t.created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unanalyzed transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func (r *transactionRepo) CountAmountRange(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, types []domain.TransactionType, min, max decimal.Decimal, since time.Time) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT count(*)
		FROM transactions
		WHERE player_id = $1 AND partner_id = $2 AND status = 'completed'
		  AND type = ANY($3)
		  AND abs(amount) BETWEEN $4 AND $5
		  AND created_at >= $6`,
		playerID, partnerID, typeStrings(types), min.String(), max.String(), since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count amount range: %w", err)
	}
	return count, nil
}

func (r *transactionRepo) SumByTypes(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, types []domain.TransactionType, since time.Time) (decimal.Decimal, error) {
	var sumNum pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT coalesce(sum(abs(amount)), 0)
		FROM transactions
		WHERE player_id = $1 AND partner_id = $2 AND status = 'completed'
		  AND type = ANY($3)
		  AND created_at >= $4`,
		playerID, partnerID, typeStrings(types), since,
	).Scan(&sumNum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum by types: %w", err)
	}
	return infra.NumericToDecimal(sumNum)
}

func (r *transactionRepo) AmountStats(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, types []domain.TransactionType, since time.Time) (int, decimal.Decimal, decimal.Decimal, error) {
	var count int
	var meanNum, stddevNum pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT count(*),
		       coalesce(avg(abs(amount)), 0),
		       coalesce(stddev_pop(abs(amount)), 0)
		FROM transactions
		WHERE player_id = $1 AND partner_id = $2 AND status = 'completed'
		  AND type = ANY($3)
		  AND created_at >= $4`,
		playerID, partnerID, typeStrings(types), since,
	).Scan(&count, &meanNum, &stddevNum)
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, fmt.Errorf("amount stats: %w", err)
	}

	mean, err := infra.NumericToDecimal(meanNum)
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, fmt.Errorf("convert mean: %w", err)
	}
	stddev, err := infra.NumericToDecimal(stddevNum)
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, fmt.Errorf("convert stddev: %w", err)
	}
	return count, mean, stddev, nil
}

func (r *transactionRepo) HourHistogram(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, since time.Time) ([24]int, error) {
	var hist [24]int
	rows, err := db.Query(ctx, `
		SELECT extract(hour FROM created_at)::int AS h, count(*)
		FROM transactions
		WHERE player_id = $1 AND partner_id = $2 AND status = 'completed'
		  AND created_at >= $3
		GROUP BY h`, playerID, partnerID, since)
	if err != nil {
		return hist, fmt.Errorf("query hour histogram: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hour, count int
		if err := rows.Scan(&hour, &count); err != nil {
			return hist, fmt.Errorf("scan hour histogram: %w", err)
		}
		if hour >= 0 && hour < 24 {
			hist[hour] = count
		}
	}
	return hist, rows.Err()
}

func (r *transactionRepo) ActiveDayCount(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT count(DISTINCT date_trunc('day', created_at))
		FROM transactions
		WHERE player_id = $1 AND partner_id = $2 AND status = 'completed'
		  AND created_at >= $3`, playerID, partnerID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active days: %w", err)
	}
	return count, nil
}

func (r *transactionRepo) GameBetShare(ctx context.Context, db DBTX, playerID, partnerID, gameID uuid.UUID, since time.Time) (int, int, error) {
	var gameCount, totalCount int
	err := db.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE game_id = $3), count(*)
		FROM transactions
		WHERE player_id = $1 AND partner_id = $2 AND status = 'completed'
		  AND type = 'bet'
		  AND created_at >= $4`,
		playerID, partnerID, gameID, since,
	).Scan(&gameCount, &totalCount)
	if err != nil {
		return 0, 0, fmt.Errorf("count game bet share: %w", err)
	}
	return gameCount, totalCount, nil
}

func typeStrings(types []domain.TransactionType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var amountNum, origNum, updNum pgtype.Numeric
	err := row.Scan(
		&t.ID, &t.ReferenceID, &t.WalletID, &t.PlayerID, &t.PartnerID, &t.Type,
		&amountNum, &t.Currency, &t.Status, &origNum, &updNum,
		&t.GameID, &t.GameSessionID, &t.OriginalTransactionID,
		&t.RolledBack, &t.Metadata, &t.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	if t.Amount, err = infra.NumericToDecimal(amountNum); err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	if t.OriginalBalance, err = infra.NumericToDecimal(origNum); err != nil {
		return nil, fmt.Errorf("convert original_balance: %w", err)
	}
	if t.UpdatedBalance, err = infra.NumericToDecimal(updNum); err != nil {
		return nil, fmt.Errorf("convert updated_balance: %w", err)
	}
	return &t, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}
