package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/infra"
)

type sessionRepo struct{}

// NewSessionRepository returns a pgx-backed SessionRepository.
func NewSessionRepository() SessionRepository {
	return &sessionRepo{}
}

const sessionColumns = `id, token, player_id, partner_id, game_id, status, started_at, ended_at, session_data`

func (r *sessionRepo) ActiveForPlayerGame(ctx context.Context, db DBTX, playerID, gameID uuid.UUID) (*domain.GameSession, error) {
	row := db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM game_sessions
		WHERE player_id = $1 AND game_id = $2 AND status = 'active'`, playerID, gameID)
	return scanSession(row)
}

func (r *sessionRepo) Insert(ctx context.Context, db DBTX, s *domain.GameSession) (*domain.GameSession, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO game_sessions (token, player_id, partner_id, game_id, status, session_data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+sessionColumns,
		s.Token, s.PlayerID, s.PartnerID, s.GameID, string(s.Status), s.SessionData)
	return scanSession(row)
}

func (r *sessionRepo) FindByToken(ctx context.Context, db DBTX, token string) (*domain.GameSession, error) {
	row := db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM game_sessions WHERE token = $1`, token)
	return scanSession(row)
}

func (r *sessionRepo) End(ctx context.Context, db DBTX, id uuid.UUID, status domain.SessionStatus) error {
	tag, err := db.Exec(ctx, `
		UPDATE game_sessions SET status = $2, ended_at = now()
		WHERE id = $1 AND status = 'active'`, id, string(status))
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not active", id)
	}
	return nil
}

func (r *sessionRepo) ExpireStale(ctx context.Context, db DBTX, cutoff time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE game_sessions SET status = 'expired', ended_at = now()
		WHERE status = 'active' AND started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.GameSession, error) {
	var s domain.GameSession
	err := row.Scan(
		&s.ID, &s.Token, &s.PlayerID, &s.PartnerID, &s.GameID,
		&s.Status, &s.StartedAt, &s.EndedAt, &s.SessionData,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

type gameTxRepo struct{}

// NewGameTxRepository returns a pgx-backed GameTxRepository.
func NewGameTxRepository() GameTxRepository {
	return &gameTxRepo{}
}

const gameTxColumns = `id, reference_id, session_id, round_id, action, amount, currency,
	status, transaction_id, created_at`

func (r *gameTxRepo) Insert(ctx context.Context, db DBTX, gt *domain.GameTransaction) (*domain.GameTransaction, error) {
	amount, err := infra.DecimalToNumeric(gt.Amount)
	if err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	row := db.QueryRow(ctx, `
		INSERT INTO game_transactions
		  (reference_id, session_id, round_id, action, amount, currency, status, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+gameTxColumns,
		gt.ReferenceID, gt.SessionID, gt.RoundID, string(gt.Action), amount, gt.Currency,
		string(gt.Status), gt.TransactionID)
	return scanGameTx(row)
}

func (r *gameTxRepo) FindByReference(ctx context.Context, db DBTX, referenceID string) (*domain.GameTransaction, error) {
	row := db.QueryRow(ctx, `
		SELECT `+gameTxColumns+`
		FROM game_transactions WHERE reference_id = $1`, referenceID)
	return scanGameTx(row)
}

func scanGameTx(row pgx.Row) (*domain.GameTransaction, error) {
	var gt domain.GameTransaction
	var amountNum pgtype.Numeric
	err := row.Scan(
		&gt.ID, &gt.ReferenceID, &gt.SessionID, &gt.RoundID, &gt.Action,
		&amountNum, &gt.Currency, &gt.Status, &gt.TransactionID, &gt.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan game transaction: %w", err)
	}

	if gt.Amount, err = infra.NumericToDecimal(amountNum); err != nil {
		return nil, fmt.Errorf("convert amount: %w", err)
	}
	return &gt, nil
}
