package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
)

type playerRepo struct{}

// NewPlayerRepository returns a pgx-backed PlayerRepository.
func NewPlayerRepository() PlayerRepository {
	return &playerRepo{}
}

const playerColumns = `id, partner_id, external_id, is_blocked, created_at, updated_at`

func (r *playerRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Player, error) {
	row := db.QueryRow(ctx, `
		SELECT `+playerColumns+`
		FROM players WHERE id = $1`, id)
	return scanPlayer(row)
}

func (r *playerRepo) Lock(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Player, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+playerColumns+`
		FROM players WHERE id = $1
		FOR NO KEY UPDATE`, id)
	return scanPlayer(row)
}

func (r *playerRepo) Ensure(ctx context.Context, db DBTX, id, partnerID uuid.UUID) error {
	_, err := db.Exec(ctx, `
		INSERT INTO players (id, partner_id, external_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`, id, partnerID, id.String())
	if err != nil {
		return fmt.Errorf("ensure player: %w", err)
	}
	return nil
}

func scanPlayer(row pgx.Row) (*domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.PartnerID, &p.ExternalID, &p.IsBlocked, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan player: %w", err)
	}
	return &p, nil
}
