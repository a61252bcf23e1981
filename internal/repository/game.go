package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/infra"
)

type gameRepo struct{}

// NewGameRepository returns a pgx-backed GameRepository.
func NewGameRepository() GameRepository {
	return &gameRepo{}
}

const gameColumns = `id, provider_id, game_code, name, category, status,
	rtp, min_bet, max_bet, features, created_at`

var gameFields = map[string]string{
	"provider_id": "provider_id",
	"game_code":   "game_code",
	"name":        "name",
	"category":    "category",
	"status":      "status",
	"rtp":         "rtp",
	"created_at":  "created_at",
}

func (r *gameRepo) FindGame(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Game, error) {
	row := db.QueryRow(ctx, `
		SELECT `+gameColumns+`
		FROM games WHERE id = $1`, id)
	return scanGame(row)
}

func (r *gameRepo) ListGames(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.Game, error) {
	b := psql.Select(gameColumns).From("games")
	b, err := f.Apply(b, gameFields)
	if err != nil {
		return nil, err
	}
	if sort.Field == "" {
		sort = Sort{Field: "name"}
	}
	b, err = sort.ApplySort(b, gameFields)
	if err != nil {
		return nil, err
	}
	b = page.ApplyPage(b)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build game query: %w", err)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	var games []domain.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

func (r *gameRepo) FindProvider(ctx context.Context, db DBTX, id uuid.UUID) (*domain.GameProvider, error) {
	row := db.QueryRow(ctx, `
		SELECT id, code, name, integration_type, api_endpoint, api_key, api_secret,
		       status, supported_currencies, supported_languages, created_at
		FROM game_providers WHERE id = $1`, id)

	var p domain.GameProvider
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.IntegrationType, &p.APIEndpoint, &p.APIKey, &p.APISecret,
		&p.Status, &p.SupportedCurrencies, &p.SupportedLanguages, &p.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan game provider: %w", err)
	}
	return &p, nil
}

func scanGame(row pgx.Row) (*domain.Game, error) {
	var g domain.Game
	var rtpNum, minNum, maxNum pgtype.Numeric
	err := row.Scan(
		&g.ID, &g.ProviderID, &g.GameCode, &g.Name, &g.Category, &g.Status,
		&rtpNum, &minNum, &maxNum, &g.Features, &g.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan game: %w", err)
	}

	if g.RTP, err = infra.NumericToDecimal(rtpNum); err != nil {
		return nil, fmt.Errorf("convert rtp: %w", err)
	}
	if g.MinBet, err = infra.NumericToDecimal(minNum); err != nil {
		return nil, fmt.Errorf("convert min_bet: %w", err)
	}
	if g.MaxBet, err = infra.NumericToDecimal(maxNum); err != nil {
		return nil, fmt.Errorf("convert max_bet: %w", err)
	}
	return &g, nil
}
