package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
)

type apiKeyRepo struct{}

// NewAPIKeyRepository returns a pgx-backed APIKeyRepository.
func NewAPIKeyRepository() APIKeyRepository {
	return &apiKeyRepo{}
}

const apiKeyColumns = `id, partner_id, key_prefix, key_hash, name, permissions,
	is_active, expires_at, last_used_at, last_used_ip, created_at`

func (r *apiKeyRepo) Insert(ctx context.Context, db DBTX, k *domain.APIKey) (*domain.APIKey, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO api_keys
		  (partner_id, key_prefix, key_hash, name, permissions, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+apiKeyColumns,
		k.PartnerID, k.KeyPrefix, k.KeyHash, k.Name, k.Permissions, k.IsActive, k.ExpiresAt)
	return scanAPIKey(row)
}

func (r *apiKeyRepo) FindByHash(ctx context.Context, db DBTX, hash string) (*domain.APIKey, error) {
	row := db.QueryRow(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys WHERE key_hash = $1`, hash)
	return scanAPIKey(row)
}

func (r *apiKeyRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.APIKey, error) {
	row := db.QueryRow(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys WHERE id = $1`, id)
	return scanAPIKey(row)
}

func (r *apiKeyRepo) ListByPartner(ctx context.Context, db DBTX, partnerID uuid.UUID) ([]domain.APIKey, error) {
	rows, err := db.Query(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE partner_id = $1
		ORDER BY created_at DESC`, partnerID)
	if err != nil {
		return nil, fmt.Errorf("query api keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

func (r *apiKeyRepo) Deactivate(ctx context.Context, db DBTX, id, partnerID uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE api_keys SET is_active = FALSE
		WHERE id = $1 AND partner_id = $2 AND is_active`, id, partnerID)
	if err != nil {
		return false, fmt.Errorf("deactivate api key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *apiKeyRepo) TouchLastUsed(ctx context.Context, db DBTX, id uuid.UUID, ip string) error {
	_, err := db.Exec(ctx, `
		UPDATE api_keys SET last_used_at = now(), last_used_ip = $2
		WHERE id = $1`, id, ip)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(
		&k.ID, &k.PartnerID, &k.KeyPrefix, &k.KeyHash, &k.Name, &k.Permissions,
		&k.IsActive, &k.ExpiresAt, &k.LastUsedAt, &k.LastUsedIP, &k.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	return &k, nil
}

type partnerIPRepo struct{}

// NewPartnerIPRepository returns a pgx-backed PartnerIPRepository.
func NewPartnerIPRepository() PartnerIPRepository {
	return &partnerIPRepo{}
}

func (r *partnerIPRepo) Insert(ctx context.Context, db DBTX, e *domain.PartnerIP) (*domain.PartnerIP, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO partner_ips (partner_id, cidr, label)
		VALUES ($1, $2, $3)
		RETURNING id, partner_id, cidr, label, created_at`,
		e.PartnerID, e.CIDR, e.Label)

	var out domain.PartnerIP
	if err := row.Scan(&out.ID, &out.PartnerID, &out.CIDR, &out.Label, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert partner ip: %w", err)
	}
	return &out, nil
}

func (r *partnerIPRepo) ListByPartner(ctx context.Context, db DBTX, partnerID uuid.UUID) ([]domain.PartnerIP, error) {
	rows, err := db.Query(ctx, `
		SELECT id, partner_id, cidr, label, created_at
		FROM partner_ips
		WHERE partner_id = $1
		ORDER BY created_at ASC`, partnerID)
	if err != nil {
		return nil, fmt.Errorf("query partner ips: %w", err)
	}
	defer rows.Close()

	var entries []domain.PartnerIP
	for rows.Next() {
		var e domain.PartnerIP
		if err := rows.Scan(&e.ID, &e.PartnerID, &e.CIDR, &e.Label, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan partner ip: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *partnerIPRepo) Delete(ctx context.Context, db DBTX, id, partnerID uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
		DELETE FROM partner_ips WHERE id = $1 AND partner_id = $2`, id, partnerID)
	if err != nil {
		return false, fmt.Errorf("delete partner ip: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
