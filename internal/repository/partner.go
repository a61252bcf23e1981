package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
)

type partnerRepo struct{}

// NewPartnerRepository returns a pgx-backed PartnerRepository.
func NewPartnerRepository() PartnerRepository {
	return &partnerRepo{}
}

const partnerColumns = `id, code, name, type, status, commission_model, commission_rate,
	contact_email, contract_start, contract_end, shared_secret, created_at, updated_at`

var partnerFields = map[string]string{
	"code":       "code",
	"name":       "name",
	"type":       "type",
	"status":     "status",
	"created_at": "created_at",
}

func (r *partnerRepo) Create(ctx context.Context, db DBTX, p *domain.Partner) (*domain.Partner, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO partners
		  (code, name, type, status, commission_model, commission_rate,
		   contact_email, contract_start, contract_end, shared_secret)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+partnerColumns,
		p.Code, p.Name, string(p.Type), string(p.Status), p.CommissionModel, p.CommissionRate,
		p.ContactEmail, p.ContractStart, p.ContractEnd, p.SharedSecret)
	return scanPartner(row)
}

func (r *partnerRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Partner, error) {
	row := db.QueryRow(ctx, `
		SELECT `+partnerColumns+`
		FROM partners WHERE id = $1`, id)
	return scanPartner(row)
}

func (r *partnerRepo) FindByCode(ctx context.Context, db DBTX, code string) (*domain.Partner, error) {
	row := db.QueryRow(ctx, `
		SELECT `+partnerColumns+`
		FROM partners WHERE code = $1`, code)
	return scanPartner(row)
}

func (r *partnerRepo) List(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.Partner, error) {
	b := psql.Select(partnerColumns).From("partners")
	b, err := f.Apply(b, partnerFields)
	if err != nil {
		return nil, err
	}
	if sort.Field == "" {
		sort = Sort{Field: "created_at", Desc: true}
	}
	b, err = sort.ApplySort(b, partnerFields)
	if err != nil {
		return nil, err
	}
	b = page.ApplyPage(b)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build partner query: %w", err)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query partners: %w", err)
	}
	defer rows.Close()

	var partners []domain.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		partners = append(partners, *p)
	}
	return partners, rows.Err()
}

func (r *partnerRepo) UpdateStatus(ctx context.Context, db DBTX, id uuid.UUID, status domain.PartnerStatus) error {
	tag, err := db.Exec(ctx, `
		UPDATE partners SET status = $2, updated_at = now()
		WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update partner status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("partner %s not found", id)
	}
	return nil
}

func scanPartner(row pgx.Row) (*domain.Partner, error) {
	var p domain.Partner
	err := row.Scan(
		&p.ID, &p.Code, &p.Name, &p.Type, &p.Status, &p.CommissionModel, &p.CommissionRate,
		&p.ContactEmail, &p.ContractStart, &p.ContractEnd, &p.SharedSecret,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan partner: %w", err)
	}
	return &p, nil
}
