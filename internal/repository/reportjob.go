package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
)

type reportJobRepo struct{}

// NewReportJobRepository returns a pgx-backed ReportJobRepository.
func NewReportJobRepository() ReportJobRepository {
	return &reportJobRepo{}
}

const reportJobColumns = `id, partner_id, report_type, format, parameters, status,
	file_path, file_size, error_message, requested_by, completed_at, created_at, updated_at`

func (r *reportJobRepo) Insert(ctx context.Context, db DBTX, j *domain.ReportJob) (*domain.ReportJob, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO report_jobs (partner_id, report_type, format, parameters, status, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+reportJobColumns,
		j.PartnerID, j.ReportType, j.Format, j.Parameters, string(j.Status), j.RequestedBy)
	return scanReportJob(row)
}

func (r *reportJobRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.ReportJob, error) {
	row := db.QueryRow(ctx, `
		SELECT `+reportJobColumns+`
		FROM report_jobs WHERE id = $1`, id)
	return scanReportJob(row)
}

func (r *reportJobRepo) ClaimPending(ctx context.Context, db DBTX, id uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE report_jobs SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("claim report job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *reportJobRepo) Complete(ctx context.Context, db DBTX, id uuid.UUID, filePath string, fileSize int64) error {
	tag, err := db.Exec(ctx, `
		UPDATE report_jobs SET
		  status = 'completed', file_path = $2, file_size = $3,
		  completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'processing'`, id, filePath, fileSize)
	if err != nil {
		return fmt.Errorf("complete report job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report job %s not processing", id)
	}
	return nil
}

func (r *reportJobRepo) Fail(ctx context.Context, db DBTX, id uuid.UUID, errMsg string) error {
	tag, err := db.Exec(ctx, `
		UPDATE report_jobs SET
		  status = 'failed', error_message = $2, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')`, id, errMsg)
	if err != nil {
		return fmt.Errorf("fail report job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report job %s not found", id)
	}
	return nil
}

func (r *reportJobRepo) ListPending(ctx context.Context, db DBTX, limit int) ([]domain.ReportJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.Query(ctx, `
		SELECT `+reportJobColumns+`
		FROM report_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending report jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ReportJob
	for rows.Next() {
		j, err := scanReportJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func scanReportJob(row pgx.Row) (*domain.ReportJob, error) {
	var j domain.ReportJob
	err := row.Scan(
		&j.ID, &j.PartnerID, &j.ReportType, &j.Format, &j.Parameters, &j.Status,
		&j.FilePath, &j.FileSize, &j.ErrorMessage, &j.RequestedBy,
		&j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan report job: %w", err)
	}
	return &j, nil
}
