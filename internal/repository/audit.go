package repository

import (
	"context"
	"fmt"

	"github.com/betlink/hub/internal/domain"
)

type auditRepo struct{}

// NewAuditRepository returns a pgx-backed AuditRepository.
func NewAuditRepository() AuditRepository {
	return &auditRepo{}
}

const auditColumns = `id, request_id, partner_id, api_key_id, ip, method, path,
	status_code, latency_ms, request_body, response_body, created_at`

var auditFields = map[string]string{
	"request_id":  "request_id",
	"partner_id":  "partner_id",
	"api_key_id":  "api_key_id",
	"ip":          "ip",
	"method":      "method",
	"path":        "path",
	"status_code": "status_code",
	"created_at":  "created_at",
}

func (r *auditRepo) Insert(ctx context.Context, db DBTX, a *domain.AuditLog) error {
	_, err := db.Exec(ctx, `
		INSERT INTO audit_logs
		  (request_id, partner_id, api_key_id, ip, method, path,
		   status_code, latency_ms, request_body, response_body)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.RequestID, a.PartnerID, a.APIKeyID, a.IP, a.Method, a.Path,
		a.StatusCode, a.LatencyMS, a.RequestBody, a.ResponseBody)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (r *auditRepo) List(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.AuditLog, error) {
	b := psql.Select(auditColumns).From("audit_logs")
	b, err := f.Apply(b, auditFields)
	if err != nil {
		return nil, err
	}
	if sort.Field == "" {
		sort = Sort{Field: "created_at", Desc: true}
	}
	b, err = sort.ApplySort(b, auditFields)
	if err != nil {
		return nil, err
	}
	b = page.ApplyPage(b)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		err := rows.Scan(
			&a.ID, &a.RequestID, &a.PartnerID, &a.APIKeyID, &a.IP, &a.Method, &a.Path,
			&a.StatusCode, &a.LatencyMS, &a.RequestBody, &a.ResponseBody, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, a)
	}
	return logs, rows.Err()
}
