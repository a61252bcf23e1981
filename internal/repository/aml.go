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

type amlRepo struct{}

// NewAMLRepository returns a pgx-backed AMLRepository.
func NewAMLRepository() AMLRepository {
	return &amlRepo{}
}

const profileColumns = `id, player_id, partner_id,
	deposit_count_7d, deposit_amount_7d, withdrawal_count_7d, withdrawal_amount_7d,
	deposit_count_30d, deposit_amount_30d, withdrawal_count_30d, withdrawal_amount_30d,
	wager_to_deposit_ratio, withdrawal_to_deposit_ratio,
	overall_risk_score, deposit_risk_score, withdrawal_risk_score, gameplay_risk_score,
	risk_factors, last_assessment_at, created_at, updated_at`

func (r *amlRepo) GetProfile(ctx context.Context, db DBTX, playerID, partnerID uuid.UUID) (*domain.AMLRiskProfile, error) {
	row := db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM aml_risk_profiles
		WHERE player_id = $1 AND partner_id = $2`, playerID, partnerID)
	return scanProfile(row)
}

func (r *amlRepo) CreateProfile(ctx context.Context, db DBTX, p *domain.AMLRiskProfile) (*domain.AMLRiskProfile, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO aml_risk_profiles (player_id, partner_id)
		VALUES ($1, $2)
		RETURNING `+profileColumns, p.PlayerID, p.PartnerID)
	return scanProfile(row)
}

func (r *amlRepo) UpdateProfile(ctx context.Context, db DBTX, p *domain.AMLRiskProfile) error {
	args, err := profileNumerics(p)
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, `
		UPDATE aml_risk_profiles SET
		  deposit_count_7d = $2, deposit_amount_7d = $3,
		  withdrawal_count_7d = $4, withdrawal_amount_7d = $5,
		  deposit_count_30d = $6, deposit_amount_30d = $7,
		  withdrawal_count_30d = $8, withdrawal_amount_30d = $9,
		  wager_to_deposit_ratio = $10, withdrawal_to_deposit_ratio = $11,
		  overall_risk_score = $12, deposit_risk_score = $13,
		  withdrawal_risk_score = $14, gameplay_risk_score = $15,
		  risk_factors = $16, last_assessment_at = $17, updated_at = now()
		WHERE id = $1`,
		append([]interface{}{p.ID}, args...)...)
	if err != nil {
		return fmt.Errorf("update risk profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("risk profile %s not found", p.ID)
	}
	return nil
}

func profileNumerics(p *domain.AMLRiskProfile) ([]interface{}, error) {
	dep7, err := infra.DecimalToNumeric(p.DepositAmount7d)
	if err != nil {
		return nil, fmt.Errorf("convert deposit_amount_7d: %w", err)
	}
	wd7, err := infra.DecimalToNumeric(p.WithdrawalAmount7d)
	if err != nil {
		return nil, fmt.Errorf("convert withdrawal_amount_7d: %w", err)
	}
	dep30, err := infra.DecimalToNumeric(p.DepositAmount30d)
	if err != nil {
		return nil, fmt.Errorf("convert deposit_amount_30d: %w", err)
	}
	wd30, err := infra.DecimalToNumeric(p.WithdrawalAmount30d)
	if err != nil {
		return nil, fmt.Errorf("convert withdrawal_amount_30d: %w", err)
	}
	wagerRatio, err := infra.DecimalToNumeric(p.WagerToDepositRatio)
	if err != nil {
		return nil, fmt.Errorf("convert wager_to_deposit_ratio: %w", err)
	}
	wdRatio, err := infra.DecimalToNumeric(p.WithdrawalToDepositRatio)
	if err != nil {
		return nil, fmt.Errorf("convert withdrawal_to_deposit_ratio: %w", err)
	}

	return []interface{}{
		p.DepositCount7d, dep7, p.WithdrawalCount7d, wd7,
		p.DepositCount30d, dep30, p.WithdrawalCount30d, wd30,
		wagerRatio, wdRatio,
		p.OverallRiskScore, p.DepositRiskScore, p.WithdrawalRiskScore, p.GameplayRiskScore,
		p.RiskFactors, p.LastAssessmentAt,
	}, nil
}

func scanProfile(row pgx.Row) (*domain.AMLRiskProfile, error) {
	var p domain.AMLRiskProfile
	var dep7, wd7, dep30, wd30, wagerRatio, wdRatio pgtype.Numeric
	err := row.Scan(
		&p.ID, &p.PlayerID, &p.PartnerID,
		&p.DepositCount7d, &dep7, &p.WithdrawalCount7d, &wd7,
		&p.DepositCount30d, &dep30, &p.WithdrawalCount30d, &wd30,
		&wagerRatio, &wdRatio,
		&p.OverallRiskScore, &p.DepositRiskScore, &p.WithdrawalRiskScore, &p.GameplayRiskScore,
		&p.RiskFactors, &p.LastAssessmentAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan risk profile: %w", err)
	}

	if p.DepositAmount7d, err = infra.NumericToDecimal(dep7); err != nil {
		return nil, fmt.Errorf("convert deposit_amount_7d: %w", err)
	}
	if p.WithdrawalAmount7d, err = infra.NumericToDecimal(wd7); err != nil {
		return nil, fmt.Errorf("convert withdrawal_amount_7d: %w", err)
	}
	if p.DepositAmount30d, err = infra.NumericToDecimal(dep30); err != nil {
		return nil, fmt.Errorf("convert deposit_amount_30d: %w", err)
	}
	if p.WithdrawalAmount30d, err = infra.NumericToDecimal(wd30); err != nil {
		return nil, fmt.Errorf("convert withdrawal_amount_30d: %w", err)
	}
	if p.WagerToDepositRatio, err = infra.NumericToDecimal(wagerRatio); err != nil {
		return nil, fmt.Errorf("convert wager_to_deposit_ratio: %w", err)
	}
	if p.WithdrawalToDepositRatio, err = infra.NumericToDecimal(wdRatio); err != nil {
		return nil, fmt.Errorf("convert withdrawal_to_deposit_ratio: %w", err)
	}
	return &p, nil
}

const amlTxColumns = `id, transaction_id, player_id, partner_id, risk_score, risk_factors,
	analysis_details, is_large_transaction, is_suspicious_pattern, is_unusual_for_player,
	is_structuring_attempt, is_regulatory_report_required, alert_id, created_at`

func (r *amlRepo) FindAnalysisByTransaction(ctx context.Context, db DBTX, transactionID uuid.UUID) (*domain.AMLTransaction, error) {
	row := db.QueryRow(ctx, `
		SELECT `+amlTxColumns+`
		FROM aml_transactions WHERE transaction_id = $1`, transactionID)
	return scanAMLTransaction(row)
}

func (r *amlRepo) InsertAnalysis(ctx context.Context, db DBTX, a *domain.AMLTransaction) (*domain.AMLTransaction, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO aml_transactions
		  (transaction_id, player_id, partner_id, risk_score, risk_factors, analysis_details,
		   is_large_transaction, is_suspicious_pattern, is_unusual_for_player,
		   is_structuring_attempt, is_regulatory_report_required, alert_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+amlTxColumns,
		a.TransactionID, a.PlayerID, a.PartnerID, a.RiskScore, a.RiskFactors, a.AnalysisDetails,
		a.IsLargeTransaction, a.IsSuspiciousPattern, a.IsUnusualForPlayer,
		a.IsStructuringAttempt, a.IsRegulatoryReportRequired, a.AlertID)
	return scanAMLTransaction(row)
}

func scanAMLTransaction(row pgx.Row) (*domain.AMLTransaction, error) {
	var a domain.AMLTransaction
	err := row.Scan(
		&a.ID, &a.TransactionID, &a.PlayerID, &a.PartnerID, &a.RiskScore, &a.RiskFactors,
		&a.AnalysisDetails, &a.IsLargeTransaction, &a.IsSuspiciousPattern, &a.IsUnusualForPlayer,
		&a.IsStructuringAttempt, &a.IsRegulatoryReportRequired, &a.AlertID, &a.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan aml transaction: %w", err)
	}
	return &a, nil
}

const alertColumns = `id, player_id, partner_id, alert_type, severity, status, description,
	risk_score_at_alert, transaction_id, transaction_amount, currency,
	reviewer_notes, reported_at, created_at, updated_at`

var alertFields = map[string]string{
	"player_id":  "player_id",
	"partner_id": "partner_id",
	"alert_type": "alert_type",
	"severity":   "severity",
	"status":     "status",
	"created_at": "created_at",
}

func (r *amlRepo) InsertAlert(ctx context.Context, db DBTX, a *domain.AMLAlert) (*domain.AMLAlert, error) {
	amount, err := infra.DecimalToNumeric(a.TransactionAmount)
	if err != nil {
		return nil, fmt.Errorf("convert transaction_amount: %w", err)
	}
	row := db.QueryRow(ctx, `
		INSERT INTO aml_alerts
		  (player_id, partner_id, alert_type, severity, status, description,
		   risk_score_at_alert, transaction_id, transaction_amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+alertColumns,
		a.PlayerID, a.PartnerID, string(a.Type), string(a.Severity), string(a.Status),
		a.Description, a.RiskScoreAtAlert, a.TransactionID, amount, a.Currency)
	return scanAlert(row)
}

func (r *amlRepo) FindAlert(ctx context.Context, db DBTX, id uuid.UUID) (*domain.AMLAlert, error) {
	row := db.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM aml_alerts WHERE id = $1`, id)
	return scanAlert(row)
}

func (r *amlRepo) ListAlerts(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.AMLAlert, error) {
	b := psql.Select(alertColumns).From("aml_alerts")
	b, err := f.Apply(b, alertFields)
	if err != nil {
		return nil, err
	}
	if sort.Field == "" {
		sort = Sort{Field: "created_at", Desc: true}
	}
	b, err = sort.ApplySort(b, alertFields)
	if err != nil {
		return nil, err
	}
	b = page.ApplyPage(b)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build alert query: %w", err)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.AMLAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (r *amlRepo) UpdateAlert(ctx context.Context, db DBTX, a *domain.AMLAlert) error {
	tag, err := db.Exec(ctx, `
		UPDATE aml_alerts SET
		  status = $2, reviewer_notes = $3, reported_at = $4, updated_at = now()
		WHERE id = $1`,
		a.ID, string(a.Status), a.ReviewerNotes, a.ReportedAt)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("alert %s not found", a.ID)
	}
	return nil
}

func scanAlert(row pgx.Row) (*domain.AMLAlert, error) {
	var a domain.AMLAlert
	var amountNum pgtype.Numeric
	err := row.Scan(
		&a.ID, &a.PlayerID, &a.PartnerID, &a.Type, &a.Severity, &a.Status, &a.Description,
		&a.RiskScoreAtAlert, &a.TransactionID, &amountNum, &a.Currency,
		&a.ReviewerNotes, &a.ReportedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	if a.TransactionAmount, err = infra.NumericToDecimal(amountNum); err != nil {
		return nil, fmt.Errorf("convert transaction_amount: %w", err)
	}
	return &a, nil
}

const amlReportColumns = `id, alert_id, transaction_id, player_id, partner_id, report_type,
	jurisdiction, status, submission_ref, created_by, created_at, updated_at`

var amlReportFields = map[string]string{
	"player_id":   "player_id",
	"partner_id":  "partner_id",
	"report_type": "report_type",
	"status":      "status",
	"created_at":  "created_at",
}

func (r *amlRepo) InsertReport(ctx context.Context, db DBTX, rep *domain.AMLReport) (*domain.AMLReport, error) {
	row := db.QueryRow(ctx, `
		INSERT INTO aml_reports
		  (alert_id, transaction_id, player_id, partner_id, report_type,
		   jurisdiction, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+amlReportColumns,
		rep.AlertID, rep.TransactionID, rep.PlayerID, rep.PartnerID, string(rep.Type),
		rep.Jurisdiction, string(rep.Status), rep.CreatedBy)
	return scanAMLReport(row)
}

func (r *amlRepo) FindReport(ctx context.Context, db DBTX, id uuid.UUID) (*domain.AMLReport, error) {
	row := db.QueryRow(ctx, `
		SELECT `+amlReportColumns+`
		FROM aml_reports WHERE id = $1`, id)
	return scanAMLReport(row)
}

func (r *amlRepo) ListReports(ctx context.Context, db DBTX, f Filter, page Page, sort Sort) ([]domain.AMLReport, error) {
	b := psql.Select(amlReportColumns).From("aml_reports")
	b, err := f.Apply(b, amlReportFields)
	if err != nil {
		return nil, err
	}
	if sort.Field == "" {
		sort = Sort{Field: "created_at", Desc: true}
	}
	b, err = sort.ApplySort(b, amlReportFields)
	if err != nil {
		return nil, err
	}
	b = page.ApplyPage(b)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build aml report query: %w", err)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query aml reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.AMLReport
	for rows.Next() {
		rep, err := scanAMLReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *rep)
	}
	return reports, rows.Err()
}

func scanAMLReport(row pgx.Row) (*domain.AMLReport, error) {
	var rep domain.AMLReport
	err := row.Scan(
		&rep.ID, &rep.AlertID, &rep.TransactionID, &rep.PlayerID, &rep.PartnerID, &rep.Type,
		&rep.Jurisdiction, &rep.Status, &rep.SubmissionRef, &rep.CreatedBy,
		&rep.CreatedAt, &rep.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan aml report: %w", err)
	}
	return &rep, nil
}
