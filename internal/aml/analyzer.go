package aml

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/infra"
	"github.com/betlink/hub/internal/repository"
	"github.com/betlink/hub/internal/wallet"
)

// Analyzer scores completed ledger entries. It runs after the wallet commit,
// never inside it: a failure here is logged and repaired later, not surfaced
// to the money path.
type Analyzer struct {
	db           wallet.DB
	transactions repository.TransactionRepository
	repo         repository.AMLRepository
	outbox       repository.OutboxRepository
	encryptor    *infra.Encryptor
	thresholds   *Thresholds
	screening    Screening
	logger       *slog.Logger
	now          func() time.Time
}

// NewAnalyzer creates the AML analyzer.
func NewAnalyzer(
	db wallet.DB,
	transactions repository.TransactionRepository,
	repo repository.AMLRepository,
	outbox repository.OutboxRepository,
	encryptor *infra.Encryptor,
	thresholds *Thresholds,
	screening Screening,
	logger *slog.Logger,
) *Analyzer {
	if screening == nil {
		screening = &StaticScreening{}
	}
	return &Analyzer{
		db: db, transactions: transactions, repo: repo, outbox: outbox,
		encryptor: encryptor, thresholds: thresholds, screening: screening,
		logger: logger, now: time.Now,
	}
}

// Analyze runs the scoring pipeline for one transaction. Re-analyzing a
// transaction returns the stored record unchanged.
func (a *Analyzer) Analyze(ctx context.Context, t *domain.Transaction) (*domain.AMLTransaction, error) {
	existing, err := a.repo.FindAnalysisByTransaction(ctx, a.db, t.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	set, err := a.score(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("score transaction %s: %w", t.ID, err)
	}

	details, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("encode analysis details: %w", err)
	}
	sealed, err := a.encryptor.Encrypt(details)
	if err != nil {
		return nil, fmt.Errorf("seal analysis details: %w", err)
	}
	factors, _ := json.Marshal(set.factorNames())

	record := &domain.AMLTransaction{
		TransactionID:              t.ID,
		PlayerID:                   t.PlayerID,
		PartnerID:                  t.PartnerID,
		RiskScore:                  float64(set.Total),
		RiskFactors:                factors,
		AnalysisDetails:            sealed,
		IsLargeTransaction:         set.Fired[domain.AlertLargeTransaction],
		IsSuspiciousPattern:        set.Fired[domain.AlertPatternDeviation],
		IsUnusualForPlayer:         set.Fired[domain.AlertUnusualBetting],
		IsStructuringAttempt:       set.Fired[domain.AlertStructuring],
		IsRegulatoryReportRequired: set.requiresReport(),
	}

	err = pgx.BeginTxFunc(ctx, a.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var alert *domain.AMLAlert
		if set.requiresAlert() {
			alert, err = a.repo.InsertAlert(ctx, tx, &domain.AMLAlert{
				PlayerID:          t.PlayerID,
				PartnerID:         t.PartnerID,
				Type:              set.alertType(),
				Severity:          set.severity(),
				Status:            domain.AlertNew,
				Description:       alertDescription(set, t),
				RiskScoreAtAlert:  float64(set.Total),
				TransactionID:     &t.ID,
				TransactionAmount: t.Amount.Abs(),
				Currency:          t.Currency,
			})
			if err != nil {
				return fmt.Errorf("insert alert: %w", err)
			}
			record.AlertID = &alert.ID
			if err := a.outbox.Insert(ctx, tx, domain.NewAlertEvent(alert, domain.EventAlertRaised)); err != nil {
				return err
			}
		}

		inserted, err := a.repo.InsertAnalysis(ctx, tx, record)
		if err != nil {
			if repository.IsUniqueViolation(err) {
				// A concurrent analysis won; use its record.
				return nil
			}
			return fmt.Errorf("insert analysis: %w", err)
		}
		record = inserted

		if set.requiresReport() {
			reportType := domain.ReportSAR
			if set.Fired[domain.AlertLargeTransaction] {
				reportType = domain.ReportCTR
			}
			var alertID *uuid.UUID
			if alert != nil {
				alertID = &alert.ID
			}
			if _, err := a.repo.InsertReport(ctx, tx, &domain.AMLReport{
				AlertID:       alertID,
				TransactionID: &t.ID,
				PlayerID:      t.PlayerID,
				PartnerID:     t.PartnerID,
				Type:          reportType,
				Jurisdiction:  "default",
				Status:        domain.AMLReportDraft,
				CreatedBy:     "system",
			}); err != nil {
				return fmt.Errorf("insert report draft: %w", err)
			}
		}

		return a.updateProfile(ctx, tx, t, set)
	})
	if err != nil {
		return nil, err
	}

	if record.ID == uuid.Nil {
		return a.repo.FindAnalysisByTransaction(ctx, a.db, t.ID)
	}
	return record, nil
}

// AnalyzeLogged is the fire-and-forget form used on the post-commit path.
func (a *Analyzer) AnalyzeLogged(ctx context.Context, t *domain.Transaction) {
	if _, err := a.Analyze(ctx, t); err != nil {
		a.logger.Error("aml analysis failed",
			"transaction_id", t.ID, "player_id", t.PlayerID, "error", err)
	}
}

// RepairScan re-runs analysis for completed transactions that have no AML
// record, closing the gap left by crashes between wallet commit and
// analysis.
func (a *Analyzer) RepairScan(ctx context.Context, batch int) (int, error) {
	missing, err := a.transactions.ListUnanalyzed(ctx, a.db, batch)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for i := range missing {
		if _, err := a.Analyze(ctx, &missing[i]); err != nil {
			a.logger.Error("aml repair failed", "transaction_id", missing[i].ID, "error", err)
			continue
		}
		repaired++
	}
	if repaired > 0 {
		a.logger.Info("aml repair scan completed", "repaired", repaired)
	}
	return repaired, nil
}

func alertDescription(set *signalSet, t *domain.Transaction) string {
	return fmt.Sprintf("%s: score %d on %s %s %s",
		set.alertType(), set.Total, t.Type, t.Amount.Abs().StringFixed(2), t.Currency)
}
