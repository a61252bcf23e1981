package aml

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
	"github.com/betlink/hub/internal/wallet"
)

// ReviewService drives the alert review state machine for compliance staff.
type ReviewService struct {
	db     wallet.DB
	repo   repository.AMLRepository
	outbox repository.OutboxRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewReviewService creates the alert review service.
func NewReviewService(db wallet.DB, repo repository.AMLRepository, outbox repository.OutboxRepository, logger *slog.Logger) *ReviewService {
	return &ReviewService{db: db, repo: repo, outbox: outbox, logger: logger, now: time.Now}
}

// GetAlert returns one alert.
func (s *ReviewService) GetAlert(ctx context.Context, id uuid.UUID) (*domain.AMLAlert, error) {
	alert, err := s.repo.FindAlert(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, domain.ErrNotFound("alert", id.String())
	}
	return alert, nil
}

// ListAlerts returns alerts matching the uniform filter.
func (s *ReviewService) ListAlerts(ctx context.Context, f repository.Filter, page repository.Page, sort repository.Sort) ([]domain.AMLAlert, error) {
	alerts, err := s.repo.ListAlerts(ctx, s.db, f, page, sort)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	return alerts, nil
}

// Transition moves an alert through the review state machine. Moving to
// reported stamps reported_at and notifies the reporting pipeline.
func (s *ReviewService) Transition(ctx context.Context, id uuid.UUID, to domain.AlertStatus, notes string) (*domain.AMLAlert, error) {
	var alert *domain.AMLAlert
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		alert, err = s.repo.FindAlert(ctx, tx, id)
		if err != nil {
			return err
		}
		if alert == nil {
			return domain.ErrNotFound("alert", id.String())
		}
		if !alert.Status.CanTransition(to) {
			return domain.ErrConflict(fmt.Sprintf("cannot transition alert from %s to %s", alert.Status, to))
		}

		alert.Status = to
		if notes != "" {
			alert.ReviewerNotes = &notes
		}
		if to == domain.AlertReported {
			now := s.now()
			alert.ReportedAt = &now
			if err := s.outbox.Insert(ctx, tx, domain.NewAlertEvent(alert, domain.EventAlertReported)); err != nil {
				return err
			}
		}
		return s.repo.UpdateAlert(ctx, tx, alert)
	})
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// ListReports returns regulatory report records matching the filter.
func (s *ReviewService) ListReports(ctx context.Context, f repository.Filter, page repository.Page, sort repository.Sort) ([]domain.AMLReport, error) {
	reports, err := s.repo.ListReports(ctx, s.db, f, page, sort)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	return reports, nil
}
