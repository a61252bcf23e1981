package aml

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betlink/hub/internal/domain"
)

type reviewFixture struct {
	svc    *ReviewService
	repo   *fakeAMLRepo
	outbox *fakeOutbox
}

func newReviewFixture(t *testing.T) (*reviewFixture, *domain.AMLAlert) {
	t.Helper()
	repo := newFakeAMLRepo()
	outbox := &fakeOutbox{}
	svc := NewReviewService(&fakeDB{}, repo, outbox, slog.New(slog.NewTextHandler(io.Discard, nil)))

	alert, err := repo.InsertAlert(context.Background(), nil, &domain.AMLAlert{
		PlayerID:          uuid.New(),
		PartnerID:         uuid.New(),
		Type:              domain.AlertStructuring,
		Severity:          domain.SeverityHigh,
		Status:            domain.AlertNew,
		Description:       "structuring: score 65",
		RiskScoreAtAlert:  65,
		TransactionAmount: decimal.NewFromInt(7500),
		Currency:          "USD",
	})
	require.NoError(t, err)
	return &reviewFixture{svc: svc, repo: repo, outbox: outbox}, alert
}

func TestAlertReviewFullChain(t *testing.T) {
	fx, alert := newReviewFixture(t)
	ctx := context.Background()

	got, err := fx.svc.Transition(ctx, alert.ID, domain.AlertInvestigating, "looking into it")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertInvestigating, got.Status)
	require.NotNil(t, got.ReviewerNotes)
	assert.Equal(t, "looking into it", *got.ReviewerNotes)

	got, err = fx.svc.Transition(ctx, alert.ID, domain.AlertPendingReport, "")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertPendingReport, got.Status)

	got, err = fx.svc.Transition(ctx, alert.ID, domain.AlertReported, "filed")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertReported, got.Status)
	require.NotNil(t, got.ReportedAt)

	require.Len(t, fx.outbox.drafts, 1)
	assert.Equal(t, domain.EventAlertReported, fx.outbox.drafts[0].EventType)
	assert.Equal(t, alert.ID.String(), fx.outbox.drafts[0].AggregateID)
}

func TestAlertCannotSkipToReported(t *testing.T) {
	fx, alert := newReviewFixture(t)

	_, err := fx.svc.Transition(context.Background(), alert.ID, domain.AlertReported, "")
	require.Error(t, err)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "DUPLICATE_RESOURCE", appErr.Code)

	stored, _ := fx.repo.FindAlert(context.Background(), nil, alert.ID)
	assert.Equal(t, domain.AlertNew, stored.Status, "failed transition leaves the alert untouched")
	assert.Empty(t, fx.outbox.drafts)
}

func TestClosedAlertIsTerminal(t *testing.T) {
	fx, alert := newReviewFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Transition(ctx, alert.ID, domain.AlertClosedCleared, "false positive")
	require.NoError(t, err)

	_, err = fx.svc.Transition(ctx, alert.ID, domain.AlertInvestigating, "")
	require.Error(t, err)
}

func TestTransitionUnknownAlert(t *testing.T) {
	fx, _ := newReviewFixture(t)

	_, err := fx.svc.Transition(context.Background(), uuid.New(), domain.AlertInvestigating, "")
	require.Error(t, err)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "RESOURCE_NOT_FOUND", appErr.Code)
}

func TestGetAlert(t *testing.T) {
	fx, alert := newReviewFixture(t)

	got, err := fx.svc.GetAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.ID, got.ID)

	_, err = fx.svc.GetAlert(context.Background(), uuid.New())
	require.Error(t, err)
}
