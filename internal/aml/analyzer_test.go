package aml

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/infra"
	"github.com/betlink/hub/internal/repository"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fakeDB struct{ repository.DBTX }

func (f *fakeDB) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

type fakeTx struct{ pgx.Tx }

func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

// fakeHistory serves the aggregate queries the scorer runs; each field maps
// straight onto one repository method.
type fakeHistory struct {
	unanalyzed []domain.Transaction

	nearMisses    int
	deposits24    decimal.Decimal
	withdrawals24 decimal.Decimal
	betCount      int
	betMean       decimal.Decimal
	betStddev     decimal.Decimal
	gameCount     int
	totalBetCount int
	allCount      int
	allMean       decimal.Decimal
	allStddev     decimal.Decimal
	hourHist      [24]int
	activeDays    int
	count24h      int
}

func (f *fakeHistory) Insert(context.Context, repository.DBTX, *domain.Transaction) (*domain.Transaction, error) {
	return nil, nil
}

func (f *fakeHistory) FindByPartnerReference(context.Context, repository.DBTX, uuid.UUID, string) (*domain.Transaction, error) {
	return nil, nil
}

func (f *fakeHistory) FindByID(context.Context, repository.DBTX, uuid.UUID) (*domain.Transaction, error) {
	return nil, nil
}

func (f *fakeHistory) MarkRolledBack(context.Context, pgx.Tx, uuid.UUID) error { return nil }

func (f *fakeHistory) List(context.Context, repository.DBTX, repository.Filter, repository.Page, repository.Sort) ([]domain.Transaction, error) {
	return nil, nil
}

func (f *fakeHistory) ListUnanalyzed(context.Context, repository.DBTX, int) ([]domain.Transaction, error) {
	return f.unanalyzed, nil
}

func (f *fakeHistory) CountAmountRange(_ context.Context, _ repository.DBTX, _, _ uuid.UUID, types []domain.TransactionType, min, _ decimal.Decimal, _ time.Time) (int, error) {
	if min.IsPositive() {
		return f.nearMisses, nil
	}
	if len(types) == 1 {
		// Window refresh counts deposits or withdrawals alone.
		return 0, nil
	}
	return f.count24h, nil
}

func (f *fakeHistory) SumByTypes(_ context.Context, _ repository.DBTX, _, _ uuid.UUID, types []domain.TransactionType, _ time.Time) (decimal.Decimal, error) {
	if len(types) == 1 {
		switch types[0] {
		case domain.TxDeposit:
			return f.deposits24, nil
		case domain.TxWithdrawal:
			return f.withdrawals24, nil
		case domain.TxBet:
			return decimal.Zero, nil
		}
	}
	return decimal.Zero, nil
}

func (f *fakeHistory) AmountStats(_ context.Context, _ repository.DBTX, _, _ uuid.UUID, types []domain.TransactionType, _ time.Time) (int, decimal.Decimal, decimal.Decimal, error) {
	if len(types) == 1 && types[0] == domain.TxBet {
		return f.betCount, f.betMean, f.betStddev, nil
	}
	return f.allCount, f.allMean, f.allStddev, nil
}

func (f *fakeHistory) HourHistogram(context.Context, repository.DBTX, uuid.UUID, uuid.UUID, time.Time) ([24]int, error) {
	return f.hourHist, nil
}

func (f *fakeHistory) ActiveDayCount(context.Context, repository.DBTX, uuid.UUID, uuid.UUID, time.Time) (int, error) {
	return f.activeDays, nil
}

func (f *fakeHistory) GameBetShare(context.Context, repository.DBTX, uuid.UUID, uuid.UUID, uuid.UUID, time.Time) (int, int, error) {
	return f.gameCount, f.totalBetCount, nil
}

type fakeAMLRepo struct {
	mu       sync.Mutex
	profiles map[string]*domain.AMLRiskProfile
	analyses map[uuid.UUID]*domain.AMLTransaction
	alerts   map[uuid.UUID]*domain.AMLAlert
	reports  []*domain.AMLReport
}

func newFakeAMLRepo() *fakeAMLRepo {
	return &fakeAMLRepo{
		profiles: map[string]*domain.AMLRiskProfile{},
		analyses: map[uuid.UUID]*domain.AMLTransaction{},
		alerts:   map[uuid.UUID]*domain.AMLAlert{},
	}
}

func profileKey(playerID, partnerID uuid.UUID) string {
	return playerID.String() + "|" + partnerID.String()
}

func (f *fakeAMLRepo) GetProfile(_ context.Context, _ repository.DBTX, playerID, partnerID uuid.UUID) (*domain.AMLRiskProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[profileKey(playerID, partnerID)]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeAMLRepo) CreateProfile(_ context.Context, _ repository.DBTX, p *domain.AMLRiskProfile) (*domain.AMLRiskProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	cp.ID = uuid.New()
	f.profiles[profileKey(p.PlayerID, p.PartnerID)] = &cp
	out := cp
	return &out, nil
}

func (f *fakeAMLRepo) UpdateProfile(_ context.Context, _ repository.DBTX, p *domain.AMLRiskProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.profiles[profileKey(p.PlayerID, p.PartnerID)] = &cp
	return nil
}

func (f *fakeAMLRepo) FindAnalysisByTransaction(_ context.Context, _ repository.DBTX, transactionID uuid.UUID) (*domain.AMLTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.analyses[transactionID]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeAMLRepo) InsertAnalysis(_ context.Context, _ repository.DBTX, a *domain.AMLTransaction) (*domain.AMLTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	f.analyses[a.TransactionID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeAMLRepo) InsertAlert(_ context.Context, _ repository.DBTX, a *domain.AMLAlert) (*domain.AMLAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	cp.ID = uuid.New()
	f.alerts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeAMLRepo) FindAlert(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.AMLAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.alerts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeAMLRepo) ListAlerts(context.Context, repository.DBTX, repository.Filter, repository.Page, repository.Sort) ([]domain.AMLAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AMLAlert
	for _, a := range f.alerts {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeAMLRepo) UpdateAlert(_ context.Context, _ repository.DBTX, a *domain.AMLAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.alerts[a.ID] = &cp
	return nil
}

func (f *fakeAMLRepo) InsertReport(_ context.Context, _ repository.DBTX, r *domain.AMLReport) (*domain.AMLReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	cp.ID = uuid.New()
	f.reports = append(f.reports, &cp)
	out := cp
	return &out, nil
}

func (f *fakeAMLRepo) FindReport(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.AMLReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reports {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAMLRepo) ListReports(context.Context, repository.DBTX, repository.Filter, repository.Page, repository.Sort) ([]domain.AMLReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AMLReport
	for _, r := range f.reports {
		out = append(out, *r)
	}
	return out, nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	drafts []domain.OutboxDraft
}

func (f *fakeOutbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
	return nil
}

type amlFixture struct {
	analyzer *Analyzer
	history  *fakeHistory
	repo     *fakeAMLRepo
	outbox   *fakeOutbox
}

func newAMLFixture(t *testing.T, screening Screening) *amlFixture {
	t.Helper()
	enc, err := infra.NewEncryptor(testKeyHex)
	require.NoError(t, err)

	history := &fakeHistory{
		deposits24:    decimal.Zero,
		withdrawals24: decimal.Zero,
	}
	repo := newFakeAMLRepo()
	outbox := &fakeOutbox{}
	analyzer := NewAnalyzer(
		&fakeDB{}, history, repo, outbox, enc,
		NewThresholds(nil), screening, slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return &amlFixture{analyzer: analyzer, history: history, repo: repo, outbox: outbox}
}

func tx(amount string, kind domain.TransactionType, currency string) *domain.Transaction {
	d, _ := decimal.NewFromString(amount)
	return &domain.Transaction{
		ID:        uuid.New(),
		PlayerID:  uuid.New(),
		PartnerID: uuid.New(),
		Type:      kind,
		Amount:    d,
		Currency:  currency,
		Status:    domain.TxCompleted,
		CreatedAt: time.Now(),
	}
}

func TestThresholdDefaults(t *testing.T) {
	th := NewThresholds(nil)
	assert.True(t, th.For("USD").Equal(decimal.NewFromInt(10000)))
	assert.True(t, th.For("EUR").Equal(decimal.NewFromInt(9500)))
	assert.True(t, th.For("GBP").Equal(decimal.NewFromInt(8000)))
	assert.True(t, th.For("KRW").Equal(decimal.NewFromInt(12000000)))
	assert.True(t, th.For("JPY").Equal(decimal.NewFromInt(1300000)))
	assert.True(t, th.For("CHF").Equal(decimal.NewFromInt(10000)), "unknown currency falls back")
}

func TestThresholdOverrides(t *testing.T) {
	th := NewThresholds(map[string]string{"USD": "5000", "EUR": "bogus"})
	assert.True(t, th.For("USD").Equal(decimal.NewFromInt(5000)))
	assert.True(t, th.For("EUR").Equal(decimal.NewFromInt(9500)), "unparseable override ignored")

	low, high := th.StructuringBand("USD")
	assert.True(t, low.Equal(decimal.NewFromInt(3500)))
	assert.True(t, high.Equal(decimal.NewFromInt(4950)))
}

func TestLargeTransactionRaisesAlertAndCTR(t *testing.T) {
	fx := newAMLFixture(t, nil)

	record, err := fx.analyzer.Analyze(context.Background(), tx("10000", domain.TxDeposit, "USD"))
	require.NoError(t, err)

	assert.True(t, record.IsLargeTransaction)
	assert.Equal(t, float64(40), record.RiskScore)
	assert.True(t, record.IsRegulatoryReportRequired)
	require.NotNil(t, record.AlertID)

	alert := fx.repo.alerts[*record.AlertID]
	require.NotNil(t, alert)
	assert.Equal(t, domain.AlertLargeTransaction, alert.Type)
	assert.Equal(t, domain.SeverityMedium, alert.Severity)
	assert.Equal(t, domain.AlertNew, alert.Status)

	require.Len(t, fx.repo.reports, 1)
	assert.Equal(t, domain.ReportCTR, fx.repo.reports[0].Type)
	assert.Equal(t, domain.AMLReportDraft, fx.repo.reports[0].Status)

	require.Len(t, fx.outbox.drafts, 1)
	assert.Equal(t, domain.EventAlertRaised, fx.outbox.drafts[0].EventType)
}

func TestJustUnderThresholdDoesNotAlert(t *testing.T) {
	fx := newAMLFixture(t, nil)

	record, err := fx.analyzer.Analyze(context.Background(), tx("9999.99", domain.TxDeposit, "USD"))
	require.NoError(t, err)

	assert.False(t, record.IsLargeTransaction)
	assert.Equal(t, float64(0), record.RiskScore)
	assert.Nil(t, record.AlertID)
	assert.Empty(t, fx.repo.reports)
}

func TestStructuringAloneStaysBelowAlertLine(t *testing.T) {
	fx := newAMLFixture(t, nil)
	fx.history.nearMisses = 3

	record, err := fx.analyzer.Analyze(context.Background(), tx("7500", domain.TxDeposit, "USD"))
	require.NoError(t, err)

	assert.True(t, record.IsStructuringAttempt)
	assert.Equal(t, float64(30), record.RiskScore)
	assert.Nil(t, record.AlertID, "30 is below the alert line")
}

func TestStructuringWithRapidMovement(t *testing.T) {
	fx := newAMLFixture(t, nil)
	fx.history.nearMisses = 3
	fx.history.deposits24 = decimal.NewFromInt(5000)
	fx.history.withdrawals24 = decimal.NewFromInt(4500)

	record, err := fx.analyzer.Analyze(context.Background(), tx("7500", domain.TxWithdrawal, "USD"))
	require.NoError(t, err)

	// structuring 30 + rapid 20 + composite 15 = 65
	assert.Equal(t, float64(65), record.RiskScore)
	require.NotNil(t, record.AlertID)
	alert := fx.repo.alerts[*record.AlertID]
	assert.Equal(t, domain.AlertStructuring, alert.Type, "structuring outranks rapid_movement")
	assert.Equal(t, domain.SeverityHigh, alert.Severity, "high-priority factor at 60+")
}

func TestPEPMatchIsCritical(t *testing.T) {
	playerTx := tx("100", domain.TxDeposit, "USD")
	screening := &StaticScreening{PEPs: map[string]bool{playerTx.PlayerID.String(): true}}
	fx := newAMLFixture(t, screening)

	record, err := fx.analyzer.Analyze(context.Background(), playerTx)
	require.NoError(t, err)

	assert.Equal(t, float64(35), record.RiskScore)
	assert.Nil(t, record.AlertID, "pep alone scores below the alert line")

	// PEP plus structuring crosses the line with the composite bonus and
	// severity is critical regardless of score.
	fx2 := newAMLFixture(t, screening)
	fx2.history.nearMisses = 3
	record, err = fx2.analyzer.Analyze(context.Background(), playerTx)
	require.NoError(t, err)

	// pep 35 + structuring 30 + composite 30 = 95
	assert.Equal(t, float64(95), record.RiskScore)
	require.NotNil(t, record.AlertID)
	alert := fx2.repo.alerts[*record.AlertID]
	assert.Equal(t, domain.AlertPEPMatch, alert.Type)
	assert.Equal(t, domain.SeverityCritical, alert.Severity)
	require.Len(t, fx2.repo.reports, 1)
	assert.Equal(t, domain.ReportSAR, fx2.repo.reports[0].Type)
}

func TestScoreClampedAt100(t *testing.T) {
	playerTx := tx("10000", domain.TxDeposit, "USD")
	screening := &StaticScreening{
		PEPs:         map[string]bool{playerTx.PlayerID.String(): true},
		MultiAccount: map[string]bool{playerTx.PlayerID.String(): true},
	}
	fx := newAMLFixture(t, screening)
	fx.history.nearMisses = 5

	record, err := fx.analyzer.Analyze(context.Background(), playerTx)
	require.NoError(t, err)
	assert.Equal(t, float64(100), record.RiskScore)
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	fx := newAMLFixture(t, nil)
	entry := tx("10000", domain.TxDeposit, "USD")

	first, err := fx.analyzer.Analyze(context.Background(), entry)
	require.NoError(t, err)
	second, err := fx.analyzer.Analyze(context.Background(), entry)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, fx.repo.alerts, 1)
	assert.Len(t, fx.repo.reports, 1)
}

func TestProfileEMAAndFactors(t *testing.T) {
	fx := newAMLFixture(t, nil)
	entry := tx("10000", domain.TxDeposit, "USD")

	_, err := fx.analyzer.Analyze(context.Background(), entry)
	require.NoError(t, err)

	profile := fx.repo.profiles[profileKey(entry.PlayerID, entry.PartnerID)]
	require.NotNil(t, profile)
	assert.InDelta(t, 12.0, profile.OverallRiskScore, 0.001, "0*0.7 + 40*0.3")
	assert.InDelta(t, 12.0, profile.DepositRiskScore, 0.001)
	assert.Zero(t, profile.GameplayRiskScore)
	assert.NotNil(t, profile.LastAssessmentAt)
	assert.Contains(t, string(profile.RiskFactors), "large_transaction")
}

func TestRepairScan(t *testing.T) {
	fx := newAMLFixture(t, nil)
	fx.history.unanalyzed = []domain.Transaction{
		*tx("10000", domain.TxDeposit, "USD"),
		*tx("50", domain.TxBet, "USD"),
	}

	repaired, err := fx.analyzer.RepairScan(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)
	assert.Len(t, fx.repo.analyses, 2)
}

func TestAnalysisDetailsAreSealed(t *testing.T) {
	fx := newAMLFixture(t, nil)
	entry := tx("10000", domain.TxDeposit, "USD")

	record, err := fx.analyzer.Analyze(context.Background(), entry)
	require.NoError(t, err)
	assert.NotContains(t, string(record.AnalysisDetails), "large_transaction",
		"details must not be stored in the clear")

	enc, err := infra.NewEncryptor(testKeyHex)
	require.NoError(t, err)
	plain, err := enc.Decrypt(record.AnalysisDetails)
	require.NoError(t, err)
	assert.Contains(t, string(plain), "large_transaction")
}
