package aml

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betlink/hub/internal/domain"
)

// stddevFloor avoids division blowups on near-constant histories.
var stddevFloor = decimal.NewFromFloat(0.01)

// signalSet is the outcome of the scoring pipeline for one transaction.
type signalSet struct {
	Fired map[domain.AlertType]bool `json:"fired"`
	// SubScores records the contribution of each fired signal.
	SubScores map[domain.AlertType]int `json:"sub_scores"`
	// PatternChecks counts the pattern-deviation sub-checks that fired.
	PatternChecks int `json:"pattern_checks"`
	Total         int `json:"total"`
}

func newSignalSet() *signalSet {
	return &signalSet{
		Fired:     map[domain.AlertType]bool{},
		SubScores: map[domain.AlertType]int{},
	}
}

func (s *signalSet) fire(t domain.AlertType, score int) {
	s.Fired[t] = true
	s.SubScores[t] += score
	s.Total += score
}

func (s *signalSet) clamp() {
	if s.Total > 100 {
		s.Total = 100
	}
	if s.Total < 0 {
		s.Total = 0
	}
}

// alertPriority orders signal types from most to least specific; the first
// fired signal names the alert.
var alertPriority = []domain.AlertType{
	domain.AlertPEPMatch,
	domain.AlertMultiAccount,
	domain.AlertStructuring,
	domain.AlertLargeTransaction,
	domain.AlertRapidMovement,
	domain.AlertUnusualBetting,
	domain.AlertHighRiskCountry,
	domain.AlertPatternDeviation,
}

// highPriorityFactors can raise severity to high at a lower score line.
var highPriorityFactors = []domain.AlertType{
	domain.AlertPEPMatch,
	domain.AlertMultiAccount,
	domain.AlertStructuring,
}

// compositePairs are signal pairings whose co-occurrence adds a bonus on top
// of the individual subscores.
var compositePairs = []struct {
	a, b  domain.AlertType
	bonus int
}{
	{domain.AlertPEPMatch, domain.AlertStructuring, 30},
	{domain.AlertMultiAccount, domain.AlertRapidMovement, 20},
	{domain.AlertStructuring, domain.AlertRapidMovement, 15},
}

func (s *signalSet) alertType() domain.AlertType {
	for _, t := range alertPriority {
		if s.Fired[t] {
			return t
		}
	}
	return domain.AlertPatternDeviation
}

func (s *signalSet) severity() domain.AlertSeverity {
	switch {
	case s.Total >= 85 || s.Fired[domain.AlertPEPMatch]:
		return domain.SeverityCritical
	case s.Total >= 70:
		return domain.SeverityHigh
	case s.Total >= 60 && s.anyHighPriority():
		return domain.SeverityHigh
	case s.Total >= alertLine:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func (s *signalSet) anyHighPriority() bool {
	for _, t := range highPriorityFactors {
		if s.Fired[t] {
			return true
		}
	}
	return false
}

func (s *signalSet) requiresAlert() bool {
	return s.Total >= alertLine
}

func (s *signalSet) requiresReport() bool {
	return s.Fired[domain.AlertLargeTransaction] || s.Total >= reportLine
}

func (s *signalSet) factorNames() []string {
	var names []string
	for _, t := range alertPriority {
		if s.Fired[t] {
			names = append(names, string(t))
		}
	}
	return names
}

// Screening answers list-based checks against external or static data.
// Implementations must be cheap; the analyzer calls them on every
// transaction.
type Screening interface {
	IsHighRiskCountry(ctx context.Context, country string) bool
	IsPEP(ctx context.Context, playerID string) bool
	IsMultiAccount(ctx context.Context, playerID, partnerID string) bool
}

// StaticScreening is a Screening backed by in-memory sets, loaded from
// configuration or a compliance feed at startup.
type StaticScreening struct {
	HighRiskCountries map[string]bool
	PEPs              map[string]bool
	MultiAccount      map[string]bool
}

func (s *StaticScreening) IsHighRiskCountry(_ context.Context, country string) bool {
	return s.HighRiskCountries[country]
}

func (s *StaticScreening) IsPEP(_ context.Context, playerID string) bool {
	return s.PEPs[playerID]
}

func (s *StaticScreening) IsMultiAccount(_ context.Context, playerID, _ string) bool {
	return s.MultiAccount[playerID]
}

// score runs every signal over one transaction plus its historical context
// and returns the composite.
func (a *Analyzer) score(ctx context.Context, t *domain.Transaction) (*signalSet, error) {
	set := newSignalSet()
	amount := t.Amount.Abs()
	now := a.now()

	// large_transaction
	threshold := a.thresholds.For(t.Currency)
	if amount.GreaterThanOrEqual(threshold) {
		set.fire(domain.AlertLargeTransaction, scoreLargeTransaction)
	}

	// structuring: repeated amounts just under the reporting line
	low, high := a.thresholds.StructuringBand(t.Currency)
	moveTypes := []domain.TransactionType{domain.TxDeposit, domain.TxWithdrawal}
	nearMisses, err := a.transactions.CountAmountRange(ctx, a.db, t.PlayerID, t.PartnerID,
		moveTypes, low, high, now.Add(-48*time.Hour))
	if err != nil {
		return nil, err
	}
	if nearMisses >= 3 {
		set.fire(domain.AlertStructuring, scoreStructuring)
	}

	// rapid_movement: withdrawals chasing recent deposits
	since24 := now.Add(-24 * time.Hour)
	deposits, err := a.transactions.SumByTypes(ctx, a.db, t.PlayerID, t.PartnerID,
		[]domain.TransactionType{domain.TxDeposit}, since24)
	if err != nil {
		return nil, err
	}
	if deposits.IsPositive() {
		withdrawals, err := a.transactions.SumByTypes(ctx, a.db, t.PlayerID, t.PartnerID,
			[]domain.TransactionType{domain.TxWithdrawal}, since24)
		if err != nil {
			return nil, err
		}
		if withdrawals.GreaterThanOrEqual(deposits.Mul(decimal.NewFromFloat(0.8))) {
			set.fire(domain.AlertRapidMovement, scoreRapidMovement)
		}
	}

	// unusual_betting: bet size or game choice out of line with 30d history
	if t.Type == domain.TxBet {
		if unusual, err := a.unusualBetting(ctx, t, amount, now); err != nil {
			return nil, err
		} else if unusual {
			set.fire(domain.AlertUnusualBetting, scoreUnusualBetting)
		}
	}

	// pattern_deviation: only meaningful with enough history
	checks, err := a.patternChecks(ctx, t, amount, now)
	if err != nil {
		return nil, err
	}
	if checks > 0 {
		set.PatternChecks = checks
		set.fire(domain.AlertPatternDeviation, checks*scorePatternSubCheck)
	}

	// list-based signals
	if country := metadataCountry(t.Metadata); country != "" && a.screening.IsHighRiskCountry(ctx, country) {
		set.fire(domain.AlertHighRiskCountry, scoreHighRiskCountry)
	}
	if a.screening.IsPEP(ctx, t.PlayerID.String()) {
		set.fire(domain.AlertPEPMatch, scorePEPMatch)
	}
	if a.screening.IsMultiAccount(ctx, t.PlayerID.String(), t.PartnerID.String()) {
		set.fire(domain.AlertMultiAccount, scoreMultiAccount)
	}

	for _, pair := range compositePairs {
		if set.Fired[pair.a] && set.Fired[pair.b] {
			set.Total += pair.bonus
		}
	}
	set.clamp()
	return set, nil
}

func (a *Analyzer) unusualBetting(ctx context.Context, t *domain.Transaction, amount decimal.Decimal, now time.Time) (bool, error) {
	since30 := now.Add(-30 * 24 * time.Hour)
	count, mean, stddev, err := a.transactions.AmountStats(ctx, a.db, t.PlayerID, t.PartnerID,
		[]domain.TransactionType{domain.TxBet}, since30)
	if err != nil {
		return false, err
	}
	if count >= 10 {
		if z := zScore(amount, mean, stddev); z.GreaterThan(decimal.NewFromFloat(2.5)) {
			return true, nil
		}
	}

	if t.GameID != nil && count >= 20 {
		gameCount, totalCount, err := a.transactions.GameBetShare(ctx, a.db, t.PlayerID, t.PartnerID, *t.GameID, since30)
		if err != nil {
			return false, err
		}
		if totalCount > 0 {
			share := decimal.NewFromInt(int64(gameCount)).Div(decimal.NewFromInt(int64(totalCount)))
			if share.LessThan(decimal.NewFromFloat(0.05)) {
				return true, nil
			}
		}
	}
	return false, nil
}

// patternChecks runs the three pattern-deviation sub-checks, gated on at
// least 10 historical transactions. Returns how many fired.
func (a *Analyzer) patternChecks(ctx context.Context, t *domain.Transaction, amount decimal.Decimal, now time.Time) (int, error) {
	since30 := now.Add(-30 * 24 * time.Hour)
	allTypes := []domain.TransactionType{domain.TxDeposit, domain.TxWithdrawal, domain.TxBet, domain.TxWin}

	histCount, mean, stddev, err := a.transactions.AmountStats(ctx, a.db, t.PlayerID, t.PartnerID, allTypes, since30)
	if err != nil {
		return 0, err
	}
	if histCount < 10 {
		return 0, nil
	}

	checks := 0

	// Sub-check 1: activity at an hour the player rarely uses.
	hist, err := a.transactions.HourHistogram(ctx, a.db, t.PlayerID, t.PartnerID, since30)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range hist {
		total += n
	}
	if total > 0 {
		hour := t.CreatedAt.UTC().Hour()
		if float64(hist[hour])/float64(total) < 0.05 {
			checks++
		}
	}

	// Sub-check 2: amount far outside the player's norm.
	if zScore(amount, mean, stddev).GreaterThan(decimal.NewFromFloat(2.5)) {
		checks++
	}

	// Sub-check 3: burst of activity against the daily baseline.
	dayCount, err := a.transactions.ActiveDayCount(ctx, a.db, t.PlayerID, t.PartnerID, since30)
	if err != nil {
		return 0, err
	}
	if dayCount > 3 {
		count24h, err := a.transactions.CountAmountRange(ctx, a.db, t.PlayerID, t.PartnerID,
			allTypes, decimal.Zero, maxAmount, now.Add(-24*time.Hour))
		if err != nil {
			return 0, err
		}
		baseline := float64(histCount) / float64(dayCount)
		if baseline > 0 && float64(count24h)/baseline > 3 {
			checks++
		}
	}
	return checks, nil
}

// maxAmount is an open upper bound for amount-range counts.
var maxAmount = decimal.New(1, 15)

func zScore(amount, mean, stddev decimal.Decimal) decimal.Decimal {
	if stddev.LessThan(stddevFloor) {
		stddev = stddevFloor
	}
	return amount.Sub(mean).Div(stddev)
}

func metadataCountry(meta json.RawMessage) string {
	if len(meta) == 0 {
		return ""
	}
	var m struct {
		Country string `json:"country"`
	}
	if err := json.Unmarshal(meta, &m); err != nil {
		return ""
	}
	return m.Country
}
