package aml

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/betlink/hub/internal/domain"
)

// EMA weights for the rolling risk scores: history dominates, a single
// transaction nudges.
const (
	emaOld = 0.7
	emaNew = 0.3
)

type riskFactorEntry struct {
	FirstDetected time.Time `json:"first_detected"`
	LastDetected  time.Time `json:"last_detected"`
	Count         int       `json:"count"`
}

// updateProfile refreshes the player's rolling windows, ratios, factor
// history and EMA scores inside the analysis transaction.
func (a *Analyzer) updateProfile(ctx context.Context, tx pgx.Tx, t *domain.Transaction, set *signalSet) error {
	profile, err := a.repo.GetProfile(ctx, tx, t.PlayerID, t.PartnerID)
	if err != nil {
		return err
	}
	if profile == nil {
		profile, err = a.repo.CreateProfile(ctx, tx, &domain.AMLRiskProfile{
			PlayerID:  t.PlayerID,
			PartnerID: t.PartnerID,
		})
		if err != nil {
			return fmt.Errorf("create risk profile: %w", err)
		}
	}

	now := a.now()
	if err := a.refreshWindows(ctx, tx, t, profile, now); err != nil {
		return err
	}

	// Ratios over the 30d window.
	bets30, err := a.transactions.SumByTypes(ctx, tx, t.PlayerID, t.PartnerID,
		[]domain.TransactionType{domain.TxBet}, now.Add(-30*24*time.Hour))
	if err != nil {
		return err
	}
	if profile.DepositAmount30d.IsPositive() {
		profile.WagerToDepositRatio = bets30.DivRound(profile.DepositAmount30d, 4)
		profile.WithdrawalToDepositRatio = profile.WithdrawalAmount30d.DivRound(profile.DepositAmount30d, 4)
	} else {
		profile.WagerToDepositRatio = decimal.Zero
		profile.WithdrawalToDepositRatio = decimal.Zero
	}

	// Factor history: first seen, last seen, occurrence count.
	factors := map[string]riskFactorEntry{}
	if len(profile.RiskFactors) > 0 {
		if err := json.Unmarshal(profile.RiskFactors, &factors); err != nil {
			factors = map[string]riskFactorEntry{}
		}
	}
	for _, name := range set.factorNames() {
		entry, ok := factors[name]
		if !ok {
			entry = riskFactorEntry{FirstDetected: now}
		}
		entry.LastDetected = now
		entry.Count++
		factors[name] = entry
	}
	profile.RiskFactors, _ = json.Marshal(factors)

	// EMA the overall score plus the score bucket matching the entry type.
	newScore := float64(set.Total)
	profile.OverallRiskScore = ema(profile.OverallRiskScore, newScore)
	switch t.Type {
	case domain.TxDeposit:
		profile.DepositRiskScore = ema(profile.DepositRiskScore, newScore)
	case domain.TxWithdrawal:
		profile.WithdrawalRiskScore = ema(profile.WithdrawalRiskScore, newScore)
	case domain.TxBet, domain.TxWin:
		profile.GameplayRiskScore = ema(profile.GameplayRiskScore, newScore)
	}

	profile.LastAssessmentAt = &now
	return a.repo.UpdateProfile(ctx, tx, profile)
}

// refreshWindows recomputes the 7d/30d deposit and withdrawal aggregates
// from the ledger rather than incrementing counters, so the windows slide
// correctly.
func (a *Analyzer) refreshWindows(ctx context.Context, tx pgx.Tx, t *domain.Transaction, profile *domain.AMLRiskProfile, now time.Time) error {
	type window struct {
		since  time.Time
		types  []domain.TransactionType
		count  *int
		amount *decimal.Decimal
	}
	since7, since30 := now.Add(-7*24*time.Hour), now.Add(-30*24*time.Hour)
	deposits := []domain.TransactionType{domain.TxDeposit}
	withdrawals := []domain.TransactionType{domain.TxWithdrawal}

	windows := []window{
		{since7, deposits, &profile.DepositCount7d, &profile.DepositAmount7d},
		{since7, withdrawals, &profile.WithdrawalCount7d, &profile.WithdrawalAmount7d},
		{since30, deposits, &profile.DepositCount30d, &profile.DepositAmount30d},
		{since30, withdrawals, &profile.WithdrawalCount30d, &profile.WithdrawalAmount30d},
	}
	for _, w := range windows {
		count, err := a.transactions.CountAmountRange(ctx, tx, t.PlayerID, t.PartnerID,
			w.types, decimal.Zero, maxAmount, w.since)
		if err != nil {
			return err
		}
		sum, err := a.transactions.SumByTypes(ctx, tx, t.PlayerID, t.PartnerID, w.types, w.since)
		if err != nil {
			return err
		}
		*w.count = count
		*w.amount = sum
	}
	return nil
}

func ema(prev, sample float64) float64 {
	return prev*emaOld + sample*emaNew
}
