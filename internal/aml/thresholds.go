// Package aml implements the transaction risk pipeline: per-transaction
// signal scoring, alerting, regulatory report drafts and the rolling player
// risk profile.
package aml

import (
	"github.com/shopspring/decimal"
)

// Signal scores. Each signal contributes a fixed subscore; the composite is
// clamped to [0, 100].
const (
	scoreLargeTransaction = 40
	scoreStructuring      = 30
	scoreRapidMovement    = 20
	scoreUnusualBetting   = 15
	scorePatternSubCheck  = 5
	scoreHighRiskCountry  = 25
	scorePEPMatch         = 35
	scoreMultiAccount     = 30
)

// Decision lines.
const (
	alertLine  = 40
	reportLine = 75
)

// defaultThresholds is the large-transaction line per currency, in major
// units of that currency.
var defaultThresholds = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(10000),
	"EUR": decimal.NewFromInt(9500),
	"GBP": decimal.NewFromInt(8000),
	"KRW": decimal.NewFromInt(12000000),
	"JPY": decimal.NewFromInt(1300000),
}

var fallbackThreshold = decimal.NewFromInt(10000)

// Thresholds resolves per-currency large-transaction thresholds, with
// operator overrides layered over the defaults.
type Thresholds struct {
	overrides map[string]decimal.Decimal
}

// NewThresholds builds a threshold table. Override values that fail to parse
// as decimals are ignored.
func NewThresholds(overrides map[string]string) *Thresholds {
	parsed := make(map[string]decimal.Decimal, len(overrides))
	for cur, raw := range overrides {
		if v, err := decimal.NewFromString(raw); err == nil && v.IsPositive() {
			parsed[cur] = v
		}
	}
	return &Thresholds{overrides: parsed}
}

// For returns the threshold for a currency.
func (t *Thresholds) For(currency string) decimal.Decimal {
	if v, ok := t.overrides[currency]; ok {
		return v
	}
	if v, ok := defaultThresholds[currency]; ok {
		return v
	}
	return fallbackThreshold
}

// StructuringBand returns the [low, high] amount band that counts toward
// structuring detection: 70% to 99% of the currency threshold.
func (t *Thresholds) StructuringBand(currency string) (decimal.Decimal, decimal.Decimal) {
	th := t.For(currency)
	low := th.Mul(decimal.NewFromFloat(0.70))
	high := th.Mul(decimal.NewFromFloat(0.99))
	return low, high
}
