package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertType identifies which signal raised an AML alert, in priority order.
type AlertType string

const (
	AlertPEPMatch         AlertType = "pep_match"
	AlertMultiAccount     AlertType = "multi_account"
	AlertStructuring      AlertType = "structuring"
	AlertLargeTransaction AlertType = "large_transaction"
	AlertRapidMovement    AlertType = "rapid_movement"
	AlertUnusualBetting   AlertType = "unusual_betting"
	AlertHighRiskCountry  AlertType = "high_risk_country"
	AlertPatternDeviation AlertType = "pattern_deviation"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus is the alert review state machine.
type AlertStatus string

const (
	AlertNew            AlertStatus = "new"
	AlertInvestigating  AlertStatus = "investigating"
	AlertPendingReport  AlertStatus = "pending_report"
	AlertReported       AlertStatus = "reported"
	AlertClosedCleared  AlertStatus = "closed_cleared"
	AlertClosedActioned AlertStatus = "closed_actioned"
)

// alertTransitions encodes the legal review state machine:
// new → investigating → pending_report → reported, or new → closed_*.
var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertNew:           {AlertInvestigating, AlertPendingReport, AlertClosedCleared, AlertClosedActioned},
	AlertInvestigating: {AlertPendingReport, AlertClosedCleared, AlertClosedActioned},
	AlertPendingReport: {AlertReported, AlertClosedCleared},
	AlertReported:      {AlertClosedActioned, AlertClosedCleared},
}

// CanTransition reports whether an alert may move from one status to another.
func (s AlertStatus) CanTransition(to AlertStatus) bool {
	for _, allowed := range alertTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsClosed reports whether the status is terminal.
func (s AlertStatus) IsClosed() bool {
	return s == AlertClosedCleared || s == AlertClosedActioned
}

// AMLRiskProfile is the rolling per-(player, partner) risk state.
type AMLRiskProfile struct {
	ID        uuid.UUID `json:"id"`
	PlayerID  uuid.UUID `json:"player_id"`
	PartnerID uuid.UUID `json:"partner_id"`

	DepositCount7d      int             `json:"deposit_count_7d"`
	DepositAmount7d     decimal.Decimal `json:"deposit_amount_7d"`
	WithdrawalCount7d   int             `json:"withdrawal_count_7d"`
	WithdrawalAmount7d  decimal.Decimal `json:"withdrawal_amount_7d"`
	DepositCount30d     int             `json:"deposit_count_30d"`
	DepositAmount30d    decimal.Decimal `json:"deposit_amount_30d"`
	WithdrawalCount30d  int             `json:"withdrawal_count_30d"`
	WithdrawalAmount30d decimal.Decimal `json:"withdrawal_amount_30d"`

	WagerToDepositRatio      decimal.Decimal `json:"wager_to_deposit_ratio"`
	WithdrawalToDepositRatio decimal.Decimal `json:"withdrawal_to_deposit_ratio"`

	OverallRiskScore    float64 `json:"overall_risk_score"`
	DepositRiskScore    float64 `json:"deposit_risk_score"`
	WithdrawalRiskScore float64 `json:"withdrawal_risk_score"`
	GameplayRiskScore   float64 `json:"gameplay_risk_score"`

	RiskFactors      json.RawMessage `json:"risk_factors,omitempty"`
	LastAssessmentAt *time.Time      `json:"last_assessment_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AMLTransaction is the stored analysis outcome for a single ledger entry.
// At most one exists per transaction (idempotent analysis).
type AMLTransaction struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	PlayerID      uuid.UUID `json:"player_id"`
	PartnerID     uuid.UUID `json:"partner_id"`

	RiskScore   float64         `json:"risk_score"`
	RiskFactors json.RawMessage `json:"risk_factors,omitempty"`
	// AnalysisDetails is AES-GCM encrypted at rest.
	AnalysisDetails []byte `json:"-"`

	IsLargeTransaction         bool `json:"is_large_transaction"`
	IsSuspiciousPattern        bool `json:"is_suspicious_pattern"`
	IsUnusualForPlayer         bool `json:"is_unusual_for_player"`
	IsStructuringAttempt       bool `json:"is_structuring_attempt"`
	IsRegulatoryReportRequired bool `json:"is_regulatory_report_required"`

	AlertID   *uuid.UUID `json:"alert_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// AMLAlert is raised when a transaction scores at or above the alert line.
type AMLAlert struct {
	ID                uuid.UUID       `json:"id"`
	PlayerID          uuid.UUID       `json:"player_id"`
	PartnerID         uuid.UUID       `json:"partner_id"`
	Type              AlertType       `json:"alert_type"`
	Severity          AlertSeverity   `json:"severity"`
	Status            AlertStatus     `json:"status"`
	Description       string          `json:"description"`
	RiskScoreAtAlert  float64         `json:"risk_score_at_alert"`
	TransactionID     *uuid.UUID      `json:"transaction_id,omitempty"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	Currency          string          `json:"currency"`
	ReviewerNotes     *string         `json:"reviewer_notes,omitempty"`
	ReportedAt        *time.Time      `json:"reported_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AMLReportType is the regulatory filing kind.
type AMLReportType string

const (
	ReportSAR AMLReportType = "SAR"
	ReportCTR AMLReportType = "CTR"
	ReportSTR AMLReportType = "STR"
)

// AMLReportStatus is the filing lifecycle.
type AMLReportStatus string

const (
	AMLReportDraft     AMLReportStatus = "draft"
	AMLReportSubmitted AMLReportStatus = "submitted"
	AMLReportAccepted  AMLReportStatus = "accepted"
	AMLReportRejected  AMLReportStatus = "rejected"
)

// AMLReport is a regulatory output, optionally owned by an alert.
type AMLReport struct {
	ID            uuid.UUID       `json:"id"`
	AlertID       *uuid.UUID      `json:"alert_id,omitempty"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"`
	PlayerID      uuid.UUID       `json:"player_id"`
	PartnerID     uuid.UUID       `json:"partner_id"`
	Type          AMLReportType   `json:"report_type"`
	Jurisdiction  string          `json:"jurisdiction"`
	Status        AMLReportStatus `json:"status"`
	SubmissionRef *string         `json:"submission_ref,omitempty"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
