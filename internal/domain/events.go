package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventTransactionPosted EventType = "hub.wallet.transaction.posted"
	EventSessionLaunched   EventType = "hub.game.session.launched"
	EventAlertRaised       EventType = "hub.aml.alert.raised"
	EventAlertReported     EventType = "hub.aml.alert.reported"
	EventReportRequested   EventType = "hub.report.requested"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateWallet  AggregateType = "wallet"
	AggregateSession AggregateType = "session"
	AggregateAlert   AggregateType = "alert"
	AggregateReport  AggregateType = "report"
)

// OutboxDraft is the payload written to the event_outbox table. Drafts are
// inserted in the same database transaction as the state change they
// describe and published by the outbox poller.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewTransactionPostedEvent creates the standard wallet event for a ledger entry.
func NewTransactionPostedEvent(tx *Transaction) OutboxDraft {
	payload, _ := json.Marshal(tx)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateWallet,
		AggregateID:   tx.WalletID.String(),
		EventType:     EventTransactionPosted,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// NewSessionLaunchedEvent creates a game session lifecycle event.
func NewSessionLaunchedEvent(s *GameSession) OutboxDraft {
	payload, _ := json.Marshal(map[string]string{
		"session_id": s.ID.String(),
		"player_id":  s.PlayerID.String(),
		"game_id":    s.GameID.String(),
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateSession,
		AggregateID:   s.ID.String(),
		EventType:     EventSessionLaunched,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// NewReportRequestedEvent creates the event emitted when a report job is
// accepted.
func NewReportRequestedEvent(j *ReportJob) OutboxDraft {
	payload, _ := json.Marshal(map[string]string{
		"job_id":      j.ID.String(),
		"partner_id":  j.PartnerID.String(),
		"report_type": j.ReportType,
		"format":      j.Format,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateReport,
		AggregateID:   j.ID.String(),
		EventType:     EventReportRequested,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// NewAlertEvent creates an AML alert lifecycle event.
func NewAlertEvent(alert *AMLAlert, evtType EventType) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"alert_id":   alert.ID.String(),
		"player_id":  alert.PlayerID.String(),
		"alert_type": alert.Type,
		"severity":   alert.Severity,
		"status":     alert.Status,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateAlert,
		AggregateID:   alert.ID.String(),
		EventType:     evtType,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}
