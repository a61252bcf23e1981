package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IntegrationType selects how a provider's games are launched.
type IntegrationType string

const (
	IntegrationDirect     IntegrationType = "direct"
	IntegrationAggregator IntegrationType = "aggregator"
	IntegrationIframe     IntegrationType = "iframe"
)

// GameProvider is a third-party game supplier integration.
type GameProvider struct {
	ID              uuid.UUID       `json:"id"`
	Code            string          `json:"code"`
	Name            string          `json:"name"`
	IntegrationType IntegrationType `json:"integration_type"`
	APIEndpoint     string          `json:"api_endpoint"`
	APIKey          string          `json:"-"`
	// APISecret signs direct launch URLs. Stored encrypted.
	APISecret           string    `json:"-"`
	Status              string    `json:"status"`
	SupportedCurrencies []string  `json:"supported_currencies"`
	SupportedLanguages  []string  `json:"supported_languages"`
	CreatedAt           time.Time `json:"created_at"`
}

// Game is a catalog entry. (ProviderID, GameCode) is unique.
type Game struct {
	ID         uuid.UUID       `json:"id"`
	ProviderID uuid.UUID       `json:"provider_id"`
	GameCode   string          `json:"game_code"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Status     string          `json:"status"`
	RTP        decimal.Decimal `json:"rtp"`
	MinBet     decimal.Decimal `json:"min_bet"`
	MaxBet     decimal.Decimal `json:"max_bet"`
	Features   json.RawMessage `json:"features,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SessionStatus is the game session lifecycle state.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
	SessionExpired SessionStatus = "expired"
	SessionError   SessionStatus = "error"
)

// GameSession is a launch record. At most one active session exists per
// (player, game), enforced by a partial unique index.
type GameSession struct {
	ID          uuid.UUID       `json:"id"`
	Token       string          `json:"token"`
	PlayerID    uuid.UUID       `json:"player_id"`
	PartnerID   uuid.UUID       `json:"partner_id"`
	GameID      uuid.UUID       `json:"game_id"`
	Status      SessionStatus   `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	SessionData json.RawMessage `json:"session_data,omitempty"`
}

// GameTransaction is the per-round provider-side ledger entry linked to a
// wallet Transaction. ReferenceID is globally unique.
type GameTransaction struct {
	ID            uuid.UUID         `json:"id"`
	ReferenceID   string            `json:"reference_id"`
	SessionID     uuid.UUID         `json:"session_id"`
	RoundID       string            `json:"round_id"`
	Action        CallbackAction    `json:"action"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Status        TransactionStatus `json:"status"`
	TransactionID *uuid.UUID        `json:"transaction_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// CallbackAction is the tagged variant of provider callback operations.
type CallbackAction string

const (
	CallbackBet    CallbackAction = "bet"
	CallbackWin    CallbackAction = "win"
	CallbackRefund CallbackAction = "refund"
)

// CallbackRequest is the parsed provider callback body.
type CallbackRequest struct {
	Token               string          `json:"token"`
	Action              CallbackAction  `json:"action"`
	RoundID             string          `json:"round_id"`
	ReferenceID         string          `json:"reference_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Timestamp           int64           `json:"timestamp"`
	Nonce               string          `json:"nonce"`
	GameData            json.RawMessage `json:"game_data,omitempty"`
	OriginalReferenceID string          `json:"original_reference_id,omitempty"`
}

// CallbackResponse is the success envelope returned to providers.
type CallbackResponse struct {
	Status        string          `json:"status"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	TransactionID uuid.UUID       `json:"transaction_id"`
}

// LaunchRequest is the input to game session launch.
type LaunchRequest struct {
	PlayerID  uuid.UUID `json:"player_id"`
	GameID    uuid.UUID `json:"game_id"`
	Currency  string    `json:"currency"`
	Language  string    `json:"language"`
	ReturnURL string    `json:"return_url"`
	Platform  string    `json:"platform"`
}

// LaunchResult is returned from game session launch.
type LaunchResult struct {
	LaunchURL string    `json:"launch_url"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
