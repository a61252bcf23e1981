package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates ledger entry kinds.
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxBet        TransactionType = "bet"
	TxWin        TransactionType = "win"
	TxRefund     TransactionType = "refund"
	TxRollback   TransactionType = "rollback"
	TxAdjustment TransactionType = "adjustment"
	TxBonus      TransactionType = "bonus"
	TxCommission TransactionType = "commission"
)

// IsDebit reports whether the type reduces the wallet balance.
func (t TransactionType) IsDebit() bool {
	switch t {
	case TxWithdrawal, TxBet, TxCommission:
		return true
	}
	return false
}

// IsCredit reports whether the type adds to the wallet balance. Rollback is
// neither; its sign is derived from the transaction it reverses.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TxDeposit, TxWin, TxRefund, TxBonus, TxAdjustment:
		return true
	}
	return false
}

// TransactionStatus is the ledger entry state.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCanceled  TransactionStatus = "canceled"
)

// Wallet is a per-(player, partner, currency) balance account.
// The balance is never negative; writes are serialized per wallet row.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	PlayerID  uuid.UUID       `json:"player_id"`
	PartnerID uuid.UUID       `json:"partner_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	IsActive  bool            `json:"is_active"`
	IsLocked  bool            `json:"is_locked"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Usable reports whether the wallet accepts operations.
func (w *Wallet) Usable() bool { return w.IsActive && !w.IsLocked }

// Transaction is an immutable ledger entry. UpdatedBalance always equals
// OriginalBalance plus the signed amount and matches the wallet balance at
// commit time. (PartnerID, ReferenceID) is the idempotency key.
type Transaction struct {
	ID                    uuid.UUID         `json:"id"`
	ReferenceID           string            `json:"reference_id"`
	WalletID              uuid.UUID         `json:"wallet_id"`
	PlayerID              uuid.UUID         `json:"player_id"`
	PartnerID             uuid.UUID         `json:"partner_id"`
	Type                  TransactionType   `json:"type"`
	Amount                decimal.Decimal   `json:"amount"`
	Currency              string            `json:"currency"`
	Status                TransactionStatus `json:"status"`
	OriginalBalance       decimal.Decimal   `json:"original_balance"`
	UpdatedBalance        decimal.Decimal   `json:"updated_balance"`
	GameID                *uuid.UUID        `json:"game_id,omitempty"`
	GameSessionID         *uuid.UUID        `json:"game_session_id,omitempty"`
	OriginalTransactionID *uuid.UUID        `json:"original_transaction_id,omitempty"`
	RolledBack            bool              `json:"rolled_back"`
	Metadata              json.RawMessage   `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
}

// WalletOpRequest is the input to the wallet engine's credit and debit
// operations. Amount is always positive; the operation type carries the sign.
type WalletOpRequest struct {
	PlayerID      uuid.UUID
	PartnerID     uuid.UUID
	Currency      string
	Amount        decimal.Decimal
	ReferenceID   string
	Type          TransactionType
	GameID        *uuid.UUID
	GameSessionID *uuid.UUID
	Metadata      json.RawMessage
}

// RollbackRequest reverses a previously completed transaction.
type RollbackRequest struct {
	PlayerID            uuid.UUID
	PartnerID           uuid.UUID
	ReferenceID         string
	OriginalReferenceID string
	Metadata            json.RawMessage
}

// WalletOpResult is returned by all wallet engine operations. Replays of the
// same (partner, reference) return an equal result with Idempotent set.
type WalletOpResult struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	ReferenceID   string          `json:"reference_id"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	Idempotent    bool            `json:"-"`
}
