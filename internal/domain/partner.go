package domain

import (
	"time"

	"github.com/google/uuid"
)

// PartnerType classifies how a partner integrates with the platform.
type PartnerType string

const (
	PartnerOperator        PartnerType = "operator"
	PartnerAggregator      PartnerType = "aggregator"
	PartnerAffiliate       PartnerType = "affiliate"
	PartnerPaymentProvider PartnerType = "payment_provider"
)

// PartnerStatus is the partner lifecycle state.
type PartnerStatus string

const (
	PartnerPending    PartnerStatus = "pending"
	PartnerActive     PartnerStatus = "active"
	PartnerInactive   PartnerStatus = "inactive"
	PartnerSuspended  PartnerStatus = "suspended"
	PartnerTerminated PartnerStatus = "terminated"
)

// Partner is a tenant of the platform. Each partner owns a namespace of
// players, wallets, API keys and audit logs.
type Partner struct {
	ID              uuid.UUID     `json:"id"`
	Code            string        `json:"code"`
	Name            string        `json:"name"`
	Type            PartnerType   `json:"type"`
	Status          PartnerStatus `json:"status"`
	CommissionModel string        `json:"commission_model"`
	// CommissionRate is an opaque string owned by reporting.
	CommissionRate string     `json:"commission_rate"`
	ContactEmail   string     `json:"contact_email"`
	ContractStart  *time.Time `json:"contract_start,omitempty"`
	ContractEnd    *time.Time `json:"contract_end,omitempty"`
	// SharedSecret signs provider callbacks for this partner's traffic.
	// Stored encrypted, never serialized.
	SharedSecret string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsActive reports whether the partner may use the platform.
func (p *Partner) IsActive() bool { return p.Status == PartnerActive }

// APIKey is a credential owned by a partner. The plaintext secret is returned
// exactly once at creation; only the SHA-256 hash is persisted.
type APIKey struct {
	ID          uuid.UUID     `json:"id"`
	PartnerID   uuid.UUID     `json:"partner_id"`
	KeyPrefix   string        `json:"key_prefix"`
	KeyHash     string        `json:"-"`
	Name        string        `json:"name"`
	Permissions PermissionSet `json:"permissions"`
	IsActive    bool          `json:"is_active"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time    `json:"last_used_at,omitempty"`
	LastUsedIP  *string       `json:"last_used_ip,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Expired reports whether the key is past its expiry.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// PartnerIP is an IP whitelist entry. Value is a single address or a CIDR.
type PartnerIP struct {
	ID        uuid.UUID `json:"id"`
	PartnerID uuid.UUID `json:"partner_id"`
	CIDR      string    `json:"cidr"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}
