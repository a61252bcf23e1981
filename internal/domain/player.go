package domain

import (
	"time"

	"github.com/google/uuid"
)

// Player is a partner's end user. The row exists primarily as a lock anchor:
// session launches and wallet creation serialize on it.
type Player struct {
	ID         uuid.UUID `json:"id"`
	PartnerID  uuid.UUID `json:"partner_id"`
	ExternalID string    `json:"external_id"`
	IsBlocked  bool      `json:"is_blocked"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
