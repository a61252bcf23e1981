package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog records one HTTP request crossing the admission pipeline.
// Bodies are stored redacted.
type AuditLog struct {
	ID           uuid.UUID       `json:"id"`
	RequestID    uuid.UUID       `json:"request_id"`
	PartnerID    *uuid.UUID      `json:"partner_id,omitempty"`
	APIKeyID     *uuid.UUID      `json:"api_key_id,omitempty"`
	IP           string          `json:"ip"`
	Method       string          `json:"method"`
	Path         string          `json:"path"`
	StatusCode   int             `json:"status_code"`
	LatencyMS    int64           `json:"latency_ms"`
	RequestBody  json.RawMessage `json:"request_body,omitempty"`
	ResponseBody json.RawMessage `json:"response_body,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
