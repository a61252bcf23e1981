package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReportJobStatus is the report job state machine:
// pending → processing → completed | failed.
type ReportJobStatus string

const (
	ReportPending    ReportJobStatus = "pending"
	ReportProcessing ReportJobStatus = "processing"
	ReportCompleted  ReportJobStatus = "completed"
	ReportFailed     ReportJobStatus = "failed"
)

// ReportJob is a persisted asynchronous report request.
type ReportJob struct {
	ID           uuid.UUID       `json:"id"`
	PartnerID    uuid.UUID       `json:"partner_id"`
	ReportType   string          `json:"report_type"`
	Format       string          `json:"format"`
	Parameters   json.RawMessage `json:"parameters"`
	Status       ReportJobStatus `json:"status"`
	FilePath     *string         `json:"-"`
	FileSize     *int64          `json:"file_size,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	RequestedBy  string          `json:"requested_by"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ReportMIMETypes maps output formats to download content types.
var ReportMIMETypes = map[string]string{
	"csv":  "text/csv",
	"json": "application/json",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"pdf":  "application/pdf",
}
