package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
)

// stubTransactions only answers List; the export touches nothing else.
type stubTransactions struct {
	repository.TransactionRepository
	entries []domain.Transaction
	filters []repository.Filter
}

func (s *stubTransactions) List(_ context.Context, _ repository.DBTX, f repository.Filter, page repository.Page, _ repository.Sort) ([]domain.Transaction, error) {
	s.filters = append(s.filters, f)
	if page.Skip >= len(s.entries) {
		return nil, nil
	}
	end := page.Skip + page.Limit
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return s.entries[page.Skip:end], nil
}

func exportJob(partnerID uuid.UUID, format string, params map[string]string) *domain.ReportJob {
	raw, _ := json.Marshal(params)
	return &domain.ReportJob{
		ID:         uuid.New(),
		PartnerID:  partnerID,
		ReportType: "transactions",
		Format:     format,
		Parameters: raw,
		Status:     domain.ReportProcessing,
	}
}

func sampleEntries(n int) []domain.Transaction {
	entries := make([]domain.Transaction, n)
	for i := range entries {
		entries[i] = domain.Transaction{
			ID:          uuid.New(),
			ReferenceID: uuid.New().String(),
			PlayerID:    uuid.New(),
			Type:        domain.TxDeposit,
			Amount:      decimal.NewFromInt(int64(i + 1)),
			Currency:    "USD",
			Status:      domain.TxCompleted,
			CreatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		}
	}
	return entries
}

func TestTransactionExportCSV(t *testing.T) {
	partnerID := uuid.New()
	stub := &stubTransactions{entries: sampleEntries(3)}
	export := &TransactionExport{DB: nil, Transactions: stub}

	job := exportJob(partnerID, "csv", map[string]string{
		"from":     "2026-08-01T00:00:00Z",
		"to":       "2026-08-02T00:00:00Z",
		"currency": "USD",
	})

	var buf bytes.Buffer
	require.NoError(t, export.Render(context.Background(), job, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus three entries")
	assert.Equal(t, "reference_id", rows[0][1])
	assert.Equal(t, "1.00", rows[1][4])
	assert.Equal(t, "USD", rows[1][5])

	require.NotEmpty(t, stub.filters)
	assert.Equal(t, partnerID, stub.filters[0]["partner_id"])
	assert.Equal(t, "USD", stub.filters[0]["currency"])
}

func TestTransactionExportJSON(t *testing.T) {
	stub := &stubTransactions{entries: sampleEntries(2)}
	export := &TransactionExport{Transactions: stub}

	job := exportJob(uuid.New(), "json", map[string]string{
		"from": "2026-08-01T00:00:00Z",
		"to":   "2026-08-02T00:00:00Z",
	})

	var buf bytes.Buffer
	require.NoError(t, export.Render(context.Background(), job, &buf))

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded, 2)
	assert.Equal(t, "USD", decoded[0]["currency"])
}

func TestTransactionExportPagination(t *testing.T) {
	stub := &stubTransactions{entries: sampleEntries(exportBatch + 5)}
	export := &TransactionExport{Transactions: stub}

	job := exportJob(uuid.New(), "json", map[string]string{
		"from": "2026-08-01T00:00:00Z",
		"to":   "2026-08-02T00:00:00Z",
	})

	var buf bytes.Buffer
	require.NoError(t, export.Render(context.Background(), job, &buf))
	assert.Len(t, stub.filters, 2, "two pages requested")

	var decoded []json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded, exportBatch+5)
}

func TestTransactionExportRejectsBadRange(t *testing.T) {
	export := &TransactionExport{Transactions: &stubTransactions{}}
	job := exportJob(uuid.New(), "json", map[string]string{"from": "yesterday", "to": "today"})

	var buf bytes.Buffer
	require.Error(t, export.Render(context.Background(), job, &buf))
}
