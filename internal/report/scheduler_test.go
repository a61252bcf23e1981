package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
)

type fakeDB struct{ repository.DBTX }

func (f *fakeDB) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

type fakeTx struct{ pgx.Tx }

func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.ReportJob
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[uuid.UUID]*domain.ReportJob{}}
}

func (f *fakeJobs) Insert(_ context.Context, _ repository.DBTX, j *domain.ReportJob) (*domain.ReportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	f.jobs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeJobs) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.ReportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeJobs) ClaimPending(_ context.Context, _ repository.DBTX, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != domain.ReportPending {
		return false, nil
	}
	j.Status = domain.ReportProcessing
	return true, nil
}

func (f *fakeJobs) Complete(_ context.Context, _ repository.DBTX, id uuid.UUID, filePath string, fileSize int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != domain.ReportProcessing {
		return errors.New("job not processing")
	}
	now := time.Now()
	j.Status = domain.ReportCompleted
	j.FilePath = &filePath
	j.FileSize = &fileSize
	j.CompletedAt = &now
	return nil
}

func (f *fakeJobs) Fail(_ context.Context, _ repository.DBTX, id uuid.UUID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return errors.New("job not found")
	}
	j.Status = domain.ReportFailed
	j.ErrorMessage = &errMsg
	return nil
}

func (f *fakeJobs) ListPending(_ context.Context, _ repository.DBTX, limit int) ([]domain.ReportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ReportJob
	for _, j := range f.jobs {
		if j.Status == domain.ReportPending {
			out = append(out, *j)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	drafts []domain.OutboxDraft
}

func (f *fakeOutbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
	return nil
}

type fakeLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	refuse bool
}

func (f *fakeLocker) Lock(_ context.Context, name string, _ time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return "", false, nil
	}
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[name] {
		return "", false, nil
	}
	f.held[name] = true
	return "token", true, nil
}

func (f *fakeLocker) Unlock(_ context.Context, name, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, name)
	return nil
}

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, *domain.ReportJob, io.Writer) error {
	return errors.New("renderer exploded")
}

type reportFixture struct {
	scheduler *Scheduler
	jobs      *fakeJobs
	outbox    *fakeOutbox
	locks     *fakeLocker
}

func newReportFixture(t *testing.T, queueSize int) *reportFixture {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	registry := NewRegistry(
		Definition{
			Type:     "activity_summary",
			Formats:  []string{"json"},
			Required: []string{"from", "to"},
			Renderer: JSONEcho{},
		},
		Definition{
			Type:     "broken",
			Formats:  []string{"json"},
			Renderer: failingRenderer{},
		},
	)

	jobs := newFakeJobs()
	outbox := &fakeOutbox{}
	scheduler := NewScheduler(&fakeDB{}, jobs, outbox, registry, store, queueSize,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &reportFixture{scheduler: scheduler, jobs: jobs, outbox: outbox, locks: &fakeLocker{}}
}

func summaryRequest() Request {
	return Request{
		ReportType:  "activity_summary",
		Format:      "json",
		Parameters:  map[string]string{"from": "2026-08-01T00:00:00Z", "to": "2026-08-02T00:00:00Z"},
		RequestedBy: "ops@partner",
	}
}

func TestScheduleAndProcess(t *testing.T) {
	fx := newReportFixture(t, 8)
	ctx := context.Background()
	partnerID := uuid.New()

	job, err := fx.scheduler.Schedule(ctx, partnerID, summaryRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ReportPending, job.Status)

	require.Len(t, fx.outbox.drafts, 1)
	assert.Equal(t, domain.EventReportRequested, fx.outbox.drafts[0].EventType)

	fx.scheduler.process(ctx, job.ID, fx.locks)

	done, err := fx.scheduler.Status(ctx, partnerID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportCompleted, done.Status)
	require.NotNil(t, done.FilePath)
	require.NotNil(t, done.FileSize)
	assert.Positive(t, *done.FileSize)
	assert.NotNil(t, done.CompletedAt)
}

func TestScheduleValidation(t *testing.T) {
	fx := newReportFixture(t, 8)
	ctx := context.Background()
	partnerID := uuid.New()

	cases := []struct {
		name string
		req  Request
	}{
		{"unknown type", Request{ReportType: "nope", Format: "json"}},
		{"unsupported format", Request{ReportType: "activity_summary", Format: "pdf",
			Parameters: map[string]string{"from": "x", "to": "y"}}},
		{"missing required", Request{ReportType: "activity_summary", Format: "json",
			Parameters: map[string]string{"from": "x"}}},
		{"unknown parameter", Request{ReportType: "activity_summary", Format: "json",
			Parameters: map[string]string{"from": "x", "to": "y", "bogus": "1"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.scheduler.Schedule(ctx, partnerID, tc.req)
			require.Error(t, err)
			var appErr *domain.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "INVALID_REQUEST", appErr.Code)
		})
	}
	assert.Empty(t, fx.jobs.jobs, "rejected requests persist nothing")
}

func TestScheduleQueueFullReturns503(t *testing.T) {
	fx := newReportFixture(t, 1)
	ctx := context.Background()
	partnerID := uuid.New()

	_, err := fx.scheduler.Schedule(ctx, partnerID, summaryRequest())
	require.NoError(t, err)

	_, err = fx.scheduler.Schedule(ctx, partnerID, summaryRequest())
	require.Error(t, err)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "SERVICE_UNAVAILABLE", appErr.Code)
	assert.Len(t, fx.jobs.jobs, 1)
}

func TestProcessSkipsWhenLockHeld(t *testing.T) {
	fx := newReportFixture(t, 8)
	ctx := context.Background()

	job, err := fx.scheduler.Schedule(ctx, uuid.New(), summaryRequest())
	require.NoError(t, err)

	fx.locks.refuse = true
	fx.scheduler.process(ctx, job.ID, fx.locks)

	stored, _ := fx.jobs.FindByID(ctx, nil, job.ID)
	assert.Equal(t, domain.ReportPending, stored.Status)
}

func TestProcessSkipsAlreadyClaimed(t *testing.T) {
	fx := newReportFixture(t, 8)
	ctx := context.Background()

	job, err := fx.scheduler.Schedule(ctx, uuid.New(), summaryRequest())
	require.NoError(t, err)

	claimed, err := fx.jobs.ClaimPending(ctx, nil, job.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	fx.scheduler.process(ctx, job.ID, fx.locks)

	stored, _ := fx.jobs.FindByID(ctx, nil, job.ID)
	assert.Equal(t, domain.ReportProcessing, stored.Status, "a claimed job is left alone")
}

func TestFailedRenderMarksJobFailed(t *testing.T) {
	fx := newReportFixture(t, 8)
	ctx := context.Background()

	job, err := fx.scheduler.Schedule(ctx, uuid.New(), Request{
		ReportType: "broken", Format: "json", RequestedBy: "ops",
	})
	require.NoError(t, err)

	fx.scheduler.process(ctx, job.ID, fx.locks)

	stored, _ := fx.jobs.FindByID(ctx, nil, job.ID)
	assert.Equal(t, domain.ReportFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "renderer exploded")
}

func TestDownloadCompletedReport(t *testing.T) {
	fx := newReportFixture(t, 8)
	ctx := context.Background()
	partnerID := uuid.New()

	job, err := fx.scheduler.Schedule(ctx, partnerID, summaryRequest())
	require.NoError(t, err)
	fx.scheduler.process(ctx, job.ID, fx.locks)

	dl, err := fx.scheduler.OpenDownload(ctx, partnerID, job.ID)
	require.NoError(t, err)
	defer dl.Body.Close()

	assert.Equal(t, "application/json", dl.ContentType)
	assert.Contains(t, dl.Filename, job.ID.String())

	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, dl.Size, int64(len(body)))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "activity_summary", payload["report_type"])
}

func TestDownloadPendingReportConflicts(t *testing.T) {
	fx := newReportFixture(t, 8)
	ctx := context.Background()
	partnerID := uuid.New()

	job, err := fx.scheduler.Schedule(ctx, partnerID, summaryRequest())
	require.NoError(t, err)

	_, err = fx.scheduler.OpenDownload(ctx, partnerID, job.ID)
	require.Error(t, err)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "DUPLICATE_RESOURCE", appErr.Code)
}

func TestStatusIsPartnerScoped(t *testing.T) {
	fx := newReportFixture(t, 8)
	ctx := context.Background()

	job, err := fx.scheduler.Schedule(ctx, uuid.New(), summaryRequest())
	require.NoError(t, err)

	_, err = fx.scheduler.Status(ctx, uuid.New(), job.ID)
	require.Error(t, err)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "RESOURCE_NOT_FOUND", appErr.Code)
}

func TestRequeuePending(t *testing.T) {
	fx := newReportFixture(t, 8)
	ctx := context.Background()

	job, err := fx.scheduler.Schedule(ctx, uuid.New(), summaryRequest())
	require.NoError(t, err)

	// Drain the queue to simulate a restart losing the in-process hint.
	<-fx.scheduler.queue

	queued, err := fx.scheduler.RequeuePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	assert.Equal(t, job.ID, <-fx.scheduler.queue)
}
