package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
	"github.com/betlink/hub/internal/wallet"
)

// Scheduler accepts report requests, persists them as pending jobs and feeds
// the worker pool through a bounded in-process queue. The queue is a hint;
// the persisted row is the source of truth and RequeuePending recovers jobs
// that never reached a worker.
type Scheduler struct {
	db       wallet.DB
	jobs     repository.ReportJobRepository
	outbox   repository.OutboxRepository
	registry *Registry
	store    *Store
	queue    chan uuid.UUID
	logger   *slog.Logger
}

// NewScheduler creates a scheduler with a queue of the given capacity.
func NewScheduler(
	db wallet.DB,
	jobs repository.ReportJobRepository,
	outbox repository.OutboxRepository,
	registry *Registry,
	store *Store,
	queueSize int,
	logger *slog.Logger,
) *Scheduler {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Scheduler{
		db:       db,
		jobs:     jobs,
		outbox:   outbox,
		registry: registry,
		store:    store,
		queue:    make(chan uuid.UUID, queueSize),
		logger:   logger,
	}
}

// Request is one report job submission.
type Request struct {
	ReportType  string            `json:"report_type"`
	Format      string            `json:"format"`
	Parameters  map[string]string `json:"parameters"`
	RequestedBy string            `json:"requested_by"`
}

// Schedule validates a request, persists the pending job and enqueues it.
// A full queue rejects the request so the client retries later; the row is
// not written in that case.
func (s *Scheduler) Schedule(ctx context.Context, partnerID uuid.UUID, req Request) (*domain.ReportJob, error) {
	if err := s.registry.Validate(req.ReportType, req.Format, req.Parameters); err != nil {
		return nil, err
	}
	if len(s.queue) == cap(s.queue) {
		return nil, domain.ErrUpstream("report queue full, retry later", nil)
	}

	params, err := json.Marshal(req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}

	var job *domain.ReportJob
	err = pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		job, err = s.jobs.Insert(ctx, tx, &domain.ReportJob{
			PartnerID:   partnerID,
			ReportType:  req.ReportType,
			Format:      req.Format,
			Parameters:  params,
			Status:      domain.ReportPending,
			RequestedBy: req.RequestedBy,
		})
		if err != nil {
			return fmt.Errorf("insert report job: %w", err)
		}
		return s.outbox.Insert(ctx, tx, domain.NewReportRequestedEvent(job))
	})
	if err != nil {
		return nil, err
	}

	select {
	case s.queue <- job.ID:
	default:
		// Raced to full after the capacity check; the pending row will be
		// picked up by the requeue sweep.
		s.logger.Warn("report queue full after insert", "job_id", job.ID)
	}
	return job, nil
}

// Status returns a job, scoped to its owning partner.
func (s *Scheduler) Status(ctx context.Context, partnerID, id uuid.UUID) (*domain.ReportJob, error) {
	job, err := s.jobs.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if job == nil || job.PartnerID != partnerID {
		return nil, domain.ErrNotFound("report job", id.String())
	}
	return job, nil
}

// Download is an open report file ready to stream.
type Download struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	Filename    string
}

// OpenDownload streams a completed report file.
func (s *Scheduler) OpenDownload(ctx context.Context, partnerID, id uuid.UUID) (*Download, error) {
	job, err := s.Status(ctx, partnerID, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.ReportCompleted || job.FilePath == nil {
		return nil, domain.ErrConflict(fmt.Sprintf("report job is %s", job.Status))
	}

	body, size, err := s.store.Open(*job.FilePath)
	if err != nil {
		return nil, domain.ErrInternal("open report file", err)
	}
	mime, ok := domain.ReportMIMETypes[job.Format]
	if !ok {
		mime = "application/octet-stream"
	}
	return &Download{
		Body:        body,
		Size:        size,
		ContentType: mime,
		Filename:    fmt.Sprintf("%s-%s.%s", job.ReportType, job.ID, job.Format),
	}, nil
}

// RequeuePending pushes persisted pending jobs back onto the queue. Run at
// startup and periodically to recover jobs lost to a crash or a full queue.
func (s *Scheduler) RequeuePending(ctx context.Context, limit int) (int, error) {
	pending, err := s.jobs.ListPending(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, job := range pending {
		select {
		case s.queue <- job.ID:
			queued++
		default:
			return queued, nil
		}
	}
	return queued, nil
}
