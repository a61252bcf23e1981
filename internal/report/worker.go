package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betlink/hub/internal/cache"
)

// Locker serializes job processing across replicas.
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, name, token string) error
}

var _ Locker = (*cache.Cache)(nil)

const (
	defaultWorkers = 5
	claimLockTTL   = 5 * time.Minute
	requeueEvery   = time.Minute
	requeueBatch   = 100
)

// Run starts the worker pool plus the requeue sweep and blocks until the
// context is canceled and all in-flight jobs have finished.
func (s *Scheduler) Run(ctx context.Context, workers int, locks Locker) {
	if workers <= 0 {
		workers = defaultWorkers
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-s.queue:
					s.process(ctx, id, locks)
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(requeueEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.RequeuePending(ctx, requeueBatch); err != nil {
					s.logger.Error("report requeue sweep failed", "error", err)
				} else if n > 0 {
					s.logger.Info("requeued pending report jobs", "count", n)
				}
			}
		}
	}()

	wg.Wait()
}

// process generates one report job end to end. The distributed lock keeps
// replicas from racing on the same id; the pending → processing transition
// is the authoritative claim.
func (s *Scheduler) process(ctx context.Context, id uuid.UUID, locks Locker) {
	token, ok, err := locks.Lock(ctx, "report:"+id.String(), claimLockTTL)
	if err != nil {
		s.logger.Error("report lock failed", "job_id", id, "error", err)
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := locks.Unlock(ctx, "report:"+id.String(), token); err != nil {
			s.logger.Warn("report unlock failed", "job_id", id, "error", err)
		}
	}()

	claimed, err := s.jobs.ClaimPending(ctx, s.db, id)
	if err != nil {
		s.logger.Error("report claim failed", "job_id", id, "error", err)
		return
	}
	if !claimed {
		return
	}

	started := time.Now()
	if err := s.generate(ctx, id); err != nil {
		s.logger.Error("report generation failed", "job_id", id, "error", err)
		if failErr := s.jobs.Fail(ctx, s.db, id, err.Error()); failErr != nil {
			s.logger.Error("report fail transition failed", "job_id", id, "error", failErr)
		}
		return
	}
	s.logger.Info("report generated", "job_id", id, "duration_ms", time.Since(started).Milliseconds())
}

func (s *Scheduler) generate(ctx context.Context, id uuid.UUID) error {
	job, err := s.jobs.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s vanished after claim", id)
	}

	renderer, ok := s.registry.Renderer(job.ReportType)
	if !ok {
		return fmt.Errorf("no renderer for report type %q", job.ReportType)
	}

	f, path, err := s.store.Create(job.ID, job.Format)
	if err != nil {
		return err
	}
	if err := renderer.Render(ctx, job, f); err != nil {
		f.Close()
		if rmErr := s.store.Remove(path); rmErr != nil {
			s.logger.Warn("partial report file not removed", "path", path, "error", rmErr)
		}
		return fmt.Errorf("render %s: %w", job.ReportType, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := s.jobs.Complete(ctx, s.db, job.ID, path, info.Size()); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}
