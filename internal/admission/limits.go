package admission

import (
	"context"
	"net/http"
	"time"

	"github.com/betlink/hub/internal/domain"
)

// Limits guards server resources in front of the pipeline: a global
// concurrency cap, a per-request body cap and a request deadline.
type Limits struct {
	slots   chan struct{}
	maxBody int64
	timeout time.Duration
}

// NewLimits creates the resource guard.
func NewLimits(maxConcurrent int, maxBodyMB int, timeout time.Duration) *Limits {
	if maxConcurrent <= 0 {
		maxConcurrent = 512
	}
	if maxBodyMB <= 0 {
		maxBodyMB = 10
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Limits{
		slots:   make(chan struct{}, maxConcurrent),
		maxBody: int64(maxBodyMB) << 20,
		timeout: timeout,
	}
}

// Middleware applies all three guards.
func (l *Limits) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case l.slots <- struct{}{}:
			defer func() { <-l.slots }()
		default:
			writeError(w, domain.ErrRateLimited("server is at capacity"))
			return
		}

		if r.ContentLength > l.maxBody {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, l.maxBody)

		// Downstream work observes the deadline through the context; a
		// handler that overruns gets its database calls canceled.
		ctx, cancel := context.WithTimeout(r.Context(), l.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
