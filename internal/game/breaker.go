package game

import (
	"sync"
	"time"

	"github.com/betlink/hub/internal/domain"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker is a per-provider circuit breaker around outbound launch calls.
// A tripped provider answers immediately with SERVICE_UNAVAILABLE instead of
// burning the HTTP timeout on every launch.
type Breaker struct {
	mu            sync.Mutex
	providers     map[string]*providerCircuit
	failThreshold int
	resetTimeout  time.Duration
	now           func() time.Time
}

type providerCircuit struct {
	state       breakerState
	failures    int
	probing     bool
	lastFailure time.Time
}

// NewBreaker creates a breaker that opens after failThreshold consecutive
// failures and probes again after resetTimeout.
func NewBreaker(failThreshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		providers:     make(map[string]*providerCircuit),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		now:           time.Now,
	}
}

// Allow reports whether a call to the provider may proceed. In half-open
// state only one probe is admitted until its outcome is recorded.
func (b *Breaker) Allow(providerCode string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.providers[providerCode]
	if !ok {
		b.providers[providerCode] = &providerCircuit{}
		return nil
	}

	switch c.state {
	case breakerOpen:
		if b.now().Sub(c.lastFailure) < b.resetTimeout {
			return domain.ErrUpstream("provider "+providerCode+" is unavailable", nil)
		}
		c.state = breakerHalfOpen
		c.probing = true
		return nil
	case breakerHalfOpen:
		if c.probing {
			return domain.ErrUpstream("provider "+providerCode+" is unavailable", nil)
		}
		c.probing = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the circuit after a successful call.
func (b *Breaker) RecordSuccess(providerCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.providers[providerCode]
	if !ok {
		return
	}
	c.state = breakerClosed
	c.failures = 0
	c.probing = false
}

// RecordFailure counts a failed call, tripping the circuit at the threshold.
func (b *Breaker) RecordFailure(providerCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.providers[providerCode]
	if !ok {
		c = &providerCircuit{}
		b.providers[providerCode] = c
	}

	c.failures++
	c.lastFailure = b.now()
	c.probing = false

	if c.state == breakerHalfOpen || c.failures >= b.failThreshold {
		c.state = breakerOpen
	}
}
