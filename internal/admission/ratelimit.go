package admission

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/betlink/hub/internal/cache"
	"github.com/betlink/hub/internal/domain"
)

// Counter is the fixed-window state the limiter keeps in Redis.
type Counter interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SetBlock(ctx context.Context, key string, ttl time.Duration) error
	BlockTTL(ctx context.Context, key string) (time.Duration, error)
}

var _ Counter = (*cache.Cache)(nil)

// LimitRule maps a path pattern to its window configuration. BlockSecs > 0
// additionally blocks the caller after an overflow.
type LimitRule struct {
	Pattern   *regexp.Regexp
	Limit     int
	WindowSec int
	BlockSec  int
}

// RateLimiter enforces fixed-window limits per (partner, path). Windows live
// in Redis so all replicas share them; a Redis outage fails open.
type RateLimiter struct {
	counter      Counter
	rules        []LimitRule
	defaultLimit int
	enabled      bool
	logger       *slog.Logger
	now          func() time.Time
}

// NewRateLimiter creates the limiter. defaultLimit applies per minute to
// paths no rule matches.
func NewRateLimiter(counter Counter, rules []LimitRule, defaultLimit int, enabled bool, logger *slog.Logger) *RateLimiter {
	if defaultLimit <= 0 {
		defaultLimit = 300
	}
	return &RateLimiter{
		counter:      counter,
		rules:        rules,
		defaultLimit: defaultLimit,
		enabled:      enabled,
		logger:       logger,
		now:          time.Now,
	}
}

func (l *RateLimiter) rule(path string) LimitRule {
	for _, r := range l.rules {
		if r.Pattern.MatchString(path) {
			return r
		}
	}
	return LimitRule{Limit: l.defaultLimit, WindowSec: 60}
}

// Middleware runs after authentication.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.enabled {
			next.ServeHTTP(w, r)
			return
		}
		scope := ScopeFrom(r.Context())
		if scope == nil {
			writeError(w, domain.ErrUnauthorized("missing credentials"))
			return
		}

		rule := l.rule(r.URL.Path)
		window := time.Duration(rule.WindowSec) * time.Second
		windowStart := l.now().Truncate(window)
		base := fmt.Sprintf("rl:%s:%s", scope.PartnerID, r.URL.Path)

		if rule.BlockSec > 0 {
			ttl, err := l.counter.BlockTTL(r.Context(), base+":block")
			if err == nil && ttl > 0 {
				l.reject(w, rule, ttl)
				return
			}
		}

		key := fmt.Sprintf("%s:%d", base, windowStart.Unix())
		count, err := l.counter.IncrWindow(r.Context(), key, window)
		if err != nil {
			// Redis down: let the request through rather than hard-failing
			// every caller.
			l.logger.Warn("rate limit counter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := int64(rule.Limit) - count
		if remaining < 0 {
			remaining = 0
		}
		reset := windowStart.Add(window)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rule.Limit) {
			if rule.BlockSec > 0 {
				blockTTL := time.Duration(rule.BlockSec) * time.Second
				if err := l.counter.SetBlock(r.Context(), base+":block", blockTTL); err != nil {
					l.logger.Warn("rate limit block failed", "error", err)
				}
				l.reject(w, rule, blockTTL)
				return
			}
			l.reject(w, rule, time.Until(reset))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) reject(w http.ResponseWriter, rule LimitRule, retryAfter time.Duration) {
	secs := int64(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(l.now().Unix()+secs, 10))
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	writeError(w, domain.ErrRateLimited("rate limit exceeded"))
}
