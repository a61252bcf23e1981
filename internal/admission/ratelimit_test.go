package admission

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betlink/hub/internal/domain"
)

func scopedRequest(partnerID uuid.UUID, path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	scope := &Scope{PartnerID: partnerID, APIKeyID: uuid.New(), Permissions: domain.NewPermissionSet([]string{"*"})}
	return req.WithContext(WithScope(req.Context(), scope))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitFixedWindow(t *testing.T) {
	counter := newFakeCounter()
	limiter := NewRateLimiter(counter, nil, 2, true, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := limiter.Middleware(okHandler())
	partnerID := uuid.New()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, scopedRequest(partnerID, "/v1/wallets"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, scopedRequest(partnerID, "/v1/wallets"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitIsPerPartnerAndPath(t *testing.T) {
	counter := newFakeCounter()
	limiter := NewRateLimiter(counter, nil, 1, true, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := limiter.Middleware(okHandler())
	first, second := uuid.New(), uuid.New()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, scopedRequest(first, "/v1/wallets"))
	require.Equal(t, http.StatusOK, rec.Code)

	// Other partner and other path still have their own windows.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, scopedRequest(second, "/v1/wallets"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, scopedRequest(first, "/v1/games"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, scopedRequest(first, "/v1/wallets"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitRuleWithBlock(t *testing.T) {
	counter := newFakeCounter()
	rules := []LimitRule{{
		Pattern:   regexp.MustCompile(`^/v1/games/launch`),
		Limit:     1,
		WindowSec: 60,
		BlockSec:  120,
	}}
	limiter := NewRateLimiter(counter, rules, 100, true, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := limiter.Middleware(okHandler())
	partnerID := uuid.New()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, scopedRequest(partnerID, "/v1/games/launch"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, scopedRequest(partnerID, "/v1/games/launch"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, counter.blocks, "overflow sets the block key")

	// While blocked the window counter is left alone.
	before := len(counter.counts)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, scopedRequest(partnerID, "/v1/games/launch"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "120", rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"), "blocked callers still see all limit headers")
	assert.Len(t, counter.counts, before)
}

func TestRateLimitFailsOpen(t *testing.T) {
	counter := newFakeCounter()
	counter.failing = true
	limiter := NewRateLimiter(counter, nil, 1, true, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := limiter.Middleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, scopedRequest(uuid.New(), "/v1/wallets"))
	assert.Equal(t, http.StatusOK, rec.Code, "counter outage must not reject traffic")
}

func TestRateLimitDisabled(t *testing.T) {
	counter := newFakeCounter()
	limiter := NewRateLimiter(counter, nil, 1, false, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := limiter.Middleware(okHandler())
	partnerID := uuid.New()

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, scopedRequest(partnerID, "/v1/wallets"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Empty(t, counter.counts)
}
