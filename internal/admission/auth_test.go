package admission

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betlink/hub/internal/domain"
)

func activeKey(partnerID uuid.UUID, perms ...string) *domain.APIKey {
	return &domain.APIKey{
		ID:          uuid.New(),
		PartnerID:   partnerID,
		KeyPrefix:   "blk_test",
		Name:        "test key",
		Permissions: domain.NewPermissionSet(perms),
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
}

type authFixture struct {
	auth  *Authenticator
	keys  *fakeKeys
	cache *fakeCache
	tasks *syncTasks
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	keys := newFakeKeys()
	keyCache := newFakeCache()
	tasks := &syncTasks{}
	auth := NewAuthenticator(nil, keys, keyCache, tasks, 5*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &authFixture{auth: auth, keys: keys, cache: keyCache, tasks: tasks}
}

func serveAuth(fx *authFixture, apiKey string) (*httptest.ResponseRecorder, *Scope) {
	var captured *Scope
	h := fx.auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = ScopeFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/wallets", nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, captured
}

func TestAuthAttachesScope(t *testing.T) {
	fx := newAuthFixture(t)
	partnerID := uuid.New()
	key := activeKey(partnerID, "wallet:read")
	fx.keys.add("blk_test_secret", key)

	rec, scope := serveAuth(fx, "blk_test_secret")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, scope)
	assert.Equal(t, partnerID, scope.PartnerID)
	assert.Equal(t, key.ID, scope.APIKeyID)
	assert.True(t, scope.Permissions.Allows("wallet:read"))

	assert.Contains(t, fx.tasks.names, "apikey-touch")
	assert.Equal(t, []uuid.UUID{key.ID}, fx.keys.touched)
}

func TestAuthSecondLookupHitsCache(t *testing.T) {
	fx := newAuthFixture(t)
	fx.keys.add("blk_test_secret", activeKey(uuid.New(), "wallet:read"))

	serveAuth(fx, "blk_test_secret")
	serveAuth(fx, "blk_test_secret")

	assert.Equal(t, 1, fx.keys.lookups, "second request must be served from cache")
}

func TestAuthRejections(t *testing.T) {
	partnerID := uuid.New()
	past := time.Now().Add(-time.Hour)

	inactive := activeKey(partnerID, "wallet:read")
	inactive.IsActive = false

	expired := activeKey(partnerID, "wallet:read")
	expired.ExpiresAt = &past

	cases := []struct {
		name string
		seed func(*fakeKeys)
		key  string
	}{
		{"missing header", func(*fakeKeys) {}, ""},
		{"unknown key", func(*fakeKeys) {}, "blk_nope"},
		{"inactive key", func(f *fakeKeys) { f.add("blk_inactive", inactive) }, "blk_inactive"},
		{"expired key", func(f *fakeKeys) { f.add("blk_expired", expired) }, "blk_expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newAuthFixture(t)
			tc.seed(fx.keys)

			rec, scope := serveAuth(fx, tc.key)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Nil(t, scope)

			var envelope domain.ErrorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			assert.Equal(t, "UNAUTHORIZED", envelope.Error.Code)
			assert.NotEmpty(t, envelope.Error.Timestamp)
		})
	}
}

func TestRequirePermission(t *testing.T) {
	partnerID := uuid.New()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		name     string
		perms    []string
		required string
		want     int
	}{
		{"exact match", []string{"wallet:credit"}, "wallet:credit", http.StatusOK},
		{"resource wildcard", []string{"wallet:*"}, "wallet:debit", http.StatusOK},
		{"action wildcard", []string{"*:read"}, "game:read", http.StatusOK},
		{"full wildcard", []string{"*"}, "report:create", http.StatusOK},
		{"denied", []string{"wallet:read"}, "wallet:credit", http.StatusForbidden},
		{"empty set", nil, "wallet:read", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scope := &Scope{PartnerID: partnerID, Permissions: domain.NewPermissionSet(tc.perms)}
			req := httptest.NewRequest(http.MethodPost, "/v1/wallets/credit", nil)
			req = req.WithContext(WithScope(req.Context(), scope))
			rec := httptest.NewRecorder()

			Require(tc.required)(next).ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	t.Run("no scope", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Require("wallet:read")(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
