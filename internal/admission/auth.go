package admission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/betlink/hub/internal/cache"
	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/infra"
	"github.com/betlink/hub/internal/repository"
)

// KeyCache is the subset of the two-tier cache the authenticator uses.
type KeyCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetWithTags(ctx context.Context, key string, value []byte, tags []string, ttl time.Duration)
}

var _ KeyCache = (*cache.Cache)(nil)

// Tasks runs fire-and-forget work after the response.
type Tasks interface {
	Submit(name string, fn func(context.Context) error) bool
}

var _ Tasks = (*infra.TaskQueue)(nil)

// Authenticator resolves X-API-Key headers to a request scope. Lookups hit
// the cache first; misses fall through to the repository and repopulate it.
type Authenticator struct {
	db     repository.DBTX
	keys   repository.APIKeyRepository
	cache  KeyCache
	tasks  Tasks
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthenticator creates the authentication middleware.
func NewAuthenticator(db repository.DBTX, keys repository.APIKeyRepository, keyCache KeyCache, tasks Tasks, ttl time.Duration, logger *slog.Logger) *Authenticator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Authenticator{db: db, keys: keys, cache: keyCache, tasks: tasks, ttl: ttl, logger: logger, now: time.Now}
}

// HashKey returns the hex SHA-256 digest stored for an API key secret.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Middleware authenticates the request and attaches the scope.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-API-Key")
		if raw == "" {
			writeError(w, domain.ErrUnauthorized("missing X-API-Key header"))
			return
		}

		key, err := a.lookup(r.Context(), HashKey(raw))
		if err != nil {
			writeError(w, err)
			return
		}
		if !key.IsActive {
			writeError(w, domain.ErrUnauthorized("api key is inactive"))
			return
		}
		if key.Expired(a.now()) {
			writeError(w, domain.ErrUnauthorized("api key is expired"))
			return
		}

		a.touch(key, ClientIP(r))

		scope := &Scope{
			PartnerID:   key.PartnerID,
			APIKeyID:    key.ID,
			Permissions: key.Permissions,
		}
		next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
	})
}

func (a *Authenticator) lookup(ctx context.Context, hash string) (*domain.APIKey, error) {
	cacheKey := "apikey:" + hash
	if raw, ok := a.cache.Get(ctx, cacheKey); ok {
		var key domain.APIKey
		if err := json.Unmarshal(raw, &key); err == nil {
			return &key, nil
		}
	}

	key, err := a.keys.FindByHash(ctx, a.db, hash)
	if err != nil {
		return nil, domain.ErrInternal("api key lookup failed", err)
	}
	if key == nil {
		return nil, domain.ErrUnauthorized("invalid api key")
	}

	if raw, err := json.Marshal(key); err == nil {
		a.cache.SetWithTags(ctx, cacheKey, raw, []string{"apikeys:" + key.PartnerID.String()}, a.ttl)
	}
	return key, nil
}

// touch stamps last_used asynchronously so the hot path never waits on it.
func (a *Authenticator) touch(key *domain.APIKey, ip string) {
	id := key.ID
	a.tasks.Submit("apikey-touch", func(ctx context.Context) error {
		return a.keys.TouchLastUsed(ctx, a.db, id, ip)
	})
}

// ClientIP resolves the caller address: first X-Forwarded-For hop when
// present, else the peer address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
