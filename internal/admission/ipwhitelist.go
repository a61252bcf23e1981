package admission

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
)

const ipCacheTTL = 5 * time.Minute

// IPWhitelist rejects requests from addresses outside the partner's
// whitelist. When the feature is enabled an empty whitelist denies
// everything; entries may be single addresses or CIDR blocks.
type IPWhitelist struct {
	db      repository.DBTX
	ips     repository.PartnerIPRepository
	cache   KeyCache
	enabled bool
	logger  *slog.Logger
}

// NewIPWhitelist creates the whitelist middleware.
func NewIPWhitelist(db repository.DBTX, ips repository.PartnerIPRepository, keyCache KeyCache, enabled bool, logger *slog.Logger) *IPWhitelist {
	return &IPWhitelist{db: db, ips: ips, cache: keyCache, enabled: enabled, logger: logger}
}

// Middleware runs after authentication; it needs the scope's partner.
func (w *IPWhitelist) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !w.enabled {
			next.ServeHTTP(rw, r)
			return
		}
		scope := ScopeFrom(r.Context())
		if scope == nil {
			writeError(rw, domain.ErrUnauthorized("missing credentials"))
			return
		}

		addr, err := netip.ParseAddr(ClientIP(r))
		if err != nil {
			writeError(rw, domain.ErrForbidden("unresolvable client address"))
			return
		}

		entries, err := w.entries(r.Context(), scope.PartnerID)
		if err != nil {
			writeError(rw, domain.ErrInternal("whitelist lookup failed", err))
			return
		}
		if !matches(addr, entries) {
			writeError(rw, domain.ErrForbidden("ip address not whitelisted"))
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (w *IPWhitelist) entries(ctx context.Context, partnerID uuid.UUID) ([]string, error) {
	cacheKey := "partnerips:" + partnerID.String()
	if raw, ok := w.cache.Get(ctx, cacheKey); ok {
		var cidrs []string
		if err := json.Unmarshal(raw, &cidrs); err == nil {
			return cidrs, nil
		}
	}

	rows, err := w.ips.ListByPartner(ctx, w.db, partnerID)
	if err != nil {
		return nil, err
	}
	cidrs := make([]string, 0, len(rows))
	for _, row := range rows {
		cidrs = append(cidrs, row.CIDR)
	}
	if raw, err := json.Marshal(cidrs); err == nil {
		w.cache.SetWithTags(ctx, cacheKey, raw, []string{"partnerips:" + partnerID.String()}, ipCacheTTL)
	}
	return cidrs, nil
}

func matches(addr netip.Addr, entries []string) bool {
	for _, entry := range entries {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			if prefix.Contains(addr) {
				return true
			}
			continue
		}
		if single, err := netip.ParseAddr(entry); err == nil && single == addr {
			return true
		}
	}
	return false
}
