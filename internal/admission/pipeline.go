package admission

import "net/http"

// Pipeline chains the admission stages in their required order:
// audit (outermost, sees the final status) → auth → ip whitelist → rate
// limit → handler. Exempt paths bypass the whole pipeline.
type Pipeline struct {
	auth    *Authenticator
	ips     *IPWhitelist
	limiter *RateLimiter
	auditor *Auditor
	exempt  map[string]bool
}

// NewPipeline assembles the admission chain.
func NewPipeline(auth *Authenticator, ips *IPWhitelist, limiter *RateLimiter, auditor *Auditor, exemptPaths []string) *Pipeline {
	exempt := make(map[string]bool, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = true
	}
	return &Pipeline{auth: auth, ips: ips, limiter: limiter, auditor: auditor, exempt: exempt}
}

// Middleware wraps a handler with the full chain.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	chained := p.auditor.Middleware(
		p.auth.Middleware(
			p.ips.Middleware(
				p.limiter.Middleware(next))))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		chained.ServeHTTP(w, r)
	})
}
