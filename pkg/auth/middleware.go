package auth

import (
	"context"
	"net"
	"net/http"
	"strings"

	"aphorist/pkg/logger"
	"aphorist/pkg/utils"
)

type ctxCallerKey struct{}

// Gate is the request admission chain: API key, per-key rate limit, IP
// blocklist. An empty key set disables the API-key check (local/dev mode);
// the blocklist and limiter always run.
type Gate struct {
	keys      map[string]struct{}
	limiter   *limiterPool
	blocklist *Blocklist
}

func NewGate(apiKeys []string, limits Limits, blocklist *Blocklist) *Gate {
	ks := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			ks[k] = struct{}{}
		}
	}
	return &Gate{keys: ks, limiter: &limiterPool{cfg: limits}, blocklist: blocklist}
}

// Middleware wraps next with the admission chain.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if g.blocklist.Blocked(r.Context(), ip) {
			logger.Warn("blocked_ip_rejected", "ip", ip, "path", r.URL.Path)
			utils.JSONError(w, http.StatusForbidden, "forbidden")
			return
		}

		key := apiKey(r)
		if len(g.keys) > 0 {
			if _, ok := g.keys[key]; !ok {
				logger.Warn("unknown_api_key", "path", r.URL.Path, "remote", r.RemoteAddr)
				utils.JSONError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}

		// Anonymous callers share one bucket keyed by IP.
		limKey := key
		if limKey == "" {
			limKey = "ip:" + ip
		}
		if !g.limiter.Allow(limKey) {
			utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxCallerKey{}, key)))
	})
}

// CallerFromContext returns the authenticated API key or empty string.
func CallerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxCallerKey{}).(string); ok {
		return v
	}
	return ""
}

func apiKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
