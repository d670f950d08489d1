package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/cloud-atlas/api/internal/domain"
	"github.com/cloud-atlas/api/internal/platform/httpx"
	"github.com/cloud-atlas/api/internal/platform/requestctx"
)

// RequestIDMiddleware assigns the correlation identifier echoed in every
// error envelope and log line.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestctx.WithRequestID(r.Context(), "req_"+ulid.Make().String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecurityHeadersMiddleware sets the browser hardening headers on every response.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}

// OriginPolicy enforces the cross-origin rules of the write surface: POST
// requires an allowed Origin, any present Origin must be on the allow list,
// and a POST Referer must resolve to an allowed origin. Preflights are
// answered directly.
type OriginPolicy struct {
	allowed    map[string]struct{}
	production bool
}

// NewOriginPolicy builds the policy from the configured origin allow list.
func NewOriginPolicy(origins []string, production bool) *OriginPolicy {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}
	return &OriginPolicy{allowed: allowed, production: production}
}

// Middleware wires the policy into the router.
func (p *OriginPolicy) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			origin := strings.TrimSpace(r.Header.Get("Origin"))

			if r.Method == http.MethodOptions {
				if origin != "" && p.isAllowed(origin) {
					p.setCORSHeaders(w, origin)
					w.WriteHeader(http.StatusNoContent)
					return
				}
				httpx.WriteError(ctx, w, httpx.NewError(domain.CodeForbidden, "CORS policy violation", http.StatusForbidden), p.production)
				return
			}

			if r.Method == http.MethodPost && origin == "" {
				httpx.WriteError(ctx, w, httpx.NewError(domain.CodeForbidden, "Origin header required", http.StatusForbidden), p.production)
				return
			}

			if origin != "" && !p.isAllowed(origin) {
				httpx.WriteError(ctx, w, httpx.NewError(domain.CodeForbidden, "CORS policy violation", http.StatusForbidden), p.production)
				return
			}

			if r.Method == http.MethodPost {
				if referer := strings.TrimSpace(r.Header.Get("Referer")); referer != "" && !p.validReferer(referer) {
					httpx.WriteError(ctx, w, httpx.NewError(domain.CodeForbidden, "Invalid referer", http.StatusForbidden), p.production)
					return
				}
			}

			if origin != "" {
				p.setCORSHeaders(w, origin)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p *OriginPolicy) isAllowed(origin string) bool {
	_, ok := p.allowed[origin]
	return ok
}

func (p *OriginPolicy) validReferer(referer string) bool {
	parsed, err := url.Parse(referer)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	return p.isAllowed(parsed.Scheme + "://" + parsed.Host)
}

func (p *OriginPolicy) setCORSHeaders(w http.ResponseWriter, origin string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Access-Control-Max-Age", "86400")
}
