package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	domain "github.com/cloud-atlas/api/internal/domain"
	"github.com/cloud-atlas/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	production  bool

	api      RouteRegistrar
	internal RouteRegistrar

	apiMiddlewares      []func(http.Handler) http.Handler
	internalMiddlewares []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const defaultTimeout = 60 * time.Second

// NewRouter constructs the chi router with shared middleware and the public
// and internal route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		// Client identity comes from clientIdentity's header precedence, so
		// chi's RealIP (which prefers X-Real-IP) is deliberately not used.
		middlewares: []func(http.Handler) http.Handler{
			middleware.Timeout(defaultTimeout),
			RequestIDMiddleware(),
			SecurityHeadersMiddleware(),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(domain.CodeNotFound, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound), cfg.production)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(domain.CodeNotFound, fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed), cfg.production)
	})

	r.Get("/healthz", Healthz)

	r.Route("/api", func(api chi.Router) {
		for _, mw := range cfg.apiMiddlewares {
			if mw != nil {
				api.Use(mw)
			}
		}
		if cfg.api != nil {
			cfg.api(api)
		}
	})

	r.Route("/internal", func(internal chi.Router) {
		for _, mw := range cfg.internalMiddlewares {
			if mw != nil {
				internal.Use(mw)
			}
		}
		if cfg.internal != nil {
			cfg.internal(internal)
		}
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithProductionMode controls whether error envelopes carry generic messages.
func WithProductionMode(production bool) Option {
	return func(cfg *routerConfig) {
		cfg.production = production
	}
}

// WithAPIRoutes mounts the public /api route group.
func WithAPIRoutes(registrar RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.api = registrar
		cfg.apiMiddlewares = append(cfg.apiMiddlewares, mw...)
	}
}

// WithInternalRoutes mounts the /internal route group.
func WithInternalRoutes(registrar RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internal = registrar
		cfg.internalMiddlewares = append(cfg.internalMiddlewares, mw...)
	}
}
