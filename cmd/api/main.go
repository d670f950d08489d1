package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/cloud-atlas/api/internal/handlers"
	"github.com/cloud-atlas/api/internal/moderation"
	"github.com/cloud-atlas/api/internal/platform/auth"
	"github.com/cloud-atlas/api/internal/platform/config"
	"github.com/cloud-atlas/api/internal/platform/events"
	pfirestore "github.com/cloud-atlas/api/internal/platform/firestore"
	"github.com/cloud-atlas/api/internal/platform/observability"
	"github.com/cloud-atlas/api/internal/platform/ratelimit"
	"github.com/cloud-atlas/api/internal/platform/secrets"
	"github.com/cloud-atlas/api/internal/repositories"
	firestoreRepo "github.com/cloud-atlas/api/internal/repositories/firestore"
	"github.com/cloud-atlas/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	production := cfg.Server.Production()

	limiter := ratelimit.NewLimiter(ratelimit.WithSweepInterval(cfg.RateLimits.SweepInterval))
	defer limiter.Stop()

	ipGuard := ratelimit.NewIPGuard(limiter, cfg.RateLimits.IPHourlyLimit, cfg.RateLimits.IPHourlyWindow)
	endpoints := ratelimit.NewEndpointGuard(limiter, map[string]ratelimit.Policy{
		"/api/post-memory":  {Limit: cfg.RateLimits.WriteLimit, Window: cfg.RateLimits.WriteWindow},
		"/api/get-memories": {Limit: cfg.RateLimits.ReadLimit, Window: cfg.RateLimits.ReadWindow},
	}, ratelimit.Policy{Limit: cfg.RateLimits.DefaultLimit, Window: cfg.RateLimits.DefaultWindow})

	repository, cleanupRepo := newMemoryRepository(ctx, cfg, logger)
	defer cleanupRepo()

	publisher, cleanupPublisher := newMemoryPublisher(ctx, cfg, logger)
	defer cleanupPublisher()

	memoryService, err := services.NewMemoryService(services.MemoryServiceDeps{
		Repository: repository,
		Publisher:  publisher,
		IPGuard:    ipGuard,
		Endpoints:  endpoints,
		Validator:  moderation.NewValidator(cfg.Moderation),
		Scorer:     moderation.NewScorer(cfg.Moderation),
		Duplicates: moderation.NewDuplicateDetector(cfg.Moderation.DuplicateWindow, cfg.Moderation.DuplicateMaxEntries),
		Abuse:      moderation.NewAbuseTracker(cfg.Moderation.AbuseThreshold, cfg.Moderation.AbuseTTL),
		Metrics:    observability.NewAdmissionMetrics(nil, logger.Named("metrics")),
		ListLimit:  cfg.Firestore.ListLimit,
	})
	if err != nil {
		logger.Fatal("failed to initialise memory service", zap.Error(err))
	}

	blocklistService, err := services.NewBlocklistService(ipGuard)
	if err != nil {
		logger.Fatal("failed to initialise blocklist service", zap.Error(err))
	}

	projectID := strings.TrimSpace(cfg.Firestore.ProjectID)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http"), production),
		observability.RequestLoggerMiddleware(projectID),
	}

	internalMiddlewares, cleanupGuard := newAdminGuard(ctx, cfg, logger)
	defer cleanupGuard()

	originPolicy := handlers.NewOriginPolicy(cfg.CORS.AllowedOrigins, production)
	router := handlers.NewRouter(
		handlers.WithProductionMode(production),
		handlers.WithMiddlewares(middlewares...),
		handlers.WithAPIRoutes(handlers.NewMemoryHandlers(memoryService, production).Routes, originPolicy.Middleware()),
		handlers.WithInternalRoutes(handlers.NewBlocklistHandlers(blocklistService, production).Routes, internalMiddlewares...),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("cloud-atlas api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newMemoryRepository wires Firestore persistence when a project is
// configured, falling back to the in-process store for local development.
func newMemoryRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.MemoryRepository, func()) {
	if strings.TrimSpace(cfg.Firestore.ProjectID) == "" {
		logger.Warn("no firestore project configured; memories are kept in process memory")
		return repositories.NewInMemoryMemoryRepository(), func() {}
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := provider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	repository, err := firestoreRepo.NewMemoryRepository(provider, cfg.Firestore.Collection)
	if err != nil {
		logger.Fatal("failed to initialise memory repository", zap.Error(err))
	}

	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}
	return repository, cleanup
}

// newAdminGuard builds the signature middleware for the operator endpoints.
// The signing secret may be a literal value or a secret:// reference resolved
// through Secret Manager. No secret means no guard; the deployment is then
// expected to restrict /internal at the network layer.
func newAdminGuard(ctx context.Context, cfg config.Config, logger *zap.Logger) ([]func(http.Handler) http.Handler, func()) {
	ref := strings.TrimSpace(cfg.Admin.SigningSecret)
	if ref == "" {
		logger.Warn("no admin signing secret configured; operator endpoints are unguarded")
		return nil, func() {}
	}

	source := auth.StaticSecret(ref)
	cleanup := func() {}

	if secrets.IsReference(ref) {
		projectID := strings.TrimSpace(cfg.Admin.SecretsProjectID)
		if projectID == "" {
			projectID = strings.TrimSpace(cfg.Firestore.ProjectID)
		}

		opts := []secrets.Option{
			secrets.WithLogger(logger.Named("secrets")),
			secrets.WithProject(projectID),
		}
		if cfg.Admin.SecretsFallback != "" {
			opts = append(opts, secrets.WithFallbackFile(cfg.Admin.SecretsFallback))
		}

		fetcher, err := secrets.NewFetcher(ctx, opts...)
		if err != nil {
			logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
		}

		source = func(ctx context.Context) (string, error) {
			return fetcher.Resolve(ctx, ref)
		}
		cleanup = func() {
			if err := fetcher.Close(); err != nil {
				logger.Warn("secret fetcher close error", zap.Error(err))
			}
		}
	}

	guard := auth.NewGuard(source, auth.NewInMemoryNonceStore(),
		auth.WithGuardLogger(logger.Named("auth")),
		auth.WithProductionMode(cfg.Server.Production()),
	)
	return []func(http.Handler) http.Handler{guard.RequireSignature()}, cleanup
}

// newMemoryPublisher wires the created-memory broadcast when a topic is
// configured. Publishing is optional; an empty topic disables it.
func newMemoryPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.MemoryEventPublisher, func()) {
	topicID := strings.TrimSpace(cfg.PubSub.TopicID)
	if topicID == "" {
		return nil, func() {}
	}

	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(cfg.Firestore.ProjectID)
	}
	if projectID == "" {
		logger.Warn("memory topic configured without a project; publishing disabled")
		return nil, func() {}
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}

	topic := client.Topic(topicID)
	publisher, err := events.NewPubSubMemoryPublisher(topic)
	if err != nil {
		logger.Fatal("failed to initialise memory publisher", zap.Error(err))
	}

	cleanup := func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return publisher, cleanup
}
