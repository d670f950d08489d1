package services

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "github.com/cloud-atlas/api/internal/domain"
	"github.com/cloud-atlas/api/internal/moderation"
	"github.com/cloud-atlas/api/internal/platform/observability"
	"github.com/cloud-atlas/api/internal/platform/ratelimit"
	"github.com/cloud-atlas/api/internal/platform/requestctx"
	"github.com/cloud-atlas/api/internal/repositories"
)

// MemoryServiceDeps bundles the collaborators of the admission pipeline.
type MemoryServiceDeps struct {
	Repository repositories.MemoryRepository
	Publisher  MemoryEventPublisher
	IPGuard    *ratelimit.IPGuard
	Endpoints  *ratelimit.EndpointGuard
	Validator  *moderation.Validator
	Scorer     *moderation.Scorer
	Duplicates *moderation.DuplicateDetector
	Abuse      *moderation.AbuseTracker
	Metrics    *observability.AdmissionMetrics
	Clock      func() time.Time
	IDGen      func() string
	ListLimit  int
}

type memoryService struct {
	repo       repositories.MemoryRepository
	publisher  MemoryEventPublisher
	ipGuard    *ratelimit.IPGuard
	endpoints  *ratelimit.EndpointGuard
	validator  *moderation.Validator
	scorer     *moderation.Scorer
	duplicates *moderation.DuplicateDetector
	abuse      *moderation.AbuseTracker
	metrics    *observability.AdmissionMetrics
	clock      func() time.Time
	idGen      func() string
	listLimit  int
}

// NewMemoryService constructs the admission pipeline. Publisher, Abuse, and
// Metrics are optional; everything else is required.
func NewMemoryService(deps MemoryServiceDeps) (MemoryService, error) {
	if deps.Repository == nil {
		return nil, errors.New("memory service: repository is required")
	}
	if deps.IPGuard == nil || deps.Endpoints == nil {
		return nil, errors.New("memory service: rate guards are required")
	}
	if deps.Validator == nil || deps.Scorer == nil || deps.Duplicates == nil {
		return nil, errors.New("memory service: moderation checks are required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	listLimit := deps.ListLimit
	if listLimit <= 0 {
		listLimit = 100
	}

	return &memoryService{
		repo:       deps.Repository,
		publisher:  deps.Publisher,
		ipGuard:    deps.IPGuard,
		endpoints:  deps.Endpoints,
		validator:  deps.Validator,
		scorer:     deps.Scorer,
		duplicates: deps.Duplicates,
		abuse:      deps.Abuse,
		metrics:    deps.Metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		idGen:     idGen,
		listLimit: listLimit,
	}, nil
}

// SubmitMemory runs the write pipeline. Checks short-circuit on the first
// failure, so a rejected request leaves no duplicate-detector state.
func (s *memoryService) SubmitMemory(ctx context.Context, cmd SubmitMemoryCommand) SubmitResult {
	start := s.clock()
	logger := requestctx.Logger(ctx)

	if s.ipGuard.IsBlocked(cmd.ClientIP) || s.isAbusive(cmd.ClientIP) {
		return s.finishSubmit(ctx, start, SubmitResult{Decision: DecisionBlocked})
	}

	if result := s.ipGuard.CheckLimit(cmd.ClientIP); !result.Allowed {
		policy := s.ipGuard.Policy()
		return s.finishSubmit(ctx, start, SubmitResult{
			Decision:   DecisionRateLimited,
			Rate:       RateStatus{Limit: policy.Limit, Remaining: result.Remaining, ResetAt: result.ResetAt},
			RetryAfter: retryAfter(result.ResetAt, start),
		})
	}

	endpoint := s.endpoints.Check(cmd.ClientIP, cmd.Path)
	rate := RateStatus{Limit: endpoint.Limit, Remaining: endpoint.Remaining, ResetAt: endpoint.ResetAt}
	if !endpoint.Allowed {
		return s.finishSubmit(ctx, start, SubmitResult{
			Decision:   DecisionRateLimited,
			Rate:       rate,
			RetryAfter: retryAfter(endpoint.ResetAt, start),
		})
	}

	if verdict := s.validator.Validate(cmd.Memory); !verdict.Valid {
		s.recordRejection(cmd.ClientIP)
		logger.Info("submission rejected by validation",
			zap.String("reason", verdict.Reason),
			zap.String("preview", moderation.Preview(cmd.Memory)),
		)
		return s.finishSubmit(ctx, start, SubmitResult{Decision: DecisionInvalid, Reason: verdict.Reason, Rate: rate})
	}

	if verdict := s.scorer.Score(cmd.Memory); verdict.IsSpam {
		s.recordRejection(cmd.ClientIP)
		logger.Info("submission rejected as spam",
			zap.Int("score", verdict.Score),
			zap.Strings("reasons", verdict.Reasons),
			zap.String("preview", moderation.Preview(cmd.Memory)),
		)
		return s.finishSubmit(ctx, start, SubmitResult{Decision: DecisionSpam, Rate: rate})
	}

	if verdict := s.duplicates.CheckDuplicate(cmd.Memory); verdict.IsDuplicate {
		s.recordRejection(cmd.ClientIP)
		logger.Info("submission rejected as duplicate",
			zap.Float64("similarity", verdict.Similarity),
			zap.String("preview", moderation.Preview(cmd.Memory)),
		)
		return s.finishSubmit(ctx, start, SubmitResult{Decision: DecisionDuplicate, Rate: rate})
	}

	now := s.clock()
	memory := domain.Memory{
		ID:        s.idGen(),
		Memory:    moderation.Sanitize(cmd.Memory),
		MemoryID:  s.idGen(),
		CreatedAt: now,
	}

	if err := s.repo.Insert(ctx, memory); err != nil {
		logger.Error("memory persistence failed", zap.Error(err))
		return s.finishSubmit(ctx, start, SubmitResult{Decision: DecisionError, Unavailable: repositories.IsUnavailable(err), Rate: rate})
	}

	s.publishCreated(ctx, memory)

	return s.finishSubmit(ctx, start, SubmitResult{Decision: DecisionAllowed, Memory: memory, Rate: rate})
}

// CheckRead runs the read-path guards only; reads never touch the content
// checks or the duplicate detector.
func (s *memoryService) CheckRead(ctx context.Context, clientIP, path string) ReadResult {
	start := s.clock()

	if s.ipGuard.IsBlocked(clientIP) || s.isAbusive(clientIP) {
		s.recordDecision(ctx, start, DecisionBlocked)
		return ReadResult{Decision: DecisionBlocked}
	}

	if result := s.ipGuard.CheckLimit(clientIP); !result.Allowed {
		s.recordDecision(ctx, start, DecisionRateLimited)
		policy := s.ipGuard.Policy()
		return ReadResult{
			Decision:   DecisionRateLimited,
			Rate:       RateStatus{Limit: policy.Limit, Remaining: result.Remaining, ResetAt: result.ResetAt},
			RetryAfter: retryAfter(result.ResetAt, start),
		}
	}

	endpoint := s.endpoints.Check(clientIP, path)
	rate := RateStatus{Limit: endpoint.Limit, Remaining: endpoint.Remaining, ResetAt: endpoint.ResetAt}
	if !endpoint.Allowed {
		s.recordDecision(ctx, start, DecisionRateLimited)
		return ReadResult{Decision: DecisionRateLimited, Rate: rate, RetryAfter: retryAfter(endpoint.ResetAt, start)}
	}

	s.recordDecision(ctx, start, DecisionAllowed)
	return ReadResult{Decision: DecisionAllowed, Rate: rate}
}

// ListMemories returns the newest stored memories up to the configured cap.
func (s *memoryService) ListMemories(ctx context.Context) ([]domain.Memory, error) {
	memories, err := s.repo.List(ctx, s.listLimit)
	if err != nil {
		requestctx.Logger(ctx).Error("memory listing failed", zap.Error(err))
		return nil, err
	}
	return memories, nil
}

func (s *memoryService) isAbusive(clientIP string) bool {
	return s.abuse != nil && s.abuse.IsAbusive(clientIP)
}

func (s *memoryService) recordRejection(clientIP string) {
	if s.abuse != nil {
		s.abuse.RecordRejection(clientIP)
	}
}

// publishCreated is best-effort: broadcast failures are logged and never
// fail the request.
func (s *memoryService) publishCreated(ctx context.Context, memory domain.Memory) {
	if s.publisher == nil {
		return
	}
	message := MemoryCreatedMessage{
		DocumentID: memory.ID,
		MemoryID:   memory.MemoryID,
		CreatedAt:  memory.CreatedAt,
	}
	if _, err := s.publisher.PublishMemoryCreated(ctx, message); err != nil {
		requestctx.Logger(ctx).Warn("memory event publish failed",
			zap.String("memory_id", memory.MemoryID),
			zap.Error(err),
		)
	}
}

func (s *memoryService) finishSubmit(ctx context.Context, start time.Time, result SubmitResult) SubmitResult {
	s.recordDecision(ctx, start, result.Decision)
	return result
}

func (s *memoryService) recordDecision(ctx context.Context, start time.Time, decision Decision) {
	if s.metrics == nil {
		return
	}
	outcome := string(decision)
	s.metrics.RecordDecision(ctx, outcome)
	elapsed := s.clock().Sub(start)
	s.metrics.RecordLatency(ctx, float64(elapsed)/float64(time.Millisecond), outcome)
}

func retryAfter(resetAt, now time.Time) time.Duration {
	d := resetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
