package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/cloud-atlas/api/internal/domain"
	"github.com/cloud-atlas/api/internal/moderation"
	"github.com/cloud-atlas/api/internal/platform/config"
	pfirestore "github.com/cloud-atlas/api/internal/platform/firestore"
	"github.com/cloud-atlas/api/internal/platform/ratelimit"
	"github.com/cloud-atlas/api/internal/repositories"
	"github.com/cloud-atlas/api/internal/services"
)

const testOrigin = "http://localhost:3000"

type handlerClock struct {
	mu  sync.Mutex
	now time.Time
}

func newHandlerClock() *handlerClock {
	return &handlerClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *handlerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *handlerClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type routerFixture struct {
	router chi.Router
	repo   *repositories.InMemoryMemoryRepository
	guard  *ratelimit.IPGuard
	clock  *handlerClock
}

func newRouterFixture(t *testing.T, production bool) *routerFixture {
	t.Helper()

	clock := newHandlerClock()
	limiter := ratelimit.NewLimiter(ratelimit.WithClock(clock.Now), ratelimit.WithSweepInterval(0))
	t.Cleanup(limiter.Stop)

	guard := ratelimit.NewIPGuard(limiter, 20, time.Hour)
	endpoints := ratelimit.NewEndpointGuard(limiter, map[string]ratelimit.Policy{
		"/api/post-memory":  {Limit: 5, Window: time.Minute},
		"/api/get-memories": {Limit: 30, Window: time.Minute},
	}, ratelimit.Policy{Limit: 10, Window: time.Minute})

	cfg := config.ModerationConfig{
		MinLength:      3,
		MaxLength:      500,
		MaxURLs:        2,
		ForbiddenWords: config.DefaultForbiddenWords(),
		SpamKeywords:   config.DefaultSpamKeywords(),
		SpamThreshold:  35,
	}

	repo := repositories.NewInMemoryMemoryRepository()
	svc, err := services.NewMemoryService(services.MemoryServiceDeps{
		Repository: repo,
		IPGuard:    guard,
		Endpoints:  endpoints,
		Validator:  moderation.NewValidator(cfg),
		Scorer:     moderation.NewScorer(cfg),
		Duplicates: moderation.NewDuplicateDetector(5*time.Minute, 0, moderation.WithDetectorClock(clock.Now)),
		Abuse:      moderation.NewAbuseTracker(8, 10*time.Minute),
		Clock:      clock.Now,
		ListLimit:  100,
	})
	if err != nil {
		t.Fatalf("NewMemoryService: %v", err)
	}

	blocklist, err := services.NewBlocklistService(guard)
	if err != nil {
		t.Fatalf("NewBlocklistService: %v", err)
	}

	policy := NewOriginPolicy([]string{testOrigin}, production)
	router := NewRouter(
		WithProductionMode(production),
		WithAPIRoutes(NewMemoryHandlers(svc, production).Routes, policy.Middleware()),
		WithInternalRoutes(NewBlocklistHandlers(blocklist, production).Routes),
	)

	return &routerFixture{router: router, repo: repo, guard: guard, clock: clock}
}

type errorEnvelope struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId"`
}

func postMemoryReq(body, ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/post-memory", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("X-Forwarded-For", ip)
	return req
}

func getMemoriesReq(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/get-memories", nil)
	req.Header.Set("X-Forwarded-For", ip)
	return req
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var envelope errorEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rr.Body.String())
	}
	return envelope
}

func TestPostMemorySuccess(t *testing.T) {
	f := newRouterFixture(t, false)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, postMemoryReq(`{"memory":"Watching the fireworks from the rooftop"}`, "203.0.113.7"))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rr.Code, rr.Body.String())
	}

	var payload struct {
		Message   string          `json:"message"`
		Data      []domain.Memory `json:"data"`
		RequestID string          `json:"requestId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Message != "Saved" {
		t.Fatalf("expected Saved, got %q", payload.Message)
	}
	if len(payload.Data) != 1 || payload.Data[0].Memory != "Watching the fireworks from the rooftop" {
		t.Fatalf("unexpected data %#v", payload.Data)
	}
	if !strings.HasPrefix(payload.RequestID, "req_") {
		t.Fatalf("expected req_ prefix, got %q", payload.RequestID)
	}

	if got := rr.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("expected X-RateLimit-Limit 5, got %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Fatalf("expected X-RateLimit-Remaining 4, got %q", got)
	}
	if _, err := time.Parse(time.RFC3339, rr.Header().Get("X-RateLimit-Reset")); err != nil {
		t.Fatalf("expected RFC3339 reset header, got %q", rr.Header().Get("X-RateLimit-Reset"))
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Fatalf("expected CORS origin header, got %q", got)
	}
}

func TestPostMemoryOriginPolicy(t *testing.T) {
	f := newRouterFixture(t, false)

	t.Run("missing origin", func(t *testing.T) {
		req := postMemoryReq(`{"memory":"A fine memory"}`, "203.0.113.7")
		req.Header.Del("Origin")
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
		if envelope := decodeEnvelope(t, rr); envelope.Code != string(domain.CodeForbidden) {
			t.Fatalf("expected FORBIDDEN, got %q", envelope.Code)
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := postMemoryReq(`{"memory":"A fine memory"}`, "203.0.113.7")
		req.Header.Set("Origin", "https://evil.example")
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})

	t.Run("invalid referer", func(t *testing.T) {
		req := postMemoryReq(`{"memory":"A fine memory"}`, "203.0.113.7")
		req.Header.Set("Referer", "https://evil.example/form")
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})

	t.Run("preflight allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/post-memory", nil)
		req.Header.Set("Origin", testOrigin)
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Max-Age"); got != "86400" {
			t.Fatalf("expected max-age 86400, got %q", got)
		}
	})

	t.Run("preflight denied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/post-memory", nil)
		req.Header.Set("Origin", "https://evil.example")
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
	})
}

func TestPostMemoryMalformedInput(t *testing.T) {
	f := newRouterFixture(t, false)

	t.Run("wrong content type", func(t *testing.T) {
		req := postMemoryReq(`{"memory":"A fine memory"}`, "203.0.113.7")
		req.Header.Set("Content-Type", "text/plain")
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnsupportedMediaType {
			t.Fatalf("expected 415, got %d", rr.Code)
		}
		if envelope := decodeEnvelope(t, rr); envelope.Code != string(domain.CodeValidationError) {
			t.Fatalf("expected VALIDATION_ERROR, got %q", envelope.Code)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, postMemoryReq(`{"memory":`, "203.0.113.7"))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if envelope := decodeEnvelope(t, rr); envelope.Error != "Invalid JSON" {
			t.Fatalf("expected Invalid JSON, got %q", envelope.Error)
		}
	})

	t.Run("missing memory field", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, postMemoryReq(`{"note":"hello"}`, "203.0.113.7"))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if envelope := decodeEnvelope(t, rr); envelope.Error != "Memory must be a string" {
			t.Fatalf("unexpected message %q", envelope.Error)
		}
	})

	t.Run("malformed input consumes no rate budget", func(t *testing.T) {
		// Five good writes must still fit in the window after the failures above.
		// Bodies are mutually dissimilar so the duplicate detector stays quiet.
		bodies := []string{
			"Hiking the coastal trail at dawn",
			"Grandmother's recipe for lentil soup",
			"The old bookstore smelled of cedar",
			"Watching fireflies from the porch swing",
			"A long train ride through the mountains",
		}
		for i, body := range bodies {
			rr := httptest.NewRecorder()
			f.router.ServeHTTP(rr, postMemoryReq(fmt.Sprintf(`{"memory":"%s"}`, body), "203.0.113.7"))
			if rr.Code != http.StatusCreated {
				t.Fatalf("write %d: expected 201, got %d (%s)", i, rr.Code, rr.Body.String())
			}
		}
	})
}

func TestPostMemoryRejections(t *testing.T) {
	f := newRouterFixture(t, false)

	t.Run("validation", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, postMemoryReq(`{"memory":"ab"}`, "203.0.113.7"))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		envelope := decodeEnvelope(t, rr)
		if envelope.Code != string(domain.CodeValidationError) {
			t.Fatalf("expected VALIDATION_ERROR, got %q", envelope.Code)
		}
		if envelope.Error != "Memory is too short (minimum 3 characters)" {
			t.Fatalf("unexpected reason %q", envelope.Error)
		}
	})

	t.Run("spam", func(t *testing.T) {
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, postMemoryReq(`{"memory":"BUY NOW limited offer click here http://deals.example"}`, "203.0.113.7"))

		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
		if envelope := decodeEnvelope(t, rr); envelope.Code != string(domain.CodeSpamDetected) {
			t.Fatalf("expected SPAM_DETECTED, got %q", envelope.Code)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		first := httptest.NewRecorder()
		f.router.ServeHTTP(first, postMemoryReq(`{"memory":"That quiet ferry ride to the island"}`, "203.0.113.7"))
		if first.Code != http.StatusCreated {
			t.Fatalf("first write: expected 201, got %d", first.Code)
		}

		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, postMemoryReq(`{"memory":"That quiet ferry ride to the island"}`, "203.0.113.7"))
		if rr.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rr.Code)
		}
		if envelope := decodeEnvelope(t, rr); envelope.Code != string(domain.CodeDuplicateContent) {
			t.Fatalf("expected DUPLICATE_CONTENT, got %q", envelope.Code)
		}
	})
}

func TestPostMemoryRateLimit(t *testing.T) {
	f := newRouterFixture(t, false)

	var rr *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		rr = httptest.NewRecorder()
		f.router.ServeHTTP(rr, postMemoryReq(fmt.Sprintf(`{"memory":"A different note about day number %d"}`, i), "203.0.113.7"))
	}

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on sixth write, got %d", rr.Code)
	}
	if envelope := decodeEnvelope(t, rr); envelope.Code != string(domain.CodeRateLimitExceeded) {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED, got %q", envelope.Code)
	}
	retryAfter := rr.Header().Get("Retry-After")
	if retryAfter == "" {
		t.Fatal("expected Retry-After header")
	}
	var secs int
	if _, err := fmt.Sscanf(retryAfter, "%d", &secs); err != nil || secs < 1 || secs > 60 {
		t.Fatalf("expected Retry-After within (0, 60], got %q", retryAfter)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected zero remaining, got %q", got)
	}

	// The window reopens after a minute.
	f.clock.Advance(time.Minute + time.Second)
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, postMemoryReq(`{"memory":"A note after the window reset"}`, "203.0.113.7"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 after window reset, got %d", rr.Code)
	}
}

func TestBlockedClientRejectedEverywhere(t *testing.T) {
	f := newRouterFixture(t, false)
	f.guard.Block("203.0.113.7")

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, postMemoryReq(`{"memory":"A fine memory"}`, "203.0.113.7"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on write, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, getMemoriesReq("203.0.113.7"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on read, got %d", rr.Code)
	}
}

func TestGetMemories(t *testing.T) {
	f := newRouterFixture(t, false)

	post := httptest.NewRecorder()
	f.router.ServeHTTP(post, postMemoryReq(`{"memory":"A memory worth listing"}`, "203.0.113.7"))
	if post.Code != http.StatusCreated {
		t.Fatalf("seed write failed: %d", post.Code)
	}

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, getMemoriesReq("203.0.113.8"))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var memories []domain.Memory
	if err := json.Unmarshal(rr.Body.Bytes(), &memories); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(memories) != 1 || memories[0].Memory != "A memory worth listing" {
		t.Fatalf("unexpected list %#v", memories)
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "30" {
		t.Fatalf("expected read limit header 30, got %q", got)
	}
}

func TestBlocklistEndpoints(t *testing.T) {
	f := newRouterFixture(t, false)

	block := httptest.NewRequest(http.MethodPost, "/internal/blocked-ips", strings.NewReader(`{"ip":"203.0.113.7"}`))
	block.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, block)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on block, got %d (%s)", rr.Code, rr.Body.String())
	}

	write := httptest.NewRecorder()
	f.router.ServeHTTP(write, postMemoryReq(`{"memory":"A fine memory"}`, "203.0.113.7"))
	if write.Code != http.StatusForbidden {
		t.Fatalf("expected blocked write, got %d", write.Code)
	}

	unblock := httptest.NewRequest(http.MethodDelete, "/internal/blocked-ips", strings.NewReader(`{"ip":"203.0.113.7"}`))
	unblock.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, unblock)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on unblock, got %d", rr.Code)
	}

	write = httptest.NewRecorder()
	f.router.ServeHTTP(write, postMemoryReq(`{"memory":"A fine memory"}`, "203.0.113.7"))
	if write.Code != http.StatusCreated {
		t.Fatalf("expected 201 after unblock, got %d", write.Code)
	}

	t.Run("invalid address", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/internal/blocked-ips", strings.NewReader(`{"ip":"not-an-ip"}`))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rr.Code)
		}
	})
}

func TestUnknownRouteEnvelope(t *testing.T) {
	f := newRouterFixture(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if envelope := decodeEnvelope(t, rr); envelope.Code != string(domain.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %q", envelope.Code)
	}
}

func TestClientIdentityPrecedence(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "forwarded-for first entry",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1, 172.16.0.1"},
			want:    "203.0.113.7",
		},
		{
			name: "forwarded-for beats the other headers",
			headers: map[string]string{
				"X-Forwarded-For":  "203.0.113.7",
				"CF-Connecting-IP": "198.51.100.1",
				"X-Real-IP":        "192.0.2.1",
			},
			want: "203.0.113.7",
		},
		{
			name: "connecting-ip beats real-ip",
			headers: map[string]string{
				"CF-Connecting-IP": "198.51.100.1",
				"X-Real-IP":        "192.0.2.1",
			},
			want: "198.51.100.1",
		},
		{
			name:    "real-ip alone",
			headers: map[string]string{"X-Real-IP": "192.0.2.1"},
			want:    "192.0.2.1",
		},
		{
			name:    "whitespace-only forwarded-for falls through",
			headers: map[string]string{"X-Forwarded-For": "   ", "CF-Connecting-IP": "198.51.100.1"},
			want:    "198.51.100.1",
		},
		{
			name: "no headers",
			want: "unknown",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/get-memories", nil)
			req.RemoteAddr = "10.9.8.7:51234"
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := clientIdentity(req); got != tc.want {
				t.Fatalf("clientIdentity = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimitKeyedPerConnectingIP(t *testing.T) {
	f := newRouterFixture(t, false)

	// Six clients behind Cloudflare each get their own write window.
	// Bodies are mutually dissimilar so the duplicate detector stays quiet.
	bodies := []string{
		"Morning fog rolling over the harbor",
		"The cat finally learned to fetch",
		"First snowfall on the maple street",
		"Baking sourdough every single weekend",
		"An unexpected letter from an old friend",
		"Counting stars on the observatory roof",
	}
	for i, body := range bodies {
		req := postMemoryReq(fmt.Sprintf(`{"memory":"%s"}`, body), "")
		req.Header.Del("X-Forwarded-For")
		req.Header.Set("CF-Connecting-IP", fmt.Sprintf("198.51.100.%d", i+1))
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("client %d: expected 201, got %d (%s)", i, rr.Code, rr.Body.String())
		}
	}
}

func TestRateLimitNotEvadedByWeakerHeader(t *testing.T) {
	f := newRouterFixture(t, false)

	// Bodies are mutually dissimilar so the duplicate detector stays quiet.
	bodies := []string{
		"Sketching the skyline from the bridge",
		"A quiet afternoon in the rose garden",
		"Learning to juggle with three oranges",
		"The ferry crossing was surprisingly calm",
		"Rainy days are best for jigsaw puzzles",
	}
	for i, body := range bodies {
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, postMemoryReq(fmt.Sprintf(`{"memory":"%s"}`, body), "203.0.113.7"))
		if rr.Code != http.StatusCreated {
			t.Fatalf("write %d: expected 201, got %d", i, rr.Code)
		}
	}

	// An exhausted client adding a lower-precedence header stays throttled.
	req := postMemoryReq(`{"memory":"One more note past the window"}`, "203.0.113.7")
	req.Header.Set("X-Real-IP", "192.0.2.99")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
}

func TestHeaderlessClientsShareOneBucket(t *testing.T) {
	f := newRouterFixture(t, false)
	f.guard.Block("unknown")

	req := postMemoryReq(`{"memory":"A fine memory"}`, "")
	req.Header.Del("X-Forwarded-For")
	req.RemoteAddr = "203.0.113.50:51234"
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for headerless client, got %d", rr.Code)
	}
}

func TestPostMemoryBotUserAgentStillAccepted(t *testing.T) {
	f := newRouterFixture(t, false)

	req := postMemoryReq(`{"memory":"A memory posted from a script"}`, "203.0.113.7")
	req.Header.Set("User-Agent", "curl/8.5.0")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 for scripted client, got %d (%s)", rr.Code, rr.Body.String())
	}
}

type stubMemoryService struct {
	submit  services.SubmitResult
	read    services.ReadResult
	listErr error
}

func (s *stubMemoryService) SubmitMemory(context.Context, services.SubmitMemoryCommand) services.SubmitResult {
	return s.submit
}

func (s *stubMemoryService) CheckRead(context.Context, string, string) services.ReadResult {
	return s.read
}

func (s *stubMemoryService) ListMemories(context.Context) ([]domain.Memory, error) {
	return nil, s.listErr
}

func stubRouter(t *testing.T, svc services.MemoryService) chi.Router {
	t.Helper()
	policy := NewOriginPolicy([]string{testOrigin}, false)
	return NewRouter(
		WithAPIRoutes(NewMemoryHandlers(svc, false).Routes, policy.Middleware()),
	)
}

func TestPersistenceOutageMapsToServiceUnavailable(t *testing.T) {
	t.Run("write", func(t *testing.T) {
		router := stubRouter(t, &stubMemoryService{
			submit: services.SubmitResult{Decision: services.DecisionError, Unavailable: true},
		})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, postMemoryReq(`{"memory":"A fine memory"}`, "203.0.113.7"))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d (%s)", rr.Code, rr.Body.String())
		}
		if envelope := decodeEnvelope(t, rr); envelope.Code != string(domain.CodeDatabaseError) {
			t.Fatalf("expected DATABASE_ERROR, got %q", envelope.Code)
		}
	})

	t.Run("write non-transient stays internal", func(t *testing.T) {
		router := stubRouter(t, &stubMemoryService{
			submit: services.SubmitResult{Decision: services.DecisionError},
		})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, postMemoryReq(`{"memory":"A fine memory"}`, "203.0.113.7"))
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
	})

	t.Run("read", func(t *testing.T) {
		router := stubRouter(t, &stubMemoryService{
			read:    services.ReadResult{Decision: services.DecisionAllowed},
			listErr: pfirestore.WrapError("memories.query", status.Error(codes.Unavailable, "backend down")),
		})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, getMemoriesReq("203.0.113.7"))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d (%s)", rr.Code, rr.Body.String())
		}
		if envelope := decodeEnvelope(t, rr); envelope.Code != string(domain.CodeDatabaseError) {
			t.Fatalf("expected DATABASE_ERROR, got %q", envelope.Code)
		}
	})
}

func TestProductionModeHidesDetail(t *testing.T) {
	f := newRouterFixture(t, true)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, postMemoryReq(`{"memory":"ab"}`, "203.0.113.7"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	envelope := decodeEnvelope(t, rr)
	if envelope.Error != "Invalid input provided" {
		t.Fatalf("expected generic message, got %q", envelope.Error)
	}
}
