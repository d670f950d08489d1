package auth

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cloud-atlas/api/internal/domain"
	"github.com/cloud-atlas/api/internal/platform/httpx"
)

const (
	signatureHeader = "X-Signature"
	timestampHeader = "X-Signature-Timestamp"
	nonceHeader     = "X-Signature-Nonce"

	defaultClockSkew = 5 * time.Minute
	defaultNonceTTL  = 5 * time.Minute
)

// SecretSource resolves the shared secret used to verify admin request
// signatures. It is called per request so rotated secrets take effect without
// a restart.
type SecretSource func(ctx context.Context) (string, error)

// StaticSecret returns a SecretSource backed by a fixed value.
func StaticSecret(value string) SecretSource {
	return func(context.Context) (string, error) {
		if strings.TrimSpace(value) == "" {
			return "", errors.New("auth: empty signing secret")
		}
		return value, nil
	}
}

// NonceStore tracks used nonces for replay prevention.
type NonceStore interface {
	// UseNonce records the nonce if it has not been seen before. The boolean
	// indicates whether the nonce was stored (true) or already existed (false).
	UseNonce(ctx context.Context, nonce string, expiry time.Time) (bool, error)
}

// InMemoryNonceStore is a process-local nonce registry. Sufficient for a
// single-instance deployment and for tests.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
}

// NewInMemoryNonceStore constructs the store.
func NewInMemoryNonceStore() *InMemoryNonceStore {
	return &InMemoryNonceStore{nonces: make(map[string]time.Time)}
}

// UseNonce records the nonce until the provided expiry, rejecting replays until then.
func (s *InMemoryNonceStore) UseNonce(_ context.Context, nonce string, expiry time.Time) (bool, error) {
	if nonce == "" {
		return false, errors.New("auth: nonce is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, exp := range s.nonces {
		if exp.Before(now) {
			delete(s.nonces, k)
		}
	}

	if expiry.Before(now) {
		return false, errors.New("auth: nonce expiry is in the past")
	}

	if existing, ok := s.nonces[nonce]; ok && existing.After(now) {
		return false, nil
	}

	s.nonces[nonce] = expiry
	return true, nil
}

// Guard verifies HMAC-SHA256 signed requests on the operator endpoints. The
// signature covers method, path, timestamp, nonce, and a body digest, so a
// captured request cannot be replayed or altered.
type Guard struct {
	source SecretSource
	nonces NonceStore

	logger     *zap.Logger
	now        func() time.Time
	clockSkew  time.Duration
	nonceTTL   time.Duration
	production bool
}

// GuardOption customises the guard.
type GuardOption func(*Guard)

// WithGuardLogger overrides the guard logger.
func WithGuardLogger(logger *zap.Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardClock injects a custom clock, primarily for tests.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithClockSkew adjusts the accepted timestamp skew.
func WithClockSkew(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.clockSkew = d
		}
	}
}

// WithNonceTTL customises the nonce retention duration.
func WithNonceTTL(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.nonceTTL = d
		}
	}
}

// WithProductionMode switches error responses to generic messages.
func WithProductionMode(production bool) GuardOption {
	return func(g *Guard) {
		g.production = production
	}
}

// NewGuard builds a signature guard over the given secret source and nonce store.
func NewGuard(source SecretSource, nonces NonceStore, opts ...GuardOption) *Guard {
	guard := &Guard{
		source:    source,
		nonces:    nonces,
		logger:    zap.NewNop(),
		now:       time.Now,
		clockSkew: defaultClockSkew,
		nonceTTL:  defaultNonceTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(guard)
		}
	}
	return guard
}

// RequireSignature enforces a valid request signature before the next handler runs.
func (g *Guard) RequireSignature() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			secret, err := g.loadSecret(ctx)
			if err != nil {
				g.logger.Error("signing secret unavailable", zap.Error(err))
				g.unavailable(ctx, w)
				return
			}

			signatureValue := strings.TrimSpace(r.Header.Get(signatureHeader))
			if signatureValue == "" {
				g.reject(ctx, w, "signature_missing", "Signature header missing")
				return
			}

			timestampValue := strings.TrimSpace(r.Header.Get(timestampHeader))
			if timestampValue == "" {
				g.reject(ctx, w, "timestamp_missing", "Signature timestamp missing")
				return
			}

			timestamp, err := parseSignatureTimestamp(timestampValue)
			if err != nil {
				g.reject(ctx, w, "timestamp_invalid", "Signature timestamp invalid")
				return
			}

			if skew := g.now().Sub(timestamp); skew > g.clockSkew || skew < -g.clockSkew {
				g.reject(ctx, w, "timestamp_skew", "Signature timestamp outside allowed window")
				return
			}

			nonce := strings.TrimSpace(r.Header.Get(nonceHeader))
			if nonce == "" {
				g.reject(ctx, w, "nonce_missing", "Signature nonce missing")
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError(domain.CodeValidationError, "Unable to read request body", http.StatusBadRequest), g.production)
				return
			}

			signature, err := decodeSignature(signatureValue)
			if err != nil {
				g.reject(ctx, w, "signature_undecodable", "Signature encoding invalid")
				return
			}

			expected := computeSignature(secret, canonicalRequest(r, body, timestampValue, nonce))
			if !hmac.Equal(signature, expected) {
				g.reject(ctx, w, "signature_mismatch", "Signature verification failed")
				return
			}

			ttl := timestamp.Add(g.nonceTTL)
			if ttl.Before(g.now()) {
				ttl = g.now().Add(g.nonceTTL)
			}

			stored, err := g.nonces.UseNonce(ctx, nonce, ttl)
			if err != nil {
				g.logger.Error("nonce store error", zap.Error(err))
				g.unavailable(ctx, w)
				return
			}
			if !stored {
				g.reject(ctx, w, "nonce_replay", "Duplicate signature nonce")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) loadSecret(ctx context.Context) ([]byte, error) {
	if g.source == nil {
		return nil, errors.New("auth: secret source not configured")
	}
	raw, err := g.source(ctx)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, errors.New("auth: secret is empty")
	}
	return []byte(raw), nil
}

func (g *Guard) reject(ctx context.Context, w http.ResponseWriter, reason, message string) {
	g.logger.Warn("admin signature rejected", zap.String("reason", reason))
	httpx.WriteError(ctx, w, httpx.NewError(domain.CodeUnauthorized, message, http.StatusUnauthorized), g.production)
}

func (g *Guard) unavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError(domain.CodeInternalError, "Signature verification unavailable", http.StatusServiceUnavailable), g.production)
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func decodeSignature(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("auth: empty signature")
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be base64 or hex encoded")
}

func parseSignatureTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("auth: timestamp empty")
	}

	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("auth: unable to parse timestamp %q", value)
}

func canonicalRequest(r *http.Request, body []byte, timestamp, nonce string) []byte {
	method := strings.ToUpper(r.Method)
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	digest := sha256.Sum256(body)
	canonical := strings.Join([]string{
		method,
		path,
		timestamp,
		nonce,
		hex.EncodeToString(digest[:]),
	}, "\n")
	return []byte(canonical)
}

func computeSignature(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
