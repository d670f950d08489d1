package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func signedRequest(t *testing.T, secret, method, path string, body []byte, timestamp, nonce string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	signature := computeSignature([]byte(secret), canonicalRequest(req, body, timestamp, nonce))
	req.Header.Set(signatureHeader, base64.StdEncoding.EncodeToString(signature))
	req.Header.Set(timestampHeader, timestamp)
	req.Header.Set(nonceHeader, nonce)
	return req
}

func TestRequireSignatureSuccess(t *testing.T) {
	const secret = "operator-secret"
	now := time.Now().UTC().Truncate(time.Second)

	guard := NewGuard(StaticSecret(secret), NewInMemoryNonceStore(),
		WithGuardClock(func() time.Time { return now }),
	)

	body := []byte(`{"ip":"203.0.113.9"}`)
	req := signedRequest(t, secret, http.MethodPost, "/internal/blocked-ips", body, now.Format(time.RFC3339), "nonce-123")

	rr := httptest.NewRecorder()
	guard.RequireSignature()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequireSignatureReplayRejected(t *testing.T) {
	const secret = "operator-secret"
	now := time.Now().UTC().Truncate(time.Second)

	guard := NewGuard(StaticSecret(secret), NewInMemoryNonceStore(),
		WithGuardClock(func() time.Time { return now }),
	)

	body := []byte(`{"ip":"203.0.113.9"}`)
	timestamp := now.Format(time.RFC3339)

	handler := guard.RequireSignature()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest(t, secret, http.MethodPost, "/internal/blocked-ips", body, timestamp, "nonce-replay"))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected first request to succeed, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest(t, secret, http.MethodPost, "/internal/blocked-ips", body, timestamp, "nonce-replay"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected replay to be rejected with 401, got %d", rr.Code)
	}
}

func TestRequireSignatureMismatchRejected(t *testing.T) {
	const secret = "operator-secret"
	now := time.Now().UTC().Truncate(time.Second)

	guard := NewGuard(StaticSecret(secret), NewInMemoryNonceStore(),
		WithGuardClock(func() time.Time { return now }),
	)

	// Sign one body, send another.
	timestamp := now.Format(time.RFC3339)
	req := signedRequest(t, secret, http.MethodPost, "/internal/blocked-ips", []byte(`{"ip":"203.0.113.9"}`), timestamp, "nonce-ship")
	tampered := httptest.NewRequest(http.MethodPost, "/internal/blocked-ips", bytes.NewReader([]byte(`{"ip":"198.51.100.7"}`)))
	tampered.Header = req.Header

	rr := httptest.NewRecorder()
	guard.RequireSignature()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be invoked on signature mismatch")
	})).ServeHTTP(rr, tampered)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on signature mismatch, got %d", rr.Code)
	}
}

func TestRequireSignatureTimestampSkewRejected(t *testing.T) {
	const secret = "operator-secret"
	now := time.Now().UTC().Truncate(time.Second)

	guard := NewGuard(StaticSecret(secret), NewInMemoryNonceStore(),
		WithGuardClock(func() time.Time { return now }),
	)

	stale := now.Add(-10 * time.Minute).Format(time.RFC3339)
	req := signedRequest(t, secret, http.MethodPost, "/internal/blocked-ips", []byte(`{"ip":"203.0.113.9"}`), stale, "nonce-old")

	rr := httptest.NewRecorder()
	guard.RequireSignature()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be called when timestamp is skewed")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on timestamp skew, got %d", rr.Code)
	}
}

func TestRequireSignatureSecretUnavailable(t *testing.T) {
	source := SecretSource(func(context.Context) (string, error) {
		return "", errors.New("secret unavailable")
	})
	now := time.Now().UTC().Truncate(time.Second)

	guard := NewGuard(source, NewInMemoryNonceStore(),
		WithGuardClock(func() time.Time { return now }),
	)

	req := httptest.NewRequest(http.MethodPost, "/internal/blocked-ips", nil)
	rr := httptest.NewRecorder()

	guard.RequireSignature()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run when secret unavailable")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when secret unavailable, got %d", rr.Code)
	}
}

func TestInMemoryNonceStoreExpiry(t *testing.T) {
	store := NewInMemoryNonceStore()
	ctx := context.Background()

	stored, err := store.UseNonce(ctx, "n1", time.Now().Add(50*time.Millisecond))
	if err != nil || !stored {
		t.Fatalf("expected first use to store, got stored=%v err=%v", stored, err)
	}

	stored, err = store.UseNonce(ctx, "n1", time.Now().Add(time.Minute))
	if err != nil || stored {
		t.Fatalf("expected reuse to be rejected, got stored=%v err=%v", stored, err)
	}

	time.Sleep(60 * time.Millisecond)

	stored, err = store.UseNonce(ctx, "n1", time.Now().Add(time.Minute))
	if err != nil || !stored {
		t.Fatalf("expected nonce to be reusable after expiry, got stored=%v err=%v", stored, err)
	}
}
