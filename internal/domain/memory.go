package domain

import (
	"time"
)

// AnonymousUserID tags every stored memory; the service is intentionally anonymous.
const AnonymousUserID = "anonymous"

// Memory is a single accepted submission as persisted and returned by the API.
type Memory struct {
	ID        string    `json:"id"`
	Memory    string    `json:"memory"`
	MemoryID  string    `json:"memory_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorCode identifies the failure class carried in error responses.
type ErrorCode string

const (
	// CodeValidationError covers malformed or rule-violating input.
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	// CodeRateLimitExceeded signals a transient throttle; clients may retry later.
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// CodeSpamDetected marks content rejected by the heuristic scorer.
	CodeSpamDetected ErrorCode = "SPAM_DETECTED"
	// CodeDuplicateContent marks content rejected by the near-duplicate detector.
	CodeDuplicateContent ErrorCode = "DUPLICATE_CONTENT"
	// CodeForbidden covers blocked clients and origin policy violations.
	CodeForbidden ErrorCode = "FORBIDDEN"
	// CodeUnauthorized covers missing or invalid admin request signatures.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// CodeNotFound covers unknown routes.
	CodeNotFound ErrorCode = "NOT_FOUND"
	// CodeDatabaseError covers persistence failures; detail never reaches clients.
	CodeDatabaseError ErrorCode = "DATABASE_ERROR"
	// CodeInternalError is the catch-all for unexpected failures.
	CodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// GenericMessage returns the client-safe message for a code, used in
// production mode where verbatim detail must not leak.
func GenericMessage(code ErrorCode) string {
	switch code {
	case CodeValidationError:
		return "Invalid input provided"
	case CodeRateLimitExceeded:
		return "Too many requests. Please try again later"
	case CodeSpamDetected:
		return "Content flagged as spam"
	case CodeDuplicateContent:
		return "Duplicate or similar content detected"
	case CodeForbidden:
		return "Access denied"
	case CodeUnauthorized:
		return "Authentication required"
	case CodeNotFound:
		return "Resource not found"
	case CodeDatabaseError:
		return "A database error occurred"
	default:
		return "An internal error occurred"
	}
}
