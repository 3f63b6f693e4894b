// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, not_found) mirror common HTTP
//     status semantics to aid interoperability.
//   - Ledger codes (already_parked, exit_blocked, read_failed) describe gate
//     decisions that a barrier controller acts on.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "already_parked",
//	  "message": "plate WA12345 already has an open session",
//	  "details": {"event_id": 17, "plate": "WA12345", "entry_time": "2024-05-01T08:00:00Z"}
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"

	// Ledger and recognition:
	ErrCodeAlreadyParked    = "already_parked"
	ErrCodeExitBlocked      = "exit_blocked"
	ErrCodeReadFailed       = "read_failed"
	ErrCodeInvalidPlate     = "invalid_plate"
	ErrCodeStoreUnavailable = "store_unavailable"
	ErrCodeListFailed       = "list_failed"
)
