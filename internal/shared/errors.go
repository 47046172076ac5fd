package shared

import "errors"

// UserSafeMessage returns an error message suitable for API consumers.
// Internal wrapping detail is stripped for unknown errors.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrIdempotencyConflict) {
		return "request was already processed"
	}
	return "operation failed, please retry or contact support"
}
