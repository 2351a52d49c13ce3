package fault

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeValidation marks malformed or missing input.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict marks a duplicate idempotency key. Callers treat it as
	// "already processed", not as a hard failure.
	CodeConflict Code = "CONFLICT"
	// CodeInsufficientCredits marks a balance that cannot cover a charge.
	CodeInsufficientCredits Code = "INSUFFICIENT_CREDITS"
	// CodeProviderError marks a non-timeout failure from an AI provider.
	CodeProviderError Code = "AI_PROVIDER_ERROR"
	// CodeProviderTimeout marks a provider call that exceeded its deadline.
	CodeProviderTimeout Code = "AI_PROVIDER_TIMEOUT"
	// CodeProviderUnavailable marks a provider with no registered adapter.
	CodeProviderUnavailable Code = "AI_PROVIDER_UNAVAILABLE"
	// CodeDatabase marks a storage-layer failure.
	CodeDatabase Code = "DATABASE_ERROR"
	// CodeInternal marks an unexpected failure.
	CodeInternal Code = "INTERNAL_ERROR"
)

// HTTPStatus maps the code to an HTTP-style status for transport layers.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeInsufficientCredits:
		return http.StatusPaymentRequired
	case CodeProviderError, CodeProviderUnavailable:
		return http.StatusBadGateway
	case CodeProviderTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
