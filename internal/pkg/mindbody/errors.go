package mindbody

import (
	"errors"
	"fmt"
)

// Authentication failures surfaced to callers of the outbound API layer.
var (
	ErrInvalidCredentials      = errors.New("mindbody: invalid username or password")
	ErrMissingAccessToken      = errors.New("mindbody: token response missing AccessToken")
	ErrMissingAPIKey           = errors.New("mindbody: MINDBODY_API_KEY is not configured")
	ErrMissingSiteID           = errors.New("mindbody: MINDBODY_SITE_ID is not configured")
	ErrInsufficientPermissions = errors.New("mindbody: api key lacks permission for this operation")
)

// APIError wraps any non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mindbody: api request failed: status=%d body=%s", e.StatusCode, e.Body)
}

// IsClientError reports whether the upstream response was a 4xx. Client
// errors are never retried by the outbound layer.
func (e *APIError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsServerError reports whether the upstream response was a 5xx.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}

// RateLimitError is the 429 specialization of APIError carrying the
// provider-advertised retry delay.
type RateLimitError struct {
	APIError
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("mindbody: rate limited: retry after %ds", e.RetryAfterSeconds)
}
