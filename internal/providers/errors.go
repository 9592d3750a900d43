package providers

import "errors"

var (
	// ErrRateLimited is returned when the provider responds with HTTP 429.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrNetwork is returned for transport-level failures and 5xx responses.
	ErrNetwork = errors.New("provider network error")
	// ErrInvalidResponse is returned when a provider reply cannot be decoded.
	ErrInvalidResponse = errors.New("invalid provider response")
	// ErrUnsupportedModel is returned by the factory for unknown provider kinds.
	ErrUnsupportedModel = errors.New("unsupported provider")
)
