package llm

import (
	"errors"
	"fmt"
	"time"
)

// Provider error sentinels.
var (
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrUnexpectedStatus  = errors.New("unexpected provider status")
	ErrMissingAPIKey     = errors.New("provider API key is required")
	ErrUnknownProvider   = errors.New("unknown provider")
)

// ProviderTimeoutError reports that a backend did not answer within its
// configured timeout.
type ProviderTimeoutError struct {
	Err      error
	Provider string
	Timeout  time.Duration
}

func (e *ProviderTimeoutError) Error() string {
	return fmt.Sprintf("provider %s timed out after %s: %v", e.Provider, e.Timeout, e.Err)
}

func (e *ProviderTimeoutError) Unwrap() error {
	return e.Err
}

// ProviderResponseError reports a backend answer that could not be used:
// a non-2xx status, an unreadable body or content outside the canonical shape.
type ProviderResponseError struct {
	Err        error
	Provider   string
	Body       string
	StatusCode int
}

func (e *ProviderResponseError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s returned an unusable response: %v", e.Provider, e.Err)
}

func (e *ProviderResponseError) Unwrap() error {
	return e.Err
}

func malformed(provider, format string, args ...any) error {
	return &ProviderResponseError{
		Provider: provider,
		Err:      fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...)),
	}
}

// IsTimeout reports whether err is a provider timeout.
func IsTimeout(err error) bool {
	var timeoutErr *ProviderTimeoutError
	return errors.As(err, &timeoutErr)
}
