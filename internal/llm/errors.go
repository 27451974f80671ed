package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code, 0 for transport errors
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Retryable reports whether another provider might succeed where this one
// failed: transport errors, timeouts, rate limits and server errors.
func (e *ProviderError) Retryable() bool {
	switch {
	case e.Code == 0:
		return true
	case e.Code == http.StatusTooManyRequests, e.Code == http.StatusRequestTimeout:
		return true
	case e.Code >= 500:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a retryable *ProviderError.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable()
}
