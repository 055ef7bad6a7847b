package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes an extraction can surface.
// Callers match on these with errors.Is; the wrapper structs below
// carry the per-request detail.
var (
	ErrInvalidURL        = errors.New("invalid URL")
	ErrForbiddenHost     = errors.New("forbidden host")
	ErrTimeout           = errors.New("deadline exceeded")
	ErrTransport         = errors.New("transport failure")
	ErrTooLarge          = errors.New("response exceeds byte cap")
	ErrNoData            = errors.New("no product data found")
	ErrUnparseablePrice  = errors.New("unparseable price")
	ErrResourceExhausted = errors.New("rendering pool exhausted")
	ErrPartialResult     = errors.New("partial result insufficient")
)

// FetchError wraps errors that occur while fetching a page.
type FetchError struct {
	URL        string
	Transport  Transport
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s via %s (status %d): %v", e.URL, e.Transport, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s via %s: %v", e.URL, e.Transport, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// ExtractError wraps errors that occur while extracting a record from
// fetched content.
type ExtractError struct {
	URL      string
	Strategy Strategy
	Err      error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract error for %s (strategy=%s): %v", e.URL, e.Strategy, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// ValidationError wraps URL validation failures with the offending input.
type ValidationError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %q: %s", e.URL, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }
