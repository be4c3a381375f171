package fetchqueue

import (
	"errors"
	"fmt"
)

// TransportError means the fetch itself could not complete (DNS, connect, read).
type TransportError struct {
	Locator string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.Locator, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError means a response arrived but its status is outside 200-299.
type HTTPStatusError struct {
	Locator    string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.Locator)
}

// FetchFailure is one failed attempt. Attempt is zero-based.
type FetchFailure struct {
	Locator string
	Attempt int
	Cause   error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("attempt %d for %s failed: %v", e.Attempt+1, e.Locator, e.Cause)
}

func (e *FetchFailure) Unwrap() error {
	return e.Cause
}

// TerminalJobFailure is reported once a job has no retries left.
// Last holds the final attempt's failure.
type TerminalJobFailure struct {
	Locator  string
	Attempts int
	Last     *FetchFailure
}

func (e *TerminalJobFailure) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.Locator, e.Attempts, e.Last.Cause)
}

func (e *TerminalJobFailure) Unwrap() error {
	return e.Last
}

// InstallError wraps a sink that rejected successfully fetched content.
type InstallError struct {
	Locator string
	Err     error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %v", e.Locator, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status behind err, or 0 if err carries none.
func StatusCode(err error) int {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
