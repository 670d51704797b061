// internal/scrape/errors.go
package scrape

import (
	"errors"
	"fmt"
)

// Sentinel kinds for the scrape error taxonomy. Callers match with errors.Is;
// the concrete error types below carry the offending endpoint/selector/status.
var (
	// ErrNotAvailable means the content was removed or never existed. Terminal.
	ErrNotAvailable = errors.New("content not available")
	// ErrNoContent means the content exists but the collection is empty or
	// private (distinct from unavailable). Terminal.
	ErrNoContent = errors.New("no content")
	// ErrCaptcha means a challenge could not be cleared after a solve attempt.
	// Terminal for the current call; the caller may retry the whole operation.
	ErrCaptcha = errors.New("captcha not cleared")
	// ErrAPIFailed means the direct-replay tier was rejected or returned a
	// malformed body. Recovered internally by the scroll tier and only
	// surfaced when that tier also fails.
	ErrAPIFailed = errors.New("direct api request failed")
	// ErrTimeout means a bounded wait elapsed. Never retried automatically.
	ErrTimeout = errors.New("timed out")
	// ErrInvalidFormat means none of the known JSON shapes matched. Indicates
	// an upstream schema change requiring a code update.
	ErrInvalidFormat = errors.New("unrecognized payload format")
	// ErrLoginRequired means the operation needs an authenticated session.
	ErrLoginRequired = errors.New("login required")
)

// StateError wraps one of the sentinel kinds with a human-readable detail
// identifying the selector, endpoint or status that triggered it.
type StateError struct {
	Kind   error
	Detail string
}

func (e *StateError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Detail)
}

func (e *StateError) Unwrap() error { return e.Kind }

// NotAvailablef builds a terminal not-available error.
func NotAvailablef(format string, args ...any) error {
	return &StateError{Kind: ErrNotAvailable, Detail: fmt.Sprintf(format, args...)}
}

// NoContentf builds a terminal empty-collection error.
func NoContentf(format string, args ...any) error {
	return &StateError{Kind: ErrNoContent, Detail: fmt.Sprintf(format, args...)}
}

// Captchaf builds a captcha-not-cleared error.
func Captchaf(format string, args ...any) error {
	return &StateError{Kind: ErrCaptcha, Detail: fmt.Sprintf(format, args...)}
}

// APIFailedf builds a tier-1 demotion error.
func APIFailedf(format string, args ...any) error {
	return &StateError{Kind: ErrAPIFailed, Detail: fmt.Sprintf(format, args...)}
}

// Timeoutf builds a bounded-wait timeout error.
func Timeoutf(format string, args ...any) error {
	return &StateError{Kind: ErrTimeout, Detail: fmt.Sprintf(format, args...)}
}

// InvalidFormatf builds a shape-mismatch error.
func InvalidFormatf(format string, args ...any) error {
	return &StateError{Kind: ErrInvalidFormat, Detail: fmt.Sprintf(format, args...)}
}

// LoginRequiredf builds a missing-authentication error.
func LoginRequiredf(format string, args ...any) error {
	return &StateError{Kind: ErrLoginRequired, Detail: fmt.Sprintf(format, args...)}
}
