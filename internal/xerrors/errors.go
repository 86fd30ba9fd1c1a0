// Package xerrors defines the error taxonomy shared by every component of
// the SDK. Initialize returns ConfigInvalid for a bad configuration, and
// GetServices/FinalizeAsync return Internal when called before Initialize;
// upload failures are reported through an UploadResult and counted in Stats.
package xerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap one of these with fmt.Errorf("...: %w", Sentinel)
// so callers can still use errors.Is against the category.
var (
	// ConfigInvalid is raised synchronously from Initialize when the
	// supplied configuration fails validation.
	ConfigInvalid = errors.New("xping: invalid configuration")

	// Transport covers network failures and timeouts reaching the API.
	Transport = errors.New("xping: transport error")

	// ServerError covers HTTP 5xx responses from the API.
	ServerError = errors.New("xping: server error")

	// RateLimited covers HTTP 429 responses.
	RateLimited = errors.New("xping: rate limited")

	// ClientError covers non-retriable HTTP 4xx responses.
	ClientError = errors.New("xping: client error")

	// CircuitOpen is returned by the uploader while its breaker is open.
	CircuitOpen = errors.New("xping: circuit open")

	// Cancelled covers operations aborted by a caller-supplied context or
	// deadline.
	Cancelled = errors.New("xping: cancelled")

	// Internal covers unexpected failures, such as encoding errors in the
	// uploader, and calls to GetServices or FinalizeAsync before
	// Initialize. A panic in the record path is swallowed and logged
	// rather than returned.
	Internal = errors.New("xping: internal error")
)

// Retriable reports whether err belongs to a category the uploader should
// retry: Transport, ServerError, or RateLimited.
func Retriable(err error) bool {
	return errors.Is(err, Transport) || errors.Is(err, ServerError) || errors.Is(err, RateLimited)
}

// Wrap annotates sentinel with additional context while remaining
// errors.Is-compatible with sentinel.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, sentinel)...)
}
