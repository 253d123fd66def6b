// Package errs defines the error taxonomy surfaced by the core, per the
// spec's error handling design. Each kind is a sentinel; call sites wrap
// it with context via errors.Wrapf so callers can still recover the kind
// with errors.Is.
package errs

import (
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrStoreUnavailable means the backend is unreachable or corrupt.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSnapshotEmpty means a read that required data found the store empty.
	ErrSnapshotEmpty = errors.New("snapshot empty")

	// ErrAuthExpired means upstream returned 401; recoverable by
	// re-harvesting a token once.
	ErrAuthExpired = errors.New("upstream auth expired")

	// ErrTokenAcquisitionFailed means the browser driver timed out or the
	// widget page changed shape.
	ErrTokenAcquisitionFailed = errors.New("token acquisition failed")

	// ErrInvalidFilter means the query layer rejected a malformed
	// parameter combination.
	ErrInvalidFilter = errors.New("invalid filter")
)

// UpstreamRejected is returned when upstream answers with a non-401 4xx.
type UpstreamRejected struct {
	Status int
	Body   string
}

func (e *UpstreamRejected) Error() string {
	return errors.Newf("upstream rejected request: status=%d", e.Status).Error()
}

// NewUpstreamRejected constructs an UpstreamRejected error.
func NewUpstreamRejected(status int, body string) error {
	return &UpstreamRejected{Status: status, Body: body}
}

// UpstreamUnreachable is returned on network-level failure after retries
// are exhausted.
type UpstreamUnreachable struct {
	Cause error
}

func (e *UpstreamUnreachable) Error() string {
	return errors.Wrap(e.Cause, "upstream unreachable").Error()
}

func (e *UpstreamUnreachable) Unwrap() error { return e.Cause }

// NewUpstreamUnreachable constructs an UpstreamUnreachable error.
func NewUpstreamUnreachable(cause error) error {
	return &UpstreamUnreachable{Cause: cause}
}

// RefreshRateLimited is returned verbatim to the caller when a manual
// refresh is blocked by cooldown.
type RefreshRateLimited struct {
	RetryAfter time.Duration
}

func (e *RefreshRateLimited) Error() string {
	return errors.Newf("refresh rate limited, retry after %s", e.RetryAfter).Error()
}

// NewRefreshRateLimited constructs a RefreshRateLimited error.
func NewRefreshRateLimited(retryAfter time.Duration) error {
	return &RefreshRateLimited{RetryAfter: retryAfter}
}

// AsUpstreamRejected unwraps err into an *UpstreamRejected, if any.
func AsUpstreamRejected(err error) (*UpstreamRejected, bool) {
	var target *UpstreamRejected
	ok := errors.As(err, &target)
	return target, ok
}

// AsRefreshRateLimited unwraps err into a *RefreshRateLimited, if any.
func AsRefreshRateLimited(err error) (*RefreshRateLimited, bool) {
	var target *RefreshRateLimited
	ok := errors.As(err, &target)
	return target, ok
}
