package errs

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestAsUpstreamRejected(t *testing.T) {
	t.Parallel()

	err := errors.Wrap(NewUpstreamRejected(404, "not found"), "fetch standings")

	rejected, ok := AsUpstreamRejected(err)
	if !ok {
		t.Fatalf("expected AsUpstreamRejected to unwrap")
	}
	if rejected.Status != 404 {
		t.Fatalf("Status = %d, want 404", rejected.Status)
	}
}

func TestAsRefreshRateLimited(t *testing.T) {
	t.Parallel()

	err := NewRefreshRateLimited(30 * time.Second)

	limited, ok := AsRefreshRateLimited(err)
	if !ok {
		t.Fatalf("expected AsRefreshRateLimited to unwrap")
	}
	if limited.RetryAfter != 30*time.Second {
		t.Fatalf("RetryAfter = %s, want 30s", limited.RetryAfter)
	}
}

func TestUpstreamUnreachable_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: timeout")
	err := NewUpstreamUnreachable(cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to see through UpstreamUnreachable")
	}
}

func TestSentinelsDistinguishable(t *testing.T) {
	t.Parallel()

	wrapped := errors.Wrapf(ErrAuthExpired, "fetch calendar for group %s", "g-1")
	if !errors.Is(wrapped, ErrAuthExpired) {
		t.Fatalf("expected wrapped error to match ErrAuthExpired sentinel")
	}
	if errors.Is(wrapped, ErrSnapshotEmpty) {
		t.Fatalf("did not expect wrapped error to match unrelated sentinel")
	}
}
