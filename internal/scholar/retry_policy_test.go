package scholar

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_RateLimitRetryable(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5, time.Millisecond, time.Second)
	err := fmt.Errorf("papers page: %w", ErrRateLimited)

	require.True(t, p.ShouldRetry(err, 0))
	require.True(t, p.ShouldRetry(err, 3))
	require.False(t, p.ShouldRetry(err, 4), "ceiling reached")
}

func TestRetryPolicy_NonRetryableErrors(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(5, time.Millisecond, time.Second)

	require.False(t, p.ShouldRetry(nil, 0))
	require.False(t, p.ShouldRetry(ErrNotFound, 0))
	require.False(t, p.ShouldRetry(ErrAmbiguous, 0))
	require.False(t, p.ShouldRetry(context.Canceled, 0))
	require.False(t, p.ShouldRetry(context.DeadlineExceeded, 0))
	require.False(t, p.ShouldRetry(errors.New("logic bug"), 0))
}

func TestRetryPolicy_BackoffBoundedAndGrowing(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	cap := time.Second
	p := NewExponentialRetryPolicy(5, base, cap)

	for attempt := 0; attempt < 5; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, cap)
	}
	// First attempt waits at least half the base delay.
	require.GreaterOrEqual(t, p.Backoff(0), base/2)
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want ErrorCode
	}{
		{fmt.Errorf("resolve: %w", ErrNotFound), ErrCodeNotFound},
		{fmt.Errorf("resolve: %w", ErrAmbiguous), ErrCodeAmbiguous},
		{fmt.Errorf("fetch: %w", ErrRateLimited), ErrCodeRateLimited},
		{fmt.Errorf("fetch: %w", ErrUpstream), ErrCodeUpstream},
		{errors.New("boom"), ErrCodeInternal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ClassifyError(tc.err))
	}
}

func TestDedupKey_PrefersDOI(t *testing.T) {
	t.Parallel()

	year := 2020
	withDOI := PublicationRecord{Title: "Attention", Year: &year, DOI: "10.1000/abc"}
	sameDOI := PublicationRecord{Title: "Attention Is All You Need", DOI: "10.1000/abc"}
	noDOI := PublicationRecord{Title: "Attention", Year: &year}

	require.Equal(t, withDOI.DedupKey(), sameDOI.DedupKey())
	require.NotEqual(t, withDOI.DedupKey(), noDOI.DedupKey())
	require.Equal(t, "ty:attention|2020", noDOI.DedupKey())
}
