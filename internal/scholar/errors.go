package scholar

import "errors"

// ErrorCode classifies failures surfaced on jobs and API responses.
type ErrorCode string

// Supported error classifications.
const (
	ErrCodeNotFound    ErrorCode = "not_found"
	ErrCodeAmbiguous   ErrorCode = "ambiguous"
	ErrCodeRateLimited ErrorCode = "rate_limited"
	ErrCodeUpstream    ErrorCode = "upstream_error"
	ErrCodeInternal    ErrorCode = "internal_error"
)

// Sentinel errors wrapped by the source client and pipeline stages.
var (
	// ErrNotFound indicates no matching author or job exists.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguous indicates a name search produced multiple plausible
	// candidates without a clear best match.
	ErrAmbiguous = errors.New("ambiguous author")
	// ErrRateLimited indicates the retry ceiling was exceeded with no
	// usable cache fallback.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstream indicates the source was unreachable or returned
	// malformed data.
	ErrUpstream = errors.New("upstream error")
)

// Job store errors shared by all JobStore implementations.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")
	// ErrJobTerminal is returned on attempts to mutate a completed or
	// failed job.
	ErrJobTerminal = errors.New("job is terminal")
)

// ClassifyError maps an error chain to its ErrorCode. Unrecognized errors
// classify as internal.
func ClassifyError(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrAmbiguous):
		return ErrCodeAmbiguous
	case errors.Is(err, ErrRateLimited):
		return ErrCodeRateLimited
	case errors.Is(err, ErrUpstream):
		return ErrCodeUpstream
	default:
		return ErrCodeInternal
	}
}

// NewJobError builds the JobError attached to a failing job.
func NewJobError(err error) *JobError {
	if err == nil {
		return nil
	}
	return &JobError{
		Code:    ClassifyError(err),
		Message: err.Error(),
	}
}
