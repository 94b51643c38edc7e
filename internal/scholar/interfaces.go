package scholar

import (
	"context"
	"io"
	"time"
)

// Source is the upstream bibliographic provider, consulted through the
// resilience layer.
type Source interface {
	// Author fetches an author by canonical id.
	Author(ctx context.Context, authorID string) (RawAuthor, error)
	// SearchAuthors runs a name search and returns up to limit candidates.
	SearchAuthors(ctx context.Context, name string, limit int) ([]RawAuthor, error)
	// Papers fetches one page of the author's publications sorted by
	// citation count descending.
	Papers(ctx context.Context, authorID string, offset, limit int) (PapersPage, error)
}

// JobStore persists job metadata and enforces the job state machine:
// queued -> running -> completed|failed, with no transitions out of a
// terminal state and monotonically non-decreasing progress.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, jobErr *JobError, result *ResultSummary) error
	UpdateJobProgress(ctx context.Context, jobID string, stage string, percent int) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	// StalledJobs returns running jobs whose last progress update predates
	// the cutoff; the watchdog fails them.
	StalledJobs(ctx context.Context, before time.Time) ([]Job, error)
	// PruneFinished evicts terminal jobs finished before the cutoff and
	// returns how many were removed.
	PruneFinished(ctx context.Context, before time.Time) (int, error)
}

// Queue provides enqueue/dequeue semantics for scrape jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// BlobStore writes rendered artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PDFFinder locates an alternate PDF link for a paper, typically by
// rendering its landing page. Implementations may return an empty string
// without error when nothing is found.
type PDFFinder interface {
	Find(ctx context.Context, paperID, title string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
