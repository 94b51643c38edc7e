package memory

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citescout/citescout/internal/scholar"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newJob(id string) scholar.Job {
	return scholar.Job{
		ID:        id,
		AuthorRef: scholar.AuthorRef{Kind: scholar.RefNumericID, Value: "1"},
		MaxPapers: 10,
	}
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := NewJobStore(clock)

	require.NoError(t, store.CreateJob(ctx, newJob("j1")))
	require.ErrorIs(t, store.CreateJob(ctx, newJob("j1")), scholar.ErrJobExists)

	job, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, scholar.JobStatusQueued, job.Status)

	require.NoError(t, store.UpdateJobStatus(ctx, "j1", scholar.JobStatusRunning, nil, nil))
	job, _ = store.GetJob(ctx, "j1")
	require.Equal(t, scholar.JobStatusRunning, job.Status)
	require.NotNil(t, job.Started)

	result := &scholar.ResultSummary{AuthorID: "1", TotalRecords: 10, ChecklistURI: "memory://r"}
	require.NoError(t, store.UpdateJobStatus(ctx, "j1", scholar.JobStatusCompleted, nil, result))
	job, _ = store.GetJob(ctx, "j1")
	require.Equal(t, scholar.JobStatusCompleted, job.Status)
	require.Equal(t, 100, job.Percent)
	require.NotNil(t, job.Finished)
	require.Equal(t, result, job.Result)

	// Terminal jobs are immutable.
	err = store.UpdateJobStatus(ctx, "j1", scholar.JobStatusRunning, nil, nil)
	require.ErrorIs(t, err, scholar.ErrJobTerminal)
	err = store.UpdateJobProgress(ctx, "j1", "fetching", 50)
	require.ErrorIs(t, err, scholar.ErrJobTerminal)
}

func TestProgressMonotonic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore(newFakeClock())
	require.NoError(t, store.CreateJob(ctx, newJob("j1")))
	require.NoError(t, store.UpdateJobStatus(ctx, "j1", scholar.JobStatusRunning, nil, nil))

	require.NoError(t, store.UpdateJobProgress(ctx, "j1", "fetching", 40))
	require.NoError(t, store.UpdateJobProgress(ctx, "j1", "processing", 30))
	job, _ := store.GetJob(ctx, "j1")
	require.Equal(t, 40, job.Percent, "percentage must not regress")
	require.Equal(t, "processing", job.Stage, "stage still advances")

	require.NoError(t, store.UpdateJobProgress(ctx, "j1", "rendering", 400))
	job, _ = store.GetJob(ctx, "j1")
	require.Equal(t, 100, job.Percent)
}

func TestFailedJobKeepsError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore(newFakeClock())
	require.NoError(t, store.CreateJob(ctx, newJob("j1")))
	require.NoError(t, store.UpdateJobStatus(ctx, "j1", scholar.JobStatusRunning, nil, nil))

	jobErr := &scholar.JobError{Code: scholar.ErrCodeNotFound, Message: "author missing"}
	require.NoError(t, store.UpdateJobStatus(ctx, "j1", scholar.JobStatusFailed, jobErr, nil))
	job, _ := store.GetJob(ctx, "j1")
	require.Equal(t, scholar.JobStatusFailed, job.Status)
	require.Equal(t, jobErr, job.Error)
	require.Nil(t, job.Result)
}

func TestStalledJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := NewJobStore(clock)

	require.NoError(t, store.CreateJob(ctx, newJob("stuck")))
	require.NoError(t, store.UpdateJobStatus(ctx, "stuck", scholar.JobStatusRunning, nil, nil))

	clock.Advance(30 * time.Minute)
	require.NoError(t, store.CreateJob(ctx, newJob("fresh")))
	require.NoError(t, store.UpdateJobStatus(ctx, "fresh", scholar.JobStatusRunning, nil, nil))

	stalled, err := store.StalledJobs(ctx, clock.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	require.Equal(t, "stuck", stalled[0].ID)
}

func TestPruneFinished(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	store := NewJobStore(clock)

	require.NoError(t, store.CreateJob(ctx, newJob("old")))
	require.NoError(t, store.UpdateJobStatus(ctx, "old", scholar.JobStatusRunning, nil, nil))
	require.NoError(t, store.UpdateJobStatus(ctx, "old", scholar.JobStatusCompleted, nil, &scholar.ResultSummary{}))

	clock.Advance(48 * time.Hour)
	require.NoError(t, store.CreateJob(ctx, newJob("live")))

	pruned, err := store.PruneFinished(ctx, clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, pruned)

	_, err = store.GetJob(ctx, "old")
	require.ErrorIs(t, err, scholar.ErrJobNotFound)
	_, err = store.GetJob(ctx, "live")
	require.NoError(t, err)
}

func TestGetJobSnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore(newFakeClock())
	require.NoError(t, store.CreateJob(ctx, scholar.Job{ID: "j1"}))
	require.NoError(t, store.UpdateJobStatus(ctx, "j1", scholar.JobStatusRunning, nil, nil))
	result := &scholar.ResultSummary{AuthorID: "a1", TotalRecords: 3, ChecklistURI: "memory://c"}
	require.NoError(t, store.UpdateJobStatus(ctx, "j1", scholar.JobStatusCompleted, nil, result))

	// Mutating the caller's result after the update must not reach the store.
	result.TotalRecords = 99

	snap, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, 3, snap.Result.TotalRecords)

	// Mutating a snapshot must not leak back either.
	snap.Result.TotalRecords = -1
	*snap.Started = snap.Started.Add(time.Hour)

	fresh, err := store.GetJob(ctx, "j1")
	require.NoError(t, err)
	require.Equal(t, 3, fresh.Result.TotalRecords)
	require.True(t, fresh.Started.Before(*snap.Started))
}

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "reports/j1/checklist.html", "text/html", strings.NewReader("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "memory://reports/j1/checklist.html", uri)

	content, ok := store.GetObject("reports/j1/checklist.html")
	require.True(t, ok)
	require.Equal(t, "<html></html>", string(content))

	_, ok = store.GetObject("missing")
	require.False(t, ok)
}
