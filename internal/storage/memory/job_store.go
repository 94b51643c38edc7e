// Package memory provides in-memory stores for development and testing.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/citescout/citescout/internal/scholar"
)

// JobStore keeps jobs in a map and enforces the job state machine:
// queued -> running -> completed|failed. Terminal jobs are immutable and
// progress percentages never decrease.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]scholar.Job
	clock scholar.Clock
}

// NewJobStore constructs a JobStore.
func NewJobStore(clock scholar.Clock) *JobStore {
	return &JobStore{
		jobs:  make(map[string]scholar.Job),
		clock: clock,
	}
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job scholar.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("%w: %s", scholar.ErrJobExists, job.ID)
	}
	job.Status = scholar.JobStatusQueued
	job.UpdatedAt = s.clock.Now()
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus transitions a job, stamping started/finished times. The
// result is attached on completion and the error on failure.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status scholar.JobStatus,
	jobErr *scholar.JobError,
	result *scholar.ResultSummary,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", scholar.ErrJobNotFound, jobID)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", scholar.ErrJobTerminal, jobID, job.Status)
	}
	now := s.clock.Now()
	job.Status = status
	job.UpdatedAt = now
	if status == scholar.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.IsTerminal() {
		job.Finished = pointerTime(now)
		job.Result = copyResult(result)
		job.Error = copyJobError(jobErr)
		if status == scholar.JobStatusCompleted {
			job.Percent = 100
			job.Error = nil
		}
	}
	s.jobs[jobID] = job
	return nil
}

// UpdateJobProgress records a stage and percentage for a running job.
// A percentage below the current one is clamped rather than rejected.
func (s *JobStore) UpdateJobProgress(_ context.Context, jobID string, stage string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", scholar.ErrJobNotFound, jobID)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", scholar.ErrJobTerminal, jobID, job.Status)
	}
	if percent > 100 {
		percent = 100
	}
	if percent > job.Percent {
		job.Percent = percent
	}
	job.Stage = stage
	job.UpdatedAt = s.clock.Now()
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a snapshot of a job by ID. The snapshot owns its pointer
// fields, so mutating it never touches store state.
func (s *JobStore) GetJob(_ context.Context, jobID string) (scholar.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scholar.Job{}, fmt.Errorf("%w: %s", scholar.ErrJobNotFound, jobID)
	}
	return snapshot(job), nil
}

// StalledJobs returns running jobs whose last update predates the cutoff.
func (s *JobStore) StalledJobs(_ context.Context, before time.Time) ([]scholar.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stalled []scholar.Job
	for _, job := range s.jobs {
		if job.Status == scholar.JobStatusRunning && job.UpdatedAt.Before(before) {
			stalled = append(stalled, snapshot(job))
		}
	}
	return stalled, nil
}

// PruneFinished evicts terminal jobs finished before the cutoff.
func (s *JobStore) PruneFinished(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, job := range s.jobs {
		if job.Status.IsTerminal() && job.Finished != nil && job.Finished.Before(before) {
			delete(s.jobs, id)
			pruned++
		}
	}
	return pruned, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

// snapshot copies a job's pointer fields so callers and the store never
// share mutable state.
func snapshot(job scholar.Job) scholar.Job {
	if job.Started != nil {
		job.Started = pointerTime(*job.Started)
	}
	if job.Finished != nil {
		job.Finished = pointerTime(*job.Finished)
	}
	job.Result = copyResult(job.Result)
	job.Error = copyJobError(job.Error)
	return job
}

func copyResult(r *scholar.ResultSummary) *scholar.ResultSummary {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

func copyJobError(e *scholar.JobError) *scholar.JobError {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}
