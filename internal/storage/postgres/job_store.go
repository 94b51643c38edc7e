// Package postgres provides a Postgres-backed job store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/citescout/citescout/internal/scholar"
)

const schema = `
CREATE TABLE IF NOT EXISTS scrape_jobs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	stage        TEXT NOT NULL DEFAULT '',
	percent      INT  NOT NULL DEFAULT 0,
	ref_kind     TEXT NOT NULL,
	ref_value    TEXT NOT NULL,
	ref_raw      TEXT NOT NULL,
	max_papers   INT  NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ,
	updated_at   TIMESTAMPTZ NOT NULL,
	result       JSONB,
	error        JSONB
);
CREATE INDEX IF NOT EXISTS scrape_jobs_status_updated ON scrape_jobs (status, updated_at);
`

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore persists jobs in Postgres. Terminal-state immutability and
// monotonic progress are enforced in SQL so concurrent writers cannot
// race past them.
type JobStore struct {
	pool  dbPool
	clock scholar.Clock
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	MaxConns int32
}

// NewJobStore connects a pool and returns the store.
func NewJobStore(ctx context.Context, cfg Config, clock scholar.Clock) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool, clock: clock}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewJobStoreWithPool(pool dbPool, clock scholar.Clock) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool, clock: clock}, nil
}

// EnsureSchema creates the jobs table when missing.
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	s.pool.Close()
}

// CreateJob inserts a new job in queued status.
func (s *JobStore) CreateJob(ctx context.Context, job scholar.Job) error {
	now := s.clock.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrape_jobs (id, status, stage, percent, ref_kind, ref_value, ref_raw, max_papers, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID,
		string(scholar.JobStatusQueued),
		job.Stage,
		job.Percent,
		string(job.AuthorRef.Kind),
		job.AuthorRef.Value,
		job.AuthorRef.Raw,
		job.MaxPapers,
		job.Submitted,
		now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", scholar.ErrJobExists, job.ID)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus transitions a job unless it is already terminal.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status scholar.JobStatus,
	jobErr *scholar.JobError,
	result *scholar.ResultSummary,
) error {
	now := s.clock.Now()

	resultJSON, err := marshalNullable(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	errJSON, err := marshalNullable(jobErr)
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}
	if status == scholar.JobStatusCompleted {
		errJSON = nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE scrape_jobs SET
			status = $2,
			updated_at = $3,
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN $3 ELSE started_at END,
			finished_at = CASE WHEN $2 IN ('completed', 'failed') THEN $3 ELSE finished_at END,
			percent = CASE WHEN $2 = 'completed' THEN 100 ELSE percent END,
			result = CASE WHEN $2 IN ('completed', 'failed') THEN $4 ELSE result END,
			error = CASE WHEN $2 IN ('completed', 'failed') THEN $5 ELSE error END
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		jobID, string(status), now, resultJSON, errJSON,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrTerminal(ctx, jobID)
	}
	return nil
}

// UpdateJobProgress records stage and percentage; regressions clamp to the
// stored value.
func (s *JobStore) UpdateJobProgress(ctx context.Context, jobID string, stage string, percent int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scrape_jobs SET
			stage = $2,
			percent = GREATEST(percent, LEAST($3, 100)),
			updated_at = $4
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		jobID, stage, percent, s.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrTerminal(ctx, jobID)
	}
	return nil
}

// GetJob fetches a job snapshot by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (scholar.Job, error) {
	row := s.pool.QueryRow(ctx, selectJob+` WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scholar.Job{}, fmt.Errorf("%w: %s", scholar.ErrJobNotFound, jobID)
	}
	if err != nil {
		return scholar.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// StalledJobs returns running jobs whose last update predates the cutoff.
func (s *JobStore) StalledJobs(ctx context.Context, before time.Time) ([]scholar.Job, error) {
	rows, err := s.pool.Query(ctx, selectJob+` WHERE status = 'running' AND updated_at < $1`, before)
	if err != nil {
		return nil, fmt.Errorf("select stalled jobs: %w", err)
	}
	defer rows.Close()

	var jobs []scholar.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stalled job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stalled jobs: %w", err)
	}
	return jobs, nil
}

// PruneFinished deletes terminal jobs finished before the cutoff.
func (s *JobStore) PruneFinished(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM scrape_jobs WHERE status IN ('completed', 'failed') AND finished_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const selectJob = `
	SELECT id, status, stage, percent, ref_kind, ref_value, ref_raw, max_papers,
	       submitted_at, started_at, finished_at, updated_at, result, error
	FROM scrape_jobs`

func scanJob(row pgx.Row) (scholar.Job, error) {
	var (
		job        scholar.Job
		status     string
		kind       string
		resultJSON []byte
		errJSON    []byte
		started    *time.Time
		finish     *time.Time
	)
	err := row.Scan(
		&job.ID, &status, &job.Stage, &job.Percent,
		&kind, &job.AuthorRef.Value, &job.AuthorRef.Raw, &job.MaxPapers,
		&job.Submitted, &started, &finish, &job.UpdatedAt,
		&resultJSON, &errJSON,
	)
	if err != nil {
		return scholar.Job{}, err
	}
	job.Status = scholar.JobStatus(status)
	job.AuthorRef.Kind = scholar.RefKind(kind)
	job.Started = started
	job.Finished = finish
	if len(resultJSON) > 0 {
		job.Result = &scholar.ResultSummary{}
		if err := json.Unmarshal(resultJSON, job.Result); err != nil {
			return scholar.Job{}, fmt.Errorf("decode result: %w", err)
		}
	}
	if len(errJSON) > 0 {
		job.Error = &scholar.JobError{}
		if err := json.Unmarshal(errJSON, job.Error); err != nil {
			return scholar.Job{}, fmt.Errorf("decode error: %w", err)
		}
	}
	return job, nil
}

func (s *JobStore) missingOrTerminal(ctx context.Context, jobID string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM scrape_jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", scholar.ErrJobNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("check job status: %w", err)
	}
	return fmt.Errorf("%w: %s is %s", scholar.ErrJobTerminal, jobID, status)
}

func marshalNullable(v any) ([]byte, error) {
	switch val := v.(type) {
	case *scholar.ResultSummary:
		if val == nil {
			return nil, nil
		}
	case *scholar.JobError:
		if val == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
