// Package worker executes the scrape pipeline for queued jobs.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/citescout/citescout/internal/normalize"
	"github.com/citescout/citescout/internal/progress"
	"github.com/citescout/citescout/internal/render"
	"github.com/citescout/citescout/internal/scholar"
	"github.com/citescout/citescout/internal/scrape"
)

// Pipeline progress checkpoints. Fetching advances proportionally between
// its bounds as pages arrive.
const (
	percentResolving  = 5
	percentFetchStart = 10
	percentFetchEnd   = 40
	percentProcessing = 60
	percentEnriched   = 90
	percentRendering  = 95
)

// AuthorResolver maps an author reference to an upstream author.
type AuthorResolver interface {
	Resolve(ctx context.Context, ref scholar.AuthorRef) (scholar.RawAuthor, error)
}

// PoolFetcher collects the raw publication pool for an author.
type PoolFetcher interface {
	FetchPool(ctx context.Context, authorID string, maxPapers int, onPage func(fetched, target int)) (scrape.Pool, error)
}

// ArtifactRenderer persists the job artifacts.
type ArtifactRenderer interface {
	Render(ctx context.Context, report render.Report) (scholar.Artifacts, error)
}

// Config controls Worker behavior.
type Config struct {
	// CompletionTopic receives a message per finished job when set.
	CompletionTopic string
	// EnrichPDFs enables headless PDF discovery for records without one.
	EnrichPDFs bool
	// MaxEnrich caps how many records are enriched per job.
	MaxEnrich int
}

// Worker consumes queue items and executes the scrape pipeline: resolve,
// fetch, normalize, rank, enrich, render.
type Worker struct {
	queue     scholar.Queue
	jobStore  scholar.JobStore
	resolver  AuthorResolver
	fetcher   PoolFetcher
	finder    scholar.PDFFinder
	renderer  ArtifactRenderer
	publisher scholar.Publisher
	emitter   progress.Emitter
	clock     scholar.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue scholar.Queue,
	jobStore scholar.JobStore,
	resolver AuthorResolver,
	fetcher PoolFetcher,
	finder scholar.PDFFinder,
	renderer ArtifactRenderer,
	publisher scholar.Publisher,
	emitter progress.Emitter,
	clock scholar.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxEnrich <= 0 {
		cfg.MaxEnrich = 5
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		resolver:  resolver,
		fetcher:   fetcher,
		finder:    finder,
		renderer:  renderer,
		publisher: publisher,
		emitter:   emitter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item scholar.QueueItem) {
	start := w.clock.Now()
	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, scholar.JobStatusRunning, nil, nil); err != nil {
		w.logger.Error("job start transition failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.emit(progress.Event{JobID: item.JobID, Kind: progress.KindJobStart})

	summary, err := w.runPipeline(ctx, item)
	if err != nil {
		w.failJob(ctx, item.JobID, err, start)
		return
	}

	if err := w.jobStore.UpdateJobStatus(ctx, item.JobID, scholar.JobStatusCompleted, nil, summary); err != nil {
		w.logger.Error("job complete transition failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.emit(progress.Event{
		JobID:   item.JobID,
		Kind:    progress.KindJobDone,
		Records: summary.TotalRecords,
		Dur:     w.clock.Now().Sub(start),
	})
	w.publishCompletion(ctx, item.JobID, summary)
}

func (w *Worker) runPipeline(ctx context.Context, item scholar.QueueItem) (*scholar.ResultSummary, error) {
	w.setProgress(ctx, item.JobID, progress.StageResolving, percentResolving)
	author, err := w.resolver.Resolve(ctx, item.Ref)
	if err != nil {
		return nil, fmt.Errorf("resolve author: %w", err)
	}

	w.setProgress(ctx, item.JobID, progress.StageFetching, percentFetchStart)
	pool, err := w.fetcher.FetchPool(ctx, author.AuthorID, item.MaxPapers, func(fetched, target int) {
		w.emit(progress.Event{JobID: item.JobID, Kind: progress.KindPage, Records: fetched})
		w.setProgress(ctx, item.JobID, progress.StageFetching, fetchPercent(fetched, target))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch publications: %w", err)
	}

	w.setProgress(ctx, item.JobID, progress.StageProcessing, percentFetchEnd)
	normalized := normalize.Pool(pool.Papers)
	deduped := normalize.Dedup(normalized.Records)
	ranked := normalize.Rank(deduped, item.MaxPapers)
	w.setProgress(ctx, item.JobID, progress.StageProcessing, percentProcessing)

	w.enrichPDFs(ctx, item.JobID, ranked)
	w.setProgress(ctx, item.JobID, progress.StageProcessing, percentEnriched)

	w.setProgress(ctx, item.JobID, progress.StageRendering, percentRendering)
	partial := pool.Stale || pool.Incomplete || (pool.Exhausted && len(ranked) < item.MaxPapers)
	warning := poolWarning(pool, len(ranked), item.MaxPapers)
	artifacts, err := w.renderer.Render(ctx, render.Report{
		JobID:       item.JobID,
		AuthorID:    author.AuthorID,
		AuthorName:  author.Name,
		Records:     ranked,
		Dropped:     normalized.Dropped,
		Partial:     partial,
		Warning:     warning,
		GeneratedAt: w.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("render artifacts: %w", err)
	}

	return &scholar.ResultSummary{
		AuthorID:     author.AuthorID,
		AuthorName:   author.Name,
		TotalRecords: len(ranked),
		Partial:      partial,
		Warning:      warning,
		ChecklistURI: artifacts.ChecklistURI,
		DebugURI:     artifacts.DebugURI,
	}, nil
}

// enrichPDFs is best effort: a finder failure leaves the record without a
// link and never fails the job.
func (w *Worker) enrichPDFs(ctx context.Context, jobID string, records []scholar.PublicationRecord) {
	if !w.cfg.EnrichPDFs || w.finder == nil {
		return
	}
	enriched := 0
	for i := range records {
		if records[i].PDFURL != "" || records[i].SourceID == "" {
			continue
		}
		if enriched >= w.cfg.MaxEnrich {
			return
		}
		link, err := w.finder.Find(ctx, records[i].SourceID, records[i].Title)
		if err != nil {
			w.logger.Debug("pdf discovery failed",
				zap.String("job_id", jobID),
				zap.String("paper_id", records[i].SourceID),
				zap.Error(err),
			)
			continue
		}
		if link != "" {
			records[i].PDFURL = link
		}
		enriched++
	}
}

func (w *Worker) failJob(ctx context.Context, jobID string, err error, start time.Time) {
	jobErr := scholar.NewJobError(err)
	w.logger.Warn("scrape job failed",
		zap.String("job_id", jobID),
		zap.String("code", string(jobErr.Code)),
		zap.Error(err),
	)
	if updateErr := w.jobStore.UpdateJobStatus(ctx, jobID, scholar.JobStatusFailed, jobErr, nil); updateErr != nil {
		w.logger.Error("job fail transition failed", zap.String("job_id", jobID), zap.Error(updateErr))
	}
	w.emit(progress.Event{
		JobID: jobID,
		Kind:  progress.KindJobError,
		Code:  jobErr.Code,
		Note:  jobErr.Message,
		Dur:   w.clock.Now().Sub(start),
	})
}

func (w *Worker) publishCompletion(ctx context.Context, jobID string, summary *scholar.ResultSummary) {
	if w.publisher == nil || w.cfg.CompletionTopic == "" {
		return
	}
	payload := map[string]any{
		"job_id":        jobID,
		"author_id":     summary.AuthorID,
		"total_records": summary.TotalRecords,
		"checklist_uri": summary.ChecklistURI,
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.CompletionTopic, payload); err != nil {
		w.logger.Warn("completion publish failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) setProgress(ctx context.Context, jobID, stage string, percent int) {
	if err := w.jobStore.UpdateJobProgress(ctx, jobID, stage, percent); err != nil {
		w.logger.Debug("progress update failed", zap.String("job_id", jobID), zap.Error(err))
	}
	w.emit(progress.Event{JobID: jobID, Kind: progress.KindStage, Stage: stage, Percent: percent})
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	evt.TS = w.clock.Now()
	w.emitter.Emit(evt)
}

func fetchPercent(fetched, target int) int {
	if target <= 0 {
		return percentFetchEnd
	}
	span := percentFetchEnd - percentFetchStart
	p := percentFetchStart + span*fetched/target
	if p > percentFetchEnd {
		p = percentFetchEnd
	}
	return p
}

func poolWarning(pool scrape.Pool, ranked, requested int) string {
	var parts []string
	if pool.Stale {
		parts = append(parts, "some publication data was served from an expired cache entry")
	}
	if pool.Incomplete && pool.LastErr != nil {
		parts = append(parts, fmt.Sprintf("pagination stopped early: %v", pool.LastErr))
	}
	if pool.Exhausted && ranked < requested {
		parts = append(parts, fmt.Sprintf("author has only %d publications, %d were requested", ranked, requested))
	}
	return strings.Join(parts, "; ")
}
