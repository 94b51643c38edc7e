package scrape

import (
	"context"

	"go.uber.org/zap"

	"github.com/citescout/citescout/internal/scholar"
)

// Fetch defaults. The pool is deliberately larger than the request so
// ranking by citations happens over a meaningful sample before truncation:
// the upstream papers endpoint has no citation sort, so the fetcher collects
// a multiple of the requested count and ranks locally.
const (
	DefaultPageSize    = 100
	DefaultFetchBuffer = 40

	poolMultiplier = 10
	poolFloor      = 100
	poolCap        = 500
)

// Pool is the raw publication pool collected for one author.
type Pool struct {
	Papers []scholar.RawPaper
	// Stale is set when any page was served from an expired cache entry.
	Stale bool
	// Exhausted is set when the upstream ran out of pages before the
	// target pool size was reached.
	Exhausted bool
	// Incomplete is set when pagination stopped on an upstream failure
	// after at least one page had been collected. LastErr carries the
	// failure for diagnostics.
	Incomplete bool
	LastErr    error
}

// PagedFetcher walks the upstream pagination until the target pool size is
// reached or the source is exhausted.
type PagedFetcher struct {
	source   scholar.Source
	pageSize int
	buffer   int
	logger   *zap.Logger
}

// NewPagedFetcher builds a PagedFetcher. Non-positive pageSize or buffer
// take the package defaults.
func NewPagedFetcher(source scholar.Source, pageSize, buffer int, logger *zap.Logger) *PagedFetcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if buffer <= 0 {
		buffer = DefaultFetchBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PagedFetcher{source: source, pageSize: pageSize, buffer: buffer, logger: logger}
}

// FetchPool collects publications for authorID until the pool reaches the
// ranking target or pagination ends. The target is ten times the larger of
// maxPapers and the fetch buffer, clamped to [100, 500], so the local
// citation ranking sees far more of the corpus than the requested count.
// onPage, when non-nil, is invoked after every page with the running pool
// size and the target, for progress reporting. An upstream failure on the
// first page is returned as an error; a failure mid-pagination yields the
// partial pool with Incomplete set.
func (f *PagedFetcher) FetchPool(ctx context.Context, authorID string, maxPapers int, onPage func(fetched, target int)) (Pool, error) {
	target := poolTarget(maxPapers, f.buffer)

	var pool Pool
	offset := 0
	for {
		page, err := f.source.Papers(ctx, authorID, offset, f.pageSize)
		if err != nil {
			if len(pool.Papers) == 0 {
				return Pool{}, err
			}
			f.logger.Warn("pagination stopped early, keeping partial pool",
				zap.String("author_id", authorID),
				zap.Int("collected", len(pool.Papers)),
				zap.Error(err),
			)
			pool.Incomplete = true
			pool.LastErr = err
			return pool, nil
		}
		pool.Papers = append(pool.Papers, page.Items...)
		if page.Stale {
			pool.Stale = true
		}
		if onPage != nil {
			onPage(len(pool.Papers), target)
		}
		if page.Next == nil || len(page.Items) == 0 {
			if len(pool.Papers) < target {
				pool.Exhausted = true
			}
			return pool, nil
		}
		if len(pool.Papers) >= target {
			return pool, nil
		}
		offset = *page.Next
	}
}

func poolTarget(maxPapers, buffer int) int {
	base := maxPapers
	if buffer > base {
		base = buffer
	}
	target := base * poolMultiplier
	if target < poolFloor {
		target = poolFloor
	}
	if target > poolCap {
		target = poolCap
	}
	return target
}
