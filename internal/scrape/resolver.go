// Package scrape resolves author references and assembles the raw
// publication pool from the upstream source.
package scrape

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/citescout/citescout/internal/scholar"
)

// DefaultSearchLimit caps how many name-search candidates are considered.
const DefaultSearchLimit = 5

// Resolver turns a parsed author reference into a concrete upstream author.
type Resolver struct {
	source      scholar.Source
	searchLimit int
	logger      *zap.Logger
}

// NewResolver builds a Resolver. A non-positive searchLimit falls back to
// DefaultSearchLimit.
func NewResolver(source scholar.Source, searchLimit int, logger *zap.Logger) *Resolver {
	if searchLimit <= 0 {
		searchLimit = DefaultSearchLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, searchLimit: searchLimit, logger: logger}
}

// Resolve maps ref to an upstream author. Numeric ids and profile URLs that
// carry an id are fetched directly; names go through search, where the
// candidate with the strictly highest citation count wins. A tie at the top
// is ambiguous.
func (r *Resolver) Resolve(ctx context.Context, ref scholar.AuthorRef) (scholar.RawAuthor, error) {
	switch ref.Kind {
	case scholar.RefNumericID, scholar.RefProfileURL:
		return r.source.Author(ctx, ref.Value)
	case scholar.RefName:
		return r.resolveName(ctx, ref.Value)
	default:
		return scholar.RawAuthor{}, fmt.Errorf("unsupported author reference kind %q", ref.Kind)
	}
}

func (r *Resolver) resolveName(ctx context.Context, name string) (scholar.RawAuthor, error) {
	candidates, err := r.source.SearchAuthors(ctx, name, r.searchLimit)
	if err != nil {
		return scholar.RawAuthor{}, err
	}
	switch len(candidates) {
	case 0:
		return scholar.RawAuthor{}, fmt.Errorf("%w: no author matches %q", scholar.ErrNotFound, name)
	case 1:
		return candidates[0], nil
	}

	best := candidates[0]
	tied := false
	for _, c := range candidates[1:] {
		switch {
		case c.CitationCount > best.CitationCount:
			best = c
			tied = false
		case c.CitationCount == best.CitationCount:
			tied = true
		}
	}
	if tied {
		return scholar.RawAuthor{}, fmt.Errorf("%w: %d candidates for %q with no clear leader", scholar.ErrAmbiguous, len(candidates), name)
	}
	r.logger.Debug("resolved name by citation count",
		zap.String("name", name),
		zap.String("author_id", best.AuthorID),
		zap.Int("candidates", len(candidates)),
	)
	return best, nil
}
