// Package scholar defines core types shared across subsystems.
package scholar

import (
	"strconv"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// RefKind distinguishes the forms an author reference can take.
type RefKind string

// Supported author reference kinds.
const (
	RefNumericID  RefKind = "numeric_id"
	RefProfileURL RefKind = "profile_url"
	RefName       RefKind = "name"
)

// AuthorRef is a parsed, immutable client-supplied author reference.
type AuthorRef struct {
	Kind RefKind `json:"kind"`
	// Value holds the numeric id, the name extracted from a profile URL,
	// or the free-text name, depending on Kind.
	Value string `json:"value"`
	// Raw preserves the original client input for diagnostics.
	Raw string `json:"raw"`
}

// RawAuthor is the upstream-shaped author payload.
type RawAuthor struct {
	AuthorID      string `json:"authorId"`
	Name          string `json:"name"`
	CitationCount int    `json:"citationCount"`
	PaperCount    int    `json:"paperCount"`
}

// RawPaperAuthor is a single author entry on an upstream paper record.
type RawPaperAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

// RawPaper is the upstream-shaped publication payload, unvalidated. It is
// owned by the paged fetcher during one page's processing and converted to a
// PublicationRecord by the normalizer.
type RawPaper struct {
	PaperID       string            `json:"paperId"`
	Title         string            `json:"title"`
	Year          *int              `json:"year"`
	Venue         string            `json:"venue"`
	CitationCount *int              `json:"citationCount"`
	Authors       []RawPaperAuthor  `json:"authors"`
	ExternalIDs   map[string]string `json:"externalIds"`
	OpenAccessPDF string            `json:"-"`
}

// PapersPage is one page of upstream publication records.
type PapersPage struct {
	Items  []RawPaper
	Offset int
	// Next is the offset of the following page, or nil when the source is
	// exhausted.
	Next *int
	// Stale is set when the resilience layer served the page from an
	// expired cache entry after retry exhaustion.
	Stale bool
}

// PublicationRecord is the canonical, immutable record shape.
type PublicationRecord struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Venue         string   `json:"venue,omitempty"`
	Year          *int     `json:"year,omitempty"`
	CitationCount int      `json:"citation_count"`
	DOI           string   `json:"doi,omitempty"`
	PDFURL        string   `json:"pdf_url,omitempty"`
	SourceID      string   `json:"source_id,omitempty"`
}

// DedupKey returns the identity used for deduplication: the DOI when present,
// otherwise the lowercased title joined with the publication year.
func (r PublicationRecord) DedupKey() string {
	if r.DOI != "" {
		return "doi:" + r.DOI
	}
	year := ""
	if r.Year != nil {
		year = strconv.Itoa(*r.Year)
	}
	return "ty:" + strings.ToLower(strings.TrimSpace(r.Title)) + "|" + year
}

// PopulatedFields counts filled optional fields, used to pick the richer of
// two duplicate records.
func (r PublicationRecord) PopulatedFields() int {
	n := 0
	if len(r.Authors) > 0 {
		n++
	}
	if r.Venue != "" {
		n++
	}
	if r.Year != nil {
		n++
	}
	if r.DOI != "" {
		n++
	}
	if r.PDFURL != "" {
		n++
	}
	if r.CitationCount > 0 {
		n++
	}
	return n
}

// ResultSummary is attached to a job once it completes.
type ResultSummary struct {
	AuthorID     string `json:"author_id"`
	AuthorName   string `json:"author_name,omitempty"`
	TotalRecords int    `json:"total_records"`
	// Partial is set when pagination was exhausted before reaching the
	// requested count, or when stale cache data was served.
	Partial      bool   `json:"partial,omitempty"`
	Warning      string `json:"warning,omitempty"`
	ChecklistURI string `json:"checklist_uri"`
	DebugURI     string `json:"debug_uri,omitempty"`
}

// JobError carries the classified failure attached to a failed job.
type JobError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Job represents the metadata tracked for each submitted scrape request.
// Snapshots returned by a JobStore are copies; mutation happens only through
// store methods.
type Job struct {
	ID        string         `json:"id"`
	Status    JobStatus      `json:"status"`
	Stage     string         `json:"stage,omitempty"`
	Percent   int            `json:"percentage"`
	AuthorRef AuthorRef      `json:"author_ref"`
	MaxPapers int            `json:"max_papers"`
	Submitted time.Time      `json:"submitted_at"`
	Started   *time.Time     `json:"started_at,omitempty"`
	Finished  *time.Time     `json:"finished_at,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
	Result    *ResultSummary `json:"result,omitempty"`
	Error     *JobError      `json:"error,omitempty"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Ref       AuthorRef
	MaxPapers int
	Submitted int64
}

// Artifacts holds the rendered output locations for a completed job.
type Artifacts struct {
	ChecklistURI string
	DebugURI     string
}
