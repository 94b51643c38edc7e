// Package progress defines the event stream emitted by scrape workers and
// the hub that batches it out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/citescout/citescout/internal/scholar"
)

// Kind denotes the type of milestone represented by an Event.
type Kind string

// Supported event kinds.
const (
	KindJobStart Kind = "JOB_START"
	KindStage    Kind = "STAGE"
	KindPage     Kind = "PAGE_FETCHED"
	KindJobDone  Kind = "JOB_DONE"
	KindJobError Kind = "JOB_ERROR"
)

// Pipeline stage names reported on STAGE events.
const (
	StageResolving  = "resolving"
	StageFetching   = "fetching"
	StageProcessing = "processing"
	StageRendering  = "rendering"
)

// Event captures a single milestone of scrape pipeline progress.
type Event struct {
	// JobID identifies the job run.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind denotes which milestone occurred.
	Kind Kind
	// Stage names the pipeline stage on STAGE events.
	Stage string
	// Percent is the overall completion on STAGE events.
	Percent int
	// Records carries the running pool size on PAGE_FETCHED events and
	// the final record count on JOB_DONE.
	Records int
	// Code classifies the failure on JOB_ERROR events.
	Code scholar.ErrorCode
	// Dur captures wall time for terminal events.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindJobStart, KindPage, KindJobDone:
	case KindStage:
		if e.Stage == "" {
			return errors.New("stage event requires a stage name")
		}
		if e.Percent < 0 || e.Percent > 100 {
			return fmt.Errorf("percent %d out of range", e.Percent)
		}
	case KindJobError:
		if e.Code == "" {
			return errors.New("error event requires a code")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
