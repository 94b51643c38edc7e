package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citescout/citescout/internal/scholar"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func validEvent(kind Kind) Event {
	return Event{
		JobID: "job-1",
		TS:    time.Now().UTC(),
		Kind:  kind,
		Stage: StageFetching,
	}
}

func TestHubFlushesOnClose(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: time.Hour}, sink)

	hub.Emit(validEvent(KindJobStart))
	hub.Emit(validEvent(KindStage))
	hub.Emit(validEvent(KindJobDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 3, sink.total())
	require.True(t, sink.closed)
}

func TestHubFlushesOnBatchSize(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchEvents: 2, MaxBatchWait: time.Hour}, sink)
	defer hub.Close(context.Background()) //nolint:errcheck // test teardown

	hub.Emit(validEvent(KindJobStart))
	hub.Emit(validEvent(KindStage))

	require.Eventually(t, func() bool { return sink.total() == 2 }, time.Second, 5*time.Millisecond)
}

func TestHubFlushesOnTimer(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 20 * time.Millisecond}, sink)
	defer hub.Close(context.Background()) //nolint:errcheck // test teardown

	hub.Emit(validEvent(KindJobStart))
	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{Kind: KindJobStart})                                // missing job id and timestamp
	hub.Emit(Event{JobID: "j", TS: time.Now(), Kind: Kind("BOGUS")})   // unknown kind
	hub.Emit(Event{JobID: "j", TS: time.Now(), Kind: KindStage})       // stage name missing
	hub.Emit(Event{JobID: "j", TS: time.Now(), Kind: KindJobError})    // code missing

	require.NoError(t, hub.Close(context.Background()))
	require.Zero(t, sink.total())
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent(KindJobStart))
	require.Zero(t, sink.total())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	ok := Event{JobID: "j", TS: time.Now(), Kind: KindStage, Stage: StageResolving, Percent: 5}
	require.NoError(t, ok.Validate())

	badPercent := ok
	badPercent.Percent = 101
	require.Error(t, badPercent.Validate())

	errEvt := Event{JobID: "j", TS: time.Now(), Kind: KindJobError, Code: scholar.ErrCodeNotFound}
	require.NoError(t, errEvt.Validate())
}
