package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/citescout/citescout/internal/progress"
	"github.com/citescout/citescout/internal/scholar"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{JobID: "job-1", TS: now, Kind: progress.KindJobStart},
		{JobID: "job-1", TS: now, Kind: progress.KindStage, Stage: progress.StageFetching, Percent: 20},
		{JobID: "job-1", TS: now, Kind: progress.KindPage, Records: 100},
		{JobID: "job-1", TS: now, Kind: progress.KindJobDone, Records: 10, Dur: 12 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.stageEvents.WithLabelValues(progress.StageFetching)))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesFetched))
	require.Equal(t, 10.0, testutil.ToFloat64(sink.recordsRanked))
	require.Equal(t, 1, testutil.CollectAndCount(sink.jobRuntime, "citescout_job_runtime_seconds"))
}

func TestPrometheusSinkFailureLabels(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{JobID: "job-2", TS: now, Kind: progress.KindJobStart},
		{JobID: "job-2", TS: now, Kind: progress.KindJobError, Code: scholar.ErrCodeRateLimited, Dur: 3 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues(string(scholar.ErrCodeRateLimited))))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
}

func TestPrometheusSinkRunningGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "a", TS: now, Kind: progress.KindJobStart},
		{JobID: "b", TS: now, Kind: progress.KindJobStart},
		{JobID: "a", TS: now, Kind: progress.KindJobStart}, // duplicate start counted once
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "a", TS: now, Kind: progress.KindJobDone},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsRunning))
}
