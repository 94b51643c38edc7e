package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/citescout/citescout/internal/progress"
)

// PrometheusSink exports scrape progress metrics. It owns all collectors for
// jobs started/completed/running, per-stage transitions, and fetched pages.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec
	stageEvents   *prometheus.CounterVec
	pagesFetched  prometheus.Counter
	recordsRanked prometheus.Counter

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "citescout_jobs_started_total",
			Help: "Total scrape jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citescout_jobs_completed_total",
			Help: "Total scrape jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "citescout_jobs_running",
			Help: "Current number of running scrape jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citescout_job_runtime_seconds",
			Help:    "Wall time per finished scrape job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		stageEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citescout_stage_transitions_total",
			Help: "Pipeline stage transitions partitioned by stage.",
		}, []string{"stage"}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "citescout_pages_fetched_total",
			Help: "Upstream publication pages fetched.",
		}),
		recordsRanked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "citescout_records_ranked_total",
			Help: "Publication records delivered in completed jobs.",
		}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.stageEvents,
		s.pagesFetched,
		s.recordsRanked,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Kind {
	case progress.KindJobStart:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.KindStage:
		s.stageEvents.WithLabelValues(evt.Stage).Inc()
	case progress.KindPage:
		s.pagesFetched.Inc()
	case progress.KindJobDone:
		s.jobsCompleted.WithLabelValues("success").Inc()
		s.recordsRanked.Add(float64(evt.Records))
		s.observeRuntime(evt, "success")
		if s.tracker.complete(evt.JobID) {
			s.jobsRunning.Dec()
		}
	case progress.KindJobError:
		s.jobsCompleted.WithLabelValues(string(evt.Code)).Inc()
		s.observeRuntime(evt, "error")
		if s.tracker.complete(evt.JobID) {
			s.jobsRunning.Dec()
		}
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
