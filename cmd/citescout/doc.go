// Package main hosts the citescout service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, artifact, and
//     scrape-job endpoints. Submissions are parsed into an author reference,
//     persisted via the JobStore, and enqueued without blocking; a full queue
//     surfaces as 503 backpressure.
//   - Dispatcher & queue: jobs flow through a bounded in-memory queue sized by
//     config.Scrape.QueueDepth and fan out to a fixed worker pool sized by
//     config.Scrape.Workers. A housekeeping loop fails stalled jobs and prunes
//     finished ones past retention.
//   - Scrape pipeline: workers resolve the author against the Semantic Scholar
//     Graph API (numeric id, profile URL, or name search with a
//     highest-citation tie-break), page through the publication list, then
//     normalize, deduplicate, and rank records by citation count. Optional
//     headless Chrome enrichment discovers PDF links for top-ranked records.
//   - Resilience: upstream calls go through a retry policy with exponential
//     backoff and jitter plus a TTL response cache; after retry exhaustion an
//     expired cache entry within the stale window is served and the result is
//     flagged partial.
//   - Persistence & fanout: rendered checklist and debug artifacts are written
//     to the configured BlobStore (memory/local/GCS). Job state lives in
//     memory or Postgres, and a compact Pub/Sub notification is published per
//     finished job when a topic is configured. Progress events are batched
//     through a hub into log and Prometheus sinks.
//   - Configuration & plumbing: Viper populates config from env/files with the
//     CITESCOUT prefix; zap provides structured logging; Prometheus metrics
//     are exported on /metrics.
//
// Run locally: go run ./cmd/citescout -config config.yaml (or rely solely on
// env overrides). The process reacts to SIGTERM with a graceful drain of the
// HTTP server and the worker pool.
package main
