// Package main hosts the jobcore daemon entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, the operation
//     catalog, and job management endpoints. Submissions name a catalog
//     operation and its arguments; arity is checked before anything is queued.
//   - Scheduler: jobs flow through a bounded in-memory queue sized by
//     scheduler.queue_depth to a fixed worker pool sized by scheduler.workers.
//     Cancellation is cooperative through each job's progress token.
//   - Results: operations stream partial results to a sink and return a final
//     value. Jobs submitted with "deliver" get their outcome on the UI loop,
//     right away or, for slow runs, behind a kept-job action.
//   - Persistence and fanout: runs are recorded in memory, Postgres or SQLite;
//     completion messages go to Pub/Sub, a Redis stream, or an in-memory
//     publisher. Progress events are batched by a hub and fanned out to log,
//     Prometheus and run-store sinks.
//   - Configuration and plumbing: Viper reads config files and JOBCORE_*
//     environment variables (a .env file is loaded first); zap provides
//     structured logging; Prometheus metrics are served on /metrics;
//     OpenTelemetry spans wrap each job run.
//
// Quick checklist:
//   - Run locally: go run ./cmd/jobsd -config config.yaml (or rely on env
//     overrides such as JOBCORE_SERVER_PORT and JOBCORE_STORE_BACKEND).
//   - Submit: curl -XPOST localhost:8080/v1/jobs -d
//     '{"operation":"math.sum","args":[{"value":1},{"value":2}]}'
//   - SIGINT/SIGTERM stops the HTTP server, cancels outstanding jobs and
//     flushes the progress hub.
package main
