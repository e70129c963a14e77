// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/operations lists the catalog.
//   - POST /v1/jobs submits a job; /v1/jobs/{job_id}/... reads status and
//     results, joins and cancels. Jobs the scheduler has evicted are
//     answered from the run store.
//   - POST /v1/families/{family}/cancel cancels a job family.
//   - GET /v1/kept and POST /v1/kept/{job_id}/invoke expose deferred results.
//   - GET /v1/inbox lists results delivered on the UI loop.
//   - GET /v1/runs and /v1/runs/{job_id} read persisted runs via RunsHandler.
package api
