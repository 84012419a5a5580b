// Package api hosts the HTTP server, middleware, and handlers for case-record
// acquisition. Notable routes:
//   - POST /get_case_details_status for a record with an optional cutoff.
//   - POST /api/update-cnr-details for a record filtered by a required cutoff.
//   - GET /health, /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
package api
