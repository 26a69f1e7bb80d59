// Package api serves operator endpoints while a crawl runs:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/crawl for the live crawl status as JSON.
package api
