// Package api defines the wire types of the PolicyQA HTTP API.
//
// # API Overview
//
// The API is a thin layer over the policy service, meant for the application
// that owns authentication and file uploads:
//   - POST /api/v1/policies/index        index one uploaded file
//   - POST /api/v1/policies/index-dir    index every file in a directory
//   - POST /api/v1/policies/ask          answer a question with chat history
//   - GET  /api/v1/policies/status       index readiness and size
//   - GET  /api/v1/policies/suggestions  example questions
//
// Health endpoints (/health, /healthz, /ready, /version) and Prometheus
// metrics (/metrics on the metrics port) are served alongside.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Errors
//
// Every error response carries a stable code, for example INDEX_NOT_READY (409),
// INGESTION_FAILURE (422) or TRANSIENT_CAPABILITY_FAILURE (503, retryable).
package api
