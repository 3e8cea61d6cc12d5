// Package server exposes the HTTP API: session and meeting control,
// live audio ingestion, chunked recording upload, export jobs, and
// monitoring endpoints.
package server
