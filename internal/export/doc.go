// Package export runs the transcribe-summarize-write pipeline as a
// background job with polled progress.
package export
