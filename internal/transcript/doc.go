// Package transcript groups word-level transcription output into
// readable display segments.
package transcript
