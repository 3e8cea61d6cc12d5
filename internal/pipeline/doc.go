// Package pipeline drives live audio through voice activity detection,
// adaptive buffering, and streaming transcription into stored transcript
// segments.
package pipeline
