package transcription

import "context"

// Word is one recognized word with offsets in seconds relative to the
// start of the transcribed audio.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is the outcome of transcribing one piece of audio
type Result struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration"`
	Words    []Word  `json:"words,omitempty"`
}

// ProgressFunc reports transcription progress as a fraction in [0, 1]
// with a human-readable description of the current step.
type ProgressFunc func(fraction float64, message string)

// Engine transcribes a complete audio payload. format is the container
// extension of the payload, e.g. "wav" or "webm".
type Engine interface {
	Transcribe(ctx context.Context, audio []byte, format string) (*Result, error)
	Name() string
	Close() error
}
