package transcript

import (
	"strings"

	"github.com/fatygaoscar/sidekick/internal/transcription"
)

// Segmentation limits. A segment closes on a sentence-final token, or
// when it reaches the word cap or the time span cap, whichever first.
const (
	MaxSegmentWords = 24
	MaxSegmentSpan  = 14.0 // seconds
)

// Segment is one display unit of the transcript
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Reconcile groups timestamped words into segments. Whitespace-only
// tokens are dropped. When the result carries no word timestamps at
// all, the full text becomes a single segment spanning the whole
// duration.
func Reconcile(result *transcription.Result) []Segment {
	if result == nil {
		return nil
	}

	words := make([]transcription.Word, 0, len(result.Words))
	for _, word := range result.Words {
		if strings.TrimSpace(word.Text) == "" {
			continue
		}
		words = append(words, word)
	}

	if len(words) == 0 {
		text := strings.TrimSpace(result.Text)
		if text == "" {
			return nil
		}
		return []Segment{{Start: 0, End: result.Duration, Text: text}}
	}

	var segments []Segment
	var current []transcription.Word

	flush := func() {
		if len(current) == 0 {
			return
		}
		parts := make([]string, len(current))
		for i, word := range current {
			parts[i] = strings.TrimSpace(word.Text)
		}
		segments = append(segments, Segment{
			Start: current[0].Start,
			End:   current[len(current)-1].End,
			Text:  strings.Join(parts, " "),
		})
		current = current[:0]
	}

	for _, word := range words {
		current = append(current, word)

		if endsSentence(word.Text) ||
			len(current) >= MaxSegmentWords ||
			current[len(current)-1].End-current[0].Start >= MaxSegmentSpan {
			flush()
		}
	}
	flush()

	return segments
}

func endsSentence(token string) bool {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return false
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
