package transcript

import (
	"fmt"
	"testing"

	"github.com/fatygaoscar/sidekick/internal/transcription"
)

func wordsAt(texts []string, start, step float64) []transcription.Word {
	words := make([]transcription.Word, len(texts))
	for i, text := range texts {
		words[i] = transcription.Word{
			Text:  text,
			Start: start + float64(i)*step,
			End:   start + float64(i)*step + step*0.8,
		}
	}
	return words
}

func TestReconcileSentenceBoundary(t *testing.T) {
	result := &transcription.Result{
		Words: wordsAt([]string{"hello", "world.", "next", "thought"}, 0, 0.5),
	}

	segments := Reconcile(result)
	if len(segments) != 2 {
		t.Fatalf("Got %d segments, want 2", len(segments))
	}
	if segments[0].Text != "hello world." {
		t.Errorf("First segment = %q", segments[0].Text)
	}
	if segments[1].Text != "next thought" {
		t.Errorf("Second segment = %q", segments[1].Text)
	}
}

func TestReconcileQuestionAndExclamation(t *testing.T) {
	result := &transcription.Result{
		Words: wordsAt([]string{"really?", "yes!", "ok"}, 0, 0.5),
	}

	segments := Reconcile(result)
	if len(segments) != 3 {
		t.Fatalf("Got %d segments, want 3", len(segments))
	}
}

func TestReconcileWordCap(t *testing.T) {
	texts := make([]string, 30)
	for i := range texts {
		texts[i] = fmt.Sprintf("word%d", i)
	}
	result := &transcription.Result{Words: wordsAt(texts, 0, 0.2)}

	segments := Reconcile(result)
	if len(segments) != 2 {
		t.Fatalf("Got %d segments, want 2", len(segments))
	}

	// First segment flushes exactly at the cap
	firstWords := 0
	for _, c := range segments[0].Text {
		if c == ' ' {
			firstWords++
		}
	}
	if firstWords+1 != MaxSegmentWords {
		t.Errorf("First segment has %d words, want %d", firstWords+1, MaxSegmentWords)
	}
}

func TestReconcileSpanCap(t *testing.T) {
	// 10 words, 2 seconds apart: the span cap splits before 24 words
	result := &transcription.Result{
		Words: wordsAt([]string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, 0, 2.0),
	}

	segments := Reconcile(result)
	if len(segments) < 2 {
		t.Fatalf("Got %d segments, want at least 2 from span cap", len(segments))
	}
	for i, seg := range segments {
		// A segment flushes as soon as its span reaches the cap, so
		// the span never exceeds the cap by more than one word
		if seg.End-seg.Start > MaxSegmentSpan+2.0 {
			t.Errorf("Segment %d span = %f, exceeds cap", i, seg.End-seg.Start)
		}
	}
}

func TestReconcileSkipsWhitespaceTokens(t *testing.T) {
	result := &transcription.Result{
		Words: []transcription.Word{
			{Text: "hello", Start: 0, End: 0.4},
			{Text: "   ", Start: 0.4, End: 0.5},
			{Text: "world", Start: 0.5, End: 0.9},
		},
	}

	segments := Reconcile(result)
	if len(segments) != 1 {
		t.Fatalf("Got %d segments, want 1", len(segments))
	}
	if segments[0].Text != "hello world" {
		t.Errorf("Segment = %q, want %q", segments[0].Text, "hello world")
	}
}

func TestReconcileTrailingFlush(t *testing.T) {
	result := &transcription.Result{
		Words: wordsAt([]string{"unfinished", "trailing", "words"}, 5.0, 0.5),
	}

	segments := Reconcile(result)
	if len(segments) != 1 {
		t.Fatalf("Got %d segments, want 1", len(segments))
	}
	if segments[0].Start != 5.0 {
		t.Errorf("Start = %f, want 5.0", segments[0].Start)
	}
}

func TestReconcileNoWordsFallsBackToFullText(t *testing.T) {
	result := &transcription.Result{
		Text:     "whole transcript without timestamps",
		Duration: 42.0,
	}

	segments := Reconcile(result)
	if len(segments) != 1 {
		t.Fatalf("Got %d segments, want 1", len(segments))
	}
	if segments[0].Start != 0 || segments[0].End != 42.0 {
		t.Errorf("Segment span = [%f, %f], want [0, 42]", segments[0].Start, segments[0].End)
	}
	if segments[0].Text != "whole transcript without timestamps" {
		t.Errorf("Text = %q", segments[0].Text)
	}
}

func TestReconcileEmpty(t *testing.T) {
	if got := Reconcile(nil); got != nil {
		t.Errorf("Reconcile(nil) = %v, want nil", got)
	}
	if got := Reconcile(&transcription.Result{}); got != nil {
		t.Errorf("Reconcile(empty) = %v, want nil", got)
	}
}
