package export

import (
	"math"
	"testing"
)

func TestOverallProgress(t *testing.T) {
	tests := []struct {
		name          string
		stage         string
		transcription float64
		summarization float64
		want          float64
	}{
		{"queued", StageQueued, 0, 0, 0.0},
		{"transcribing start", StageTranscribing, 0, 0, 0.0},
		{"transcribing halfway", StageTranscribing, 0.5, 0, 0.325},
		{"transcribing done", StageTranscribing, 1.0, 0, 0.65},
		{"summarizing start", StageSummarizing, 1.0, 0, 0.65},
		{"summarizing halfway", StageSummarizing, 1.0, 0.5, 0.80},
		{"summarizing done", StageSummarizing, 1.0, 1.0, 0.95},
		{"writing", StageWriting, 1.0, 1.0, 0.95},
		{"completed", StageCompleted, 1.0, 1.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := overallProgress(tt.stage, tt.transcription, tt.summarization)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("overallProgress(%s, %f, %f) = %f, want %f",
					tt.stage, tt.transcription, tt.summarization, got, tt.want)
			}
		})
	}
}

func TestJobStateTransitions(t *testing.T) {
	r := NewRegistry()
	job := r.Create("session-1")

	snap := job.Snapshot()
	if snap.Status != StatusQueued || snap.Stage != StageQueued {
		t.Fatalf("New job status=%s stage=%s, want queued/queued", snap.Status, snap.Stage)
	}
	if snap.OverallProgress != 0 {
		t.Errorf("Queued progress = %f, want 0", snap.OverallProgress)
	}

	job.SetStage(StageTranscribing, "Transcribing recording")
	snap = job.Snapshot()
	if snap.Status != StatusRunning {
		t.Errorf("Status after first stage = %s, want running", snap.Status)
	}

	job.SetTranscriptionProgress(0.5)
	if got := job.Snapshot().OverallProgress; math.Abs(got-0.325) > 1e-9 {
		t.Errorf("Progress = %f, want 0.325", got)
	}

	// Out-of-range fractions are clamped
	job.SetTranscriptionProgress(1.5)
	if got := job.Snapshot().TranscriptionProgress; got != 1.0 {
		t.Errorf("Clamped progress = %f, want 1.0", got)
	}

	job.Complete(&Result{Filename: "note.md"})
	snap = job.Snapshot()
	if snap.Status != StatusCompleted || snap.OverallProgress != 1.0 {
		t.Errorf("Completed status=%s progress=%f", snap.Status, snap.OverallProgress)
	}
	if snap.Result == nil || snap.Result.Filename != "note.md" {
		t.Error("Expected result on completed snapshot")
	}
}

func TestJobFail(t *testing.T) {
	r := NewRegistry()
	job := r.Create("session-1")

	job.SetStage(StageTranscribing, "Transcribing recording")
	job.Fail("transcription failed: boom")

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Stage != StageFailed {
		t.Errorf("Failed job status=%s stage=%s", snap.Status, snap.Stage)
	}
	if snap.Error != "transcription failed: boom" {
		t.Errorf("Error = %q", snap.Error)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if r.Get("missing") != nil {
		t.Error("Expected nil for unknown job id")
	}

	job := r.Create("session-1")
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
	if got := r.Get(job.ID()); got != job {
		t.Error("Get returned a different job")
	}

	r.Remove(job.ID())
	if r.Count() != 0 {
		t.Errorf("Count after remove = %d, want 0", r.Count())
	}
}
