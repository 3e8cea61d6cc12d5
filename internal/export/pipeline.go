package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatygaoscar/sidekick/internal/audio"
	"github.com/fatygaoscar/sidekick/internal/events"
	"github.com/fatygaoscar/sidekick/internal/store"
	"github.com/fatygaoscar/sidekick/internal/summarize"
	"github.com/fatygaoscar/sidekick/internal/transcript"
	"github.com/fatygaoscar/sidekick/internal/transcription"
)

// Transcriber is the slice of the transcription manager the pipeline
// needs.
type Transcriber interface {
	TranscribeRecording(ctx context.Context, path string, progress transcription.ProgressFunc) (*transcription.Result, error)
}

// Summarizer is the slice of the summarization manager the pipeline
// needs.
type Summarizer interface {
	Summarize(ctx context.Context, transcriptText, promptType, customInstructions string) (*summarize.Result, error)
	Backend() string
}

// Request describes one export run
type Request struct {
	SessionID    string
	Title        string
	Template     string
	CustomPrompt string
}

// Pipeline executes export jobs: authoritative re-transcription,
// segment rebuild, summarization, and the vault write.
type Pipeline struct {
	repo        *store.Store
	recordings  *audio.RecordingStore
	transcriber Transcriber
	summarizer  Summarizer
	bus         *events.Bus
	logger      *slog.Logger
	vaultPath   string
}

// NewPipeline creates an export pipeline
func NewPipeline(repo *store.Store, recordings *audio.RecordingStore, transcriber Transcriber,
	summarizer Summarizer, bus *events.Bus, logger *slog.Logger, vaultPath string) *Pipeline {
	return &Pipeline{
		repo:        repo,
		recordings:  recordings,
		transcriber: transcriber,
		summarizer:  summarizer,
		bus:         bus,
		logger:      logger,
		vaultPath:   vaultPath,
	}
}

// Run executes the export and records the outcome on the job. Step
// failures mark the job failed and leave prior database mutations in
// place; the segment rebuild is a full replace, so a retry is safe.
func (p *Pipeline) Run(ctx context.Context, job *Job, req Request) {
	result, err := p.run(ctx, job, req)
	if err != nil {
		p.logger.Error("Export failed",
			"job_id", job.ID(),
			"session_id", req.SessionID,
			"error", err)
		job.Fail(err.Error())
		p.bus.Publish(events.Event{
			Type:      events.TypeExportFailed,
			SessionID: req.SessionID,
			Payload:   map[string]any{"job_id": job.ID(), "error": err.Error()},
		})
		return
	}

	job.Complete(result)
	p.logger.Info("Export completed",
		"job_id", job.ID(),
		"session_id", req.SessionID,
		"filename", result.Filename)
	p.bus.Publish(events.Event{
		Type:      events.TypeExportCompleted,
		SessionID: req.SessionID,
		Payload:   map[string]any{"job_id": job.ID(), "filename": result.Filename},
	})
}

func (p *Pipeline) run(ctx context.Context, job *Job, req Request) (*Result, error) {
	// Vault check first so a misconfigured path fails before the
	// expensive transcription
	if _, err := os.Stat(p.vaultPath); err != nil {
		return nil, fmt.Errorf("notes vault path does not exist: %s", p.vaultPath)
	}

	session, err := p.repo.GetSession(req.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %s not found", req.SessionID)
	}

	recordingPath := p.recordings.Find(req.SessionID)
	if recordingPath == "" {
		return nil, fmt.Errorf("no audio available for session %s", req.SessionID)
	}

	meeting, err := p.ensureMeeting(session, req.Title)
	if err != nil {
		return nil, err
	}

	// Authoritative whole-file transcription. The engine's 0-1
	// progress maps into the 5-95% band of the transcribing stage.
	job.SetStage(StageTranscribing, "Transcribing recording")
	job.SetTranscriptionProgress(0.05)

	transcriptionResult, err := p.transcriber.TranscribeRecording(ctx, recordingPath, func(fraction float64, message string) {
		if message != "" {
			job.SetStage(StageTranscribing, message)
		}
		job.SetTranscriptionProgress(0.05 + 0.90*fraction)
	})
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}
	job.SetTranscriptionProgress(1.0)

	// A silent recording must fail before the stored live segments are
	// touched, otherwise the session loses its transcript for nothing.
	reconciled := transcript.Reconcile(transcriptionResult)
	if len(reconciled) == 0 {
		return nil, fmt.Errorf("no speech detected in recording for session %s", req.SessionID)
	}

	segments, err := p.rebuildSegments(session.ID, meeting.ID, reconciled)
	if err != nil {
		return nil, err
	}

	fullTranscript := BuildTranscript(segments)

	job.SetStage(StageSummarizing, "Generating summary")
	job.SetSummarizationProgress(0.08)

	customInstructions := ""
	if req.Template == "custom" {
		customInstructions = req.CustomPrompt
	}
	summaryResult, err := p.summarizer.Summarize(ctx, fullTranscript, req.Template, customInstructions)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}
	job.SetSummarizationProgress(1.0)

	if err := p.repo.SaveSummary(&store.Summary{
		SessionID:  session.ID,
		MeetingID:  meeting.ID,
		Content:    summaryResult.Content,
		Backend:    summaryResult.Backend,
		Model:      summaryResult.Model,
		PromptType: req.Template,
	}); err != nil {
		return nil, err
	}

	job.SetStage(StageWriting, "Writing note to vault")

	duration := time.Duration(transcriptionResult.Duration * float64(time.Second))
	if duration == 0 && len(segments) > 0 {
		duration = time.Duration(segments[len(segments)-1].End * float64(time.Second))
	}

	label := summarize.TemplateLabel(req.Template)
	filename := NoteFilename(session.StartedAt, req.Title, label)
	content := RenderNote(label, session.StartedAt, duration, summaryResult.Content, fullTranscript)

	notePath := filepath.Join(p.vaultPath, filename)
	if err := os.WriteFile(notePath, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write note: %w", err)
	}

	return &Result{
		Filename: filename,
		Filepath: notePath,
		NoteURI:  NoteURI(p.vaultPath, filename),
		Preview:  SummaryPreview(summaryResult.Content),
	}, nil
}

// ensureMeeting guarantees exactly one meeting owns the export,
// creating one if the session has none and renaming it to the
// requested title when it differs.
func (p *Pipeline) ensureMeeting(session *store.Session, title string) (*store.Meeting, error) {
	meetings, err := p.repo.GetMeetingsForSession(session.ID)
	if err != nil {
		return nil, err
	}

	if len(meetings) == 0 {
		meeting, err := p.repo.CreateMeeting(session.ID, title)
		if err != nil {
			return nil, err
		}
		return meeting, nil
	}

	meeting := meetings[0]
	if title != "" && meeting.Title != title {
		if err := p.repo.RenameMeeting(meeting.ID, title); err != nil {
			return nil, err
		}
		meeting.Title = title
	}
	return meeting, nil
}

// rebuildSegments replaces the session's stored segments with the
// reconciled result of the authoritative transcription, preserving
// important flags through the recorded marker windows.
func (p *Pipeline) rebuildSegments(sessionID, meetingID string, reconciled []transcript.Segment) ([]*store.Segment, error) {
	markers, err := p.repo.ImportantMarkersForSession(sessionID)
	if err != nil {
		return nil, err
	}

	if err := p.repo.DeleteSegmentsForSession(sessionID); err != nil {
		return nil, err
	}

	segments := make([]*store.Segment, 0, len(reconciled))
	for _, seg := range reconciled {
		stored := &store.Segment{
			SessionID: sessionID,
			MeetingID: meetingID,
			Text:      seg.Text,
			Start:     seg.Start,
			End:       seg.End,
			Important: overlapsMarker(markers, seg.Start, seg.End),
		}
		if err := p.repo.AddSegment(stored); err != nil {
			return nil, err
		}
		segments = append(segments, stored)
	}

	return segments, nil
}

func overlapsMarker(markers []*store.ImportantMarker, start, end float64) bool {
	for _, marker := range markers {
		if start < marker.End && end > marker.Start {
			return true
		}
	}
	return false
}
