package export

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job stages
const (
	StageQueued       = "queued"
	StageTranscribing = "transcribing"
	StageSummarizing  = "summarizing"
	StageWriting      = "writing"
	StageCompleted    = "completed"
	StageFailed       = "failed"
)

// Job statuses
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Result is the outcome of a completed export
type Result struct {
	Filename string `json:"filename"`
	Filepath string `json:"filepath"`
	NoteURI  string `json:"note_uri,omitempty"`
	Preview  string `json:"preview,omitempty"`
}

// Job is one export run. It is mutated only by the goroutine that owns
// the run; snapshots are safe for concurrent polling readers.
type Job struct {
	id        string
	sessionID string

	status  string
	stage   string
	message string

	transcriptionProgress float64
	summarizationProgress float64

	result *Result
	err    string

	createdAt time.Time
	updatedAt time.Time

	mu sync.RWMutex
}

// Snapshot is the polled view of a job
type Snapshot struct {
	JobID                 string    `json:"job_id"`
	SessionID             string    `json:"session_id"`
	Status                string    `json:"status"`
	Stage                 string    `json:"stage"`
	Message               string    `json:"message"`
	TranscriptionProgress float64   `json:"transcription_progress"`
	SummarizationProgress float64   `json:"summarization_progress"`
	OverallProgress       float64   `json:"overall_progress"`
	Result                *Result   `json:"result,omitempty"`
	Error                 string    `json:"error,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// overallProgress maps stage and in-stage progress onto the combined
// fraction: transcription contributes 65%, summarization 30%, the
// final write checkpoint 95%, completion 100%.
func overallProgress(stage string, transcription, summarization float64) float64 {
	switch stage {
	case StageQueued:
		return 0.0
	case StageTranscribing:
		return min64(0.65*transcription, 0.65)
	case StageSummarizing:
		return 0.65 + min64(0.30*summarization, 0.30)
	case StageWriting:
		return 0.95
	case StageCompleted:
		return 1.0
	}
	return min64(0.65*transcription+0.30*summarization, 0.95)
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// ID returns the job id
func (j *Job) ID() string {
	return j.id
}

// SetStage moves the job to a stage with a human-readable message
func (j *Job) SetStage(stage, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stage = stage
	j.message = message
	if j.status == StatusQueued && stage != StageQueued {
		j.status = StatusRunning
	}
	j.updatedAt = time.Now().UTC()
}

// SetTranscriptionProgress updates the transcribing stage fraction
func (j *Job) SetTranscriptionProgress(fraction float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.transcriptionProgress = clamp01(fraction)
	j.updatedAt = time.Now().UTC()
}

// SetSummarizationProgress updates the summarizing stage fraction
func (j *Job) SetSummarizationProgress(fraction float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.summarizationProgress = clamp01(fraction)
	j.updatedAt = time.Now().UTC()
}

// Complete marks the job done with its result
func (j *Job) Complete(result *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = StatusCompleted
	j.stage = StageCompleted
	j.message = "Export complete"
	j.transcriptionProgress = 1.0
	j.summarizationProgress = 1.0
	j.result = result
	j.updatedAt = time.Now().UTC()
}

// Fail moves the job to the failed absorbing state
func (j *Job) Fail(errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.status = StatusFailed
	j.stage = StageFailed
	j.message = "Export failed"
	j.err = errMsg
	j.updatedAt = time.Now().UTC()
}

// Snapshot returns a point-in-time copy for polling clients
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return Snapshot{
		JobID:                 j.id,
		SessionID:             j.sessionID,
		Status:                j.status,
		Stage:                 j.stage,
		Message:               j.message,
		TranscriptionProgress: j.transcriptionProgress,
		SummarizationProgress: j.summarizationProgress,
		OverallProgress:       overallProgress(j.stage, j.transcriptionProgress, j.summarizationProgress),
		Result:                j.result,
		Error:                 j.err,
		CreatedAt:             j.createdAt,
		UpdatedAt:             j.updatedAt,
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Registry owns the live export jobs. It is constructed at startup and
// injected where needed; there is no process-wide instance.
type Registry struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

// NewRegistry creates an empty job registry
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create registers a new queued job for a session
func (r *Registry) Create(sessionID string) *Job {
	now := time.Now().UTC()
	job := &Job{
		id:        uuid.NewString(),
		sessionID: sessionID,
		status:    StatusQueued,
		stage:     StageQueued,
		message:   "Queued",
		createdAt: now,
		updatedAt: now,
	}

	r.mu.Lock()
	r.jobs[job.id] = job
	r.mu.Unlock()

	return job
}

// Get returns a job by id, or nil
func (r *Registry) Get(id string) *Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[id]
}

// Remove drops a job from the registry
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// Count returns the number of tracked jobs
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
