package store

import "time"

// Session status values
const (
	SessionActive  = "active"
	SessionStopped = "stopped"
)

// Session is a top-level recording period
type Session struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Meeting is a titled sub-interval of a session; summaries attach to
// meetings.
type Meeting struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Title     string     `json:"title"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Segment is one persisted transcript unit. Start and End are seconds
// since session start.
type Segment struct {
	ID         string   `json:"id"`
	SessionID  string   `json:"session_id"`
	MeetingID  string   `json:"meeting_id,omitempty"`
	Text       string   `json:"text"`
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Important  bool     `json:"important"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Summary is the output of one summarization run
type Summary struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	MeetingID  string    `json:"meeting_id,omitempty"`
	Content    string    `json:"content"`
	Backend    string    `json:"backend"`
	Model      string    `json:"model"`
	PromptType string    `json:"prompt_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// ImportantMarker is a user-flagged time window within a session
type ImportantMarker struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
