package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	ended_at    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS meetings (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	title       TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	ended_at    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS segments (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	meeting_id  TEXT,
	text        TEXT NOT NULL,
	start_time  REAL NOT NULL,
	end_time    REAL NOT NULL,
	important   INTEGER NOT NULL DEFAULT 0,
	confidence  REAL
);

CREATE TABLE IF NOT EXISTS summaries (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	meeting_id   TEXT,
	content      TEXT NOT NULL,
	backend      TEXT NOT NULL,
	model        TEXT NOT NULL,
	prompt_type  TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS important_markers (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	start_time  REAL NOT NULL,
	end_time    REAL NOT NULL,
	note        TEXT,
	created_at  TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_segments_session ON segments(session_id, start_time);
CREATE INDEX IF NOT EXISTS idx_meetings_session ON meetings(session_id);
CREATE INDEX IF NOT EXISTS idx_markers_session ON important_markers(session_id);
`

// Store is the SQLite-backed repository
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite is single-writer; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new active session and returns it
func (s *Store) CreateSession(title string) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    SessionActive,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, title, status, started_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.Title, session.Status, session.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	return session, nil
}

// GetSession returns one session, or nil if it does not exist
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, title, status, started_at, ended_at FROM sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

// ActiveSession returns the currently recording session, or nil when
// none is active. Used at startup to close a session left active by a
// crashed process.
func (s *Store) ActiveSession() (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, title, status, started_at, ended_at
		 FROM sessions WHERE status = ? ORDER BY started_at DESC LIMIT 1`, SessionActive)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions newest first
func (s *Store) ListSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT id, title, status, started_at, ended_at
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// EndSession marks a session stopped and stamps its end time
func (s *Store) EndSession(id string) error {
	result, err := s.db.Exec(
		`UPDATE sessions SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
		SessionStopped, time.Now().UTC(), id, SessionActive)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s is not active", id)
	}

	return nil
}

// DeleteSession removes a session and everything attached to it
func (s *Store) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"segments", "important_markers", "summaries", "meetings"} {
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE session_id = ?`, table), id); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// UpdateSessionTitle renames a session
func (s *Store) UpdateSessionTitle(id, title string) error {
	if _, err := s.db.Exec(`UPDATE sessions SET title = ? WHERE id = ?`, title, id); err != nil {
		return fmt.Errorf("failed to update session title: %w", err)
	}
	return nil
}

// CreateMeeting inserts a meeting for a session
func (s *Store) CreateMeeting(sessionID, title string) (*Meeting, error) {
	meeting := &Meeting{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Title:     title,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO meetings (id, session_id, title, started_at) VALUES (?, ?, ?, ?)`,
		meeting.ID, meeting.SessionID, meeting.Title, meeting.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert meeting: %w", err)
	}

	return meeting, nil
}

// GetMeetingsForSession returns a session's meetings oldest first
func (s *Store) GetMeetingsForSession(sessionID string) ([]*Meeting, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, title, started_at, ended_at
		 FROM meetings WHERE session_id = ? ORDER BY started_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*Meeting
	for rows.Next() {
		var m Meeting
		var endedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Title, &m.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		if endedAt.Valid {
			m.EndedAt = &endedAt.Time
		}
		meetings = append(meetings, &m)
	}

	return meetings, rows.Err()
}

// ActiveMeeting returns the session's open meeting, or nil
func (s *Store) ActiveMeeting(sessionID string) (*Meeting, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, title, started_at, ended_at
		 FROM meetings WHERE session_id = ? AND ended_at IS NULL
		 ORDER BY started_at DESC LIMIT 1`, sessionID)

	var m Meeting
	var endedAt sql.NullTime
	err := row.Scan(&m.ID, &m.SessionID, &m.Title, &m.StartedAt, &endedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active meeting: %w", err)
	}
	if endedAt.Valid {
		m.EndedAt = &endedAt.Time
	}
	return &m, nil
}

// RenameMeeting updates a meeting's title
func (s *Store) RenameMeeting(id, title string) error {
	if _, err := s.db.Exec(`UPDATE meetings SET title = ? WHERE id = ?`, title, id); err != nil {
		return fmt.Errorf("failed to rename meeting: %w", err)
	}
	return nil
}

// EndMeeting stamps a meeting's end time
func (s *Store) EndMeeting(id string) error {
	if _, err := s.db.Exec(
		`UPDATE meetings SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to end meeting: %w", err)
	}
	return nil
}

// AddSegment inserts one transcript segment
func (s *Store) AddSegment(segment *Segment) error {
	if segment.ID == "" {
		segment.ID = uuid.NewString()
	}

	var meetingID sql.NullString
	if segment.MeetingID != "" {
		meetingID = sql.NullString{String: segment.MeetingID, Valid: true}
	}
	var confidence sql.NullFloat64
	if segment.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *segment.Confidence, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO segments (id, session_id, meeting_id, text, start_time, end_time, important, confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		segment.ID, segment.SessionID, meetingID, segment.Text,
		segment.Start, segment.End, segment.Important, confidence)
	if err != nil {
		return fmt.Errorf("failed to insert segment: %w", err)
	}

	return nil
}

// SegmentsForSession returns a session's segments ordered by start time
func (s *Store) SegmentsForSession(sessionID string) ([]*Segment, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, meeting_id, text, start_time, end_time, important, confidence
		 FROM segments WHERE session_id = ? ORDER BY start_time ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		var seg Segment
		var meetingID sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&seg.ID, &seg.SessionID, &meetingID, &seg.Text,
			&seg.Start, &seg.End, &seg.Important, &confidence); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		if meetingID.Valid {
			seg.MeetingID = meetingID.String
		}
		if confidence.Valid {
			seg.Confidence = &confidence.Float64
		}
		segments = append(segments, &seg)
	}

	return segments, rows.Err()
}

// SegmentsForMeeting returns a meeting's segments ordered by start time
func (s *Store) SegmentsForMeeting(meetingID string) ([]*Segment, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, meeting_id, text, start_time, end_time, important, confidence
		 FROM segments WHERE meeting_id = ? ORDER BY start_time ASC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meeting segments: %w", err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		var seg Segment
		var segMeetingID sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&seg.ID, &seg.SessionID, &segMeetingID, &seg.Text,
			&seg.Start, &seg.End, &seg.Important, &confidence); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		if segMeetingID.Valid {
			seg.MeetingID = segMeetingID.String
		}
		if confidence.Valid {
			seg.Confidence = &confidence.Float64
		}
		segments = append(segments, &seg)
	}

	return segments, rows.Err()
}

// DeleteSegmentsForSession removes every segment of a session. Used by
// the export pipeline's full replace.
func (s *Store) DeleteSegmentsForSession(sessionID string) error {
	if _, err := s.db.Exec(`DELETE FROM segments WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete segments: %w", err)
	}
	return nil
}

// MarkSegmentsImportant flags segments overlapping the [start, end)
// window and returns how many were updated.
func (s *Store) MarkSegmentsImportant(sessionID string, start, end float64) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE segments SET important = 1
		 WHERE session_id = ? AND start_time < ? AND end_time > ?`,
		sessionID, end, start)
	if err != nil {
		return 0, fmt.Errorf("failed to mark segments important: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check update result: %w", err)
	}
	return affected, nil
}

// AddImportantMarker records a user-flagged time window
func (s *Store) AddImportantMarker(marker *ImportantMarker) error {
	if marker.ID == "" {
		marker.ID = uuid.NewString()
	}
	if marker.CreatedAt.IsZero() {
		marker.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO important_markers (id, session_id, start_time, end_time, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		marker.ID, marker.SessionID, marker.Start, marker.End, marker.Note, marker.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert important marker: %w", err)
	}

	return nil
}

// ImportantMarkersForSession returns markers ordered by start time
func (s *Store) ImportantMarkersForSession(sessionID string) ([]*ImportantMarker, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, start_time, end_time, note, created_at
		 FROM important_markers WHERE session_id = ? ORDER BY start_time ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list important markers: %w", err)
	}
	defer rows.Close()

	var markers []*ImportantMarker
	for rows.Next() {
		var m ImportantMarker
		var note sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Start, &m.End, &note, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan important marker: %w", err)
		}
		if note.Valid {
			m.Note = note.String
		}
		markers = append(markers, &m)
	}

	return markers, rows.Err()
}

// SaveSummary inserts a summarization result
func (s *Store) SaveSummary(summary *Summary) error {
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}

	var meetingID sql.NullString
	if summary.MeetingID != "" {
		meetingID = sql.NullString{String: summary.MeetingID, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO summaries (id, session_id, meeting_id, content, backend, model, prompt_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.SessionID, meetingID, summary.Content,
		summary.Backend, summary.Model, summary.PromptType, summary.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}

	return nil
}

// LatestSummary returns the newest summary for a session, or nil
func (s *Store) LatestSummary(sessionID string) (*Summary, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, meeting_id, content, backend, model, prompt_type, created_at
		 FROM summaries WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`, sessionID)

	var sum Summary
	var meetingID sql.NullString
	err := row.Scan(&sum.ID, &sum.SessionID, &meetingID, &sum.Content,
		&sum.Backend, &sum.Model, &sum.PromptType, &sum.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	if meetingID.Valid {
		sum.MeetingID = meetingID.String
	}
	return &sum, nil
}

// SummariesForMeeting returns a meeting's summaries newest first
func (s *Store) SummariesForMeeting(meetingID string) ([]*Summary, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, meeting_id, content, backend, model, prompt_type, created_at
		 FROM summaries WHERE meeting_id = ? ORDER BY created_at DESC`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meeting summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*Summary
	for rows.Next() {
		var sum Summary
		var sumMeetingID sql.NullString
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sumMeetingID, &sum.Content,
			&sum.Backend, &sum.Model, &sum.PromptType, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		if sumMeetingID.Valid {
			sum.MeetingID = sumMeetingID.String
		}
		summaries = append(summaries, &sum)
	}

	return summaries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var endedAt sql.NullTime
	if err := row.Scan(&session.ID, &session.Title, &session.Status,
		&session.StartedAt, &endedAt); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return &session, nil
}
