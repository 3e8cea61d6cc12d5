package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fatygaoscar/sidekick/internal/events"
	"github.com/fatygaoscar/sidekick/internal/store"
)

// DefaultMarkerDuration is how long an important marker extends past
// the moment it was set when the caller gives no duration.
const DefaultMarkerDuration = 60.0 // seconds

// Manager owns the currently active session and meeting. At most one
// session is active per process; starting a new one ends the previous
// one first.
type Manager struct {
	repo   *store.Store
	bus    *events.Bus
	logger *slog.Logger

	currentSession *store.Session
	currentMeeting *store.Meeting

	mu sync.RWMutex
}

// NewManager creates a session manager
func NewManager(repo *store.Store, bus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		repo:   repo,
		bus:    bus,
		logger: logger,
	}
}

// CurrentSession returns the active session, or nil
func (m *Manager) CurrentSession() *store.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentSession
}

// CurrentMeeting returns the active meeting, or nil
func (m *Manager) CurrentMeeting() *store.Meeting {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentMeeting
}

// ElapsedSeconds returns seconds since the active session started, or
// 0 when no session is active.
func (m *Manager) ElapsedSeconds() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.currentSession == nil {
		return 0
	}
	return time.Since(m.currentSession.StartedAt).Seconds()
}

// StartSession begins a new session, ending any previous one
func (m *Manager) StartSession(title string) (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentSession != nil {
		if err := m.endSessionLocked(); err != nil {
			return nil, err
		}
	}

	if title == "" {
		title = "Session " + time.Now().Format("2006-01-02 15:04")
	}

	session, err := m.repo.CreateSession(title)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	m.currentSession = session

	m.logger.Info("Session started", "session_id", session.ID, "title", title)
	m.bus.Publish(events.Event{
		Type:      events.TypeSessionStarted,
		SessionID: session.ID,
		Payload:   map[string]any{"title": title},
	})

	return session, nil
}

// EndSession stops the active session and any open meeting
func (m *Manager) EndSession() (*store.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentSession == nil {
		return nil, fmt.Errorf("no active session")
	}

	session := m.currentSession
	if err := m.endSessionLocked(); err != nil {
		return nil, err
	}
	return session, nil
}

func (m *Manager) endSessionLocked() error {
	session := m.currentSession

	if m.currentMeeting != nil {
		if err := m.repo.EndMeeting(m.currentMeeting.ID); err != nil {
			return err
		}
		m.currentMeeting = nil
	}

	if err := m.repo.EndSession(session.ID); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	m.currentSession = nil

	m.logger.Info("Session ended", "session_id", session.ID)
	m.bus.Publish(events.Event{
		Type:      events.TypeSessionStopped,
		SessionID: session.ID,
	})

	return nil
}

// StartMeeting opens a meeting within the active session, closing any
// previous open meeting first.
func (m *Manager) StartMeeting(title string) (*store.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentSession == nil {
		return nil, fmt.Errorf("no active session")
	}

	if m.currentMeeting != nil {
		if err := m.repo.EndMeeting(m.currentMeeting.ID); err != nil {
			return nil, err
		}
	}

	if title == "" {
		title = "Meeting " + time.Now().Format("15:04")
	}

	meeting, err := m.repo.CreateMeeting(m.currentSession.ID, title)
	if err != nil {
		return nil, fmt.Errorf("failed to start meeting: %w", err)
	}
	m.currentMeeting = meeting

	m.logger.Info("Meeting started",
		"meeting_id", meeting.ID,
		"session_id", m.currentSession.ID,
		"title", title)

	return meeting, nil
}

// EndMeeting closes the active meeting
func (m *Manager) EndMeeting() (*store.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentMeeting == nil {
		return nil, fmt.Errorf("no active meeting")
	}

	meeting := m.currentMeeting
	if err := m.repo.EndMeeting(meeting.ID); err != nil {
		return nil, fmt.Errorf("failed to end meeting: %w", err)
	}
	m.currentMeeting = nil

	m.logger.Info("Meeting ended", "meeting_id", meeting.ID)
	return meeting, nil
}

// AddSegment persists a transcript segment for the active session,
// flagging it important when it falls inside a marker window.
func (m *Manager) AddSegment(text string, start, end float64, confidence *float64) (*store.Segment, error) {
	m.mu.RLock()
	session := m.currentSession
	meeting := m.currentMeeting
	m.mu.RUnlock()

	if session == nil {
		return nil, fmt.Errorf("no active session")
	}

	markers, err := m.repo.ImportantMarkersForSession(session.ID)
	if err != nil {
		return nil, err
	}

	segment := &store.Segment{
		SessionID:  session.ID,
		Text:       text,
		Start:      start,
		End:        end,
		Important:  overlapsMarker(markers, start, end),
		Confidence: confidence,
	}
	if meeting != nil {
		segment.MeetingID = meeting.ID
	}

	if err := m.repo.AddSegment(segment); err != nil {
		return nil, err
	}

	return segment, nil
}

// MarkImportant flags the window from the current session offset for
// the given duration. durationSeconds <= 0 uses the default.
func (m *Manager) MarkImportant(note string, durationSeconds float64) (*store.ImportantMarker, error) {
	m.mu.RLock()
	session := m.currentSession
	m.mu.RUnlock()

	if session == nil {
		return nil, fmt.Errorf("no active session")
	}

	if durationSeconds <= 0 {
		durationSeconds = DefaultMarkerDuration
	}

	start := time.Since(session.StartedAt).Seconds()
	marker := &store.ImportantMarker{
		SessionID: session.ID,
		Start:     start,
		End:       start + durationSeconds,
		Note:      note,
	}

	if err := m.repo.AddImportantMarker(marker); err != nil {
		return nil, err
	}

	// Already-stored segments overlapping the window get flagged too
	if _, err := m.repo.MarkSegmentsImportant(session.ID, marker.Start, marker.End); err != nil {
		return nil, err
	}

	m.logger.Info("Important marker set",
		"session_id", session.ID,
		"start", marker.Start,
		"duration", durationSeconds)
	m.bus.Publish(events.Event{
		Type:      events.TypeImportantMarked,
		SessionID: session.ID,
		Payload: map[string]any{
			"marker_id": marker.ID,
			"start":     marker.Start,
			"end":       marker.End,
		},
	})

	return marker, nil
}

// Transcript returns the session transcript as plain text. With tags
// enabled, runs of important segments are wrapped in
// [IMPORTANT START] ... [IMPORTANT END].
func (m *Manager) Transcript(sessionID string, includeImportantTags bool) (string, error) {
	segments, err := m.repo.SegmentsForSession(sessionID)
	if err != nil {
		return "", err
	}
	markers, err := m.repo.ImportantMarkersForSession(sessionID)
	if err != nil {
		return "", err
	}

	if !includeImportantTags || len(markers) == 0 {
		parts := make([]string, len(segments))
		for i, seg := range segments {
			parts[i] = seg.Text
		}
		return strings.Join(parts, " "), nil
	}

	var parts []string
	inImportant := false

	for _, seg := range segments {
		important := seg.Important || overlapsMarker(markers, seg.Start, seg.End)

		if important && !inImportant {
			parts = append(parts, "[IMPORTANT START]")
			inImportant = true
		} else if !important && inImportant {
			parts = append(parts, "[IMPORTANT END]")
			inImportant = false
		}

		parts = append(parts, seg.Text)
	}

	if inImportant {
		parts = append(parts, "[IMPORTANT END]")
	}

	return strings.Join(parts, " "), nil
}

func overlapsMarker(markers []*store.ImportantMarker, start, end float64) bool {
	for _, marker := range markers {
		if start < marker.End && end > marker.Start {
			return true
		}
	}
	return false
}
