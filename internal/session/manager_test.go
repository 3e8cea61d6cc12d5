package session

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/fatygaoscar/sidekick/internal/events"
	"github.com/fatygaoscar/sidekick/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store, *events.Bus) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	bus := events.NewBus(logger)
	return NewManager(repo, bus, logger), repo, bus
}

func TestSessionLifecycle(t *testing.T) {
	m, _, bus := newTestManager(t)

	var published []string
	bus.SubscribeAll(func(e events.Event) error {
		published = append(published, e.Type)
		return nil
	})

	if m.CurrentSession() != nil {
		t.Fatal("Expected no session initially")
	}
	if _, err := m.EndSession(); err == nil {
		t.Error("Expected error ending with no active session")
	}

	session, err := m.StartSession("Focus block")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if m.CurrentSession() == nil || m.CurrentSession().ID != session.ID {
		t.Error("Expected session to be current")
	}

	ended, err := m.EndSession()
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ended.ID != session.ID {
		t.Errorf("Ended %s, want %s", ended.ID, session.ID)
	}
	if m.CurrentSession() != nil {
		t.Error("Expected no current session after ending")
	}

	if len(published) != 2 ||
		published[0] != events.TypeSessionStarted ||
		published[1] != events.TypeSessionStopped {
		t.Errorf("Events = %v", published)
	}
}

func TestStartSessionEndsPrevious(t *testing.T) {
	m, repo, _ := newTestManager(t)

	first, err := m.StartSession("first")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	second, err := m.StartSession("second")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("Expected a new session")
	}

	loaded, err := repo.GetSession(first.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if loaded.Status != store.SessionStopped {
		t.Errorf("First session status = %q, want stopped", loaded.Status)
	}
}

func TestMeetingLifecycle(t *testing.T) {
	m, _, _ := newTestManager(t)

	if _, err := m.StartMeeting("standup"); err == nil {
		t.Error("Expected error starting meeting without session")
	}

	if _, err := m.StartSession(""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	meeting, err := m.StartMeeting("standup")
	if err != nil {
		t.Fatalf("StartMeeting: %v", err)
	}
	if m.CurrentMeeting() == nil {
		t.Fatal("Expected current meeting")
	}

	// A second meeting closes the first
	second, err := m.StartMeeting("retro")
	if err != nil {
		t.Fatalf("StartMeeting: %v", err)
	}
	if second.ID == meeting.ID {
		t.Error("Expected a new meeting")
	}

	if _, err := m.EndMeeting(); err != nil {
		t.Fatalf("EndMeeting: %v", err)
	}
	if m.CurrentMeeting() != nil {
		t.Error("Expected no current meeting")
	}
}

func TestEndSessionClosesMeeting(t *testing.T) {
	m, repo, _ := newTestManager(t)

	session, err := m.StartSession("")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := m.StartMeeting("m"); err != nil {
		t.Fatalf("StartMeeting: %v", err)
	}
	if _, err := m.EndSession(); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	meetings, err := repo.GetMeetingsForSession(session.ID)
	if err != nil {
		t.Fatalf("GetMeetingsForSession: %v", err)
	}
	if len(meetings) != 1 || meetings[0].EndedAt == nil {
		t.Error("Expected meeting to be closed with the session")
	}
}

func TestAddSegmentAttachesMeeting(t *testing.T) {
	m, repo, _ := newTestManager(t)

	session, err := m.StartSession("")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	meeting, err := m.StartMeeting("m")
	if err != nil {
		t.Fatalf("StartMeeting: %v", err)
	}

	if _, err := m.AddSegment("hello there", 0, 2.5, nil); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	segments, err := repo.SegmentsForSession(session.ID)
	if err != nil {
		t.Fatalf("SegmentsForSession: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("Got %d segments", len(segments))
	}
	if segments[0].MeetingID != meeting.ID {
		t.Errorf("MeetingID = %q, want %q", segments[0].MeetingID, meeting.ID)
	}
}

func TestMarkImportantFlagsSegments(t *testing.T) {
	m, repo, _ := newTestManager(t)

	session, err := m.StartSession("")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	// Segment near the session start, overlapping the marker window
	if _, err := m.AddSegment("before marker", 0, 1, nil); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	marker, err := m.MarkImportant("key point", 0)
	if err != nil {
		t.Fatalf("MarkImportant: %v", err)
	}
	if marker.End-marker.Start != DefaultMarkerDuration {
		t.Errorf("Marker span = %f, want %f", marker.End-marker.Start, DefaultMarkerDuration)
	}

	// Segments added inside the window get flagged on insert
	elapsed := m.ElapsedSeconds()
	seg, err := m.AddSegment("inside window", elapsed, elapsed+2, nil)
	if err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if !seg.Important {
		t.Error("Expected segment inside marker window to be important")
	}

	// Segment far outside the window stays unflagged
	seg, err = m.AddSegment("later", marker.End+100, marker.End+105, nil)
	if err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if seg.Important {
		t.Error("Expected segment outside marker window to be unflagged")
	}

	segments, err := repo.SegmentsForSession(session.ID)
	if err != nil {
		t.Fatalf("SegmentsForSession: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("Got %d segments", len(segments))
	}
}

func TestTranscriptImportantTags(t *testing.T) {
	m, repo, _ := newTestManager(t)

	session, err := m.StartSession("")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	addSeg := func(text string, start, end float64, important bool) {
		seg := &store.Segment{
			SessionID: session.ID,
			Text:      text,
			Start:     start,
			End:       end,
			Important: important,
		}
		if err := repo.AddSegment(seg); err != nil {
			t.Fatalf("AddSegment: %v", err)
		}
	}

	addSeg("intro.", 0, 5, false)
	addSeg("the key decision.", 5, 10, true)
	addSeg("more detail.", 10, 15, true)
	addSeg("wrap up.", 15, 20, false)

	if err := repo.AddImportantMarker(&store.ImportantMarker{
		SessionID: session.ID,
		Start:     5,
		End:       15,
	}); err != nil {
		t.Fatalf("AddImportantMarker: %v", err)
	}

	transcript, err := m.Transcript(session.ID, true)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}

	want := "intro. [IMPORTANT START] the key decision. more detail. [IMPORTANT END] wrap up."
	if transcript != want {
		t.Errorf("Transcript = %q\nwant %q", transcript, want)
	}

	// Tags omitted on request
	plain, err := m.Transcript(session.ID, false)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if plain != "intro. the key decision. more detail. wrap up." {
		t.Errorf("Plain transcript = %q", plain)
	}
}

func TestTranscriptTrailingImportantClosed(t *testing.T) {
	m, repo, _ := newTestManager(t)

	session, err := m.StartSession("")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := repo.AddSegment(&store.Segment{
		SessionID: session.ID,
		Text:      "final point",
		Start:     0,
		End:       5,
		Important: true,
	}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if err := repo.AddImportantMarker(&store.ImportantMarker{
		SessionID: session.ID,
		Start:     0,
		End:       60,
	}); err != nil {
		t.Fatalf("AddImportantMarker: %v", err)
	}

	transcript, err := m.Transcript(session.ID, true)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if transcript != "[IMPORTANT START] final point [IMPORTANT END]" {
		t.Errorf("Transcript = %q", transcript)
	}
}
