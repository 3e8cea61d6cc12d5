package export

import (
	"strings"
	"testing"
	"time"

	"github.com/fatygaoscar/sidekick/internal/store"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Weekly Sync", "Weekly Sync"},
		{`Q3 <Plan>: "draft"`, "Q3 Plan draft"},
		{`a/b\c|d?e*f`, "abcdef"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizeTitle(tt.in); got != tt.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNoteFilename(t *testing.T) {
	startedAt := time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)

	got := NoteFilename(startedAt, "Weekly Sync", "Meeting")
	want := "2026-03-14-0905 - Weekly Sync [Meeting].md"
	if got != want {
		t.Errorf("NoteFilename = %q, want %q", got, want)
	}

	got = NoteFilename(startedAt, `Bad/Name?`, "Quick")
	if got != "2026-03-14-0905 - BadName [Quick].md" {
		t.Errorf("NoteFilename = %q", got)
	}
}

func TestBuildTranscript(t *testing.T) {
	segments := []*store.Segment{
		{Text: "hello everyone.", Start: 0, End: 4},
		{Text: "the key decision.", Start: 65, End: 70, Important: true},
		{Text: "wrapping up now.", Start: 125.7, End: 130},
	}

	got := BuildTranscript(segments)
	want := "[00:00] hello everyone.\n" +
		"[01:05] [IMPORTANT] the key decision.\n" +
		"[02:05] wrapping up now."
	if got != want {
		t.Errorf("BuildTranscript =\n%q\nwant\n%q", got, want)
	}

	if BuildTranscript(nil) != "" {
		t.Error("Expected empty transcript for no segments")
	}
}

func TestRenderNote(t *testing.T) {
	recordedAt := time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)
	note := RenderNote("Meeting", recordedAt, 3725*time.Second, "## Summary\nGood meeting.", "[00:00] hi")

	for _, want := range []string{
		"**Template**: Meeting",
		"**Recorded**: 2026-03-14 09:05",
		"**Duration**: 01:02:05",
		"## Summary\nGood meeting.",
		"<details>",
		"<summary>Full Transcript</summary>",
		"[00:00] hi",
		"</details>",
	} {
		if !strings.Contains(note, want) {
			t.Errorf("Note missing %q:\n%s", want, note)
		}
	}

	if strings.Index(note, "## Summary") > strings.Index(note, "<details>") {
		t.Error("Summary should come before the collapsed transcript")
	}
}

func TestNoteURI(t *testing.T) {
	got := NoteURI("/home/u/vaults/My Vault", "2026-03-14-0905 - Sync [Meeting].md")
	// Spaces must be %20, not +; Obsidian treats + literally
	want := "obsidian://open?vault=My%20Vault&file=2026-03-14-0905%20-%20Sync%20%5BMeeting%5D"
	if got != want {
		t.Errorf("NoteURI = %q, want %q", got, want)
	}
}

func TestSummaryPreview(t *testing.T) {
	short := "brief summary"
	if got := SummaryPreview(short); got != short {
		t.Errorf("Preview = %q, want unchanged", got)
	}

	long := strings.Repeat("a", 250)
	got := SummaryPreview(long)
	if len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Errorf("Preview length = %d, suffix ok = %v", len(got), strings.HasSuffix(got, "..."))
	}
}
