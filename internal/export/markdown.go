package export

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fatygaoscar/sidekick/internal/store"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeTitle strips characters that are invalid in note filenames
func SanitizeTitle(title string) string {
	return invalidFilenameChars.ReplaceAllString(title, "")
}

// NoteFilename builds the vault filename:
// {YYYY-MM-DD-HHMM} - {title} [{label}].md
func NoteFilename(startedAt time.Time, title, templateLabel string) string {
	return fmt.Sprintf("%s - %s [%s].md",
		startedAt.Format("2006-01-02-1504"), SanitizeTitle(title), templateLabel)
}

// BuildTranscript renders segments as newline-joined lines with
// [MM:SS] timestamps, tagging important segments with [IMPORTANT].
func BuildTranscript(segments []*store.Segment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		mins := int(seg.Start) / 60
		secs := int(seg.Start) % 60

		marker := ""
		if seg.Important {
			marker = " [IMPORTANT]"
		}
		lines = append(lines, fmt.Sprintf("[%02d:%02d]%s %s", mins, secs, marker, seg.Text))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// RenderNote builds the markdown note: metadata header, summary body,
// and the full transcript collapsed behind a details block.
func RenderNote(templateLabel string, recordedAt time.Time, duration time.Duration, summary, transcript string) string {
	totalSeconds := int(duration.Seconds())
	durationStr := fmt.Sprintf("%02d:%02d:%02d",
		totalSeconds/3600, (totalSeconds%3600)/60, totalSeconds%60)

	return fmt.Sprintf(`**Template**: %s
**Recorded**: %s
**Duration**: %s

---

%s

---

<details>
<summary>Full Transcript</summary>

%s

</details>
`, templateLabel, recordedAt.Format("2006-01-02 15:04"), durationStr, summary, transcript)
}

// NoteURI builds an obsidian:// link for the written note. Obsidian
// does not decode + as a space, so spaces must be percent-encoded.
func NoteURI(vaultPath, filename string) string {
	vaultName := filepath.Base(vaultPath)
	fileWithoutExt := strings.TrimSuffix(filename, filepath.Ext(filename))
	return fmt.Sprintf("obsidian://open?vault=%s&file=%s",
		url.PathEscape(vaultName), url.PathEscape(fileWithoutExt))
}

// SummaryPreview returns the first 200 characters of a summary
func SummaryPreview(content string) string {
	if len(content) > 200 {
		return content[:200] + "..."
	}
	return content
}
