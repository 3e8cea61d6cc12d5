package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// supportedExtensions lists the recording container formats the service
// accepts, in the order FindRecording probes them.
var supportedExtensions = []string{"webm", "wav", "mp3", "ogg", "m4a"}

var contentTypeExtensions = map[string]string{
	"audio/webm": "webm",
	"video/webm": "webm",
	"audio/wav":  "wav",
	"audio/wave": "wav",
	"audio/x-wav": "wav",
	"audio/mpeg": "mp3",
	"audio/mp3":  "mp3",
	"audio/ogg":  "ogg",
	"audio/mp4":  "m4a",
	"audio/x-m4a": "m4a",
}

var extensionMediaTypes = map[string]string{
	"webm": "audio/webm",
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"m4a":  "audio/mp4",
}

// RecordingStore persists one audio recording per session under a base
// directory, named {session_id}.{ext}.
type RecordingStore struct {
	baseDir string
}

// NewRecordingStore creates the base directory if needed
func NewRecordingStore(baseDir string) (*RecordingStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}
	return &RecordingStore{baseDir: baseDir}, nil
}

// ExtensionFromContentType maps an upload Content-Type to a recording
// file extension. The media type is matched without parameters.
func ExtensionFromContentType(contentType string) (string, error) {
	mediaType := strings.TrimSpace(strings.ToLower(contentType))
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}

	ext, ok := contentTypeExtensions[mediaType]
	if !ok {
		return "", fmt.Errorf("unsupported audio content type %q", contentType)
	}
	return ext, nil
}

// MediaTypeForPath returns the media type for a stored recording path,
// falling back to application/octet-stream for unknown extensions.
func MediaTypeForPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if mediaType, ok := extensionMediaTypes[ext]; ok {
		return mediaType
	}
	return "application/octet-stream"
}

// Path returns the file path a recording with the given extension
// would be stored at.
func (s *RecordingStore) Path(sessionID, ext string) string {
	return filepath.Join(s.baseDir, sessionID+"."+ext)
}

// Save writes a recording, replacing any prior recording for the
// session in a different container format. The write goes through a
// temp file and rename so readers never see a partial file.
func (s *RecordingStore) Save(sessionID, ext string, data []byte) (string, error) {
	valid := false
	for _, e := range supportedExtensions {
		if e == ext {
			valid = true
			break
		}
	}
	if !valid {
		return "", fmt.Errorf("unsupported recording extension %q", ext)
	}

	for _, e := range supportedExtensions {
		if e == ext {
			continue
		}
		os.Remove(s.Path(sessionID, e))
	}

	path := s.Path(sessionID, ext)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write recording: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize recording: %w", err)
	}

	return path, nil
}

// Find returns the path of the session's recording, probing the
// supported extensions. Empty string when no recording exists.
func (s *RecordingStore) Find(sessionID string) string {
	for _, ext := range supportedExtensions {
		path := s.Path(sessionID, ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Delete removes the session's recording if present
func (s *RecordingStore) Delete(sessionID string) error {
	path := s.Find(sessionID)
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}
	return nil
}
