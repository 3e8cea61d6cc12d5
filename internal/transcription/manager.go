package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatygaoscar/sidekick/internal/audio"
	"github.com/fatygaoscar/sidekick/internal/config"
	"github.com/fatygaoscar/sidekick/internal/events"
)

// Manager selects the configured transcription engine and adapts word
// timestamps from audio-relative to session-relative offsets.
type Manager struct {
	engine Engine
	logger *slog.Logger
	bus    *events.Bus
}

// NewManager builds the engine named by the configuration
func NewManager(cfg config.TranscriptionConfig, logger *slog.Logger, bus *events.Bus) (*Manager, error) {
	var engine Engine
	var err error

	switch cfg.Backend {
	case "local":
		engine, err = NewLocalEngine(LocalConfig{
			Endpoint: cfg.LocalEndpoint,
			Language: cfg.Language,
			Timeout:  cfg.GetTimeoutDuration(),
		})
	case "openai":
		engine, err = NewAPIEngine(APIConfig{
			Endpoint:      cfg.APIEndpoint,
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			Language:      cfg.Language,
			Timeout:       cfg.GetTimeoutDuration(),
			MaxRetries:    cfg.MaxRetries,
			MaxConcurrent: cfg.MaxConcurrent,
		})
	default:
		return nil, fmt.Errorf("unknown transcription backend '%s'", cfg.Backend)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s engine: %w", cfg.Backend, err)
	}

	logger.Info("Transcription engine initialized", "backend", engine.Name())

	return &Manager{
		engine: engine,
		logger: logger,
		bus:    bus,
	}, nil
}

// Backend returns the active engine name
func (m *Manager) Backend() string {
	return m.engine.Name()
}

// TranscribeSamples transcribes one flushed buffer of mono PCM.
// startOffset is the session stream position of the first sample; word
// timestamps in the result are shifted onto the session timeline.
func (m *Manager) TranscribeSamples(ctx context.Context, sessionID string, samples []float32, sampleRate int, startOffset float64) (*Result, error) {
	wavData, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audio: %w", err)
	}

	result, err := m.engine.Transcribe(ctx, wavData, "wav")
	if err != nil {
		return nil, err
	}

	for i := range result.Words {
		result.Words[i].Start += startOffset
		result.Words[i].End += startOffset
	}

	if m.bus != nil && result.Text != "" {
		m.bus.Publish(events.Event{
			Type:      events.TypeSegmentTranscribed,
			SessionID: sessionID,
			Payload: map[string]any{
				"text":         result.Text,
				"start_offset": startOffset,
				"word_count":   len(result.Words),
			},
		})
	}

	return result, nil
}

// TranscribeRecording transcribes a stored recording file. progress is
// optional and is invoked at the start and completion of the request;
// the engines process a recording in a single call, so there are no
// intermediate fractions to report.
func (m *Manager) TranscribeRecording(ctx context.Context, path string, progress ProgressFunc) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "wav"
	}

	if progress != nil {
		progress(0.0, "Sending recording to transcription engine")
	}

	m.logger.Info("Transcribing recording",
		"path", path,
		"format", format,
		"bytes", len(data))

	result, err := m.engine.Transcribe(ctx, data, format)
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(1.0, "Transcription complete")
	}

	return result, nil
}

// Close shuts down the engine
func (m *Manager) Close() error {
	return m.engine.Close()
}
