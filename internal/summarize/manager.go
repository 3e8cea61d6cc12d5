package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fatygaoscar/sidekick/internal/config"
)

// Manager wraps the configured summarization backend behind the prompt
// templates.
type Manager struct {
	backend Backend
	logger  *slog.Logger
}

// NewManager builds the backend named by the configuration
func NewManager(cfg config.SummarizationConfig, logger *slog.Logger) (*Manager, error) {
	var backend Backend
	var err error

	timeout := cfg.GetTimeoutDuration()

	switch cfg.Backend {
	case "ollama":
		backend, err = NewOllamaBackend(cfg.OllamaHost, cfg.OllamaModel, timeout)
	case "openai":
		backend, err = NewOpenAIBackend(cfg.OpenAIKey, cfg.OpenAIModel, timeout)
	case "anthropic":
		backend, err = NewAnthropicBackend(cfg.AnthropicKey, cfg.AnthropicModel, timeout)
	default:
		return nil, fmt.Errorf("unknown summarization backend '%s'", cfg.Backend)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Backend, err)
	}

	logger.Info("Summarization backend initialized",
		"backend", backend.Name(),
		"model", backend.Model())

	return &Manager{
		backend: backend,
		logger:  logger,
	}, nil
}

// Backend returns the active backend name
func (m *Manager) Backend() string {
	return m.backend.Name()
}

// Summarize generates a summary of the transcript using the given
// template. customInstructions only applies to the custom template.
func (m *Manager) Summarize(ctx context.Context, transcript, promptType, customInstructions string) (*Result, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("transcript is empty")
	}

	if promptType != "custom" {
		customInstructions = ""
	}

	systemPrompt, userPrompt := BuildPrompt(promptType, transcript, customInstructions)

	m.logger.Info("Generating summary",
		"backend", m.backend.Name(),
		"template", promptType,
		"transcript_chars", len(transcript))

	result, err := m.backend.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}

	m.logger.Info("Summary generated",
		"backend", result.Backend,
		"model", result.Model,
		"content_chars", len(result.Content))

	return result, nil
}
