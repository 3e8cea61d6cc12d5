package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Audio         AudioConfig         `yaml:"audio"`
	VAD           VADConfig           `yaml:"vad"`
	Buffer        BufferConfig        `yaml:"buffer"`
	Upload        UploadConfig        `yaml:"upload"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Summarization SummarizationConfig `yaml:"summarization"`
	Export        ExportConfig        `yaml:"export"`
	Database      DatabaseConfig      `yaml:"database"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// AudioConfig contains audio capture parameters
type AudioConfig struct {
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	DataDir    string `yaml:"data_dir"`
}

// VADConfig contains voice activity detection configuration
type VADConfig struct {
	Aggressiveness     int     `yaml:"aggressiveness"`
	FrameDurationMs    int     `yaml:"frame_duration_ms"`
	MinSpeechDuration  float64 `yaml:"min_speech_duration"`  // seconds
	MinSilenceDuration float64 `yaml:"min_silence_duration"` // seconds
}

// BufferConfig contains adaptive audio buffer configuration
type BufferConfig struct {
	MinDuration      float64 `yaml:"min_duration"`      // seconds
	MaxDuration      float64 `yaml:"max_duration"`      // seconds
	SilenceThreshold float64 `yaml:"silence_threshold"` // seconds
	PollInterval     int     `yaml:"poll_interval_ms"`  // milliseconds
}

// UploadConfig contains chunked upload storage configuration
type UploadConfig struct {
	ChunkDir string `yaml:"chunk_dir"`
}

// TranscriptionConfig contains transcription engine configuration
type TranscriptionConfig struct {
	Backend       string `yaml:"backend"` // "local" or "openai"
	LocalEndpoint string `yaml:"local_endpoint"`
	APIEndpoint   string `yaml:"api_endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Language      string `yaml:"language"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// SummarizationConfig contains summarization backend configuration
type SummarizationConfig struct {
	Backend        string `yaml:"backend"` // "ollama", "openai" or "anthropic"
	OllamaHost     string `yaml:"ollama_host"`
	OllamaModel    string `yaml:"ollama_model"`
	OpenAIModel    string `yaml:"openai_model"`
	OpenAIKey      string `yaml:"openai_api_key"`
	AnthropicModel string `yaml:"anthropic_model"`
	AnthropicKey   string `yaml:"anthropic_api_key"`
	Timeout        int    `yaml:"timeout"` // seconds
}

// ExportConfig contains notes vault export configuration
type ExportConfig struct {
	VaultPath string `yaml:"vault_path"`
}

// DatabaseConfig contains SQLite database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Default returns a configuration populated with service defaults
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:    8000,
			Address: "0.0.0.0",
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			DataDir:    "data",
		},
		VAD: VADConfig{
			Aggressiveness:     2,
			FrameDurationMs:    30,
			MinSpeechDuration:  0.25,
			MinSilenceDuration: 0.5,
		},
		Buffer: BufferConfig{
			MinDuration:      0.5,
			MaxDuration:      30.0,
			SilenceThreshold: 1.0,
			PollInterval:     100,
		},
		Upload: UploadConfig{
			ChunkDir: "data/chunks",
		},
		Transcription: TranscriptionConfig{
			Backend:       "local",
			LocalEndpoint: "http://localhost:9000/transcribe",
			Model:         "whisper-1",
			Timeout:       300,
			MaxRetries:    3,
			MaxConcurrent: 1,
		},
		Summarization: SummarizationConfig{
			Backend:        "ollama",
			OllamaHost:     "http://localhost:11434",
			OllamaModel:    "llama3.2",
			OpenAIModel:    "gpt-4o-mini",
			AnthropicModel: "claude-3-haiku-20240307",
			Timeout:        120,
		},
		Export: ExportConfig{
			VaultPath: "data/notes",
		},
		Database: DatabaseConfig{
			Path: "data/sidekick.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Buffer.Validate(); err != nil {
		return fmt.Errorf("buffer config: %w", err)
	}

	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Summarization.Validate(); err != nil {
		return fmt.Errorf("summarization config: %w", err)
	}

	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export config: %w", err)
	}

	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	switch a.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 32000, 48000], got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Aggressiveness < 0 || v.Aggressiveness > 3 {
		return fmt.Errorf("aggressiveness must be between 0 and 3, got %d", v.Aggressiveness)
	}

	switch v.FrameDurationMs {
	case 10, 20, 30:
	default:
		return fmt.Errorf("frame_duration_ms must be one of [10, 20, 30], got %d", v.FrameDurationMs)
	}

	if v.MinSpeechDuration <= 0 {
		return fmt.Errorf("min_speech_duration must be positive, got %f", v.MinSpeechDuration)
	}

	if v.MinSilenceDuration <= 0 {
		return fmt.Errorf("min_silence_duration must be positive, got %f", v.MinSilenceDuration)
	}

	return nil
}

// Validate validates buffer configuration
func (b *BufferConfig) Validate() error {
	if b.MinDuration <= 0 {
		return fmt.Errorf("min_duration must be positive, got %f", b.MinDuration)
	}

	if b.MaxDuration <= b.MinDuration {
		return fmt.Errorf("max_duration (%f) must be greater than min_duration (%f)",
			b.MaxDuration, b.MinDuration)
	}

	if b.SilenceThreshold <= 0 {
		return fmt.Errorf("silence_threshold must be positive, got %f", b.SilenceThreshold)
	}

	if b.PollInterval < 10 {
		return fmt.Errorf("poll_interval_ms must be at least 10, got %d", b.PollInterval)
	}

	return nil
}

// Validate validates upload configuration
func (u *UploadConfig) Validate() error {
	if u.ChunkDir == "" {
		return fmt.Errorf("chunk_dir cannot be empty")
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	switch t.Backend {
	case "local":
		if t.LocalEndpoint == "" {
			return fmt.Errorf("local_endpoint cannot be empty for local backend")
		}
	case "openai":
		if t.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for openai backend")
		}
		if t.APIEndpoint == "" {
			return fmt.Errorf("api_endpoint cannot be empty for openai backend")
		}
	default:
		return fmt.Errorf("backend must be 'local' or 'openai', got '%s'", t.Backend)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates summarization configuration
func (s *SummarizationConfig) Validate() error {
	switch s.Backend {
	case "ollama":
		if s.OllamaHost == "" {
			return fmt.Errorf("ollama_host cannot be empty for ollama backend")
		}
	case "openai":
		if s.OpenAIKey == "" {
			return fmt.Errorf("openai_api_key cannot be empty for openai backend")
		}
	case "anthropic":
		if s.AnthropicKey == "" {
			return fmt.Errorf("anthropic_api_key cannot be empty for anthropic backend")
		}
	default:
		return fmt.Errorf("backend must be one of [ollama, openai, anthropic], got '%s'", s.Backend)
	}

	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	return nil
}

// Validate validates export configuration
func (e *ExportConfig) Validate() error {
	if e.VaultPath == "" {
		return fmt.Errorf("vault_path cannot be empty")
	}

	return nil
}

// Validate validates database configuration
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetMinDuration returns the minimum buffer duration as a time.Duration
func (b *BufferConfig) GetMinDuration() time.Duration {
	return time.Duration(b.MinDuration * float64(time.Second))
}

// GetMaxDuration returns the maximum buffer duration as a time.Duration
func (b *BufferConfig) GetMaxDuration() time.Duration {
	return time.Duration(b.MaxDuration * float64(time.Second))
}

// GetSilenceThreshold returns the flush silence threshold as a time.Duration
func (b *BufferConfig) GetSilenceThreshold() time.Duration {
	return time.Duration(b.SilenceThreshold * float64(time.Second))
}

// GetPollInterval returns the buffer poll interval as a time.Duration
func (b *BufferConfig) GetPollInterval() time.Duration {
	return time.Duration(b.PollInterval) * time.Millisecond
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration
func (v *VADConfig) GetMinSpeechDuration() time.Duration {
	return time.Duration(v.MinSpeechDuration * float64(time.Second))
}

// GetMinSilenceDuration returns the minimum silence duration as a time.Duration
func (v *VADConfig) GetMinSilenceDuration() time.Duration {
	return time.Duration(v.MinSilenceDuration * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the summarization timeout as a time.Duration
func (s *SummarizationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}
