package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

// LocalEngine talks to a whisper server on the local machine. The
// server runs one model instance, so requests are serialized through a
// single-slot semaphore instead of being queued on the GPU.
type LocalEngine struct {
	config     LocalConfig
	httpClient *http.Client
	semaphore  chan struct{}

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// LocalConfig contains local whisper server configuration
type LocalConfig struct {
	Endpoint string
	Language string
	Timeout  time.Duration
}

// localResponse mirrors the local whisper server JSON payload
type localResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Words    []Word  `json:"words"`
}

// NewLocalEngine creates a local whisper engine
func NewLocalEngine(config LocalConfig) (*LocalEngine, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}

	return &LocalEngine{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		semaphore: make(chan struct{}, 1),
	}, nil
}

// Name returns the engine identifier
func (e *LocalEngine) Name() string {
	return "local"
}

// Transcribe sends the audio payload to the local whisper server
func (e *LocalEngine) Transcribe(ctx context.Context, audio []byte, format string) (*Result, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("audio payload is empty")
	}

	select {
	case e.semaphore <- struct{}{}:
		defer func() { <-e.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	e.mu.Lock()
	e.totalRequests++
	e.mu.Unlock()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.WriteField("word_timestamps", "true"); err != nil {
		return nil, fmt.Errorf("failed to write field: %w", err)
	}
	if e.config.Language != "" {
		if err := writer.WriteField("language", e.config.Language); err != nil {
			return nil, fmt.Errorf("failed to write field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.config.Endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		e.recordFailure()
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		e.recordFailure()
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.recordFailure()
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var localResp localResponse
	if err := json.Unmarshal(respBody, &localResp); err != nil {
		e.recordFailure()
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	e.mu.Lock()
	e.successRequests++
	elapsed := time.Since(startTime)
	if e.avgResponseTime == 0 {
		e.avgResponseTime = elapsed
	} else {
		e.avgResponseTime = (e.avgResponseTime + elapsed) / 2
	}
	e.mu.Unlock()

	return &Result{
		Text:     strings.TrimSpace(localResp.Text),
		Language: localResp.Language,
		Duration: localResp.Duration,
		Words:    localResp.Words,
	}, nil
}

func (e *LocalEngine) recordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedRequests++
}

// GetStats returns current engine statistics
func (e *LocalEngine) GetStats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	successRate := float64(0)
	if e.totalRequests > 0 {
		successRate = float64(e.successRequests) / float64(e.totalRequests) * 100
	}

	return EngineStats{
		TotalRequests:   e.totalRequests,
		SuccessRequests: e.successRequests,
		FailedRequests:  e.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: e.avgResponseTime,
	}
}

// Close waits for an in-flight request to complete
func (e *LocalEngine) Close() error {
	e.semaphore <- struct{}{}
	return nil
}
