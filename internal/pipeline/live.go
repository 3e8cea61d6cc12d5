package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fatygaoscar/sidekick/internal/audio"
	"github.com/fatygaoscar/sidekick/internal/config"
	"github.com/fatygaoscar/sidekick/internal/metrics"
	"github.com/fatygaoscar/sidekick/internal/session"
	"github.com/fatygaoscar/sidekick/internal/transcription"
	"github.com/fatygaoscar/sidekick/internal/vad"
)

// SpanTranscriber is the slice of the transcription manager the live
// pipeline needs.
type SpanTranscriber interface {
	TranscribeSamples(ctx context.Context, sessionID string, samples []float32, sampleRate int, startOffset float64) (*transcription.Result, error)
}

// Live ingests streamed audio chunks, classifies them through VAD,
// accumulates them in the adaptive buffer, and stores one transcript
// segment per buffer flush. Each flush already corresponds to one
// natural utterance window, so no reconciliation happens here.
type Live struct {
	detector    *vad.Detector
	buffer      *audio.Buffer
	sessions    *session.Manager
	transcriber SpanTranscriber
	metrics     *metrics.Metrics
	logger      *slog.Logger

	sampleRate   int
	pollInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	running        bool
	chunksIngested int64
	flushCount     int64
	segmentsStored int64
	errorCount     int64
}

// LiveStats contains live pipeline statistics
type LiveStats struct {
	Running        bool              `json:"running"`
	ChunksIngested int64             `json:"chunks_ingested"`
	Flushes        int64             `json:"flushes"`
	SegmentsStored int64             `json:"segments_stored"`
	Errors         int64             `json:"errors"`
	Buffer         audio.BufferStats `json:"buffer"`
	Detector       vad.DetectorStats `json:"detector"`
}

// NewLive builds the live pipeline from configuration
func NewLive(cfg *config.Config, sessions *session.Manager, transcriber SpanTranscriber,
	m *metrics.Metrics, logger *slog.Logger) (*Live, error) {
	detector, err := vad.NewDetector(cfg.Audio.SampleRate, cfg.VAD.FrameDurationMs, cfg.VAD.Aggressiveness)
	if err != nil {
		return nil, fmt.Errorf("failed to create VAD detector: %w", err)
	}

	buffer := audio.NewBuffer(cfg.Audio.SampleRate,
		cfg.Buffer.GetMinDuration(),
		cfg.Buffer.GetMaxDuration(),
		cfg.Buffer.GetSilenceThreshold())

	return &Live{
		detector:     detector,
		buffer:       buffer,
		sessions:     sessions,
		transcriber:  transcriber,
		metrics:      m,
		logger:       logger,
		sampleRate:   cfg.Audio.SampleRate,
		pollInterval: cfg.Buffer.GetPollInterval(),
	}, nil
}

// Start launches the buffer readiness poll loop
func (l *Live) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("live pipeline already running")
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.running = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.pollLoop(ctx)
	}()

	l.logger.Info("Live pipeline started",
		"sample_rate", l.sampleRate,
		"poll_interval", l.pollInterval)

	return nil
}

// Stop force-flushes any pending speech, stops the poll loop, and
// resets the buffer for the next session.
func (l *Live) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	cancel := l.cancel
	l.mu.Unlock()

	// Pending speech becomes a final segment even below the minimum
	// flush duration
	if l.buffer.HasSpeech() && l.buffer.Duration() > 0 {
		l.drain(context.Background())
	}

	cancel()
	l.wg.Wait()

	l.buffer.Reset()
	l.detector.Reset()

	l.logger.Info("Live pipeline stopped")
}

// Ingest classifies one audio chunk and adds it to the buffer. The
// chunk is treated as speech when more than the threshold fraction of
// its complete VAD frames carry voice.
func (l *Live) Ingest(samples []float32) error {
	if len(samples) == 0 {
		return fmt.Errorf("audio chunk cannot be empty")
	}
	if l.sessions.CurrentSession() == nil {
		return fmt.Errorf("no active session")
	}

	frames, err := l.detector.ProcessChunk(samples)
	if err != nil {
		return fmt.Errorf("VAD classification failed: %w", err)
	}

	speechFrames := 0
	for _, speech := range frames {
		if speech {
			speechFrames++
		}
	}

	ratio := 0.0
	if len(frames) > 0 {
		ratio = float64(speechFrames) / float64(len(frames))
	}
	isSpeech := ratio > vad.SpeechRatioThreshold

	l.buffer.AddChunk(samples, isSpeech)

	l.mu.Lock()
	l.chunksIngested++
	l.mu.Unlock()

	l.metrics.RecordAudioChunk(len(frames), speechFrames)

	return nil
}

// pollLoop checks buffer readiness on a fixed interval
func (l *Live) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if !l.buffer.Ready() {
				continue
			}

			// A buffer that hit the duration cap without any speech
			// is discarded, keeping the stream offset moving.
			if !l.buffer.HasSpeech() {
				l.buffer.Clear()
				continue
			}

			l.drain(ctx)
		}
	}
}

// drain flushes the buffer and stores the transcribed span as one
// segment.
func (l *Live) drain(ctx context.Context) {
	current := l.sessions.CurrentSession()
	if current == nil {
		l.buffer.Clear()
		return
	}

	flushed := l.buffer.Flush()
	if flushed == nil {
		return
	}

	l.mu.Lock()
	l.flushCount++
	l.mu.Unlock()
	l.metrics.RecordBufferFlush(flushed.EndOffset - flushed.StartOffset)

	start := time.Now()
	l.metrics.RecordTranscriptionRequest()

	result, err := l.transcriber.TranscribeSamples(ctx, current.ID, flushed.Samples, l.sampleRate, flushed.StartOffset)
	if err != nil {
		l.metrics.RecordTranscriptionFailure(time.Since(start).Seconds())
		l.recordError()
		l.logger.Error("Live transcription failed",
			"session_id", current.ID,
			"start_offset", flushed.StartOffset,
			"error", err)
		return
	}
	l.metrics.RecordTranscriptionSuccess(time.Since(start).Seconds())

	text := strings.TrimSpace(result.Text)
	if text == "" {
		l.logger.Debug("Flush produced no text",
			"session_id", current.ID,
			"start_offset", flushed.StartOffset)
		return
	}

	if _, err := l.sessions.AddSegment(text, flushed.StartOffset, flushed.EndOffset, nil); err != nil {
		l.recordError()
		l.logger.Error("Failed to store live segment",
			"session_id", current.ID,
			"error", err)
		return
	}

	l.mu.Lock()
	l.segmentsStored++
	l.mu.Unlock()
	l.metrics.RecordSegmentStored()

	l.logger.Debug("Live segment stored",
		"session_id", current.ID,
		"start", flushed.StartOffset,
		"end", flushed.EndOffset,
		"chars", len(text))
}

func (l *Live) recordError() {
	l.mu.Lock()
	l.errorCount++
	l.mu.Unlock()
}

// GetStats returns current live pipeline statistics
func (l *Live) GetStats() LiveStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return LiveStats{
		Running:        l.running,
		ChunksIngested: l.chunksIngested,
		Flushes:        l.flushCount,
		SegmentsStored: l.segmentsStored,
		Errors:         l.errorCount,
		Buffer:         l.buffer.GetStats(),
		Detector:       l.detector.GetStats(),
	}
}
