package audio

import (
	"sync"
	"time"
)

// Buffer accumulates mono PCM samples and decides when the accumulated
// audio forms a transcribable unit. It flushes on a trailing silence gap
// once a minimum duration is reached, or unconditionally at a maximum
// duration so a long monologue cannot grow without bound.
//
// The buffer tracks its position in the overall session stream: every
// flushed (or cleared) span advances the stream offset, so start offsets
// across flushes are strictly monotonic.
type Buffer struct {
	sampleRate float64

	minDuration     time.Duration
	maxDuration     time.Duration
	silenceDuration time.Duration

	samples []float32

	// Stream position bookkeeping
	streamOffset float64 // seconds consumed from the session stream

	hasSpeech       bool
	trailingSilence time.Duration

	totalFlushes uint64
	lastUpdate   time.Time

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	DurationSeconds float64 `json:"duration_seconds"`
	StreamOffset    float64 `json:"stream_offset_seconds"`
	HasSpeech       bool    `json:"has_speech"`
	TrailingSilence float64 `json:"trailing_silence_seconds"`
	TotalFlushes    uint64  `json:"total_flushes"`
}

// FlushedAudio is one transcribable unit emitted by the buffer. Offsets
// are seconds from the start of the session stream.
type FlushedAudio struct {
	Samples     []float32
	StartOffset float64
	EndOffset   float64
}

// NewBuffer creates a buffer for the given sample rate and flush policy
func NewBuffer(sampleRate int, minDuration, maxDuration, silenceDuration time.Duration) *Buffer {
	return &Buffer{
		sampleRate:      float64(sampleRate),
		minDuration:     minDuration,
		maxDuration:     maxDuration,
		silenceDuration: silenceDuration,
		samples:         make([]float32, 0, sampleRate*2),
		lastUpdate:      time.Now(),
	}
}

// AddChunk appends a chunk of samples. isSpeech is the caller's
// classification of the chunk; a speech chunk resets the trailing
// silence window.
func (b *Buffer) AddChunk(chunk []float32, isSpeech bool) {
	if len(chunk) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, chunk...)
	b.lastUpdate = time.Now()

	chunkDuration := time.Duration(float64(len(chunk)) / b.sampleRate * float64(time.Second))
	if isSpeech {
		b.hasSpeech = true
		b.trailingSilence = 0
	} else {
		b.trailingSilence += chunkDuration
	}
}

// Ready reports whether the buffered audio should be flushed now.
// True once the trailing silence gap has accumulated past the minimum
// duration, or once the maximum duration is hit regardless of content.
// Readiness does not require speech; callers that only want voiced
// flushes check HasSpeech and Clear the rest.
func (b *Buffer) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	duration := b.durationLocked()
	if duration >= b.maxDuration {
		return true
	}

	return duration >= b.minDuration && b.trailingSilence >= b.silenceDuration
}

// Flush returns the buffered audio with its stream offsets and resets
// the buffer for the next unit. Returns nil when the buffer is empty.
func (b *Buffer) Flush() *FlushedAudio {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.samples) == 0 {
		return nil
	}

	duration := b.durationLocked().Seconds()
	flushed := &FlushedAudio{
		Samples:     b.samples,
		StartOffset: b.streamOffset,
		EndOffset:   b.streamOffset + duration,
	}

	b.streamOffset += duration
	b.samples = make([]float32, 0, cap(b.samples))
	b.hasSpeech = false
	b.trailingSilence = 0
	b.totalFlushes++

	return flushed
}

// Clear discards the buffered audio without emitting it. The discarded
// span still advances the stream offset, so later flushes keep their
// position in session time.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.streamOffset += b.durationLocked().Seconds()
	b.samples = b.samples[:0]
	b.hasSpeech = false
	b.trailingSilence = 0
}

// Reset returns the buffer to its initial state, including the stream
// offset. Used when a new session starts on a reused buffer.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = b.samples[:0]
	b.streamOffset = 0
	b.hasSpeech = false
	b.trailingSilence = 0
	b.totalFlushes = 0
}

// Duration returns the duration of the currently buffered audio
func (b *Buffer) Duration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.durationLocked()
}

// HasSpeech reports whether any chunk since the last flush was speech
func (b *Buffer) HasSpeech() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hasSpeech
}

// StreamOffset returns the session stream position of the buffer start
func (b *Buffer) StreamOffset() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.streamOffset
}

// GetLastUpdate returns the time of the last buffer update
func (b *Buffer) GetLastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		DurationSeconds: b.durationLocked().Seconds(),
		StreamOffset:    b.streamOffset,
		HasSpeech:       b.hasSpeech,
		TrailingSilence: b.trailingSilence.Seconds(),
		TotalFlushes:    b.totalFlushes,
	}
}

func (b *Buffer) durationLocked() time.Duration {
	return time.Duration(float64(len(b.samples)) / b.sampleRate * float64(time.Second))
}
