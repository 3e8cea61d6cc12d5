package vad

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// SpeechRatioThreshold is the fixed policy threshold above which callers
// treat a whole chunk as speech. Not user-configurable.
const SpeechRatioThreshold = 0.3

// ErrInvalidFrameSize is returned when a frame does not match the exact
// sample count required by the configured sample rate and frame duration.
var ErrInvalidFrameSize = errors.New("invalid frame size")

// Aggressiveness 0-3 maps to an RMS energy threshold; higher levels reject
// more low-energy audio as noise.
var energyThresholds = [4]float64{0.010, 0.020, 0.040, 0.080}

// validSampleRates and validFrameDurations mirror the WebRTC VAD contract.
var (
	validSampleRates    = map[int]bool{8000: true, 16000: true, 32000: true, 48000: true}
	validFrameDurations = map[int]bool{10: true, 20: true, 30: true}
)

// Detector classifies fixed-size audio frames as speech or non-speech
type Detector struct {
	sampleRate      int
	frameDurationMs int
	aggressiveness  int
	frameSize       int // samples per frame
	threshold       float64

	// Statistics
	totalFrames  uint64
	speechFrames uint64

	mu sync.RWMutex
}

// DetectorStats represents detector statistics
type DetectorStats struct {
	SampleRate       int     `json:"sample_rate"`
	FrameDurationMs  int     `json:"frame_duration_ms"`
	Aggressiveness   int     `json:"aggressiveness"`
	TotalFrames      uint64  `json:"total_frames"`
	SpeechFrames     uint64  `json:"speech_frames"`
	SpeechPercentage float64 `json:"speech_percentage"`
}

// NewDetector creates a new voice activity detector
func NewDetector(sampleRate, frameDurationMs, aggressiveness int) (*Detector, error) {
	if !validSampleRates[sampleRate] {
		return nil, fmt.Errorf("sample rate must be one of [8000, 16000, 32000, 48000], got %d", sampleRate)
	}

	if !validFrameDurations[frameDurationMs] {
		return nil, fmt.Errorf("frame duration must be one of [10, 20, 30] ms, got %d", frameDurationMs)
	}

	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("aggressiveness must be between 0 and 3, got %d", aggressiveness)
	}

	return &Detector{
		sampleRate:      sampleRate,
		frameDurationMs: frameDurationMs,
		aggressiveness:  aggressiveness,
		frameSize:       sampleRate * frameDurationMs / 1000,
		threshold:       energyThresholds[aggressiveness],
	}, nil
}

// FrameSize returns the required frame size in samples
func (d *Detector) FrameSize() int {
	return d.frameSize
}

// SampleRate returns the configured sample rate
func (d *Detector) SampleRate() int {
	return d.sampleRate
}

// IsSpeech classifies a single frame. The frame must be exactly FrameSize
// samples of mono PCM in [-1, 1].
func (d *Detector) IsSpeech(frame []float32) (bool, error) {
	if len(frame) != d.frameSize {
		return false, fmt.Errorf("%w: frame must be %d samples, got %d",
			ErrInvalidFrameSize, d.frameSize, len(frame))
	}

	var energy float64
	for _, sample := range frame {
		energy += float64(sample) * float64(sample)
	}
	rms := math.Sqrt(energy / float64(len(frame)))

	speech := rms >= d.threshold

	d.mu.Lock()
	d.totalFrames++
	if speech {
		d.speechFrames++
	}
	d.mu.Unlock()

	return speech, nil
}

// ProcessChunk splits an arbitrary-length chunk into complete frames and
// classifies each. A trailing partial frame is dropped.
func (d *Detector) ProcessChunk(chunk []float32) ([]bool, error) {
	numFrames := len(chunk) / d.frameSize

	results := make([]bool, 0, numFrames)
	for i := 0; i < numFrames; i++ {
		frame := chunk[i*d.frameSize : (i+1)*d.frameSize]
		speech, err := d.IsSpeech(frame)
		if err != nil {
			return nil, fmt.Errorf("failed to classify frame %d: %w", i, err)
		}
		results = append(results, speech)
	}

	return results, nil
}

// SpeechRatio returns the fraction of complete frames in the chunk that
// were classified as speech. Returns 0.0 when the chunk holds no complete
// frame.
func (d *Detector) SpeechRatio(chunk []float32) (float64, error) {
	results, err := d.ProcessChunk(chunk)
	if err != nil {
		return 0, err
	}

	if len(results) == 0 {
		return 0.0, nil
	}

	speechCount := 0
	for _, speech := range results {
		if speech {
			speechCount++
		}
	}

	return float64(speechCount) / float64(len(results)), nil
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	speechPercentage := float64(0)
	if d.totalFrames > 0 {
		speechPercentage = float64(d.speechFrames) / float64(d.totalFrames) * 100
	}

	return DetectorStats{
		SampleRate:       d.sampleRate,
		FrameDurationMs:  d.frameDurationMs,
		Aggressiveness:   d.aggressiveness,
		TotalFrames:      d.totalFrames,
		SpeechFrames:     d.speechFrames,
		SpeechPercentage: speechPercentage,
	}
}

// Reset resets detector statistics
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalFrames = 0
	d.speechFrames = 0
}
