package vad

import (
	"errors"
	"testing"
)

func speechFrame(size int) []float32 {
	frame := make([]float32, size)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = 0.5
		} else {
			frame[i] = -0.5
		}
	}
	return frame
}

func silenceFrame(size int) []float32 {
	return make([]float32, size)
}

func TestNewDetectorValidation(t *testing.T) {
	tests := []struct {
		name            string
		sampleRate      int
		frameDurationMs int
		aggressiveness  int
		wantErr         bool
	}{
		{"valid 16kHz 30ms", 16000, 30, 2, false},
		{"valid 8kHz 10ms", 8000, 10, 0, false},
		{"valid 48kHz 20ms", 48000, 20, 3, false},
		{"invalid sample rate", 44100, 30, 2, true},
		{"invalid frame duration", 16000, 25, 2, true},
		{"aggressiveness too high", 16000, 30, 4, true},
		{"aggressiveness negative", 16000, 30, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDetector(tt.sampleRate, tt.frameDurationMs, tt.aggressiveness)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewDetector() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFrameSizeFormula(t *testing.T) {
	for _, sampleRate := range []int{8000, 16000, 32000, 48000} {
		for _, durationMs := range []int{10, 20, 30} {
			detector, err := NewDetector(sampleRate, durationMs, 2)
			if err != nil {
				t.Fatalf("NewDetector(%d, %d): %v", sampleRate, durationMs, err)
			}

			want := sampleRate * durationMs / 1000
			if detector.FrameSize() != want {
				t.Errorf("FrameSize() for %dHz/%dms = %d, want %d",
					sampleRate, durationMs, detector.FrameSize(), want)
			}
		}
	}
}

func TestIsSpeechFrameSizeMismatch(t *testing.T) {
	detector, err := NewDetector(16000, 30, 2)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	// 480 samples for 16kHz/30ms, anything else must fail
	for _, size := range []int{0, 1, 479, 481, 960} {
		_, err := detector.IsSpeech(make([]float32, size))
		if err == nil {
			t.Errorf("IsSpeech with %d samples: expected error", size)
		}
		if !errors.Is(err, ErrInvalidFrameSize) {
			t.Errorf("IsSpeech with %d samples: error %v is not ErrInvalidFrameSize", size, err)
		}
	}
}

func TestIsSpeechClassification(t *testing.T) {
	detector, err := NewDetector(16000, 30, 2)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}

	speech, err := detector.IsSpeech(speechFrame(detector.FrameSize()))
	if err != nil {
		t.Fatalf("IsSpeech(speech frame): %v", err)
	}
	if !speech {
		t.Error("Expected high-energy frame to classify as speech")
	}

	speech, err = detector.IsSpeech(silenceFrame(detector.FrameSize()))
	if err != nil {
		t.Fatalf("IsSpeech(silence frame): %v", err)
	}
	if speech {
		t.Error("Expected zero-energy frame to classify as silence")
	}
}

func TestSpeechRatio(t *testing.T) {
	detector, err := NewDetector(16000, 30, 2)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	frameSize := detector.FrameSize()

	tests := []struct {
		name  string
		chunk []float32
		want  float64
	}{
		{"all silence", silenceFrame(frameSize * 5), 0.0},
		{"all speech", speechFrame(frameSize * 5), 1.0},
		{"shorter than one frame", silenceFrame(frameSize - 1), 0.0},
		{"empty chunk", nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ratio, err := detector.SpeechRatio(tt.chunk)
			if err != nil {
				t.Fatalf("SpeechRatio: %v", err)
			}
			if ratio != tt.want {
				t.Errorf("SpeechRatio = %f, want %f", ratio, tt.want)
			}
		})
	}
}

func TestSpeechRatioMixed(t *testing.T) {
	detector, err := NewDetector(16000, 30, 2)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	frameSize := detector.FrameSize()

	// 2 speech frames followed by 3 silence frames, trailing partial dropped
	chunk := make([]float32, 0, frameSize*5+frameSize/2)
	chunk = append(chunk, speechFrame(frameSize*2)...)
	chunk = append(chunk, silenceFrame(frameSize*3)...)
	chunk = append(chunk, speechFrame(frameSize/2)...) // partial, ignored

	ratio, err := detector.SpeechRatio(chunk)
	if err != nil {
		t.Fatalf("SpeechRatio: %v", err)
	}

	want := 2.0 / 5.0
	if ratio != want {
		t.Errorf("SpeechRatio = %f, want %f", ratio, want)
	}
}

func TestDetectorStats(t *testing.T) {
	detector, err := NewDetector(16000, 30, 2)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	frameSize := detector.FrameSize()

	detector.IsSpeech(speechFrame(frameSize))
	detector.IsSpeech(silenceFrame(frameSize))
	detector.IsSpeech(silenceFrame(frameSize))

	stats := detector.GetStats()
	if stats.TotalFrames != 3 {
		t.Errorf("Expected 3 total frames, got %d", stats.TotalFrames)
	}
	if stats.SpeechFrames != 1 {
		t.Errorf("Expected 1 speech frame, got %d", stats.SpeechFrames)
	}

	detector.Reset()
	stats = detector.GetStats()
	if stats.TotalFrames != 0 || stats.SpeechFrames != 0 {
		t.Error("Expected stats to be cleared after Reset")
	}
}

func TestSegmenterDebounce(t *testing.T) {
	detector, err := NewDetector(16000, 30, 2)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	segmenter := NewSegmenter(detector, 250, 500)
	frameSize := detector.FrameSize()

	// 250ms at 30ms frames means speech confirms on frame 9 (9*30=270ms)
	var started bool
	for i := 0; i < 8; i++ {
		transition, err := segmenter.ProcessFrame(speechFrame(frameSize))
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		if transition == TransitionSpeechStart {
			started = true
			if (i+1)*30 < 250 {
				t.Errorf("speech_start emitted after only %d ms", (i+1)*30)
			}
		}
	}

	transition, err := segmenter.ProcessFrame(speechFrame(frameSize))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if transition == TransitionSpeechStart {
		started = true
	}
	if !started {
		t.Fatal("Expected speech_start after sustained speech")
	}
	if !segmenter.IsSpeaking() {
		t.Error("Expected segmenter to be in speaking state")
	}

	// Silence must persist for 500ms before speech_end fires
	var ended bool
	for i := 0; i < 20; i++ {
		transition, err := segmenter.ProcessFrame(silenceFrame(frameSize))
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		if transition == TransitionSpeechEnd {
			ended = true
			if (i+1)*30 < 500 {
				t.Errorf("speech_end emitted after only %d ms of silence", (i+1)*30)
			}
			break
		}
	}
	if !ended {
		t.Fatal("Expected speech_end after sustained silence")
	}
	if segmenter.IsSpeaking() {
		t.Error("Expected segmenter to leave speaking state")
	}
}

func TestSegmenterIgnoresShortBursts(t *testing.T) {
	detector, err := NewDetector(16000, 30, 2)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	segmenter := NewSegmenter(detector, 250, 500)
	frameSize := detector.FrameSize()

	// Two speech frames (60ms) is below the 250ms onset window
	for i := 0; i < 2; i++ {
		transition, err := segmenter.ProcessFrame(speechFrame(frameSize))
		if err != nil {
			t.Fatalf("ProcessFrame: %v", err)
		}
		if transition != TransitionNone {
			t.Errorf("Expected no transition for short burst, got %s", transition)
		}
	}

	if segmenter.IsSpeaking() {
		t.Error("Short burst should not enter speaking state")
	}
}
