package vad

// Transition represents a speech state change emitted by the segmenter
type Transition int

const (
	TransitionNone Transition = iota
	TransitionSpeechStart
	TransitionSpeechEnd
)

// String returns a human-readable transition name
func (t Transition) String() string {
	switch t {
	case TransitionSpeechStart:
		return "speech_start"
	case TransitionSpeechEnd:
		return "speech_end"
	default:
		return "none"
	}
}

// Segmenter debounces per-frame classifications into speech_start and
// speech_end transitions. A transition is only emitted once the new state
// has been stable for a minimum duration, so short noise bursts do not
// flap the state machine.
type Segmenter struct {
	detector *Detector

	minSpeechDurationMs  int
	minSilenceDurationMs int

	isSpeaking    bool
	speechFrames  int
	silenceFrames int
}

// NewSegmenter creates a segmenter with onset and offset debounce windows
// in milliseconds. Defaults: 250 ms to confirm speech, 500 ms of silence
// to confirm its end.
func NewSegmenter(detector *Detector, minSpeechDurationMs, minSilenceDurationMs int) *Segmenter {
	if minSpeechDurationMs <= 0 {
		minSpeechDurationMs = 250
	}
	if minSilenceDurationMs <= 0 {
		minSilenceDurationMs = 500
	}

	return &Segmenter{
		detector:             detector,
		minSpeechDurationMs:  minSpeechDurationMs,
		minSilenceDurationMs: minSilenceDurationMs,
	}
}

// ProcessFrame classifies one frame and returns a transition if the
// debounced state changed.
func (s *Segmenter) ProcessFrame(frame []float32) (Transition, error) {
	speech, err := s.detector.IsSpeech(frame)
	if err != nil {
		return TransitionNone, err
	}

	frameDuration := s.detector.frameDurationMs

	if speech {
		s.speechFrames++
		s.silenceFrames = 0

		if !s.isSpeaking {
			if s.speechFrames*frameDuration >= s.minSpeechDurationMs {
				s.isSpeaking = true
				return TransitionSpeechStart, nil
			}
		}
	} else {
		s.silenceFrames++

		if s.isSpeaking {
			if s.silenceFrames*frameDuration >= s.minSilenceDurationMs {
				s.isSpeaking = false
				s.speechFrames = 0
				return TransitionSpeechEnd, nil
			}
		}
	}

	return TransitionNone, nil
}

// IsSpeaking returns the current debounced speech state
func (s *Segmenter) IsSpeaking() bool {
	return s.isSpeaking
}

// Reset resets the segmenter state
func (s *Segmenter) Reset() {
	s.isSpeaking = false
	s.speechFrames = 0
	s.silenceFrames = 0
}
