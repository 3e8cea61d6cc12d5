// Package vad provides energy-based voice activity detection over
// fixed-size PCM frames, plus a debounced speech segmenter.
package vad
