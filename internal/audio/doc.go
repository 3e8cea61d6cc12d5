// Package audio provides the adaptive speech buffer, session recording
// storage, and WAV encoding for mono float32 PCM.
package audio
