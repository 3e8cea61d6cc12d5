// Package transcription converts audio into timestamped text through a
// local whisper server or an OpenAI-compatible HTTP API.
package transcription
