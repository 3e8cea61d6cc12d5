// Package events provides an in-process publish/subscribe bus for
// session lifecycle and transcription notifications.
package events
