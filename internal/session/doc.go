// Package session tracks the active recording session and meeting,
// important markers, and transcript assembly.
package session
