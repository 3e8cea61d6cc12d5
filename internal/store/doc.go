// Package store persists sessions, meetings, transcript segments,
// summaries and important markers in SQLite.
package store
