// Package upload persists chunked audio uploads on disk and reassembles
// them once every chunk has arrived.
package upload
