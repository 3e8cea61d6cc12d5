package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fatygaoscar/sidekick/internal/audio"
	"github.com/fatygaoscar/sidekick/internal/config"
	"github.com/fatygaoscar/sidekick/internal/export"
	"github.com/fatygaoscar/sidekick/internal/metrics"
	"github.com/fatygaoscar/sidekick/internal/pipeline"
	"github.com/fatygaoscar/sidekick/internal/session"
	"github.com/fatygaoscar/sidekick/internal/store"
	"github.com/fatygaoscar/sidekick/internal/summarize"
	"github.com/fatygaoscar/sidekick/internal/upload"
)

// maxUploadChunkSize bounds a single uploaded chunk body
const maxUploadChunkSize = 32 << 20 // 32 MB

// HTTPServer provides the HTTP API for session control, audio
// ingestion, uploads, and exports.
type HTTPServer struct {
	server *http.Server
	logger *slog.Logger
	config *config.Config

	sessions   *session.Manager
	live       *pipeline.Live
	uploads    *upload.Store
	recordings *audio.RecordingStore
	repo       *store.Store
	exports    *export.Registry
	exporter   *export.Pipeline
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP API server with all routes configured
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, sessions *session.Manager,
	live *pipeline.Live, uploads *upload.Store, recordings *audio.RecordingStore,
	repo *store.Store, exports *export.Registry, exporter *export.Pipeline,
	m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     cfg,
		sessions:   sessions,
		live:       live,
		uploads:    uploads,
		recordings: recordings,
		repo:       repo,
		exports:    exports,
		exporter:   exporter,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Session control
	mux.HandleFunc("POST /api/sessions", h.withMetrics("/api/sessions", h.handleStartSession))
	mux.HandleFunc("POST /api/sessions/stop", h.withMetrics("/api/sessions/stop", h.handleStopSession))
	mux.HandleFunc("GET /api/sessions", h.withMetrics("/api/sessions", h.handleListSessions))
	mux.HandleFunc("GET /api/sessions/{id}", h.withMetrics("/api/sessions/{id}", h.handleGetSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", h.withMetrics("/api/sessions/{id}", h.handleDeleteSession))

	// Meeting control
	mux.HandleFunc("POST /api/meetings", h.withMetrics("/api/meetings", h.handleStartMeeting))
	mux.HandleFunc("POST /api/meetings/stop", h.withMetrics("/api/meetings/stop", h.handleStopMeeting))

	// Important markers
	mux.HandleFunc("POST /api/important", h.withMetrics("/api/important", h.handleMarkImportant))

	// Live audio ingestion
	mux.HandleFunc("POST /api/audio/stream", h.withMetrics("/api/audio/stream", h.handleAudioStream))

	// Chunked recording upload
	mux.HandleFunc("PUT /api/sessions/{id}/chunks/{client}/{index}",
		h.withMetrics("/api/sessions/{id}/chunks/{client}/{index}", h.handleUploadChunk))
	mux.HandleFunc("POST /api/sessions/{id}/finalize",
		h.withMetrics("/api/sessions/{id}/finalize", h.handleFinalizeUpload))
	mux.HandleFunc("GET /api/sessions/{id}/audio",
		h.withMetrics("/api/sessions/{id}/audio", h.handleGetRecording))

	// Transcript access
	mux.HandleFunc("GET /api/sessions/{id}/segments",
		h.withMetrics("/api/sessions/{id}/segments", h.handleGetSegments))
	mux.HandleFunc("GET /api/sessions/{id}/transcript",
		h.withMetrics("/api/sessions/{id}/transcript", h.handleGetTranscript))

	// Export
	mux.HandleFunc("POST /api/export", h.withMetrics("/api/export", h.handleCreateExport))
	mux.HandleFunc("GET /api/export/{job_id}", h.withMetrics("/api/export/{job_id}", h.handleGetExport))
	mux.HandleFunc("GET /api/templates", h.withMetrics("/api/templates", h.handleListTemplates))

	// Monitoring
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		h.metrics.RecordHTTPRequest(r.Method, endpoint,
			strconv.Itoa(ww.statusCode), time.Since(startTime).Seconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server", "address", h.server.Addr)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server")
	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleStartSession starts a new capture session, ending any active one
func (h *HTTPServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	sess, err := h.sessions.StartSession(req.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.live.Start(context.Background()); err != nil {
		h.logger.Warn("Live pipeline start", "error", err)
	}
	h.metrics.RecordSessionStarted()

	writeJSON(w, http.StatusCreated, sess)
}

// handleStopSession ends the active session
func (h *HTTPServer) handleStopSession(w http.ResponseWriter, r *http.Request) {
	current := h.sessions.CurrentSession()
	if current == nil {
		writeError(w, http.StatusConflict, "no active session")
		return
	}

	// Flush pending audio into a final segment before closing
	h.live.Stop()

	sess, err := h.sessions.EndSession()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.metrics.RecordSessionEnded(time.Since(sess.StartedAt).Seconds())

	writeJSON(w, http.StatusOK, sess)
}

// handleListSessions lists recent sessions, newest first
func (h *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	sessions, err := h.repo.ListSessions(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":    len(sessions),
		"sessions": sessions,
	})
}

// handleGetSession returns one session by id
func (h *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.repo.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// handleDeleteSession removes a session with its segments, markers,
// summaries, recording, and any leftover upload fragments.
func (h *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	sess, err := h.repo.GetSession(sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if current := h.sessions.CurrentSession(); current != nil && current.ID == sessionID {
		writeError(w, http.StatusConflict, "cannot delete the active session")
		return
	}

	if err := h.repo.DeleteSession(sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.recordings.Delete(sessionID); err != nil {
		h.logger.Warn("Failed to delete recording", "session_id", sessionID, "error", err)
	}
	if err := h.uploads.Cleanup(sessionID); err != nil {
		h.logger.Warn("Failed to clean upload chunks", "session_id", sessionID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"deleted": sessionID})
}

// handleStartMeeting starts a meeting within the active session
func (h *HTTPServer) handleStartMeeting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	meeting, err := h.sessions.StartMeeting(req.Title)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, meeting)
}

// handleStopMeeting ends the active meeting
func (h *HTTPServer) handleStopMeeting(w http.ResponseWriter, r *http.Request) {
	meeting, err := h.sessions.EndMeeting()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, meeting)
}

// handleMarkImportant flags a window around now as important
func (h *HTTPServer) handleMarkImportant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note            string  `json:"note"`
		DurationSeconds float64 `json:"duration_seconds"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	marker, err := h.sessions.MarkImportant(req.Note, req.DurationSeconds)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, marker)
}

// handleAudioStream ingests one WAV-encoded live audio chunk
func (h *HTTPServer) handleAudioStream(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadChunkSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	samples, sampleRate, err := audio.DecodeWAV(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid WAV payload: %v", err))
		return
	}
	if sampleRate != h.config.Audio.SampleRate {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("sample rate %d does not match configured %d", sampleRate, h.config.Audio.SampleRate))
		return
	}

	if err := h.live.Ingest(samples); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"samples":  len(samples),
		"duration": float64(len(samples)) / float64(sampleRate),
	})
}

// handleUploadChunk stores one chunk of a resumable recording upload
func (h *HTTPServer) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	clientID := r.PathValue("client")

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "chunk index must be an integer")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadChunkSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read chunk body")
		return
	}

	if err := h.uploads.WriteChunk(sessionID, clientID, index, data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.metrics.RecordUploadChunk(len(data))

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"client_id":  clientID,
		"index":      index,
		"size":       len(data),
	})
}

// handleFinalizeUpload assembles the uploaded chunks into the session
// recording. Missing chunks produce a structured recoverable response,
// not a generic error.
func (h *HTTPServer) handleFinalizeUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req struct {
		ClientID    string `json:"client_id"`
		TotalChunks int    `json:"total_chunks"`
		ContentType string `json:"content_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid finalize request body")
		return
	}
	if req.ClientID == "" || req.TotalChunks < 1 {
		writeError(w, http.StatusBadRequest, "client_id and a positive total_chunks are required")
		return
	}

	ext, err := audio.ExtensionFromContentType(req.ContentType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.uploads.Assemble(sessionID, req.ClientID, req.TotalChunks)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if data == nil {
		missing, err := h.uploads.MissingChunks(sessionID, req.ClientID, req.TotalChunks)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.metrics.RecordUploadFinalizeMiss()
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":          "missing chunks",
			"missing_chunks": missing,
			"total_chunks":   req.TotalChunks,
		})
		return
	}

	path, err := h.recordings.Save(sessionID, ext, data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.metrics.RecordUploadFinalized()

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"path":       path,
		"size":       len(data),
	})
}

// handleGetRecording serves the stored session recording
func (h *HTTPServer) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	path := h.recordings.Find(r.PathValue("id"))
	if path == "" {
		writeError(w, http.StatusNotFound, "no recording for session")
		return
	}

	w.Header().Set("Content-Type", audio.MediaTypeForPath(path))
	http.ServeFile(w, r, path)
}

// handleGetSegments returns the stored transcript segments for a session
func (h *HTTPServer) handleGetSegments(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	sess, err := h.repo.GetSession(sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	segments, err := h.repo.SegmentsForSession(sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"total":      len(segments),
		"segments":   segments,
	})
}

// handleGetTranscript returns the joined transcript text, optionally
// with important-run tags.
func (h *HTTPServer) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	sess, err := h.repo.GetSession(sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	includeTags := r.URL.Query().Get("tags") == "true"
	text, err := h.sessions.Transcript(sessionID, includeTags)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"transcript": text,
	})
}

// handleCreateExport queues an export job and starts it in the background
func (h *HTTPServer) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID    string `json:"session_id"`
		Title        string `json:"title"`
		Template     string `json:"template"`
		CustomPrompt string `json:"custom_prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.Template == "" {
		req.Template = "default"
	}
	if _, ok := summarize.Templates[req.Template]; !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown template %q", req.Template))
		return
	}

	sess, err := h.repo.GetSession(req.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if req.Title == "" {
		req.Title = sess.Title
	}

	job := h.exports.Create(req.SessionID)
	h.metrics.RecordExportStarted()

	go func() {
		start := time.Now()
		h.exporter.Run(context.Background(), job, export.Request{
			SessionID:    req.SessionID,
			Title:        req.Title,
			Template:     req.Template,
			CustomPrompt: req.CustomPrompt,
		})

		elapsed := time.Since(start).Seconds()
		if job.Snapshot().Status == export.StatusCompleted {
			h.metrics.RecordExportCompleted(elapsed)
		} else {
			h.metrics.RecordExportFailed(elapsed)
		}
	}()

	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

// handleGetExport returns the polled state of an export job
func (h *HTTPServer) handleGetExport(w http.ResponseWriter, r *http.Request) {
	job := h.exports.Get(r.PathValue("job_id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "export job not found")
		return
	}

	writeJSON(w, http.StatusOK, job.Snapshot())
}

// handleListTemplates lists the available summary templates
func (h *HTTPServer) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": summarize.Templates})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	liveStats := h.live.GetStats()

	status := "idle"
	if h.sessions.CurrentSession() != nil {
		status = "recording"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "sidekick",
			"version": "1.0.0",
		},
		"components": map[string]any{
			"capture": map[string]any{
				"status":          status,
				"segments_stored": liveStats.SegmentsStored,
			},
			"export": map[string]any{
				"tracked_jobs": h.exports.Count(),
			},
		},
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"live":      h.live.GetStats(),
		"export": map[string]any{
			"tracked_jobs": h.exports.Count(),
		},
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Sidekick Audio Capture Service",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"POST /api/sessions":                              "Start a capture session",
			"POST /api/sessions/stop":                         "Stop the active session",
			"GET /api/sessions":                               "List recent sessions",
			"GET /api/sessions/{id}":                          "Get one session",
			"DELETE /api/sessions/{id}":                       "Delete a session and its data",
			"POST /api/meetings":                              "Start a meeting",
			"POST /api/meetings/stop":                         "Stop the active meeting",
			"POST /api/important":                             "Mark a window as important",
			"POST /api/audio/stream":                          "Ingest a live WAV audio chunk",
			"PUT /api/sessions/{id}/chunks/{client}/{index}":  "Upload one recording chunk",
			"POST /api/sessions/{id}/finalize":                "Assemble uploaded chunks",
			"GET /api/sessions/{id}/audio":                    "Download the session recording",
			"GET /api/sessions/{id}/segments":                 "List transcript segments",
			"GET /api/sessions/{id}/transcript":               "Get the joined transcript",
			"POST /api/export":                                "Start an export job",
			"GET /api/export/{job_id}":                        "Poll an export job",
			"GET /api/templates":                              "List summary templates",
			"GET /health":                                     "Service health check",
			"GET /stats":                                      "Service statistics",
			"GET /metrics":                                    "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
