package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the capture service
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsEnded   prometheus.Counter
	SessionDuration prometheus.Histogram

	// Live audio metrics
	AudioChunksIngested prometheus.Counter
	BufferFlushes       prometheus.Counter
	FlushDuration       prometheus.Histogram
	VADFramesProcessed  prometheus.Counter
	VADSpeechFrames     prometheus.Counter

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	SegmentsStored         prometheus.Counter

	// Upload metrics
	UploadChunksWritten  prometheus.Counter
	UploadChunkBytes     prometheus.Histogram
	UploadsFinalized     prometheus.Counter
	UploadFinalizeMisses prometheus.Counter

	// Export metrics
	ExportJobsStarted   prometheus.Counter
	ExportJobsCompleted prometheus.Counter
	ExportJobsFailed    prometheus.Counter
	ExportDuration      prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them on the given
// registerer. Pass prometheus.DefaultRegisterer in production; tests
// use a fresh registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sidekick_active_sessions",
			Help: "Current number of active capture sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),
		SessionsEnded: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_sessions_ended_total",
			Help: "Total number of capture sessions ended",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sidekick_session_duration_seconds",
			Help:    "Duration of capture sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(60, 2, 10), // 1 minute to ~17 hours
		}),

		// Live audio metrics
		AudioChunksIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_audio_chunks_ingested_total",
			Help: "Total number of live audio chunks ingested",
		}),
		BufferFlushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_buffer_flushes_total",
			Help: "Total number of adaptive buffer flushes",
		}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sidekick_flush_duration_seconds",
			Help:    "Audio duration of flushed buffer spans",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),
		VADFramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_vad_frames_processed_total",
			Help: "Total number of VAD frames classified",
		}),
		VADSpeechFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_vad_speech_frames_total",
			Help: "Total number of VAD frames classified as speech",
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sidekick_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		SegmentsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_segments_stored_total",
			Help: "Total number of transcript segments stored",
		}),

		// Upload metrics
		UploadChunksWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_upload_chunks_written_total",
			Help: "Total number of upload chunks written",
		}),
		UploadChunkBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sidekick_upload_chunk_bytes",
			Help:    "Size of written upload chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		UploadsFinalized: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_uploads_finalized_total",
			Help: "Total number of chunked uploads assembled",
		}),
		UploadFinalizeMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_upload_finalize_misses_total",
			Help: "Total number of finalize attempts with missing chunks",
		}),

		// Export metrics
		ExportJobsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_export_jobs_started_total",
			Help: "Total number of export jobs started",
		}),
		ExportJobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_export_jobs_completed_total",
			Help: "Total number of export jobs completed",
		}),
		ExportJobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sidekick_export_jobs_failed_total",
			Help: "Total number of export jobs failed",
		}),
		ExportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sidekick_export_duration_seconds",
			Help:    "Wall-clock duration of export jobs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sidekick_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sidekick_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordSessionStarted increments session counters
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Set(1)
}

// RecordSessionEnded records a finished session and its duration
func (m *Metrics) RecordSessionEnded(durationSeconds float64) {
	m.SessionsEnded.Inc()
	m.ActiveSessions.Set(0)
	m.SessionDuration.Observe(durationSeconds)
}

// RecordAudioChunk records one ingested live audio chunk with its VAD
// frame classification counts.
func (m *Metrics) RecordAudioChunk(framesProcessed, speechFrames int) {
	m.AudioChunksIngested.Inc()
	m.VADFramesProcessed.Add(float64(framesProcessed))
	m.VADSpeechFrames.Add(float64(speechFrames))
}

// RecordBufferFlush records one adaptive buffer flush
func (m *Metrics) RecordBufferFlush(durationSeconds float64) {
	m.BufferFlushes.Inc()
	m.FlushDuration.Observe(durationSeconds)
}

// RecordTranscriptionRequest increments the transcription request counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordSegmentStored increments the stored segment counter
func (m *Metrics) RecordSegmentStored() {
	m.SegmentsStored.Inc()
}

// RecordUploadChunk records one written upload chunk
func (m *Metrics) RecordUploadChunk(sizeBytes int) {
	m.UploadChunksWritten.Inc()
	m.UploadChunkBytes.Observe(float64(sizeBytes))
}

// RecordUploadFinalized increments the assembled upload counter
func (m *Metrics) RecordUploadFinalized() {
	m.UploadsFinalized.Inc()
}

// RecordUploadFinalizeMiss increments the missing-chunks finalize counter
func (m *Metrics) RecordUploadFinalizeMiss() {
	m.UploadFinalizeMisses.Inc()
}

// RecordExportStarted increments the export job counter
func (m *Metrics) RecordExportStarted() {
	m.ExportJobsStarted.Inc()
}

// RecordExportCompleted records a completed export job
func (m *Metrics) RecordExportCompleted(durationSeconds float64) {
	m.ExportJobsCompleted.Inc()
	m.ExportDuration.Observe(durationSeconds)
}

// RecordExportFailed records a failed export job
func (m *Metrics) RecordExportFailed(durationSeconds float64) {
	m.ExportJobsFailed.Inc()
	m.ExportDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
