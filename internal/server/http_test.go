package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fatygaoscar/sidekick/internal/audio"
	"github.com/fatygaoscar/sidekick/internal/config"
	"github.com/fatygaoscar/sidekick/internal/events"
	"github.com/fatygaoscar/sidekick/internal/export"
	"github.com/fatygaoscar/sidekick/internal/metrics"
	"github.com/fatygaoscar/sidekick/internal/pipeline"
	"github.com/fatygaoscar/sidekick/internal/session"
	"github.com/fatygaoscar/sidekick/internal/store"
	"github.com/fatygaoscar/sidekick/internal/summarize"
	"github.com/fatygaoscar/sidekick/internal/transcription"
	"github.com/fatygaoscar/sidekick/internal/upload"
)

type fixedTranscriber struct {
	text  string
	words []transcription.Word
}

func (f *fixedTranscriber) TranscribeSamples(_ context.Context, _ string, _ []float32, _ int, startOffset float64) (*transcription.Result, error) {
	return &transcription.Result{Text: f.text}, nil
}

func (f *fixedTranscriber) TranscribeRecording(_ context.Context, _ string, progress transcription.ProgressFunc) (*transcription.Result, error) {
	if progress != nil {
		progress(1, "Transcription complete")
	}
	return &transcription.Result{Text: f.text, Duration: 5, Words: f.words}, nil
}

type fixedSummarizer struct{ content string }

func (f *fixedSummarizer) Summarize(_ context.Context, _, _, _ string) (*summarize.Result, error) {
	return &summarize.Result{Content: f.content, Backend: "ollama", Model: "llama3.2"}, nil
}

func (f *fixedSummarizer) Backend() string { return "ollama" }

type apiEnv struct {
	ts   *httptest.Server
	repo *store.Store
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.Export.VaultPath = t.TempDir()

	repo, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	bus := events.NewBus(logger)
	sessions := session.NewManager(repo, bus, logger)
	m := metrics.NewMetrics(prometheus.NewRegistry())

	stub := &fixedTranscriber{
		text: "we agreed on the plan.",
		words: []transcription.Word{
			{Text: "we", Start: 0.0, End: 0.2},
			{Text: "agreed", Start: 0.3, End: 0.7},
			{Text: "on", Start: 0.8, End: 0.9},
			{Text: "the", Start: 1.0, End: 1.1},
			{Text: "plan.", Start: 1.2, End: 1.6},
		},
	}

	live, err := pipeline.NewLive(cfg, sessions, stub, m, logger)
	if err != nil {
		t.Fatalf("NewLive: %v", err)
	}

	uploads, err := upload.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("upload.NewStore: %v", err)
	}
	recordings, err := audio.NewRecordingStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewRecordingStore: %v", err)
	}

	exports := export.NewRegistry()
	exporter := export.NewPipeline(repo, recordings, stub, &fixedSummarizer{content: "## Summary\nAgreed."},
		bus, logger, cfg.Export.VaultPath)

	h := NewHTTPServer(cfg, logger, sessions, live, uploads, recordings, repo, exports, exporter, m)
	ts := httptest.NewServer(h.server.Handler)
	t.Cleanup(ts.Close)

	return &apiEnv{ts: ts, repo: repo}
}

func (e *apiEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return out
}

func TestSessionEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	// No active session yet
	resp := env.postJSON(t, "/api/sessions/stop", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Stop with no session = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/api/sessions", map[string]string{"title": "Focus"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Start session = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[store.Session](t, resp)
	if created.Title != "Focus" || created.Status != store.SessionActive {
		t.Errorf("Created session = %+v", created)
	}

	resp, err := http.Get(env.ts.URL + "/api/sessions/" + created.ID)
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Get session = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/api/sessions/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Stop session = %d", resp.StatusCode)
	}
	stopped := decodeBody[store.Session](t, resp)
	if stopped.Status != store.SessionStopped {
		t.Errorf("Stopped status = %q", stopped.Status)
	}

	resp, err = http.Get(env.ts.URL + "/api/sessions?limit=10")
	if err != nil {
		t.Fatalf("GET sessions: %v", err)
	}
	listing := decodeBody[struct {
		Total int `json:"total"`
	}](t, resp)
	if listing.Total != 1 {
		t.Errorf("Total = %d, want 1", listing.Total)
	}

	resp, err = http.Get(env.ts.URL + "/api/sessions/nonexistent")
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Missing session = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAudioStreamEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	samples := make([]float32, 16000)
	wav, err := audio.EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	// Rejected without an active session
	resp, err := http.Post(env.ts.URL+"/api/audio/stream", "audio/wav", bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("POST stream: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Stream without session = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	env.postJSON(t, "/api/sessions", nil).Body.Close()

	resp, err = http.Post(env.ts.URL+"/api/audio/stream", "audio/wav", bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("POST stream: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Stream = %d, want 202", resp.StatusCode)
	}
	accepted := decodeBody[struct {
		Samples  int     `json:"samples"`
		Duration float64 `json:"duration"`
	}](t, resp)
	if accepted.Samples != 16000 || accepted.Duration != 1.0 {
		t.Errorf("Accepted = %+v", accepted)
	}

	// Garbage payload
	resp, err = http.Post(env.ts.URL+"/api/audio/stream", "audio/wav", bytes.NewReader([]byte("not wav")))
	if err != nil {
		t.Fatalf("POST stream: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Garbage stream = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChunkUploadAndFinalize(t *testing.T) {
	env := newAPIEnv(t)

	put := func(index int, data string) *http.Response {
		req, err := http.NewRequest(http.MethodPut,
			fmt.Sprintf("%s/api/sessions/sess-1/chunks/client-a/%d", env.ts.URL, index),
			bytes.NewReader([]byte(data)))
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT chunk: %v", err)
		}
		return resp
	}

	resp := put(0, "aa")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT chunk = %d", resp.StatusCode)
	}
	resp.Body.Close()
	put(2, "cc").Body.Close()

	// Finalize with a gap reports the missing index
	resp = env.postJSON(t, "/api/sessions/sess-1/finalize", map[string]any{
		"client_id":    "client-a",
		"total_chunks": 3,
		"content_type": "audio/webm",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Incomplete finalize = %d, want 409", resp.StatusCode)
	}
	miss := decodeBody[struct {
		MissingChunks []int `json:"missing_chunks"`
	}](t, resp)
	if len(miss.MissingChunks) != 1 || miss.MissingChunks[0] != 1 {
		t.Errorf("MissingChunks = %v, want [1]", miss.MissingChunks)
	}

	put(1, "bb").Body.Close()

	resp = env.postJSON(t, "/api/sessions/sess-1/finalize", map[string]any{
		"client_id":    "client-a",
		"total_chunks": 3,
		"content_type": "audio/webm",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Finalize = %d, want 200", resp.StatusCode)
	}
	done := decodeBody[struct {
		Size int `json:"size"`
	}](t, resp)
	if done.Size != 6 {
		t.Errorf("Assembled size = %d, want 6", done.Size)
	}

	// The recording is now downloadable
	resp, err := http.Get(env.ts.URL + "/api/sessions/sess-1/audio")
	if err != nil {
		t.Fatalf("GET audio: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET audio = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "audio/webm" {
		t.Errorf("Content-Type = %q", got)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "aabbcc" {
		t.Errorf("Recording body = %q", body)
	}
}

func TestExportEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	// Create a session with a recording
	resp := env.postJSON(t, "/api/sessions", map[string]string{"title": "Sync"})
	created := decodeBody[store.Session](t, resp)
	env.postJSON(t, "/api/sessions/stop", nil).Body.Close()

	put := fmt.Sprintf("%s/api/sessions/%s/chunks/c/0", env.ts.URL, created.ID)
	req, err := http.NewRequest(http.MethodPut, put, bytes.NewReader([]byte("audio-bytes")))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT chunk: %v", err)
	}
	r.Body.Close()
	env.postJSON(t, "/api/sessions/"+created.ID+"/finalize", map[string]any{
		"client_id":    "c",
		"total_chunks": 1,
		"content_type": "audio/webm",
	}).Body.Close()

	// Unknown template rejected
	resp = env.postJSON(t, "/api/export", map[string]string{
		"session_id": created.ID,
		"template":   "bogus",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Bogus template = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.postJSON(t, "/api/export", map[string]string{
		"session_id": created.ID,
		"template":   "default",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Create export = %d, want 202", resp.StatusCode)
	}
	queued := decodeBody[export.Snapshot](t, resp)
	if queued.JobID == "" {
		t.Fatal("Expected a job id")
	}

	// Poll until the background job settles
	deadline := time.Now().Add(5 * time.Second)
	var final export.Snapshot
	for time.Now().Before(deadline) {
		resp, err := http.Get(env.ts.URL + "/api/export/" + queued.JobID)
		if err != nil {
			t.Fatalf("GET export: %v", err)
		}
		final = decodeBody[export.Snapshot](t, resp)
		if final.Status == export.StatusCompleted || final.Status == export.StatusFailed {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if final.Status != export.StatusCompleted {
		t.Fatalf("Final status = %s, error = %q", final.Status, final.Error)
	}
	if final.OverallProgress != 1.0 {
		t.Errorf("OverallProgress = %f", final.OverallProgress)
	}
	if final.Result == nil || final.Result.Filename == "" {
		t.Error("Expected a result filename")
	}

	// Unknown job id
	resp, err = http.Get(env.ts.URL + "/api/export/unknown")
	if err != nil {
		t.Fatalf("GET export: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Unknown job = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTemplatesEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	resp, err := http.Get(env.ts.URL + "/api/templates")
	if err != nil {
		t.Fatalf("GET templates: %v", err)
	}
	listing := decodeBody[struct {
		Templates map[string]summarize.TemplateInfo `json:"templates"`
	}](t, resp)

	for _, name := range []string{"default", "quick", "action_items", "decisions", "custom"} {
		if _, ok := listing.Templates[name]; !ok {
			t.Errorf("Missing template %q", name)
		}
	}
}

func TestMarkImportantEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.postJSON(t, "/api/important", map[string]any{"note": "key point"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Mark without session = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	env.postJSON(t, "/api/sessions", nil).Body.Close()

	resp = env.postJSON(t, "/api/important", map[string]any{"note": "key point"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Mark important = %d, want 201", resp.StatusCode)
	}
	marker := decodeBody[store.ImportantMarker](t, resp)
	if marker.End-marker.Start != session.DefaultMarkerDuration {
		t.Errorf("Marker span = %f", marker.End-marker.Start)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	resp, err := http.Get(env.ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	health := decodeBody[struct {
		Status string `json:"status"`
	}](t, resp)
	if health.Status != "healthy" {
		t.Errorf("Status = %q", health.Status)
	}
}
