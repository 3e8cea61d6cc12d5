package upload

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"lukechampine.com/blake3"
)

// MaxReportedMissing caps how many missing chunk indices a finalize
// response enumerates.
const MaxReportedMissing = 20

// Store persists upload chunks under
// {baseDir}/{session_id}/{client_id}/{index:06d}.chunk and assembles
// them into a single recording once the set is complete.
type Store struct {
	baseDir string
	logger  *slog.Logger

	// Serializes assembly per (session, client) so concurrent finalize
	// requests cannot interleave reads with retried chunk writes.
	assembleLocks map[string]*sync.Mutex
	mu            sync.Mutex
}

// NewStore creates the chunk base directory if needed
func NewStore(baseDir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}

	return &Store{
		baseDir:       baseDir,
		logger:        logger,
		assembleLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) clientDir(sessionID, clientID string) string {
	return filepath.Join(s.baseDir, sessionID, clientID)
}

func (s *Store) chunkPath(sessionID, clientID string, index int) string {
	return filepath.Join(s.clientDir(sessionID, clientID), fmt.Sprintf("%06d.chunk", index))
}

func (s *Store) lockFor(sessionID, clientID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionID + "/" + clientID
	lock, ok := s.assembleLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.assembleLocks[key] = lock
	}
	return lock
}

// WriteChunk stores one chunk. A chunk that already exists with the
// same byte length is treated as a duplicate retry and skipped; the
// comparison is length only, content is not verified.
func (s *Store) WriteChunk(sessionID, clientID string, index int, data []byte) error {
	if index < 0 {
		return fmt.Errorf("chunk index must be non-negative, got %d", index)
	}
	if len(data) == 0 {
		return fmt.Errorf("chunk %d is empty", index)
	}

	dir := s.clientDir(sessionID, clientID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create chunk directory: %w", err)
	}

	path := s.chunkPath(sessionID, clientID, index)
	if info, err := os.Stat(path); err == nil && info.Size() == int64(len(data)) {
		s.logger.Debug("Duplicate chunk skipped",
			"session_id", sessionID,
			"client_id", clientID,
			"index", index,
			"size", len(data))
		return nil
	}

	// Temp file plus rename so a concurrent assemble never reads a
	// partially written chunk.
	tmp, err := os.CreateTemp(dir, ".chunk-*")
	if err != nil {
		return fmt.Errorf("failed to create temp chunk file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write chunk %d: %w", index, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close chunk %d: %w", index, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize chunk %d: %w", index, err)
	}

	return nil
}

// AvailableChunks returns the sorted indices present on disk for the
// given session and client.
func (s *Store) AvailableChunks(sessionID, clientID string) ([]int, error) {
	entries, err := os.ReadDir(s.clientDir(sessionID, clientID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	indices := make([]int, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".chunk") {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSuffix(name, ".chunk"))
		if err != nil {
			continue
		}
		indices = append(indices, index)
	}

	sort.Ints(indices)
	return indices, nil
}

// MissingChunks returns indices in [0, totalChunks) with no chunk on
// disk, capped at MaxReportedMissing entries.
func (s *Store) MissingChunks(sessionID, clientID string, totalChunks int) ([]int, error) {
	available, err := s.AvailableChunks(sessionID, clientID)
	if err != nil {
		return nil, err
	}

	present := make(map[int]bool, len(available))
	for _, index := range available {
		present[index] = true
	}

	var missing []int
	for i := 0; i < totalChunks; i++ {
		if !present[i] {
			missing = append(missing, i)
			if len(missing) >= MaxReportedMissing {
				break
			}
		}
	}

	return missing, nil
}

// Assemble concatenates chunks 0..totalChunks-1 in index order and
// removes the client's fragments on success. Returns nil data when any
// chunk is still missing, leaving the fragments intact. The blake3
// digest of the assembled payload is logged for upload diagnostics.
func (s *Store) Assemble(sessionID, clientID string, totalChunks int) ([]byte, error) {
	lock := s.lockFor(sessionID, clientID)
	lock.Lock()
	defer lock.Unlock()

	missing, err := s.MissingChunks(sessionID, clientID, totalChunks)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, nil
	}

	var assembled []byte
	for i := 0; i < totalChunks; i++ {
		data, err := os.ReadFile(s.chunkPath(sessionID, clientID, i))
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk %d: %w", i, err)
		}
		assembled = append(assembled, data...)
	}

	digest := blake3.Sum256(assembled)
	s.logger.Info("Upload assembled",
		"session_id", sessionID,
		"client_id", clientID,
		"chunks", totalChunks,
		"bytes", len(assembled),
		"blake3", hex.EncodeToString(digest[:]))

	if err := s.removeClientDir(sessionID, clientID); err != nil {
		s.logger.Warn("Failed to remove assembled chunk fragments",
			"session_id", sessionID,
			"client_id", clientID,
			"error", err)
	}

	return assembled, nil
}

// CleanupClient removes one client's fragment set, pruning the session
// directory if it becomes empty.
func (s *Store) CleanupClient(sessionID, clientID string) error {
	if err := s.removeClientDir(sessionID, clientID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.assembleLocks, sessionID+"/"+clientID)
	s.mu.Unlock()

	return nil
}

// Cleanup removes all chunks for a session, including every client
// subdirectory.
func (s *Store) Cleanup(sessionID string) error {
	dir := filepath.Join(s.baseDir, sessionID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove chunk directory: %w", err)
	}

	s.mu.Lock()
	for key := range s.assembleLocks {
		if strings.HasPrefix(key, sessionID+"/") {
			delete(s.assembleLocks, key)
		}
	}
	s.mu.Unlock()

	return nil
}

func (s *Store) removeClientDir(sessionID, clientID string) error {
	if err := os.RemoveAll(s.clientDir(sessionID, clientID)); err != nil {
		return fmt.Errorf("failed to remove client chunks: %w", err)
	}

	// Prune the session directory once its last client is gone
	sessionDir := filepath.Join(s.baseDir, sessionID)
	entries, err := os.ReadDir(sessionDir)
	if err == nil && len(entries) == 0 {
		os.Remove(sessionDir)
	}

	return nil
}
