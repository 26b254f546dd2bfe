// Package prefs provides preference store implementations.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.PrefStore = (*MemoryStore)(nil)
	_ domain.PrefStore = (*FileStore)(nil)
)

// MemoryStore is an in-memory preference store. Preferences do not
// survive the process; used in tests and as a fallback when the prefs
// file is unusable.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemoryStore creates an empty in-memory preference store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

// Get returns the value for key.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Set stores the value for key. Never fails.
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
	return nil
}

// FileStore persists preferences as a flat JSON object on disk. The
// whole file is read once at creation and rewritten on every Set;
// preference writes are rare (a toggle here and there), so simplicity
// wins over journaling.
type FileStore struct {
	path string
	log  *logger.Logger

	mu sync.Mutex
	m  map[string]string
}

// NewFileStore opens (or initializes) the preference file at path.
func NewFileStore(path string, log *logger.Logger) (*FileStore, error) {
	s := &FileStore{
		path: path,
		log:  log,
		m:    make(map[string]string),
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First run.
	case err != nil:
		return nil, fmt.Errorf("reading prefs: %w", err)
	default:
		if err := json.Unmarshal(data, &s.m); err != nil {
			return nil, fmt.Errorf("parsing prefs %s: %w", path, err)
		}
	}
	log.Debug("prefs: loaded %d entries from %s", len(s.m), path)
	return s, nil
}

// Get returns the value for key.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

// Set stores the value for key and rewrites the file.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[key] = value
	data, err := json.MarshalIndent(s.m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding prefs: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating prefs dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing prefs: %w", err)
	}
	return nil
}
