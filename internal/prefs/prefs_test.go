package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/foodly/companion/internal/logger"
)

func TestMemoryStoreRoundtrip(t *testing.T) {
	s := NewMemoryStore()

	if _, ok := s.Get("autoAdvanceEnabled"); ok {
		t.Fatal("empty store should have no entries")
	}
	if err := s.Set("autoAdvanceEnabled", "false"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok := s.Get("autoAdvanceEnabled")
	if !ok || v != "false" {
		t.Fatalf("got %q/%v, want \"false\"/true", v, ok)
	}
}

func TestFileStorePersistsAcrossOpens(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	path := filepath.Join(t.TempDir(), "prefs.json")

	s, err := NewFileStore(path, log)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set("autoAdvanceEnabled", "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set("voice", "en-GB-SoniaNeural"); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Re-open and read back.
	s2, err := NewFileStore(path, log)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, _ := s2.Get("autoAdvanceEnabled"); v != "true" {
		t.Fatalf("autoAdvanceEnabled = %q", v)
	}
	if v, _ := s2.Get("voice"); v != "en-GB-SoniaNeural" {
		t.Fatalf("voice = %q", v)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewFileStore(path, log); err == nil {
		t.Fatal("expected an error for a corrupt prefs file")
	}
}
