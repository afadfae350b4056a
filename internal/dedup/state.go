package dedup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State bundles the two persisted dedup sets (processed thread IDs and
// emitted item keys) and their file location. It is loaded once at startup
// and saved after every mutation so that a crash mid-batch loses at most
// the candidate being processed.
type State struct {
	path            string
	filePermissions os.FileMode
	dirPermissions  os.FileMode

	Threads *Ledger
	Items   *Ledger
}

// stateFile is the on-disk layout: two flat lists of strings.
type stateFile struct {
	Version string    `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Threads []string  `json:"threads"`
	Items   []string  `json:"items"`
}

// NewState creates a State persisted at path, with the given per-set
// capacities.
func NewState(path string, keepThreads, keepItems int) *State {
	if path == "" {
		path = filepath.Join(os.TempDir(), "dealsniper", "ledger.json")
	}
	return &State{
		path:            path,
		filePermissions: 0o644,
		dirPermissions:  0o755,
		Threads:         NewLedger(keepThreads),
		Items:           NewLedger(keepItems),
	}
}

// Load restores the state from disk. A missing file is a fresh start, not
// an error. Stale temp files from a previous crash are removed.
func (s *State) Load() error {
	tempPath := s.path + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read ledger file: %w", err)
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal ledger file: %w", err)
	}

	s.Threads.Restore(file.Threads)
	s.Items.Restore(file.Items)
	return nil
}

// Save persists the state atomically: write to a temp file, then rename.
func (s *State) Save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, s.dirPermissions); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	file := stateFile{
		Version: "1.0",
		SavedAt: time.Now(),
		Threads: s.Threads.Snapshot(0),
		Items:   s.Items.Snapshot(0),
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, s.filePermissions); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename ledger file: %w", err)
	}
	return nil
}
