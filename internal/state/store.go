package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store persists one DirectoryState atomically to a single file.
//
// Save and SaveLocked do the same write; the split exists for the
// coordinator, which holds a per-directory lock around the whole
// mutate-then-persist sequence (spec.md §4.5). SaveLocked is the contractual
// promise that this method never attempts to acquire that directory lock —
// the self-deadlock class spec.md §9 calls out by name. Callers that already
// hold the directory lock must call SaveLocked, not Save, so the contract is
// visible at the call site.
type Store struct {
	path string

	mu sync.Mutex // serializes writes to this one file
}

// NewStore returns a Store that persists to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted DirectoryState. A missing file is not an error —
// it returns a fresh empty state, matching the "created on first access"
// lifecycle in spec.md §3.
//
// On a corrupt file, Load renames it aside to "<name>.corrupt.<ts>",
// returns a fresh empty state, and returns a non-nil warning error the
// caller should log at WARN and otherwise ignore (spec.md §7
// StateCorruption handling).
func (s *Store) Load() (*DirectoryState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}

	var ds DirectoryState
	if err := json.Unmarshal(data, &ds); err != nil {
		corruptPath := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().Unix())
		if renameErr := os.Rename(s.path, corruptPath); renameErr != nil {
			return New(), fmt.Errorf("state corrupt at %s (quarantine failed: %v): %w", s.path, renameErr, err)
		}
		return New(), fmt.Errorf("state corrupt at %s, quarantined to %s: %w", s.path, corruptPath, err)
	}

	if ds.Inventory == nil {
		ds.Inventory = make(map[string]FileInfo)
	}
	if ds.Tombstones == nil {
		ds.Tombstones = make(map[string]time.Time)
	}
	return &ds, nil
}

// Save persists ds atomically: write to a sibling temp file, sync it to
// durable storage, then rename over the target. A crash at any point before
// the rename leaves the previous file intact (I3).
func (s *Store) Save(ds *DirectoryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ds)
}

// SaveLocked is the entry point for callers already holding an external
// directory lock. It must never itself try to acquire that lock — doing so
// is the self-deadlock class spec.md §9 calls out explicitly.
func (s *Store) SaveLocked(ds *DirectoryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ds)
}

func (s *Store) saveLocked(ds *DirectoryState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp state file: %w", err)
	}
	return nil
}
