// Package coordinator implements the central server: one authoritative
// DirectoryState per logical directory, guarded by a per-key lock, served
// over HTTP/JSON.
package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"syncd/internal/metrics"
	"syncd/internal/state"
)

// slot is one logical directory's in-memory state plus the lock guarding
// access to it. A request handler resolves the key, takes this lock for
// the duration of the handler, and holds it across any mutation and its
// persistence call (spec.md §4.5) — that's why Store exposes SaveLocked
// instead of making handlers call Save directly.
type slot struct {
	mu    sync.Mutex
	state *state.DirectoryState
	store *state.Store
}

// Coordinator holds the in-memory table of logical directories.
type Coordinator struct {
	storageRoot string
	log         *zap.Logger

	mu    sync.RWMutex // guards the table itself, not any one slot's contents
	table map[string]*slot
}

// New returns a Coordinator rooted at storageRoot. The directory is created
// if missing.
func New(storageRoot string, log *zap.Logger) (*Coordinator, error) {
	if err := os.MkdirAll(storageRoot, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Coordinator{
		storageRoot: storageRoot,
		log:         log,
		table:       make(map[string]*slot),
	}, nil
}

// dirPath returns <storage_root>/<key>, the root of a logical directory's
// file tree on disk.
func (c *Coordinator) dirPath(key string) string {
	return filepath.Join(c.storageRoot, key)
}

func (c *Coordinator) statePath(key string) string {
	return filepath.Join(c.dirPath(key), ".sync_state.json")
}

// acquire returns the slot for key, creating and loading it lazily on first
// access (spec.md §3 lifecycle), and locks it. Callers must call unlock.
func (c *Coordinator) acquire(key string) (*slot, error) {
	c.mu.RLock()
	s, ok := c.table[key]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		s, ok = c.table[key]
		if !ok {
			if err := os.MkdirAll(c.dirPath(key), 0755); err != nil {
				c.mu.Unlock()
				return nil, fmt.Errorf("create directory root for %s: %w", key, err)
			}
			store := state.NewStore(c.statePath(key))
			ds, loadErr := store.Load()
			if loadErr != nil {
				c.log.Warn("state corrupt, starting empty", zap.String("key", key), zap.Error(loadErr))
			}
			s = &slot{state: ds, store: store}
			c.table[key] = s
			metrics.DirectoriesTracked.Set(float64(len(c.table)))
		}
		c.mu.Unlock()
	}

	s.mu.Lock()
	return s, nil
}

func (s *slot) unlock() {
	s.mu.Unlock()
}

// Directories returns a snapshot of every tracked key and its current
// inventory/tombstone counts, for GET /api/v1/directories.
func (c *Coordinator) Directories() map[string]struct{ Files, Tombstones int } {
	c.mu.RLock()
	keys := make([]string, 0, len(c.table))
	for k := range c.table {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	out := make(map[string]struct{ Files, Tombstones int }, len(keys))
	for _, k := range keys {
		c.mu.RLock()
		s := c.table[k]
		c.mu.RUnlock()
		s.mu.Lock()
		out[k] = struct{ Files, Tombstones int }{len(s.state.Inventory), len(s.state.Tombstones)}
		s.mu.Unlock()
	}
	return out
}
