// Package planner implements the sync planning algorithm: given a local and
// a remote view of a logical directory (inventory plus tombstones on each
// side), it decides what to upload, download, and delete on each side. The
// planner does no I/O and is deterministic in its four inputs, which is what
// lets it be tested exhaustively in isolation from the coordinator and
// participant.
package planner

import (
	"sort"
	"time"

	"syncd/internal/state"
)

// Conflict is a diagnostic record of a both-live tie broken by coordinator
// authority rather than by instant comparison.
type Conflict struct {
	Path          string    `json:"path"`
	LocalInstant  time.Time `json:"local_instant"`
	RemoteInstant time.Time `json:"remote_instant"`
	Winner        string    `json:"winner"`
}

// DeleteInstruction names a path to delete and the tombstone instant the
// deleting side must adopt for it, so a rule-4 resurrection-vs-deletion call
// made on one side is reproduced identically on the other (invariant I5).
type DeleteInstruction struct {
	Path    string    `json:"path"`
	Instant time.Time `json:"instant"`
}

// Plan is the full set of actions resolving a local view against a remote
// view of one logical directory.
type Plan struct {
	Upload       []string            `json:"upload"`
	Download     []state.FileInfo    `json:"download"`
	DeleteLocal  []DeleteInstruction `json:"delete_local"`
	DeleteRemote []DeleteInstruction `json:"delete_remote"`
	Conflicts    []Conflict          `json:"conflicts"`
}

func newPlan() *Plan {
	return &Plan{
		Upload:       []string{},
		Download:     []state.FileInfo{},
		DeleteLocal:  []DeleteInstruction{},
		DeleteRemote: []DeleteInstruction{},
		Conflicts:    []Conflict{},
	}
}

// Resolve compares local (inventory L, tombstones Ld) against remote
// (inventory R, tombstones Rd), per relpath independently, per the five
// resolution rules, and returns the resulting Plan. Paths are visited in
// sorted order, so every action list is sorted by path. It never mutates its
// inputs.
func Resolve(local, remote *state.DirectoryState) *Plan {
	p := newPlan()

	paths := make(map[string]struct{})
	for path := range local.Inventory {
		paths[path] = struct{}{}
	}
	for path := range local.Tombstones {
		paths[path] = struct{}{}
	}
	for path := range remote.Inventory {
		paths[path] = struct{}{}
	}
	for path := range remote.Tombstones {
		paths[path] = struct{}{}
	}

	sorted := make([]string, 0, len(paths))
	for path := range paths {
		sorted = append(sorted, path)
	}
	sort.Strings(sorted)
	for _, path := range sorted {
		resolveOne(p, path, local, remote)
	}

	return p
}

func resolveOne(p *Plan, path string, local, remote *state.DirectoryState) {
	lInfo, lLive := local.Get(path)
	lTomb, lDead := local.TombstoneAt(path)
	rInfo, rLive := remote.Get(path)
	rTomb, rDead := remote.TombstoneAt(path)

	switch {
	case lLive && rLive:
		resolveBothLive(p, path, lInfo, rInfo)
	case lLive && rDead:
		resolveLiveVsTombstone(p, path, lInfo, rTomb, true)
	case lDead && rLive:
		resolveLiveVsTombstone(p, path, rInfo, lTomb, false)
	case lDead && rDead:
		// Rule 5: both tombstoned, no action. The later instant is the
		// authoritative one but nothing needs to move; each side keeps
		// its own tombstone and a future negotiation round will simply
		// see the same state again.
		_ = lTomb
		_ = rTomb
	case lLive && !rLive && !rDead:
		// Rule 1, p ∈ L: only local has it live.
		p.Upload = append(p.Upload, path)
	case lDead && !rLive && !rDead:
		// Rule 1, p ∈ Ld: only local has a tombstone, remote has never
		// heard of the path at all. Nothing to inform.
	case rLive && !lLive && !lDead:
		// Rule 2, p ∈ R: only remote has it live.
		p.Download = append(p.Download, rInfo)
	case rDead && !lLive && !lDead:
		// Rule 2, p ∈ Rd: only remote has a tombstone, local never heard
		// of the path.
	}
}

// resolveBothLive implements rule 3.
func resolveBothLive(p *Plan, path string, l, r state.FileInfo) {
	if l.Hash == r.Hash {
		// No action. The differing modified instants are not coalesced:
		// each side keeps its own.
		return
	}
	switch {
	case l.Modified.After(r.Modified):
		p.Upload = append(p.Upload, path)
	case r.Modified.After(l.Modified):
		p.Download = append(p.Download, r)
	default:
		// Exact tie, different hashes: coordinator authority wins.
		p.Conflicts = append(p.Conflicts, Conflict{
			Path:          path,
			LocalInstant:  l.Modified,
			RemoteInstant: r.Modified,
			Winner:        "remote",
		})
		p.Download = append(p.Download, r)
	}
}

// resolveLiveVsTombstone implements rules 1b/2b and 4, for one side live and
// the other tombstoned. liveIsLocal tells us which side (local or remote)
// holds the live file, so the result lands in the right action bucket.
func resolveLiveVsTombstone(p *Plan, path string, live state.FileInfo, tomb time.Time, liveIsLocal bool) {
	if live.Modified.After(tomb) {
		// Live side is strictly newer: it resurrects the deleted name on
		// the tombstoned side.
		if liveIsLocal {
			p.Upload = append(p.Upload, path)
		} else {
			p.Download = append(p.Download, live)
		}
		return
	}
	// Live side is at or before the tombstone instant: the tombstone wins,
	// the live copy must be removed, under the tombstone's own instant.
	if liveIsLocal {
		p.DeleteLocal = append(p.DeleteLocal, DeleteInstruction{Path: path, Instant: tomb})
	} else {
		p.DeleteRemote = append(p.DeleteRemote, DeleteInstruction{Path: path, Instant: tomb})
	}
}
