package participant

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"syncd/internal/config"
	"syncd/internal/fsutil"
	"syncd/internal/logging"
	"syncd/internal/state"
	"syncd/internal/wire"
)

// Phase names the reconciler's position in the state machine from spec.md
// §4.6.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseConnecting
	PhaseSyncing
	PhaseWatching
	PhaseBackoff
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseConnecting:
		return "connecting"
	case PhaseSyncing:
		return "syncing"
	case PhaseWatching:
		return "watching"
	case PhaseBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// persistBatchSize is the "every N actions" persistence cadence from
// spec.md §4.6 ("persists after every N actions (≤ 16) or at end of batch").
const persistBatchSize = 16

// maxBackoffAttempt caps the attempt counter used for the backoff delay;
// attempts 0..=4 then reset after any success (spec.md §4.6).
const maxBackoffAttempt = 4

// Reconciler drives one logical directory end to end: load, scan, negotiate,
// apply, watch, repeat.
type Reconciler struct {
	dir           config.ResolvedDirectory
	participantID string
	client        *Client
	store         *state.Store
	filter        fsutil.PathFilter

	phase   Phase
	attempt int
}

// NewReconciler returns a Reconciler for dir, talking to client and
// persisting its DirectoryState alongside dir's local files.
func NewReconciler(dir config.ResolvedDirectory, participantID string, client *Client) *Reconciler {
	excludes := fsutil.CompileExcludes(dir.IgnorePatterns)
	return &Reconciler{
		dir:           dir,
		participantID: participantID,
		client:        client,
		store:         state.NewStore(filepath.Join(dir.LocalPath, stateFileName)),
		filter:        excludes.Filter(),
		phase:         PhaseStarting,
	}
}

// Phase returns the reconciler's current state, for introspection
// (supervisor status reporting).
func (r *Reconciler) Phase() Phase { return r.phase }

// Run drives the state machine until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ds, err := r.start()
	if err != nil {
		logging.Error("%s: starting failed: %v", r.dir.Name, err)
		return
	}

	watcher, err := NewWatcher(r.dir.LocalPath, r.filter, 500*time.Millisecond)
	if err != nil {
		logging.Error("%s: could not create watcher: %v", r.dir.Name, err)
		return
	}
	if err := watcher.Start(); err != nil {
		logging.Error("%s: could not start watcher: %v", r.dir.Name, err)
		return
	}
	defer watcher.Stop()

	ticker := time.NewTicker(time.Duration(r.dir.SyncIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		if err := r.rescan(ds); err != nil {
			logging.Error("%s: rescan failed: %v", r.dir.Name, err)
		}

		r.phase = PhaseConnecting
		plan, negotiateErr := r.connect(ctx, ds)
		if negotiateErr != nil {
			if !r.backoff(ctx) {
				r.persist(ds)
				return
			}
			continue
		}
		r.attempt = 0

		r.phase = PhaseSyncing
		if applyErr := r.apply(ctx, ds, plan); applyErr != nil {
			logging.Error("%s: apply failed: %v", r.dir.Name, applyErr)
		}

		r.phase = PhaseWatching
		select {
		case <-ctx.Done():
			r.persist(ds)
			return
		case <-watcher.Events:
		case <-ticker.C:
		}
	}
}

// start implements the Starting phase: load persisted state and reconcile
// it against what's actually on disk (spec.md §4.6).
func (r *Reconciler) start() (*state.DirectoryState, error) {
	r.phase = PhaseStarting

	if err := os.MkdirAll(r.dir.LocalPath, 0755); err != nil {
		return nil, fmt.Errorf("create local directory: %w", err)
	}

	ds, err := r.store.Load()
	if err != nil {
		logging.Warn("%s: state load: %v", r.dir.Name, err)
	}

	if err := r.rescan(ds); err != nil {
		return nil, err
	}

	return ds, nil
}

// rescan reconciles ds against a fresh walk of the local directory: new or
// changed files are adopted, and inventory entries no longer on disk are
// tombstoned. It's called once at startup and again before every
// subsequent negotiate, so local edits, creates, and deletes made while
// the reconciler is in the Watching phase are reflected in the next
// SyncRequest (spec.md §4.6) rather than only ever being discovered at
// process start.
func (r *Reconciler) rescan(ds *state.DirectoryState) error {
	scanned, err := fsutil.Scan(r.dir.LocalPath, r.filter)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	for path, info := range scanned {
		if prior, ok := ds.Get(path); ok && prior.Hash == info.Hash {
			continue
		}
		ds.Put(info)
	}

	now := state.Truncate(time.Now())
	var gone []string
	for path := range ds.Inventory {
		if _, onDisk := scanned[path]; !onDisk {
			gone = append(gone, path)
		}
	}
	for _, path := range gone {
		ds.Delete(path, now)
	}

	return nil
}

// connect implements the Connecting phase.
func (r *Reconciler) connect(ctx context.Context, ds *state.DirectoryState) (*wire.SyncResponse, error) {
	req := wire.SyncRequest{
		DirectoryRef: wire.DirectoryRef{
			ParticipantID: r.participantID,
			DirectoryName: r.dir.Name,
			Shared:        r.dir.Shared,
		},
		Files:        ds.Inventory,
		DeletedFiles: ds.Tombstones,
		LastSync:     ds.LastSync,
	}
	return r.client.Negotiate(ctx, req)
}

// apply implements the Syncing phase: downloads, then local deletes, then
// remote deletes, then uploads, so a freshly downloaded file is never
// clobbered by an in-flight upload of a stale local copy (spec.md §4.6).
func (r *Reconciler) apply(ctx context.Context, ds *state.DirectoryState, plan *wire.SyncResponse) error {
	actions := 0
	maybePersist := func() {
		actions++
		if actions%persistBatchSize == 0 {
			r.persist(ds)
		}
	}

	for _, info := range plan.FilesToDownload {
		if err := r.applyDownload(ctx, ds, info); err != nil {
			logging.Error("%s: download %s: %v", r.dir.Name, info.Path, err)
			continue
		}
		maybePersist()
	}

	for _, di := range plan.FilesToDelete {
		if err := r.applyLocalDelete(ds, di); err != nil {
			logging.Error("%s: delete %s: %v", r.dir.Name, di.Path, err)
			continue
		}
		maybePersist()
	}

	for _, di := range plan.FilesToDeleteRemote {
		if err := r.applyRemoteDelete(ctx, ds, di); err != nil {
			logging.Error("%s: remote delete %s: %v", r.dir.Name, di.Path, err)
			continue
		}
		maybePersist()
	}

	for _, path := range plan.FilesToUpload {
		if err := r.applyUpload(ctx, ds, path); err != nil {
			logging.Error("%s: upload %s: %v", r.dir.Name, path, err)
			continue
		}
		maybePersist()
	}

	now := state.Truncate(time.Now())
	ds.LastSync = &now
	r.persist(ds)
	return nil
}

func (r *Reconciler) applyDownload(ctx context.Context, ds *state.DirectoryState, info state.FileInfo) error {
	content, hash, err := r.client.Download(ctx, r.dir.Name, info.Path, r.dir.Shared)
	if err != nil {
		return err
	}
	if hash != info.Hash || sha256Hex(content) != info.Hash {
		return fmt.Errorf("integrity mismatch downloading %s", info.Path)
	}

	target := filepath.Join(r.dir.LocalPath, filepath.FromSlash(info.Path))
	if err := writeFileAtomicParticipant(target, content); err != nil {
		return err
	}

	ds.Put(info)
	return nil
}

// applyLocalDelete removes path from the participant's own disk and adopts
// the coordinator's tombstone instant for it, rather than stamping the
// local wall clock, so both sides agree on the tombstone instant for this
// deletion from here on (spec.md §4.3 rule 4, invariant I5).
func (r *Reconciler) applyLocalDelete(ds *state.DirectoryState, di wire.DeleteInstruction) error {
	target := filepath.Join(r.dir.LocalPath, filepath.FromSlash(di.Path))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	ds.Delete(di.Path, di.Instant)
	return nil
}

// applyRemoteDelete asks the coordinator to delete path under the
// tombstone instant the participant already holds locally for it.
func (r *Reconciler) applyRemoteDelete(ctx context.Context, ds *state.DirectoryState, di wire.DeleteInstruction) error {
	req := wire.DeleteRequest{
		DirectoryRef: wire.DirectoryRef{
			ParticipantID: r.participantID,
			DirectoryName: r.dir.Name,
			Shared:        r.dir.Shared,
		},
		Path:    di.Path,
		Instant: &di.Instant,
	}
	if err := r.client.Delete(ctx, req); err != nil {
		return err
	}
	ds.Delete(di.Path, di.Instant)
	return nil
}

func (r *Reconciler) applyUpload(ctx context.Context, ds *state.DirectoryState, path string) error {
	info, ok := ds.Get(path)
	if !ok {
		return nil
	}
	target := filepath.Join(r.dir.LocalPath, filepath.FromSlash(path))
	content, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	req := wire.UploadRequest{
		DirectoryRef: wire.DirectoryRef{
			ParticipantID: r.participantID,
			DirectoryName: r.dir.Name,
			Shared:        r.dir.Shared,
		},
		Path:       path,
		Hash:       info.Hash,
		Modified:   info.Modified,
		ContentB64: encodeContent(content),
	}
	return r.client.Upload(ctx, req)
}

// backoff implements the Backoff phase: sleep min(2^attempt, 30)s, attempts
// capped at maxBackoffAttempt (spec.md §4.6). Returns false if ctx was
// cancelled during the sleep.
func (r *Reconciler) backoff(ctx context.Context) bool {
	r.phase = PhaseBackoff
	if r.attempt > maxBackoffAttempt {
		r.attempt = maxBackoffAttempt
	}
	delay := time.Duration(math.Min(math.Pow(2, float64(r.attempt)), 30)) * time.Second
	r.attempt++

	logging.Warn("%s: negotiate failed, backing off %s", r.dir.Name, delay)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func (r *Reconciler) persist(ds *state.DirectoryState) {
	if err := r.store.Save(ds); err != nil {
		logging.Error("%s: persist state: %v", r.dir.Name, err)
	}
}
