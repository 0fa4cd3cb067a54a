// Package wire defines the HTTP/JSON request and response bodies exchanged
// between a participant and the coordinator, grounded on the teacher's
// shared/pkg/protocol types.
package wire

import (
	"time"

	"syncd/internal/state"
)

// DirectoryRef identifies the logical directory a request targets. It's
// embedded in every request so the coordinator can resolve the storage key
// (spec.md §3) without a separate lookup round-trip.
type DirectoryRef struct {
	ParticipantID string `json:"participant_id"`
	DirectoryName string `json:"directory_name"`
	Shared        bool   `json:"shared"`
}

// SyncRequest is the body for Negotiate.
type SyncRequest struct {
	DirectoryRef
	Files        map[string]state.FileInfo `json:"files"`
	DeletedFiles map[string]time.Time      `json:"deleted_files"`
	LastSync     *time.Time                `json:"last_sync,omitempty"`
}

// DeleteInstruction names a path to delete and the tombstone instant the
// deleting side must adopt for it (planner.DeleteInstruction on the wire),
// so a rule-4 resurrection-vs-deletion call made on one side reproduces
// identically on the other.
type DeleteInstruction struct {
	Path    string    `json:"path"`
	Instant time.Time `json:"instant"`
}

// SyncResponse is Negotiate's reply: the plan the participant should apply,
// from the participant's point of view (the coordinator computed it with
// its own state as "remote"). FilesToDelete names paths the participant
// must remove from its own disk (spec.md §4.3's delete_local);
// FilesToDeleteRemote names paths the participant must ask the coordinator
// to delete (delete_remote).
type SyncResponse struct {
	FilesToUpload       []string            `json:"files_to_upload"`
	FilesToDownload     []state.FileInfo    `json:"files_to_download"`
	FilesToDelete       []DeleteInstruction `json:"files_to_delete"`
	FilesToDeleteRemote []DeleteInstruction `json:"files_to_delete_remote"`
	Conflicts           []ConflictDetail    `json:"conflicts"`
}

// UploadRequest is the body for Upload. ContentB64 carries the file bytes;
// the coordinator decodes and verifies Hash before writing.
type UploadRequest struct {
	DirectoryRef
	Path       string    `json:"path"`
	Hash       string    `json:"hash"`
	Modified   time.Time `json:"modified"`
	ContentB64 string    `json:"content_b64"`
}

// DeleteRequest is the body for Delete.
type DeleteRequest struct {
	DirectoryRef
	Path    string     `json:"path"`
	Instant *time.Time `json:"instant,omitempty"`
}

// HeaderHash and HeaderModified name the HTTP response headers Download sets alongside
// the raw file bytes, so the participant can verify what it received
// without a second round-trip.
const (
	HeaderHash     = "X-Syncd-Hash"
	HeaderModified = "X-Syncd-Modified"
)

// ErrorResponse is returned on any non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// ConflictDetail mirrors planner.Conflict for the wire; kept as a distinct
// type so the transport schema doesn't silently change if the planner's
// internal representation does.
type ConflictDetail struct {
	Path          string    `json:"path"`
	LocalInstant  time.Time `json:"local_instant"`
	RemoteInstant time.Time `json:"remote_instant"`
	Winner        string    `json:"winner"`
}

// DirectoryListEntry describes one logical directory the coordinator knows
// about, returned by GET /api/v1/directories.
type DirectoryListEntry struct {
	Key        string `json:"key"`
	FileCount  int    `json:"file_count"`
	Tombstones int    `json:"tombstones"`
}

// DirectoryListResponse is the body of GET /api/v1/directories.
type DirectoryListResponse struct {
	Directories []DirectoryListEntry `json:"directories"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
