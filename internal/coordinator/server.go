package coordinator

import (
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"syncd/internal/metrics"
	"syncd/internal/planner"
	"syncd/internal/state"
	"syncd/internal/wire"
)

// Handler returns the coordinator's full HTTP handler: sync protocol
// endpoints plus health, directory listing, and Prometheus metrics.
func (c *Coordinator) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", c.handleHealth)
	mux.HandleFunc("GET /api/v1/directories", c.handleDirectories)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/sync", c.handleNegotiate)
	mux.HandleFunc("POST /api/v1/upload", c.handleUpload)
	mux.HandleFunc("GET /api/v1/download", c.handleDownload)
	mux.HandleFunc("POST /api/v1/delete", c.handleDelete)

	return loggingMiddleware(c.log, mux)
}

func loggingMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		elapsed := time.Since(start)
		metrics.RequestDuration.WithLabelValues(r.URL.Path).Observe(elapsed.Seconds())
		log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", elapsed),
		)
	})
}

func (c *Coordinator) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, wire.HealthResponse{Status: "ok"})
}

func (c *Coordinator) handleDirectories(w http.ResponseWriter, r *http.Request) {
	snapshot := c.Directories()
	resp := wire.DirectoryListResponse{Directories: make([]wire.DirectoryListEntry, 0, len(snapshot))}
	for key, counts := range snapshot {
		resp.Directories = append(resp.Directories, wire.DirectoryListEntry{
			Key:        key,
			FileCount:  counts.Files,
			Tombstones: counts.Tombstones,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleNegotiate runs the planner with the participant's declared state as
// "local" and the coordinator's held state as "remote" (spec.md §4.5), and
// returns the plan from the participant's point of view. It does not
// mutate the coordinator's state.
func (c *Coordinator) handleNegotiate(w http.ResponseWriter, r *http.Request) {
	var req wire.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "decode sync request: "+err.Error())
		return
	}

	key, err := Key(req.ParticipantID, req.DirectoryName, req.Shared)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	slot, err := c.acquire(key)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer slot.unlock()

	participantView := state.New()
	for path, info := range req.Files {
		participantView.Inventory[path] = info
	}
	for path, ts := range req.DeletedFiles {
		participantView.Tombstones[path] = ts
	}

	plan := planner.Resolve(participantView, slot.state.Clone())

	metrics.RequestsTotal.WithLabelValues("sync", "ok").Inc()
	if len(plan.Conflicts) > 0 {
		metrics.ConflictsTotal.Add(float64(len(plan.Conflicts)))
	}

	conflicts := make([]wire.ConflictDetail, 0, len(plan.Conflicts))
	for _, cf := range plan.Conflicts {
		conflicts = append(conflicts, wire.ConflictDetail{
			Path:          cf.Path,
			LocalInstant:  cf.LocalInstant,
			RemoteInstant: cf.RemoteInstant,
			Winner:        cf.Winner,
		})
	}

	writeJSONMaybeGzip(w, r, http.StatusOK, wire.SyncResponse{
		FilesToUpload:       plan.Upload,
		FilesToDownload:     plan.Download,
		FilesToDelete:       toWireDeletes(plan.DeleteLocal),
		FilesToDeleteRemote: toWireDeletes(plan.DeleteRemote),
		Conflicts:           conflicts,
	})
}

func toWireDeletes(instructions []planner.DeleteInstruction) []wire.DeleteInstruction {
	out := make([]wire.DeleteInstruction, 0, len(instructions))
	for _, di := range instructions {
		out = append(out, wire.DeleteInstruction{Path: di.Path, Instant: di.Instant})
	}
	return out
}

// handleUpload verifies the declared hash, writes content atomically, and
// updates + persists inventory under the directory lock (spec.md §4.5).
func (c *Coordinator) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req wire.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "decode upload request: "+err.Error())
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.ContentB64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "decode content: "+err.Error())
		return
	}

	if got := sha256Hex(content); got != req.Hash {
		metrics.RequestsTotal.WithLabelValues("upload", "integrity_mismatch").Inc()
		sendError(w, http.StatusConflict, "hash mismatch: declared "+req.Hash+" got "+got)
		return
	}

	key, err := Key(req.ParticipantID, req.DirectoryName, req.Shared)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	slot, err := c.acquire(key)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer slot.unlock()

	target := filepath.Join(c.dirPath(key), filepath.FromSlash(req.Path))
	if err := writeFileAtomic(target, content); err != nil {
		metrics.RequestsTotal.WithLabelValues("upload", "storage_io").Inc()
		sendError(w, http.StatusInternalServerError, "write file: "+err.Error())
		return
	}

	modified := req.Modified.Truncate(time.Millisecond).UTC()
	slot.state.Put(state.FileInfo{Path: req.Path, Hash: req.Hash, Modified: modified, Size: int64(len(content))})
	if err := slot.store.SaveLocked(slot.state); err != nil {
		sendError(w, http.StatusInternalServerError, "persist state: "+err.Error())
		return
	}

	metrics.UploadBytesTotal.Add(float64(len(content)))
	metrics.RequestsTotal.WithLabelValues("upload", "ok").Inc()
	w.WriteHeader(http.StatusOK)
}

// handleDownload serves file bytes plus hash/modified headers, re-hashing
// on the fly so the delivered bytes are guaranteed to match inventory.
func (c *Coordinator) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	participantID, name, path := q.Get("participant_id"), q.Get("directory_name"), q.Get("path")
	shared := q.Get("shared") == "true"

	key, err := Key(participantID, name, shared)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	slot, err := c.acquire(key)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer slot.unlock()
	info, ok := slot.state.Get(path)
	if !ok {
		sendError(w, http.StatusNotFound, "no such file: "+path)
		return
	}

	target := filepath.Join(c.dirPath(key), filepath.FromSlash(path))
	content, err := os.ReadFile(target)
	if err != nil {
		sendError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	if got := sha256Hex(content); got != info.Hash {
		sendError(w, http.StatusInternalServerError, "stored file no longer matches inventory hash: "+path)
		return
	}

	w.Header().Set(wire.HeaderHash, info.Hash)
	w.Header().Set(wire.HeaderModified, info.Modified.Format(time.RFC3339Nano))
	w.Header().Set("Content-Type", "application/octet-stream")
	metrics.DownloadBytesTotal.Add(float64(len(content)))
	metrics.RequestsTotal.WithLabelValues("download", "ok").Inc()
	w.Write(content)
}

// handleDelete removes the file from disk if present and records the
// tombstone at max(existing, now, requested instant).
func (c *Coordinator) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req wire.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "decode delete request: "+err.Error())
		return
	}

	key, err := Key(req.ParticipantID, req.DirectoryName, req.Shared)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	slot, err := c.acquire(key)
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer slot.unlock()

	instant := time.Now().UTC()
	if req.Instant != nil && req.Instant.After(instant) {
		instant = req.Instant.UTC()
	}

	target := filepath.Join(c.dirPath(key), filepath.FromSlash(req.Path))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		metrics.RequestsTotal.WithLabelValues("delete", "storage_io").Inc()
		sendError(w, http.StatusInternalServerError, "remove file: "+err.Error())
		return
	}

	slot.state.Delete(req.Path, instant)
	if err := slot.store.SaveLocked(slot.state); err != nil {
		sendError(w, http.StatusInternalServerError, "persist state: "+err.Error())
		return
	}

	metrics.RequestsTotal.WithLabelValues("delete", "ok").Inc()
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// acceptsGzip reports whether the client's Accept-Encoding allows gzip.
func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

// writeJSONMaybeGzip writes v as JSON, gzip-compressed when the client
// advertises support for it. A SyncResponse can list every file in a
// directory, the one response body worth compressing on the wire.
func writeJSONMaybeGzip(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	if !acceptsGzip(r) {
		writeJSON(w, code, v)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(code)
	gw := gzip.NewWriter(w)
	defer gw.Close()
	json.NewEncoder(gw).Encode(v)
}

func sendError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, wire.ErrorResponse{Error: message, Code: code})
}
