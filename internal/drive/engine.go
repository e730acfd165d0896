package drive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/storage"
	"github.com/dvloznov/budget-backend/internal/store"
)

// CanonicalFiles are the files the sync engine mirrors, in sync order.
var CanonicalFiles = []string{
	"transactions.csv",
	"categories.csv",
	"budgets.csv",
	"config.json",
}

// Actions and statuses reported per file.
const (
	ActionPush     = "push"
	ActionPull     = "pull"
	ActionSync     = "sync"
	ActionConflict = "conflict"

	StatusOK       = "ok"
	StatusSkipped  = "skipped"
	StatusError    = "error"
	StatusConflict = "conflict"
)

// Per-file sync states relative to the last recorded fingerprints.
const (
	StateUnknown     = "unknown"
	StateUnchanged   = "unchanged"
	StateLocalAhead  = "local_ahead"
	StateRemoteAhead = "remote_ahead"
	StateDiverged    = "diverged"
)

// FileResult is the per-file outcome of a sync run.
type FileResult struct {
	Filename          string `json:"filename"`
	Action            string `json:"action"`
	Status            string `json:"status"`
	Message           string `json:"message,omitempty"`
	FileID            string `json:"file_id,omitempty"`
	DriveMD5          string `json:"drive_md5,omitempty"`
	DriveModifiedTime string `json:"drive_modified_time,omitempty"`
	LocalSHA256       string `json:"local_sha256,omitempty"`
	ConflictLocalCopy string `json:"conflict_local_copy,omitempty"`
}

// SyncResult is the outcome of one push, pull or smart sync run.
type SyncResult struct {
	Mode       string       `json:"mode"`
	Results    []FileResult `json:"results"`
	LastSyncAt string       `json:"last_sync_at,omitempty"`
}

// FileStatus is the per-file view in the status report. LocalSHA256 is the
// digest of the file as it sits on disk right now, not the one recorded at
// the last sync.
type FileStatus struct {
	Filename          string `json:"filename"`
	State             string `json:"state"`
	FileID            string `json:"file_id,omitempty"`
	DriveMD5          string `json:"drive_md5,omitempty"`
	DriveModifiedTime string `json:"drive_modified_time,omitempty"`
	LocalSHA256       string `json:"local_sha256,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Status is the connection and per-file sync state report. When connected it
// fetches current remote metadata to classify each file; otherwise files are
// reported as unknown.
type Status struct {
	Connected  bool         `json:"connected"`
	Mode       string       `json:"mode"`
	LastSyncAt string       `json:"last_sync_at,omitempty"`
	FolderID   string       `json:"folder_id,omitempty"`
	Files      []FileStatus `json:"files"`
}

// ClientFactory dials the remote side. Production wires NewService; tests
// wire a fake.
type ClientFactory func(ctx context.Context) (RemoteClient, error)

// Engine runs push, pull and smart sync over the canonical files.
type Engine struct {
	newClient ClientFactory
	writer    *storage.Writer
	store     *store.Store
	tokenPath string
	statePath string
	mode      string
	log       zerolog.Logger
}

// NewEngine creates a sync engine.
func NewEngine(newClient ClientFactory, w *storage.Writer, s *store.Store, tokenPath, statePath, mode string, log zerolog.Logger) *Engine {
	return &Engine{
		newClient: newClient,
		writer:    w,
		store:     s,
		tokenPath: tokenPath,
		statePath: statePath,
		mode:      mode,
		log:       log,
	}
}

// Status reports the connection state and classifies every canonical file
// against the remote side. Remote lookup failures for a single file degrade
// that file to unknown rather than failing the whole report.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st := LoadState(e.statePath, e.mode)

	out := &Status{
		Connected:  Connected(e.tokenPath),
		Mode:       st.Mode,
		LastSyncAt: st.LastSyncAt,
		FolderID:   st.FolderID,
	}

	var client RemoteClient
	if out.Connected && e.newClient != nil {
		c, err := e.newClient(ctx)
		if err != nil {
			return nil, err
		}
		client = c
	}

	for _, filename := range CanonicalFiles {
		prev := st.Files[filename]
		fs := FileStatus{
			Filename:          filename,
			State:             StateUnknown,
			FileID:            prev.FileID,
			DriveMD5:          prev.DriveMD5,
			DriveModifiedTime: prev.DriveModifiedTime,
		}

		path := filepath.Join(e.writer.DataDir(), filename)
		sha, md5sum, exists, err := localDigests(path)
		if err != nil {
			fs.Message = err.Error()
			out.Files = append(out.Files, fs)
			continue
		}
		fs.LocalSHA256 = sha

		if client == nil {
			out.Files = append(out.Files, fs)
			continue
		}

		meta, err := resolveRemote(ctx, client, prev, filename)
		if err != nil {
			fs.Message = err.Error()
			out.Files = append(out.Files, fs)
			continue
		}
		if meta != nil {
			fs.FileID = meta.ID
			fs.DriveMD5 = meta.MD5
			fs.DriveModifiedTime = meta.ModifiedTime
		}
		fs.State = classify(prev, fileSnapshot{localSHA: sha, localMD5: md5sum, localExists: exists, meta: meta})
		out.Files = append(out.Files, fs)
	}
	return out, nil
}

// Disconnect removes the credential and the sync state. Local data files
// are untouched.
func (e *Engine) Disconnect() error {
	for _, path := range []string{e.tokenPath, e.statePath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return apperr.IO("could not remove "+filepath.Base(path), err)
		}
	}
	e.log.Info().Msg("Drive disconnected")
	return nil
}

func (e *Engine) connect(ctx context.Context) (RemoteClient, *SyncState, error) {
	if !Connected(e.tokenPath) {
		return nil, nil, apperr.Validation("Google Drive is not connected.")
	}
	client, err := e.newClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	st := LoadState(e.statePath, e.mode)
	st.Mode = e.mode
	if fp, ok := client.(interface{ FolderID() string }); ok && fp.FolderID() != "" {
		st.FolderID = fp.FolderID()
	}
	return client, st, nil
}

func (e *Engine) finish(st *SyncState, results []FileResult) (*SyncResult, error) {
	st.LastSyncAt = time.Now().UTC().Format(time.RFC3339)
	if err := SaveState(e.statePath, st); err != nil {
		return nil, err
	}
	return &SyncResult{Mode: st.Mode, Results: results, LastSyncAt: st.LastSyncAt}, nil
}

// resolveRemote finds the current remote metadata for a file, preferring the
// id recorded in state and falling back to a search by name.
func resolveRemote(ctx context.Context, client RemoteClient, fs FileState, filename string) (*FileMeta, error) {
	if fs.FileID != "" {
		meta, err := client.Metadata(ctx, fs.FileID)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			return meta, nil
		}
	}
	return client.Find(ctx, filename)
}

func localDigests(path string) (sha, md5sum string, exists bool, err error) {
	if _, statErr := os.Stat(path); statErr != nil {
		if os.IsNotExist(statErr) {
			return "", "", false, nil
		}
		return "", "", false, apperr.IO("could not stat "+filepath.Base(path), statErr)
	}
	sha, err = storage.SHA256File(path)
	if err != nil {
		return "", "", true, err
	}
	md5sum, err = storage.MD5File(path)
	if err != nil {
		return "", "", true, err
	}
	return sha, md5sum, true, nil
}

func errResult(filename, action string, err error) FileResult {
	return FileResult{Filename: filename, Action: action, Status: StatusError, Message: err.Error()}
}

// fileSnapshot is one file seen from both sides at the same moment.
type fileSnapshot struct {
	localSHA    string
	localMD5    string
	localExists bool
	meta        *FileMeta
}

func (e *Engine) snapshot(ctx context.Context, client RemoteClient, prev FileState, filename string) (fileSnapshot, error) {
	path := filepath.Join(e.writer.DataDir(), filename)
	sha, md5sum, exists, err := localDigests(path)
	if err != nil {
		return fileSnapshot{}, err
	}
	meta, err := resolveRemote(ctx, client, prev, filename)
	if err != nil {
		return fileSnapshot{}, err
	}
	return fileSnapshot{localSHA: sha, localMD5: md5sum, localExists: exists, meta: meta}, nil
}

func (s fileSnapshot) sameContent() bool {
	return s.meta != nil && s.localMD5 != "" && s.meta.MD5 != "" && s.localMD5 == s.meta.MD5
}

// classify maps a snapshot onto the sync state machine relative to the last
// recorded fingerprints. Without a baseline, two differing sides read as
// diverged: neither may win silently.
func classify(prev FileState, s fileSnapshot) string {
	remoteExists := s.meta != nil
	switch {
	case !s.localExists && !remoteExists:
		return StateUnknown
	case s.localExists && !remoteExists:
		return StateLocalAhead
	case !s.localExists && remoteExists:
		return StateRemoteAhead
	}

	if !prev.known() {
		if s.sameContent() {
			return StateUnchanged
		}
		return StateDiverged
	}

	localChanged := prev.LocalSHA256 != "" && s.localSHA != prev.LocalSHA256
	var remoteChanged bool
	switch {
	case prev.DriveMD5 != "" && s.meta.MD5 != "" && s.meta.MD5 != prev.DriveMD5:
		remoteChanged = true
	case prev.DriveModifiedTime != "" && s.meta.ModifiedTime != "" && s.meta.ModifiedTime != prev.DriveModifiedTime:
		remoteChanged = true
	}

	switch {
	case !localChanged && !remoteChanged:
		return StateUnchanged
	case localChanged && !remoteChanged:
		return StateLocalAhead
	case remoteChanged && !localChanged:
		return StateRemoteAhead
	case s.sameContent():
		// Both sides changed into the same bytes.
		return StateUnchanged
	}
	return StateDiverged
}

// Push uploads every local canonical file that the remote side has not moved
// past. Files classified remote_ahead or diverged are skipped so a push can
// never destroy edits made on another device.
func (e *Engine) Push(ctx context.Context) (*SyncResult, error) {
	client, st, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}

	var results []FileResult
	for _, filename := range CanonicalFiles {
		results = append(results, e.pushFile(ctx, client, st, filename))
	}
	return e.finish(st, results)
}

func (e *Engine) pushFile(ctx context.Context, client RemoteClient, st *SyncState, filename string) FileResult {
	prev := st.Files[filename]
	snap, err := e.snapshot(ctx, client, prev, filename)
	if err != nil {
		return errResult(filename, ActionPush, err)
	}
	if !snap.localExists {
		return FileResult{Filename: filename, Action: ActionPush, Status: StatusSkipped, Message: "Missing locally"}
	}

	switch classify(prev, snap) {
	case StateRemoteAhead:
		return FileResult{Filename: filename, Action: ActionPush, Status: StatusSkipped,
			Message: "Drive changed since the last sync; run a full sync first."}
	case StateDiverged:
		return FileResult{Filename: filename, Action: ActionPush, Status: StatusSkipped,
			Message: "Both sides changed since the last sync; run a full sync first."}
	}

	path := filepath.Join(e.writer.DataDir(), filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return errResult(filename, ActionPush, apperr.IO("could not read "+filename, err))
	}
	existingID := ""
	if snap.meta != nil {
		existingID = snap.meta.ID
	}

	uploaded, err := client.Upload(ctx, filename, data, existingID)
	if err != nil {
		return errResult(filename, ActionPush, err)
	}

	st.Files[filename] = FileState{
		FileID:            uploaded.ID,
		DriveMD5:          uploaded.MD5,
		DriveModifiedTime: uploaded.ModifiedTime,
		LocalSHA256:       snap.localSHA,
		LocalMD5:          snap.localMD5,
	}
	return FileResult{
		Filename:          filename,
		Action:            ActionPush,
		Status:            StatusOK,
		FileID:            uploaded.ID,
		DriveMD5:          uploaded.MD5,
		DriveModifiedTime: uploaded.ModifiedTime,
		LocalSHA256:       snap.localSHA,
	}
}

// Pull downloads every remote canonical file that the local side has not
// moved past; local_ahead and diverged files are skipped. Replaced local
// files get the usual backup first.
func (e *Engine) Pull(ctx context.Context) (*SyncResult, error) {
	client, st, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}

	var results []FileResult
	pulled := false
	for _, filename := range CanonicalFiles {
		res := e.pullFile(ctx, client, st, filename)
		if res.Status == StatusOK {
			pulled = true
		}
		results = append(results, res)
	}

	out, err := e.finish(st, results)
	if err != nil {
		return nil, err
	}
	if pulled {
		if err := e.store.Reload(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) pullFile(ctx context.Context, client RemoteClient, st *SyncState, filename string) FileResult {
	prev := st.Files[filename]
	snap, err := e.snapshot(ctx, client, prev, filename)
	if err != nil {
		return errResult(filename, ActionPull, err)
	}
	if snap.meta == nil {
		return FileResult{Filename: filename, Action: ActionPull, Status: StatusSkipped, Message: "Not found on Drive"}
	}

	switch classify(prev, snap) {
	case StateLocalAhead:
		return FileResult{Filename: filename, Action: ActionPull, Status: StatusSkipped,
			Message: "Local file changed since the last sync; run a full sync first."}
	case StateDiverged:
		return FileResult{Filename: filename, Action: ActionPull, Status: StatusSkipped,
			Message: "Both sides changed since the last sync; run a full sync first."}
	}

	meta := snap.meta
	content, err := client.Download(ctx, meta.ID)
	if err != nil {
		return errResult(filename, ActionPull, err)
	}
	if err := e.writer.WriteBytes(ctx, filename, content); err != nil {
		return errResult(filename, ActionPull, err)
	}

	path := filepath.Join(e.writer.DataDir(), filename)
	sha, md5sum, _, err := localDigests(path)
	if err != nil {
		return errResult(filename, ActionPull, err)
	}

	st.Files[filename] = FileState{
		FileID:            meta.ID,
		DriveMD5:          meta.MD5,
		DriveModifiedTime: meta.ModifiedTime,
		LocalSHA256:       sha,
		LocalMD5:          md5sum,
	}
	return FileResult{
		Filename:          filename,
		Action:            ActionPull,
		Status:            StatusOK,
		FileID:            meta.ID,
		DriveMD5:          meta.MD5,
		DriveModifiedTime: meta.ModifiedTime,
		LocalSHA256:       sha,
	}
}

// Sync compares both sides against the recorded state and moves each file
// in the direction that changed. A file that changed on both sides is left
// untouched on both sides; the remote version lands next to the local file
// as a timestamped conflict copy for the user to reconcile.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	client, st, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}

	var results []FileResult
	pulled := false
	for _, filename := range CanonicalFiles {
		res := e.syncFile(ctx, client, st, filename)
		if res.Action == ActionPull && res.Status == StatusOK {
			pulled = true
		}
		results = append(results, res)
	}

	out, err := e.finish(st, results)
	if err != nil {
		return nil, err
	}
	if pulled {
		if err := e.store.Reload(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) syncFile(ctx context.Context, client RemoteClient, st *SyncState, filename string) FileResult {
	prev := st.Files[filename]
	snap, err := e.snapshot(ctx, client, prev, filename)
	if err != nil {
		return errResult(filename, ActionSync, err)
	}

	switch classify(prev, snap) {
	case StateLocalAhead:
		return e.pushFile(ctx, client, st, filename)
	case StateRemoteAhead:
		return e.pullFile(ctx, client, st, filename)
	case StateUnknown:
		return FileResult{Filename: filename, Action: ActionSync, Status: StatusSkipped, Message: "Missing on both sides"}
	case StateUnchanged:
		if snap.sameContent() {
			// Record or converge the fingerprints over identical content.
			st.Files[filename] = FileState{
				FileID:            snap.meta.ID,
				DriveMD5:          snap.meta.MD5,
				DriveModifiedTime: snap.meta.ModifiedTime,
				LocalSHA256:       snap.localSHA,
				LocalMD5:          snap.localMD5,
			}
		}
		return FileResult{Filename: filename, Action: ActionSync, Status: StatusSkipped}
	}

	return e.conflictFile(ctx, client, filename, snap.meta)
}

// conflictFile records a divergence. The remote version is saved locally as
// a conflict copy; the local canonical file and the remote file both stay
// exactly as they were, and the recorded state is left stale so the next
// sync still sees the divergence.
func (e *Engine) conflictFile(ctx context.Context, client RemoteClient, filename string, meta *FileMeta) FileResult {
	content, err := client.Download(ctx, meta.ID)
	if err != nil {
		return errResult(filename, ActionConflict, err)
	}

	conflictName := conflictName(filename, time.Now())
	if err := e.writer.WriteBytes(ctx, conflictName, content); err != nil {
		return errResult(filename, ActionConflict, err)
	}

	e.log.Warn().
		Str("filename", filename).
		Str("conflict_copy", conflictName).
		Msg("Sync conflict; both sides changed")

	return FileResult{
		Filename:          filename,
		Action:            ActionConflict,
		Status:            StatusConflict,
		Message:           "Both local and Drive changed; remote version saved as a local conflict copy.",
		FileID:            meta.ID,
		DriveMD5:          meta.MD5,
		DriveModifiedTime: meta.ModifiedTime,
		ConflictLocalCopy: conflictName,
	}
}

// conflictName derives stem.conflict-YYYYMMDD-HHMMSS.ext from a filename.
func conflictName(filename string, now time.Time) string {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	return stem + ".conflict-" + storage.TimestampCompact(now) + ext
}
