package drive

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/budget-backend/internal/apperr"
	"github.com/dvloznov/budget-backend/internal/storage"
	"github.com/dvloznov/budget-backend/internal/store"
)

type fakeFile struct {
	id           string
	name         string
	content      []byte
	modifiedTime string
}

// fakeRemote is an in-memory RemoteClient.
type fakeRemote struct {
	files  map[string]*fakeFile // by id
	nextID int
	clock  int
	failOn map[string]bool // filename -> fail every call
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: map[string]*fakeFile{}, failOn: map[string]bool{}}
}

func (f *fakeRemote) tick() string {
	f.clock++
	return fmt.Sprintf("2024-01-01T00:00:%02dZ", f.clock)
}

func (f *fakeRemote) byName(name string) *fakeFile {
	for _, file := range f.files {
		if file.name == name {
			return file
		}
	}
	return nil
}

// put seeds or replaces a remote file outside the engine, simulating another
// device writing to Drive.
func (f *fakeRemote) put(name string, content []byte) *fakeFile {
	file := f.byName(name)
	if file == nil {
		f.nextID++
		file = &fakeFile{id: fmt.Sprintf("id-%d", f.nextID), name: name}
		f.files[file.id] = file
	}
	file.content = append([]byte(nil), content...)
	file.modifiedTime = f.tick()
	return file
}

func md5hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (f *fakeRemote) meta(file *fakeFile) *FileMeta {
	return &FileMeta{
		ID:           file.id,
		Name:         file.name,
		MD5:          md5hex(file.content),
		ModifiedTime: file.modifiedTime,
		Size:         int64(len(file.content)),
	}
}

func (f *fakeRemote) Find(_ context.Context, filename string) (*FileMeta, error) {
	if f.failOn[filename] {
		return nil, apperr.RemoteUnavailable("remote down", nil)
	}
	file := f.byName(filename)
	if file == nil {
		return nil, nil
	}
	return f.meta(file), nil
}

func (f *fakeRemote) Metadata(_ context.Context, fileID string) (*FileMeta, error) {
	file, ok := f.files[fileID]
	if !ok {
		return nil, nil
	}
	if f.failOn[file.name] {
		return nil, apperr.RemoteUnavailable("remote down", nil)
	}
	return f.meta(file), nil
}

func (f *fakeRemote) Download(_ context.Context, fileID string) ([]byte, error) {
	file, ok := f.files[fileID]
	if !ok {
		return nil, apperr.RemoteUnavailable("file vanished", nil)
	}
	if f.failOn[file.name] {
		return nil, apperr.RemoteUnavailable("remote down", nil)
	}
	return append([]byte(nil), file.content...), nil
}

func (f *fakeRemote) Upload(_ context.Context, filename string, data []byte, existingID string) (*FileMeta, error) {
	if f.failOn[filename] {
		return nil, apperr.RemoteUnavailable("remote down", nil)
	}
	if existingID != "" {
		file, ok := f.files[existingID]
		if !ok {
			return nil, apperr.RemoteUnavailable("unknown file id", nil)
		}
		file.content = append([]byte(nil), data...)
		file.modifiedTime = f.tick()
		return f.meta(file), nil
	}
	return f.meta(f.put(filename, data)), nil
}

type engineFixture struct {
	engine *Engine
	remote *fakeRemote
	store  *store.Store
	dir    string
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	dir := t.TempDir()

	lock := storage.NewWriterLock(filepath.Join(dir, ".lock"), time.Second)
	w := storage.NewWriter(dir, filepath.Join(dir, "backups"), lock, zerolog.Nop())
	s, err := store.Open(w, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	tokenPath := filepath.Join(dir, ".secrets", "google_token.json")
	if err := os.MkdirAll(filepath.Dir(tokenPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tokenPath, []byte(`{"token":"t","refresh_token":"r","client_id":"c","client_secret":"s"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	remote := newFakeRemote()
	factory := func(context.Context) (RemoteClient, error) { return remote, nil }
	eng := NewEngine(factory, w, s, tokenPath,
		filepath.Join(dir, ".secrets", "drive_state.json"), "folder", zerolog.Nop())

	return &engineFixture{engine: eng, remote: remote, store: s, dir: dir}
}

const categoriesCSV = "id,name,kind,parent_id,active,created_at,updated_at\n" +
	"c1,Food,expense,,true,2024-01-01T00:00:00Z,2024-01-01T00:00:00Z\n"

const categoriesCSVv2 = "id,name,kind,parent_id,active,created_at,updated_at\n" +
	"c1,Food,expense,,true,2024-01-01T00:00:00Z,2024-01-01T00:00:00Z\n" +
	"c2,Rent,expense,,true,2024-01-02T00:00:00Z,2024-01-02T00:00:00Z\n"

func (fx *engineFixture) writeLocal(t *testing.T, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(fx.dir, filename), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func resultFor(t *testing.T, res *SyncResult, filename string) FileResult {
	t.Helper()
	for _, r := range res.Results {
		if r.Filename == filename {
			return r
		}
	}
	t.Fatalf("no result for %s in %+v", filename, res.Results)
	return FileResult{}
}

func TestSyncFirstRunPushesLocalOnly(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)

	res, err := fx.engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	r := resultFor(t, res, "categories.csv")
	if r.Action != ActionPush || r.Status != StatusOK {
		t.Errorf("categories.csv = %s/%s, want push/ok", r.Action, r.Status)
	}
	if fx.remote.byName("categories.csv") == nil {
		t.Error("categories.csv was not created remotely")
	}

	missing := resultFor(t, res, "transactions.csv")
	if missing.Status != StatusSkipped {
		t.Errorf("transactions.csv status = %s, want skipped", missing.Status)
	}
}

func TestSyncUnchangedSkipsEverything(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)
	ctx := context.Background()

	if _, err := fx.engine.Sync(ctx); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	res, err := fx.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}

	r := resultFor(t, res, "categories.csv")
	if r.Action != ActionSync || r.Status != StatusSkipped {
		t.Errorf("categories.csv = %s/%s, want sync/skipped", r.Action, r.Status)
	}
}

func TestSyncLocalChangePushes(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)
	ctx := context.Background()

	if _, err := fx.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	fx.writeLocal(t, "categories.csv", categoriesCSVv2)

	res, err := fx.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	r := resultFor(t, res, "categories.csv")
	if r.Action != ActionPush || r.Status != StatusOK {
		t.Errorf("categories.csv = %s/%s, want push/ok", r.Action, r.Status)
	}
	if got := string(fx.remote.byName("categories.csv").content); got != categoriesCSVv2 {
		t.Errorf("remote content = %q, want local edit", got)
	}
}

func TestSyncRemoteChangePullsAndReloads(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)
	ctx := context.Background()

	if _, err := fx.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	fx.remote.put("categories.csv", []byte(categoriesCSVv2))

	res, err := fx.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	r := resultFor(t, res, "categories.csv")
	if r.Action != ActionPull || r.Status != StatusOK {
		t.Errorf("categories.csv = %s/%s, want pull/ok", r.Action, r.Status)
	}

	data, err := os.ReadFile(filepath.Join(fx.dir, "categories.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != categoriesCSVv2 {
		t.Errorf("local content = %q, want remote edit", string(data))
	}
	if got := len(fx.store.ListCategories()); got != 2 {
		t.Errorf("store has %d categories after pull, want 2", got)
	}
}

func TestSyncDivergenceLeavesBothSidesUntouched(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)
	ctx := context.Background()

	if _, err := fx.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	localEdit := categoriesCSVv2
	remoteEdit := categoriesCSV +
		"c3,Travel,expense,,true,2024-01-03T00:00:00Z,2024-01-03T00:00:00Z\n"
	fx.writeLocal(t, "categories.csv", localEdit)
	fx.remote.put("categories.csv", []byte(remoteEdit))

	res, err := fx.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	r := resultFor(t, res, "categories.csv")
	if r.Action != ActionConflict || r.Status != StatusConflict {
		t.Fatalf("categories.csv = %s/%s, want conflict/conflict", r.Action, r.Status)
	}
	if r.ConflictLocalCopy == "" {
		t.Fatal("conflict result has no local copy name")
	}

	local, err := os.ReadFile(filepath.Join(fx.dir, "categories.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(local) != localEdit {
		t.Error("local canonical file was modified during conflict")
	}
	if got := string(fx.remote.byName("categories.csv").content); got != remoteEdit {
		t.Error("remote canonical file was modified during conflict")
	}

	copyData, err := os.ReadFile(filepath.Join(fx.dir, r.ConflictLocalCopy))
	if err != nil {
		t.Fatalf("conflict copy missing: %v", err)
	}
	if string(copyData) != remoteEdit {
		t.Error("conflict copy does not hold the remote version")
	}

	// The divergence must survive into the next run.
	res2, err := fx.engine.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if r2 := resultFor(t, res2, "categories.csv"); r2.Status != StatusConflict {
		t.Errorf("second run status = %s, want conflict again", r2.Status)
	}
}

func TestSyncFirstRunDifferingSidesConflicts(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)
	fx.remote.put("categories.csv", []byte(categoriesCSVv2))

	res, err := fx.engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if r := resultFor(t, res, "categories.csv"); r.Status != StatusConflict {
		t.Errorf("status = %s, want conflict on first contact with differing content", r.Status)
	}
}

func TestSyncRemoteErrorIsIsolatedPerFile(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)
	fx.writeLocal(t, "budgets.csv", "month,category_id,budget_cents\n")
	fx.remote.failOn["categories.csv"] = true

	res, err := fx.engine.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if r := resultFor(t, res, "categories.csv"); r.Status != StatusError {
		t.Errorf("categories.csv status = %s, want error", r.Status)
	}
	if r := resultFor(t, res, "budgets.csv"); r.Status != StatusOK {
		t.Errorf("budgets.csv = %s/%s, want the run to continue past the failure", r.Action, r.Status)
	}
}

func TestPushAndPull(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)
	ctx := context.Background()

	pushRes, err := fx.engine.Push(ctx)
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if r := resultFor(t, pushRes, "categories.csv"); r.Status != StatusOK {
		t.Fatalf("push status = %s, want ok", r.Status)
	}

	fx.remote.put("categories.csv", []byte(categoriesCSVv2))
	pullRes, err := fx.engine.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if r := resultFor(t, pullRes, "categories.csv"); r.Status != StatusOK {
		t.Fatalf("pull status = %s, want ok", r.Status)
	}

	data, err := os.ReadFile(filepath.Join(fx.dir, "categories.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != categoriesCSVv2 {
		t.Error("pull did not replace the local file")
	}

	// Pull takes a backup of the replaced file.
	entries, err := os.ReadDir(filepath.Join(fx.dir, "backups"))
	if err != nil || len(entries) == 0 {
		t.Errorf("expected a backup of the replaced file, got %v (err %v)", entries, err)
	}
}

func TestSyncNotConnected(t *testing.T) {
	fx := newEngineFixture(t)
	if err := fx.engine.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	if _, err := fx.engine.Sync(context.Background()); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Errorf("Sync() error = %v, want %s", err, apperr.CodeValidation)
	}
	st, err := fx.engine.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Connected {
		t.Error("Status().Connected = true after disconnect")
	}
	for _, f := range st.Files {
		if f.State != StateUnknown {
			t.Errorf("%s state = %q while disconnected, want %q", f.Filename, f.State, StateUnknown)
		}
	}
}

func statusFor(t *testing.T, st *Status, filename string) FileStatus {
	t.Helper()
	for _, f := range st.Files {
		if f.Filename == filename {
			return f
		}
	}
	t.Fatalf("no status for %s in %+v", filename, st.Files)
	return FileStatus{}
}

func TestStatusAfterSyncReportsFingerprints(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)

	if _, err := fx.engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	st, err := fx.engine.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !st.Connected {
		t.Error("Status().Connected = false, want true")
	}
	if st.LastSyncAt == "" {
		t.Error("Status().LastSyncAt is empty after a sync")
	}
	f := statusFor(t, st, "categories.csv")
	if f.FileID == "" || f.LocalSHA256 == "" || f.DriveMD5 == "" {
		t.Errorf("categories.csv status incomplete: %+v", f)
	}
}

func TestStatusClassifiesFiles(t *testing.T) {
	remoteEdit := categoriesCSV +
		"c3,Travel,expense,,true,2024-01-03T00:00:00Z,2024-01-03T00:00:00Z\n"

	tests := []struct {
		name  string
		setup func(t *testing.T, fx *engineFixture)
		want  string
	}{
		{"unchanged", func(t *testing.T, fx *engineFixture) {}, StateUnchanged},
		{"local edit", func(t *testing.T, fx *engineFixture) {
			fx.writeLocal(t, "categories.csv", categoriesCSVv2)
		}, StateLocalAhead},
		{"remote edit", func(t *testing.T, fx *engineFixture) {
			fx.remote.put("categories.csv", []byte(remoteEdit))
		}, StateRemoteAhead},
		{"both edited", func(t *testing.T, fx *engineFixture) {
			fx.writeLocal(t, "categories.csv", categoriesCSVv2)
			fx.remote.put("categories.csv", []byte(remoteEdit))
		}, StateDiverged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newEngineFixture(t)
			fx.writeLocal(t, "categories.csv", categoriesCSV)
			if _, err := fx.engine.Sync(context.Background()); err != nil {
				t.Fatalf("Sync() error = %v", err)
			}

			tt.setup(t, fx)

			st, err := fx.engine.Status(context.Background())
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			f := statusFor(t, st, "categories.csv")
			if f.State != tt.want {
				t.Errorf("categories.csv state = %q, want %q", f.State, tt.want)
			}
		})
	}
}

func TestStatusReportsCurrentLocalDigest(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)
	if _, err := fx.engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	before, err := fx.engine.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	baseline := statusFor(t, before, "categories.csv").LocalSHA256

	fx.writeLocal(t, "categories.csv", categoriesCSVv2)

	after, err := fx.engine.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	f := statusFor(t, after, "categories.csv")
	if f.LocalSHA256 == baseline {
		t.Error("LocalSHA256 did not change after a local edit; digest is stale")
	}
	want, err := storage.SHA256File(filepath.Join(fx.dir, "categories.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if f.LocalSHA256 != want {
		t.Errorf("LocalSHA256 = %q, want digest of the file on disk %q", f.LocalSHA256, want)
	}
}

func TestPushSkipsRemoteChangedFile(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)
	if _, err := fx.engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	remoteEdit := categoriesCSV +
		"c3,Travel,expense,,true,2024-01-03T00:00:00Z,2024-01-03T00:00:00Z\n"
	fx.remote.put("categories.csv", []byte(remoteEdit))

	res, err := fx.engine.Push(context.Background())
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	r := resultFor(t, res, "categories.csv")
	if r.Status != StatusSkipped {
		t.Errorf("push status = %q, want %q", r.Status, StatusSkipped)
	}
	if got := string(fx.remote.byName("categories.csv").content); got != remoteEdit {
		t.Error("push overwrote a remote edit it should have skipped")
	}

	// Once both sides moved, push still refuses.
	fx.writeLocal(t, "categories.csv", categoriesCSVv2)
	res, err = fx.engine.Push(context.Background())
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if r := resultFor(t, res, "categories.csv"); r.Status != StatusSkipped {
		t.Errorf("push status after divergence = %q, want %q", r.Status, StatusSkipped)
	}
	if got := string(fx.remote.byName("categories.csv").content); got != remoteEdit {
		t.Error("push overwrote the remote side of a divergence")
	}
}

func TestPullSkipsLocalChangedFile(t *testing.T) {
	fx := newEngineFixture(t)
	fx.writeLocal(t, "categories.csv", categoriesCSV)
	if _, err := fx.engine.Sync(context.Background()); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	fx.writeLocal(t, "categories.csv", categoriesCSVv2)

	res, err := fx.engine.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	r := resultFor(t, res, "categories.csv")
	if r.Status != StatusSkipped {
		t.Errorf("pull status = %q, want %q", r.Status, StatusSkipped)
	}
	local, err := os.ReadFile(filepath.Join(fx.dir, "categories.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(local) != categoriesCSVv2 {
		t.Error("pull overwrote a local edit it should have skipped")
	}

	// Once both sides moved, pull still refuses.
	remoteEdit := categoriesCSV +
		"c3,Travel,expense,,true,2024-01-03T00:00:00Z,2024-01-03T00:00:00Z\n"
	fx.remote.put("categories.csv", []byte(remoteEdit))
	res, err = fx.engine.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if r := resultFor(t, res, "categories.csv"); r.Status != StatusSkipped {
		t.Errorf("pull status after divergence = %q, want %q", r.Status, StatusSkipped)
	}
	local, err = os.ReadFile(filepath.Join(fx.dir, "categories.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(local) != categoriesCSVv2 {
		t.Error("pull overwrote the local side of a divergence")
	}
}

func TestConflictName(t *testing.T) {
	now := time.Date(2024, 3, 1, 13, 45, 9, 0, time.UTC)
	got := conflictName("transactions.csv", now)
	want := "transactions.conflict-20240301-134509.csv"
	if got != want {
		t.Errorf("conflictName() = %q, want %q", got, want)
	}
	if got := conflictName("config.json", now); got != "config.conflict-20240301-134509.json" {
		t.Errorf("conflictName(config.json) = %q", got)
	}
}
