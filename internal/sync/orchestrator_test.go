package sync

import (
	"context"
	"errors"
	"strings"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Todor-5rov/Vexcel/internal/cloud"
	"github.com/Todor-5rov/Vexcel/internal/logging"
	"github.com/Todor-5rov/Vexcel/internal/store"
)

type fakeCloud struct {
	mu        gosync.Mutex
	enabled   bool
	statusErr error
	toCloud   error
	toLocal   error
	embedURL  string
	calls     []string
}

func (f *fakeCloud) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeCloud) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCloud) Status(context.Context) (cloud.Status, error) {
	f.record("status")
	if f.statusErr != nil {
		return cloud.Status{}, f.statusErr
	}
	return cloud.Status{Enabled: f.enabled}, nil
}

func (f *fakeCloud) Upload(context.Context, string, string, []byte, string, bool) (*cloud.UploadResult, error) {
	f.record("upload")
	return &cloud.UploadResult{}, nil
}

func (f *fakeCloud) SyncLocalToCloud(_ context.Context, owner, filename, folder string) (*cloud.SyncResponse, error) {
	f.record("to_cloud:" + owner + "/" + filename + "@" + folder)
	if f.toCloud != nil {
		return nil, f.toCloud
	}
	return &cloud.SyncResponse{Message: "ok", EmbedURL: f.embedURL}, nil
}

func (f *fakeCloud) SyncCloudToLocal(_ context.Context, owner, fileID, filename string) (*cloud.SyncResponse, error) {
	f.record("to_local:" + fileID)
	if f.toLocal != nil {
		return nil, f.toLocal
	}
	return &cloud.SyncResponse{Message: "ok"}, nil
}

func (f *fakeCloud) GetEmbedURL(context.Context, string, bool) (string, error) {
	return f.embedURL, nil
}

func (f *fakeCloud) List(context.Context, string, string) ([]cloud.File, error) {
	return []cloud.File{}, nil
}

type fakeRecorder struct {
	err   error
	calls int
	url   string
}

func (f *fakeRecorder) UpdateEmbedURL(_ context.Context, id, owner, url string, at time.Time) error {
	f.calls++
	f.url = url
	return f.err
}

func newOrchestrator(c cloud.Store, files EmbedRecorder, obs Observer) *Orchestrator {
	return New(Config{Cloud: c, Files: files, Observer: obs, Logger: logging.Discard()})
}

func okOp(ctx context.Context) (string, error) { return "ai-result", nil }

func TestSyncedOperationSuccess(t *testing.T) {
	fc := &fakeCloud{enabled: true, embedURL: "https://od/embed?a=1&amp;b=2"}
	rec := &fakeRecorder{}
	o := newOrchestrator(fc, rec, nil)

	out, err := PerformSyncedOperation(context.Background(), o, "u1", "sales.xlsx", okOp, Options{FileID: "f1"})
	require.NoError(t, err)

	assert.Equal(t, "ai-result", out.Result)
	assert.True(t, out.Sync.Success)
	assert.True(t, out.Sync.EmbedURLUpdated)
	assert.Equal(t, "https://od/embed?a=1&b=2", out.Sync.NewEmbedURL)
	assert.Equal(t, "https://od/embed?a=1&b=2", rec.url)
	assert.NoError(t, out.Sync.Err())
	assert.Contains(t, fc.Calls(), "to_cloud:u1/sales.xlsx@excel-files")

	pre, ok := out.Sync.Step(PhasePreSync)
	require.True(t, ok)
	assert.Equal(t, StepSkipped, pre.Status)
}

func TestSyncedOperationWithoutFileIDSkipsMetadata(t *testing.T) {
	fc := &fakeCloud{enabled: true, embedURL: "https://od/embed"}
	rec := &fakeRecorder{}
	o := newOrchestrator(fc, rec, nil)

	out, err := PerformSyncedOperation(context.Background(), o, "u1", "sales.xlsx", okOp, Options{})
	require.NoError(t, err)
	assert.True(t, out.Sync.Success)
	assert.False(t, out.Sync.EmbedURLUpdated)
	assert.Equal(t, "https://od/embed", out.Sync.NewEmbedURL)
	assert.Zero(t, rec.calls)
}

func TestCloudDisabledReportsFailureWithoutError(t *testing.T) {
	fc := &fakeCloud{enabled: false}
	o := newOrchestrator(fc, &fakeRecorder{}, nil)

	out, err := PerformSyncedOperation(context.Background(), o, "u1", "sales.xlsx", okOp, Options{FileID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, "ai-result", out.Result)
	assert.False(t, out.Sync.Success)
	assert.Contains(t, out.Sync.Message, "OneDrive")
	assert.ErrorIs(t, out.Sync.Err(), ErrCloudDisabled)
	assert.ErrorIs(t, out.Sync.Err(), ErrPostSyncFailed)
	for _, c := range fc.Calls() {
		assert.False(t, strings.HasPrefix(c, "to_cloud"), "no sync attempted when disabled")
	}
}

func TestCloudDisabledMessage(t *testing.T) {
	tests := []struct {
		name  string
		store cloud.Disabled
		want  string
	}{
		{"no reason", cloud.Disabled{}, "OneDrive sync skipped: OneDrive integration is not enabled"},
		{"with reason", cloud.Disabled{Reason: "no credentials"}, "OneDrive sync skipped: OneDrive integration is not enabled (no credentials)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(tt.store, &fakeRecorder{}, nil)
			out, err := PerformSyncedOperation(context.Background(), o, "u1", "sales.xlsx", okOp, Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Sync.Message)
		})
	}
}

func TestPostSyncFailureLeavesRowUntouched(t *testing.T) {
	fc := &fakeCloud{enabled: true, toCloud: errors.New("OneDrive sync to OneDrive failed: 500 - boom")}
	rec := &fakeRecorder{}
	o := newOrchestrator(fc, rec, nil)

	out, err := PerformSyncedOperation(context.Background(), o, "u1", "sales.xlsx", okOp, Options{FileID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, "ai-result", out.Result)
	assert.False(t, out.Sync.Success)
	assert.True(t, strings.HasPrefix(out.Sync.Message, "Failed to sync to OneDrive: "))
	assert.ErrorIs(t, out.Sync.Err(), ErrPostSyncFailed)
	assert.Zero(t, rec.calls)
}

func TestStatusErrorIsPostSyncFailure(t *testing.T) {
	fc := &fakeCloud{statusErr: errors.New("connection refused")}
	o := newOrchestrator(fc, nil, nil)

	out, err := PerformSyncedOperation(context.Background(), o, "u1", "a.xlsx", okOp, Options{})
	require.NoError(t, err)
	assert.False(t, out.Sync.Success)
	assert.ErrorIs(t, out.Sync.Err(), ErrPostSyncFailed)
	assert.NotErrorIs(t, out.Sync.Err(), ErrCloudDisabled)
}

func TestPreSyncFailureIsSwallowed(t *testing.T) {
	fc := &fakeCloud{enabled: true, toLocal: errors.New("download failed"), embedURL: "https://od/e"}
	o := newOrchestrator(fc, &fakeRecorder{}, nil)

	ran := false
	op := func(ctx context.Context) (int, error) {
		ran = true
		return 42, nil
	}
	out, err := PerformSyncedOperation(context.Background(), o, "u1", "a.xlsx", op,
		Options{FileID: "f1", CloudFileID: "F1", SyncFromCloudFirst: true})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 42, out.Result)
	assert.True(t, out.Sync.Success, "pre-sync failure does not fail the sync")
	assert.True(t, out.Sync.Degraded())
	assert.ErrorIs(t, out.Sync.Err(), ErrPreSyncFailed)

	calls := fc.Calls()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls, "to_local:F1")
}

func TestPreSyncRunsBeforeOperation(t *testing.T) {
	fc := &fakeCloud{enabled: true}
	o := newOrchestrator(fc, nil, nil)

	op := func(ctx context.Context) (bool, error) {
		fc.record("op")
		return true, nil
	}
	_, err := PerformSyncedOperation(context.Background(), o, "u1", "a.xlsx", op,
		Options{CloudFileID: "F1", SyncFromCloudFirst: true})
	require.NoError(t, err)

	calls := fc.Calls()
	idxLocal, idxOp := -1, -1
	for i, c := range calls {
		switch c {
		case "to_local:F1":
			idxLocal = i
		case "op":
			idxOp = i
		}
	}
	require.NotEqual(t, -1, idxLocal)
	assert.Less(t, idxLocal, idxOp)
}

func TestPreSyncNeedsCloudFileID(t *testing.T) {
	fc := &fakeCloud{enabled: true}
	o := newOrchestrator(fc, nil, nil)

	out, err := PerformSyncedOperation(context.Background(), o, "u1", "a.xlsx", okOp, Options{SyncFromCloudFirst: true})
	require.NoError(t, err)
	pre, _ := out.Sync.Step(PhasePreSync)
	assert.Equal(t, StepSkipped, pre.Status)
}

func TestOperationErrorSkipsPostSync(t *testing.T) {
	fc := &fakeCloud{enabled: true}
	var events []Event
	o := newOrchestrator(fc, nil, ObserverFunc(func(_ context.Context, ev Event) { events = append(events, ev) }))

	opErr := errors.New("rate limit exceeded")
	op := func(ctx context.Context) (string, error) { return "", opErr }
	out, err := PerformSyncedOperation(context.Background(), o, "u1", "a.xlsx", op, Options{FileID: "f1"})
	assert.Same(t, opErr, err)
	assert.Empty(t, out.Result)
	for _, c := range fc.Calls() {
		assert.False(t, strings.HasPrefix(c, "to_cloud"))
	}
	require.Len(t, events, 1)
	assert.False(t, events[0].Result.Success)
}

func TestSyncOnFailureStillPushes(t *testing.T) {
	fc := &fakeCloud{enabled: true, embedURL: "https://od/e"}
	o := newOrchestrator(fc, nil, nil)

	opErr := errors.New("partial edit")
	op := func(ctx context.Context) (string, error) { return "partial", opErr }
	out, err := PerformSyncedOperation(context.Background(), o, "u1", "a.xlsx", op, Options{SyncOnFailure: true})
	assert.ErrorIs(t, err, opErr)
	assert.Equal(t, "partial", out.Result)
	assert.True(t, out.Sync.Success)
	assert.Contains(t, fc.Calls(), "to_cloud:u1/a.xlsx@excel-files")
}

func TestMetadataFailureIsDegraded(t *testing.T) {
	fc := &fakeCloud{enabled: true, embedURL: "https://od/e"}
	rec := &fakeRecorder{err: errors.New("db down")}
	o := newOrchestrator(fc, rec, nil)

	out, err := PerformSyncedOperation(context.Background(), o, "u1", "a.xlsx", okOp, Options{FileID: "f1"})
	require.NoError(t, err)
	assert.True(t, out.Sync.Success)
	assert.False(t, out.Sync.EmbedURLUpdated)
	assert.Equal(t, "https://od/e", out.Sync.NewEmbedURL)
	assert.ErrorIs(t, out.Sync.Err(), ErrMetadataUpdateFailed)

	md, ok := out.Sync.Step(PhaseMetadata)
	require.True(t, ok)
	assert.Equal(t, StepDegraded, md.Status)
}

func TestObserverReceivesResult(t *testing.T) {
	fc := &fakeCloud{enabled: true, embedURL: "https://od/e"}
	var got []Event
	obs := ObserverFunc(func(_ context.Context, ev Event) { got = append(got, ev) })
	o := newOrchestrator(fc, &fakeRecorder{}, Observers(nil, obs))

	_, err := PerformSyncedOperation(context.Background(), o, "u1", "a.xlsx", okOp, Options{FileID: "f1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].OwnerID)
	assert.Equal(t, "f1", got[0].FileID)
	assert.True(t, got[0].Result.EmbedURLUpdated)
}

func TestSameFileIsSerialized(t *testing.T) {
	fc := &fakeCloud{enabled: true}
	o := newOrchestrator(fc, nil, nil)

	var active, maxActive int32
	op := func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return 0, nil
	}

	var wg gosync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := PerformSyncedOperation(context.Background(), o, "u1", "a.xlsx", op, Options{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	assert.Zero(t, o.locks.size(), "lock entries are released")
}

func TestDifferentFilesRunConcurrently(t *testing.T) {
	fc := &fakeCloud{enabled: true}
	o := newOrchestrator(fc, nil, nil)

	started := make(chan struct{})
	unblock := make(chan struct{})
	blocking := func(ctx context.Context) (int, error) {
		close(started)
		<-unblock
		return 1, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := PerformSyncedOperation(context.Background(), o, "u1", "a.xlsx", blocking, Options{})
		done <- err
	}()
	<-started

	other, err := PerformSyncedOperation(context.Background(), o, "u2", "a.xlsx", func(ctx context.Context) (int, error) { return 2, nil }, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, other.Result)

	close(unblock)
	require.NoError(t, <-done)
}

func TestLockWaitHonoursContext(t *testing.T) {
	fc := &fakeCloud{enabled: true}
	o := newOrchestrator(fc, nil, nil)

	started := make(chan struct{})
	unblock := make(chan struct{})
	go func() {
		_, _ = PerformSyncedOperation(context.Background(), o, "u1", "a.xlsx", func(ctx context.Context) (int, error) {
			close(started)
			<-unblock
			return 0, nil
		}, Options{})
	}()
	<-started
	defer close(unblock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := PerformSyncedOperation(ctx, o, "u1", "a.xlsx", okOp, Options{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// End to end against a real metadata store: the row is refreshed after a
// successful operation and untouched after a failed post-sync.
func TestSyncedOperationUpdatesStoredRow(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(ctx, db, store.DriverSQLite, logging.Discard()))
	repo := store.NewSQLRepository(db)

	f := &store.LogicalFile{
		OwnerID: "u1", Filename: "sales.xlsx", RemoteFilename: "sales.xlsx", RemotePath: "u1/sales.xlsx",
		CloudFileID: "F1", CloudEmbedURL: "https://od/old",
	}
	require.NoError(t, repo.Insert(ctx, f))

	fc := &fakeCloud{enabled: true, embedURL: "https://od/new?x=1&amp;y=2"}
	o := newOrchestrator(fc, repo, nil)

	var completed time.Time
	op := func(ctx context.Context) (string, error) {
		completed = time.Now()
		return "Increased salaries by 10%", nil
	}
	out, err := PerformSyncedOperation(ctx, o, "u1", "sales.xlsx", op, Options{FileID: f.ID, CloudFileID: "F1"})
	require.NoError(t, err)
	require.True(t, out.Sync.EmbedURLUpdated)

	got, err := repo.Get(ctx, f.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://od/new?x=1&y=2", got.CloudEmbedURL)
	require.NotNil(t, got.LastSyncedAt)
	assert.False(t, got.LastSyncedAt.Before(completed.Truncate(time.Millisecond)))
	assert.False(t, got.LastAccessedAt.Before(completed.Truncate(time.Millisecond)))

	fc.toCloud = errors.New("500 internal error")
	out, err = PerformSyncedOperation(ctx, o, "u1", "sales.xlsx", okOp, Options{FileID: f.ID})
	require.NoError(t, err)
	assert.False(t, out.Sync.Success)

	after, err := repo.Get(ctx, f.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, got.CloudEmbedURL, after.CloudEmbedURL)
	assert.Equal(t, got.LastSyncedAt.UnixMilli(), after.LastSyncedAt.UnixMilli())
}
