package uploads

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"greenroom/internal/netmon"
	"greenroom/internal/storage"
)

// companionServer fakes the multipart upload endpoint. Flip fail to make
// every request bounce with a 500.
type companionServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests int
	fail     bool

	lastDeviceID string
	lastMode     string
	lastFile     []byte
}

func newCompanionServer(t *testing.T) *companionServer {
	t.Helper()
	cs := &companionServer{}
	cs.srv = httptest.NewServer(http.HandlerFunc(cs.handle))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *companionServer) handle(w http.ResponseWriter, r *http.Request) {
	cs.mu.Lock()
	cs.requests++
	fail := cs.fail
	cs.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "disk full"})
		return
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, hdr, err := r.FormFile("video")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer f.Close()
	body, _ := io.ReadAll(f)

	cs.mu.Lock()
	cs.lastDeviceID = r.FormValue("deviceId")
	cs.lastMode = r.FormValue("captureMode")
	cs.lastFile = body
	cs.mu.Unlock()

	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"recording": map[string]any{
			"id":       "rec-001",
			"filename": hdr.Filename,
			"size":     len(body),
		},
	})
}

func (cs *companionServer) requestCount() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.requests
}

func (cs *companionServer) setFail(fail bool) {
	cs.mu.Lock()
	cs.fail = fail
	cs.mu.Unlock()
}

func writeMedia(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestQueue(t *testing.T, cs *companionServer, obs netmon.Observer) (*Queue, storage.KV) {
	t.Helper()
	kv := storage.NewMemory()
	q := New(Options{
		KV:       kv,
		Uploader: NewUploader(cs.srv.URL, cs.srv.Client()),
		Observer: obs,
		DeviceID: "device-test",
	})
	return q, kv
}

func TestSubmitUploadsDirectlyWhenOnline(t *testing.T) {
	cs := newCompanionServer(t)
	q, _ := newTestQueue(t, cs, netmon.Static{Connected: true})
	path := writeMedia(t, "take1.webm", "fake media bytes")

	var lastSent, total int64
	res, err := q.Submit(context.Background(), path, "sess-1", ModeAV, func(sent, tot int64) {
		lastSent, total = sent, tot
	})
	require.NoError(t, err)
	require.False(t, res.Queued())
	require.Equal(t, "rec-001", res.Recording.ID)

	require.Equal(t, "device-test", cs.lastDeviceID)
	require.Equal(t, "av", cs.lastMode)
	require.Equal(t, "fake media bytes", string(cs.lastFile))
	require.Equal(t, total, lastSent, "progress should reach the file size")

	// Success deletes the local file and leaves nothing queued.
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestSubmitQueuesWhenOffline(t *testing.T) {
	cs := newCompanionServer(t)
	q, _ := newTestQueue(t, cs, netmon.Static{Connected: false})
	path := writeMedia(t, "take2.webm", "x")

	res, err := q.Submit(context.Background(), path, "sess-1", ModeAudio, nil)
	require.NoError(t, err)
	require.True(t, res.Queued())
	require.Equal(t, 0, cs.requestCount(), "offline submit must not touch the network")

	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, path, pending[0].LocalPath)
	require.Equal(t, 0, pending[0].RetryCount)
	require.NotEmpty(t, pending[0].ID)

	// The file stays on disk until it actually uploads.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSubmitQueuesOnUploadFailure(t *testing.T) {
	cs := newCompanionServer(t)
	cs.setFail(true)
	q, _ := newTestQueue(t, cs, netmon.Static{Connected: true})
	path := writeMedia(t, "take3.webm", "x")

	res, err := q.Submit(context.Background(), path, "sess-1", ModeVideo, nil)
	require.NoError(t, err, "a failed upload falls back to the queue, not an error")
	require.True(t, res.Queued())

	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	cs := newCompanionServer(t)
	q, _ := newTestQueue(t, cs, netmon.Static{Connected: true})

	_, err := q.Submit(context.Background(), writeMedia(t, "a.webm", "x"), "s", CaptureMode("screencast"), nil)
	require.Error(t, err)

	_, err = q.Submit(context.Background(), filepath.Join(t.TempDir(), "missing.webm"), "s", ModeAV, nil)
	require.Error(t, err)
}

func TestDrainUploadsQueuedItems(t *testing.T) {
	cs := newCompanionServer(t)
	q, _ := newTestQueue(t, cs, netmon.Static{Connected: false})
	ctx := context.Background()

	pathA := writeMedia(t, "a.webm", "aaa")
	pathB := writeMedia(t, "b.webm", "bbb")
	_, err := q.Submit(ctx, pathA, "sess-1", ModeAV, nil)
	require.NoError(t, err)
	_, err = q.Submit(ctx, pathB, "sess-1", ModeAV, nil)
	require.NoError(t, err)

	stats, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainStats{Succeeded: 2}, stats)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
	_, err = os.Stat(pathA)
	require.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(pathB)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDrainParksItemAtRetryLimit(t *testing.T) {
	cs := newCompanionServer(t)
	cs.setFail(true)
	q, _ := newTestQueue(t, cs, netmon.Static{Connected: false})
	ctx := context.Background()

	path := writeMedia(t, "doomed.webm", "x")
	_, err := q.Submit(ctx, path, "sess-9", ModeAV, nil)
	require.NoError(t, err)

	// Two failed drains keep the item queued with a growing retry count.
	for want := 1; want <= 2; want++ {
		stats, err := q.Drain(ctx)
		require.NoError(t, err)
		require.Equal(t, DrainStats{Failed: 1, Remaining: 1}, stats)

		pending, err := q.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, want, pending[0].RetryCount)
	}

	// The third failure exhausts the budget: out of the queue, into the
	// saved-recordings index.
	stats, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainStats{Failed: 1}, stats)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	saved, err := q.SavedRecordings(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.Equal(t, path, saved[0].LocalPath)
	require.Equal(t, "sess-9", saved[0].SessionID)
	require.False(t, saved[0].Uploaded)

	// No fourth automatic attempt, even with the server healthy again.
	cs.setFail(false)
	attempts := cs.requestCount()
	stats, err = q.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainStats{}, stats)
	require.Equal(t, attempts, cs.requestCount())

	// The file survives for manual recovery.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestDrainMixedOutcomes(t *testing.T) {
	cs := newCompanionServer(t)
	q, kv := newTestQueue(t, cs, netmon.Static{Connected: false})
	ctx := context.Background()

	good := writeMedia(t, "good.webm", "x")
	gone := filepath.Join(t.TempDir(), "gone.webm")

	_, err := q.Submit(ctx, good, "sess-1", ModeAV, nil)
	require.NoError(t, err)
	// Simulate a file that vanished after being queued.
	items, err := loadQueue(ctx, kv)
	require.NoError(t, err)
	items = append(items, Item{ID: newItemID(time.Now()), LocalPath: gone, SessionID: "sess-1", CaptureMode: ModeAV, EnqueuedAt: time.Now()})
	require.NoError(t, saveQueue(ctx, kv, items))

	stats, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainStats{Succeeded: 1, Failed: 1, Remaining: 1}, stats)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, gone, pending[0].LocalPath)
}

// manualObserver lets a test fire connectivity transitions by hand.
type manualObserver struct {
	mu        sync.Mutex
	connected bool
	subs      []func(bool)
}

func (m *manualObserver) IsConnected(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *manualObserver) OnChange(cb func(bool)) func() {
	m.mu.Lock()
	m.subs = append(m.subs, cb)
	m.mu.Unlock()
	return func() {}
}

func (m *manualObserver) fire(connected bool) {
	m.mu.Lock()
	m.connected = connected
	subs := append([]func(bool){}, m.subs...)
	m.mu.Unlock()
	for _, cb := range subs {
		cb(connected)
	}
}

func TestWatchDrainsOnReconnect(t *testing.T) {
	cs := newCompanionServer(t)
	obs := &manualObserver{}
	q, _ := newTestQueue(t, cs, obs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := writeMedia(t, "queued.webm", "x")
	_, err := q.Submit(ctx, path, "sess-1", ModeAV, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		q.Watch(ctx)
		close(done)
	}()

	// Let Watch register its subscription before firing.
	require.Eventually(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return len(obs.subs) == 1
	}, 2*time.Second, time.Millisecond)

	obs.fire(true)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending, "reconnect should drain the queue")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop on cancel")
	}
}

func TestRetrySavedUploadsAndRemovesEntry(t *testing.T) {
	cs := newCompanionServer(t)
	q, kv := newTestQueue(t, cs, netmon.Static{Connected: true})
	ctx := context.Background()

	path := writeMedia(t, "parked.webm", "late upload")
	require.NoError(t, saveRecordings(ctx, kv, []SavedRecording{{
		LocalPath:   path,
		SessionID:   "sess-4",
		CaptureMode: ModeAV,
		Timestamp:   time.Now(),
		Uploaded:    false,
	}}))

	rec, err := q.RetrySaved(ctx, path, nil)
	require.NoError(t, err)
	require.Equal(t, "rec-001", rec.ID)

	saved, err := q.SavedRecordings(ctx)
	require.NoError(t, err)
	require.Empty(t, saved)
	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRetrySavedFailureKeepsEntry(t *testing.T) {
	cs := newCompanionServer(t)
	cs.setFail(true)
	q, kv := newTestQueue(t, cs, netmon.Static{Connected: true})
	ctx := context.Background()

	path := writeMedia(t, "parked.webm", "x")
	require.NoError(t, saveRecordings(ctx, kv, []SavedRecording{{LocalPath: path, CaptureMode: ModeAV, Timestamp: time.Now()}}))

	_, err := q.RetrySaved(ctx, path, nil)
	require.Error(t, err)

	saved, err := q.SavedRecordings(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestDeleteSaved(t *testing.T) {
	cs := newCompanionServer(t)
	q, kv := newTestQueue(t, cs, netmon.Static{Connected: true})
	ctx := context.Background()

	keep := writeMedia(t, "keep.webm", "x")
	purge := writeMedia(t, "purge.webm", "x")
	require.NoError(t, saveRecordings(ctx, kv, []SavedRecording{
		{LocalPath: keep, CaptureMode: ModeAV, Timestamp: time.Now()},
		{LocalPath: purge, CaptureMode: ModeAV, Timestamp: time.Now()},
	}))

	require.NoError(t, q.DeleteSaved(ctx, keep, false))
	_, err := os.Stat(keep)
	require.NoError(t, err, "delete without purge keeps the file")

	require.NoError(t, q.DeleteSaved(ctx, purge, true))
	_, err = os.Stat(purge)
	require.ErrorIs(t, err, os.ErrNotExist)

	saved, err := q.SavedRecordings(ctx)
	require.NoError(t, err)
	require.Empty(t, saved)

	require.ErrorIs(t, q.DeleteSaved(ctx, "nope.webm", false), ErrNotQueued)
}
