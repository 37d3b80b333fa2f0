package uploads

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"greenroom/internal/netmon"
	"greenroom/internal/storage"
)

// ErrNotQueued is returned by saved-recording operations when no entry
// matches the given path.
var ErrNotQueued = errors.New("uploads: no entry for path")

// Options configures a Queue. KV, Uploader, and Observer are required.
type Options struct {
	KV       storage.KV
	Uploader *Uploader
	Observer netmon.Observer
	DeviceID string

	// RetryLimit is how many failed drain attempts an item survives before
	// it is parked in the saved-recordings index. Zero means the default 3.
	RetryLimit int

	Logger *log.Logger
}

// Result describes what happened to a Submit call. Exactly one of Recording
// and Item is set: Recording when the media went up directly, Item when it
// was parked in the retry queue.
type Result struct {
	Recording *Recording
	Item      *Item
}

// Queued reports whether the media ended up in the retry queue.
func (r Result) Queued() bool { return r.Item != nil }

// DrainStats summarizes one drain pass. Failed counts failed attempts in
// this pass, including items that hit the retry limit and were parked;
// Remaining counts items still queued for a future drain.
type DrainStats struct {
	Succeeded int
	Failed    int
	Remaining int
}

// Queue is the offline upload pipeline: direct upload when the companion is
// reachable, durable queue otherwise, drain on reconnect, saved-recordings
// index when the retry budget runs out.
//
// All mutations of the persisted queue are serialized by an internal mutex,
// so a Watch-triggered drain and a manual Submit never interleave their
// read-modify-write cycles.
type Queue struct {
	kv       storage.KV
	uploader *Uploader
	observer netmon.Observer
	deviceID string
	limit    int
	log      *log.Logger

	mu sync.Mutex

	now func() time.Time
}

func New(opts Options) *Queue {
	limit := opts.RetryLimit
	if limit <= 0 {
		limit = 3
	}
	return &Queue{
		kv:       opts.KV,
		uploader: opts.Uploader,
		observer: opts.Observer,
		deviceID: opts.DeviceID,
		limit:    limit,
		log:      opts.Logger,
		now:      time.Now,
	}
}

// Submit uploads the file at localPath for the given session, falling back
// to the durable queue when the companion is unreachable or the upload
// fails. The file is deleted on upload success. An error is returned only
// when neither path could be taken: bad input, or the queue itself could not
// be persisted.
func (q *Queue) Submit(ctx context.Context, localPath, sessionID string, mode CaptureMode, progress ProgressFunc) (Result, error) {
	if !mode.Valid() {
		return Result{}, fmt.Errorf("uploads: unknown capture mode %q", mode)
	}
	if _, err := os.Stat(localPath); err != nil {
		return Result{}, fmt.Errorf("uploads: media file: %w", err)
	}

	item := Item{
		ID:          newItemID(q.now()),
		LocalPath:   localPath,
		SessionID:   sessionID,
		DeviceID:    q.deviceID,
		CaptureMode: mode,
		EnqueuedAt:  q.now(),
	}

	if q.observer.IsConnected(ctx) {
		rec, err := q.uploader.Upload(ctx, item, progress)
		if err == nil {
			q.removeFile(localPath)
			return Result{Recording: rec}, nil
		}
		q.logf("upload of %s failed, queueing: %v", localPath, err)
	} else {
		q.logf("companion unreachable, queueing %s", localPath)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	items, err := loadQueue(ctx, q.kv)
	if err != nil {
		return Result{}, err
	}
	items = append(items, item)
	if err := saveQueue(ctx, q.kv, items); err != nil {
		return Result{}, err
	}
	return Result{Item: &item}, nil
}

// Drain attempts every queued item once, in enqueue order. Successes are
// removed and their files deleted; failures get their retry count bumped and
// stay queued, except items at the retry limit, which move to the
// saved-recordings index with uploaded=false. Cancelling ctx stops the pass
// early; untried items simply stay queued.
func (q *Queue) Drain(ctx context.Context) (DrainStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := loadQueue(ctx, q.kv)
	if err != nil {
		return DrainStats{}, err
	}
	if len(items) == 0 {
		return DrainStats{}, nil
	}
	q.logf("draining %d queued upload(s)", len(items))

	var (
		stats  DrainStats
		keep   []Item
		parked []SavedRecording
	)
	for i, item := range items {
		if ctx.Err() != nil {
			keep = append(keep, items[i:]...)
			stats.Remaining += len(items) - i
			break
		}

		_, err := q.uploader.Upload(ctx, item, nil)
		if err == nil {
			stats.Succeeded++
			q.removeFile(item.LocalPath)
			continue
		}

		stats.Failed++
		item.RetryCount++
		if item.RetryCount >= q.limit {
			q.logf("giving up on %s after %d attempts", item.LocalPath, item.RetryCount)
			parked = append(parked, SavedRecording{
				LocalPath:   item.LocalPath,
				SessionID:   item.SessionID,
				CaptureMode: item.CaptureMode,
				Timestamp:   item.EnqueuedAt,
				Uploaded:    false,
			})
			continue
		}
		q.logf("upload of %s failed (attempt %d/%d): %v", item.LocalPath, item.RetryCount, q.limit, err)
		keep = append(keep, item)
		stats.Remaining++
	}

	if err := saveQueue(ctx, q.kv, keep); err != nil {
		return stats, err
	}
	if len(parked) > 0 {
		recs, err := loadRecordings(ctx, q.kv)
		if err != nil {
			return stats, err
		}
		if err := saveRecordings(ctx, q.kv, append(recs, parked...)); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// Watch drains whenever connectivity comes back, until ctx is cancelled.
func (q *Queue) Watch(ctx context.Context) {
	cancel := q.observer.OnChange(func(connected bool) {
		if !connected || ctx.Err() != nil {
			return
		}
		stats, err := q.Drain(ctx)
		if err != nil {
			q.logf("drain on reconnect failed: %v", err)
			return
		}
		if stats.Succeeded+stats.Failed > 0 {
			q.logf("drain: %d uploaded, %d failed, %d remaining", stats.Succeeded, stats.Failed, stats.Remaining)
		}
	})
	defer cancel()
	<-ctx.Done()
}

// Pending returns the queued items in enqueue order.
func (q *Queue) Pending(ctx context.Context) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return loadQueue(ctx, q.kv)
}

// SavedRecordings returns the index of media the retry path gave up on.
func (q *Queue) SavedRecordings(ctx context.Context) ([]SavedRecording, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return loadRecordings(ctx, q.kv)
}

// RetrySaved re-attempts the upload of a parked recording identified by its
// local path. On success the entry leaves the index and the file is deleted;
// on failure the entry stays put and the error is returned. Manual retries
// never touch the automatic retry queue.
func (q *Queue) RetrySaved(ctx context.Context, localPath string, progress ProgressFunc) (*Recording, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	recs, err := loadRecordings(ctx, q.kv)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, r := range recs {
		if r.LocalPath == localPath {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotQueued, localPath)
	}
	saved := recs[idx]

	item := Item{
		ID:          newItemID(q.now()),
		LocalPath:   saved.LocalPath,
		SessionID:   saved.SessionID,
		DeviceID:    q.deviceID,
		CaptureMode: saved.CaptureMode,
		EnqueuedAt:  saved.Timestamp,
	}
	rec, err := q.uploader.Upload(ctx, item, progress)
	if err != nil {
		return nil, err
	}

	q.removeFile(localPath)
	recs = append(recs[:idx], recs[idx+1:]...)
	if err := saveRecordings(ctx, q.kv, recs); err != nil {
		return rec, err
	}
	return rec, nil
}

// DeleteSaved removes a parked recording from the index. With purge set the
// local media file is deleted too.
func (q *Queue) DeleteSaved(ctx context.Context, localPath string, purge bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	recs, err := loadRecordings(ctx, q.kv)
	if err != nil {
		return err
	}
	idx := -1
	for i, r := range recs {
		if r.LocalPath == localPath {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotQueued, localPath)
	}

	recs = append(recs[:idx], recs[idx+1:]...)
	if err := saveRecordings(ctx, q.kv, recs); err != nil {
		return err
	}
	if purge {
		q.removeFile(localPath)
	}
	return nil
}

func (q *Queue) removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		q.logf("could not delete %s: %v", path, err)
	}
}

func (q *Queue) logf(format string, args ...any) {
	if q.log != nil {
		q.log.Printf("uploads: "+format, args...)
	}
}
