// Package storage provides the durable key-value store behind the upload
// retry queue and the saved-recordings index. Values are whole JSON
// documents: every mutation reads the full document and rewrites it in full,
// so callers get a simple port they can fake in memory for tests.
package storage

import (
	"context"
	"errors"
)

// Well-known keys. Each holds a JSON array (or a bare string for the device
// identity) that is read and rewritten in full.
const (
	KeyUploadQueue     = "upload_queue"
	KeySavedRecordings = "saved_recordings"
	KeyDeviceID        = "device_id"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// KV is the pluggable persistence port. The production implementation is
// SQLite-backed; tests use the in-memory one. There is no optimistic locking:
// concurrent read-modify-write cycles against the same key can race.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
