// Package uploads guarantees that locally recorded media reaches the
// companion daemon even when the network disappears mid-session: direct
// upload when connectivity is present, a durable retry queue when it is not,
// and a saved-recordings index as the terminal fallback once the retry
// budget is spent.
package uploads

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// CaptureMode identifies what the recording contains.
type CaptureMode string

const (
	ModeAudio CaptureMode = "audio"
	ModeVideo CaptureMode = "video"
	ModeAV    CaptureMode = "av"
)

// Valid reports whether m is one of the known capture modes.
func (m CaptureMode) Valid() bool {
	switch m {
	case ModeAudio, ModeVideo, ModeAV:
		return true
	}
	return false
}

// Item is one pending retry in the durable upload queue. Created on the
// first upload failure; retryCount grows by one per failed drain attempt;
// the item is destroyed on success or converted to a SavedRecording at the
// retry limit.
type Item struct {
	ID          string      `json:"id"` // ULID, sortable by enqueue time
	LocalPath   string      `json:"localPath"`
	SessionID   string      `json:"sessionId"`
	DeviceID    string      `json:"deviceId"`
	CaptureMode CaptureMode `json:"captureMode"`
	EnqueuedAt  time.Time   `json:"enqueuedAt"`
	RetryCount  int         `json:"retryCount"`
}

// SavedRecording is the terminal record for media the automatic retry path
// gave up on. The file stays on disk until the user retries or deletes it.
type SavedRecording struct {
	LocalPath   string      `json:"localPath"`
	SessionID   string      `json:"sessionId,omitempty"`
	CaptureMode CaptureMode `json:"captureMode"`
	Timestamp   time.Time   `json:"timestamp"`
	Uploaded    bool        `json:"uploaded"`
}

// Recording is the server-assigned metadata returned on a successful upload.
type Recording struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

func newItemID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
