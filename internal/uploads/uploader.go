package uploads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// ProgressFunc receives byte counts while a file streams to the server.
// total is the file size; sent grows monotonically up to total.
type ProgressFunc func(sent, total int64)

// Uploader pushes recording files to the companion's multipart endpoint.
type Uploader struct {
	baseURL string
	client  *http.Client
}

// NewUploader returns an Uploader for the companion at baseURL. A nil client
// gets a default with a 5 minute timeout; recordings can be large.
func NewUploader(baseURL string, client *http.Client) *Uploader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Uploader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type uploadResponse struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Recording Recording `json:"recording"`
}

// Upload streams the item's file to POST /api/sessions/{id}/recordings/upload
// as multipart form data. The file part is named "video" regardless of
// capture mode; deviceId, timestamp, and captureMode ride along as fields.
func (u *Uploader) Upload(ctx context.Context, item Item, progress ProgressFunc) (*Recording, error) {
	f, err := os.Open(item.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat recording: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeForm(mw, item, f, info.Size(), progress)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	endpoint := fmt.Sprintf("%s/api/sessions/%s/recordings/upload", u.baseURL, item.SessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filepath.Base(item.LocalPath), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload %s: server returned %s", filepath.Base(item.LocalPath), resp.Status)
	}

	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if !out.Success {
		if out.Error != "" {
			return nil, fmt.Errorf("upload rejected: %s", out.Error)
		}
		return nil, fmt.Errorf("upload rejected")
	}
	return &out.Recording, nil
}

func writeForm(mw *multipart.Writer, item Item, f io.Reader, size int64, progress ProgressFunc) error {
	if err := mw.WriteField("deviceId", item.DeviceID); err != nil {
		return err
	}
	if err := mw.WriteField("timestamp", item.EnqueuedAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := mw.WriteField("captureMode", string(item.CaptureMode)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("video", filepath.Base(item.LocalPath))
	if err != nil {
		return err
	}
	src := f
	if progress != nil {
		src = &progressReader{r: f, total: size, report: progress}
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("stream recording: %w", err)
	}
	return nil
}

type progressReader struct {
	r      io.Reader
	total  int64
	sent   atomic.Int64
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.report(p.sent.Add(int64(n)), p.total)
	}
	return n, err
}
