package ctl

import (
	"context"
	"fmt"

	"greenroom/internal/config"
	"greenroom/internal/uploads"
)

// UploadOptions controls the upload command behavior.
type UploadOptions struct {
	File    string
	Session string
	Mode    string // audio | video | av
	JSON    bool
}

// Upload submits a recording file: direct upload when the companion is
// reachable, durable queue otherwise. A queued outcome is success, not
// failure: the file will go up on the next drain.
func Upload(cfg config.Config, opts UploadOptions) error {
	ctx := context.Background()
	q, _, closer, err := openQueue(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	var progress uploads.ProgressFunc
	if !opts.JSON {
		progress = func(sent, total int64) {
			pct := 0
			if total > 0 {
				pct = int(sent * 100 / total)
			}
			fmt.Printf("\r  uploading [%s] %3d%%  %s", progressBar(pct, 20), pct, formatBytes(sent))
			if sent >= total {
				fmt.Println()
			}
		}
	}

	res, err := q.Submit(ctx, opts.File, opts.Session, uploads.CaptureMode(opts.Mode), progress)
	if err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(map[string]any{
			"queued":    res.Queued(),
			"recording": res.Recording,
			"item":      res.Item,
		})
	}

	if res.Queued() {
		fmt.Println()
		fmt.Printf("  %s %s\n", colorize(yellow, "queued"), opts.File)
		fmt.Printf("  %s\n", colorize(dim, "companion unreachable or upload failed; will retry when connectivity returns"))
		fmt.Println()
		return nil
	}

	fmt.Println()
	fmt.Printf("  %s %s\n", colorize(green, "uploaded"), res.Recording.Filename)
	fmt.Printf("  %-10s %s\n", colorize(dim, "id:"), res.Recording.ID)
	fmt.Printf("  %-10s %s\n", colorize(dim, "size:"), formatBytes(res.Recording.Size))
	fmt.Println()
	return nil
}
