package ctl

import (
	"context"
	"fmt"

	"greenroom/internal/config"
)

// Recordings lists the saved recordings the automatic retry path gave up on.
func Recordings(cfg config.Config, jsonOut bool) error {
	ctx := context.Background()
	q, _, closer, err := openQueue(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	recs, err := q.SavedRecordings(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(recs)
	}

	if len(recs) == 0 {
		fmt.Println()
		fmt.Println(colorize(dim, "  no saved recordings"))
		fmt.Println()
		return nil
	}

	fmt.Println()
	fmt.Println(header("  SAVED RECORDINGS"))
	fmt.Println(rule(64))
	for _, r := range recs {
		status := colorize(yellow, "not uploaded")
		if r.Uploaded {
			status = colorize(green, "uploaded")
		}
		session := r.SessionID
		if session == "" {
			session = "-"
		}
		fmt.Printf("  %s  %s  %s  %s\n",
			padRight(r.LocalPath, 36),
			colorize(cyan, padRight(session, 14)),
			status,
			colorize(dim, r.Timestamp.Local().Format("2006-01-02 15:04")),
		)
	}
	fmt.Println()
	fmt.Println(colorize(dim, "  retry with: greenroom recordings retry <path>"))
	fmt.Println()
	return nil
}

// RecordingsRetry re-attempts the upload of one saved recording.
func RecordingsRetry(cfg config.Config, path string, jsonOut bool) error {
	ctx := context.Background()
	q, _, closer, err := openQueue(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	rec, err := q.RetrySaved(ctx, path, nil)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(rec)
	}

	fmt.Println()
	fmt.Printf("  %s %s\n", colorize(green, "uploaded"), rec.Filename)
	fmt.Printf("  %-10s %s\n", colorize(dim, "id:"), rec.ID)
	fmt.Printf("  %-10s %s\n", colorize(dim, "size:"), formatBytes(rec.Size))
	fmt.Println()
	return nil
}

// RecordingsRemove drops a saved recording from the index, optionally
// deleting the media file too.
func RecordingsRemove(cfg config.Config, path string, purge bool) error {
	ctx := context.Background()
	q, _, closer, err := openQueue(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := q.DeleteSaved(ctx, path, purge); err != nil {
		return err
	}
	if purge {
		fmt.Printf("  removed %s (file deleted)\n", path)
	} else {
		fmt.Printf("  removed %s (file kept)\n", path)
	}
	return nil
}
