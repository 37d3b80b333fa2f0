package ctl

import (
	"context"
	"fmt"
	"time"

	"greenroom/internal/config"
)

// QueueList prints the pending upload retry queue.
func QueueList(cfg config.Config, jsonOut bool) error {
	ctx := context.Background()
	q, _, closer, err := openQueue(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	items, err := q.Pending(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(items)
	}

	if len(items) == 0 {
		fmt.Println()
		fmt.Println(colorize(dim, "  upload queue is empty"))
		fmt.Println()
		return nil
	}

	fmt.Println()
	fmt.Println(header("  UPLOAD QUEUE"))
	fmt.Println(rule(64))
	for _, item := range items {
		age := formatDuration(time.Since(item.EnqueuedAt))
		fmt.Printf("  %s  %s  %s  %s\n",
			colorize(cyan, padRight(item.ID, 26)),
			padRight(item.LocalPath, 32),
			colorize(dim, fmt.Sprintf("retries %d/%d", item.RetryCount, cfg.Uploads.RetryLimit)),
			colorize(dim, age+" old"),
		)
	}
	fmt.Println()
	return nil
}

// QueueDrain runs one manual drain pass and reports the outcome.
func QueueDrain(cfg config.Config, jsonOut bool) error {
	ctx := context.Background()
	q, _, closer, err := openQueue(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	stats, err := q.Drain(ctx)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(stats)
	}

	fmt.Println()
	fmt.Printf("  %s %s  %s  %s\n",
		header("DRAIN"),
		colorize(green, fmt.Sprintf("%d uploaded", stats.Succeeded)),
		colorize(yellow, fmt.Sprintf("%d failed", stats.Failed)),
		colorize(dim, fmt.Sprintf("%d remaining", stats.Remaining)),
	)
	fmt.Println()
	return nil
}
