package ctl

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"greenroom/internal/config"
)

// Sync runs the background drain loop: the connectivity probe polls the
// companion, and every offline-to-online transition drains the upload retry
// queue. Blocks until interrupted. This is the long-running counterpart of
// `queue drain`.
func Sync(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	q, probe, closer, err := openQueue(ctx, cfg, log.New(os.Stdout, "", log.LstdFlags))
	if err != nil {
		return err
	}
	defer closer.Close()

	pending, err := q.Pending(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("  %s %s\n", colorize(green, "syncing"), colorize(dim, cfg.Companion.URL))
	fmt.Printf("  %s\n", colorize(dim, fmt.Sprintf("%d item(s) queued; draining on connectivity (Ctrl-C to stop)", len(pending))))
	fmt.Println()

	go probe.Run(ctx)
	q.Watch(ctx)

	fmt.Println(colorize(dim, "  stopped"))
	return nil
}
