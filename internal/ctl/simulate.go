package ctl

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greenroom/internal/companion"
	"greenroom/internal/config"
)

// SimulateOptions controls the simulated companion daemon.
type SimulateOptions struct {
	Bind            string
	UploadDir       string
	IntervalSeconds int
}

// Simulate runs the built-in companion daemon with the scripted production
// run, so every other command has something real to talk to. Blocks until
// interrupted.
func Simulate(cfg config.Config, opts SimulateOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)
	s := companion.NewServer(companion.Options{
		Logger:           logger,
		Bind:             opts.Bind,
		DeviceName:       cfg.Companion.DeviceName,
		UploadDir:        opts.UploadDir,
		Simulate:         true,
		SimulateInterval: time.Duration(opts.IntervalSeconds) * time.Second,
	})
	return s.Run(ctx)
}
