package ctl

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"greenroom/internal/config"
	"greenroom/internal/netmon"
	"greenroom/internal/storage"
	"greenroom/internal/uploads"
)

// openQueue wires the upload queue against the local state store and the
// configured companion. The returned probe is the queue's connectivity
// observer; long-running commands start its Run loop, one-shot commands rely
// on the synchronous first probe. The closer releases the state-directory
// lock; every upload-related command must defer it.
func openQueue(ctx context.Context, cfg config.Config, logger *log.Logger) (*uploads.Queue, *netmon.Probe, io.Closer, error) {
	kv, err := storage.Open(cfg.Storage.Root)
	if err != nil {
		return nil, nil, nil, err
	}

	deviceID, err := storage.DeviceID(ctx, kv)
	if err != nil {
		_ = kv.Close()
		return nil, nil, nil, err
	}

	probe := newProbe(cfg, logger)
	q := uploads.New(uploads.Options{
		KV: kv,
		Uploader: uploads.NewUploader(cfg.Companion.URL, &http.Client{
			Timeout: time.Duration(cfg.Uploads.TimeoutSeconds) * time.Second,
		}),
		Observer:   probe,
		DeviceID:   deviceID,
		RetryLimit: cfg.Uploads.RetryLimit,
		Logger:     logger,
	})
	return q, probe, kv, nil
}

// newProbe builds the connectivity observer for one-shot commands. Nothing
// runs in the background; IsConnected probes synchronously on first use.
func newProbe(cfg config.Config, logger *log.Logger) *netmon.Probe {
	return netmon.NewProbe(
		cfg.Companion.URL,
		time.Duration(cfg.Network.ProbeIntervalSeconds)*time.Second,
		time.Duration(cfg.Network.ProbeTimeoutSeconds)*time.Second,
		logger,
	)
}
