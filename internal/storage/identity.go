package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DeviceID returns the stable identity for this install, generating and
// persisting a fresh UUID on first use. The companion daemon keys recordings
// by this value.
func DeviceID(ctx context.Context, kv KV) (string, error) {
	b, err := kv.Get(ctx, KeyDeviceID)
	if err == nil && len(b) > 0 {
		return string(b), nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	id := uuid.NewString()
	if err := kv.Put(ctx, KeyDeviceID, []byte(id)); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}
