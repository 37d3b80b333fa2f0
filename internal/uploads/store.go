package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"greenroom/internal/storage"
)

// The queue and the saved-recordings index are each stored as a single JSON
// array under one key: read in full, rewritten in full. Volumes are tiny
// (tens of entries at worst) so the simplicity wins over per-item rows.

func loadQueue(ctx context.Context, kv storage.KV) ([]Item, error) {
	raw, err := kv.Get(ctx, storage.KeyUploadQueue)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load upload queue: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode upload queue: %w", err)
	}
	return items, nil
}

func saveQueue(ctx context.Context, kv storage.KV, items []Item) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode upload queue: %w", err)
	}
	if err := kv.Put(ctx, storage.KeyUploadQueue, raw); err != nil {
		return fmt.Errorf("save upload queue: %w", err)
	}
	return nil
}

func loadRecordings(ctx context.Context, kv storage.KV) ([]SavedRecording, error) {
	raw, err := kv.Get(ctx, storage.KeySavedRecordings)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load saved recordings: %w", err)
	}
	var recs []SavedRecording
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("decode saved recordings: %w", err)
	}
	return recs, nil
}

func saveRecordings(ctx context.Context, kv storage.KV, recs []SavedRecording) error {
	raw, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode saved recordings: %w", err)
	}
	if err := kv.Put(ctx, storage.KeySavedRecordings, raw); err != nil {
		return fmt.Errorf("save saved recordings: %w", err)
	}
	return nil
}
