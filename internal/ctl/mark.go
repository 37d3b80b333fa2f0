package ctl

import (
	"context"
	"fmt"

	"greenroom/internal/api"
	"greenroom/internal/config"
)

// Mark places a manual moment marker on a session, the "mark that" button
// in CLI form. With an empty session ID the companion's active session is
// resolved first.
func Mark(cfg config.Config, sessionID, label string, jsonOut bool) error {
	ctx := context.Background()
	client := api.New(cfg.Companion.URL, nil)

	if sessionID == "" {
		status, err := client.Status(ctx)
		if err != nil {
			return err
		}
		if status.ActiveSession == "" {
			return fmt.Errorf("no active session; pass --session explicitly")
		}
		sessionID = status.ActiveSession
	}

	m, err := client.Mark(ctx, sessionID, label)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(m)
	}

	fmt.Println()
	fmt.Printf("  %s %s %s\n", colorize(green, "marked"), colorize(bold, m.Label),
		colorize(dim, fmt.Sprintf("(%s @ %s)", m.ID, formatClock(m.TS))))
	fmt.Println()
	return nil
}
