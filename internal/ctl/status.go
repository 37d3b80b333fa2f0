package ctl

import (
	"context"
	"fmt"
	"time"

	"greenroom/internal/api"
	"greenroom/internal/config"
)

// Status fetches the companion's status and prints a formatted summary.
func Status(cfg config.Config, jsonOut bool) error {
	client := api.New(cfg.Companion.URL, nil)
	s, err := client.Status(context.Background())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(s)
	}

	uptime := formatDuration(time.Duration(s.UptimeSeconds) * time.Second)
	active := colorize(dim, "none")
	if s.ActiveSession != "" {
		active = colorize(green, s.ActiveSession)
	}

	fmt.Println()
	fmt.Println(header("  COMPANION STATUS"))
	fmt.Println(rule(38))
	fmt.Printf("  %-12s %s\n", colorize(dim, "Daemon:"), s.Name)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Version:"), s.Version)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Device:"), s.DeviceName)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Uptime:"), uptime)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Session:"), active)
	fmt.Printf("  %-12s %d\n", colorize(dim, "Clients:"), s.Clients)
	fmt.Printf("  %-12s %s\n", colorize(dim, "Host:"), cfg.Companion.URL)
	fmt.Println()
	return nil
}

// Health checks the companion's health endpoint and prints the result.
func Health(cfg config.Config, jsonOut bool) error {
	client := api.New(cfg.Companion.URL, nil)
	h, err := client.Health(context.Background())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(h)
	}

	statusStr := colorize(red, h.Status)
	if h.Status == "ok" {
		statusStr = colorize(green, h.Status)
	}

	fmt.Println()
	fmt.Printf("  %s %s\n", header("HEALTH"), statusStr)
	for name, state := range h.Components {
		mark := colorize(green, "ok")
		if state != "ok" {
			mark = colorize(red, state)
		}
		fmt.Printf("    %-12s %s\n", colorize(dim, name+":"), mark)
	}
	fmt.Println()
	return nil
}

// Sessions lists the companion's production sessions.
func Sessions(cfg config.Config, jsonOut bool) error {
	client := api.New(cfg.Companion.URL, nil)
	sessions, err := client.Sessions(context.Background())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println()
		fmt.Println(colorize(dim, "  no sessions recorded"))
		fmt.Println()
		return nil
	}

	fmt.Println()
	fmt.Println(header("  SESSIONS"))
	fmt.Println(rule(60))
	for _, s := range sessions {
		state := colorize(green, "live")
		if s.EndedAt != "" {
			state = colorize(dim, "ended")
		}
		fmt.Printf("  %s  %s  %s  %s\n",
			colorize(cyan, padRight(s.ID, 14)),
			padRight(s.Title, 28),
			state,
			colorize(dim, fmt.Sprintf("%d recording(s)", s.Recordings)),
		)
	}
	fmt.Println()
	return nil
}
