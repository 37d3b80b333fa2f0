package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"greenroom/internal/config"
	"greenroom/internal/events"
	"greenroom/internal/ws"
)

// WatchOptions controls the watch command behavior.
type WatchOptions struct {
	Filter []string // category names to show (empty = all)
	JSON   bool     // output one raw JSON envelope per line
}

// Watch connects to the companion's event socket and streams production
// events to the terminal until interrupted. Reconnection is handled by the
// connection state machine; transitions show up as dim status lines.
func Watch(cfg config.Config, opts WatchOptions) error {
	filter, err := parseFilter(opts.Filter)
	if err != nil {
		return err
	}

	disp := events.NewDispatcher(cfg.Events.HistoryCap, nil)
	render := func(env events.Envelope) {
		if opts.JSON {
			b, err := json.Marshal(env)
			if err == nil {
				fmt.Println(string(b))
			}
			return
		}
		renderEnvelope(env)
	}
	if len(filter) == 0 {
		disp.SubscribeAll(render)
	} else {
		for _, c := range filter {
			disp.Subscribe(c, render)
		}
	}

	exhausted := make(chan struct{})
	var exhaustOnce sync.Once

	conn, err := ws.New(ws.Options{
		URL: cfg.Companion.URL,
		Policy: ws.BackoffPolicy{
			Base:        cfg.Socket.BackoffBase(),
			Multiplier:  cfg.Socket.BackoffMultiplier,
			Cap:         cfg.Socket.BackoffCap(),
			MaxAttempts: cfg.Socket.MaxReconnects,
		},
		AutoReconnect:     cfg.Socket.AutoReconnect,
		HeartbeatInterval: cfg.Socket.HeartbeatInterval(),
		OnMessage:         disp.Dispatch,
		OnState: func(old, next ws.State) {
			if !opts.JSON {
				fmt.Printf("  %s %s %s %s\n",
					colorize(dim, "--"),
					colorize(stateColor(old), string(old)),
					colorize(dim, "->"),
					colorize(stateColor(next), string(next)),
				)
			}
			if next == ws.StateExhausted {
				exhaustOnce.Do(func() { close(exhausted) })
			}
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	if !opts.JSON {
		fmt.Println()
		fmt.Printf("  %s %s\n", colorize(green, "watching"), colorize(dim, cfg.Companion.URL))
		if len(filter) > 0 {
			fmt.Printf("  %s %s\n", colorize(dim, "filter:"), colorize(dim, strings.Join(opts.Filter, ", ")))
		}
		fmt.Println(rule(50))
		fmt.Println()
	}

	if err := conn.Connect(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		if !opts.JSON {
			fmt.Println()
			fmt.Println(colorize(dim, "  disconnecting..."))
		}
		_ = conn.Disconnect()
		return nil
	case <-exhausted:
		stats := conn.Stats()
		return fmt.Errorf("gave up after %d reconnect attempts; check the companion at %s", stats.Attempts, cfg.Companion.URL)
	}
}

func parseFilter(names []string) ([]events.Category, error) {
	known := map[string]events.Category{}
	for _, c := range events.Categories {
		known[string(c)] = c
	}
	var out []events.Category
	for _, name := range names {
		c, ok := known[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown category %q (want one of outputs, clips, moments, transcripts)", name)
		}
		out = append(out, c)
	}
	return out, nil
}

// renderEnvelope prints one event in a human-friendly format. Unknown payload
// shapes fall back to the envelope's type and timestamp only.
func renderEnvelope(env events.Envelope) {
	ts := colorize(dim, formatClock(env.TS))
	payload, err := env.DecodePayload()
	if err != nil {
		fmt.Printf("  %s %s\n", ts, string(env.Type))
		return
	}

	switch p := payload.(type) {
	case *events.SessionPayload:
		fmt.Println()
		if env.Type == events.TypeSessionStarted {
			fmt.Printf("  %s %s %s %s\n", ts, header("SESSION"), colorize(green, "started"), colorize(bold, p.Title))
		} else {
			fmt.Printf("  %s %s %s %s\n", ts, header("SESSION"), colorize(dim, "ended"), p.Title)
		}
		fmt.Println()

	case *events.TranscriptPayload:
		tag := colorize(categoryColor(events.CategoryTranscripts), padRight("transcript", 11))
		speaker := p.Speaker
		if speaker == "" {
			speaker = "?"
		}
		line := fmt.Sprintf("%s: %s", speaker, p.Text)
		if !p.Final {
			line = colorize(dim, line+" …")
		}
		fmt.Printf("  %s %s %s\n", ts, tag, line)

	case *events.MomentPayload:
		tag := colorize(categoryColor(events.CategoryMoments), padRight("moment", 11))
		fmt.Printf("  %s %s %s %s\n", ts, tag, colorize(bold, p.Label),
			colorize(dim, fmt.Sprintf("(score %.2f @ %s)", p.Score, formatDuration(msDuration(p.AtMs)))))

	case *events.ClipPayload:
		tag := colorize(categoryColor(events.CategoryClips), padRight("clip", 11))
		span := colorize(dim, fmt.Sprintf("[%s – %s]",
			formatDuration(msDuration(p.StartMs)), formatDuration(msDuration(p.EndMs))))
		switch env.Type {
		case events.TypeClipReady:
			fmt.Printf("  %s %s %s %s %s\n", ts, tag, colorize(green, "ready"), p.Title, colorize(dim, p.MediaURL))
		default:
			fmt.Printf("  %s %s %s %s %s\n", ts, tag, colorize(dim, "cutting"), p.Title, span)
		}

	case *events.OutputPayload:
		tag := colorize(categoryColor(events.CategoryOutputs), padRight("output", 11))
		switch env.Type {
		case events.TypeOutputValidated:
			fmt.Printf("  %s %s %s %s\n", ts, tag, padRight(p.Platform, 8), colorize(green, "validated"))
		case events.TypeOutputFailed:
			fmt.Printf("  %s %s %s %s %s\n", ts, tag, padRight(p.Platform, 8), colorize(red, "failed"), colorize(dim, p.Reason))
		default:
			fmt.Printf("  %s %s %s %s\n", ts, tag, padRight(p.Platform, 8), colorize(dim, p.Status))
		}

	default:
		fmt.Printf("  %s %s\n", ts, string(env.Type))
	}
}
