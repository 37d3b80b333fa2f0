// Greenroom is the terminal companion client for the greenroom desktop
// daemon. It streams live production events over WebSocket, uploads locally
// recorded media with durable offline retry, and queries the daemon's HTTP
// API.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"greenroom/internal/config"
	"greenroom/internal/ctl"
)

func main() {
	var (
		host       = pflag.StringP("host", "H", "", "Companion daemon URL (overrides the config file)")
		configPath = pflag.StringP("config", "c", defaultConfigPath(), "Path to the TOML config file")
		jsonOut    = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter     = pflag.StringSlice("filter", nil, "Event categories to show in watch (e.g. --filter clips,moments)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --session are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Companion.URL = *host
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(cfg, *jsonOut)

	case "health":
		err = ctl.Health(cfg, *jsonOut)

	case "sessions":
		err = ctl.Sessions(cfg, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		err = ctl.Watch(cfg, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
		})

	// ── Recording commands ────────────────────────────────────────
	case "upload":
		opts := ctl.UploadOptions{JSON: *jsonOut, Mode: "av"}
		upFlags := pflag.NewFlagSet("upload", pflag.ContinueOnError)
		upFlags.StringVar(&opts.Session, "session", "", "Session ID the recording belongs to")
		upFlags.StringVar(&opts.Mode, "mode", "av", "Capture mode: audio, video, or av")
		_ = upFlags.Parse(subArgs)
		if upFlags.NArg() < 1 {
			err = fmt.Errorf("upload needs a file argument")
			break
		}
		opts.File = upFlags.Arg(0)
		err = ctl.Upload(cfg, opts)

	case "mark":
		markFlags := pflag.NewFlagSet("mark", pflag.ContinueOnError)
		session := markFlags.String("session", "", "Session ID (default: the active session)")
		_ = markFlags.Parse(subArgs)
		label := "marked moment"
		if markFlags.NArg() > 0 {
			label = markFlags.Arg(0)
		}
		err = ctl.Mark(cfg, *session, label, *jsonOut)

	case "queue":
		if len(subArgs) > 0 && subArgs[0] == "drain" {
			err = ctl.QueueDrain(cfg, *jsonOut)
		} else {
			err = ctl.QueueList(cfg, *jsonOut)
		}

	case "sync":
		err = ctl.Sync(cfg)

	case "recordings":
		switch {
		case len(subArgs) > 0 && subArgs[0] == "retry":
			if len(subArgs) < 2 {
				err = fmt.Errorf("recordings retry needs a path argument")
				break
			}
			err = ctl.RecordingsRetry(cfg, subArgs[1], *jsonOut)
		case len(subArgs) > 0 && subArgs[0] == "rm":
			rmFlags := pflag.NewFlagSet("recordings rm", pflag.ContinueOnError)
			purge := rmFlags.Bool("purge", false, "Also delete the media file from disk")
			_ = rmFlags.Parse(subArgs[1:])
			if rmFlags.NArg() < 1 {
				err = fmt.Errorf("recordings rm needs a path argument")
				break
			}
			err = ctl.RecordingsRemove(cfg, rmFlags.Arg(0), *purge)
		default:
			err = ctl.Recordings(cfg, *jsonOut)
		}

	// ── Local daemon ──────────────────────────────────────────────
	case "simulate":
		opts := ctl.SimulateOptions{}
		simFlags := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
		simFlags.StringVar(&opts.Bind, "bind", "127.0.0.1:8787", "Listen address for the simulated daemon")
		simFlags.StringVar(&opts.UploadDir, "upload-dir", "", "Directory for received recordings (default: discard)")
		simFlags.IntVar(&opts.IntervalSeconds, "interval", 20, "Seconds between simulated sessions")
		_ = simFlags.Parse(subArgs)
		err = ctl.Simulate(cfg, opts)

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "greenroom", "config.toml")
	}
	return "greenroom.toml"
}

func usage() {
	fmt.Print(`
  greenroom — companion client for the greenroom production daemon

  USAGE
    greenroom [flags] <command> [command-flags]

  COMMANDS (query)
    status          Show daemon state, uptime, and the active session
    health          Check daemon and component health
    sessions        List production sessions

  COMMANDS (live)
    watch           Stream live production events (Ctrl-C to stop)
    mark            Place a manual moment marker on a session

  COMMANDS (recordings)
    upload FILE     Upload a recording, queueing it when offline
    queue           List the pending upload retry queue
    queue drain     Retry every queued upload once
    sync            Keep draining the queue as connectivity returns
    recordings      List recordings the automatic retry gave up on
    recordings retry PATH    Re-attempt one saved recording
    recordings rm PATH       Drop a saved recording from the index

  COMMANDS (local)
    simulate        Run the built-in simulated companion daemon

  GLOBAL FLAGS
    -H, --host URL      Companion base URL (overrides the config file)
    -c, --config PATH   Config file (default: ~/.config/greenroom/config.toml)
        --json          Output raw JSON instead of formatted text
        --filter CAT    Event categories to show in watch (comma-separated)

  COMMAND FLAGS
    upload:
        --session ID    Session the recording belongs to
        --mode MODE     Capture mode: audio, video, or av (default: av)

    mark:
        --session ID    Session to mark (default: the active session)

    recordings rm:
        --purge         Also delete the media file from disk

    simulate:
        --bind ADDR         Listen address (default: 127.0.0.1:8787)
        --upload-dir DIR    Directory for received recordings
        --interval SECS     Seconds between simulated sessions (default: 20)

  EXAMPLES
    greenroom simulate
    greenroom status
    greenroom --json status
    greenroom watch
    greenroom watch --filter clips,moments
    greenroom mark "that was great" --session sess_ab12cd34
    greenroom upload take1.webm --session sess_ab12cd34 --mode av
    greenroom queue
    greenroom queue drain
    greenroom sync
    greenroom recordings
    greenroom recordings retry /tmp/take1.webm
    greenroom recordings rm /tmp/take1.webm --purge

`)
}
