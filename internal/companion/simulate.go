package companion

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"greenroom/internal/events"
)

// runner drives a scripted production session through the server so clients
// see the full event protocol without the real desktop application: session
// start, live transcript lines, detected moments, clip cuts, platform
// outputs, session end.
type runner struct {
	server   *Server
	interval time.Duration // pause between simulated sessions

	episode int // cycles through the episode titles
}

func newRunner(s *Server) *runner {
	return &runner{server: s, interval: s.opts.SimulateInterval}
}

var episodeTitles = []string{
	"Morning Standup Live",
	"Ship It Friday",
	"Postmortem Theater",
	"Office Hours",
}

// Scripted dialogue, cycled line by line. Speakers alternate.
var scriptLines = []string{
	"okay we are live, welcome back everyone",
	"today we're digging into the reconnect bug from last week",
	"so the backoff was doubling but never capping, classic",
	"wait, can you scroll up to the stack trace again",
	"oh that's the good part, the timer fired after teardown",
	"we should clip that explanation for the highlights",
	"alright, let's wrap up, thanks for hanging out",
}

var platforms = []string{"youtube", "twitch", "tiktok"}

// Run loops scripted sessions until ctx is cancelled. The first session
// starts after a short grace period so early clients catch it from the top.
func (r *runner) Run(ctx context.Context) {
	r.server.log.Printf("companion: simulator active")

	if !sleepOrCancel(ctx, 2*time.Second) {
		return
	}
	for {
		r.runSession(ctx)
		if !sleepOrCancel(ctx, r.interval) {
			return
		}
	}
}

// runSession plays one episode: transcripts stream continuously while
// moments, clips, and outputs fire at scripted points.
func (r *runner) runSession(ctx context.Context) {
	title := fmt.Sprintf("%s #%d", episodeTitles[r.episode%len(episodeTitles)], r.episode+1)
	r.episode++

	sess := r.server.startSession(title)
	start := time.Now()
	defer r.server.endSession()

	for i, line := range scriptLines {
		atMs := time.Since(start).Milliseconds()
		speaker := "host"
		if i%2 == 1 {
			speaker = "guest"
		}

		// A partial first, then the final line, like a live captioner.
		r.server.emit(events.TypeTranscriptPartial, sess.ID, events.TranscriptPayload{
			Text:    line[:len(line)/2],
			Speaker: speaker,
			StartMs: atMs,
		})
		if !sleepOrCancel(ctx, 400*time.Millisecond) {
			return
		}
		r.server.emit(events.TypeTranscriptFinal, sess.ID, events.TranscriptPayload{
			Text:    line,
			Speaker: speaker,
			Final:   true,
			StartMs: atMs,
			EndMs:   time.Since(start).Milliseconds(),
		})

		switch i {
		case 2:
			r.detectMoment(sess, "backoff bug explained", time.Since(start))
		case 4:
			r.detectMoment(sess, "timer fired after teardown", time.Since(start))
		case 5:
			r.cutClip(ctx, sess, "the good part", time.Since(start))
		}

		if !sleepOrCancel(ctx, 600*time.Millisecond) {
			return
		}
	}

	r.publishOutputs(ctx, sess)
}

func (r *runner) detectMoment(sess *session, label string, at time.Duration) {
	r.server.emit(events.TypeMomentDetected, sess.ID, events.MomentPayload{
		MomentID: "mom_" + uuid.NewString()[:8],
		Label:    label,
		Score:    0.6 + rand.Float64()*0.4,
		AtMs:     at.Milliseconds(),
	})
}

// cutClip announces a clip and marks it ready a beat later, the way the real
// renderer does.
func (r *runner) cutClip(ctx context.Context, sess *session, title string, end time.Duration) {
	clipID := "clip_" + uuid.NewString()[:8]
	startMs := end.Milliseconds() - 15000
	if startMs < 0 {
		startMs = 0
	}
	r.server.emit(events.TypeClipCreated, sess.ID, events.ClipPayload{
		ClipID:  clipID,
		Title:   title,
		StartMs: startMs,
		EndMs:   end.Milliseconds(),
	})
	if !sleepOrCancel(ctx, 800*time.Millisecond) {
		return
	}
	r.server.emit(events.TypeClipReady, sess.ID, events.ClipPayload{
		ClipID:   clipID,
		Title:    title,
		StartMs:  startMs,
		EndMs:    end.Milliseconds(),
		MediaURL: fmt.Sprintf("https://media.invalid/clips/%s.mp4", clipID),
	})
}

// publishOutputs pushes one output per platform; most validate, the odd one
// fails so clients render the failure path too.
func (r *runner) publishOutputs(ctx context.Context, sess *session) {
	for _, platform := range platforms {
		outputID := "out_" + uuid.NewString()[:8]
		r.server.emit(events.TypeOutputCreated, sess.ID, events.OutputPayload{
			OutputID: outputID,
			Platform: platform,
			Title:    sess.Title,
			Status:   "rendering",
		})
		if !sleepOrCancel(ctx, 500*time.Millisecond) {
			return
		}
		if rand.IntN(5) == 0 {
			r.server.emit(events.TypeOutputFailed, sess.ID, events.OutputPayload{
				OutputID: outputID,
				Platform: platform,
				Status:   "failed",
				Reason:   "render pipeline timeout",
			})
			continue
		}
		r.server.emit(events.TypeOutputValidated, sess.ID, events.OutputPayload{
			OutputID: outputID,
			Platform: platform,
			Status:   "ready",
		})
	}
}

func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
