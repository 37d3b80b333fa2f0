package netmon_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"greenroom/internal/netmon"
)

func TestProbeSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := netmon.NewProbe(srv.URL, time.Minute, time.Second, nil)
	if !p.IsConnected(context.Background()) {
		t.Fatal("expected connected snapshot against a healthy server")
	}

	srv.Close()
	// Snapshot is cached until the next probe tick; force one via a fresh probe.
	p2 := netmon.NewProbe(srv.URL, time.Minute, time.Second, nil)
	if p2.IsConnected(context.Background()) {
		t.Fatal("expected disconnected snapshot against a closed server")
	}
}

func TestProbeEdgeTriggeredCallbacks(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := netmon.NewProbe(srv.URL, 10*time.Millisecond, time.Second, nil)

	transitions := make(chan bool, 16)
	cancel := p.OnChange(func(connected bool) { transitions <- connected })
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go p.Run(ctx)

	// First completed probe reports the initial transition to connected.
	select {
	case got := <-transitions:
		if !got {
			t.Fatalf("first transition = %v, want connected", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial transition")
	}

	healthy.Store(false)
	select {
	case got := <-transitions:
		if got {
			t.Fatalf("second transition = %v, want disconnected", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect transition")
	}

	// No callback storm while the state holds steady.
	select {
	case got := <-transitions:
		t.Fatalf("unexpected extra transition: %v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOnChangeCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := netmon.NewProbe(srv.URL, 10*time.Millisecond, time.Second, nil)

	var fired atomic.Int32
	cancel := p.OnChange(func(bool) { fired.Add(1) })
	cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go p.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("cancelled subscriber fired %d times", fired.Load())
	}
}
