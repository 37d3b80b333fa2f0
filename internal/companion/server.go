package companion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"greenroom/internal/events"
)

// Options holds everything the Server needs from the caller.
type Options struct {
	Logger     *log.Logger
	Bind       string // listen address, e.g. 127.0.0.1:8787
	DeviceName string
	UploadDir  string // where uploaded recordings land

	// Simulate starts the scripted production run when true.
	Simulate         bool
	SimulateInterval time.Duration // pause between simulated sessions
}

type session struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	StartedAt  time.Time `json:"-"`
	EndedAt    time.Time `json:"-"`
	Recordings int       `json:"recordings"`
}

// Server is the simulated companion daemon process: HTTP API, WebSocket hub,
// and optionally the scripted event generator.
type Server struct {
	log  *log.Logger
	opts Options
	hub  *Hub

	server    *http.Server
	startedAt time.Time

	mu       sync.Mutex
	sessions []*session // newest first
	active   *session
}

// NewServer creates a Server ready for Run.
func NewServer(opts Options) *Server {
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:8787"
	}
	if opts.DeviceName == "" {
		opts.DeviceName = "greenroom-sim"
	}
	if opts.SimulateInterval <= 0 {
		opts.SimulateInterval = 20 * time.Second
	}
	return &Server{
		log:       opts.Logger,
		opts:      opts,
		hub:       NewHub(opts.Logger),
		startedAt: time.Now(),
	}
}

// Run starts the HTTP server and the hub, plus the simulator when enabled.
// It blocks until ctx is cancelled or the server fails.
func (s *Server) Run(ctx context.Context) error {
	if s.opts.UploadDir != "" {
		if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
			return fmt.Errorf("companion: upload dir: %w", err)
		}
	}

	s.server = &http.Server{
		Addr:              s.opts.Bind,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return err
	}
	s.log.Printf("companion: listening on http://%s", s.opts.Bind)

	go s.hub.Run(ctx)
	if s.opts.Simulate {
		go newRunner(s).Run(ctx)
	}

	go func() {
		<-ctx.Done()
		s.log.Printf("companion: shutdown requested")
		_ = s.server.Shutdown(context.Background())
	}()

	err = s.server.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("POST /api/sessions/{id}/moments", s.handleMark)
	mux.HandleFunc("POST /api/sessions/{id}/recordings/upload", s.handleUpload)
	mux.Handle("GET /ws", s.hub.Handler())
	return mux
}

// emit broadcasts one envelope to every connected client.
func (s *Server) emit(typ events.Type, sessionID string, payload any) {
	s.hub.BroadcastJSON(buildEnvelope(typ, sessionID, payload))
}

func buildEnvelope(typ events.Type, sessionID string, payload any) events.Envelope {
	env := events.Envelope{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		TS:        events.NowTS(),
		Type:      typ,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err == nil {
			env.Payload = raw
		}
	}
	return env
}

// startSession opens a new production session and announces it.
func (s *Server) startSession(title string) *session {
	sess := &session{
		ID:        "sess_" + uuid.NewString()[:8],
		Title:     title,
		StartedAt: time.Now(),
	}
	s.mu.Lock()
	s.sessions = append([]*session{sess}, s.sessions...)
	s.active = sess
	s.mu.Unlock()

	s.log.Printf("companion: session %s started (%s)", sess.ID, title)
	s.emit(events.TypeSessionStarted, sess.ID, events.SessionPayload{Title: title})
	return sess
}

// endSession closes the active session and announces it.
func (s *Server) endSession() {
	s.mu.Lock()
	sess := s.active
	if sess != nil {
		sess.EndedAt = time.Now()
		s.active = nil
	}
	s.mu.Unlock()
	if sess == nil {
		return
	}
	s.log.Printf("companion: session %s ended", sess.ID)
	s.emit(events.TypeSessionEnded, sess.ID, events.SessionPayload{Title: sess.Title})
}

func (s *Server) findSession(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"components": map[string]string{
			"hub":    "ok",
			"events": "ok",
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	activeID := ""
	if s.active != nil {
		activeID = s.active.ID
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"name":           "greenroom-companion",
		"version":        "0.1.0-sim",
		"device_name":    s.opts.DeviceName,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"active_session": activeID,
		"clients":        s.hub.ClientCount(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]map[string]any, 0, len(s.sessions))
	for _, sess := range s.sessions {
		entry := map[string]any{
			"id":         sess.ID,
			"title":      sess.Title,
			"started_at": sess.StartedAt.UTC().Format(time.RFC3339),
			"recordings": sess.Recordings,
		}
		if !sess.EndedAt.IsZero() {
			entry["ended_at"] = sess.EndedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleMark(w http.ResponseWriter, r *http.Request) {
	sess := s.findSession(r.PathValue("id"))
	if sess == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	var body struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if body.Label == "" {
		body.Label = "marked moment"
	}

	ts := events.NowTS()
	momentID := "mom_" + uuid.NewString()[:8]
	s.emit(events.TypeMomentDetected, sess.ID, events.MomentPayload{
		MomentID: momentID,
		Label:    body.Label,
		Score:    1.0, // manual markers are always top confidence
		AtMs:     ts - sess.StartedAt.UnixMilli(),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"moment": map[string]any{"id": momentID, "label": body.Label, "ts": ts},
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.findSession(r.PathValue("id"))
	if sess == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	file, hdr, err := r.FormFile("video")
	if err != nil {
		http.Error(w, "missing video part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := fmt.Sprintf("%s_%s_%s", sess.ID, r.FormValue("deviceId"), filepath.Base(hdr.Filename))
	size := hdr.Size
	if s.opts.UploadDir != "" {
		dst, err := os.Create(filepath.Join(s.opts.UploadDir, name))
		if err != nil {
			http.Error(w, "cannot store recording", http.StatusInternalServerError)
			return
		}
		n, err := io.Copy(dst, file)
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			http.Error(w, "cannot store recording", http.StatusInternalServerError)
			return
		}
		size = n
	} else {
		size, _ = io.Copy(io.Discard, file)
	}

	s.mu.Lock()
	sess.Recordings++
	s.mu.Unlock()
	s.log.Printf("companion: stored recording %s (%d bytes, mode=%s)", name, size, r.FormValue("captureMode"))

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"recording": map[string]any{
			"id":       "rec_" + uuid.NewString()[:8],
			"filename": name,
			"size":     size,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
