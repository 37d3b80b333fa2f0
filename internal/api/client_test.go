package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(StatusResponse{
			Name:          "greenroom-companion",
			Version:       "1.2.0",
			DeviceName:    "studio-mac",
			UptimeSeconds: 90,
			Clients:       2,
		})
	}))
	defer srv.Close()

	s, err := New(srv.URL, srv.Client()).Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if s.Name != "greenroom-companion" || s.Clients != 2 {
		t.Errorf("status = %+v", s)
	}
}

func TestSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"sessions": []Session{
				{ID: "s2", Title: "episode 42"},
				{ID: "s1", Title: "episode 41", EndedAt: "2026-08-01T10:00:00Z"},
			},
		})
	}))
	defer srv.Close()

	sessions, err := New(srv.URL, srv.Client()).Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s2" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestMark(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions/s1/moments" {
			http.NotFound(w, r)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"moment": Moment{ID: "m1", Label: body["label"], TS: 1234},
		})
	}))
	defer srv.Close()

	m, err := New(srv.URL, srv.Client()).Mark(context.Background(), "s1", "great take")
	if err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	if m.ID != "m1" || m.Label != "great take" {
		t.Errorf("moment = %+v", m)
	}
}

func TestErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no active session", http.StatusConflict)
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client()).Status(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "no active session") {
		t.Errorf("error = %v, want server message included", err)
	}
}
