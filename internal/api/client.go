// Package api is a thin REST client for the companion daemon's query
// endpoints. It carries no retry or reconnect logic; the resilience layer
// lives elsewhere.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to one companion daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the daemon at baseURL. A nil httpClient gets a
// default with a 5 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// BaseURL returns the daemon base URL the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// StatusResponse mirrors the JSON returned by GET /api/status.
type StatusResponse struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	DeviceName    string `json:"device_name"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	ActiveSession string `json:"active_session,omitempty"`
	Clients       int    `json:"clients"`
}

// HealthResponse mirrors GET /healthz.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// Session is one production session as reported by GET /api/sessions.
type Session struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at,omitempty"`
	Recordings int    `json:"recordings"`
}

// Status fetches the daemon's status summary.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var s StatusResponse
	if err := c.getJSON(ctx, "/api/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Health checks the daemon's health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var h HealthResponse
	if err := c.getJSON(ctx, "/healthz", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Sessions lists the daemon's known production sessions, newest first.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var out struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.getJSON(ctx, "/api/sessions", &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// Moment is the daemon's record of a manual marker.
type Moment struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	TS    int64  `json:"ts"`
}

// Mark places a manual moment marker on a session ("mark that"). The daemon
// answers with the created moment and broadcasts a moment_detected event.
func (c *Client) Mark(ctx context.Context, sessionID, label string) (*Moment, error) {
	var out struct {
		Moment Moment `json:"moment"`
	}
	body := map[string]string{"label": label}
	if err := c.postJSON(ctx, "/api/sessions/"+sessionID+"/moments", body, &out); err != nil {
		return nil, err
	}
	return &out.Moment, nil
}

// getJSON sends a GET request and decodes the JSON response into dst.
func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, path, dst)
}

// postJSON sends a POST request with a JSON body and decodes the response.
func (c *Client) postJSON(ctx context.Context, path string, body, dst any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, path, dst)
}

// decodeJSON decodes a JSON response body into dst. Non-2xx responses become
// errors carrying the body text when the server sent one.
func decodeJSON(resp *http.Response, path string, dst any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(b))
		if msg != "" {
			return fmt.Errorf("HTTP %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("HTTP %s from %s", resp.Status, path)
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
