// Package events defines the typed envelopes that flow over the WebSocket
// connection from the companion daemon, and the dispatcher that turns raw
// frames into bounded, per-category histories the UI layer subscribes to.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of production event. The set is closed: frames
// carrying any other tag never enter history.
type Type string

const (
	// Control frames. Acknowledged by the transport layer, invisible to
	// business logic.
	TypeHello Type = "hello"
	TypePong  Type = "pong"

	TypeSessionStarted Type = "session_started"
	TypeSessionEnded   Type = "session_ended"

	TypeOutputCreated   Type = "output_created"
	TypeOutputValidated Type = "output_validated"
	TypeOutputFailed    Type = "output_failed"

	TypeClipCreated Type = "clip_created"
	TypeClipReady   Type = "clip_ready"

	TypeMomentDetected Type = "moment_detected"
	TypeMomentUpdated  Type = "moment_updated"

	TypeTranscriptPartial Type = "transcript_partial"
	TypeTranscriptFinal   Type = "transcript_final"
)

// Category is a semantic grouping of event types. Each category keeps its own
// bounded history with independent eviction.
type Category string

const (
	CategoryOutputs     Category = "outputs"
	CategoryClips       Category = "clips"
	CategoryMoments     Category = "moments"
	CategoryTranscripts Category = "transcripts"
)

// Categories lists every semantic category in render order.
var Categories = []Category{CategoryOutputs, CategoryClips, CategoryMoments, CategoryTranscripts}

var typeCategories = map[Type][]Category{
	TypeSessionStarted: nil,
	TypeSessionEnded:   nil,

	TypeOutputCreated:   {CategoryOutputs},
	TypeOutputValidated: {CategoryOutputs},
	TypeOutputFailed:    {CategoryOutputs},

	TypeClipCreated: {CategoryClips},
	TypeClipReady:   {CategoryClips},

	TypeMomentDetected: {CategoryMoments},
	TypeMomentUpdated:  {CategoryMoments},

	TypeTranscriptPartial: {CategoryTranscripts},
	TypeTranscriptFinal:   {CategoryTranscripts},
}

// Control reports whether t is a protocol control frame.
func (t Type) Control() bool {
	return t == TypeHello || t == TypePong
}

// Known reports whether t belongs to the closed event set (control frames
// included).
func (t Type) Known() bool {
	if t.Control() {
		return true
	}
	_, ok := typeCategories[t]
	return ok
}

// Categories returns the zero or more semantic categories t belongs to.
func (t Type) Categories() []Category {
	return typeCategories[t]
}

// Observability carries optional tracing metadata attached by the daemon.
type Observability struct {
	Provider string `json:"provider"`
	TraceID  string `json:"traceId,omitempty"`
	SpanID   string `json:"spanId,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Envelope is the canonical wrapper around a single domain event. Envelopes
// are immutable once received; histories hold them by value.
type Envelope struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"sessionId,omitempty"`
	TS            int64           `json:"ts"` // milliseconds since epoch
	Type          Type            `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Observability *Observability  `json:"observability,omitempty"`
}

// Time converts the envelope's millisecond timestamp to a time.Time.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.TS).UTC()
}

// Payload is the closed union of per-type payload shapes. DecodePayload is
// the only constructor; new variants require a new case there.
type Payload interface {
	isPayload()
}

// SessionPayload accompanies session_started and session_ended.
type SessionPayload struct {
	Title   string `json:"title"`
	Profile string `json:"profile,omitempty"`
}

// OutputPayload accompanies the output_* events.
type OutputPayload struct {
	OutputID string `json:"outputId"`
	Platform string `json:"platform"`
	Title    string `json:"title,omitempty"`
	Status   string `json:"status,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ClipPayload accompanies the clip_* events.
type ClipPayload struct {
	ClipID   string `json:"clipId"`
	Title    string `json:"title,omitempty"`
	StartMs  int64  `json:"startMs"`
	EndMs    int64  `json:"endMs"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// MomentPayload accompanies the moment_* events.
type MomentPayload struct {
	MomentID string  `json:"momentId"`
	Label    string  `json:"label"`
	Score    float64 `json:"score"`
	AtMs     int64   `json:"atMs"`
}

// TranscriptPayload accompanies the transcript_* events.
type TranscriptPayload struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
	Final   bool   `json:"final"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
}

func (SessionPayload) isPayload()    {}
func (OutputPayload) isPayload()     {}
func (ClipPayload) isPayload()       {}
func (MomentPayload) isPayload()     {}
func (TranscriptPayload) isPayload() {}

// DecodePayload unmarshals the envelope's payload into its typed variant.
// The switch is exhaustive over the closed type set; control frames and
// unknown tags return an error.
func (e Envelope) DecodePayload() (Payload, error) {
	decode := func(dst Payload) (Payload, error) {
		if len(e.Payload) == 0 {
			return dst, nil
		}
		if err := json.Unmarshal(e.Payload, dst); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
		return dst, nil
	}

	switch e.Type {
	case TypeSessionStarted, TypeSessionEnded:
		return decode(&SessionPayload{})
	case TypeOutputCreated, TypeOutputValidated, TypeOutputFailed:
		return decode(&OutputPayload{})
	case TypeClipCreated, TypeClipReady:
		return decode(&ClipPayload{})
	case TypeMomentDetected, TypeMomentUpdated:
		return decode(&MomentPayload{})
	case TypeTranscriptPartial, TypeTranscriptFinal:
		return decode(&TranscriptPayload{})
	case TypeHello, TypePong:
		return nil, fmt.Errorf("control frame %s has no payload variant", e.Type)
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

// NowTS returns the current UTC time in the millisecond-epoch format used by
// every envelope.
func NowTS() int64 {
	return time.Now().UnixMilli()
}
