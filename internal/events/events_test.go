package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodePayloadVariants(t *testing.T) {
	cases := []struct {
		typ     Type
		payload string
		check   func(t *testing.T, p Payload)
	}{
		{
			typ:     TypeOutputCreated,
			payload: `{"outputId":"out-1","platform":"youtube","status":"pending"}`,
			check: func(t *testing.T, p Payload) {
				out, ok := p.(*OutputPayload)
				if !ok {
					t.Fatalf("payload type = %T", p)
				}
				if out.OutputID != "out-1" || out.Platform != "youtube" {
					t.Errorf("decoded output = %+v", out)
				}
			},
		},
		{
			typ:     TypeClipReady,
			payload: `{"clipId":"clip-9","startMs":1000,"endMs":4000,"mediaUrl":"file:///tmp/clip.mp4"}`,
			check: func(t *testing.T, p Payload) {
				clip, ok := p.(*ClipPayload)
				if !ok {
					t.Fatalf("payload type = %T", p)
				}
				if clip.ClipID != "clip-9" || clip.EndMs != 4000 {
					t.Errorf("decoded clip = %+v", clip)
				}
			},
		},
		{
			typ:     TypeMomentDetected,
			payload: `{"momentId":"m-1","label":"laughter","score":0.92,"atMs":120500}`,
			check: func(t *testing.T, p Payload) {
				m, ok := p.(*MomentPayload)
				if !ok {
					t.Fatalf("payload type = %T", p)
				}
				if m.Label != "laughter" || m.Score != 0.92 {
					t.Errorf("decoded moment = %+v", m)
				}
			},
		},
		{
			typ:     TypeTranscriptFinal,
			payload: `{"text":"welcome back","speaker":"host","final":true,"startMs":10,"endMs":1800}`,
			check: func(t *testing.T, p Payload) {
				tr, ok := p.(*TranscriptPayload)
				if !ok {
					t.Fatalf("payload type = %T", p)
				}
				if tr.Text != "welcome back" || !tr.Final {
					t.Errorf("decoded transcript = %+v", tr)
				}
			},
		},
		{
			typ:     TypeSessionStarted,
			payload: `{"title":"episode 42","profile":"podcast"}`,
			check: func(t *testing.T, p Payload) {
				s, ok := p.(*SessionPayload)
				if !ok {
					t.Fatalf("payload type = %T", p)
				}
				if s.Title != "episode 42" {
					t.Errorf("decoded session = %+v", s)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(string(tc.typ), func(t *testing.T) {
			env := Envelope{ID: "x", TS: 1, Type: tc.typ, Payload: json.RawMessage(tc.payload)}
			p, err := env.DecodePayload()
			if err != nil {
				t.Fatalf("DecodePayload failed: %v", err)
			}
			tc.check(t, p)
		})
	}
}

func TestDecodePayloadRejectsControlAndUnknown(t *testing.T) {
	for _, typ := range []Type{TypeHello, TypePong, Type("mystery")} {
		env := Envelope{Type: typ}
		if _, err := env.DecodePayload(); err == nil {
			t.Errorf("DecodePayload(%s) succeeded, want error", typ)
		}
	}
}

func TestTypeClassification(t *testing.T) {
	if !TypeHello.Control() || !TypePong.Control() {
		t.Error("hello/pong must classify as control")
	}
	if TypeOutputCreated.Control() {
		t.Error("output_created must not classify as control")
	}
	if Type("mystery").Known() {
		t.Error("unknown tag must not be Known")
	}
	if !TypeSessionEnded.Known() {
		t.Error("session_ended must be Known")
	}
	if cats := TypeSessionStarted.Categories(); len(cats) != 0 {
		t.Errorf("session_started categories = %v, want none", cats)
	}
	if cats := TypeOutputFailed.Categories(); len(cats) != 1 || cats[0] != CategoryOutputs {
		t.Errorf("output_failed categories = %v", cats)
	}
}

func TestEnvelopeTime(t *testing.T) {
	env := Envelope{TS: 1700000000000}
	want := time.UnixMilli(1700000000000).UTC()
	if !env.Time().Equal(want) {
		t.Errorf("Time() = %v, want %v", env.Time(), want)
	}
}
