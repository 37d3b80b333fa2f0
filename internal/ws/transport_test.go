package ws

import "testing"

func TestEndpointURL(t *testing.T) {
	cases := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "http://127.0.0.1:8787", want: "ws://127.0.0.1:8787/ws"},
		{in: "https://companion.local", want: "wss://companion.local/ws"},
		{in: "http://127.0.0.1:8787/", want: "ws://127.0.0.1:8787/ws"},
		{in: "ws://127.0.0.1:8787/ws", want: "ws://127.0.0.1:8787/ws"},
		{in: "http://host/api/status?x=1", want: "ws://host/ws"},
		{in: "ftp://host", wantErr: true},
	}
	for _, tc := range cases {
		got, err := EndpointURL(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("EndpointURL(%q) = %q, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("EndpointURL(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("EndpointURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
