package ws

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one live socket. ReadMessage blocks until a frame arrives or
// the socket dies; implementations must be safe for one concurrent reader
// and one concurrent writer.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens transports. The production implementation wraps
// gorilla/websocket; tests substitute scripted fakes.
type Dialer interface {
	DialContext(ctx context.Context, wsURL string) (Transport, error)
}

// EndpointURL converts the companion's HTTP base URL into its WebSocket
// event endpoint (http -> ws, https -> wss, path /ws).
func EndpointURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a socket URL
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// GorillaDialer is the production Dialer.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
}

func (d GorillaDialer) DialContext(ctx context.Context, wsURL string) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	return &gorillaTransport{conn: conn}, nil
}

type gorillaTransport struct {
	conn *websocket.Conn
}

func (t *gorillaTransport) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		// The protocol is JSON text frames; anything else is skipped.
		if msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

func (t *gorillaTransport) WriteMessage(data []byte) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *gorillaTransport) Close() error {
	// Best-effort close handshake before dropping the TCP connection.
	_ = t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second),
	)
	return t.conn.Close()
}
