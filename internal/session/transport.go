package session

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Lanchu14/project-realtime/internal/relay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// transport is how the session talks to the server. Tests substitute an
// in-memory implementation.
type transport interface {
	Send(msg *relay.Message)
	Incoming() <-chan *relay.Message
	Close()
}

// wsTransport manages the WebSocket connection to the session server.
type wsTransport struct {
	conn     *websocket.Conn
	incoming chan *relay.Message
	outgoing chan *relay.Message
	done     chan struct{}
	closed   bool
}

// dialTransport connects to the server's websocket endpoint, identifying the
// participant by display name.
func dialTransport(ctx context.Context, wsURL, user string) (*wsTransport, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	q := u.Query()
	q.Set("user", user)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	t := &wsTransport{
		conn:     conn,
		incoming: make(chan *relay.Message, 32),
		outgoing: make(chan *relay.Message, 32),
		done:     make(chan struct{}),
	}

	t.conn.SetReadLimit(maxMessageSize)
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go t.readPump()
	go t.writePump()

	return t, nil
}

// readPump reads messages from the WebSocket connection.
func (t *wsTransport) readPump() {
	defer func() {
		t.conn.Close()
		close(t.incoming)
	}()

	t.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg relay.Message
		if err := t.conn.ReadJSON(&msg); err != nil {
			return
		}

		t.incoming <- &msg
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (t *wsTransport) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case message := <-t.outgoing:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-t.done:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			t.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send queues a message for the server, dropping it if the session is
// shutting down.
func (t *wsTransport) Send(msg *relay.Message) {
	select {
	case t.outgoing <- msg:
	case <-t.done:
	}
}

// Incoming returns the channel for receiving messages.
func (t *wsTransport) Incoming() <-chan *relay.Message {
	return t.incoming
}

// Close closes the WebSocket connection and cleans up resources.
func (t *wsTransport) Close() {
	if t.closed {
		return
	}
	t.closed = true

	close(t.done)
}
