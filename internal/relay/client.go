package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/Lanchu14/project-realtime/internal/history"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP payloads

	// Budget for the durable append before a send is rejected.
	appendTimeout = 5 * time.Second
)

var validate = validator.New()

// chatPayload is the validated shape of an inbound sendMessage event.
type chatPayload struct {
	Room string `validate:"required"`
	User string `validate:"required"`
	Text string `validate:"required"`
	Time string `validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

// Client is a wrapper for a single websocket connection (a participant).
type Client struct {
	// Hub is the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection.
	Conn *websocket.Conn

	// Store receives the durable append for each chat message before it is
	// handed to the hub for broadcast.
	Store history.Store

	// ID is the process-unique connection identifier.
	ID string

	// Name is the display name supplied by the upstream session layer.
	Name string

	// RoomID is the booking the client has joined, empty until joinRoom.
	// Owned by the hub goroutine once the client is registered.
	RoomID string

	// Send is a buffered channel for all outbound messages. The hub writes
	// to it and WritePump drains it onto the websocket.
	Send chan *Message

	log *slog.Logger
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger().Warn("read failed", "error", err)
			}
			break
		}

		msg.client = c
		c.handleInbound(&msg)
	}
}

// handleInbound runs on the read goroutine, so per-connection events reach
// the hub in arrival order. sendMessage is special-cased here: the durable
// append must succeed before the hub may broadcast, and a failed append is
// reported back to the sender instead of being forwarded.
func (c *Client) handleInbound(msg *Message) {
	if msg.Event != EventSendMessage {
		c.Hub.Inbound <- msg
		return
	}

	payload := chatPayload{Room: msg.Room, User: msg.User, Text: msg.Text, Time: msg.Time}
	if err := validate.Struct(payload); err != nil {
		c.logger().Warn("rejecting malformed chat message", "error", err)
		c.reply(&Message{Event: EventError, Reason: ReasonBadMessage})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()

	err := c.Store.Append(ctx, msg.Room, history.Message{
		User: msg.User,
		Text: msg.Text,
		Time: msg.Time,
	})
	if err != nil {
		c.logger().Error("durable append failed", "room", msg.Room, "error", err)
		// Echo the identity triple so the sender can roll back its
		// optimistic render.
		c.reply(&Message{
			Event:  EventError,
			Reason: ReasonNotSaved,
			User:   msg.User,
			Text:   msg.Text,
			Time:   msg.Time,
		})
		return
	}

	c.Hub.Inbound <- msg
}

// reply queues a message for this client only, dropping it if the client's
// queue is full.
func (c *Client) reply(msg *Message) {
	select {
	case c.Send <- msg:
	default:
		c.logger().Warn("dropping reply, send queue full")
	}
}

func (c *Client) logger() *slog.Logger {
	if c.log == nil {
		c.log = slog.With("component", "relay", "conn", c.ID, "user", c.Name)
	}
	return c.log
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				c.logger().Warn("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
