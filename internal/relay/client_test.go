package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lanchu14/project-realtime/internal/history"
)

// recordingStore captures appends and can be told to fail.
type recordingStore struct {
	appended []history.Message
	rooms    []string
	err      error
}

func (s *recordingStore) Append(_ context.Context, bookingID string, msg history.Message) error {
	if s.err != nil {
		return s.err
	}
	s.rooms = append(s.rooms, bookingID)
	s.appended = append(s.appended, msg)
	return nil
}

func (s *recordingStore) ReadAll(context.Context, string) ([]history.Message, error) {
	return s.appended, nil
}

func (s *recordingStore) Close() error { return nil }

func newInboundClient(store history.Store) *Client {
	hub := &Hub{Inbound: make(chan *Message, 1)}
	return &Client{
		Hub:   hub,
		Store: store,
		ID:    "conn-1",
		Name:  "Alice",
		Send:  make(chan *Message, 1),
	}
}

func validChat(text string) *Message {
	return &Message{
		Event: EventSendMessage,
		Room:  "42",
		User:  "Alice",
		Text:  text,
		Time:  time.Now().UTC().Format(time.RFC3339),
	}
}

func Test_Send_Appends_Before_Forwarding(t *testing.T) {
	req := require.New(t)
	store := &recordingStore{}
	c := newInboundClient(store)

	msg := validChat("hi")
	msg.client = c
	c.handleInbound(msg)

	req.Len(store.appended, 1)
	req.Equal("hi", store.appended[0].Text)
	req.Equal([]string{"42"}, store.rooms)

	select {
	case forwarded := <-c.Hub.Inbound:
		req.Equal(EventSendMessage, forwarded.Event)
	default:
		t.Fatal("message was not forwarded to the hub")
	}
}

func Test_Failed_Append_Rejects_The_Send(t *testing.T) {
	req := require.New(t)
	store := &recordingStore{err: errors.New("disk full")}
	c := newInboundClient(store)

	msg := validChat("hi")
	msg.client = c
	c.handleInbound(msg)

	// The sender is told, with the identity triple echoed back for rollback.
	select {
	case reply := <-c.Send:
		req.Equal(EventError, reply.Event)
		req.Equal(ReasonNotSaved, reply.Reason)
		req.Equal("hi", reply.Text)
		req.Equal("Alice", reply.User)
		req.NotEmpty(reply.Time)
	default:
		t.Fatal("sender was not informed of the rejected send")
	}

	// Nothing reaches the hub, so nothing is broadcast.
	select {
	case <-c.Hub.Inbound:
		t.Fatal("rejected message must not be forwarded")
	default:
	}
}

func Test_Malformed_Send_Is_Rejected(t *testing.T) {
	req := require.New(t)
	store := &recordingStore{}
	c := newInboundClient(store)

	for name, msg := range map[string]*Message{
		"missing text": {Event: EventSendMessage, Room: "42", User: "Alice", Time: time.Now().Format(time.RFC3339)},
		"missing room": {Event: EventSendMessage, User: "Alice", Text: "hi", Time: time.Now().Format(time.RFC3339)},
		"bad time":     {Event: EventSendMessage, Room: "42", User: "Alice", Text: "hi", Time: "yesterday"},
	} {
		msg.client = c
		c.handleInbound(msg)

		select {
		case reply := <-c.Send:
			req.Equal(EventError, reply.Event, name)
			req.Equal(ReasonBadMessage, reply.Reason, name)
		default:
			t.Fatalf("%s: expected a validation error", name)
		}
		req.Empty(store.appended, name)
	}
}

func Test_ISO_Timestamps_With_Millis_Are_Accepted(t *testing.T) {
	req := require.New(t)
	store := &recordingStore{}
	c := newInboundClient(store)

	// Browsers send Date.toISOString() timestamps.
	msg := &Message{Event: EventSendMessage, Room: "42", User: "Alice", Text: "hi", Time: "2026-08-31T10:15:00.123Z"}
	msg.client = c
	c.handleInbound(msg)

	req.Len(store.appended, 1)
}

func Test_Other_Events_Pass_Straight_Through(t *testing.T) {
	req := require.New(t)
	c := newInboundClient(&recordingStore{})

	msg := &Message{Event: EventJoinRoom, Room: "42"}
	msg.client = c
	c.handleInbound(msg)

	select {
	case forwarded := <-c.Hub.Inbound:
		req.Equal(EventJoinRoom, forwarded.Event)
	default:
		t.Fatal("event was not forwarded")
	}
}
