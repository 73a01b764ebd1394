package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub()
	go hub.Run()
	return hub
}

func newTestClient(hub *Hub, name string) *Client {
	return &Client{
		Hub:  hub,
		ID:   uuid.NewString(),
		Name: name,
		Send: make(chan *Message, 16),
	}
}

func join(t *testing.T, hub *Hub, c *Client, room string) {
	t.Helper()

	hub.Inbound <- &Message{Event: EventJoinRoom, Room: room, client: c}
	ack := recv(t, c)
	require.Equal(t, EventRoomJoined, ack.Event)
	require.Equal(t, room, ack.Room)
}

func recv(t *testing.T, c *Client) *Message {
	t.Helper()

	select {
	case msg := <-c.Send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a message for %s", c.Name)
		return nil
	}
}

func expectSilence(t *testing.T, c *Client) {
	t.Helper()

	select {
	case msg := <-c.Send:
		t.Fatalf("unexpected %s message for %s", msg.Event, c.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func Test_Join_Is_Acknowledged_And_Idempotent(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")

	join(t, hub, alice, "42")
	req.Equal("42", alice.RoomID)

	// Re-joining the same room is a no-op but still acknowledged.
	join(t, hub, alice, "42")
	req.Equal("42", alice.RoomID)
}

func Test_Joining_Another_Room_Leaves_The_First(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")
	bob := newTestClient(hub, "Bob")

	join(t, hub, alice, "42")
	join(t, hub, bob, "42")
	join(t, hub, alice, "43")
	req.Equal("43", alice.RoomID)

	// A message in the old room no longer reaches Alice.
	hub.Inbound <- &Message{Event: EventSendMessage, Room: "42", User: "Bob", Text: "hi", Time: "T1", client: bob}
	expectSilence(t, alice)
}

func Test_Chat_Broadcast_Excludes_Sender(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")
	bob := newTestClient(hub, "Bob")
	carol := newTestClient(hub, "Carol")

	join(t, hub, alice, "42")
	join(t, hub, bob, "42")
	join(t, hub, carol, "42")

	hub.Inbound <- &Message{Event: EventSendMessage, Room: "42", User: "Alice", Text: "hi", Time: "T1", client: alice}

	for _, receiver := range []*Client{bob, carol} {
		msg := recv(t, receiver)
		req.Equal(EventReceiveMessage, msg.Event)
		req.Equal("Alice", msg.User)
		req.Equal("hi", msg.Text)
		req.Equal("T1", msg.Time)
	}
	expectSilence(t, alice)
}

func Test_Rooms_Are_Isolated(t *testing.T) {
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")
	bob := newTestClient(hub, "Bob")

	join(t, hub, alice, "r1")
	join(t, hub, bob, "r2")

	hub.Inbound <- &Message{Event: EventSendMessage, Room: "r1", User: "Alice", Text: "hi", Time: "T1", client: alice}
	expectSilence(t, bob)
}

func Test_Send_Without_Join_Is_Rejected(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")

	hub.Inbound <- &Message{Event: EventSendMessage, Room: "42", User: "Alice", Text: "hi", Time: "T1", client: alice}

	msg := recv(t, alice)
	req.Equal(EventError, msg.Event)
	req.Equal(ReasonNotInRoom, msg.Reason)
}

func Test_Call_Offer_Answer_Flow(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")
	bob := newTestClient(hub, "Bob")

	join(t, hub, alice, "7")
	join(t, hub, bob, "7")

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	hub.Inbound <- &Message{Event: EventCallUser, UserToCall: "7", SignalData: offer, From: "Alice", client: alice}

	hey := recv(t, bob)
	req.Equal(EventHey, hey.Event)
	req.Equal("Alice", hey.From)
	req.JSONEq(string(offer), string(hey.Signal))

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	hub.Inbound <- &Message{Event: EventAcceptCall, Signal: answer, To: "Alice", client: bob}

	accepted := recv(t, alice)
	req.Equal(EventCallAccepted, accepted.Event)
	req.JSONEq(string(answer), string(accepted.Signal))
}

func Test_Busy_Room_Rejects_Second_Call(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")
	bob := newTestClient(hub, "Bob")
	carol := newTestClient(hub, "Carol")

	join(t, hub, alice, "7")
	join(t, hub, bob, "7")
	join(t, hub, carol, "7")

	hub.Inbound <- &Message{Event: EventCallUser, UserToCall: "7", SignalData: json.RawMessage(`{}`), From: "Alice", client: alice}
	recv(t, bob)   // hey
	recv(t, carol) // hey

	hub.Inbound <- &Message{Event: EventCallUser, UserToCall: "7", SignalData: json.RawMessage(`{}`), From: "Carol", client: carol}

	msg := recv(t, carol)
	req.Equal(EventError, msg.Event)
	req.Equal(ReasonRoomBusy, msg.Reason)
}

func Test_Answer_Without_Offer_Is_Dropped(t *testing.T) {
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")
	bob := newTestClient(hub, "Bob")

	join(t, hub, alice, "7")
	join(t, hub, bob, "7")

	hub.Inbound <- &Message{Event: EventAcceptCall, Signal: json.RawMessage(`{}`), To: "Alice", client: bob}
	expectSilence(t, alice)
	expectSilence(t, bob)
}

func Test_Candidates_Are_Relayed_Untouched(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")
	bob := newTestClient(hub, "Bob")

	join(t, hub, alice, "7")
	join(t, hub, bob, "7")

	hub.Inbound <- &Message{Event: EventCallUser, UserToCall: "7", SignalData: json.RawMessage(`{}`), From: "Alice", client: alice}
	recv(t, bob) // hey

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 192.0.2.1 54321 typ host"}`)
	hub.Inbound <- &Message{Event: EventSignal, Signal: candidate, client: alice}

	msg := recv(t, bob)
	req.Equal(EventSignal, msg.Event)
	req.JSONEq(string(candidate), string(msg.Signal))

	// And back the other way.
	hub.Inbound <- &Message{Event: EventSignal, Signal: candidate, client: bob}
	msg = recv(t, alice)
	req.Equal(EventSignal, msg.Event)
}

func Test_Signal_Outside_Call_Is_Dropped(t *testing.T) {
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")
	bob := newTestClient(hub, "Bob")

	join(t, hub, alice, "7")
	join(t, hub, bob, "7")

	hub.Inbound <- &Message{Event: EventSignal, Signal: json.RawMessage(`{}`), client: alice}
	expectSilence(t, bob)
}

func Test_EndCall_Notifies_Peer_And_Frees_The_Room(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")
	bob := newTestClient(hub, "Bob")

	join(t, hub, alice, "7")
	join(t, hub, bob, "7")

	hub.Inbound <- &Message{Event: EventCallUser, UserToCall: "7", SignalData: json.RawMessage(`{}`), From: "Alice", client: alice}
	recv(t, bob) // hey
	hub.Inbound <- &Message{Event: EventAcceptCall, Signal: json.RawMessage(`{}`), To: "Alice", client: bob}
	recv(t, alice) // callAccepted

	hub.Inbound <- &Message{Event: EventEndCall, client: alice}
	msg := recv(t, bob)
	req.Equal(EventCallEnded, msg.Event)

	// Ending again is a harmless no-op.
	hub.Inbound <- &Message{Event: EventEndCall, client: alice}
	expectSilence(t, bob)

	// The room is idle again: a fresh call goes through.
	hub.Inbound <- &Message{Event: EventCallUser, UserToCall: "7", SignalData: json.RawMessage(`{}`), From: "Bob", client: bob}
	msg = recv(t, alice)
	req.Equal(EventHey, msg.Event)
}

func Test_Disconnect_Ends_Call_For_Peer(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")
	bob := newTestClient(hub, "Bob")

	join(t, hub, alice, "7")
	join(t, hub, bob, "7")

	hub.Inbound <- &Message{Event: EventCallUser, UserToCall: "7", SignalData: json.RawMessage(`{}`), From: "Alice", client: alice}
	recv(t, bob) // hey
	hub.Inbound <- &Message{Event: EventAcceptCall, Signal: json.RawMessage(`{}`), To: "Alice", client: bob}
	recv(t, alice) // callAccepted

	// Alice drops without an explicit hangup.
	hub.Unregister <- alice

	msg := recv(t, bob)
	req.Equal(EventCallEnded, msg.Event)
}

func Test_Last_Leaver_Deletes_The_Room(t *testing.T) {
	req := require.New(t)
	hub := startHub(t)
	alice := newTestClient(hub, "Alice")
	bob := newTestClient(hub, "Bob")

	join(t, hub, alice, "42")
	join(t, hub, bob, "42")

	hub.Unregister <- alice
	hub.Unregister <- bob

	// Synchronize with the hub loop before inspecting its state.
	carol := newTestClient(hub, "Carol")
	join(t, hub, carol, "other")

	req.NotContains(hub.Rooms, "42")
}
