package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lanchu14/project-realtime/internal/call"
	"github.com/Lanchu14/project-realtime/internal/config"
	"github.com/Lanchu14/project-realtime/internal/history"
	"github.com/Lanchu14/project-realtime/internal/relay"
	"github.com/Lanchu14/project-realtime/internal/server"
	"github.com/Lanchu14/project-realtime/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *config.Client) {
	t.Helper()

	store, err := history.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := relay.NewHub()
	go hub.Run()

	srv := httptest.NewServer(server.NewMux(hub, store))
	t.Cleanup(srv.Close)

	wsURL, err := config.WebSocketURL(srv.URL)
	require.NoError(t, err)

	return srv, &config.Client{ServerURL: srv.URL, WebSocketURL: wsURL}
}

// countingNegotiator stands in for real media so call flows run without
// devices or ICE.
type countingNegotiator struct {
	closes atomic.Int32
}

func (n *countingNegotiator) CreateOffer(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"type":"offer","sdp":"v=0"}`), nil
}

func (n *countingNegotiator) AcceptOffer(context.Context, json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"type":"answer","sdp":"v=0"}`), nil
}

func (n *countingNegotiator) ApplyAnswer(json.RawMessage) error { return nil }

func (n *countingNegotiator) AddCandidate(json.RawMessage) error { return nil }

func (n *countingNegotiator) Close() error { n.closes.Add(1); return nil }

type participant struct {
	session *session.Session
	neg     *countingNegotiator

	messages chan history.Message
	incoming chan string
	accepted chan struct{}
	ended    chan struct{}
	errors   chan string
}

func connect(t *testing.T, cfg *config.Client, user, room string) *participant {
	t.Helper()

	p := &participant{
		neg:      &countingNegotiator{},
		messages: make(chan history.Message, 32),
		incoming: make(chan string, 8),
		accepted: make(chan struct{}, 8),
		ended:    make(chan struct{}, 8),
		errors:   make(chan string, 8),
	}

	factory := func(context.Context) (session.Negotiator, error) { return p.neg, nil }
	p.session = session.New(cfg, user, factory, session.Callbacks{
		OnMessage:      func(m history.Message) { p.messages <- m },
		OnIncomingCall: func(from string) { p.incoming <- from },
		OnCallAccepted: func() { p.accepted <- struct{}{} },
		OnCallEnded:    func() { p.ended <- struct{}{} },
		OnError:        func(reason string) { p.errors <- reason },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, p.session.Connect(ctx))
	t.Cleanup(p.session.Close)
	require.NoError(t, p.session.Join(ctx, room))

	return p
}

func wait[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func Test_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func Test_History_Endpoint_Empty_Room(t *testing.T) {
	req := require.New(t)
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/chats/42")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.JSONEq(`[]`, string(body))
}

// Scenario 1: a message sent before the second participant joins arrives
// via the history fetch, with no duplicate live broadcast.
func Test_Late_Joiner_Catches_Up_Via_History(t *testing.T) {
	req := require.New(t)
	_, cfg := newTestServer(t)

	alice := connect(t, cfg, "Alice", "42")
	sent, err := alice.session.Send("hi")
	req.NoError(err)
	wait(t, alice.messages, "Alice's local render")

	// Wait until the durable append is visible before Bob joins.
	req.Eventually(func() bool {
		msgs, err := session.FetchHistory(context.Background(), nil, cfg.ServerURL, "42")
		return err == nil && len(msgs) == 1
	}, 5*time.Second, 20*time.Millisecond)

	bob := connect(t, cfg, "Bob", "42")
	req.NoError(bob.session.SeedHistory(context.Background()))

	got := wait(t, bob.messages, "history seed")
	req.Equal(sent, got)
	req.Equal([]history.Message{sent}, bob.session.Messages())

	// No live broadcast was in flight for Bob.
	select {
	case m := <-bob.messages:
		t.Fatalf("unexpected duplicate %q", m.Text)
	case <-time.After(100 * time.Millisecond):
	}
}

// Scenario 2: a live broadcast racing the history fetch yields exactly one
// displayed copy.
func Test_Broadcast_And_History_Fetch_Dedup(t *testing.T) {
	req := require.New(t)
	_, cfg := newTestServer(t)

	alice := connect(t, cfg, "Alice", "42")
	bob := connect(t, cfg, "Bob", "42")

	sent, err := alice.session.Send("hello bob")
	req.NoError(err)
	wait(t, alice.messages, "Alice's local render")

	// Bob gets the live broadcast.
	got := wait(t, bob.messages, "live broadcast")
	req.Equal(sent, got)

	// The late history fetch returns the same message; it must not be
	// displayed again.
	req.Eventually(func() bool {
		msgs, err := session.FetchHistory(context.Background(), nil, cfg.ServerURL, "42")
		return err == nil && len(msgs) == 1
	}, 5*time.Second, 20*time.Millisecond)
	req.NoError(bob.session.SeedHistory(context.Background()))

	select {
	case m := <-bob.messages:
		t.Fatalf("duplicate display of %q", m.Text)
	case <-time.After(100 * time.Millisecond):
	}
	req.Len(bob.session.Messages(), 1)

	// Self-exclusion: Alice only ever saw her optimistic render.
	select {
	case m := <-alice.messages:
		t.Fatalf("sender received own broadcast %q", m.Text)
	case <-time.After(100 * time.Millisecond):
	}
}

// Scenario 3: offer/answer completes for both sides and a third caller is
// rejected as busy.
func Test_Call_Flow_And_Busy_Rejection(t *testing.T) {
	req := require.New(t)
	_, cfg := newTestServer(t)

	alice := connect(t, cfg, "Alice", "7")
	bob := connect(t, cfg, "Bob", "7")
	carol := connect(t, cfg, "Carol", "7")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req.NoError(alice.session.InitiateCall(ctx))
	req.Equal(call.StateOutgoing, alice.session.CallState())

	from := wait(t, bob.incoming, "Bob's incoming call")
	req.Equal("Alice", from)
	req.Equal(call.StateIncoming, bob.session.CallState())

	req.NoError(bob.session.AcceptCall(ctx))
	wait(t, alice.accepted, "Alice's answer")
	req.Equal(call.StateConnected, alice.session.CallState())
	req.Equal(call.StateConnected, bob.session.CallState())

	// Carol barges in and is told the room is busy.
	wait(t, carol.incoming, "Carol's ring") // she also heard the original offer
	carol.session.DeclineCall()
	req.NoError(carol.session.InitiateCall(ctx))
	reason := wait(t, carol.errors, "busy rejection")
	req.Equal("room is busy", reason)
	req.Eventually(func() bool {
		return carol.session.CallState() == call.StateIdle
	}, 5*time.Second, 20*time.Millisecond)

	// Clean hangup releases both sides.
	alice.session.HangUp()
	wait(t, bob.ended, "Bob's call end")
	req.EqualValues(1, alice.neg.closes.Load())
	req.EqualValues(1, bob.neg.closes.Load())
}

// Scenario 4: an abrupt disconnect ends the call for the surviving peer
// without any further signaling from it.
func Test_Abrupt_Disconnect_Ends_Call(t *testing.T) {
	req := require.New(t)
	_, cfg := newTestServer(t)

	alice := connect(t, cfg, "Alice", "7")
	bob := connect(t, cfg, "Bob", "7")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req.NoError(alice.session.InitiateCall(ctx))
	wait(t, bob.incoming, "Bob's incoming call")
	req.NoError(bob.session.AcceptCall(ctx))
	wait(t, alice.accepted, "Alice's answer")

	// Alice vanishes without a hangup.
	alice.session.Close()

	wait(t, bob.ended, "Bob's call end")
	req.Equal(call.StateIdle, bob.session.CallState())
	req.EqualValues(1, bob.neg.closes.Load())
}

// Room isolation: a message in one booking never reaches another.
func Test_Room_Isolation(t *testing.T) {
	req := require.New(t)
	_, cfg := newTestServer(t)

	alice := connect(t, cfg, "Alice", "r1")
	bob := connect(t, cfg, "Bob", "r2")

	_, err := alice.session.Send("private")
	req.NoError(err)
	wait(t, alice.messages, "Alice's local render")

	select {
	case m := <-bob.messages:
		t.Fatalf("message leaked across rooms: %q", m.Text)
	case <-time.After(200 * time.Millisecond):
	}
}
