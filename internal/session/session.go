// Package session implements the client side of the real-time booking
// session: one object per view, owning the websocket connection, the chat
// dedup ledger and the call state machine.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Lanchu14/project-realtime/internal/call"
	"github.com/Lanchu14/project-realtime/internal/config"
	"github.com/Lanchu14/project-realtime/internal/history"
	"github.com/Lanchu14/project-realtime/internal/relay"
)

// timeLayout matches the browser's Date.toISOString() output.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Callbacks receive session events. Nil callbacks are skipped. They are
// invoked from the session's event goroutine and must not block.
type Callbacks struct {
	// OnMessage fires once per logical chat message, including the
	// sender's own optimistic render at submit time.
	OnMessage func(msg history.Message)

	// OnSendRejected fires when the server could not persist a message;
	// the message has already been rolled back from the local view.
	OnSendRejected func(msg history.Message)

	// OnIncomingCall fires when a call offer arrives.
	OnIncomingCall func(from string)

	// OnCallAccepted fires when the peer answered our call.
	OnCallAccepted func()

	// OnCallEnded fires when the peer hung up or disconnected.
	OnCallEnded func()

	// OnError fires for server-side errors not tied to a send.
	OnError func(reason string)
}

// Session is a participant's connection to one booking room. Construct it on
// view entry with New, Connect and Join it, and Close it on exit.
type Session struct {
	user      string
	cfg       *config.Client
	callbacks Callbacks
	negotiate NegotiatorFactory
	log       *slog.Logger

	trans  transport
	ledger *Ledger
	joined chan string

	mu           sync.Mutex
	room         string
	machine      call.Machine
	neg          Negotiator
	pendingOffer json.RawMessage
	pendingFrom  string

	closeOnce sync.Once
}

// New creates a session for the given participant. negotiate may be nil for
// chat-only sessions; call operations then fail with ErrMediaFailed.
func New(cfg *config.Client, user string, negotiate NegotiatorFactory, callbacks Callbacks) *Session {
	return &Session{
		user:      user,
		cfg:       cfg,
		callbacks: callbacks,
		negotiate: negotiate,
		log:       slog.With("component", "session", "user", user),
		ledger:    NewLedger(),
		joined:    make(chan string, 1),
	}
}

// Connect dials the server and starts the event loop.
func (s *Session) Connect(ctx context.Context) error {
	t, err := dialTransport(ctx, s.cfg.WebSocketURL, s.user)
	if err != nil {
		return newError("connect", err)
	}

	s.start(t)
	return nil
}

// start attaches a transport and spawns the event loop. Tests use it with an
// in-memory transport.
func (s *Session) start(t transport) {
	s.trans = t
	go s.run()
}

// Join enters the booking's room and waits for the server to acknowledge
// the membership change, so a subsequent send is guaranteed to be relayed.
func (s *Session) Join(ctx context.Context, room string) error {
	if s.trans == nil {
		return newError("join", ErrNotConnected)
	}

	s.trans.Send(&relay.Message{Event: relay.EventJoinRoom, Room: room})

	select {
	case acked := <-s.joined:
		if acked != room {
			return wrapError("join", ErrJoinFailed, "acknowledged a different room")
		}
	case <-ctx.Done():
		return wrapError("join", ErrJoinFailed, ctx.Err().Error())
	}

	s.mu.Lock()
	s.room = room
	s.mu.Unlock()
	return nil
}

// SeedHistory performs the one-time history fetch and merges it into the
// local view. Messages already displayed (optimistic sends, broadcasts that
// won the race) are suppressed by the ledger.
func (s *Session) SeedHistory(ctx context.Context) error {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room == "" {
		return newError("seed history", ErrNotJoined)
	}

	messages, err := FetchHistory(ctx, nil, s.cfg.ServerURL, room)
	if err != nil {
		return newError("seed history", err)
	}

	for _, msg := range messages {
		if s.ledger.Add(msg) {
			s.fireMessage(msg)
		}
	}
	return nil
}

// Send submits a chat message. The message is rendered locally right away;
// if the server cannot persist it, OnSendRejected fires and the local render
// is rolled back.
func (s *Session) Send(text string) (history.Message, error) {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room == "" {
		return history.Message{}, newError("send", ErrNotJoined)
	}

	msg := history.Message{
		User: s.user,
		Text: text,
		Time: time.Now().UTC().Format(timeLayout),
	}

	if s.ledger.Add(msg) {
		s.fireMessage(msg)
	}

	s.trans.Send(&relay.Message{
		Event: relay.EventSendMessage,
		Room:  room,
		User:  msg.User,
		Text:  msg.Text,
		Time:  msg.Time,
	})
	return msg, nil
}

// Messages returns the displayed sequence in receipt order.
func (s *Session) Messages() []history.Message {
	return s.ledger.Messages()
}

// CallState returns the current call state.
func (s *Session) CallState() call.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// InitiateCall acquires local media, generates an offer and rings the other
// participant. Media acquisition failure aborts locally; the peer is never
// notified of a call that produced no offer.
func (s *Session) InitiateCall(ctx context.Context) error {
	s.mu.Lock()
	if s.machine.State() != call.StateIdle {
		s.mu.Unlock()
		return newError("initiate call", ErrCallInProgress)
	}
	room := s.room
	s.mu.Unlock()
	if room == "" {
		return newError("initiate call", ErrNotJoined)
	}

	neg, err := s.acquire(ctx)
	if err != nil {
		return wrapError("initiate call", ErrMediaFailed, err.Error())
	}

	s.mu.Lock()
	if _, err := s.machine.Apply(call.EventInitiate); err != nil {
		// An offer arrived while we were acquiring media.
		s.mu.Unlock()
		neg.Close()
		return newError("initiate call", ErrCallInProgress)
	}
	s.neg = neg
	s.mu.Unlock()

	offer, err := neg.CreateOffer(ctx)
	if err != nil {
		s.endCallLocally(call.EventHangUp)
		return newError("create offer", err)
	}

	s.trans.Send(&relay.Message{
		Event:      relay.EventCallUser,
		UserToCall: room,
		SignalData: offer,
		From:       s.user,
	})
	return nil
}

// AcceptCall answers the pending incoming call. This is the point where the
// callee acquires media.
func (s *Session) AcceptCall(ctx context.Context) error {
	s.mu.Lock()
	if s.machine.State() != call.StateIncoming {
		s.mu.Unlock()
		return newError("accept call", ErrNoPendingOffer)
	}
	offer := s.pendingOffer
	from := s.pendingFrom
	s.mu.Unlock()

	neg, err := s.acquire(ctx)
	if err != nil {
		s.DeclineCall()
		return wrapError("accept call", ErrMediaFailed, err.Error())
	}

	s.mu.Lock()
	if _, err := s.machine.Apply(call.EventAccept); err != nil {
		s.mu.Unlock()
		neg.Close()
		return newError("accept call", ErrNoPendingOffer)
	}
	s.neg = neg
	s.pendingOffer = nil
	s.pendingFrom = ""
	s.mu.Unlock()

	answer, err := neg.AcceptOffer(ctx, offer)
	if err != nil {
		s.endCallLocally(call.EventHangUp)
		return newError("accept offer", err)
	}

	s.trans.Send(&relay.Message{
		Event:  relay.EventAcceptCall,
		Signal: answer,
		To:     from,
	})
	return nil
}

// DeclineCall dismisses a pending incoming call. The caller is not notified
// and simply times out.
func (s *Session) DeclineCall() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.State() != call.StateIncoming {
		return
	}
	s.machine.Apply(call.EventDecline)
	s.machine.Apply(call.EventReset)
	s.pendingOffer = nil
	s.pendingFrom = ""
}

// HangUp ends the current call, releasing local media and telling the peer.
// It is idempotent and safe after the peer has already disconnected.
func (s *Session) HangUp() {
	was := s.endCallLocally(call.EventHangUp)
	if was == call.StateOutgoing || was == call.StateConnected {
		s.trans.Send(&relay.Message{Event: relay.EventEndCall})
	}
}

// Close tears the session down: any call ends, media is released, and the
// connection closes.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.trans != nil {
			s.HangUp()
			s.trans.Close()
		}
	})
}

func (s *Session) acquire(ctx context.Context) (Negotiator, error) {
	if s.negotiate == nil {
		return nil, ErrMediaFailed
	}
	return s.negotiate(ctx)
}

// endCallLocally applies a teardown event, releases media exactly once and
// re-arms the machine for a fresh call. It returns the state the call was
// in before teardown; StateIdle means there was nothing to end.
func (s *Session) endCallLocally(event call.Event) call.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.machine.State()
	if state == call.StateIdle {
		return state
	}

	if state == call.StateIncoming && event == call.EventHangUp {
		event = call.EventDecline
	}

	s.machine.Apply(event)
	if s.neg != nil {
		s.neg.Close()
		s.neg = nil
	}
	s.pendingOffer = nil
	s.pendingFrom = ""
	s.machine.Apply(call.EventReset)

	return state
}

// run is the session's event loop: every server event funnels through here
// into the ledger, the call machine and the callbacks.
func (s *Session) run() {
	for msg := range s.trans.Incoming() {
		s.handle(msg)
	}

	// Transport gone: release media no matter what the signaling channel
	// was doing.
	if s.endCallLocally(call.EventPeerEnded) != call.StateIdle {
		s.fireCallEnded()
	}
}

func (s *Session) handle(msg *relay.Message) {
	switch msg.Event {
	case relay.EventRoomJoined:
		select {
		case s.joined <- msg.Room:
		default:
		}

	case relay.EventReceiveMessage:
		m := history.Message{User: msg.User, Text: msg.Text, Time: msg.Time}
		if s.ledger.Add(m) {
			s.fireMessage(m)
		}

	case relay.EventHey:
		s.mu.Lock()
		if _, err := s.machine.Apply(call.EventOfferReceived); err != nil {
			s.mu.Unlock()
			s.log.Warn("dropping offer", "state", s.CallState().String(), "error", err)
			return
		}
		s.pendingOffer = msg.Signal
		s.pendingFrom = msg.From
		s.mu.Unlock()

		if s.callbacks.OnIncomingCall != nil {
			s.callbacks.OnIncomingCall(msg.From)
		}

	case relay.EventCallAccepted:
		s.mu.Lock()
		if _, err := s.machine.Apply(call.EventAnswerReceived); err != nil {
			s.mu.Unlock()
			s.log.Warn("dropping answer", "error", err)
			return
		}
		neg := s.neg
		s.mu.Unlock()

		if neg != nil {
			if err := neg.ApplyAnswer(msg.Signal); err != nil {
				s.log.Warn("failed to apply answer", "error", err)
				s.HangUp()
				return
			}
		}
		if s.callbacks.OnCallAccepted != nil {
			s.callbacks.OnCallAccepted()
		}

	case relay.EventSignal:
		s.mu.Lock()
		neg := s.neg
		s.mu.Unlock()
		if neg == nil {
			s.log.Warn("dropping signal outside a call")
			return
		}
		if err := neg.AddCandidate(msg.Signal); err != nil {
			s.log.Warn("failed to apply candidate", "error", err)
		}

	case relay.EventCallEnded:
		if s.endCallLocally(call.EventPeerEnded) != call.StateIdle {
			s.fireCallEnded()
		}

	case relay.EventError:
		if msg.Reason == relay.ReasonNotSaved {
			m := history.Message{User: msg.User, Text: msg.Text, Time: msg.Time}
			s.ledger.Remove(m)
			if s.callbacks.OnSendRejected != nil {
				s.callbacks.OnSendRejected(m)
			}
			return
		}
		if msg.Reason == relay.ReasonRoomBusy {
			// Our offer was rejected; no call ever existed on the
			// server, so tear down quietly.
			s.endCallLocally(call.EventHangUp)
		}
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(msg.Reason)
		}

	default:
		s.log.Debug("ignoring unknown event", "event", msg.Event)
	}
}

func (s *Session) fireMessage(msg history.Message) {
	if s.callbacks.OnMessage != nil {
		s.callbacks.OnMessage(msg)
	}
}

func (s *Session) fireCallEnded() {
	if s.callbacks.OnCallEnded != nil {
		s.callbacks.OnCallEnded()
	}
}
