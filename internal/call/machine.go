// Package call models the lifecycle of a peer-to-peer call as a pure state
// machine. It performs no I/O; the session controller feeds transport events
// in and acts on the resulting transitions.
package call

import (
	"errors"
	"fmt"
)

// State is a participant's position in the call lifecycle.
type State int

const (
	// StateIdle means no call is in progress.
	StateIdle State = iota

	// StateOutgoing means we initiated a call and are waiting for an answer.
	StateOutgoing

	// StateIncoming means an offer arrived and we have not accepted yet.
	StateIncoming

	// StateConnected means offer and answer have both been applied.
	StateConnected

	// StateEnded is terminal for this call; Reset returns to StateIdle.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOutgoing:
		return "outgoing"
	case StateIncoming:
		return "incoming"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is an input to the machine.
type Event int

const (
	// EventInitiate starts an outgoing call.
	EventInitiate Event = iota

	// EventOfferReceived means the peer is calling us.
	EventOfferReceived

	// EventAccept accepts an incoming call.
	EventAccept

	// EventDecline declines an incoming call without answering.
	EventDecline

	// EventAnswerReceived completes an outgoing call's negotiation.
	EventAnswerReceived

	// EventPeerEnded means the peer hung up or disconnected.
	EventPeerEnded

	// EventHangUp is a local hangup.
	EventHangUp

	// EventReset arms the machine for a fresh call after one ended.
	EventReset
)

func (e Event) String() string {
	switch e {
	case EventInitiate:
		return "initiate"
	case EventOfferReceived:
		return "offerReceived"
	case EventAccept:
		return "accept"
	case EventDecline:
		return "decline"
	case EventAnswerReceived:
		return "answerReceived"
	case EventPeerEnded:
		return "peerEnded"
	case EventHangUp:
		return "hangUp"
	case EventReset:
		return "reset"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ErrInvalidTransition is returned when an event is not legal in the current
// state. The machine's state is unchanged in that case.
var ErrInvalidTransition = errors.New("invalid call transition")

// Machine tracks one participant's call state. The zero value is ready to
// use and starts in StateIdle. Machine is not safe for concurrent use; the
// session controller serializes access to it.
type Machine struct {
	state State
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Apply feeds an event into the machine and returns the resulting state.
// HangUp and PeerEnded are no-ops once the call has ended, so tearing a call
// down twice (explicit hangup racing a peer disconnect) is safe.
func (m *Machine) Apply(event Event) (State, error) {
	next, ok := transition(m.state, event)
	if !ok {
		return m.state, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, m.state)
	}

	m.state = next
	return m.state, nil
}

func transition(state State, event Event) (State, bool) {
	switch state {
	case StateIdle:
		switch event {
		case EventInitiate:
			return StateOutgoing, true
		case EventOfferReceived:
			return StateIncoming, true
		}

	case StateOutgoing:
		switch event {
		case EventAnswerReceived:
			return StateConnected, true
		case EventHangUp, EventPeerEnded:
			return StateEnded, true
		}

	case StateIncoming:
		switch event {
		case EventAccept:
			return StateConnected, true
		case EventDecline, EventPeerEnded:
			return StateEnded, true
		}

	case StateConnected:
		switch event {
		case EventHangUp, EventPeerEnded:
			return StateEnded, true
		}

	case StateEnded:
		switch event {
		case EventReset:
			return StateIdle, true
		case EventHangUp, EventPeerEnded:
			// Idempotent teardown.
			return StateEnded, true
		}
	}

	return state, false
}
