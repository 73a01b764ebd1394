package session

import (
	"context"
	"encoding/json"
)

// Negotiator owns the local media and produces the opaque signaling payloads
// the broker relays. Creating one acquires media; Close releases it. The
// session never inspects the payloads it carries.
type Negotiator interface {
	// CreateOffer produces the offer descriptor for an outgoing call.
	CreateOffer(ctx context.Context) (json.RawMessage, error)

	// AcceptOffer applies a received offer and produces the answer bound
	// to it.
	AcceptOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)

	// ApplyAnswer completes an outgoing call's negotiation.
	ApplyAnswer(answer json.RawMessage) error

	// AddCandidate applies an incremental connectivity payload.
	AddCandidate(candidate json.RawMessage) error

	// Close releases local media and tears down the peer connection.
	// It must be safe to call more than once.
	Close() error
}

// NegotiatorFactory builds a Negotiator for a single call, acquiring local
// media in the process. A factory error means media acquisition failed and
// the call attempt aborts locally without notifying the peer.
type NegotiatorFactory func(ctx context.Context) (Negotiator, error)
