// Package rtc implements call negotiation on top of pion. The signaling
// payloads it produces are plain {type, sdp} descriptors, interchangeable
// with what the platform's browser clients emit.
package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/Lanchu14/project-realtime/internal/config"
	"github.com/Lanchu14/project-realtime/internal/session"
)

// Negotiator owns one peer connection for the duration of a call.
type Negotiator struct {
	pc *pion.PeerConnection

	closeOnce sync.Once
	closeErr  error
}

// Factory builds Negotiators bound to the client configuration.
func Factory(cfg *config.Client) session.NegotiatorFactory {
	return func(ctx context.Context) (session.Negotiator, error) {
		return New(cfg)
	}
}

// New creates a peer connection with the configured ICE servers and
// receive-only audio and video transceivers. The browser side attaches its
// camera and microphone tracks; this side plays them back.
func New(cfg *config.Client) (*Negotiator, error) {
	iceServers := []pion.ICEServer{{URLs: cfg.GetSTUNServers()}}

	if turnServers := cfg.GetTURNServers(); turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
		_, err := pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
			Direction: pion.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}

	return &Negotiator{pc: pc}, nil
}

// OnTrack registers a handler for the peer's incoming media tracks.
func (n *Negotiator) OnTrack(handler func(*pion.TrackRemote, *pion.RTPReceiver)) {
	n.pc.OnTrack(handler)
}

// OnConnectionStateChange registers a handler for transport state changes.
func (n *Negotiator) OnConnectionStateChange(handler func(pion.PeerConnectionState)) {
	n.pc.OnConnectionStateChange(handler)
}

// CreateOffer produces a complete offer descriptor. Gathering runs to
// completion before the descriptor is returned, matching the single-shot
// (non-trickle) exchange the browser peer uses.
func (n *Negotiator) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}

	gathered := pion.GatheringCompletePromise(n.pc)
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return json.Marshal(n.pc.LocalDescription())
}

// AcceptOffer applies the caller's offer and produces the bound answer.
func (n *Negotiator) AcceptOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error) {
	var remote pion.SessionDescription
	if err := json.Unmarshal(offer, &remote); err != nil {
		return nil, fmt.Errorf("parse offer: %w", err)
	}

	if err := n.pc.SetRemoteDescription(remote); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gathered := pion.GatheringCompletePromise(n.pc)
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return json.Marshal(n.pc.LocalDescription())
}

// ApplyAnswer completes negotiation for an outgoing call.
func (n *Negotiator) ApplyAnswer(answer json.RawMessage) error {
	var remote pion.SessionDescription
	if err := json.Unmarshal(answer, &remote); err != nil {
		return fmt.Errorf("parse answer: %w", err)
	}

	if err := n.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// AddCandidate applies an incremental ICE candidate from the peer.
func (n *Negotiator) AddCandidate(candidate json.RawMessage) error {
	var ice pion.ICECandidateInit
	if err := json.Unmarshal(candidate, &ice); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}

	if err := n.pc.AddICECandidate(ice); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

// Close releases the peer connection and with it all media resources. Safe
// to call more than once.
func (n *Negotiator) Close() error {
	n.closeOnce.Do(func() {
		n.closeErr = n.pc.Close()
	})
	return n.closeErr
}
