package relay

import "encoding/json"

// Message is the envelope for every websocket event exchanged between a
// session client and the server. Fields not used by a given event are
// omitted on the wire.
type Message struct {
	Event      string          `json:"event"`
	Room       string          `json:"room,omitempty"`
	User       string          `json:"user,omitempty"`
	Text       string          `json:"text,omitempty"`
	Time       string          `json:"time,omitempty"`
	UserToCall string          `json:"userToCall,omitempty"`
	SignalData json.RawMessage `json:"signalData,omitempty"`
	From       string          `json:"from,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
	To         string          `json:"to,omitempty"`
	Reason     string          `json:"reason,omitempty"`

	// client is the connection that sent the message.
	// It's used internally by the Hub and never serialized.
	client *Client
}

// Event name constants.
const (
	// Client to server.
	EventJoinRoom    = "joinRoom"
	EventSendMessage = "sendMessage"
	EventCallUser    = "callUser"
	EventAcceptCall  = "acceptCall"
	EventSignal      = "signal"
	EventEndCall     = "endCall"

	// Server to client.
	EventRoomJoined     = "roomJoined"
	EventReceiveMessage = "receiveMessage"
	EventHey            = "hey"
	EventCallAccepted   = "callAccepted"
	EventCallEnded      = "callEnded"
	EventError          = "error"
)

// Error reasons sent back to clients.
const (
	ReasonNotSaved   = "message not saved"
	ReasonRoomBusy   = "room is busy"
	ReasonNotInRoom  = "you must join a room first"
	ReasonBadMessage = "invalid message"
)
