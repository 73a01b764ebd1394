package relay

import "log/slog"

// Hub is the central brain of the session layer. It owns every room and all
// membership state, and it runs the chat relay and the signaling broker over
// that shared membership.
type Hub struct {
	// Rooms maps booking ids to Room instances.
	Rooms map[string]*Room

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries every parsed client event into the hub loop.
	Inbound chan *Message

	log *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Message),
		log:        slog.With("component", "hub"),
	}
}

// Run starts the hub's main processing loop. This is the single goroutine
// that safely manages all state (rooms, membership, outstanding calls);
// handlers stay short and never block on another handler.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			// The client is not in a room yet; it has to send joinRoom
			// before anything else happens.
			h.log.Info("client registered", "conn", client.ID, "user", client.Name)

		case client := <-h.Unregister:
			h.removeClient(client)

		case msg := <-h.Inbound:
			h.dispatch(msg)
		}
	}
}

func (h *Hub) dispatch(msg *Message) {
	switch msg.Event {
	case EventJoinRoom:
		h.joinRoom(msg.client, msg.Room)

	case EventSendMessage:
		h.relayChat(msg)

	case EventCallUser:
		h.initiateCall(msg)

	case EventAcceptCall:
		h.acceptCall(msg)

	case EventSignal:
		h.relaySignal(msg)

	case EventEndCall:
		h.endCall(msg.client)

	default:
		h.log.Warn("unknown event", "event", msg.Event, "conn", msg.client.ID)
	}
}

// joinRoom adds the client to the room's membership and acknowledges it.
// Re-joining the same room is a no-op (still acknowledged); joining a
// different room implicitly leaves the prior one, so a connection belongs to
// at most one room at a time.
func (h *Hub) joinRoom(c *Client, roomID string) {
	if roomID == "" {
		c.reply(&Message{Event: EventError, Reason: ReasonBadMessage})
		return
	}

	if c.RoomID == roomID {
		c.reply(&Message{Event: EventRoomJoined, Room: roomID})
		return
	}

	if c.RoomID != "" {
		h.leaveRoom(c)
	}

	room, ok := h.Rooms[roomID]
	if !ok {
		room = newRoom(roomID)
		h.Rooms[roomID] = room
		h.log.Info("room created", "room", roomID)
	}

	room.Members[c] = true
	c.RoomID = roomID

	h.log.Info("client joined room", "room", roomID, "conn", c.ID, "user", c.Name)
	c.reply(&Message{Event: EventRoomJoined, Room: roomID})
}

// relayChat broadcasts a durably appended chat message to every other room
// member. The append already happened on the sender's read goroutine.
func (h *Hub) relayChat(msg *Message) {
	room := h.roomOf(msg.client)
	if room == nil || room.ID != msg.Room {
		msg.client.reply(&Message{Event: EventError, Reason: ReasonNotInRoom})
		return
	}

	out := &Message{
		Event: EventReceiveMessage,
		User:  msg.User,
		Text:  msg.Text,
		Time:  msg.Time,
	}

	// The sender renders its own message optimistically at submit time and
	// is excluded here.
	for _, member := range room.others(msg.client) {
		h.deliver(member, out)
	}
}

// initiateCall starts the room's single outstanding call, or rejects the
// attempt with a busy error if one is already in progress.
func (h *Hub) initiateCall(msg *Message) {
	room := h.roomOf(msg.client)
	if room == nil {
		msg.client.reply(&Message{Event: EventError, Reason: ReasonNotInRoom})
		return
	}

	if msg.UserToCall != room.ID {
		h.log.Warn("call for a different room dropped", "room", room.ID, "target", msg.UserToCall)
		return
	}

	if room.phase != callIdle {
		h.log.Info("rejecting call, room busy", "room", room.ID, "phase", room.phase.String())
		msg.client.reply(&Message{Event: EventError, Reason: ReasonRoomBusy})
		return
	}

	room.phase = callRinging
	room.caller = msg.client

	out := &Message{
		Event:  EventHey,
		From:   msg.From,
		Signal: msg.SignalData,
	}
	for _, member := range room.others(msg.client) {
		h.deliver(member, out)
	}
}

// acceptCall completes negotiation: the callee's answer is relayed back to
// the caller. Answers arriving with no outstanding offer are dropped.
func (h *Hub) acceptCall(msg *Message) {
	room := h.roomOf(msg.client)
	if room == nil {
		msg.client.reply(&Message{Event: EventError, Reason: ReasonNotInRoom})
		return
	}

	if room.phase != callRinging || msg.client == room.caller {
		h.log.Warn("dropping answer without outstanding offer", "room", room.ID, "phase", room.phase.String())
		return
	}

	room.phase = callConnected
	room.callee = msg.client

	h.deliver(room.caller, &Message{Event: EventCallAccepted, Signal: msg.Signal})
}

// relaySignal forwards an opaque negotiation payload (ICE candidate or any
// incremental signaling data) to the other call participant. The broker
// never parses the payload.
func (h *Hub) relaySignal(msg *Message) {
	room := h.roomOf(msg.client)
	if room == nil {
		msg.client.reply(&Message{Event: EventError, Reason: ReasonNotInRoom})
		return
	}

	if room.phase == callIdle {
		h.log.Warn("dropping signal outside a call", "room", room.ID)
		return
	}

	peer := room.callPeer(msg.client)
	if peer == nil {
		h.log.Warn("no peer to relay signal to", "room", room.ID)
		return
	}

	h.deliver(peer, &Message{Event: EventSignal, Signal: msg.Signal, From: msg.client.Name})
}

// endCall tears down the room's outstanding call and tells the peer. Safe to
// call when no call is in progress.
func (h *Hub) endCall(c *Client) {
	room := h.roomOf(c)
	if room == nil || room.phase == callIdle {
		return
	}

	peer := room.callPeer(c)
	room.resetCall()

	if peer != nil {
		h.deliver(peer, &Message{Event: EventCallEnded})
	}
}

// removeClient handles a transport-level disconnect: membership cleanup and,
// if the client was in a call, an implicit hangup towards the peer.
func (h *Hub) removeClient(c *Client) {
	h.log.Info("client unregistered", "conn", c.ID, "user", c.Name)

	h.leaveRoom(c)
	close(c.Send)
}

// leaveRoom removes the client from its current room, ending any call it
// participates in and deleting the room once empty.
func (h *Hub) leaveRoom(c *Client) {
	room := h.roomOf(c)
	if room == nil {
		c.RoomID = ""
		return
	}

	if room.inCall(c) {
		peer := room.callPeer(c)
		room.resetCall()
		if peer != nil && peer != c {
			h.deliver(peer, &Message{Event: EventCallEnded})
		}
	}

	delete(room.Members, c)
	c.RoomID = ""

	if len(room.Members) == 0 {
		delete(h.Rooms, room.ID)
		h.log.Info("room deleted", "room", room.ID)
	}
}

// roomOf resolves the client's current room, nil when not joined.
func (h *Hub) roomOf(c *Client) *Room {
	if c.RoomID == "" {
		return nil
	}
	return h.Rooms[c.RoomID]
}

// deliver queues msg for one member. A member with a full queue just misses
// the live broadcast; chat messages remain in durable history and calls
// recover through their own teardown paths.
func (h *Hub) deliver(c *Client, msg *Message) {
	select {
	case c.Send <- msg:
	default:
		h.log.Warn("dropping delivery, queue full", "conn", c.ID, "user", c.Name)
	}
}
