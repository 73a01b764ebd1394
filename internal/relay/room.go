package relay

import "github.com/samber/lo"

// callPhase is the broker's view of the single outstanding call a room may
// have. It is coarser than the per-participant machine on the client side:
// the broker only needs to know whether a new initiation must be rejected
// and who the relay target of a signaling payload is.
type callPhase int

const (
	callIdle callPhase = iota
	callRinging
	callConnected
)

func (p callPhase) String() string {
	switch p {
	case callIdle:
		return "idle"
	case callRinging:
		return "ringing"
	case callConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Room is the membership set for one booking. Created on first join,
// deleted when the last member leaves. Only the hub goroutine touches it.
type Room struct {
	// ID is the booking identifier supplied by the platform.
	ID string

	// Members holds every connection currently joined. Chat delivery is
	// unbounded; calls only ever involve two of them.
	Members map[*Client]bool

	phase  callPhase
	caller *Client
	callee *Client
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		Members: make(map[*Client]bool),
	}
}

// others returns every member except c, the broadcast targets for a message
// sent by c.
func (r *Room) others(c *Client) []*Client {
	return lo.Filter(lo.Keys(r.Members), func(member *Client, _ int) bool {
		return member != c
	})
}

// inCall reports whether c is a participant of the room's outstanding call.
func (r *Room) inCall(c *Client) bool {
	if r.phase == callIdle {
		return false
	}
	return c == r.caller || c == r.callee
}

// callPeer returns the other participant of the outstanding call, relative
// to c. While the call is still ringing the callee is unknown, so signaling
// from the caller goes to the first other member.
func (r *Room) callPeer(c *Client) *Client {
	if c != r.caller {
		return r.caller
	}
	if r.callee != nil {
		return r.callee
	}

	others := r.others(c)
	if len(others) == 0 {
		return nil
	}
	return others[0]
}

// resetCall clears the outstanding call so a fresh one can start.
func (r *Room) resetCall() {
	r.phase = callIdle
	r.caller = nil
	r.callee = nil
}
