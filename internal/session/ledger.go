package session

import (
	"sync"

	"github.com/Lanchu14/project-realtime/internal/history"
)

// ledgerKey is the identity of a logical chat message. Two messages with the
// same (time, sender, body) triple are the same message, however they arrive.
type ledgerKey struct {
	time string
	user string
	text string
}

// Ledger is the client's ordered view of displayed messages. It merges the
// one-time history fetch with live broadcasts, suppressing duplicates, so
// the displayed sequence contains each logical message exactly once
// regardless of how the fetch and the broadcasts interleave.
type Ledger struct {
	mu   sync.Mutex
	seen map[ledgerKey]struct{}
	msgs []history.Message
}

func NewLedger() *Ledger {
	return &Ledger{seen: make(map[ledgerKey]struct{})}
}

// Add appends the message unless its identity triple is already present.
// It reports whether the message was new.
func (l *Ledger) Add(msg history.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey{time: msg.Time, user: msg.User, text: msg.Text}
	if _, ok := l.seen[key]; ok {
		return false
	}

	l.seen[key] = struct{}{}
	l.msgs = append(l.msgs, msg)
	return true
}

// Remove rolls back a message, used when the server rejects an optimistic
// send because the durable append failed.
func (l *Ledger) Remove(msg history.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey{time: msg.Time, user: msg.User, text: msg.Text}
	if _, ok := l.seen[key]; !ok {
		return
	}
	delete(l.seen, key)

	for i := len(l.msgs) - 1; i >= 0; i-- {
		m := l.msgs[i]
		if m.Time == msg.Time && m.User == msg.User && m.Text == msg.Text {
			l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
			return
		}
	}
}

// Messages returns a copy of the displayed sequence in receipt order.
func (l *Ledger) Messages() []history.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]history.Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}
