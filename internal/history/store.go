package history

import "context"

// Message is a single chat message as kept in durable history. Time is the
// ISO-8601 timestamp assigned by the sender at submission; two messages with
// the same (Time, User, Text) triple are the same logical message.
type Message struct {
	User string `json:"user" msgpack:"user"`
	Text string `json:"text" msgpack:"text"`
	Time string `json:"time" msgpack:"time"`
}

// Store is the append-only chat log, keyed by booking id. Messages come back
// from ReadAll in the order they were appended.
type Store interface {
	Append(ctx context.Context, bookingID string, msg Message) error
	ReadAll(ctx context.Context, bookingID string) ([]Message, error)
	Close() error
}
