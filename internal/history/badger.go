package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const seqBandwidth = 128

// BadgerStore persists chat history in a badger key-value store. Keys are
// chat:<bookingID>:<seq> with a zero-padded sequence number so that iterating
// the prefix in key order yields append order. Values are msgpack-encoded.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger

	mu   sync.Mutex
	seqs map[string]*badger.Sequence
}

// Open opens (or creates) a badger-backed store at path. An empty path opens
// an in-memory store, which is what the tests use.
func Open(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	return &BadgerStore{
		db:   db,
		log:  slog.With("component", "history"),
		seqs: make(map[string]*badger.Sequence),
	}, nil
}

// Append writes msg as the next entry of the booking's log.
func (s *BadgerStore) Append(ctx context.Context, bookingID string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	seq, err := s.sequence(bookingID)
	if err != nil {
		return err
	}

	n, err := seq.Next()
	if err != nil {
		return fmt.Errorf("next sequence for booking %s: %w", bookingID, err)
	}

	value, err := msgpack.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	key := messageKey(bookingID, n)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("append message for booking %s: %w", bookingID, err)
	}

	return nil
}

// ReadAll returns the booking's full log in append order.
func (s *BadgerStore) ReadAll(ctx context.Context, bookingID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var messages []Message
	prefix := []byte(fmt.Sprintf("chat:%s:", bookingID))

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var msg Message
				if err := msgpack.Unmarshal(value, &msg); err != nil {
					return fmt.Errorf("decode message: %w", err)
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read history for booking %s: %w", bookingID, err)
	}

	return messages, nil
}

// Close releases the allocated sequences and closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	for _, seq := range s.seqs {
		if err := seq.Release(); err != nil {
			s.log.Warn("failed to release sequence", "error", err)
		}
	}
	s.seqs = make(map[string]*badger.Sequence)
	s.mu.Unlock()

	return s.db.Close()
}

func (s *BadgerStore) sequence(bookingID string) (*badger.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq, ok := s.seqs[bookingID]; ok {
		return seq, nil
	}

	seq, err := s.db.GetSequence([]byte("seq:"+bookingID), seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("sequence for booking %s: %w", bookingID, err)
	}
	s.seqs[bookingID] = seq

	return seq, nil
}

// messageKey builds a key whose lexicographic order matches append order.
func messageKey(bookingID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("chat:%s:%020d", bookingID, seq))
}
