// Package history implements the bounded event log that is replayed to newly
// joined clients. Entries are stored as opaque serialized payloads in append
// order; once the configured limit is reached the oldest entries are evicted.
package history

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// DefaultLimit is the retention bound applied when no explicit limit is configured.
const DefaultLimit = 100

const keyPrefix = "hist:"

// Log is the append/replay contract consumed by the chat room. Append failures
// are recoverable for callers: an event that could not be recorded is still
// broadcast live, it just won't show up in later replays.
type Log interface {
	Append(payload []byte) error
	ReadAll() ([][]byte, error)
}

// BadgerLog persists the event log in BadgerDB. Keys are zero-padded sequence
// numbers so lexicographic iteration order is append order, and the sequence
// window (oldest..newest) is tracked in memory to keep trimming cheap.
type BadgerLog struct {
	db    *badger.DB
	log   *slog.Logger
	limit int

	mu     sync.Mutex
	oldest uint64
	newest uint64
	count  int
}

// NewBadgerLog wraps an open BadgerDB handle. The caller owns the handle and
// is responsible for closing it. Any entries already present from a previous
// run are recovered and count against the limit.
func NewBadgerLog(db *badger.DB, log *slog.Logger, limit int) (*BadgerLog, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	l := &BadgerLog{db: db, log: log, limit: limit}
	if err := l.recoverWindow(); err != nil {
		return nil, fmt.Errorf("recovering history window: %w", err)
	}
	return l, nil
}

// recoverWindow scans the existing keys to find the oldest and newest
// sequence numbers. Entries are contiguous because eviction only ever removes
// from the oldest end.
func (l *BadgerLog) recoverWindow() error {
	return l.db.View(func(txn *badger.Txn) error {
		prefix := []byte(keyPrefix)

		forward := txn.NewIterator(badger.DefaultIteratorOptions)
		defer forward.Close()
		forward.Seek(prefix)
		if !forward.ValidForPrefix(prefix) {
			return nil
		}
		oldest, err := parseSeq(forward.Item().Key())
		if err != nil {
			return err
		}

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		backward := txn.NewIterator(options)
		defer backward.Close()
		backward.Seek(append(prefix, []byte("9999999999999999999")...))
		if !backward.ValidForPrefix(prefix) {
			return nil
		}
		newest, err := parseSeq(backward.Item().Key())
		if err != nil {
			return err
		}

		l.oldest = oldest
		l.newest = newest
		l.count = int(newest - oldest + 1)
		return nil
	})
}

// Append stores payload as the newest entry and evicts the oldest entries
// until the log holds at most the configured limit.
func (l *BadgerLog) Append(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.newest + 1
	err := l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(seqKey(seq), payload); err != nil {
			return err
		}
		if l.count+1 > l.limit {
			for drop := l.oldest; drop+uint64(l.limit) <= seq; drop++ {
				if err := txn.Delete(seqKey(drop)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if l.count == 0 {
		l.oldest = seq
	}
	l.newest = seq
	l.count++
	if l.count > l.limit {
		l.log.Debug("history limit reached, evicted oldest entries",
			"limit", l.limit, "evicted", l.count-l.limit)
		l.oldest = seq - uint64(l.limit) + 1
		l.count = l.limit
	}
	return nil
}

// ReadAll returns every stored payload, oldest first.
func (l *BadgerLog) ReadAll() ([][]byte, error) {
	var payloads [][]byte
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			payloads = append(payloads, value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payloads, nil
}

// Len reports how many entries are currently retained.
func (l *BadgerLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%019d", keyPrefix, seq))
}

func parseSeq(key []byte) (uint64, error) {
	seq, err := strconv.ParseUint(string(key[len(keyPrefix):]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed history key %q: %w", key, err)
	}
	return seq, nil
}
