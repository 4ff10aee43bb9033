// Package store persists users, chats, and messages as JSON documents in an
// embedded BadgerDB. Keys are namespaced per collection; message keys embed a
// zero-padded timestamp so a prefix scan yields chronological order.
package store

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrEmailExists = errors.New("email already registered")
	ErrUnknownUser = errors.New("unknown user")
	ErrNotInChat   = errors.New("sender is not a chat participant")
)

// Stores bundles the per-collection stores sharing one Badger instance.
type Stores struct {
	Users    *UserStore
	Chats    *ChatStore
	Messages *MessageStore
}

// Open opens the database at dir and returns the collection stores.
// The caller owns the returned DB and must close it on shutdown.
func Open(dir string, log *slog.Logger, messagePageSize int) (*badger.DB, *Stores, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, nil, fmt.Errorf("opening document store: %w", err)
	}
	return db, NewStores(db, log, messagePageSize), nil
}

// NewStores wires the collection stores onto an already open DB. Tests use
// this directly with a temp-dir database.
func NewStores(db *badger.DB, log *slog.Logger, messagePageSize int) *Stores {
	if log == nil {
		log = slog.Default()
	}
	return &Stores{
		Users:    &UserStore{db: db, log: log},
		Chats:    &ChatStore{db: db, log: log},
		Messages: &MessageStore{db: db, log: log, pageSize: messagePageSize},
	}
}

// getJSON reads one document into out, mapping badger's missing-key error to
// ErrNotFound.
func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return unmarshalDoc(val, out)
	})
}
