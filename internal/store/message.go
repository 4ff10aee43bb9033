package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const messagePrefix = "message:"

// Message is a stored chat message document.
type Message struct {
	ID        string    `json:"_id"`
	Chat      string    `json:"chat"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageStore persists messages under "message:{chatID}:{timestamp}:{uuid}".
// The timestamp is zero-padded to 19 digits so lexicographic key order equals
// chronological order, and the UUID disambiguates two messages landing on the
// same nanosecond.
type MessageStore struct {
	db       *badger.DB
	log      *slog.Logger
	pageSize int
}

func messageKey(m Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", messagePrefix, m.Chat, m.CreatedAt.UnixNano(), m.ID))
}

// Append stores a new message in a chat. Membership checks belong to the
// caller; the store only writes.
func (s *MessageStore) Append(chatID, senderID, content string) (Message, error) {
	msg := Message{
		ID:        uuid.New().String(),
		Chat:      chatID,
		Sender:    senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	data, err := marshalDoc(msg)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), data)
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// List returns one page of a chat's messages, newest first. A nil cursor
// starts from the newest message; the returned cursor resumes the scan and is
// nil once the history is exhausted.
func (s *MessageStore) List(chatID string, cursor *string) ([]Message, *string, error) {
	var raw [][]byte
	var lastKey string

	prefixStr := messagePrefix + chatID + ":"
	prefix := []byte(prefixStr)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past every possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		// A cursor points at the last message of the previous page.
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if s.pageSize > 0 && len(raw) == s.pageSize {
				return nil
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(val []byte) error {
				raw = append(raw, append([]byte(nil), val...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		lastKey = ""
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]Message, 0, len(raw))
	for _, data := range raw {
		var msg Message
		if err := unmarshalDoc(data, &msg); err != nil {
			return nil, nil, err
		}
		messages = append(messages, msg)
	}

	var next *string
	if lastKey != "" {
		next = &lastKey
	}

	if next != nil {
		s.log.Debug("message page truncated", "chat", chatID, "page", len(messages))
	}
	return messages, next, nil
}
