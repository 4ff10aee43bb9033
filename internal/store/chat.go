package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	chatPrefix       = "chat:"
	chatMemberPrefix = "chatuser:"
)

// Chat is a stored chat document with its participant user IDs.
type Chat struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"isGroup"`
	Users     []string  `json:"users"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatStore persists chat documents under "chat:{id}". Membership is indexed
// as "chatuser:{userID}:{chatID}" so listing a user's chats is a prefix scan
// instead of a full collection walk.
type ChatStore struct {
	db  *badger.DB
	log *slog.Logger
}

func memberKey(userID, chatID string) []byte {
	return []byte(chatMemberPrefix + userID + ":" + chatID)
}

// Create stores a new chat. Every participant must already exist; the first
// unknown ID is reported wrapped in ErrUnknownUser.
func (s *ChatStore) Create(name string, userIDs []string, isGroup bool) (Chat, error) {
	chat := Chat{
		ID:        uuid.New().String(),
		Name:      name,
		IsGroup:   isGroup,
		Users:     lo.Uniq(userIDs),
		CreatedAt: time.Now().UTC(),
	}

	data, err := marshalDoc(chat)
	if err != nil {
		return Chat{}, fmt.Errorf("marshal chat: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, id := range chat.Users {
			if _, err := txn.Get([]byte(userPrefix + id)); err != nil {
				return fmt.Errorf("%w: %s", ErrUnknownUser, id)
			}
		}
		if err := txn.Set([]byte(chatPrefix+chat.ID), data); err != nil {
			return err
		}
		for _, id := range chat.Users {
			if err := txn.Set(memberKey(id, chat.ID), []byte(chat.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Chat{}, err
	}

	s.log.Info("chat created", "id", chat.ID, "users", len(chat.Users))
	return chat, nil
}

// Get returns the chat with the given ID, or ErrNotFound.
func (s *ChatStore) Get(id string) (Chat, error) {
	var chat Chat
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(chatPrefix+id), &chat)
	})
	if err != nil {
		return Chat{}, err
	}
	return chat, nil
}

// ListForUser returns every chat the user participates in.
func (s *ChatStore) ListForUser(userID string) ([]Chat, error) {
	var chats []Chat

	err := s.db.View(func(txn *badger.Txn) error {
		var chatIDs []string
		opts := badger.DefaultIteratorOptions
		prefix := []byte(chatMemberPrefix + userID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				chatIDs = append(chatIDs, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}

		for _, id := range chatIDs {
			var chat Chat
			if err := getJSON(txn, []byte(chatPrefix+id), &chat); err != nil {
				return err
			}
			chats = append(chats, chat)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chats, nil
}

// HasMember reports whether userID participates in the chat.
func (c Chat) HasMember(userID string) bool {
	return lo.Contains(c.Users, userID)
}
