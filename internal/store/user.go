package store

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	userPrefix      = "user:"
	userEmailPrefix = "useremail:"
)

// User is a stored user document. The _id field name matches what clients
// already exchange in event payloads.
type User struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserStore persists user documents under "user:{id}" with a secondary
// "useremail:{email}" index enforcing email uniqueness.
type UserStore struct {
	db  *badger.DB
	log *slog.Logger
}

// Create registers a new user. A duplicate email yields ErrEmailExists.
func (s *UserStore) Create(name, email string) (User, error) {
	user := User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	data, err := marshalDoc(user)
	if err != nil {
		return User{}, fmt.Errorf("marshal user: %w", err)
	}

	emailKey := []byte(userEmailPrefix + strings.ToLower(email))
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey); err == nil {
			return ErrEmailExists
		}
		if err := txn.Set([]byte(userPrefix+user.ID), data); err != nil {
			return err
		}
		return txn.Set(emailKey, []byte(user.ID))
	})
	if err != nil {
		return User{}, err
	}

	s.log.Info("user created", "id", user.ID)
	return user, nil
}

// Get returns the user with the given ID, or ErrNotFound.
func (s *UserStore) Get(id string) (User, error) {
	var user User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, []byte(userPrefix+id), &user)
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Exists reports whether all given user IDs are stored, returning the first
// unknown ID wrapped in ErrUnknownUser.
func (s *UserStore) Exists(ids []string) error {
	return s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if _, err := txn.Get([]byte(userPrefix + id)); err != nil {
				return fmt.Errorf("%w: %s", ErrUnknownUser, id)
			}
		}
		return nil
	})
}

// List returns all users whose name or email contains search
// (case-insensitive). An empty search returns everyone.
func (s *UserStore) List(search string) ([]User, error) {
	search = strings.ToLower(search)
	var users []User

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(userPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var user User
			err := it.Item().Value(func(val []byte) error {
				return unmarshalDoc(val, &user)
			})
			if err != nil {
				return err
			}
			if search == "" ||
				strings.Contains(strings.ToLower(user.Name), search) ||
				strings.Contains(strings.ToLower(user.Email), search) {
				users = append(users, user)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}
