package repositories

import (
	"chat-hub/domain"
	"chat-hub/errors"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type diskUser struct {
	ID             string     `json:"id"`
	DisplayName    string     `json:"display_name"`
	ProfilePicture string     `json:"profile_picture,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
}

func userKey(userID string) []byte {
	return []byte("user:" + userID)
}

// checkUserIDs guards the key layout: user ids are key components joined
// by ':', so an id containing one would alias another pair or prefix.
func checkUserIDs(userIDs ...string) error {
	for _, id := range userIDs {
		if id == "" || strings.Contains(id, keySeparator) {
			return fmt.Errorf("%w: %q", errors.ErrInvalidUserID, id)
		}
	}
	return nil
}

// CreateUser persists a new user. Credentials live elsewhere, this only
// records the identity the hub needs.
func (s *ConversationStore) CreateUser(ctx context.Context, user domain.User) error {
	if err := checkUserIDs(user.ID); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		found, err := exists(txn, userKey(user.ID))
		if err != nil {
			return err
		}
		if found {
			return errors.ErrUserExists
		}
		return setJSON(txn, userKey(user.ID), fromUser(user))
	})
}

func (s *ConversationStore) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		user, err = loadUser(txn, userID)
		return err
	})
	return user, err
}

// TouchLastSeen sets the last-seen timestamp. Unknown users are a no-op so
// that a disconnect racing a user deletion never fails.
func (s *ConversationStore) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var du diskUser
		if err := getJSON(txn, userKey(userID), &du); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		at = at.UTC()
		du.LastSeenAt = &at
		return setJSON(txn, userKey(userID), du)
	})
}

func loadUser(txn *badger.Txn, userID string) (domain.User, error) {
	var du diskUser
	if err := getJSON(txn, userKey(userID), &du); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.User{}, errors.ErrNotFound
		}
		return domain.User{}, err
	}
	return toUser(du), nil
}

func fromUser(u domain.User) diskUser {
	return diskUser{
		ID:             u.ID,
		DisplayName:    u.DisplayName,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      u.CreatedAt.UTC(),
		LastSeenAt:     u.LastSeenAt,
	}
}

func toUser(du diskUser) domain.User {
	return domain.User{
		ID:             du.ID,
		DisplayName:    du.DisplayName,
		ProfilePicture: du.ProfilePicture,
		CreatedAt:      du.CreatedAt,
		LastSeenAt:     du.LastSeenAt,
	}
}
