package repositories

import (
	"chat-hub/contract"
	"chat-hub/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds how often a read-modify-write transaction is
// replayed after badger reports a conflicting concurrent commit.
const maxConflictRetries = 5

const keySeparator = ":"

var _ contract.IConversationStore = (*ConversationStore)(nil)

// ConversationStore persists users, conversations, participants and messages
// in BadgerDB.
//
// Key layout:
//
//	user:{userID}                          -> diskUser
//	conv:{conversationID}                  -> diskConversation
//	part:{conversationID}:{userID}         -> diskParticipant
//	upart:{userID}:{conversationID}        -> (empty) reverse index
//	direct:{userA}:{userB}                 -> conversationID, userA < userB
//
// User ids never contain the ':' separator, CreateUser and the conversation
// creators reject them.
//	msg:{messageID}                        -> diskMessage
//	cmsg:{conversationID}:{sentAt}:{msgID} -> messageID, sentAt padded to 19 digits
type ConversationStore struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewConversationStore(db *badger.DB, log *slog.Logger, limitMessages *int) *ConversationStore {
	return &ConversationStore{db: db, log: log, limitMessages: limitMessages}
}

func (s *ConversationStore) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

// update replays fn when another transaction committed a conflicting write
// in between, which is how concurrent edits of one message serialize.
func (s *ConversationStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("Transaction conflict, retrying", "attempt", attempt+1)
	}
	return fmt.Errorf("transaction kept conflicting: %w", err)
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return decodeItem(item, out)
}

func decodeItem(item *badger.Item, out any) error {
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, in any) error {
	bytes, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return txn.Set(key, bytes)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}
