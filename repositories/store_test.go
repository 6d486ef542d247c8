package repositories

import (
	"chat-hub/domain"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, limitMessages *int) *ConversationStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewConversationStore(db, logs.GetLoggerFromLevel(slog.LevelDebug), limitMessages)
}

func seedUsers(t *testing.T, store *ConversationStore, users ...domain.User) {
	t.Helper()
	for _, u := range users {
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
		require.NoError(t, store.CreateUser(context.Background(), u))
	}
}
