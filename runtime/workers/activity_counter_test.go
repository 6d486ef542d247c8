package workers

import (
	"chat-hub/domain/event"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestActivityCounter_CountsByKind(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	counter := NewActivityCounter()

	// Given the counter is fed through the permanent fan-out
	fanout := NewEventFanout(logs.GetLoggerFromLevel(slog.LevelDebug), nil, time.Second, counter)

	// When events of two kinds go through
	fanout.Fanout(ctx, event.ReceiveMessage{})
	fanout.Fanout(ctx, event.ReceiveMessage{})
	fanout.Fanout(ctx, event.MessageDeleted{})

	// Then each kind is counted on its own
	req.Equal(uint64(2), counter.Get(event.KindReceiveMessage))
	req.Equal(uint64(1), counter.Get(event.KindMessageDeleted))
	req.Zero(counter.Get(event.KindMessageEdited))

	// And the snapshot is detached from the counter
	snapshot := counter.Snapshot()
	snapshot[event.KindReceiveMessage] = 99
	req.Equal(uint64(2), counter.Get(event.KindReceiveMessage))
}
