package runtime

import (
	"chat-hub/domain/event"
	"context"
	"sync"
)

// recordingSink stands for a live connection in tests.
type recordingSink struct {
	id     string
	userID string
	err    error

	mu     sync.Mutex
	events []event.Event
}

func newRecordingSink(id, userID string) *recordingSink {
	return &recordingSink{id: id, userID: userID}
}

func (s *recordingSink) ID() string     { return s.id }
func (s *recordingSink) UserID() string { return s.userID }

func (s *recordingSink) Consume(_ context.Context, e event.Event) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Received() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}
