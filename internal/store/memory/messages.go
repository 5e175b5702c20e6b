package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/arkosms/smscd/internal/message"
)

// MessageStore is an in-memory message.Manager.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[string]*message.ShortMessage
}

func NewMessageStore() *MessageStore {
	return &MessageStore{messages: make(map[string]*message.ShortMessage)}
}

func (s *MessageStore) Submit(_ context.Context, m *message.ShortMessage) error {
	stored := copyMessage(m)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.messages[stored.ID] = stored
	s.mu.Unlock()
	m.ID = stored.ID
	return nil
}

func (s *MessageStore) Cancel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.Status != message.StatusPending {
		return message.ErrOriginalNotFound
	}
	m.Status = message.StatusCanceled
	return nil
}

// Replace chains a new message onto a pending original. The original is
// canceled, never mutated into the replacement, so the chain stays
// walkable in both directions.
func (s *MessageStore) Replace(_ context.Context, originalID string, replacement *message.ShortMessage) (*message.ShortMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orig, ok := s.messages[originalID]
	if !ok || orig.Status != message.StatusPending {
		return nil, message.ErrOriginalNotFound
	}
	stored := copyMessage(replacement)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.Status = message.StatusPending
	stored.Replaced = orig.ID
	orig.Status = message.StatusCanceled
	orig.ReplacedBy = stored.ID
	s.messages[stored.ID] = stored
	return copyMessage(stored), nil
}

func (s *MessageStore) SelectByID(_ context.Context, id string) (*message.ShortMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	return copyMessage(m), nil
}

func (s *MessageStore) PendingForUser(_ context.Context, name string) ([]*message.ShortMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*message.ShortMessage
	for _, m := range s.messages {
		if m.Recipient == name && m.Status == message.StatusPending {
			out = append(out, copyMessage(m))
		}
	}
	return out, nil
}

func (s *MessageStore) MarkExpired(_ context.Context, id string) error {
	return s.setStatus(id, message.StatusExpired)
}

func (s *MessageStore) MarkDelivered(_ context.Context, id string) error {
	return s.setStatus(id, message.StatusDelivered)
}

func (s *MessageStore) setStatus(id string, st message.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return message.ErrOriginalNotFound
	}
	m.Status = st
	return nil
}

func copyMessage(m *message.ShortMessage) *message.ShortMessage {
	out := *m
	out.Payload = append([]byte(nil), m.Payload...)
	return &out
}
