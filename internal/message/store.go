package message

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when a message ID does not exist in the store.
var ErrNotFound = errors.New("message not found")

// Store is the interface for message persistence backends.
//
// Bulk operations apply their update first and return the affected
// messages with the new status already set, so callers can broadcast
// from confirmed state.
type Store interface {
	// Create persists a new message.
	Create(ctx context.Context, msg *Message) error
	// Save persists changes to an existing message.
	Save(ctx context.Context, msg *Message) error
	// ByID returns the message with the given ID, or ErrNotFound.
	ByID(ctx context.Context, id string) (*Message, error)
	// Conversation returns all messages between a and b, in either
	// direction, ordered by creation time.
	Conversation(ctx context.Context, a, b string) ([]*Message, error)
	// Unseen returns all messages addressed to receiverID whose status
	// is not "seen".
	Unseen(ctx context.Context, receiverID string) ([]*Message, error)
	// MarkDelivered advances every "sent" message addressed to
	// receiverID to "delivered" and returns the affected messages.
	MarkDelivered(ctx context.Context, receiverID string) ([]*Message, error)
	// MarkSeen advances every not-"seen" message from senderID to
	// receiverID to "seen" and returns the affected messages.
	MarkSeen(ctx context.Context, senderID, receiverID string) ([]*Message, error)
}

// MemoryStore keeps all messages in memory. It is the default backend
// when no Redis address is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*Message
	order    []string
}

// NewMemoryStore creates an empty in-memory message store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]*Message),
	}
}

// Create persists a new message.
func (s *MemoryStore) Create(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.messages[msg.ID] = &cp
	s.order = append(s.order, msg.ID)
	return nil
}

// Save persists changes to an existing message.
func (s *MemoryStore) Save(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; !ok {
		return ErrNotFound
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	return nil
}

// ByID returns the message with the given ID, or ErrNotFound.
func (s *MemoryStore) ByID(ctx context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// Conversation returns all messages between a and b in creation order.
func (s *MemoryStore) Conversation(ctx context.Context, a, b string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Message
	for _, id := range s.order {
		m := s.messages[id]
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			cp := *m
			result = append(result, &cp)
		}
	}
	sortByCreation(result)
	return result, nil
}

// Unseen returns all messages addressed to receiverID not yet seen.
func (s *MemoryStore) Unseen(ctx context.Context, receiverID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Message
	for _, id := range s.order {
		m := s.messages[id]
		if m.ReceiverID == receiverID && m.Status != StatusSeen {
			cp := *m
			result = append(result, &cp)
		}
	}
	return result, nil
}

// MarkDelivered advances every "sent" message addressed to receiverID.
func (s *MemoryStore) MarkDelivered(ctx context.Context, receiverID string) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected []*Message
	for _, id := range s.order {
		m := s.messages[id]
		if m.ReceiverID == receiverID && m.Status == StatusSent {
			m.Status = StatusDelivered
			cp := *m
			affected = append(affected, &cp)
		}
	}
	return affected, nil
}

// MarkSeen advances every not-"seen" message from senderID to receiverID.
func (s *MemoryStore) MarkSeen(ctx context.Context, senderID, receiverID string) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected []*Message
	for _, id := range s.order {
		m := s.messages[id]
		if m.SenderID == senderID && m.ReceiverID == receiverID && m.Status != StatusSeen {
			m.Status = StatusSeen
			cp := *m
			affected = append(affected, &cp)
		}
	}
	return affected, nil
}

// sortByCreation orders messages by creation time, oldest first. Insertion
// order already matches for a single store, but merged reads from Redis
// index lists need the explicit sort.
func sortByCreation(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
