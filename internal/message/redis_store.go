package message

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// msgKey returns the Redis key holding one message's JSON document.
func msgKey(id string) string {
	return "msg:" + id
}

// convKey returns the Redis key for the ID list of a conversation pair.
// The pair is normalized so both directions share one list.
func convKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "conv:" + a + ":" + b
}

// inboxKey returns the Redis key for the ID list of messages addressed
// to a user.
func inboxKey(receiverID string) string {
	return "inbox:" + receiverID
}

// RedisStore persists messages in Redis: one JSON document per message
// plus ID lists indexing each conversation pair and each receiver inbox.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a Redis-backed message store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Create persists a new message and indexes it.
func (s *RedisStore) Create(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: marshal message: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, msgKey(msg.ID), data, 0)
	pipe.RPush(ctx, convKey(msg.SenderID, msg.ReceiverID), msg.ID)
	pipe.RPush(ctx, inboxKey(msg.ReceiverID), msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: create message: %w", err)
	}
	return nil
}

// Save persists changes to an existing message.
func (s *RedisStore) Save(ctx context.Context, msg *Message) error {
	n, err := s.client.Exists(ctx, msgKey(msg.ID)).Result()
	if err != nil {
		return fmt.Errorf("redis: save message: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: marshal message: %w", err)
	}
	if err := s.client.Set(ctx, msgKey(msg.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save message: %w", err)
	}
	return nil
}

// ByID returns the message with the given ID, or ErrNotFound.
func (s *RedisStore) ByID(ctx context.Context, id string) (*Message, error) {
	data, err := s.client.Get(ctx, msgKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get message: %w", err)
	}

	var m Message
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("redis: unmarshal message: %w", err)
	}
	return &m, nil
}

// Conversation returns all messages between a and b in creation order.
func (s *RedisStore) Conversation(ctx context.Context, a, b string) ([]*Message, error) {
	msgs, err := s.byIndex(ctx, convKey(a, b))
	if err != nil {
		return nil, err
	}
	sortByCreation(msgs)
	return msgs, nil
}

// Unseen returns all messages addressed to receiverID not yet seen.
func (s *RedisStore) Unseen(ctx context.Context, receiverID string) ([]*Message, error) {
	msgs, err := s.byIndex(ctx, inboxKey(receiverID))
	if err != nil {
		return nil, err
	}
	var result []*Message
	for _, m := range msgs {
		if m.Status != StatusSeen {
			result = append(result, m)
		}
	}
	return result, nil
}

// MarkDelivered advances every "sent" message addressed to receiverID.
func (s *RedisStore) MarkDelivered(ctx context.Context, receiverID string) ([]*Message, error) {
	msgs, err := s.byIndex(ctx, inboxKey(receiverID))
	if err != nil {
		return nil, err
	}
	var affected []*Message
	for _, m := range msgs {
		if m.Status == StatusSent {
			m.Status = StatusDelivered
			affected = append(affected, m)
		}
	}
	if err := s.writeAll(ctx, affected); err != nil {
		return nil, err
	}
	return affected, nil
}

// MarkSeen advances every not-"seen" message from senderID to receiverID.
func (s *RedisStore) MarkSeen(ctx context.Context, senderID, receiverID string) ([]*Message, error) {
	msgs, err := s.byIndex(ctx, inboxKey(receiverID))
	if err != nil {
		return nil, err
	}
	var affected []*Message
	for _, m := range msgs {
		if m.SenderID == senderID && m.Status != StatusSeen {
			m.Status = StatusSeen
			affected = append(affected, m)
		}
	}
	if err := s.writeAll(ctx, affected); err != nil {
		return nil, err
	}
	return affected, nil
}

// byIndex loads the messages referenced by an ID list key.
func (s *RedisStore) byIndex(ctx context.Context, key string) ([]*Message, error) {
	ids, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read index %s: %w", key, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = msgKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read messages: %w", err)
	}

	msgs := make([]*Message, 0, len(vals))
	for _, v := range vals {
		data, ok := v.(string)
		if !ok {
			continue
		}
		var m Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			continue
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

// writeAll persists a batch of updated messages in one pipeline.
func (s *RedisStore) writeAll(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("redis: marshal message: %w", err)
		}
		pipe.Set(ctx, msgKey(m.ID), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: update messages: %w", err)
	}
	return nil
}
