// Package delivery owns the message delivery-state machine and the
// unread-count aggregation derived from it. It mutates the message store
// first and notifies afterwards; a failed mutation never produces a
// partial broadcast.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/isksamiul2/chatty-backend/internal/media"
	"github.com/isksamiul2/chatty-backend/internal/message"
)

// ErrInvalidStatus is returned when a status outside {sent, delivered,
// seen} is supplied to SetStatus.
var ErrInvalidStatus = errors.New("invalid message status")

// Server to client event names.
const (
	EventNewMessage           = "newMessage"
	EventMessageDelivered     = "messageDelivered"
	EventMessagesSeen         = "messagesSeen"
	EventMessageStatusUpdated = "messageStatusUpdated"
	EventUnreadCountsUpdated  = "unreadCountsUpdated"
)

// Notifier is the transport surface the state machine emits through.
// There are no subscriptions: delivery-state events go to every connected
// client, which filters locally; only unread tallies and sender copies
// are targeted. The interface never reaches back into delivery, which
// keeps the dependency between the connection layer and this package
// one-way.
type Notifier interface {
	// BroadcastAll sends an event to every connected transport.
	BroadcastAll(event string, payload any)
	// NotifyUser sends an event to the one connection mapped to userID.
	// Returns false if the user is not reachable.
	NotifyUser(userID, event string, payload any) bool
	// Reachable reports whether userID has a live connection.
	Reachable(userID string) bool
}

// SeenEvent is the coarse payload broadcast when a conversation is
// marked seen.
type SeenEvent struct {
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatusEvent is the per-message payload broadcast on a status change.
type StatusEvent struct {
	MessageID string         `json:"messageId"`
	Status    message.Status `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}

// SendInput carries the client-supplied body of a new message. Image and
// Audio are inline payloads handed to the media uploader.
type SendInput struct {
	Text  string `json:"text"`
	Image string `json:"image"`
	Audio string `json:"audio"`
}

// Service coordinates message state transitions, their broadcasts, and
// the derived unread tallies.
type Service struct {
	store    message.Store
	notifier Notifier
	uploader media.Uploader
}

// NewService creates a delivery service. The uploader may be nil when
// inline media is not supported.
func NewService(store message.Store, notifier Notifier, uploader media.Uploader) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		uploader: uploader,
	}
}

// Send creates a message from sender to receiver. The message starts in
// "sent", is broadcast to everyone as newMessage, and is advanced to
// "delivered" immediately when the receiver is reachable.
func (s *Service) Send(ctx context.Context, senderID, receiverID string, in SendInput) (*message.Message, error) {
	imageURL, err := s.uploadIfPresent(ctx, in.Image, media.Options{})
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	audioURL, err := s.uploadIfPresent(ctx, in.Audio, media.Options{Folder: "voice_messages", ResourceType: "auto"})
	if err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}

	msg := &message.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       in.Text,
		Image:      imageURL,
		Audio:      audioURL,
		Status:     message.StatusSent,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	s.notifier.BroadcastAll(EventNewMessage, msg)
	s.pushUnread(ctx, receiverID)

	if s.notifier.Reachable(receiverID) {
		msg.Status = message.StatusDelivered
		if err := s.store.Save(ctx, msg); err != nil {
			return nil, fmt.Errorf("advance to delivered: %w", err)
		}
		s.notifier.BroadcastAll(EventMessageDelivered, msg)
	}

	return msg, nil
}

// Reconcile bulk-advances every "sent" message addressed to userID to
// "delivered". It runs when the user connects. Each affected message is
// pushed to its original sender (when reachable) and broadcast globally
// so every client's view converges.
func (s *Service) Reconcile(ctx context.Context, userID string) error {
	affected, err := s.store.MarkDelivered(ctx, userID)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}

	for _, m := range affected {
		s.notifier.NotifyUser(m.SenderID, EventMessageDelivered, m)
		s.notifier.BroadcastAll(EventMessageDelivered, m)
	}
	if len(affected) > 0 {
		s.pushUnread(ctx, userID)
	}
	return nil
}

// MarkSeen advances every not-"seen" message from senderID to receiverID
// to "seen". One coarse messagesSeen broadcast always fires; a precise
// messageStatusUpdated broadcast fires per affected message, so clients
// listening to either stay consistent. Returns the number of messages
// updated; re-running is idempotent.
func (s *Service) MarkSeen(ctx context.Context, senderID, receiverID string) (int, error) {
	affected, err := s.store.MarkSeen(ctx, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}

	now := time.Now().UTC()
	s.notifier.BroadcastAll(EventMessagesSeen, SeenEvent{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Timestamp:  now,
	})
	for _, m := range affected {
		s.notifier.BroadcastAll(EventMessageStatusUpdated, StatusEvent{
			MessageID: m.ID,
			Status:    message.StatusSeen,
			Timestamp: now,
		})
	}
	if len(affected) > 0 {
		s.pushUnread(ctx, receiverID)
	}
	return len(affected), nil
}

// SetStatus sets one message's status to a client-supplied value. Any of
// the three statuses is accepted regardless of the current one; the
// endpoint trusts the client's ordering. Unknown values are rejected
// before any state is touched.
func (s *Service) SetStatus(ctx context.Context, messageID string, status message.Status) (*message.Message, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	m, err := s.store.ByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	m.Status = status
	if err := s.store.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("save status: %w", err)
	}

	ev := StatusEvent{MessageID: m.ID, Status: status, Timestamp: time.Now().UTC()}
	s.notifier.NotifyUser(m.SenderID, EventMessageStatusUpdated, ev)
	s.notifier.BroadcastAll(EventMessageStatusUpdated, ev)
	s.pushUnread(ctx, m.ReceiverID)
	return m, nil
}

// Conversation returns the full history between me and other, then runs
// the mark-seen flow for the other-to-me direction, mirroring a client
// opening the conversation.
func (s *Service) Conversation(ctx context.Context, me, other string) ([]*message.Message, error) {
	msgs, err := s.store.Conversation(ctx, me, other)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if _, err := s.MarkSeen(ctx, other, me); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ComputeUnread returns, for every sender with messages addressed to
// userID not yet seen, the count of those messages. Senders with nothing
// unread are absent from the map.
func (s *Service) ComputeUnread(ctx context.Context, userID string) (map[string]int, error) {
	unseen, err := s.store.Unseen(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("compute unread: %w", err)
	}
	counts := make(map[string]int)
	for _, m := range unseen {
		counts[m.SenderID]++
	}
	return counts, nil
}

// PushUnread computes userID's unread tally and, only when the user is
// reachable, pushes it to their own connection. Unread counts are
// private: this is the one targeted-only event in the system. When the
// user is unreachable the tally is discarded, not cached.
func (s *Service) PushUnread(ctx context.Context, userID string) error {
	counts, err := s.ComputeUnread(ctx, userID)
	if err != nil {
		return err
	}
	if !s.notifier.Reachable(userID) {
		return nil
	}
	s.notifier.NotifyUser(userID, EventUnreadCountsUpdated, counts)
	return nil
}

// pushUnread is PushUnread with failures logged instead of propagated:
// a stale badge must not fail the state change that already committed.
func (s *Service) pushUnread(ctx context.Context, userID string) {
	if err := s.PushUnread(ctx, userID); err != nil {
		log.Printf("delivery: push unread for %s: %v", userID, err)
	}
}

// uploadIfPresent uploads payload when non-empty and returns its URL.
func (s *Service) uploadIfPresent(ctx context.Context, payload string, opts media.Options) (string, error) {
	if payload == "" {
		return "", nil
	}
	if s.uploader == nil {
		return "", errors.New("media uploads are not configured")
	}
	return s.uploader.Upload(ctx, payload, opts)
}
