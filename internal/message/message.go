package message

import "time"

// Status is the delivery state of a message.
type Status string

const (
	// StatusSent is the initial state: the message exists but the
	// receiver has not been reachable since it was created.
	StatusSent Status = "sent"
	// StatusDelivered means the receiver was reachable when the message
	// was created, or reconnected afterwards.
	StatusDelivered Status = "delivered"
	// StatusSeen means the receiver has read the message.
	StatusSeen Status = "seen"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSent, StatusDelivered, StatusSeen:
		return true
	}
	return false
}

// Message is a direct message between two users.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	Audio      string    `json:"audio,omitempty"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}
