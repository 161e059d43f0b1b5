package domain

import "time"

// DeliveryState tracks the client-side delivery status of a message.
// Messages received from the server are always Delivered; only locally
// sent messages pass through Pending and possibly Failed.
type DeliveryState int

const (
	// DeliveryPending means the message was appended optimistically and
	// the transport has not yet confirmed it.
	DeliveryPending DeliveryState = iota
	// DeliveryDelivered means the server echoed the message back (or it
	// originated from the server in the first place).
	DeliveryDelivered
	// DeliveryFailed means the transport rejected the send. The entry
	// stays in the log so the UI can offer a retry.
	DeliveryFailed
)

// ChatRoomSummary is one row in a user's room directory: a two-party
// conversation about a single listing, with a last-message preview.
type ChatRoomSummary struct {
	RoomID          int64     `json:"roomId"`
	CounterpartID   int64     `json:"counterpartUserId"`
	CounterpartName string    `json:"counterpartDisplayName"`
	ListingID       int64     `json:"listingId"`
	OwnerID         int64     `json:"ownerUserId"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageAt   time.Time `json:"lastMessageAt"`
	Unread          bool      `json:"unread"`
}

// ChatMessage is a single message within a room. SentAt is assigned by
// the server and is monotonic within a room; ClientSeq is a local
// correlation id used to reconcile an optimistic send with its echo.
type ChatMessage struct {
	RoomID    int64         `json:"roomId"`
	SenderID  int64         `json:"senderId"`
	Body      string        `json:"body"`
	SentAt    time.Time     `json:"sentAt"`
	ClientSeq string        `json:"clientSeq,omitempty"`
	State     DeliveryState `json:"-"`
}

// SameRecord reports whether two messages refer to the same authoritative
// server record. The (RoomID, SentAt, SenderID) triple is unique per room.
func (m ChatMessage) SameRecord(other ChatMessage) bool {
	return m.RoomID == other.RoomID &&
		m.SenderID == other.SenderID &&
		m.SentAt.Equal(other.SentAt)
}
