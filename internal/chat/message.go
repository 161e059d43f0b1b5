package chat

import (
	"encoding/json"
	"time"

	"github.com/freshtrade/chatcore/internal/domain"
)

// wireMessage is the JSON payload exchanged on a room's message topic.
// SentAt is authoritative when assigned by the server; the client still
// fills it on publish so in-memory loopback keeps a usable timestamp.
type wireMessage struct {
	RoomID    int64     `json:"roomId"`
	SenderID  int64     `json:"senderId"`
	Body      string    `json:"body"`
	SentAt    time.Time `json:"sentAt"`
	ClientSeq string    `json:"clientSeq,omitempty"`
}

// wireReadReceipt is the JSON payload published on a room's read topic
// when the foregrounded user has seen the latest messages.
type wireReadReceipt struct {
	RoomID   int64     `json:"roomId"`
	ReaderID int64     `json:"readerId"`
	ReadAt   time.Time `json:"readAt"`
}

func encodeMessage(msg domain.ChatMessage) ([]byte, error) {
	return json.Marshal(wireMessage{
		RoomID:    msg.RoomID,
		SenderID:  msg.SenderID,
		Body:      msg.Body,
		SentAt:    msg.SentAt,
		ClientSeq: msg.ClientSeq,
	})
}

func encodeReadReceipt(receipt wireReadReceipt) ([]byte, error) {
	return json.Marshal(receipt)
}

func decodeMessage(payload []byte) (domain.ChatMessage, error) {
	var wire wireMessage
	if err := json.Unmarshal(payload, &wire); err != nil {
		return domain.ChatMessage{}, err
	}
	return domain.ChatMessage{
		RoomID:    wire.RoomID,
		SenderID:  wire.SenderID,
		Body:      wire.Body,
		SentAt:    wire.SentAt,
		ClientSeq: wire.ClientSeq,
		State:     domain.DeliveryDelivered,
	}, nil
}
