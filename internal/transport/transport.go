package transport

import (
	"context"
)

// Message is the structure delivered to subscription handlers. It is
// intentionally simple: a topic name and the raw payload bytes.
type Message struct {
	// Topic identifies the channel the message was delivered on
	// (e.g., "chat.room.42.messages").
	Topic string
	// Payload contains the raw message data (JSON on the wire).
	Payload []byte
}

// Handler is the function signature for processing a received message.
// Handlers must not block; slow consumers risk having messages dropped
// by the underlying adapter.
type Handler func(msg Message)

// SubscriptionID identifies one live subscription on a connection.
type SubscriptionID string

// Conn is a live publish/subscribe connection handle. A connection is
// obtained from a Transport and torn down with Disconnect; everything
// in between reuses it.
type Conn interface {
	// Subscribe starts delivering messages published on topic to the
	// handler. It returns an id used to release the subscription.
	Subscribe(ctx context.Context, topic string, handler Handler) (SubscriptionID, error)

	// Publish sends a payload to the given destination. Payloads are
	// JSON on this wire; adapters that frame messages in JSON require
	// the payload itself to be valid JSON.
	Publish(ctx context.Context, destination string, payload []byte) error

	// Unsubscribe releases one subscription. Releasing an unknown or
	// already-released id is a no-op.
	Unsubscribe(id SubscriptionID) error

	// Disconnect tears the connection down, releasing any
	// subscriptions still open on it.
	Disconnect(ctx context.Context) error

	// Done is closed when the connection is gone, whether through
	// Disconnect or an unexpected drop.
	Done() <-chan struct{}
}

// Transport is the factory contract for publish/subscribe connections.
// Connecting is the only operation allowed to perform setup I/O.
type Transport interface {
	Connect(ctx context.Context, endpoint, authHeader string) (Conn, error)
}
