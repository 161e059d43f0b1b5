package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Watermill implements Transport on top of watermill's GoChannel, an
// in-memory pub/sub. Published messages loop back to local subscribers
// on the same topic, which mirrors a broker echoing a client's own
// sends. Used by tests and by the CLI when no broker URL is set.
type Watermill struct{}

// NewWatermill initializes an in-memory transport.
func NewWatermill() *Watermill {
	return &Watermill{}
}

// Connect implements the Transport interface. The endpoint and auth
// header are accepted for contract parity and otherwise ignored.
func (w *Watermill) Connect(ctx context.Context, endpoint, authHeader string) (Conn, error) {
	logger := watermill.NewStdLogger(false, false)
	goChannel := gochannel.NewGoChannel(gochannel.Config{}, logger)

	conn := &watermillConn{
		bus:  goChannel,
		subs: make(map[SubscriptionID]context.CancelFunc),
		done: make(chan struct{}),
	}
	return conn, nil
}

type watermillConn struct {
	bus *gochannel.GoChannel

	mu     sync.Mutex
	subs   map[SubscriptionID]context.CancelFunc
	done   chan struct{}
	closed bool
}

// Subscribe implements the Conn interface. Each subscription gets its
// own cancelable context so Unsubscribe can stop just that consumer.
func (c *watermillConn) Subscribe(ctx context.Context, topic string, handler Handler) (SubscriptionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", fmt.Errorf("subscribe on closed connection")
	}

	subCtx, cancel := context.WithCancel(ctx)
	messages, err := c.bus.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return "", err
	}

	id := SubscriptionID(watermill.NewUUID())
	c.subs[id] = cancel

	// Process messages in a separate goroutine so Subscribe is
	// non-blocking.
	go func() {
		for wmMsg := range messages {
			handler(Message{Topic: topic, Payload: wmMsg.Payload})
			wmMsg.Ack()
		}
		slog.Debug("Subscription message loop ended", "topic", topic)
	}()

	return id, nil
}

// Publish implements the Conn interface.
func (c *watermillConn) Publish(ctx context.Context, destination string, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("publish on closed connection")
	}

	wmMsg := message.NewMessage(watermill.NewUUID(), payload)
	return c.bus.Publish(destination, wmMsg)
}

// Unsubscribe implements the Conn interface.
func (c *watermillConn) Unsubscribe(id SubscriptionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cancel, ok := c.subs[id]
	if !ok {
		return nil
	}
	delete(c.subs, id)
	cancel()
	return nil
}

// Disconnect implements the Conn interface. It cancels any remaining
// subscriptions before closing the bus.
func (c *watermillConn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, cancel := range c.subs {
		cancel()
		delete(c.subs, id)
	}
	close(c.done)
	c.mu.Unlock()

	return c.bus.Close()
}

// Done implements the Conn interface.
func (c *watermillConn) Done() <-chan struct{} {
	return c.done
}
