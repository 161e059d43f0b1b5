package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/freshtrade/chatcore/internal/transport"
)

// FakeTransport implements transport.Transport with fully scriptable
// behavior for unit tests.
type FakeTransport struct {
	// FailConnect makes every Connect attempt fail.
	FailConnect bool
	// FailSubscribe, FailPublish, and EchoPublishes are copied onto
	// every connection the transport hands out.
	FailSubscribe bool
	FailPublish   bool
	EchoPublishes bool

	mu    sync.Mutex
	conns []*FakeConn
}

// Connect implements the Transport interface.
func (t *FakeTransport) Connect(ctx context.Context, endpoint, authHeader string) (transport.Conn, error) {
	if t.FailConnect {
		return nil, fmt.Errorf("broker unavailable")
	}

	conn := &FakeConn{
		AuthHeader:    authHeader,
		FailSubscribe: t.FailSubscribe,
		FailPublish:   t.FailPublish,
		EchoPublishes: t.EchoPublishes,
		subs:          make(map[transport.SubscriptionID]fakeSub),
		done:          make(chan struct{}),
	}
	t.mu.Lock()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()
	return conn, nil
}

// Conns returns every connection the transport handed out.
func (t *FakeTransport) Conns() []*FakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*FakeConn, len(t.conns))
	copy(out, t.conns)
	return out
}

type fakeSub struct {
	topic   string
	handler transport.Handler
}

// FakeConn is the connection handle handed out by FakeTransport. Tests
// drive it directly: Deliver injects broker frames, Drop simulates a
// network loss.
type FakeConn struct {
	AuthHeader string

	// FailSubscribe makes the next Subscribe call fail.
	FailSubscribe bool
	// FailPublish makes every Publish call fail.
	FailPublish bool
	// EchoPublishes loops published payloads back to subscribers on
	// the same topic, like a broker echoing a client's own sends.
	EchoPublishes bool

	mu        sync.Mutex
	subs      map[transport.SubscriptionID]fakeSub
	nextID    int
	done      chan struct{}
	closed    bool
	published []PublishedFrame
}

// PublishedFrame records one Publish call.
type PublishedFrame struct {
	Destination string
	Payload     []byte
}

// Subscribe implements the Conn interface.
func (c *FakeConn) Subscribe(ctx context.Context, topic string, handler transport.Handler) (transport.SubscriptionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSubscribe {
		return "", fmt.Errorf("subscribe rejected")
	}
	if c.closed {
		return "", fmt.Errorf("subscribe on closed connection")
	}
	c.nextID++
	id := transport.SubscriptionID(fmt.Sprintf("sub-%d", c.nextID))
	c.subs[id] = fakeSub{topic: topic, handler: handler}
	return id, nil
}

// Publish implements the Conn interface.
func (c *FakeConn) Publish(ctx context.Context, destination string, payload []byte) error {
	c.mu.Lock()
	if c.FailPublish {
		c.mu.Unlock()
		return fmt.Errorf("publish rejected")
	}
	c.published = append(c.published, PublishedFrame{Destination: destination, Payload: payload})
	echo := c.EchoPublishes
	c.mu.Unlock()

	if echo {
		c.Deliver(destination, payload)
	}
	return nil
}

// Unsubscribe implements the Conn interface.
func (c *FakeConn) Unsubscribe(id transport.SubscriptionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
	return nil
}

// Disconnect implements the Conn interface.
func (c *FakeConn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.subs = make(map[transport.SubscriptionID]fakeSub)
		close(c.done)
	}
	return nil
}

// Done implements the Conn interface.
func (c *FakeConn) Done() <-chan struct{} {
	return c.done
}

// Deliver synchronously hands a frame to every handler subscribed to
// the topic.
func (c *FakeConn) Deliver(topic string, payload []byte) {
	c.mu.Lock()
	var handlers []transport.Handler
	for _, sub := range c.subs {
		if sub.topic == topic {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(transport.Message{Topic: topic, Payload: payload})
	}
}

// Drop simulates the network connection dying out from under the
// client.
func (c *FakeConn) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// OpenSubscriptions reports the number of live subscriptions.
func (c *FakeConn) OpenSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Closed reports whether the connection has been torn down or dropped.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Published returns every frame published on the connection.
func (c *FakeConn) Published() []PublishedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PublishedFrame, len(c.published))
	copy(out, c.published)
	return out
}
