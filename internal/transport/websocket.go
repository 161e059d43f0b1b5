package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Envelope is the frame format exchanged with the chat broker. Type is
// one of "subscribe", "unsubscribe", "publish" (client to broker) or
// "message" (broker to client); Target names the topic or destination.
type Envelope struct {
	Type    string          `json:"type"`
	Target  string          `json:"target,omitempty"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Websocket implements Transport over a single websocket connection to
// the chat broker. One read pump dispatches incoming "message" frames to
// the handlers subscribed to the frame's target topic, preserving
// per-topic delivery order.
type Websocket struct{}

// NewWebsocket creates a websocket-backed transport.
func NewWebsocket() *Websocket {
	return &Websocket{}
}

// Connect implements the Transport interface. The authHeader value is
// sent as the Authorization header on the upgrade request.
func (w *Websocket) Connect(ctx context.Context, endpoint, authHeader string) (Conn, error) {
	header := http.Header{}
	if authHeader != "" {
		header.Set("Authorization", authHeader)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing chat broker: %w", err)
	}

	wc := &websocketConn{
		conn: conn,
		subs: make(map[SubscriptionID]subscription),
		done: make(chan struct{}),
	}
	go wc.readPump()
	return wc, nil
}

type subscription struct {
	topic   string
	handler Handler
}

type websocketConn struct {
	conn *websocket.Conn

	// writeMu serializes frame writes; the engine may publish from
	// several call paths but the socket allows one writer at a time.
	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[SubscriptionID]subscription
	closed bool
	done   chan struct{}
}

// readPump pumps frames from the broker to subscription handlers.
//
// There is at most one reader on the connection; all reads happen from
// this goroutine. When it exits, the connection is gone and Done is
// closed so the owner can observe the drop.
func (c *websocketConn) readPump() {
	defer func() {
		c.mu.Lock()
		if !c.closed {
			c.closed = true
			close(c.done)
		}
		c.mu.Unlock()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				slog.Info("Chat broker connection closed normally")
			} else {
				slog.Error("Chat broker read failed", "error", err)
			}
			return
		}

		var frame Envelope
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Error("Discarding malformed broker frame", "error", err)
			continue
		}
		if frame.Type != "message" {
			slog.Debug("Ignoring non-message frame", "type", frame.Type)
			continue
		}

		c.mu.Lock()
		var handlers []Handler
		for _, sub := range c.subs {
			if sub.topic == frame.Target {
				handlers = append(handlers, sub.handler)
			}
		}
		c.mu.Unlock()

		for _, handler := range handlers {
			handler(Message{Topic: frame.Target, Payload: frame.Payload})
		}
	}
}

func (c *websocketConn) writeFrame(ctx context.Context, frame Envelope) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Subscribe implements the Conn interface.
func (c *websocketConn) Subscribe(ctx context.Context, topic string, handler Handler) (SubscriptionID, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", fmt.Errorf("subscribe on closed connection")
	}
	id := SubscriptionID(uuid.NewString())
	c.subs[id] = subscription{topic: topic, handler: handler}
	c.mu.Unlock()

	err := c.writeFrame(ctx, Envelope{Type: "subscribe", Target: topic, ID: string(id)})
	if err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return "", err
	}
	return id, nil
}

// Publish implements the Conn interface. The payload must be valid
// JSON: the envelope embeds it verbatim rather than re-encoding it.
func (c *websocketConn) Publish(ctx context.Context, destination string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("payload is not valid JSON")
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("publish on closed connection")
	}

	return c.writeFrame(ctx, Envelope{Type: "publish", Target: destination, Payload: payload})
}

// Unsubscribe implements the Conn interface.
func (c *websocketConn) Unsubscribe(id SubscriptionID) error {
	c.mu.Lock()
	_, ok := c.subs[id]
	if ok {
		delete(c.subs, id)
	}
	closed := c.closed
	c.mu.Unlock()

	if !ok || closed {
		return nil
	}
	return c.writeFrame(context.Background(), Envelope{Type: "unsubscribe", ID: string(id)})
}

// Disconnect implements the Conn interface.
func (c *websocketConn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subs = make(map[SubscriptionID]subscription)
	close(c.done)
	c.mu.Unlock()

	return c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
}

// Done implements the Conn interface.
func (c *websocketConn) Done() <-chan struct{} {
	return c.done
}
