package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/freshtrade/chatcore/internal/auth"
	"github.com/freshtrade/chatcore/internal/domain"
	"github.com/freshtrade/chatcore/internal/transport"
)

// ConnState is the lifecycle state of the managed connection. It is
// owned exclusively by the Manager; sessions only read it.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Manager owns the single publish/subscribe connection of the engine.
// Connect is idempotent per user; a drop transitions straight to
// Disconnected and is reported through the state callback, never
// silently retried.
type Manager struct {
	transport transport.Transport
	auth      auth.Source
	endpoint  string
	onState   func(ConnState)

	mu      sync.Mutex
	state   ConnState
	conn    *Connection
	userID  int64
	gen     uint64
	waiting chan struct{}
}

// ManagerDeps holds the collaborators a Manager requires.
type ManagerDeps struct {
	Transport transport.Transport
	Auth      auth.Source
	Endpoint  string
	// OnStateChange, if set, is invoked after every state transition,
	// including unexpected drops. Called outside the manager's lock.
	OnStateChange func(ConnState)
}

// NewManager creates a connection manager, injecting its dependencies.
func NewManager(deps ManagerDeps) *Manager {
	onState := deps.OnStateChange
	if onState == nil {
		onState = func(ConnState) {}
	}
	return &Manager{
		transport: deps.Transport,
		auth:      deps.Auth,
		endpoint:  deps.Endpoint,
		onState:   onState,
		state:     StateDisconnected,
	}
}

// State returns the current connection state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect acquires the shared connection for the given user. If a
// connection already exists (or is being established) for that user,
// the existing one is returned instead of opening a second.
func (m *Manager) Connect(ctx context.Context, userID int64) (*Connection, error) {
	for {
		m.mu.Lock()
		switch m.state {
		case StateConnected:
			if m.userID == userID {
				conn := m.conn
				m.mu.Unlock()
				return conn, nil
			}
			// A different user's connection is still up, usually after
			// a re-login. Tear it down before connecting.
			oldConn, oldUser := m.conn, m.userID
			m.mu.Unlock()
			slog.Warn("Replacing connection owned by another user", "old_user", oldUser, "new_user", userID)
			if err := m.Disconnect(ctx, oldConn); err != nil {
				return nil, err
			}
			continue

		case StateConnecting:
			wait := m.waiting
			m.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		case StateDisconnecting:
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: connection is shutting down", domain.ErrConnectFailed)

		case StateDisconnected:
			token, ok := m.auth.AccessToken()
			if !ok {
				m.mu.Unlock()
				return nil, domain.ErrAuthMissing
			}
			m.state = StateConnecting
			m.userID = userID
			m.waiting = make(chan struct{})
			gen := m.gen
			m.mu.Unlock()
			m.onState(StateConnecting)

			return m.dial(ctx, userID, token, gen)
		}
	}
}

// dial performs the transport connect, then re-checks that the manager
// still wants this connection before publishing it. A Disconnect issued
// while the dial was in flight supersedes the result.
func (m *Manager) dial(ctx context.Context, userID int64, token string, gen uint64) (*Connection, error) {
	raw, err := m.transport.Connect(ctx, m.endpoint, "Bearer "+token)

	m.mu.Lock()
	superseded := m.gen != gen
	wait := m.waiting
	m.waiting = nil

	if superseded {
		m.mu.Unlock()
		close(wait)
		if err == nil {
			raw.Disconnect(context.Background())
		}
		return nil, domain.ErrSuperseded
	}

	if err != nil {
		m.state = StateDisconnected
		m.userID = 0
		m.mu.Unlock()
		close(wait)
		m.onState(StateDisconnected)
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectFailed, err)
	}

	conn := &Connection{raw: raw, userID: userID}
	m.state = StateConnected
	m.conn = conn
	m.mu.Unlock()
	close(wait)
	m.onState(StateConnected)

	go m.watch(conn)
	return conn, nil
}

// watch observes the connection for unexpected drops. A drop goes
// straight to Disconnected; reconnecting is the orchestrator's call.
func (m *Manager) watch(conn *Connection) {
	<-conn.raw.Done()

	m.mu.Lock()
	if m.conn != conn || m.state != StateConnected {
		// Already replaced or torn down deliberately.
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.conn = nil
	m.userID = 0
	m.gen++
	conn.markDead()
	m.mu.Unlock()

	slog.Warn("Chat connection dropped")
	m.onState(StateDisconnected)
}

// Disconnect tears the given connection down. Subscriptions still open
// on it are released first; callers should have released their own, but
// teardown must not leak. Disconnecting a connection that is no longer
// current is a no-op.
func (m *Manager) Disconnect(ctx context.Context, conn *Connection) error {
	if conn == nil {
		return nil
	}

	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return nil
	}
	m.state = StateDisconnecting
	m.gen++
	m.mu.Unlock()
	m.onState(StateDisconnecting)

	conn.releaseAll()
	err := conn.raw.Disconnect(ctx)

	m.mu.Lock()
	m.state = StateDisconnected
	m.conn = nil
	m.userID = 0
	m.mu.Unlock()
	m.onState(StateDisconnected)
	return err
}

// Connection is the shared transport handle. Sessions borrow it; its
// lifecycle belongs to the Manager alone.
type Connection struct {
	raw    transport.Conn
	userID int64

	mu   sync.Mutex
	subs map[transport.SubscriptionID]struct{}
	dead bool
}

// UserID returns the user the connection was established for.
func (c *Connection) UserID() int64 {
	return c.userID
}

// Subscribe opens a subscription on the shared connection and tracks it
// so teardown can release leftovers.
func (c *Connection) Subscribe(ctx context.Context, topic string, handler transport.Handler) (transport.SubscriptionID, error) {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: connection is not connected", domain.ErrSubscribeFailed)
	}
	c.mu.Unlock()

	id, err := c.raw.Subscribe(ctx, topic, handler)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSubscribeFailed, err)
	}

	c.mu.Lock()
	if c.subs == nil {
		c.subs = make(map[transport.SubscriptionID]struct{})
	}
	c.subs[id] = struct{}{}
	c.mu.Unlock()
	return id, nil
}

// Publish sends a payload to a destination on the shared connection.
func (c *Connection) Publish(ctx context.Context, destination string, payload []byte) error {
	return c.raw.Publish(ctx, destination, payload)
}

// Unsubscribe releases one subscription. Unknown ids are a no-op.
func (c *Connection) Unsubscribe(id transport.SubscriptionID) error {
	c.mu.Lock()
	_, ok := c.subs[id]
	if ok {
		delete(c.subs, id)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return c.raw.Unsubscribe(id)
}

// OpenSubscriptions reports how many subscriptions are still live.
func (c *Connection) OpenSubscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Connection) markDead() {
	c.mu.Lock()
	c.dead = true
	c.mu.Unlock()
}

func (c *Connection) releaseAll() {
	c.mu.Lock()
	ids := make([]transport.SubscriptionID, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.subs = nil
	c.dead = true
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.raw.Unsubscribe(id); err != nil {
			slog.Warn("Failed to release leftover subscription", "sub_id", id, "error", err)
		}
	}
}
