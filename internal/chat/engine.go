package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/freshtrade/chatcore/internal/auth"
	"github.com/freshtrade/chatcore/internal/domain"
)

// EngineState is the facade's position in its
// Idle → DirectoryOpen → SessionOpen machine.
type EngineState int

const (
	EngineIdle EngineState = iota
	EngineDirectoryOpen
	EngineSessionOpen
)

func (s EngineState) String() string {
	switch s {
	case EngineDirectoryOpen:
		return "directory_open"
	case EngineSessionOpen:
		return "session_open"
	default:
		return "idle"
	}
}

// Directory is the REST collaborator the engine lists rooms and fetches
// history through.
type Directory interface {
	HistoryFetcher
	ListRoomsForUser(ctx context.Context, userID int64) ([]domain.ChatRoomSummary, error)
	ListRoomsForListing(ctx context.Context, listingID int64) ([]domain.ChatRoomSummary, error)
}

// Engine is the single entry point the rest of the application uses:
// open the directory, promote a selected room to a live session, tear
// everything down on close. It guarantees at most one live connection
// and at most one active session at a time.
type Engine struct {
	auth      auth.Source
	manager   *Manager
	directory Directory

	mu      sync.Mutex
	state   EngineState
	rooms   []domain.ChatRoomSummary
	session *Session
	conn    *Connection
	// epoch increments on every teardown; a SelectRoom that was
	// suspended across a teardown discards its result instead of
	// reviving dead state.
	epoch uint64
}

// Dependencies holds all the services the Engine requires to operate.
type Dependencies struct {
	Auth      auth.Source
	Manager   *Manager
	Directory Directory
}

// NewEngine creates the chat facade, injecting its dependencies.
func NewEngine(deps Dependencies) *Engine {
	return &Engine{
		auth:      deps.Auth,
		manager:   deps.Manager,
		directory: deps.Directory,
		state:     EngineIdle,
	}
}

// State returns the facade's current state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Rooms returns the directory snapshot from the last successful open or
// refresh. The snapshot is not invalidated by session activity.
func (e *Engine) Rooms() []domain.ChatRoomSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ChatRoomSummary, len(e.rooms))
	copy(out, e.rooms)
	return out
}

// Session returns the active room session, or nil.
func (e *Engine) Session() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// OpenDirectory fetches the current user's rooms and moves the facade
// to DirectoryOpen. Without a logged-in user it signals ErrLoginRequired
// and stays where it was.
func (e *Engine) OpenDirectory(ctx context.Context) ([]domain.ChatRoomSummary, error) {
	if !e.auth.IsLoggedIn() {
		return nil, domain.ErrLoginRequired
	}
	userID, ok := e.auth.CurrentUserID()
	if !ok {
		return nil, domain.ErrLoginRequired
	}

	rooms, err := e.directory.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.rooms = rooms
	if e.state == EngineIdle {
		e.state = EngineDirectoryOpen
	}
	e.mu.Unlock()
	return rooms, nil
}

// OpenListingDirectory is the seller-side variant: all rooms attached
// to one listing.
func (e *Engine) OpenListingDirectory(ctx context.Context, listingID int64) ([]domain.ChatRoomSummary, error) {
	if !e.auth.IsLoggedIn() {
		return nil, domain.ErrLoginRequired
	}

	rooms, err := e.directory.ListRoomsForListing(ctx, listingID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.rooms = rooms
	if e.state == EngineIdle {
		e.state = EngineDirectoryOpen
	}
	e.mu.Unlock()
	return rooms, nil
}

// SelectRoom promotes a room from the directory snapshot to the active
// session. Selecting while another session is open first runs the full
// teardown for the old room, so two subscriptions are never live at
// once.
func (e *Engine) SelectRoom(ctx context.Context, roomID int64) (*Session, error) {
	e.mu.Lock()
	if e.state == EngineIdle {
		e.mu.Unlock()
		return nil, fmt.Errorf("no open directory to select from")
	}

	var room *domain.ChatRoomSummary
	for i := range e.rooms {
		if e.rooms[i].RoomID == roomID {
			room = &e.rooms[i]
			break
		}
	}
	if room == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("room %d is not in the directory snapshot", roomID)
	}
	summary := *room
	epoch := e.epoch

	old := e.session
	e.session = nil
	e.mu.Unlock()

	// Re-entrancy guard: the previous room is fully torn down before
	// the new subscription opens.
	if old != nil {
		old.Close()
	}

	userID, ok := e.auth.CurrentUserID()
	if !ok {
		// The identity vanished between selects (token revoked).
		// Unwind like a logout; nothing can run without a user.
		e.mu.Lock()
		conn := e.conn
		e.conn = nil
		e.state = EngineIdle
		e.epoch++
		e.mu.Unlock()
		if conn != nil {
			if err := e.manager.Disconnect(ctx, conn); err != nil {
				slog.Warn("Failed to release connection on login loss", "error", err)
			}
		}
		return nil, domain.ErrLoginRequired
	}

	conn, err := e.manager.Connect(ctx, userID)
	if err != nil {
		e.toDirectory()
		return nil, err
	}

	// The connect may have suspended across a teardown. A stale
	// selection must not revive the engine out of Idle.
	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		e.releaseConnIfIdle(ctx, conn)
		return nil, domain.ErrSuperseded
	}
	e.mu.Unlock()

	session, err := NewSession(ctx, conn, summary, userID, e.directory)
	if err != nil {
		e.releaseConnIfIdle(ctx, conn)
		e.toDirectory()
		return nil, err
	}

	// Publish the session before the history fetch suspends, so a
	// competing Back/CloseAll can supersede the fetch.
	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		session.Close()
		e.releaseConnIfIdle(ctx, conn)
		return nil, domain.ErrSuperseded
	}
	e.session = session
	e.conn = conn
	e.state = EngineSessionOpen
	e.mu.Unlock()

	if err := session.Seed(ctx); err != nil {
		if errors.Is(err, domain.ErrSuperseded) {
			// State already moved on under the fetch; whoever closed
			// the session owns the facade state now.
			return nil, err
		}
		session.Close()
		e.mu.Lock()
		if e.session == session {
			e.session = nil
		}
		e.mu.Unlock()
		e.releaseConnIfIdle(ctx, conn)
		e.toDirectory()
		return nil, err
	}

	slog.Info("Chat session opened", "room_id", roomID, "peer", summary.CounterpartName)
	return session, nil
}

// Back closes the active session and returns to the directory. The
// connection is released because no other session can need it: the
// engine allows only one.
func (e *Engine) Back(ctx context.Context) error {
	e.mu.Lock()
	if e.state != EngineSessionOpen {
		e.mu.Unlock()
		return nil
	}
	session := e.session
	conn := e.conn
	e.session = nil
	e.conn = nil
	e.state = EngineDirectoryOpen
	e.epoch++
	e.mu.Unlock()

	if session != nil {
		session.Close()
	}
	if conn != nil {
		return e.manager.Disconnect(ctx, conn)
	}
	return nil
}

// CloseAll is the unconditional unwind path used on logout or
// navigating away: session first, then connection, then Idle.
func (e *Engine) CloseAll(ctx context.Context) error {
	e.mu.Lock()
	session := e.session
	conn := e.conn
	e.session = nil
	e.conn = nil
	e.state = EngineIdle
	e.epoch++
	e.mu.Unlock()

	if session != nil {
		session.Close()
	}
	if conn != nil {
		return e.manager.Disconnect(ctx, conn)
	}
	return nil
}

func (e *Engine) toDirectory() {
	e.mu.Lock()
	if e.state == EngineSessionOpen {
		e.state = EngineDirectoryOpen
	}
	e.mu.Unlock()
}

// releaseConnIfIdle drops the connection when no session holds it.
func (e *Engine) releaseConnIfIdle(ctx context.Context, conn *Connection) {
	e.mu.Lock()
	busy := e.session != nil
	e.mu.Unlock()
	if !busy {
		if err := e.manager.Disconnect(ctx, conn); err != nil {
			slog.Warn("Failed to release idle connection", "error", err)
		}
	}
}
