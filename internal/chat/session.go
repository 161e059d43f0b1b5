package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freshtrade/chatcore/internal/domain"
	"github.com/freshtrade/chatcore/internal/topics"
	"github.com/freshtrade/chatcore/internal/transport"
)

// HistoryFetcher seeds a session's message log from the archive.
type HistoryFetcher interface {
	RoomHistory(ctx context.Context, roomID int64) ([]domain.ChatMessage, error)
}

// Session is one open chat window: a live subscription on the shared
// connection plus an ordered in-memory message log. The log is kept
// sorted by SentAt and never holds two entries for the same
// authoritative server record.
type Session struct {
	room    domain.ChatRoomSummary
	conn    *Connection
	selfID  int64
	history HistoryFetcher
	now     func() time.Time

	mu         sync.Mutex
	log        []domain.ChatMessage
	buffered   []domain.ChatMessage
	seeded     bool
	closed     bool
	foreground bool
	subID      transport.SubscriptionID
}

// NewSession subscribes to the room's message topic on the given
// connection. The session is not usable until Seed has run; live
// messages arriving before that are buffered so the race between
// history fetch and delivery loses nothing.
func NewSession(ctx context.Context, conn *Connection, room domain.ChatRoomSummary, selfID int64, history HistoryFetcher) (*Session, error) {
	s := &Session{
		room:       room,
		conn:       conn,
		selfID:     selfID,
		history:    history,
		now:        time.Now,
		foreground: true,
	}

	subID, err := conn.Subscribe(ctx, topics.ForRoomMessages(room.RoomID), s.onWire)
	if err != nil {
		return nil, err
	}
	s.subID = subID
	return s, nil
}

// Seed fetches the room history and installs it ahead of any buffered
// live messages. If the session was closed while the fetch was in
// flight, the result is discarded and ErrSuperseded returned; nothing
// is written to closed state.
func (s *Session) Seed(ctx context.Context) error {
	hist, err := s.history.RoomHistory(ctx, s.room.RoomID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSuperseded
	}
	if err != nil {
		return err
	}

	s.log = s.log[:0]
	for _, msg := range hist {
		s.insertLocked(msg)
	}
	for _, msg := range s.buffered {
		s.insertLocked(msg)
	}
	s.buffered = nil
	s.seeded = true
	return nil
}

// Room returns the summary the session was opened from. Unread reflects
// the live view only; the directory's cached summary stays stale until
// the next refresh.
func (s *Session) Room() domain.ChatRoomSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Messages returns a snapshot of the message log in SentAt order.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.log))
	copy(out, s.log)
	return out
}

// SetForeground records whether this session is the one the user is
// looking at. Only a foregrounded session clears its own unread flag on
// arrival.
func (s *Session) SetForeground(fg bool) {
	s.mu.Lock()
	s.foreground = fg
	s.mu.Unlock()
}

// Send publishes a message, appending it to the log optimistically
// before the transport confirms. On failure the entry is marked failed
// in place, never removed, so the UI can offer a retry.
func (s *Session) Send(ctx context.Context, body string) error {
	msg := domain.ChatMessage{
		RoomID:    s.room.RoomID,
		SenderID:  s.selfID,
		Body:      body,
		SentAt:    s.now(),
		ClientSeq: uuid.NewString(),
		State:     domain.DeliveryPending,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: session is closed", domain.ErrSendFailed)
	}
	s.insertLocked(msg)
	s.mu.Unlock()

	payload, err := encodeMessage(msg)
	if err == nil {
		err = s.conn.Publish(ctx, topics.ForRoomMessages(s.room.RoomID), payload)
	}
	if err != nil {
		s.mu.Lock()
		for i := range s.log {
			if s.log[i].ClientSeq == msg.ClientSeq {
				s.log[i].State = domain.DeliveryFailed
				break
			}
		}
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}
	return nil
}

// MarkRead publishes a read receipt for the room and clears the live
// view's unread flag.
func (s *Session) MarkRead(ctx context.Context) error {
	receipt := wireReadReceipt{
		RoomID:   s.room.RoomID,
		ReaderID: s.selfID,
		ReadAt:   s.now(),
	}
	payload, err := encodeReadReceipt(receipt)
	if err == nil {
		err = s.conn.Publish(ctx, topics.ForRoomRead(s.room.RoomID), payload)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}

	s.mu.Lock()
	s.room.Unread = false
	s.mu.Unlock()
	return nil
}

// Close releases the subscription exactly once and drops the log.
// Closing an already-closed session is a no-op; competing teardown
// paths must not trip over each other.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subID := s.subID
	s.log = nil
	s.buffered = nil
	s.mu.Unlock()

	if err := s.conn.Unsubscribe(subID); err != nil {
		slog.Warn("Failed to unsubscribe room session", "room_id", s.room.RoomID, "error", err)
	}
}

// onWire handles a live frame from the room's message topic.
func (s *Session) onWire(frame transport.Message) {
	msg, err := decodeMessage(frame.Payload)
	if err != nil {
		slog.Error("Discarding undecodable chat message", "topic", frame.Topic, "error", err)
		return
	}
	if msg.RoomID != s.room.RoomID {
		slog.Warn("Dropping message for foreign room", "got", msg.RoomID, "want", s.room.RoomID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if !s.seeded {
		s.buffered = append(s.buffered, msg)
		return
	}

	s.insertLocked(msg)
	if s.foreground {
		s.room.Unread = false
	}
}

// insertLocked merges one message into the ordered log. Callers hold
// s.mu. An echo of our own optimistic send reconciles the pending entry
// in place; anything matching an existing authoritative record is a
// duplicate and dropped.
func (s *Session) insertLocked(msg domain.ChatMessage) {
	// Echo-back of an optimistic send: the client correlation id is
	// the authoritative match key.
	if msg.ClientSeq != "" {
		for i := range s.log {
			if s.log[i].ClientSeq == msg.ClientSeq && s.log[i].State != domain.DeliveryDelivered {
				s.log[i] = msg
				s.resortLocked(i)
				return
			}
		}
	}

	// Fallback for servers that strip the correlation id: the pending
	// entry with the same sender and body whose local timestamp is
	// nearest the authoritative one.
	if msg.SenderID == s.selfID && msg.State == domain.DeliveryDelivered {
		best := -1
		var bestDelta time.Duration
		for i := range s.log {
			if s.log[i].State != domain.DeliveryPending ||
				s.log[i].SenderID != msg.SenderID ||
				s.log[i].Body != msg.Body {
				continue
			}
			delta := s.log[i].SentAt.Sub(msg.SentAt)
			if delta < 0 {
				delta = -delta
			}
			if best == -1 || delta < bestDelta {
				best, bestDelta = i, delta
			}
		}
		if best != -1 {
			seq := s.log[best].ClientSeq
			s.log[best] = msg
			s.log[best].ClientSeq = seq
			s.resortLocked(best)
			return
		}
	}

	for i := range s.log {
		if s.log[i].State == domain.DeliveryDelivered && s.log[i].SameRecord(msg) {
			// Duplicate delivery of a known record.
			return
		}
	}

	// Ordered insert by SentAt; equal timestamps keep arrival order.
	pos := len(s.log)
	for i := range s.log {
		if s.log[i].SentAt.After(msg.SentAt) {
			pos = i
			break
		}
	}
	s.log = append(s.log, domain.ChatMessage{})
	copy(s.log[pos+1:], s.log[pos:])
	s.log[pos] = msg
}

// resortLocked restores SentAt order after the entry at i changed its
// timestamp during reconciliation.
func (s *Session) resortLocked(i int) {
	msg := s.log[i]
	s.log = append(s.log[:i], s.log[i+1:]...)

	pos := len(s.log)
	for j := range s.log {
		if s.log[j].SentAt.After(msg.SentAt) {
			pos = j
			break
		}
	}
	s.log = append(s.log, domain.ChatMessage{})
	copy(s.log[pos+1:], s.log[pos:])
	s.log[pos] = msg
}
