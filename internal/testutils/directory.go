package testutils

import (
	"context"
	"sync"

	"github.com/freshtrade/chatcore/internal/domain"
)

// FakeDirectory implements the engine's Directory contract from
// in-memory fixtures. HistoryGate, when set, blocks RoomHistory until
// the test releases it, which is how supersession races are staged.
type FakeDirectory struct {
	Rooms     []domain.ChatRoomSummary
	Histories map[int64][]domain.ChatMessage

	// ListErr and HistoryErr, when set, fail the respective calls.
	ListErr    error
	HistoryErr error

	// HistoryGate blocks RoomHistory until a value is sent (or the
	// channel closed).
	HistoryGate chan struct{}

	mu           sync.Mutex
	historyCalls []int64
}

// ListRoomsForUser returns the fixture rooms.
func (d *FakeDirectory) ListRoomsForUser(ctx context.Context, userID int64) ([]domain.ChatRoomSummary, error) {
	if d.ListErr != nil {
		return nil, d.ListErr
	}
	return append([]domain.ChatRoomSummary(nil), d.Rooms...), nil
}

// ListRoomsForListing returns the fixture rooms scoped to one listing.
func (d *FakeDirectory) ListRoomsForListing(ctx context.Context, listingID int64) ([]domain.ChatRoomSummary, error) {
	if d.ListErr != nil {
		return nil, d.ListErr
	}
	var out []domain.ChatRoomSummary
	for _, room := range d.Rooms {
		if room.ListingID == listingID {
			out = append(out, room)
		}
	}
	return out, nil
}

// RoomHistory returns the fixture history for one room, waiting on
// HistoryGate first when the test staged one.
func (d *FakeDirectory) RoomHistory(ctx context.Context, roomID int64) ([]domain.ChatMessage, error) {
	d.mu.Lock()
	d.historyCalls = append(d.historyCalls, roomID)
	gate := d.HistoryGate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.HistoryErr != nil {
		return nil, d.HistoryErr
	}
	return append([]domain.ChatMessage(nil), d.Histories[roomID]...), nil
}

// SetHistoryGate swaps the gate, affecting subsequent RoomHistory calls
// only; calls already waiting keep the gate they started with.
func (d *FakeDirectory) SetHistoryGate(gate chan struct{}) {
	d.mu.Lock()
	d.HistoryGate = gate
	d.mu.Unlock()
}

// HistoryCalls returns the room ids history was fetched for, in order.
func (d *FakeDirectory) HistoryCalls() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.historyCalls...)
}
