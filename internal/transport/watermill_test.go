package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) handle(msg Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func TestWatermill_PublishReachesSubscriber(t *testing.T) {
	conn, err := NewWatermill().Connect(context.Background(), "", "")
	require.NoError(t, err)
	defer conn.Disconnect(context.Background())

	rec := &recorder{}
	_, err = conn.Subscribe(context.Background(), "chat.room.7.messages", rec.handle)
	require.NoError(t, err)

	require.NoError(t, conn.Publish(context.Background(), "chat.room.7.messages", []byte(`{"body":"hi"}`)))

	assert.Eventually(t, func() bool {
		return len(rec.messages()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "chat.room.7.messages", rec.messages()[0].Topic)
}

func TestWatermill_TopicsAreIsolated(t *testing.T) {
	conn, err := NewWatermill().Connect(context.Background(), "", "")
	require.NoError(t, err)
	defer conn.Disconnect(context.Background())

	rec := &recorder{}
	_, err = conn.Subscribe(context.Background(), "chat.room.7.messages", rec.handle)
	require.NoError(t, err)

	require.NoError(t, conn.Publish(context.Background(), "chat.room.9.messages", []byte("other")))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.messages())
}

func TestWatermill_UnsubscribeStopsDelivery(t *testing.T) {
	conn, err := NewWatermill().Connect(context.Background(), "", "")
	require.NoError(t, err)
	defer conn.Disconnect(context.Background())

	rec := &recorder{}
	id, err := conn.Subscribe(context.Background(), "chat.room.7.messages", rec.handle)
	require.NoError(t, err)
	require.NoError(t, conn.Unsubscribe(id))

	require.NoError(t, conn.Publish(context.Background(), "chat.room.7.messages", []byte("late")))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.messages())
}

func TestWatermill_UnsubscribeUnknownIDIsNoop(t *testing.T) {
	conn, err := NewWatermill().Connect(context.Background(), "", "")
	require.NoError(t, err)
	defer conn.Disconnect(context.Background())

	assert.NoError(t, conn.Unsubscribe(SubscriptionID("never-issued")))
}

func TestWatermill_DisconnectClosesDone(t *testing.T) {
	conn, err := NewWatermill().Connect(context.Background(), "", "")
	require.NoError(t, err)

	require.NoError(t, conn.Disconnect(context.Background()))

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done must be closed after Disconnect")
	}

	// Idempotent.
	assert.NoError(t, conn.Disconnect(context.Background()))
	assert.Error(t, conn.Publish(context.Background(), "chat.room.7.messages", []byte("x")))
}
