package transport

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBroker hosts a minimal loopback broker on echo: it tracks each
// connection's subscriptions and echoes published payloads back as
// "message" frames to subscribers of the target topic.
type fakeBroker struct {
	mu      sync.Mutex
	headers []string
}

func (b *fakeBroker) handler(c echo.Context) error {
	b.mu.Lock()
	b.headers = append(b.headers, c.Request().Header.Get("Authorization"))
	b.mu.Unlock()

	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	subs := make(map[string]string) // id -> topic
	for {
		_, data, err := conn.Read(c.Request().Context())
		if err != nil {
			return nil
		}

		var frame Envelope
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "subscribe":
			subs[frame.ID] = frame.Target
		case "unsubscribe":
			delete(subs, frame.ID)
		case "publish":
			subscribed := false
			for _, topic := range subs {
				if topic == frame.Target {
					subscribed = true
					break
				}
			}
			if !subscribed {
				continue
			}
			out, _ := json.Marshal(Envelope{Type: "message", Target: frame.Target, Payload: frame.Payload})
			if err := conn.Write(c.Request().Context(), websocket.MessageText, out); err != nil {
				return nil
			}
		}
	}
}

func (b *fakeBroker) authHeaders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.headers...)
}

func startBroker(t *testing.T) (*fakeBroker, string) {
	t.Helper()

	broker := &fakeBroker{}
	e := echo.New()
	e.GET("/ws", broker.handler)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return broker, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWebsocket_SubscribePublishRoundTrip(t *testing.T) {
	broker, url := startBroker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := NewWebsocket().Connect(ctx, url, "Bearer tok")
	require.NoError(t, err)
	defer conn.Disconnect(context.Background())

	rec := &recorder{}
	_, err = conn.Subscribe(ctx, "chat.room.7.messages", rec.handle)
	require.NoError(t, err)

	require.NoError(t, conn.Publish(ctx, "chat.room.7.messages", []byte(`{"body":"hi"}`)))

	require.Eventually(t, func() bool {
		return len(rec.messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := rec.messages()[0]
	assert.Equal(t, "chat.room.7.messages", got.Topic)
	assert.JSONEq(t, `{"body":"hi"}`, string(got.Payload))

	headers := broker.authHeaders()
	require.Len(t, headers, 1)
	assert.Equal(t, "Bearer tok", headers[0])
}

func TestWebsocket_UnsubscribeStopsDelivery(t *testing.T) {
	_, url := startBroker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := NewWebsocket().Connect(ctx, url, "")
	require.NoError(t, err)
	defer conn.Disconnect(context.Background())

	rec := &recorder{}
	id, err := conn.Subscribe(ctx, "chat.room.7.messages", rec.handle)
	require.NoError(t, err)
	require.NoError(t, conn.Unsubscribe(id))

	require.NoError(t, conn.Publish(ctx, "chat.room.7.messages", []byte(`{"body":"late"}`)))

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.messages())
}

func TestWebsocket_PublishRejectsNonJSONPayload(t *testing.T) {
	_, url := startBroker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := NewWebsocket().Connect(ctx, url, "")
	require.NoError(t, err)
	defer conn.Disconnect(context.Background())

	// The payload is embedded verbatim in the JSON envelope, so raw
	// non-JSON bytes must be refused up front.
	err = conn.Publish(ctx, "chat.room.7.messages", []byte("late"))
	assert.ErrorContains(t, err, "valid JSON")
}

func TestWebsocket_ServerCloseSignalsDone(t *testing.T) {
	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		conn, err := websocket.Accept(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		return conn.Close(websocket.StatusGoingAway, "shutting down")
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := NewWebsocket().Connect(ctx, url, "")
	require.NoError(t, err)

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done was not closed after the server went away")
	}
}

func TestWebsocket_ConnectFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewWebsocket().Connect(ctx, "ws://127.0.0.1:1/ws", "")
	assert.Error(t, err)
}
